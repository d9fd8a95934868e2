package acquire

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/allenai/olmoe-modeld/internal/domain"
)

func collectEvents(t *testing.T, f *HTTPFetcher, tempPath string) []domain.TransferEvent {
	t.Helper()

	events := make(chan domain.TransferEvent)
	go f.Fetch(context.Background(), tempPath, events)

	var got []domain.TransferEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) == 0 {
		t.Fatal("no events emitted")
	}
	return got
}

func testPayload() []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
}

func TestFetchFullTransfer(t *testing.T) {
	payload := testPayload()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "model.gguf", time.Now(), bytes.NewReader(payload))
	}))
	defer srv.Close()

	tempPath := filepath.Join(t.TempDir(), "model.gguf.part")
	f := NewHTTPFetcher(srv.URL, nil)

	got := collectEvents(t, f, tempPath)

	first := got[0]
	if first.Kind != domain.EventProgress {
		t.Fatalf("expected a progress event first, got kind %v", first.Kind)
	}
	if first.TotalBytes != int64(len(payload)) {
		t.Errorf("first sample total = %d, want %d", first.TotalBytes, len(payload))
	}

	last := got[len(got)-1]
	if last.Kind != domain.EventCompleted {
		t.Fatalf("expected completion, got kind %v err %v", last.Kind, last.Err)
	}
	if last.WrittenBytes != int64(len(payload)) {
		t.Errorf("completed written = %d, want %d", last.WrittenBytes, len(payload))
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("temp file content does not match payload")
	}
}

func TestFetchResumesFromPartFile(t *testing.T) {
	payload := testPayload()

	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		http.ServeContent(w, r, "model.gguf", time.Now(), bytes.NewReader(payload))
	}))
	defer srv.Close()

	tempPath := filepath.Join(t.TempDir(), "model.gguf.part")
	const resumeAt = 4096
	if err := os.WriteFile(tempPath, payload[:resumeAt], 0644); err != nil {
		t.Fatal(err)
	}

	f := NewHTTPFetcher(srv.URL, nil)
	got := collectEvents(t, f, tempPath)

	if gotRange != "bytes=4096-" {
		t.Errorf("expected a range request, got %q", gotRange)
	}

	last := got[len(got)-1]
	if last.Kind != domain.EventCompleted {
		t.Fatalf("expected completion, got kind %v err %v", last.Kind, last.Err)
	}
	if last.WrittenBytes != int64(len(payload)) {
		t.Errorf("completed written = %d, want %d", last.WrittenBytes, len(payload))
	}
	if last.TotalBytes != int64(len(payload)) {
		t.Errorf("completed total = %d, want %d", last.TotalBytes, len(payload))
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("resumed file content does not match payload")
	}
}

func TestFetchCompletePartFileFinishesWithoutTransfer(t *testing.T) {
	payload := testPayload()

	// ServeContent rejects a range starting at EOF with 416 and the total
	// size in Content-Range
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "model.gguf", time.Now(), bytes.NewReader(payload))
	}))
	defer srv.Close()

	tempPath := filepath.Join(t.TempDir(), "model.gguf.part")
	if err := os.WriteFile(tempPath, payload, 0644); err != nil {
		t.Fatal(err)
	}

	f := NewHTTPFetcher(srv.URL, nil)
	got := collectEvents(t, f, tempPath)

	last := got[len(got)-1]
	if last.Kind != domain.EventCompleted {
		t.Fatalf("expected completion, got kind %v err %v", last.Kind, last.Err)
	}
	if last.WrittenBytes != int64(len(payload)) {
		t.Errorf("completed written = %d, want %d", last.WrittenBytes, len(payload))
	}
	if last.TotalBytes != int64(len(payload)) {
		t.Errorf("completed total = %d, want %d", last.TotalBytes, len(payload))
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("complete part file must be left untouched")
	}
}

func TestFetchOversizedPartFileRestarts(t *testing.T) {
	payload := testPayload()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "model.gguf", time.Now(), bytes.NewReader(payload))
	}))
	defer srv.Close()

	// Part file longer than what the host has, say from a changed artifact
	tempPath := filepath.Join(t.TempDir(), "model.gguf.part")
	oversized := append(append([]byte{}, payload...), []byte("trailing junk")...)
	if err := os.WriteFile(tempPath, oversized, 0644); err != nil {
		t.Fatal(err)
	}

	f := NewHTTPFetcher(srv.URL, nil)
	got := collectEvents(t, f, tempPath)

	last := got[len(got)-1]
	if last.Kind != domain.EventCompleted {
		t.Fatalf("expected completion, got kind %v err %v", last.Kind, last.Err)
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("oversized part file must be rewritten from scratch")
	}
}

func TestFetchRestartsWhenServerIgnoresRange(t *testing.T) {
	payload := testPayload()

	// Plain writer: no Range support, always the full body with 200
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	tempPath := filepath.Join(t.TempDir(), "model.gguf.part")
	if err := os.WriteFile(tempPath, []byte("stale partial data"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewHTTPFetcher(srv.URL, nil)
	got := collectEvents(t, f, tempPath)

	last := got[len(got)-1]
	if last.Kind != domain.EventCompleted {
		t.Fatalf("expected completion, got kind %v err %v", last.Kind, last.Err)
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("file must be rewritten from scratch when the range is ignored")
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, nil)
	got := collectEvents(t, f, filepath.Join(t.TempDir(), "m.part"))

	last := got[len(got)-1]
	if last.Kind != domain.EventFailed {
		t.Fatalf("expected failure, got kind %v", last.Kind)
	}
	if last.Err == nil {
		t.Fatal("failure event with nil error")
	}
}

func TestFetchCancelled(t *testing.T) {
	payload := testPayload()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2097152")
		w.Write(payload)
		w.(http.Flusher).Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.TransferEvent)
	f := NewHTTPFetcher(srv.URL, nil)
	go f.Fetch(ctx, filepath.Join(t.TempDir(), "m.part"), events)

	var last domain.TransferEvent
	for ev := range events {
		last = ev
		if ev.Kind == domain.EventProgress && ev.WrittenBytes > 0 {
			cancel()
		}
	}

	if last.Kind != domain.EventFailed {
		t.Fatalf("expected failure after cancel, got kind %v", last.Kind)
	}
	if ctx.Err() == nil {
		t.Fatal("context not cancelled")
	}
}

func TestContentRangeTotal(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"bytes 100-999/5000", 5000},
		{"bytes 0-0/1", 1},
		{"bytes 100-999/*", -1},
		{"", -1},
		{"garbage", -1},
	}

	for _, tc := range cases {
		if got := contentRangeTotal(tc.header); got != tc.want {
			t.Errorf("contentRangeTotal(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}
