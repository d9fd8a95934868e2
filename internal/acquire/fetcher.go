package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/allenai/olmoe-modeld/internal/domain"
)

// Fetcher streams the artifact to a temporary file and reports what happened
// on the events channel. Implementations must emit exactly one terminal event
// (Completed or Failed) and then close the channel.
type Fetcher interface {
	Fetch(ctx context.Context, tempPath string, events chan<- domain.TransferEvent)
}

// HTTPFetcher is the production transfer: a plain GET with Range-based resume
// from whatever is already in the .part file.
type HTTPFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{url: url, client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, tempPath string, events chan<- domain.TransferEvent) {
	defer close(events)

	fail := func(err error) {
		events <- domain.TransferEvent{Kind: domain.EventFailed, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(tempPath), 0755); err != nil {
		fail(fmt.Errorf("could not create download directory: %w", err))
		return
	}

	// Resume from whatever a previous attempt left behind
	var offset int64
	if fi, err := os.Stat(tempPath); err == nil {
		offset = fi.Size()
	}

	resp, err := f.do(ctx, offset)
	if err != nil {
		fail(fmt.Errorf("transfer failed: %w", err))
		return
	}

	// A 416 means the .part already covers everything the host has, or is
	// stale garbage. The Content-Range on the rejection tells us which.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		total := contentRangeTotal(resp.Header.Get("Content-Range"))
		resp.Body.Close()

		if total > 0 && offset == total {
			events <- domain.TransferEvent{Kind: domain.EventProgress, WrittenBytes: offset, TotalBytes: total}
			events <- domain.TransferEvent{
				Kind:         domain.EventCompleted,
				TempPath:     tempPath,
				WrittenBytes: offset,
				TotalBytes:   total,
			}
			return
		}

		offset = 0
		resp, err = f.do(ctx, 0)
		if err != nil {
			fail(fmt.Errorf("transfer failed: %w", err))
			return
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range request, start over
		offset = 0
	case http.StatusPartialContent:
	default:
		fail(fmt.Errorf("model host returned %s", resp.Status))
		return
	}

	total := int64(-1)
	if resp.StatusCode == http.StatusPartialContent {
		total = contentRangeTotal(resp.Header.Get("Content-Range"))
	}
	if total < 0 && resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	out, err := os.OpenFile(tempPath, flags, 0644)
	if err != nil {
		fail(fmt.Errorf("could not open temp file: %w", err))
		return
	}

	// First sample goes out before any bytes move so the pipeline can run
	// its disk-space gate against the expected total.
	written := offset
	events <- domain.TransferEvent{Kind: domain.EventProgress, WrittenBytes: written, TotalBytes: total}

	buf := make([]byte, 256*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				fail(fmt.Errorf("write failed: %w", werr))
				return
			}
			written += int64(n)
			events <- domain.TransferEvent{Kind: domain.EventProgress, WrittenBytes: written, TotalBytes: total}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			if ctx.Err() != nil {
				fail(ctx.Err())
			} else {
				fail(fmt.Errorf("transfer failed: %w", rerr))
			}
			return
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		fail(fmt.Errorf("sync failed: %w", err))
		return
	}
	if err := out.Close(); err != nil {
		fail(fmt.Errorf("close failed: %w", err))
		return
	}

	events <- domain.TransferEvent{
		Kind:         domain.EventCompleted,
		TempPath:     tempPath,
		WrittenBytes: written,
		TotalBytes:   total,
	}
}

func (f *HTTPFetcher) do(ctx context.Context, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return f.client.Do(req)
}

// contentRangeTotal extracts the total size from a "bytes 100-999/5000"
// header. Returns -1 when the total is absent or unparseable.
func contentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}

	v := header[idx+1:]
	if v == "*" {
		return -1
	}

	total, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return total
}
