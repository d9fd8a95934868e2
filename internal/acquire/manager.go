package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/allenai/olmoe-modeld/internal/domain"
	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/allenai/olmoe-modeld/internal/infra/logger"
	"github.com/segmentio/ksuid"
)

// AttemptRecorder persists download attempt history. May be nil for one-shot
// CLI use where no store is open.
type AttemptRecorder interface {
	SaveAttempt(a *domain.Attempt) error
}

// phase tracks where the current attempt is in its lifecycle. The disk-space
// gate runs exactly once per attempt, on the first progress sample.
type phase int

const (
	phaseIdle phase = iota
	phaseAwaitingFirstSample
	phaseSpaceVerified
)

const bytesPerGB = 1_000_000_000

// Manager owns the model artifact lifecycle: one download attempt at a time,
// a readiness flag backed by the file on disk, and a state snapshot for the
// presentation layer. All state transitions happen on the single goroutine
// consuming transfer events; readers get copies under the mutex.
type Manager struct {
	cfg   *config.Config
	log   *logger.Logger
	store AttemptRecorder
	fetch Fetcher

	// test seams
	diskFree  func(path string) (uint64, error)
	reachable func() bool

	mu          sync.Mutex
	state       domain.DownloadState
	phase       phase
	attempt     *domain.Attempt
	cancel      context.CancelFunc
	lastPublish time.Time
	done        chan struct{}
}

func NewManager(cfg *config.Config, log *logger.Logger, store AttemptRecorder, fetch Fetcher) *Manager {
	return &Manager{
		cfg:       cfg,
		log:       log,
		store:     store,
		fetch:     fetch,
		diskFree:  freeDiskSpace,
		reachable: func() bool { return true },
	}
}

// BindReachability wires the reachability monitor in. The manager consults it
// on start; the monitor calls AbortForConnectivity on loss.
func (m *Manager) BindReachability(satisfied func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reachable = satisfied
}

// State returns a copy of the current download state.
func (m *Manager) State() domain.DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done returns a channel closed when the current attempt finishes. Returns a
// closed channel when nothing is in flight.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

// StartDownload begins a new attempt. A start with no network path is
// rejected with domain.ErrNoConnectivity; a start while a transfer is in
// flight is rejected with domain.ErrDownloadInFlight rather than spawning a
// duplicate transfer.
func (m *Manager) StartDownload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reachable() {
		m.log.Warn("download requested with no connectivity, rejecting")
		return domain.ErrNoConnectivity
	}

	if m.state.Downloading {
		return domain.ErrDownloadInFlight
	}

	// Fresh attempt: progress back to zero, previous error cleared
	m.state = domain.DownloadState{Downloading: true}
	m.phase = phaseAwaitingFirstSample
	m.lastPublish = time.Time{}

	m.attempt = &domain.Attempt{
		ID:        ksuid.New().String(),
		URL:       m.cfg.Model.URL,
		Status:    domain.AttemptDownloading,
		StartedAt: time.Now(),
	}
	m.saveAttempt()

	// The attempt outlives the caller: an API request context ending must
	// not kill the background transfer
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})

	events := make(chan domain.TransferEvent)
	go m.fetch.Fetch(attemptCtx, m.tempPath(), events)
	go m.consume(events)

	m.log.Info("download started: %s", m.cfg.Model.URL)
	return nil
}

// Cancel aborts the in-flight transfer, if any. Returns false when idle.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Downloading || m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// AbortForConnectivity force-stops the in-flight transfer and records a
// connectivity error. Called by the reachability monitor on transition to
// unsatisfied; the error is set here so it wins over the generic context
// error the transfer will report.
func (m *Manager) AbortForConnectivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Downloading || m.cancel == nil {
		return
	}

	if m.state.Error == "" {
		m.state.Error = domain.ErrNoConnectivity.Error()
	}
	m.log.Warn("connectivity lost, stopping transfer")
	m.cancel()
}

// Flush deletes the artifact. Readiness drops only when the delete succeeds;
// a failed delete surfaces an error and leaves readiness alone.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Downloading {
		return domain.ErrDownloadInFlight
	}

	if err := os.Remove(m.cfg.Model.Path); err != nil {
		m.state.Error = fmt.Sprintf("could not remove model: %v", err)
		return err
	}

	m.state.Ready = false
	m.state.Error = ""
	m.log.Info("model flushed: %s", m.cfg.Model.Path)
	return nil
}

// Reconcile sets readiness from the artifact file on disk. The file is the
// sole source of truth, so this recovers the ready flag after a restart
// regardless of what in-memory state says.
func (m *Manager) Reconcile() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Downloading {
		return m.state.Ready
	}

	_, err := os.Stat(m.cfg.Model.Path)
	m.state.Ready = err == nil
	return m.state.Ready
}

func (m *Manager) tempPath() string {
	return filepath.Join(m.cfg.Model.TempDir, filepath.Base(m.cfg.Model.Path)+".part")
}

// consume is the single writer for DownloadState: it drains the event stream
// for one attempt and applies each variant in order.
func (m *Manager) consume(events <-chan domain.TransferEvent) {
	for ev := range events {
		switch ev.Kind {
		case domain.EventProgress:
			m.onProgress(ev)
		case domain.EventCompleted:
			m.onCompleted(ev)
		case domain.EventFailed:
			m.onFailed(ev.Err)
		}
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel() // release the attempt context
		m.cancel = nil
	}
	done := m.done
	m.done = nil
	m.mu.Unlock()

	if done != nil {
		close(done)
	}
}

func (m *Manager) onProgress(ev domain.TransferEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == phaseIdle {
		// Attempt already terminated (disk gate or connectivity); stale
		// samples from the dying transfer are dropped.
		return
	}

	if m.phase == phaseAwaitingFirstSample {
		if !m.verifyDiskSpaceLocked(ev.TotalBytes) {
			return
		}
		m.phase = phaseSpaceVerified
	}

	// Coalesce: at most one publication per interval. The first verified
	// sample goes out immediately.
	now := time.Now()
	if !m.lastPublish.IsZero() && now.Sub(m.lastPublish) < m.cfg.Model.ProgressInterval {
		return
	}

	// Never publish a sample older than what readers already saw
	if ev.WrittenBytes < m.state.DownloadedBytes {
		return
	}

	m.lastPublish = now
	m.state.DownloadedBytes = ev.WrittenBytes
	if ev.TotalBytes > 0 {
		m.state.TotalBytes = ev.TotalBytes
		m.state.Progress = clampProgress(float64(ev.WrittenBytes) / float64(ev.TotalBytes))
	}

	if m.attempt != nil {
		m.attempt.DownloadedBytes = ev.WrittenBytes
		if ev.TotalBytes > 0 {
			m.attempt.TotalBytes = ev.TotalBytes
		}
	}
}

// verifyDiskSpaceLocked runs the one-shot space gate. Returns false after
// aborting the attempt when the artifact cannot fit.
func (m *Manager) verifyDiskSpaceLocked(totalBytes int64) bool {
	free, err := m.diskFree(m.cfg.Model.TempDir)
	if err != nil {
		// Can't measure, let the transfer proceed and fail on write if
		// space really is short
		m.log.Warn("disk space check failed: %v", err)
		return true
	}

	if totalBytes > 0 && free <= uint64(totalBytes) {
		msg := fmt.Sprintf("not enough disk space: need %.2f GB free, only %.2f GB available",
			float64(totalBytes)/bytesPerGB, float64(free)/bytesPerGB)
		m.failLocked(errors.New(msg), domain.AttemptFailed)
		return false
	}

	return true
}

func (m *Manager) onCompleted(ev domain.TransferEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == phaseIdle {
		return
	}

	if err := installArtifact(ev.TempPath, m.cfg.Model.Path); err != nil {
		m.failLocked(fmt.Errorf("could not install model: %w", err), domain.AttemptFailed)
		return
	}

	m.state.Downloading = false
	m.state.Ready = true
	m.state.Progress = 1.0
	m.state.DownloadedBytes = ev.WrittenBytes
	if ev.TotalBytes > 0 {
		m.state.TotalBytes = ev.TotalBytes
	} else {
		m.state.TotalBytes = ev.WrittenBytes
	}
	m.phase = phaseIdle

	if m.attempt != nil {
		m.attempt.Status = domain.AttemptCompleted
		m.attempt.DownloadedBytes = ev.WrittenBytes
		m.attempt.TotalBytes = m.state.TotalBytes
		m.attempt.FinishedAt = time.Now()
		m.saveAttempt()
		m.attempt = nil
	}

	m.log.Info("model ready: %s", m.cfg.Model.Path)
}

func (m *Manager) onFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == phaseIdle {
		// Already terminated with a more specific cause (disk gate,
		// connectivity); the transfer's context error is noise.
		return
	}

	status := domain.AttemptFailed
	if errors.Is(err, context.Canceled) {
		status = domain.AttemptCancelled
		err = domain.ErrCancelled
	}

	m.failLocked(err, status)
}

// failLocked terminates the current attempt. First error writer wins: a
// message already on the state (connectivity abort) is not overwritten.
func (m *Manager) failLocked(err error, status domain.AttemptStatus) {
	if m.state.Error == "" {
		m.state.Error = err.Error()
	}
	m.state.Downloading = false
	m.phase = phaseIdle

	// The transfer only ever wrote to the .part, so an artifact installed by
	// an earlier attempt is still intact and usable
	if _, statErr := os.Stat(m.cfg.Model.Path); statErr == nil {
		m.state.Ready = true
	}

	if m.cancel != nil {
		m.cancel()
	}

	if m.attempt != nil {
		m.attempt.Status = status
		m.attempt.Error = m.state.Error
		m.attempt.FinishedAt = time.Now()
		m.saveAttempt()
		m.attempt = nil
	}

	m.log.Error("download failed: %s", m.state.Error)
}

func (m *Manager) saveAttempt() {
	if m.store == nil || m.attempt == nil {
		return
	}
	if err := m.store.SaveAttempt(m.attempt); err != nil {
		m.log.Warn("could not persist attempt %s: %v", m.attempt.ID, err)
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
