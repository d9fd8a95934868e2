// Package reachability watches whether the device currently has a usable
// network path by periodically dialing a well-known address.
package reachability

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/allenai/olmoe-modeld/internal/infra/logger"
)

// ChangeFunc is invoked on every transition between satisfied and
// unsatisfied, never for repeats of the same status.
type ChangeFunc func(satisfied bool)

type Monitor struct {
	probeAddr string
	interval  time.Duration
	timeout   time.Duration
	log       *logger.Logger

	// dial is a test seam; defaults to a net.Dialer
	dial func(ctx context.Context, addr string) error

	mu        sync.RWMutex
	satisfied bool
	checked   bool
	onChange  ChangeFunc
}

func NewMonitor(probeAddr string, interval, timeout time.Duration, log *logger.Logger) *Monitor {
	d := &net.Dialer{}
	return &Monitor{
		probeAddr: probeAddr,
		interval:  interval,
		timeout:   timeout,
		log:       log,
		dial: func(ctx context.Context, addr string) error {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

// OnChange registers the transition callback. Must be called before Run.
func (m *Monitor) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Satisfied reports the last observed status. Before the first probe
// completes it optimistically reports true so startup is not blocked on a
// probe round-trip.
func (m *Monitor) Satisfied() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.checked {
		return true
	}
	return m.satisfied
}

// Run probes until ctx is cancelled. The first probe happens immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.dial(probeCtx, m.probeAddr)
	cancel()

	now := err == nil

	m.mu.Lock()
	changed := !m.checked || now != m.satisfied
	m.checked = true
	m.satisfied = now
	fn := m.onChange
	m.mu.Unlock()

	if !changed {
		return
	}

	if now {
		m.log.Info("network reachable via %s", m.probeAddr)
	} else {
		m.log.Warn("network unreachable: %v", err)
	}

	if fn != nil {
		fn(now)
	}
}
