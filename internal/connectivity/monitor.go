// Package connectivity decides whether the ordering backend is reachable and
// tells interested components when that changes.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MwailaCoding/storefront/pkg/logger"
)

const defaultInterval = 10 * time.Second

// Prober checks backend reachability. Implementations bound their own wait.
type Prober interface {
	Health(ctx context.Context) error
}

// Listener is notified on every online/offline edge.
type Listener func(online bool)

// MonitorParams configure the monitor.
type MonitorParams struct {
	Prober    Prober
	Logger    *logger.Logger
	Interval  time.Duration
	Listeners []Listener
}

// Monitor probes the backend on a fixed cadence.
type Monitor struct {
	prober    Prober
	logg      *logger.Logger
	interval  time.Duration
	listeners []Listener

	mu      sync.RWMutex
	online  bool
	known   bool
	lastErr error
	checked time.Time
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Prober == nil {
		return nil, errors.New("prober required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		prober:    params.Prober,
		logg:      logg,
		interval:  interval,
		listeners: params.Listeners,
		online:    true,
	}, nil
}

// Run probes immediately and then every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logg.Info(ctx, "connectivity monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one health check and returns the resulting state. Listeners are
// called outside the lock, only when the state flips.
func (m *Monitor) Probe(ctx context.Context) bool {
	err := m.prober.Health(ctx)
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	wasKnown := m.known
	m.online = online
	m.known = true
	m.lastErr = err
	m.checked = time.Now()
	m.mu.Unlock()

	if !changed {
		return online
	}
	if online {
		if wasKnown {
			m.logg.Info(ctx, "backend reachable again")
		}
	} else {
		m.logg.WarnErr(ctx, "backend unreachable; pausing order refresh", err)
	}
	// the initial online state matches the default, so listeners only hear edges
	if !wasKnown && online {
		return online
	}
	for _, listener := range m.listeners {
		listener(online)
	}
	return online
}

// Status is the last probe outcome.
type Status struct {
	Online    bool      `json:"online"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt,omitempty"`
}

func (m *Monitor) Status() Status {
	if m == nil {
		return Status{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{Online: m.online, CheckedAt: m.checked}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	return st
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}
