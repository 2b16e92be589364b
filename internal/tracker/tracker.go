// Package tracker keeps a live view of a customer's orders by polling the
// backend and raises a one-shot event when a tracked order changes status.
package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MwailaCoding/storefront/internal/backend"
	"github.com/MwailaCoding/storefront/pkg/enums"
	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/metrics"
	"github.com/MwailaCoding/storefront/pkg/security"
)

const (
	defaultInterval    = 30 * time.Second
	defaultEventBuffer = 16

	modeForeground = "foreground"
	modeBackground = "background"
)

// Lookuper fetches orders for a phone number.
type Lookuper interface {
	OrdersByPhone(ctx context.Context, phone string) (*backend.Lookup, error)
}

// Params configure the tracker.
type Params struct {
	Backend         Lookuper
	Logger          *logger.Logger
	Metrics         *metrics.TrackerMetrics
	Fingerprinter   *security.PhoneFingerprinter
	RefreshInterval time.Duration
	EventBuffer     int

	// AutoRefreshEnabled is the initial value of the user toggle.
	AutoRefreshEnabled bool
}

// SearchOptions tune a single search.
type SearchOptions struct {
	// Background searches come from the refresh loop: failures are not
	// surfaced and the loading flag is left alone.
	Background bool
}

// Tracker is safe for concurrent use.
type Tracker struct {
	backend Lookuper
	logg    *logger.Logger
	metrics *metrics.TrackerMetrics
	fp      *security.PhoneFingerprinter
	now     func() time.Time
	events  chan Event

	root       context.Context
	rootCancel context.CancelFunc

	mu            sync.Mutex
	phone         string
	orders        []backend.OrderSummary
	current       *backend.OrderDetail
	previous      *backend.OrderDetail
	statusChanged bool
	notFound      bool
	loading       bool
	lastErr       error
	lastUpdated   time.Time
	seq           uint64
	// fgSeq is the seq of the newest foreground search; loading clears
	// when that search resolves, whether or not its result is applied.
	fgSeq uint64

	interval   time.Duration
	running    bool
	enabled    bool
	online     bool
	loopCancel context.CancelFunc
	loopGen    uint64
	closed     bool
}

func New(params Params) (*Tracker, error) {
	if params.Backend == nil {
		return nil, errors.New("backend required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	fp := params.Fingerprinter
	if fp == nil {
		fp = security.NewPhoneFingerprinter("")
	}
	interval := params.RefreshInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	buffer := params.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	root, cancel := context.WithCancel(context.Background())
	return &Tracker{
		backend:    params.Backend,
		logg:       logg,
		metrics:    params.Metrics,
		fp:         fp,
		now:        time.Now,
		events:     make(chan Event, buffer),
		root:       root,
		rootCancel: cancel,
		interval:   interval,
		enabled:    params.AutoRefreshEnabled,
		online:     true,
	}, nil
}

// Events delivers status changes and foreground errors. When the consumer
// falls behind the oldest event is dropped.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Search fetches orders for phone. Only the result of the most recently
// issued search is applied; older responses are discarded. A 404 is a normal
// empty result. Foreground failures are returned, published as an error event
// and stop auto-refresh; background failures are only logged.
func (t *Tracker) Search(ctx context.Context, phone string, opts SearchOptions) (Snapshot, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return t.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "phone is required").
			WithDetails(map[string]string{"phone": "is required"})
	}
	mode := modeForeground
	if opts.Background {
		mode = modeBackground
	}
	ctx = t.logg.WithFields(ctx, map[string]any{
		"phone_ref": t.fp.Fingerprint(phone),
		"mode":      mode,
	})

	t.mu.Lock()
	t.seq++
	seq := t.seq
	if security.NormalizePhone(phone) != security.NormalizePhone(t.phone) {
		t.resetResultsLocked()
	}
	t.phone = phone
	if !opts.Background {
		t.fgSeq = seq
		t.loading = true
	}
	t.mu.Unlock()

	started := t.now()
	lookup, err := t.backend.OrdersByPhone(ctx, phone)
	elapsed := t.now().Sub(started)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !opts.Background && seq == t.fgSeq {
		t.loading = false
	}
	if seq != t.seq {
		t.metrics.IncStaleDropped()
		t.metrics.ObservePoll(mode, "stale", elapsed)
		t.logg.Debug(ctx, "discarding superseded order lookup")
		return t.snapshotLocked(), nil
	}

	switch {
	case errors.Is(err, backend.ErrNoOrders):
		t.resetResultsLocked()
		t.notFound = true
		t.lastUpdated = t.now()
		t.metrics.ObservePoll(mode, "not_found", elapsed)
		return t.snapshotLocked(), nil

	case err != nil:
		t.metrics.ObservePoll(mode, "error", elapsed)
		if opts.Background {
			t.logg.WarnErr(ctx, "background order refresh failed", err)
			return t.snapshotLocked(), nil
		}
		t.lastErr = err
		t.logg.WarnErr(ctx, "order search failed", err)
		t.emitLocked(Event{Kind: EventError, Err: err, At: t.now()})
		if t.running {
			t.running = false
			t.cancelLoopLocked()
			t.logg.Info(ctx, "auto-refresh stopped after failed search")
		}
		return t.snapshotLocked(), err
	}

	t.metrics.ObservePoll(mode, "ok", elapsed)
	t.lastErr = nil
	t.notFound = false
	t.lastUpdated = t.now()

	if lookup.IsList() {
		t.orders = lookup.Summaries
		t.current = nil
		t.previous = nil
		t.statusChanged = false
		return t.snapshotLocked(), nil
	}

	next := lookup.Detail
	t.orders = nil
	if CheckStatusChange(next, t.current) {
		t.previous = t.current
		t.statusChanged = true
		t.metrics.IncStatusChange()
		t.logg.Info(t.logg.WithFields(ctx, map[string]any{
			"order_id": next.OrderID,
			"from":     t.previous.Status.String(),
			"to":       next.Status.String(),
		}), "order status changed")
		t.emitLocked(Event{
			Kind:    EventStatusChanged,
			OrderID: next.OrderID,
			From:    t.previous.Status,
			To:      next.Status,
			At:      t.now(),
		})
	}
	t.current = next
	return t.snapshotLocked(), nil
}

// Refresh re-runs the last search in the background. It is a no-op when
// nothing has been searched yet.
func (t *Tracker) Refresh(ctx context.Context) {
	t.mu.Lock()
	phone := t.phone
	t.mu.Unlock()
	if phone == "" {
		return
	}
	_, _ = t.Search(ctx, phone, SearchOptions{Background: true})
}

// AcknowledgeChange clears the pending status change and the previous snapshot.
func (t *Tracker) AcknowledgeChange() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previous = nil
	t.statusChanged = false
}

// Reset forgets the tracked phone and all results. Auto-refresh settings are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.phone = ""
	t.loading = false
	t.resetResultsLocked()
}

// StartAutoRefresh begins background refreshes every interval, replacing any
// running loop. A non-positive interval keeps the current one.
func (t *Tracker) StartAutoRefresh(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if interval > 0 {
		t.interval = interval
	}
	t.running = true
	t.restartLoopLocked(false)
}

func (t *Tracker) StopAutoRefresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.cancelLoopLocked()
}

// SetRefreshInterval changes the cadence. A running loop is restarted so the
// next refresh happens one full interval after the call.
func (t *Tracker) SetRefreshInterval(interval time.Duration) error {
	if interval <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refresh interval must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
	if t.loopCancel != nil {
		t.restartLoopLocked(false)
	}
	return nil
}

// SetOnline pauses refreshes while offline. Coming back online refreshes
// immediately, then resumes the regular cadence.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.online == online {
		return
	}
	t.online = online
	if !online {
		t.cancelLoopLocked()
		return
	}
	t.restartLoopLocked(true)
}

// SetEnabled is the user's auto-refresh toggle.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == enabled {
		return
	}
	t.enabled = enabled
	if !enabled {
		t.cancelLoopLocked()
		return
	}
	t.restartLoopLocked(false)
}

// Close stops the refresh loop and closes the event channel.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.running = false
	t.cancelLoopLocked()
	t.rootCancel()
	close(t.events)
	return nil
}

func (t *Tracker) resetResultsLocked() {
	t.orders = nil
	t.current = nil
	t.previous = nil
	t.statusChanged = false
	t.notFound = false
	t.lastErr = nil
}

func (t *Tracker) cancelLoopLocked() {
	if t.loopCancel != nil {
		t.loopCancel()
		t.loopCancel = nil
	}
}

// restartLoopLocked cancels any loop and starts a new one when auto-refresh
// is requested, enabled and online.
func (t *Tracker) restartLoopLocked(immediate bool) {
	t.cancelLoopLocked()
	if t.closed || !t.running || !t.enabled || !t.online {
		return
	}
	ctx, cancel := context.WithCancel(t.root)
	t.loopCancel = cancel
	t.loopGen++
	go t.loop(ctx, t.interval, immediate, t.loopGen)
}

func (t *Tracker) loop(ctx context.Context, interval time.Duration, immediate bool, gen uint64) {
	ctx = t.logg.WithFields(ctx, map[string]any{"loop": gen, "interval_ms": interval.Milliseconds()})
	t.logg.Debug(ctx, "auto-refresh loop started")
	// requests already in flight finish even if the loop is cancelled
	reqCtx := context.WithoutCancel(ctx)
	if immediate {
		t.Refresh(reqCtx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logg.Debug(ctx, "auto-refresh loop stopped")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.Refresh(reqCtx)
		}
	}
}

func (t *Tracker) emitLocked(ev Event) {
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
		return
	default:
	}
	select {
	case <-t.events:
	default:
	}
	select {
	case t.events <- ev:
	default:
	}
}

// Snapshot returns a copy of the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phone:         t.phone,
		Current:       t.current.Clone(),
		Previous:      t.previous.Clone(),
		StatusChanged: t.statusChanged,
		NotFound:      t.notFound,
		Loading:       t.loading,
		AutoRefresh: AutoRefreshState{
			Requested:       t.running,
			Active:          t.loopCancel != nil,
			Enabled:         t.enabled,
			Online:          t.online,
			Interval:        t.interval,
			IntervalSeconds: t.interval.Seconds(),
		},
	}
	if t.orders != nil {
		snap.Orders = append([]backend.OrderSummary{}, t.orders...)
	}
	if t.lastErr != nil {
		snap.Error = t.lastErr.Error()
	}
	if !t.lastUpdated.IsZero() {
		updated := t.lastUpdated
		snap.LastUpdated = &updated
	}
	if t.current != nil {
		tl := BuildTimeline(t.current.Status)
		snap.Timeline = &tl
	}
	return snap
}

// CurrentStatus is a convenience for callers that only need the tracked status.
func (s Snapshot) CurrentStatus() enums.OrderStatus {
	if s.Current == nil {
		return ""
	}
	return s.Current.Status
}
