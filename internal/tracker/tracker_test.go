package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MwailaCoding/storefront/internal/backend"
	"github.com/MwailaCoding/storefront/pkg/enums"
	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	respond func(n int) (*backend.Lookup, error)
}

func (f *fakeBackend) OrdersByPhone(_ context.Context, _ string) (*backend.Lookup, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return &backend.Lookup{Summaries: []backend.OrderSummary{}}, nil
	}
	return respond(n)
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) set(respond func(n int) (*backend.Lookup, error)) {
	f.mu.Lock()
	f.respond = respond
	f.mu.Unlock()
}

func detail(status enums.OrderStatus, updatedAt string) *backend.Lookup {
	d := &backend.OrderDetail{OrderID: 42, Status: status, CustomerName: "Wanjiru"}
	if updatedAt != "" {
		d.UpdatedAt = &updatedAt
	}
	return &backend.Lookup{Detail: d}
}

func newTestTracker(t *testing.T, fb *fakeBackend, buffer int) *Tracker {
	t.Helper()
	tr, err := New(Params{
		Backend:            fb,
		Logger:             logger.Nop(),
		RefreshInterval:    time.Hour,
		EventBuffer:        buffer,
		AutoRefreshEnabled: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestCheckStatusChange(t *testing.T) {
	ts := func(s string) *string { return &s }
	cases := []struct {
		name string
		next *backend.OrderDetail
		prev *backend.OrderDetail
		want bool
	}{
		{"first load", &backend.OrderDetail{Status: "pending"}, nil, false},
		{"status moved", &backend.OrderDetail{Status: "confirmed"}, &backend.OrderDetail{Status: "pending"}, true},
		{"same status", &backend.OrderDetail{Status: "pending"}, &backend.OrderDetail{Status: "pending"}, false},
		{"updated at differs", &backend.OrderDetail{Status: "pending", UpdatedAt: ts("b")}, &backend.OrderDetail{Status: "pending", UpdatedAt: ts("a")}, true},
		{"updated at only on one side", &backend.OrderDetail{Status: "pending", UpdatedAt: ts("b")}, &backend.OrderDetail{Status: "pending"}, false},
		{"other fields ignored", &backend.OrderDetail{Status: "pending", CustomerName: "x"}, &backend.OrderDetail{Status: "pending", CustomerName: "y"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CheckStatusChange(tc.next, tc.prev))
		})
	}
}

func TestBuildTimeline(t *testing.T) {
	states := func(tl Timeline) []StepState {
		out := make([]StepState, len(tl.Steps))
		for i, s := range tl.Steps {
			out[i] = s.State
		}
		return out
	}
	c, a, p := StepCompleted, StepActive, StepPending

	assert.Equal(t, []StepState{a, p, p, p, p}, states(BuildTimeline(enums.OrderStatusPending)))
	assert.Equal(t, []StepState{c, c, a, p, p}, states(BuildTimeline(enums.OrderStatusPreparing)))
	assert.Equal(t, []StepState{c, c, c, c, c}, states(BuildTimeline(enums.OrderStatusDelivered)))

	cancelled := BuildTimeline(enums.OrderStatusCancelled)
	assert.Equal(t, []StepState{p, p, p, p, p}, states(cancelled))
	assert.True(t, cancelled.Cancelled)
	assert.True(t, cancelled.Terminal)

	unknown := BuildTimeline("on_hold")
	assert.Equal(t, []StepState{p, p, p, p, p}, states(unknown))
	assert.False(t, unknown.Terminal)
	assert.Equal(t, "Out for delivery", BuildTimeline(enums.OrderStatusPending).Steps[3].Label)
}

func TestSearchListMode(t *testing.T) {
	fb := &fakeBackend{}
	fb.set(func(int) (*backend.Lookup, error) {
		return &backend.Lookup{Summaries: []backend.OrderSummary{{OrderID: 1, Status: "pending"}, {OrderID: 2, Status: "delivered"}}}, nil
	})
	tr := newTestTracker(t, fb, 4)

	snap, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, snap.Orders, 2)
	assert.Nil(t, snap.Current)
	assert.False(t, snap.Loading)
	assert.NotNil(t, snap.LastUpdated)
}

func TestSearchDetailModeRaisesOneShotChange(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPending, ""), nil })
	snap, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, snap.StatusChanged, "first load is not a change")
	require.NotNil(t, snap.Timeline)
	assert.Equal(t, StepActive, snap.Timeline.Steps[0].State)

	snap, err = tr.Search(ctx, "0712345678", SearchOptions{Background: true})
	require.NoError(t, err)
	assert.False(t, snap.StatusChanged)

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusConfirmed, ""), nil })
	snap, err = tr.Search(ctx, "0712345678", SearchOptions{Background: true})
	require.NoError(t, err)
	assert.True(t, snap.StatusChanged)
	require.NotNil(t, snap.Previous)
	assert.Equal(t, enums.OrderStatusPending, snap.Previous.Status)
	assert.Equal(t, enums.OrderStatusConfirmed, snap.CurrentStatus())

	select {
	case ev := <-tr.Events():
		assert.Equal(t, EventStatusChanged, ev.Kind)
		assert.Equal(t, enums.OrderStatusPending, ev.From)
		assert.Equal(t, enums.OrderStatusConfirmed, ev.To)
		assert.Equal(t, int64(42), ev.OrderID)
	default:
		t.Fatal("expected a status change event")
	}

	tr.AcknowledgeChange()
	snap = tr.Snapshot()
	assert.False(t, snap.StatusChanged)
	assert.Nil(t, snap.Previous)
	assert.Equal(t, enums.OrderStatusConfirmed, snap.CurrentStatus())
}

func TestUpdatedAtChangeIsDetected(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPreparing, "10:00"), nil })
	_, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPreparing, "10:05"), nil })
	snap, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, snap.StatusChanged)
}

func TestNotFoundIsAnEmptyResult(t *testing.T) {
	for _, background := range []bool{false, true} {
		fb := &fakeBackend{}
		tr := newTestTracker(t, fb, 4)
		ctx := context.Background()

		fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPending, ""), nil })
		_, err := tr.Search(ctx, "0712345678", SearchOptions{})
		require.NoError(t, err)

		fb.set(func(int) (*backend.Lookup, error) { return nil, backend.ErrNoOrders })
		snap, err := tr.Search(ctx, "0712345678", SearchOptions{Background: background})
		require.NoError(t, err)
		assert.True(t, snap.NotFound)
		assert.Nil(t, snap.Current)
		assert.Empty(t, snap.Orders)
		assert.Empty(t, snap.Error)
		select {
		case ev := <-tr.Events():
			t.Fatalf("unexpected event %+v", ev)
		default:
		}
	}
}

func TestForegroundFailureKeepsDataAndHaltsAutoRefresh(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPreparing, ""), nil })
	_, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	tr.StartAutoRefresh(time.Hour)
	require.True(t, tr.Snapshot().AutoRefresh.Active)

	boom := pkgerrors.New(pkgerrors.CodeDependency, "backend down")
	fb.set(func(int) (*backend.Lookup, error) { return nil, boom })
	snap, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, enums.OrderStatusPreparing, snap.CurrentStatus())
	assert.NotEmpty(t, snap.Error)
	assert.False(t, snap.AutoRefresh.Active)
	assert.False(t, snap.AutoRefresh.Requested)

	ev := <-tr.Events()
	assert.Equal(t, EventError, ev.Kind)
}

func TestBackgroundFailureIsSilent(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPreparing, ""), nil })
	_, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	tr.StartAutoRefresh(time.Hour)

	fb.set(func(int) (*backend.Lookup, error) { return nil, errors.New("connection reset") })
	snap, err := tr.Search(ctx, "0712345678", SearchOptions{Background: true})
	require.NoError(t, err)
	assert.Empty(t, snap.Error)
	assert.Equal(t, enums.OrderStatusPreparing, snap.CurrentStatus())
	assert.True(t, snap.AutoRefresh.Active)
	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestSearchRequiresPhone(t *testing.T) {
	tr := newTestTracker(t, &fakeBackend{}, 4)
	_, err := tr.Search(context.Background(), "   ", SearchOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStaleResponseIsDropped(t *testing.T) {
	fb := &fakeBackend{}
	release := make(chan struct{})
	started := make(chan struct{})
	fb.set(func(n int) (*backend.Lookup, error) {
		if n == 1 {
			close(started)
			<-release
			return detail(enums.OrderStatusPending, ""), nil
		}
		return detail(enums.OrderStatusPreparing, ""), nil
	})
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.Search(ctx, "0712345678", SearchOptions{Background: true})
	}()
	<-started

	snap, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPreparing, snap.CurrentStatus())

	close(release)
	<-done
	snap = tr.Snapshot()
	assert.Equal(t, enums.OrderStatusPreparing, snap.CurrentStatus(), "older response must not overwrite newer data")
	assert.False(t, snap.StatusChanged)
}

func TestLoadingClearsWhenForegroundIsSuperseded(t *testing.T) {
	fb := &fakeBackend{}
	release := make(chan struct{})
	started := make(chan struct{})
	fb.set(func(n int) (*backend.Lookup, error) {
		if n == 1 {
			close(started)
			<-release
			return detail(enums.OrderStatusPending, ""), nil
		}
		return detail(enums.OrderStatusPreparing, ""), nil
	})
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.Search(ctx, "0712345678", SearchOptions{})
	}()
	<-started
	assert.True(t, tr.Snapshot().Loading)

	tr.Refresh(ctx)
	assert.True(t, tr.Snapshot().Loading, "foreground search is still in flight")

	close(release)
	<-done
	snap := tr.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, enums.OrderStatusPreparing, snap.CurrentStatus())
}

func TestLoadingWaitsForNewestForeground(t *testing.T) {
	fb := &fakeBackend{}
	release := make(chan struct{})
	started := make(chan struct{})
	fb.set(func(n int) (*backend.Lookup, error) {
		if n == 2 {
			close(started)
			<-release
		}
		return detail(enums.OrderStatusPending, ""), nil
	})
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	_, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, tr.Snapshot().Loading)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.Search(ctx, "0712345678", SearchOptions{})
	}()
	<-started
	assert.True(t, tr.Snapshot().Loading)

	close(release)
	<-done
	assert.False(t, tr.Snapshot().Loading)
}

func TestAutoRefreshPollsOnCadence(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	_, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)

	tr.StartAutoRefresh(20 * time.Millisecond)
	require.Eventually(t, func() bool { return fb.Calls() >= 4 }, 2*time.Second, 5*time.Millisecond)

	tr.StopAutoRefresh()
	assert.False(t, tr.Snapshot().AutoRefresh.Active)
	settled := fb.Calls()
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, fb.Calls(), settled+1)
}

func TestAutoRefreshWithoutPhoneDoesNothing(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	tr.StartAutoRefresh(10 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fb.Calls())
}

func TestOfflinePausesAndOnlineRefreshesImmediately(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	_, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)
	tr.StartAutoRefresh(time.Hour)

	tr.SetOnline(false)
	snap := tr.Snapshot()
	assert.False(t, snap.AutoRefresh.Online)
	assert.False(t, snap.AutoRefresh.Active)
	assert.True(t, snap.AutoRefresh.Requested)

	before := fb.Calls()
	tr.SetOnline(true)
	require.Eventually(t, func() bool { return fb.Calls() == before+1 }, time.Second, 5*time.Millisecond)
	assert.True(t, tr.Snapshot().AutoRefresh.Active)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before+1, fb.Calls(), "only one immediate refresh, then the hourly cadence")
}

func TestOfflineWithShortIntervalStopsTicks(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	_, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)

	tr.SetOnline(false)
	tr.StartAutoRefresh(10 * time.Millisecond)
	before := fb.Calls()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, fb.Calls())
}

func TestSetRefreshIntervalRestartsCadence(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	_, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)

	tr.StartAutoRefresh(time.Hour)
	before := fb.Calls()
	require.NoError(t, tr.SetRefreshInterval(20*time.Millisecond))
	require.Eventually(t, func() bool { return fb.Calls() >= before+2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0.02), tr.Snapshot().AutoRefresh.IntervalSeconds)

	require.NoError(t, tr.SetRefreshInterval(time.Hour))
	settled := fb.Calls()
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, fb.Calls(), settled+1)

	assert.Error(t, tr.SetRefreshInterval(0))
}

func TestSetRefreshIntervalWhileStoppedDoesNotStart(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	require.NoError(t, tr.SetRefreshInterval(10*time.Millisecond))
	assert.False(t, tr.Snapshot().AutoRefresh.Active)
}

func TestDisabledAutoRefresh(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	_, err := tr.Search(context.Background(), "0712345678", SearchOptions{})
	require.NoError(t, err)

	tr.SetEnabled(false)
	tr.StartAutoRefresh(10 * time.Millisecond)
	before := fb.Calls()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, fb.Calls())
	assert.False(t, tr.Snapshot().AutoRefresh.Active)

	tr.SetEnabled(true)
	require.Eventually(t, func() bool { return fb.Calls() > before }, time.Second, 5*time.Millisecond)
}

func TestEventsDropOldestWhenFull(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 1)
	ctx := context.Background()

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusPreparing} {
		s := status
		fb.set(func(int) (*backend.Lookup, error) { return detail(s, ""), nil })
		_, err := tr.Search(ctx, "0712345678", SearchOptions{})
		require.NoError(t, err)
	}

	ev := <-tr.Events()
	assert.Equal(t, enums.OrderStatusPreparing, ev.To)
	select {
	case extra := <-tr.Events():
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestPhoneChangeResetsResults(t *testing.T) {
	fb := &fakeBackend{}
	tr := newTestTracker(t, fb, 4)
	ctx := context.Background()

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusPending, ""), nil })
	_, err := tr.Search(ctx, "0712345678", SearchOptions{})
	require.NoError(t, err)

	fb.set(func(int) (*backend.Lookup, error) { return detail(enums.OrderStatusDelivered, ""), nil })
	snap, err := tr.Search(ctx, "0799000111", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, snap.StatusChanged, "a different customer is a first load")

	tr.Reset()
	snap = tr.Snapshot()
	assert.Empty(t, snap.Phone)
	assert.Nil(t, snap.Current)
}

func TestCloseClosesEvents(t *testing.T) {
	tr, err := New(Params{Backend: &fakeBackend{}})
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	_, ok := <-tr.Events()
	assert.False(t, ok)
	require.NoError(t, tr.Close())
}
