package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/clock"
)

const interval = 5 * time.Second

type reply struct {
	v   int
	err error
}

type pending struct {
	release chan reply
}

type applied struct {
	v    int
	meta Meta
}

type harness struct {
	clock   *clock.Fake
	calls   chan *pending
	applied chan applied
	p       *Poller[int]

	mu         sync.Mutex
	refreshing []bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewFake(time.Unix(1700000000, 0)),
		calls:   make(chan *pending, 16),
		applied: make(chan applied, 16),
	}
	h.p = New(Options[int]{
		Name:     "test",
		Interval: interval,
		Clock:    h.clock,
		Fetch: func(ctx context.Context) (int, error) {
			c := &pending{release: make(chan reply, 1)}
			h.calls <- c
			select {
			case r := <-c.release:
				return r.v, r.err
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
		Apply: func(v int, meta Meta) {
			h.applied <- applied{v: v, meta: meta}
		},
		OnRefreshing: func(r bool) {
			h.mu.Lock()
			h.refreshing = append(h.refreshing, r)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.p.Stop)
	return h
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
		var zero T
		return zero
	}
}

func quiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected value")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFetchesOnStartAndEveryTick(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())

	recv(t, h.calls).release <- reply{v: 1}
	got := recv(t, h.applied)
	assert.Equal(t, 1, got.v)
	assert.Equal(t, uint64(1), got.meta.Seq)
	assert.False(t, got.meta.UserInitiated)

	h.clock.Advance(interval)
	recv(t, h.calls).release <- reply{v: 2}
	assert.Equal(t, 2, recv(t, h.applied).v)
}

func TestTickSkippedWhileFetchOutstanding(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())
	first := recv(t, h.calls)

	h.clock.Advance(interval)
	h.clock.Advance(interval)
	quiet(t, h.calls)

	first.release <- reply{v: 1}
	assert.Equal(t, 1, recv(t, h.applied).v)

	h.clock.Advance(interval)
	recv(t, h.calls).release <- reply{v: 2}
	assert.Equal(t, 2, recv(t, h.applied).v)
}

// Stale data never overwrites fresh data: a slow timer fetch that resolves
// after a user refresh is discarded.
func TestOlderResponseNeverOverwritesNewer(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())
	slow := recv(t, h.calls)

	h.p.ForceRefresh()
	fast := recv(t, h.calls)
	require.True(t, h.p.Refreshing(), "forced refresh must be in flight")

	fast.release <- reply{v: 20}
	got := recv(t, h.applied)
	assert.Equal(t, 20, got.v)
	assert.Equal(t, uint64(2), got.meta.Seq)
	assert.True(t, got.meta.UserInitiated)
	assert.False(t, h.p.Refreshing())

	slow.release <- reply{v: 10}
	quiet(t, h.applied)
}

func TestOlderResponseArrivingFirstIsAlsoDropped(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())
	slow := recv(t, h.calls)
	h.p.ForceRefresh()
	fast := recv(t, h.calls)

	slow.release <- reply{v: 10}
	quiet(t, h.applied)
	assert.True(t, h.p.Refreshing())

	fast.release <- reply{v: 20}
	assert.Equal(t, 20, recv(t, h.applied).v)
}

func TestFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())

	recv(t, h.calls).release <- reply{err: errors.New("boom")}
	quiet(t, h.applied)

	h.clock.Advance(interval)
	recv(t, h.calls).release <- reply{v: 3}
	assert.Equal(t, 3, recv(t, h.applied).v)
}

func TestStopDiscardsInFlightAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())
	c := recv(t, h.calls)

	h.p.Stop()
	h.p.Stop()
	assert.False(t, h.p.Running())
	assert.Zero(t, h.clock.Pending())

	c.release <- reply{v: 1}
	quiet(t, h.applied)

	h.clock.Advance(10 * interval)
	quiet(t, h.calls)

	h.p.ForceRefresh()
	quiet(t, h.calls)
}

func TestStopClearsRefreshing(t *testing.T) {
	h := newHarness(t)
	h.p.Start(context.Background())
	recv(t, h.calls)
	h.p.ForceRefresh()
	recv(t, h.calls)

	h.p.Stop()

	assert.False(t, h.p.Refreshing())
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []bool{true, false}, h.refreshing)
}

func TestForceRefreshBeforeStartDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.p.ForceRefresh()
	quiet(t, h.calls)
	assert.False(t, h.p.Refreshing())
}
