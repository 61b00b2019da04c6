// Package poller runs a fetch on a fixed interval and hands each result to an
// apply callback, never letting an older response overwrite a newer one.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/metrics"
)

// Meta describes the fetch a result came from.
type Meta struct {
	Seq uint64
	// UserInitiated is set for ForceRefresh fetches. It only drives the
	// refreshing indicator; results are applied the same way.
	UserInitiated bool
}

// Options configures a Poller. Fetch and Apply are required.
type Options[T any] struct {
	Name     string
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	Apply    func(v T, meta Meta)

	// OnRefreshing, if set, is called whenever Refreshing changes.
	OnRefreshing func(refreshing bool)

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Poller fetches immediately on Start and then on every tick. A tick that
// arrives while a fetch is still outstanding is skipped.
type Poller[T any] struct {
	opts Options[T]

	mu         sync.Mutex
	started    bool
	stopped    bool
	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *clock.Ticker
	done       chan struct{}
	seq        uint64 // latest issued
	inflight   int
	refreshing bool

	// applyMu serializes the staleness check with Apply so that a result
	// can never be applied after a newer one.
	applyMu sync.Mutex
}

// New creates a stopped poller.
func New[T any](opts Options[T]) *Poller[T] {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	opts.Logger = opts.Logger.With("poller", opts.Name)
	return &Poller[T]{opts: opts, done: make(chan struct{})}
}

// Start issues the first fetch and starts the ticker. Calling Start twice,
// or after Stop, does nothing.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = p.opts.Clock.NewTicker(p.opts.Interval)
	go p.loop(p.ctx, p.ticker)
	p.launchLocked(false)
}

// Stop halts the ticker and drops every outstanding result. Idempotent.
// Outstanding requests are cancelled through their context.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	if started {
		p.ticker.Stop()
		p.cancel()
	}
	wasRefreshing := p.refreshing
	p.refreshing = false
	p.mu.Unlock()

	if started {
		<-p.done
	}
	if wasRefreshing {
		p.notifyRefreshing(false)
	}
}

// ForceRefresh issues a fetch now, superseding any outstanding one.
func (p *Poller[T]) ForceRefresh() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	changed := !p.refreshing
	p.refreshing = true
	p.launchLocked(true)
	p.mu.Unlock()

	if changed {
		p.notifyRefreshing(true)
	}
}

// Refreshing reports whether a user-initiated fetch is outstanding.
func (p *Poller[T]) Refreshing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshing
}

// Running reports whether the poller was started and not stopped.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

func (p *Poller[T]) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller[T]) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.inflight > 0 {
		p.opts.Metrics.Poll(p.opts.Name, "skipped")
		return
	}
	p.launchLocked(false)
}

func (p *Poller[T]) launchLocked(user bool) {
	p.seq++
	seq := p.seq
	p.inflight++
	ctx := p.ctx
	go func() {
		v, err := p.opts.Fetch(ctx)
		p.finish(seq, user, v, err)
	}()
}

func (p *Poller[T]) finish(seq uint64, user bool, v T, err error) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	p.inflight--
	stopped := p.stopped
	latest := seq == p.seq
	clearRefreshing := latest && p.refreshing
	if clearRefreshing {
		p.refreshing = false
	}
	p.mu.Unlock()

	if clearRefreshing && !stopped {
		defer p.notifyRefreshing(false)
	}

	switch {
	case stopped:
		p.opts.Metrics.Poll(p.opts.Name, "discarded")
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			p.opts.Logger.Warn("poll failed", "seq", seq, "user", user, "error", err)
		}
		p.opts.Metrics.Poll(p.opts.Name, "error")
	case !latest:
		p.opts.Logger.Debug("dropping stale poll result", "seq", seq)
		p.opts.Metrics.Stale(p.opts.Name)
	default:
		p.opts.Metrics.Poll(p.opts.Name, "ok")
		p.opts.Apply(v, Meta{Seq: seq, UserInitiated: user})
	}
}

func (p *Poller[T]) notifyRefreshing(refreshing bool) {
	if p.opts.OnRefreshing != nil {
		p.opts.OnRefreshing(refreshing)
	}
}
