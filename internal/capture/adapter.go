// Package capture turns a device frame into an uploaded face photo. Capture
// and submit run as one busy-guarded unit with an observable status.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/metrics"
)

// Phase is a step of the capture/submit status sequence.
type Phase int

const (
	Idle Phase = iota
	Preparing
	Capturing
	Verifying
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Preparing:
		return "preparing"
	case Capturing:
		return "capturing"
	case Verifying:
		return "verifying"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Status is one update of the sequence. Err is set only when Phase is
// Failed, Confidence only when it is Succeeded.
type Status struct {
	Phase      Phase
	Text       string
	Confidence float64
	Err        error
}

var (
	ErrBusy           = apperr.Precondition("capture", "a capture is already in progress")
	ErrDeviceNotReady = apperr.Precondition("capture", "camera is not ready")
	ErrNoImage        = apperr.Precondition("capture", "no image captured")
	ErrNotPending     = apperr.Precondition("submit", "image is not the pending capture")
	ErrCancelled      = apperr.Precondition("capture", "capture was cancelled")
	// ErrInterrupted means the caller's context ended while waiting for
	// the device. Unlike ErrCancelled the attempt still owns the result.
	ErrInterrupted = apperr.Precondition("capture", "capture was interrupted")
)

// Outcome is what a successful submission reports.
type Outcome struct {
	Message    string
	Confidence float64
}

// SubmitFunc uploads img for target.
type SubmitFunc func(ctx context.Context, img Image, target string) (Outcome, error)

// Options configures an Adapter.
type Options struct {
	Kind         string // metrics label, e.g. join or face_register
	MaxWidth     int
	ReadyTimeout time.Duration
	AutoAdvance  time.Duration

	// OnStatus receives every status update, in order.
	OnStatus func(Status)
	// OnAdvance fires AutoAdvance after a success unless Cancel ran first.
	OnAdvance func()

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Adapter owns one device and the busy flag guarding it.
type Adapter struct {
	dev    Device
	submit SubmitFunc
	opts   Options

	mu      sync.Mutex
	busy    bool
	gen     uint64
	pending string // handle of the image Submit will accept
	started time.Time
	timer   *clock.Timer
	status  Status

	emitMu sync.Mutex
}

// NewAdapter builds an adapter.
func NewAdapter(dev Device, submit SubmitFunc, opts Options) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 640
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.AutoAdvance <= 0 {
		opts.AutoAdvance = 1500 * time.Millisecond
	}
	return &Adapter{dev: dev, submit: submit, opts: opts}
}

// Busy reports whether a capture or submission is outstanding.
func (a *Adapter) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Status returns the latest status.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Capture waits for the device, grabs one frame and normalizes it. The
// returned image is the only one Submit will accept afterwards.
func (a *Adapter) Capture(ctx context.Context) (Image, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return Image{}, ErrBusy
	}
	a.busy = true
	a.gen++
	gen := a.gen
	a.pending = ""
	a.started = a.opts.Clock.Now()
	a.stopTimerLocked()
	a.mu.Unlock()

	a.emit(gen, Status{Phase: Preparing, Text: "Preparing camera..."})

	timeout := make(chan struct{})
	t := a.opts.Clock.AfterFunc(a.opts.ReadyTimeout, func() { close(timeout) })
	select {
	case <-a.dev.Ready():
		t.Stop()
	case <-timeout:
		return Image{}, a.fail(gen, ErrDeviceNotReady)
	case <-ctx.Done():
		t.Stop()
		return Image{}, a.fail(gen, ErrInterrupted)
	}

	a.emit(gen, Status{Phase: Capturing, Text: "Hold still..."})

	raw, err := a.dev.Capture(ctx)
	if err != nil || len(raw) == 0 {
		if err != nil {
			a.opts.Logger.Warn("device capture failed", "error", err)
		}
		return Image{}, a.fail(gen, ErrNoImage)
	}
	img, err := normalize(raw, a.opts.MaxWidth)
	if err != nil {
		a.opts.Logger.Warn("frame unusable", "error", err)
		return Image{}, a.fail(gen, ErrNoImage)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return Image{}, ErrCancelled
	}
	a.pending = img.Handle
	return img, nil
}

// Submit uploads the pending capture. On success the Succeeded status is
// delivered first and the auto-advance timer is armed after it returns; on
// failure nothing is scheduled. Busy clears either way.
func (a *Adapter) Submit(ctx context.Context, img Image, target string) (Outcome, error) {
	a.mu.Lock()
	if !a.busy || a.pending == "" || a.pending != img.Handle {
		a.mu.Unlock()
		return Outcome{}, ErrNotPending
	}
	a.pending = ""
	gen := a.gen
	started := a.started
	a.mu.Unlock()

	a.emit(gen, Status{Phase: Verifying, Text: "Verifying face..."})

	out, err := a.submit(ctx, img, target)
	a.opts.Metrics.Submission(a.opts.Kind, err, a.opts.Clock.Now().Sub(started))
	if err != nil {
		return Outcome{}, a.fail(gen, err)
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return Outcome{}, ErrCancelled
	}
	a.busy = false
	a.mu.Unlock()

	a.emit(gen, Status{Phase: Succeeded, Text: out.Message, Confidence: out.Confidence})
	a.arm(gen)
	return out, nil
}

// Run captures and then submits. The two steps are never pipelined.
func (a *Adapter) Run(ctx context.Context, target string) (Outcome, error) {
	img, err := a.Capture(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return a.Submit(ctx, img, target)
}

// Cancel abandons the current flow: a pending auto-advance never fires, the
// pending image can no longer be submitted and the adapter is free again.
// An upload already on the wire is not aborted but its result is ignored.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.busy = false
	a.pending = ""
	a.stopTimerLocked()
	a.status = Status{Phase: Idle}
}

func (a *Adapter) arm(gen uint64) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.stopTimerLocked()
	a.mu.Unlock()

	t := a.opts.Clock.AfterFunc(a.opts.AutoAdvance, func() { a.advance(gen) })

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen == gen {
		a.timer = t
	} else {
		t.Stop()
	}
}

func (a *Adapter) advance(gen uint64) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.status = Status{Phase: Idle}
	a.mu.Unlock()
	if a.opts.OnAdvance != nil {
		a.opts.OnAdvance()
	}
}

func (a *Adapter) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// fail reports err as the terminal status of generation gen and frees the
// adapter, unless Cancel already moved on.
func (a *Adapter) fail(gen uint64, err error) error {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return ErrCancelled
	}
	a.busy = false
	a.pending = ""
	a.mu.Unlock()

	a.emit(gen, Status{Phase: Failed, Text: apperr.UserMessage(err), Err: err})
	return err
}

// emit records and publishes s if gen is still current.
func (a *Adapter) emit(gen uint64, s Status) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.status = s
	a.mu.Unlock()
	a.opts.Logger.Debug("capture status", "phase", s.Phase, "text", s.Text)
	if a.opts.OnStatus != nil {
		a.opts.OnStatus(s)
	}
}

func (s Status) String() string {
	if s.Text == "" {
		return s.Phase.String()
	}
	return fmt.Sprintf("%s: %s", s.Phase, s.Text)
}
