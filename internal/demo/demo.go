// Package demo drives the standalone face registration/recognition demo:
// a stats poller plus one capture adapter shared by register and recognize.
package demo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rollcall/internal/apiclient"
	"rollcall/internal/apperr"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/poller"
)

// FaceAPI is the face service surface used by the demo.
type FaceAPI interface {
	Stats(ctx context.Context) (model.FaceStats, error)
	Register(ctx context.Context, name string, img apiclient.Image) (string, error)
	Recognize(ctx context.Context, img apiclient.Image) (model.Recognition, error)
	List(ctx context.Context) ([]model.PersonSamples, error)
	Delete(ctx context.Context, name string) (string, error)
}

// State is a snapshot of the demo screen.
type State struct {
	Stats       *model.FaceStats   `json:"stats,omitempty"`
	Status      string             `json:"status"`
	Phase       string             `json:"phase"`
	Recognition *model.Recognition `json:"recognition,omitempty"`
	Busy        bool               `json:"busy"`
	Refreshing  bool               `json:"refreshing"`
}

// Options tunes the demo controller.
type Options struct {
	StatsInterval time.Duration
	AutoAdvance   time.Duration
	ReadyTimeout  time.Duration
	MaxWidth      int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Capture targets. Names are always carried behind registerPrefix so no
// name can read as the recognize target.
const (
	registerPrefix  = "register:"
	recognizeTarget = "recognize"
)

// Controller owns the demo state.
type Controller struct {
	api     FaceAPI
	adapter *capture.Adapter
	stats   *poller.Poller[model.FaceStats]
	log     *slog.Logger

	mu    sync.Mutex
	state State
	subs  []func(State)
}

// New builds a demo controller capturing from dev. Call Start to begin
// polling stats.
func New(api FaceAPI, dev capture.Device, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 10 * time.Second
	}
	c := &Controller{api: api, log: opts.Logger.With("component", "demo"), state: State{Phase: capture.Idle.String()}}
	c.adapter = capture.NewAdapter(dev, c.submit, capture.Options{
		Kind:         "face_demo",
		MaxWidth:     opts.MaxWidth,
		ReadyTimeout: opts.ReadyTimeout,
		AutoAdvance:  opts.AutoAdvance,
		OnStatus:     c.onStatus,
		OnAdvance: func() {
			c.update(func(s *State) { s.Phase, s.Status = capture.Idle.String(), "" })
		},
		Clock:   opts.Clock,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	c.stats = poller.New(poller.Options[model.FaceStats]{
		Name:     "face_stats",
		Interval: opts.StatsInterval,
		Fetch:    api.Stats,
		Apply: func(v model.FaceStats, _ poller.Meta) {
			c.update(func(s *State) { s.Stats = &v })
		},
		OnRefreshing: func(r bool) {
			c.update(func(s *State) { s.Refreshing = r })
		},
		Clock:   opts.Clock,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	return c
}

// Start begins stats polling.
func (c *Controller) Start(ctx context.Context) { c.stats.Start(ctx) }

// Close stops polling and abandons any capture.
func (c *Controller) Close() {
	c.stats.Stop()
	c.adapter.Cancel()
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Refresh polls stats now.
func (c *Controller) Refresh() { c.stats.ForceRefresh() }

// Register captures a face and enrolls it under name.
func (c *Controller) Register(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Precondition("face register", "name is required")
	}
	out, err := c.adapter.Run(ctx, registerPrefix+name)
	if err != nil {
		return "", err
	}
	c.Refresh()
	return out.Message, nil
}

// Recognize captures a face and asks the service who it is.
func (c *Controller) Recognize(ctx context.Context) (model.Recognition, error) {
	if _, err := c.adapter.Run(ctx, recognizeTarget); err != nil {
		return model.Recognition{}, err
	}
	s := c.State()
	if s.Recognition == nil {
		return model.Recognition{}, nil
	}
	return *s.Recognition, nil
}

// List returns the enrolled people.
func (c *Controller) List(ctx context.Context) ([]model.PersonSamples, error) {
	return c.api.List(ctx)
}

// Delete removes every sample of name and refreshes the stats.
func (c *Controller) Delete(ctx context.Context, name string) (string, error) {
	msg, err := c.api.Delete(ctx, name)
	if err != nil {
		return "", err
	}
	c.Refresh()
	return msg, nil
}

// Cancel abandons the current capture.
func (c *Controller) Cancel() {
	c.adapter.Cancel()
	c.update(func(s *State) { s.Phase, s.Status, s.Busy = capture.Idle.String(), "", false })
}

func (c *Controller) submit(ctx context.Context, img capture.Image, target string) (capture.Outcome, error) {
	if name, ok := strings.CutPrefix(target, registerPrefix); ok {
		msg, err := c.api.Register(ctx, name, img.Upload())
		return capture.Outcome{Message: msg}, err
	}
	rec, err := c.api.Recognize(ctx, img.Upload())
	if err != nil {
		return capture.Outcome{}, err
	}
	c.update(func(s *State) { s.Recognition = &rec })
	c.log.Info("recognized", "recognized", rec.Recognized, "name", rec.Name, "confidence", rec.Confidence)
	return capture.Outcome{Message: rec.Message, Confidence: rec.Confidence}, nil
}

func (c *Controller) onStatus(st capture.Status) {
	c.update(func(s *State) {
		s.Phase = st.Phase.String()
		s.Status = st.Text
		s.Busy = st.Phase == capture.Preparing || st.Phase == capture.Capturing || st.Phase == capture.Verifying
		if st.Phase == capture.Preparing {
			s.Recognition = nil
		}
	})
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	s := c.state
	subs := append([]func(State){}, c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub(s)
	}
}
