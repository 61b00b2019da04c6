package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"rollcall/internal/apiclient"
	"rollcall/internal/apperr"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/poller"
)

// API is the attendance server surface the controller uses.
type API interface {
	TeacherCourses(ctx context.Context, token string) ([]model.Course, error)
	ActiveSession(ctx context.Context, token string) (*model.Session, error)
	ActiveSessions(ctx context.Context, token string) ([]model.Membership, error)
	StartAttendance(ctx context.Context, token string, courseID int64) (model.StartOutcome, error)
	EndAttendance(ctx context.Context, token string, sessionID int64) (model.EndOutcome, error)
	JoinSession(ctx context.Context, token string, sessionID int64, img apiclient.Image) (model.JoinOutcome, error)
	RegisterFace(ctx context.Context, token string, img apiclient.Image) (string, error)
}

// Options tunes the controller. Zero values pick the defaults.
type Options struct {
	PollInterval time.Duration
	AutoAdvance  time.Duration
	ReadyTimeout time.Duration
	MaxWidth     int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

const faceTarget = "face"

type teacherView struct {
	courses []model.Course
	active  *model.Session
}

// Controller wires the gate, the server, the pollers and the capture
// adapter to a Machine. Front-ends call its methods and Subscribe to state
// changes.
type Controller struct {
	api     API
	gate    *auth.Gate
	machine *Machine
	adapter *capture.Adapter
	opts    Options
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	students *poller.Poller[[]model.Membership]
	teachers *poller.Poller[teacherView]
	subs     map[int]func(State)
	nextSub  int
}

// NewController builds a signed-out controller capturing from dev.
func NewController(api API, gate *auth.Gate, dev capture.Device, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:    api,
		gate:   gate,
		opts:   opts,
		log:    opts.Logger.With("component", "attendance"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]func(State)),
	}
	c.machine = NewMachine(func(from, to Phase) {
		opts.Metrics.Transition(string(from), string(to))
	})
	c.adapter = capture.NewAdapter(dev, c.submit, capture.Options{
		Kind:         "attendance",
		MaxWidth:     opts.MaxWidth,
		ReadyTimeout: opts.ReadyTimeout,
		AutoAdvance:  opts.AutoAdvance,
		OnStatus:     c.onCaptureStatus,
		OnAdvance:    func() { c.dispatch(AutoAdvance{}) },
		Clock:        opts.Clock,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	})
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State { return c.machine.Current() }

// Subscribe registers fn for every state change and returns a function
// that removes it. fn runs on the goroutine that caused the change.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Restore signs in with a persisted token, if a valid one exists.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	cred, ok, err := c.gate.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	c.signedIn(cred)
	return true, nil
}

// Login authenticates and lands on the role's list screen.
func (c *Controller) Login(ctx context.Context, email, secret string) error {
	cred, err := c.gate.Login(ctx, email, secret)
	if err != nil {
		return err
	}
	c.signedIn(cred)
	return nil
}

// Logout stops background work and forgets the credential.
func (c *Controller) Logout(ctx context.Context) {
	c.stopPollers()
	c.adapter.Cancel()
	c.gate.Logout(ctx)
	c.dispatch(LoggedOut{})
}

// SelectSession picks a session to join. Selecting a session already
// joined only sets a notice; no request is made either way.
func (c *Controller) SelectSession(sessionID int64) State {
	return c.dispatch(SelectSession{SessionID: sessionID})
}

// Join captures a face and submits it for the selected session.
func (c *Controller) Join(ctx context.Context) error {
	s := c.State()
	if s.Phase != EnteringCapture || s.Target == nil || s.Target.Kind != TargetJoin {
		return apperr.Precondition("join", "select a session first")
	}
	return c.runFlow(ctx, strconv.FormatInt(s.Target.Session.SessionID, 10))
}

// RegisterFace captures a face and stores it as the student's reference.
func (c *Controller) RegisterFace(ctx context.Context) error {
	s := c.dispatch(BeginFaceRegistration{})
	if s.Phase != EnteringCapture || s.Target == nil || s.Target.Kind != TargetFace {
		return apperr.Precondition("register face", "face registration is only available from the session list")
	}
	return c.runFlow(ctx, faceTarget)
}

// Retry repeats a failed capture flow for the same target.
func (c *Controller) Retry(ctx context.Context) error {
	s := c.State()
	if s.Phase != Result || s.Result == nil || s.Result.Success || s.Target == nil {
		return apperr.Precondition("retry", "nothing to retry")
	}
	target := faceTarget
	if s.Target.Kind == TargetJoin {
		target = strconv.FormatInt(s.Target.Session.SessionID, 10)
	}
	c.dispatch(Retry{})
	return c.runFlow(ctx, target)
}

// Back leaves the capture flow, cancelling any pending auto-advance.
func (c *Controller) Back() State {
	c.adapter.Cancel()
	return c.dispatch(Back{})
}

// StartAttendance opens a session for courseID.
func (c *Controller) StartAttendance(ctx context.Context, courseID int64) error {
	s := c.State()
	if s.Phase != ListingCourses || s.Actor == nil || s.Actor.Role != model.RoleTeacher {
		return apperr.Precondition("start attendance", "not on the course list")
	}
	out, err := c.api.StartAttendance(ctx, c.gate.Token(), courseID)
	if err != nil {
		c.dispatch(StartFailed{Message: apperr.UserMessage(err)})
		return err
	}
	c.dispatch(StartSucceeded{CourseID: courseID, SessionID: out.SessionID, Message: out.Message})
	c.Refresh()
	return nil
}

// EndAttendance closes the active session. On failure the session stays
// displayed and the call may simply be repeated.
func (c *Controller) EndAttendance(ctx context.Context) error {
	s := c.State()
	if s.Phase != SessionActive || s.Active == nil {
		return apperr.Precondition("end attendance", "no active session")
	}
	out, err := c.api.EndAttendance(ctx, c.gate.Token(), s.Active.ID)
	if err != nil {
		c.dispatch(EndFailed{Message: apperr.UserMessage(err)})
		return err
	}
	c.dispatch(EndSucceeded{Message: out.Message, ParticipantCount: out.ParticipantCount})
	c.Refresh()
	return nil
}

// Refresh forces a poll of the current role's list.
func (c *Controller) Refresh() {
	c.mu.Lock()
	students, teachers := c.students, c.teachers
	c.mu.Unlock()
	if students != nil {
		students.ForceRefresh()
	}
	if teachers != nil {
		teachers.ForceRefresh()
	}
}

// Close stops every background activity. The controller is unusable after.
func (c *Controller) Close() {
	c.stopPollers()
	c.adapter.Cancel()
	c.cancel()
}

func (c *Controller) signedIn(cred auth.Credential) {
	c.stopPollers()
	c.dispatch(LoggedIn{Actor: cred.Actor})
	c.log.Info("session ready", "role", cred.Actor.Role)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch cred.Actor.Role {
	case model.RoleStudent:
		c.students = poller.New(poller.Options[[]model.Membership]{
			Name:     "student_sessions",
			Interval: c.opts.PollInterval,
			Fetch: func(ctx context.Context) ([]model.Membership, error) {
				return c.api.ActiveSessions(ctx, c.gate.Token())
			},
			Apply: func(v []model.Membership, _ poller.Meta) {
				c.dispatch(SessionsLoaded{Sessions: v})
			},
			OnRefreshing: c.onRefreshing,
			Clock:        c.opts.Clock,
			Logger:       c.opts.Logger,
			Metrics:      c.opts.Metrics,
		})
		c.students.Start(c.ctx)
	case model.RoleTeacher:
		c.teachers = poller.New(poller.Options[teacherView]{
			Name:         "teacher_courses",
			Interval:     c.opts.PollInterval,
			Fetch:        c.fetchTeacherView,
			Apply:        c.applyTeacherView,
			OnRefreshing: c.onRefreshing,
			Clock:        c.opts.Clock,
			Logger:       c.opts.Logger,
			Metrics:      c.opts.Metrics,
		})
		c.teachers.Start(c.ctx)
	}
}

func (c *Controller) fetchTeacherView(ctx context.Context) (teacherView, error) {
	token := c.gate.Token()
	courses, err := c.api.TeacherCourses(ctx, token)
	if err != nil {
		return teacherView{}, err
	}
	active, err := c.api.ActiveSession(ctx, token)
	if err != nil {
		return teacherView{}, err
	}
	return teacherView{courses: courses, active: active}, nil
}

func (c *Controller) applyTeacherView(v teacherView, _ poller.Meta) {
	c.dispatch(CoursesLoaded{Courses: v.courses})
	c.dispatch(ActiveSessionLoaded{Session: v.active})
}

func (c *Controller) onRefreshing(r bool) {
	c.dispatch(RefreshingChanged{Refreshing: r})
}

func (c *Controller) stopPollers() {
	c.mu.Lock()
	students, teachers := c.students, c.teachers
	c.students, c.teachers = nil, nil
	c.mu.Unlock()
	if students != nil {
		students.Stop()
	}
	if teachers != nil {
		teachers.Stop()
	}
}

func (c *Controller) runFlow(ctx context.Context, target string) error {
	// SubmitSucceeded is dispatched from the Succeeded status.
	_, err := c.adapter.Run(ctx, target)
	switch {
	case errors.Is(err, capture.ErrBusy), errors.Is(err, capture.ErrCancelled):
		return err
	case err != nil:
		c.dispatch(SubmitFailed{Message: apperr.UserMessage(err)})
		return err
	}
	if target == faceTarget {
		c.gate.MarkFaceRegistered()
	} else {
		c.Refresh()
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, img capture.Image, target string) (capture.Outcome, error) {
	token := c.gate.Token()
	if token == "" {
		return capture.Outcome{}, apperr.Precondition("submit", "not signed in")
	}
	if target == faceTarget {
		msg, err := c.api.RegisterFace(ctx, token, img.Upload())
		return capture.Outcome{Message: msg}, err
	}
	sessionID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return capture.Outcome{}, apperr.Precondition("join", fmt.Sprintf("bad session id %q", target))
	}
	out, err := c.api.JoinSession(ctx, token, sessionID, img.Upload())
	return capture.Outcome{Message: out.Message, Confidence: out.Confidence}, err
}

func (c *Controller) onCaptureStatus(s capture.Status) {
	switch s.Phase {
	case capture.Preparing, capture.Capturing:
		c.dispatch(CaptureStarted{Text: s.Text})
	case capture.Verifying:
		c.dispatch(UploadStarted{Text: s.Text})
	case capture.Succeeded:
		// delivered before the adapter arms auto-advance, so the machine is
		// already in Result when AutoAdvance arrives
		c.dispatch(SubmitSucceeded{Message: s.Text, Confidence: s.Confidence})
	}
}

func (c *Controller) dispatch(ev Event) State {
	s := c.machine.Dispatch(ev)
	c.mu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
	return s
}
