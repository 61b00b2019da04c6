// Package attendance drives the attendance screens: a pure state machine
// plus a Controller that feeds it from the server, the pollers and the
// capture adapter.
package attendance

import (
	"sync"

	"rollcall/internal/model"
)

// Phase is the screen the user is on.
type Phase string

const (
	Unauthenticated Phase = "unauthenticated"
	ListingSessions Phase = "listing_sessions"
	EnteringCapture Phase = "entering_capture"
	Capturing       Phase = "capturing"
	Uploading       Phase = "uploading"
	Result          Phase = "result"
	ListingCourses  Phase = "listing_courses"
	SessionActive   Phase = "session_active"
)

// TargetKind says what a capture flow submits to.
type TargetKind string

const (
	TargetJoin TargetKind = "join"
	TargetFace TargetKind = "face"
)

// Target is the subject of the current capture flow.
type Target struct {
	Kind    TargetKind        `json:"kind"`
	Session *model.Membership `json:"session,omitempty"`
}

// Outcome is the result screen content.
type Outcome struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}

// State is an immutable snapshot. Slices and pointers are never modified
// after a snapshot is handed out; the machine replaces them instead.
type State struct {
	Phase       Phase              `json:"phase"`
	Actor       *model.Actor       `json:"actor,omitempty"`
	Sessions    []model.Membership `json:"sessions"`
	Courses     []model.Course     `json:"courses"`
	Active      *model.Session     `json:"active_session,omitempty"`
	Target      *Target            `json:"target,omitempty"`
	Result      *Outcome           `json:"result,omitempty"`
	CaptureText string             `json:"capture_text,omitempty"`
	Notice      string             `json:"notice,omitempty"`
	Error       string             `json:"error,omitempty"`
	Refreshing  bool               `json:"refreshing"`
}

// Machine is the screen-flow controller. It performs no I/O.
type Machine struct {
	mu     sync.Mutex
	state  State
	joined map[int64]bool

	onTransition func(from, to Phase)
}

// NewMachine starts Unauthenticated. onTransition, if set, is called for
// every phase change while the machine lock is held; it must not call back
// into the machine.
func NewMachine(onTransition func(from, to Phase)) *Machine {
	return &Machine{
		state:        State{Phase: Unauthenticated},
		joined:       make(map[int64]bool),
		onTransition: onTransition,
	}
}

// Current returns the latest snapshot.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch applies ev and returns the resulting snapshot. Events that make
// no sense in the current phase leave the state unchanged.
func (m *Machine) Dispatch(ev Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.state.Phase
	m.state = m.reduce(m.state, ev)
	if m.onTransition != nil && from != m.state.Phase {
		m.onTransition(from, m.state.Phase)
	}
	return m.state
}

func (m *Machine) reduce(s State, ev Event) State {
	if s.Phase == Unauthenticated {
		if e, ok := ev.(LoggedIn); ok {
			return m.login(e.Actor)
		}
		return s
	}

	switch e := ev.(type) {
	case LoggedIn:
		return m.login(e.Actor)
	case LoggedOut:
		m.joined = make(map[int64]bool)
		return State{Phase: Unauthenticated}
	case RefreshingChanged:
		s.Refreshing = e.Refreshing
		return s
	}

	if s.Actor.Role == model.RoleStudent {
		return m.reduceStudent(s, ev)
	}
	return m.reduceTeacher(s, ev)
}

func (m *Machine) login(actor model.Actor) State {
	m.joined = make(map[int64]bool)
	s := State{Actor: &actor}
	if actor.Role == model.RoleStudent {
		s.Phase = ListingSessions
	} else {
		// admins have no screens of their own and see an empty course list
		s.Phase = ListingCourses
	}
	return s
}

func (m *Machine) reduceStudent(s State, ev Event) State {
	switch e := ev.(type) {
	case SessionsLoaded:
		s.Sessions = m.mergeJoined(e.Sessions)
		if s.Target != nil && s.Target.Session != nil {
			for i := range s.Sessions {
				if s.Sessions[i].SessionID == s.Target.Session.SessionID {
					sess := s.Sessions[i]
					s.Target = &Target{Kind: s.Target.Kind, Session: &sess}
				}
			}
		}

	case SelectSession:
		if s.Phase != ListingSessions {
			return s
		}
		s.Notice, s.Error = "", ""
		var found *model.Membership
		for i := range s.Sessions {
			if s.Sessions[i].SessionID == e.SessionID {
				sess := s.Sessions[i]
				found = &sess
			}
		}
		switch {
		case found == nil:
			s.Notice = "This session is no longer active."
		case found.HasJoined:
			s.Notice = "You already joined this session."
		case !s.Actor.HasFace:
			s.Notice = "Register your face before joining a session."
		default:
			s.Phase = EnteringCapture
			s.Target = &Target{Kind: TargetJoin, Session: found}
			s.Result = nil
			s.CaptureText = ""
		}

	case BeginFaceRegistration:
		if s.Phase != ListingSessions {
			return s
		}
		s.Notice, s.Error = "", ""
		s.Phase = EnteringCapture
		s.Target = &Target{Kind: TargetFace}
		s.Result = nil
		s.CaptureText = ""

	case CaptureStarted:
		if s.Phase != EnteringCapture && s.Phase != Capturing {
			return s
		}
		s.Phase = Capturing
		s.CaptureText = e.Text

	case UploadStarted:
		if s.Phase != Capturing {
			return s
		}
		s.Phase = Uploading
		s.CaptureText = e.Text

	case SubmitSucceeded:
		if !inFlow(s.Phase) || s.Target == nil {
			return s
		}
		s.Phase = Result
		s.Result = &Outcome{Success: true, Message: e.Message, Confidence: e.Confidence}
		s.CaptureText = ""
		switch s.Target.Kind {
		case TargetJoin:
			id := s.Target.Session.SessionID
			m.joined[id] = true
			s.Sessions = m.mergeJoined(s.Sessions)
			sess := *s.Target.Session
			sess.HasJoined = true
			s.Target = &Target{Kind: TargetJoin, Session: &sess}
		case TargetFace:
			actor := *s.Actor
			actor.HasFace = true
			s.Actor = &actor
		}

	case SubmitFailed:
		if !inFlow(s.Phase) {
			return s
		}
		s.Phase = Result
		s.Result = &Outcome{Message: e.Message}
		s.CaptureText = ""

	case AutoAdvance:
		if s.Phase != Result || s.Result == nil || !s.Result.Success {
			return s
		}
		s = backToList(s)

	case Retry:
		if s.Phase != Result || s.Result == nil || s.Result.Success {
			return s
		}
		s.Phase = Capturing
		s.Result = nil
		s.CaptureText = ""

	case Back:
		if s.Phase == ListingSessions {
			s.Notice, s.Error = "", ""
			return s
		}
		s = backToList(s)
	}
	return s
}

func (m *Machine) reduceTeacher(s State, ev Event) State {
	isTeacher := s.Actor.Role == model.RoleTeacher
	switch e := ev.(type) {
	case CoursesLoaded:
		if isTeacher {
			s.Courses = e.Courses
		}

	case ActiveSessionLoaded:
		if !isTeacher {
			return s
		}
		s.Active = e.Session
		switch {
		case s.Phase == ListingCourses && e.Session != nil:
			s.Phase = SessionActive
			s.Error = ""
		case s.Phase == SessionActive && e.Session == nil:
			s.Phase = ListingCourses
			s.Error = ""
		}

	case StartSucceeded:
		if !isTeacher || s.Phase != ListingCourses {
			return s
		}
		s.Phase = SessionActive
		s.Notice, s.Error = e.Message, ""
		sess := &model.Session{ID: e.SessionID, CourseID: e.CourseID, Active: true}
		courses := make([]model.Course, len(s.Courses))
		copy(courses, s.Courses)
		for i := range courses {
			if courses[i].ID == e.CourseID {
				courses[i].HasActiveSession = true
				sess.CourseName = courses[i].Name
			}
		}
		s.Courses = courses
		s.Active = sess

	case StartFailed:
		if s.Phase != ListingCourses {
			return s
		}
		s.Notice, s.Error = "", e.Message

	case EndSucceeded:
		if s.Phase != SessionActive {
			return s
		}
		s.Phase = ListingCourses
		s.Notice, s.Error = e.Message, ""
		if s.Active != nil {
			courses := make([]model.Course, len(s.Courses))
			copy(courses, s.Courses)
			for i := range courses {
				if courses[i].ID == s.Active.CourseID {
					courses[i].HasActiveSession = false
				}
			}
			s.Courses = courses
		}
		s.Active = nil

	case EndFailed:
		if s.Phase != SessionActive {
			return s
		}
		// the session stays on screen until an explicit retry succeeds
		s.Notice, s.Error = "", e.Message

	case Back:
		s.Notice, s.Error = "", ""
	}
	return s
}

// mergeJoined copies list, forcing HasJoined for sessions joined locally.
func (m *Machine) mergeJoined(list []model.Membership) []model.Membership {
	out := make([]model.Membership, len(list))
	copy(out, list)
	for i := range out {
		if m.joined[out[i].SessionID] {
			out[i].HasJoined = true
		}
	}
	return out
}

func inFlow(p Phase) bool {
	return p == EnteringCapture || p == Capturing || p == Uploading
}

func backToList(s State) State {
	s.Phase = ListingSessions
	s.Target = nil
	s.Result = nil
	s.CaptureText = ""
	s.Notice, s.Error = "", ""
	return s
}
