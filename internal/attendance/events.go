package attendance

import "rollcall/internal/model"

// Event is an input to the Machine.
type Event interface{ event() }

type (
	// LoggedIn moves a fresh credential into its role's landing phase.
	LoggedIn struct{ Actor model.Actor }
	// LoggedOut returns to Unauthenticated from anywhere.
	LoggedOut struct{}

	SessionsLoaded      struct{ Sessions []model.Membership }
	CoursesLoaded       struct{ Courses []model.Course }
	ActiveSessionLoaded struct{ Session *model.Session } // nil when none runs
	RefreshingChanged   struct{ Refreshing bool }

	SelectSession         struct{ SessionID int64 }
	BeginFaceRegistration struct{}
	CaptureStarted        struct{ Text string }
	UploadStarted         struct{ Text string }
	SubmitSucceeded       struct {
		Message    string
		Confidence float64
	}
	SubmitFailed struct{ Message string }
	AutoAdvance  struct{}
	Retry        struct{}
	Back         struct{}

	StartSucceeded struct {
		CourseID  int64
		SessionID int64
		Message   string
	}
	StartFailed  struct{ Message string }
	EndSucceeded struct {
		Message          string
		ParticipantCount int
	}
	EndFailed struct{ Message string }
)

func (LoggedIn) event()              {}
func (LoggedOut) event()             {}
func (SessionsLoaded) event()        {}
func (CoursesLoaded) event()         {}
func (ActiveSessionLoaded) event()   {}
func (RefreshingChanged) event()     {}
func (SelectSession) event()         {}
func (BeginFaceRegistration) event() {}
func (CaptureStarted) event()        {}
func (UploadStarted) event()         {}
func (SubmitSucceeded) event()       {}
func (SubmitFailed) event()          {}
func (AutoAdvance) event()           {}
func (Retry) event()                 {}
func (Back) event()                  {}
func (StartSucceeded) event()        {}
func (StartFailed) event()           {}
func (EndSucceeded) event()          {}
func (EndFailed) event()             {}
