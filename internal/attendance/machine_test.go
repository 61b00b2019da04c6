package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
)

var (
	student = model.Actor{ID: 1, DisplayName: "Ali Veli", Role: model.RoleStudent, HasFace: true}
	teacher = model.Actor{ID: 2, DisplayName: "Ayşe Hoca", Role: model.RoleTeacher}
)

func studentMachine(t *testing.T, sessions ...model.Membership) *Machine {
	t.Helper()
	m := NewMachine(nil)
	m.Dispatch(LoggedIn{Actor: student})
	m.Dispatch(SessionsLoaded{Sessions: sessions})
	require.Equal(t, ListingSessions, m.Current().Phase)
	return m
}

func TestIgnoresEverythingButLoginWhenSignedOut(t *testing.T) {
	m := NewMachine(nil)
	for _, ev := range []Event{
		SessionsLoaded{Sessions: []model.Membership{{SessionID: 1}}},
		SelectSession{SessionID: 1},
		StartSucceeded{SessionID: 1},
		Back{},
	} {
		assert.Equal(t, State{Phase: Unauthenticated}, m.Dispatch(ev))
	}
}

func TestLandingPhaseByRole(t *testing.T) {
	tests := []struct {
		role model.Role
		want Phase
	}{
		{model.RoleStudent, ListingSessions},
		{model.RoleTeacher, ListingCourses},
		{model.RoleAdmin, ListingCourses},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			s := NewMachine(nil).Dispatch(LoggedIn{Actor: model.Actor{Role: tt.role}})
			assert.Equal(t, tt.want, s.Phase)
			assert.Empty(t, s.Courses)
		})
	}
}

func TestAdminIgnoresCourseLists(t *testing.T) {
	m := NewMachine(nil)
	m.Dispatch(LoggedIn{Actor: model.Actor{Role: model.RoleAdmin}})
	s := m.Dispatch(CoursesLoaded{Courses: []model.Course{{ID: 1}}})
	assert.Empty(t, s.Courses)
}

func TestStudentHappyPath(t *testing.T) {
	var transitions []string
	m := NewMachine(func(from, to Phase) { transitions = append(transitions, string(from)+">"+string(to)) })
	m.Dispatch(LoggedIn{Actor: student})
	m.Dispatch(SessionsLoaded{Sessions: []model.Membership{{SessionID: 7, CourseName: "Fizik"}}})

	s := m.Dispatch(SelectSession{SessionID: 7})
	require.Equal(t, EnteringCapture, s.Phase)
	assert.Equal(t, int64(7), s.Target.Session.SessionID)

	m.Dispatch(CaptureStarted{Text: "Preparing camera..."})
	s = m.Dispatch(UploadStarted{Text: "Verifying face..."})
	assert.Equal(t, Uploading, s.Phase)
	assert.Equal(t, "Verifying face...", s.CaptureText)

	s = m.Dispatch(SubmitSucceeded{Message: "Fizik yoklamasına katıldınız!", Confidence: 91})
	require.Equal(t, Result, s.Phase)
	assert.True(t, s.Result.Success)
	assert.True(t, s.Sessions[0].HasJoined)

	s = m.Dispatch(AutoAdvance{})
	assert.Equal(t, ListingSessions, s.Phase)
	assert.Nil(t, s.Target)
	assert.Nil(t, s.Result)

	assert.Equal(t, []string{
		"unauthenticated>listing_sessions",
		"listing_sessions>entering_capture",
		"entering_capture>capturing",
		"capturing>uploading",
		"uploading>result",
		"result>listing_sessions",
	}, transitions)
}

func TestSelectJoinedSessionIsNoticeOnly(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7, HasJoined: true})

	s := m.Dispatch(SelectSession{SessionID: 7})
	assert.Equal(t, ListingSessions, s.Phase)
	assert.Equal(t, "You already joined this session.", s.Notice)
	assert.Nil(t, s.Target)
}

func TestSelectRequiresRegisteredFace(t *testing.T) {
	m := NewMachine(nil)
	m.Dispatch(LoggedIn{Actor: model.Actor{Role: model.RoleStudent}})
	m.Dispatch(SessionsLoaded{Sessions: []model.Membership{{SessionID: 7}}})

	s := m.Dispatch(SelectSession{SessionID: 7})
	assert.Equal(t, ListingSessions, s.Phase)
	assert.Equal(t, "Register your face before joining a session.", s.Notice)

	m.Dispatch(BeginFaceRegistration{})
	m.Dispatch(CaptureStarted{})
	m.Dispatch(UploadStarted{})
	s = m.Dispatch(SubmitSucceeded{Message: "Yüz başarıyla kaydedildi"})
	assert.True(t, s.Actor.HasFace)
	m.Dispatch(AutoAdvance{})

	s = m.Dispatch(SelectSession{SessionID: 7})
	assert.Equal(t, EnteringCapture, s.Phase)
}

func TestSelectUnknownSession(t *testing.T) {
	m := studentMachine(t)
	s := m.Dispatch(SelectSession{SessionID: 99})
	assert.Equal(t, ListingSessions, s.Phase)
	assert.Equal(t, "This session is no longer active.", s.Notice)
}

func TestLocalJoinSurvivesStaleList(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7})
	m.Dispatch(SelectSession{SessionID: 7})
	m.Dispatch(CaptureStarted{})
	m.Dispatch(UploadStarted{})
	m.Dispatch(SubmitSucceeded{Message: "ok"})

	s := m.Dispatch(SessionsLoaded{Sessions: []model.Membership{{SessionID: 7, HasJoined: false}, {SessionID: 8}}})
	assert.True(t, s.Sessions[0].HasJoined)
	assert.False(t, s.Sessions[1].HasJoined)
}

func TestSubmitFailureRetryAndBack(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7})
	m.Dispatch(SelectSession{SessionID: 7})
	m.Dispatch(CaptureStarted{})
	m.Dispatch(UploadStarted{})

	s := m.Dispatch(SubmitFailed{Message: "Yüz doğrulanamadı"})
	require.Equal(t, Result, s.Phase)
	assert.False(t, s.Result.Success)
	assert.Equal(t, "Yüz doğrulanamadı", s.Result.Message)
	assert.False(t, s.Sessions[0].HasJoined)

	// no auto-advance after a failure
	assert.Equal(t, Result, m.Dispatch(AutoAdvance{}).Phase)

	s = m.Dispatch(Retry{})
	assert.Equal(t, Capturing, s.Phase)
	assert.Equal(t, int64(7), s.Target.Session.SessionID)

	m.Dispatch(SubmitFailed{Message: "again"})
	s = m.Dispatch(Back{})
	assert.Equal(t, ListingSessions, s.Phase)
	assert.Nil(t, s.Target)
}

func TestCaptureFailureGoesToResult(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7})
	m.Dispatch(SelectSession{SessionID: 7})
	m.Dispatch(CaptureStarted{})

	s := m.Dispatch(SubmitFailed{Message: "no image captured"})
	assert.Equal(t, Result, s.Phase)
}

func TestLoggedOutFromAnyPhase(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7})
	m.Dispatch(SelectSession{SessionID: 7})
	m.Dispatch(CaptureStarted{})

	assert.Equal(t, State{Phase: Unauthenticated}, m.Dispatch(LoggedOut{}))
}

func TestSnapshotsAreNotMutated(t *testing.T) {
	m := studentMachine(t, model.Membership{SessionID: 7})
	before := m.Current()

	m.Dispatch(SelectSession{SessionID: 7})
	m.Dispatch(CaptureStarted{})
	m.Dispatch(UploadStarted{})
	m.Dispatch(SubmitSucceeded{})

	assert.False(t, before.Sessions[0].HasJoined)
}

func teacherMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(nil)
	m.Dispatch(LoggedIn{Actor: teacher})
	m.Dispatch(CoursesLoaded{Courses: []model.Course{{ID: 3, Name: "Fizik"}, {ID: 4, Name: "Kimya"}}})
	m.Dispatch(ActiveSessionLoaded{})
	return m
}

func TestTeacherStartAndEnd(t *testing.T) {
	m := teacherMachine(t)

	s := m.Dispatch(StartSucceeded{CourseID: 3, SessionID: 50, Message: "Fizik için yoklama başlatıldı"})
	require.Equal(t, SessionActive, s.Phase)
	assert.Equal(t, int64(50), s.Active.ID)
	assert.Equal(t, "Fizik", s.Active.CourseName)
	assert.True(t, s.Courses[0].HasActiveSession)

	s = m.Dispatch(EndSucceeded{Message: "Fizik yoklaması bitirildi", ParticipantCount: 12})
	assert.Equal(t, ListingCourses, s.Phase)
	assert.Nil(t, s.Active)
	assert.False(t, s.Courses[0].HasActiveSession)
	assert.Equal(t, "Fizik yoklaması bitirildi", s.Notice)
}

func TestStartFailureStaysOnCourses(t *testing.T) {
	m := teacherMachine(t)

	s := m.Dispatch(StartFailed{Message: "Bu dersin zaten aktif bir yoklaması var"})
	assert.Equal(t, ListingCourses, s.Phase)
	assert.Equal(t, "Bu dersin zaten aktif bir yoklaması var", s.Error)
	assert.Nil(t, s.Active)
}

func TestEndFailureKeepsSessionDisplayed(t *testing.T) {
	m := teacherMachine(t)
	m.Dispatch(StartSucceeded{CourseID: 3, SessionID: 50})

	s := m.Dispatch(EndFailed{Message: "could not reach server"})
	assert.Equal(t, SessionActive, s.Phase)
	assert.Equal(t, int64(50), s.Active.ID)
	assert.Equal(t, "could not reach server", s.Error)

	// a poll that still sees the session keeps the error on screen
	s = m.Dispatch(ActiveSessionLoaded{Session: &model.Session{ID: 50, CourseID: 3}})
	assert.Equal(t, SessionActive, s.Phase)
	assert.Equal(t, "could not reach server", s.Error)
}

func TestPollDiscoversAndLosesActiveSession(t *testing.T) {
	m := teacherMachine(t)

	s := m.Dispatch(ActiveSessionLoaded{Session: &model.Session{ID: 9, CourseID: 4, ParticipantCount: 2}})
	assert.Equal(t, SessionActive, s.Phase)
	assert.Equal(t, 2, s.Active.ParticipantCount)

	s = m.Dispatch(ActiveSessionLoaded{})
	assert.Equal(t, ListingCourses, s.Phase)
	assert.Nil(t, s.Active)
}

func TestStudentEventsIgnoredForTeacher(t *testing.T) {
	m := teacherMachine(t)
	before := m.Current()
	assert.Equal(t, before, m.Dispatch(SelectSession{SessionID: 1}))
	assert.Equal(t, before, m.Dispatch(BeginFaceRegistration{}))
}
