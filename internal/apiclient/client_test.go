package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
	"rollcall/internal/fakeserver"
	"rollcall/internal/model"
)

type fixture struct {
	srv     *fakeserver.Server
	http    *httptest.Server
	client  *Client
	teacher *fakeserver.User
	student *fakeserver.User
	course  *fakeserver.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := fakeserver.New()
	teacher := srv.AddUser("hoca@okul.edu", "gizli", "Ayşe Hoca", "ogretmen", false)
	student := srv.AddUser("ali@okul.edu", "parola", "Ali Veli", "ogrenci", true)
	course := srv.AddCourse("Veri Yapıları", "BLM201", teacher, student)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &fixture{
		srv:     srv,
		http:    hs,
		client:  New(hs.URL+"/", 2*time.Second, nil),
		teacher: teacher,
		student: student,
		course:  course,
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	token, actor, err := f.client.Login(context.Background(), "ali@okul.edu", "parola")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, model.Actor{
		ID:          f.student.ID,
		Email:       "ali@okul.edu",
		DisplayName: "Ali Veli",
		Role:        model.RoleStudent,
		HasFace:     true,
	}, actor)

	me, err := f.client.WhoAmI(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, actor, me)
}

func TestLoginRejectedCarriesServerMessage(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.client.Login(context.Background(), "ali@okul.edu", "yanlis")
	require.Error(t, err)
	assert.True(t, apperr.IsRejected(err))
	assert.False(t, apperr.KindOf(err) == apperr.KindConnection)
	assert.Equal(t, "Email veya şifre hatalı", apperr.UserMessage(err))

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.False(t, e.Retryable())
}

func TestWhoAmIRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.WhoAmI(context.Background(), f.srv.Token(f.student, -time.Minute))
	assert.True(t, apperr.IsRejected(err))
}

func TestConnectionFailure(t *testing.T) {
	hs := httptest.NewServer(http.NotFoundHandler())
	url := hs.URL
	hs.Close()

	c := New(url, time.Second, nil)
	_, _, err := c.Login(context.Background(), "ali@okul.edu", "parola")
	require.Error(t, err)
	assert.True(t, apperr.IsConnection(err))
	assert.Equal(t, apperr.ConnectionMessage, apperr.UserMessage(err))
}

func TestMalformedResponseIsConnectionError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ogrenci/aktif-yoklamalar", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "<html>bad gateway</html>")
	})
	hs := httptest.NewServer(r)
	defer hs.Close()

	_, err := New(hs.URL, time.Second, nil).ActiveSessions(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperr.IsConnection(err))
}

func TestRejectedWithoutMessageFallsBackToStatusText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ogretmen/derslerim", func(c *gin.Context) {
		c.JSON(http.StatusForbidden, gin.H{"basarili": false})
	})
	hs := httptest.NewServer(r)
	defer hs.Close()

	_, err := New(hs.URL, time.Second, nil).TeacherCourses(context.Background(), "tok")
	assert.True(t, apperr.IsRejected(err))
	assert.Equal(t, "Forbidden", apperr.UserMessage(err))
}

func TestRequestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var auth, reqID string
	r := gin.New()
	r.GET("/auth/ben", func(c *gin.Context) {
		auth = c.GetHeader("Authorization")
		reqID = c.GetHeader("X-Request-ID")
		c.JSON(http.StatusOK, gin.H{"basarili": true, "kullanici": gin.H{"id": 1, "rol": "admin"}})
	})
	hs := httptest.NewServer(r)
	defer hs.Close()

	actor, err := New(hs.URL, time.Second, nil).WhoAmI(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", auth)
	assert.Len(t, reqID, 36)
	assert.Equal(t, model.RoleAdmin, actor.Role)
}

func TestTeacherFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.srv.Token(f.teacher, time.Hour)

	courses, err := f.client.TeacherCourses(ctx, token)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "BLM201", courses[0].Code)
	assert.Equal(t, 1, courses[0].EnrolledCount)
	assert.False(t, courses[0].HasActiveSession)

	active, err := f.client.ActiveSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, active)

	started, err := f.client.StartAttendance(ctx, token, f.course.ID)
	require.NoError(t, err)
	assert.NotZero(t, started.SessionID)

	_, err = f.client.StartAttendance(ctx, token, f.course.ID)
	assert.True(t, apperr.IsRejected(err))
	assert.Equal(t, "Bu dersin zaten aktif bir yoklaması var", apperr.UserMessage(err))

	active, err = f.client.ActiveSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.SessionID, active.ID)
	assert.Equal(t, "Veri Yapıları", active.CourseName)
	assert.False(t, active.StartedAt.IsZero())

	ended, err := f.client.EndAttendance(ctx, token, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, ended.ParticipantCount)

	_, err = f.client.EndAttendance(ctx, token, started.SessionID)
	assert.True(t, apperr.IsRejected(err))
}

func TestStudentJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.srv.Token(f.student, time.Hour)
	sess := f.srv.OpenSession(f.course)

	list, err := f.client.ActiveSessions(ctx, token)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sess.ID, list[0].SessionID)
	assert.Equal(t, "Ayşe Hoca", list[0].TeacherName)
	assert.False(t, list[0].HasJoined)

	out, err := f.client.JoinSession(ctx, token, sess.ID, Image{Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "Veri Yapıları yoklamasına katıldınız!", out.Message)
	assert.InDelta(t, 87.5, out.Confidence, 0.001)
	assert.Equal(t, 1, f.srv.Participants(sess.ID))

	list, err = f.client.ActiveSessions(ctx, token)
	require.NoError(t, err)
	assert.True(t, list[0].HasJoined)

	courses, err := f.client.StudentCourses(ctx, token)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Ayşe Hoca", courses[0].TeacherName)
}

func TestJoinEmptyImageIsPrecondition(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.JoinSession(context.Background(), f.srv.Token(f.student, time.Hour), 1, Image{})
	assert.True(t, apperr.IsPrecondition(err))
	assert.Equal(t, 0, f.srv.Calls("/ogrenci/yoklama/katil"))
}

func TestJoinFaceMismatch(t *testing.T) {
	f := newFixture(t)
	f.srv.Join = func(_, _ int64, _ []byte) (bool, string) {
		return false, "Yüz doğrulanamadı"
	}
	sess := f.srv.OpenSession(f.course)

	_, err := f.client.JoinSession(context.Background(), f.srv.Token(f.student, time.Hour), sess.ID, Image{Data: []byte("x")})
	assert.True(t, apperr.IsRejected(err))
	assert.Equal(t, "Yüz doğrulanamadı", apperr.UserMessage(err))
}

func TestRegisterFace(t *testing.T) {
	f := newFixture(t)
	u := f.srv.AddUser("yeni@okul.edu", "p", "Yeni", "ogrenci", false)
	token := f.srv.Token(u, time.Hour)

	msg, err := f.client.RegisterFace(context.Background(), token, Image{Data: []byte("face")})
	require.NoError(t, err)
	assert.Equal(t, "Yüz başarıyla kaydedildi", msg)

	me, err := f.client.WhoAmI(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, me.HasFace)
}

func TestInfo(t *testing.T) {
	f := newFixture(t)

	info, err := f.client.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Yoklama Sistemi API 2.0", info)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T09:30:00", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2025-03-01 09:30:00", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2025-03-01T09:30:00.250000", time.Date(2025, 3, 1, 9, 30, 0, 250000000, time.UTC)},
		{"2025-03-01T09:30:00Z", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseTime(tt.in)), "got %v", parseTime(tt.in))
		})
	}
}
