package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apiclient"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/fakeserver"
	"rollcall/internal/metrics"
	"rollcall/internal/store"
)

type apiEnv struct {
	srv    *fakeserver.Server
	ctrl   *attendance.Controller
	router *gin.Engine
	course *fakeserver.Course
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := fakeserver.New()
	teacher := srv.AddUser("hoca@okul.edu", "gizli", "Ayşe Hoca", "ogretmen", false)
	student := srv.AddUser("ali@okul.edu", "parola", "Ali Veli", "ogrenci", true)
	course := srv.AddCourse("Fizik", "FIZ101", teacher, student)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	clk := clock.NewFake(time.Now())
	api := apiclient.New(hs.URL, 2*time.Second, nil)
	gate := auth.NewGate(api, store.NewMemoryTokens(), clk, nil)
	frames := capture.NewFrameDevice()
	m := metrics.New()
	ctrl := attendance.NewController(api, gate, frames, attendance.Options{Clock: clk, Metrics: m})
	t.Cleanup(ctrl.Close)

	return &apiEnv{
		srv:  srv,
		ctrl: ctrl,
		router: NewRouter(Options{
			Controller: ctrl,
			Gate:       gate,
			Frames:     frames,
			Metrics:    m,
			Clock:      clk,
		}),
		course: course,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (e *apiEnv) pushFrame(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, imaging.Encode(&img, imaging.New(320, 240, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), imaging.PNG))
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/camera/frame", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthzAndMetrics(t *testing.T) {
	e := newAPIEnv(t)

	w, out := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unauthenticated", out["phase"])

	w, _ = e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rollcall_control_requests_total")
}

func TestSignedOutRoutesAreGuarded(t *testing.T) {
	e := newAPIEnv(t)

	w, out := e.do(t, http.MethodPost, "/v1/join", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "not signed in", out["error"])
}

func TestLoginValidation(t *testing.T) {
	e := newAPIEnv(t)

	w, out := e.do(t, http.MethodPost, "/v1/login", map[string]string{"email": "bad", "password": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "precondition", out["kind"])
	assert.Equal(t, "email is not valid", out["error"])
	assert.Zero(t, e.srv.TotalCalls())
}

func TestLoginRejected(t *testing.T) {
	e := newAPIEnv(t)

	w, out := e.do(t, http.MethodPost, "/v1/login", map[string]string{"email": "ali@okul.edu", "password": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Email veya şifre hatalı", out["error"])
	assert.Equal(t, false, out["retryable"])
}

func TestStudentJoinOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	sess := e.srv.OpenSession(e.course)

	w, out := e.do(t, http.MethodPost, "/v1/login", map[string]string{"email": "ali@okul.edu", "password": "parola"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "listing_sessions", out["phase"])
	require.Eventually(t, func() bool { return len(e.ctrl.State().Sessions) == 1 }, 2*time.Second, 5*time.Millisecond)

	w, _ = e.do(t, http.MethodPost, "/v1/courses/1/start", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out = e.do(t, http.MethodPost, "/v1/join", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "select a session first", out["error"])

	_, out = e.do(t, http.MethodPost, "/v1/sessions/"+strconv.FormatInt(sess.ID, 10)+"/select", nil)
	assert.Equal(t, "entering_capture", out["phase"])

	assert.Equal(t, http.StatusNoContent, e.pushFrame(t).Code)

	w, out = e.do(t, http.MethodPost, "/v1/join", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "result", out["phase"])
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 1, e.srv.Participants(sess.ID))

	_, out = e.do(t, http.MethodPost, "/v1/back", nil)
	assert.Equal(t, "listing_sessions", out["phase"])

	_, out = e.do(t, http.MethodPost, "/v1/logout", nil)
	assert.Equal(t, "unauthenticated", out["phase"])
}

func TestTeacherOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	require.NoError(t, e.ctrl.Login(context.Background(), "hoca@okul.edu", "gizli"))
	require.Eventually(t, func() bool { return len(e.ctrl.State().Courses) == 1 }, 2*time.Second, 5*time.Millisecond)

	w, _ := e.do(t, http.MethodPost, "/v1/join", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.do(t, http.MethodPost, "/v1/courses/"+strconv.FormatInt(e.course.ID, 10)+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "session_active", out["phase"])

	w, out = e.do(t, http.MethodPost, "/v1/attendance/end", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "listing_courses", out["phase"])

	w, out = e.do(t, http.MethodPost, "/v1/attendance/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no active session", out["error"])
}

func TestPushFrameRequiresImage(t *testing.T) {
	e := newAPIEnv(t)
	w, _ := e.do(t, http.MethodPost, "/v1/camera/frame", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
