// Package apiclient talks to the attendance server and the standalone face
// API. Every call returns an *apperr.Error on failure.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
	"rollcall/internal/model"
)

const maxResponseBytes = 1 << 20

// Client calls the attendance server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// New creates a client whose every request is bounded by timeout.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

// Image is an encoded still image ready for upload.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Login exchanges an email and password for a token.
func (c *Client) Login(ctx context.Context, email, secret string) (string, model.Actor, error) {
	var out loginResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/auth/giris", "", loginRequest{Email: email, Sifre: secret}, &out); err != nil {
		return "", model.Actor{}, err
	}
	if out.Token == "" {
		return "", model.Actor{}, apperr.Connection("login", fmt.Errorf("response carried no token"))
	}
	return out.Token, out.Kullanici.actor(), nil
}

// WhoAmI validates a token and returns its actor.
func (c *Client) WhoAmI(ctx context.Context, token string) (model.Actor, error) {
	var out meResponse
	if err := c.doJSON(ctx, "whoami", http.MethodGet, "/auth/ben", token, nil, &out); err != nil {
		return model.Actor{}, err
	}
	return out.Kullanici.actor(), nil
}

// TeacherCourses lists the courses owned by the authenticated teacher.
func (c *Client) TeacherCourses(ctx context.Context, token string) ([]model.Course, error) {
	var out coursesResponse
	if err := c.doJSON(ctx, "teacher courses", http.MethodGet, "/ogretmen/derslerim", token, nil, &out); err != nil {
		return nil, err
	}
	courses := make([]model.Course, 0, len(out.Dersler))
	for _, d := range out.Dersler {
		courses = append(courses, d.course())
	}
	return courses, nil
}

// StudentCourses lists the courses the authenticated student is enrolled in.
func (c *Client) StudentCourses(ctx context.Context, token string) ([]model.Course, error) {
	var out coursesResponse
	if err := c.doJSON(ctx, "student courses", http.MethodGet, "/ogrenci/derslerim", token, nil, &out); err != nil {
		return nil, err
	}
	courses := make([]model.Course, 0, len(out.Dersler))
	for _, d := range out.Dersler {
		courses = append(courses, d.course())
	}
	return courses, nil
}

// StartAttendance opens an attendance session for a course.
func (c *Client) StartAttendance(ctx context.Context, token string, courseID int64) (model.StartOutcome, error) {
	var out startResponse
	if err := c.doJSON(ctx, "start attendance", http.MethodPost, "/ogretmen/yoklama/baslat", token, startRequest{DersID: courseID}, &out); err != nil {
		return model.StartOutcome{}, err
	}
	return model.StartOutcome{Message: out.Mesaj, SessionID: out.OturumID}, nil
}

// EndAttendance closes an attendance session.
func (c *Client) EndAttendance(ctx context.Context, token string, sessionID int64) (model.EndOutcome, error) {
	var out endResponse
	if err := c.doJSON(ctx, "end attendance", http.MethodPost, "/ogretmen/yoklama/bitir", token, endRequest{OturumID: sessionID}, &out); err != nil {
		return model.EndOutcome{}, err
	}
	return model.EndOutcome{Message: out.Mesaj, ParticipantCount: out.KatilimciSayisi}, nil
}

// ActiveSession returns the teacher's active session, or nil when none is
// running.
func (c *Client) ActiveSession(ctx context.Context, token string) (*model.Session, error) {
	var out activeResponse
	if err := c.doJSON(ctx, "active session", http.MethodGet, "/ogretmen/yoklama/aktif", token, nil, &out); err != nil {
		return nil, err
	}
	if out.AktifOturum == nil {
		return nil, nil
	}
	s := out.AktifOturum.session()
	return &s, nil
}

// ActiveSessions lists the sessions a student may join.
func (c *Client) ActiveSessions(ctx context.Context, token string) ([]model.Membership, error) {
	var out sessionsResponse
	if err := c.doJSON(ctx, "active sessions", http.MethodGet, "/ogrenci/aktif-yoklamalar", token, nil, &out); err != nil {
		return nil, err
	}
	sessions := make([]model.Membership, 0, len(out.Yoklamalar))
	for _, y := range out.Yoklamalar {
		sessions = append(sessions, y.membership())
	}
	return sessions, nil
}

// JoinSession uploads a face photo as proof of presence.
func (c *Client) JoinSession(ctx context.Context, token string, sessionID int64, img Image) (model.JoinOutcome, error) {
	fields := map[string]string{"oturum_id": strconv.FormatInt(sessionID, 10)}
	var out joinResponse
	if err := c.doMultipart(ctx, "join session", "/ogrenci/yoklama/katil", token, fields, "image", img, &out); err != nil {
		return model.JoinOutcome{}, err
	}
	return model.JoinOutcome{Message: out.Mesaj, Confidence: out.GuvenOrani}, nil
}

// RegisterFace stores the authenticated student's reference face.
func (c *Client) RegisterFace(ctx context.Context, token string, img Image) (string, error) {
	var out messageResponse
	if err := c.doMultipart(ctx, "register face", "/yuz/kayit", token, nil, "resim", img, &out); err != nil {
		return "", err
	}
	return out.Mesaj, nil
}

// Info fetches the server banner. Used as a reachability check.
func (c *Client) Info(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/", "", nil, "")
	if err != nil {
		return "", apperr.Connection("info", err)
	}
	var out infoResponse
	status, err := c.send(req, "info", &out)
	if err != nil {
		return "", err
	}
	if status >= 300 || out.Durum != "ok" {
		return "", apperr.Rejected("info", status, out.Mesaj)
	}
	return strings.TrimSpace(out.Mesaj + " " + out.Versiyon), nil
}

type result interface {
	result() (bool, string)
}

func (c *Client) doJSON(ctx context.Context, op, method, path, token string, in any, out result) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperr.Precondition(op, err.Error())
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, token, body, contentType)
	if err != nil {
		return apperr.Connection(op, err)
	}
	return c.finish(req, op, out)
}

func (c *Client) doMultipart(ctx context.Context, op, path, token string, fields map[string]string, fileField string, img Image, out result) error {
	body, contentType, err := multipartBody(fields, fileField, img)
	if err != nil {
		return apperr.Precondition(op, err.Error())
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, body, contentType)
	if err != nil {
		return apperr.Connection(op, err)
	}
	return c.finish(req, op, out)
}

func (c *Client) finish(req *http.Request, op string, out result) error {
	status, err := c.send(req, op, out)
	if err != nil {
		return err
	}
	if ok, msg := out.result(); !ok {
		if msg == "" {
			msg = http.StatusText(status)
		}
		return apperr.Rejected(op, status, msg)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// send performs req and decodes the body into out whatever the status code.
// A body that is not JSON counts as a connection error.
func (c *Client) send(req *http.Request, op string, out any) (int, error) {
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, apperr.Connection(op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, apperr.Connection(op, fmt.Errorf("read response: %w", err))
	}
	c.Logger.Debug("api call",
		"op", op,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-ID"),
		"elapsed", time.Since(start))

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, apperr.Connection(op, fmt.Errorf("malformed response (%s): %w", resp.Status, err))
	}
	return resp.StatusCode, nil
}

func multipartBody(fields map[string]string, fileField string, img Image) (io.Reader, string, error) {
	if len(img.Data) == 0 {
		return nil, "", fmt.Errorf("image is empty")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	filename := img.Filename
	if filename == "" {
		filename = "capture.jpg"
	}
	fw, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
