package controlapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/capture"
)

// Handler holds the route handlers.
type Handler struct {
	ctrl   *attendance.Controller
	frames *capture.FrameDevice
	log    *slog.Logger
}

const maxFrameBytes = 8 << 20

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "phase": h.ctrl.State().Phase})
}

// ---------- State ----------

func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.State())
}

// ---------- Auth ----------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := h.ctrl.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *Handler) Logout(c *gin.Context) {
	h.ctrl.Logout(c.Request.Context())
	c.JSON(http.StatusOK, h.ctrl.State())
}

// ---------- Lists ----------

func (h *Handler) Refresh(c *gin.Context) {
	h.ctrl.Refresh()
	c.JSON(http.StatusAccepted, h.ctrl.State())
}

func (h *Handler) Back(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Back())
}

// ---------- Student ----------

func (h *Handler) SelectSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	c.JSON(http.StatusOK, h.ctrl.SelectSession(id))
}

// PushFrame stores the latest camera frame (multipart field "image").
func (h *Handler) PushFrame(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}
	h.frames.Push(data)
	c.Status(http.StatusNoContent)
}

func (h *Handler) Join(c *gin.Context) {
	h.respond(c, h.ctrl.Join(c.Request.Context()))
}

func (h *Handler) Retry(c *gin.Context) {
	h.respond(c, h.ctrl.Retry(c.Request.Context()))
}

func (h *Handler) RegisterFace(c *gin.Context) {
	h.respond(c, h.ctrl.RegisterFace(c.Request.Context()))
}

// ---------- Teacher ----------

func (h *Handler) StartAttendance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	h.respond(c, h.ctrl.StartAttendance(c.Request.Context(), id))
}

func (h *Handler) EndAttendance(c *gin.Context) {
	h.respond(c, h.ctrl.EndAttendance(c.Request.Context()))
}

// respond returns the state on success. Failures that the state machine
// already folded into the state still answer with an error status.
func (h *Handler) respond(c *gin.Context, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *Handler) fail(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		h.log.Error("unclassified error", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	status := http.StatusBadGateway
	switch e.Kind {
	case apperr.KindPrecondition:
		status = http.StatusConflict
	case apperr.KindRejected:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"error":     apperr.UserMessage(err),
		"kind":      e.Kind.String(),
		"retryable": e.Retryable(),
		"state":     h.ctrl.State(),
	})
}
