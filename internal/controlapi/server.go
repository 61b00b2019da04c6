// Package controlapi exposes the attendance controller over a local HTTP
// API so any UI shell (a browser page, a kiosk, a script) can drive it.
package controlapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
)

// Options configures the router.
type Options struct {
	Controller      *attendance.Controller
	Gate            *auth.Gate
	Frames          *capture.FrameDevice
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	Clock           clock.Clock
	RateLimitPerMin int
	AllowOrigins    []string
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{ctrl: opts.Controller, frames: opts.Frames, log: opts.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(corsMiddleware(opts.AllowOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin, opts.Clock).GinMiddleware())
	if opts.Metrics != nil {
		r.Use(httpmiddleware.Metrics(opts.Metrics))
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/state", h.State)
	v1.POST("/login", h.Login)
	v1.POST("/camera/frame", h.PushFrame)

	signedIn := v1.Group("", auth.RequireCredential(opts.Gate))
	signedIn.POST("/logout", h.Logout)
	signedIn.POST("/refresh", h.Refresh)
	signedIn.POST("/back", h.Back)

	student := signedIn.Group("", auth.RequireRole(string(model.RoleStudent)))
	student.POST("/sessions/:id/select", h.SelectSession)
	student.POST("/join", h.Join)
	student.POST("/retry", h.Retry)
	student.POST("/face", h.RegisterFace)

	teacher := signedIn.Group("", auth.RequireRole(string(model.RoleTeacher)))
	teacher.POST("/courses/:id/start", h.StartAttendance)
	teacher.POST("/attendance/end", h.EndAttendance)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// NewServer wraps the router in an http.Server with the usual timeouts.
// Join and face registration block for a capture plus an upload, so the
// write timeout is generous.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
