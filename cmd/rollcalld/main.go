// rollcalld runs the attendance client headless and exposes it over a local
// HTTP control API, for kiosks and browser front ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"rollcall/internal/apiclient"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/controlapi"
	"rollcall/internal/fakeserver"
	"rollcall/internal/metrics"
	"rollcall/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var fake bool
	var origins []string
	flagSet := pflag.NewFlagSet("rollcalld", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	flagSet.StringVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "control API port")
	flagSet.IntVar(&cfg.RateLimitPerMin, "rate-limit", cfg.RateLimitPerMin, "control API requests per minute (0 disables)")
	flagSet.StringSliceVar(&origins, "allow-origin", nil, "CORS origins allowed to call the control API (default any)")
	flagSet.BoolVar(&fake, "fake-server", false, "run an in-process fake attendance server with demo accounts")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if fake {
		url, shutdown, err := startFakeServer(logger)
		if err != nil {
			return err
		}
		defer shutdown()
		cfg.BaseURL = url
	}

	// The fake server switches gin to test mode; set the mode afterwards.
	mode := gin.DebugMode
	if cfg.Env == "production" || cfg.Env == "prod" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	tokens, err := store.Open(ctx, store.Options{
		Kind:        cfg.TokenStore,
		Path:        cfg.TokenPath,
		RedisAddr:   cfg.RedisAddr,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer tokens.Close()

	m := metrics.New()
	api := apiclient.New(cfg.BaseURL, cfg.RequestTimeout, logger)
	if banner, err := api.Info(ctx); err != nil {
		logger.Warn("attendance server not reachable", "url", cfg.BaseURL, "error", err)
	} else {
		logger.Info("attendance server", "url", cfg.BaseURL, "banner", banner)
	}

	clk := clock.Real()
	gate := auth.NewGate(api, tokens, clk, logger)
	frames := capture.NewFrameDevice()
	ctrl := attendance.NewController(api, gate, frames, attendance.Options{
		PollInterval: cfg.PollInterval,
		AutoAdvance:  cfg.AutoAdvance,
		ReadyTimeout: cfg.DeviceReadyTimeout,
		MaxWidth:     cfg.CaptureMaxWidth,
		Clock:        clk,
		Logger:       logger,
		Metrics:      m,
	})
	defer ctrl.Close()

	if restored, err := ctrl.Restore(ctx); err != nil {
		logger.Warn("could not restore sign-in", "error", err)
	} else if restored {
		logger.Info("restored sign-in", "phase", ctrl.State().Phase)
	}

	router := controlapi.NewRouter(controlapi.Options{
		Controller:      ctrl,
		Gate:            gate,
		Frames:          frames,
		Metrics:         m,
		Logger:          logger,
		Clock:           clk,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowOrigins:    origins,
	})
	srv := controlapi.NewServer(":"+cfg.HTTPPort, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	return nil
}

// startFakeServer serves a seeded fake attendance server on a loopback
// port and returns its base URL.
func startFakeServer(logger *slog.Logger) (string, func(), error) {
	fs := fakeserver.New()
	teacher := fs.AddUser("ogretmen@okul.edu", "ogretmen123", "Ayşe Yılmaz", "ogretmen", false)
	ali := fs.AddUser("ali@okul.edu", "ogrenci123", "Ali Demir", "ogrenci", false)
	zeynep := fs.AddUser("zeynep@okul.edu", "ogrenci123", "Zeynep Kaya", "ogrenci", true)
	fs.AddCourse("Fizik I", "FIZ101", teacher, ali, zeynep)
	fs.AddCourse("Kimya", "KIM102", teacher, zeynep)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("fake server: %w", err)
	}
	srv := &http.Server{Handler: fs.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("fake server stopped", "error", err)
		}
	}()
	url := "http://" + ln.Addr().String()
	logger.Info("fake attendance server", "url", url,
		"teacher", "ogretmen@okul.edu / ogretmen123",
		"students", "ali@okul.edu, zeynep@okul.edu / ogrenci123")
	return url, func() { _ = srv.Close() }, nil
}
