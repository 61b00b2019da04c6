// rollcall is the terminal attendance client for students and teachers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"rollcall/internal/apiclient"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/store"
	"rollcall/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var logOutput string
	var imagePath string
	flagSet := pflag.NewFlagSet("rollcall", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	flagSet.StringVar(&logOutput, "log-output", "", "write log records to this file (the terminal is taken by the UI)")
	flagSet.StringVar(&imagePath, "image", "", "photo used when a capture screen is submitted with an empty path")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var logWriter io.Writer = io.Discard
	if logOutput != "" {
		file, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()
		logWriter = file
	}
	logger := cfg.NewLogger(logWriter)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	clk := clock.Real()
	api := apiclient.New(cfg.BaseURL, cfg.RequestTimeout, logger)
	gate := auth.NewGate(api, tokens, clk, logger)
	device := &defaultedFile{FileDevice: capture.NewFileDevice(imagePath), fallback: imagePath}
	ctrl := attendance.NewController(api, gate, device, attendance.Options{
		PollInterval: cfg.PollInterval,
		AutoAdvance:  cfg.AutoAdvance,
		ReadyTimeout: cfg.DeviceReadyTimeout,
		MaxWidth:     cfg.CaptureMaxWidth,
		Clock:        clk,
		Logger:       logger,
	})
	defer ctrl.Close()

	if _, err := ctrl.Restore(ctx); err != nil {
		logger.Warn("could not restore sign-in", "error", err)
	}

	model := tui.NewModel(ctx, ctrl, device)
	defer model.Close()
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// defaultedFile falls back to the --image path when the capture screen is
// submitted empty.
type defaultedFile struct {
	*capture.FileDevice
	fallback string
}

func (d *defaultedFile) SetPath(path string) {
	if path == "" {
		path = d.fallback
	}
	d.FileDevice.SetPath(path)
}
