// facedemo drives the standalone face registration and recognition service
// from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"rollcall/internal/apiclient"
	"rollcall/internal/apperr"
	"rollcall/internal/capture"
	"rollcall/internal/config"
	"rollcall/internal/demo"
	"rollcall/internal/model"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", apperr.UserMessage(err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cfg := config.Load()

	var asJSON bool
	flagSet := pflag.NewFlagSet("facedemo", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.FaceAPIURL, "face-url", cfg.FaceAPIURL, "face demo service URL")
	flagSet.DurationVar(&cfg.StatsPollInterval, "stats-interval", cfg.StatsPollInterval, "stats refresh interval for watch")
	flagSet.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request timeout")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.BoolVar(&asJSON, "json", false, "print results as JSON")
	flagSet.Usage = func() { printHelp(flagSet) }
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("a command is required")
	}

	logger := cfg.NewLogger(os.Stderr)
	api := apiclient.NewFaceAPI(cfg.FaceAPIURL, cfg.RequestTimeout, logger)
	device := capture.NewFileDevice("")
	ctrl := demo.New(api, device, demo.Options{
		StatsInterval: cfg.StatsPollInterval,
		AutoAdvance:   cfg.AutoAdvance,
		ReadyTimeout:  cfg.DeviceReadyTimeout,
		MaxWidth:      cfg.CaptureMaxWidth,
		Logger:        logger,
	})
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := printer{w: out, json: asJSON}
	command, params := rest[0], rest[1:]
	switch command {
	case "stats":
		stats, err := api.Stats(ctx)
		if err != nil {
			return err
		}
		return p.stats(stats)

	case "list":
		people, err := ctrl.List(ctx)
		if err != nil {
			return err
		}
		return p.people(people)

	case "register":
		if len(params) != 2 {
			return fmt.Errorf("usage: facedemo register <name> <image>")
		}
		device.SetPath(params[1])
		msg, err := ctrl.Register(ctx, params[0])
		if err != nil {
			return err
		}
		return p.message(msg)

	case "recognize":
		if len(params) != 1 {
			return fmt.Errorf("usage: facedemo recognize <image>")
		}
		device.SetPath(params[0])
		rec, err := ctrl.Recognize(ctx)
		if err != nil {
			return err
		}
		return p.recognition(rec)

	case "delete":
		if len(params) != 1 {
			return fmt.Errorf("usage: facedemo delete <name>")
		}
		msg, err := ctrl.Delete(ctx, params[0])
		if err != nil {
			return err
		}
		return p.message(msg)

	case "watch":
		return watch(ctx, ctrl, p)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// watch prints the stats every time the poller delivers new ones, until
// interrupted.
func watch(ctx context.Context, ctrl *demo.Controller, p printer) error {
	updates := make(chan model.FaceStats, 1)
	var last *model.FaceStats
	ctrl.Subscribe(func(s demo.State) {
		if s.Stats == nil || s.Stats == last {
			return
		}
		last = s.Stats
		select {
		case updates <- *s.Stats:
		default:
		}
	})
	ctrl.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case stats := <-updates:
			if err := p.stats(stats); err != nil {
				return err
			}
		}
	}
}

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) message(msg string) error {
	if p.json {
		return p.encode(map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func (p printer) stats(s model.FaceStats) error {
	if p.json {
		return p.encode(s)
	}
	_, err := fmt.Fprintf(p.w, "%s: %d faces, %d people %v\n", s.Status, s.RegisteredFaces, s.UniquePeople, s.People)
	return err
}

func (p printer) people(people []model.PersonSamples) error {
	if p.json {
		return p.encode(people)
	}
	if len(people) == 0 {
		_, err := fmt.Fprintln(p.w, "no faces registered")
		return err
	}
	for _, person := range people {
		if _, err := fmt.Fprintf(p.w, "%-30s %d samples\n", person.Name, person.SampleCount); err != nil {
			return err
		}
	}
	return nil
}

func (p printer) recognition(r model.Recognition) error {
	if p.json {
		return p.encode(r)
	}
	if !r.Recognized {
		_, err := fmt.Fprintln(p.w, r.Message)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s (%s, %.1f%%)\n", r.Message, r.Name, r.Confidence)
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `facedemo: register and recognize faces against the face demo service.

Usage:
  facedemo [flags] <command> [args]

Commands:
  stats                   service status and gallery size
  list                    enrolled people and their sample counts
  register <name> <image> enroll a photo under name
  recognize <image>       identify the person in a photo
  delete <name>           remove every sample of name
  watch                   print the stats as they change

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
