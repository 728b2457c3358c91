//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfstop/cfstop/internal/config"
	"github.com/cfstop/cfstop/internal/sampler"
	"github.com/cfstop/cfstop/internal/scheddebug"
	"github.com/cfstop/cfstop/internal/ui"
)

const version = "0.1.0"

// Exit codes. Environment failures get a one-line message with no
// internals; anything unexpected is an internal defect and dumps full
// diagnostics to the log.
const (
	exitOK        = 0
	exitUsage     = 1
	exitInterrupt = 2
	exitEnv       = 3
	exitInternal  = 4
)

var (
	errInterrupted = errors.New("interrupted")

	// errEnv marks environment-tier failures found before the loop runs.
	errEnv = errors.New("environment failure")
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closeLog := func() {}
	// Registered before the recover below so the log sink outlives it.
	defer func() { closeLog() }()

	// Unexpected failures are trapped once, here at the outermost level.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("internal failure", "panic", r, "stack", string(debug.Stack()))
			fmt.Fprintln(os.Stderr, "cfstop: internal error, this is a defect; details in the log")
			code = exitInternal
		}
	}()

	cfg := config.Default()
	var (
		intervalSec float64
		logPath     string
		confPath    string
	)

	root := &cobra.Command{
		Use:   "cfstop",
		Short: "Live dashboard of CFS task-group scheduling",
		Long: `cfstop reconstructs the kernel's CPU-scheduling hierarchy for control
groups and shows, per group and per CPU, derived usage, shares and task
counts. It is a read-only observer: nothing under the cgroup mounts is
ever written.`,
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &configError{fmt.Errorf("unexpected arguments: %v", args)}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if confPath != "" {
				if err := cfg.LoadFile(confPath); err != nil {
					return &configError{err}
				}
			}
			if cmd.Flags().Changed("interval") {
				cfg.Interval = time.Duration(intervalSec * float64(time.Second))
			}
			if cmd.Flags().Changed("log") {
				cfg.LogPath = logPath
			}
			cfg.FromEnv()
			if err := cfg.Validate(); err != nil {
				return &configError{err}
			}

			l, cl, err := openLog(cfg.LogPath)
			if err != nil {
				return err
			}
			logger, closeLog = l, cl

			numCPU, err := sampler.NumCPU()
			if err != nil || numCPU < 1 {
				return fmt.Errorf("%w: cannot determine CPU count", errEnv)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = ui.Run(ctx, cfg, numCPU, logger)
			if ctx.Err() != nil {
				return errInterrupted
			}
			return err
		},
	}
	root.Flags().Float64VarP(&intervalSec, "interval", "i", cfg.Interval.Seconds(),
		"refresh interval in seconds, fractional allowed [0.1, 255]")
	root.Flags().StringVarP(&logPath, "log", "l", "", "diagnostic log file path")
	root.Flags().StringVarP(&confPath, "config", "c", "", "YAML config file")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configError{err}
	})

	err := root.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInterrupted):
		return exitInterrupt
	case errors.Is(err, scheddebug.ErrSnapshot),
		errors.Is(err, sampler.ErrCgroup),
		errors.Is(err, errEnv):
		fmt.Fprintln(os.Stderr, "cfstop:", err)
		return exitEnv
	case isConfigError(err):
		fmt.Fprintln(os.Stderr, "cfstop:", err)
		return exitUsage
	default:
		logger.Error("internal failure", "err", err)
		fmt.Fprintln(os.Stderr, "cfstop: internal error, this is a defect; details in the log")
		return exitInternal
	}
}

// isConfigError separates operator mistakes (bad flag values, bad config
// file) from genuine internal defects.
func isConfigError(err error) bool {
	var ce *configError
	return errors.As(err, &ce)
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func openLog(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, &configError{fmt.Errorf("open log %s: %w", path, err)}
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { _ = f.Close() }, nil
}
