// Package daemon repeats upload passes.
//
// The daemon runs one pass immediately and then one pass per interval for as
// long as the looper file, when configured, reads "true". When a watch
// directory is set, files arriving there trigger the next pass early.
//
// A pass that has started always runs to completion; cancellation is only
// observed between passes.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/pipeline"
)

// Runner executes one pass.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the delay between the end of one pass and the next.
	Interval time.Duration

	// LooperPath names a file that must contain "true" for the daemon to
	// keep going. Empty means run until cancelled.
	LooperPath string

	// WatchDir, when set, is watched for arriving files.
	WatchDir string

	// DebounceInterval is how long to wait after the last arrival before
	// starting an early pass. This batches files copied in together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         time.Second,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           zap.NewNop(),
	}
}

// Stats summarizes the passes run so far.
type Stats struct {
	Passes    int
	Uploaded  int
	Failed    int
	Duplicate int
	Errors    int
	LastRun   time.Time
}

// Daemon repeats passes of a runner.
type Daemon struct {
	runner Runner
	config *Config
	log    *zap.Logger

	statsMu sync.Mutex
	stats   Stats
}

// New creates a daemon with default configuration.
func New(runner Runner) (*Daemon, error) {
	return NewWithConfig(runner, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(runner Runner, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 250 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Daemon{
		runner: runner,
		config: config,
		log:    config.Logger,
	}, nil
}

// Start runs passes until the looper file stops reading "true" or ctx is
// cancelled. Cancellation never interrupts a pass in progress.
func (d *Daemon) Start(ctx context.Context) error {
	var events <-chan string
	var watchErrs <-chan error

	if d.config.WatchDir != "" {
		fw, err := NewFileWatcher()
		if err != nil {
			return err
		}
		if err := fw.Start(d.config.WatchDir); err != nil {
			_ = fw.Stop()
			return err
		}
		defer func() {
			if err := fw.Stop(); err != nil {
				d.log.Warn("failed to stop watcher", zap.Error(err))
			}
		}()
		events, watchErrs = fw.Events(), fw.Errors()
		d.log.Info("watching directory", zap.String("dir", d.config.WatchDir))
	}

	d.log.Info("daemon started",
		zap.Duration("interval", d.config.Interval),
		zap.String("looper", d.config.LooperPath))

	for {
		d.pass(ctx)

		if ctx.Err() != nil {
			d.log.Info("shutdown signal received, daemon stopped")
			return nil
		}
		if !d.ShouldContinue() {
			d.log.Info("looper file no longer reads true, daemon stopped")
			return nil
		}
		if !d.wait(ctx, events, watchErrs) {
			d.log.Info("shutdown signal received, daemon stopped")
			return nil
		}
	}
}

// pass runs one pass detached from cancellation of ctx.
func (d *Daemon) pass(ctx context.Context) {
	res, err := d.runner.Run(context.WithoutCancel(ctx))

	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.stats.Passes++
	d.stats.LastRun = time.Now()
	if err != nil {
		d.stats.Errors++
		d.log.Error("pass failed", zap.Error(err))
		return
	}
	d.stats.Uploaded += res.Uploaded
	d.stats.Failed += len(res.FailedUploads)
	d.stats.Duplicate += len(res.AlreadyConverted)
}

// wait blocks for the interval, an early wake-up from the watcher, or
// cancellation. It returns false on cancellation.
func (d *Daemon) wait(ctx context.Context, events <-chan string, watchErrs <-chan error) bool {
	timer := time.NewTimer(d.config.Interval)
	defer timer.Stop()

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-timer.C:
			return true

		case <-fire:
			return true

		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.log.Debug("file arrived", zap.String("path", path))
			if debounce == nil {
				debounce = time.NewTimer(d.config.DebounceInterval)
				fire = debounce.C
			} else {
				debounce.Reset(d.config.DebounceInterval)
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			d.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// ShouldContinue reports whether the looper file allows another pass. A
// missing or unreadable looper file stops the daemon.
func (d *Daemon) ShouldContinue() bool {
	if d.config.LooperPath == "" {
		return true
	}
	ok, err := ReadLooper(d.config.LooperPath)
	if err != nil {
		d.log.Warn("failed to read looper file", zap.String("path", d.config.LooperPath), zap.Error(err))
		return false
	}
	return ok
}

// ReadLooper reports whether the looper file at path reads "true", ignoring
// surrounding whitespace and case.
func ReadLooper(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("looper file %s does not exist: %w", path, err)
		}
		return false, fmt.Errorf("failed to read looper file: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(string(data)), "true"), nil
}

// GetStats returns a snapshot of the pass counters.
func (d *Daemon) GetStats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}
