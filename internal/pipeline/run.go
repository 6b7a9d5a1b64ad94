package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/store"
	"github.com/phsayre/pdf-uploader/internal/transfer"
)

// File outcomes reported to an Observer.
const (
	OutcomeUploaded  = "uploaded"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeAnomaly   = "anomaly"
)

// FileOutcome describes how one file was handled.
type FileOutcome struct {
	Identifier string `json:"identifier"`
	Path       string `json:"path"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
}

// Observer receives pass progress. Calls are made synchronously from the
// pass, so implementations must not block.
type Observer interface {
	RunStarted(runID string, files int)
	FileHandled(runID string, outcome FileOutcome)
	RunCompleted(result *RunResult)
}

// Uploader transfers a file into the record store.
type Uploader interface {
	Upload(ctx context.Context, id, path string) (*transfer.Stats, error)
}

// Config holds configuration for the runner.
type Config struct {
	// WatchDir is scanned for files on every pass.
	WatchDir string

	// ArchiveDir receives uploaded files.
	ArchiveDir string

	// ErrorDir receives flagged files and failed transfers.
	ErrorDir string

	// DuplicateDir receives files that were already converted.
	// Default: ErrorDir.
	DuplicateDir string

	// Logger for pass activity
	Logger *zap.Logger

	// Observer is optional.
	Observer Observer
}

// Runner executes passes. A Runner must not run passes concurrently; the
// watch directory has a single writer.
type Runner struct {
	records  store.Store
	uploader Uploader
	reporter *Reporter
	config   *Config
	log      *zap.Logger
	now      func() time.Time
}

// New creates a runner.
func New(records store.Store, uploader Uploader, reporter *Reporter, config *Config) (*Runner, error) {
	if records == nil {
		return nil, errors.New("record store cannot be nil")
	}
	if uploader == nil {
		return nil, errors.New("uploader cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.WatchDir == "" || config.ArchiveDir == "" || config.ErrorDir == "" {
		return nil, errors.New("watch, archive and error directories are required")
	}
	if config.DuplicateDir == "" {
		config.DuplicateDir = config.ErrorDir
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Runner{
		records:  records,
		uploader: uploader,
		reporter: reporter,
		config:   config,
		log:      config.Logger,
		now:      time.Now,
	}, nil
}

// Run executes one pass. It returns an error only when the watch directory
// cannot be listed; per-file errors are logged and collected in the result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	res := newRunResult(r.now())

	tasks, err := Enumerate(r.config.WatchDir)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		res.Duration = r.now().Sub(res.StartedAt)
		return res, nil
	}

	log := r.log.With(zap.String("run_id", res.RunID))
	log.Debug("pass started", zap.Int("files", len(tasks)))
	if r.config.Observer != nil {
		r.config.Observer.RunStarted(res.RunID, len(tasks))
	}

	for _, task := range tasks {
		r.process(ctx, res, task)
	}

	r.quarantineFailures(ctx, res)
	if err := r.reporter.Report(ctx, UploadError, res.FailedUploads); err != nil {
		log.Error("failed to report upload errors", zap.Error(err))
	}
	if err := r.reporter.Report(ctx, DuplicateError, res.AlreadyConverted); err != nil {
		log.Error("failed to report duplicates", zap.Error(err))
	}

	res.Duration = r.now().Sub(res.StartedAt)
	if res.Uploaded > 0 {
		log.Info(fmt.Sprintf("%d file(s) uploaded.", res.Uploaded))
	}
	log.Debug("pass finished",
		zap.Int("uploaded", res.Uploaded),
		zap.Int("failed", len(res.FailedUploads)),
		zap.Int("duplicates", len(res.AlreadyConverted)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("anomalies", len(res.Anomalies)),
		zap.Duration("duration", res.Duration),
	)
	if r.config.Observer != nil {
		r.config.Observer.RunCompleted(res)
	}
	return res, nil
}

// process classifies one file, uploads it when eligible and applies the
// outcome. A file that cannot be classified is left where it is.
func (r *Runner) process(ctx context.Context, res *RunResult, task *FileTask) {
	verdict, err := Classify(ctx, r.records, task)
	if err != nil {
		r.log.Error("failed to classify file, leaving it for the next pass",
			zap.String("path", task.Path), zap.Error(err))
		res.Skipped = append(res.Skipped, task)
		r.observe(res, task, OutcomeSkipped, err)
		return
	}

	var uploadErr error
	if verdict == Eligible {
		var stats *transfer.Stats
		stats, uploadErr = r.uploader.Upload(ctx, task.Identifier, task.Path)
		if uploadErr == nil {
			r.log.Debug("transferred",
				zap.String("id", task.Identifier),
				zap.Int("chunks", stats.Chunks),
				zap.Int64("bytes", stats.Bytes))
		}
	}
	r.handle(ctx, res, task, verdict, uploadErr)
}

func (r *Runner) observe(res *RunResult, task *FileTask, outcome string, err error) {
	if r.config.Observer == nil {
		return
	}
	o := FileOutcome{
		Identifier: task.Identifier,
		Path:       task.Path,
		Outcome:    outcome,
	}
	if err != nil {
		o.Error = err.Error()
	} else if outcome == OutcomeFailed {
		o.Error = task.Reason
	}
	r.config.Observer.FileHandled(res.RunID, o)
}

// Enumerate lists the files in dir in the order the directory returns them.
// Subdirectories are skipped.
func Enumerate(dir string) ([]*FileTask, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch directory: %w", err)
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch directory: %w", err)
	}

	tasks := make([]*FileTask, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		task := NewFileTask(filepath.Join(dir, e.Name()))
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
