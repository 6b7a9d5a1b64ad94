// Package pipeline runs upload passes over the watch directory.
//
// A pass enumerates the watch directory, classifies every file against the
// record store, uploads eligible files and relocates each file by outcome:
//
//   - uploaded files go to the archive directory
//   - files already converted go to the duplicate directory
//   - flagged files and failed transfers go to the error directory
//
// Failures and duplicates are each reported to the operator in a single
// notification at the end of the pass. Files are processed one at a time.
package pipeline

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileTask is one file discovered in the watch directory.
type FileTask struct {
	// Identifier is the file base name without extension; it keys the record.
	Identifier string

	// Path is the current location of the file. It is updated as the file is
	// relocated.
	Path string

	// Reason describes why the upload failed (failed tasks only).
	Reason string
}

// NewFileTask returns a task for the file at path.
func NewFileTask(path string) FileTask {
	return FileTask{Identifier: Identifier(path), Path: path}
}

// Identifier derives the record identifier from a file path: the base name
// with its final extension removed.
func Identifier(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Verdict is the classification of a file.
type Verdict int

const (
	// Eligible files are uploaded.
	Eligible Verdict = iota
	// AlreadyConverted files have been uploaded before and are quarantined as
	// duplicates.
	AlreadyConverted
	// Flagged files carry a converter error and are quarantined.
	Flagged
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case AlreadyConverted:
		return "already_converted"
	case Flagged:
		return "flagged"
	default:
		return "unknown"
	}
}

// Anomaly records a divergence between the record store and the filesystem,
// such as a record marked uploaded whose file could not be archived.
type Anomaly struct {
	Identifier string `json:"identifier"`
	Path       string `json:"path"`
	Detail     string `json:"detail"`
}

// RunResult accumulates the outcome of one pass.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	// Uploaded counts files transferred, marked and archived.
	Uploaded int

	// FailedUploads holds flagged files and failed transfers in the order
	// they were seen.
	FailedUploads []*FileTask

	// AlreadyConverted holds duplicates in the order they were seen.
	AlreadyConverted []*FileTask

	// Skipped holds files whose classification failed. They are left in
	// the watch directory for the next pass.
	Skipped []*FileTask

	Anomalies []Anomaly
}

func newRunResult(now time.Time) *RunResult {
	return &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
}

// Files returns the number of files seen in the pass.
func (r *RunResult) Files() int {
	return r.Uploaded + len(r.FailedUploads) + len(r.AlreadyConverted) + len(r.Skipped)
}
