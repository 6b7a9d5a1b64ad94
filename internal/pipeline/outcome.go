package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/relocate"
)

// DuplicateNotice is written to converter_errormsg of a record whose file
// arrived again after it was already uploaded.
const DuplicateNotice = "Previously converted and uploaded. Stopped from re-uploading."

// ReasonFlagged is the failure reason of a file whose record already carries a
// converter error.
const ReasonFlagged = "record flagged with converter error"

// FailureMessage is written to converter_errormsg of a quarantined file.
func FailureMessage(reason, quarantinePath string) string {
	if reason == "" {
		return fmt.Sprintf("Failed to upload: (%s)", quarantinePath)
	}
	return fmt.Sprintf("Failed to upload: %s (%s)", reason, quarantinePath)
}

// DuplicateMessage is written to converter_errormsg of a quarantined duplicate.
func DuplicateMessage(quarantinePath string) string {
	return fmt.Sprintf("%s (%s)", DuplicateNotice, quarantinePath)
}

// handle applies the outcome of one file. uploadErr is the transfer result
// of an Eligible file and is ignored otherwise.
func (r *Runner) handle(ctx context.Context, res *RunResult, task *FileTask, verdict Verdict, uploadErr error) {
	switch verdict {
	case AlreadyConverted:
		r.handleDuplicate(ctx, res, task)
	case Flagged:
		task.Reason = ReasonFlagged
		res.FailedUploads = append(res.FailedUploads, task)
		r.log.Warn("record flagged with converter error, deferring to failure pass",
			zap.String("id", task.Identifier), zap.String("path", task.Path))
	case Eligible:
		if uploadErr != nil {
			task.Reason = uploadErr.Error()
			res.FailedUploads = append(res.FailedUploads, task)
			r.log.Error("upload failed",
				zap.String("id", task.Identifier), zap.String("path", task.Path), zap.Error(uploadErr))
			return
		}
		r.handleUploaded(ctx, res, task)
	}
}

// handleDuplicate writes the duplicate notice naming the final quarantine
// path, then moves the file there.
func (r *Runner) handleDuplicate(ctx context.Context, res *RunResult, task *FileTask) {
	res.AlreadyConverted = append(res.AlreadyConverted, task)
	log := r.log.With(zap.String("id", task.Identifier), zap.String("path", task.Path))

	dest, err := relocate.FreeName(r.config.DuplicateDir, filepath.Base(task.Path))
	if err != nil {
		log.Error("failed to resolve duplicate destination", zap.Error(err))
		r.observe(res, task, OutcomeDuplicate, err)
		return
	}

	if err := r.records.SetErrorMessage(ctx, task.Identifier, DuplicateMessage(dest)); err != nil {
		log.Error("failed to record duplicate notice", zap.Error(err))
	}

	if err := relocate.Move(task.Path, dest); err != nil {
		log.Error("failed to quarantine duplicate", zap.String("dest", dest), zap.Error(err))
		r.observe(res, task, OutcomeDuplicate, err)
		return
	}
	task.Path = dest
	log.Warn("already converted, quarantined", zap.String("dest", dest))
	r.observe(res, task, OutcomeDuplicate, nil)
}

// handleUploaded marks the record uploaded and then archives the file. The
// record is updated first; a file left behind after a successful update is
// an anomaly, and the next pass quarantines it as a duplicate.
func (r *Runner) handleUploaded(ctx context.Context, res *RunResult, task *FileTask) {
	log := r.log.With(zap.String("id", task.Identifier), zap.String("path", task.Path))

	if err := r.records.MarkUploaded(ctx, task.Identifier); err != nil {
		log.Error("transfer succeeded but record was not marked uploaded", zap.Error(err))
		res.Anomalies = append(res.Anomalies, Anomaly{
			Identifier: task.Identifier,
			Path:       task.Path,
			Detail:     fmt.Sprintf("content stored but record not marked uploaded: %v", err),
		})
		r.observe(res, task, OutcomeAnomaly, err)
		return
	}
	res.Uploaded++

	dest, err := relocate.MoveWithSuffix(task.Path, r.config.ArchiveDir)
	if err != nil {
		log.Error("record marked uploaded but file was not archived", zap.Error(err))
		res.Anomalies = append(res.Anomalies, Anomaly{
			Identifier: task.Identifier,
			Path:       task.Path,
			Detail:     fmt.Sprintf("record marked uploaded but file not archived: %v", err),
		})
		r.observe(res, task, OutcomeAnomaly, err)
		return
	}
	task.Path = dest
	log.Info("uploaded", zap.String("dest", dest))
	r.observe(res, task, OutcomeUploaded, nil)
}

// quarantineFailures marks every failed task and moves it to the error
// directory, replacing any stale file of the same name.
func (r *Runner) quarantineFailures(ctx context.Context, res *RunResult) {
	for _, task := range res.FailedUploads {
		log := r.log.With(zap.String("id", task.Identifier), zap.String("path", task.Path))
		dest := filepath.Join(r.config.ErrorDir, filepath.Base(task.Path))

		if err := r.records.MarkFailed(ctx, task.Identifier, FailureMessage(task.Reason, dest)); err != nil {
			log.Error("failed to mark record failed", zap.Error(err))
		}

		moved, err := relocate.MoveReplacing(task.Path, r.config.ErrorDir)
		if err != nil {
			log.Error("failed to quarantine file", zap.Error(err))
			r.observe(res, task, OutcomeFailed, err)
			continue
		}
		task.Path = moved
		log.Warn("quarantined", zap.String("dest", moved), zap.String("reason", task.Reason))
		r.observe(res, task, OutcomeFailed, nil)
	}
}
