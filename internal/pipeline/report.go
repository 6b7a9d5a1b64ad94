package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phsayre/pdf-uploader/internal/notify"
)

// ReportKind selects the notification sent for a list of files.
type ReportKind int

const (
	UploadError ReportKind = iota
	DuplicateError
)

// Label is the subject prefix of the notification.
func (k ReportKind) Label() string {
	if k == DuplicateError {
		return "PDF Already Uploaded Error"
	}
	return "PDF Upload Error"
}

func (k ReportKind) String() string {
	if k == DuplicateError {
		return "duplicate"
	}
	return "upload"
}

// ReportHeader is the first line of every notification body.
const ReportHeader = "Errors occurred while attempting to upload the following files:"

// MessageReader reads converter_errormsg of a record.
type MessageReader interface {
	ErrorMessage(ctx context.Context, id string) (string, error)
}

// ReporterConfig holds notification addressing.
type ReporterConfig struct {
	From string
	To   string

	// TimeFormat formats the timestamp in the subject.
	TimeFormat string
}

// DefaultReporterConfig returns the defaults.
func DefaultReporterConfig() *ReporterConfig {
	return &ReporterConfig{TimeFormat: time.DateTime}
}

// Reporter sends one notification per list of failed or duplicate files.
type Reporter struct {
	notifier notify.Notifier
	records  MessageReader
	config   *ReporterConfig
	now      func() time.Time
}

// NewReporter creates a reporter.
func NewReporter(n notify.Notifier, records MessageReader, config *ReporterConfig) (*Reporter, error) {
	if n == nil {
		return nil, errors.New("notifier cannot be nil")
	}
	if records == nil {
		return nil, errors.New("record reader cannot be nil")
	}
	if config == nil {
		config = DefaultReporterConfig()
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.DateTime
	}
	return &Reporter{notifier: n, records: records, config: config, now: time.Now}, nil
}

// Report notifies the operator about tasks. It does nothing for an empty
// list. The returned error is the dispatch error; it is never retried.
func (r *Reporter) Report(ctx context.Context, kind ReportKind, tasks []*FileTask) error {
	if len(tasks) == 0 {
		return nil
	}
	msg := notify.Message{
		From:    r.config.From,
		To:      r.config.To,
		Subject: fmt.Sprintf("%s: %s", kind.Label(), r.now().Format(r.config.TimeFormat)),
		Body:    r.Body(ctx, tasks),
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s report: %w", kind, err)
	}
	return nil
}

// Body composes the notification body. The message of each record is read
// again so that it reflects updates made during the pass.
func (r *Reporter) Body(ctx context.Context, tasks []*FileTask) string {
	var b strings.Builder
	b.WriteString(ReportHeader)
	b.WriteString("\n")
	for i, task := range tasks {
		msg, err := r.records.ErrorMessage(ctx, task.Identifier)
		if err != nil {
			msg = fmt.Sprintf("<unable to read message: %v>", err)
		}
		fmt.Fprintf(&b, "%d) %s | %s\n", i, task.Path, msg)
	}
	return b.String()
}
