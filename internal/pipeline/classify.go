package pipeline

import (
	"context"
	"fmt"

	"github.com/phsayre/pdf-uploader/internal/store"
)

// StatusReader reads the status flags of a record.
type StatusReader interface {
	Converted(ctx context.Context, id string) (bool, error)
	ConverterError(ctx context.Context, id string) (bool, error)
}

// Classify determines what to do with a task. converted is checked first, so
// a record that is both converted and flagged is a duplicate. Classify has no
// side effects.
func Classify(ctx context.Context, r StatusReader, task *FileTask) (Verdict, error) {
	if task.Identifier == "" {
		return Eligible, fmt.Errorf("cannot derive an identifier from %s: %w", task.Path, store.ErrMalformed)
	}

	converted, err := r.Converted(ctx, task.Identifier)
	if err != nil {
		return Eligible, fmt.Errorf("failed to read converted for %s: %w", task.Identifier, err)
	}
	if converted {
		return AlreadyConverted, nil
	}

	flagged, err := r.ConverterError(ctx, task.Identifier)
	if err != nil {
		return Eligible, fmt.Errorf("failed to read converter_error for %s: %w", task.Identifier, err)
	}
	if flagged {
		return Flagged, nil
	}
	return Eligible, nil
}
