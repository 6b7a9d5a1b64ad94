// Package store provides the record store client used by the upload pipeline.
//
// The record store is the authoritative database tracking each item's
// conversion status. Every item is a pre-existing row keyed by identifier with
// three status fields:
//
//   - converted:          the converted PDF has been uploaded
//   - converter_error:    conversion or upload failed and needs an operator
//   - converter_errormsg: free-form operator message
//
// The store also exposes a stored write procedure that receives a converted
// file as a begin/chunk/end sequence of base64 text chunks.
//
// Two backends are provided:
//
//   - PostgreSQL (pgx): the production store. The write procedure is a
//     server-side function.
//   - SQLite (ncruces/go-sqlite3): an embedded store for local runs and tests.
//     The write procedure is implemented in Go with the same responses.
//
// All statements are parameterized. Each operation acquires a connection,
// runs its statement and releases the connection before returning.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResponseOK is the acknowledgment token returned by the write procedure.
const ResponseOK = "ok"

var (
	// ErrNotFound is returned when no record exists for an identifier.
	ErrNotFound = errors.New("record not found")

	// ErrMalformed is returned when a status field is NULL or cannot be
	// interpreted.
	ErrMalformed = errors.New("malformed record value")
)

// Record is a conversion record as stored in the record store.
type Record struct {
	ID                string `json:"id"`
	Converted         bool   `json:"converted"`
	ConverterError    bool   `json:"converter_error"`
	ConverterErrorMsg string `json:"converter_errormsg"`
}

// Store is the record store client.
//
// Implementations must be safe to call sequentially from a single pass; they
// hold no per-identifier state between calls.
type Store interface {
	// Converted reads the converted flag of a record.
	Converted(ctx context.Context, id string) (bool, error)

	// ConverterError reads the converter_error flag of a record.
	ConverterError(ctx context.Context, id string) (bool, error)

	// ErrorMessage reads converter_errormsg of a record.
	ErrorMessage(ctx context.Context, id string) (string, error)

	// MarkUploaded sets converted=true and clears both error fields.
	MarkUploaded(ctx context.Context, id string) error

	// MarkFailed sets converted=false, converter_error=true and the message.
	MarkFailed(ctx context.Context, id, msg string) error

	// SetErrorMessage sets converter_errormsg without touching the flags.
	SetErrorMessage(ctx context.Context, id, msg string) error

	// WriteConverted invokes the write procedure and returns its scalar
	// response. A response other than ResponseOK is not an error at this
	// layer; callers decide what to do with it.
	WriteConverted(ctx context.Context, id, chunk string, start, end bool) (string, error)

	// Close releases the underlying connection pool.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Driver is "postgres" or "sqlite".
	Driver string

	// URL is the connection string (postgres) or database file path (sqlite).
	URL string

	// Schema qualifies the items table and write function (postgres only).
	Schema string

	// ItemsTable is the table holding conversion records.
	ItemsTable string

	// WriteFunction is the stored write procedure (postgres only).
	WriteFunction string
}

// Open opens the backend named by opts.Driver.
//
// The SQLite backend creates its schema on open. The PostgreSQL backend
// expects the items table and write function to exist already.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, opts)
	case "sqlite", "sqlite3":
		db, err := OpenSQLite(opts.URL)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchemaContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// Get reads all three status fields of a record through s.
func Get(ctx context.Context, s Store, id string) (*Record, error) {
	converted, err := s.Converted(ctx, id)
	if err != nil {
		return nil, err
	}
	convErr, err := s.ConverterError(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := s.ErrorMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:                id,
		Converted:         converted,
		ConverterError:    convErr,
		ConverterErrorMsg: msg,
	}, nil
}
