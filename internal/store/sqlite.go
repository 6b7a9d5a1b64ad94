package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite is the embedded record store backed by ncruces/go-sqlite3.
//
// Converted files are kept in a converted_pdfs table next to the items table.
// The write procedure behaves like the server-side function of the PostgreSQL
// store: begin resets any previous content, chunks append decoded bytes, end
// marks the content complete. Every call answers ResponseOK or a diagnostic
// string.
type SQLite struct {
	conn *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database file at path.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &SQLite{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database, checkpointing the WAL first.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchemaContext creates the items and converted_pdfs tables.
// It is idempotent.
func (s *SQLite) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		converted INTEGER NOT NULL DEFAULT 0,
		converter_error INTEGER NOT NULL DEFAULT 0,
		converter_errormsg TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS converted_pdfs (
		item_id TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Converted implements Store.
func (s *SQLite) Converted(ctx context.Context, id string) (bool, error) {
	return s.readFlag(ctx, `SELECT converted FROM items WHERE id = ?`, "converted", id)
}

// ConverterError implements Store.
func (s *SQLite) ConverterError(ctx context.Context, id string) (bool, error) {
	return s.readFlag(ctx, `SELECT converter_error FROM items WHERE id = ?`, "converter_error", id)
}

// ErrorMessage implements Store.
func (s *SQLite) ErrorMessage(ctx context.Context, id string) (string, error) {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var msg sql.NullString
	err = conn.QueryRowContext(ctx, `SELECT converter_errormsg FROM items WHERE id = ?`, id).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read converter_errormsg for %s: %w", id, err)
	}
	return msg.String, nil
}

func (s *SQLite) readFlag(ctx context.Context, query, field, id string) (bool, error) {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var v sql.NullInt64
	err = conn.QueryRowContext(ctx, query, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s for %s: %w", field, id, err)
	}
	if !v.Valid {
		return false, fmt.Errorf("item %s %s is NULL: %w", id, field, ErrMalformed)
	}
	switch v.Int64 {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("item %s %s = %d: %w", id, field, v.Int64, ErrMalformed)
	}
}

// MarkUploaded implements Store.
func (s *SQLite) MarkUploaded(ctx context.Context, id string) error {
	return s.update(ctx, id,
		`UPDATE items SET converted = 1, converter_error = 0, converter_errormsg = '' WHERE id = ?`, id)
}

// MarkFailed implements Store.
func (s *SQLite) MarkFailed(ctx context.Context, id, msg string) error {
	return s.update(ctx, id,
		`UPDATE items SET converted = 0, converter_error = 1, converter_errormsg = ? WHERE id = ?`, msg, id)
}

// SetErrorMessage implements Store.
func (s *SQLite) SetErrorMessage(ctx context.Context, id, msg string) error {
	return s.update(ctx, id, `UPDATE items SET converter_errormsg = ? WHERE id = ?`, msg, id)
}

func (s *SQLite) update(ctx context.Context, id, query string, args ...any) error {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// WriteConverted implements Store.
func (s *SQLite) WriteConverted(ctx context.Context, id, chunk string, start, end bool) (string, error) {
	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	resp, err := writeConvertedTx(ctx, tx, id, chunk, start, end)
	if err != nil {
		return "", err
	}
	if resp != ResponseOK {
		return resp, nil
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return resp, nil
}

func writeConvertedTx(ctx context.Context, tx *sql.Tx, id, chunk string, start, end bool) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	switch {
	case start && end:
		return "start and end cannot both be set", nil

	case start:
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Sprintf("no item %s", id), nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up item %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO converted_pdfs (item_id, content, complete, updated_at)
		VALUES (?, zeroblob(0), 0, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			content = zeroblob(0),
			complete = 0,
			updated_at = excluded.updated_at
		`, id, now)
		if err != nil {
			return "", fmt.Errorf("failed to reset converted content for %s: %w", id, err)
		}
		return ResponseOK, nil

	case end:
		res, err := tx.ExecContext(ctx,
			`UPDATE converted_pdfs SET complete = 1, updated_at = ? WHERE item_id = ? AND complete = 0`, now, id)
		if err != nil {
			return "", fmt.Errorf("failed to finish converted content for %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Sprintf("transfer not started for %s", id), nil
		}
		return ResponseOK, nil

	default:
		data, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return "invalid chunk encoding", nil
		}

		var content []byte
		err = tx.QueryRowContext(ctx,
			`SELECT content FROM converted_pdfs WHERE item_id = ? AND complete = 0`, id).Scan(&content)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Sprintf("transfer not started for %s", id), nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read converted content for %s: %w", id, err)
		}

		content = append(content, data...)
		_, err = tx.ExecContext(ctx,
			`UPDATE converted_pdfs SET content = ?, updated_at = ? WHERE item_id = ?`, content, now, id)
		if err != nil {
			return "", fmt.Errorf("failed to append converted content for %s: %w", id, err)
		}
		return ResponseOK, nil
	}
}

// PutRecord inserts or replaces a record. Only the embedded store creates
// records; it stands in for the upstream process that owns them.
func (s *SQLite) PutRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("id is required")
	}

	query := `
	INSERT INTO items (id, converted, converter_error, converter_errormsg)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		converted = excluded.converted,
		converter_error = excluded.converter_error,
		converter_errormsg = excluded.converter_errormsg
	`

	_, err := s.conn.ExecContext(ctx, query, rec.ID, boolToInt(rec.Converted), boolToInt(rec.ConverterError), rec.ConverterErrorMsg)
	if err != nil {
		return fmt.Errorf("failed to put record %s: %w", rec.ID, err)
	}
	return nil
}

// ConvertedContent returns the bytes received by the write procedure for id
// and whether the transfer was completed with an end call.
func (s *SQLite) ConvertedContent(ctx context.Context, id string) ([]byte, bool, error) {
	var content []byte
	var complete int
	err := s.conn.QueryRowContext(ctx,
		`SELECT content, complete FROM converted_pdfs WHERE item_id = ?`, id).Scan(&content, &complete)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("converted content for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read converted content for %s: %w", id, err)
	}
	return content, complete == 1, nil
}

// RecordCount returns the number of records in the items table.
func (s *SQLite) RecordCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
