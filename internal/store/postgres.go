package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production record store.
//
// Table and function names come from configuration and are quoted with
// pgx.Identifier; identifiers and messages are always bound as parameters.
type Postgres struct {
	pool *pgxpool.Pool

	items   string
	writeFn string
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects a pool to opts.URL and pings it.
func OpenPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("postgres connection string cannot be empty")
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgres(pool, opts), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, opts Options) *Postgres {
	table := opts.ItemsTable
	if table == "" {
		table = "items"
	}
	fn := opts.WriteFunction
	if fn == "" {
		fn = "writeconvertedpdf"
	}

	return &Postgres{
		pool:    pool,
		items:   qualify(opts.Schema, table),
		writeFn: qualify(opts.Schema, fn),
	}
}

func qualify(schema, name string) string {
	if schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{schema, name}.Sanitize()
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Converted implements Store.
func (p *Postgres) Converted(ctx context.Context, id string) (bool, error) {
	return p.readFlag(ctx, "converted", id)
}

// ConverterError implements Store.
func (p *Postgres) ConverterError(ctx context.Context, id string) (bool, error) {
	return p.readFlag(ctx, "converter_error", id)
}

func (p *Postgres) readFlag(ctx context.Context, field, id string) (bool, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, pgx.Identifier{field}.Sanitize(), p.items)

	var v *bool
	err = conn.QueryRow(ctx, query, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s for %s: %w", field, id, err)
	}
	if v == nil {
		return false, fmt.Errorf("item %s %s is NULL: %w", id, field, ErrMalformed)
	}
	return *v, nil
}

// ErrorMessage implements Store.
func (p *Postgres) ErrorMessage(ctx context.Context, id string) (string, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	query := fmt.Sprintf(`SELECT converter_errormsg FROM %s WHERE id = $1`, p.items)

	var msg *string
	err = conn.QueryRow(ctx, query, id).Scan(&msg)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read converter_errormsg for %s: %w", id, err)
	}
	if msg == nil {
		return "", nil
	}
	return *msg, nil
}

// MarkUploaded implements Store.
func (p *Postgres) MarkUploaded(ctx context.Context, id string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET converted = true, converter_error = false, converter_errormsg = '' WHERE id = $1`, p.items)
	return p.exec(ctx, id, query, id)
}

// MarkFailed implements Store.
func (p *Postgres) MarkFailed(ctx context.Context, id, msg string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET converted = false, converter_error = true, converter_errormsg = $2 WHERE id = $1`, p.items)
	return p.exec(ctx, id, query, id, msg)
}

// SetErrorMessage implements Store.
func (p *Postgres) SetErrorMessage(ctx context.Context, id, msg string) error {
	query := fmt.Sprintf(`UPDATE %s SET converter_errormsg = $2 WHERE id = $1`, p.items)
	return p.exec(ctx, id, query, id, msg)
}

func (p *Postgres) exec(ctx context.Context, id, query string, args ...any) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// WriteConverted implements Store by calling the server-side write function.
func (p *Postgres) WriteConverted(ctx context.Context, id, chunk string, start, end bool) (string, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	query := fmt.Sprintf(`SELECT %s($1, $2, $3, $4)::text`, p.writeFn)

	var resp *string
	if err := conn.QueryRow(ctx, query, id, chunk, start, end).Scan(&resp); err != nil {
		return "", fmt.Errorf("failed to call %s for %s: %w", p.writeFn, id, err)
	}
	if resp == nil {
		return "", nil
	}
	return *resp, nil
}
