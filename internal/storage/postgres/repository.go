package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultQueryTimeout bounds every repository call when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// Repository implements storage.Repository with PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	tx      pgx.Tx
	timeout time.Duration
}

func NewRepository(pool *pgxpool.Pool, timeout time.Duration) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Repository{pool: pool, timeout: timeout}, nil
}

func (r *Repository) Users() users.Repository {
	return &UserRepository{conn: r.conn()}
}

func (r *Repository) Events() events.Repository {
	return &EventRepository{conn: r.conn()}
}

func (r *Repository) Registrations() registrations.Repository {
	return &RegistrationRepository{conn: r.conn()}
}

// WithTx executes fn within a database transaction. Nested calls reuse the
// outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &Repository{pool: r.pool, tx: tx, timeout: r.timeout}
	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) conn() conn {
	var db queryer = r.pool
	if r.tx != nil {
		db = r.tx
	}
	return conn{timeout: r.timeout, db: instrumented{db}}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// conn is the pool or transaction a repository runs against, plus the per-call timeout.
type conn struct {
	db      queryer
	timeout time.Duration
}

func (c conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// inTx runs fn in a transaction, or in a savepoint when already inside one.
func (c conn) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, c.db, fn)
}

// instrumented records query latency and errors for every statement.
type instrumented struct {
	queryer
}

func (i instrumented) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := i.queryer.Query(ctx, sql, args...)
	metrics.RecordQuery(operation(sql), start, err)
	return rows, err
}

func (i instrumented) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	row := i.queryer.QueryRow(ctx, sql, args...)
	metrics.RecordQuery(operation(sql), start, nil)
	return row
}

func (i instrumented) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := i.queryer.Exec(ctx, sql, args...)
	metrics.RecordQuery(operation(sql), start, err)
	return tag, err
}

// operation is the leading SQL keyword, used as the metric label.
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
