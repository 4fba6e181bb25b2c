// Package postgres is the PostgreSQL implementation of the voting store.
//
// Every conditional write is a single UPDATE guarded by its precondition and
// judged by RowsAffected; counters are adjusted in place with col = col + $n.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"agora/internal/voting/ports"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// PostgresStore implements ports.Store.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// New constructs a PostgreSQL-backed voting store.
func New(db *sql.DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx runs fn inside a transaction carried by the ctx it receives.
// Nested calls join the outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context) tx.Executor {
	return tx.Execer(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var _ ports.Store = (*PostgresStore)(nil)
