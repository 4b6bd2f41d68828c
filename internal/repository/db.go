package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrStaleState is returned when a conditional update matched no row
	// because the guarded state changed in the meantime.
	ErrStaleState = errors.New("repository: state changed")
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateInvalidText     = "22P02"
)

// DB bundles the pool with the per-operation deadline and the logger used at
// the repository boundary.
type DB struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewDB wraps a pool.
func NewDB(pool *pgxpool.Pool, timeout time.Duration, logger *zap.Logger) *DB {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{pool: pool, timeout: timeout, logger: logger}
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.timeout)
}

// fail translates driver errors. Sentinels pass through; everything else is
// logged here and surfaces as a store error.
func (db *DB) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrStaleState) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, pgErr.ConstraintName)
		case sqlStateInvalidText:
			// malformed identifiers cannot match any row
			return ErrNotFound
		}
	}

	retryable := pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded)
	db.logger.Error("store operation failed",
		zap.String("op", op),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	return apperrors.NewStoreError(fmt.Errorf("%s: %w", op, err), retryable)
}
