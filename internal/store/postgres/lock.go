package postgres

import (
	"context"
	"fmt"

	"github.com/jimezsa/jobwatch/internal/models"
)

// batchLockKey is the advisory lock id shared by every jobwatch process.
const batchLockKey int64 = 0x6a6f6277617463

// minConns leaves room for refresh writes while the batch lock holds its
// connection.
const minConns = 2

// LockBatch takes a transaction-scoped advisory lock and keeps the
// transaction open until release is called.
func (s *Store) LockBatch(ctx context.Context) (func() error, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin lock transaction: %w", err)
	}

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, batchLockKey).Scan(&locked); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("rollback lock transaction")
		}
		return nil, fmt.Errorf("%w: advisory lock %d", models.ErrBatchLocked, batchLockKey)
	}

	release := func() error {
		return tx.Rollback(context.WithoutCancel(ctx))
	}
	return release, nil
}
