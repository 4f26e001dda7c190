package sqlite

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/jimezsa/jobwatch/internal/models"
)

// lockSuffix names the batch lock file kept next to the database.
const lockSuffix = ".refresh.lock"

// LockBatch takes an exclusive flock on the database's lock file. Every
// call opens its own handle, so two stores on one file exclude each other
// even inside a single process.
func (s *Store) LockBatch(_ context.Context) (func() error, error) {
	if s.path == ":memory:" {
		return func() error { return nil }, nil
	}

	lock := flock.New(s.path + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", models.ErrBatchLocked, lock.Path())
	}
	s.logger.Debug().Str("lock", lock.Path()).Msg("batch lock taken")
	return lock.Unlock, nil
}
