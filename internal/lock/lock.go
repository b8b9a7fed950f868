// Package lock provides the advisory run lock held across the executing and
// verifying stages, so two orchestrator instances pointed at the same
// database cannot interleave migrations. Postgres targets use a server-side
// advisory lock; file-based targets use a sibling lock file.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/gofrs/flock"

	"github.com/lockplane/initplane/database"
	"github.com/lockplane/initplane/internal/probe"
)

// Lock is an advisory mutual-exclusion handle around a run.
type Lock interface {
	// Acquire takes the lock or fails immediately if another instance
	// holds it. There is no waiting: a concurrent orchestrator run is a
	// deployment error, not a queueing problem.
	Acquire(ctx context.Context) error

	// Release gives the lock back.
	Release(ctx context.Context) error
}

// New builds the appropriate lock for the target. In-memory and remote
// libsql targets get a no-op lock; there is no meaningful cross-process
// resource to contend on.
func New(engine database.Engine, connStr string, db *sql.DB, logger *slog.Logger) Lock {
	switch engine {
	case database.EnginePostgres:
		return &advisoryLock{db: db, key: advisoryKey(), logger: logger}
	case database.EngineSQLite:
		if path := probe.SQLiteFilePath(connStr); path != "" {
			return &fileLock{fl: flock.New(path + ".initplane.lock"), logger: logger}
		}
	}
	return noopLock{}
}

// advisoryKey derives the session advisory lock key from the tool name, so
// every initplane instance contends on the same key.
func advisoryKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("initplane.run"))
	return int64(h.Sum64())
}

type advisoryLock struct {
	db     *sql.DB
	key    int64
	logger *slog.Logger
}

func (l *advisoryLock) Acquire(ctx context.Context) error {
	var acquired bool
	if err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("another orchestrator instance holds the advisory lock (key %d)", l.key)
	}
	l.logger.Info("advisory lock acquired", "key", l.key)
	return nil
}

func (l *advisoryLock) Release(ctx context.Context) error {
	var released bool
	if err := l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released); err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	if !released {
		l.logger.Warn("advisory lock was not held at release", "key", l.key)
	}
	return nil
}

type fileLock struct {
	fl     *flock.Flock
	logger *slog.Logger
}

func (l *fileLock) Acquire(ctx context.Context) error {
	locked, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to take file lock %s: %w", l.fl.Path(), err)
	}
	if !locked {
		return fmt.Errorf("another orchestrator instance holds the lock file %s", l.fl.Path())
	}
	l.logger.Info("lock file acquired", "path", l.fl.Path())
	return nil
}

func (l *fileLock) Release(ctx context.Context) error {
	return l.fl.Unlock()
}

type noopLock struct{}

func (noopLock) Acquire(ctx context.Context) error { return nil }
func (noopLock) Release(ctx context.Context) error { return nil }
