// Package builtins provides a small set of named callbacks a declarative
// YAML task list can reference by name. In a real deployment the host
// application supplies its own task.Callback values; builtins stands in for
// that host application so `taskkeeper serve` has something concrete to run
// out of the box.
package builtins

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// Registry returns the named callbacks available to the declarative config
// loader, bound against logger and the scheduler's state directory. db may
// be nil; db-vacuum then reports an error instead of running.
func Registry(logger *slog.Logger, stateDir string, db *sql.DB) map[string]task.Callback {
	return map[string]task.Callback{
		"log-rotate":   logRotate(logger, stateDir),
		"health-check": healthCheck(logger),
		"db-vacuum":    dbVacuum(logger, db),
	}
}

// logRotate renames taskkeeper.log in stateDir to taskkeeper.log.1 once its
// size reaches 10MiB, replacing any earlier taskkeeper.log.1.
func logRotate(logger *slog.Logger, stateDir string) func(context.Context) error {
	const maxSize = 10 * 1024 * 1024
	return func(ctx context.Context) error {
		path := filepath.Join(stateDir, "taskkeeper.log")
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Debug("log-rotate: no log file yet, nothing to do", "path", path)
				return nil
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() < maxSize {
			logger.Debug("log-rotate: below threshold, skipping", "size", info.Size())
			return nil
		}
		rotated := path + ".1"
		if err := os.Rename(path, rotated); err != nil {
			return fmt.Errorf("rotate %s: %w", path, err)
		}
		logger.Info("log-rotate: rotated log file", "from", path, "to", rotated)
		return nil
	}
}

// healthCheck records a liveness heartbeat. It stands in for whatever a real
// deployment's health probe looks like (pinging a dependency, checking disk
// space); here it just logs, so the scheduler itself has a visible exercised
// path.
func healthCheck(logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("health-check: ok", "checked_at", time.Now().UTC().Format(time.RFC3339))
		return nil
	}
}

// dbVacuum runs SQLite's VACUUM against db, reclaiming space left by deleted
// rows. Returns an error if db is nil, since VACUUM has nothing to target.
func dbVacuum(logger *slog.Logger, db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("db-vacuum: no database configured")
		}
		start := time.Now()
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
		logger.Info("db-vacuum: completed", "duration", time.Since(start))
		return nil
	}
}
