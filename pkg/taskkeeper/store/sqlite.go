// SQLiteStore persists SchedulerState in a SQLite database, using
// database/sql transactions (BEGIN/COMMIT) for atomicity and
// serialization. One meta row carries the scheduler-level fields and one
// row per task carries its record; the whole snapshot is loaded, mutated
// and written back under a single transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/errs"
	"github.com/jholhewres/taskkeeper/pkg/taskkeeper/task"
)

// SQLiteStore is the durable, file-backed StateStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string, now func() time.Time) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "", err)
	}
	// SQLite allows only one writer; a single connection keeps Transaction
	// calls serialized at the driver level, matching the "concurrent
	// transactions serialize" contract without extra locking here.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindStorage, "", err)
	}

	return &SQLiteStore{db: db, now: now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS scheduler_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	poll_interval_ms INTEGER
);

CREATE TABLE IF NOT EXISTS task_records (
	name TEXT PRIMARY KEY,
	cron_expression TEXT NOT NULL,
	retry_delay_ms INTEGER NOT NULL,
	last_attempt_time TEXT,
	last_success_time TEXT,
	last_failure_time TEXT,
	running INTEGER NOT NULL DEFAULT 0
);
`

// Transaction implements StateStore: the whole SchedulerState is loaded
// inside one database/sql transaction, handed to f for mutation, and
// written back before commit. Any error from f (or from the load/save
// steps) rolls the transaction back.
func (s *SQLiteStore) Transaction(ctx context.Context, f func(*task.SchedulerState) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	state, err := loadState(tx, s.now())
	if err != nil {
		return errs.Wrap(errs.KindStorage, "", err)
	}

	if err := f(state); err != nil {
		return err
	}

	if err := saveState(tx, state); err != nil {
		return errs.Wrap(errs.KindStorage, "", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorage, "", err)
	}
	committed = true
	return nil
}

func loadState(tx *sql.Tx, now time.Time) (*task.SchedulerState, error) {
	state := &task.SchedulerState{Tasks: make(map[string]*task.TaskRecord)}

	row := tx.QueryRow(`SELECT version, start_time, poll_interval_ms FROM scheduler_meta WHERE id = 1`)
	var startTimeStr string
	var pollIntervalMs sql.NullInt64
	err := row.Scan(&state.Version, &startTimeStr, &pollIntervalMs)
	switch {
	case err == sql.ErrNoRows:
		state.Version = task.CurrentVersion
		state.StartTime = now
		state.PollIntervalMs = 0
		return state, nil
	case err != nil:
		return nil, fmt.Errorf("load scheduler_meta: %w", err)
	}

	state.StartTime, err = time.Parse(time.RFC3339Nano, startTimeStr)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if pollIntervalMs.Valid {
		state.PollIntervalMs = pollIntervalMs.Int64
	}

	rows, err := tx.Query(`SELECT name, cron_expression, retry_delay_ms,
		last_attempt_time, last_success_time, last_failure_time, running
		FROM task_records`)
	if err != nil {
		return nil, fmt.Errorf("load task_records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec task.TaskRecord
		var lastAttempt, lastSuccess, lastFailure sql.NullString
		var running int
		if err := rows.Scan(&rec.Name, &rec.CronExpression, &rec.RetryDelayMs,
			&lastAttempt, &lastSuccess, &lastFailure, &running); err != nil {
			return nil, fmt.Errorf("scan task_record: %w", err)
		}
		rec.Running = running != 0
		rec.LastAttemptTime, err = parseNullTime(lastAttempt)
		if err != nil {
			return nil, err
		}
		rec.LastSuccessTime, err = parseNullTime(lastSuccess)
		if err != nil {
			return nil, err
		}
		rec.LastFailureTime, err = parseNullTime(lastFailure)
		if err != nil {
			return nil, err
		}
		state.Tasks[rec.Name] = &rec
	}
	return state, rows.Err()
}

func saveState(tx *sql.Tx, state *task.SchedulerState) error {
	_, err := tx.Exec(`INSERT INTO scheduler_meta (id, version, start_time, poll_interval_ms)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version,
			start_time = excluded.start_time, poll_interval_ms = excluded.poll_interval_ms`,
		state.Version, state.StartTime.UTC().Format(time.RFC3339Nano), nullableInt64(state.PollIntervalMs))
	if err != nil {
		return fmt.Errorf("save scheduler_meta: %w", err)
	}

	existing, err := tx.Query(`SELECT name FROM task_records`)
	if err != nil {
		return fmt.Errorf("list existing task_records: %w", err)
	}
	var existingNames []string
	for existing.Next() {
		var name string
		if err := existing.Scan(&name); err != nil {
			existing.Close()
			return fmt.Errorf("scan existing task_record name: %w", err)
		}
		existingNames = append(existingNames, name)
	}
	existing.Close()
	if err := existing.Err(); err != nil {
		return err
	}

	for _, name := range existingNames {
		if _, ok := state.Tasks[name]; !ok {
			if _, err := tx.Exec(`DELETE FROM task_records WHERE name = ?`, name); err != nil {
				return fmt.Errorf("delete task_record %q: %w", name, err)
			}
		}
	}

	for _, rec := range state.Tasks {
		_, err := tx.Exec(`INSERT INTO task_records
			(name, cron_expression, retry_delay_ms, last_attempt_time, last_success_time, last_failure_time, running)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET cron_expression = excluded.cron_expression,
				retry_delay_ms = excluded.retry_delay_ms,
				last_attempt_time = excluded.last_attempt_time,
				last_success_time = excluded.last_success_time,
				last_failure_time = excluded.last_failure_time,
				running = excluded.running`,
			rec.Name, rec.CronExpression, rec.RetryDelayMs,
			formatNullTime(rec.LastAttemptTime), formatNullTime(rec.LastSuccessTime), formatNullTime(rec.LastFailureTime),
			boolToInt(rec.Running),
		)
		if err != nil {
			return fmt.Errorf("save task_record %q: %w", rec.Name, err)
		}
	}
	return nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullableInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
