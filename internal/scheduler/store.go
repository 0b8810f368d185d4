package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"capnote/internal/config"
)

// TaskStore persists sync tasks in the shared capnote database. It holds its
// own connection so task polling never contends with record queries on a
// single *sql.DB; WAL mode keeps the two connections safe.
type TaskStore struct {
	db   *sql.DB
	path string
}

// TaskStats summarizes task table occupancy for status reporting.
type TaskStats struct {
	Queued  int
	Running int
}

// OpenTaskStore connects to the task table in the capnote database.
func OpenTaskStore(cfg *config.Config) (*TaskStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &TaskStore{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *TaskStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *TaskStore) Path() string {
	return s.path
}

// EnqueueRecord queues a sync task for a record. Enqueueing is idempotent: if
// a task for the record already exists, its attempt history is preserved and
// the existing task is returned with created false.
func (s *TaskStore) EnqueueRecord(ctx context.Context, recordID int64) (*Task, bool, error) {
	if recordID <= 0 {
		return nil, false, errors.New("record id is required")
	}
	key := RecordTaskKey(recordID)
	now := time.Now().UTC().Format(taskTimeLayout)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO sync_tasks (key, kind, record_id, status, attempts, next_run_at, correlation_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		key,
		string(TaskKindRecordSync),
		recordID,
		string(StatusQueued),
		now,
		uuid.NewString(),
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue record task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("enqueue record task: %w", err)
	}

	task, err := s.GetByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if task == nil {
		return nil, false, fmt.Errorf("enqueue record task: task %s vanished after insert", key)
	}
	return task, affected > 0, nil
}

// EnqueueSweep queues a catch-up sweep. Unlike record tasks, sweep requests
// replace an already queued sweep so the freshest request determines when the
// sweep runs. A sweep currently running is left alone.
func (s *TaskStore) EnqueueSweep(ctx context.Context) (*Task, error) {
	now := time.Now().UTC().Format(taskTimeLayout)

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sync_tasks (key, kind, record_id, status, attempts, next_run_at, correlation_id, created_at, updated_at)
         VALUES (?, ?, 0, ?, 0, ?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             attempts = 0,
             next_run_at = excluded.next_run_at,
             correlation_id = excluded.correlation_id,
             last_error = '',
             updated_at = excluded.updated_at
         WHERE sync_tasks.status = ?`,
		SweepTaskKey,
		string(TaskKindSweep),
		string(StatusQueued),
		now,
		uuid.NewString(),
		now,
		now,
		string(StatusQueued),
	); err != nil {
		return nil, fmt.Errorf("enqueue sweep task: %w", err)
	}

	task, err := s.GetByKey(ctx, SweepTaskKey)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("enqueue sweep task: task vanished after upsert")
	}
	return task, nil
}

// ClaimNext atomically claims the next due queued task. Returns nil when
// nothing is due. Ordering is by next_run_at then id, so retries don't starve
// and same-deadline tasks run in enqueue order.
func (s *TaskStore) ClaimNext(ctx context.Context, now time.Time) (*Task, error) {
	nowStr := now.UTC().Format(taskTimeLayout)

	for {
		var id int64
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM sync_tasks WHERE status = ? AND next_run_at <= ? ORDER BY next_run_at, id LIMIT 1`,
			string(StatusQueued),
			nowStr,
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select next task: %w", err)
		}

		res, err := s.db.ExecContext(
			ctx,
			`UPDATE sync_tasks SET status = ?, heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(StatusRunning),
			nowStr,
			nowStr,
			id,
			string(StatusQueued),
		)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		if affected == 0 {
			// Another worker won the race; pick the next candidate.
			continue
		}
		return s.getByID(ctx, id)
	}
}

// Complete removes a finished task. Used for both success and permanent
// failure; a failed record keeps its error message in the record store.
func (s *TaskStore) Complete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Reschedule requeues a task after a failed attempt, recording the new attempt
// count and the error that caused the retry.
func (s *TaskStore) Reschedule(ctx context.Context, id int64, attempts int, nextRun time.Time, lastError string) error {
	now := time.Now().UTC().Format(taskTimeLayout)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks SET status = ?, attempts = ?, next_run_at = ?, last_error = ?, heartbeat_at = NULL, updated_at = ? WHERE id = ?`,
		string(StatusQueued),
		attempts,
		nextRun.UTC().Format(taskTimeLayout),
		lastError,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reschedule task: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reschedule task: task %d not found", id)
	}
	return nil
}

// Defer requeues a task without consuming an attempt. Used when the network
// is unreachable and running the task would fail for reasons that aren't the
// task's fault.
func (s *TaskStore) Defer(ctx context.Context, id int64, nextRun time.Time) error {
	now := time.Now().UTC().Format(taskTimeLayout)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks SET status = ?, next_run_at = ?, heartbeat_at = NULL, updated_at = ? WHERE id = ?`,
		string(StatusQueued),
		nextRun.UTC().Format(taskTimeLayout),
		now,
		id,
	); err != nil {
		return fmt.Errorf("defer task: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the heartbeat timestamp for a running task.
func (s *TaskStore) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(taskTimeLayout)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		string(StatusRunning),
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale requeues running tasks whose heartbeat predates cutoff. The
// worker that claimed them is presumed dead; attempts are preserved.
func (s *TaskStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(taskTimeLayout)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks SET status = ?, next_run_at = ?, heartbeat_at = NULL, updated_at = ?
         WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		string(StatusQueued),
		now,
		now,
		string(StatusRunning),
		cutoff.UTC().Format(taskTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return affected, nil
}

// ResetRunning requeues every running task. Called once at startup: any task
// marked running at that point was orphaned by a previous process.
func (s *TaskStore) ResetRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(taskTimeLayout)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks SET status = ?, next_run_at = ?, heartbeat_at = NULL, updated_at = ? WHERE status = ?`,
		string(StatusQueued),
		now,
		now,
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return affected, nil
}

// GetByKey fetches a task by dedup key. A missing task returns (nil, nil).
func (s *TaskStore) GetByKey(ctx context.Context, key string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE key = ?`, key)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by key: %w", err)
	}
	return task, nil
}

func (s *TaskStore) getByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns all tasks ordered by due time, for diagnostics.
func (s *TaskStore) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks ORDER BY next_run_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Stats counts tasks by status.
func (s *TaskStore) Stats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("task stats: %w", err)
		}
		switch TaskStatus(status) {
		case StatusQueued:
			stats.Queued = count
		case StatusRunning:
			stats.Running = count
		}
	}
	return stats, rows.Err()
}

// taskTimeLayout is fixed-width so stored timestamps compare correctly as
// strings in SQL; RFC3339Nano drops trailing zeros and breaks that.
const taskTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = "id, key, kind, record_id, status, attempts, next_run_at, correlation_id, last_error, heartbeat_at, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		key           string
		kind          string
		recordID      int64
		status        string
		attempts      int
		nextRunRaw    string
		correlationID string
		lastError     string
		heartbeatRaw  sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&key,
		&kind,
		&recordID,
		&status,
		&attempts,
		&nextRunRaw,
		&correlationID,
		&lastError,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:            id,
		Key:           key,
		Kind:          TaskKind(kind),
		RecordID:      recordID,
		Status:        TaskStatus(status),
		Attempts:      attempts,
		CorrelationID: correlationID,
		LastError:     lastError,
	}
	if next, err := parseTaskTime(nextRunRaw); err == nil {
		task.NextRunAt = next
	}
	if heartbeatRaw.Valid {
		if hb, err := parseTaskTime(heartbeatRaw.String); err == nil {
			task.HeartbeatAt = &hb
		}
	}
	if created, err := parseTaskTime(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTaskTime(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func parseTaskTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
