package scheduler

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// taskSchemaVersion is the current task table version. The task table is
// disposable state, so a bump just means clearing the database.
const taskSchemaVersion = 1

// ErrSchemaMismatch indicates the task schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("task schema version mismatch")

func (s *TaskStore) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin task schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create task schema: %w", err)
	}

	var version int
	row := tx.QueryRowContext(ctx, "SELECT version FROM task_schema_version LIMIT 1")
	switch err := row.Scan(&version); {
	case err == nil:
		if version != taskSchemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
				ErrSchemaMismatch, version, taskSchemaVersion, s.path)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO task_schema_version (version) VALUES (?)", taskSchemaVersion); err != nil {
			return fmt.Errorf("record task schema version: %w", err)
		}
	default:
		return fmt.Errorf("read task schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task schema: %w", err)
	}
	return nil
}
