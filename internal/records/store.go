package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"capnote/internal/config"
)

// Store manages record persistence backed by SQLite. All mutations are atomic
// single-row updates; records are independent, so no cross-record transactions
// exist. Every successful mutation publishes a fresh snapshot to watchers.
type Store struct {
	db   *sql.DB
	path string
	hub  *watchHub
}

// Open initializes or connects to the record database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
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

	store := &Store{db: db, path: dbPath, hub: newWatchHub()}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection and drops all watchers.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.hub.close()
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert creates a new pending record for a captured clip. The caller is
// expected to have verified the file exists and is non-empty.
func (s *Store) Insert(ctx context.Context, filePath string, capturedAt time.Time, durationSeconds float64) (*Record, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, errors.New("file path is required")
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	now := time.Now().UTC().Format(recordTimeLayout)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO records (file_path, captured_at, duration_seconds, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		filePath,
		capturedAt.UTC().Format(recordTimeLayout),
		durationSeconds,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	s.publish(ctx)
	return s.GetByID(ctx, id)
}

// GetByID fetches a record by identifier. A missing record returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// List returns all records ordered newest-capture-first.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY captured_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListPendingUpload returns records awaiting upload ordered oldest-capture-first
// so catch-up sweeps drain fairly.
func (s *Store) ListPendingUpload(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records WHERE uploaded = 0 ORDER BY captured_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending uploads: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// PendingUploadCount returns the number of records awaiting upload.
func (s *Store) PendingUploadCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE uploaded = 0`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("pending upload count: %w", err)
	}
	return count, nil
}

// MarkUploaded sets the upload flag with the cloud identifiers and clears any
// advisory error. Remote id and url are both required so the pair invariant
// holds. Marking an absent record is a no-op.
func (s *Store) MarkUploaded(ctx context.Context, id int64, remoteFileID, remoteURL string) error {
	remoteFileID = strings.TrimSpace(remoteFileID)
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteFileID == "" || remoteURL == "" {
		return errors.New("remote file id and url are both required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE records SET uploaded = 1, remote_file_id = ?, remote_url = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		remoteFileID,
		remoteURL,
		time.Now().UTC().Format(recordTimeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	s.publish(ctx)
	return nil
}

// MarkTranscribed sets the transcription flag with the transcript text and
// clears any advisory error. Blank transcripts are stored as the no-speech
// sentinel.
func (s *Store) MarkTranscribed(ctx context.Context, id int64, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		transcript = NoSpeechSentinel
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE records SET transcribed = 1, transcript = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		transcript,
		time.Now().UTC().Format(recordTimeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark transcribed: %w", err)
	}
	s.publish(ctx)
	return nil
}

// SetError stores an advisory error message without touching the upload or
// transcription flags. The message clears on the next successful transition.
func (s *Store) SetError(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE records SET error_message = ?, updated_at = ? WHERE id = ?`,
		nullableString(message),
		time.Now().UTC().Format(recordTimeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	s.publish(ctx)
	return nil
}

// Remove deletes a record row. The caller is responsible for the local file.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		s.publish(ctx)
	}
	return affected > 0, nil
}

// Health aggregates record counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uploaded, transcribed, error_message IS NOT NULL FROM records`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("record health: %w", err)
	}
	defer rows.Close()

	var health HealthSummary
	for rows.Next() {
		var uploaded, transcribed, errored int
		if err := rows.Scan(&uploaded, &transcribed, &errored); err != nil {
			return HealthSummary{}, err
		}
		health.Total++
		switch {
		case uploaded == 1 && transcribed == 1:
			health.Done++
		case uploaded == 1:
			health.Uploaded++
		default:
			health.PendingUpload++
		}
		if errored == 1 {
			health.Errored++
		}
	}
	return health, rows.Err()
}

// CheckHealth returns diagnostic information about the record database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat record database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("record database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping record database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'records'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM records")
		if err := row.Scan(&health.TotalRecords); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count records: %w", err)
		}
	}

	var integrity string
	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	if err := row.Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	return health, nil
}

// recordTimeLayout is fixed-width so stored timestamps compare correctly as
// strings in SQL; RFC3339Nano drops trailing zeros and breaks that.
const recordTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = "id, file_path, captured_at, duration_seconds, uploaded, remote_file_id, remote_url, transcribed, transcript, error_message, created_at, updated_at"

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id           int64
		filePath     string
		capturedRaw  string
		duration     float64
		uploaded     int64
		remoteFileID sql.NullString
		remoteURL    sql.NullString
		transcribed  int64
		transcript   sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&filePath,
		&capturedRaw,
		&duration,
		&uploaded,
		&remoteFileID,
		&remoteURL,
		&transcribed,
		&transcript,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:              id,
		FilePath:        filePath,
		DurationSeconds: duration,
		Uploaded:        uploaded != 0,
		RemoteFileID:    remoteFileID.String,
		RemoteURL:       remoteURL.String,
		Transcribed:     transcribed != 0,
		Transcript:      transcript.String,
		ErrorMessage:    errorMessage.String,
	}
	var err error
	if record.CapturedAt, err = parseTimeString(capturedRaw); err != nil {
		return nil, fmt.Errorf("record %d: parse captured_at %q: %w", id, capturedRaw, err)
	}
	if record.CreatedAt, err = parseTimeString(createdRaw); err != nil {
		return nil, fmt.Errorf("record %d: parse created_at %q: %w", id, createdRaw, err)
	}
	if record.UpdatedAt, err = parseTimeString(updatedRaw); err != nil {
		return nil, fmt.Errorf("record %d: parse updated_at %q: %w", id, updatedRaw, err)
	}
	return record, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
