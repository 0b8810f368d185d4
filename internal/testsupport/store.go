package testsupport

import (
	"context"
	"testing"
	"time"

	"capnote/internal/config"
	"capnote/internal/records"
	"capnote/internal/scheduler"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenTaskStore opens a scheduler.TaskStore for tests and registers cleanup.
func MustOpenTaskStore(t testing.TB, cfg *config.Config) *scheduler.TaskStore {
	t.Helper()

	store, err := scheduler.OpenTaskStore(cfg)
	if err != nil {
		t.Fatalf("scheduler.OpenTaskStore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord inserts a pending record for tests using the provided store.
func NewRecord(t testing.TB, store *records.Store, filePath string, capturedAt time.Time, duration float64) *records.Record {
	t.Helper()

	record, err := store.Insert(context.Background(), filePath, capturedAt, duration)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return record
}
