package records_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"capnote/internal/records"
	"capnote/internal/testsupport"
)

func TestInsertAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	captured := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	record, err := store.Insert(ctx, "/tmp/memo-001.m4a", captured, 12)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected record ID to be assigned")
	}
	if record.Uploaded || record.Transcribed {
		t.Fatalf("new record should be pending, got %#v", record)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.FilePath != "/tmp/memo-001.m4a" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if !fetched.CapturedAt.Equal(captured) {
		t.Fatalf("expected captured_at %v, got %v", captured, fetched.CapturedAt)
	}
	if fetched.DurationSeconds != 12 {
		t.Fatalf("expected duration 12, got %v", fetched.DurationSeconds)
	}
	if fetched.Stage() != "pending" {
		t.Fatalf("expected pending stage, got %q", fetched.Stage())
	}
}

func TestInsertRequiresFilePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Insert(context.Background(), "  ", time.Now(), 1); err == nil {
		t.Fatal("expected error when file path missing")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	record, err := store.GetByID(context.Background(), 4242)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil for missing record, got %#v", record)
	}
}

func TestMarkUploadedSetsPairAndClearsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Now(), 5)
	if err := store.SetError(ctx, record.ID, "upload failed: timeout"); err != nil {
		t.Fatalf("SetError failed: %v", err)
	}

	if err := store.MarkUploaded(ctx, record.ID, "file-abc", "https://drive.test/file-abc"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !updated.Uploaded {
		t.Fatal("expected uploaded flag set")
	}
	if updated.RemoteFileID != "file-abc" || updated.RemoteURL != "https://drive.test/file-abc" {
		t.Fatalf("unexpected remote identifiers: %#v", updated)
	}
	if updated.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", updated.ErrorMessage)
	}
	if updated.Stage() != "uploaded" {
		t.Fatalf("expected uploaded stage, got %q", updated.Stage())
	}
}

func TestMarkUploadedRequiresBothIdentifiers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Now(), 5)
	if err := store.MarkUploaded(context.Background(), record.ID, "file-abc", ""); err == nil {
		t.Fatal("expected error when remote url missing")
	}
	if err := store.MarkUploaded(context.Background(), record.ID, "", "https://drive.test/x"); err == nil {
		t.Fatal("expected error when remote id missing")
	}
}

func TestMarkTranscribedBlankUsesSentinel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Now(), 5)
	if err := store.MarkTranscribed(ctx, record.ID, "   "); err != nil {
		t.Fatalf("MarkTranscribed failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !updated.Transcribed {
		t.Fatal("expected transcribed flag set")
	}
	if updated.Transcript != records.NoSpeechSentinel {
		t.Fatalf("expected sentinel transcript, got %q", updated.Transcript)
	}
}

func TestSetErrorLeavesFlagsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Now(), 5)
	if err := store.MarkUploaded(ctx, record.ID, "file-1", "https://drive.test/file-1"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	if err := store.SetError(ctx, record.ID, "transcription failed: http 500"); err != nil {
		t.Fatalf("SetError failed: %v", err)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !updated.Uploaded {
		t.Fatal("expected uploaded flag untouched")
	}
	if updated.Transcribed {
		t.Fatal("expected transcribed flag untouched")
	}
	if updated.ErrorMessage != "transcription failed: http 500" {
		t.Fatalf("unexpected error message %q", updated.ErrorMessage)
	}
	if !updated.HasError() {
		t.Fatal("expected HasError true")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testsupport.NewRecord(t, store, fmt.Sprintf("/tmp/memo-%d.m4a", i), base.Add(time.Duration(i)*time.Minute), 3)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].FilePath != "/tmp/memo-2.m4a" || list[2].FilePath != "/tmp/memo-0.m4a" {
		t.Fatalf("expected newest-first ordering, got %q .. %q", list[0].FilePath, list[2].FilePath)
	}
}

func TestListPendingUploadOrdersOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 3; i++ {
		record := testsupport.NewRecord(t, store, fmt.Sprintf("/tmp/memo-%d.m4a", i), base.Add(time.Duration(i)*time.Minute), 3)
		ids = append(ids, record.ID)
	}
	if err := store.MarkUploaded(ctx, ids[1], "file-1", "https://drive.test/file-1"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}

	pending, err := store.ListPendingUpload(ctx)
	if err != nil {
		t.Fatalf("ListPendingUpload failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[2] {
		t.Fatalf("expected FIFO order %v, %v, got %v, %v", ids[0], ids[2], pending[0].ID, pending[1].ID)
	}

	count, err := store.PendingUploadCount(ctx)
	if err != nil {
		t.Fatalf("PendingUploadCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected pending count 2, got %d", count)
	}
}

func TestOrderingMixesWholeAndFractionalSeconds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	whole := testsupport.NewRecord(t, store, "/tmp/memo-whole.m4a", base, 3)
	fractional := testsupport.NewRecord(t, store, "/tmp/memo-frac.m4a", base.Add(500*time.Millisecond), 3)
	later := testsupport.NewRecord(t, store, "/tmp/memo-later.m4a", base.Add(time.Second), 3)

	pending, err := store.ListPendingUpload(ctx)
	if err != nil {
		t.Fatalf("ListPendingUpload failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending records, got %d", len(pending))
	}
	wantOldest := []int64{whole.ID, fractional.ID, later.ID}
	for i, want := range wantOldest {
		if pending[i].ID != want {
			t.Fatalf("pending[%d] = record %d (captured %s), want record %d",
				i, pending[i].ID, pending[i].CapturedAt, want)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	wantNewest := []int64{later.ID, fractional.ID, whole.ID}
	for i, want := range wantNewest {
		if list[i].ID != want {
			t.Fatalf("list[%d] = record %d (captured %s), want record %d",
				i, list[i].ID, list[i].CapturedAt, want)
		}
	}
}

func TestRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Now(), 5)

	removed, err := store.Remove(ctx, record.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected record to be removed")
	}

	missing, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected record gone, got %#v", missing)
	}

	removed, err = store.Remove(ctx, record.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Fatal("expected second remove to be a no-op")
	}
}

func TestScanSurfacesBadTimestamps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewRecord(t, store, "/tmp/memo.m4a", time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC), 3)

	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE records SET captured_at = 'garbage' WHERE id = ?`, record.ID); err != nil {
		t.Fatalf("corrupt captured_at: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetByID(ctx, record.ID); err == nil || !strings.Contains(err.Error(), "captured_at") {
		t.Fatalf("expected captured_at parse error, got %v", err)
	}
}

func TestHealthAggregates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	pending := testsupport.NewRecord(t, store, "/tmp/a.m4a", time.Now(), 1)
	uploaded := testsupport.NewRecord(t, store, "/tmp/b.m4a", time.Now(), 1)
	done := testsupport.NewRecord(t, store, "/tmp/c.m4a", time.Now(), 1)

	if err := store.MarkUploaded(ctx, uploaded.ID, "f-1", "https://drive.test/f-1"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	if err := store.MarkUploaded(ctx, done.ID, "f-2", "https://drive.test/f-2"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	if err := store.MarkTranscribed(ctx, done.ID, "hello"); err != nil {
		t.Fatalf("MarkTranscribed failed: %v", err)
	}
	if err := store.SetError(ctx, pending.ID, "upload failed"); err != nil {
		t.Fatalf("SetError failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.PendingUpload != 1 || health.Uploaded != 1 || health.Done != 1 || health.Errored != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRecord(t, store, "/tmp/a.m4a", time.Now(), 1)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected database health: %#v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.TotalRecords != 1 {
		t.Fatalf("expected 1 record, got %d", health.TotalRecords)
	}
}
