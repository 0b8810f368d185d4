package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capnote/internal/api"
	"capnote/internal/testsupport"
)

func newTestInboxMonitor(t *testing.T) (*inboxMonitor, *api.QueueService) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	tasks := testsupport.MustOpenTaskStore(t, cfg)
	svc := api.NewQueueService(store, tasks, nil, nil)
	m := newInboxMonitor(cfg, svc, nil)
	if m == nil {
		t.Fatal("expected inbox monitor")
	}
	return m, svc
}

func TestInboxScanAdmitsStableFiles(t *testing.T) {
	m, svc := newTestInboxMonitor(t)
	inboxPath := filepath.Join(m.cfg.Paths.InboxDir, "voice_memo_groceries.m4a")
	testsupport.WriteFile(t, inboxPath, 2048)

	// First scan only records the size.
	m.scan(context.Background())
	if _, err := os.Stat(inboxPath); err != nil {
		t.Fatalf("expected file untouched after first scan: %v", err)
	}

	// Second scan sees a stable size and admits the file.
	m.scan(context.Background())
	if _, err := os.Stat(inboxPath); !os.IsNotExist(err) {
		t.Fatalf("expected file moved out of inbox, stat err=%v", err)
	}

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 admitted record, got %d", len(list))
	}
	if !strings.HasPrefix(list[0].FilePath, m.cfg.RecordingsDir()) {
		t.Fatalf("expected recording under %s, got %s", m.cfg.RecordingsDir(), list[0].FilePath)
	}
	if list[0].Title != "Voice Memo Groceries" {
		t.Fatalf("unexpected title %q", list[0].Title)
	}
}

func TestInboxScanWaitsForGrowingFiles(t *testing.T) {
	m, svc := newTestInboxMonitor(t)
	inboxPath := filepath.Join(m.cfg.Paths.InboxDir, "memo.m4a")
	testsupport.WriteFile(t, inboxPath, 1024)

	m.scan(context.Background())
	// Still being written: size changes between polls.
	testsupport.WriteFile(t, inboxPath, 4096)
	m.scan(context.Background())

	if _, err := os.Stat(inboxPath); err != nil {
		t.Fatalf("expected growing file left in inbox: %v", err)
	}
	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no records for growing file, got %d", len(list))
	}
}

func TestInboxScanIgnoresUnsupportedFiles(t *testing.T) {
	m, svc := newTestInboxMonitor(t)
	for _, name := range []string{"notes.txt", ".hidden.m4a"} {
		testsupport.WriteFile(t, filepath.Join(m.cfg.Paths.InboxDir, name), 128)
	}

	m.scan(context.Background())
	m.scan(context.Background())

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no admitted records, got %d", len(list))
	}
}

func TestUniqueDestinationSuffixesCollisions(t *testing.T) {
	dir := t.TempDir()
	name := "memo.m4a"
	first := uniqueDestination(dir, name)
	if first != filepath.Join(dir, name) {
		t.Fatalf("expected plain destination, got %s", first)
	}
	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := uniqueDestination(dir, name)
	if second == first {
		t.Fatal("expected suffixed destination for collision")
	}
	if filepath.Ext(second) != ".m4a" {
		t.Fatalf("expected extension preserved, got %s", second)
	}
}
