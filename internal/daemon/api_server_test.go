package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"capnote/internal/api"
	"capnote/internal/daemon"
	"capnote/internal/scheduler"
	"capnote/internal/testsupport"
)

func startTestDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tasks := testsupport.MustOpenTaskStore(t, cfg)
	// Idle handler keeps records pending so API responses are stable.
	handler := scheduler.HandlerFunc(func(_ context.Context, task *scheduler.Task) scheduler.Outcome {
		if task.Kind == scheduler.TaskKindSweep {
			return scheduler.Succeeded()
		}
		return scheduler.RetryLater(nil)
	})
	runner := scheduler.NewRunner(cfg, tasks, handler, nil, nil)

	d, err := daemon.New(cfg, store, tasks, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected api listen address")
	}
	return d, "http://" + addr
}

func TestAPIServerCaptureAndList(t *testing.T) {
	_, base := startTestDaemon(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "standup_notes.m4a")
	testsupport.WriteFile(t, path, 1024)

	payload, _ := json.Marshal(api.CaptureRequest{FilePath: path, DurationSeconds: 18})
	resp, err := http.Post(base+"/api/capture", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/capture: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d", resp.StatusCode)
	}
	var created api.CaptureResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode capture response: %v", err)
	}
	if created.Record.Title != "Standup Notes" {
		t.Fatalf("unexpected title %q", created.Record.Title)
	}

	listResp, err := http.Get(base + "/api/records")
	if err != nil {
		t.Fatalf("GET /api/records: %v", err)
	}
	defer listResp.Body.Close()
	var list api.RecordListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(list.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list.Records))
	}

	oneResp, err := http.Get(fmt.Sprintf("%s/api/records/%d", base, created.Record.ID))
	if err != nil {
		t.Fatalf("GET /api/records/{id}: %v", err)
	}
	defer oneResp.Body.Close()
	if oneResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", oneResp.StatusCode)
	}
}

func TestAPIServerCaptureRejectsMissingFile(t *testing.T) {
	_, base := startTestDaemon(t)

	payload, _ := json.Marshal(api.CaptureRequest{FilePath: "/nonexistent/memo.m4a", DurationSeconds: 5})
	resp, err := http.Post(base+"/api/capture", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/capture: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 Bad Request, got %d", resp.StatusCode)
	}
}

func TestAPIServerStatusAndSync(t *testing.T) {
	_, base := startTestDaemon(t)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var status api.StatusSummary
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon in status")
	}

	syncResp, err := http.Post(base+"/api/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/sync: %v", err)
	}
	defer syncResp.Body.Close()
	if syncResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", syncResp.StatusCode)
	}
}

func TestAPIServerRetryAndDelete(t *testing.T) {
	_, base := startTestDaemon(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "memo.m4a")
	testsupport.WriteFile(t, path, 512)

	payload, _ := json.Marshal(api.CaptureRequest{FilePath: path, DurationSeconds: 4})
	resp, err := http.Post(base+"/api/capture", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/capture: %v", err)
	}
	var created api.CaptureResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode capture response: %v", err)
	}
	resp.Body.Close()

	retryResp, err := http.Post(fmt.Sprintf("%s/api/records/%d/retry", base, created.Record.ID), "application/json", nil)
	if err != nil {
		t.Fatalf("POST retry: %v", err)
	}
	retryResp.Body.Close()
	if retryResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK for retry, got %d", retryResp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/records/%d", base, created.Record.ID), nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	delResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("DELETE record: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK for delete, got %d", delResp.StatusCode)
	}

	missing, err := http.Get(fmt.Sprintf("%s/api/records/%d", base, created.Record.ID))
	if err != nil {
		t.Fatalf("GET deleted record: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted record, got %d", missing.StatusCode)
	}
}
