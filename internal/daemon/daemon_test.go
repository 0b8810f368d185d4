package daemon_test

import (
	"context"
	"testing"
	"time"

	"capnote/internal/daemon"
	"capnote/internal/scheduler"
	"capnote/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tasks := testsupport.MustOpenTaskStore(t, cfg)
	handler := scheduler.HandlerFunc(func(context.Context, *scheduler.Task) scheduler.Outcome {
		return scheduler.Succeeded()
	})
	runner := scheduler.NewRunner(cfg, tasks, handler, nil, nil)

	d, err := daemon.New(cfg, store, tasks, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatal("expected daemon PID in status")
	}
	if !status.Online {
		t.Fatal("expected always-online gate without probe URL")
	}
	if d.APIAddr() == "" {
		t.Fatal("expected api server bound address")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartEnqueuesSweep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tasks := testsupport.MustOpenTaskStore(t, cfg)
	claimed := make(chan string, 8)
	handler := scheduler.HandlerFunc(func(_ context.Context, task *scheduler.Task) scheduler.Outcome {
		claimed <- task.Key
		return scheduler.Succeeded()
	})
	runner := scheduler.NewRunner(cfg, tasks, handler, nil, nil)

	d, err := daemon.New(cfg, store, tasks, runner, nil, testLogger())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case key := <-claimed:
		if key != scheduler.SweepTaskKey {
			t.Fatalf("expected startup sweep task, got %q", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for startup sweep")
	}
}
