package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runConfigInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"config", "init"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "capnote", "config.toml")

	out, err := runConfigInit(t, "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output:\n%s", out)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	for _, section := range []string{"[paths]", "[storage]", "[transcription]", "[workflow]"} {
		if !strings.Contains(string(data), section) {
			t.Fatalf("expected %s section in sample config", section)
		}
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, err := runConfigInit(t, "--path", target); err != nil {
		t.Fatalf("first init: %v", err)
	}

	if _, err := runConfigInit(t, "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
	if _, err := runConfigInit(t, "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite init: %v", err)
	}
}
