package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesToFile(t *testing.T) {
	dir := t.TempDir()
	closeFn, err := Setup(dir, "hooks", false)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Printf("session-start: hello")
	closeFn()

	raw, err := os.ReadFile(filepath.Join(dir, "hooks.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "session-start: hello") {
		t.Fatalf("log content: %q", raw)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	w := &rotatingWriter{dir: dir, name: "serve"}
	if err := w.open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = w.file.Close() }()

	// Force a rotation by pretending the file is already full.
	w.size = maxLogSize
	if _, err := w.Write([]byte("after rotation\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "serve.log.1")); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "serve.log"))
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(raw) != "after rotation\n" {
		t.Fatalf("current content: %q", raw)
	}
}

func TestListLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"serve.log", "serve.log.1", "other.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	logs, err := ListLogs(dir, "serve")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %v", logs)
	}
}
