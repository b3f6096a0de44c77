// Package logging routes the standard logger to a rotating file under
// the claude-slack logs directory. Hooks and the MCP server own their
// process's stdout/stderr for protocol traffic, so diagnostics must go
// to files.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
)

const (
	maxLogSize  = 5 << 20 // bytes before rotation
	keepRotated = 3
)

// rotatingWriter appends to <dir>/<name>.log, rotating to numbered
// suffixes when the file exceeds maxLogSize.
type rotatingWriter struct {
	dir  string
	name string
	file *os.File
	size int64
}

// Setup opens the named log under dir and points the default logger at
// it. When toStderr is also wanted (serve in the foreground), the log is
// teed. Returns a close func.
func Setup(dir, name string, toStderr bool) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	w := &rotatingWriter{dir: dir, name: name}
	if err := w.open(); err != nil {
		return nil, err
	}

	var out io.Writer = w
	if toStderr {
		out = io.MultiWriter(os.Stderr, w)
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.LUTC)
	log.SetPrefix(name + " ")

	return func() {
		log.SetOutput(os.Stderr)
		_ = w.file.Close()
	}, nil
}

func (w *rotatingWriter) path() string {
	return filepath.Join(w.dir, w.name+".log")
}

func (w *rotatingWriter) open() error {
	f, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > maxLogSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts name.log -> name.log.1 -> ... and prunes past
// keepRotated.
func (w *rotatingWriter) rotate() error {
	_ = w.file.Close()
	for i := keepRotated; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", w.path(), i)
		if i == keepRotated {
			_ = os.Remove(from)
			continue
		}
		_ = os.Rename(from, fmt.Sprintf("%s.%d", w.path(), i+1))
	}
	if err := os.Rename(w.path(), w.path()+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log: %w", err)
	}
	return w.open()
}

// ListLogs returns the current and rotated files for the named log,
// newest first. Used by the status command.
func ListLogs(dir, name string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, name+".log*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
