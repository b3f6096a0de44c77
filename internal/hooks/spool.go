package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/types"
)

// SpoolToolCall writes a tool call to the fallback spool, used when the
// store reports busy. ULID file names keep the directory in write order
// so re-ingestion replays calls in sequence.
func SpoolToolCall(dir string, call types.ToolCall) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	raw, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshal spooled call: %w", err)
	}
	path := filepath.Join(dir, ulid.Make().String()+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit spool file: %w", err)
	}
	return nil
}

// IngestSpool replays spooled tool calls in name order and deletes each
// file once its row has committed. Tool call ids make replay idempotent,
// so a crash between commit and delete only costs a no-op insert next
// time. Returns how many files were ingested.
func IngestSpool(ctx context.Context, dir string, svc *identity.Service) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	ingested := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("spool: read %s: %v", name, err)
			continue
		}
		var call types.ToolCall
		if err := json.Unmarshal(raw, &call); err != nil {
			// A file that never parses would wedge the spool; drop it.
			log.Printf("spool: malformed %s, removing: %v", name, err)
			_ = os.Remove(path)
			continue
		}
		if err := svc.RecordToolCall(ctx, call); err != nil {
			// Still busy; leave the rest for the next session start.
			return ingested, err
		}
		if err := os.Remove(path); err != nil {
			log.Printf("spool: remove %s: %v", name, err)
		}
		ingested++
	}
	return ingested, nil
}
