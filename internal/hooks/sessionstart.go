package hooks

import (
	"context"
	"io"
	"log"
	"path/filepath"

	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/reconcile"
	"github.com/claude-slack/claude-slack/internal/store"
)

// SessionStart handles the SessionStart hook: bind the session to its
// project, drain the fallback spool, and reconcile the global and
// project scopes. Any failure is logged and absorbed; a broken substrate
// must not break the host session.
func SessionStart(ctx context.Context, stdin io.Reader, configDir string) {
	payload, err := ReadPayload(stdin)
	if err != nil {
		log.Printf("session-start: %v", err)
		return
	}
	if payload.HookEventName != "SessionStart" {
		return
	}

	st, err := store.Open(paths.DBPath(configDir))
	if err != nil {
		log.Printf("session-start: open store: %v", err)
		return
	}
	defer func() { _ = st.Close() }()
	svc := identity.NewService(st)

	projectRoot, err := paths.FindProjectRoot(payload.CWD)
	if err != nil {
		log.Printf("session-start: find project root: %v", err)
		projectRoot = ""
	}

	var projectID string
	if projectRoot != "" {
		projectID, err = svc.RegisterProject(ctx, projectRoot, filepath.Base(projectRoot))
		if err != nil {
			log.Printf("session-start: register project: %v", err)
			projectID = ""
		}
	}

	if payload.SessionID != "" {
		if err := svc.RegisterSession(ctx, payload.SessionID, projectID, payload.TranscriptPath); err != nil {
			log.Printf("session-start: register session: %v", err)
		}
	}

	if n, err := IngestSpool(ctx, paths.SessionsDir(configDir), svc); err != nil {
		log.Printf("session-start: spool ingest stopped after %d: %v", n, err)
	} else if n > 0 {
		log.Printf("session-start: ingested %d spooled tool calls", n)
	}

	cfg, err := config.Load(paths.ConfigFile(configDir))
	if err != nil {
		log.Printf("session-start: load config: %v", err)
		return
	}
	desired, errs := reconcile.BuildDesired(cfg, configDir, projectRoot)
	for _, err := range errs {
		log.Printf("session-start: desired state: %v", err)
	}
	plan, result, err := reconcile.New(st).Reconcile(ctx, desired)
	if err != nil {
		log.Printf("session-start: reconcile: %v", err)
		return
	}
	for _, err := range result.Errs() {
		log.Printf("session-start: %v", err)
	}
	if !plan.Empty() {
		log.Printf("session-start: reconciled %d actions", plan.Total())
	}
}
