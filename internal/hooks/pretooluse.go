package hooks

import (
	"context"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/paths"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

// PreToolUse handles the PreToolUse hook: record the tool call against
// its session. Tools that aren't ours are ignored. A busy store diverts
// the record to the fallback spool for the next session start.
func PreToolUse(ctx context.Context, stdin io.Reader, configDir string) {
	payload, err := ReadPayload(stdin)
	if err != nil {
		log.Printf("pre-tool-use: %v", err)
		return
	}
	if !IsOurTool(payload.ToolName) || payload.SessionID == "" {
		return
	}

	hash, err := HashToolInputs(payload.ToolInput)
	if err != nil {
		log.Printf("pre-tool-use: %v", err)
		return
	}
	canonical, err := CanonicalJSON(payload.ToolInput)
	if err != nil {
		log.Printf("pre-tool-use: %v", err)
		return
	}
	call := types.ToolCall{
		ID:             uuid.NewString(),
		SessionID:      payload.SessionID,
		ToolName:       payload.ToolName,
		ToolInputsHash: hash,
		ToolInputs:     string(canonical),
	}

	st, err := store.Open(paths.DBPath(configDir))
	if err != nil {
		log.Printf("pre-tool-use: open store: %v", err)
		spool(configDir, call)
		return
	}
	defer func() { _ = st.Close() }()

	if err := identity.NewService(st).RecordToolCall(ctx, call); err != nil {
		if types.KindOf(err) == types.KindStoreBusy {
			spool(configDir, call)
			return
		}
		log.Printf("pre-tool-use: record tool call: %v", err)
	}
}

func spool(configDir string, call types.ToolCall) {
	if err := SpoolToolCall(paths.SessionsDir(configDir), call); err != nil {
		log.Printf("pre-tool-use: spool: %v", err)
	}
}
