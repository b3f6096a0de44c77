package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "claude-slack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st)
}

func TestProjectIDStable(t *testing.T) {
	a := ProjectID("/home/user/projects/alpha")
	b := ProjectID("/home/user/projects/alpha")
	if a != b {
		t.Fatalf("project id not stable: %s vs %s", a, b)
	}
	if len(a) != 32 || !types.IsHex32(a) {
		t.Fatalf("project id not 32 hex chars: %s", a)
	}
	if ProjectID("/home/user/projects/beta") == a {
		t.Fatal("distinct paths produced the same id")
	}
}

func TestRegisterProjectIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id1, err := svc.RegisterProject(ctx, "/tmp/alpha", "alpha")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id2, err := svc.RegisterProject(ctx, "/tmp/alpha", "alpha")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("ids differ: %s vs %s", id1, id2)
	}

	p, err := svc.GetProject(ctx, id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "alpha" {
		t.Fatalf("name = %s", p.Name)
	}
}

func TestRegisterAgentUpdatesWithoutDowngrade(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	agent := types.Agent{Name: "alice", Description: "first", Status: types.AgentActive}
	if err := svc.RegisterAgent(ctx, agent); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Re-registration with inactive status must not downgrade.
	agent.Description = "second"
	agent.Status = types.AgentInactive
	if err := svc.RegisterAgent(ctx, agent); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, err := svc.GetAgent(ctx, types.AgentRef{Name: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "second" {
		t.Fatalf("description = %s, want second", got.Description)
	}
	if got.Status != types.AgentActive {
		t.Fatalf("status downgraded to %s", got.Status)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetAgent(context.Background(), types.AgentRef{Name: "ghost"})
	if !errors.Is(err, types.ErrAgentNotFound) {
		t.Fatalf("err = %v, want AgentNotFound", err)
	}
}

func TestListAgentsDiscoverability(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	projA, err := svc.RegisterProject(ctx, "/tmp/proj-a", "a")
	if err != nil {
		t.Fatalf("register project a: %v", err)
	}
	projB, err := svc.RegisterProject(ctx, "/tmp/proj-b", "b")
	if err != nil {
		t.Fatalf("register project b: %v", err)
	}
	projC, err := svc.RegisterProject(ctx, "/tmp/proj-c", "c")
	if err != nil {
		t.Fatalf("register project c: %v", err)
	}

	mustRegister := func(a types.Agent) {
		t.Helper()
		if err := svc.RegisterAgent(ctx, a); err != nil {
			t.Fatalf("register %s: %v", a.Name, err)
		}
	}
	mustRegister(types.Agent{Name: "pub", ProjectID: projA, Discoverable: types.DiscoverablePublic})
	mustRegister(types.Agent{Name: "proj-only", ProjectID: projA, Discoverable: types.DiscoverableProject})
	mustRegister(types.Agent{Name: "hidden", ProjectID: projA, Discoverable: types.DiscoverablePrivate})
	mustRegister(types.Agent{Name: "caller", ProjectID: projB, Discoverable: types.DiscoverablePrivate})

	caller := types.AgentRef{Name: "caller", ProjectID: projB}

	names := func(agents []types.Agent) map[string]bool {
		set := make(map[string]bool)
		for _, a := range agents {
			set[a.Name] = true
		}
		return set
	}

	// Without a link: only the public agent and self.
	got, err := svc.ListAgents(ctx, &caller, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	set := names(got)
	if !set["pub"] || !set["caller"] || set["proj-only"] || set["hidden"] {
		t.Fatalf("unexpected visibility: %v", set)
	}

	// Link A→B: project-discoverable agents in A become visible from B.
	if err := svc.LinkProjects(ctx, projA, projB, types.LinkAToB); err != nil {
		t.Fatalf("link: %v", err)
	}
	got, err = svc.ListAgents(ctx, &caller, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	set = names(got)
	if !set["proj-only"] {
		t.Fatalf("linked project agent not visible: %v", set)
	}
	if set["hidden"] {
		t.Fatal("private agent leaked through link")
	}

	// Direction matters: a B→A-only link from C grants nothing to B callers.
	if err := svc.LinkProjects(ctx, projC, projB, types.LinkBToA); err != nil {
		t.Fatalf("link: %v", err)
	}
	mustRegister(types.Agent{Name: "c-agent", ProjectID: projC, Discoverable: types.DiscoverableProject})
	got, err = svc.ListAgents(ctx, &caller, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if names(got)["c-agent"] {
		t.Fatal("b_to_a link should not grant C→B visibility")
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterSession(ctx, "sess-1", "", "/tmp/transcript.jsonl"); err != nil {
		t.Fatalf("register: %v", err)
	}
	before, err := svc.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := svc.TouchSession(ctx, "sess-1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	after, err := svc.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Fatal("updated_at went backwards")
	}
	if after.CreatedAt != before.CreatedAt {
		t.Fatal("touch modified created_at")
	}

	if err := svc.TouchSession(ctx, "missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("err = %v, want SessionNotFound", err)
	}
}

func TestRecordToolCallIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	call := types.ToolCall{
		ID:             "tc-1",
		SessionID:      "sess-1",
		ToolName:       "send_channel_message",
		ToolInputsHash: "0123456789abcdef",
		ToolInputs:     `{"channel_id":"global:general"}`,
	}
	if err := svc.RecordToolCall(ctx, call); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Re-ingestion of the same spool record is a no-op.
	if err := svc.RecordToolCall(ctx, call); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	var n int
	err := svc.store.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM tool_calls").Scan(&n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("tool_calls rows = %d, want 1", n)
	}

	// The hook created the session implicitly.
	if _, err := svc.GetSession(ctx, "sess-1"); err != nil {
		t.Fatalf("session not created: %v", err)
	}
}
