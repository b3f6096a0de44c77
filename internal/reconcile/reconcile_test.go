package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "claude-slack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeAgent(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0o644); err != nil {
		t.Fatalf("write agent: %v", err)
	}
}

func baseConfig() *config.Config {
	cfg := config.Default()
	cfg.DefaultChannels.Global = []config.ChannelSpec{{Name: "general", Description: "General discussion"}}
	cfg.DefaultChannels.Project = nil
	return cfg
}

func TestReconcileConverges(t *testing.T) {
	st := newStore(t)
	r := New(st)
	ctx := context.Background()

	configDir := t.TempDir()
	writeAgent(t, filepath.Join(configDir, "agents"), "a1", "---\nname: a1\n---\n")

	desired, errs := BuildDesired(baseConfig(), configDir, "")
	if len(errs) != 0 {
		t.Fatalf("build desired: %v", errs)
	}

	plan, result, err := r.Reconcile(ctx, desired)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Success {
		t.Fatalf("first run failed: %v", result.Errs())
	}
	if plan.Empty() {
		t.Fatal("first plan should not be empty")
	}

	m, err := membership.GetMember(ctx, st.Reader(), "global:general", types.AgentRef{Name: "a1"})
	if err != nil || m == nil {
		t.Fatalf("member after reconcile: %v %v", m, err)
	}
	if !m.IsFromDefault || m.Source != types.SourceDefault {
		t.Fatalf("member row: %+v", m)
	}

	// The second run is a no-op.
	plan2, err := r.BuildPlan(ctx, desired)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if !plan2.Empty() {
		for _, a := range append(append(plan2.Infrastructure, plan2.Agents...), plan2.Access...) {
			t.Logf("unexpected action: %s", a.Describe())
		}
		t.Fatalf("second plan has %d actions", plan2.Total())
	}

	members, err := membership.ListMembers(ctx, st.Reader(), "global:general")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
}

func TestReconcileCreatesNotesChannel(t *testing.T) {
	st := newStore(t)
	r := New(st)
	ctx := context.Background()

	configDir := t.TempDir()
	writeAgent(t, filepath.Join(configDir, "agents"), "a1", "---\nname: a1\n---\n")

	desired, _ := BuildDesired(baseConfig(), configDir, "")
	if _, result, err := r.Reconcile(ctx, desired); err != nil || !result.Success {
		t.Fatalf("reconcile: %v %v", err, result)
	}

	ch, err := membership.GetChannel(ctx, st.Reader(), "notes:a1:global")
	if err != nil {
		t.Fatalf("notes channel: %v", err)
	}
	if ch.ChannelType != types.ChannelTypeNotes {
		t.Fatalf("channel type = %s", ch.ChannelType)
	}
}

func TestDefaultDriftRemoval(t *testing.T) {
	st := newStore(t)
	r := New(st)
	ctx := context.Background()
	mem := membership.NewService(st)

	configDir := t.TempDir()
	writeAgent(t, filepath.Join(configDir, "agents"), "a1", "---\nname: a1\n---\n")
	writeAgent(t, filepath.Join(configDir, "agents"), "a2", "---\nname: a2\n---\n")

	desired, _ := BuildDesired(baseConfig(), configDir, "")
	if _, result, err := r.Reconcile(ctx, desired); err != nil || !result.Success {
		t.Fatalf("reconcile: %v %v", err, result)
	}

	// a2 re-joins explicitly, which rewrites provenance.
	if err := mem.LeaveChannel(ctx, types.AgentRef{Name: "a2"}, "global:general"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := mem.JoinChannel(ctx, types.AgentRef{Name: "a2"}, "global:general"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Config drops general from the defaults.
	cfg := baseConfig()
	cfg.DefaultChannels.Global = nil
	desired, _ = BuildDesired(cfg, configDir, "")
	if _, result, err := r.Reconcile(ctx, desired); err != nil || !result.Success {
		t.Fatalf("drift reconcile: %v %v", err, result)
	}

	if m, _ := membership.GetMember(ctx, st.Reader(), "global:general", types.AgentRef{Name: "a1"}); m != nil {
		t.Fatalf("a1's default row survived: %+v", m)
	}
	m, err := membership.GetMember(ctx, st.Reader(), "global:general", types.AgentRef{Name: "a2"})
	if err != nil || m == nil {
		t.Fatalf("a2's explicit row removed: %v %v", m, err)
	}
	if m.Source != types.SourceExplicit {
		t.Fatalf("a2 source = %s", m.Source)
	}
}

func TestNeverDefaultAndExclusions(t *testing.T) {
	st := newStore(t)
	r := New(st)
	ctx := context.Background()

	configDir := t.TempDir()
	cfg := baseConfig()
	cfg.DefaultChannels.Global = []config.ChannelSpec{
		{Name: "general"}, {Name: "announcements"},
	}
	agents := filepath.Join(configDir, "agents")
	writeAgent(t, agents, "loner", "---\nname: loner\nnever_default: true\n---\n")
	writeAgent(t, agents, "picky", "---\nname: picky\nchannels:\n  exclude: [announcements]\n---\n")

	desired, _ := BuildDesired(cfg, configDir, "")
	if _, result, err := r.Reconcile(ctx, desired); err != nil || !result.Success {
		t.Fatalf("reconcile: %v %v", err, result)
	}

	if m, _ := membership.GetMember(ctx, st.Reader(), "global:general", types.AgentRef{Name: "loner"}); m != nil {
		t.Fatal("never_default agent was subscribed")
	}
	if m, _ := membership.GetMember(ctx, st.Reader(), "global:announcements", types.AgentRef{Name: "picky"}); m != nil {
		t.Fatal("excluded channel was joined")
	}
	if m, _ := membership.GetMember(ctx, st.Reader(), "global:general", types.AgentRef{Name: "picky"}); m == nil {
		t.Fatal("non-excluded default missing")
	}
}

func TestProjectLinksAndExplicitChannels(t *testing.T) {
	st := newStore(t)
	r := New(st)
	ctx := context.Background()

	configDir := t.TempDir()
	projectDir := t.TempDir()
	cfg := baseConfig()
	cfg.DefaultChannels.Project = []config.ChannelSpec{{Name: "dev"}}
	cfg.ProjectLinks = []config.ProjectLink{
		{Source: projectDir, Target: configDir, Type: "bidirectional"},
	}
	writeAgent(t, filepath.Join(projectDir, ".claude", "agents"), "worker",
		"---\nname: worker\nchannels:\n  global: [general]\n---\n")

	desired, errs := BuildDesired(cfg, configDir, projectDir)
	if len(errs) != 0 {
		t.Fatalf("build desired: %v", errs)
	}

	plan, result, err := r.Reconcile(ctx, desired)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Success {
		t.Fatalf("run failed: %v", result.Errs())
	}
	if plan.Empty() {
		t.Fatal("plan should not be empty")
	}

	// Second run converges even with links and project channels.
	plan2, err := r.BuildPlan(ctx, desired)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if !plan2.Empty() {
		t.Fatalf("second plan has %d actions", plan2.Total())
	}
}
