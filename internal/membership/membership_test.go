package membership

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

type fixture struct {
	store    *store.Store
	identity *identity.Service
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "claude-slack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &fixture{store: st, identity: identity.NewService(st), svc: NewService(st)}
}

func (f *fixture) registerAgent(t *testing.T, name, projectID string, policy types.DMPolicy) types.AgentRef {
	t.Helper()
	agent := types.Agent{Name: name, ProjectID: projectID, DMPolicy: policy}
	if err := f.identity.RegisterAgent(context.Background(), agent); err != nil {
		t.Fatalf("register agent %s: %v", name, err)
	}
	return types.AgentRef{Name: name, ProjectID: projectID}
}

func TestCreateChannelDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := CreateChannelParams{Scope: types.ScopeGlobal, Name: "general", AccessType: types.AccessOpen}
	id, err := f.svc.CreateChannel(ctx, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "global:general" {
		t.Fatalf("id = %s", id)
	}

	if _, err := f.svc.CreateChannel(ctx, params); !errors.Is(err, types.ErrDuplicate) {
		t.Fatalf("err = %v, want Duplicate", err)
	}
}

func TestCreateChannelDefaultMustBeOpen(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateChannel(context.Background(), CreateChannelParams{
		Scope: types.ScopeGlobal, Name: "vip", AccessType: types.AccessMembers, IsDefault: true,
	})
	if err == nil {
		t.Fatal("expected error for is_default on a members channel")
	}
}

func TestJoinLeaveJoinIsSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerAgent(t, "alice", "", types.DMOpen)

	id, err := f.svc.CreateChannel(ctx, CreateChannelParams{
		Scope: types.ScopeGlobal, Name: "general", AccessType: types.AccessOpen,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// join; leave; join behaves like a single join. Membership is a set.
	if err := f.svc.JoinChannel(ctx, alice, id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.svc.JoinChannel(ctx, alice, id); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if err := f.svc.LeaveChannel(ctx, alice, id); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := f.svc.JoinChannel(ctx, alice, id); err != nil {
		t.Fatalf("join again: %v", err)
	}

	members, err := ListMembers(ctx, f.store.Reader(), id)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	m := members[0]
	if m.InvitedBy != types.InvitedBySelf || m.Source != types.SourceExplicit || !m.CanLeave {
		t.Fatalf("unexpected member row: %+v", m)
	}
}

func TestSetMuted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerAgent(t, "alice", "", types.DMOpen)

	id, err := f.svc.CreateChannel(ctx, CreateChannelParams{Scope: types.ScopeGlobal, Name: "general", AccessType: types.AccessOpen})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.SetMuted(ctx, alice, id, true); !errors.Is(err, types.ErrNotAMember) {
		t.Fatalf("mute before join: err = %v, want NotAMember", err)
	}

	if err := f.svc.JoinChannel(ctx, alice, id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.svc.SetMuted(ctx, alice, id, true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	m, err := GetMember(ctx, f.store.Reader(), id, alice)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !m.IsMuted {
		t.Fatal("expected is_muted after SetMuted(true)")
	}

	if err := f.svc.SetMuted(ctx, alice, id, false); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	m, err = GetMember(ctx, f.store.Reader(), id, alice)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m.IsMuted {
		t.Fatal("expected is_muted cleared after SetMuted(false)")
	}
}

func TestJoinRequiresInvitationOnMembersChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.registerAgent(t, "owner", "", types.DMOpen)
	bob := f.registerAgent(t, "bob", "", types.DMOpen)

	id, err := f.svc.CreateChannel(ctx, CreateChannelParams{
		Scope: types.ScopeGlobal, Name: "core-team", AccessType: types.AccessMembers, CreatedBy: owner.Key(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.JoinChannel(ctx, bob, id); !errors.Is(err, types.ErrAccessDenied) {
		t.Fatalf("err = %v, want AccessDenied", err)
	}

	if err := f.svc.InviteToChannel(ctx, id, bob, owner); err != nil {
		t.Fatalf("invite: %v", err)
	}
	// After the invitation, join is an idempotent success.
	if err := f.svc.JoinChannel(ctx, bob, id); err != nil {
		t.Fatalf("join after invite: %v", err)
	}

	m, err := GetMember(ctx, f.store.Reader(), id, bob)
	if err != nil || m == nil {
		t.Fatalf("get member: %v %v", m, err)
	}
	if m.Source != types.SourceInvitation || m.InvitedBy != owner.Key() {
		t.Fatalf("unexpected provenance: %+v", m)
	}
}

func TestInviteRequiresCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.registerAgent(t, "owner", "", types.DMOpen)
	bob := f.registerAgent(t, "bob", "", types.DMOpen)
	carol := f.registerAgent(t, "carol", "", types.DMOpen)

	id, err := f.svc.CreateChannel(ctx, CreateChannelParams{
		Scope: types.ScopeGlobal, Name: "core-team", AccessType: types.AccessMembers, CreatedBy: owner.Key(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// carol is not a member at all.
	if err := f.svc.InviteToChannel(ctx, id, bob, carol); !errors.Is(err, types.ErrNotAMember) {
		t.Fatalf("err = %v, want NotAMember", err)
	}
	// Inviting an unregistered agent fails.
	if err := f.svc.InviteToChannel(ctx, id, types.AgentRef{Name: "ghost"}, owner); !errors.Is(err, types.ErrAgentNotFound) {
		t.Fatalf("err = %v, want AgentNotFound", err)
	}
}

func TestDMPolicyEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerAgent(t, "alice", "", types.DMOpen)
	bob := f.registerAgent(t, "bob", "", types.DMClosed)
	carol := f.registerAgent(t, "carol", "", types.DMRestricted)

	// Closed side refuses.
	if _, err := f.svc.CreateOrGetDM(ctx, alice, bob); !errors.Is(err, types.ErrDMForbidden) {
		t.Fatalf("err = %v, want DMForbidden", err)
	}

	// Restricted side refuses until the allow list admits the peer.
	if _, err := f.svc.CreateOrGetDM(ctx, alice, carol); !errors.Is(err, types.ErrDMForbidden) {
		t.Fatalf("err = %v, want DMForbidden", err)
	}
	if err := f.identity.SetDMPermission(ctx, carol, alice, "allow"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	id, err := f.svc.CreateOrGetDM(ctx, alice, carol)
	if err != nil {
		t.Fatalf("dm after allow: %v", err)
	}

	// Canonical: both orders give the same channel.
	id2, err := f.svc.CreateOrGetDM(ctx, carol, alice)
	if err != nil {
		t.Fatalf("dm reversed: %v", err)
	}
	if id != id2 {
		t.Fatalf("ids differ: %s vs %s", id, id2)
	}

	// Exactly two members, both pinned.
	members, err := ListMembers(ctx, f.store.Reader(), id)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	for _, m := range members {
		if m.CanLeave || m.CanInvite || !m.CanSend {
			t.Fatalf("dm member flags wrong: %+v", m)
		}
		if err := f.svc.LeaveChannel(ctx, m.Ref(), id); !errors.Is(err, types.ErrNotAllowedToLeave) {
			t.Fatalf("leave dm: err = %v, want NotAllowedToLeave", err)
		}
	}
}

func TestEnsureNotesChannelIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerAgent(t, "alice", "", types.DMOpen)
	bob := f.registerAgent(t, "bob", "", types.DMOpen)

	id, err := f.svc.EnsureNotesChannel(ctx, alice)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if id != "notes:alice:global" {
		t.Fatalf("id = %s", id)
	}
	// Any number of calls yields one channel and one member row.
	for i := 0; i < 3; i++ {
		if _, err := f.svc.EnsureNotesChannel(ctx, alice); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	members, err := ListMembers(ctx, f.store.Reader(), id)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}
	m := members[0]
	if m.CanLeave || m.CanInvite || !m.CanSend || !m.CanManage || m.Source != types.SourceNotes {
		t.Fatalf("notes member flags wrong: %+v", m)
	}

	// Another agent cannot access the notes channel.
	ok, err := f.svc.CheckAccess(ctx, bob, id)
	if err != nil {
		t.Fatalf("check access: %v", err)
	}
	if ok {
		t.Fatal("bob can access alice's notes")
	}
}

func TestValidateMentionsPartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	projAlpha := identity.ProjectID("/tmp/proj-alpha")
	if _, err := f.identity.RegisterProject(ctx, "/tmp/proj-alpha", "alpha"); err != nil {
		t.Fatalf("register project: %v", err)
	}
	alice := f.registerAgent(t, "alice", "", types.DMOpen)
	f.registerAgent(t, "bob", projAlpha, types.DMOpen)

	id, err := f.svc.CreateChannel(ctx, CreateChannelParams{
		Scope: types.ScopeGlobal, Name: "open-discussion", AccessType: types.AccessOpen,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.JoinChannel(ctx, alice, id); err != nil {
		t.Fatalf("join: %v", err)
	}

	summary, err := ValidateMentions(ctx, f.store.Reader(), id,
		[]string{"alice", "bob@" + projAlpha, "eve"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(summary.Valid) != 1 || summary.Valid[0] != "alice" {
		t.Fatalf("valid = %v", summary.Valid)
	}
	if len(summary.Invalid) != 1 || summary.Invalid[0] != "bob@"+projAlpha {
		t.Fatalf("invalid = %v", summary.Invalid)
	}
	if len(summary.Unknown) != 1 || summary.Unknown[0] != "eve" {
		t.Fatalf("unknown = %v", summary.Unknown)
	}

	// The three sets are disjoint and cover the input.
	total := len(summary.Valid) + len(summary.Invalid) + len(summary.Unknown)
	if total != 3 {
		t.Fatalf("partition size = %d, want 3", total)
	}
}

func TestExtractMentions(t *testing.T) {
	content := "ping @alice and @bob@0123456789abcdef0123456789abcdef, also @alice again"
	got := ExtractMentions(content)
	want := []string{"alice", "bob@0123456789abcdef0123456789abcdef"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestApplyDefaultChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerAgent(t, "alice", "", types.DMOpen)

	for _, name := range []string{"general", "announcements"} {
		_, err := f.svc.CreateChannel(ctx, CreateChannelParams{
			Scope: types.ScopeGlobal, Name: name, AccessType: types.AccessOpen, IsDefault: true,
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	added, err := f.svc.ApplyDefaultChannels(ctx, alice, []string{"announcements"}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	// Idempotent.
	added, err = f.svc.ApplyDefaultChannels(ctx, alice, []string{"announcements"}, false)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}

	m, err := GetMember(ctx, f.store.Reader(), "global:general", alice)
	if err != nil || m == nil {
		t.Fatalf("get member: %v %v", m, err)
	}
	if !m.IsFromDefault || m.Source != types.SourceDefault || m.InvitedBy != types.InvitedBySystem {
		t.Fatalf("unexpected default row: %+v", m)
	}
	if ex, _ := GetMember(ctx, f.store.Reader(), "global:announcements", alice); ex != nil {
		t.Fatal("excluded channel was joined")
	}

	// never_default skips everything.
	bob := f.registerAgent(t, "bob", "", types.DMOpen)
	added, err = f.svc.ApplyDefaultChannels(ctx, bob, nil, true)
	if err != nil {
		t.Fatalf("apply never_default: %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
}
