package messaging

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/channelid"
	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

type fixture struct {
	store      *store.Store
	identity   *identity.Service
	membership *membership.Service
	messaging  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "claude-slack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &fixture{
		store:      st,
		identity:   identity.NewService(st),
		membership: membership.NewService(st),
		messaging:  NewService(st, 0, nil),
	}
}

func (f *fixture) agent(t *testing.T, name string) types.AgentRef {
	t.Helper()
	if err := f.identity.RegisterAgent(context.Background(), types.Agent{Name: name, DMPolicy: types.DMOpen}); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return types.AgentRef{Name: name}
}

func (f *fixture) openChannel(t *testing.T, name string, members ...types.AgentRef) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.membership.CreateChannel(ctx, membership.CreateChannelParams{
		Scope: types.ScopeGlobal, Name: name, AccessType: types.AccessOpen,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	for _, m := range members {
		if err := f.membership.JoinChannel(ctx, m, id); err != nil {
			t.Fatalf("join %s: %v", m.Key(), err)
		}
	}
	return id
}

func TestPostMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	ch := f.openChannel(t, "general", alice)

	var ids []int64
	for _, content := range []string{"first", "second", "third"} {
		id, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: content})
		if err != nil {
			t.Fatalf("post %q: %v", content, err)
		}
		ids = append(ids, id)
	}
	if ids[1] != ids[0]+1 || ids[2] != ids[1]+1 {
		t.Fatalf("ids not consecutive: %v", ids)
	}

	msgs, err := f.messaging.Fetch(ctx, FetchParams{ChannelID: ch, Caller: alice, Limit: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("fetched %d, want 3", len(msgs))
	}
	// Newest first; timestamps non-decreasing in id order.
	for i := 0; i < len(msgs)-1; i++ {
		if msgs[i].ID < msgs[i+1].ID {
			t.Fatalf("not newest-first: %v then %v", msgs[i].ID, msgs[i+1].ID)
		}
		if msgs[i].Timestamp < msgs[i+1].Timestamp {
			t.Fatalf("timestamps decrease with id: %+v", msgs)
		}
	}
}

func TestPostPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	bob := f.agent(t, "bob")
	ch := f.openChannel(t, "general", alice)

	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: bob, Content: "hi"}); !errors.Is(err, types.ErrNotAMember) {
		t.Fatalf("err = %v, want NotAMember", err)
	}
	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: "global:nope", Sender: alice, Content: "hi"}); !errors.Is(err, types.ErrChannelNotFound) {
		t.Fatalf("err = %v, want ChannelNotFound", err)
	}

	short := NewService(f.store, 5, nil)
	if _, err := short.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "too long for five"}); !errors.Is(err, types.ErrMessageTooLong) {
		t.Fatalf("err = %v, want MessageTooLong", err)
	}

	if err := f.membership.SetArchived(ctx, ch, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "hi"}); !errors.Is(err, types.ErrArchived) {
		t.Fatalf("err = %v, want Archived", err)
	}
}

func TestThreadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	ch := f.openChannel(t, "general", alice)

	root, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "root"})
	if err != nil {
		t.Fatalf("post root: %v", err)
	}

	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "reply", ThreadID: &root}); err != nil {
		t.Fatalf("reply: %v", err)
	}

	bogus := root + 1000
	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "orphan", ThreadID: &bogus}); !errors.Is(err, types.ErrInvalidThread) {
		t.Fatalf("err = %v, want InvalidThread", err)
	}
}

func TestMentionSummaryStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	f.agent(t, "bob") // registered, not a member
	ch := f.openChannel(t, "general", alice)

	id, err := f.messaging.Post(ctx, PostParams{
		ChannelID: ch, Sender: alice, Content: "cc @alice @bob @eve",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	m, err := f.messaging.GetMessage(ctx, alice, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	raw, ok := m.Metadata["mentions"].(map[string]any)
	if !ok {
		t.Fatalf("no mentions in metadata: %v", m.Metadata)
	}
	check := func(key, want string) {
		list, _ := raw[key].([]any)
		if len(list) != 1 || list[0] != want {
			t.Fatalf("%s = %v, want [%s]", key, raw[key], want)
		}
	}
	check("valid", "alice")
	check("invalid", "bob")
	check("unknown", "eve")
}

func TestSearchAccessFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	bob := f.agent(t, "bob")
	shared := f.openChannel(t, "shared", alice, bob)
	private := f.openChannel(t, "alice-only", alice)

	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: shared, Sender: alice, Content: "deploy finished"}); err != nil {
		t.Fatalf("post shared: %v", err)
	}
	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: private, Sender: alice, Content: "deploy secrets"}); err != nil {
		t.Fatalf("post private: %v", err)
	}

	results, err := f.messaging.Search(ctx, SearchParams{Caller: bob, Query: "deploy", Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].ChannelID != shared {
		t.Fatalf("leaked message from %s", results[0].ChannelID)
	}

	// Asking for the inaccessible channel explicitly yields nothing.
	results, err = f.messaging.Search(ctx, SearchParams{Caller: bob, Query: "deploy", ChannelIDs: []string{private}})
	if err != nil {
		t.Fatalf("search explicit: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}

func TestSearchOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	ch := f.openChannel(t, "general", alice)

	for _, content := range []string{"alpha beta", "alpha", "alpha beta"} {
		if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: content}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	results, err := f.messaging.Search(ctx, SearchParams{Caller: alice, Query: "alpha beta"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i := 0; i < len(results)-1; i++ {
		a, b := results[i], results[i+1]
		if a.FinalScore < b.FinalScore {
			t.Fatalf("scores out of order at %d: %v < %v", i, a.FinalScore, b.FinalScore)
		}
		if a.FinalScore == b.FinalScore && a.ID < b.ID {
			t.Fatalf("id tiebreak out of order at %d", i)
		}
	}
}

func TestNotesRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	bob := f.agent(t, "bob")

	id, err := f.messaging.WriteNote(ctx, f.membership, alice, "remember the migration flag", []string{"infra"}, "session-1")
	if err != nil {
		t.Fatalf("write note: %v", err)
	}
	if id == 0 {
		t.Fatal("note id is zero")
	}

	results, err := f.messaging.SearchNotes(ctx, alice, "migration", 10)
	if err != nil {
		t.Fatalf("search notes: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}

	// Another agent sees nothing, even searching the channel by id.
	results, err = f.messaging.Search(ctx, SearchParams{
		Caller: bob, Query: "migration", ChannelIDs: []string{channelid.Notes(alice)},
	})
	if err != nil {
		t.Fatalf("search as bob: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("bob read alice's notes: %d results", len(results))
	}
}

func TestRetentionExemptsNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.agent(t, "alice")
	ch := f.openChannel(t, "general", alice)
	if _, err := f.membership.EnsureNotesChannel(ctx, alice); err != nil {
		t.Fatalf("notes: %v", err)
	}

	// Backdate one channel message and one note past the cutoff.
	old := int64(1000000000)
	err := f.store.WriterTxn(ctx, func(tx *sql.Tx) error {
		for _, target := range []string{ch, channelid.Notes(alice)} {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO messages (channel_id, sender_name, sender_project_id, content, timestamp)
				VALUES (?, 'alice', '', 'ancient', ?)
			`, target, old)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.messaging.Post(ctx, PostParams{ChannelID: ch, Sender: alice, Content: "fresh"}); err != nil {
		t.Fatalf("post fresh: %v", err)
	}

	deleted, err := f.messaging.Retention(ctx, 30)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	msgs, err := f.messaging.Fetch(ctx, FetchParams{ChannelID: ch, Caller: alice, Limit: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "fresh" {
		t.Fatalf("channel after retention: %+v", msgs)
	}
	notes, err := f.messaging.Fetch(ctx, FetchParams{ChannelID: channelid.Notes(alice), Caller: alice, Limit: 10})
	if err != nil {
		t.Fatalf("fetch notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "ancient" {
		t.Fatalf("notes after retention: %+v", notes)
	}
}
