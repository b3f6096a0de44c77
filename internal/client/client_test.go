package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/api"
	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/store"
	"github.com/claude-slack/claude-slack/internal/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "claude-slack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(api.NewServer("127.0.0.1:0", st, config.Default()).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := c.RegisterAgent(ctx, api.RegisterAgentRequest{Name: "alice"}); err != nil {
		t.Fatalf("register agent: %v", err)
	}

	id, err := c.CreateChannel(ctx, api.CreateChannelRequest{
		Name: "general", Scope: string(types.ScopeGlobal), CreatedBy: "alice",
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	alice := types.AgentRef{Name: "alice"}
	if err := c.JoinChannel(ctx, id, alice); err != nil {
		t.Fatalf("join: %v", err)
	}

	msgID, err := c.PostMessage(ctx, api.PostMessageRequest{
		ChannelID: id, Content: "hello", SenderID: "alice",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if msgID <= 0 {
		t.Fatalf("message id = %d", msgID)
	}

	msgs, err := c.GetMessages(ctx, id, alice, 10, 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestClientReconstructsErrorKind(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.RegisterAgent(ctx, api.RegisterAgentRequest{Name: "alice"}); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	_, err := c.PostMessage(ctx, api.PostMessageRequest{
		ChannelID: "global:missing", Content: "x", SenderID: "alice",
	})
	if err == nil {
		t.Fatal("expected error posting to a missing channel")
	}
	if kind := types.KindOf(err); kind != types.KindNotFound {
		t.Fatalf("kind = %s, want NotFound", kind)
	}
}
