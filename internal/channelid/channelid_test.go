package channelid

import (
	"testing"

	"github.com/claude-slack/claude-slack/internal/types"
)

const projA = "0123456789abcdef0123456789abcdef"

func TestGlobalRoundTrip(t *testing.T) {
	id := Global("general")
	if id != "global:general" {
		t.Fatalf("unexpected id: %s", id)
	}
	p, err := Parse(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Type != types.ChannelTypeChannel || p.Scope != types.ScopeGlobal || p.Name != "general" {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	id := Project(projA, "dev")
	if id != "proj:"+projA+":dev" {
		t.Fatalf("unexpected id: %s", id)
	}
	p, err := Parse(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Scope != types.ScopeProject || p.ProjectID != projA || p.Name != "dev" {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestDMCanonical(t *testing.T) {
	alice := types.AgentRef{Name: "alice"}
	bob := types.AgentRef{Name: "bob", ProjectID: projA}

	ab := DM(alice, bob)
	ba := DM(bob, alice)
	if ab != ba {
		t.Fatalf("dm id not canonical: %s vs %s", ab, ba)
	}
	if ab != "dm:alice:bob@"+projA {
		t.Fatalf("unexpected dm id: %s", ab)
	}

	p, err := Parse(ab)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Type != types.ChannelTypeDirect || p.DMA != alice || p.DMB != bob {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestDMRejectsOutOfOrder(t *testing.T) {
	if _, err := Parse("dm:zed:alice"); err == nil {
		t.Fatal("expected error for out-of-order dm keys")
	}
}

func TestNotes(t *testing.T) {
	global := Notes(types.AgentRef{Name: "alice"})
	if global != "notes:alice:global" {
		t.Fatalf("unexpected id: %s", global)
	}
	scoped := Notes(types.AgentRef{Name: "bob", ProjectID: projA})
	if scoped != "notes:bob:"+projA {
		t.Fatalf("unexpected id: %s", scoped)
	}

	p, err := Parse(scoped)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	owner := NotesOwner(p)
	if owner.Name != "bob" || owner.ProjectID != projA {
		t.Fatalf("unexpected owner: %+v", owner)
	}
}

func TestScoped(t *testing.T) {
	if _, err := Scoped(types.ScopeProject, "", "dev"); err == nil {
		t.Fatal("expected error for project scope without project id")
	}
	if _, err := Scoped(types.ScopeGlobal, "", "Bad Name"); err == nil {
		t.Fatal("expected error for invalid name")
	}
	id, err := Scoped(types.ScopeGlobal, "", "general")
	if err != nil {
		t.Fatalf("scoped: %v", err)
	}
	if id != "global:general" {
		t.Fatalf("unexpected id: %s", id)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"general",
		"global:",
		"global:Bad Name",
		"proj:short:dev",
		"proj:" + projA,
		"dm:alice",
		"dm:alice:bob:carol",
		"notes:alice",
		"notes:alice:short",
	}
	for _, id := range bad {
		if _, err := Parse(id); err == nil {
			t.Errorf("expected parse error for %q", id)
		}
	}
}
