package frontmatter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/claude-slack/claude-slack/internal/types"
)

const sampleAgent = `---
name: code-reviewer
description: Reviews pull requests
tools: [send_message, get_messages]
channels:
  global: [general]
  project: [dev]
  exclude: [announcements]
never_default: false
dm_policy: restricted
discoverable: project
---

# Code Reviewer

Reviews code and posts findings.
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sampleAgent))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "code-reviewer" {
		t.Fatalf("name = %s", def.Name)
	}
	if def.DMPolicyOrDefault() != types.DMRestricted {
		t.Fatalf("dm policy = %v", def.DMPolicyOrDefault())
	}
	if def.DiscoverabilityOrDefault() != types.DiscoverableProject {
		t.Fatalf("discoverable = %v", def.DiscoverabilityOrDefault())
	}
	if len(def.Channels.Global) != 1 || def.Channels.Global[0] != "general" {
		t.Fatalf("channels = %+v", def.Channels)
	}
	if len(def.Channels.Exclude) != 1 || def.Channels.Exclude[0] != "announcements" {
		t.Fatalf("exclude = %+v", def.Channels.Exclude)
	}
}

func TestParseDefaults(t *testing.T) {
	def, err := Parse([]byte("---\nname: helper\n---\nbody\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.DMPolicyOrDefault() != types.DMOpen {
		t.Fatalf("dm policy = %v", def.DMPolicyOrDefault())
	}
	if def.DiscoverabilityOrDefault() != types.DiscoverablePublic {
		t.Fatalf("discoverable = %v", def.DiscoverabilityOrDefault())
	}
	if def.NeverDefault {
		t.Fatal("never_default should default to false")
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no fence":     "name: helper\n",
		"unterminated": "---\nname: helper\n",
		"bad yaml":     "---\nname: [\n---\n",
		"invalid name": "---\nname: Bad Name\n---\n",
		"empty name":   "---\ndescription: x\n---\n",
	}
	for label, content := range cases {
		if _, err := Parse([]byte(content)); err == nil {
			t.Errorf("%s: expected error", label)
		}
	}
}

func TestDiscoverDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("zeta.md", "---\nname: zeta\n---\n")
	write("alpha.md", "---\nname: alpha\n---\n")
	write("broken.md", "no frontmatter here")
	write("notes.txt", "ignored")

	defs, errs := DiscoverDir(dir, "0123456789abcdef0123456789abcdef")
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want 1", errs)
	}
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Fatalf("defs = %+v", defs)
	}
	if defs[0].ProjectID != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("project id = %s", defs[0].ProjectID)
	}
}

func TestDiscoverDirMissing(t *testing.T) {
	defs, errs := DiscoverDir(filepath.Join(t.TempDir(), "absent"), "")
	if defs != nil || errs != nil {
		t.Fatalf("defs=%v errs=%v, want nil/nil", defs, errs)
	}
}
