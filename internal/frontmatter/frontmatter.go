// Package frontmatter parses agent definition files: markdown documents
// whose leading `---` fence carries a YAML payload describing the agent.
package frontmatter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claude-slack/claude-slack/internal/types"
)

// AgentDef is the parsed frontmatter of one agent file.
type AgentDef struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tools        []string `yaml:"tools"`
	Channels     Channels `yaml:"channels"`
	NeverDefault bool     `yaml:"never_default"`
	DMPolicy     string   `yaml:"dm_policy"`
	Discoverable string   `yaml:"discoverable"`
	Path         string   `yaml:"-"` // source file
	ProjectID    string   `yaml:"-"` // "" for global agents
}

// Channels lists explicit subscriptions and default-channel exclusions.
type Channels struct {
	Global  []string `yaml:"global"`
	Project []string `yaml:"project"`
	Exclude []string `yaml:"exclude"`
}

// DMPolicyOrDefault maps the frontmatter string onto the typed policy,
// defaulting to open.
func (d AgentDef) DMPolicyOrDefault() types.DMPolicy {
	switch d.DMPolicy {
	case string(types.DMClosed):
		return types.DMClosed
	case string(types.DMRestricted):
		return types.DMRestricted
	default:
		return types.DMOpen
	}
}

// DiscoverabilityOrDefault maps the frontmatter string onto the typed
// discoverability, defaulting to public.
func (d AgentDef) DiscoverabilityOrDefault() types.Discoverability {
	switch d.Discoverable {
	case string(types.DiscoverableProject):
		return types.DiscoverableProject
	case string(types.DiscoverablePrivate):
		return types.DiscoverablePrivate
	default:
		return types.DiscoverablePublic
	}
}

// Parse extracts the YAML frontmatter from a markdown document. The file
// must start with a `---` line; the payload runs to the closing `---`.
func Parse(content []byte) (*AgentDef, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return nil, fmt.Errorf("no frontmatter fence")
	}
	var payload strings.Builder
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		payload.WriteString(line)
		payload.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan frontmatter: %w", err)
	}
	if !closed {
		return nil, fmt.Errorf("unterminated frontmatter fence")
	}

	def := &AgentDef{}
	if err := yaml.Unmarshal([]byte(payload.String()), def); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if err := types.ValidateName(def.Name); err != nil {
		return nil, fmt.Errorf("agent name %q: %w", def.Name, err)
	}
	return def, nil
}

// ParseFile reads and parses one agent file.
func ParseFile(path string) (*AgentDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Path = path
	return def, nil
}

// DiscoverDir parses every .md file in dir, tagging each definition with
// projectID. A missing directory yields no agents. Files that fail to
// parse are skipped and reported in the second return value so one bad
// file cannot block reconciliation.
func DiscoverDir(dir, projectID string) ([]AgentDef, []error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, []error{fmt.Errorf("read agents dir %s: %w", dir, err)}
	}

	var defs []AgentDef
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		def, err := ParseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def.ProjectID = projectID
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, errs
}
