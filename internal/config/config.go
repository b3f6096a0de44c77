// Package config loads the claude-slack YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/claude-slack/claude-slack/internal/paths"
)

// Config is the parsed configuration file.
type Config struct {
	Version         string          `yaml:"version"`
	DefaultChannels DefaultChannels `yaml:"default_channels"`
	ProjectLinks    []ProjectLink   `yaml:"project_links"`
	Settings        Settings        `yaml:"settings"`
	DefaultMCPTools []string        `yaml:"default_mcp_tools"`
}

// DefaultChannels lists the channels every agent is subscribed to by
// default, per scope.
type DefaultChannels struct {
	Global  []ChannelSpec `yaml:"global"`
	Project []ChannelSpec `yaml:"project"`
}

// ChannelSpec declares one default channel.
type ChannelSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ProjectLink declares a desired link between two project paths.
type ProjectLink struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Type   string `yaml:"type"` // a_to_b, b_to_a, bidirectional
}

// Settings are the tunables consumed across the system.
type Settings struct {
	MessageRetentionDays int  `yaml:"message_retention_days"`
	MaxMessageLength     int  `yaml:"max_message_length"`
	AutoCreateChannels   bool `yaml:"auto_create_channels"`
	AutoLinkProjects     bool `yaml:"auto_link_projects"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: "1",
		DefaultChannels: DefaultChannels{
			Global: []ChannelSpec{
				{Name: "general", Description: "General discussion"},
				{Name: "announcements", Description: "System announcements"},
			},
			Project: []ChannelSpec{
				{Name: "general", Description: "Project discussion"},
			},
		},
		Settings: Settings{
			MessageRetentionDays: 30,
			MaxMessageLength:     10000,
			AutoCreateChannels:   true,
			AutoLinkProjects:     false,
		},
		DefaultMCPTools: []string{
			"send_message", "get_messages", "search_messages", "list_channels",
		},
	}
}

// Load reads the config file at path. A missing file yields Default();
// a malformed file is an error. Zero-valued settings are filled from the
// defaults so a partial file stays usable.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	def := Default()
	if cfg.Settings.MessageRetentionDays == 0 {
		cfg.Settings.MessageRetentionDays = def.Settings.MessageRetentionDays
	}
	if cfg.Settings.MaxMessageLength == 0 {
		cfg.Settings.MaxMessageLength = def.Settings.MaxMessageLength
	}
	return cfg, nil
}

// LoadDefault loads the config from the standard location under the
// claude-slack config dir.
func LoadDefault() (*Config, error) {
	dir, err := paths.ConfigDir()
	if err != nil {
		return nil, err
	}
	return Load(paths.ConfigFile(dir))
}
