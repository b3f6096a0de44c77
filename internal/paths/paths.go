// Package paths resolves where claude-slack keeps its state: the config
// root, the database file, logs, the session fallback spool, and agent
// frontmatter directories.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables recognized by every entry point.
const (
	EnvConfigDir  = "CLAUDE_CONFIG_DIR"
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
	EnvAPIURL     = "CLAUDE_SLACK_API_URL"
	EnvDebug      = "CLAUDE_SLACK_DEBUG"
	EnvPerf       = "CLAUDE_SLACK_PERF"
)

// markerDir is the well-known subdirectory that marks a project root.
const markerDir = ".claude"

// defaultAPIURL is used when CLAUDE_SLACK_API_URL is unset.
const defaultAPIURL = "http://127.0.0.1:8765"

// ConfigDir returns the claude-slack root directory, honoring
// CLAUDE_CONFIG_DIR and defaulting to ~/.claude.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, markerDir), nil
}

// DBPath returns the store file path under the config root.
func DBPath(configDir string) string {
	return filepath.Join(configDir, "claude-slack", "data", "claude-slack.db")
}

// LogsDir returns the rotating log directory.
func LogsDir(configDir string) string {
	return filepath.Join(configDir, "claude-slack", "logs")
}

// SessionsDir returns the fallback spool directory, written when the store
// is busy and re-ingested at the next session start.
func SessionsDir(configDir string) string {
	return filepath.Join(configDir, "claude-slack", "sessions")
}

// ConfigFile returns the YAML configuration file path.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, "claude-slack", "config.yaml")
}

// GlobalAgentsDir returns where global agent frontmatter files live.
func GlobalAgentsDir(configDir string) string {
	return filepath.Join(configDir, "agents")
}

// ProjectAgentsDir returns where a project's agent frontmatter files live.
func ProjectAgentsDir(projectRoot string) string {
	return filepath.Join(projectRoot, markerDir, "agents")
}

// APIURL returns the writer service endpoint, honoring CLAUDE_SLACK_API_URL.
func APIURL() string {
	if url := os.Getenv(EnvAPIURL); url != "" {
		return url
	}
	return defaultAPIURL
}

// DebugEnabled reports whether debug logging is requested.
func DebugEnabled() bool {
	v := os.Getenv(EnvDebug)
	return v != "" && v != "0" && v != "false"
}

// FindProjectRoot walks upward from startPath until it finds a directory
// containing the .claude marker, mimicking how git locates .git/. An
// explicit CLAUDE_PROJECT_DIR override wins. Returns "" (no error) when no
// project root exists; the caller falls back to global scope.
func FindProjectRoot(startPath string) (string, error) {
	if override := os.Getenv(EnvProjectDir); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve project override: %w", err)
		}
		return abs, nil
	}

	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	dir := abs
	for {
		marker := filepath.Join(dir, markerDir)
		info, err := os.Stat(marker)
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
