// Package paths resolves the project-local directories stagehook reads and writes.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the project-local directory holding session records, locks and logs.
const StateDirName = ".claude"

// ProjectConfigName is the config file looked up inside the state directory.
const ProjectConfigName = "stagehook.yaml"

// ResolveStateDir returns the state directory for a project.
//
// A path already ending in .claude is used as-is; anything else gets .claude appended.
// If the resolved directory contains a "redirect" file, its trimmed content names the
// real state directory (relative paths are resolved against the .claude directory). This
// lets several worktrees of one repository share workflow state.
func ResolveStateDir(projectDir string) string {
	cleaned := filepath.Clean(projectDir)
	if projectDir == "" {
		cleaned = "."
	}

	dir := cleaned
	if filepath.Base(cleaned) != StateDirName {
		dir = filepath.Join(cleaned, StateDirName)
	}

	data, err := os.ReadFile(filepath.Join(dir, "redirect")) //nolint:gosec // G304: fixed file name under the project dir
	if err != nil {
		return dir
	}
	target := strings.TrimSpace(string(data))
	if target == "" {
		return dir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dir, target))
}

// ProjectConfigPath returns the project-level config file path for projectDir.
func ProjectConfigPath(projectDir string) string {
	return filepath.Join(ResolveStateDir(projectDir), ProjectConfigName)
}

// UserConfigDir returns the per-user config directory, honoring XDG_CONFIG_HOME.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stagehook")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "stagehook")
	}
	return filepath.Join(home, ".config", "stagehook")
}
