// Package settings merges an agent preferences file with the container permissions policy.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/stagehook/internal/log"
)

// PermissionsKey is the only top-level key Merge overwrites.
const PermissionsKey = "permissions"

// Permissions is the fixed policy written under PermissionsKey.
type Permissions struct {
	DefaultMode           string   `json:"defaultMode"`
	Allow                 []string `json:"allow"`
	Deny                  []string `json:"deny"`
	AdditionalDirectories []string `json:"additionalDirectories"`
}

// ContainerPermissions returns the policy used inside the development container.
func ContainerPermissions() Permissions {
	return Permissions{
		DefaultMode: "bypassPermissions",
		Allow: []string{
			"Bash", "Edit", "Glob", "Grep", "LS", "List", "MultiEdit",
			"NotebookEdit", "NotebookRead", "Read", "Task", "TodoWrite", "WebSearch", "Write",
		},
		Deny: []string{
			"Bash(:*CLAUDE.md:*)",
			"Edit(*CLAUDE.md*)",
			"MultiEdit(*CLAUDE.md*)",
			"WriteFile(*CLAUDE.md)",
			"Write(*CLAUDE.md)",
			"Bash(git:*)",
		},
		AdditionalDirectories: []string{"/", "/workspace", "/home", "/etc", "/usr", "/var", "/tmp", "/root", "../"},
	}
}

// InvalidSettingsError reports a source file that is not a JSON object.
type InvalidSettingsError struct {
	Path string
	Err  error
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid JSON in settings file %s: %v", e.Path, e.Err)
}

func (e *InvalidSettingsError) Unwrap() error { return e.Err }

// Render returns the merged document for src without writing anything. A missing src
// merges as an empty object. Values other than permissions are carried through as raw
// JSON so numbers keep their exact text.
func Render(src string) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(src) //nolint:gosec // G304: user-supplied settings path
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug(log.CatConfig, "settings source missing, starting empty", "path", src)
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &InvalidSettingsError{Path: src, Err: err}
		}
		if doc == nil {
			return nil, &InvalidSettingsError{Path: src, Err: errors.New("top-level value is not an object")}
		}
	}

	perms, err := json.Marshal(ContainerPermissions())
	if err != nil {
		return nil, fmt.Errorf("encoding permissions: %w", err)
	}
	doc[PermissionsKey] = perms

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return append(out, '\n'), nil
}

// Merge writes src's settings with the container permissions to dst, creating dst's
// directory when needed.
func Merge(src, dst string) error {
	out, err := Render(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(dst, out, 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	log.Info(log.CatConfig, "merged settings", "src", src, "dst", dst)
	return nil
}

// Diff returns a line diff between dst's current content and what Merge would write.
// Lines are prefixed with "+", "-" or " ". A missing dst diffs against empty content.
func Diff(src, dst string) (string, error) {
	next, err := Render(src)
	if err != nil {
		return "", err
	}
	current, err := os.ReadFile(dst) //nolint:gosec // G304: user-supplied settings path
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading settings: %w", err)
	}
	return lineDiff(string(current), string(next)), nil
}

func lineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}
