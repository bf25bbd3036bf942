package workflow

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/stagehook/internal/log"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// document is the on-disk shape of a workflow file.
type document struct {
	Workflows []*Definition `yaml:"workflows"`
}

// ParseDefinitions decodes a workflow YAML document and validates every definition.
func ParseDefinitions(data []byte, source Source) ([]*Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing workflow yaml: %w", err)
	}
	for i, def := range doc.Workflows {
		if def == nil {
			return nil, fmt.Errorf("workflow %d: empty definition", i)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("workflow %d: %w", i, err)
		}
		def.Source = source
	}
	return doc.Workflows, nil
}

// LoadFromFS reads every *.yaml file directly under dir in fsys, in file name order.
func LoadFromFS(fsys fs.FS, dir string, source Source) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflow dir %s: %w", dir, err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		p := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		parsed, err := ParseDefinitions(data, source)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// LoadBuiltins returns the embedded built-in workflows.
func LoadBuiltins() ([]*Definition, error) {
	return LoadFromFS(builtinFS, "builtin", SourceBuiltIn)
}

// LoadUserDir reads user workflow files. Unreadable or invalid files are logged and
// skipped so one bad file never disables the hook. A missing directory yields nothing.
func LoadUserDir(dir string) []*Definition {
	dir = expandHome(dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn(log.CatConfig, "reading user workflow dir", "dir", dir, "error", err)
		}
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isYAML(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []*Definition
	for _, name := range names {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p) //nolint:gosec // G304: user-configured workflow directory
		if err != nil {
			log.Warn(log.CatConfig, "reading user workflow", "path", p, "error", err)
			continue
		}
		parsed, err := ParseDefinitions(data, SourceUser)
		if err != nil {
			log.Warn(log.CatConfig, "skipping invalid user workflow", "path", p, "error", err)
			continue
		}
		for _, def := range parsed {
			def.FilePath = p
		}
		defs = append(defs, parsed...)
	}
	return defs
}

// LoadCommunity loads community workflows from fsys and keeps only those whose trigger
// is listed in enabled, in enabled order. Unknown triggers are logged.
func LoadCommunity(fsys fs.FS, enabled []string) []*Definition {
	if fsys == nil || len(enabled) == 0 {
		return nil
	}
	all, err := LoadFromFS(fsys, "workflows", SourceCommunity)
	if err != nil {
		log.Warn(log.CatConfig, "loading community workflows", "error", err.Error())
		return nil
	}

	available := make(map[string]*Definition, len(all))
	for _, def := range all {
		available[def.Trigger] = def
	}

	var filtered []*Definition
	for _, trigger := range enabled {
		def, ok := available[trigger]
		if !ok {
			log.Warn(log.CatConfig, "enabled community workflow not found",
				"trigger", trigger,
				"available", availableTriggers(all))
			continue
		}
		filtered = append(filtered, def)
	}
	return filtered
}

func availableTriggers(defs []*Definition) string {
	if len(defs) == 0 {
		return "(none)"
	}
	triggers := make([]string, len(defs))
	for i, d := range defs {
		triggers[i] = d.Trigger
	}
	return strings.Join(triggers, ", ")
}

func isYAML(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func expandHome(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return dir
		}
		return filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir
}
