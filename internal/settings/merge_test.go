package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestMerge_PreservesOtherKeys(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "user.json")
	dst := filepath.Join(dir, "out", "nested", "settings.json")
	require.NoError(t, os.WriteFile(src, []byte(`{
		"hooks": {"Stop": [{"command": "stagehook hook Stop"}]},
		"model": "opus",
		"permissions": {"allow": ["Nothing"]}
	}`), 0600))

	require.NoError(t, Merge(src, dst))

	doc := readDoc(t, dst)
	require.Equal(t, "opus", doc["model"])
	require.Contains(t, doc, "hooks")

	perms := doc[PermissionsKey].(map[string]any)
	require.Equal(t, "bypassPermissions", perms["defaultMode"])
	require.Len(t, perms["allow"], 14)
	require.Contains(t, perms["deny"], "Bash(git:*)")
	require.Contains(t, perms["additionalDirectories"], "../")
	require.NotContains(t, perms["allow"], "Nothing")
}

func TestMerge_MissingSourceWritesOnlyPermissions(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "settings.json")

	require.NoError(t, Merge(filepath.Join(dir, "absent.json"), dst))

	doc := readDoc(t, dst)
	require.Len(t, doc, 1)
	require.Contains(t, doc, PermissionsKey)
}

func TestMerge_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax": `{"model":`,
		"array":  `[1,2]`,
		"null":   `null`,
	} {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join(dir, name+".json")
			dst := filepath.Join(dir, name+"-out.json")
			require.NoError(t, os.WriteFile(src, []byte(body), 0600))

			err := Merge(src, dst)
			var invalid *InvalidSettingsError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, src, invalid.Path)
			require.NoFileExists(t, dst)
		})
	}
}

func TestMerge_IndentedOutput(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "settings.json")
	require.NoError(t, Merge(filepath.Join(dir, "none.json"), dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "{\n  \"permissions\": {\n    \"defaultMode\""))
}

func TestMerge_PreservesExactValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "integer above 2^64",
			body: `{"cleanupPeriodDays": 12345678901234567890}`,
			want: []string{`"cleanupPeriodDays": 12345678901234567890`},
		},
		{
			name: "integer above 2^53",
			body: `{"id": 9007199254740993}`,
			want: []string{`"id": 9007199254740993`},
		},
		{
			name: "exponent and nested numbers",
			body: `{"ratio": 1e400, "nested": {"n": 18014398509481985}}`,
			want: []string{`"ratio": 1e400`, `"n": 18014398509481985`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "user.json")
			dst := filepath.Join(dir, "settings.json")
			require.NoError(t, os.WriteFile(src, []byte(tt.body), 0600))

			require.NoError(t, Merge(src, dst))
			data, err := os.ReadFile(dst)
			require.NoError(t, err)
			for _, w := range tt.want {
				require.Contains(t, string(data), w)
			}
			require.True(t, strings.HasSuffix(string(data), "}\n"))
		})
	}
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "user.json")
	dst := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"model":"opus"}`), 0600))

	t.Run("missing destination is all additions", func(t *testing.T) {
		diff, err := Diff(src, dst)
		require.NoError(t, err)
		for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
			require.True(t, strings.HasPrefix(line, "+"), line)
		}
		require.Contains(t, diff, `+  "model": "opus"`)
	})

	t.Run("merged destination has no changes", func(t *testing.T) {
		require.NoError(t, Merge(src, dst))

		diff, err := Diff(src, dst)
		require.NoError(t, err)
		require.NotContains(t, diff, "\n+")
		require.NotContains(t, diff, "\n-")
		require.False(t, strings.HasPrefix(diff, "+") || strings.HasPrefix(diff, "-"))
	})

	t.Run("second merge leaves the file unchanged", func(t *testing.T) {
		require.NoError(t, Merge(src, dst))
		before, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.NoError(t, Merge(src, dst))
		after, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Equal(t, string(before), string(after))
	})
}

func TestLineDiff(t *testing.T) {
	got := lineDiff("a\nb\nc\n", "a\nB\nc\n")
	require.Equal(t, " a\n-b\n+B\n c\n", got)
}
