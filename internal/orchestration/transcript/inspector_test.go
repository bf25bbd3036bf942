package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestNewInspector_DefaultTail(t *testing.T) {
	require.Equal(t, DefaultTailBytes, NewInspector(0).TailBytes())
	require.Equal(t, DefaultTailBytes, NewInspector(-5).TailBytes())
	require.Equal(t, int64(10), NewInspector(10).TailBytes())
}

func TestReady(t *testing.T) {
	insp := NewInspector(0)

	require.False(t, insp.Ready(""))
	require.False(t, insp.Ready(filepath.Join(t.TempDir(), "missing")))
	require.False(t, insp.Ready(writeTranscript(t, nil)), "empty file is not ready")
	require.False(t, insp.Ready(t.TempDir()), "directory is not ready")
	require.True(t, insp.Ready(writeTranscript(t, []byte("{}\n"))))
}

func TestSize(t *testing.T) {
	insp := NewInspector(0)
	require.Equal(t, int64(0), insp.Size(""))
	require.Equal(t, int64(0), insp.Size(filepath.Join(t.TempDir(), "missing")))
	require.Equal(t, int64(5), insp.Size(writeTranscript(t, []byte("hello"))))
}

func TestContains(t *testing.T) {
	marker := "[WF:--test:0:abc]"

	t.Run("marker present", func(t *testing.T) {
		path := writeTranscript(t, []byte(`{"text":"`+marker+`"}`))
		require.True(t, NewInspector(0).Contains(path, marker))
	})

	t.Run("marker absent", func(t *testing.T) {
		path := writeTranscript(t, []byte(`{"text":"[WF:--test:1:abc]"}`))
		require.False(t, NewInspector(0).Contains(path, marker))
	})

	t.Run("missing file", func(t *testing.T) {
		require.False(t, NewInspector(0).Contains(filepath.Join(t.TempDir(), "nope"), marker))
	})

	t.Run("empty marker", func(t *testing.T) {
		path := writeTranscript(t, []byte("anything"))
		require.False(t, NewInspector(0).Contains(path, ""))
	})
}

func TestContains_OnlySearchesTail(t *testing.T) {
	marker := "[WF:--longrun:3:s1]"
	content := marker + strings.Repeat("x", 100)
	path := writeTranscript(t, []byte(content))

	require.False(t, NewInspector(50).Contains(path, marker), "marker outside the window")
	require.True(t, NewInspector(int64(len(content))).Contains(path, marker))
}

func TestContains_DropsInvalidUTF8(t *testing.T) {
	marker := "[WF:--test:2:s]"
	content := append([]byte{0xff, 0xfe, '['}, []byte("WF:--test:2:s]")...)
	content = append(content, 0xc3)
	path := writeTranscript(t, content)

	require.True(t, NewInspector(0).Contains(path, marker))
}

func TestTail_SplitRuneAtWindowStart(t *testing.T) {
	// "é" is two bytes; a 3-byte window starts in the middle of it.
	path := writeTranscript(t, []byte("éab"))
	tail, err := NewInspector(3).Tail(path)
	require.NoError(t, err)
	require.Equal(t, "ab", tail)
}

func TestTail_SeesAppends(t *testing.T) {
	path := writeTranscript(t, []byte("first line\n"))
	insp := NewInspector(0)

	require.False(t, insp.Contains(path, "second"))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("second line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.True(t, insp.Contains(path, "second"), "size change invalidates the memoized tail")
}

func TestTail_ReusesUnchangedWindow(t *testing.T) {
	path := writeTranscript(t, []byte("marker-a\n"))
	insp := NewInspector(0)
	require.True(t, insp.Contains(path, "marker-a"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	// Same size and mtime: the file reads as unchanged and the memoized tail answers.
	require.NoError(t, os.WriteFile(path, []byte("marker-b\n"), 0644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	require.True(t, insp.Contains(path, "marker-a"))
	require.False(t, insp.Contains(path, "marker-b"))
	require.True(t, NewInspector(0).Contains(path, "marker-b"), "a fresh inspector reads the file")
}
