// Package transcript inspects the agent's append-only conversation transcript. The
// inspector is advisory: every I/O failure reads as "not ready" or "not contained".
package transcript

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/zjrosen/stagehook/internal/log"
)

// DefaultTailBytes is the trailing window searched for markers.
const DefaultTailBytes int64 = 64 * 1024

const (
	tailCacheTTL     = time.Minute
	tailCacheCleanup = 5 * time.Minute
)

// Inspector reads bounded tails of transcript files.
type Inspector struct {
	tailBytes int64
	tails     *cache.Cache
}

// NewInspector creates an Inspector searching the last tailBytes of a transcript.
// A non-positive tailBytes selects DefaultTailBytes.
func NewInspector(tailBytes int64) *Inspector {
	if tailBytes <= 0 {
		tailBytes = DefaultTailBytes
	}
	return &Inspector{
		tailBytes: tailBytes,
		tails:     cache.New(tailCacheTTL, tailCacheCleanup),
	}
}

// TailBytes returns the configured window size.
func (i *Inspector) TailBytes() int64 {
	return i.tailBytes
}

// Ready reports whether path names an existing, non-empty file.
func (i *Inspector) Ready(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// Size returns the transcript size in bytes, or 0 when it cannot be read.
func (i *Inspector) Size(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

// Contains reports whether marker occurs in the trailing window of the transcript.
func (i *Inspector) Contains(path, marker string) bool {
	if path == "" || marker == "" {
		return false
	}
	tail, err := i.Tail(path)
	if err != nil {
		log.Debug(log.CatHook, "transcript tail unavailable", "path", path, "error", err)
		return false
	}
	return strings.Contains(tail, marker)
}

// Tail returns the trailing window of path as text. Bytes that are not valid UTF-8,
// including a rune split by the window boundary, are dropped.
func (i *Inspector) Tail(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat transcript: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("transcript %s is a directory", path)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if cached, ok := i.tails.Get(key); ok {
		return cached.(string), nil
	}

	raw, err := readTail(path, info.Size(), i.tailBytes)
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(raw), "")
	i.tails.Set(key, text, cache.DefaultExpiration)
	return text, nil
}

func readTail(path string, size, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // G304: transcript path comes from the hook payload
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset := int64(0)
	if size > maxBytes {
		offset = size - maxBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking transcript: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return data, nil
}
