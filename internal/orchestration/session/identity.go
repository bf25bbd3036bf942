package session

import (
	"crypto/sha1" //nolint:gosec // G505: identifier derivation, not a security boundary
	"encoding/hex"
	"strings"
)

// derivedIDLength is the number of hex characters kept from the derived hash.
const derivedIDLength = 12

// ResolveID returns the session identifier for a hook invocation. An explicit id is used
// as-is when it is safe as a file name component; otherwise the id is derived from a
// hash of the transcript path, falling back to the working directory. The same inputs
// always resolve to the same id.
func ResolveID(explicit, transcriptPath, cwd string) string {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if isSafeID(explicit) {
			return explicit
		}
		return hashID(explicit)
	}
	basis := transcriptPath
	if basis == "" {
		basis = cwd
	}
	return hashID(basis)
}

func hashID(basis string) string {
	sum := sha1.Sum([]byte(basis)) //nolint:gosec // G401: see import
	return hex.EncodeToString(sum[:])[:derivedIDLength]
}

func isSafeID(id string) bool {
	if id == "." || id == ".." || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
