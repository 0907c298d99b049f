package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	maxTagLength = 128
	hashLength   = 8
	// LatestTag Movable alias, never used as a build output
	LatestTag = "latest"
)

// RevisionTag Derives a registry tag from a source revision. Characters outside [A-Za-z0-9_.-] become '-',
// a leading '.' or '-' is prefixed, and the result is cut to the registry maximum.
// Whenever the revision had to be rewritten, a short hash of the revision is appended so that
// distinct revisions never share a tag.
func RevisionTag(revision string) string {
	revision = strings.TrimSpace(revision)
	if revision == "" {
		return ""
	}
	var sb strings.Builder
	for _, r := range revision {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	tag := sb.String()
	if tag[0] == '.' || tag[0] == '-' {
		tag = "r" + tag
	}
	if strings.EqualFold(tag, LatestTag) {
		tag = "rev-" + tag
	}
	if tag == revision && len(tag) <= maxTagLength {
		return tag
	}
	if len(tag) > maxTagLength-hashLength-1 {
		tag = tag[:maxTagLength-hashLength-1]
	}
	return tag + "-" + revisionHash(revision)
}

func revisionHash(revision string) string {
	sum := sha256.Sum256([]byte(revision))
	return hex.EncodeToString(sum[:])[:hashLength]
}
