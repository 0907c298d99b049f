package builder

import (
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/stretchr/testify/assert"
)

func Test_RevisionTag(t *testing.T) {
	long := strings.Repeat("a", 200)
	scenarios := []struct {
		revision string
		expected string
	}{
		{revision: "abc123", expected: "abc123"},
		{revision: "  v1.2.3 ", expected: "v1.2.3"},
		{revision: "feature-login", expected: "feature-login"},
		{revision: "feature/login", expected: "feature-login-" + revisionHash("feature/login")},
		{revision: ".hidden", expected: "r.hidden-" + revisionHash(".hidden")},
		{revision: "latest", expected: "rev-latest-" + revisionHash("latest")},
		{revision: "", expected: ""},
		{revision: strings.Repeat("a", 128), expected: strings.Repeat("a", 128)},
		{revision: long, expected: strings.Repeat("a", 119) + "-" + revisionHash(long)},
	}
	for _, ts := range scenarios {
		t.Run(ts.revision, func(t *testing.T) {
			tag := RevisionTag(ts.revision)
			assert.Equal(t, ts.expected, tag)
			assert.LessOrEqual(t, len(tag), maxTagLength)
			if tag != "" {
				_, err := name.NewTag("registry.example.com/streamlit-app:" + tag)
				assert.NoError(t, err)
			}
		})
	}
}

func Test_RevisionTag_DistinctRevisionsDoNotCollide(t *testing.T) {
	groups := [][]string{
		{"feature/x", "feature-x", "feature:x", "feature x"},
		{"latest", "rev-latest", "LATEST"},
		{".hidden", "r.hidden", "-hidden"},
		{strings.Repeat("a", 200), strings.Repeat("a", 201), strings.Repeat("a", 128)},
	}
	for _, revisions := range groups {
		seen := map[string]string{}
		for _, revision := range revisions {
			tag := RevisionTag(revision)
			if other, ok := seen[tag]; ok {
				t.Errorf("revisions %q and %q both map to tag %q", other, revision, tag)
			}
			seen[tag] = revision
		}
	}
}
