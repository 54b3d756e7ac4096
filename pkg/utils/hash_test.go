package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathKey(t *testing.T) {
	safe := regexp.MustCompile(`^[0-9a-f]{16}$`)

	paths := []string{
		"/watched/a.txt",
		"/watched/quarterly report (final).pdf",
		`C:\Users\me\Downloads\photo 1.jpg`,
		"",
	}

	seen := map[string]string{}
	for _, p := range paths {
		key := PathKey(p)
		assert.Regexp(t, safe, key)
		assert.Equal(t, key, PathKey(p), "key must be stable")
		if other, ok := seen[key]; ok {
			t.Fatalf("collision between %q and %q", p, other)
		}
		seen[key] = p
	}
}
