package search

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

// TestTruncateProperties tests structural properties of truncate that must
// hold regardless of input, mirroring the invariants aggregation labels rely
// on to stay bounded in length.
func TestTruncateProperties(t *testing.T) {
	funcMap := GetTemplateFuncMap()
	truncateFunc := funcMap["truncate"].(func(string, int) string)

	t.Run("non-positive length yields empty string", func(t *testing.T) {
		err := quick.Check(func(s string, length int8) bool {
			if length > 0 {
				return true
			}
			return truncateFunc(s, int(length)) == ""
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "truncate with length <= 0 should always return empty string")
	})

	t.Run("string within length is unchanged", func(t *testing.T) {
		err := quick.Check(func(s string) bool {
			return truncateFunc(s, len(s)) == s
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "truncate with length equal to the string length should return it unchanged")
	})

	t.Run("result never exceeds requested length", func(t *testing.T) {
		err := quick.Check(func(s string, length uint8) bool {
			l := int(length)
			return len(truncateFunc(s, l)) <= l || l <= 0
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "truncate should never return a string longer than the requested length")
	})

	t.Run("idempotent once within bound", func(t *testing.T) {
		err := quick.Check(func(s string, length uint8) bool {
			l := int(length)
			once := truncateFunc(s, l)
			twice := truncateFunc(once, l)
			return once == twice
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "truncating an already-truncated string to the same length should be a no-op")
	})
}

// TestJoinProperties tests that join behaves consistently with strings.Join
// and composes sensibly with strings.Split, since both are driven from the
// same original-edge-ID slices.
func TestJoinProperties(t *testing.T) {
	funcMap := GetTemplateFuncMap()
	joinFunc := funcMap["join"].(func([]string, string) string)

	t.Run("matches strings.Join", func(t *testing.T) {
		err := quick.Check(func(elems []string, sep string) bool {
			return joinFunc(elems, sep) == strings.Join(elems, sep)
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "join should always agree with strings.Join")
	})

	t.Run("empty slice joins to empty string", func(t *testing.T) {
		err := quick.Check(func(sep string) bool {
			return joinFunc(nil, sep) == ""
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "joining a nil/empty slice should always return the empty string")
	})

	t.Run("single element is returned unchanged", func(t *testing.T) {
		err := quick.Check(func(elem, sep string) bool {
			return joinFunc([]string{elem}, sep) == elem
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "joining a single element should return that element regardless of separator")
	})

	t.Run("round-trips through split when separator is absent from elements", func(t *testing.T) {
		err := quick.Check(func(elems []string) bool {
			const sep = "\x00"
			for _, e := range elems {
				if strings.Contains(e, sep) {
					return true // separator collides with element content, skip
				}
			}
			joined := joinFunc(elems, sep)
			if len(elems) == 0 {
				return joined == ""
			}
			return strings.Split(joined, sep)[0] == elems[0]
		}, &quick.Config{MaxCount: 1000})
		assert.NoError(t, err, "splitting a joined slice on its separator should recover the first element")
	})
}
