// Package normalize implements the text normalization and hashing
// pipeline that change detection is built on. Hashing is grounded on
// core/pkg/crypto.CanonicalHasher's shape (a small function producing
// a hex-encoded sha256 digest) adapted from canonical-JSON input to
// plain normalized text.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	trailingWhitespace = regexp.MustCompile(`[ \t]+\n`)
	internalSpaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
	excessBlankLines   = regexp.MustCompile(`\n{3,}`)
)

// Text applies the five-step normalization pipeline: CRLF/CR to LF, trim
// trailing whitespace per line, collapse internal space/tab runs,
// collapse three-or-more newlines to two, trim the whole string.
// Applying Text twice produces the same result as applying it once.
func Text(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingWhitespace.ReplaceAllString(s, "\n")
	s = internalSpaceRuns.ReplaceAllString(s, " ")
	s = excessBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Hash returns the lowercase hex-encoded SHA-256 digest of s. It is
// deterministic: equal inputs always produce equal 64-character
// output.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
