// ABOUTME: Normalizes failure messages into stable signatures for spotting repeat failures.
// ABOUTME: UUIDs, timestamps, quoted paths, hex strings, and numbers collapse to placeholders.

package stream

import (
	"regexp"
	"sync"
)

// Normalization patterns, applied most specific first so the general ones
// cannot eat pieces of the specific ones.
var (
	uuidPattern      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`)

	// Quoted paths need "/" inside the quotes; separate double- and
	// single-quote patterns keep mismatched delimiters from pairing up.
	doubleQuotedPathPattern = regexp.MustCompile(`"[^"]*\/[^"]*"`)
	singleQuotedPathPattern = regexp.MustCompile(`'[^']*\/[^']*'`)

	hexPrefixedPattern   = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	hexStandalonePattern = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	numberPattern        = regexp.MustCompile(`\b\d+\b`)
)

// NormalizeFailure replaces the variable parts of a failure message with
// placeholders, so two failures that differ only in ids, addresses, or
// counters compare equal.
func NormalizeFailure(msg string) string {
	if msg == "" {
		return ""
	}

	result := uuidPattern.ReplaceAllString(msg, "<UUID>")
	result = timestampPattern.ReplaceAllString(result, "<TIMESTAMP>")
	result = doubleQuotedPathPattern.ReplaceAllString(result, "<PATH>")
	result = singleQuotedPathPattern.ReplaceAllString(result, "<PATH>")
	result = hexPrefixedPattern.ReplaceAllString(result, "<HEX>")
	result = hexStandalonePattern.ReplaceAllStringFunc(result, hexOrKeep)
	result = numberPattern.ReplaceAllString(result, "<N>")
	return result
}

// hexOrKeep collapses a long hex token only when it contains a hex letter;
// all-digit tokens are left for the number pattern.
func hexOrKeep(match string) string {
	for _, c := range match {
		if (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			return "<HEX>"
		}
	}
	return match
}

// SignatureTracker counts normalized failure signatures across reconnect
// attempts. Safe for concurrent use.
type SignatureTracker struct {
	mu         sync.Mutex
	signatures map[string]int
}

// NewSignatureTracker returns an empty tracker.
func NewSignatureTracker() *SignatureTracker {
	return &SignatureTracker{signatures: make(map[string]int)}
}

// Record normalizes the error message, bumps its signature count, and
// returns the signature.
func (t *SignatureTracker) Record(err error) string {
	sig := NormalizeFailure(err.Error())
	t.mu.Lock()
	t.signatures[sig]++
	t.mu.Unlock()
	return sig
}

// Count returns how many times the signature has been recorded.
func (t *SignatureTracker) Count(signature string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signatures[signature]
}

// IsDeterministic reports whether the signature has repeated, which points
// at a persistent failure rather than a transient one.
func (t *SignatureTracker) IsDeterministic(signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signatures[signature] >= 2
}
