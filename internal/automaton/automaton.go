// Package automaton provides term matchers used to expand wildcard, fuzzy and
// prefix predicates against an index term dictionary.
package automaton

import (
	"errors"
	"strings"
)

var (
	ErrPatternTooLong       = errors.New("wildcard pattern exceeds maximum length")
	ErrStateLimitExceeded   = errors.New("DFA state limit exceeded during construction")
	ErrEditDistanceTooLarge = errors.New("edit distance out of range")
)

// Matcher decides whether an index term is accepted by an expanded predicate.
type Matcher interface {
	Match(term string) bool

	// Prefix is a literal that every accepted term starts with. Term
	// dictionaries use it to seek before testing candidates.
	Prefix() string
}

// Prefix accepts every term starting with a fixed string.
type Prefix string

func (p Prefix) Match(term string) bool { return strings.HasPrefix(term, string(p)) }

func (p Prefix) Prefix() string { return string(p) }

// Expand returns the terms from a sorted dictionary accepted by m, in
// dictionary order. sorted must be in ascending order; terms out of order
// may be skipped.
func Expand(m Matcher, sorted []string) []string {
	prefix := m.Prefix()
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if sorted[mid] < prefix {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	var out []string
	for _, term := range sorted[lo:] {
		if !strings.HasPrefix(term, prefix) {
			break
		}
		if m.Match(term) {
			out = append(out, term)
		}
	}
	return out
}
