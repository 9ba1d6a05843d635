package automaton

import (
	"fmt"
	"strings"
)

// MaxEditDistance bounds fuzzy matching; larger budgets match most of the
// dictionary for short terms.
const MaxEditDistance = 2

// Levenshtein accepts terms within MaxEdits edits of Target. The first
// PrefixLength runes must match exactly. When Transpositions is set an
// adjacent swap counts as one edit (optimal string alignment distance).
type Levenshtein struct {
	target         []rune
	prefix         string
	maxEdits       int
	transpositions bool
}

// NewLevenshtein builds a fuzzy matcher. prefixLength is clamped to the
// target length.
func NewLevenshtein(target string, maxEdits, prefixLength int, transpositions bool) (*Levenshtein, error) {
	if maxEdits < 0 || maxEdits > MaxEditDistance {
		return nil, fmt.Errorf("%w: %d (allowed 0..%d)", ErrEditDistanceTooLarge, maxEdits, MaxEditDistance)
	}
	runes := []rune(target)
	if prefixLength < 0 {
		prefixLength = 0
	}
	if prefixLength > len(runes) {
		prefixLength = len(runes)
	}
	return &Levenshtein{
		target:         runes,
		prefix:         string(runes[:prefixLength]),
		maxEdits:       maxEdits,
		transpositions: transpositions,
	}, nil
}

// AutoEdits picks an edit budget from the term length: 0 for up to two runes,
// 1 for up to five and 2 beyond.
func AutoEdits(term string) int {
	switch n := len([]rune(term)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return MaxEditDistance
	}
}

func (l *Levenshtein) Prefix() string { return l.prefix }

// Match reports whether Distance(term) is within budget.
func (l *Levenshtein) Match(term string) bool {
	if !strings.HasPrefix(term, l.prefix) {
		return false
	}
	_, ok := l.Distance(term)
	return ok
}

// Distance returns the edit distance to term, or false once it is known to
// exceed the budget. Rows are computed one input rune at a time and the scan
// stops once no cell can come back under budget.
func (l *Levenshtein) Distance(term string) (int, bool) {
	in := []rune(term)
	n := len(l.target)
	if d := len(in) - n; d > l.maxEdits || -d > l.maxEdits {
		return 0, false
	}

	prev2 := make([]int, n+1)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := range prev {
		prev[j] = j
	}

	prevMin := 0
	for i := 1; i <= len(in); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= n; j++ {
			cost := 1
			if in[i-1] == l.target[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if l.transpositions && i > 1 && j > 1 &&
				in[i-1] == l.target[j-2] && in[i-2] == l.target[j-1] {
				v = min(v, prev2[j-2]+1)
			}
			cur[j] = v
			rowMin = min(rowMin, v)
		}
		// A transposition can still reach back two rows.
		if rowMin > l.maxEdits && (!l.transpositions || prevMin > l.maxEdits) {
			return 0, false
		}
		prevMin = rowMin
		prev2, prev, cur = prev, cur, prev2
	}

	d := prev[n]
	return d, d <= l.maxEdits
}
