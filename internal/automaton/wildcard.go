package automaton

import (
	"fmt"
	"slices"
	"strings"
)

// Wildcard pattern limits.
const (
	MaxWildcardPatternLength = 256
	MaxDFAStates             = 4096
)

const deadState = -1

// Wildcard accepts terms matching a pattern where '*' matches any run of
// characters and '?' matches exactly one character. Matching is by rune.
//
// The pattern is compiled to a DFA by subset construction over the pattern's
// literal runes plus one "any other rune" class.
type Wildcard struct {
	pattern string
	prefix  string
	states  []dfaState
}

type dfaState struct {
	next      map[rune]int
	other     int
	accepting bool
}

// NewWildcard compiles pattern.
func NewWildcard(pattern string) (*Wildcard, error) {
	if len(pattern) > MaxWildcardPatternLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPatternTooLong, len(pattern), MaxWildcardPatternLength)
	}
	w := &Wildcard{pattern: pattern, prefix: literalPrefix(pattern)}
	if err := w.compile([]rune(pattern)); err != nil {
		return nil, err
	}
	return w, nil
}

// Match runs the DFA over term.
func (w *Wildcard) Match(term string) bool {
	s := 0
	for _, r := range term {
		st := &w.states[s]
		next, ok := st.next[r]
		if !ok {
			next = st.other
		}
		if next == deadState {
			return false
		}
		s = next
	}
	return w.states[s].accepting
}

func (w *Wildcard) Prefix() string { return w.prefix }

func (w *Wildcard) String() string { return w.pattern }

// NFA positions: position i means pattern[:i] has been consumed. A '*' at i
// has an epsilon edge to i+1 and loops on every rune.
func (w *Wildcard) compile(pat []rune) error {
	closure := func(set []int) []int {
		seen := make(map[int]bool, len(set))
		var out []int
		stack := append([]int(nil), set...)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			if p < len(pat) && pat[p] == '*' {
				stack = append(stack, p+1)
			}
		}
		slices.Sort(out)
		return out
	}
	// step returns the positions reached from set on rune r; literal is false
	// for the "other" class, which only '?' and '*' accept.
	step := func(set []int, r rune, literal bool) []int {
		var out []int
		for _, p := range set {
			if p >= len(pat) {
				continue
			}
			switch c := pat[p]; {
			case c == '*':
				out = append(out, p)
			case c == '?':
				out = append(out, p+1)
			case literal && c == r:
				out = append(out, p+1)
			}
		}
		return closure(out)
	}
	key := func(set []int) string {
		var b strings.Builder
		for _, p := range set {
			fmt.Fprintf(&b, "%d,", p)
		}
		return b.String()
	}

	var alphabet []rune
	for _, c := range pat {
		if c != '*' && c != '?' && !slices.Contains(alphabet, c) {
			alphabet = append(alphabet, c)
		}
	}

	ids := map[string]int{}
	var sets [][]int
	add := func(set []int) (int, error) {
		if len(set) == 0 {
			return deadState, nil
		}
		k := key(set)
		if id, ok := ids[k]; ok {
			return id, nil
		}
		if len(sets) >= MaxDFAStates {
			return 0, ErrStateLimitExceeded
		}
		id := len(sets)
		ids[k] = id
		sets = append(sets, set)
		w.states = append(w.states, dfaState{
			next:      make(map[rune]int, len(alphabet)),
			accepting: slices.Contains(set, len(pat)),
		})
		return id, nil
	}

	if _, err := add(closure([]int{0})); err != nil {
		return err
	}
	for i := 0; i < len(sets); i++ {
		for _, r := range alphabet {
			id, err := add(step(sets[i], r, true))
			if err != nil {
				return err
			}
			w.states[i].next[r] = id
		}
		id, err := add(step(sets[i], 0, false))
		if err != nil {
			return err
		}
		w.states[i].other = id
	}
	return nil
}

// literalPrefix is the pattern up to its first metacharacter.
func literalPrefix(pattern string) string {
	for i, r := range pattern {
		if r == '*' || r == '?' {
			return pattern[:i]
		}
	}
	return pattern
}
