package automaton

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		term    string
		want    bool
	}{
		{"hel*", "hello", true},
		{"hel*", "hel", true},
		{"hel*", "help", true},
		{"hel*", "he", false},
		{"h?llo", "hello", true},
		{"h?llo", "hallo", true},
		{"h?llo", "hllo", false},
		{"*world", "hello world", true},
		{"*world", "worlds", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "acb", false},
		{"*", "", true},
		{"?", "", false},
		{"caf?", "café", true},
		{"*é", "résumé", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"**a", "bba", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.term, func(t *testing.T) {
			w, err := NewWildcard(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Match(tt.term))
		})
	}
}

func TestWildcard_Prefix(t *testing.T) {
	w, err := NewWildcard("act?v*")
	require.NoError(t, err)
	assert.Equal(t, "act", w.Prefix())
	assert.Equal(t, "act?v*", w.String())

	w, err = NewWildcard("*x")
	require.NoError(t, err)
	assert.Equal(t, "", w.Prefix())
}

func TestWildcard_TooLong(t *testing.T) {
	long := make([]byte, MaxWildcardPatternLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewWildcard(string(long))
	assert.ErrorIs(t, err, ErrPatternTooLong)
}

func TestLevenshtein_Distance(t *testing.T) {
	tests := []struct {
		target, term string
		edits        int
		transpose    bool
		want         int
		ok           bool
	}{
		{"active", "active", 2, false, 0, true},
		{"active", "activ", 2, false, 1, true},
		{"active", "actives", 2, false, 1, true},
		{"active", "axtive", 2, false, 1, true},
		{"active", "acitve", 2, false, 2, true},
		{"active", "acitve", 2, true, 1, true},
		{"active", "passive", 2, false, 0, false},
		{"active", "act", 2, false, 0, false},
		{"kitten", "sitting", 2, false, 0, false},
		{"café", "cafe", 1, false, 1, true},
		{"ab", "ba", 1, true, 1, true},
		{"ab", "ba", 1, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.term, func(t *testing.T) {
			l, err := NewLevenshtein(tt.target, tt.edits, 0, tt.transpose)
			require.NoError(t, err)
			got, ok := l.Distance(tt.term)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLevenshtein_PrefixLength(t *testing.T) {
	l, err := NewLevenshtein("active", 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "ac", l.Prefix())
	assert.True(t, l.Match("actuve"))
	assert.False(t, l.Match("bctive"), "prefix must match exactly")

	l, err = NewLevenshtein("go", 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, "go", l.Prefix())
}

func TestLevenshtein_InvalidBudget(t *testing.T) {
	_, err := NewLevenshtein("x", 3, 0, false)
	assert.ErrorIs(t, err, ErrEditDistanceTooLarge)
	_, err = NewLevenshtein("x", -1, 0, false)
	assert.ErrorIs(t, err, ErrEditDistanceTooLarge)
}

func TestAutoEdits(t *testing.T) {
	assert.Equal(t, 0, AutoEdits("ab"))
	assert.Equal(t, 1, AutoEdits("abcde"))
	assert.Equal(t, 2, AutoEdits("abcdef"))
}

func TestExpand(t *testing.T) {
	dict := []string{"active", "activist", "actor", "banana", "inactive"}
	require.True(t, slices.IsSorted(dict))

	assert.Equal(t, []string{"active", "activist"}, Expand(Prefix("activ"), dict))

	w, err := NewWildcard("*tive")
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "inactive"}, Expand(w, dict))

	l, err := NewLevenshtein("activ", 1, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, Expand(l, dict))

	assert.Empty(t, Expand(Prefix("zzz"), dict))
}

func TestExpand_RequiresSortedDictionary(t *testing.T) {
	unsorted := []string{"actor", "active", "activist", "banana", "inactive"}
	require.False(t, slices.IsSorted(unsorted))

	// The binary search to the prefix skips terms an unsorted slice keeps
	// out of place.
	assert.Empty(t, Expand(Prefix("activ"), unsorted))
	assert.Equal(t, []string{"active", "activist"}, Expand(Prefix("activ"), slices.Sorted(slices.Values(unsorted))))
}

func FuzzWildcardStar(f *testing.F) {
	f.Add("hello")
	f.Add("")
	f.Add("ünï")
	f.Fuzz(func(t *testing.T, term string) {
		w, err := NewWildcard("*")
		if err != nil {
			t.Fatal(err)
		}
		if !w.Match(term) {
			t.Fatalf("* rejected %q", term)
		}
	})
}
