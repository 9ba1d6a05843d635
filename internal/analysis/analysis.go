// Package analysis turns field text into index terms. Only three analyzers
// exist: standard (word split + lowercase), whitespace and keyword.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one term produced by an analyzer, with its ordinal position and
// byte span in the source text.
type Token struct {
	Term      string
	Position  int
	StartByte int
	EndByte   int
}

// Analyzer splits text into tokens. Implementations are stateless and safe
// for concurrent use.
type Analyzer interface {
	Analyze(field string, text string) []Token
}

// Func adapts a plain function to the Analyzer interface.
type Func func(field, text string) []Token

func (f Func) Analyze(field, text string) []Token { return f(field, text) }

// Standard splits on anything that is not a letter, digit or underscore and
// lowercases every term.
var Standard Analyzer = Func(func(_ string, text string) []Token {
	return split(text, isWordRune, strings.ToLower)
})

// Whitespace splits on Unicode whitespace and keeps case.
var Whitespace Analyzer = Func(func(_ string, text string) []Token {
	return split(text, func(r rune) bool { return !unicode.IsSpace(r) }, nil)
})

// Keyword emits the whole input as a single term.
var Keyword Analyzer = Func(func(_ string, text string) []Token {
	if text == "" {
		return nil
	}
	return []Token{{Term: text, EndByte: len(text)}}
})

// Terms returns only the term strings of a's output.
func Terms(a Analyzer, field, text string) []string {
	tokens := a.Analyze(field, text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// split collects maximal runs of runes accepted by keep.
func split(text string, keep func(rune) bool, normalize func(string) string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		term := text[start:end]
		if normalize != nil {
			term = normalize(term)
		}
		if term != "" {
			tokens = append(tokens, Token{
				Term:      term,
				Position:  len(tokens),
				StartByte: start,
				EndByte:   end,
			})
		}
		start = -1
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if keep(r) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
		i += size
	}
	flush(len(text))
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
