package condition

import (
	"fmt"
	"slices"

	"GoRowSearch/internal/analysis"
	"GoRowSearch/internal/automaton"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/query"
)

// Matches reports whether a live row's fields satisfy c. It agrees with the
// engine on which documents a compiled condition selects and is used to
// recheck hits whose row changed after indexing.
func (cc *Compiler) Matches(c Condition, fields map[string]any) (bool, error) {
	q, err := cc.Compile(c)
	if err != nil {
		return false, err
	}
	return cc.Eval(q, fields)
}

// Eval evaluates a compiled query against one row.
func (cc *Compiler) Eval(q query.Query, fields map[string]any) (bool, error) {
	switch v := q.(type) {
	case *query.MatchAllQuery:
		return true, nil
	case *query.MatchNoneQuery:
		return false, nil
	case *query.BooleanQuery:
		return cc.evalBoolean(v, fields)
	case *query.TermQuery:
		terms, err := cc.rowTerms(v.Field, fields)
		if err != nil {
			return false, err
		}
		return slices.Contains(terms, v.Term), nil
	case *query.WildcardQuery:
		m, err := automaton.NewWildcard(v.Pattern)
		if err != nil {
			return false, err
		}
		return cc.anyTerm(v.Field, fields, m)
	case *query.FuzzyQuery:
		m, err := automaton.NewLevenshtein(v.Term, v.MaxEdits, v.PrefixLength, v.Transpositions)
		if err != nil {
			return false, err
		}
		return cc.anyTerm(v.Field, fields, m)
	case *query.NumericRangeQuery:
		nums, err := index.NumericValues(fields[v.Field])
		if err != nil {
			return false, nil
		}
		for _, n := range nums {
			if InRange(n, v.Min, v.Max, v.IncludeMin, v.IncludeMax) {
				return true, nil
			}
		}
		return false, nil
	case *query.TermRangeQuery:
		for _, s := range index.TextValues(fields[v.Field]) {
			if InRange(s, v.Min, v.Max, v.IncludeMin, v.IncludeMax) {
				return true, nil
			}
		}
		return false, nil
	case *query.GeoQuery:
		raw, ok := fields[v.Field]
		if !ok || raw == nil {
			return false, nil
		}
		points, err := geo.ParsePoints(raw)
		if err != nil {
			return false, nil
		}
		for _, p := range points {
			if v.Shape.ContainsPoint(p) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: cannot evaluate %T", ErrInvalidValue, q)
	}
}

func (cc *Compiler) evalBoolean(b *query.BooleanQuery, fields map[string]any) (bool, error) {
	var must, should, matchedShould int
	for _, c := range b.Clauses {
		ok, err := cc.Eval(c.Query, fields)
		if err != nil {
			return false, err
		}
		switch c.Occur {
		case query.BooleanMust:
			must++
			if !ok {
				return false, nil
			}
		case query.BooleanShould:
			should++
			if ok {
				matchedShould++
			}
		case query.BooleanMustNot:
			if ok {
				return false, nil
			}
		}
	}
	return matchedShould >= RequiredShould(b, must, should), nil
}

// RequiredShould is how many should clauses a document must match.
func RequiredShould(b *query.BooleanQuery, must, should int) int {
	if b.MinimumShouldMatch > 0 {
		return b.MinimumShouldMatch
	}
	if must == 0 && should > 0 {
		return 1
	}
	return 0
}

// InRange reports whether v lies between the optional bounds.
func InRange[T float64 | string](v T, lo, hi *T, incLo, incHi bool) bool {
	if lo != nil && (v < *lo || (v == *lo && !incLo)) {
		return false
	}
	if hi != nil && (v > *hi || (v == *hi && !incHi)) {
		return false
	}
	return true
}

func (cc *Compiler) rowTerms(field string, fields map[string]any) ([]string, error) {
	f, ok := cc.Schema.Field(field)
	if !ok {
		return nil, &SchemaMismatchError{Field: field, Kind: KindMatch}
	}
	a, err := cc.analyzer(f)
	if err != nil {
		return nil, err
	}
	return analysis.FieldTerms(a, field, fields[field]), nil
}

func (cc *Compiler) anyTerm(field string, fields map[string]any, m automaton.Matcher) (bool, error) {
	terms, err := cc.rowTerms(field, fields)
	if err != nil {
		return false, err
	}
	for _, t := range terms {
		if m.Match(t) {
			return true, nil
		}
	}
	return false, nil
}
