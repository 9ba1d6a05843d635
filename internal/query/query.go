// Package query defines the engine-native query AST that conditions compile
// into, plus a structural rewriter.
package query

import (
	"fmt"
	"strings"
)

// QueryType identifies the kind of query node.
type QueryType int

const (
	QueryTypeTerm QueryType = iota
	QueryTypeBoolean
	QueryTypeNumericRange
	QueryTypeTermRange
	QueryTypeWildcard
	QueryTypeFuzzy
	QueryTypeGeo
	QueryTypeMatchAll
	QueryTypeMatchNone
)

var typeNames = [...]string{
	QueryTypeTerm:         "term",
	QueryTypeBoolean:      "boolean",
	QueryTypeNumericRange: "numeric_range",
	QueryTypeTermRange:    "term_range",
	QueryTypeWildcard:     "wildcard",
	QueryTypeFuzzy:        "fuzzy",
	QueryTypeGeo:          "geo",
	QueryTypeMatchAll:     "match_all",
	QueryTypeMatchNone:    "match_none",
}

func (t QueryType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("QueryType(%d)", int(t))
}

// Query is the interface for all query AST nodes.
type Query interface {
	Type() QueryType
}

// Boolean operator limits.
const (
	MaxBooleanClauses = 1024
	MaxBooleanDepth   = 10
)

// Fuzzy limits.
const (
	MaxFuzzyDistance  = 2
	MaxFuzzyExpansion = 500
)

// Expansion limit for wildcard terms.
const MaxTermsExpanded = 1000

// BoostOf returns a node's boost, treating an unset boost as 1.
func BoostOf(q Query) float32 {
	var b float32
	switch v := q.(type) {
	case *TermQuery:
		b = v.Boost
	case *BooleanQuery:
		b = v.Boost
	case *NumericRangeQuery:
		b = v.Boost
	case *TermRangeQuery:
		b = v.Boost
	case *WildcardQuery:
		b = v.Boost
	case *FuzzyQuery:
		b = v.Boost
	case *GeoQuery:
		b = v.Boost
	case *MatchAllQuery:
		b = v.Boost
	}
	if b == 0 {
		return 1
	}
	return b
}

// String renders q in a compact prefix form for logs and debugging.
func String(q Query) string {
	var b strings.Builder
	writeQuery(&b, q)
	return b.String()
}

func writeQuery(b *strings.Builder, q Query) {
	switch v := q.(type) {
	case nil:
		b.WriteString("<nil>")
	case *TermQuery:
		fmt.Fprintf(b, "%s:%q", v.Field, v.Term)
	case *BooleanQuery:
		b.WriteString("(")
		for i, c := range v.Clauses {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(c.Occur.prefix())
			writeQuery(b, c.Query)
		}
		b.WriteString(")")
	case *NumericRangeQuery:
		fmt.Fprintf(b, "%s:%s", v.Field, formatRange(v.Min, v.Max, v.IncludeMin, v.IncludeMax))
	case *TermRangeQuery:
		fmt.Fprintf(b, "%s:%s", v.Field, formatRange(v.Min, v.Max, v.IncludeMin, v.IncludeMax))
	case *WildcardQuery:
		fmt.Fprintf(b, "%s:%s", v.Field, v.Pattern)
	case *FuzzyQuery:
		fmt.Fprintf(b, "%s:%s~%d", v.Field, v.Term, v.MaxEdits)
	case *GeoQuery:
		fmt.Fprintf(b, "%s:geo(%T)", v.Field, v.Shape)
	case *MatchAllQuery:
		b.WriteString("*:*")
	case *MatchNoneQuery:
		b.WriteString("-*:*")
	default:
		fmt.Fprintf(b, "%T", q)
	}
	if boost := BoostOf(q); boost != 1 {
		fmt.Fprintf(b, "^%g", boost)
	}
}

func formatRange[T any](lo, hi *T, incLo, incHi bool) string {
	open, closeB := "{", "}"
	if incLo {
		open = "["
	}
	if incHi {
		closeB = "]"
	}
	l, h := "*", "*"
	if lo != nil {
		l = fmt.Sprint(*lo)
	}
	if hi != nil {
		h = fmt.Sprint(*hi)
	}
	return open + l + " TO " + h + closeB
}
