package query

import "GoRowSearch/internal/geo"

// TermQuery matches documents containing the exact analyzed term.
type TermQuery struct {
	Field string
	Term  string
	Boost float32
}

func (q *TermQuery) Type() QueryType { return QueryTypeTerm }

// BooleanOp defines the boolean operator.
type BooleanOp int

const (
	BooleanMust    BooleanOp = iota // AND
	BooleanShould                   // OR
	BooleanMustNot                  // NOT
)

func (op BooleanOp) prefix() string {
	switch op {
	case BooleanMust:
		return "+"
	case BooleanMustNot:
		return "-"
	default:
		return ""
	}
}

// BooleanClause is a single clause within a BooleanQuery.
type BooleanClause struct {
	Occur BooleanOp
	Query Query
}

// BooleanQuery combines sub-queries. Must and Should clauses contribute to
// the score; MustNot clauses only exclude. With no Must clause at least
// max(1, MinimumShouldMatch) Should clauses have to match; with one,
// MinimumShouldMatch still applies, so a value above the number of Should
// clauses matches nothing.
type BooleanQuery struct {
	Clauses            []BooleanClause
	MinimumShouldMatch int
	Boost              float32
}

func (q *BooleanQuery) Type() QueryType { return QueryTypeBoolean }

// NumericRangeQuery matches numeric field values in [Min, Max]; a nil bound
// is open.
type NumericRangeQuery struct {
	Field      string
	Min, Max   *float64
	IncludeMin bool
	IncludeMax bool
	Boost      float32
}

func (q *NumericRangeQuery) Type() QueryType { return QueryTypeNumericRange }

// TermRangeQuery matches keyword terms in lexicographic order.
type TermRangeQuery struct {
	Field      string
	Min, Max   *string
	IncludeMin bool
	IncludeMax bool
	Boost      float32
}

func (q *TermRangeQuery) Type() QueryType { return QueryTypeTermRange }

// WildcardQuery matches terms using wildcard patterns (* and ?).
type WildcardQuery struct {
	Field   string
	Pattern string
	Boost   float32
}

func (q *WildcardQuery) Type() QueryType { return QueryTypeWildcard }

// FuzzyQuery matches terms within an edit distance of the query term.
type FuzzyQuery struct {
	Field          string
	Term           string
	MaxEdits       int
	PrefixLength   int
	Transpositions bool
	MaxExpansions  int
	Boost          float32
}

func (q *FuzzyQuery) Type() QueryType { return QueryTypeFuzzy }

// GeoQuery matches documents with at least one point of Field inside Shape.
// Shape is final: any transformation has already been applied.
type GeoQuery struct {
	Field string
	Shape geo.Shape
	Boost float32
}

func (q *GeoQuery) Type() QueryType { return QueryTypeGeo }

// MatchAllQuery matches all documents.
type MatchAllQuery struct {
	Boost float32
}

func (q *MatchAllQuery) Type() QueryType { return QueryTypeMatchAll }

// MatchNoneQuery matches no documents.
type MatchNoneQuery struct{}

func (q *MatchNoneQuery) Type() QueryType { return QueryTypeMatchNone }
