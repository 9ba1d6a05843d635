package condition

import (
	"fmt"
	"slices"
	"strings"

	"GoRowSearch/internal/analysis"
	"GoRowSearch/internal/automaton"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/query"
)

// SchemaMismatchError reports a leaf whose field is unknown to the schema or
// has a type the predicate cannot run against.
type SchemaMismatchError struct {
	Field    string
	Kind     Kind
	Actual   index.FieldType // empty when the field is unknown
	Expected []index.FieldType
}

func (e *SchemaMismatchError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("schema mismatch: %s condition on unknown field %q", e.Kind, e.Field)
	}
	return fmt.Sprintf("schema mismatch: %s condition on field %q of type %s (want one of %v)",
		e.Kind, e.Field, e.Actual, e.Expected)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// Field types each predicate accepts.
var compatible = map[Kind][]index.FieldType{
	KindMatch:       {index.FieldTypeText, index.FieldTypeKeyword, index.FieldTypeNumeric},
	KindRange:       {index.FieldTypeNumeric, index.FieldTypeKeyword},
	KindFuzzy:       {index.FieldTypeText, index.FieldTypeKeyword},
	KindWildcard:    {index.FieldTypeText, index.FieldTypeKeyword},
	KindGeoDistance: {index.FieldTypeGeoPoint},
	KindGeoBBox:     {index.FieldTypeGeoPoint},
	KindGeoShape:    {index.FieldTypeGeoPoint, index.FieldTypeGeoShape},
}

// Compiler turns conditions into native queries against one schema.
// It holds no mutable state and may be shared.
type Compiler struct {
	Schema    index.Provider
	Analyzers *analysis.Registry
}

// NewCompiler returns a Compiler using the built-in analyzers.
func NewCompiler(schema index.Provider) *Compiler {
	return &Compiler{Schema: schema, Analyzers: analysis.NewRegistry()}
}

// Compile is NewCompiler(schema).Compile(c).
func Compile(c Condition, schema index.Provider) (query.Query, error) {
	return NewCompiler(schema).Compile(c)
}

// Compile validates c and translates it into a rewritten native query.
func (cc *Compiler) Compile(c Condition) (query.Query, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	q, err := cc.compile(c)
	if err != nil {
		return nil, err
	}
	return query.Rewrite(q), nil
}

func (cc *Compiler) compile(c Condition) (query.Query, error) {
	switch v := c.(type) {
	case *Boolean:
		return cc.compileBoolean(v)
	case *All:
		return &query.MatchAllQuery{Boost: v.Boost}, nil
	case *None:
		return &query.MatchNoneQuery{}, nil
	}

	f, err := cc.field(c)
	if err != nil {
		return nil, err
	}

	switch v := c.(type) {
	case *Match:
		return cc.compileMatch(v, f)
	case *Range:
		return compileRange(v, f)
	case *GeoDistance:
		shape, err := v.shape()
		if err != nil {
			return nil, err
		}
		return &query.GeoQuery{Field: v.Field, Shape: shape, Boost: v.Boost}, nil
	case *GeoBBox:
		shape, err := v.shape()
		if err != nil {
			return nil, err
		}
		return &query.GeoQuery{Field: v.Field, Shape: shape, Boost: v.Boost}, nil
	case *GeoShape:
		shape, err := v.shape()
		if err != nil {
			return nil, err
		}
		return &query.GeoQuery{Field: v.Field, Shape: shape, Boost: v.Boost}, nil
	case *Fuzzy:
		return cc.compileFuzzy(v, f)
	case *Wildcard:
		return cc.compileWildcard(v, f)
	default:
		return nil, fmt.Errorf("%w: unsupported condition %T", ErrInvalidValue, c)
	}
}

// field resolves a leaf's field and checks type compatibility.
func (cc *Compiler) field(c Condition) (index.FieldDef, error) {
	name := FieldOf(c)
	f, ok := cc.Schema.Field(name)
	if !ok {
		return index.FieldDef{}, &SchemaMismatchError{Field: name, Kind: c.Kind(), Expected: compatible[c.Kind()]}
	}
	if !slices.Contains(compatible[c.Kind()], f.Type) {
		return index.FieldDef{}, &SchemaMismatchError{Field: name, Kind: c.Kind(), Actual: f.Type, Expected: compatible[c.Kind()]}
	}
	return f, nil
}

func (cc *Compiler) compileBoolean(b *Boolean) (query.Query, error) {
	if len(b.Must) == 0 && len(b.Should) == 0 {
		if len(b.Not) > 0 {
			return nil, ErrEmptyQuery
		}
		return &query.MatchAllQuery{Boost: b.Boost}, nil
	}

	out := &query.BooleanQuery{
		Clauses:            make([]query.BooleanClause, 0, len(b.Must)+len(b.Should)+len(b.Not)),
		MinimumShouldMatch: b.MinimumShouldMatch,
		Boost:              b.Boost,
	}
	groups := []struct {
		occur query.BooleanOp
		conds []Condition
	}{
		{query.BooleanMust, b.Must},
		{query.BooleanShould, b.Should},
		{query.BooleanMustNot, b.Not},
	}
	for _, g := range groups {
		for _, child := range g.conds {
			q, err := cc.compile(child)
			if err != nil {
				return nil, err
			}
			out.Clauses = append(out.Clauses, query.BooleanClause{Occur: g.occur, Query: q})
		}
	}
	return out, nil
}

func (cc *Compiler) analyzer(f index.FieldDef) (analysis.Analyzer, error) {
	a, err := cc.Analyzers.Get(cc.Schema.AnalyzerFor(f))
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return a, nil
}

func (cc *Compiler) compileMatch(m *Match, f index.FieldDef) (query.Query, error) {
	if m.Value == nil {
		return nil, fmt.Errorf("%w: match on %q has no value", ErrInvalidValue, m.Field)
	}
	switch f.Type {
	case index.FieldTypeNumeric:
		n, err := index.Numeric(m.Value)
		if err != nil {
			return nil, fmt.Errorf("match on %q: %w", m.Field, err)
		}
		return &query.NumericRangeQuery{Field: m.Field, Min: &n, Max: &n, IncludeMin: true, IncludeMax: true, Boost: m.Boost}, nil
	case index.FieldTypeKeyword:
		return &query.TermQuery{Field: m.Field, Term: index.Text(m.Value), Boost: m.Boost}, nil
	}

	a, err := cc.analyzer(f)
	if err != nil {
		return nil, err
	}
	terms := analysis.Terms(a, f.Name, index.Text(m.Value))
	return termsQuery(terms, m.Boost, func(t string) query.Query {
		return &query.TermQuery{Field: m.Field, Term: t}
	}), nil
}

// termsQuery ORs one query per distinct term; no terms matches nothing.
func termsQuery(terms []string, boost float32, leaf func(string) query.Query) query.Query {
	terms = dedupe(terms)
	switch len(terms) {
	case 0:
		return &query.MatchNoneQuery{}
	case 1:
		q := leaf(terms[0])
		setBoost(q, boost)
		return q
	}
	b := &query.BooleanQuery{Boost: boost}
	for _, t := range terms {
		b.Clauses = append(b.Clauses, query.BooleanClause{Occur: query.BooleanShould, Query: leaf(t)})
	}
	return b
}

func setBoost(q query.Query, boost float32) {
	switch v := q.(type) {
	case *query.TermQuery:
		v.Boost = boost
	case *query.FuzzyQuery:
		v.Boost = boost
	}
}

func dedupe(terms []string) []string {
	out := terms[:0:0]
	for _, t := range terms {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func compileRange(r *Range, f index.FieldDef) (query.Query, error) {
	if f.Type == index.FieldTypeNumeric {
		q := &query.NumericRangeQuery{Field: r.Field, IncludeMin: r.IncludeLower, IncludeMax: r.IncludeUpper, Boost: r.Boost}
		for _, b := range []struct {
			v   any
			dst **float64
		}{{r.Lower, &q.Min}, {r.Upper, &q.Max}} {
			if b.v == nil {
				continue
			}
			n, err := index.Numeric(b.v)
			if err != nil {
				return nil, fmt.Errorf("range on %q: %w", r.Field, err)
			}
			*b.dst = &n
		}
		if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
			return &query.MatchNoneQuery{}, nil
		}
		return q, nil
	}

	q := &query.TermRangeQuery{Field: r.Field, IncludeMin: r.IncludeLower, IncludeMax: r.IncludeUpper, Boost: r.Boost}
	if r.Lower != nil {
		s := index.Text(r.Lower)
		q.Min = &s
	}
	if r.Upper != nil {
		s := index.Text(r.Upper)
		q.Max = &s
	}
	if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
		return &query.MatchNoneQuery{}, nil
	}
	return q, nil
}

func (cc *Compiler) compileFuzzy(fz *Fuzzy, f index.FieldDef) (query.Query, error) {
	if fz.MaxEdits > automaton.MaxEditDistance {
		return nil, fmt.Errorf("fuzzy on %q: %w", fz.Field, automaton.ErrEditDistanceTooLarge)
	}
	terms := []string{fz.Value}
	if f.Type == index.FieldTypeText {
		a, err := cc.analyzer(f)
		if err != nil {
			return nil, err
		}
		terms = analysis.Terms(a, f.Name, fz.Value)
	}
	maxExp := fz.MaxExpansions
	if maxExp <= 0 || maxExp > query.MaxFuzzyExpansion {
		maxExp = query.MaxFuzzyExpansion
	}
	return termsQuery(terms, fz.Boost, func(t string) query.Query {
		edits := fz.MaxEdits
		if edits <= 0 {
			edits = automaton.AutoEdits(t)
		}
		return &query.FuzzyQuery{
			Field:          fz.Field,
			Term:           t,
			MaxEdits:       edits,
			PrefixLength:   fz.PrefixLength,
			Transpositions: fz.Transpositions,
			MaxExpansions:  maxExp,
		}
	}), nil
}

func (cc *Compiler) compileWildcard(w *Wildcard, f index.FieldDef) (query.Query, error) {
	pattern := w.Value
	if f.Type == index.FieldTypeText && cc.Schema.AnalyzerFor(f) == index.AnalyzerStandard {
		pattern = strings.ToLower(pattern)
	}
	if _, err := automaton.NewWildcard(pattern); err != nil {
		return nil, fmt.Errorf("wildcard on %q: %w", w.Field, err)
	}
	return &query.WildcardQuery{Field: w.Field, Pattern: pattern, Boost: w.Boost}, nil
}

func (g *GeoDistance) shape() (geo.Shape, error) {
	if g.MaxDistance <= 0 {
		return nil, fmt.Errorf("%w: geo distance on %q requires a positive max distance", geo.ErrInvalidGeometry, g.Field)
	}
	maxD := g.MaxDistance
	return geo.Buffer{Min: g.MinDistance, Max: &maxD}.Apply(geo.Point{LatLng: g.Origin})
}

func (g *GeoBBox) shape() (geo.Shape, error) {
	return geo.Copy{}.Apply(geo.Rect{Min: g.Min, Max: g.Max})
}

func (g *GeoShape) shape() (geo.Shape, error) {
	if g.Shape == nil {
		return nil, fmt.Errorf("%w: geo shape on %q has no shape", geo.ErrInvalidGeometry, g.Field)
	}
	shape, err := geo.Copy{}.Apply(g.Shape)
	if err != nil {
		return nil, err
	}
	for _, t := range g.Transformations {
		if shape, err = t.Apply(shape); err != nil {
			return nil, err
		}
	}
	return shape, nil
}
