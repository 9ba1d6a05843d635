// Package condition is the declarative query model: a tree of predicates
// that compiles into the engine's native query AST.
package condition

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/query"
)

var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrEmptyQuery     = errors.New("boolean condition has only not clauses")
	ErrConditionCycle = errors.New("condition tree contains a cycle")
	ErrNilCondition   = errors.New("nil condition")
	ErrMissingField   = errors.New("condition requires a field")
	ErrTooManyClauses = errors.New("boolean condition exceeds maximum clause count")
	ErrTooDeep        = errors.New("boolean condition exceeds maximum depth")
	ErrInvalidValue   = errors.New("invalid condition value")
)

// Kind is the variant discriminator, also used as the JSON "type".
type Kind string

const (
	KindMatch       Kind = "match"
	KindRange       Kind = "range"
	KindBoolean     Kind = "boolean"
	KindGeoDistance Kind = "geo_distance"
	KindGeoBBox     Kind = "geo_bbox"
	KindGeoShape    Kind = "geo_shape"
	KindFuzzy       Kind = "fuzzy"
	KindWildcard    Kind = "wildcard"
	KindAll         Kind = "all"
	KindNone        Kind = "none"
)

// Condition is one node of a query tree. The set of variants is closed;
// the compiler switches over all of them.
type Condition interface {
	Kind() Kind
	condition()
}

// Match matches documents whose field equals Value. Text fields match when
// any analyzed term of Value is present.
type Match struct {
	Field string
	Value any
	Boost float32
}

// Range matches numeric or keyword values between Lower and Upper. A nil
// bound is open.
type Range struct {
	Field        string
	Lower, Upper any
	IncludeLower bool
	IncludeUpper bool
	Boost        float32
}

// Boolean combines child conditions. Must and Should score; Not only
// excludes and may never be the sole clause kind.
type Boolean struct {
	Must               []Condition
	Should             []Condition
	Not                []Condition
	MinimumShouldMatch int
	Boost              float32
}

// GeoDistance matches points within MaxDistance of Origin and, when
// MinDistance is set, at least MinDistance away.
type GeoDistance struct {
	Field       string
	Origin      geo.LatLng
	MaxDistance geo.Distance
	MinDistance *geo.Distance
	Boost       float32
}

// GeoBBox matches points inside a latitude/longitude box.
type GeoBBox struct {
	Field string
	Min   geo.LatLng
	Max   geo.LatLng
	Boost float32
}

// GeoShape matches points inside Shape after every transformation has been
// applied in order.
type GeoShape struct {
	Field           string
	Shape           geo.Shape
	Transformations []geo.Transformation
	Boost           float32
}

// Fuzzy matches terms within MaxEdits edits of Value. MaxEdits <= 0 picks a
// budget from the term length.
type Fuzzy struct {
	Field          string
	Value          string
	MaxEdits       int
	PrefixLength   int
	MaxExpansions  int
	Transpositions bool
	Boost          float32
}

// Wildcard matches terms against a pattern with * and ?.
type Wildcard struct {
	Field string
	Value string
	Boost float32
}

// All matches every document.
type All struct {
	Boost float32
}

// None matches nothing.
type None struct{}

func (*Match) Kind() Kind       { return KindMatch }
func (*Range) Kind() Kind       { return KindRange }
func (*Boolean) Kind() Kind     { return KindBoolean }
func (*GeoDistance) Kind() Kind { return KindGeoDistance }
func (*GeoBBox) Kind() Kind     { return KindGeoBBox }
func (*GeoShape) Kind() Kind    { return KindGeoShape }
func (*Fuzzy) Kind() Kind       { return KindFuzzy }
func (*Wildcard) Kind() Kind    { return KindWildcard }
func (*All) Kind() Kind         { return KindAll }
func (*None) Kind() Kind        { return KindNone }

func (*Match) condition()       {}
func (*Range) condition()       {}
func (*Boolean) condition()     {}
func (*GeoDistance) condition() {}
func (*GeoBBox) condition()     {}
func (*GeoShape) condition()    {}
func (*Fuzzy) condition()       {}
func (*Wildcard) condition()    {}
func (*All) condition()         {}
func (*None) condition()        {}

// FieldOf returns the field a leaf names, or "" for Boolean, All and None.
func FieldOf(c Condition) string {
	switch v := c.(type) {
	case *Match:
		return v.Field
	case *Range:
		return v.Field
	case *GeoDistance:
		return v.Field
	case *GeoBBox:
		return v.Field
	case *GeoShape:
		return v.Field
	case *Fuzzy:
		return v.Field
	case *Wildcard:
		return v.Field
	default:
		return ""
	}
}

// Fields returns every field named in the tree, sorted and without
// duplicates. c must be acyclic.
func Fields(c Condition) []string {
	seen := map[string]bool{}
	var walk func(Condition)
	walk = func(c Condition) {
		if b, ok := c.(*Boolean); ok {
			for _, group := range [][]Condition{b.Must, b.Should, b.Not} {
				for _, child := range group {
					walk(child)
				}
			}
			return
		}
		if f := FieldOf(c); f != "" {
			seen[f] = true
		}
	}
	if c != nil {
		walk(c)
	}
	return slices.Sorted(maps.Keys(seen))
}

// Validate checks tree structure: no nil nodes, no cycles, bounded depth and
// width, and a field on every leaf. Field types are checked by Compile.
func Validate(c Condition) error {
	return validate(c, map[*Boolean]bool{}, 0)
}

func validate(c Condition, path map[*Boolean]bool, depth int) error {
	switch v := c.(type) {
	case nil:
		return ErrNilCondition
	case *Boolean:
		if v == nil {
			return ErrNilCondition
		}
		if path[v] {
			return ErrConditionCycle
		}
		if depth >= query.MaxBooleanDepth {
			return fmt.Errorf("%w: %d", ErrTooDeep, query.MaxBooleanDepth)
		}
		if n := len(v.Must) + len(v.Should) + len(v.Not); n > query.MaxBooleanClauses {
			return fmt.Errorf("%w: %d clauses (max %d)", ErrTooManyClauses, n, query.MaxBooleanClauses)
		}
		path[v] = true
		defer delete(path, v)
		for _, group := range [][]Condition{v.Must, v.Should, v.Not} {
			for _, child := range group {
				if err := validate(child, path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	case *All, *None:
		return nil
	default:
		if FieldOf(c) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, c.Kind())
		}
		return nil
	}
}
