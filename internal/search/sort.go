package search

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
)

// ScoreField names relevance as a sort key.
const ScoreField = "_score"

// SortField orders hits by one key. Reverse means descending. A GeoOrigin
// sorts a geo_point field by distance from the origin, nearest first unless
// reversed.
type SortField struct {
	Field     string      `json:"field"`
	Reverse   bool        `json:"reverse,omitempty"`
	GeoOrigin *geo.LatLng `json:"origin,omitempty"`
}

// IsScore reports whether the field sorts by relevance.
func (f SortField) IsScore() bool { return f.Field == ScoreField }

func (f SortField) String() string {
	var b strings.Builder
	b.WriteString(f.Field)
	if f.GeoOrigin != nil {
		fmt.Fprintf(&b, "@%s,%s",
			strconv.FormatFloat(f.GeoOrigin.Lat, 'g', -1, 64),
			strconv.FormatFloat(f.GeoOrigin.Lon, 'g', -1, 64))
	}
	if f.Reverse {
		b.WriteString(":desc")
	} else {
		b.WriteString(":asc")
	}
	return b.String()
}

// Sort is an ordered list of sort keys. Hits that tie on every key are
// ordered by row key.
type Sort []SortField

// DefaultSort is descending relevance.
func DefaultSort() Sort {
	return Sort{{Field: ScoreField, Reverse: true}}
}

// Fingerprint identifies the sort structurally; cursors carry it so a page
// token cannot be replayed against a different ordering.
func (s Sort) Fingerprint() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.String()
	}
	return strings.Join(parts, "|")
}

// NeedsScore reports whether any key is relevance.
func (s Sort) NeedsScore() bool {
	for _, f := range s {
		if f.IsScore() {
			return true
		}
	}
	return false
}

// validate checks each key against the schema.
func (s Sort) validate(schema index.Provider) error {
	for _, f := range s {
		if f.IsScore() {
			if f.GeoOrigin != nil {
				return fmt.Errorf("%w: %s cannot have a geo origin", ErrInvalidSort, ScoreField)
			}
			continue
		}
		t, ok := schema.FieldType(f.Field)
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidSort, f.Field)
		}
		switch {
		case f.GeoOrigin != nil:
			if t != index.FieldTypeGeoPoint {
				return fmt.Errorf("%w: geo distance sort on %s field %q", ErrInvalidSort, t, f.Field)
			}
			if err := f.GeoOrigin.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidSort, err)
			}
		case t != index.FieldTypeNumeric && t != index.FieldTypeKeyword:
			return fmt.Errorf("%w: cannot sort on %s field %q", ErrInvalidSort, t, f.Field)
		}
	}
	return nil
}

// SortValue is one key of a RankMarker: a number, a string or missing.
type SortValue struct {
	Num *float64 `json:"n,omitempty"`
	Str *string  `json:"s,omitempty"`
}

// Number returns a numeric sort value.
func Number(f float64) SortValue { return SortValue{Num: &f} }

// Text returns a string sort value.
func Text(s string) SortValue { return SortValue{Str: &s} }

// Missing is the value of a document without the sort field.
func Missing() SortValue { return SortValue{} }

// IsMissing reports whether the value is absent.
func (v SortValue) IsMissing() bool { return v.Num == nil && v.Str == nil }

func (v SortValue) compare(o SortValue) int {
	switch {
	case v.Num != nil && o.Num != nil:
		return cmp.Compare(*v.Num, *o.Num)
	case v.Str != nil && o.Str != nil:
		return cmp.Compare(*v.Str, *o.Str)
	case v.Num != nil && o.Str != nil:
		return -1
	case v.Str != nil && o.Num != nil:
		return 1
	}
	return 0
}

// RankMarker is a hit's position under one sort: its sort values plus the
// row key as the final tie-break. Markers are totally ordered by Compare.
type RankMarker struct {
	Values []SortValue `json:"v"`
	Key    string      `json:"k"`
}

// Compare orders two markers under s. Missing values sort last in either
// direction.
func (s Sort) Compare(a, b RankMarker) int {
	for i, f := range s {
		if i >= len(a.Values) || i >= len(b.Values) {
			break
		}
		va, vb := a.Values[i], b.Values[i]
		switch {
		case va.IsMissing() && vb.IsMissing():
			continue
		case va.IsMissing():
			return 1
		case vb.IsMissing():
			return -1
		}
		c := va.compare(vb)
		if f.Reverse {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Key, b.Key)
}
