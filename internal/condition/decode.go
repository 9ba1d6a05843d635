package condition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"GoRowSearch/internal/geo"
)

// wire is the union of every variant's JSON fields, discriminated by Type.
type wire struct {
	Type  Kind    `json:"type"`
	Field string  `json:"field"`
	Boost float32 `json:"boost"`

	Value any `json:"value"`

	Lower        any   `json:"lower"`
	Upper        any   `json:"upper"`
	IncludeLower *bool `json:"include_lower"`
	IncludeUpper *bool `json:"include_upper"`

	Must               []json.RawMessage `json:"must"`
	Should             []json.RawMessage `json:"should"`
	Not                []json.RawMessage `json:"not"`
	MinimumShouldMatch int               `json:"minimum_should_match"`

	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	MaxDistance string   `json:"max_distance"`
	MinDistance string   `json:"min_distance"`

	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`

	Shape           json.RawMessage   `json:"shape"`
	Transformations []json.RawMessage `json:"transformations"`

	MaxEdits       *int  `json:"max_edits"`
	PrefixLength   int   `json:"prefix_length"`
	MaxExpansions  int   `json:"max_expansions"`
	Transpositions *bool `json:"transpositions"`
}

// Decode parses the JSON form of a condition tree, for example
//
//	{"type":"boolean","must":[{"type":"match","field":"status","value":"active"}]}
//
// Numbers decode as json.Number so integer values keep their precision.
func Decode(data []byte) (Condition, error) {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: decode condition: %v", ErrInvalidValue, err)
	}
	c, err := w.condition()
	if err != nil {
		return nil, err
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (w *wire) condition() (Condition, error) {
	switch w.Type {
	case KindMatch:
		return &Match{Field: w.Field, Value: w.Value, Boost: w.Boost}, nil
	case KindRange:
		return &Range{
			Field:        w.Field,
			Lower:        w.Lower,
			Upper:        w.Upper,
			IncludeLower: boolOr(w.IncludeLower, true),
			IncludeUpper: boolOr(w.IncludeUpper, true),
			Boost:        w.Boost,
		}, nil
	case KindBoolean:
		b := &Boolean{MinimumShouldMatch: w.MinimumShouldMatch, Boost: w.Boost}
		var err error
		if b.Must, err = decodeAll(w.Must); err != nil {
			return nil, err
		}
		if b.Should, err = decodeAll(w.Should); err != nil {
			return nil, err
		}
		if b.Not, err = decodeAll(w.Not); err != nil {
			return nil, err
		}
		return b, nil
	case KindGeoDistance:
		if w.Latitude == nil || w.Longitude == nil {
			return nil, fmt.Errorf("%w: geo_distance requires latitude and longitude", geo.ErrInvalidGeometry)
		}
		maxD, err := geo.ParseDistance(w.MaxDistance)
		if err != nil {
			return nil, fmt.Errorf("%w: max_distance: %v", geo.ErrInvalidGeometry, err)
		}
		g := &GeoDistance{
			Field:       w.Field,
			Origin:      geo.LatLng{Lat: *w.Latitude, Lon: *w.Longitude},
			MaxDistance: maxD,
			Boost:       w.Boost,
		}
		if w.MinDistance != "" {
			minD, err := geo.ParseDistance(w.MinDistance)
			if err != nil {
				return nil, fmt.Errorf("%w: min_distance: %v", geo.ErrInvalidGeometry, err)
			}
			g.MinDistance = &minD
		}
		return g, nil
	case KindGeoBBox:
		return &GeoBBox{
			Field: w.Field,
			Min:   geo.LatLng{Lat: w.MinLatitude, Lon: w.MinLongitude},
			Max:   geo.LatLng{Lat: w.MaxLatitude, Lon: w.MaxLongitude},
			Boost: w.Boost,
		}, nil
	case KindGeoShape:
		if len(w.Shape) == 0 {
			return nil, fmt.Errorf("%w: geo_shape requires a shape", geo.ErrInvalidGeometry)
		}
		shape, err := geo.DecodeShape(w.Shape)
		if err != nil {
			return nil, err
		}
		g := &GeoShape{Field: w.Field, Shape: shape, Boost: w.Boost}
		for _, raw := range w.Transformations {
			t, err := geo.DecodeTransformation(raw)
			if err != nil {
				return nil, err
			}
			g.Transformations = append(g.Transformations, t)
		}
		return g, nil
	case KindFuzzy:
		s, ok := w.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: fuzzy value must be a string", ErrInvalidValue)
		}
		f := &Fuzzy{
			Field:          w.Field,
			Value:          s,
			PrefixLength:   w.PrefixLength,
			MaxExpansions:  w.MaxExpansions,
			Transpositions: boolOr(w.Transpositions, true),
			Boost:          w.Boost,
		}
		if w.MaxEdits != nil {
			f.MaxEdits = *w.MaxEdits
		}
		return f, nil
	case KindWildcard:
		s, ok := w.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: wildcard value must be a string", ErrInvalidValue)
		}
		return &Wildcard{Field: w.Field, Value: s, Boost: w.Boost}, nil
	case KindAll:
		return &All{Boost: w.Boost}, nil
	case KindNone:
		return &None{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrInvalidValue, w.Type)
	}
}

func decodeAll(raws []json.RawMessage) ([]Condition, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]Condition, 0, len(raws))
	for _, raw := range raws {
		var w wire
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("%w: decode condition: %v", ErrInvalidValue, err)
		}
		c, err := w.condition()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
