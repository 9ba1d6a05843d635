package geo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transformation post-processes a shape before it is used by a predicate.
type Transformation interface {
	// Apply returns the transformed shape. It never mutates s.
	Apply(s Shape) (Shape, error)

	// Validate checks the transformation's own parameters.
	Validate() error
}

// Copy is the identity transformation.
type Copy struct{}

func (Copy) Apply(s Shape) (Shape, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil shape", ErrInvalidGeometry)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (Copy) Validate() error { return nil }

// Buffer grows a shape by Max and, when Min is set, cuts out the shape grown
// by Min, leaving the band of points between Min and Max away from it.
type Buffer struct {
	Min *Distance
	Max *Distance
}

// NewBuffer builds a Buffer from optional distance strings; blank means absent.
func NewBuffer(minDistance, maxDistance string) (Buffer, error) {
	var b Buffer
	if strings.TrimSpace(minDistance) != "" {
		d, err := ParseDistance(minDistance)
		if err != nil {
			return Buffer{}, fmt.Errorf("%w: min distance: %v", ErrInvalidGeometry, err)
		}
		b.Min = &d
	}
	if strings.TrimSpace(maxDistance) != "" {
		d, err := ParseDistance(maxDistance)
		if err != nil {
			return Buffer{}, fmt.Errorf("%w: max distance: %v", ErrInvalidGeometry, err)
		}
		b.Max = &d
	}
	return b, b.Validate()
}

func (b Buffer) Validate() error {
	if b.Min != nil && *b.Min < 0 {
		return fmt.Errorf("%w: negative buffer min distance", ErrInvalidGeometry)
	}
	if b.Max != nil && *b.Max < 0 {
		return fmt.Errorf("%w: negative buffer max distance", ErrInvalidGeometry)
	}
	if b.Min != nil && b.Max != nil && *b.Min >= *b.Max {
		return fmt.Errorf("%w: buffer min distance %s must be less than max distance %s",
			ErrInvalidGeometry, *b.Min, *b.Max)
	}
	return nil
}

func (b Buffer) Apply(s Shape) (Shape, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: nil shape", ErrInvalidGeometry)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	outer := s
	if b.Max != nil {
		grown, err := s.expanded(*b.Max)
		if err != nil {
			return nil, err
		}
		outer = grown
	}
	if b.Min == nil {
		return outer, nil
	}

	inner, err := s.expanded(*b.Min)
	if err != nil {
		return nil, err
	}
	if b.Max == nil {
		outer = Full{}
	}
	return Difference{Outer: outer, Inner: inner}, nil
}

// transformationJSON mirrors {"type": "copy"} and
// {"type": "buffer", "max_distance": "10km", "min_distance": "1km"}.
type transformationJSON struct {
	Type        string `json:"type"`
	MaxDistance string `json:"max_distance"`
	MinDistance string `json:"min_distance"`
}

// DecodeTransformation parses the JSON form of a transformation.
func DecodeTransformation(data []byte) (Transformation, error) {
	var raw transformationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode transformation: %v", ErrInvalidGeometry, err)
	}
	switch raw.Type {
	case "copy", "identity":
		return Copy{}, nil
	case "buffer", "clipper":
		return NewBuffer(raw.MinDistance, raw.MaxDistance)
	default:
		return nil, fmt.Errorf("%w: unknown transformation type %q", ErrInvalidGeometry, raw.Type)
	}
}
