package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Shape is a region on the globe that search predicates test points against.
type Shape interface {
	// ContainsPoint reports whether p lies inside the region.
	ContainsPoint(p LatLng) bool

	// Validate returns ErrInvalidGeometry for malformed shapes.
	Validate() error

	// expanded returns the region grown by d in every direction.
	expanded(d Distance) (Shape, error)
}

// Point is a single coordinate.
type Point struct {
	LatLng
}

func (s Point) ContainsPoint(p LatLng) bool {
	return DistanceBetween(s.LatLng, p) < 1e-3
}

func (s Point) Validate() error { return s.LatLng.Validate() }

func (s Point) expanded(d Distance) (Shape, error) {
	return Circle{Center: s.LatLng, Radius: d}, nil
}

// Circle is a spherical cap: all points within Radius of Center.
type Circle struct {
	Center LatLng
	Radius Distance
}

func (s Circle) ContainsPoint(p LatLng) bool {
	c := s2.CapFromCenterAngle(s2.PointFromLatLng(s.Center.s2()), s.Radius.angle())
	return c.ContainsPoint(s2.PointFromLatLng(p.s2()))
}

func (s Circle) Validate() error {
	if err := s.Center.Validate(); err != nil {
		return err
	}
	if s.Radius < 0 || math.IsNaN(float64(s.Radius)) {
		return fmt.Errorf("%w: circle radius %v is negative", ErrInvalidGeometry, float64(s.Radius))
	}
	return nil
}

func (s Circle) expanded(d Distance) (Shape, error) {
	return Circle{Center: s.Center, Radius: s.Radius + d}, nil
}

// Rect is a latitude/longitude box. Min.Lon > Max.Lon denotes a box that
// crosses the antimeridian.
type Rect struct {
	Min LatLng
	Max LatLng
}

func (s Rect) ContainsPoint(p LatLng) bool {
	return s.bound().ContainsLatLng(p.s2())
}

func (s Rect) Validate() error {
	if err := s.Min.Validate(); err != nil {
		return err
	}
	if err := s.Max.Validate(); err != nil {
		return err
	}
	if s.Min.Lat > s.Max.Lat {
		return fmt.Errorf("%w: min latitude %g above max latitude %g", ErrInvalidGeometry, s.Min.Lat, s.Max.Lat)
	}
	return nil
}

func (s Rect) bound() s2.Rect {
	deg := math.Pi / 180
	return s2.Rect{
		Lat: r1.Interval{Lo: s.Min.Lat * deg, Hi: s.Max.Lat * deg},
		Lng: s1.IntervalFromEndpoints(s.Min.Lon*deg, s.Max.Lon*deg),
	}
}

// expanded grows the box by d. The longitude margin is computed at the
// latitude farthest from the equator so the result covers the true buffer.
func (s Rect) expanded(d Distance) (Shape, error) {
	margin := d.angle().Radians()
	b := s.bound()

	lat := b.Lat.Expanded(margin)
	lat.Lo = math.Max(lat.Lo, -math.Pi/2)
	lat.Hi = math.Min(lat.Hi, math.Pi/2)

	lng := s1.FullInterval()
	maxAbsLat := math.Max(math.Abs(b.Lat.Lo), math.Abs(b.Lat.Hi))
	if lat.Lo > -math.Pi/2 && lat.Hi < math.Pi/2 && math.Sin(margin) < math.Cos(maxAbsLat) {
		lngMargin := math.Asin(math.Sin(margin) / math.Cos(maxAbsLat))
		lng = b.Lng.Expanded(lngMargin)
	}

	rad := 180 / math.Pi
	out := Rect{
		Min: LatLng{Lat: lat.Lo * rad, Lon: -180},
		Max: LatLng{Lat: lat.Hi * rad, Lon: 180},
	}
	if !lng.IsFull() {
		out.Min.Lon = lng.Lo * rad
		out.Max.Lon = lng.Hi * rad
	}
	return out, nil
}

// Difference is Outer with Inner cut out of it.
type Difference struct {
	Outer Shape
	Inner Shape
}

func (s Difference) ContainsPoint(p LatLng) bool {
	return s.Outer.ContainsPoint(p) && !s.Inner.ContainsPoint(p)
}

func (s Difference) Validate() error {
	if s.Outer == nil || s.Inner == nil {
		return fmt.Errorf("%w: difference requires outer and inner shapes", ErrInvalidGeometry)
	}
	if err := s.Outer.Validate(); err != nil {
		return err
	}
	return s.Inner.Validate()
}

func (s Difference) expanded(Distance) (Shape, error) {
	return nil, fmt.Errorf("%w: cannot buffer a difference", ErrInvalidGeometry)
}

// Full is the whole globe.
type Full struct{}

func (Full) ContainsPoint(LatLng) bool          { return true }
func (Full) Validate() error                    { return nil }
func (f Full) expanded(Distance) (Shape, error) { return f, nil }

// shapeJSON is the wire form of a shape.
type shapeJSON struct {
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius string  `json:"radius,omitempty"`
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// DecodeShape parses {"type":"point"|"circle"|"bbox", ...}.
func DecodeShape(data []byte) (Shape, error) {
	var raw shapeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode shape: %v", ErrInvalidGeometry, err)
	}

	var shape Shape
	switch raw.Type {
	case "point":
		shape = Point{LatLng{Lat: raw.Lat, Lon: raw.Lon}}
	case "circle":
		radius, err := ParseDistance(raw.Radius)
		if err != nil {
			return nil, fmt.Errorf("%w: circle radius: %v", ErrInvalidGeometry, err)
		}
		shape = Circle{Center: LatLng{Lat: raw.Lat, Lon: raw.Lon}, Radius: radius}
	case "bbox":
		shape = Rect{
			Min: LatLng{Lat: raw.MinLat, Lon: raw.MinLon},
			Max: LatLng{Lat: raw.MaxLat, Lon: raw.MaxLon},
		}
	default:
		return nil, fmt.Errorf("%w: unknown shape type %q", ErrInvalidGeometry, raw.Type)
	}

	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return shape, nil
}
