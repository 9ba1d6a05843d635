package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for geodesic conversions.
const EarthRadiusMeters = 6371008.8

var (
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrInvalidDistance = errors.New("invalid distance")
)

// LatLng is a geographic coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports whether the coordinate lies on the globe.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidGeometry)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %g out of range [-90, 90]", ErrInvalidGeometry, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %g out of range [-180, 180]", ErrInvalidGeometry, p.Lon)
	}
	return nil
}

func (p LatLng) s2() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%g, %g)", p.Lat, p.Lon)
}

// DistanceBetween returns the great-circle distance between two coordinates.
func DistanceBetween(a, b LatLng) Distance {
	return distanceFromAngle(a.s2().Distance(b.s2()))
}

// Distance is a geodesic length in metres.
type Distance float64

// Distance units accepted by ParseDistance, in metres.
var distanceUnits = map[string]float64{
	"mm":  0.001,
	"cm":  0.01,
	"dm":  0.1,
	"m":   1,
	"dam": 10,
	"hm":  100,
	"km":  1000,
	"in":  0.0254,
	"ft":  0.3048,
	"yd":  0.9144,
	"mi":  1609.344,
	"nmi": 1852,
}

// ParseDistance parses strings such as "10km", "1.5 mi", "1e3m" or "300".
// A bare number is interpreted as metres.
func ParseDistance(s string) (Distance, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDistance)
	}

	split := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			continue
		}
		if isExponent(s, i) {
			continue
		}
		split = i
		break
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s[:split]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDistance, s)
	}

	factor := 1.0
	if unit := strings.ToLower(strings.TrimSpace(s[split:])); unit != "" {
		f, ok := distanceUnits[unit]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidDistance, unit)
		}
		factor = f
	}

	d := Distance(value * factor)
	if d < 0 || math.IsInf(float64(d), 0) || math.IsNaN(float64(d)) {
		return 0, fmt.Errorf("%w: %q must be a finite non-negative length", ErrInvalidDistance, s)
	}
	return d, nil
}

// isExponent reports whether the letter at s[i] is the exponent marker of
// a number, as in "1e3" or "2.5E-2".
func isExponent(s string, i int) bool {
	if s[i] != 'e' && s[i] != 'E' || i == 0 || i+1 >= len(s) {
		return false
	}
	if prev := s[i-1]; (prev < '0' || prev > '9') && prev != '.' {
		return false
	}
	next := s[i+1]
	if (next == '+' || next == '-') && i+2 < len(s) {
		next = s[i+2]
	}
	return next >= '0' && next <= '9'
}

// MustParseDistance is like ParseDistance but panics on error.
func MustParseDistance(s string) Distance {
	d, err := ParseDistance(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Meters returns the distance in metres.
func (d Distance) Meters() float64 { return float64(d) }

func (d Distance) String() string {
	return humanize.SIWithDigits(float64(d), 2, "m")
}

func (d Distance) angle() s1.Angle {
	return s1.Angle(float64(d)/EarthRadiusMeters) * s1.Radian
}

func distanceFromAngle(a s1.Angle) Distance {
	return Distance(a.Radians() * EarthRadiusMeters)
}

// ParsePoint converts a row field value into a coordinate. Accepted forms are
// LatLng, *LatLng, a {"lat": .., "lon": ..} object and a "lat,lon" string.
func ParsePoint(v any) (LatLng, error) {
	var p LatLng
	switch t := v.(type) {
	case LatLng:
		p = t
	case *LatLng:
		if t == nil {
			return LatLng{}, fmt.Errorf("%w: nil point", ErrInvalidGeometry)
		}
		p = *t
	case map[string]any:
		lat, okLat := toFloat(t["lat"])
		lon, okLon := toFloat(t["lon"])
		if !okLat || !okLon {
			return LatLng{}, fmt.Errorf("%w: point object requires numeric lat and lon", ErrInvalidGeometry)
		}
		p = LatLng{Lat: lat, Lon: lon}
	case string:
		parts := strings.Split(t, ",")
		if len(parts) != 2 {
			return LatLng{}, fmt.Errorf("%w: point string %q must be \"lat,lon\"", ErrInvalidGeometry, t)
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return LatLng{}, fmt.Errorf("%w: point string %q", ErrInvalidGeometry, t)
		}
		p = LatLng{Lat: lat, Lon: lon}
	default:
		return LatLng{}, fmt.Errorf("%w: unsupported point value %T", ErrInvalidGeometry, v)
	}
	if err := p.Validate(); err != nil {
		return LatLng{}, err
	}
	return p, nil
}

// ParsePoints is ParsePoint for single or multi-valued fields.
func ParsePoints(v any) ([]LatLng, error) {
	switch t := v.(type) {
	case []LatLng:
		return t, nil
	case []any:
		points := make([]LatLng, 0, len(t))
		for _, item := range t {
			p, err := ParsePoint(item)
			if err != nil {
				return nil, err
			}
			points = append(points, p)
		}
		return points, nil
	default:
		p, err := ParsePoint(v)
		if err != nil {
			return nil, err
		}
		return []LatLng{p}, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
