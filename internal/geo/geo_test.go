package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var madrid = LatLng{Lat: 40.442163, Lon: -3.784519}

func dist(s string) *Distance {
	d := MustParseDistance(s)
	return &d
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"10km", 10000},
		{"1.5 km", 1500},
		{"300", 300},
		{"300m", 300},
		{"2mi", 3218.688},
		{"1nmi", 1852},
		{"12in", 0.3048},
		{"5KM", 5000},
		{"1e3km", 1000000},
		{"2.5E2m", 250},
		{"1e-1 km", 100},
		{"4e2", 400},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDistance(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d.Meters(), 1e-9)
		})
	}
}

func TestParseDistance_Invalid(t *testing.T) {
	for _, in := range []string{"", "km", "10parsecs", "-5m", "abc", "1e", "1ekm"} {
		_, err := ParseDistance(in)
		assert.ErrorIs(t, err, ErrInvalidDistance, "input %q", in)
	}
}

func TestDistance_String(t *testing.T) {
	assert.Equal(t, "10 km", Distance(10000).String())
}

func TestDistanceBetween(t *testing.T) {
	// One degree of latitude is roughly 111.2km.
	d := DistanceBetween(LatLng{Lat: 0, Lon: 0}, LatLng{Lat: 1, Lon: 0})
	assert.InDelta(t, 111195, d.Meters(), 50)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(map[string]any{"lat": 40.0, "lon": -3.0})
	require.NoError(t, err)
	assert.Equal(t, LatLng{Lat: 40, Lon: -3}, p)

	p, err = ParsePoint("40.5, -3.5")
	require.NoError(t, err)
	assert.Equal(t, LatLng{Lat: 40.5, Lon: -3.5}, p)

	_, err = ParsePoint(map[string]any{"lat": 91.0, "lon": 0.0})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = ParsePoint(42)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestCopy_Identity(t *testing.T) {
	shape := Circle{Center: madrid, Radius: 1000}
	out, err := Copy{}.Apply(shape)
	require.NoError(t, err)
	assert.Equal(t, shape, out)
}

func TestCopy_MalformedShape(t *testing.T) {
	_, err := Copy{}.Apply(Point{LatLng{Lat: 200, Lon: 0}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestBuffer_MinNotLessThanMax(t *testing.T) {
	for _, tc := range []struct{ min, max string }{
		{"10km", "10km"},
		{"20km", "10km"},
	} {
		b := Buffer{Min: dist(tc.min), Max: dist(tc.max)}
		_, err := b.Apply(Point{madrid})
		assert.ErrorIs(t, err, ErrInvalidGeometry, "min=%s max=%s", tc.min, tc.max)
	}
}

func TestBuffer_NeitherSetBehavesAsCopy(t *testing.T) {
	shapes := []Shape{
		Point{madrid},
		Circle{Center: madrid, Radius: 500},
		Rect{Min: LatLng{Lat: 40, Lon: -4}, Max: LatLng{Lat: 41, Lon: -3}},
	}
	for _, s := range shapes {
		fromBuffer, err := Buffer{}.Apply(s)
		require.NoError(t, err)
		fromCopy, err := Copy{}.Apply(s)
		require.NoError(t, err)
		assert.Equal(t, fromCopy, fromBuffer)
	}
}

func TestBuffer_MaxOnlyExpands(t *testing.T) {
	out, err := Buffer{Max: dist("10km")}.Apply(Point{madrid})
	require.NoError(t, err)

	near := LatLng{Lat: madrid.Lat + 0.05, Lon: madrid.Lon} // ~5.5km north
	far := LatLng{Lat: madrid.Lat + 0.2, Lon: madrid.Lon}   // ~22km north
	assert.True(t, out.ContainsPoint(madrid))
	assert.True(t, out.ContainsPoint(near))
	assert.False(t, out.ContainsPoint(far))
}

func TestBuffer_MinAndMaxCutsRing(t *testing.T) {
	out, err := Buffer{Min: dist("1km"), Max: dist("10km")}.Apply(Point{madrid})
	require.NoError(t, err)

	inside := LatLng{Lat: madrid.Lat + 0.005, Lon: madrid.Lon} // ~550m
	band := LatLng{Lat: madrid.Lat + 0.05, Lon: madrid.Lon}    // ~5.5km
	assert.False(t, out.ContainsPoint(madrid))
	assert.False(t, out.ContainsPoint(inside))
	assert.True(t, out.ContainsPoint(band))
}

func TestBuffer_MinOnlyExcludesNearby(t *testing.T) {
	out, err := Buffer{Min: dist("1km")}.Apply(Point{madrid})
	require.NoError(t, err)
	assert.False(t, out.ContainsPoint(madrid))
	assert.True(t, out.ContainsPoint(LatLng{Lat: 0, Lon: 0}))
}

func TestBuffer_RectExpansion(t *testing.T) {
	rect := Rect{Min: LatLng{Lat: 40, Lon: -4}, Max: LatLng{Lat: 41, Lon: -3}}
	out, err := Buffer{Max: dist("50km")}.Apply(rect)
	require.NoError(t, err)

	assert.True(t, out.ContainsPoint(LatLng{Lat: 41.3, Lon: -3.5}))
	assert.True(t, out.ContainsPoint(LatLng{Lat: 40.5, Lon: -2.6}))
	assert.False(t, out.ContainsPoint(LatLng{Lat: 42, Lon: -3.5}))
}

func TestBuffer_DifferenceRejected(t *testing.T) {
	ring, err := Buffer{Min: dist("1km"), Max: dist("2km")}.Apply(Point{madrid})
	require.NoError(t, err)

	_, err = Buffer{Max: dist("1km")}.Apply(ring)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestRect_CrossesAntimeridian(t *testing.T) {
	r := Rect{Min: LatLng{Lat: -10, Lon: 170}, Max: LatLng{Lat: 10, Lon: -170}}
	require.NoError(t, r.Validate())
	assert.True(t, r.ContainsPoint(LatLng{Lat: 0, Lon: 180}))
	assert.True(t, r.ContainsPoint(LatLng{Lat: 0, Lon: -175}))
	assert.False(t, r.ContainsPoint(LatLng{Lat: 0, Lon: 0}))
}

func TestDecodeTransformation(t *testing.T) {
	tr, err := DecodeTransformation([]byte(`{"type":"copy"}`))
	require.NoError(t, err)
	assert.Equal(t, Copy{}, tr)

	tr, err = DecodeTransformation([]byte(`{"type":"buffer","max_distance":"10km","min_distance":"1km"}`))
	require.NoError(t, err)
	b, ok := tr.(Buffer)
	require.True(t, ok)
	assert.InDelta(t, 1000, b.Min.Meters(), 1e-9)
	assert.InDelta(t, 10000, b.Max.Meters(), 1e-9)

	_, err = DecodeTransformation([]byte(`{"type":"buffer","max_distance":"1km","min_distance":"10km"}`))
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = DecodeTransformation([]byte(`{"type":"rotate"}`))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestDecodeShape(t *testing.T) {
	s, err := DecodeShape([]byte(`{"type":"circle","lat":40,"lon":-3,"radius":"5km"}`))
	require.NoError(t, err)
	assert.Equal(t, Circle{Center: LatLng{Lat: 40, Lon: -3}, Radius: 5000}, s)

	_, err = DecodeShape([]byte(`{"type":"bbox","min_lat":10,"min_lon":0,"max_lat":5,"max_lon":1}`))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}
