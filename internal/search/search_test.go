package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/query"
)

func compiler() *condition.Compiler {
	return condition.NewCompiler(&index.Schema{
		DefaultAnalyzer: index.AnalyzerStandard,
		Fields: []index.FieldDef{
			{Name: "title", Type: index.FieldTypeText, Indexed: true},
			{Name: "status", Type: index.FieldTypeKeyword, Indexed: true},
			{Name: "price", Type: index.FieldTypeNumeric, Indexed: true},
			{Name: "location", Type: index.FieldTypeGeoPoint, Indexed: true},
		},
	})
}

var active = &condition.Match{Field: "status", Value: "active"}

func TestBuild_InvalidLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		_, err := Build(compiler(), BuildRequest{Condition: active, Limit: limit})
		assert.ErrorIs(t, err, ErrInvalidLimit)
	}
}

func TestBuild_DefaultSort(t *testing.T) {
	d, err := Build(compiler(), BuildRequest{Condition: active, Limit: 10, Fields: []string{"title", "title", "price"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultSort(), d.Sort)
	assert.True(t, d.Sort[0].Reverse)
	assert.Equal(t, []string{"title", "price"}, d.Fields)
	assert.Equal(t, &query.TermQuery{Field: "status", Term: "active"}, d.Query)
	assert.Nil(t, d.Filter)
	assert.Nil(t, d.After)
}

func TestBuild_Filter(t *testing.T) {
	d, err := Build(compiler(), BuildRequest{
		Condition: &condition.All{},
		Filter:    &condition.Range{Field: "price", Upper: 100},
		Limit:     1,
	})
	require.NoError(t, err)
	assert.IsType(t, &query.NumericRangeQuery{}, d.Filter)

	_, err = Build(compiler(), BuildRequest{
		Condition: &condition.All{},
		Filter:    &condition.Match{Field: "nope", Value: 1},
		Limit:     1,
	})
	assert.ErrorIs(t, err, condition.ErrSchemaMismatch)
}

func TestBuild_InvalidSort(t *testing.T) {
	origin := geo.LatLng{Lat: 1, Lon: 1}
	for _, s := range []Sort{
		{{Field: "missing"}},
		{{Field: "title"}},
		{{Field: "price", GeoOrigin: &origin}},
		{{Field: ScoreField, GeoOrigin: &origin}},
	} {
		_, err := Build(compiler(), BuildRequest{Condition: active, Sort: s, Limit: 1})
		assert.ErrorIs(t, err, ErrInvalidSort, "sort %s", s.Fingerprint())
	}
}

func TestBuild_CursorMismatch(t *testing.T) {
	byPrice := Sort{{Field: "price"}}
	cur := NewCursor(byPrice, RankMarker{Values: []SortValue{Number(3)}, Key: "r3"})

	d, err := Build(compiler(), BuildRequest{Condition: active, Sort: byPrice, Cursor: &cur, Limit: 5})
	require.NoError(t, err)
	require.NotNil(t, d.After)
	assert.Equal(t, "r3", d.After.Key)

	for _, other := range []Sort{
		{{Field: "price", Reverse: true}},
		{{Field: "price"}, {Field: ScoreField, Reverse: true}},
		nil,
	} {
		_, err := Build(compiler(), BuildRequest{Condition: active, Sort: other, Cursor: &cur, Limit: 5})
		assert.ErrorIs(t, err, ErrCursorMismatch)
	}

	bad := Cursor{Sort: byPrice.Fingerprint(), Marker: RankMarker{Key: "r3"}}
	_, err = Build(compiler(), BuildRequest{Condition: active, Sort: byPrice, Cursor: &bad, Limit: 5})
	assert.ErrorIs(t, err, ErrCursorMismatch)
}

func TestCursor_RoundTrip(t *testing.T) {
	origin := geo.LatLng{Lat: 40.4, Lon: -3.7}
	s := Sort{{Field: "status"}, {Field: "location", GeoOrigin: &origin}, {Field: ScoreField, Reverse: true}}
	c := NewCursor(s, RankMarker{Values: []SortValue{Text("active"), Missing(), Number(1.25)}, Key: "row-7"})

	tok := c.Encode()
	assert.True(t, strings.HasPrefix(tok, "cur1:"))

	got, err := DecodeCursor(tok)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCursor_Tampered(t *testing.T) {
	c := NewCursor(DefaultSort(), RankMarker{Values: []SortValue{Number(2)}, Key: "a"})
	tok := c.Encode()

	for _, bad := range []string{
		"",
		"cur0:" + tok[5:],
		tok[:len(tok)-4],
		"cur1:!!!",
		"cur1:" + "eyJzb3J0IjoiX3Njb3JlOmRlc2MiLCJtYXJrZXIiOnsidiI6bnVsbCwiayI6ImIifSwic3VtIjoiMDAwMCJ9",
	} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, "token %q", bad)
	}
}

func TestSort_Compare(t *testing.T) {
	s := Sort{{Field: "price", Reverse: true}, {Field: "status"}}
	m := func(price *float64, status, key string) RankMarker {
		v := []SortValue{Missing(), Text(status)}
		if price != nil {
			v[0] = Number(*price)
		}
		return RankMarker{Values: v, Key: key}
	}
	p := func(f float64) *float64 { return &f }

	assert.Negative(t, s.Compare(m(p(10), "a", "x"), m(p(5), "a", "x")), "descending price")
	assert.Negative(t, s.Compare(m(p(5), "a", "x"), m(p(5), "b", "x")), "ascending status")
	assert.Negative(t, s.Compare(m(p(5), "a", "x"), m(p(5), "a", "y")), "key tie-break")
	assert.Zero(t, s.Compare(m(p(5), "a", "x"), m(p(5), "a", "x")))
	assert.Negative(t, s.Compare(m(p(1), "a", "x"), m(nil, "a", "x")), "missing sorts last")
	assert.Positive(t, s.Compare(m(nil, "a", "x"), m(p(1), "a", "x")))
}

func TestSort_Fingerprint(t *testing.T) {
	origin := geo.LatLng{Lat: 1.5, Lon: -2}
	s := Sort{{Field: "price"}, {Field: "location", GeoOrigin: &origin, Reverse: true}}
	assert.Equal(t, "price:asc|location@1.5,-2:desc", s.Fingerprint())
	assert.True(t, DefaultSort().NeedsScore())
	assert.False(t, s.NeedsScore())
}
