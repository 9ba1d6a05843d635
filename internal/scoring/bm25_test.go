package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var stats = FieldStats{DocCount: 10000, TotalTerms: 250000}

func TestBM25_IDF(t *testing.T) {
	m := Default()
	for _, df := range []int64{1, 10, 5000, 9999} {
		assert.Greater(t, m.IDF(df, stats.DocCount), float32(0), "docFreq=%d", df)
	}
	assert.Greater(t, m.IDF(10, stats.DocCount), m.IDF(5000, stats.DocCount))
}

func TestBM25_Score(t *testing.T) {
	m := Default()

	assert.Greater(t, m.Score(3, 25, 100, stats), float32(0))
	assert.Greater(t, m.Score(10, 25, 100, stats), m.Score(1, 25, 100, stats), "higher tf scores higher")
	assert.Greater(t, m.Score(3, 10, 100, stats), m.Score(3, 100, 100, stats), "shorter docs score higher")
	assert.Zero(t, m.Score(0, 25, 100, stats))
}

func TestBM25_Saturation(t *testing.T) {
	m := Default()
	upper := m.IDF(100, stats.DocCount) * (m.K1 + 1)
	s := m.Score(math.MaxUint16, 25, 100, stats)
	assert.Less(t, s, upper)
	assert.InDelta(t, upper, s, 0.01)
}

func TestFieldStats_AvgLen(t *testing.T) {
	assert.Equal(t, float32(25), stats.AvgLen())
	assert.Equal(t, float32(1), FieldStats{}.AvgLen())
}
