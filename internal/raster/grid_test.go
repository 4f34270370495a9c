package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridFrom(values ...float64) *Grid {
	return &Grid{Data: values, Width: 2, Height: 2}
}

func TestNewGridStartsInvalid(t *testing.T) {
	g := NewGrid(3, 2)
	assert.Equal(t, 6, g.Size())
	assert.Equal(t, 0, g.ValidCount())
}

func TestStatsKnownValues(t *testing.T) {
	g := gridFrom(0.2, 0.4, 0.6, 0.8)
	stats := g.Stats()
	assert.InDelta(t, 0.5, stats.Mean, 1e-9)
	assert.InDelta(t, 0.8, stats.Max, 1e-9)
	assert.InDelta(t, 0.2, stats.Min, 1e-9)
	assert.InDelta(t, 1.0, stats.ValidRatio, 1e-9)
}

func TestStatsExcludesNaN(t *testing.T) {
	g := gridFrom(0.5, math.NaN(), 0.7, 0.8)
	stats := g.Stats()
	assert.InDelta(t, (0.5+0.7+0.8)/3, stats.Mean, 1e-9)
	assert.InDelta(t, 0.75, stats.ValidRatio, 1e-9)
}

func TestStatsAllInvalid(t *testing.T) {
	g := NewGrid(2, 2)
	stats := g.Stats()
	assert.True(t, math.IsNaN(stats.Mean))
	assert.Zero(t, stats.ValidRatio)
}

func TestMedianCompositeOddCount(t *testing.T) {
	composite := MedianComposite([]*Grid{
		gridFrom(0.1, 0.1, 0.1, 0.1),
		gridFrom(0.5, 0.5, 0.5, 0.5),
		gridFrom(0.9, 0.9, 0.9, 0.9),
	})
	require.NotNil(t, composite)
	for _, v := range composite.Data {
		assert.InDelta(t, 0.5, v, 1e-9)
	}
}

func TestMedianCompositeEvenCountAverages(t *testing.T) {
	composite := MedianComposite([]*Grid{
		gridFrom(0.2, 0.2, 0.2, 0.2),
		gridFrom(0.4, 0.4, 0.4, 0.4),
	})
	require.NotNil(t, composite)
	assert.InDelta(t, 0.3, composite.At(0, 0), 1e-9)
}

func TestMedianCompositeIgnoresNaNPerPixel(t *testing.T) {
	composite := MedianComposite([]*Grid{
		gridFrom(math.NaN(), 0.2, math.NaN(), 0.2),
		gridFrom(0.6, math.NaN(), math.NaN(), 0.4),
	})
	require.NotNil(t, composite)
	assert.InDelta(t, 0.6, composite.At(0, 0), 1e-9)
	assert.InDelta(t, 0.2, composite.At(1, 0), 1e-9)
	assert.True(t, math.IsNaN(composite.At(0, 1)), "pixel with no valid observation must stay NaN")
	assert.InDelta(t, 0.3, composite.At(1, 1), 1e-9)
}

func TestMedianCompositeEmptyInput(t *testing.T) {
	assert.Nil(t, MedianComposite(nil))
}
