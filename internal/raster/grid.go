package raster

import (
	"math"
	"sort"
)

// Grid is a single-band raster stored row-major. Invalid pixels are NaN.
type Grid struct {
	Data   []float64
	Width  int
	Height int
}

// GeoRef ties a Grid to the ground: a GDAL-style geotransform plus the EPSG
// code of its CRS.
type GeoRef struct {
	Transform [6]float64
	EPSG      int
}

// NewGrid returns a Width x Height grid with every pixel invalid.
func NewGrid(width, height int) *Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.NaN()
	}
	return &Grid{Data: data, Width: width, Height: height}
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, value float64) {
	g.Data[y*g.Width+x] = value
}

func (g *Grid) Size() int {
	return g.Width * g.Height
}

func (g *Grid) ValidCount() int {
	count := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			count++
		}
	}
	return count
}

// Stats are the NaN-aware aggregates of a grid. ValidRatio is the share of
// non-NaN pixels.
type Stats struct {
	Mean       float64
	Max        float64
	Min        float64
	ValidRatio float64
}

func (g *Grid) Stats() Stats {
	sum := 0.0
	max := math.Inf(-1)
	min := math.Inf(1)
	valid := 0
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
		valid++
	}
	if valid == 0 {
		return Stats{Mean: math.NaN(), Max: math.NaN(), Min: math.NaN()}
	}
	return Stats{
		Mean:       sum / float64(valid),
		Max:        max,
		Min:        min,
		ValidRatio: float64(valid) / float64(g.Size()),
	}
}

// MedianComposite reduces per-date grids to one value per pixel via the
// median over time, ignoring NaN. A pixel with no valid observation in any
// grid stays NaN. All grids must share the same dimensions.
func MedianComposite(grids []*Grid) *Grid {
	if len(grids) == 0 {
		return nil
	}
	width, height := grids[0].Width, grids[0].Height
	result := NewGrid(width, height)

	samples := make([]float64, 0, len(grids))
	for i := range result.Data {
		samples = samples[:0]
		for _, g := range grids {
			if v := g.Data[i]; !math.IsNaN(v) {
				samples = append(samples, v)
			}
		}
		if len(samples) > 0 {
			result.Data[i] = median(samples)
		}
	}
	return result
}

func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
