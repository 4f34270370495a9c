package process

import (
	"fmt"
	"math"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
)

// Sentinel-2 L2A reflectance digital numbers scale to 0..1 by this divisor.
const reflectanceScale = 10000.0

// CompositeOptical evaluates an optical indicator (ndvi, evi, ndwi) for every
// observation day, masking pixels whose SCL class is not in the valid set,
// then composites the month via per-pixel median. Returns ErrNoValidPixels
// when nothing survives the mask.
func CompositeOptical(observations []Observation, indicator string) (*raster.Grid, error) {
	daily := make([]*raster.Grid, 0, len(observations))
	for _, observation := range observations {
		if err := requireBands(observation, "red", "nir", "blue", "swir16", "scl"); err != nil {
			return nil, err
		}
		grid, err := opticalIndexGrid(observation, indicator)
		if err != nil {
			return nil, err
		}
		daily = append(daily, grid)
	}
	return checkValid(raster.MedianComposite(daily))
}

func opticalIndexGrid(observation Observation, indicator string) (*raster.Grid, error) {
	scl := observation.Bands["scl"]
	red := observation.Bands["red"]
	nir := observation.Bands["nir"]
	blue := observation.Bands["blue"]
	swir := observation.Bands["swir16"]

	result := raster.NewGrid(scl.Width, scl.Height)
	for i := range result.Data {
		if !sclClassValid(scl.Data[i]) {
			continue
		}
		r := red.Data[i] / reflectanceScale
		n := nir.Data[i] / reflectanceScale
		b := blue.Data[i] / reflectanceScale
		s := swir.Data[i] / reflectanceScale

		var value float64
		switch indicator {
		case "ndvi":
			value = normalizedDifference(n, r)
		case "evi":
			value = enhancedVegetationIndex(n, r, b)
		case "ndwi":
			value = normalizedDifference(n, s)
		default:
			return nil, fmt.Errorf("unknown optical indicator %q", indicator)
		}
		result.Data[i] = value
	}
	return result, nil
}

func sclClassValid(class float64) bool {
	if math.IsNaN(class) {
		return false
	}
	for _, valid := range properties.SCLValidClasses {
		if int(class) == valid {
			return true
		}
	}
	return false
}

// normalizedDifference is (a - b) / (a + b), NaN on a zero denominator.
func normalizedDifference(a, b float64) float64 {
	denominator := a + b
	if denominator == 0 {
		return math.NaN()
	}
	return (a - b) / denominator
}

// enhancedVegetationIndex is 2.5 * (nir - red) / (nir + 6*red - 7.5*blue + 1).
func enhancedVegetationIndex(nir, red, blue float64) float64 {
	denominator := nir + 6.0*red - 7.5*blue + 1.0
	if denominator == 0 {
		return math.NaN()
	}
	return 2.5 * (nir - red) / denominator
}
