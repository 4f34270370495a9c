package process

import (
	"math"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
)

// CompositeThermal converts Landsat lwir11 digital numbers to surface
// temperature in Celsius, masking cloud and cloud-shadow pixels via QA_PIXEL
// bits and the zero nodata sentinel, then composites the month via per-pixel
// median.
func CompositeThermal(observations []Observation) (*raster.Grid, error) {
	daily := make([]*raster.Grid, 0, len(observations))
	for _, observation := range observations {
		if err := requireBands(observation, "lwir11", "qa_pixel"); err != nil {
			return nil, err
		}
		daily = append(daily, thermalGrid(observation))
	}
	return checkValid(raster.MedianComposite(daily))
}

func thermalGrid(observation Observation) *raster.Grid {
	lwir := observation.Bands["lwir11"]
	qa := observation.Bands["qa_pixel"]

	result := raster.NewGrid(lwir.Width, lwir.Height)
	for i := range result.Data {
		if !thermalPixelValid(lwir.Data[i], qa.Data[i]) {
			continue
		}
		result.Data[i] = lstCelsius(lwir.Data[i])
	}
	return result
}

// thermalPixelValid rejects cloud / cloud-shadow QA bits and the zero nodata
// sentinel of lwir11.
func thermalPixelValid(dn, qa float64) bool {
	if math.IsNaN(dn) || math.IsNaN(qa) {
		return false
	}
	if uint16(qa)&properties.QACloudBits != 0 {
		return false
	}
	return dn != 0
}

// lstCelsius applies the Landsat Collection 2 surface temperature scaling and
// converts Kelvin to Celsius.
func lstCelsius(dn float64) float64 {
	return dn*properties.LSTScale + properties.LSTOffset - properties.KelvinOffset
}
