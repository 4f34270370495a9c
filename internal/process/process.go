package process

import (
	"errors"
	"fmt"
	"time"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/stac"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoScenes means the catalog had no items for the month. Not a
	// failure: the month is recorded as missing and skipped.
	ErrNoScenes = errors.New("no scenes found for month")

	// ErrNoValidPixels means masking removed every pixel of the composite.
	ErrNoValidPixels = errors.New("no valid pixels after masking")
)

// Observation holds the band grids of one acquisition day, already mosaicked
// when several scenes cover the same day.
type Observation struct {
	Date  time.Time
	Bands map[string]*raster.Grid
}

// ComputeMonthly loads the month's scenes, applies the indicator's mask and
// band math per day, and composites the days into one grid via per-pixel
// median. Returns ErrNoScenes or ErrNoValidPixels when the month yields no
// result.
func ComputeMonthly(scenes []stac.Scene, indicator string, year int, month time.Month) (*raster.Grid, *raster.GeoRef, error) {
	if len(scenes) == 0 {
		return nil, nil, ErrNoScenes
	}

	var (
		grid *raster.Grid
		ref  *raster.GeoRef
		err  error
	)
	if indicator == "lst" {
		var observations []Observation
		observations, ref, err = LoadMonth(scenes, properties.LandsatAssets, properties.ResolutionLST)
		if err != nil {
			return nil, nil, err
		}
		grid, err = CompositeThermal(observations)
	} else {
		var observations []Observation
		observations, ref, err = LoadMonth(scenes, properties.Sentinel2Assets, properties.ResolutionS2)
		if err != nil {
			return nil, nil, err
		}
		grid, err = CompositeOptical(observations, indicator)
	}
	if err != nil {
		if errors.Is(err, ErrNoValidPixels) {
			logrus.Warnf("[process] %s %d-%02d: no valid pixels, skipping", indicator, year, month)
		}
		return nil, nil, err
	}

	stats := grid.Stats()
	logrus.Infof("[process] %s %d-%02d: computed (valid_ratio=%.1f%%)", indicator, year, month, stats.ValidRatio*100)
	return grid, ref, nil
}

func checkValid(grid *raster.Grid) (*raster.Grid, error) {
	if grid == nil || grid.ValidCount() == 0 {
		return nil, ErrNoValidPixels
	}
	return grid, nil
}

func requireBands(observation Observation, names ...string) error {
	for _, name := range names {
		if observation.Bands[name] == nil {
			return fmt.Errorf("observation %s is missing band %q", observation.Date.Format("2006-01-02"), name)
		}
	}
	return nil
}
