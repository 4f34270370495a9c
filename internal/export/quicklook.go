package export

import (
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
)

// SaveQuicklook renders a grayscale preview PNG next to the COG, stretching
// the valid value range to 0..255. Invalid pixels are drawn black.
func SaveQuicklook(grid *raster.Grid, cogPath string) (string, error) {
	outputPath := strings.TrimSuffix(cogPath, ".tif") + ".png"

	stats := grid.Stats()
	span := stats.Max - stats.Min
	if span == 0 {
		span = 1
	}

	dc := gg.NewContext(grid.Width, grid.Height)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			value := grid.At(x, y)
			if math.IsNaN(value) {
				dc.SetRGB(0, 0, 0)
			} else {
				gray := (value - stats.Min) / span
				dc.SetRGB(gray, gray, gray)
			}
			dc.SetPixel(x, y)
		}
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
