package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/sirupsen/logrus"
)

// CogPath is {OUTPUT_DIR}/{indicator}/{indicator}_{YYYY}_{MM}.tif.
func CogPath(indicator string, year int, month time.Month) string {
	return filepath.Join(properties.OutputDir(), indicator,
		fmt.Sprintf("%s_%04d_%02d.tif", indicator, year, month))
}

// SaveCOG writes the monthly grid as a Cloud Optimized GeoTIFF with DEFLATE
// compression. The plain GeoTIFF is written to a temp path first and
// translated to the COG layout; the temp file is removed in all outcomes.
func SaveCOG(grid *raster.Grid, ref *raster.GeoRef, indicator string, year int, month time.Month) (string, error) {
	outDir := filepath.Join(properties.OutputDir(), indicator)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := CogPath(indicator, year, month)
	tmpPath := filepath.Join(outDir, fmt.Sprintf("_tmp_%s_%04d_%02d.tif", indicator, year, month))
	defer os.Remove(tmpPath)

	if err := writeGeoTiff(grid, ref, tmpPath); err != nil {
		return "", err
	}

	src, err := godal.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to reopen temp raster: %w", err)
	}
	defer src.Close()

	cog, err := src.Translate(outputPath, []string{
		"-of", "COG",
		"-co", "COMPRESS=DEFLATE",
	})
	if err != nil {
		return "", fmt.Errorf("failed to translate to COG: %w", err)
	}
	if err := cog.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize COG: %w", err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		logrus.Infof("[export] saved %s (%.0f KB)", outputPath, float64(info.Size())/1024)
	}
	return outputPath, nil
}

func writeGeoTiff(grid *raster.Grid, ref *raster.GeoRef, path string) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, grid.Width, grid.Height)
	if err != nil {
		return fmt.Errorf("failed to create temp raster: %w", err)
	}

	if err := ds.SetGeoTransform(ref.Transform); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(ref.EPSG)
	if err != nil {
		ds.Close()
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set CRS: %w", err)
	}

	data := make([]float32, len(grid.Data))
	for i, v := range grid.Data {
		data[i] = float32(v)
	}
	if err := ds.Bands()[0].Write(0, 0, data, grid.Width, grid.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write raster data: %w", err)
	}
	return ds.Close()
}
