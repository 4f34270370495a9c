package process

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/stac"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/utils"
)

// vsiPath routes remote asset hrefs through GDAL's virtual curl filesystem.
func vsiPath(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	return href
}

// aoiExtent projects the AOI corners into the output CRS and returns
// [xmin, ymin, xmax, ymax].
func aoiExtent() ([4]float64, error) {
	var extent [4]float64
	bound := properties.AOI()

	src, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return extent, err
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromEPSG(properties.EPSGCode)
	if err != nil {
		return extent, err
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return extent, fmt.Errorf("failed to create CRS transform: %w", err)
	}
	defer tr.Close()

	xs := []float64{bound.Min[0], bound.Max[0]}
	ys := []float64{bound.Min[1], bound.Max[1]}
	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return extent, fmt.Errorf("failed to project AOI: %w", err)
	}

	extent[0] = math.Min(xs[0], xs[1])
	extent[1] = math.Min(ys[0], ys[1])
	extent[2] = math.Max(xs[0], xs[1])
	extent[3] = math.Max(ys[0], ys[1])
	return extent, nil
}

// LoadMonth reads the requested bands of every scene, warped onto the AOI
// grid, and groups them into one observation per local solar day. Scenes of
// the same day are mosaicked first-valid-wins before any masking happens.
func LoadMonth(scenes []stac.Scene, assetKeys map[string]string, resolution float64) ([]Observation, *raster.GeoRef, error) {
	extent, err := aoiExtent()
	if err != nil {
		return nil, nil, err
	}

	byDay := make(map[time.Time][]stac.Scene)
	for _, scene := range scenes {
		day := solarDay(scene.Datetime)
		byDay[day] = append(byDay[day], scene)
	}

	var ref *raster.GeoRef
	observations := make([]Observation, 0, len(byDay))
	for _, day := range utils.GetSortedKeys(byDay, true) {
		bands := make(map[string]*raster.Grid, len(assetKeys))
		for _, scene := range byDay[day] {
			for logical, assetKey := range assetKeys {
				asset, ok := scene.Assets[assetKey]
				if !ok {
					return nil, nil, fmt.Errorf("scene %s has no asset %q", scene.ID, assetKey)
				}
				grid, gridRef, err := readBandWindow(asset.Href, extent, resolution)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to read band %s of scene %s: %w", logical, scene.ID, err)
				}
				if ref == nil {
					ref = gridRef
				}
				if existing, ok := bands[logical]; ok {
					mosaicInto(existing, grid)
				} else {
					bands[logical] = grid
				}
			}
		}
		observations = append(observations, Observation{Date: day, Bands: bands})
	}
	return observations, ref, nil
}

// solarDay buckets an acquisition by the local solar day at the AOI center,
// so tiles of one satellite pass land in the same group even when the pass
// straddles a UTC date boundary.
func solarDay(t time.Time) time.Time {
	lon := properties.AOI().Center()[0]
	offset := time.Duration(lon / 15.0 * float64(time.Hour))
	return t.UTC().Add(offset).Truncate(24 * time.Hour)
}

// readBandWindow opens a single-band asset and warps it onto the AOI grid in
// the output CRS. Warp gaps carry the zero nodata sentinel, which the masking
// step removes.
func readBandWindow(href string, extent [4]float64, resolution float64) (*raster.Grid, *raster.GeoRef, error) {
	ds, err := godal.Open(vsiPath(href))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", href, err)
	}
	defer ds.Close()

	res := strconv.FormatFloat(resolution, 'f', -1, 64)
	warped, err := godal.Warp("", []*godal.Dataset{ds}, []string{
		"-of", "MEM",
		"-t_srs", fmt.Sprintf("EPSG:%d", properties.EPSGCode),
		"-te", formatCoord(extent[0]), formatCoord(extent[1]), formatCoord(extent[2]), formatCoord(extent[3]),
		"-tr", res, res,
		"-r", "near",
		"-ot", "Float64",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to warp to AOI window: %w", err)
	}
	defer warped.Close()

	structure := warped.Structure()
	data := make([]float64, structure.SizeX*structure.SizeY)
	if err := warped.Bands()[0].Read(0, 0, data, structure.SizeX, structure.SizeY); err != nil {
		return nil, nil, fmt.Errorf("failed to read raster data: %w", err)
	}

	transform, err := warped.GeoTransform()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get GeoTransform: %w", err)
	}

	grid := &raster.Grid{Data: data, Width: structure.SizeX, Height: structure.SizeY}
	return grid, &raster.GeoRef{Transform: transform, EPSG: properties.EPSGCode}, nil
}

// mosaicInto fills nodata pixels of dst from src; earlier scenes win.
func mosaicInto(dst, src *raster.Grid) {
	for i, v := range dst.Data {
		if v == 0 || math.IsNaN(v) {
			dst.Data[i] = src.Data[i]
		}
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
