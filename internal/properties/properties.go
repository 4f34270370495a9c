package properties

import (
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
)

// AOI is the monitored area: Ikuta greenery park, Kawasaki
// ([west, south] to [east, north], WGS84).
func AOI() orb.Bound {
	return orb.Bound{
		Min: orb.Point{139.543, 35.594},
		Max: orb.Point{139.582, 35.626},
	}
}

const (
	// EPSGCode is the output CRS: UTM zone 54N (Kanto).
	EPSGCode = 32654

	DefaultStacURL = "https://planetarycomputer.microsoft.com/api/stac/v1"
	DefaultSignURL = "https://planetarycomputer.microsoft.com/api/sas/v1"
	CloudCoverMax  = 20.0
	SearchLimit    = 100

	CollectionSentinel2 = "sentinel-2-l2a"
	CollectionLandsat   = "landsat-c2-l2"

	// Ground resolution in meters per pixel.
	ResolutionS2  = 10.0
	ResolutionLST = 30.0

	// Landsat ST_B10 digital number to surface temperature.
	LSTScale     = 0.00341802
	LSTOffset    = 149.0
	KelvinOffset = 273.15

	// QA_PIXEL bit 1 = dilated cloud, bit 3 = cloud shadow.
	QACloudBits = 0b0000_1010

	RetryAttempts = 3
	RetryWaitMin  = 10 * time.Second
	RetryWaitMax  = 60 * time.Second
)

var Indicators = []string{"ndvi", "evi", "ndwi", "lst"}

// SCL classes kept for optical indicators: vegetation, bare soil, water,
// unclassified.
var SCLValidClasses = []int{4, 5, 6, 7}

// Sentinel2Assets maps logical band names to STAC asset keys.
var Sentinel2Assets = map[string]string{
	"red":    "B04",
	"nir":    "B08",
	"blue":   "B02",
	"swir16": "B11",
	"scl":    "SCL",
}

var LandsatAssets = map[string]string{
	"lwir11":   "lwir11",
	"qa_pixel": "qa_pixel",
}

func OutputDir() string {
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		return dir
	}
	return "output"
}

func MissingLogPath() string {
	return filepath.Join(OutputDir(), "missing.json")
}

func CacheDir() string {
	if dir := os.Getenv("CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(OutputDir(), ".cache")
}

func StacURL() string {
	if url := os.Getenv("STAC_URL"); url != "" {
		return url
	}
	return DefaultStacURL
}

// StacSignURL is the SAS token endpoint used to sign asset hrefs before GDAL
// opens them. The Planetary Computer rejects unsigned blob reads; the catalog
// client falls back to DefaultSignURL when it talks to the default catalog.
func StacSignURL() string { return os.Getenv("STAC_SIGN_URL") }

// Optional client-credentials auth for token-protected STAC endpoints.
func StacClientID() string     { return os.Getenv("STAC_CLIENT_ID") }
func StacClientSecret() string { return os.Getenv("STAC_CLIENT_SECRET") }
func StacTokenURL() string     { return os.Getenv("STAC_TOKEN_URL") }

// GithubRepo is the "owner/repo" target for release uploads. Empty disables
// uploading entirely.
func GithubRepo() string  { return os.Getenv("GITHUB_REPO") }
func GithubToken() string { return os.Getenv("GITHUB_TOKEN") }

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}
