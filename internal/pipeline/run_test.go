package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/process"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner() *Runner {
	return &Runner{
		compute: func(indicator string, ym Month) (*raster.Grid, *raster.GeoRef, error) {
			g := raster.NewGrid(1, 1)
			g.Set(0, 0, 0.5)
			return g, &raster.GeoRef{EPSG: properties.EPSGCode}, nil
		},
		export: func(grid *raster.Grid, ref *raster.GeoRef, indicator string, ym Month) (string, error) {
			return "cog.tif", nil
		},
		upload:        func(indicator string, ym Month, cogPath string) error { return nil },
		uploadSummary: func(indicator string) error { return nil },
		sleep:         func(time.Duration) {},
		notifySuccess: func(string) error { return nil },
		notifyError:   func(string) error { return nil },
	}
}

func readMissing(t *testing.T) []MissingRecord {
	t.Helper()
	data, err := os.ReadFile(properties.MissingLogPath())
	require.NoError(t, err)
	var records []MissingRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestMonthRangeWithinYear(t *testing.T) {
	months := MonthRange(Month{2023, time.March}, Month{2023, time.May})
	assert.Equal(t, []Month{{2023, time.March}, {2023, time.April}, {2023, time.May}}, months)
}

func TestMonthRangeAcrossYearBoundary(t *testing.T) {
	months := MonthRange(Month{2022, time.November}, Month{2023, time.February})
	assert.Equal(t, []Month{
		{2022, time.November}, {2022, time.December},
		{2023, time.January}, {2023, time.February},
	}, months)
}

func TestMonthRangeSingleMonth(t *testing.T) {
	months := MonthRange(Month{2023, time.July}, Month{2023, time.July})
	assert.Equal(t, []Month{{2023, time.July}}, months)
}

func TestRunAllSuccess(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	tally := testRunner().Run(Month{2023, time.July}, Month{2023, time.August})
	assert.Equal(t, 2, tally.Months)
	assert.Equal(t, 2*len(properties.Indicators), tally.Success)
	assert.Zero(t, tally.Missing)
}

func TestRunWritesEmptyMissingLog(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	testRunner().Run(Month{2023, time.July}, Month{2023, time.July})

	records := readMissing(t)
	assert.Empty(t, records)

	// The file itself must exist even with zero missing entries.
	data, err := os.ReadFile(properties.MissingLogPath())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestNoScenesRecordedWithoutRetry(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	sleeps := 0
	r := testRunner()
	r.sleep = func(time.Duration) { sleeps++ }
	r.compute = func(string, Month) (*raster.Grid, *raster.GeoRef, error) {
		return nil, nil, process.ErrNoScenes
	}

	tally := r.Run(Month{2023, time.July}, Month{2023, time.July})
	assert.Zero(t, tally.Success)
	assert.Equal(t, len(properties.Indicators), tally.Missing)
	assert.Zero(t, sleeps, "a no-data month must not be retried")

	for _, record := range readMissing(t) {
		assert.Equal(t, ReasonNoItems, record.Reason)
	}
}

func TestNoValidPixelsReason(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	r := testRunner()
	r.compute = func(string, Month) (*raster.Grid, *raster.GeoRef, error) {
		return nil, nil, process.ErrNoValidPixels
	}
	r.Run(Month{2023, time.July}, Month{2023, time.July})

	records := readMissing(t)
	require.Len(t, records, len(properties.Indicators))
	for _, record := range records {
		assert.Equal(t, ReasonNoValidPixels, record.Reason)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	attempts := 0
	sleeps := 0
	r := testRunner()
	r.sleep = func(time.Duration) { sleeps++ }
	r.compute = func(indicator string, ym Month) (*raster.Grid, *raster.GeoRef, error) {
		attempts++
		if attempts < 3 {
			return nil, nil, errors.New("catalog timeout")
		}
		g := raster.NewGrid(1, 1)
		g.Set(0, 0, 0.5)
		return g, &raster.GeoRef{}, nil
	}

	ok := r.processOne(Month{2023, time.July}, "ndvi")
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, sleeps)
}

func TestRetriesExhaustedRecordProcessError(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	attempts := 0
	r := testRunner()
	r.compute = func(string, Month) (*raster.Grid, *raster.GeoRef, error) {
		attempts++
		return nil, nil, errors.New("catalog down")
	}

	ok := r.processOne(Month{2023, time.July}, "ndvi")
	assert.False(t, ok)
	assert.Equal(t, properties.RetryAttempts, attempts)

	records := readMissing(t)
	require.Len(t, records, 1)
	assert.Equal(t, MissingRecord{Year: 2023, Month: 7, Indicator: "ndvi", Reason: ReasonProcessError}, records[0])
}

func TestExportFailureRecordedAsProcessError(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	r := testRunner()
	r.export = func(*raster.Grid, *raster.GeoRef, string, Month) (string, error) {
		return "", errors.New("disk full")
	}

	ok := r.processOne(Month{2023, time.July}, "evi")
	assert.False(t, ok)

	records := readMissing(t)
	require.Len(t, records, 1)
	assert.Equal(t, ReasonProcessError, records[0].Reason)
	assert.Equal(t, "evi", records[0].Indicator)
}

func TestUploadFailureRecordedAsUploadError(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("GITHUB_REPO", "owner/repo")

	r := testRunner()
	r.upload = func(string, Month, string) error { return errors.New("release API 500") }

	ok := r.processOne(Month{2023, time.July}, "lst")
	assert.False(t, ok)

	records := readMissing(t)
	require.Len(t, records, 1)
	assert.Equal(t, ReasonUploadError, records[0].Reason)
}

func TestUploadSkippedWithoutRepo(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("GITHUB_REPO", "")

	uploads := 0
	r := testRunner()
	r.upload = func(string, Month, string) error { uploads++; return nil }

	ok := r.processOne(Month{2023, time.July}, "ndvi")
	assert.True(t, ok)
	assert.Zero(t, uploads)
}

func TestMissingLogRewrittenPerRecord(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	r := testRunner()
	r.recordMissing(Month{2023, time.July}, "ndvi", ReasonNoItems)
	assert.Len(t, readMissing(t), 1)

	r.recordMissing(Month{2023, time.August}, "lst", ReasonUploadError)
	records := readMissing(t)
	require.Len(t, records, 2)
	assert.Equal(t, ReasonNoItems, records[0].Reason)
	assert.Equal(t, ReasonUploadError, records[1].Reason)
}

func TestSummariesUploadedPerMonth(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("GITHUB_REPO", "owner/repo")

	var summaries []string
	r := testRunner()
	r.uploadSummary = func(indicator string) error {
		summaries = append(summaries, indicator)
		return nil
	}

	r.Run(Month{2023, time.July}, Month{2023, time.August})
	// One summary upload per indicator per month iteration.
	assert.Len(t, summaries, 2*len(properties.Indicators))
}

func TestRunWithoutMissingNotifiesSuccess(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	var successes, failures []string
	r := testRunner()
	r.notifySuccess = func(msg string) error { successes = append(successes, msg); return nil }
	r.notifyError = func(msg string) error { failures = append(failures, msg); return nil }

	r.Run(Month{2023, time.July}, Month{2023, time.July})
	require.Len(t, successes, 1)
	assert.Empty(t, failures)
	assert.Contains(t, successes[0], "Missing: 0")
}

func TestRunWithMissingNotifiesError(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())

	var successes, failures []string
	r := testRunner()
	r.compute = func(string, Month) (*raster.Grid, *raster.GeoRef, error) {
		return nil, nil, process.ErrNoScenes
	}
	r.notifySuccess = func(msg string) error { successes = append(successes, msg); return nil }
	r.notifyError = func(msg string) error { failures = append(failures, msg); return nil }

	r.Run(Month{2023, time.July}, Month{2023, time.July})
	require.Len(t, failures, 1)
	assert.Empty(t, successes)
	assert.Contains(t, failures[0], "Missing: 4")
	assert.Contains(t, failures[0], properties.MissingLogPath())
}

func TestRandomWaitWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		wait := randomWait()
		assert.GreaterOrEqual(t, wait, properties.RetryWaitMin)
		assert.Less(t, wait, properties.RetryWaitMax)
	}
}
