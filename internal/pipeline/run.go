package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/export"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/notification"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/process"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/stac"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/upload"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Month is one calendar month of the processing range.
type Month struct {
	Year  int
	Month time.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// MonthRange returns every month from start through end, both inclusive.
func MonthRange(start, end Month) []Month {
	var months []Month
	y, m := start.Year, start.Month
	for y < end.Year || (y == end.Year && m <= end.Month) {
		months = append(months, Month{Year: y, Month: m})
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return months
}

// Tally is the final report of a run.
type Tally struct {
	Months  int
	Success int
	Missing int
}

// Runner iterates months x indicators sequentially, retries operational
// failures, and records permanent ones as missing instead of aborting.
type Runner struct {
	missing []MissingRecord

	compute       func(indicator string, ym Month) (*raster.Grid, *raster.GeoRef, error)
	export        func(grid *raster.Grid, ref *raster.GeoRef, indicator string, ym Month) (string, error)
	upload        func(indicator string, ym Month, cogPath string) error
	uploadSummary func(indicator string) error
	sleep         func(time.Duration)
	notifySuccess func(string) error
	notifyError   func(string) error
}

func NewRunner() *Runner {
	client := stac.NewClient()
	return &Runner{
		compute: func(indicator string, ym Month) (*raster.Grid, *raster.GeoRef, error) {
			collection := properties.CollectionSentinel2
			if indicator == "lst" {
				collection = properties.CollectionLandsat
			}
			scenes, err := client.Search(collection, ym.Year, ym.Month)
			if err != nil {
				return nil, nil, err
			}
			return process.ComputeMonthly(scenes, indicator, ym.Year, ym.Month)
		},
		export: exportMonth,
		upload: func(indicator string, ym Month, cogPath string) error {
			return upload.UploadRaster(indicator, ym.Year, cogPath)
		},
		uploadSummary: upload.UploadSummary,
		sleep:         time.Sleep,
		notifySuccess: notification.SendDiscordSuccessNotification,
		notifyError:   notification.SendDiscordErrorNotification,
	}
}

func exportMonth(grid *raster.Grid, ref *raster.GeoRef, indicator string, ym Month) (string, error) {
	cogPath, err := export.SaveCOG(grid, ref, indicator, ym.Year, ym.Month)
	if err != nil {
		return "", err
	}
	// The quicklook is a convenience artifact; its failure never costs the month.
	if _, err := export.SaveQuicklook(grid, cogPath); err != nil {
		logrus.Warnf("[export] quicklook failed for %s %s: %v", indicator, ym, err)
	}
	if err := export.UpdateSummary(grid, indicator, ym.Year, ym.Month); err != nil {
		return "", err
	}
	return cogPath, nil
}

// Run processes every month x indicator pair in the range and always returns
// a tally; missing months are reported through missing.json and the log, not
// through errors.
func (r *Runner) Run(start, end Month) Tally {
	months := MonthRange(start, end)
	tally := Tally{Months: len(months)}

	bar := progressbar.Default(int64(len(months)*len(properties.Indicators)), "Processing months")
	for _, ym := range months {
		for _, indicator := range properties.Indicators {
			if r.processOne(ym, indicator) {
				tally.Success++
			} else {
				tally.Missing++
			}
			bar.Add(1)
		}

		if properties.GithubRepo() != "" {
			for _, indicator := range properties.Indicators {
				if err := r.uploadSummary(indicator); err != nil {
					logrus.Errorf("[upload] summary upload failed for %s: %v", indicator, err)
				}
			}
		}
	}
	bar.Finish()

	// Write the missing log even when nothing is missing.
	if err := r.flushMissing(); err != nil {
		logrus.Errorf("[main] failed to write missing log: %v", err)
	}

	logrus.Info("[main] ===== run complete =====")
	logrus.Infof("[main] months processed: %d", tally.Months)
	logrus.Infof("[main] success: %d", tally.Success)
	if tally.Missing > 0 {
		logrus.Warnf("[main] missing: %d -> see %s", tally.Missing, properties.MissingLogPath())
	} else {
		logrus.Info("[main] missing: 0")
	}

	message := fmt.Sprintf("Months: %d\nSuccess: %d\nMissing: %d", tally.Months, tally.Success, tally.Missing)
	notify := r.notifySuccess
	if tally.Missing > 0 {
		message = fmt.Sprintf("%s\nDetails: %s", message, properties.MissingLogPath())
		notify = r.notifyError
	}
	if err := notify(message); err != nil {
		logrus.Warnf("[main] failed to send notification: %v", err)
	}

	return tally
}

func (r *Runner) processOne(ym Month, indicator string) bool {
	grid, ref, err := r.computeWithRetry(ym, indicator)
	switch {
	case errors.Is(err, process.ErrNoScenes):
		r.recordMissing(ym, indicator, ReasonNoItems)
		return false
	case errors.Is(err, process.ErrNoValidPixels):
		r.recordMissing(ym, indicator, ReasonNoValidPixels)
		return false
	case err != nil:
		logrus.Errorf("[main] %s %s: all retries failed: %v", indicator, ym, err)
		r.recordMissing(ym, indicator, ReasonProcessError)
		return false
	}

	cogPath, err := r.export(grid, ref, indicator, ym)
	if err != nil {
		logrus.Errorf("[main] export failed %s %s: %v", indicator, ym, err)
		r.recordMissing(ym, indicator, ReasonProcessError)
		return false
	}

	if properties.GithubRepo() != "" {
		if err := r.upload(indicator, ym, cogPath); err != nil {
			logrus.Errorf("[main] upload failed %s %s: %v", indicator, ym, err)
			r.recordMissing(ym, indicator, ReasonUploadError)
			return false
		}
	}
	return true
}

// computeWithRetry retries search+compute on operational errors with a
// randomized backoff. No-data outcomes come back immediately; they are
// results, not failures.
func (r *Runner) computeWithRetry(ym Month, indicator string) (*raster.Grid, *raster.GeoRef, error) {
	var lastErr error
	for attempt := 1; attempt <= properties.RetryAttempts; attempt++ {
		grid, ref, err := r.compute(indicator, ym)
		if err == nil || errors.Is(err, process.ErrNoScenes) || errors.Is(err, process.ErrNoValidPixels) {
			return grid, ref, err
		}
		lastErr = err
		if attempt < properties.RetryAttempts {
			wait := randomWait()
			logrus.Warnf("[main] %s %s: attempt %d failed (%v), retrying in %s", indicator, ym, attempt, err, wait)
			r.sleep(wait)
		}
	}
	return nil, nil, lastErr
}

func randomWait() time.Duration {
	span := int64(properties.RetryWaitMax - properties.RetryWaitMin)
	return properties.RetryWaitMin + time.Duration(rand.Int63n(span))
}

// recordMissing appends the record and rewrites missing.json immediately so
// the log survives an interrupted run.
func (r *Runner) recordMissing(ym Month, indicator string, reason MissingReason) {
	r.missing = append(r.missing, MissingRecord{
		Year:      ym.Year,
		Month:     int(ym.Month),
		Indicator: indicator,
		Reason:    reason,
	})
	if err := r.flushMissing(); err != nil {
		logrus.Errorf("[main] failed to write missing log: %v", err)
	}
}

func (r *Runner) flushMissing() error {
	if err := os.MkdirAll(properties.OutputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	records := r.missing
	if records == nil {
		records = []MissingRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal missing records: %w", err)
	}
	return os.WriteFile(properties.MissingLogPath(), data, 0644)
}
