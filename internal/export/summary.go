package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/raster"
	"github.com/sirupsen/logrus"
)

// SummaryRow is one month of a per-indicator time series. Unique per
// (year, month); a rewrite of the same month replaces the previous row.
type SummaryRow struct {
	Year       int     `csv:"year" json:"year"`
	Month      int     `csv:"month" json:"month"`
	Mean       float64 `csv:"mean" json:"mean"`
	Max        float64 `csv:"max" json:"max"`
	Min        float64 `csv:"min" json:"min"`
	ValidRatio float64 `csv:"valid_ratio" json:"valid_ratio"`
}

func SummaryCSVPath(indicator string) string {
	return filepath.Join(properties.OutputDir(), fmt.Sprintf("summary_%s.csv", indicator))
}

func SummaryJSONPath(indicator string) string {
	return filepath.Join(properties.OutputDir(), fmt.Sprintf("summary_%s.json", indicator))
}

// UpdateSummary upserts the month's statistics into the indicator's summary
// CSV and mirrors the full table to JSON. Rows stay sorted by year then month
// ascending regardless of insertion order.
func UpdateSummary(grid *raster.Grid, indicator string, year int, month time.Month) error {
	if err := os.MkdirAll(properties.OutputDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stats := grid.Stats()
	newRow := &SummaryRow{
		Year:       year,
		Month:      int(month),
		Mean:       stats.Mean,
		Max:        stats.Max,
		Min:        stats.Min,
		ValidRatio: stats.ValidRatio,
	}

	rows, err := readSummary(indicator)
	if err != nil {
		return err
	}

	kept := rows[:0]
	for _, row := range rows {
		if row.Year == year && row.Month == int(month) {
			continue
		}
		kept = append(kept, row)
	}
	kept = append(kept, newRow)
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Year != kept[j].Year {
			return kept[i].Year < kept[j].Year
		}
		return kept[i].Month < kept[j].Month
	})

	if err := writeSummary(indicator, kept); err != nil {
		return err
	}

	logrus.Infof("[export] summary updated: %s %d-%02d", indicator, year, month)
	return nil
}

func readSummary(indicator string) ([]*SummaryRow, error) {
	file, err := os.Open(SummaryCSVPath(indicator))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open summary CSV: %w", err)
	}
	defer file.Close()

	var rows []*SummaryRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse summary CSV: %w", err)
	}
	return rows, nil
}

func writeSummary(indicator string, rows []*SummaryRow) error {
	file, err := os.Create(SummaryCSVPath(indicator))
	if err != nil {
		return fmt.Errorf("failed to create summary CSV: %w", err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write summary CSV: %w", err)
	}

	jsonData, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary JSON: %w", err)
	}
	if err := os.WriteFile(SummaryJSONPath(indicator), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write summary JSON: %w", err)
	}
	return nil
}
