package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/notification"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagMode  string
	flagStart string
	flagEnd   string
)

var notifyStartupFailure = notification.SendDiscordErrorNotification

var rootCmd = &cobra.Command{
	Use:          "ikuta-pipeline",
	Short:        "Monthly satellite index pipeline for the Ikuta greenery area",
	Long:         "Computes monthly NDVI/EVI/NDWI/LST composites over the Ikuta greenery area,\nexports them as Cloud Optimized GeoTIFFs and publishes rasters plus rolling\nsummaries to GitHub Releases.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			logrus.Debug("no .env file found, relying on environment")
		}
		godal.RegisterAll()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := resolveRange()
		if err != nil {
			if notifyErr := notifyStartupFailure(fmt.Sprintf("Startup failed: %v", err)); notifyErr != nil {
				logrus.Warnf("[main] failed to send notification: %v", notifyErr)
			}
			return err
		}

		printBanner()
		logrus.Infof("[main] mode=%s range=%s..%s", flagMode, start, end)

		pipeline.NewRunner().Run(start, end)

		// Missing months are reported through missing.json and the log;
		// the process still exits zero so scheduled runs stay green.
		return nil
	},
}

func printBanner() {
	banner := figure.NewFigure("Ikuta", "isometric1", true)
	bannercolor.Cyan(banner.String())
	fmt.Println()
}

func resolveRange() (pipeline.Month, pipeline.Month, error) {
	now := time.Now()
	current := pipeline.Month{Year: now.Year(), Month: now.Month()}

	switch flagMode {
	case "monthly":
		return current, current, nil
	case "historical":
	default:
		return pipeline.Month{}, pipeline.Month{}, fmt.Errorf("invalid mode %q: use historical or monthly", flagMode)
	}

	start, err := parseYearMonth(flagStart, current)
	if err != nil {
		return pipeline.Month{}, pipeline.Month{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseYearMonth(flagEnd, current)
	if err != nil {
		return pipeline.Month{}, pipeline.Month{}, fmt.Errorf("invalid --end: %w", err)
	}
	if end.Year < start.Year || (end.Year == start.Year && end.Month < start.Month) {
		return pipeline.Month{}, pipeline.Month{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return start, end, nil
}

func parseYearMonth(value string, fallback pipeline.Month) (pipeline.Month, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := time.Parse("2006-01", value)
	if err != nil {
		return pipeline.Month{}, fmt.Errorf("%q is not YYYY-MM", value)
	}
	return pipeline.Month{Year: parsed.Year(), Month: parsed.Month()}, nil
}

func main() {
	rootCmd.Flags().StringVar(&flagMode, "mode", "", "run mode: historical or monthly")
	rootCmd.Flags().StringVar(&flagStart, "start", "", "first month to process (YYYY-MM, default: current month)")
	rootCmd.Flags().StringVar(&flagEnd, "end", "", "last month to process (YYYY-MM, default: current month)")
	rootCmd.MarkFlagRequired("mode")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
