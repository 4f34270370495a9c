package upload

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/export"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/sirupsen/logrus"
)

// runGH executes the gh CLI. Swapped out in tests.
var runGH = func(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if token := properties.GithubToken(); token != "" {
		cmd.Env = append(os.Environ(), "GH_TOKEN="+token)
	}
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ReleaseTag names the per-indicator, per-year release holding that year's
// monthly rasters.
func ReleaseTag(indicator string, year int) string {
	return fmt.Sprintf("data-%s-%d", indicator, year)
}

// SummaryReleaseTag is the shared release holding the latest summary files of
// every indicator.
const SummaryReleaseTag = "data-summary"

// EnsureRelease creates the release when it does not exist yet.
func EnsureRelease(tag, title string) error {
	repo := properties.GithubRepo()
	if repo == "" {
		logrus.Warnf("[upload] GITHUB_REPO not set, skipping ensure release %s", tag)
		return nil
	}
	if _, err := runGH("release", "view", tag, "--repo", repo); err == nil {
		return nil
	}
	_, err := runGH("release", "create", tag, "--title", title, "--notes", "", "--repo", repo)
	if err != nil {
		return fmt.Errorf("failed to create release %s: %w", tag, err)
	}
	return nil
}

// UploadAsset pushes a file to the release, replacing a same-named prior
// asset.
func UploadAsset(tag, filePath string) error {
	repo := properties.GithubRepo()
	if repo == "" {
		logrus.Warnf("[upload] GITHUB_REPO not set, skipping upload of %s", filePath)
		return nil
	}
	filename := filepath.Base(filePath)

	// A failing delete just means the asset did not exist yet.
	runGH("release", "delete-asset", tag, filename, "--yes", "--repo", repo)

	if _, err := runGH("release", "upload", tag, filePath, "--repo", repo); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", filename, tag, err)
	}
	logrus.Infof("[upload] %s -> %s", filename, tag)
	return nil
}

// UploadRaster publishes a monthly COG to its indicator-year release.
func UploadRaster(indicator string, year int, cogPath string) error {
	tag := ReleaseTag(indicator, year)
	title := fmt.Sprintf("%s %d", strings.ToUpper(indicator), year)
	if err := EnsureRelease(tag, title); err != nil {
		return err
	}
	return UploadAsset(tag, cogPath)
}

// UploadSummary pushes the indicator's summary CSV and JSON to the shared
// summary release. Files that were never produced are skipped.
func UploadSummary(indicator string) error {
	if properties.GithubRepo() == "" {
		logrus.Warnf("[upload] GITHUB_REPO not set, skipping summary upload for %s", indicator)
		return nil
	}
	if err := EnsureRelease(SummaryReleaseTag, "Summary Data"); err != nil {
		return err
	}
	for _, path := range []string{export.SummaryCSVPath(indicator), export.SummaryJSONPath(indicator)} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := UploadAsset(SummaryReleaseTag, path); err != nil {
			return err
		}
	}
	return nil
}
