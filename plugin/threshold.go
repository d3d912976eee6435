package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drone/drone-tf-xunit/results"
)

const (
	ThresholdModeAbsolute   = "absolute"
	ThresholdModePercentage = "percentage"
)

// resultTotals aggregates every case of the tree.
func resultTotals(tree *results.Results) Totals {
	var totals Totals
	for _, suite := range tree.TestSuites {
		counts := suiteTotals(suite.TestCases)
		totals.Total += counts.Total
		totals.Failures += counts.Failures
		totals.Skipped += counts.Skipped
		totals.ConfigFailures += counts.ConfigFailures
		totals.DurationMS += counts.DurationMS
	}
	return totals
}

// validateThresholds gates the build on the aggregated totals. The unstable
// limits only apply when the job already failed.
func validateThresholds(totals Totals, args Args) error {
	if args.FailureOnFailedTestConfig && totals.ConfigFailures > 0 {
		return errors.New("build marked as failed due to failed configuration methods as FailureOnFailedTestConfig is true")
	}

	mode := strings.ToLower(args.ThresholdMode)
	if mode == "" {
		mode = ThresholdModeAbsolute
	}
	if mode != ThresholdModeAbsolute && mode != ThresholdModePercentage {
		return fmt.Errorf("invalid ThresholdMode: %s, expected %s or %s", args.ThresholdMode, ThresholdModeAbsolute, ThresholdModePercentage)
	}
	percentage := mode == ThresholdModePercentage

	if err := checkLimits(totals, args.FailedFails, args.FailedSkips, percentage); err != nil {
		return fmt.Errorf("%s threshold validation failed: %w", mode, err)
	}
	if strings.EqualFold(args.JobStatus, "FAILED") {
		if err := checkLimits(totals, args.UnstableFails, args.UnstableSkips, percentage); err != nil {
			return fmt.Errorf("build marked as fail: %s unstable threshold validation failed: %w", mode, err)
		}
	}
	return nil
}

// checkLimits compares failures and skips against their limits, either as
// counts or as a share of all tests. A zero limit is disabled.
func checkLimits(totals Totals, maxFails, maxSkips int, percentage bool) error {
	failures, skipped := float64(totals.Failures), float64(totals.Skipped)
	if percentage {
		if totals.Total == 0 {
			return nil
		}
		failures = failures / float64(totals.Total) * 100
		skipped = skipped / float64(totals.Total) * 100

		if maxFails > 0 && failures > float64(maxFails) {
			return fmt.Errorf("failure rate (%.2f%%) exceeded the threshold (%d%%)", failures, maxFails)
		}
		if maxSkips > 0 && skipped > float64(maxSkips) {
			return fmt.Errorf("skip rate (%.2f%%) exceeded the threshold (%d%%)", skipped, maxSkips)
		}
		return nil
	}

	if maxFails > 0 && totals.Failures > maxFails {
		return fmt.Errorf("number of failed tests (%d) exceeded the failure threshold (%d)", totals.Failures, maxFails)
	}
	if maxSkips > 0 && totals.Skipped > maxSkips {
		return fmt.Errorf("number of skipped tests (%d) exceeded the skip threshold (%d)", totals.Skipped, maxSkips)
	}
	return nil
}
