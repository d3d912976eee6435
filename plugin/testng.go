package plugin

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drone/drone-tf-xunit/results"
	"github.com/drone/drone-tf-xunit/schedule"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	testNGRunner = "testng"

	// configuration methods become test cases of this type
	testTypeConfiguration = "configuration"
)

var errNoReportFiles = errors.New("no files found matching the report filename pattern")

// locateFiles identifies files matching the given pattern.
func locateFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger := logrus.WithError(err).WithField("Pattern", pattern)
		logger.Error("Error occurred while searching for files")
		return nil, errors.New("failed to search for files: " + err.Error())
	}
	if len(matches) == 0 {
		return nil, errNoReportFiles
	}
	return matches, nil
}

// collectTestNG parses files concurrently. Entries keep the order of files,
// files that cannot be parsed are logged and skipped.
func collectTestNG(ctx context.Context, files []string) (schedule.Schedule, error) {
	parsed := make([]schedule.Schedule, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := processFile(file)
			if err != nil {
				logrus.WithField("File", file).WithError(err).Warn("Skipping TestNG report")
				return nil
			}
			parsed[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries schedule.Schedule
	for _, fileEntries := range parsed {
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

// processFile reads a TestNG XML report and turns every suite into a schedule entry.
func processFile(filename string) (schedule.Schedule, error) {
	logrus.Infof("Processing file: %s", filename)

	data, err := os.ReadFile(filename)
	if err != nil {
		logger := logrus.WithError(err).WithField("File", filename)
		logger.Error("Failed to read file")
		return nil, errors.New("failed to read file: " + err.Error())
	}

	var report TestNGReport
	if err := xml.Unmarshal(data, &report); err != nil {
		logger := logrus.WithError(err).WithField("File", filename)
		logger.Error("Failed to parse TestNG XML")
		return nil, errors.New("failed to parse TestNG XML: " + err.Error())
	}
	if len(report.Suites) == 0 {
		return nil, errors.New("no test suites found in the XML structure")
	}

	reportLog := results.Log{
		Href:          filepath.ToSlash(filename),
		Name:          filepath.Base(filename),
		ScheduleStage: string(schedule.StageRunning),
	}

	var entries schedule.Schedule
	for _, suite := range report.Suites {
		entry := newTestNGEntry(suite)
		entry.Logs = append(entry.Logs, reportLog)

		logSuiteSummary(suite.Name, suiteTotals(entry.TestCases))
		logSuiteGroups(suite)
		logSuiteTestDetails(suite)

		entries = append(entries, entry)
	}
	return entries, nil
}

// newTestNGEntry builds a complete schedule entry from a TestNG suite.
func newTestNGEntry(suite Suite) *schedule.Entry {
	groups := map[string][]string{}
	for _, group := range suite.Groups {
		for _, method := range group.Methods {
			key := method.ClassName + "." + method.Name
			groups[key] = append(groups[key], group.Name)
		}
	}

	entry := &schedule.Entry{
		ID:               suite.Name,
		TestSuiteName:    suite.Name,
		RunnerCapability: testNGRunner,
		Stage:            schedule.StageComplete,
		State:            schedule.StateOK,
	}
	for _, class := range suite.Classes {
		for _, test := range class.Tests {
			entry.TestCases = append(entry.TestCases, newTestNGTestCase(class, test, groups[class.Name+"."+test.Name]))
		}
	}
	entry.Result = entryResult(entry.TestCases)
	return entry
}

// newTestNGTestCase maps a test method. A missing or unknown status makes
// the case an error.
func newTestNGTestCase(class Class, test Test, groups []string) *results.TestCase {
	tc := &results.TestCase{
		Name:       class.Name + "." + test.Name,
		StartTime:  test.StartedAt,
		EndTime:    test.FinishedAt,
		Parameters: trimLines(test.Params),
		SystemOut:  trimLines(test.ReporterOutput),
	}

	outcome, err := results.ParseOutcome(test.Status)
	if err != nil || outcome == results.OutcomeUndefined {
		logrus.WithField("Test", tc.Name).WithField("Status", test.Status).Warn("Unknown TestNG status")
		outcome = results.OutcomeError
		tc.Error = results.WithMessage("unknown TestNG status " + strconv.Quote(test.Status))
	}
	tc.Result = outcome

	if duration, err := strconv.ParseFloat(test.DurationMS, 64); err == nil {
		d := time.Duration(duration * float64(time.Millisecond))
		tc.Duration = &d
	} else {
		logrus.Warnf("Invalid or missing DurationMS for test '%s'", test.Name)
	}

	if outcome == results.OutcomeFailed {
		if exception := strings.TrimSpace(test.Exception); exception != "" {
			tc.Failure = results.WithMessage(exception)
		} else {
			tc.Failure = results.Flagged()
		}
	}

	if test.IsConfig {
		tc.TestType = testTypeConfiguration
	}
	if test.Description != "" {
		tc.Properties = append(tc.Properties, results.Property{Name: "testng.description", Value: test.Description})
	}
	for _, group := range groups {
		tc.Properties = append(tc.Properties, results.Property{Name: "testng.group", Value: group})
	}
	return tc
}

// trimLines strips the whitespace TestNG puts around CDATA sections.
func trimLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}
	return out
}

// entryResult grades the cases of a suite, the most severe case wins. A suite
// without graded cases is skipped.
func entryResult(cases []*results.TestCase) schedule.Result {
	worst, worstWeight := schedule.ResultSkipped, -1
	for _, tc := range cases {
		var result schedule.Result
		switch {
		case tc.Result.IsError():
			result = schedule.ResultError
		case tc.Result.IsFailure():
			result = schedule.ResultFailed
		case tc.Result == results.OutcomeInfo:
			result = schedule.ResultInfo
		case tc.Result == results.OutcomePassed:
			result = schedule.ResultPassed
		case tc.Result == results.OutcomeSkipped:
			result = schedule.ResultSkipped
		default:
			continue
		}
		if weight, _ := result.Weight(); weight > worstWeight {
			worst, worstWeight = result, weight
		}
	}
	return worst
}

// suiteTotals aggregates the cases of a suite for the summary log and the threshold gate.
func suiteTotals(cases []*results.TestCase) Totals {
	var totals Totals
	for _, tc := range cases {
		totals.Total++
		switch {
		case tc.Result.IsFailure():
			totals.Failures++
			if tc.TestType == testTypeConfiguration {
				totals.ConfigFailures++
			}
		case tc.Result == results.OutcomeSkipped:
			totals.Skipped++
		}
		if tc.Duration != nil {
			totals.DurationMS += float64(*tc.Duration) / float64(time.Millisecond)
		}
	}
	return totals
}

// logSuiteSummary logs the totals of a suite.
func logSuiteSummary(name string, totals Totals) {
	logrus.Infof("\n===============================================")
	logrus.Infof("\nSuite: %s", name)
	logrus.Infof("\nTotal Tests: %d | Failures: %d | Skips: %d | Duration: %.2f ms", totals.Total, totals.Failures, totals.Skipped, totals.DurationMS)
	logrus.Infof("\n===============================================")
}

// logSuiteGroups logs the groups of a suite and their methods.
func logSuiteGroups(suite Suite) {
	logrus.Infof("\nGroups:")
	for _, group := range suite.Groups {
		logrus.Infof("\n- Group: %s", group.Name)
		for _, method := range group.Methods {
			logrus.Infof("\n  - Method: %s | Class: %s | Signature: %s", method.Name, method.ClassName, method.Signature)
		}
	}
}

// logSuiteTestDetails logs every test method of a suite.
func logSuiteTestDetails(suite Suite) {
	logrus.Infof("\nTest Details:")
	for _, class := range suite.Classes {
		for _, test := range class.Tests {
			logrus.Infof("\n- Test: %s | Status: %s | Duration: %s ms", test.Name, test.Status, test.DurationMS)
			if test.Status == "FAIL" && test.Exception != "" {
				logrus.Infof("\n    Exception: %s", test.Exception)
			}
		}
	}
}
