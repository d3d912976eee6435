package plugin

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/drone/drone-tf-xunit/results"
	"github.com/drone/drone-tf-xunit/schedule"
	"github.com/sirupsen/logrus"
)

// ReportOptions control how the Result Tree is assembled and rendered.
type ReportOptions struct {
	PrettyPrint bool
	Indent      int

	// Output files, nothing is written when empty.
	XUnitFile            string
	XUnitTestingFarmFile string

	ArtifactsURL  string
	PrimaryTask   results.PrimaryTask
	TestingThread string

	PolarionLookupMethod        string
	PolarionLookupMethodFieldID string
	PolarionProjectID           string
}

// Report is one rendering of the Result Tree.
type Report struct {
	Result           schedule.Result
	Results          *results.Results
	XUnit            string
	XUnitTestingFarm string
}

// Reporter collects schedule entries from producers and renders them. The
// whole gather, resolve, render and write sequence runs under one lock so a
// periodic refresh and the final generation never interleave.
type Reporter struct {
	mu       sync.Mutex
	entries  schedule.Schedule
	resolver *schedule.Resolver
	opts     ReportOptions
}

// NewReporter returns a reporter resolving the overall result with resolver.
func NewReporter(resolver *schedule.Resolver, opts ReportOptions) *Reporter {
	if resolver == nil {
		resolver = &schedule.Resolver{}
	}
	return &Reporter{resolver: resolver, opts: opts}
}

// Add appends entries to the schedule.
func (r *Reporter) Add(entries ...*schedule.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entries...)
}

// Entries returns a copy of the schedule.
func (r *Reporter) Entries() schedule.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append(schedule.Schedule(nil), r.entries...)
}

// Sources name the producers feeding a reporter.
type Sources struct {
	// ScheduleFile is a YAML schedule written by the test runner.
	ScheduleFile string
	// ReportFilenamePattern locates TestNG XML reports.
	ReportFilenamePattern string
	// FailIfNoResults turns a missing source into an error.
	FailIfNoResults bool
}

// Collect runs the producers of sources. Schedule file entries come first,
// TestNG suites follow in file order.
func (r *Reporter) Collect(ctx context.Context, sources Sources) error {
	if sources.ScheduleFile != "" {
		entries, err := schedule.Load(sources.ScheduleFile)
		if err != nil {
			return err
		}
		logrus.WithField("File", sources.ScheduleFile).Infof("loaded %d schedule entries", len(entries))
		r.Add(entries...)
	}

	if sources.ReportFilenamePattern != "" {
		files, err := locateFiles(sources.ReportFilenamePattern)
		switch {
		case errors.Is(err, errNoReportFiles) && !sources.FailIfNoResults:
			logrus.Warn("No TestNG XML report files found, continuing execution as PluginFailIfNoResults is false")
		case err != nil:
			logrus.WithError(err).Error("Error locating files")
			return errors.New("failed to locate files: " + err.Error())
		default:
			entries, err := collectTestNG(ctx, files)
			if err != nil {
				return err
			}
			r.Add(entries...)
		}
	}

	if len(r.Entries()) == 0 && sources.FailIfNoResults {
		return errors.New("no test results found. Check the schedule file and the report file pattern")
	}
	return nil
}

// Generate resolves the overall result, renders both documents from the
// current schedule and writes the configured files.
func (r *Reporter) Generate(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.resolver.Resolve(r.entries)
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve overall result")
		return nil, errors.New("failed to resolve overall result: " + err.Error())
	}

	tree := r.buildResults(result)

	tf, err := tree.XUnitTestingFarm()
	if err != nil {
		logrus.WithError(err).Error("Failed to build Testing Farm xUnit")
		return nil, errors.New("failed to build Testing Farm xUnit: " + err.Error())
	}
	tfDocument, err := tf.ToXMLString(r.opts.PrettyPrint, r.opts.Indent)
	if err != nil {
		return nil, errors.New("failed to render Testing Farm xUnit: " + err.Error())
	}
	xunitDocument, err := tree.XUnit().ToXMLString(r.opts.PrettyPrint, r.opts.Indent)
	if err != nil {
		return nil, errors.New("failed to render xUnit: " + err.Error())
	}

	if err := writeReport(r.opts.XUnitTestingFarmFile, tfDocument); err != nil {
		return nil, err
	}
	if err := writeReport(r.opts.XUnitFile, xunitDocument); err != nil {
		return nil, err
	}

	return &Report{
		Result:           result,
		Results:          tree,
		XUnit:            xunitDocument,
		XUnitTestingFarm: tfDocument,
	}, nil
}

// buildResults assembles the Result Tree. Callers hold the lock.
func (r *Reporter) buildResults(result schedule.Result) *results.Results {
	tree := &results.Results{
		OverallResult:      result.String(),
		TestScheduleResult: result.String(),
		PrimaryTask:        r.opts.PrimaryTask,
		TestingThread:      r.opts.TestingThread,

		PolarionLookupMethod:              r.opts.PolarionLookupMethod,
		PolarionCustomLookupMethodFieldID: r.opts.PolarionLookupMethodFieldID,
		PolarionProjectID:                 r.opts.PolarionProjectID,
	}
	for _, entry := range r.entries {
		tree.TestSuites = append(tree.TestSuites, newTestSuite(entry, r.opts.ArtifactsURL))
	}
	return tree
}

// Refresh regenerates the report every interval until ctx is done. Failures
// are logged, a partial report is not fatal.
func (r *Reporter) Refresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Generate(ctx)
			if err != nil {
				logrus.WithError(err).Warn("Failed to generate partial results")
				continue
			}
			logrus.WithField("Result", report.Result).Debug("generated partial results")
		}
	}
}

func writeReport(path, document string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		logrus.WithError(err).WithField("File", path).Error("Failed to write results")
		return errors.New("failed to write results: " + err.Error())
	}
	logrus.WithField("File", path).Debug("results saved")
	return nil
}

// logFinalResult logs the verdict, PASSED at info, FAILED at error and
// everything else as a warning.
func logFinalResult(result schedule.Result) {
	switch result {
	case schedule.ResultPassed:
		logrus.Info("Result of testing: PASSED")
	case schedule.ResultFailed:
		logrus.Error("Result of testing: FAILED")
	default:
		logrus.Warnf("Result of testing: %s", result)
	}
}

// logSchedule logs one line per schedule entry and, at debug level, one line
// per test case.
func logSchedule(label string, entries schedule.Schedule) {
	logrus.Infof("%s (%d entries)", label, len(entries))
	for _, entry := range entries {
		logrus.WithFields(entry.LogFields()).Info("schedule entry")
		for _, tc := range entry.TestCases {
			logrus.WithFields(tc.LogFields()).WithField("ScheduleEntry", entry.ID).Debug("test case")
		}
	}
}
