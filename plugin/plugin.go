package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/drone/drone-tf-xunit/archive"
	"github.com/drone/drone-tf-xunit/results"
	"github.com/drone/drone-tf-xunit/rules"
	"github.com/drone/drone-tf-xunit/schedule"
	"github.com/drone/drone-tf-xunit/tfapi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultArchiveName = "xunit-testing-farm.xml"

// Args represents the plugin's configurable arguments.
type Args struct {
	ScheduleFile          string   `envconfig:"PLUGIN_SCHEDULE_FILE"`
	ReportFilenamePattern string   `envconfig:"PLUGIN_REPORT_FILENAME_PATTERN"`
	OverallResultMap      []string `envconfig:"PLUGIN_OVERALL_RESULT_MAP"`
	ArtifactsURL          string   `envconfig:"PLUGIN_ARTIFACTS_URL"`

	XUnitFile            string `envconfig:"PLUGIN_XUNIT_FILE"`
	XUnitTestingFarmFile string `envconfig:"PLUGIN_XUNIT_TESTING_FARM_FILE"`
	PrettyPrint          bool   `envconfig:"PLUGIN_PRETTY_PRINT"`
	Indent               int    `envconfig:"PLUGIN_INDENT" default:"1"`

	EnablePolarion              bool   `envconfig:"PLUGIN_ENABLE_POLARION"`
	PolarionLookupMethod        string `envconfig:"PLUGIN_POLARION_LOOKUP_METHOD"`
	PolarionLookupMethodFieldID string `envconfig:"PLUGIN_POLARION_LOOKUP_METHOD_FIELD_ID"`
	PolarionProjectID           string `envconfig:"PLUGIN_POLARION_PROJECT_ID"`

	TestingThread         string `envconfig:"PLUGIN_TESTING_THREAD"`
	GenerateTestingThread bool   `envconfig:"PLUGIN_GENERATE_TESTING_THREAD"`

	ArtifactID        string `envconfig:"PLUGIN_ARTIFACT_ID"`
	ArtifactNamespace string `envconfig:"PLUGIN_ARTIFACT_NAMESPACE"`
	ArtifactNVR       string `envconfig:"PLUGIN_ARTIFACT_NVR"`

	TestingFarmAPIURL    string `envconfig:"PLUGIN_TESTING_FARM_API_URL"`
	TestingFarmRequestID string `envconfig:"PLUGIN_TESTING_FARM_REQUEST_ID"`
	TestingFarmAPIKey    string `envconfig:"PLUGIN_TESTING_FARM_API_KEY"`

	S3Bucket          string `envconfig:"PLUGIN_S3_BUCKET"`
	S3Prefix          string `envconfig:"PLUGIN_S3_PREFIX"`
	S3Region          string `envconfig:"PLUGIN_S3_REGION"`
	S3Endpoint        string `envconfig:"PLUGIN_S3_ENDPOINT"`
	S3AccessKeyID     string `envconfig:"PLUGIN_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"PLUGIN_S3_SECRET_ACCESS_KEY"`

	FailedFails               int    `envconfig:"PLUGIN_FAILED_FAILS"`
	FailedSkips               int    `envconfig:"PLUGIN_FAILED_SKIPS"`
	FailureOnFailedTestConfig bool   `envconfig:"PLUGIN_FAILURE_ON_FAILED_TEST_CONFIG"`
	UnstableFails             int    `envconfig:"PLUGIN_UNSTABLE_FAILS"`
	UnstableSkips             int    `envconfig:"PLUGIN_UNSTABLE_SKIPS"`
	JobStatus                 string `envconfig:"PLUGIN_JOB_STATUS"`
	ThresholdMode             string `envconfig:"PLUGIN_THRESHOLD_MODE"`

	PluginFailIfNoResults bool          `envconfig:"PLUGIN_FAIL_IF_NO_RESULTS"`
	RefreshInterval       time.Duration `envconfig:"PLUGIN_REFRESH_INTERVAL"`
	Level                 string        `envconfig:"PLUGIN_LOG_LEVEL"`
}

// ValidateInputs ensures the user inputs meet the plugin requirements.
func ValidateInputs(args Args) error {
	if args.ScheduleFile == "" && args.ReportFilenamePattern == "" {
		return errors.New("missing required parameter: ScheduleFile or ReportFilenamePattern. Please specify a schedule file or the pattern to locate the TestNG report files")
	}
	if args.FailedFails < 0 || args.FailedSkips < 0 || args.UnstableFails < 0 || args.UnstableSkips < 0 {
		return errors.New("threshold values must be non-negative. Check the configured values for failed and skipped tests")
	}
	switch strings.ToLower(args.ThresholdMode) {
	case "", ThresholdModeAbsolute, ThresholdModePercentage:
	default:
		return errors.New("invalid ThresholdMode value. It must be absolute or percentage. Check the configuration")
	}
	if args.Indent < 0 {
		return errors.New("invalid Indent value. It must be non-negative")
	}

	polarionSet := args.PolarionLookupMethod != "" || args.PolarionLookupMethodFieldID != "" || args.PolarionProjectID != ""
	polarionComplete := args.PolarionLookupMethod != "" && args.PolarionLookupMethodFieldID != "" && args.PolarionProjectID != ""
	if args.EnablePolarion && !polarionComplete {
		return errors.New("missing Polarion parameters: PolarionLookupMethod, PolarionLookupMethodFieldID and PolarionProjectID are required when EnablePolarion is true")
	}
	if !args.EnablePolarion && polarionSet {
		logrus.Warn("Polarion parameters are ignored as EnablePolarion is false")
	}

	if args.TestingFarmRequestID != "" && args.TestingFarmAPIURL == "" {
		return errors.New("missing required parameter: TestingFarmAPIURL. It is required to update the Testing Farm request")
	}
	if (args.S3AccessKeyID == "") != (args.S3SecretAccessKey == "") {
		return errors.New("S3AccessKeyID and S3SecretAccessKey must be set together")
	}
	return nil
}

// Exec collects the results, resolves the overall result and publishes the
// xUnit documents.
func Exec(ctx context.Context, args Args) (err error) {
	if err := ValidateInputs(args); err != nil {
		logrus.WithError(err).Error("Invalid plugin inputs")
		return err
	}

	var client *tfapi.Client
	completed := false
	if args.TestingFarmRequestID != "" {
		client, err = tfapi.NewClient(args.TestingFarmAPIURL, logrus.StandardLogger())
		if err != nil {
			logrus.WithError(err).Error("Failed to create Testing Farm client")
			return errors.New("failed to create Testing Farm client: " + err.Error())
		}
		defer func() {
			if err != nil && !completed {
				reportFailure(ctx, client, args, err)
			}
		}()
	}

	thread := args.TestingThread
	if thread == "" && args.GenerateTestingThread {
		thread = uuid.NewString()
		logrus.WithField("Thread", thread).Info("generated testing thread")
	}

	resolver, err := NewResolver(args.OverallResultMap, map[string]any{
		"ARTIFACTS_URL":  args.ArtifactsURL,
		"TESTING_THREAD": thread,
	})
	if err != nil {
		return err
	}
	reporter := NewReporter(resolver, reportOptions(args, thread))

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	var refreshing sync.WaitGroup
	if args.RefreshInterval > 0 {
		refreshing.Add(1)
		go func() {
			defer refreshing.Done()
			reporter.Refresh(refreshCtx, args.RefreshInterval)
		}()
	}

	err = reporter.Collect(ctx, Sources{
		ScheduleFile:          args.ScheduleFile,
		ReportFilenamePattern: args.ReportFilenamePattern,
		FailIfNoResults:       args.PluginFailIfNoResults,
	})
	stopRefresh()
	refreshing.Wait()
	if err != nil {
		return err
	}

	report, err := reporter.Generate(ctx)
	if err != nil {
		return err
	}

	logSchedule("Schedule", reporter.Entries())
	logrus.Infof("Generic xUnit:\n%s", report.XUnit)
	logrus.Infof("Testing Farm xUnit:\n%s", report.XUnitTestingFarm)
	logFinalResult(report.Result)

	var location string
	if args.S3Bucket != "" {
		location, err = archiveReport(ctx, args, report.XUnitTestingFarm)
		if err != nil {
			return err
		}
	}

	if client != nil {
		if err := reportComplete(ctx, client, args, report, location); err != nil {
			return err
		}
		completed = true
	}

	totals := resultTotals(report.Results)
	logrus.Infof("\n===============================================")
	logrus.Infof("\nTotal Tests Results: %d | Failures: %d | Skips: %d | Duration: %.2f ms", totals.Total, totals.Failures, totals.Skipped, totals.DurationMS)
	logrus.Infof("\n===============================================")

	if err := validateThresholds(totals, args); err != nil {
		logger := logrus.WithFields(logrus.Fields{
			"Total Tests": totals.Total,
			"Failures":    totals.Failures,
			"Skipped":     totals.Skipped,
			"DurationMS":  totals.DurationMS,
		})
		logger.Error(err.Error())
		return err
	}

	return nil
}

// NewResolver loads the override instructions from paths. Variables are
// available to every rule.
func NewResolver(paths []string, variables map[string]any) (*schedule.Resolver, error) {
	if len(paths) == 0 {
		return &schedule.Resolver{}, nil
	}
	instructions, err := schedule.LoadInstructions(paths...)
	if err != nil {
		logrus.WithError(err).WithField("Files", paths).Error("Failed to load overall result map")
		return nil, errors.New("failed to load overall result map: " + err.Error())
	}
	return &schedule.Resolver{
		Instructions: instructions,
		Evaluator:    rules.New(variables),
	}, nil
}

func reportOptions(args Args, thread string) ReportOptions {
	opts := ReportOptions{
		PrettyPrint:          args.PrettyPrint,
		Indent:               args.Indent,
		XUnitFile:            args.XUnitFile,
		XUnitTestingFarmFile: args.XUnitTestingFarmFile,
		ArtifactsURL:         args.ArtifactsURL,
		TestingThread:        thread,
	}
	if args.ArtifactID != "" {
		opts.PrimaryTask = results.Artifact{
			TaskID:    args.ArtifactID,
			Namespace: args.ArtifactNamespace,
			TaskNVR:   args.ArtifactNVR,
		}
	}
	if args.EnablePolarion {
		opts.PolarionLookupMethod = args.PolarionLookupMethod
		opts.PolarionLookupMethodFieldID = args.PolarionLookupMethodFieldID
		opts.PolarionProjectID = args.PolarionProjectID
	}
	return opts
}

// archiveReport uploads the Testing Farm document and returns its location.
func archiveReport(ctx context.Context, args Args, document string) (string, error) {
	archiver, err := archive.New(ctx, archive.Options{
		Bucket:          args.S3Bucket,
		Prefix:          args.S3Prefix,
		Region:          args.S3Region,
		Endpoint:        args.S3Endpoint,
		AccessKeyID:     args.S3AccessKeyID,
		SecretAccessKey: args.S3SecretAccessKey,
	})
	if err != nil {
		return "", err
	}

	name := defaultArchiveName
	if args.XUnitTestingFarmFile != "" {
		name = filepath.Base(args.XUnitTestingFarmFile)
	}
	return archiver.Archive(ctx, name, document)
}

// reportComplete hands the results to the Testing Farm request. A request
// that moved on in the meantime is only a warning.
func reportComplete(ctx context.Context, client *tfapi.Client, args Args, report *Report, location string) error {
	update := tfapi.Update{
		APIKey: args.TestingFarmAPIKey,
		State:  tfapi.StateComplete,
		Result: &tfapi.Result{
			Overall:  tfapi.OverallResult(report.Result.String()),
			XUnit:    report.XUnitTestingFarm,
			XUnitURL: location,
		},
	}
	if args.ArtifactsURL != "" {
		update.Run = &tfapi.Run{Artifacts: args.ArtifactsURL}
	}

	err := client.UpdateRequest(ctx, args.TestingFarmRequestID, update)
	switch {
	case errors.Is(err, tfapi.ErrRequestConflict):
		logrus.WithError(err).WithField("Request", args.TestingFarmRequestID).Warn("Testing Farm request was not updated")
		return nil
	case err != nil:
		return errors.New("failed to report results: " + err.Error())
	}
	logrus.WithField("Request", args.TestingFarmRequestID).Info("Testing Farm request updated")
	return nil
}

// reportFailure marks the Testing Farm request as errored with cause as summary.
func reportFailure(ctx context.Context, client *tfapi.Client, args Args, cause error) {
	update := tfapi.Update{
		APIKey: args.TestingFarmAPIKey,
		State:  tfapi.StateError,
		Result: &tfapi.Result{
			Overall: string(schedule.ResultError),
			Summary: cause.Error(),
		},
	}
	if args.ArtifactsURL != "" {
		update.Run = &tfapi.Run{Artifacts: args.ArtifactsURL}
	}
	if err := client.UpdateRequest(context.WithoutCancel(ctx), args.TestingFarmRequestID, update); err != nil {
		logrus.WithError(err).WithField("Request", args.TestingFarmRequestID).Warn("Failed to report error state")
	}
}
