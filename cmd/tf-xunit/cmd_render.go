package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/drone/drone-tf-xunit/plugin"
	"github.com/spf13/cobra"
)

const (
	formatGeneric     = "generic"
	formatTestingFarm = "testing-farm"
)

var renderFlags struct {
	schedule         string
	testng           string
	format           string
	pretty           bool
	indent           int
	overallResultMap []string
	artifactsURL     string
	testingThread    string
	output           string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the collected results as xUnit",
	RunE:  runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderFlags.schedule, "schedule", "", "Schedule file written by the test runner")
	f.StringVar(&renderFlags.testng, "testng", "", "Glob pattern of TestNG XML reports")
	f.StringVar(&renderFlags.format, "format", formatTestingFarm, "Output dialect: generic or testing-farm")
	f.BoolVar(&renderFlags.pretty, "pretty", false, "Pretty print the document")
	f.IntVar(&renderFlags.indent, "indent", 1, "Indentation width when pretty printing")
	f.StringSliceVar(&renderFlags.overallResultMap, "overall-result-map", nil, "Overall result override instructions (repeatable)")
	f.StringVar(&renderFlags.artifactsURL, "artifacts-url", "", "Base URL relative log paths are resolved against")
	f.StringVar(&renderFlags.testingThread, "testing-thread", "", "Testing thread id")
	f.StringVarP(&renderFlags.output, "output", "o", "", "Output file (default stdout)")
}

func runRender(cmd *cobra.Command, _ []string) error {
	if renderFlags.format != formatGeneric && renderFlags.format != formatTestingFarm {
		return fmt.Errorf("unknown format %q, expected %s or %s", renderFlags.format, formatGeneric, formatTestingFarm)
	}
	if renderFlags.indent < 0 {
		return errors.New("indent must be non-negative")
	}

	report, err := collectReport(cmd, renderFlags.schedule, renderFlags.testng, renderFlags.overallResultMap, plugin.ReportOptions{
		PrettyPrint:   renderFlags.pretty,
		Indent:        renderFlags.indent,
		ArtifactsURL:  renderFlags.artifactsURL,
		TestingThread: renderFlags.testingThread,
	})
	if err != nil {
		return err
	}

	document := report.XUnitTestingFarm
	if renderFlags.format == formatGeneric {
		document = report.XUnit
	}

	if renderFlags.output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), document)
		return nil
	}
	if err := os.WriteFile(renderFlags.output, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// collectReport runs the producers and generates one report.
func collectReport(cmd *cobra.Command, schedule, testng string, overallResultMap []string, opts plugin.ReportOptions) (*plugin.Report, error) {
	if schedule == "" && testng == "" {
		return nil, errors.New("at least one of --schedule or --testng is required")
	}

	resolver, err := plugin.NewResolver(overallResultMap, nil)
	if err != nil {
		return nil, err
	}

	reporter := plugin.NewReporter(resolver, opts)
	if err := reporter.Collect(cmd.Context(), plugin.Sources{
		ScheduleFile:          schedule,
		ReportFilenamePattern: testng,
	}); err != nil {
		return nil, err
	}
	return reporter.Generate(cmd.Context())
}
