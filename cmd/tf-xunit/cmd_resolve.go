package main

import (
	"fmt"

	"github.com/drone/drone-tf-xunit/plugin"
	"github.com/spf13/cobra"
)

var resolveFlags struct {
	schedule         string
	testng           string
	overallResultMap []string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the overall result of the collected results",
	RunE:  runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveFlags.schedule, "schedule", "", "Schedule file written by the test runner")
	f.StringVar(&resolveFlags.testng, "testng", "", "Glob pattern of TestNG XML reports")
	f.StringSliceVar(&resolveFlags.overallResultMap, "overall-result-map", nil, "Overall result override instructions (repeatable)")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	report, err := collectReport(cmd, resolveFlags.schedule, resolveFlags.testng, resolveFlags.overallResultMap, plugin.ReportOptions{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, suite := range report.Results.TestSuites {
		fmt.Fprintf(out, "%-40s %s\n", suite.Name, suite.Result)
	}
	fmt.Fprintf(out, "Result of testing: %s\n", report.Result)
	return nil
}
