package plugin

import (
	"net/url"
	"path"
	"strings"

	"github.com/drone/drone-tf-xunit/results"
	"github.com/drone/drone-tf-xunit/schedule"
)

// artifactsLocation resolves a log path against the artifacts URL. Absolute
// URLs and paths without an artifacts URL are returned unchanged.
func artifactsLocation(artifactsURL, logPath string) string {
	if artifactsURL == "" {
		return logPath
	}
	if u, err := url.Parse(logPath); err == nil && u.IsAbs() {
		return logPath
	}
	return strings.TrimRight(artifactsURL, "/") + "/" + strings.TrimLeft(path.Clean("/"+logPath), "/")
}

// newTestSuite serializes a schedule entry into a test suite.
func newTestSuite(entry *schedule.Entry, artifactsURL string) *results.TestSuite {
	suite := &results.TestSuite{
		Name:                 entry.ID,
		Result:               entry.Result.String(),
		Stage:                string(entry.Stage),
		Properties:           []results.Property{{Name: "baseosci.result", Value: entry.Result.String()}},
		RequestedEnvironment: entry.TestingEnvironment,
	}

	for _, tc := range entry.TestCases {
		suite.TestCases = append(suite.TestCases, resolveCaseLogs(tc, artifactsURL))
	}

	if entry.Guest != nil {
		suite.Guests = append(suite.Guests, *entry.Guest)
		suite.ProvisionedEnvironment = entry.Guest.Environment
	}

	for _, stage := range schedule.GuestSetupStagesOrdered {
		for _, output := range entry.GuestSetupOutputs[stage] {
			suite.AddLog(results.Log{
				Name:            output.Label,
				Href:            artifactsLocation(artifactsURL, output.LogPath),
				ScheduleStage:   string(schedule.StageGuestSetup),
				GuestSetupStage: string(stage),
			})
		}
	}

	for _, log := range entry.Logs {
		log.Href = artifactsLocation(artifactsURL, log.Href)
		suite.AddLog(log)
	}

	return suite
}

// resolveCaseLogs returns tc with log hrefs resolved against the artifacts
// URL. Cases with logs are copied, the schedule entry is left untouched.
func resolveCaseLogs(tc *results.TestCase, artifactsURL string) *results.TestCase {
	if artifactsURL == "" || len(tc.Logs) == 0 {
		return tc
	}
	resolved := *tc
	resolved.Logs = make([]results.Log, len(tc.Logs))
	for i, log := range tc.Logs {
		log.Href = artifactsLocation(artifactsURL, log.Href)
		resolved.Logs[i] = log
	}
	return &resolved
}
