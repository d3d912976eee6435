// Package results holds the Result Tree a pipeline run assembles and the
// projections rendering it into xUnit documents.
package results

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrPolarionIncomplete is returned when only some of the Polarion fields are set.
var ErrPolarionIncomplete = errors.New("polarion lookup method, custom lookup method field id and project id must be set together")

// Log is an artifact attached to a suite, a case, a check, a subresult or a phase.
type Log struct {
	Href            string `yaml:"href"`
	Name            string `yaml:"name"`
	GuestSetupStage string `yaml:"guest-setup-stage,omitempty"`
	ScheduleStage   string `yaml:"schedule-stage,omitempty"`
	ScheduleEntry   string `yaml:"schedule-entry,omitempty"`
}

// Same reports whether both logs point to the same artifact. Stage metadata is ignored.
func (l Log) Same(other Log) bool {
	return l.Href == other.Href && l.Name == other.Name
}

func appendLog(logs []Log, log Log) []Log {
	for _, existing := range logs {
		if existing.Same(log) {
			return logs
		}
	}
	return append(logs, log)
}

// Property is a name/value annotation.
type Property struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// FmfID identifies where a test definition lives.
type FmfID struct {
	URL  string `yaml:"url"`
	Ref  string `yaml:"ref"`
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"`
}

// TestingEnvironment describes a requested or provisioned environment.
type TestingEnvironment struct {
	Arch      string `yaml:"arch,omitempty"`
	Compose   string `yaml:"compose,omitempty"`
	Snapshots *bool  `yaml:"snapshots,omitempty"`
}

func (e *TestingEnvironment) String() string {
	if e == nil {
		return ""
	}
	snapshots := "S-"
	if e.Snapshots != nil && *e.Snapshots {
		snapshots = "S+"
	}
	return fmt.Sprintf("%s %s %s", e.Arch, e.Compose, snapshots)
}

// Guest is one machine of a multihost run.
type Guest struct {
	Name        string              `yaml:"name"`
	Role        string              `yaml:"role,omitempty"`
	Environment *TestingEnvironment `yaml:"environment,omitempty"`
}

// Phase is a BaseOS CI test phase.
type Phase struct {
	Name   string `yaml:"name"`
	Result string `yaml:"result"`
	Time   string `yaml:"time,omitempty"`
	Logs   []Log  `yaml:"logs,omitempty"`
}

// TestCaseCheck is a check run before or after a test.
type TestCaseCheck struct {
	Name   string  `yaml:"name"`
	Result Outcome `yaml:"result"`
	Event  string  `yaml:"event"`
	Logs   []Log   `yaml:"logs,omitempty"`
}

// TestCaseSubresult is a named sub-step of a test case.
type TestCaseSubresult struct {
	Name           string  `yaml:"name"`
	Result         Outcome `yaml:"result"`
	OriginalResult string  `yaml:"original-result,omitempty"`
	EndTime        string  `yaml:"end-time,omitempty"`
	Logs           []Log   `yaml:"logs,omitempty"`
}

// Fault marks a test case as failed or errored. The zero value means absent.
type Fault struct {
	Present bool
	Message *string
}

// Flagged returns a present fault without a message.
func Flagged() Fault {
	return Fault{Present: true}
}

// WithMessage returns a present fault carrying msg. An empty msg is still a message.
func WithMessage(msg string) Fault {
	return Fault{Present: true, Message: &msg}
}

// UnmarshalYAML accepts a boolean flag or a message string.
func (f *Fault) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!bool" {
		var flag bool
		if err := node.Decode(&flag); err != nil {
			return err
		}
		*f = Fault{Present: flag}
		return nil
	}

	var msg string
	if err := node.Decode(&msg); err != nil {
		return err
	}
	*f = WithMessage(msg)
	return nil
}

// TestCase is a single test and everything producers know about it.
type TestCase struct {
	Name       string              `yaml:"name"`
	Result     Outcome             `yaml:"result"`
	Subresults []TestCaseSubresult `yaml:"subresults,omitempty"`
	Notes      []string            `yaml:"notes,omitempty"`
	Properties []Property          `yaml:"properties,omitempty"`
	Logs       []Log               `yaml:"logs,omitempty"`

	RequestedEnvironment   *TestingEnvironment `yaml:"requested-environment,omitempty"`
	ProvisionedEnvironment *TestingEnvironment `yaml:"provisioned-environment,omitempty"`

	Failure Fault `yaml:"failure,omitempty"`
	Error   Fault `yaml:"error,omitempty"`

	// SystemOut can be large and is left out of String and LogFields.
	SystemOut []string `yaml:"system-out,omitempty"`

	Checks    []TestCaseCheck `yaml:"checks,omitempty"`
	Duration  *time.Duration  `yaml:"duration,omitempty"`
	StartTime string          `yaml:"start-time,omitempty"`
	EndTime   string          `yaml:"end-time,omitempty"`
	FmfID     *FmfID          `yaml:"fmf-id,omitempty"`

	// BaseOS CI
	Parameters []string `yaml:"parameters,omitempty"`
	Phases     []Phase  `yaml:"phases,omitempty"`
	// A nil Packages suppresses the element, an empty one renders <packages/>.
	Packages    []string `yaml:"packages"`
	TestOutputs []string `yaml:"test-outputs"`

	// covscan
	Added       string `yaml:"added,omitempty"`
	Fixed       string `yaml:"fixed,omitempty"`
	Baseline    string `yaml:"baseline,omitempty"`
	ResultClass string `yaml:"result-class,omitempty"`
	TestType    string `yaml:"test-type,omitempty"`
	Defects     string `yaml:"defects,omitempty"`

	// multihost
	SerialNumber *int   `yaml:"serial-number,omitempty"`
	Guest        *Guest `yaml:"guest,omitempty"`
}

// AddLog attaches log unless an equal log is already attached.
func (tc *TestCase) AddLog(log Log) {
	tc.Logs = appendLog(tc.Logs, log)
}

// CheckCount returns the number of checks.
func (tc *TestCase) CheckCount() int {
	return len(tc.Checks)
}

// CheckErrorCount returns the number of errored checks.
func (tc *TestCase) CheckErrorCount() int {
	count := 0
	for _, check := range tc.Checks {
		if check.Result.IsError() {
			count++
		}
	}
	return count
}

// CheckFailureCount returns the number of failed checks.
func (tc *TestCase) CheckFailureCount() int {
	count := 0
	for _, check := range tc.Checks {
		if check.Result == OutcomeFailed {
			count++
		}
	}
	return count
}

// LogFields returns the case summary for structured logging.
func (tc *TestCase) LogFields() logrus.Fields {
	fields := logrus.Fields{
		"TestCase": tc.Name,
		"Result":   tc.Result.String(),
		"Logs":     len(tc.Logs),
		"Checks":   tc.CheckCount(),
	}
	if tc.Duration != nil {
		fields["Duration"] = tc.Duration.String()
	}
	return fields
}

func (tc *TestCase) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TestCase(name=%q, result=%q", tc.Name, tc.Result)
	if tc.Failure.Present {
		b.WriteString(", failure")
	}
	if tc.Error.Present {
		b.WriteString(", error")
	}
	fmt.Fprintf(&b, ", logs=%d, checks=%d, subresults=%d)", len(tc.Logs), len(tc.Checks), len(tc.Subresults))
	return b.String()
}

// TestSuite groups test cases.
type TestSuite struct {
	Name                   string
	Result                 string
	Stage                  string
	Logs                   []Log
	Properties             []Property
	TestCases              []*TestCase
	RequestedEnvironment   *TestingEnvironment
	ProvisionedEnvironment *TestingEnvironment
	Guests                 []Guest
}

// AddLog attaches log unless an equal log is already attached.
func (ts *TestSuite) AddLog(log Log) {
	ts.Logs = appendLog(ts.Logs, log)
}

// TestCount returns the number of test cases.
func (ts *TestSuite) TestCount() int {
	return len(ts.TestCases)
}

// FailureCount returns the number of failure-like test cases, errors included.
func (ts *TestSuite) FailureCount() int {
	return ts.count(Outcome.IsFailure)
}

// ErrorCount returns the number of errored test cases.
func (ts *TestSuite) ErrorCount() int {
	return ts.count(Outcome.IsError)
}

// SkippedCount counts errored test cases, not skipped ones. The predicate is the
// one the report has always used and consumers may depend on it; whether it should
// count OutcomeSkipped instead is still an open question.
func (ts *TestSuite) SkippedCount() int {
	return ts.count(Outcome.IsError)
}

func (ts *TestSuite) count(match func(Outcome) bool) int {
	count := 0
	for _, tc := range ts.TestCases {
		if match(tc.Result) {
			count++
		}
	}
	return count
}

// PrimaryTask is the artifact that triggered the run.
type PrimaryTask interface {
	ID() string
	ArtifactNamespace() string
	NVR() string
}

// Artifact is a plain PrimaryTask.
type Artifact struct {
	TaskID    string `yaml:"id"`
	Namespace string `yaml:"namespace"`
	TaskNVR   string `yaml:"nvr,omitempty"`
}

func (a Artifact) ID() string                { return a.TaskID }
func (a Artifact) ArtifactNamespace() string { return a.Namespace }
func (a Artifact) NVR() string               { return a.TaskNVR }

// Results is the root of the Result Tree.
type Results struct {
	OverallResult      string
	TestSuites         []*TestSuite
	PrimaryTask        PrimaryTask
	TestScheduleResult string
	TestingThread      string

	PolarionLookupMethod              string
	PolarionCustomLookupMethodFieldID string
	PolarionProjectID                 string
}

// PolarionEnabled reports whether any Polarion field is set.
func (r *Results) PolarionEnabled() bool {
	return r.PolarionLookupMethod != "" || r.PolarionCustomLookupMethodFieldID != "" || r.PolarionProjectID != ""
}

func (r *Results) checkPolarion() error {
	if !r.PolarionEnabled() {
		return nil
	}
	if r.PolarionLookupMethod == "" || r.PolarionCustomLookupMethodFieldID == "" || r.PolarionProjectID == "" {
		return ErrPolarionIncomplete
	}
	return nil
}

// XUnit builds the generic xUnit projection from the current tree.
func (r *Results) XUnit() *XUnitTestSuites {
	return NewXUnitTestSuites(r)
}

// XUnitTestingFarm builds the Testing Farm projection from the current tree.
func (r *Results) XUnitTestingFarm() (*XUnitTFTestSuites, error) {
	return NewXUnitTFTestSuites(r)
}
