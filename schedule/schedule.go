// Package schedule describes test schedule entries written by test runners and
// resolves the overall result of a schedule.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/drone/drone-tf-xunit/results"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrUnknownResult is returned for a result name outside the known set.
var ErrUnknownResult = errors.New("unknown result")

// Stage is the progress of a schedule entry.
type Stage string

const (
	StageCreated           Stage = "created"
	StageReady             Stage = "ready"
	StageGuestProvisioning Stage = "guest-provisioning"
	StageGuestProvisioned  Stage = "guest-provisioned"
	StageGuestSetup        Stage = "guest-setup"
	StagePrepared          Stage = "prepared"
	StageRunning           Stage = "running"
	StageCleanup           Stage = "cleanup"
	StageComplete          Stage = "complete"
)

// StagesOrdered lists stages in the order an entry passes through them.
var StagesOrdered = []Stage{
	StageCreated,
	StageReady,
	StageGuestProvisioning,
	StageGuestProvisioned,
	StageGuestSetup,
	StagePrepared,
	StageRunning,
	StageCleanup,
	StageComplete,
}

// UnmarshalYAML rejects stages not listed in StagesOrdered.
func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for _, stage := range StagesOrdered {
		if string(stage) == raw {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown schedule stage %q", node.Line, raw)
}

// State is the final state of a schedule entry. It changes once.
type State string

const (
	StateOK    State = "ok"
	StateError State = "error"
)

// UnmarshalYAML accepts ok and error.
func (s *State) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch State(raw) {
	case StateOK, StateError:
		*s = State(raw)
		return nil
	}
	return fmt.Errorf("line %d: unknown schedule state %q", node.Line, raw)
}

// Result is the result of an entry or of the schedule as a whole.
type Result string

const (
	ResultUndefined       Result = "undefined"
	ResultSkipped         Result = "skipped"
	ResultPassed          Result = "passed"
	ResultInfo            Result = "info"
	ResultFailed          Result = "failed"
	ResultError           Result = "error"
	ResultNotApplicable   Result = "not_applicable"
	ResultNeedsInspection Result = "needs_inspection"
)

var knownResults = []Result{
	ResultUndefined,
	ResultSkipped,
	ResultPassed,
	ResultInfo,
	ResultFailed,
	ResultError,
	ResultNotApplicable,
	ResultNeedsInspection,
}

// weights orders the graded results by severity.
var weights = map[Result]int{
	ResultSkipped: 0,
	ResultPassed:  1,
	ResultInfo:    2,
	ResultFailed:  3,
	ResultError:   4,
}

// Weight returns the severity of r and whether r is graded at all.
func (r Result) Weight() (int, bool) {
	weight, ok := weights[r]
	return weight, ok
}

func (r Result) String() string {
	return string(r)
}

// ParseResult maps a result name to a Result. Names are case-insensitive, an
// empty name is ResultUndefined.
func ParseResult(name string) (Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return ResultUndefined, nil
	}
	for _, result := range knownResults {
		if string(result) == normalized {
			return result, nil
		}
	}
	return ResultUndefined, fmt.Errorf("%w %q", ErrUnknownResult, name)
}

// UnmarshalYAML parses the result with ParseResult.
func (r *Result) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	result, err := ParseResult(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*r = result
	return nil
}

// GuestSetupStage is a stage of the guest setup workflow.
type GuestSetupStage string

const (
	GuestSetupPreArtifactInstallation             GuestSetupStage = "pre-artifact-installation"
	GuestSetupPreArtifactInstallationWorkarounds  GuestSetupStage = "pre-artifact-installation-workarounds"
	GuestSetupArtifactInstallation                GuestSetupStage = "artifact-installation"
	GuestSetupPostArtifactInstallationWorkarounds GuestSetupStage = "post-artifact-installation-workarounds"
	GuestSetupPostArtifactInstallation            GuestSetupStage = "post-artifact-installation"
)

// GuestSetupStagesOrdered lists guest setup stages in execution order.
var GuestSetupStagesOrdered = []GuestSetupStage{
	GuestSetupPreArtifactInstallation,
	GuestSetupPreArtifactInstallationWorkarounds,
	GuestSetupArtifactInstallation,
	GuestSetupPostArtifactInstallationWorkarounds,
	GuestSetupPostArtifactInstallation,
}

// Output points to a log written by a stage of an entry.
type Output struct {
	Label   string `yaml:"label"`
	LogPath string `yaml:"log-path"`
}

// Entry is one unit of test execution.
type Entry struct {
	ID               string `yaml:"id"`
	TestSuiteName    string `yaml:"testsuite-name,omitempty"`
	RunnerCapability string `yaml:"runner-capability,omitempty"`

	Stage  Stage  `yaml:"stage"`
	State  State  `yaml:"state"`
	Result Result `yaml:"result"`

	TestingEnvironment *results.TestingEnvironment `yaml:"testing-environment,omitempty"`
	Guest              *results.Guest              `yaml:"guest,omitempty"`

	GuestSetupOutputs map[GuestSetupStage][]Output `yaml:"guest-setup-outputs,omitempty"`
	Logs              []results.Log                `yaml:"logs,omitempty"`
	TestCases         []*results.TestCase          `yaml:"test-cases,omitempty"`
}

// ScheduleStage implements Graded.
func (e *Entry) ScheduleStage() Stage { return e.Stage }

// ScheduleState implements Graded.
func (e *Entry) ScheduleState() State { return e.State }

// ScheduleResult implements Graded.
func (e *Entry) ScheduleResult() Result { return e.Result }

// LogFields returns the entry summary for structured logging.
func (e *Entry) LogFields() logrus.Fields {
	return logrus.Fields{
		"ScheduleEntry": e.ID,
		"Stage":         e.Stage,
		"State":         e.State,
		"Result":        e.Result,
		"TestCases":     len(e.TestCases),
	}
}

// Schedule is the ordered list of entries of a run.
type Schedule []*Entry

// Graded returns the entries as items for the resolver.
func (s Schedule) Graded() []Graded {
	items := make([]Graded, 0, len(s))
	for _, entry := range s {
		items = append(items, entry)
	}
	return items
}

// Context returns a plain view of the schedule for rule evaluation.
func (s Schedule) Context() []map[string]any {
	out := make([]map[string]any, 0, len(s))
	for _, entry := range s {
		out = append(out, map[string]any{
			"id":                entry.ID,
			"testsuite_name":    entry.TestSuiteName,
			"runner_capability": entry.RunnerCapability,
			"stage":             string(entry.Stage),
			"state":             string(entry.State),
			"result":            string(entry.Result),
		})
	}
	return out
}

// Load reads a schedule file.
func Load(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithError(err).WithField("File", path).Error("Failed to read schedule file")
		return nil, errors.New("failed to read schedule file: " + err.Error())
	}
	return Parse(data)
}

// Parse decodes a schedule from YAML. Every entry needs an id and every test
// case listed under an entry must be present.
func Parse(data []byte) (Schedule, error) {
	var schedule Schedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return nil, errors.New("failed to parse schedule: " + err.Error())
	}
	for i, entry := range schedule {
		if entry == nil || entry.ID == "" {
			return nil, fmt.Errorf("schedule entry #%d has no id", i)
		}
		for j, tc := range entry.TestCases {
			if tc == nil {
				return nil, fmt.Errorf("schedule entry %s: test case #%d is empty", entry.ID, j)
			}
		}
		if entry.Stage == "" {
			entry.Stage = StageCreated
		}
		if entry.State == "" {
			entry.State = StateOK
		}
		if entry.Result == "" {
			entry.Result = ResultUndefined
		}
	}
	return schedule, nil
}
