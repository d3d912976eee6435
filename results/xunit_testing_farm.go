package results

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrMissingAttribute is returned when a required attribute has no value.
var ErrMissingAttribute = errors.New("missing required attribute")

const (
	environmentRequested   = "requested"
	environmentProvisioned = "provisioned"
)

// XUnitTFProperty is a property element.
type XUnitTFProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// XUnitTFProperties is a properties element, sorted by name.
type XUnitTFProperties struct {
	Properties []XUnitTFProperty `xml:"property"`
}

// NewXUnitTFProperties sorts properties by name, then value, so the output does
// not depend on the order producers added them.
func NewXUnitTFProperties(properties []Property) *XUnitTFProperties {
	out := &XUnitTFProperties{}
	for _, property := range properties {
		out.Properties = append(out.Properties, XUnitTFProperty{Name: property.Name, Value: property.Value})
	}
	sort.SliceStable(out.Properties, func(i, j int) bool {
		a, b := out.Properties[i], out.Properties[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Value < b.Value
	})
	return out
}

// XUnitTFLog is a log element.
type XUnitTFLog struct {
	Href            string `xml:"href,attr"`
	Name            string `xml:"name,attr"`
	ScheduleStage   string `xml:"schedule-stage,attr,omitempty"`
	ScheduleEntry   string `xml:"schedule-entry,attr,omitempty"`
	GuestSetupStage string `xml:"guest-setup-stage,attr,omitempty"`
}

// XUnitTFLogs is a logs element, sorted by name.
type XUnitTFLogs struct {
	Logs []XUnitTFLog `xml:"log"`
}

// NewXUnitTFLogs sorts logs by name, then href.
func NewXUnitTFLogs(logs []Log) *XUnitTFLogs {
	out := &XUnitTFLogs{}
	for _, log := range logs {
		out.Logs = append(out.Logs, XUnitTFLog{
			Href:            log.Href,
			Name:            log.Name,
			ScheduleStage:   log.ScheduleStage,
			ScheduleEntry:   log.ScheduleEntry,
			GuestSetupStage: log.GuestSetupStage,
		})
	}
	sort.SliceStable(out.Logs, func(i, j int) bool {
		a, b := out.Logs[i], out.Logs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Href < b.Href
	})
	return out
}

func optionalLogs(logs []Log) *XUnitTFLogs {
	if len(logs) == 0 {
		return nil
	}
	return NewXUnitTFLogs(logs)
}

// XUnitTFTestingEnvironment is a testing-environment element.
type XUnitTFTestingEnvironment struct {
	Name       string            `xml:"name,attr"`
	Properties []XUnitTFProperty `xml:"property"`
}

// NewXUnitTFTestingEnvironment projects env under the given name. Only fields
// with a value become properties.
func NewXUnitTFTestingEnvironment(env *TestingEnvironment, name string) XUnitTFTestingEnvironment {
	out := XUnitTFTestingEnvironment{Name: name}
	if env.Arch != "" {
		out.Properties = append(out.Properties, XUnitTFProperty{Name: "arch", Value: env.Arch})
	}
	if env.Compose != "" {
		out.Properties = append(out.Properties, XUnitTFProperty{Name: "compose", Value: env.Compose})
	}
	if env.Snapshots != nil {
		snapshots := "False"
		if *env.Snapshots {
			snapshots = "True"
		}
		out.Properties = append(out.Properties, XUnitTFProperty{Name: "snapshots", Value: snapshots})
	}
	return out
}

func testingEnvironments(requested, provisioned *TestingEnvironment) []XUnitTFTestingEnvironment {
	var out []XUnitTFTestingEnvironment
	if requested != nil {
		out = append(out, NewXUnitTFTestingEnvironment(requested, environmentRequested))
	}
	if provisioned != nil {
		out = append(out, NewXUnitTFTestingEnvironment(provisioned, environmentProvisioned))
	}
	return out
}

// XUnitTFGuest is a guest element.
type XUnitTFGuest struct {
	Name        string                     `xml:"name,attr"`
	Role        string                     `xml:"role,attr,omitempty"`
	Environment *XUnitTFTestingEnvironment `xml:"testing-environment,omitempty"`
}

// NewXUnitTFGuest projects a guest, its environment is the provisioned one.
func NewXUnitTFGuest(guest Guest) XUnitTFGuest {
	out := XUnitTFGuest{Name: guest.Name, Role: guest.Role}
	if guest.Environment != nil {
		env := NewXUnitTFTestingEnvironment(guest.Environment, environmentProvisioned)
		out.Environment = &env
	}
	return out
}

// XUnitTFFmfID is an fmf-id element.
type XUnitTFFmfID struct {
	URL  string `xml:"url,attr"`
	Ref  string `xml:"ref,attr"`
	Name string `xml:"name,attr"`
	Path string `xml:"path,attr,omitempty"`
}

// XUnitTFCheck is a check element.
type XUnitTFCheck struct {
	Name   string       `xml:"name,attr"`
	Result string       `xml:"result,attr"`
	Event  string       `xml:"event,attr"`
	Logs   *XUnitTFLogs `xml:"logs,omitempty"`
}

// XUnitTFChecks is a checks element carrying the case's check counters.
type XUnitTFChecks struct {
	Total    string         `xml:"total,attr"`
	Errors   string         `xml:"errors,attr"`
	Failures string         `xml:"failures,attr"`
	Checks   []XUnitTFCheck `xml:"check"`
}

// NewXUnitTFChecks projects the checks of tc, or returns nil when there are none.
func NewXUnitTFChecks(tc *TestCase) *XUnitTFChecks {
	if len(tc.Checks) == 0 {
		return nil
	}
	out := &XUnitTFChecks{
		Total:    strconv.Itoa(tc.CheckCount()),
		Errors:   strconv.Itoa(tc.CheckErrorCount()),
		Failures: strconv.Itoa(tc.CheckFailureCount()),
	}
	for _, check := range tc.Checks {
		out.Checks = append(out.Checks, XUnitTFCheck{
			Name:   check.Name,
			Result: check.Result.String(),
			Event:  check.Event,
			Logs:   optionalLogs(check.Logs),
		})
	}
	return out
}

// XUnitTFSubresult is a subresult element.
type XUnitTFSubresult struct {
	Name           string       `xml:"name,attr"`
	Result         string       `xml:"result,attr"`
	OriginalResult string       `xml:"original-result,attr,omitempty"`
	EndTime        string       `xml:"end-time,attr,omitempty"`
	Logs           *XUnitTFLogs `xml:"logs,omitempty"`
}

// XUnitTFSubresults is a subresults element.
type XUnitTFSubresults struct {
	Subresults []XUnitTFSubresult `xml:"subresult"`
}

// XUnitTFPhase is a phase element.
type XUnitTFPhase struct {
	Name   string       `xml:"name,attr"`
	Result string       `xml:"result,attr"`
	Time   string       `xml:"time,attr,omitempty"`
	Logs   *XUnitTFLogs `xml:"logs,omitempty"`
}

// XUnitTFPhases is a phases element.
type XUnitTFPhases struct {
	Phases []XUnitTFPhase `xml:"phase"`
}

// XUnitTFPackage is a package element.
type XUnitTFPackage struct {
	NVR string `xml:"nvr,attr"`
}

// XUnitTFPackages is a packages element.
type XUnitTFPackages struct {
	Packages []XUnitTFPackage `xml:"package"`
}

// XUnitTFParameter is a parameter element.
type XUnitTFParameter struct {
	Value string `xml:"value,attr"`
}

// XUnitTFParameters is a parameters element.
type XUnitTFParameters struct {
	Parameters []XUnitTFParameter `xml:"parameter"`
}

// XUnitTFTestOutput is a test-output element.
type XUnitTFTestOutput struct {
	Message string `xml:"message,attr"`
}

// XUnitTFTestOutputs is a test-outputs element.
type XUnitTFTestOutputs struct {
	TestOutputs []XUnitTFTestOutput `xml:"test-output"`
}

// XUnitTFFault is a failure or error element. Message is only set when the
// source fault carried one.
type XUnitTFFault struct {
	Message *string `xml:"message,attr,omitempty"`
}

func newXUnitTFFault(fault Fault) *XUnitTFFault {
	if !fault.Present {
		return nil
	}
	return &XUnitTFFault{Message: fault.Message}
}

// XUnitTFTestCase is a testcase element of the Testing Farm dialect.
type XUnitTFTestCase struct {
	Name         string `xml:"name,attr"`
	Result       string `xml:"result,attr"`
	Time         string `xml:"time,attr,omitempty"`
	StartTime    string `xml:"start-time,attr,omitempty"`
	EndTime      string `xml:"end-time,attr,omitempty"`
	SerialNumber string `xml:"serial-number,attr,omitempty"`
	Added        string `xml:"added,attr,omitempty"`
	Fixed        string `xml:"fixed,attr,omitempty"`
	Baseline     string `xml:"baseline,attr,omitempty"`
	ResultClass  string `xml:"result-class,attr,omitempty"`
	TestType     string `xml:"test-type,attr,omitempty"`
	Defects      string `xml:"defects,attr,omitempty"`

	Properties          *XUnitTFProperties          `xml:"properties"`
	Parameters          *XUnitTFParameters          `xml:"parameters,omitempty"`
	Logs                *XUnitTFLogs                `xml:"logs"`
	TestingEnvironments []XUnitTFTestingEnvironment `xml:"testing-environment"`
	Guest               *XUnitTFGuest               `xml:"guest,omitempty"`
	FmfID               *XUnitTFFmfID               `xml:"fmf-id,omitempty"`
	Checks              *XUnitTFChecks              `xml:"checks,omitempty"`
	Subresults          *XUnitTFSubresults          `xml:"subresults,omitempty"`
	Phases              *XUnitTFPhases              `xml:"phases,omitempty"`
	Packages            *XUnitTFPackages            `xml:"packages,omitempty"`
	TestOutputs         *XUnitTFTestOutputs         `xml:"test-outputs,omitempty"`
	Failure             *XUnitTFFault               `xml:"failure,omitempty"`
	Error               *XUnitTFFault               `xml:"error,omitempty"`
}

// NewXUnitTFTestCase projects a test case.
func NewXUnitTFTestCase(tc *TestCase) (XUnitTFTestCase, error) {
	if tc.Result == OutcomeUndefined {
		return XUnitTFTestCase{}, fmt.Errorf("%w: testcase %q has no result", ErrMissingAttribute, tc.Name)
	}

	properties := append([]Property(nil), tc.Properties...)
	for _, note := range tc.Notes {
		properties = append(properties, Property{Name: "note", Value: note})
	}

	out := XUnitTFTestCase{
		Name:                tc.Name,
		Result:              tc.Result.String(),
		StartTime:           tc.StartTime,
		EndTime:             tc.EndTime,
		Added:               tc.Added,
		Fixed:               tc.Fixed,
		Baseline:            tc.Baseline,
		ResultClass:         tc.ResultClass,
		TestType:            tc.TestType,
		Defects:             tc.Defects,
		Properties:          NewXUnitTFProperties(properties),
		Logs:                NewXUnitTFLogs(tc.Logs),
		TestingEnvironments: testingEnvironments(tc.RequestedEnvironment, tc.ProvisionedEnvironment),
		Checks:              NewXUnitTFChecks(tc),
		Failure:             newXUnitTFFault(tc.Failure),
		Error:               newXUnitTFFault(tc.Error),
	}

	if tc.Duration != nil {
		out.Time = strconv.FormatInt(int64(tc.Duration.Seconds()), 10)
	}
	if tc.SerialNumber != nil {
		out.SerialNumber = strconv.Itoa(*tc.SerialNumber)
	}
	if tc.Guest != nil {
		guest := NewXUnitTFGuest(*tc.Guest)
		out.Guest = &guest
	}
	if tc.FmfID != nil {
		out.FmfID = &XUnitTFFmfID{URL: tc.FmfID.URL, Ref: tc.FmfID.Ref, Name: tc.FmfID.Name, Path: tc.FmfID.Path}
	}

	if len(tc.Parameters) > 0 {
		out.Parameters = &XUnitTFParameters{}
		for _, parameter := range tc.Parameters {
			out.Parameters.Parameters = append(out.Parameters.Parameters, XUnitTFParameter{Value: parameter})
		}
	}

	if len(tc.Subresults) > 0 {
		out.Subresults = &XUnitTFSubresults{}
		for _, subresult := range tc.Subresults {
			out.Subresults.Subresults = append(out.Subresults.Subresults, XUnitTFSubresult{
				Name:           subresult.Name,
				Result:         subresult.Result.String(),
				OriginalResult: subresult.OriginalResult,
				EndTime:        subresult.EndTime,
				Logs:           optionalLogs(subresult.Logs),
			})
		}
	}

	if len(tc.Phases) > 0 {
		out.Phases = &XUnitTFPhases{}
		for _, phase := range tc.Phases {
			out.Phases.Phases = append(out.Phases.Phases, XUnitTFPhase{
				Name:   phase.Name,
				Result: phase.Result,
				Time:   phase.Time,
				Logs:   optionalLogs(phase.Logs),
			})
		}
	}

	if tc.Packages != nil {
		out.Packages = &XUnitTFPackages{}
		for _, nvr := range tc.Packages {
			out.Packages.Packages = append(out.Packages.Packages, XUnitTFPackage{NVR: nvr})
		}
	}

	if tc.TestOutputs != nil {
		out.TestOutputs = &XUnitTFTestOutputs{}
		for _, output := range tc.TestOutputs {
			out.TestOutputs.TestOutputs = append(out.TestOutputs.TestOutputs, XUnitTFTestOutput{Message: output})
		}
	}

	return out, nil
}

// XUnitTFTestSuite is a testsuite element of the Testing Farm dialect.
type XUnitTFTestSuite struct {
	Name                string                      `xml:"name,attr"`
	Result              string                      `xml:"result,attr"`
	Tests               string                      `xml:"tests,attr"`
	Stage               string                      `xml:"stage,attr,omitempty"`
	Logs                *XUnitTFLogs                `xml:"logs,omitempty"`
	Properties          *XUnitTFProperties          `xml:"properties,omitempty"`
	TestingEnvironments []XUnitTFTestingEnvironment `xml:"testing-environment"`
	Guests              []XUnitTFGuest              `xml:"guest"`
	TestCases           []XUnitTFTestCase           `xml:"testcase"`
}

// NewXUnitTFTestSuite projects a test suite.
func NewXUnitTFTestSuite(ts *TestSuite) (XUnitTFTestSuite, error) {
	if ts.Result == "" {
		return XUnitTFTestSuite{}, fmt.Errorf("%w: testsuite %q has no result", ErrMissingAttribute, ts.Name)
	}

	out := XUnitTFTestSuite{
		Name:                ts.Name,
		Result:              ts.Result,
		Tests:               strconv.Itoa(ts.TestCount()),
		Stage:               ts.Stage,
		Logs:                optionalLogs(ts.Logs),
		TestingEnvironments: testingEnvironments(ts.RequestedEnvironment, ts.ProvisionedEnvironment),
	}
	if len(ts.Properties) > 0 {
		out.Properties = NewXUnitTFProperties(ts.Properties)
	}
	for _, guest := range ts.Guests {
		out.Guests = append(out.Guests, NewXUnitTFGuest(guest))
	}
	for _, tc := range ts.TestCases {
		testCase, err := NewXUnitTFTestCase(tc)
		if err != nil {
			return XUnitTFTestSuite{}, fmt.Errorf("testsuite %q: %w", ts.Name, err)
		}
		out.TestCases = append(out.TestCases, testCase)
	}
	return out, nil
}

// ToXMLString renders a single suite.
func (x *XUnitTFTestSuite) ToXMLString(prettyPrint bool, indent int) (string, error) {
	return MarshalXML(struct {
		XMLName xml.Name `xml:"testsuite"`
		*XUnitTFTestSuite
	}{XUnitTFTestSuite: x}, prettyPrint, indent)
}

// XUnitTFTestSuites is the root of the Testing Farm xUnit document.
type XUnitTFTestSuites struct {
	XMLName       xml.Name           `xml:"testsuites"`
	OverallResult string             `xml:"overall-result,attr"`
	Properties    *XUnitTFProperties `xml:"properties"`
	TestSuites    []XUnitTFTestSuite `xml:"testsuite"`
}

// NewXUnitTFTestSuites projects the whole tree.
func NewXUnitTFTestSuites(r *Results) (*XUnitTFTestSuites, error) {
	if r.OverallResult == "" {
		return nil, fmt.Errorf("%w: testsuites has no overall result", ErrMissingAttribute)
	}
	if err := r.checkPolarion(); err != nil {
		return nil, err
	}

	var properties []Property
	if r.PrimaryTask != nil {
		properties = append(properties,
			Property{Name: "baseosci.artifact-id", Value: r.PrimaryTask.ID()},
			Property{Name: "baseosci.artifact-namespace", Value: r.PrimaryTask.ArtifactNamespace()},
		)
	}
	if r.TestScheduleResult != "" {
		properties = append(properties, Property{Name: "baseosci.overall-result", Value: r.TestScheduleResult})
	}
	if r.TestingThread != "" {
		properties = append(properties, Property{Name: "baseosci.id.testing-thread", Value: r.TestingThread})
	}
	if r.PolarionEnabled() {
		properties = append(properties,
			Property{Name: "polarion-lookup-method", Value: r.PolarionLookupMethod},
			Property{Name: "polarion-custom-lookup-method-field-id", Value: r.PolarionCustomLookupMethodFieldID},
			Property{Name: "polarion-project-id", Value: r.PolarionProjectID},
		)
	}

	out := &XUnitTFTestSuites{
		OverallResult: r.OverallResult,
		Properties:    NewXUnitTFProperties(properties),
	}
	for _, ts := range r.TestSuites {
		suite, err := NewXUnitTFTestSuite(ts)
		if err != nil {
			return nil, err
		}
		out.TestSuites = append(out.TestSuites, suite)
	}
	return out, nil
}

// ToXMLString renders the document.
func (x *XUnitTFTestSuites) ToXMLString(prettyPrint bool, indent int) (string, error) {
	return MarshalXML(x, prettyPrint, indent)
}
