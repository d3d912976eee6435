package results

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// XUnitFailure is the failure element of the generic dialect.
type XUnitFailure struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
}

// NewXUnitFailure builds the failure element for a failed or errored case.
func NewXUnitFailure(tc *TestCase) *XUnitFailure {
	return &XUnitFailure{
		Type:    "FAIL",
		Message: fmt.Sprintf("Test \"%s\" failed.", tc.Name),
	}
}

// XUnitTestCase is a testcase element of the generic dialect.
type XUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	SystemOut string        `xml:"system-out,attr"`
	Failure   *XUnitFailure `xml:"failure,omitempty"`
}

// NewXUnitTestCase projects a test case. Errored cases get the same failure
// element as failed ones.
func NewXUnitTestCase(tc *TestCase) XUnitTestCase {
	out := XUnitTestCase{
		Name:      tc.Name,
		Classname: "tests",
		SystemOut: StripControlCharacters(strings.Join(tc.SystemOut, "\n")),
	}
	if tc.Failure.Present || tc.Error.Present {
		out.Failure = NewXUnitFailure(tc)
	}
	return out
}

// XUnitTestSuite is a testsuite element of the generic dialect.
type XUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     string          `xml:"tests,attr"`
	Failures  string          `xml:"failures,attr"`
	Errors    string          `xml:"errors,attr"`
	Skipped   string          `xml:"skipped,attr"`
	TestCases []XUnitTestCase `xml:"testcase"`
}

// NewXUnitTestSuite projects a test suite.
func NewXUnitTestSuite(ts *TestSuite) XUnitTestSuite {
	out := XUnitTestSuite{
		Name:     ts.Name,
		Tests:    strconv.Itoa(ts.TestCount()),
		Failures: strconv.Itoa(ts.FailureCount()),
		Errors:   strconv.Itoa(ts.ErrorCount()),
		Skipped:  strconv.Itoa(ts.SkippedCount()),
	}
	for _, tc := range ts.TestCases {
		out.TestCases = append(out.TestCases, NewXUnitTestCase(tc))
	}
	return out
}

// XUnitTestSuites is the root of the generic xUnit document.
type XUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []XUnitTestSuite `xml:"testsuite"`
}

// NewXUnitTestSuites projects the whole tree.
func NewXUnitTestSuites(r *Results) *XUnitTestSuites {
	out := &XUnitTestSuites{}
	for _, ts := range r.TestSuites {
		out.TestSuites = append(out.TestSuites, NewXUnitTestSuite(ts))
	}
	return out
}

// ToXMLString renders the document. Pretty printing indents nested elements by
// indent spaces per level.
func (x *XUnitTestSuites) ToXMLString(prettyPrint bool, indent int) (string, error) {
	return MarshalXML(x, prettyPrint, indent)
}

// StripControlCharacters removes control characters other than CR and LF.
func StripControlCharacters(s string) string {
	return strings.Map(func(r rune) rune {
		if r != '\n' && r != '\r' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
