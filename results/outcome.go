package results

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Outcome is the normalized result of a test case, check or subresult.
type Outcome string

const (
	OutcomeUndefined       Outcome = ""
	OutcomePassed          Outcome = "passed"
	OutcomeFailed          Outcome = "failed"
	OutcomeError           Outcome = "error"
	OutcomeInfo            Outcome = "info"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeNotApplicable   Outcome = "not_applicable"
	OutcomeNeedsInspection Outcome = "needs_inspection"
)

// outcomeSpellings maps every spelling producers emit to its canonical outcome.
var outcomeSpellings = map[string]Outcome{
	"pass":             OutcomePassed,
	"passed":           OutcomePassed,
	"fail":             OutcomeFailed,
	"fail:":            OutcomeFailed,
	"failed":           OutcomeFailed,
	"error":            OutcomeError,
	"error:":           OutcomeError,
	"errored":          OutcomeError,
	"info":             OutcomeInfo,
	"skip":             OutcomeSkipped,
	"skipped":          OutcomeSkipped,
	"not_applicable":   OutcomeNotApplicable,
	"warn":             OutcomeNeedsInspection,
	"needs_inspection": OutcomeNeedsInspection,
}

type outcomeClass int

const (
	classNeutral outcomeClass = iota
	classFailure
	classError
)

// outcomeClasses is the single table both suite counters read. Errors are
// failures too.
var outcomeClasses = map[Outcome]outcomeClass{
	OutcomeFailed:          classFailure,
	OutcomeNeedsInspection: classFailure,
	OutcomeError:           classError,
}

// ParseOutcome normalizes a raw producer result.
func ParseOutcome(raw string) (Outcome, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return OutcomeUndefined, nil
	}

	outcome, ok := outcomeSpellings[normalized]
	if !ok {
		return OutcomeUndefined, fmt.Errorf("unknown test outcome %q", raw)
	}
	return outcome, nil
}

// IsFailure reports whether the outcome counts as a failure.
func (o Outcome) IsFailure() bool {
	return outcomeClasses[o] != classNeutral
}

// IsError reports whether the outcome counts as an error.
func (o Outcome) IsError() bool {
	return outcomeClasses[o] == classError
}

func (o Outcome) String() string {
	return string(o)
}

// UnmarshalYAML normalizes outcomes while schedule files are decoded.
func (o *Outcome) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	outcome, err := ParseOutcome(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*o = outcome
	return nil
}
