package schedule

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Graded is an item the resolver can grade: anything with a completion stage,
// a completion state and a result.
type Graded interface {
	ScheduleStage() Stage
	ScheduleState() State
	ScheduleResult() Result
}

// RuleEvaluator evaluates a boolean rule against a context.
type RuleEvaluator interface {
	EvaluateRule(rule string, context map[string]any) (bool, error)
}

// Instruction replaces the current result with SetResult when Rule evaluates
// true. A nil Rule always matches.
type Instruction struct {
	Rule      *string `yaml:"rule,omitempty"`
	SetResult string  `yaml:"set-result"`
}

func (i Instruction) result() (Result, error) {
	result, err := ParseResult(i.SetResult)
	if err != nil {
		return ResultUndefined, err
	}
	if strings.TrimSpace(i.SetResult) == "" {
		return ResultUndefined, fmt.Errorf("%w: instruction has no set-result", ErrUnknownResult)
	}
	return result, nil
}

// LoadInstructions reads instructions from YAML files and concatenates them in
// the order the files are given. Every instruction must name a known result.
func LoadInstructions(paths ...string) ([]Instruction, error) {
	var instructions []Instruction
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.WithError(err).WithField("File", path).Error("Failed to read overall result map")
			return nil, errors.New("failed to read overall result map: " + err.Error())
		}

		var loaded []Instruction
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			logrus.WithError(err).WithField("File", path).Error("Failed to parse overall result map")
			return nil, errors.New("failed to parse overall result map: " + err.Error())
		}
		for _, instruction := range loaded {
			if _, err := instruction.result(); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		instructions = append(instructions, loaded...)
	}
	return instructions, nil
}

// BaseResult grades items without any instructions:
//
//   - any item not complete yields ResultUndefined,
//   - any item not in StateOK yields ResultError,
//   - otherwise the most severe graded result wins.
//
// Results without a weight, e.g. ResultNeedsInspection, outrank passed and
// skipped items but not info, failed or error. Among them the first one in
// schedule order wins. No items at all yields ResultUndefined.
func BaseResult(items []Graded) Result {
	if len(items) == 0 {
		return ResultUndefined
	}

	for _, item := range items {
		if item.ScheduleStage() != StageComplete {
			return ResultUndefined
		}
	}

	for _, item := range items {
		if item.ScheduleState() != StateOK {
			return ResultError
		}
	}

	worst, worstWeight := ResultUndefined, -1
	var ungraded []Result
	for _, item := range items {
		result := item.ScheduleResult()
		weight, ok := result.Weight()
		if !ok {
			ungraded = append(ungraded, result)
			continue
		}
		if weight > worstWeight {
			worst, worstWeight = result, weight
		}
	}

	passed, _ := ResultPassed.Weight()
	if len(ungraded) > 0 && worstWeight <= passed {
		return ungraded[0]
	}
	return worst
}

// Resolver computes the overall result of a schedule and lets instructions
// override it.
type Resolver struct {
	Instructions []Instruction
	Evaluator    RuleEvaluator

	// Context is merged into the evaluation context of every rule.
	Context map[string]any
}

// Resolve returns the overall result of schedule.
func (r *Resolver) Resolve(schedule Schedule) (Result, error) {
	base := BaseResult(schedule.Graded())
	logrus.WithField("Result", base).Debug("base overall result")

	result, err := r.Override(base, map[string]any{"SCHEDULE": schedule.Context()})
	if err != nil {
		return ResultUndefined, err
	}
	logrus.WithField("Result", result).Debug("custom overall result")
	return result, nil
}

// Override evaluates the instructions in order against context extended with
// CURRENT_RESULT and RESULTS. The first matching instruction sets the result,
// no match returns current unchanged.
func (r *Resolver) Override(current Result, context map[string]any) (Result, error) {
	if len(r.Instructions) == 0 {
		return current, nil
	}

	env := make(map[string]any, len(r.Context)+len(context)+2)
	for key, value := range r.Context {
		env[key] = value
	}
	for key, value := range context {
		env[key] = value
	}
	env["CURRENT_RESULT"] = string(current)
	env["RESULTS"] = resultNames()

	for i, instruction := range r.Instructions {
		result, err := instruction.result()
		if err != nil {
			logrus.WithError(err).WithField("Instruction", i).Error("Invalid overall result instruction")
			return ResultUndefined, err
		}

		if instruction.Rule != nil {
			if r.Evaluator == nil {
				return ResultUndefined, errors.New("overall result instruction has a rule but no rule evaluator is configured")
			}
			matched, err := r.Evaluator.EvaluateRule(*instruction.Rule, env)
			if err != nil {
				logrus.WithError(err).WithField("Rule", *instruction.Rule).Error("Failed to evaluate rule")
				return ResultUndefined, fmt.Errorf("failed to evaluate rule %q: %w", *instruction.Rule, err)
			}
			if !matched {
				continue
			}
		}

		return result, nil
	}
	return current, nil
}

// resultNames maps upper-case result names to values, RESULTS.FAILED is "failed".
func resultNames() map[string]string {
	names := make(map[string]string, len(knownResults))
	for _, result := range knownResults {
		names[strings.ToUpper(string(result))] = string(result)
	}
	return names
}
