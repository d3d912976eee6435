// Package rules evaluates boolean rules written in the expr language.
package rules

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/sirupsen/logrus"
)

// Engine evaluates rules against a context. The zero value is ready to use.
type Engine struct {
	// Variables are available to every rule. Context keys of the same name win.
	Variables map[string]any
}

// New returns an engine carrying variables.
func New(variables map[string]any) *Engine {
	return &Engine{Variables: variables}
}

// EvaluateRule compiles rule against context and runs it. The rule must
// produce a boolean. True and False are defined as aliases of true and false.
func (e *Engine) EvaluateRule(rule string, context map[string]any) (bool, error) {
	if rule == "" {
		return false, errors.New("empty rule")
	}

	env := make(map[string]any, len(e.Variables)+len(context)+2)
	env["True"] = true
	env["False"] = false
	for key, value := range e.Variables {
		env[key] = value
	}
	for key, value := range context {
		env[key] = value
	}

	program, err := expr.Compile(rule, expr.Env(env), expr.AsBool())
	if err != nil {
		logrus.WithError(err).WithField("Rule", rule).Debug("Failed to compile rule")
		return false, fmt.Errorf("failed to compile rule: %w", err)
	}

	output, err := expr.Run(program, env)
	if err != nil {
		logrus.WithError(err).WithField("Rule", rule).Debug("Failed to run rule")
		return false, fmt.Errorf("failed to run rule: %w", err)
	}

	matched, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T, not bool", rule, output)
	}

	logrus.WithFields(logrus.Fields{"Rule": rule, "Result": matched}).Debug("evaluated rule")
	return matched, nil
}
