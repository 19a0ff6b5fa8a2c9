package runtime

import (
	"errors"
	"fmt"
)

// RouteSource records which rule produced a next step.
type RouteSource string

const (
	RouteCondition RouteSource = "condition"
	RouteAnswer    RouteSource = "answer"
	RouteDefault   RouteSource = "default"
	RouteNone      RouteSource = "none"
)

type Route struct {
	StepKey string
	Source  RouteSource
}

// End reports whether the route terminates the flow.
func (r Route) End() bool {
	return r.StepKey == ""
}

// ResolveNextStep picks the step that follows step given the user's answer.
//
// Precedence: next_step_logic conditions in declaration order (first match wins),
// then next_step_map[answer], then next_step_map["default"], then no step.
// A condition the evaluator cannot decide is skipped; those failures are joined
// into the returned error while the route is still resolved from the remaining rules.
func ResolveNextStep(step ChatStep, answer string, data map[string]string, evaluator ConditionEvaluator) (Route, error) {
	if evaluator == nil {
		evaluator = EqualityEvaluator{}
	}

	var errs []error
	if step.APIConfig != nil && step.APIConfig.NextStepLogic != nil {
		for i, cond := range step.APIConfig.NextStepLogic.Conditions {
			ok, err := evaluator.Match(cond, data)
			if err != nil {
				errs = append(errs, fmt.Errorf("condition %d of step %s: %w", i, step.StepKey, err))
				continue
			}
			if ok {
				return Route{StepKey: cond.NextStep, Source: RouteCondition}, errors.Join(errs...)
			}
		}
	}

	if next, ok := step.NextStepMap[answer]; ok && next != "" {
		return Route{StepKey: next, Source: RouteAnswer}, errors.Join(errs...)
	}
	if next, ok := step.NextStepMap[DefaultAnswerKey]; ok && next != "" {
		return Route{StepKey: next, Source: RouteDefault}, errors.Join(errs...)
	}
	return Route{Source: RouteNone}, errors.Join(errs...)
}

// EqualityEvaluator matches data[Field] == Value and cannot evaluate When expressions.
type EqualityEvaluator struct{}

func (EqualityEvaluator) Match(cond Condition, data map[string]string) (bool, error) {
	if cond.When != "" {
		return false, fmt.Errorf("expression conditions are not supported by the equality evaluator: %q", cond.When)
	}
	v, ok := data[cond.Field]
	return ok && v == string(cond.Value), nil
}
