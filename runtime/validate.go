package runtime

import (
	"errors"
	"fmt"
	"sort"
)

// FlowReport lists what is wrong with a flow definition. Errors make a flow
// unusable; warnings describe graphs the runtime walks anyway (missing initial
// step, routes to unknown steps).
type FlowReport struct {
	Errors   []*FlowError
	Warnings []*FlowError
}

func (r FlowReport) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the report's errors, or returns nil.
func (r FlowReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ValidateFlow checks a flow's shape and graph. It is run when a flow is loaded
// from a repository, not on every submission.
func ValidateFlow(flow *ChatFlow) FlowReport {
	var report FlowReport
	if flow == nil || len(flow.Steps) == 0 {
		report.Errors = append(report.Errors, newFlowError(ErrorTypeConfiguration, ErrorCodeNoSteps, "", "flow has no steps"))
		return report
	}

	if err := validate.Struct(flow); err != nil {
		for _, msg := range validationMessages(err) {
			report.Errors = append(report.Errors, newFlowError(ErrorTypeConfiguration, ErrorCodeInvalidShape, "", "%s", msg))
		}
	}

	keys := make(map[string]bool, len(flow.Steps))
	var initial []string
	for _, s := range flow.Steps {
		if keys[s.StepKey] {
			report.Errors = append(report.Errors, newFlowError(ErrorTypeConfiguration, ErrorCodeDuplicateStep, s.StepKey, "step key %q is used more than once", s.StepKey))
		}
		keys[s.StepKey] = true
		if s.IsInitial {
			initial = append(initial, s.StepKey)
		}
	}

	switch {
	case len(initial) == 0:
		report.Warnings = append(report.Warnings, newFlowError(ErrorTypeConfiguration, ErrorCodeNoInitialStep, flow.Steps[0].StepKey,
			"no step is marked initial, the flow starts at %q", flow.Steps[0].StepKey))
	case len(initial) > 1:
		report.Errors = append(report.Errors, newFlowError(ErrorTypeConfiguration, ErrorCodeMultipleInitial, "",
			"steps %v are all marked initial", initial))
	}

	for _, s := range flow.Steps {
		for _, target := range routeTargets(s) {
			if !keys[target] {
				report.Warnings = append(report.Warnings, newFlowError(ErrorTypeConfiguration, ErrorCodeDanglingTarget, s.StepKey,
					"route to unknown step %q", target))
			}
		}
	}

	return report
}

// routeTargets returns the distinct non-empty targets of a step's routes, sorted.
func routeTargets(s ChatStep) []string {
	seen := map[string]bool{}
	for _, t := range s.NextStepMap {
		if t != "" {
			seen[t] = true
		}
	}
	if s.APIConfig != nil && s.APIConfig.NextStepLogic != nil {
		for _, c := range s.APIConfig.NextStepLogic.Conditions {
			if c.NextStep != "" {
				seen[c.NextStep] = true
			}
		}
	}
	targets := make([]string, 0, len(seen))
	for t := range seen {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

func (r FlowReport) String() string {
	return fmt.Sprintf("%d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))
}

// ExpressionCompiler is implemented by evaluators that can check a When
// expression before any session reaches it.
type ExpressionCompiler interface {
	Compile(expression string) error
}

// ValidateFlowWith runs ValidateFlow and, when ev is an ExpressionCompiler, reports
// every When expression that does not compile as an INVALID_SHAPE error.
func ValidateFlowWith(flow *ChatFlow, ev ConditionEvaluator) FlowReport {
	report := ValidateFlow(flow)
	compiler, ok := ev.(ExpressionCompiler)
	if !ok || flow == nil {
		return report
	}
	for _, step := range flow.Steps {
		if step.APIConfig == nil || step.APIConfig.NextStepLogic == nil {
			continue
		}
		for _, cond := range step.APIConfig.NextStepLogic.Conditions {
			if cond.When == "" {
				continue
			}
			if err := compiler.Compile(cond.When); err != nil {
				report.Errors = append(report.Errors, &FlowError{
					Type:    ErrorTypeConfiguration,
					Code:    ErrorCodeInvalidShape,
					Step:    step.StepKey,
					Message: err.Error(),
					Cause:   err,
				})
			}
		}
	}
	return report
}
