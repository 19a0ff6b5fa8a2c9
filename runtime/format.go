package runtime

import (
	"regexp"
	"strings"
	"unicode"
)

const phoneDigits = 10

// InputCheck is advisory feedback for free-text input. It never blocks a submission.
type InputCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// FormatInput applies field-specific formatting before submission. Steps whose
// key names a phone field keep digits only, capped at ten.
func FormatInput(step ChatStep, text string) string {
	if !takesFreeText(step) || !isPhoneField(step.StepKey) {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if b.Len() == phoneDigits {
			break
		}
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckInput matches text against the step's validation pattern. A pattern that
// does not compile counts as a pass.
func CheckInput(step ChatStep, text string) InputCheck {
	if !takesFreeText(step) || step.ValidationRules == nil || step.ValidationRules.Pattern == "" {
		return InputCheck{Valid: true}
	}
	re, err := regexp.Compile(step.ValidationRules.Pattern)
	if err != nil {
		return InputCheck{Valid: true}
	}
	if re.MatchString(text) {
		return InputCheck{Valid: true}
	}
	return InputCheck{Valid: false, Message: step.ValidationRules.ErrorMessage}
}

func takesFreeText(step ChatStep) bool {
	return step.StepType == StepTypeInput || step.StepType == StepTypeAPICall
}

func isPhoneField(key string) bool {
	return strings.Contains(strings.ToLower(key), "phone")
}
