package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StepType decides what the UI collects for a step and what the runtime does before advancing.
type StepType string

const (
	StepTypeMessage StepType = "message"
	StepTypeOptions StepType = "options"
	StepTypeInput   StepType = "input"
	StepTypeAPICall StepType = "apiCall"
)

// DefaultAnswerKey is the next_step_map key used when no entry matches the answer.
const DefaultAnswerKey = "default"

type ChatFlow struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
	Steps       []ChatStep `json:"steps" yaml:"steps" validate:"dive"`
}

type ChatStep struct {
	StepKey         string            `json:"step_key" yaml:"step_key" validate:"required"`
	StepType        StepType          `json:"step_type" yaml:"step_type" validate:"oneof=message options input apiCall"`
	MessageText     string            `json:"message_text" yaml:"message_text"`
	Options         []string          `json:"options,omitempty" yaml:"options,omitempty"`
	ValidationRules *ValidationRules  `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	NextStepMap     map[string]string `json:"next_step_map,omitempty" yaml:"next_step_map,omitempty"`
	APIConfig       *APIConfig        `json:"api_config,omitempty" yaml:"api_config,omitempty"`
	IsInitial       bool              `json:"is_initial" yaml:"is_initial"`
	SortOrder       int               `json:"sort_order" yaml:"sort_order"`
}

// ValidationRules only apply to free-text input steps.
type ValidationRules struct {
	Pattern      string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Placeholder  string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

type APIConfig struct {
	Endpoint      string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method        string         `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	NextStepLogic *NextStepLogic `json:"next_step_logic,omitempty" yaml:"next_step_logic,omitempty"`
}

type NextStepLogic struct {
	Conditions []Condition `json:"conditions" yaml:"conditions" validate:"dive"`
}

// Condition routes to NextStep when UserData[Field] equals Value, or when the
// When expression evaluates to true if one is set.
type Condition struct {
	Field    string `json:"field" yaml:"field" validate:"required_without=When"`
	Value    Scalar `json:"value" yaml:"value"`
	NextStep string `json:"next_step" yaml:"next_step"`
	When     string `json:"when,omitempty" yaml:"when,omitempty"`
}

// Scalar holds a JSON or YAML scalar in its canonical string form, so that
// `true`, `"true"` and `yes`-style payload values compare against user data the same way.
type Scalar string

func (s Scalar) String() string {
	return string(s)
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scalar: %w", err)
	}
	str, ok := ScalarString(raw)
	if !ok {
		return fmt.Errorf("scalar: unsupported value %s", string(data))
	}
	*s = Scalar(str)
	return nil
}

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("scalar: line %d: expected a scalar value", node.Line)
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("scalar: %w", err)
	}
	str, ok := ScalarString(raw)
	if !ok {
		return fmt.Errorf("scalar: line %d: unsupported value %q", node.Line, node.Value)
	}
	*s = Scalar(str)
	return nil
}

// ScalarString renders a decoded JSON/YAML scalar as a user data value.
// Objects and arrays are rejected.
func ScalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

type ChatSession struct {
	SessionToken string `json:"sessionToken"`
	SessionID    string `json:"sessionId"`
}

// Step returns the step with the given key.
func (f *ChatFlow) Step(key string) (ChatStep, bool) {
	for _, s := range f.Steps {
		if s.StepKey == key {
			return s, true
		}
	}
	return ChatStep{}, false
}

// InitialStep returns the step marked is_initial. When none is marked the first
// step in declaration order is used; ok is false only for a flow without steps.
func (f *ChatFlow) InitialStep() (step ChatStep, marked bool, ok bool) {
	if len(f.Steps) == 0 {
		return ChatStep{}, false, false
	}
	for _, s := range f.Steps {
		if s.IsInitial {
			return s, true, true
		}
	}
	return f.Steps[0], false, true
}

// MessageType maps a step to the transcript type of its bot prompt.
func (s ChatStep) MessageType() MessageType {
	if s.StepType == StepTypeOptions {
		return MessageTypeOption
	}
	return MessageTypeMessage
}

func (s ChatStep) hasEndpoint() bool {
	return s.APIConfig != nil && s.APIConfig.Endpoint != ""
}
