package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BDNK1/chatflow/runtime"
)

const supportFlow = `
id: support
name: Support
is_active: true
steps:
  - step_key: welcome
    step_type: options
    message_text: How can we help?
    options: [Billing, Other]
    is_initial: true
    sort_order: 2
    next_step_map:
      Billing: phone
      default: goodbye
  - step_key: phone
    step_type: apiCall
    message_text: Your phone number?
    sort_order: 1
    validation_rules:
      pattern: '^\d{10}$'
      error_message: Ten digits please.
    api_config:
      endpoint: /chat/validate/phone
      method: POST
      next_step_logic:
        conditions:
          - field: phone_region
            value: 44
            next_step: goodbye
          - when: 'phone_valid == "true"'
            next_step: goodbye
  - step_key: goodbye
    step_type: message
    message_text: Bye
`

func TestParse_SupportFlow(t *testing.T) {
	flow, err := Parse([]byte(supportFlow))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if flow.ID != "support" || !flow.IsActive {
		t.Errorf("Unexpected flow header: id=%q active=%v", flow.ID, flow.IsActive)
	}
	if len(flow.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(flow.Steps))
	}
	if flow.Steps[0].StepKey != "welcome" {
		t.Errorf("Steps must keep file order, got %q first", flow.Steps[0].StepKey)
	}

	phone := flow.Steps[1]
	if phone.StepType != runtime.StepTypeAPICall {
		t.Errorf("Expected apiCall, got %q", phone.StepType)
	}
	if phone.ValidationRules == nil || phone.ValidationRules.Pattern != `^\d{10}$` {
		t.Errorf("Unexpected validation rules: %+v", phone.ValidationRules)
	}
	conds := phone.APIConfig.NextStepLogic.Conditions
	if len(conds) != 2 {
		t.Fatalf("Expected 2 conditions, got %d", len(conds))
	}
	if conds[0].Value != "44" {
		t.Errorf("Numeric condition value should be canonicalised to \"44\", got %q", conds[0].Value)
	}
	if conds[1].When == "" {
		t.Error("Expected when expression on second condition")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("steps: [unterminated")); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestFlowLoader_LoadsJSONExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	data := `{"name":"Exported","steps":[{"step_key":"a","step_type":"message","message_text":"Hi","is_initial":true}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	flow, err := NewFlowLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if flow.Name != "Exported" || len(flow.Steps) != 1 || !flow.Steps[0].IsInitial {
		t.Errorf("Unexpected flow: %+v", flow)
	}
}

func TestFlowLoader_MissingFile(t *testing.T) {
	if _, err := NewFlowLoader().Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
