package config

import (
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestParseEnvVar_RequiredVariable(t *testing.T) {
	spec, err := ParseEnvVar("${BACKEND_URL}")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}

	if spec.IsLiteral {
		t.Error("Expected IsLiteral=false for env var")
	}
	if spec.VarName != "BACKEND_URL" {
		t.Errorf("Expected VarName='BACKEND_URL', got '%s'", spec.VarName)
	}
	if spec.HasDefault {
		t.Error("Expected HasDefault=false for required variable")
	}
}

func TestParseEnvVar_WithDefault(t *testing.T) {
	spec, err := ParseEnvVar("${REDIS_ADDR:localhost:6379}")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}

	if !spec.HasDefault {
		t.Error("Expected HasDefault=true")
	}
	if spec.DefaultValue != "localhost:6379" {
		t.Errorf("Expected DefaultValue='localhost:6379', got '%s'", spec.DefaultValue)
	}
}

func TestParseEnvVar_Literal(t *testing.T) {
	spec, err := ParseEnvVar("chat_messages")
	if err != nil {
		t.Fatalf("ParseEnvVar failed: %v", err)
	}
	if !spec.IsLiteral || spec.LiteralValue != "chat_messages" {
		t.Errorf("Expected literal 'chat_messages', got %+v", spec)
	}
}

func TestParseEnvVar_InvalidName(t *testing.T) {
	for _, v := range []string{"${lower}", "${INVALID-NAME}", "${1ABC}"} {
		if _, err := ParseEnvVar(v); err == nil {
			t.Errorf("Expected error for %q", v)
		}
	}
}

func TestResolve(t *testing.T) {
	lookup := lookupFrom(map[string]string{"PORT": "9090"})

	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{value: "${PORT}", want: "9090"},
		{value: "${PORT:8080}", want: "9090"},
		{value: "${MISSING:8080}", want: "8080"},
		{value: "${MISSING:}", want: ""},
		{value: "${MISSING}", wantErr: true},
		{value: "literal", want: "literal"},
	}

	for _, tt := range tests {
		spec, err := ParseEnvVar(tt.value)
		if err != nil {
			t.Fatalf("ParseEnvVar(%q) failed: %v", tt.value, err)
		}
		got, err := spec.Resolve(lookup)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Resolve(%q): expected error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", tt.value, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestExpandValues_Nested(t *testing.T) {
	tree := map[string]any{
		"backend": map[string]any{
			"base_url":    "${BACKEND_URL}",
			"max_retries": 3,
		},
		"hosts": []any{"${HOST_A:a}", "b"},
	}

	out, err := ExpandValues(tree, lookupFrom(map[string]string{"BACKEND_URL": "https://api.example.com"}))
	if err != nil {
		t.Fatalf("ExpandValues failed: %v", err)
	}

	m := out.(map[string]any)
	backend := m["backend"].(map[string]any)
	if backend["base_url"] != "https://api.example.com" {
		t.Errorf("base_url not expanded: %v", backend["base_url"])
	}
	if backend["max_retries"] != 3 {
		t.Errorf("max_retries changed: %v", backend["max_retries"])
	}
	hosts := m["hosts"].([]any)
	if hosts[0] != "a" || hosts[1] != "b" {
		t.Errorf("hosts not expanded: %v", hosts)
	}
}

func TestExpandValues_MissingRequired(t *testing.T) {
	_, err := ExpandValues(map[string]any{"postgres": map[string]any{"connection_string": "${DATABASE_URL}"}}, lookupFrom(nil))
	if err == nil {
		t.Fatal("Expected error for missing required variable")
	}
}
