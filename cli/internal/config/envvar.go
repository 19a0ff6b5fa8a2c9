package config

import (
	"fmt"
	"regexp"
	"strings"
)

// EnvVarSpec represents a parsed environment variable specification
type EnvVarSpec struct {
	// VarName is the environment variable name (e.g., "BACKEND_URL")
	VarName string

	HasDefault   bool
	DefaultValue string

	// IsLiteral indicates if this is a literal value (not an env var)
	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value that may contain environment variable syntax
//
// Supported formats:
//   - ${VAR}         - Required environment variable
//   - ${VAR:default} - Optional environment variable with default
//   - literal        - Plain literal value (no env var)
//
// Examples:
//
//	ParseEnvVar("${REDIS_ADDR}") -> required env var "REDIS_ADDR"
//	ParseEnvVar("${REDIS_ADDR:localhost:6379}") -> env var with default
//	ParseEnvVar("localhost:6379") -> literal value
func ParseEnvVar(value string) (*EnvVarSpec, error) {
	if strings.HasPrefix(value, "${") && !envVarPattern.MatchString(value) {
		return nil, fmt.Errorf("invalid environment variable reference: %s", value)
	}

	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}, nil
	}

	spec := &EnvVarSpec{
		VarName:    matches[1],
		HasDefault: matches[2] != "",
	}
	if spec.HasDefault {
		spec.DefaultValue = strings.TrimPrefix(matches[2], ":")
	}
	return spec, nil
}

// Resolve returns the value the spec stands for. lookup is usually os.LookupEnv.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("required environment variable %s is not set", s.VarName)
}

// ExpandValues walks a decoded YAML tree and substitutes every ${VAR} string.
// Non-string scalars are kept as they are.
func ExpandValues(value any, lookup func(string) (string, bool)) (any, error) {
	switch v := value.(type) {
	case string:
		spec, err := ParseEnvVar(v)
		if err != nil {
			return nil, err
		}
		return spec.Resolve(lookup)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			expanded, err := ExpandValues(child, lookup)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			expanded, err := ExpandValues(child, lookup)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}
