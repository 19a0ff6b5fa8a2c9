package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BDNK1/chatflow/cli/internal/security"
	httpplugin "github.com/BDNK1/chatflow/plugins/http"
	"github.com/BDNK1/chatflow/plugins/postgres"
	"github.com/BDNK1/chatflow/plugins/redis"
	"github.com/BDNK1/chatflow/runtime"
	"gopkg.in/yaml.v3"
)

const FileName = "flow-config.yaml"

// FlowConfig represents the flow-config.yaml structure. Backend, Postgres and
// Redis are nil when their section is absent.
type FlowConfig struct {
	Name     string
	Server   ServerConfig
	Runtime  runtime.Config
	Flows    FlowsConfig
	Log      LogConfig
	Backend  *httpplugin.Config
	Postgres *postgres.Config
	Redis    *redis.Config
}

type ServerConfig struct {
	Port            string        `yaml:"port" default:"8080" validate:"required,numeric"`
	Mode            string        `yaml:"mode" default:"release" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gte=0"`
	// Sessions idle for longer than SessionIdleTimeout are closed by the sweeper.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" default:"30m" validate:"gte=1s"`
	SweepInterval      time.Duration `yaml:"sweep_interval" default:"1m" validate:"gte=1s"`
}

type FlowsConfig struct {
	// Dir is relative to the project directory. Used when no backend is configured.
	Dir string `yaml:"dir" default:"flows" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// Load reads flow-config.yaml from the given directory, substitutes environment
// variables and decodes every section with its defaults and validation rules.
func Load(projectDir string) (*FlowConfig, error) {
	configPath, err := security.ResolveWithin(projectDir, FileName)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %q: %w", FileName, configPath, err)
	}

	return Parse(projectDir, data, os.LookupEnv)
}

// Parse decodes a flow-config.yaml document. lookup resolves ${VAR} references.
func Parse(projectDir string, data []byte, lookup func(string) (string, bool)) (*FlowConfig, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	expanded, err := ExpandValues(raw, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environment variables: %w", err)
	}
	raw = expanded.(map[string]any)

	cfg := &FlowConfig{}
	if name, ok := raw["name"].(string); ok {
		cfg.Name = name
	}
	if cfg.Name == "" {
		cfg.Name = getDirectoryName(projectDir)
	}

	required := []struct {
		key    string
		target any
	}{
		{"server", &cfg.Server},
		{"runtime", &cfg.Runtime},
		{"flows", &cfg.Flows},
		{"log", &cfg.Log},
	}
	for _, s := range required {
		values, err := section(raw, s.key)
		if err != nil {
			return nil, err
		}
		if err := runtime.InitializeConfig(s.target, values); err != nil {
			return nil, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if cfg.Backend, err = optionalSection[httpplugin.Config](raw, "backend"); err != nil {
		return nil, err
	}
	if cfg.Postgres, err = optionalSection[postgres.Config](raw, "postgres"); err != nil {
		return nil, err
	}
	if cfg.Redis, err = optionalSection[redis.Config](raw, "redis"); err != nil {
		return nil, err
	}

	if cfg.Flows.Dir, err = security.ResolveWithin(projectDir, cfg.Flows.Dir); err != nil {
		return nil, fmt.Errorf("flows.dir: %w", err)
	}

	return cfg, nil
}

func section(raw map[string]any, key string) (map[string]any, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a mapping, got %T", key, v)
	}
	return m, nil
}

func optionalSection[T any](raw map[string]any, key string) (*T, error) {
	if _, ok := raw[key]; !ok {
		return nil, nil
	}
	values, err := section(raw, key)
	if err != nil {
		return nil, err
	}
	var target T
	if err := runtime.InitializeConfig(&target, values); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &target, nil
}

// Logger builds the process logger described by the log section.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getDirectoryName extracts the last component of a path
func getDirectoryName(path string) string {
	if path == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return "chatflow"
		}
		path = cwd
	}
	return filepath.Base(path)
}
