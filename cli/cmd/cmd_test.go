package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BDNK1/chatflow/runtime"
	flowyaml "github.com/BDNK1/chatflow/runtime/engine/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playFlow = `
id: demo
steps:
  - step_key: welcome
    step_type: options
    message_text: Pick one
    options: [yes, no]
    is_initial: true
    next_step_map:
      yes: phone
      no: bye
  - step_key: phone
    step_type: input
    message_text: Your phone?
    next_step_map:
      default: bye
  - step_key: bye
    step_type: message
    message_text: Bye now
`

func newPlaySession(t *testing.T) *runtime.Session {
	t.Helper()
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := runtime.DefaultConfig()
	cfg.TypingDelay = 0
	engine := runtime.NewEngine(l, cfg,
		runtime.WithEvaluator(flowyaml.NewExpressionEvaluator()),
		runtime.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))
	return engine.NewSession(runtime.ChatSession{SessionToken: "t", SessionID: "t"})
}

func TestPlay_WalksFlow(t *testing.T) {
	flow, err := flowyaml.Parse([]byte(playFlow))
	require.NoError(t, err)

	session := newPlaySession(t)
	var out bytes.Buffer
	in := strings.NewReader("1\n(555) 123-4567\nok\n")

	require.NoError(t, play(context.Background(), session, &flow, in, &out))

	text := out.String()
	assert.Contains(t, text, "bot: Pick one\n  1) yes\n  2) no\n")
	assert.Contains(t, text, "bot: Your phone?")
	assert.Contains(t, text, "bot: Bye now")

	snap := session.Snapshot()
	assert.Equal(t, "yes", snap.UserData["welcome"])
	assert.Equal(t, "5551234567", snap.UserData["phone"])
	assert.True(t, snap.Terminal)
}

func TestPlay_StopsAtEndOfInput(t *testing.T) {
	flow, err := flowyaml.Parse([]byte(playFlow))
	require.NoError(t, err)

	session := newPlaySession(t)
	var out bytes.Buffer
	require.NoError(t, play(context.Background(), session, &flow, strings.NewReader(""), &out))

	snap := session.Snapshot()
	require.NotNil(t, snap.CurrentStep)
	assert.Equal(t, "welcome", snap.CurrentStep.StepKey)
}

func TestResolveAnswer(t *testing.T) {
	step := runtime.ChatStep{StepType: runtime.StepTypeOptions, Options: []string{"Billing", "Other"}}

	assert.Equal(t, "Billing", resolveAnswer(step, "1"))
	assert.Equal(t, "Other", resolveAnswer(step, "2"))
	assert.Equal(t, "3", resolveAnswer(step, "3"))
	assert.Equal(t, "Billing", resolveAnswer(step, "Billing"))

	input := runtime.ChatStep{StepType: runtime.StepTypeInput}
	assert.Equal(t, "1", resolveAnswer(input, "1"))
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(playFlow), 0o644))

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	require.NoError(t, runValidate(validateCmd, []string{dir}))
	assert.Contains(t, out.String(), "good.yaml: ok")
}

func TestValidateCommand_ReportsErrors(t *testing.T) {
	dir := t.TempDir()
	bad := `
steps:
  - step_key: a
    step_type: apiCall
    message_text: A
    is_initial: true
    api_config:
      endpoint: /x
      next_step_logic:
        conditions:
          - when: "a =="
            next_step: a
  - step_key: a
    step_type: message
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644))

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	err := runValidate(validateCmd, []string{filepath.Join(dir, "bad.yaml")})
	require.Error(t, err)

	text := out.String()
	assert.Contains(t, text, "bad.yaml: invalid")
	assert.Contains(t, text, string(runtime.ErrorCodeDuplicateStep))
	assert.Contains(t, text, "error compiling")
}

func TestValidateCommand_ExampleProject(t *testing.T) {
	var out bytes.Buffer
	validateCmd.SetOut(&out)
	require.NoError(t, runValidate(validateCmd, []string{"../../docs/examples/support-widget/flows"}))
	assert.Contains(t, out.String(), "support.yaml: ok")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATFLOW_TEST_VAR=loaded\n"), 0o644))
	t.Setenv("CHATFLOW_TEST_VAR", "")
	os.Unsetenv("CHATFLOW_TEST_VAR")

	require.NoError(t, loadEnvFile(dir, ".env"))
	assert.Equal(t, "loaded", os.Getenv("CHATFLOW_TEST_VAR"))

	assert.NoError(t, loadEnvFile(dir, "missing.env"))
}

func TestDependencies_CloseRunsInReverse(t *testing.T) {
	var order []string
	deps := &dependencies{closers: []func() error{
		func() error { order = append(order, "backend"); return nil },
		func() error { order = append(order, "postgres"); return errors.New("already closed") },
	}}

	deps.close(slog.New(slog.NewTextHandler(io.Discard, nil)))
	deps.close(slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, []string{"postgres", "backend"}, order)
}

func TestDependencies_AbandonSkipsClosers(t *testing.T) {
	closed := false
	deps := &dependencies{closers: []func() error{func() error { closed = true; return nil }}}
	l := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps.abandon(l, context.DeadlineExceeded)
	deps.close(l)

	assert.False(t, closed)
}
