package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BDNK1/chatflow/runtime"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, runtime.InitializeConfig(&cfg, nil))

	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "chat:transcript:", cfg.ChannelPrefix)
	assert.Equal(t, time.Duration(0), cfg.HistoryTTL)
	assert.Equal(t, int64(200), cfg.HistoryLimit)
}

func TestConfigRejectsBadAddr(t *testing.T) {
	var cfg Config
	err := runtime.InitializeConfig(&cfg, map[string]any{"addr": "localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hostname_port")
}

func TestChannel(t *testing.T) {
	s := &Sink{Config: Config{ChannelPrefix: "chat:transcript:"}}
	assert.Equal(t, "chat:transcript:tok", s.Channel("tok"))
	assert.Equal(t, "chat:transcript:tok:history", s.historyKey("tok"))
}

func TestEventPayload(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := newEvent(runtime.Record{
		SessionToken: "tok",
		StepKey:      "phone",
		UserData:     map[string]string{"phone": "5551234567"},
		Message: runtime.Message{
			ID:        "m1",
			Text:      "5551234567",
			Sender:    runtime.SenderUser,
			Type:      runtime.MessageTypeInput,
			Timestamp: ts,
		},
	})

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sessionToken": "tok",
		"messageId": "m1",
		"sender": "user",
		"text": "5551234567",
		"type": "input",
		"stepKey": "phone",
		"timestamp": "2026-03-01T10:00:00Z"
	}`, string(data))
}

func TestOpenFailsWithoutServer(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:1", ChannelPrefix: "chat:transcript:"}
	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

var errCaptured = errors.New("captured")

// captureHook records every pipelined command and stops it before it reaches the network.
type captureHook struct {
	cmds []redis.Cmder
}

func (h *captureHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return ctx, errCaptured
}

func (h *captureHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	return nil
}

func (h *captureHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	h.cmds = append(h.cmds, cmds...)
	return ctx, errCaptured
}

func (h *captureHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	return nil
}

func (h *captureHook) names() []string {
	var out []string
	for _, c := range h.cmds {
		out = append(out, c.Name())
	}
	return out
}

func newCapturingSink(t *testing.T, cfg Config) (*Sink, *captureHook) {
	t.Helper()
	require.NoError(t, runtime.InitializeConfig(&cfg, nil))
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	hook := &captureHook{}
	client.AddHook(hook)

	s := New(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { s.Close() })
	return s, hook
}

func TestRecordPublishesOnly(t *testing.T) {
	s, hook := newCapturingSink(t, Config{})

	err := s.Record(context.Background(), runtime.Record{SessionToken: "tok", Message: runtime.Message{ID: "m1", Text: "hi"}})
	assert.ErrorIs(t, err, errCaptured)

	assert.Equal(t, []string{"multi", "publish", "exec"}, hook.names())
	args := hook.cmds[1].Args()
	assert.Equal(t, "chat:transcript:tok", args[1])

	var ev Event
	require.NoError(t, json.Unmarshal(args[2].([]byte), &ev))
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, "hi", ev.Text)
}

func TestRecordKeepsHistory(t *testing.T) {
	s, hook := newCapturingSink(t, Config{HistoryTTL: time.Hour, HistoryLimit: 50})

	err := s.Record(context.Background(), runtime.Record{SessionToken: "tok", Message: runtime.Message{ID: "m1"}})
	assert.ErrorIs(t, err, errCaptured)

	assert.Equal(t, []string{"multi", "publish", "rpush", "ltrim", "expire", "exec"}, hook.names())
	assert.Equal(t, "chat:transcript:tok:history", hook.cmds[2].Args()[1])
	assert.Equal(t, []any{"ltrim", "chat:transcript:tok:history", int64(-50), int64(-1)}, hook.cmds[3].Args())
	assert.Equal(t, "chat:transcript:tok:history", hook.cmds[4].Args()[1])
}
