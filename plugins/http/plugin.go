package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BDNK1/chatflow/runtime"
	"github.com/go-resty/resty/v2"
)

// Config holds the backend client configuration with declarative tags
type Config struct {
	BaseURL     string        `yaml:"base_url" validate:"required,url_format"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1ms"`
	// MaxRetries applies to flow fetches only.
	MaxRetries  int           `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" default:"false"`
	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key"`

	ActiveFlowPath   string `yaml:"active_flow_path" default:"/chat-flows/active"`
	FlowPath         string `yaml:"flow_path" default:"/chat-flows/{id}"`
	SessionStartPath string `yaml:"session_start_path" default:"/chat/session/start"`
	MessageSavePath  string `yaml:"message_save_path" default:"/chat/message/save"`
}

// Client talks to the support backend. It is the flow repository, session starter,
// side-effect gateway and transcript sink of the widget.
//
// Only flow fetches are retried. Session starts, step calls and transcript saves
// are sent once.
type Client struct {
	Config Config
	l      *slog.Logger
	reads  *resty.Client
	writes *resty.Client
	closed atomic.Bool
}

var (
	_ runtime.FlowRepository    = (*Client)(nil)
	_ runtime.SessionStarter    = (*Client)(nil)
	_ runtime.SideEffectGateway = (*Client)(nil)
	_ runtime.TranscriptSink    = (*Client)(nil)
)

var (
	// ErrStatus is wrapped by every error caused by a non-2xx response.
	ErrStatus = errors.New("unexpected response status")
	// ErrClosed is returned by every call made after Shutdown.
	ErrClosed = errors.New("backend client is shut down")
)

// NewClient creates a client from a validated config.
func NewClient(cfg Config, l *slog.Logger) *Client {
	reads := configure(resty.New(), cfg).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond)
	writes := configure(resty.NewWithClient(reads.GetClient()), cfg)

	return &Client{Config: cfg, l: l, reads: reads, writes: writes}
}

func configure(c *resty.Client, cfg Config) *resty.Client {
	c.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetDebug(cfg.Debug).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return c
}

func (c *Client) request(ctx context.Context, rc *resty.Client) (*resty.Request, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return rc.R().SetContext(ctx), nil
}

// flowEnvelope accepts both a bare flow and the backend's {"data": flow} wrapper.
type flowEnvelope struct {
	Data *runtime.ChatFlow `json:"data"`
	runtime.ChatFlow
}

func (c *Client) Active(ctx context.Context) (*runtime.ChatFlow, error) {
	return c.fetchFlow(ctx, c.Config.ActiveFlowPath)
}

func (c *Client) Get(ctx context.Context, id string) (*runtime.ChatFlow, error) {
	return c.fetchFlow(ctx, strings.ReplaceAll(c.Config.FlowPath, "{id}", url.PathEscape(id)))
}

func (c *Client) fetchFlow(ctx context.Context, path string) (*runtime.ChatFlow, error) {
	req, err := c.request(ctx, c.reads)
	if err != nil {
		return nil, err
	}
	var env flowEnvelope
	resp, err := req.SetResult(&env).Get(path)
	if err != nil {
		return nil, fmt.Errorf("flow request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: %w: %s", path, ErrStatus, resp.Status())
	}
	if env.Data != nil {
		return env.Data, nil
	}
	flow := env.ChatFlow
	return &flow, nil
}

func (c *Client) StartSession(ctx context.Context) (runtime.ChatSession, error) {
	req, err := c.request(ctx, c.writes)
	if err != nil {
		return runtime.ChatSession{}, err
	}
	var cs runtime.ChatSession
	resp, err := req.
		SetBody(map[string]any{}).
		SetResult(&cs).
		Post(c.Config.SessionStartPath)
	if err != nil {
		return runtime.ChatSession{}, fmt.Errorf("session start failed: %w", err)
	}
	if resp.IsError() {
		return runtime.ChatSession{}, fmt.Errorf("POST %s: %w: %s", c.Config.SessionStartPath, ErrStatus, resp.Status())
	}
	if cs.SessionToken == "" {
		return runtime.ChatSession{}, errors.New("session start returned no sessionToken")
	}
	return cs, nil
}

// Call sends payload to a step endpoint and returns the raw response body.
// Endpoints may be absolute URLs or paths relative to the base URL.
func (c *Client) Call(ctx context.Context, endpoint, method string, payload any) ([]byte, error) {
	req, err := c.request(ctx, c.writes)
	if err != nil {
		return nil, err
	}
	if method != "GET" && method != "DELETE" {
		req.SetBody(payload)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, endpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s %s: %w: %s", method, endpoint, ErrStatus, resp.Status())
	}
	return resp.Body(), nil
}

// MessageSave is the body of one transcript save call.
type MessageSave struct {
	SessionToken string             `json:"sessionToken"`
	MessageType  runtime.Sender     `json:"messageType"`
	Content      string             `json:"content"`
	StepKey      string             `json:"stepKey"`
	MessageData  MessageSaveDetails `json:"messageData"`
}

type MessageSaveDetails struct {
	MessageID string              `json:"messageId"`
	Type      runtime.MessageType `json:"type,omitempty"`
	Options   []string            `json:"options,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	UserData  map[string]string   `json:"userData"`
}

func (c *Client) Record(ctx context.Context, rec runtime.Record) error {
	req, err := c.request(ctx, c.writes)
	if err != nil {
		return err
	}
	body := MessageSave{
		SessionToken: rec.SessionToken,
		MessageType:  rec.Message.Sender,
		Content:      rec.Message.Text,
		StepKey:      rec.StepKey,
		MessageData: MessageSaveDetails{
			MessageID: rec.Message.ID,
			Type:      rec.Message.Type,
			Options:   rec.Message.Options,
			Timestamp: rec.Message.Timestamp,
			UserData:  rec.UserData,
		},
	}

	resp, err := req.SetBody(body).Post(c.Config.MessageSavePath)
	if err != nil {
		return fmt.Errorf("message save failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("POST %s: %w: %s", c.Config.MessageSavePath, ErrStatus, resp.Status())
	}
	return nil
}

// Shutdown makes every later call fail with ErrClosed and drops idle connections.
// Calls already in flight finish normally.
func (c *Client) Shutdown() error {
	if c.closed.CompareAndSwap(false, true) {
		c.reads.GetClient().CloseIdleConnections()
	}
	return nil
}
