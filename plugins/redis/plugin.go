package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BDNK1/chatflow/runtime"
	"github.com/go-redis/redis/v8"
)

// Config holds the Redis sink configuration
type Config struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0" validate:"gte=0,lte=15"`
	// ChannelPrefix is followed by the session token. Agent consoles subscribe to it.
	ChannelPrefix string `yaml:"channel_prefix" default:"chat:transcript:" validate:"required"`
	// HistoryTTL keeps a list of the last HistoryLimit events per session under
	// "<channel>:history" when positive, for consoles that join mid-conversation.
	HistoryTTL   time.Duration `yaml:"history_ttl" default:"0s" validate:"gte=0"`
	HistoryLimit int64         `yaml:"history_limit" default:"200" validate:"gte=1"`
}

// Sink publishes every transcript record on a per-session channel so live
// dashboards can follow a conversation.
type Sink struct {
	Config Config
	l      *slog.Logger
	client *redis.Client
}

var _ runtime.TranscriptSink = (*Sink)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, l *slog.Logger) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping %s: %w", cfg.Addr, err)
	}
	l.Info("Connected to transcript channel", "addr", cfg.Addr, "prefix", cfg.ChannelPrefix)
	return New(client, cfg, l), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config, l *slog.Logger) *Sink {
	return &Sink{Config: cfg, l: l, client: client}
}

// Event is the JSON published for one record.
type Event struct {
	SessionToken string              `json:"sessionToken"`
	MessageID    string              `json:"messageId"`
	Sender       runtime.Sender      `json:"sender"`
	Text         string              `json:"text"`
	Type         runtime.MessageType `json:"type,omitempty"`
	Options      []string            `json:"options,omitempty"`
	StepKey      string              `json:"stepKey,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

func (s *Sink) Channel(sessionToken string) string {
	return s.Config.ChannelPrefix + sessionToken
}

func (s *Sink) historyKey(sessionToken string) string {
	return s.Channel(sessionToken) + ":history"
}

func newEvent(rec runtime.Record) Event {
	return Event{
		SessionToken: rec.SessionToken,
		MessageID:    rec.Message.ID,
		Sender:       rec.Message.Sender,
		Text:         rec.Message.Text,
		Type:         rec.Message.Type,
		Options:      rec.Message.Options,
		StepKey:      rec.StepKey,
		Timestamp:    rec.Message.Timestamp,
	}
}

func (s *Sink) Record(ctx context.Context, rec runtime.Record) error {
	payload, err := json.Marshal(newEvent(rec))
	if err != nil {
		return fmt.Errorf("redis: failed to encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, s.Channel(rec.SessionToken), payload)
		if s.Config.HistoryTTL > 0 {
			key := s.historyKey(rec.SessionToken)
			p.RPush(ctx, key, payload)
			p.LTrim(ctx, key, -s.Config.HistoryLimit, -1)
			p.Expire(ctx, key, s.Config.HistoryTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish failed: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.l.Info("Closing transcript channel", "addr", s.Config.Addr)
	return s.client.Close()
}
