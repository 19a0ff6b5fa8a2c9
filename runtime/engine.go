package runtime

import (
	"context"
	"log/slog"
	"time"
)

// Engine holds the collaborators shared by every session: the side-effect gateway,
// the transcript queue, the condition evaluator and metrics. One Engine serves both
// the customer widget and the admin preview.
type Engine struct {
	l         *slog.Logger
	cfg       Config
	gateway   SideEffectGateway
	sink      TranscriptSink
	evaluator ConditionEvaluator
	metrics   *Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	transcript *transcriptQueue
}

type Option func(*Engine)

func WithGateway(g SideEffectGateway) Option {
	return func(e *Engine) { e.gateway = g }
}

func WithTranscriptSink(s TranscriptSink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithEvaluator(ev ConditionEvaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSleeper replaces the typing delay wait. Tests use it to observe or skip the pause.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(l *slog.Logger, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		l:         l,
		cfg:       cfg,
		evaluator: EqualityEvaluator{},
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink != nil {
		e.transcript = newTranscriptQueue(l, e.sink, cfg, e.metrics)
	}
	return e
}

// Config returns the engine's session config.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewSession creates an empty session bound to the backend-issued token pair.
// Call Load on it to enter a flow.
func (e *Engine) NewSession(cs ChatSession) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		engine:     e,
		chat:       cs,
		userData:   NewUserData(),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: e.now(),
	}
}

// Close stops the transcript queue, waiting for queued records until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	if e.transcript == nil {
		return nil
	}
	return e.transcript.close(ctx)
}

func (e *Engine) record(rec Record) {
	if e.transcript == nil {
		return
	}
	e.transcript.enqueue(rec)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidateFlow checks flow with the engine's condition evaluator, so expressions
// it cannot compile make the flow invalid.
func (e *Engine) ValidateFlow(flow *ChatFlow) FlowReport {
	return ValidateFlowWith(flow, e.evaluator)
}
