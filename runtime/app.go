package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// App wires the widget and preview engines, the session manager and the HTTP handler.
type App struct {
	l       *slog.Logger
	Config  Config
	Metrics *Metrics
	Widget  *Engine
	Preview *Engine
	Manager *Manager
	Handler *HttpHandler
}

// AppOptions are the collaborators of an App. Every field is optional: without
// Flows widget sessions are unavailable, without Starter session tokens are
// generated locally, and without Gateway apiCall steps fail with an apology.
type AppOptions struct {
	Flows      FlowRepository
	Starter    SessionStarter
	Gateway    SideEffectGateway
	Sink       TranscriptSink
	Evaluator  ConditionEvaluator
	Registerer prometheus.Registerer
}

func NewApp(l *slog.Logger, cfg Config, opts AppOptions) *App {
	var metrics *Metrics
	if opts.Registerer != nil {
		metrics = NewMetrics(opts.Registerer)
	}

	common := []Option{WithGateway(opts.Gateway), WithMetrics(metrics)}
	if opts.Evaluator != nil {
		common = append(common, WithEvaluator(opts.Evaluator))
	}

	widgetOpts := common
	if opts.Sink != nil {
		widgetOpts = append(widgetOpts[:len(widgetOpts):len(widgetOpts)], WithTranscriptSink(opts.Sink))
	}
	previewOpts := append(common[:len(common):len(common)], WithTranscriptSink(LogSink{L: l.With("preview", true)}))

	app := &App{
		l:       l,
		Config:  cfg,
		Metrics: metrics,
		Widget:  NewEngine(l, cfg, widgetOpts...),
		Preview: NewEngine(l, cfg, previewOpts...),
		Manager: NewManager(metrics),
	}
	app.Handler = NewHttpHandler(l, app.Widget, app.Preview, app.Manager, opts.Flows, opts.Starter)
	return app
}

func (a *App) Register(g gin.IRouter) {
	a.Handler.Register(g)
}

// RunSweeper closes idle sessions every interval until ctx is done.
func (a *App) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.Manager.Sweep(now, maxIdle); n > 0 {
				a.l.Info("Closed idle sessions", "count", n, "remaining", a.Manager.Len())
			}
		}
	}
}

// Shutdown closes every session and flushes the transcript queues until ctx is done.
func (a *App) Shutdown(ctx context.Context) error {
	a.Manager.CloseAll()
	return errors.Join(a.Widget.Close(ctx), a.Preview.Close(ctx))
}
