package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BDNK1/chatflow/cli/internal/config"
	httpplugin "github.com/BDNK1/chatflow/plugins/http"
	"github.com/BDNK1/chatflow/plugins/postgres"
	"github.com/BDNK1/chatflow/plugins/redis"
	"github.com/BDNK1/chatflow/runtime"
	flowyaml "github.com/BDNK1/chatflow/runtime/engine/yaml"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	envFile string
	port    string
)

var serveCmd = &cobra.Command{
	Use:   "serve [project-dir]",
	Short: "Serve widget and preview sessions over HTTP",
	Long: `Serve reads flow-config.yaml from the project directory and starts the
HTTP server. Flows come from the backend when a backend section is configured,
otherwise from the flows directory.

Example:
  chatflow serve .
  chatflow serve ./support --env-file .env.local --port 9090
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config (ignored if missing)")
	serveCmd.Flags().StringVar(&port, "port", "", "HTTP port, overrides server.port")
}

func runServe(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	if err := loadEnvFile(projectDir, envFile); err != nil {
		return err
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	l := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(l)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer deps.close(l)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := runtime.NewApp(l, cfg.Runtime, runtime.AppOptions{
		Flows:      deps.flows,
		Starter:    deps.starter,
		Gateway:    deps.gateway,
		Sink:       deps.sink,
		Evaluator:  flowyaml.NewExpressionEvaluator(),
		Registerer: registry,
	})

	gin.SetMode(cfg.Server.Mode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": app.Manager.Len()})
	})
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	app.Register(g.Group("/api"))

	go app.RunSweeper(ctx, cfg.Server.SweepInterval, cfg.Server.SessionIdleTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Server listening", "name", cfg.Name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	srvErr := srv.Shutdown(shutdownCtx)
	appErr := app.Shutdown(shutdownCtx)
	if appErr != nil {
		deps.abandon(l, appErr)
	}
	return errors.Join(srvErr, appErr)
}

func loadEnvFile(projectDir, name string) error {
	if name == "" {
		return nil
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, name)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

type dependencies struct {
	flows   runtime.FlowRepository
	starter runtime.SessionStarter
	gateway runtime.SideEffectGateway
	sink    runtime.TranscriptSink
	closers []func() error
}

// buildDependencies connects the configured backend and transcript stores.
func buildDependencies(ctx context.Context, cfg *config.FlowConfig, l *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}
	var sinks runtime.MultiSink

	if cfg.Backend != nil {
		client := httpplugin.NewClient(*cfg.Backend, l)
		deps.flows = client
		deps.starter = client
		deps.gateway = client
		sinks = append(sinks, client)
		deps.closers = append(deps.closers, client.Shutdown)
		l.Info("Using backend", "base_url", cfg.Backend.BaseURL)
	} else {
		repo, err := flowyaml.NewDirRepository(cfg.Flows.Dir, flowyaml.NewFlowLoader())
		if err != nil {
			return nil, fmt.Errorf("failed to load flows: %w", err)
		}
		deps.flows = repo
		l.Info("Using local flows", "dir", cfg.Flows.Dir, "count", len(repo.List()))
	}

	if cfg.Postgres != nil {
		sink, err := postgres.Open(ctx, *cfg.Postgres, l)
		if err != nil {
			deps.close(l)
			return nil, err
		}
		sinks = append(sinks, sink)
		deps.closers = append(deps.closers, sink.Close)
	}

	if cfg.Redis != nil {
		sink, err := redis.Open(ctx, *cfg.Redis, l)
		if err != nil {
			deps.close(l)
			return nil, err
		}
		sinks = append(sinks, sink)
		deps.closers = append(deps.closers, sink.Close)
	}

	switch len(sinks) {
	case 0:
	case 1:
		deps.sink = sinks[0]
	default:
		deps.sink = sinks
	}
	return deps, nil
}

func (d *dependencies) close(l *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			l.Warn("Error closing dependency", "error", err)
		}
	}
	d.closers = nil
}

// abandon skips closing the stores. Used when the transcript queue did not drain
// in time: its workers still hold the sinks and the process is about to exit.
func (d *dependencies) abandon(l *slog.Logger, cause error) {
	l.Warn("Transcript queue not drained, leaving stores open", "pending_closers", len(d.closers), "error", cause)
	d.closers = nil
}
