// Command flowline runs the workflow execution service: an HTTP API
// for ad-hoc and scheduled automation graph runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowlinehq/flowline/internal/email"
	"github.com/flowlinehq/flowline/internal/engine"
	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/internal/llm"
	"github.com/flowlinehq/flowline/internal/logging"
	"github.com/flowlinehq/flowline/internal/nodes"
	"github.com/flowlinehq/flowline/internal/scheduler"
	"github.com/flowlinehq/flowline/internal/server"
	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/internal/streaming"
)

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		printVersion()
		return
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	registry := llm.NewRegistry()
	if cfg.OpenAIAPIKey != "" {
		registry.RegisterProvider(llm.ProviderOpenAI, llm.NewOpenAIGenerator(cfg.OpenAIAPIKey))
		logger.Info("openai provider configured")
	} else {
		logger.Warn("OPENAI_API_KEY not set, aiAgent nodes will fail")
	}

	var sender email.Sender
	if cfg.EmailEndpoint != "" {
		sender = email.NewHTTPSender(cfg.EmailEndpoint, cfg.EmailAPIKey)
		logger.Info("email sender configured", slog.String("endpoint", cfg.EmailEndpoint))
	} else {
		logger.Warn("email endpoint not set, email nodes will fail")
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	executor := nodes.NewExecutor(nodes.Config{
		Registry: registry,
		Email:    sender,
		CEL:      celEngine,
		JQ:       expressions.NewGoJQEngine(),
		Logger:   logger,
	})
	eng := engine.New(executor, hub, logger)
	runs := server.NewRunService(st, eng, hub, logger)

	sched := scheduler.New(st, runs, cfg.SchedulerWorkers, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed job recovery failed", slog.String("error", err.Error()))
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	srv := server.New(server.Deps{
		Store:     st,
		Runs:      runs,
		Hub:       hub,
		Scheduler: sched,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
