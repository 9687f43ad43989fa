package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lmittmann/tint"

	"github.com/hypersignal/backend/internal/agent"
	"github.com/hypersignal/backend/internal/api"
	"github.com/hypersignal/backend/internal/columnar"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/ingest"
	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/orchestrator"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("HYPERSIGNAL_CONFIG")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging.Level)

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	ctx := context.Background()

	meta, err := metastore.OpenSQLite(ctx, cfg.Storage.MetadataPath)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer meta.Close()

	store, err := columnar.NewStore(cfg.Storage.StoreDirectory)
	if err != nil {
		return fmt.Errorf("initializing columnar store: %w", err)
	}

	eng := engine.NewEngine(cfg, store, log)
	defer eng.Close()

	ingestor := ingest.NewIngestor(cfg, meta, store, log)

	llm := agent.NewAnthropicClient(cfg.Agent, log)
	ag := agent.New(llm, cfg.Agent, log)
	sugg := agent.NewSuggester(meta, llm, cfg.Agent, log)
	defer sugg.Close()

	orch := orchestrator.New(meta, eng, ag, sugg, cfg, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Logging.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/health" || strings.HasSuffix(path, "/stream")
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/stream") ||
				strings.Contains(path, "/upload") ||
				path == "/api/chat/message" ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/stream") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Meta:         meta,
		Ingestor:     ingestor,
		Engine:       eng,
		Conversation: orch,
		Suggestions:  sugg,
		StoreCleanup: store.Delete,
		Version:      Version,
	})
	api.RegisterRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", cfg.GetServerAddr(),
			"version", Version,
			"build_time", BuildTime,
			"config", configPath,
			"store_dir", cfg.Storage.StoreDirectory)
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.RFC3339,
	}))
}
