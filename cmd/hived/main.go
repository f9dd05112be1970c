// Command hived is the HIVE tool-execution server: the authenticated HTTP
// endpoint that dispatches tool executions and audits every attempt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/builtin"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/config"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/exec"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/health"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/mcpbridge"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/observe"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/resilience"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/sandbox"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/server"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/usage"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultListenAddr      = ":8080"
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	shutdownTimeout        = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hived: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hived: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it without
	// replacing the handler.
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hived starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr(cfg),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hived",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to create database pool", "err", err)
		return 1
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "err", err)
		return 1
	}
	if cfg.Database.SeedSystemTools {
		if err := st.SeedSystemTools(ctx); err != nil {
			slog.Error("failed to seed system tools", "err", err)
			return 1
		}
		slog.Info("system tool catalogue seeded")
	}

	// ── Execution pipeline ────────────────────────────────────────────────────
	usageLogger := usage.New(st, logger, usage.Config{
		Buffer: cfg.Limits.UsageBuffer,
		OnDrop: func() { metrics.RecordUsageDrop(context.Background()) },
	})

	breakerThreshold := cfg.Limits.BreakerThreshold
	if breakerThreshold <= 0 {
		breakerThreshold = defaultBreakerFailures
	}
	breakerCooldown := cfg.Limits.BreakerCooldown
	if breakerCooldown <= 0 {
		breakerCooldown = defaultBreakerCooldown
	}

	builtins := builtin.New(builtin.Config{
		Breakers:       resilience.NewHostSet(breakerThreshold, breakerCooldown),
		SearchEndpoint: cfg.Search.Endpoint,
		SearchTimeout:  cfg.Limits.SearchTimeout,
		HTTPTimeout:    cfg.Limits.HTTPTimeout,
		MaxBodyChars:   cfg.Limits.MaxBodyChars,
	})

	gate := auth.NewGate(st)
	executor := exec.New(
		builtins.Registry(),
		sandbox.New(cfg.Limits.SandboxTimeout),
		usageLogger,
		metrics,
		logger,
	)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.Checker{Name: "database", Check: pool.Ping},
	)
	srv := server.New(gate, executor, server.Config{
		AllowedOrigin: cfg.CORS.AllowedOrigin,
		Metrics:       metrics,
		Health:        healthHandler,
		Log:           logger,
	})

	handler := srv.Handler()
	if cfg.MCP.Enabled {
		handler, err = mountMCP(ctx, cfg, st, gate, executor, handler, logger)
		if err != nil {
			slog.Error("failed to start mcp bridge", "err", err)
			return 1
		}
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.CORSChanged {
			srv.SetAllowedOrigin(d.NewAllowedOrigin)
			slog.Info("cors origin updated", "origin", d.NewAllowedOrigin)
		}
		if d.LimitsChanged {
			slog.Info("limits changed; applies to new components only")
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Serve ─────────────────────────────────────────────────────────────────
	httpServer := &http.Server{
		Addr:    listenAddr(cfg),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", httpServer.Addr)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, draining…")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := usageLogger.Close(drainCtx); err != nil {
		slog.Warn("usage logger drain error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// mountMCP wraps the main handler in a mux that also serves the MCP endpoint.
func mountMCP(ctx context.Context, cfg *config.Config, st store.Store, gate *auth.Gate, executor *exec.Executor, main http.Handler, logger *slog.Logger) (http.Handler, error) {
	bridge, err := mcpbridge.New(mcpbridge.Config{
		Store:        st,
		Gate:         gate,
		Runner:       executor,
		ServiceToken: cfg.MCP.ServiceToken,
		Version:      version,
		Log:          logger,
	})
	if err != nil {
		return nil, err
	}
	mcpServer, err := bridge.Server(ctx)
	if err != nil {
		return nil, err
	}

	path := cfg.MCP.Path
	if path == "" {
		path = "/mcp"
	}
	mux := http.NewServeMux()
	mux.Handle(path, mcpbridge.HTTPHandler(mcpServer))
	mux.Handle("/", main)
	slog.Info("mcp endpoint enabled", "path", path)
	return mux, nil
}

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return defaultListenAddr
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
