package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/api"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/config"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/mcp"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/telemetry"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/tls"
)

func main() {
	ctx := context.Background()

	configFile := flag.String("config", "", "Path to config file")
	inMemory := flag.Bool("memory", false, "Keep manifests in memory instead of PostgreSQL")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Desk Builder service",
		"addr", cfg.Server.Addr,
		"tls", cfg.TLS.Enable,
		"generator", cfg.Generator.URL != "",
		"metrics", cfg.Metrics.Enable,
	)

	var store repository.ManifestStore
	if *inMemory {
		logger.Warn("Using in-memory manifest store; manifests are lost on exit")
		store = repository.NewMemoryManifestStore()
	} else {
		dbPool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer dbPool.Close()

		pgStore := repository.NewPostgresManifestStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure schema", "error", err)
			log.Fatalf("Schema initialization failed: %v", err)
		}
		store = pgStore
		logger.Info("Database connected", "host", cfg.DB.Host, "database", cfg.DB.Name)
	}

	opts := []services.Option{services.WithLogger(logger)}
	var metrics *telemetry.Provider
	if cfg.Metrics.Enable {
		metrics, err = telemetry.NewPrometheusProvider()
		if err != nil {
			log.Fatalf("Metrics initialization failed: %v", err)
		}
		otel.SetMeterProvider(metrics.MeterProvider())
		opts = append(opts, services.WithMeterProvider(metrics.MeterProvider()))
		defer func() { _ = metrics.Shutdown(context.Background()) }()
	}
	if cfg.Generator.URL != "" {
		opts = append(opts, services.WithGenerator(services.NewHTTPBlockGenerator(cfg.Generator.URL, cfg.Generator.Timeout)))
	}
	solutionService, err := services.NewSolutionService(store, opts...)
	if err != nil {
		log.Fatalf("Service initialization failed: %v", err)
	}

	apiServer := api.NewServer(solutionService, logger)
	apiServer.SeedRecords = cfg.Seed.Records

	e := api.NewRouter(apiServer)
	e.Use(otelecho.Middleware("desk-builder"))
	e.Use(middleware.Logger())
	if metrics != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(metrics.Handler()))
	}

	mcpServer := mcp.NewServer(solutionService)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer(), "/mcp")
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("REST and MCP handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.TLS.Enable {
		generated, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			logger.Error("Failed to prepare TLS certificate", "error", err)
			log.Fatalf("TLS initialization failed: %v", err)
		}
		if generated {
			logger.Warn("Generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
