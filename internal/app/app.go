// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package app wires configuration, storage, the event broker, and the HTTP
// API into a runnable service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sarahliz0715/Tandril-sub000/internal/api"
	"github.com/sarahliz0715/Tandril-sub000/internal/api/handlers"
	"github.com/sarahliz0715/Tandril-sub000/internal/api/middleware"
	"github.com/sarahliz0715/Tandril-sub000/internal/events"
	"github.com/sarahliz0715/Tandril-sub000/internal/models"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/crypto"
	"github.com/sarahliz0715/Tandril-sub000/internal/pkg/logger"
	"github.com/sarahliz0715/Tandril-sub000/internal/platform"
	"github.com/sarahliz0715/Tandril-sub000/internal/repository/postgres"
	"github.com/sarahliz0715/Tandril-sub000/internal/repository/redis"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/command"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/executor"
	"github.com/sarahliz0715/Tandril-sub000/internal/services/undo"
)

// Application holds the wired components for shutdown ordering.
type Application struct {
	Config *Config
	Logger *logger.Logger
	DB     *postgres.DB
	Redis  *redis.Client
	Events *events.Client
	Server *api.Server
}

// Run starts the application and blocks until a shutdown signal arrives.
func Run(cfgFile string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, logger.OutputConfig{
		Output: cfg.Logging.Output,
		Path:   cfg.Logging.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting tandril",
		"version", Version,
		"commit", Commit,
	)

	// PostgreSQL
	log.Info("Connecting to PostgreSQL...")
	db, err := postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()
	log.Info("PostgreSQL connected")

	log.Info("Running database migrations...")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Migrations completed")

	// Redis
	log.Info("Connecting to Redis...")
	rdb, err := redis.New(ctx, cfg.Redis.URL, redis.Options{
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rdb.Close()
	log.Info("Redis connected")

	// NATS is optional: without a broker, command events are dropped.
	var nc *events.Client
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...")
		nc = events.NewClient(events.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			Token:         cfg.NATS.Token,
			Username:      cfg.NATS.Username,
			Password:      cfg.NATS.Password,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, log.Base())
		if err := nc.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		log.Info("NATS connected", "url", cfg.NATS.URL)
	}

	app := &Application{
		Config: cfg,
		Logger: log,
		DB:     db,
		Redis:  rdb,
		Events: nc,
	}

	if err := app.startServer(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("tandril started successfully",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		return err
	}

	log.Info("tandril stopped gracefully")
	return nil
}

// startServer wires repositories, services, and handlers, then starts the
// HTTP listener in the background.
func (app *Application) startServer() error {
	cfg := app.Config
	log := app.Logger

	// Repositories
	commandRepo := postgres.NewCommandRepository(app.DB)
	historyRepo := postgres.NewHistoryRepository(app.DB)
	connectionRepo := postgres.NewConnectionRepository(app.DB)

	// Token encryption
	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	// Platform client factory with the configured per-call timeout
	factory := platform.ClientFactory(func(conn *models.PlatformConnection, token string) platform.API {
		return platform.NewClient(
			fmt.Sprintf("https://%s/admin/api", conn.ShopDomain),
			token,
			platform.WithTimeout(cfg.Executor.PlatformTimeout),
		)
	})

	// Services
	execSvc := executor.NewService(executor.Config{
		MaxConcurrency: cfg.Executor.MaxConcurrency,
	}, log.Named("executor"))

	undoSvc := undo.NewService(
		commandRepo, historyRepo, connectionRepo,
		encryptor, factory,
		log.Named("undo"),
	)

	var publisher events.Publisher = events.NopPublisher{}
	if app.Events != nil {
		publisher = events.NewPublisher(app.Events, log.Base().Named("events"))
	}

	commandSvc := command.NewService(
		commandRepo, historyRepo, connectionRepo,
		encryptor, factory,
		execSvc, undoSvc,
		app.Redis, app.Redis, publisher,
		command.Config{
			LockTTL:    cfg.Commands.LockTTL,
			PreviewTTL: cfg.Commands.PreviewTTL,
		},
		log.Named("command"),
	)

	// HTTP server
	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.IdleTimeout = cfg.Server.IdleTimeout
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverCfg.Version = Version
	serverCfg.Commit = Commit
	serverCfg.BuildTime = BuildTime
	serverCfg.Logger = log.Named("http")
	serverCfg.RouterConfig.RequestTimeout = cfg.Server.RequestTimeout
	serverCfg.RouterConfig.EnableDebugLogging = cfg.Server.DebugLogging
	if len(cfg.CORS.AllowedOrigins) > 0 {
		serverCfg.RouterConfig.CORSConfig = middleware.CORSFromOrigins(strings.Join(cfg.CORS.AllowedOrigins, ","), true)
	}

	server := api.NewServer(serverCfg)
	server.Handlers().Command = handlers.NewCommandHandler(commandSvc, log.Named("api.commands"))
	server.Handlers().Connection = handlers.NewConnectionHandler(connectionRepo, encryptor, log.Named("api.connections"))
	server.Handlers().WhatIf = handlers.NewWhatIfHandler(connectionRepo, encryptor, factory, log.Named("api.whatif"))

	// Health checks cover every external dependency the pipeline touches.
	server.RegisterHealthChecker("postgres", handlers.PingHealthChecker(app.DB.Ping))
	server.RegisterHealthChecker("redis", handlers.PingHealthChecker(app.Redis.Ping))
	if app.Events != nil {
		server.RegisterHealthChecker("nats", handlers.PingHealthChecker(app.Events.Health))
	}

	server.Setup()

	errCh := server.StartAsync()
	go func() {
		if err := <-errCh; err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	}()

	app.Server = server
	return nil
}
