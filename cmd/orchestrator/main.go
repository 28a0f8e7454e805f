package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	http_handler "botfleet/internal/adapters/handler/http"
	"botfleet/internal/adapters/notifier"
	"botfleet/internal/adapters/platform"
	"botfleet/internal/adapters/repository/pg"
	redis_store "botfleet/internal/adapters/store/redis"
	"botfleet/internal/config"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/retry"
	"botfleet/internal/core/services"
	"botfleet/internal/core/tracing"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize structured logger
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting botfleet orchestrator", "version", version)

	// Initialize tracing
	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	// An unreachable database at startup is fatal by contract.
	dbPolicy := retry.Policy{
		MaxAttempts: cfg.DBMaxRetries,
		BaseDelay:   cfg.DBRetryBaseDelay,
		Multiplier:  2,
	}
	gateway, err := pg.Open(cfg.DatabaseURL, dbPolicy, cfg.RetryableSQLStates)
	if err != nil {
		logger.Error("Failed to init postgres", "error", err)
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer gateway.Close()

	orphans, redisClient, err := redis_store.Open(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to init redis", "error", err)
		log.Fatalf("failed to init redis: %v", err)
	}
	defer redisClient.Close()

	platformClient := platform.New(platform.Config{
		BaseURL:        cfg.PlatformURL,
		Username:       cfg.PlatformUser,
		Password:       cfg.PlatformPassword,
		APIKey:         cfg.PlatformAPIKey,
		CallbackURL:    cfg.PlatformCallbackURL,
		CallbackSecret: cfg.CallbackSecret,
		Timeout:        cfg.PlatformTimeout,
		TokenRefresh:   cfg.PlatformTokenRefresh,
		PageSize:       cfg.PlatformPageSize,
		MaxPages:       cfg.PlatformMaxPages,
	})
	defer platformClient.Close()

	mailer := notifier.New(notifier.Config{
		Server:     cfg.SMTPServer,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		Recipients: cfg.SMTPRecipients,
		Cooldown:   cfg.AlertCooldown,
	})

	blackout, err := services.ParseBlackoutWindow(cfg.BlackoutStart, cfg.BlackoutEnd)
	if err != nil {
		log.Fatalf("invalid blackout window: %v", err)
	}

	synchronizer := services.NewSynchronizer(platformClient, gateway)
	deployer := services.NewDeployer(platformClient, gateway, orphans, services.DeployerConfig{
		MaxRetries:         cfg.DeployMaxRetries,
		RetryDelay:         cfg.DeployRetryDelay,
		InputTemplateLoops: cfg.InputTemplateLoops,
		Blackout:           blackout,
	}, platform.DeployRetryable)
	reconciler := services.NewReconciler(platformClient, gateway, orphans, services.ReconcilerConfig{
		MinAge:            cfg.ReconcileMinAge,
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		OrphanMaxAttempts: cfg.OrphanMaxAttempts,
	})

	orchestrator := services.NewOrchestrator(synchronizer, deployer, reconciler, gateway, mailer, services.OrchestratorConfig{
		SyncInterval:      cfg.SyncInterval,
		DeployInterval:    cfg.DeployInterval,
		ReconcileInterval: cfg.ReconcileInterval,
		SyncEnabled:       cfg.SyncEnabled,
	})

	healthService := services.NewHealthService(gateway, redisClient, orchestrator, version)

	httpServer := http_handler.NewServer(gateway, http_handler.Repositories{
		Robots:      gateway,
		Assignments: gateway,
		Schedules:   gateway,
		Executions:  gateway,
	}, healthService, cfg.CallbackSecret)

	go func() {
		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
			logger.Error("HTTP server failed", "error", err)
			log.Fatalf("failed to serve http: %v", err)
		}
	}()

	if err := orchestrator.Start(context.Background()); err != nil {
		log.Fatalf("failed to start orchestrator: %v", err)
	}

	// Graceful shutdown: let the in-flight sub-task cycle finish.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	orchestrator.Stop()
}
