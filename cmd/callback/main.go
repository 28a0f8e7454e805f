// Stand-alone callback receiver and dashboard API, for deployments where the
// HTTP surface must be reachable from the platform network while the
// orchestration loop runs elsewhere against the same database.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	http_handler "botfleet/internal/adapters/handler/http"
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
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting botfleet callback receiver", "version", version)

	if cfg.EnableTracing {
		shutdownTracing, err := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

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

	_, redisClient, err := redis_store.Open(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to init redis", "error", err)
		log.Fatalf("failed to init redis: %v", err)
	}
	defer redisClient.Close()

	healthService := services.NewHealthService(gateway, redisClient, nil, version)

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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down")
}
