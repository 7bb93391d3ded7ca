package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"greevil/internal/amqp"
	"greevil/internal/auth"
	"greevil/internal/backend"
	"greevil/internal/cache"
	"greevil/internal/cli"
	apphttp "greevil/internal/http"
	applog "greevil/internal/log"
	"greevil/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid repository configuration", "error", err)
		os.Exit(1)
	}
	repo, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, applog.FieldBackend, bcfg.Type)
		os.Exit(1)
	}

	// Events are optional; a nil *amqp.Client must not reach the service as
	// a non-nil interface.
	var events services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			events = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	svc := services.NewExpenseService(repo.Repository, services.Options{
		Events:          events,
		ReportCacheSize: cfg.ReportCacheSize,
		ReportCacheTTL:  cfg.ReportCacheTTL,
	})

	srv := apphttp.NewServer(":"+cfg.Port, svc, auth.NewLocal(cfg.SessionTTL, repo.Credentials), apphttp.Options{
		Logger:    logger.WithComponent(applog.ComponentHTTP),
		RateLimit: cfg.RateLimit,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Warn("Repository close error", "error", err)
		}
	})

	if cfg.ReportCacheTTL > 0 {
		go cache.RunJanitor(ctx, cfg.ReportCacheTTL, svc.Reports())
	}

	logger.Info("Starting greevil server",
		"port", cfg.Port,
		applog.FieldBackend, svc.Backend(),
		"events_enabled", events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
