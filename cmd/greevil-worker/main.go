package main

import (
	"context"
	"errors"
	"os"
	"time"

	"greevil/internal/amqp"
	"greevil/internal/backend"
	"greevil/internal/cli"
	"greevil/internal/config"
	applog "greevil/internal/log"
	ports "greevil/internal/sheets"
	gsheet "greevil/internal/sheets/google"
	"greevil/internal/sheets/memory"
	"greevil/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting greevil-worker")

	if cfg.RepositoryName == config.RepositoryMemory {
		logger.Error("The worker reads expenses from the shared repository; set REPOSITORY_NAME to sqlite or postgres")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" && cfg.ReconcileInterval == 0 {
		logger.Error("Nothing to do: set AMQP_URL, RECONCILE_INTERVAL, or both")
		os.Exit(1)
	}

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
	defer repo.Close()

	var exporter ports.ExpenseExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memory.New()
		logger.Info("Google Sheets disabled - exporting to an in-memory sheet")
	}

	exportWorker := worker.NewExportWorker(repo.Repository, exporter)

	var reconciler *worker.Reconciler
	var amqpClient *amqp.Client

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if reconciler != nil {
			if err := reconciler.Stop(shutdownCtx); err != nil {
				logger.Warn("Reconciler stop error", "error", err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
	})

	if cfg.ReconcileInterval > 0 {
		reconciler = worker.NewReconciler(exportWorker, cfg.ReconcileInterval)
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("Failed to start reconciler", "error", err)
			os.Exit(1)
		}
	}

	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		go func() {
			err := amqpClient.Consume(ctx, exportWorker.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
