package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/store/sheets"
	"financas/internal/store/sqlite"
	"financas/internal/syncer"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting financas-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	localRepo, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer localRepo.Close()

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required, the worker has no mirror target without it")
		os.Exit(1)
	}
	remote, err := sheets.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	// Remote pushes go through the syncer so message bursts for one
	// collection collapse into a single Sheets write.
	sy := syncer.New(remote, syncer.WithConcurrency(2))
	mirror := worker.NewMirror(localRepo, remote, worker.WithQueue(sy))

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on the periodic mirror only", "error", err)
		} else {
			defer amqpClient.Close()
		}
	} else {
		logger.Info("AMQP disabled, relying on the periodic mirror only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sy.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Syncer stopped", "error", err)
		}
	}()

	// Catch up on anything written while the worker was down.
	logger.Info("Running startup mirror pass")
	if err := mirror.MirrorAll(ctx); err != nil {
		logger.Warn("Startup mirror incomplete", "error", err)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeCollectionSync(ctx, func(msg *amqp.CollectionSyncMessage) error {
				return mirror.HandleSyncMessage(ctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				cancel()
			}
		}()
	}

	go func() {
		if err := mirror.RunPeriodic(ctx, cfg.MirrorInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Periodic mirror stopped", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Worker context cancelled")
	}

	cancel()

	// Give in-flight deliveries a moment to finish before the deferred
	// closes run.
	time.Sleep(2 * time.Second)
	logger.Info("Worker stopped")
}
