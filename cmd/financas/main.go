package main

import (
	"context"
	"os"
	"time"

	"financas/internal/amqp"
	"financas/internal/backend"
	"financas/internal/cli"
	apphttp "financas/internal/http"
	"financas/internal/session"
	"financas/internal/store"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting financas server")

	cfg := cli.LoadAndValidateConfig(logger)

	res, err := backend.Build(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Data backend initialized", "backend", cfg.DataBackend)

	var sessionOpts []session.Option
	if cfg.AutoSync {
		sessionOpts = append(sessionOpts, session.WithAutoSync())
	}
	sessions := session.NewManager(res.Store, sessionOpts...)

	opts := []apphttp.Option{
		apphttp.WithReadyCheck(func(ctx context.Context) error {
			_, err := res.Store.Load(ctx, "_readyz", store.KindExpenses)
			return err
		}),
	}

	// AMQP is optional; without it the mirror worker relies on its periodic
	// pass alone.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, mutations will not notify the mirror worker", "error", err)
		} else {
			opts = append(opts, apphttp.WithNotifier(amqpClient))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, no sync messages will be published")
	}

	srv := apphttp.NewServer(":"+cfg.Port, sessions, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := sessions.CloseAll(shutdownCtx); err != nil {
			logger.Warn("Session flush during shutdown failed", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close failed", "error", err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", "error", err)
			}
		}
	})

	// Reap sessions nobody has touched in a while so their ledgers get
	// flushed and freed without waiting for shutdown.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := sessions.ExpireIdle(ctx, 30*time.Minute)
				if err != nil {
					logger.Warn("Idle session flush failed", "error", err)
				}
				if len(expired) > 0 {
					logger.Info("Expired idle sessions", "count", len(expired))
				}
			}
		}
	}()

	logger.Info("Server listening", "port", cfg.Port, "backend", cfg.DataBackend, "auto_sync", cfg.AutoSync)
	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
