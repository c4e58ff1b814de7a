// Package backend builds the configured Store implementation.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"financas/internal/config"
	"financas/internal/store"
	"financas/internal/store/memory"
	"financas/internal/store/sheets"
	"financas/internal/store/sqlite"
)

// Result bundles the built store with its cleanup hook. Cleanup may be nil.
type Result struct {
	Store   store.Store
	Cleanup func() error
}

// Build creates the Store named by cfg.DataBackend.
func Build(ctx context.Context, cfg *config.Config) (*Result, error) {
	switch cfg.DataBackend {
	case "memory":
		slog.InfoContext(ctx, "Initialized memory backend")
		return &Result{Store: memory.New()}, nil

	case "sqlite":
		repo, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite store: %w", err)
		}
		slog.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Store: repo, Cleanup: repo.Close}, nil

	case "sheets":
		cli, err := sheets.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize Google Sheets store: %w", err)
		}
		slog.InfoContext(ctx, "Initialized Google Sheets backend",
			"spreadsheet_id", cfg.GoogleSpreadsheetID)
		return &Result{Store: cli}, nil

	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}
