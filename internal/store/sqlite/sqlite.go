// Package sqlite implements the Store port on a local SQLite file.
//
// Tables are stored as whole JSON documents keyed by user and kind, one row
// per collection. Save upserts the document, so the contract stays a full
// overwrite exactly like the remote backends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"financas/internal/store"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

var _ store.Store = (*Repository)(nil)

type document struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Save replaces the stored document for user+kind with exactly t.
func (r *Repository) Save(ctx context.Context, userID string, kind store.Kind, t store.Table) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", kind)
	}

	doc, err := json.Marshal(document{Header: t.Header, Rows: t.Rows})
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO collections (user_id, kind, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, kind)
		DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		userID, kind.String(), string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}

	slog.InfoContext(ctx, "Saved table to SQLite",
		"user_id", userID, "kind", kind.String(), "rows", len(t.Rows))
	return nil
}

// Load returns the stored document for user+kind, or an empty table when the
// user has never saved that collection.
func (r *Repository) Load(ctx context.Context, userID string, kind store.Kind) (store.Table, error) {
	if !kind.IsValid() {
		return store.Table{}, fmt.Errorf("invalid kind: %s", kind)
	}

	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM collections WHERE user_id = ? AND kind = ?`,
		userID, kind.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Table{}, nil
	}
	if err != nil {
		return store.Table{}, fmt.Errorf("select collection: %w", err)
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return store.Table{}, fmt.Errorf("decode document: %w", err)
	}
	return store.Table{Header: doc.Header, Rows: doc.Rows}, nil
}

// UpdatedAt reports when the collection was last written, for backup decisions.
func (r *Repository) UpdatedAt(ctx context.Context, userID string, kind store.Kind) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM collections WHERE user_id = ? AND kind = ?`,
		userID, kind.String()).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("select updated_at: %w", err)
	}
	return ts, nil
}

// Users lists every user that has at least one stored collection.
func (r *Repository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM collections ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
