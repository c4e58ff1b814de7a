// Package worker mirrors collections from a local store to a remote one.
//
// The API server writes to the local store and publishes collection-changed
// messages; this worker consumes them, loads the current table locally and
// pushes it to the remote backend. Because every push is a full overwrite,
// lost, replayed or reordered messages only cost freshness, never
// correctness. A periodic full mirror backs up lost messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/amqp"
	"financas/internal/store"
)

// LocalStore is the store the worker mirrors from. Users enumerates the
// owners present locally for the periodic backup pass.
type LocalStore interface {
	store.Store
	Users(ctx context.Context) ([]string, error)
}

// Enqueuer buffers remote pushes so bursts of messages for one collection
// collapse into a single save. *syncer.Syncer implements it.
type Enqueuer interface {
	Enqueue(userID string, kind store.Kind, t store.Table)
}

type Mirror struct {
	local  LocalStore
	remote store.Store
	queue  Enqueuer
}

type Option func(*Mirror)

// WithQueue routes remote pushes through q instead of saving inline. The
// queue owns retries, so handled messages are acked immediately.
func WithQueue(q Enqueuer) Option {
	return func(m *Mirror) { m.queue = q }
}

func NewMirror(local LocalStore, remote store.Store, opts ...Option) *Mirror {
	m := &Mirror{local: local, remote: remote}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleSyncMessage mirrors the single collection named by the message.
func (m *Mirror) HandleSyncMessage(ctx context.Context, msg *amqp.CollectionSyncMessage) error {
	return m.mirrorCollection(ctx, msg.UserID, msg.StoreKind())
}

func (m *Mirror) mirrorCollection(ctx context.Context, userID string, kind store.Kind) error {
	table, err := m.local.Load(ctx, userID, kind)
	if err != nil {
		return fmt.Errorf("load local %s/%s: %w", userID, kind, err)
	}

	if m.queue != nil {
		m.queue.Enqueue(userID, kind, table)
		slog.DebugContext(ctx, "Queued collection for mirroring",
			"user_id", userID, "kind", kind.String(), "rows", len(table.Rows))
		return nil
	}

	if err := m.remote.Save(ctx, userID, kind, table); err != nil {
		return fmt.Errorf("save remote %s/%s: %w", userID, kind, err)
	}

	slog.InfoContext(ctx, "Mirrored collection",
		"user_id", userID, "kind", kind.String(), "rows", len(table.Rows))
	return nil
}

// MirrorAll mirrors both collections of every local user. Failures are
// logged and counted; the pass continues so one broken user does not block
// the rest.
func (m *Mirror) MirrorAll(ctx context.Context) error {
	users, err := m.local.Users(ctx)
	if err != nil {
		return fmt.Errorf("list local users: %w", err)
	}

	var failed int
	for _, userID := range users {
		for _, kind := range []store.Kind{store.KindExpenses, store.KindSavings} {
			if err := m.mirrorCollection(ctx, userID, kind); err != nil {
				slog.ErrorContext(ctx, "Mirror pass failure",
					"user_id", userID, "kind", kind.String(), "error", err)
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("mirror pass: %d collection(s) failed", failed)
	}
	return nil
}

// RunPeriodic repeats MirrorAll on the given interval until ctx is done.
func (m *Mirror) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Periodic mirror started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.MirrorAll(ctx); err != nil {
				slog.WarnContext(ctx, "Periodic mirror incomplete", "error", err)
			}
		}
	}
}
