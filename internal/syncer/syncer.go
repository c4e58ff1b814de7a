// Package syncer pushes ledger snapshots to a store in the background.
//
// Each user+kind key holds at most one pending snapshot: enqueueing a newer
// one supersedes the old, so a slow backend never causes a stale table to
// overwrite a fresher one. Distinct keys are saved concurrently under a
// bounded errgroup; the same key is saved at most once per drain, which keeps
// its saves in mutation order.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"financas/internal/store"
)

const defaultConcurrency = 4

type key struct {
	userID string
	kind   store.Kind
}

type Syncer struct {
	store       store.Store
	concurrency int
	retryDelay  time.Duration

	mu      sync.Mutex
	pending map[key]store.Table

	wake chan struct{}
}

type Option func(*Syncer)

// WithConcurrency bounds how many keys are saved in parallel.
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetryDelay sets the pause before a failed snapshot is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) { s.retryDelay = d }
}

func New(st store.Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:       st,
		concurrency: defaultConcurrency,
		retryDelay:  5 * time.Second,
		pending:     make(map[key]store.Table),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue records t as the snapshot to push for user+kind, replacing any
// pending older one.
func (s *Syncer) Enqueue(userID string, kind store.Kind, t store.Table) {
	s.mu.Lock()
	s.pending[key{userID, kind}] = t.Clone()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns how many snapshots wait to be pushed.
func (s *Syncer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush drains every pending snapshot once. Failed snapshots are requeued
// unless a newer one arrived meanwhile; their errors are joined.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[key]store.Table)
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var errMu sync.Mutex
	var errs []error

	for k, table := range batch {
		k, table := k, table
		g.Go(func() error {
			err := s.store.Save(gctx, k.userID, k.kind, table)
			if err == nil {
				return nil
			}
			slog.WarnContext(gctx, "Background save failed, requeueing snapshot",
				"user_id", k.userID, "kind", k.kind.String(), "error", err)
			s.requeueIfNotSuperseded(k, table)

			errMu.Lock()
			errs = append(errs, &store.SyncError{Kind: k.kind, Err: err})
			errMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// requeueIfNotSuperseded puts a failed snapshot back unless a newer one for
// the same key landed while the save was in flight.
func (s *Syncer) requeueIfNotSuperseded(k key, table store.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[k]; !exists {
		s.pending[k] = table
	}
}

// Run drains snapshots as they arrive until ctx is done, then attempts one
// final flush so shutdown does not drop acknowledged mutations.
func (s *Syncer) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Background syncer started", "concurrency", s.concurrency)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				slog.WarnContext(flushCtx, "Final flush incomplete", "error", err)
			}
			return ctx.Err()
		case <-s.wake:
			if err := s.Flush(ctx); err != nil {
				select {
				case <-ctx.Done():
				case <-time.After(s.retryDelay):
					// Requeued snapshots need another wake.
					select {
					case s.wake <- struct{}{}:
					default:
					}
				}
			}
		}
	}
}
