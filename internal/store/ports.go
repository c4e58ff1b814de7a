// Package store defines the port to remote persistence backends.
//
// A backend holds one table per user and record kind. Save is always a full
// overwrite of that table, which makes repeated saves idempotent and lets the
// ledger reconcile by simply pushing its current in-memory state. Cells are
// strings on the wire; dates travel as ISO-8601 text so every backend encodes
// them identically.
package store

import (
	"context"
	"fmt"
)

const (
	KindExpenses Kind = "expenses"
	KindSavings  Kind = "savings"
)

type (
	// Kind names one of the two collections a user owns.
	Kind string

	// Table is the wire form of a collection: a header row plus string cells.
	Table struct {
		Header []string
		Rows   [][]string
	}

	// Store persists full per-user tables keyed by user and kind.
	Store interface {
		// Save replaces the remote table for user+kind with exactly t.
		Save(ctx context.Context, userID string, kind Kind, t Table) error

		// Load returns the remote table, or an empty table if none exists yet.
		Load(ctx context.Context, userID string, kind Kind) (Table, error)
	}
)

func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the known collections.
func (k Kind) IsValid() bool {
	return k == KindExpenses || k == KindSavings
}

// IsEmpty reports whether the table carries no data rows.
func (t Table) IsEmpty() bool {
	return len(t.Rows) == 0
}

// Clone returns a deep copy, so callers can hand tables across goroutines.
func (t Table) Clone() Table {
	out := Table{Header: append([]string(nil), t.Header...)}
	if t.Rows != nil {
		out.Rows = make([][]string, len(t.Rows))
		for i, row := range t.Rows {
			out.Rows[i] = append([]string(nil), row...)
		}
	}
	return out
}

// SyncError reports a backend failure during synchronization. The local
// mutation that triggered the sync has already been applied and kept; callers
// must surface the divergence instead of rolling back.
type SyncError struct {
	Kind Kind
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
