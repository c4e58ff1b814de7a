package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"financas/internal/core"
	"financas/internal/store"
)

// ExpenseEdit is one row of an edited expense grid. ID zero means a new
// record; a positive ID must name an existing expense.
type ExpenseEdit struct {
	ID            int64
	Establishment string
	Category      core.Category
	Value         core.Money
	Date          core.Date
}

// SavingsEdit is one row of an edited savings grid.
type SavingsEdit struct {
	ID    int64
	Type  core.SavingType
	Value core.Money
	Date  core.Date
}

// SnapshotResult reports what a snapshot application did. Removed counts the
// existing records absent from the snapshot; they are kept, not deleted,
// because no delete operation exists.
type SnapshotResult struct {
	Added   int
	Updated int
	Removed int
}

// ApplyExpenseSnapshot reconciles an edited grid against the ledger: known
// ids become edits, zero ids become adds. The whole snapshot is validated
// before anything is applied, so a bad row leaves the ledger untouched.
func (l *Ledger) ApplyExpenseSnapshot(ctx context.Context, edits []ExpenseEdit) (SnapshotResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[int64]bool, len(edits))
	for i, edit := range edits {
		e := core.Expense{
			ID:            edit.ID,
			Establishment: edit.Establishment,
			Category:      edit.Category,
			Value:         edit.Value,
			Date:          edit.Date,
		}
		if err := e.Validate(); err != nil {
			return SnapshotResult{}, fmt.Errorf("snapshot row %d: %w", i+1, err)
		}
		if edit.ID != 0 {
			if l.expenseIndex(edit.ID) < 0 {
				return SnapshotResult{}, fmt.Errorf("snapshot row %d: id %d: %w", i+1, edit.ID, core.ErrNotFound)
			}
			if seen[edit.ID] {
				return SnapshotResult{}, fmt.Errorf("snapshot row %d: duplicate id %d", i+1, edit.ID)
			}
			seen[edit.ID] = true
		}
	}

	var res SnapshotResult
	preExistingCeiling := l.nextExpenseID
	for _, edit := range edits {
		if edit.ID == 0 {
			l.expenses = append(l.expenses, core.Expense{
				ID:            l.nextExpenseID,
				Establishment: edit.Establishment,
				Category:      edit.Category,
				Value:         edit.Value,
				Date:          edit.Date,
			})
			l.nextExpenseID++
			res.Added++
			continue
		}
		l.expenses[l.expenseIndex(edit.ID)] = core.Expense{
			ID:            edit.ID,
			Establishment: edit.Establishment,
			Category:      edit.Category,
			Value:         edit.Value,
			Date:          edit.Date,
		}
		res.Updated++
	}
	for _, e := range l.expenses {
		if e.ID < preExistingCeiling && !seen[e.ID] {
			res.Removed++
		}
	}

	if res.Removed > 0 {
		slog.WarnContext(ctx, "Snapshot omitted existing expenses, keeping them",
			"user_id", l.userID, "removed", res.Removed)
	}
	if res.Added == 0 && res.Updated == 0 {
		return res, nil
	}
	return res, l.afterMutation(ctx, store.KindExpenses)
}

// ApplySavingsSnapshot is ApplyExpenseSnapshot for the savings collection.
func (l *Ledger) ApplySavingsSnapshot(ctx context.Context, edits []SavingsEdit) (SnapshotResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[int64]bool, len(edits))
	for i, edit := range edits {
		s := core.SavingsEntry{ID: edit.ID, Type: edit.Type, Value: edit.Value, Date: edit.Date}
		if err := s.Validate(); err != nil {
			return SnapshotResult{}, fmt.Errorf("snapshot row %d: %w", i+1, err)
		}
		if edit.ID != 0 {
			if l.savingsIndex(edit.ID) < 0 {
				return SnapshotResult{}, fmt.Errorf("snapshot row %d: id %d: %w", i+1, edit.ID, core.ErrNotFound)
			}
			if seen[edit.ID] {
				return SnapshotResult{}, fmt.Errorf("snapshot row %d: duplicate id %d", i+1, edit.ID)
			}
			seen[edit.ID] = true
		}
	}

	var res SnapshotResult
	preExistingCeiling := l.nextSavingsID
	for _, edit := range edits {
		if edit.ID == 0 {
			l.savings = append(l.savings, core.SavingsEntry{
				ID:    l.nextSavingsID,
				Type:  edit.Type,
				Value: edit.Value,
				Date:  edit.Date,
			})
			l.nextSavingsID++
			res.Added++
			continue
		}
		l.savings[l.savingsIndex(edit.ID)] = core.SavingsEntry{
			ID:    edit.ID,
			Type:  edit.Type,
			Value: edit.Value,
			Date:  edit.Date,
		}
		res.Updated++
	}
	for _, s := range l.savings {
		if s.ID < preExistingCeiling && !seen[s.ID] {
			res.Removed++
		}
	}

	if res.Removed > 0 {
		slog.WarnContext(ctx, "Snapshot omitted existing savings entries, keeping them",
			"user_id", l.userID, "removed", res.Removed)
	}
	if res.Added == 0 && res.Updated == 0 {
		return res, nil
	}
	return res, l.afterMutation(ctx, store.KindSavings)
}
