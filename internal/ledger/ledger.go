// Package ledger holds a user's in-memory finance state and keeps it in step
// with a remote store.
//
// A Ledger owns two collections, expenses and savings entries, each with its
// own monotonic id sequence. Mutations validate first and allocate an id only
// on success, so failed calls never burn ids. With auto-sync enabled every
// mutation pushes a full overwrite of the affected collection to the store;
// a store failure keeps the local mutation and is surfaced as *store.SyncError
// so callers can warn about the divergence instead of losing data.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"financas/internal/core"
	"financas/internal/store"
)

type Ledger struct {
	mu     sync.Mutex
	userID string
	store  store.Store

	autoSync bool

	expenses      []core.Expense
	savings       []core.SavingsEntry
	nextExpenseID int64
	nextSavingsID int64

	expensesState kindState
	savingsState  kindState

	// One push at a time per kind, so a slow earlier save can never land
	// after a faster later one and silently roll the remote back.
	expensesPush sync.Mutex
	savingsPush  sync.Mutex
}

// kindState tracks whether a collection has unsynced changes. The version
// counter lets a finished save detect that a newer mutation landed while it
// was in flight, so it does not clear the dirty flag by mistake.
type kindState struct {
	dirty   bool
	version uint64
}

type Option func(*Ledger)

// WithAutoSync makes every successful mutation push the affected collection
// to the store. Without it callers flush explicitly via Sync.
func WithAutoSync() Option {
	return func(l *Ledger) { l.autoSync = true }
}

func New(userID string, st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		userID:        userID,
		store:         st,
		nextExpenseID: 1,
		nextSavingsID: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) UserID() string {
	return l.userID
}

// AddExpense validates and records a new expense. The returned record carries
// the allocated id. A *store.SyncError means the expense WAS added locally but
// the store push failed.
func (l *Ledger) AddExpense(ctx context.Context, establishment string, category core.Category, value core.Money, date core.Date) (core.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := core.Expense{
		Establishment: establishment,
		Category:      category,
		Value:         value,
		Date:          date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	e.ID = l.nextExpenseID
	l.nextExpenseID++
	l.expenses = append(l.expenses, e)

	slog.InfoContext(ctx, "Expense added",
		"user_id", l.userID, "id", e.ID,
		"establishment", e.Establishment, "amount_cents", e.Value.Cents)

	return e, l.afterMutation(ctx, store.KindExpenses)
}

// EditExpense replaces the fields of an existing expense. Unknown ids return
// core.ErrNotFound with no mutation.
func (l *Ledger) EditExpense(ctx context.Context, id int64, establishment string, category core.Category, value core.Money, date core.Date) (core.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.expenseIndex(id)
	if idx < 0 {
		return core.Expense{}, core.ErrNotFound
	}

	e := core.Expense{
		ID:            id,
		Establishment: establishment,
		Category:      category,
		Value:         value,
		Date:          date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	l.expenses[idx] = e

	slog.InfoContext(ctx, "Expense updated",
		"user_id", l.userID, "id", e.ID, "amount_cents", e.Value.Cents)

	return e, l.afterMutation(ctx, store.KindExpenses)
}

// AddSavings validates and records a new savings entry.
func (l *Ledger) AddSavings(ctx context.Context, typ core.SavingType, value core.Money, date core.Date) (core.SavingsEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := core.SavingsEntry{Type: typ, Value: value, Date: date}
	if err := s.Validate(); err != nil {
		return core.SavingsEntry{}, err
	}

	s.ID = l.nextSavingsID
	l.nextSavingsID++
	l.savings = append(l.savings, s)

	slog.InfoContext(ctx, "Savings entry added",
		"user_id", l.userID, "id", s.ID,
		"type", string(s.Type), "amount_cents", s.Value.Cents)

	return s, l.afterMutation(ctx, store.KindSavings)
}

// EditSavings replaces the fields of an existing savings entry.
func (l *Ledger) EditSavings(ctx context.Context, id int64, typ core.SavingType, value core.Money, date core.Date) (core.SavingsEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.savingsIndex(id)
	if idx < 0 {
		return core.SavingsEntry{}, core.ErrNotFound
	}

	s := core.SavingsEntry{ID: id, Type: typ, Value: value, Date: date}
	if err := s.Validate(); err != nil {
		return core.SavingsEntry{}, err
	}

	l.savings[idx] = s

	slog.InfoContext(ctx, "Savings entry updated",
		"user_id", l.userID, "id", s.ID, "amount_cents", s.Value.Cents)

	return s, l.afterMutation(ctx, store.KindSavings)
}

// TotalExpenses sums every expense in cents.
func (l *Ledger) TotalExpenses() core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cents int64
	for _, e := range l.expenses {
		cents += e.Value.Cents
	}
	return core.Money{Cents: cents}
}

// TotalSavings sums every savings entry in cents.
func (l *Ledger) TotalSavings() core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cents int64
	for _, s := range l.savings {
		cents += s.Value.Cents
	}
	return core.Money{Cents: cents}
}

// Balance is savings minus expenses. It may be negative.
func (l *Ledger) Balance() core.Money {
	return core.Money{Cents: l.TotalSavings().Cents - l.TotalExpenses().Cents}
}

// ExpensesByCategory sums expenses per category, in cents.
func (l *Ledger) ExpensesByCategory() map[core.Category]core.Money {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[core.Category]core.Money)
	for _, e := range l.expenses {
		out[e.Category] = core.Money{Cents: out[e.Category].Cents + e.Value.Cents}
	}
	return out
}

// ListExpenses returns a copy of the expenses in insertion order.
func (l *Ledger) ListExpenses() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Expense(nil), l.expenses...)
}

// ListSavings returns a copy of the savings entries in insertion order.
func (l *Ledger) ListSavings() []core.SavingsEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.SavingsEntry(nil), l.savings...)
}

// Dirty lists the collections with local changes not yet stored.
func (l *Ledger) Dirty() []store.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kinds []store.Kind
	if l.expensesState.dirty {
		kinds = append(kinds, store.KindExpenses)
	}
	if l.savingsState.dirty {
		kinds = append(kinds, store.KindSavings)
	}
	return kinds
}

func (l *Ledger) expenseIndex(id int64) int {
	for i, e := range l.expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) savingsIndex(id int64) int {
	for i, s := range l.savings {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) state(kind store.Kind) *kindState {
	if kind == store.KindSavings {
		return &l.savingsState
	}
	return &l.expensesState
}

func (l *Ledger) pushMutex(kind store.Kind) *sync.Mutex {
	if kind == store.KindSavings {
		return &l.savingsPush
	}
	return &l.expensesPush
}

// afterMutation marks the collection dirty and, with auto-sync on, pushes it.
// Called with the mutex held; the lock is dropped around the store call.
func (l *Ledger) afterMutation(ctx context.Context, kind store.Kind) error {
	st := l.state(kind)
	st.dirty = true
	st.version++
	if !l.autoSync || l.store == nil {
		return nil
	}
	return l.pushLocked(ctx, kind)
}

// pushLocked saves the table for kind. Called with the ledger mutex held; the
// mutex is dropped while waiting for the per-kind push slot and during the
// store call. Each push encodes the state current when its turn comes, so the
// table that reaches the store is always at least as fresh as any save that
// finished before it.
func (l *Ledger) pushLocked(ctx context.Context, kind store.Kind) error {
	push := l.pushMutex(kind)

	l.mu.Unlock()
	push.Lock()
	l.mu.Lock()

	st := l.state(kind)
	if !st.dirty {
		// An earlier push already covered this mutation.
		push.Unlock()
		return nil
	}
	v := st.version
	table := l.encodeLocked(kind)

	l.mu.Unlock()
	err := l.store.Save(ctx, l.userID, kind, table)
	push.Unlock()
	l.mu.Lock()

	if err != nil {
		slog.WarnContext(ctx, "Store save failed, local state kept",
			"user_id", l.userID, "kind", kind.String(), "error", err)
		return &store.SyncError{Kind: kind, Err: err}
	}
	if st.version == v {
		st.dirty = false
	}
	return nil
}

// Sync pushes every dirty collection to the store. With nothing dirty it is
// a no-op. Failures for distinct kinds are joined.
func (l *Ledger) Sync(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return errors.New("no store configured")
	}

	var errs []error
	for _, kind := range []store.Kind{store.KindExpenses, store.KindSavings} {
		if !l.state(kind).dirty {
			continue
		}
		if err := l.pushLocked(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadFromStore replaces the in-memory state with the stored tables and
// recomputes the next ids so new records never collide with loaded ones.
func (l *Ledger) LoadFromStore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return errors.New("no store configured")
	}

	expTable, err := l.store.Load(ctx, l.userID, store.KindExpenses)
	if err != nil {
		return &store.SyncError{Kind: store.KindExpenses, Err: err}
	}
	savTable, err := l.store.Load(ctx, l.userID, store.KindSavings)
	if err != nil {
		return &store.SyncError{Kind: store.KindSavings, Err: err}
	}

	expenses, err := decodeExpenses(expTable)
	if err != nil {
		return err
	}
	savings, err := decodeSavings(savTable)
	if err != nil {
		return err
	}

	l.expenses = expenses
	l.savings = savings
	l.nextExpenseID = maxExpenseID(expenses) + 1
	l.nextSavingsID = maxSavingsID(savings) + 1
	l.expensesState = kindState{}
	l.savingsState = kindState{}

	slog.InfoContext(ctx, "Ledger loaded from store",
		"user_id", l.userID, "expenses", len(expenses), "savings", len(savings))
	return nil
}

func maxExpenseID(expenses []core.Expense) int64 {
	var max int64
	for _, e := range expenses {
		if e.ID > max {
			max = e.ID
		}
	}
	return max
}

func maxSavingsID(savings []core.SavingsEntry) int64 {
	var max int64
	for _, s := range savings {
		if s.ID > max {
			max = s.ID
		}
	}
	return max
}
