package ledger

import (
	"context"
	"errors"
	"testing"

	"financas/internal/core"
	"financas/internal/store/memory"
)

func TestApplyExpenseSnapshot(t *testing.T) {
	l := New("maria", memory.New())
	ctx := context.Background()

	a := mustAddExpense(t, l, "Padaria", core.CategoryFood, "12.50", core.NewDate(2025, 1, 1))
	b := mustAddExpense(t, l, "Metrô", core.CategoryTransport, "7.30", core.NewDate(2025, 1, 2))

	res, err := l.ApplyExpenseSnapshot(ctx, []ExpenseEdit{
		{ID: a.ID, Establishment: "Padaria Central", Category: core.CategoryFood, Value: core.Money{Cents: 1400}, Date: a.Date},
		{ID: b.ID, Establishment: b.Establishment, Category: b.Category, Value: b.Value, Date: b.Date},
		{Establishment: "Feira", Category: core.CategoryFood, Value: core.Money{Cents: 500}, Date: core.NewDate(2025, 1, 3)},
	})
	if err != nil {
		t.Fatalf("ApplyExpenseSnapshot: %v", err)
	}
	if res.Added != 1 || res.Updated != 2 || res.Removed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	list := l.ListExpenses()
	if len(list) != 3 {
		t.Fatalf("expected 3 expenses, got %+v", list)
	}
	if list[0].Establishment != "Padaria Central" || list[0].Value.Cents != 1400 {
		t.Fatalf("edit row not applied: %+v", list[0])
	}
	if list[2].ID != 3 || list[2].Establishment != "Feira" {
		t.Fatalf("added row gets the next id: %+v", list[2])
	}
}

func TestSnapshotOmittedRowsAreKept(t *testing.T) {
	l := New("maria", memory.New())
	ctx := context.Background()

	a := mustAddExpense(t, l, "Padaria", core.CategoryFood, "12.50", core.NewDate(2025, 1, 1))
	mustAddExpense(t, l, "Metrô", core.CategoryTransport, "7.30", core.NewDate(2025, 1, 2))

	res, err := l.ApplyExpenseSnapshot(ctx, []ExpenseEdit{
		{ID: a.ID, Establishment: a.Establishment, Category: a.Category, Value: a.Value, Date: a.Date},
	})
	if err != nil {
		t.Fatalf("ApplyExpenseSnapshot: %v", err)
	}
	if res.Removed != 1 {
		t.Fatalf("omitted rows must be counted: %+v", res)
	}
	if len(l.ListExpenses()) != 2 {
		t.Fatalf("omitted rows must never be deleted")
	}
}

func TestSnapshotUnknownIDAborts(t *testing.T) {
	l := New("maria", memory.New())
	ctx := context.Background()

	mustAddExpense(t, l, "Padaria", core.CategoryFood, "12.50", core.NewDate(2025, 1, 1))

	_, err := l.ApplyExpenseSnapshot(ctx, []ExpenseEdit{
		{ID: 99, Establishment: "Fantasma", Category: core.CategoryOther, Value: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 2)},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := l.TotalExpenses().Cents; got != 1250 {
		t.Fatalf("aborted snapshot must not mutate, total = %d", got)
	}
}

func TestSnapshotInvalidRowAbortsWhole(t *testing.T) {
	l := New("maria", memory.New())
	ctx := context.Background()

	a := mustAddExpense(t, l, "Padaria", core.CategoryFood, "12.50", core.NewDate(2025, 1, 1))

	_, err := l.ApplyExpenseSnapshot(ctx, []ExpenseEdit{
		{ID: a.ID, Establishment: "Padaria Central", Category: a.Category, Value: a.Value, Date: a.Date},
		{Establishment: "", Category: core.CategoryFood, Value: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 2)},
	})
	if !errors.Is(err, core.ErrEmptyEstablishment) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if l.ListExpenses()[0].Establishment != "Padaria" {
		t.Fatalf("valid rows before the bad one must not be applied")
	}
}

func TestApplySavingsSnapshot(t *testing.T) {
	l := New("maria", memory.New())
	ctx := context.Background()

	s, err := l.AddSavings(ctx, core.SavingSalary, core.Money{Cents: 500000}, core.NewDate(2025, 1, 5))
	if err != nil {
		t.Fatalf("AddSavings: %v", err)
	}

	res, err := l.ApplySavingsSnapshot(ctx, []SavingsEdit{
		{ID: s.ID, Type: core.SavingSalary, Value: core.Money{Cents: 520000}, Date: s.Date},
		{Type: core.SavingBonus, Value: core.Money{Cents: 100000}, Date: core.NewDate(2025, 1, 10)},
	})
	if err != nil {
		t.Fatalf("ApplySavingsSnapshot: %v", err)
	}
	if res.Added != 1 || res.Updated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := l.TotalSavings().Cents; got != 620000 {
		t.Fatalf("total after snapshot = %d", got)
	}
}
