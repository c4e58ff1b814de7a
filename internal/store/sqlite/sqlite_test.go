package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"financas/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "financas.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := store.Table{
		Header: []string{"ID", "Data", "Estabelecimento", "Categoria", "Valor"},
		Rows: [][]string{
			{"1", "2025-01-02", "Padaria", "Alimentação", "12.50"},
			{"2", "2025-01-03", "Metrô", "Transporte", "7.30"},
		},
	}
	if err := repo.Save(ctx, "maria", store.KindExpenses, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Load(ctx, "maria", store.KindExpenses)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got  %v\n want %v", got, in)
	}
}

func TestSaveOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := store.Table{Header: []string{"ID", "Valor"}, Rows: [][]string{{"1", "10.00"}, {"2", "20.00"}}}
	second := store.Table{Header: []string{"ID", "Valor"}, Rows: [][]string{{"3", "5.00"}}}

	if err := repo.Save(ctx, "maria", store.KindSavings, first); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := repo.Save(ctx, "maria", store.KindSavings, second); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err := repo.Load(ctx, "maria", store.KindSavings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("expected second save to win, got %v", got)
	}
}

func TestLoadAbsentIsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.Load(context.Background(), "nobody", store.KindExpenses)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.IsEmpty() {
		t.Fatalf("expected empty table, got %v", got)
	}
}

func TestUsersAndIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	table := store.Table{Header: []string{"ID"}, Rows: [][]string{{"1"}}}
	if err := repo.Save(ctx, "ana", store.KindExpenses, table); err != nil {
		t.Fatalf("Save ana: %v", err)
	}
	if err := repo.Save(ctx, "beto", store.KindSavings, table); err != nil {
		t.Fatalf("Save beto: %v", err)
	}

	got, err := repo.Load(ctx, "ana", store.KindSavings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.IsEmpty() {
		t.Fatalf("kinds should be isolated, got %v", got)
	}

	users, err := repo.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if !reflect.DeepEqual(users, []string{"ana", "beto"}) {
		t.Fatalf("unexpected users: %v", users)
	}
}

func TestUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts, err := repo.UpdatedAt(ctx, "maria", store.KindExpenses)
	if err != nil {
		t.Fatalf("UpdatedAt: %v", err)
	}
	if !ts.IsZero() {
		t.Fatalf("expected zero time for absent collection, got %v", ts)
	}

	if err := repo.Save(ctx, "maria", store.KindExpenses, store.Table{Header: []string{"ID"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ts, err = repo.UpdatedAt(ctx, "maria", store.KindExpenses)
	if err != nil {
		t.Fatalf("UpdatedAt: %v", err)
	}
	if ts.IsZero() {
		t.Fatalf("expected timestamp after save")
	}
}
