package sheets

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"google.golang.org/api/googleapi"

	"financas/internal/store"
)

func TestParseValues(t *testing.T) {
	in := [][]any{
		{"ID", "Data", "Estabelecimento", "Categoria", "Valor"},
		{1, "2025-01-02", " Padaria ", "Alimentação", 12.5},
		{"", "", "", "", ""}, // blank row from a cleared range
		{"2", "2025-01-03", "Metrô", "Transporte", "7.30"},
	}
	got := parseValues(in)
	if !reflect.DeepEqual(got.Header, []string{"ID", "Data", "Estabelecimento", "Categoria", "Valor"}) {
		t.Fatalf("unexpected header: %v", got.Header)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got.Rows), got.Rows)
	}
	if got.Rows[0][2] != "Padaria" {
		t.Fatalf("cells should be trimmed, got %q", got.Rows[0][2])
	}
}

func TestParseValuesEmpty(t *testing.T) {
	got := parseValues(nil)
	if !got.IsEmpty() || got.Header != nil {
		t.Fatalf("expected empty table, got %v", got)
	}
}

func TestIsMissingTab(t *testing.T) {
	// The API answers 400 "Unable to parse range" for a tab that does not
	// exist. Save relies on this to create tabs for first-time users.
	missing := &googleapi.Error{Code: 400, Message: "Unable to parse range: maria Expenses"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"missing tab", missing, true},
		{"wrapped missing tab", fmt.Errorf("clear maria Expenses: %w", missing), true},
		{"other 400", &googleapi.Error{Code: 400, Message: "Invalid value"}, false},
		{"not found", &googleapi.Error{Code: 404, Message: "Requested entity was not found"}, false},
		{"plain error", errors.New("unable to parse range"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := isMissingTab(tc.err); got != tc.want {
			t.Fatalf("%s: isMissingTab = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTabName(t *testing.T) {
	c := &Client{expensesTab: "Expenses", savingsTab: "Savings"}
	cases := []struct {
		user string
		kind store.Kind
		want string
	}{
		{"", store.KindExpenses, "Expenses"},
		{"", store.KindSavings, "Savings"},
		{"maria", store.KindExpenses, "maria Expenses"},
		{" maria ", store.KindSavings, "maria Savings"},
	}
	for _, tc := range cases {
		got := c.tabName(tc.user, tc.kind)
		if got != tc.want {
			t.Fatalf("tabName(%q, %s) = %q, want %q", tc.user, tc.kind, got, tc.want)
		}
	}
}
