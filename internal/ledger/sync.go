package ledger

import (
	"fmt"
	"strconv"

	"financas/internal/core"
	"financas/internal/store"
)

// Wire headers. The same columns serve every store backend and the CSV
// exports, so a table written by one backend loads from any other.
var (
	expensesHeader = []string{"ID", "Data", "Estabelecimento", "Categoria", "Valor"}
	savingsHeader  = []string{"ID", "Tipo Entrada", "Data", "Valor"}
)

// encodeLocked renders the collection as its wire table. Dates travel as
// ISO-8601 text and values as plain decimal strings. Called with the mutex
// held.
func (l *Ledger) encodeLocked(kind store.Kind) store.Table {
	if kind == store.KindSavings {
		t := store.Table{Header: append([]string(nil), savingsHeader...)}
		for _, s := range l.savings {
			t.Rows = append(t.Rows, []string{
				strconv.FormatInt(s.ID, 10),
				string(s.Type),
				s.Date.String(),
				s.Value.Decimal(),
			})
		}
		return t
	}

	t := store.Table{Header: append([]string(nil), expensesHeader...)}
	for _, e := range l.expenses {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Date.String(),
			e.Establishment,
			string(e.Category),
			e.Value.Decimal(),
		})
	}
	return t
}

func decodeExpenses(t store.Table) ([]core.Expense, error) {
	if t.IsEmpty() {
		return nil, nil
	}
	cols, err := columnIndex(t.Header, expensesHeader)
	if err != nil {
		return nil, fmt.Errorf("expenses table: %w", err)
	}

	expenses := make([]core.Expense, 0, len(t.Rows))
	for i, row := range t.Rows {
		e, err := decodeExpenseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("expenses row %d: %w", i+1, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func decodeExpenseRow(row []string, cols map[string]int) (core.Expense, error) {
	id, err := parseID(cell(row, cols["ID"]))
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(cell(row, cols["Data"]))
	if err != nil {
		return core.Expense{}, err
	}
	value, err := core.ParseMoney(cell(row, cols["Valor"]))
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:            id,
		Establishment: cell(row, cols["Estabelecimento"]),
		Category:      core.Category(cell(row, cols["Categoria"])),
		Value:         value,
		Date:          date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func decodeSavings(t store.Table) ([]core.SavingsEntry, error) {
	if t.IsEmpty() {
		return nil, nil
	}
	cols, err := columnIndex(t.Header, savingsHeader)
	if err != nil {
		return nil, fmt.Errorf("savings table: %w", err)
	}

	savings := make([]core.SavingsEntry, 0, len(t.Rows))
	for i, row := range t.Rows {
		s, err := decodeSavingsRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("savings row %d: %w", i+1, err)
		}
		savings = append(savings, s)
	}
	return savings, nil
}

func decodeSavingsRow(row []string, cols map[string]int) (core.SavingsEntry, error) {
	id, err := parseID(cell(row, cols["ID"]))
	if err != nil {
		return core.SavingsEntry{}, err
	}
	date, err := core.ParseDate(cell(row, cols["Data"]))
	if err != nil {
		return core.SavingsEntry{}, err
	}
	value, err := core.ParseMoney(cell(row, cols["Valor"]))
	if err != nil {
		return core.SavingsEntry{}, err
	}
	s := core.SavingsEntry{
		ID:    id,
		Type:  core.SavingType(cell(row, cols["Tipo Entrada"])),
		Value: value,
		Date:  date,
	}
	if err := s.Validate(); err != nil {
		return core.SavingsEntry{}, err
	}
	return s, nil
}

// columnIndex maps each required column name to its position in the header.
// Extra columns are ignored; a missing required one is an error.
func columnIndex(header, required []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	cols := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		cols[name] = i
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
