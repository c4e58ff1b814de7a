package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"financas/internal/core"
	"financas/internal/store"
)

var (
	// ErrEncoding aborts an import whose payload is not valid UTF-8.
	ErrEncoding = errors.New("csv is not valid UTF-8")
	// ErrFormat aborts an import that cannot be parsed as CSV or lacks a
	// required column.
	ErrFormat = errors.New("invalid csv format")
)

// importColumns are the required header columns of an expense import file,
// matching the spreadsheet template users fill in.
var importColumns = []string{"Estabelecimento", "Valor da Despesa", "Data", "Categoria"}

// RowError describes one rejected data row. Row is the 1-based ordinal among
// the data rows; Line is the position within the file, counting the header,
// so it matches what an editor shows.
type RowError struct {
	Row           int
	Line          int
	Establishment string
	Err           error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d, line %d (%s): %v", e.Row, e.Line, e.Establishment, e.Err)
}

// ImportResult summarizes a bulk import. Row failures never abort the batch;
// they are collected here while the valid rows are added.
type ImportResult struct {
	Added     int
	RowErrors []RowError
}

// ImportExpensesCSV bulk-adds expenses from a CSV file. File-level problems
// (encoding, format, missing columns) abort with zero side effects; row-level
// problems skip the row and are reported in the result. With auto-sync on,
// one store push happens after the whole batch.
func (l *Ledger) ImportExpensesCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv: %w", err)
	}
	if !utf8.Valid(data) {
		return ImportResult{}, ErrEncoding
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(records) == 0 {
		return ImportResult{}, fmt.Errorf("%w: empty file", ErrFormat)
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}
	cols, err := columnIndex(header, importColumns)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var res ImportResult
	for i, row := range records[1:] {
		line := i + 2
		establishment := strings.TrimSpace(cell(row, cols["Estabelecimento"]))

		e, err := parseImportRow(row, cols, establishment)
		if err != nil {
			res.RowErrors = append(res.RowErrors, RowError{
				Row:           i + 1,
				Line:          line,
				Establishment: establishment,
				Err:           err,
			})
			continue
		}

		e.ID = l.nextExpenseID
		l.nextExpenseID++
		l.expenses = append(l.expenses, e)
		res.Added++
	}

	slog.InfoContext(ctx, "CSV import finished",
		"user_id", l.userID, "added", res.Added, "rejected", len(res.RowErrors))

	if res.Added == 0 {
		return res, nil
	}
	return res, l.afterMutation(ctx, store.KindExpenses)
}

func parseImportRow(row []string, cols map[string]int, establishment string) (core.Expense, error) {
	value, err := core.ParseMoney(cell(row, cols["Valor da Despesa"]))
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(cell(row, cols["Data"]))
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		Establishment: establishment,
		Category:      core.Category(strings.TrimSpace(cell(row, cols["Categoria"]))),
		Value:         value,
		Date:          date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// ExportExpensesCSV writes the expenses as CSV with the wire header.
func (l *Ledger) ExportExpensesCSV(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(expensesHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range l.expenses {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Date.String(),
			e.Establishment,
			string(e.Category),
			e.Value.Decimal(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportSavingsCSV writes the savings entries as CSV with the wire header.
func (l *Ledger) ExportSavingsCSV(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(savingsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range l.savings {
		row := []string{
			strconv.FormatInt(s.ID, 10),
			string(s.Type),
			s.Date.String(),
			s.Value.Decimal(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
