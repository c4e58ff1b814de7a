package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"financas/internal/core"
	"financas/internal/store"
	"financas/internal/store/memory"
)

const validCSV = `Estabelecimento,Valor da Despesa,Data,Categoria
Padaria,12.50,2025-01-02,Alimentação
Metrô,"7,30",03/01/2025,Transporte
`

func TestImportExpensesCSV(t *testing.T) {
	l := New("maria", memory.New())

	res, err := l.ImportExpensesCSV(context.Background(), strings.NewReader(validCSV))
	if err != nil {
		t.Fatalf("ImportExpensesCSV: %v", err)
	}
	if res.Added != 2 || len(res.RowErrors) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	list := l.ListExpenses()
	if list[0].ID != 1 || list[1].ID != 2 {
		t.Fatalf("imported rows get sequential ids: %+v", list)
	}
	if list[1].Value.Cents != 730 || list[1].Date.String() != "2025-01-03" {
		t.Fatalf("comma decimals and dd/mm/yyyy dates must parse: %+v", list[1])
	}
}

func TestImportSkipsBadRowsKeepsGoodOnes(t *testing.T) {
	csv := `Estabelecimento,Valor da Despesa,Data,Categoria
Padaria,12.50,2025-01-02,Alimentação
Metrô,7.30,2025-01-03,Transporte
Farmácia,abc,2025-01-04,Saúde
Escola,150.00,2025-01-05,Educação
Cinema,30.00,2025-01-06,Lazer
`
	l := New("maria", memory.New())

	res, err := l.ImportExpensesCSV(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportExpensesCSV: %v", err)
	}
	if res.Added != 4 {
		t.Fatalf("expected 4 added, got %d", res.Added)
	}
	if len(res.RowErrors) != 1 {
		t.Fatalf("expected 1 row error, got %v", res.RowErrors)
	}
	re := res.RowErrors[0]
	if re.Row != 3 || re.Line != 4 || re.Establishment != "Farmácia" || !errors.Is(re.Err, core.ErrInvalidAmount) {
		t.Fatalf("unexpected row error: %+v", re)
	}
	if got := re.Error(); got != "row 3, line 4 (Farmácia): "+core.ErrInvalidAmount.Error() {
		t.Fatalf("row error text = %q", got)
	}
	if got := l.TotalExpenses().Decimal(); got != "199.80" {
		t.Fatalf("total after partial import = %s", got)
	}
}

func TestImportMissingColumnAborts(t *testing.T) {
	csv := `Estabelecimento,Valor da Despesa,Data
Padaria,12.50,2025-01-02
`
	l := New("maria", memory.New())

	_, err := l.ImportExpensesCSV(context.Background(), strings.NewReader(csv))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for missing Categoria, got %v", err)
	}
	if len(l.ListExpenses()) != 0 {
		t.Fatalf("aborted import must have zero side effects")
	}
}

func TestImportInvalidUTF8Aborts(t *testing.T) {
	l := New("maria", memory.New())

	payload := append([]byte("Estabelecimento,Valor da Despesa,Data,Categoria\n"), 0xff, 0xfe)
	_, err := l.ImportExpensesCSV(context.Background(), bytes.NewReader(payload))
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}

func TestImportMalformedCSVAborts(t *testing.T) {
	l := New("maria", memory.New())

	csv := "Estabelecimento,Valor da Despesa,Data,Categoria\n\"unterminated,12.50,2025-01-02,Alimentação\n"
	_, err := l.ImportExpensesCSV(context.Background(), strings.NewReader(csv))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestImportSyncsOnceAfterBatch(t *testing.T) {
	st := memory.New()
	l := New("maria", st, WithAutoSync())

	res, err := l.ImportExpensesCSV(context.Background(), strings.NewReader(validCSV))
	if err != nil {
		t.Fatalf("ImportExpensesCSV: %v", err)
	}
	if res.Added != 2 {
		t.Fatalf("expected 2 added, got %d", res.Added)
	}
	if st.SaveCount() != 1 {
		t.Fatalf("batch import should push once, got %d saves", st.SaveCount())
	}
	table, _ := st.Load(context.Background(), "maria", store.KindExpenses)
	if len(table.Rows) != 2 {
		t.Fatalf("store should hold both rows, got %v", table.Rows)
	}
}

func TestExportExpensesCSV(t *testing.T) {
	l := New("maria", memory.New())
	mustAddExpense(t, l, "Padaria", core.CategoryFood, "12.50", core.NewDate(2025, 1, 2))

	var buf bytes.Buffer
	if err := l.ExportExpensesCSV(&buf); err != nil {
		t.Fatalf("ExportExpensesCSV: %v", err)
	}
	want := "ID,Data,Estabelecimento,Categoria,Valor\n1,2025-01-02,Padaria,Alimentação,12.50\n"
	if buf.String() != want {
		t.Fatalf("export mismatch:\n got  %q\n want %q", buf.String(), want)
	}
}

func TestExportSavingsCSV(t *testing.T) {
	l := New("maria", memory.New())
	if _, err := l.AddSavings(context.Background(), core.SavingSalary, core.Money{Cents: 500000}, core.NewDate(2025, 1, 5)); err != nil {
		t.Fatalf("AddSavings: %v", err)
	}

	var buf bytes.Buffer
	if err := l.ExportSavingsCSV(&buf); err != nil {
		t.Fatalf("ExportSavingsCSV: %v", err)
	}
	want := "ID,Tipo Entrada,Data,Valor\n1,Salário,2025-01-05,5000.00\n"
	if buf.String() != want {
		t.Fatalf("export mismatch:\n got  %q\n want %q", buf.String(), want)
	}
}
