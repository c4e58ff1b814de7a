package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"financas/internal/middleware/ratelimit"
	"financas/internal/session"
	"financas/internal/store"
	"financas/internal/store/memory"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *fakeNotifier) PublishCollectionSync(_ context.Context, userID string, kind store.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, userID+"/"+kind.String())
	return nil
}

func (f *fakeNotifier) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestServer(t *testing.T, st store.Store, opts ...Option) *Server {
	t.Helper()
	sessions := session.NewManager(st, session.WithAutoSync())
	return NewServer(":0", sessions, opts...)
}

func doJSON(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, memory.New())
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: got %d", rec.Code)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	s := newTestServer(t, memory.New(), WithReadyCheck(func(context.Context) error {
		return errors.New("store unreachable")
	}))
	rec := doJSON(t, s.Handler(), http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: got %d, want 503", rec.Code)
	}
}

func TestMissingUserHeader(t *testing.T) {
	s := newTestServer(t, memory.New())
	rec := doJSON(t, s.Handler(), http.MethodGet, "/expenses", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestAddAndListExpenses(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: got %d, body %s", rec.Code, rec.Body.String())
	}

	var added struct {
		Record       expenseJSON `json:"record"`
		Confirmation string      `json:"confirmation"`
		Warning      string      `json:"warning"`
	}
	decode(t, rec, &added)
	if added.Record.ID != 1 {
		t.Fatalf("first expense id: got %d, want 1", added.Record.ID)
	}
	if added.Confirmation == "" {
		t.Fatal("confirmation should not be empty")
	}
	if added.Warning != "" {
		t.Fatalf("unexpected warning: %q", added.Warning)
	}

	rec = doJSON(t, h, http.MethodGet, "/expenses", "maria", "")
	var list struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	decode(t, rec, &list)
	if len(list.Expenses) != 1 || list.Expenses[0].Value != "12.50" {
		t.Fatalf("list: got %+v", list.Expenses)
	}
}

func TestAddExpenseValidation(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	for name, body := range map[string]string{
		"bad category": `{"establishment":"Padaria","category":"Nope","value":"12.50","date":"2025-01-02"}`,
		"bad amount":   `{"establishment":"Padaria","category":"Alimentação","value":"abc","date":"2025-01-02"}`,
		"bad date":     `{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"sometime"}`,
		"not json":     `{"establishment":`,
	} {
		rec := doJSON(t, h, http.MethodPost, "/expenses", "maria", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d, want 400", name, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/expenses", "maria", "")
	var list struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	decode(t, rec, &list)
	if len(list.Expenses) != 0 {
		t.Fatalf("rejected requests must not add records, got %+v", list.Expenses)
	}
}

func TestEditExpenseNotFound(t *testing.T) {
	s := newTestServer(t, memory.New())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/expenses/edit", "maria",
		`{"id":99,"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestSavingsAndSummary(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	rec := doJSON(t, h, http.MethodPost, "/savings", "maria",
		`{"type":"Salário","value":"5000.00","date":"2025-01-05"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add savings: got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/summary", "maria", "")
	var summary struct {
		TotalExpenses string            `json:"total_expenses"`
		TotalSavings  string            `json:"total_savings"`
		Balance       string            `json:"balance"`
		ByCategory    map[string]string `json:"by_category"`
	}
	decode(t, rec, &summary)
	if summary.TotalExpenses != "12.50" || summary.TotalSavings != "5000.00" {
		t.Fatalf("totals: %+v", summary)
	}
	if summary.Balance != "4987.50" {
		t.Fatalf("balance: got %q", summary.Balance)
	}
	if summary.ByCategory["Alimentação"] != "12.50" {
		t.Fatalf("by_category: %+v", summary.ByCategory)
	}
}

func TestExpenseSnapshot(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Mercado","category":"Alimentação","value":"187.30","date":"2025-01-03"}`)

	// Update id 1, add a new row, omit id 2.
	rec := doJSON(t, h, http.MethodPost, "/expenses/snapshot", "maria",
		`{"rows":[
			{"id":1,"establishment":"Padaria Central","category":"Alimentação","value":"15.00","date":"2025-01-02"},
			{"establishment":"Uber","category":"Transporte","value":"24.90","date":"2025-01-04"}
		]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: got %d, body %s", rec.Code, rec.Body.String())
	}

	var res snapshotResponse
	decode(t, rec, &res)
	if res.Added != 1 || res.Updated != 1 || res.Removed != 1 {
		t.Fatalf("snapshot result: %+v", res)
	}

	// The omitted record is kept, never deleted.
	rec = doJSON(t, h, http.MethodGet, "/expenses", "maria", "")
	var list struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	decode(t, rec, &list)
	if len(list.Expenses) != 3 {
		t.Fatalf("expenses after snapshot: got %d, want 3", len(list.Expenses))
	}
	if list.Expenses[0].Establishment != "Padaria Central" || list.Expenses[0].Value != "15.00" {
		t.Fatalf("id 1 not updated: %+v", list.Expenses[0])
	}
}

func TestExpenseSnapshotBadRowRejectsWhole(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)

	rec := doJSON(t, h, http.MethodPost, "/expenses/snapshot", "maria",
		`{"rows":[
			{"id":1,"establishment":"Padaria","category":"Alimentação","value":"15.00","date":"2025-01-02"},
			{"establishment":"Uber","category":"Transporte","value":"oops","date":"2025-01-04"}
		]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/expenses", "maria", "")
	var list struct {
		Expenses []expenseJSON `json:"expenses"`
	}
	decode(t, rec, &list)
	if len(list.Expenses) != 1 || list.Expenses[0].Value != "12.50" {
		t.Fatalf("bad snapshot must not change anything, got %+v", list.Expenses)
	}
}

func TestStoreFailureReturnsWarning(t *testing.T) {
	st := memory.New()
	s := newTestServer(t, st)
	h := s.Handler()

	// Hydrate the session first so only the save fails.
	doJSON(t, h, http.MethodGet, "/expenses", "maria", "")
	st.FailSaves(errors.New("backend down"))

	rec := doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200 with warning", rec.Code)
	}

	var resp struct {
		Record  expenseJSON `json:"record"`
		Warning string      `json:"warning"`
	}
	decode(t, rec, &resp)
	if resp.Record.ID != 1 {
		t.Fatalf("record must be kept locally, got %+v", resp.Record)
	}
	if resp.Warning == "" {
		t.Fatal("expected a divergence warning")
	}
}

func TestImportAndExportCSV(t *testing.T) {
	s := newTestServer(t, memory.New())
	h := s.Handler()

	csvBody := "Estabelecimento,Valor da Despesa,Data,Categoria\n" +
		"Padaria,\"12,50\",2025-01-02,Alimentação\n" +
		"Mercado,187.30,2025-01-03,Alimentação\n"
	rec := doJSON(t, h, http.MethodPost, "/import/csv", "maria", csvBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: got %d, body %s", rec.Code, rec.Body.String())
	}
	var imported struct {
		Added     int            `json:"added"`
		RowErrors []rowErrorJSON `json:"row_errors"`
	}
	decode(t, rec, &imported)
	if imported.Added != 2 || len(imported.RowErrors) != 0 {
		t.Fatalf("import result: %+v", imported)
	}

	rec = doJSON(t, h, http.MethodGet, "/export/expenses.csv", "maria", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type: got %q", ct)
	}
	want := "ID,Data,Estabelecimento,Categoria,Valor\n" +
		"1,2025-01-02,Padaria,Alimentação,12.50\n" +
		"2,2025-01-03,Mercado,Alimentação,187.30\n"
	if rec.Body.String() != want {
		t.Fatalf("export:\ngot  %q\nwant %q", rec.Body.String(), want)
	}
}

func TestImportBadFormat(t *testing.T) {
	s := newTestServer(t, memory.New())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/import/csv", "maria",
		"Estabelecimento,Valor\nPadaria,12.50\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestManualSyncFlushes(t *testing.T) {
	st := memory.New()
	sessions := session.NewManager(st) // no auto-sync
	s := NewServer(":0", sessions)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	if st.SaveCount() != 0 {
		t.Fatalf("no store push expected before /sync, got %d", st.SaveCount())
	}

	rec := doJSON(t, h, http.MethodPost, "/sync", "maria", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: got %d, body %s", rec.Code, rec.Body.String())
	}
	if st.SaveCount() != 1 {
		t.Fatalf("sync should push once, got %d saves", st.SaveCount())
	}
}

func TestMutationsPublishSyncMessages(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestServer(t, memory.New(), WithNotifier(notifier))
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	doJSON(t, h, http.MethodPost, "/savings", "maria",
		`{"type":"Salário","value":"5000.00","date":"2025-01-05"}`)

	events := notifier.Events()
	if len(events) != 2 || events[0] != "maria/expenses" || events[1] != "maria/savings" {
		t.Fatalf("events: %v", events)
	}
}

func TestNotifierFailureDoesNotFailRequest(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("broker down")}
	s := newTestServer(t, memory.New(), WithNotifier(notifier))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish failure must not fail the request, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	st := memory.New()
	sessions := session.NewManager(st)
	s := NewServer(":0", sessions)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/expenses", "maria",
		`{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`)
	rec := doJSON(t, h, http.MethodPost, "/logout", "maria", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: got %d", rec.Code)
	}
	if st.SaveCount() != 1 {
		t.Fatalf("logout should flush, got %d saves", st.SaveCount())
	}
	if sessions.Count() != 0 {
		t.Fatalf("sessions after logout: got %d, want 0", sessions.Count())
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	s := newTestServer(t, memory.New(), WithRateLimit(ratelimit.Config{
		RequestsPerMinute: 2,
		CleanupInterval:   time.Minute,
	}))
	h := s.Handler()

	body := `{"establishment":"Padaria","category":"Alimentação","value":"12.50","date":"2025-01-02"}`
	for i := 0; i < 2; i++ {
		if rec := doJSON(t, h, http.MethodPost, "/expenses", "maria", body); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	if rec := doJSON(t, h, http.MethodPost, "/expenses", "maria", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third mutation: got %d, want 429", rec.Code)
	}

	// Reads are not throttled.
	if rec := doJSON(t, h, http.MethodGet, "/expenses", "maria", ""); rec.Code != http.StatusOK {
		t.Fatalf("read after limit: got %d", rec.Code)
	}
}
