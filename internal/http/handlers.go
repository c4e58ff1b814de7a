package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"financas/internal/core"
	"financas/internal/ledger"
	"financas/internal/log"
	"financas/internal/session"
	"financas/internal/store"
)

type expenseRequest struct {
	ID            int64  `json:"id,omitempty"`
	Establishment string `json:"establishment"`
	Category      string `json:"category"`
	Value         string `json:"value"`
	Date          string `json:"date"`
}

type savingsRequest struct {
	ID    int64  `json:"id,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Date  string `json:"date"`
}

type expenseJSON struct {
	ID            int64  `json:"id"`
	Establishment string `json:"establishment"`
	Category      string `json:"category"`
	Value         string `json:"value"`
	Date          string `json:"date"`
}

type savingsJSON struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Date  string `json:"date"`
}

// mutationResponse carries the stored record plus the user-facing confirmation
// line. Warning is set when the record was kept locally but the store push
// failed.
type mutationResponse struct {
	Record       any    `json:"record"`
	Confirmation string `json:"confirmation"`
	Warning      string `json:"warning,omitempty"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:            e.ID,
		Establishment: e.Establishment,
		Category:      string(e.Category),
		Value:         e.Value.Decimal(),
		Date:          e.Date.String(),
	}
}

func toSavingsJSON(s core.SavingsEntry) savingsJSON {
	return savingsJSON{
		ID:    s.ID,
		Type:  string(s.Type),
		Value: s.Value.Decimal(),
		Date:  s.Date.String(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseMoneyDate(value, date string) (core.Money, core.Date, error) {
	m, err := core.ParseMoney(value)
	if err != nil {
		return core.Money{}, core.Date{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Money{}, core.Date{}, err
	}
	return m, d, nil
}

// notify publishes a collection-changed event. Failures are logged and
// swallowed; the periodic mirror pass picks up anything missed.
func (s *Server) notify(r *http.Request, userID string, kind store.Kind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishCollectionSync(r.Context(), userID, kind); err != nil {
		slog.WarnContext(r.Context(), "Sync message publish failed",
			log.FieldUserID, userID, log.FieldKind, kind.String(), log.FieldError, err)
	}
}

// mutationOutcome finishes a mutation request. A *store.SyncError still means
// the record was written locally, so the response is a success with a warning
// instead of an error.
func mutationOutcome(w http.ResponseWriter, err error, record any, confirmation string) bool {
	var syncErr *store.SyncError
	if errors.As(err, &syncErr) {
		writeJSON(w, http.StatusOK, mutationResponse{
			Record:       record,
			Confirmation: confirmation,
			Warning:      "saved locally, store update failed: " + syncErr.Error(),
		})
		return true
	}
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	writeJSON(w, http.StatusCreated, mutationResponse{Record: record, Confirmation: confirmation})
	return true
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, date, err := parseMoneyDate(req.Value, req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	e, err := sess.Ledger.AddExpense(r.Context(), strings.TrimSpace(req.Establishment),
		core.Category(strings.TrimSpace(req.Category)), value, date)
	if mutationOutcome(w, err, toExpenseJSON(e), e.Confirmation()) {
		s.notify(r, sess.UserID, store.KindExpenses)
	}
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	value, date, err := parseMoneyDate(req.Value, req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	e, err := sess.Ledger.EditExpense(r.Context(), req.ID, strings.TrimSpace(req.Establishment),
		core.Category(strings.TrimSpace(req.Category)), value, date)
	if mutationOutcome(w, err, toExpenseJSON(e), e.UpdateConfirmation()) {
		s.notify(r, sess.UserID, store.KindExpenses)
	}
}

func (s *Server) handleAddSavings(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req savingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, date, err := parseMoneyDate(req.Value, req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := sess.Ledger.AddSavings(r.Context(),
		core.SavingType(strings.TrimSpace(req.Type)), value, date)
	if mutationOutcome(w, err, toSavingsJSON(entry), entry.Confirmation()) {
		s.notify(r, sess.UserID, store.KindSavings)
	}
}

func (s *Server) handleEditSavings(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req savingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	value, date, err := parseMoneyDate(req.Value, req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := sess.Ledger.EditSavings(r.Context(), req.ID,
		core.SavingType(strings.TrimSpace(req.Type)), value, date)
	if mutationOutcome(w, err, toSavingsJSON(entry), entry.UpdateConfirmation()) {
		s.notify(r, sess.UserID, store.KindSavings)
	}
}

type expenseSnapshotRequest struct {
	Rows []expenseRequest `json:"rows"`
}

type savingsSnapshotRequest struct {
	Rows []savingsRequest `json:"rows"`
}

type snapshotResponse struct {
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Removed int    `json:"removed"`
	Warning string `json:"warning,omitempty"`
}

// handleExpenseSnapshot applies an edited grid in one shot: rows with an id
// replace existing records, rows without one are added. One bad row rejects
// the whole snapshot.
func (s *Server) handleExpenseSnapshot(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req expenseSnapshotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	edits := make([]ledger.ExpenseEdit, 0, len(req.Rows))
	for i, row := range req.Rows {
		value, date, err := parseMoneyDate(row.Value, row.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("row %d: %v", i+1, err))
			return
		}
		edits = append(edits, ledger.ExpenseEdit{
			ID:            row.ID,
			Establishment: strings.TrimSpace(row.Establishment),
			Category:      core.Category(strings.TrimSpace(row.Category)),
			Value:         value,
			Date:          date,
		})
	}

	res, err := sess.Ledger.ApplyExpenseSnapshot(r.Context(), edits)
	s.snapshotOutcome(w, r, sess, store.KindExpenses, res, err)
}

func (s *Server) handleSavingsSnapshot(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req savingsSnapshotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	edits := make([]ledger.SavingsEdit, 0, len(req.Rows))
	for i, row := range req.Rows {
		value, date, err := parseMoneyDate(row.Value, row.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("row %d: %v", i+1, err))
			return
		}
		edits = append(edits, ledger.SavingsEdit{
			ID:    row.ID,
			Type:  core.SavingType(strings.TrimSpace(row.Type)),
			Value: value,
			Date:  date,
		})
	}

	res, err := sess.Ledger.ApplySavingsSnapshot(r.Context(), edits)
	s.snapshotOutcome(w, r, sess, store.KindSavings, res, err)
}

func (s *Server) snapshotOutcome(w http.ResponseWriter, r *http.Request, sess *session.Session, kind store.Kind, res ledger.SnapshotResult, err error) {
	resp := snapshotResponse{Added: res.Added, Updated: res.Updated, Removed: res.Removed}

	var syncErr *store.SyncError
	if errors.As(err, &syncErr) {
		resp.Warning = "applied locally, store update failed: " + syncErr.Error()
		err = nil
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
	if res.Added+res.Updated > 0 {
		s.notify(r, sess.UserID, kind)
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	expenses := sess.Ledger.ListExpenses()
	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": out})
}

func (s *Server) handleListSavings(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	savings := sess.Ledger.ListSavings()
	out := make([]savingsJSON, 0, len(savings))
	for _, entry := range savings {
		out = append(out, toSavingsJSON(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"savings": out})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	byCategory := make(map[string]string)
	for cat, total := range sess.Ledger.ExpensesByCategory() {
		byCategory[string(cat)] = total.Decimal()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_expenses": sess.Ledger.TotalExpenses().Decimal(),
		"total_savings":  sess.Ledger.TotalSavings().Decimal(),
		"balance":        sess.Ledger.Balance().Decimal(),
		"by_category":    byCategory,
	})
}

type rowErrorJSON struct {
	Row           int    `json:"row"`
	Line          int    `json:"line"`
	Establishment string `json:"establishment"`
	Error         string `json:"error"`
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	res, err := sess.Ledger.ImportExpensesCSV(r.Context(), r.Body)

	var syncErr *store.SyncError
	warning := ""
	if errors.As(err, &syncErr) {
		warning = "imported locally, store update failed: " + syncErr.Error()
		err = nil
	}
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrEncoding), errors.Is(err, ledger.ErrFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	rowErrs := make([]rowErrorJSON, 0, len(res.RowErrors))
	for _, re := range res.RowErrors {
		rowErrs = append(rowErrs, rowErrorJSON{
			Row:           re.Row,
			Line:          re.Line,
			Establishment: re.Establishment,
			Error:         re.Err.Error(),
		})
	}
	body := map[string]any{"added": res.Added, "row_errors": rowErrs}
	if warning != "" {
		body["warning"] = warning
	}
	writeJSON(w, http.StatusOK, body)

	if res.Added > 0 {
		s.notify(r, sess.UserID, store.KindExpenses)
	}
}

func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)
	if err := sess.Ledger.ExportExpensesCSV(w); err != nil {
		slog.ErrorContext(r.Context(), "Expense export failed",
			log.FieldUserID, sess.UserID, log.FieldError, err)
	}
}

func (s *Server) handleExportSavings(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="savings.csv"`)
	if err := sess.Ledger.ExportSavingsCSV(w); err != nil {
		slog.ErrorContext(r.Context(), "Savings export failed",
			log.FieldUserID, sess.UserID, log.FieldError, err)
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Ledger.Sync(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "synced",
		"dirty":  len(sess.Ledger.Dirty()),
	})
}
