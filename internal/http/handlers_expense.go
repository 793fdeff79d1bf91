package http

import (
	"encoding/json"
	"net/http"
	"time"

	"kharcha/internal/core"
)

type expenseJSON struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Kind        string    `json:"kind"`
	CategoryID  string    `json:"category_id,omitempty"`
	Note        string    `json:"note"`
	Input       string    `json:"input,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	TripID      string    `json:"trip_id,omitempty"`
	Method      string    `json:"method,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Reasoning   string    `json:"reasoning,omitempty"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID,
		AmountCents: e.Amount.Cents,
		Kind:        string(e.Kind),
		CategoryID:  e.CategoryID,
		Note:        e.Note,
		Input:       e.Input,
		OccurredAt:  e.OccurredAt,
		TripID:      e.TripID,
		Method:      e.Provenance.Method,
		Confidence:  e.Provenance.Confidence,
		Reasoning:   e.Provenance.Reasoning,
	}
}

func toExpenseList(list []core.Expense) []expenseJSON {
	out := make([]expenseJSON, len(list))
	for i, e := range list {
		out[i] = toExpenseJSON(e)
	}
	return out
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	vctx, err := parseView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.expenses.LoadView(r.Context(), vctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toExpenseList(list))
}

type createExpenseRequest struct {
	Text string `json:"text"`
	Date string `json:"date,omitempty"` // "2006-01-02", only needed outside the range
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireOwner(w, r); !ok {
		return
	}
	vctx, err := parseView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var explicit time.Time
	if req.Date != "" {
		explicit, err = time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			s.writeStatus(w, http.StatusUnprocessableEntity, "invalid date format, want YYYY-MM-DD")
			return
		}
	}

	e, err := s.expenses.Add(r.Context(), vctx, sanitizeInput(req.Text), explicit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(vctx.Owner)
	s.writeJSON(w, http.StatusCreated, toExpenseJSON(e))
}

type updateExpenseRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Kind        string `json:"kind"`
	CategoryID  string `json:"category_id"`
	Note        string `json:"note"`
	OccurredAt  string `json:"occurred_at"` // "2006-01-02"
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	current, err := s.expenses.Get(r.Context(), o, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req updateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	current.Amount = core.Money{Cents: req.AmountCents}
	current.Kind = core.Kind(req.Kind)
	current.CategoryID = req.CategoryID
	current.Note = sanitizeInput(req.Note)
	if req.OccurredAt != "" {
		day, err := time.ParseInLocation("2006-01-02", req.OccurredAt, time.UTC)
		if err != nil {
			s.writeStatus(w, http.StatusUnprocessableEntity, "invalid date format, want YYYY-MM-DD")
			return
		}
		current.OccurredAt = day
	}

	updated, err := s.expenses.Update(r.Context(), current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	s.writeJSON(w, http.StatusOK, toExpenseJSON(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.expenses.Delete(r.Context(), o, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	w.WriteHeader(http.StatusNoContent)
}
