package http

import (
	"encoding/json"
	"net/http"

	"kharcha/internal/core"
)

type budgetJSON struct {
	AmountCents int64    `json:"amount_cents"`
	Months      []string `json:"months"`
}

// handleGetBudget returns the period budget for the view: the sum over the
// months the view overlaps (trip views always span the whole trip).
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	vctx, err := parseView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.ledger.PeriodBudget(r.Context(), vctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The month list must describe the same rows the total was summed over,
	// so it follows the ledger's trip/casual derivation, not the raw range.
	months, err := s.ledger.Months(r.Context(), vctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names := make([]string, len(months))
	for i, m := range months {
		names[i] = string(m)
	}
	s.writeJSON(w, http.StatusOK, budgetJSON{AmountCents: total.Cents, Months: names})
}

type setBudgetRequest struct {
	AmountCents int64 `json:"amount_cents"` // per month, applied to every touched month
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	vctx, err := parseView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req setBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AmountCents < 0 {
		s.writeError(w, r, core.ErrInvalidAmount)
		return
	}

	if err := s.ledger.SetBudget(r.Context(), vctx, core.Money{Cents: req.AmountCents}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	w.WriteHeader(http.StatusNoContent)
}
