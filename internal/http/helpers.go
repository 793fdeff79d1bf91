package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/identity"
	"kharcha/internal/store"
	"kharcha/internal/trips"
)

type (
	requestIDKey struct{}
	ownerKey     struct{}
)

// owner returns the authenticated owner for the request, empty for
// anonymous callers. Anonymous reads succeed against no data; writes are
// rejected by requireOwner.
func owner(r *http.Request) string {
	v, _ := r.Context().Value(ownerKey{}).(string)
	return v
}

func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o := owner(r)
	if o == "" {
		s.writeStatus(w, http.StatusUnauthorized, "sign-in required")
		return "", false
	}
	return o, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// parseView builds the view context from from/to/trip query parameters. An
// absent range defaults to the current calendar month.
func parseView(r *http.Request) (core.ViewContext, error) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))

	var dr core.DateRange
	var err error
	if from == "" && to == "" {
		now := time.Now().UTC()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		dr = core.NewDateRange(first, first.AddDate(0, 1, -1))
	} else {
		dr, err = core.ParseDateRange(from, to)
		if err != nil {
			return core.ViewContext{}, err
		}
	}

	return core.ViewContext{
		Owner:  owner(r),
		TripID: strings.TrimSpace(q.Get("trip")),
		Range:  dr,
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cascade *trips.CascadeError

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeStatus(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrMissingAmount),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrDateOutOfRange),
		errors.Is(err, core.ErrInvalidDateRange),
		errors.Is(err, core.ErrInvalidTripSpan),
		errors.Is(err, core.ErrEmptyInput):
		s.writeStatus(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, identity.ErrInvalidSession), errors.Is(err, identity.ErrInvalidIDToken):
		s.writeStatus(w, http.StatusUnauthorized, "invalid credentials")
	case errors.As(err, &cascade):
		s.logger.ErrorContext(r.Context(), "cascade delete incomplete", "step", cascade.Step, "error", cascade.Err)
		s.writeStatus(w, http.StatusInternalServerError, fmt.Sprintf("trip deletion failed at %s; retry to finish", cascade.Step))
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "url", r.URL.Path, "error", err)
		s.writeStatus(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
