package http

import (
	"encoding/json"
	"net/http"
	"time"

	"kharcha/internal/core"
)

type tripJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"` // "2006-01-02"
	End   string `json:"end"`
}

func toTripJSON(t core.Trip) tripJSON {
	return tripJSON{
		ID:    t.ID,
		Name:  t.Name,
		Start: t.Start.UTC().Format("2006-01-02"),
		End:   t.End.UTC().Format("2006-01-02"),
	}
}

// handleListTrips returns the owner's trips; with from/to parameters only
// the trips whose span overlaps that range.
func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	o := owner(r)
	q := r.URL.Query()

	var (
		list []core.Trip
		err  error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		var dr core.DateRange
		dr, err = core.ParseDateRange(q.Get("from"), q.Get("to"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		list, err = s.trips.ListOverlapping(r.Context(), o, dr)
	} else {
		list, err = s.trips.List(r.Context(), o)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]tripJSON, len(list))
	for i, t := range list {
		out[i] = toTripJSON(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

type createTripRequest struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	start, err := time.ParseInLocation("2006-01-02", req.Start, time.UTC)
	if err != nil {
		s.writeError(w, r, core.ErrInvalidDateRange)
		return
	}
	end, err := time.ParseInLocation("2006-01-02", req.End, time.UTC)
	if err != nil {
		s.writeError(w, r, core.ErrInvalidDateRange)
		return
	}

	trip, err := s.trips.Create(r.Context(), core.Trip{
		Owner: o,
		Name:  sanitizeInput(req.Name),
		Start: start,
		End:   end,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	s.writeJSON(w, http.StatusCreated, toTripJSON(trip))
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.trips.Delete(r.Context(), o, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	w.WriteHeader(http.StatusNoContent)
}
