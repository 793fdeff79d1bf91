package http

import (
	"encoding/json"
	"net/http"
)

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	o := owner(r)

	key := s.categoriesKey(o)
	cached, ok := s.categoryCache.Get(key)
	if !ok {
		list, err := s.categories.List(r.Context(), o)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.categoryCache.Set(key, list)
		cached = list
	}

	out := make([]categoryJSON, len(cached))
	for i, c := range cached {
		out[i] = categoryJSON{ID: c.ID, Name: c.Name}
	}
	s.writeJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c, err := s.categories.Create(r.Context(), o, sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	s.writeJSON(w, http.StatusCreated, categoryJSON{ID: c.ID, Name: c.Name})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.categories.Delete(r.Context(), o, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.bumpGeneration(o)
	w.WriteHeader(http.StatusNoContent)
}
