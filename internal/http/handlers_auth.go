package http

import (
	"encoding/json"
	"net/http"
)

type signInRequest struct {
	IDToken string `json:"id_token"`
}

type signInResponse struct {
	Token string `json:"token"`
}

// handleGoogleSignIn exchanges a Google ID token for a session token.
func (s *Server) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		s.writeStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, err := s.identity.Exchange(r.Context(), req.IDToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, signInResponse{Token: token})
}
