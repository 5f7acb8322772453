package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type seatRequest struct {
	UserID string `json:"user_id"`
}

type reassignSeatRequest struct {
	SourceUserID string `json:"source_user_id"`
	TargetUserID string `json:"target_user_id"`
}

func (s *Server) handleGetSeatAvailability(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	result := s.ledger.Availability(orgID)
	if result.Failure() {
		s.writeSeatResult(w, result)
		return
	}

	writeJSON(w, http.StatusOK, result.Value())
}

func (s *Server) handleAssignSeat(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req seatRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	s.writeSeatResult(w, s.ledger.Assign(orgID, req.UserID))
}

func (s *Server) handleUnassignSeat(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req seatRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	s.writeSeatResult(w, s.ledger.Unassign(orgID, req.UserID))
}

func (s *Server) handleReassignSeat(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req reassignSeatRequest
	if err := decodeBody(r, &req); err != nil || req.SourceUserID == "" || req.TargetUserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "source_user_id and target_user_id are required")
		return
	}
	if req.SourceUserID == req.TargetUserID {
		writeError(w, http.StatusBadRequest, "invalid_request", "source and target must differ")
		return
	}

	s.writeSeatResult(w, s.ledger.Reassign(orgID, req.SourceUserID, req.TargetUserID))
}
