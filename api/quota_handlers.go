package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/quota"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

func (s *Server) handleGetQuotaPool(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	orgResult := s.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		s.writeOrgLookupFailure(w, orgResult)
		return
	}

	writeJSON(w, http.StatusOK, quota.QuotaPool(orgResult.Value(), s.catalog))
}

type entitlementsResponse struct {
	CanReview bool `json:"can_review"`
	CanTriage bool `json:"can_triage"`
}

// handleGetEntitlements reports what the organization, and optionally one of
// its members, can do right now. With a user_id query parameter the answer is
// additionally gated on that member's seat.
func (s *Server) handleGetEntitlements(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	orgResult := s.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		s.writeOrgLookupFailure(w, orgResult)
		return
	}
	org := orgResult.Value()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusOK, entitlementsResponse{
			CanReview: quota.EffectiveCanReview(org),
			CanTriage: quota.EffectiveCanTriage(org),
		})
		return
	}

	memberResult := s.store.FetchMember(orgID, userID)
	if memberResult.Failure() {
		if memberResult.Error() == models.ErrMemberNotFound {
			writeError(w, http.StatusNotFound, "member_not_found", "member does not belong to the organization")
			return
		}
		s.logger.Error("member lookup failed", slog.String("error", memberResult.ErrorMsg()))
		writeError(w, http.StatusInternalServerError, "internal_error", "member lookup failed")
		return
	}

	member := memberResult.Value()
	writeJSON(w, http.StatusOK, entitlementsResponse{
		CanReview: quota.CanUseReviews(member, org),
		CanTriage: quota.CanUseTriage(member, org),
	})
}

// handleGetEffectiveRepoSettings multiplies the repository's stored flags by
// the live subscription state and the acting member's seat.
func (s *Server) handleGetEffectiveRepoSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	repoFullName := r.URL.Query().Get("repo")
	userID := r.URL.Query().Get("user_id")

	if repoFullName == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "repo and user_id query parameters are required")
		return
	}

	orgResult := s.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		s.writeOrgLookupFailure(w, orgResult)
		return
	}

	repoResult := s.store.FetchRepositorySettings(orgID, repoFullName)
	if repoResult.Failure() {
		if repoResult.Error() == models.ErrRepoSettingsNotFound {
			writeError(w, http.StatusNotFound, "repository_not_found", "repository settings not found")
			return
		}
		s.logger.Error("repository settings lookup failed", slog.String("error", repoResult.ErrorMsg()))
		writeError(w, http.StatusInternalServerError, "internal_error", "repository settings lookup failed")
		return
	}

	memberResult := s.store.FetchMember(orgID, userID)
	if memberResult.Failure() {
		if memberResult.Error() == models.ErrMemberNotFound {
			writeError(w, http.StatusNotFound, "member_not_found", "member does not belong to the organization")
			return
		}
		s.logger.Error("member lookup failed", slog.String("error", memberResult.ErrorMsg()))
		writeError(w, http.StatusInternalServerError, "internal_error", "member lookup failed")
		return
	}

	settings := quota.EffectiveSettings(repoResult.Value(), orgResult.Value(), memberResult.Value())
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) writeOrgLookupFailure(w http.ResponseWriter, result utils.Result[*models.Organization]) {
	if result.Error() == models.ErrOrganizationNotFound {
		writeError(w, http.StatusNotFound, "organization_not_found", "organization does not exist")
		return
	}

	s.logger.Error("organization lookup failed", slog.String("error", result.ErrorMsg()))
	writeError(w, http.StatusInternalServerError, "internal_error", "organization lookup failed")
}
