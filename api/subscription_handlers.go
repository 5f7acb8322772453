package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

type checkoutRequest struct {
	Tier          string `json:"tier"`
	BillingCycle  string `json:"billing_cycle"`
	SeatCount     int    `json:"seat_count"`
	CustomerEmail string `json:"customer_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

type seatCountRequest struct {
	SeatCount int `json:"seat_count"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to decode request body")
		return
	}

	tier := plans.Tier(req.Tier)
	if !plans.TierGrantsReview(tier) {
		writeError(w, http.StatusBadRequest, "invalid_tier", "tier must be a purchasable plan")
		return
	}

	cycle := plans.BillingCycle(req.BillingCycle)
	if cycle != plans.CycleMonthly && cycle != plans.CycleYearly {
		writeError(w, http.StatusBadRequest, "invalid_billing_cycle", "billing_cycle must be monthly or yearly")
		return
	}

	orgResult := s.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		s.writeOrgLookupFailure(w, orgResult)
		return
	}

	result := s.provider.CreateCheckout(r.Context(), payment.CheckoutParams{
		OrgID:         orgID,
		Tier:          tier,
		Cycle:         cycle,
		SeatCount:     req.SeatCount,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if result.Failure() {
		// A missing price mapping is a deployment error, never a silent
		// fallback to another tier.
		s.logger.Error("checkout creation failed",
			slog.String("organization_id", orgID),
			slog.String("error_code", result.ErrorCode()),
			slog.String("error", result.ErrorMsg()))
		s.writeProviderFailure(w, result)
		return
	}

	session := result.Value()
	writeJSON(w, http.StatusCreated, map[string]string{
		"checkout_id":  session.CheckoutID,
		"checkout_url": session.CheckoutURL,
	})
}

// handleCancelSubscription schedules the cancellation at period end. The
// definitive state lands through the webhook; the local row is updated too so
// the console reflects the change immediately.
func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	org, ok := s.fetchSubscribedOrg(w, orgID)
	if !ok {
		return
	}

	result := s.provider.CancelSubscription(r.Context(), org.StoredSubscriptionID())
	if result.Failure() {
		s.writeProviderFailure(w, result)
		return
	}

	sub := result.Value()
	org.CancelAtPeriodEnd = true
	org.SubscriptionExpiresAt = sub.CurrentPeriodEnd

	if saveResult := s.store.SaveOrgSubscription(org); saveResult.Failure() {
		s.logger.Error("error while persisting cancellation", slog.String("error", saveResult.ErrorMsg()))
		utils.CaptureErrorResult(saveResult)
		writeError(w, http.StatusInternalServerError, "internal_error", "unable to persist cancellation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "cancellation_scheduled",
		"cancel_at_period_end": true,
	})
}

func (s *Server) handleReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	org, ok := s.fetchSubscribedOrg(w, orgID)
	if !ok {
		return
	}

	result := s.provider.ReactivateSubscription(r.Context(), org.StoredSubscriptionID())
	if result.Failure() {
		s.writeProviderFailure(w, result)
		return
	}

	status := plans.StatusActive
	org.SubscriptionStatus = &status
	org.CancelAtPeriodEnd = false
	org.SubscriptionExpiresAt = utils.NullTime{}

	if saveResult := s.store.SaveOrgSubscription(org); saveResult.Failure() {
		s.logger.Error("error while persisting reactivation", slog.String("error", saveResult.ErrorMsg()))
		utils.CaptureErrorResult(saveResult)
		writeError(w, http.StatusInternalServerError, "internal_error", "unable to persist reactivation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "reactivated",
		"cancel_at_period_end": false,
	})
}

// handleUpdateSeatCount changes the purchased seat quantity. The provider
// call may be a partial no-op on plans without seat based billing, in which
// case the count is tracked locally only.
func (s *Server) handleUpdateSeatCount(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req seatCountRequest
	if err := decodeBody(r, &req); err != nil || req.SeatCount < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "seat_count must be a positive integer")
		return
	}

	org, ok := s.fetchSubscribedOrg(w, orgID)
	if !ok {
		return
	}

	result := s.provider.UpdateSeatQuantity(r.Context(), org.StoredSubscriptionID(), req.SeatCount)
	if result.Failure() {
		s.writeProviderFailure(w, result)
		return
	}

	org.SeatCount = req.SeatCount

	if saveResult := s.store.SaveOrgSubscription(org); saveResult.Failure() {
		s.logger.Error("error while persisting seat count", slog.String("error", saveResult.ErrorMsg()))
		utils.CaptureErrorResult(saveResult)
		writeError(w, http.StatusInternalServerError, "internal_error", "unable to persist seat count")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"seat_count": req.SeatCount})
}

func (s *Server) fetchSubscribedOrg(w http.ResponseWriter, orgID string) (*models.Organization, bool) {
	orgResult := s.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		s.writeOrgLookupFailure(w, orgResult)
		return nil, false
	}

	fetched := orgResult.Value()
	if fetched.StoredSubscriptionID() == "" {
		writeError(w, http.StatusPaymentRequired, "no_active_subscription", "organization has no subscription on file")
		return nil, false
	}

	return fetched, true
}

func (s *Server) writeProviderFailure(w http.ResponseWriter, result utils.AnyResult) {
	code := result.ErrorCode()
	if code == "" {
		code = "provider_error"
	}
	writeError(w, http.StatusBadGateway, code, "payment provider call failed")
}
