// Package api provides the HTTP surface: the payment webhook endpoint and
// the seat, subscription and quota routes consumed by the console backend.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/processors/subscription"
	"github.com/getreviewhawk/reviewhawk/billing-engine/seats"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// maxWebhookBodyBytes bounds webhook payloads. Provider events are a few KB;
// anything larger is hostile.
const maxWebhookBodyBytes = 1 << 20

// Store is the read surface the HTTP layer needs beyond the ledger and the
// processor, implemented by models.ApiStore.
type Store interface {
	FetchOrganization(orgID string) utils.Result[*models.Organization]
	FetchMember(orgID string, userID string) utils.Result[*models.OrganizationMember]
	FetchRepositorySettings(orgID string, repoFullName string) utils.Result[*models.RepositorySettings]
	SaveOrgSubscription(org *models.Organization) utils.Result[*models.Organization]
}

type Config struct {
	WebhookSecret string
}

// Server is the HTTP API server.
type Server struct {
	logger        *slog.Logger
	store         Store
	ledger        *seats.Ledger
	processor     *subscription.Processor
	provider      payment.Provider
	catalog       *plans.Catalog
	webhookSecret string
	mux           *chi.Mux
}

func NewServer(logger *slog.Logger, store Store, ledger *seats.Ledger, processor *subscription.Processor, provider payment.Provider, catalog *plans.Catalog, cfg Config) *Server {
	srv := &Server{
		logger:        logger.With("component", "api"),
		store:         store,
		ledger:        ledger,
		processor:     processor,
		provider:      provider,
		catalog:       catalog,
		webhookSecret: cfg.WebhookSecret,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)

	mux.Get("/healthz", srv.handleHealthz)

	mux.Post("/webhooks/payment", srv.handlePaymentWebhook)

	mux.Route("/api/organizations/{orgID}", func(r chi.Router) {
		r.Get("/quota", srv.handleGetQuotaPool)
		r.Get("/entitlements", srv.handleGetEntitlements)
		r.Get("/repositories/settings", srv.handleGetEffectiveRepoSettings)

		r.Get("/seats", srv.handleGetSeatAvailability)
		r.Post("/seats/assign", srv.handleAssignSeat)
		r.Post("/seats/unassign", srv.handleUnassignSeat)
		r.Post("/seats/reassign", srv.handleReassignSeat)

		r.Post("/subscription/checkout", srv.handleCreateCheckout)
		r.Post("/subscription/cancel", srv.handleCancelSubscription)
		r.Post("/subscription/reactivate", srv.handleReactivateSubscription)
		r.Post("/subscription/seat-count", srv.handleUpdateSeatCount)
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeSeatResult maps ledger error codes onto HTTP statuses. Capacity and
// precondition violations are caller errors, everything else is a 500.
func (s *Server) writeSeatResult(w http.ResponseWriter, result utils.AnyResult) {
	if result.Success() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	switch result.ErrorCode() {
	case "seat_capacity_exceeded", "seat_already_assigned", "no_seat_held":
		writeError(w, http.StatusConflict, result.ErrorCode(), result.ErrorMessage())
	case "no_active_subscription":
		writeError(w, http.StatusPaymentRequired, result.ErrorCode(), "Reviews require an active paid subscription")
	case "member_not_found", "organization_not_found":
		writeError(w, http.StatusNotFound, result.ErrorCode(), result.ErrorMessage())
	default:
		s.logger.Error("seat operation failed", slog.String("error", result.ErrorMsg()))
		writeError(w, http.StatusInternalServerError, "internal_error", "seat operation failed")
	}
}
