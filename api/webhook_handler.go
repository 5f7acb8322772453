package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
)

// handlePaymentWebhook verifies, normalizes and applies one provider
// delivery. Response codes drive provider-side retry: 400 for payloads that
// can never verify, 500 for failures worth redelivering, 200 for everything
// applied or deliberately ignored.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}

	parseResult := payment.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if parseResult.Failure() {
		s.logger.Warn("rejecting webhook",
			slog.String("error_code", parseResult.ErrorCode()),
			slog.String("error", parseResult.ErrorMsg()))

		code := parseResult.ErrorCode()
		if code == "" {
			code = "invalid_signature"
		}
		message := parseResult.ErrorMessage()
		if message == "" {
			message = "webhook could not be verified"
		}
		writeError(w, http.StatusBadRequest, code, message)
		return
	}

	event := parseResult.Value()

	result := s.processor.Process(r.Context(), event)
	if result.Failure() {
		if result.IsRetryable() {
			// Non-2xx makes the provider redeliver.
			writeError(w, http.StatusInternalServerError, "processing_failed", "event processing failed")
			return
		}

		// Permanent failures are acknowledged, redelivery cannot fix them.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
