package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// checkoutSessionPayload is a minimal local representation of a Stripe
// checkout.session object. Decoding into our own struct keeps the adapter
// independent from SDK struct churn across API versions.
type checkoutSessionPayload struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Quantity          int64  `json:"quantity"`
	Items             struct {
		Data []struct {
			Quantity         int64 `json:"quantity"`
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (s *subscriptionPayload) firstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

func (s *subscriptionPayload) seatQuantity() int {
	if s.Quantity > 0 {
		return int(s.Quantity)
	}
	for _, item := range s.Items.Data {
		if item.Quantity > 0 {
			return int(item.Quantity)
		}
	}
	return 0
}

func (s *subscriptionPayload) periodEnd() utils.NullTime {
	end := s.CurrentPeriodEnd
	if end == 0 {
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd > 0 {
				end = item.CurrentPeriodEnd
				break
			}
		}
	}
	if end == 0 {
		return utils.NullTime{}
	}
	return utils.NewNullTime(time.Unix(end, 0).UTC())
}

// ParseWebhook verifies the provider signature and normalizes the event into
// the closed WebhookEvent union. Signature failures are non-retryable: a
// redelivery of a tampered or misconfigured payload will never verify.
func ParseWebhook(payload []byte, signature string, secret string) utils.Result[*WebhookEvent] {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return utils.FailedResult[*WebhookEvent](err).
			AddErrorDetails("invalid_signature", "Webhook signature verification failed").
			NonRetryable().
			NonCapturable()
	}

	return NormalizeEvent(&event)
}

// NormalizeEvent converts a verified provider event into a WebhookEvent.
func NormalizeEvent(event *stripe.Event) utils.Result[*WebhookEvent] {
	normalized := &WebhookEvent{
		ID:           event.ID,
		ProviderType: string(event.Type),
		Type:         MapEventType(string(event.Type)),
	}

	switch normalized.Type {
	case EventCheckoutCompleted:
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return failedDecode(normalized.ProviderType, err)
		}

		email := session.CustomerEmail
		if email == "" {
			email = session.CustomerDetails.Email
		}

		normalized.Checkout = &NormalizedCheckout{
			ID:             session.ID,
			SubscriptionID: strings.TrimSpace(session.Subscription),
			CustomerID:     strings.TrimSpace(session.Customer),
			CustomerEmail:  strings.ToLower(strings.TrimSpace(email)),
			Metadata:       Metadata(session.Metadata),
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionRevoked:
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return failedDecode(normalized.ProviderType, err)
		}

		normalized.Subscription = &NormalizedSubscription{
			ID:                sub.ID,
			CustomerID:        strings.TrimSpace(sub.Customer),
			PriceID:           sub.firstPriceID(),
			Quantity:          sub.seatQuantity(),
			Status:            MapSubscriptionStatus(sub.Status),
			RawStatus:         sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  sub.periodEnd(),
			Metadata:          Metadata(sub.Metadata),
		}

		if normalized.Type == EventSubscriptionUpdated {
			normalized.Type = refineUpdateType(event, &sub)
		}

	case EventUnknown:
		// Providers add event types over time. Leave both payload fields nil
		// and let the processor skip it.
	}

	return utils.SuccessResult(normalized)
}

// refineUpdateType splits provider update events into the scheduled
// cancellation and reactivation cases, using the previous attributes the
// provider attaches to update deliveries.
func refineUpdateType(event *stripe.Event, sub *subscriptionPayload) WebhookEventType {
	previous, hadPrevious := event.Data.PreviousAttributes["cancel_at_period_end"]

	if sub.CancelAtPeriodEnd {
		return EventSubscriptionCanceled
	}

	if hadPrevious {
		if wasCancelling, ok := previous.(bool); ok && wasCancelling {
			return EventSubscriptionUncanceled
		}
	}

	return EventSubscriptionUpdated
}

func failedDecode(providerType string, err error) utils.Result[*WebhookEvent] {
	return utils.FailedResult[*WebhookEvent](fmt.Errorf("decode %s payload: %w", providerType, err)).
		AddErrorDetails("invalid_payload", "Webhook payload could not be decoded").
		NonRetryable()
}
