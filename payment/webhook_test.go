package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
)

const testWebhookSecret = "whsec_test_secret"

func parseSigned(t *testing.T, payload string) *WebhookEvent {
	t.Helper()

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	result := ParseWebhook(signed.Payload, signed.Header, testWebhookSecret)
	require.True(t, result.Success(), "parse failed: %v", result.Error())
	return result.Value()
}

func TestParseWebhookSignature(t *testing.T) {
	payload := `{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","status":"active"}}}`

	t.Run("rejects a bad signature as non-retryable", func(t *testing.T) {
		result := ParseWebhook([]byte(payload), "t=1,v1=deadbeef", testWebhookSecret)
		assert.True(t, result.Failure())
		assert.Equal(t, "invalid_signature", result.ErrorCode())
		assert.False(t, result.IsRetryable())
		assert.False(t, result.IsCapturable())
	})

	t.Run("accepts a correctly signed payload", func(t *testing.T) {
		event := parseSigned(t, payload)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventSubscriptionUpdated, event.Type)
	})
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	payload := `{
		"id": "evt_checkout",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_123",
				"mode": "subscription",
				"customer": "cus_123",
				"subscription": "sub_123",
				"customer_details": {"email": "Owner@Example.COM"},
				"metadata": {"type": "org_subscription", "org_id": "org_1", "seat_count": "3"}
			}
		}
	}`

	event := parseSigned(t, payload)

	assert.Equal(t, EventCheckoutCompleted, event.Type)
	require.NotNil(t, event.Checkout)
	assert.Nil(t, event.Subscription)
	assert.Equal(t, "cs_123", event.Checkout.ID)
	assert.Equal(t, "sub_123", event.Checkout.SubscriptionID)
	assert.Equal(t, "cus_123", event.Checkout.CustomerID)
	assert.Equal(t, "owner@example.com", event.Checkout.CustomerEmail)
	assert.True(t, event.Checkout.Metadata.IsOrgScoped())
	assert.Equal(t, "org_1", event.Checkout.Metadata.OrgID())

	seats, ok := event.Checkout.Metadata.SeatCount()
	assert.True(t, ok)
	assert.Equal(t, 3, seats)
}

func TestParseWebhookSubscriptionEvents(t *testing.T) {
	t.Run("created event carries price, quantity and period end", func(t *testing.T) {
		payload := `{
			"id": "evt_created",
			"object": "event",
			"type": "customer.subscription.created",
			"data": {
				"object": {
					"id": "sub_1",
					"customer": "cus_1",
					"status": "active",
					"cancel_at_period_end": false,
					"items": {"data": [{"quantity": 4, "current_period_end": 1767139200, "price": {"id": "price_pro_monthly"}}]},
					"metadata": {"type": "org_subscription", "org_id": "org_1"}
				}
			}
		}`

		event := parseSigned(t, payload)

		assert.Equal(t, EventSubscriptionCreated, event.Type)
		require.NotNil(t, event.Subscription)
		sub := event.Subscription
		assert.Equal(t, "sub_1", sub.ID)
		assert.Equal(t, "price_pro_monthly", sub.PriceID)
		assert.Equal(t, 4, sub.Quantity)
		assert.Equal(t, plans.StatusActive, sub.Status)
		assert.False(t, sub.CancelAtPeriodEnd)
		require.True(t, sub.CurrentPeriodEnd.Valid)
		assert.Equal(t, int64(1767139200), sub.CurrentPeriodEnd.Time.Unix())
	})

	t.Run("deleted event normalizes to revoked", func(t *testing.T) {
		payload := `{
			"id": "evt_deleted",
			"object": "event",
			"type": "customer.subscription.deleted",
			"data": {"object": {"id": "sub_1", "status": "canceled"}}
		}`

		event := parseSigned(t, payload)
		assert.Equal(t, EventSubscriptionRevoked, event.Type)
		assert.Equal(t, plans.StatusCancelled, event.Subscription.Status)
	})

	t.Run("update with cancel_at_period_end refines to canceled", func(t *testing.T) {
		payload := `{
			"id": "evt_cancel",
			"object": "event",
			"type": "customer.subscription.updated",
			"data": {
				"object": {"id": "sub_1", "status": "active", "cancel_at_period_end": true, "current_period_end": 1767139200},
				"previous_attributes": {"cancel_at_period_end": false}
			}
		}`

		event := parseSigned(t, payload)
		assert.Equal(t, EventSubscriptionCanceled, event.Type)
		// Underlying status stays active: this is a scheduled cancellation.
		assert.Equal(t, plans.StatusActive, event.Subscription.Status)
		assert.True(t, event.Subscription.CancelAtPeriodEnd)
	})

	t.Run("update clearing cancel_at_period_end refines to uncanceled", func(t *testing.T) {
		payload := `{
			"id": "evt_uncancel",
			"object": "event",
			"type": "customer.subscription.updated",
			"data": {
				"object": {"id": "sub_1", "status": "active", "cancel_at_period_end": false},
				"previous_attributes": {"cancel_at_period_end": true}
			}
		}`

		event := parseSigned(t, payload)
		assert.Equal(t, EventSubscriptionUncanceled, event.Type)
	})

	t.Run("plain update stays an update", func(t *testing.T) {
		payload := `{
			"id": "evt_update",
			"object": "event",
			"type": "customer.subscription.updated",
			"data": {
				"object": {"id": "sub_1", "status": "past_due", "cancel_at_period_end": false},
				"previous_attributes": {"status": "active"}
			}
		}`

		event := parseSigned(t, payload)
		assert.Equal(t, EventSubscriptionUpdated, event.Type)
		assert.Equal(t, plans.StatusPastDue, event.Subscription.Status)
	})
}

func TestParseWebhookUnknownEventType(t *testing.T) {
	payload := `{
		"id": "evt_unknown",
		"object": "event",
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_1"}}
	}`

	event := parseSigned(t, payload)

	assert.Equal(t, EventUnknown, event.Type)
	assert.Equal(t, "invoice.payment_succeeded", event.ProviderType)
	assert.Nil(t, event.Checkout)
	assert.Nil(t, event.Subscription)
}
