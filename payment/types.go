package payment

import (
	"strconv"

	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// WebhookEventType is the closed set of normalized billing events. Provider
// event types outside this set decode to EventUnknown and are ignored
// downstream instead of failing the delivery.
type WebhookEventType string

const (
	EventCheckoutCompleted      WebhookEventType = "checkout.completed"
	EventSubscriptionCreated    WebhookEventType = "subscription.created"
	EventSubscriptionUpdated    WebhookEventType = "subscription.updated"
	EventSubscriptionCanceled   WebhookEventType = "subscription.canceled"
	EventSubscriptionUncanceled WebhookEventType = "subscription.uncanceled"
	EventSubscriptionRevoked    WebhookEventType = "subscription.revoked"
	EventUnknown                WebhookEventType = "unknown"
)

const (
	MetadataKeyType         = "type"
	MetadataKeyOrgID        = "org_id"
	MetadataKeySeatCount    = "seat_count"
	MetadataOrgSubscription = "org_subscription"
)

// Metadata carries the routing hints stamped on checkouts and subscriptions
// at creation time.
type Metadata map[string]string

// IsOrgScoped reports whether the object belongs to an organization
// subscription, as opposed to the legacy single-user flow.
func (m Metadata) IsOrgScoped() bool {
	return m[MetadataKeyType] == MetadataOrgSubscription
}

func (m Metadata) OrgID() string {
	return m[MetadataKeyOrgID]
}

// SeatCount returns the seat count hint when present and parseable.
func (m Metadata) SeatCount() (int, bool) {
	raw, ok := m[MetadataKeySeatCount]
	if !ok {
		return 0, false
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

// NormalizedSubscription is the provider-agnostic view of a subscription.
type NormalizedSubscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Quantity          int
	Status            plans.SubscriptionStatus
	RawStatus         string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  utils.NullTime
	Metadata          Metadata
}

// NormalizedCheckout is the provider-agnostic view of a completed checkout
// session. PriceID may be empty: some providers omit line items from the
// checkout event, in which case the live subscription must be fetched.
type NormalizedCheckout struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	PriceID        string
	Quantity       int
	Metadata       Metadata
}

// WebhookEvent is the tagged union produced by ParseWebhook. Exactly one of
// Checkout or Subscription is non-nil depending on Type; both are nil for
// EventUnknown.
type WebhookEvent struct {
	ID           string
	Type         WebhookEventType
	ProviderType string
	Checkout     *NormalizedCheckout
	Subscription *NormalizedSubscription
}

// MapSubscriptionStatus maps a provider status string onto the closed
// internal set. Unrecognized values fail safe to INACTIVE so an unknown
// status can never grant access.
func MapSubscriptionStatus(raw string) plans.SubscriptionStatus {
	switch raw {
	case "active", "trialing":
		return plans.StatusActive
	case "canceled":
		return plans.StatusCancelled
	case "past_due", "unpaid":
		return plans.StatusPastDue
	case "incomplete", "incomplete_expired", "paused":
		return plans.StatusInactive
	default:
		return plans.StatusInactive
	}
}

// MapEventType maps a provider event type string onto the normalized set.
// The canceled/uncanceled refinement of update events happens in
// ParseWebhook where the payload is available.
func MapEventType(providerType string) WebhookEventType {
	switch providerType {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionRevoked
	default:
		return EventUnknown
	}
}
