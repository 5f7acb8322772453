package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// CheckoutSession is the provider-agnostic handle returned by CreateCheckout.
type CheckoutSession struct {
	CheckoutID  string
	CheckoutURL string
}

// CheckoutParams describes an organization-scoped checkout.
type CheckoutParams struct {
	OrgID         string
	Tier          plans.Tier
	Cycle         plans.BillingCycle
	SeatCount     int
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Provider is the outbound payment provider contract. The webhook path does
// not depend on it except as a fallback when a checkout event carries no
// price information.
type Provider interface {
	GetSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription]
	CreateCheckout(ctx context.Context, params CheckoutParams) utils.Result[*CheckoutSession]
	CancelSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription]
	ReactivateSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription]
	UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) utils.Result[*NormalizedSubscription]
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api     *client.API
	catalog *plans.Catalog
	logger  *slog.Logger
}

func NewStripeProvider(apiKey string, catalog *plans.Catalog, logger *slog.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)

	return &StripeProvider{
		api:     api,
		catalog: catalog,
		logger:  logger.With("component", "payment-provider"),
	}
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription] {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return failedProviderCall[*NormalizedSubscription]("fetch_subscription", err)
	}

	return utils.SuccessResult(p.normalizeSubscription(sub))
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, checkout CheckoutParams) utils.Result[*CheckoutSession] {
	priceID, err := p.catalog.PriceID(checkout.Tier, checkout.Cycle)
	if err != nil {
		// Configuration hole, not a provider failure. Retrying cannot help.
		return utils.FailedResult[*CheckoutSession](err).
			AddErrorDetails("missing_price_mapping", "No price id configured for the requested plan").
			NonRetryable()
	}

	quantity := checkout.SeatCount
	if quantity < 1 {
		quantity = 1
	}

	metadata := map[string]string{
		MetadataKeyType:      MetadataOrgSubscription,
		MetadataKeyOrgID:     checkout.OrgID,
		MetadataKeySeatCount: fmt.Sprintf("%d", quantity),
	}

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(checkout.SuccessURL),
		CancelURL:  stripe.String(checkout.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		ClientReferenceID: stripe.String(checkout.OrgID),
	}
	if checkout.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(checkout.CustomerEmail)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return failedProviderCall[*CheckoutSession]("create_checkout", err)
	}

	return utils.SuccessResult(&CheckoutSession{
		CheckoutID:  session.ID,
		CheckoutURL: session.URL,
	})
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription] {
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	sub, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return failedProviderCall[*NormalizedSubscription]("cancel_subscription", err)
	}

	return utils.SuccessResult(p.normalizeSubscription(sub))
}

func (p *StripeProvider) ReactivateSubscription(ctx context.Context, subscriptionID string) utils.Result[*NormalizedSubscription] {
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(false),
	}

	sub, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return failedProviderCall[*NormalizedSubscription]("reactivate_subscription", err)
	}

	return utils.SuccessResult(p.normalizeSubscription(sub))
}

// UpdateSeatQuantity changes the licensed quantity on the provider side.
// When the subscription has no line item carrying a quantity this is a
// partial no-op: the local seat count is still authoritative and callers
// must not assume the provider enforces seat pricing.
func (p *StripeProvider) UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) utils.Result[*NormalizedSubscription] {
	sub, err := p.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return failedProviderCall[*NormalizedSubscription]("fetch_subscription", err)
	}

	itemID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		itemID = sub.Items.Data[0].ID
	}

	if itemID == "" {
		p.logger.Warn("subscription has no quantity-bearing item, seat count tracked locally only",
			slog.String("subscription_id", subscriptionID))
		return utils.SuccessResult(p.normalizeSubscription(sub))
	}

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(itemID),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
	}

	updated, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return failedProviderCall[*NormalizedSubscription]("update_seat_quantity", err)
	}

	return utils.SuccessResult(p.normalizeSubscription(updated))
}

func (p *StripeProvider) normalizeSubscription(sub *stripe.Subscription) *NormalizedSubscription {
	normalized := &NormalizedSubscription{
		ID:                sub.ID,
		Status:            MapSubscriptionStatus(string(sub.Status)),
		RawStatus:         string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          Metadata(sub.Metadata),
	}

	if sub.Customer != nil {
		normalized.CustomerID = sub.Customer.ID
	}

	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			if normalized.PriceID == "" && item.Price != nil {
				normalized.PriceID = item.Price.ID
			}
			if normalized.Quantity == 0 && item.Quantity > 0 {
				normalized.Quantity = int(item.Quantity)
			}
			if !normalized.CurrentPeriodEnd.Valid && item.CurrentPeriodEnd > 0 {
				normalized.CurrentPeriodEnd = utils.NewNullTime(time.Unix(item.CurrentPeriodEnd, 0).UTC())
			}
		}
	}

	return normalized
}

func failedProviderCall[T any](code string, err error) utils.Result[T] {
	return utils.FailedResult[T](err).
		AddErrorDetails(code, "Payment provider request failed")
}
