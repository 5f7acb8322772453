package subscription

import (
	"context"
	"log/slog"

	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// CheckoutService activates an organization subscription from a completed
// checkout session.
type CheckoutService struct {
	logger   *slog.Logger
	store    Store
	provider payment.Provider
	catalog  *plans.Catalog
	notify   *NotifyService
}

func NewCheckoutService(logger *slog.Logger, store Store, provider payment.Provider, catalog *plans.Catalog, notify *NotifyService) *CheckoutService {
	return &CheckoutService{
		logger:   logger.With("component", "checkout_service"),
		store:    store,
		provider: provider,
		catalog:  catalog,
		notify:   notify,
	}
}

// ApplyCheckout persists the activation. A persistence failure propagates so
// the webhook endpoint returns non-success and the provider redelivers; a
// provider lookup failure while resolving a missing price id does not, the
// activation proceeds on the FREE tier and is corrected by the following
// subscription.updated event.
func (cs *CheckoutService) ApplyCheckout(ctx context.Context, checkout *payment.NormalizedCheckout) utils.Result[bool] {
	if checkout == nil {
		return utils.SuccessResult(true)
	}

	if !checkout.Metadata.IsOrgScoped() || checkout.Metadata.OrgID() == "" {
		cs.logger.Info("checkout is not organization scoped, skipping",
			slog.String("checkout_id", checkout.ID))
		return utils.SuccessResult(true)
	}

	orgResult := cs.store.FetchOrganization(checkout.Metadata.OrgID())
	if orgResult.Failure() {
		return forwardedFailure(orgResult)
	}
	org := orgResult.Value()

	if !shouldApply(org, checkout.SubscriptionID) {
		cs.logger.Info("checkout already applied, skipping",
			slog.String("organization_id", org.ID),
			slog.String("subscription_id", checkout.SubscriptionID))
		return utils.SuccessResult(true)
	}

	priceID := checkout.PriceID
	quantity := checkout.Quantity
	periodEnd := utils.NullTime{}
	customerID := checkout.CustomerID

	if priceID == "" && checkout.SubscriptionID != "" {
		subResult := cs.provider.GetSubscription(ctx, checkout.SubscriptionID)
		if subResult.Success() {
			sub := subResult.Value()
			priceID = sub.PriceID
			periodEnd = sub.CurrentPeriodEnd
			if quantity == 0 {
				quantity = sub.Quantity
			}
			if customerID == "" {
				customerID = sub.CustomerID
			}
		} else {
			// Activation still goes through on FREE. Aborting here would
			// leave a paying customer without a subscription row.
			cs.logger.Error("error while fetching subscription for checkout, activating without tier",
				slog.String("subscription_id", checkout.SubscriptionID),
				slog.String("error", subResult.ErrorMsg()))
			utils.CaptureErrorResult(subResult)
		}
	}

	seatCount, ok := checkout.Metadata.SeatCount()
	if !ok {
		seatCount = quantity
	}
	if seatCount < 0 {
		seatCount = 0
	}

	firstActivation := org.StoredSubscriptionID() == ""
	newSubscription := org.StoredSubscriptionID() != checkout.SubscriptionID

	tier := cs.catalog.TierForPriceID(priceID)
	status := plans.StatusActive

	org.SubscriptionTier = &tier
	org.SubscriptionStatus = &status
	org.SubscriptionID = &checkout.SubscriptionID
	org.PriceID = &priceID
	org.SeatCount = seatCount
	org.CancelAtPeriodEnd = false
	org.SubscriptionExpiresAt = periodEnd
	if customerID != "" {
		org.CustomerID = &customerID
	}
	if newSubscription {
		org.ReviewsUsedThisCycle = 0
	}

	saveResult := cs.store.SaveOrgSubscription(org)
	if saveResult.Failure() {
		return forwardedFailure(saveResult)
	}

	if firstActivation && seatCount > 0 {
		assignResult := cs.store.AutoAssignSeats(org.ID, seatCount)
		if assignResult.Failure() {
			// The subscription row is committed and the guard will skip a
			// redelivery, so surface the failure to operators instead of
			// failing the event.
			cs.logger.Error("error while auto assigning seats",
				slog.String("organization_id", org.ID),
				slog.String("error", assignResult.ErrorMsg()))
			utils.CaptureErrorResult(assignResult)
		}
	}

	cs.notify.NotifyChanged(ctx, org, string(payment.EventCheckoutCompleted))

	cs.logger.Info("organization subscription activated from checkout",
		slog.String("organization_id", org.ID),
		slog.String("subscription_id", checkout.SubscriptionID),
		slog.String("tier", string(tier)),
		slog.Int("seat_count", seatCount))

	return utils.SuccessResult(true)
}
