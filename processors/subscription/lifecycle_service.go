package subscription

import (
	"context"
	"log/slog"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// LifecycleService applies subscription.created/updated/canceled/uncanceled/
// revoked events to the organization row.
type LifecycleService struct {
	logger  *slog.Logger
	store   Store
	catalog *plans.Catalog
	notify  *NotifyService
}

func NewLifecycleService(logger *slog.Logger, store Store, catalog *plans.Catalog, notify *NotifyService) *LifecycleService {
	return &LifecycleService{
		logger:  logger.With("component", "lifecycle_service"),
		store:   store,
		catalog: catalog,
		notify:  notify,
	}
}

// ApplyChange handles created and updated events. The tier is granted only
// when the mapped status is ACTIVE: a past_due or incomplete update keeps the
// stored tier but records the degraded status, so it can never silently
// upgrade an organization.
func (ls *LifecycleService) ApplyChange(ctx context.Context, event *payment.WebhookEvent) utils.Result[bool] {
	sub := event.Subscription
	if sub == nil {
		return utils.SuccessResult(true)
	}

	org, earlyResult, routed := resolveOrganization(ls.store, ls.logger, sub.Metadata, sub.ID)
	if !routed {
		return earlyResult
	}

	if event.Type == payment.EventSubscriptionCreated && !shouldApply(org, sub.ID) {
		ls.logger.Info("subscription already active, skipping creation event",
			slog.String("organization_id", org.ID),
			slog.String("subscription_id", sub.ID))
		return utils.SuccessResult(true)
	}

	firstActivation := org.StoredSubscriptionID() == ""
	newSubscription := org.StoredSubscriptionID() != sub.ID
	status := sub.Status

	org.SubscriptionID = &sub.ID
	org.SubscriptionStatus = &status
	org.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	org.SubscriptionExpiresAt = sub.CurrentPeriodEnd
	if sub.CustomerID != "" {
		customerID := sub.CustomerID
		org.CustomerID = &customerID
	}
	if sub.PriceID != "" {
		priceID := sub.PriceID
		org.PriceID = &priceID
	}
	if sub.Quantity > 0 {
		org.SeatCount = sub.Quantity
	}
	if newSubscription {
		org.ReviewsUsedThisCycle = 0
	}

	if status == plans.StatusActive {
		tier := ls.catalog.TierForPriceID(org.StoredPriceID())
		org.SubscriptionTier = &tier
	}

	saveResult := ls.store.SaveOrgSubscription(org)
	if saveResult.Failure() {
		return forwardedFailure(saveResult)
	}

	if firstActivation && status == plans.StatusActive && sub.Quantity > 0 {
		assignResult := ls.store.AutoAssignSeats(org.ID, sub.Quantity)
		if assignResult.Failure() {
			ls.logger.Error("error while auto assigning seats",
				slog.String("organization_id", org.ID),
				slog.String("error", assignResult.ErrorMsg()))
			utils.CaptureErrorResult(assignResult)
		}
	}

	ls.notify.NotifyChanged(ctx, org, string(event.Type))

	ls.logger.Info("organization subscription updated",
		slog.String("organization_id", org.ID),
		slog.String("subscription_id", sub.ID),
		slog.String("status", string(status)))

	return utils.SuccessResult(true)
}

// ApplyCancellation records a scheduled cancellation. A canceled event whose
// underlying status is still active means access continues until period end;
// the status is force-downgraded only when the provider already ended it.
func (ls *LifecycleService) ApplyCancellation(ctx context.Context, sub *payment.NormalizedSubscription) utils.Result[bool] {
	if sub == nil {
		return utils.SuccessResult(true)
	}

	org, earlyResult, routed := resolveOrganization(ls.store, ls.logger, sub.Metadata, sub.ID)
	if !routed {
		return earlyResult
	}

	org.CancelAtPeriodEnd = true
	org.SubscriptionExpiresAt = sub.CurrentPeriodEnd
	if sub.Status != plans.StatusActive {
		status := plans.StatusCancelled
		org.SubscriptionStatus = &status
	}

	saveResult := ls.store.SaveOrgSubscription(org)
	if saveResult.Failure() {
		return forwardedFailure(saveResult)
	}

	ls.notify.NotifyChanged(ctx, org, string(payment.EventSubscriptionCanceled))

	ls.logger.Info("organization subscription cancellation recorded",
		slog.String("organization_id", org.ID),
		slog.String("subscription_id", sub.ID),
		slog.Bool("still_active", sub.Status == plans.StatusActive))

	return utils.SuccessResult(true)
}

// ApplyUncancellation clears a scheduled cancellation without touching tier
// or seat count.
func (ls *LifecycleService) ApplyUncancellation(ctx context.Context, sub *payment.NormalizedSubscription) utils.Result[bool] {
	if sub == nil {
		return utils.SuccessResult(true)
	}

	org, earlyResult, routed := resolveOrganization(ls.store, ls.logger, sub.Metadata, sub.ID)
	if !routed {
		return earlyResult
	}

	status := plans.StatusActive
	org.SubscriptionStatus = &status
	org.CancelAtPeriodEnd = false
	org.SubscriptionExpiresAt = utils.NullTime{}

	saveResult := ls.store.SaveOrgSubscription(org)
	if saveResult.Failure() {
		return forwardedFailure(saveResult)
	}

	ls.notify.NotifyChanged(ctx, org, string(payment.EventSubscriptionUncanceled))

	ls.logger.Info("organization subscription cancellation reverted",
		slog.String("organization_id", org.ID),
		slog.String("subscription_id", sub.ID))

	return utils.SuccessResult(true)
}

// ApplyRevocation clears every subscription field and unassigns all seats in
// one transaction. A partial application would leave members holding seats
// with no paying subscription.
func (ls *LifecycleService) ApplyRevocation(ctx context.Context, sub *payment.NormalizedSubscription) utils.Result[bool] {
	if sub == nil {
		return utils.SuccessResult(true)
	}

	org, earlyResult, routed := resolveOrganization(ls.store, ls.logger, sub.Metadata, sub.ID)
	if !routed {
		return earlyResult
	}

	revokeResult := ls.store.RevokeOrgSubscription(org.ID)
	if revokeResult.Failure() {
		return forwardedFailure(revokeResult)
	}

	revoked := &models.Organization{ID: org.ID}
	ls.notify.NotifyChanged(ctx, revoked, string(payment.EventSubscriptionRevoked))

	ls.logger.Info("organization subscription revoked",
		slog.String("organization_id", org.ID),
		slog.String("subscription_id", sub.ID))

	return utils.SuccessResult(true)
}
