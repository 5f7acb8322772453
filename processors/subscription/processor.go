// Package subscription applies normalized billing events to the persisted
// organization subscription state. It is the only writer of those fields
// besides the seat ledger.
package subscription

import (
	"context"
	"log/slog"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/payment"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// Store is the persistence surface the processor mutates, implemented by
// models.ApiStore.
type Store interface {
	FetchOrganization(orgID string) utils.Result[*models.Organization]
	FetchOrganizationBySubscriptionID(subscriptionID string) utils.Result[*models.Organization]
	SaveOrgSubscription(org *models.Organization) utils.Result[*models.Organization]
	RevokeOrgSubscription(orgID string) utils.Result[bool]
	AutoAssignSeats(orgID string, quantity int) utils.Result[int]
}

type Processor struct {
	logger           *slog.Logger
	store            Store
	CheckoutService  *CheckoutService
	LifecycleService *LifecycleService
	NotifyService    *NotifyService
}

func NewProcessor(logger *slog.Logger, store Store, checkoutService *CheckoutService, lifecycleService *LifecycleService, notifyService *NotifyService) *Processor {
	return &Processor{
		logger:           logger.With("component", "subscription_processor"),
		store:            store,
		CheckoutService:  checkoutService,
		LifecycleService: lifecycleService,
		NotifyService:    notifyService,
	}
}

// Process applies one normalized webhook event. The match on the event type
// is exhaustive over the closed set: unknown types are acknowledged without
// side effects since providers add event types over time.
func (processor *Processor) Process(ctx context.Context, event *payment.WebhookEvent) utils.Result[bool] {
	var result utils.Result[bool]

	switch event.Type {
	case payment.EventCheckoutCompleted:
		result = processor.CheckoutService.ApplyCheckout(ctx, event.Checkout)
	case payment.EventSubscriptionCreated, payment.EventSubscriptionUpdated:
		result = processor.LifecycleService.ApplyChange(ctx, event)
	case payment.EventSubscriptionCanceled:
		result = processor.LifecycleService.ApplyCancellation(ctx, event.Subscription)
	case payment.EventSubscriptionUncanceled:
		result = processor.LifecycleService.ApplyUncancellation(ctx, event.Subscription)
	case payment.EventSubscriptionRevoked:
		result = processor.LifecycleService.ApplyRevocation(ctx, event.Subscription)
	default:
		processor.logger.Info("ignoring unhandled event type",
			slog.String("event_id", event.ID),
			slog.String("provider_type", event.ProviderType))
		return utils.SuccessResult(true)
	}

	if result.Failure() {
		processor.logger.Error("error while processing billing event",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error_code", result.ErrorCode()),
			slog.String("error", result.ErrorMsg()))

		if result.IsCapturable() {
			utils.CaptureErrorResultWithExtra(result, "event", event)
		}
	}

	return result
}

// shouldApply is the idempotency guard for activation events. Webhook
// delivery is at-least-once and unordered: when checkout.completed and
// subscription.created race or repeat, the second arrival finds the stored
// subscription id already matching with an ACTIVE status and must not
// overwrite seat count or tier again.
func shouldApply(org *models.Organization, subscriptionID string) bool {
	if subscriptionID == "" {
		return true
	}

	alreadyApplied := org.StoredSubscriptionID() == subscriptionID &&
		org.Status() == plans.StatusActive

	return !alreadyApplied
}

// resolveOrganization routes an event to its organization: metadata org id
// first, stored subscription id second. Events that match neither belong to
// the legacy single-user flow and are acknowledged without touching any
// organization row.
func resolveOrganization(store Store, logger *slog.Logger, metadata payment.Metadata, subscriptionID string) (*models.Organization, utils.Result[bool], bool) {
	if metadata.IsOrgScoped() && metadata.OrgID() != "" {
		orgResult := store.FetchOrganization(metadata.OrgID())
		if orgResult.Failure() {
			return nil, forwardedFailure(orgResult), false
		}
		return orgResult.Value(), utils.Result[bool]{}, true
	}

	if subscriptionID != "" {
		orgResult := store.FetchOrganizationBySubscriptionID(subscriptionID)
		if orgResult.Success() {
			return orgResult.Value(), utils.Result[bool]{}, true
		}
		if orgResult.Error() != models.ErrOrganizationNotFound {
			return nil, forwardedFailure(orgResult), false
		}
	}

	logger.Info("event does not route to any organization, skipping",
		slog.String("subscription_id", subscriptionID))
	return nil, utils.SuccessResult(true), false
}

func forwardedFailure(r utils.AnyResult) utils.Result[bool] {
	result := utils.FailedBoolResult(r.Error())
	result.Retryable = r.IsRetryable()
	result.Capture = r.IsCapturable()
	if r.ErrorCode() != "" {
		result = result.AddErrorDetails(r.ErrorCode(), r.ErrorMessage())
	}
	return result
}
