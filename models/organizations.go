package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// Organization is the tenant row. Subscription fields are mutated only by
// the subscription processor and the seat ledger.
type Organization struct {
	ID                    string  `gorm:"primaryKey"`
	Name                  string
	Slug                  string
	AvatarURL             string
	SubscriptionTier      *plans.Tier
	SubscriptionStatus    *plans.SubscriptionStatus
	SubscriptionID        *string
	CustomerID            *string
	PriceID               *string
	SeatCount             int
	CancelAtPeriodEnd     bool
	SubscriptionExpiresAt utils.NullTime
	ReviewsUsedThisCycle  int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Tier returns the effective tier, treating a null column as FREE.
func (org *Organization) Tier() plans.Tier {
	if org.SubscriptionTier == nil {
		return plans.TierFree
	}
	return *org.SubscriptionTier
}

// Status returns the effective status, treating a null column as INACTIVE.
func (org *Organization) Status() plans.SubscriptionStatus {
	if org.SubscriptionStatus == nil {
		return plans.StatusInactive
	}
	return *org.SubscriptionStatus
}

// HasActiveSubscription reports whether the organization currently has
// purchasing power. A subscription scheduled for cancellation stays active
// until its period end.
func (org *Organization) HasActiveSubscription() bool {
	return org.Status() == plans.StatusActive && plans.TierGrantsReview(org.Tier())
}

func (org *Organization) StoredSubscriptionID() string {
	if org.SubscriptionID == nil {
		return ""
	}
	return *org.SubscriptionID
}

func (org *Organization) StoredPriceID() string {
	if org.PriceID == nil {
		return ""
	}
	return *org.PriceID
}

var orgSubscriptionColumns = []string{
	"subscription_tier",
	"subscription_status",
	"subscription_id",
	"customer_id",
	"price_id",
	"seat_count",
	"cancel_at_period_end",
	"subscription_expires_at",
	"reviews_used_this_cycle",
	"updated_at",
}

func (store *ApiStore) FetchOrganization(orgID string) utils.Result[*Organization] {
	var org Organization

	result := store.db.Connection.
		Where("id = ?", orgID).
		Limit(1).
		Find(&org)

	if result.Error != nil {
		return utils.FailedResult[*Organization](result.Error)
	}
	if org.ID == "" {
		return utils.FailedResult[*Organization](ErrOrganizationNotFound).
			NonCapturable().
			NonRetryable()
	}

	return utils.SuccessResult(&org)
}

// FetchOrganizationBySubscriptionID is the fallback routing path for webhook
// events that carry no organization metadata.
func (store *ApiStore) FetchOrganizationBySubscriptionID(subscriptionID string) utils.Result[*Organization] {
	if subscriptionID == "" {
		return utils.FailedResult[*Organization](ErrOrganizationNotFound).
			NonCapturable().
			NonRetryable()
	}

	var org Organization

	result := store.db.Connection.
		Where("subscription_id = ?", subscriptionID).
		Limit(1).
		Find(&org)

	if result.Error != nil {
		return utils.FailedResult[*Organization](result.Error)
	}
	if org.ID == "" {
		return utils.FailedResult[*Organization](ErrOrganizationNotFound).
			NonCapturable().
			NonRetryable()
	}

	return utils.SuccessResult(&org)
}

// SaveOrgSubscription persists the subscription columns of the given
// organization. The column list is explicit so zero values (cleared flags,
// zero seat counts) are written too. Assigned seats are trimmed to the new
// capacity in the same transaction: held seats must never exceed seat_count,
// including when a quantity decrease arrives.
func (store *ApiStore) SaveOrgSubscription(org *Organization) utils.Result[*Organization] {
	org.UpdatedAt = time.Now().UTC()

	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&Organization{}).
			Where("id = ?", org.ID).
			Select(orgSubscriptionColumns).
			Updates(org)
		if update.Error != nil {
			return update.Error
		}

		return trimExcessSeats(tx, org.ID, org.SeatCount)
	})

	if err != nil {
		return utils.FailedResult[*Organization](err)
	}

	return utils.SuccessResult(org)
}

// RevokeOrgSubscription clears every subscription field and unassigns all
// member seats in one transaction. A partial application would leave members
// holding seats with no paying subscription, so either both writes commit or
// neither does.
func (store *ApiStore) RevokeOrgSubscription(orgID string) utils.Result[bool] {
	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&Organization{}).
			Where("id = ?", orgID).
			Updates(map[string]any{
				"subscription_tier":       nil,
				"subscription_status":     nil,
				"subscription_id":         nil,
				"customer_id":             nil,
				"price_id":                nil,
				"seat_count":              0,
				"cancel_at_period_end":    false,
				"subscription_expires_at": nil,
				"reviews_used_this_cycle": 0,
				"updated_at":              time.Now().UTC(),
			})
		if update.Error != nil {
			return update.Error
		}

		return tx.Model(&OrganizationMember{}).
			Where("organization_id = ? AND has_seat = ?", orgID, true).
			Update("has_seat", false).Error
	})

	if err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(true)
}
