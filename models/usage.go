package models

import (
	"gorm.io/gorm"

	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// IncrementOrgUsage debits the organization's review counter for the current
// billing cycle. The organization row is locked so concurrent debits cannot
// lose updates, and debits against an inactive subscription are rejected
// rather than accumulated.
func (store *ApiStore) IncrementOrgUsage(orgID string, amount int) utils.Result[int] {
	if amount <= 0 {
		return utils.FailedResult[int](ErrInvalidUsageAmount).
			NonCapturable().
			NonRetryable()
	}

	used := 0

	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		org, err := lockOrganization(tx, orgID)
		if err != nil {
			return err
		}
		if !org.HasActiveSubscription() {
			return ErrNoActiveSubscription
		}

		used = org.ReviewsUsedThisCycle + amount

		return tx.Model(&Organization{}).
			Where("id = ?", orgID).
			Update("reviews_used_this_cycle", used).Error
	})

	if err != nil {
		result := utils.FailedResult[int](err)
		switch err {
		case ErrOrganizationNotFound, ErrNoActiveSubscription:
			result = result.NonCapturable().NonRetryable()
		}
		return result
	}

	return utils.SuccessResult(used)
}
