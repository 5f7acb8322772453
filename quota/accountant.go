// Package quota derives effective permissions and the aggregate quota pool
// from persisted subscription state. Everything here is a pure read: results
// are computed live on every call and never cached, so a lapsed subscription
// takes effect on the next read.
package quota

import (
	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
)

// Pool is the organization's usage allowance for the current billing cycle.
type Pool struct {
	Total        int  `json:"total"`
	Used         int  `json:"used"`
	Remaining    int  `json:"remaining"`
	HasUnlimited bool `json:"has_unlimited"`
}

// Exhausted reports whether the pool has no remaining allowance. Unlimited
// pools are never exhausted.
func (p Pool) Exhausted() bool {
	return !p.HasUnlimited && p.Used >= p.Total
}

// EffectiveCanReview reports whether the organization is entitled to code
// review: an active subscription on any paid tier.
func EffectiveCanReview(org *models.Organization) bool {
	return org.Status() == plans.StatusActive && plans.TierGrantsReview(org.Tier())
}

// EffectiveCanTriage reports whether the organization is entitled to issue
// triage. The BYOK tier grants review but not triage: the check is tier-set
// membership, never price ordering.
func EffectiveCanTriage(org *models.Organization) bool {
	return org.Status() == plans.StatusActive && plans.TierGrantsTriage(org.Tier())
}

// CanUseReviews gates a member: the organization entitlement alone grants
// nothing without a seat.
func CanUseReviews(member *models.OrganizationMember, org *models.Organization) bool {
	return member != nil && member.HasSeat && EffectiveCanReview(org)
}

func CanUseTriage(member *models.OrganizationMember, org *models.Organization) bool {
	return member != nil && member.HasSeat && EffectiveCanTriage(org)
}

// QuotaPool computes the aggregate pool from tier, billing cycle and seat
// count. Without an active subscription the pool is empty: there is no
// rollover and no partial entitlement.
func QuotaPool(org *models.Organization, catalog *plans.Catalog) Pool {
	if !EffectiveCanReview(org) {
		return Pool{}
	}

	cycle := catalog.CycleForPriceID(org.StoredPriceID())
	total := plans.OrgQuota(org.Tier(), cycle, org.SeatCount)

	if total == plans.UnlimitedQuota {
		return Pool{
			Total:        plans.UnlimitedQuota,
			Used:         org.ReviewsUsedThisCycle,
			Remaining:    plans.UnlimitedQuota,
			HasUnlimited: true,
		}
	}

	remaining := total - org.ReviewsUsedThisCycle
	if remaining < 0 {
		remaining = 0
	}

	return Pool{
		Total:     total,
		Used:      org.ReviewsUsedThisCycle,
		Remaining: remaining,
	}
}

// EffectiveRepoSettings is the live view of a repository's feature flags:
// each stored flag multiplied by the acting member's current entitlement.
type EffectiveRepoSettings struct {
	Enabled        bool `json:"enabled"`
	TriageEnabled  bool `json:"triage_enabled"`
	AutofixEnabled bool `json:"autofix_enabled"`
}

func EffectiveSettings(repo *models.RepositorySettings, org *models.Organization, member *models.OrganizationMember) EffectiveRepoSettings {
	canReview := CanUseReviews(member, org)

	return EffectiveRepoSettings{
		Enabled:        repo.Enabled && canReview,
		TriageEnabled:  repo.TriageEnabled && CanUseTriage(member, org),
		AutofixEnabled: repo.AutofixEnabled && canReview,
	}
}
