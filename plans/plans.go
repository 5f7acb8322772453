package plans

// Tier is a subscription plan level. BYOK ("bring your own key") is the entry
// paid tier: customers run reviews against their own model API key, so it is
// priced below PRO while granting a different capability set, not a subset.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierBYOK       Tier = "BYOK"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	StatusPastDue   SubscriptionStatus = "PAST_DUE"
	StatusInactive  SubscriptionStatus = "INACTIVE"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// UnlimitedQuota is the sentinel for tiers without a metered review quota.
// It is never multiplied by seat counts or billing-cycle factors.
const UnlimitedQuota = -1

var monthlyQuotas = map[Tier]int{
	TierFree:       0,
	TierBYOK:       UnlimitedQuota,
	TierPro:        250,
	TierEnterprise: 1000,
}

// MonthlyQuotaForTier returns the per-seat monthly review quota. FREE is
// intentionally zero, BYOK is unlimited since usage is billed against the
// customer's own key.
func MonthlyQuotaForTier(tier Tier) int {
	quota, ok := monthlyQuotas[tier]
	if !ok {
		return 0
	}
	return quota
}

// PerSeatQuota returns the quota granted to one seat for a whole billing
// cycle. Yearly plans grant twelve months of quota upfront.
func PerSeatQuota(tier Tier, cycle BillingCycle) int {
	quota := MonthlyQuotaForTier(tier)
	if quota == UnlimitedQuota {
		return UnlimitedQuota
	}
	if cycle == CycleYearly {
		return quota * 12
	}
	return quota
}

// OrgQuota returns the aggregate quota pool for an organization.
func OrgQuota(tier Tier, cycle BillingCycle, seatCount int) int {
	perSeat := PerSeatQuota(tier, cycle)
	if perSeat == UnlimitedQuota {
		return UnlimitedQuota
	}
	if seatCount < 0 {
		seatCount = 0
	}
	return perSeat * seatCount
}

var reviewTiers = map[Tier]bool{
	TierBYOK:       true,
	TierPro:        true,
	TierEnterprise: true,
}

var triageTiers = map[Tier]bool{
	TierPro:        true,
	TierEnterprise: true,
}

// TierGrantsReview reports whether a tier entitles the organization to code
// review. Entitlements are explicit set membership: BYOK grants review even
// though it is priced below PRO.
func TierGrantsReview(tier Tier) bool {
	return reviewTiers[tier]
}

// TierGrantsTriage reports whether a tier entitles the organization to issue
// triage. BYOK is deliberately excluded.
func TierGrantsTriage(tier Tier) bool {
	return triageTiers[tier]
}

var displayRanks = map[Tier]int{
	TierFree:       0,
	TierBYOK:       1,
	TierPro:        2,
	TierEnterprise: 3,
}

// DisplayRank orders tiers for upgrade/downgrade button labeling in the
// console. It must never be used for entitlement checks.
func DisplayRank(tier Tier) int {
	return displayRanks[tier]
}

// PaidTiers lists every purchasable tier in display order.
func PaidTiers() []Tier {
	return []Tier{TierBYOK, TierPro, TierEnterprise}
}
