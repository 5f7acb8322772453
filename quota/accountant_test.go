package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/plans"
)

func orgWith(tier plans.Tier, status plans.SubscriptionStatus, seats int, used int, priceID string) *models.Organization {
	org := &models.Organization{
		ID:                   "org_1",
		SeatCount:            seats,
		ReviewsUsedThisCycle: used,
	}
	if tier != "" {
		org.SubscriptionTier = &tier
	}
	if status != "" {
		org.SubscriptionStatus = &status
	}
	if priceID != "" {
		org.PriceID = &priceID
	}
	return org
}

func testCatalog() *plans.Catalog {
	return plans.NewCatalog([]plans.CatalogEntry{
		{Tier: plans.TierBYOK, Cycle: plans.CycleMonthly, PriceID: "price_byok_m"},
		{Tier: plans.TierBYOK, Cycle: plans.CycleYearly, PriceID: "price_byok_y"},
		{Tier: plans.TierPro, Cycle: plans.CycleMonthly, PriceID: "price_pro_m"},
		{Tier: plans.TierPro, Cycle: plans.CycleYearly, PriceID: "price_pro_y"},
		{Tier: plans.TierEnterprise, Cycle: plans.CycleMonthly, PriceID: "price_ent_m"},
		{Tier: plans.TierEnterprise, Cycle: plans.CycleYearly, PriceID: "price_ent_y"},
	})
}

func TestEffectiveEntitlements(t *testing.T) {
	t.Run("active pro grants review and triage", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusActive, 5, 0, "price_pro_m")

		assert.True(t, EffectiveCanReview(org))
		assert.True(t, EffectiveCanTriage(org))
	})

	t.Run("active byok grants review but not triage", func(t *testing.T) {
		org := orgWith(plans.TierBYOK, plans.StatusActive, 5, 0, "price_byok_m")

		assert.True(t, EffectiveCanReview(org))
		assert.False(t, EffectiveCanTriage(org))
	})

	t.Run("past due pro grants nothing", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusPastDue, 5, 0, "price_pro_m")

		assert.False(t, EffectiveCanReview(org))
		assert.False(t, EffectiveCanTriage(org))
	})

	t.Run("scheduled cancellation keeps access until period end", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusActive, 5, 0, "price_pro_m")
		org.CancelAtPeriodEnd = true

		assert.True(t, EffectiveCanReview(org))
		assert.True(t, EffectiveCanTriage(org))
	})

	t.Run("null columns mean free and inactive", func(t *testing.T) {
		org := orgWith("", "", 0, 0, "")

		assert.False(t, EffectiveCanReview(org))
		assert.False(t, EffectiveCanTriage(org))
	})
}

func TestMemberGating(t *testing.T) {
	org := orgWith(plans.TierEnterprise, plans.StatusActive, 10, 0, "price_ent_m")

	t.Run("seat holder can use both features", func(t *testing.T) {
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: true}

		assert.True(t, CanUseReviews(member, org))
		assert.True(t, CanUseTriage(member, org))
	})

	t.Run("seatless member gets nothing despite org entitlement", func(t *testing.T) {
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: false}

		assert.False(t, CanUseReviews(member, org))
		assert.False(t, CanUseTriage(member, org))
	})

	t.Run("nil member gets nothing", func(t *testing.T) {
		assert.False(t, CanUseReviews(nil, org))
		assert.False(t, CanUseTriage(nil, org))
	})
}

func TestQuotaPool(t *testing.T) {
	catalog := testCatalog()

	t.Run("monthly pro multiplies quota by seats", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusActive, 4, 100, "price_pro_m")

		pool := QuotaPool(org, catalog)

		assert.Equal(t, 1000, pool.Total)
		assert.Equal(t, 100, pool.Used)
		assert.Equal(t, 900, pool.Remaining)
		assert.False(t, pool.HasUnlimited)
		assert.False(t, pool.Exhausted())
	})

	t.Run("yearly enterprise grants twelve months upfront", func(t *testing.T) {
		org := orgWith(plans.TierEnterprise, plans.StatusActive, 2, 0, "price_ent_y")

		pool := QuotaPool(org, catalog)

		assert.Equal(t, 24000, pool.Total)
		assert.Equal(t, 24000, pool.Remaining)
	})

	t.Run("byok pool is unlimited and never exhausted", func(t *testing.T) {
		org := orgWith(plans.TierBYOK, plans.StatusActive, 3, 9999, "price_byok_y")

		pool := QuotaPool(org, catalog)

		assert.True(t, pool.HasUnlimited)
		assert.Equal(t, plans.UnlimitedQuota, pool.Total)
		assert.Equal(t, plans.UnlimitedQuota, pool.Remaining)
		assert.False(t, pool.Exhausted())
	})

	t.Run("inactive subscription yields an empty pool", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusCancelled, 4, 100, "price_pro_m")

		pool := QuotaPool(org, catalog)

		assert.Equal(t, Pool{}, pool)
		assert.True(t, pool.Exhausted())
	})

	t.Run("overshoot clamps remaining to zero", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusActive, 1, 300, "price_pro_m")

		pool := QuotaPool(org, catalog)

		assert.Equal(t, 250, pool.Total)
		assert.Equal(t, 300, pool.Used)
		assert.Equal(t, 0, pool.Remaining)
		assert.True(t, pool.Exhausted())
	})
}

func TestEffectiveSettings(t *testing.T) {
	repo := &models.RepositorySettings{
		ID:             "repo_1",
		Enabled:        true,
		TriageEnabled:  true,
		AutofixEnabled: true,
	}

	t.Run("stored flags pass through for an entitled seat holder", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusActive, 5, 0, "price_pro_m")
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: true}

		settings := EffectiveSettings(repo, org, member)

		assert.True(t, settings.Enabled)
		assert.True(t, settings.TriageEnabled)
		assert.True(t, settings.AutofixEnabled)
	})

	t.Run("byok masks triage even when the repo flag is on", func(t *testing.T) {
		org := orgWith(plans.TierBYOK, plans.StatusActive, 5, 0, "price_byok_m")
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: true}

		settings := EffectiveSettings(repo, org, member)

		assert.True(t, settings.Enabled)
		assert.False(t, settings.TriageEnabled)
		assert.True(t, settings.AutofixEnabled)
	})

	t.Run("lapsed subscription masks everything immediately", func(t *testing.T) {
		org := orgWith(plans.TierPro, plans.StatusInactive, 5, 0, "price_pro_m")
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: true}

		settings := EffectiveSettings(repo, org, member)

		assert.Equal(t, EffectiveRepoSettings{}, settings)
	})

	t.Run("disabled repo flags stay off regardless of entitlement", func(t *testing.T) {
		off := &models.RepositorySettings{ID: "repo_2"}
		org := orgWith(plans.TierEnterprise, plans.StatusActive, 5, 0, "price_ent_m")
		member := &models.OrganizationMember{ID: "mem_1", HasSeat: true}

		settings := EffectiveSettings(off, org, member)

		assert.Equal(t, EffectiveRepoSettings{}, settings)
	})
}
