package plans

import (
	"fmt"
)

// PriceRef identifies what a provider price id sells.
type PriceRef struct {
	Tier  Tier
	Cycle BillingCycle
}

// Catalog maps provider price ids to tiers and back. It is built once at
// startup from configuration and validated before the service accepts
// traffic, replacing ad hoc per-call environment lookups.
type Catalog struct {
	byPriceID map[string]PriceRef
	byPlan    map[PriceRef]string
}

type CatalogEntry struct {
	Tier    Tier
	Cycle   BillingCycle
	PriceID string
}

func NewCatalog(entries []CatalogEntry) *Catalog {
	catalog := &Catalog{
		byPriceID: make(map[string]PriceRef),
		byPlan:    make(map[PriceRef]string),
	}

	for _, entry := range entries {
		if entry.PriceID == "" {
			continue
		}

		ref := PriceRef{Tier: entry.Tier, Cycle: entry.Cycle}
		catalog.byPriceID[entry.PriceID] = ref
		catalog.byPlan[ref] = entry.PriceID
	}

	return catalog
}

// Validate ensures every purchasable tier has a price id for both billing
// cycles. A hole in the catalog is a deployment error, caught before any
// checkout can silently fall back to the wrong tier.
func (c *Catalog) Validate() error {
	for _, tier := range PaidTiers() {
		for _, cycle := range []BillingCycle{CycleMonthly, CycleYearly} {
			if _, ok := c.byPlan[PriceRef{Tier: tier, Cycle: cycle}]; !ok {
				return fmt.Errorf("price id is not configured for tier %s with %s billing", tier, cycle)
			}
		}
	}

	return nil
}

// TierForPriceID resolves a provider price id to a tier. Unknown or empty
// price ids are the FREE tier by definition, never an error.
func (c *Catalog) TierForPriceID(priceID string) Tier {
	ref, ok := c.byPriceID[priceID]
	if !ok {
		return TierFree
	}
	return ref.Tier
}

// CycleForPriceID resolves the billing cycle sold under a price id,
// defaulting to monthly for unknown ids.
func (c *Catalog) CycleForPriceID(priceID string) BillingCycle {
	ref, ok := c.byPriceID[priceID]
	if !ok {
		return CycleMonthly
	}
	return ref.Cycle
}

// PriceID returns the provider price id selling the given tier and cycle.
// A missing mapping is a configuration error and must abort the checkout.
func (c *Catalog) PriceID(tier Tier, cycle BillingCycle) (string, error) {
	priceID, ok := c.byPlan[PriceRef{Tier: tier, Cycle: cycle}]
	if !ok {
		return "", fmt.Errorf("price id is not configured for tier %s with %s billing", tier, cycle)
	}
	return priceID, nil
}
