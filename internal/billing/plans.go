// Package billing provides plan management and billing domain logic.
package billing

import "chatforge/internal/types"

// Plan is an immutable catalog entry describing a subscription tier.
// PriceID is the external (Stripe) price reference used when creating
// checkout sessions; the free tier has none.
type Plan struct {
	ID       types.PlanID `json:"id"`
	Name     string       `json:"name"`
	Price    float64      `json:"price"`
	PriceID  string       `json:"price_id,omitempty"`
	Tokens   int          `json:"tokens"`
	Features []string     `json:"features"`
}

// planCatalog defines the authoritative tiers. This is the single source of
// truth for what each plan costs and allows.
//
//	| Plan       | Price/mo | Tokens/mo |
//	|------------|----------|-----------|
//	| Free       | 0        | 1,000     |
//	| Pro        | 9.99     | 50,000    |
//	| Enterprise | 29.99    | 200,000   |
var planCatalog = map[types.PlanID]Plan{
	types.PlanFree: {
		ID:       types.PlanFree,
		Name:     "Free",
		Price:    0,
		Tokens:   types.FreePlanTokens,
		Features: []string{"Basic AI Chat", "1,000 tokens/month", "Email support"},
	},
	types.PlanPro: {
		ID:       types.PlanPro,
		Name:     "Pro",
		Price:    9.99,
		PriceID:  "price_pro_monthly",
		Tokens:   50000,
		Features: []string{"Advanced AI Chat", "50,000 tokens/month", "Priority support", "Chat history"},
	},
	types.PlanEnterprise: {
		ID:       types.PlanEnterprise,
		Name:     "Enterprise",
		Price:    29.99,
		PriceID:  "price_enterprise_monthly",
		Tokens:   200000,
		Features: []string{"Premium AI Chat", "200,000 tokens/month", "24/7 support", "Custom integrations"},
	},
}

// PlanByID looks up a plan by its identifier. The second return value is
// false for unknown identifiers; callers translate that into a validation
// error, never a crash.
func PlanByID(id types.PlanID) (Plan, bool) {
	p, ok := planCatalog[id]
	return p, ok
}

// IsValidPlan reports whether the identifier names a catalog entry.
func IsValidPlan(id types.PlanID) bool {
	_, ok := planCatalog[id]
	return ok
}

// PaidPlans returns the purchasable tiers (everything but free), for
// listing endpoints and input validation.
func PaidPlans() []Plan {
	out := make([]Plan, 0, len(planCatalog)-1)
	for _, id := range []types.PlanID{types.PlanPro, types.PlanEnterprise} {
		out = append(out, planCatalog[id])
	}
	return out
}

// AllPlans returns the full catalog in display order, free tier first.
func AllPlans() []Plan {
	out := make([]Plan, 0, len(planCatalog))
	for _, id := range []types.PlanID{types.PlanFree, types.PlanPro, types.PlanEnterprise} {
		out = append(out, planCatalog[id])
	}
	return out
}
