package billing

import "chatforge/internal/types"

// This file contains the pure state-transition functions behind the Stripe
// webhook dispatcher. Each function maps (event payload, current state) to
// the profile fields that should change, without performing any I/O, so the
// webhook branches are testable in isolation. The HTTP handler owns signature
// verification, customer-to-user resolution, and persistence.
//
// Each transition is idempotent in intent: re-applying the same event
// converges to the same profile state. No event-ID deduplication happens
// anywhere, so at-least-once delivery can still repeat side effects the
// appliers do not own (notably the payment ledger append).

// CheckoutCompleted carries the fields extracted from a
// checkout.session.completed event.
type CheckoutCompleted struct {
	UserID          string
	Plan            types.PlanID
	SubscriptionID  string
	PaymentIntentID string
}

// ApplyCheckoutCompleted returns the profile update and ledger row for a
// completed checkout. The second return value is false when the event is
// missing user/plan metadata or names an unknown plan; the caller must treat
// that as a no-op acknowledgement.
func ApplyCheckoutCompleted(ev CheckoutCompleted) (types.ProfileUpdate, types.Payment, bool) {
	if ev.UserID == "" || ev.Plan == "" {
		return types.ProfileUpdate{}, types.Payment{}, false
	}
	plan, ok := PlanByID(ev.Plan)
	if !ok {
		return types.ProfileUpdate{}, types.Payment{}, false
	}

	planID := plan.ID
	status := types.SubStatusActive
	tokens := plan.Tokens
	zero := 0

	update := types.ProfileUpdate{
		SubscriptionPlan:     &planID,
		SubscriptionStatus:   &status,
		StripeSubscriptionID: &ev.SubscriptionID,
		TokensUsed:           &zero,
		TokensRemaining:      &tokens,
		TokenLimit:           &tokens,
	}
	payment := types.Payment{
		UserID:     ev.UserID,
		Amount:     plan.Price,
		Currency:   "usd",
		Status:     "completed",
		Method:     types.PaymentMethodStripe,
		ProviderID: ev.PaymentIntentID,
		Plan:       plan.ID,
	}
	return update, payment, true
}

// ApplySubscriptionUpdated copies the provider-reported status onto the
// profile. The status string is stored verbatim; Stripe owns the taxonomy.
func ApplySubscriptionUpdated(providerStatus string) types.ProfileUpdate {
	status := types.SubscriptionStatus(providerStatus)
	return types.ProfileUpdate{SubscriptionStatus: &status}
}

// ApplySubscriptionDeleted downgrades the profile to the free tier: free
// plan, canceled status, free allowance restored, subscription link cleared.
func ApplySubscriptionDeleted() types.ProfileUpdate {
	planID := types.PlanFree
	status := types.SubStatusCanceled
	tokens := types.FreePlanTokens
	return types.ProfileUpdate{
		SubscriptionPlan:    &planID,
		SubscriptionStatus:  &status,
		TokensRemaining:     &tokens,
		TokenLimit:          &tokens,
		ClearSubscriptionID: true,
	}
}

// ApplyInvoicePaid resets the monthly token counters to the allowance of the
// profile's current plan. Returns false for an unknown plan, which the caller
// acknowledges as a no-op.
func ApplyInvoicePaid(currentPlan types.PlanID) (types.ProfileUpdate, bool) {
	plan, ok := PlanByID(currentPlan)
	if !ok {
		return types.ProfileUpdate{}, false
	}
	zero := 0
	tokens := plan.Tokens
	return types.ProfileUpdate{
		TokensUsed:      &zero,
		TokensRemaining: &tokens,
	}, true
}

// ApplyPaymentFailed marks the profile past due. Token counters are left
// untouched; dunning does not revoke the remaining allowance.
func ApplyPaymentFailed() types.ProfileUpdate {
	status := types.SubStatusPastDue
	return types.ProfileUpdate{SubscriptionStatus: &status}
}
