package external

import (
	"context"

	"chatforge/internal/types"
)

// SessionResolver validates a session token against the external auth
// provider and resolves it to a user identity.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*types.Identity, error)
}

// CheckoutSession is the subset of a Stripe Checkout Session the API needs:
// the session ID and the hosted payment page URL the client is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// BillingService abstracts the Stripe API surface used for subscription
// checkout. Customer creation is folded into EnsureCustomer so handlers never
// deal with the create-vs-reuse distinction.
type BillingService interface {
	EnsureCustomer(ctx context.Context, profile *types.Profile) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (*CheckoutSession, error)
}

// CreatedOrder is the provider-side result of creating a PayPal order:
// the provider order ID and the approval URL the buyer is sent to.
type CreatedOrder struct {
	OrderID     string
	ApprovalURL string
}

// CaptureResult is the provider-side result of capturing a PayPal order.
// Status is the provider's verbatim capture status ("COMPLETED" on success).
type CaptureResult struct {
	Status    string
	CaptureID string
}

// PayPalService abstracts the PayPal Orders v2 API surface.
type PayPalService interface {
	CreateOrder(ctx context.Context, amount float64, planName string) (*CreatedOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// CompletionService abstracts the AI text generation provider.
type CompletionService interface {
	Generate(ctx context.Context, prompt string, history []types.ChatTurn) (*types.Completion, error)
}

// WebhookVerifier validates webhook payloads against their signature header.
// Returns the raw event payload if the signature is valid.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) ([]byte, error)
}

// Stripe webhook event types the dispatcher handles. Events outside this set
// are acknowledged and dropped.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)
