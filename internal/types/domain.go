// Package types defines the shared domain model, error taxonomy, and context
// helpers for the chatforge platform. It has no dependencies on other internal
// packages so every layer can import it freely.
package types

import "time"

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// SubscriptionStatus mirrors the provider-reported lifecycle state of a
// subscription. Values beyond these three may arrive from Stripe webhooks and
// are stored verbatim.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// FreePlanTokens is the monthly token allowance seeded on lazily created
// profiles and restored when a subscription is deleted.
const FreePlanTokens = 1000

// Identity is the resolved result of a session token: the authenticated user
// as reported by the external auth provider.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Profile is the per-user account record. One row per authenticated identity,
// created lazily on first fetch and never deleted by this system.
//
// TokensRemaining is intended to track max(0, TokenLimit - TokensUsed) but the
// columns are stored independently; the balance mutation in the profile
// repository keeps them consistent with a single atomic UPDATE.
type Profile struct {
	UserID               string             `json:"user_id"`
	Email                string             `json:"email"`
	FullName             string             `json:"full_name"`
	SubscriptionPlan     PlanID             `json:"subscription_plan"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status"`
	TokensUsed           int                `json:"tokens_used"`
	TokensRemaining      int                `json:"tokens_remaining"`
	TokenLimit           int                `json:"token_limit"`
	TotalMessages        int                `json:"total_messages"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	IsActive             bool               `json:"is_active"`
	IsAdmin              bool               `json:"is_admin"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ProfileUpdate is a partial field merge applied to a profile row. Nil fields
// are left untouched; updated_at is always stamped by the repository.
// There is no optimistic concurrency token: last writer wins.
type ProfileUpdate struct {
	SubscriptionPlan     *PlanID
	SubscriptionStatus   *SubscriptionStatus
	TokensUsed           *int
	TokensRemaining      *int
	TokenLimit           *int
	StripeCustomerID     *string
	StripeSubscriptionID *string
	ClearSubscriptionID  bool
}

// PayPalOrder is the transient local record for an explicit-capture PayPal
// payment. Created before redirecting the user to the provider and finalized
// on the capture callback.
type PayPalOrder struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Plan      PlanID    `json:"plan"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"` // created -> completed
	CaptureID string    `json:"capture_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PayPal order statuses for the local paypal_orders table.
const (
	OrderStatusCreated   = "created"
	OrderStatusCompleted = "completed"
)

// Payment is an append-only ledger row recording a settled charge.
// Rows are write-once and never updated.
type Payment struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	Method     string    `json:"payment_method"` // "stripe" or "paypal"
	ProviderID string    `json:"provider_id"`    // payment intent or PayPal order ID
	Plan       PlanID    `json:"plan"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment methods recorded in the ledger.
const (
	PaymentMethodStripe = "stripe"
	PaymentMethodPayPal = "paypal"
)

// ChatMessage is an append-only log row, one per completed chat turn.
type ChatMessage struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completion is the result of one AI generation call. TokensUsed is a length
// based estimate, not a tokenizer count; callers must treat it as advisory.
type Completion struct {
	Text       string
	TokensUsed int
}

// ChatTurn is a single prior exchange passed back by the client as
// conversation context.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AdminStats is the aggregate snapshot served to the admin dashboard.
type AdminStats struct {
	TotalUsers    int     `json:"total_users"`
	ActiveUsers   int     `json:"active_users"`
	TotalRevenue  float64 `json:"total_revenue"`
	TotalMessages int     `json:"total_messages"`
}
