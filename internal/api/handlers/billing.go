package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatforge/internal/billing"
	"chatforge/internal/core"
	"chatforge/internal/external"
	"chatforge/internal/types"
)

// BillingProfileStore extends ProfileStore with the partial update used to
// persist a freshly created Stripe customer link.
type BillingProfileStore interface {
	ProfileStore
	Update(ctx context.Context, userID string, upd types.ProfileUpdate) error
}

// StripeService abstracts the Stripe surface used for subscription checkout.
type StripeService interface {
	EnsureCustomer(ctx context.Context, profile *types.Profile) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (*external.CheckoutSession, error)
}

// CheckoutRequest is the request body for POST /v1/payments/stripe/checkout.
type CheckoutRequest struct {
	Plan types.PlanID `json:"plan"`
}

// CheckoutResponse is the response for POST /v1/payments/stripe/checkout.
// The client redirects the browser to URL to complete payment.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// BillingHandler handles the plan catalog and Stripe checkout.
type BillingHandler struct {
	profiles BillingProfileStore
	stripe   StripeService
	logger   *slog.Logger
}

// NewBillingHandler creates a BillingHandler with its dependencies.
func NewBillingHandler(profiles BillingProfileStore, stripe StripeService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{profiles: profiles, stripe: stripe, logger: logger}
}

// RegisterRoutes mounts the billing endpoints on the given router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.HandleListPlans)
	r.Post("/payments/stripe/checkout", h.HandleCreateCheckout)
}

// HandleListPlans handles GET /v1/plans. The catalog is static and identical
// for every caller.
func (h *BillingHandler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: billing.AllPlans()})
}

// HandleCreateCheckout handles POST /v1/payments/stripe/checkout. It resolves
// (or creates) the Stripe customer for the caller and opens a subscription
// checkout session for the requested paid plan. The free tier has no price
// and cannot be checked out.
func (h *BillingHandler) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, ok := billing.PlanByID(req.Plan)
	if !ok || plan.PriceID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"plan must name a purchasable tier",
			nil,
		))
		return
	}

	profile, err := ensureProfile(r.Context(), h.profiles, identity)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	customerID, err := h.stripe.EnsureCustomer(r.Context(), profile)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if customerID != profile.StripeCustomerID {
		if err := h.profiles.Update(r.Context(), identity.UserID, types.ProfileUpdate{
			StripeCustomerID: &customerID,
		}); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	session, err := h.stripe.CreateCheckoutSession(r.Context(), customerID, plan.PriceID, identity.UserID, string(plan.ID))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("checkout session created",
		slog.String("user_id", identity.UserID),
		slog.String("plan", string(plan.ID)),
		slog.String("session_id", session.ID),
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{
		SessionID: session.ID,
		URL:       session.URL,
	}})
}
