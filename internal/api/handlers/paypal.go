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

// PayPalService abstracts the PayPal Orders surface.
type PayPalService interface {
	CreateOrder(ctx context.Context, amount float64, planName string) (*external.CreatedOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*external.CaptureResult, error)
}

// OrderStore tracks local PayPal order records across the create/capture
// round-trip.
type OrderStore interface {
	Insert(ctx context.Context, order *types.PayPalOrder) error
	GetForUser(ctx context.Context, orderID, userID string) (*types.PayPalOrder, error)
	MarkCompleted(ctx context.Context, orderID, captureID string) error
}

// PaymentLedger appends settled charges.
type PaymentLedger interface {
	Insert(ctx context.Context, p types.Payment) error
}

// CreateOrderRequest is the request body for POST /v1/payments/paypal/orders.
type CreateOrderRequest struct {
	Plan types.PlanID `json:"plan"`
}

// CreateOrderResponse is the response for POST /v1/payments/paypal/orders.
// The client redirects the buyer to ApprovalURL.
type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// CaptureOrderRequest is the request body for POST /v1/payments/paypal/capture.
type CaptureOrderRequest struct {
	OrderID string `json:"order_id"`
}

// CaptureOrderResponse is the response for a successful capture.
type CaptureOrderResponse struct {
	Success bool         `json:"success"`
	Plan    types.PlanID `json:"plan"`
	Tokens  int          `json:"tokens"`
}

// PayPalHandler handles the explicit create/capture PayPal payment flow.
type PayPalHandler struct {
	profiles BillingProfileStore
	orders   OrderStore
	payments PaymentLedger
	provider PayPalService
	logger   *slog.Logger
}

// NewPayPalHandler creates a PayPalHandler with its dependencies.
func NewPayPalHandler(
	profiles BillingProfileStore,
	orders OrderStore,
	payments PaymentLedger,
	provider PayPalService,
	logger *slog.Logger,
) *PayPalHandler {
	return &PayPalHandler{
		profiles: profiles,
		orders:   orders,
		payments: payments,
		provider: provider,
		logger:   logger,
	}
}

// RegisterRoutes mounts the PayPal endpoints on the given router.
func (h *PayPalHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/paypal/orders", h.HandleCreateOrder)
	r.Post("/payments/paypal/capture", h.HandleCaptureOrder)
}

// HandleCreateOrder handles POST /v1/payments/paypal/orders. It creates the
// provider-side order, records it locally keyed on the provider order ID, and
// returns the approval URL for the buyer.
func (h *PayPalHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateOrderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, ok := billing.PlanByID(req.Plan)
	if !ok || plan.Price <= 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"plan must name a purchasable tier",
			nil,
		))
		return
	}

	created, err := h.provider.CreateOrder(r.Context(), plan.Price, plan.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.orders.Insert(r.Context(), &types.PayPalOrder{
		OrderID: created.OrderID,
		UserID:  identity.UserID,
		Plan:    plan.ID,
		Amount:  plan.Price,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("paypal order created",
		slog.String("user_id", identity.UserID),
		slog.String("plan", string(plan.ID)),
		slog.String("order_id", created.OrderID),
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CreateOrderResponse{
		OrderID:     created.OrderID,
		ApprovalURL: created.ApprovalURL,
	}})
}

// HandleCaptureOrder handles POST /v1/payments/paypal/capture. The order must
// belong to the caller. A provider capture status of COMPLETED upgrades the
// profile to the purchased plan, finalizes the local order, and appends one
// ledger row; any other status leaves all state untouched and reports a
// capture failure.
//
// TODO: if the process dies between the provider capture succeeding and the
// local writes below, the charge exists with no upgrade. Add a reconcile job
// that sweeps provider-captured orders still marked "created" locally, keyed
// on capture_id.
func (h *PayPalHandler) HandleCaptureOrder(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CaptureOrderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.OrderID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "order_id is required", nil))
		return
	}

	order, err := h.orders.GetForUser(r.Context(), req.OrderID, identity.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan, ok := billing.PlanByID(order.Plan)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPlan, "order names an unknown plan", nil))
		return
	}

	// A repeated capture call for an already finalized order is acknowledged
	// without touching the ledger again.
	if order.Status == types.OrderStatusCompleted {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CaptureOrderResponse{
			Success: true,
			Plan:    plan.ID,
			Tokens:  plan.Tokens,
		}})
		return
	}

	capture, err := h.provider.CaptureOrder(r.Context(), order.OrderID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if capture.Status != "COMPLETED" {
		h.logger.Warn("paypal capture not completed",
			slog.String("user_id", identity.UserID),
			slog.String("order_id", order.OrderID),
			slog.String("status", capture.Status),
		)
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodePaymentCaptureFailed,
			"payment capture was not completed",
			nil,
			map[string]any{"status": capture.Status},
		))
		return
	}

	planID := plan.ID
	status := types.SubStatusActive
	tokens := plan.Tokens
	zero := 0
	if err := h.profiles.Update(r.Context(), identity.UserID, types.ProfileUpdate{
		SubscriptionPlan:   &planID,
		SubscriptionStatus: &status,
		TokensUsed:         &zero,
		TokensRemaining:    &tokens,
		TokenLimit:         &tokens,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.orders.MarkCompleted(r.Context(), order.OrderID, capture.CaptureID); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.payments.Insert(r.Context(), types.Payment{
		UserID:     identity.UserID,
		Amount:     order.Amount,
		Currency:   "usd",
		Status:     "completed",
		Method:     types.PaymentMethodPayPal,
		ProviderID: order.OrderID,
		Plan:       plan.ID,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("paypal order captured",
		slog.String("user_id", identity.UserID),
		slog.String("order_id", order.OrderID),
		slog.String("capture_id", capture.CaptureID),
		slog.String("plan", string(plan.ID)),
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CaptureOrderResponse{
		Success: true,
		Plan:    plan.ID,
		Tokens:  plan.Tokens,
	}})
}
