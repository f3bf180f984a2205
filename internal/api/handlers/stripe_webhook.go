package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatforge/internal/billing"
	"chatforge/internal/core"
	"chatforge/internal/external"
	"chatforge/internal/types"
)

// maxWebhookBodySize caps webhook payloads at 64 KB. Stripe events are small;
// anything larger is hostile.
const maxWebhookBodySize = 64 * 1024

// errCodeWebhookInvalidPayload is returned when a correctly signed payload
// cannot be parsed. Local to the webhook surface.
const errCodeWebhookInvalidPayload types.ErrorCode = "validation_invalid_payload"

// WebhookVerifier validates webhook payloads against their signature header.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) ([]byte, error)
}

// WebhookProfileStore is the profile access the webhook dispatcher needs:
// resolution by Stripe customer linkage and partial updates.
type WebhookProfileStore interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Profile, error)
	Update(ctx context.Context, userID string, upd types.ProfileUpdate) error
}

// stripeEvent is the minimal envelope of a Stripe webhook event. The object
// payload stays raw until the event type selects a concrete shape.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

type invoiceObject struct {
	Customer string `json:"customer"`
}

// webhookAck is the body returned for every accepted event.
type webhookAck struct {
	Received bool `json:"received"`
}

// StripeWebhookHandler receives and dispatches Stripe webhook events.
// Delivery is at-least-once with no event-ID deduplication, so every branch
// applies an idempotent profile transition; only the checkout ledger append
// can duplicate on redelivery.
type StripeWebhookHandler struct {
	verifier WebhookVerifier
	profiles WebhookProfileStore
	payments PaymentLedger
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler with its dependencies.
func NewStripeWebhookHandler(
	verifier WebhookVerifier,
	profiles WebhookProfileStore,
	payments PaymentLedger,
	logger *slog.Logger,
) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		verifier: verifier,
		profiles: profiles,
		payments: payments,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint on the given router. The route
// is exempt from session authentication; the signature is the credential.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleWebhook)
}

// HandleWebhook handles POST /v1/webhooks/stripe. The signature is verified
// before anything else; an invalid signature is rejected with 400 and no
// event dispatch of any kind. Unrecognized event types are acknowledged and
// dropped so Stripe stops redelivering them.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(errCodeWebhookInvalidPayload, "failed to read webhook body", err))
		return
	}

	payload, err := h.verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		core.Error(w, r, err)
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse webhook event", err))
		return
	}

	if err := h.routeEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook dispatch failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}

// routeEvent dispatches one verified event to its state transition.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event stripeEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.onCheckoutCompleted(ctx, event)
	case external.EventSubscriptionUpdated:
		return h.onSubscriptionUpdated(ctx, event)
	case external.EventSubscriptionDeleted:
		return h.onSubscriptionDeleted(ctx, event)
	case external.EventInvoicePaid:
		return h.onInvoicePaid(ctx, event)
	case external.EventPaymentFailed:
		return h.onPaymentFailed(ctx, event)
	default:
		h.logger.Info("webhook event ignored", slog.String("event_type", event.Type))
		return nil
	}
}

func (h *StripeWebhookHandler) onCheckoutCompleted(ctx context.Context, event stripeEvent) error {
	var session checkoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse checkout session", err)
	}

	update, payment, ok := billing.ApplyCheckoutCompleted(billing.CheckoutCompleted{
		UserID:          session.Metadata["user_id"],
		Plan:            types.PlanID(session.Metadata["plan"]),
		SubscriptionID:  session.Subscription,
		PaymentIntentID: session.PaymentIntent,
	})
	if !ok {
		h.logger.Warn("checkout event missing usable metadata", slog.String("session_id", session.ID))
		return nil
	}

	if session.Customer != "" {
		update.StripeCustomerID = &session.Customer
	}

	if err := h.profiles.Update(ctx, payment.UserID, update); err != nil {
		return err
	}
	if err := h.payments.Insert(ctx, payment); err != nil {
		return err
	}

	h.logger.Info("subscription activated via checkout",
		slog.String("user_id", payment.UserID),
		slog.String("plan", string(payment.Plan)),
	)
	return nil
}

func (h *StripeWebhookHandler) onSubscriptionUpdated(ctx context.Context, event stripeEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse subscription", err)
	}

	return h.updateByCustomer(ctx, sub.Customer, func(*types.Profile) (types.ProfileUpdate, bool) {
		return billing.ApplySubscriptionUpdated(sub.Status), true
	})
}

func (h *StripeWebhookHandler) onSubscriptionDeleted(ctx context.Context, event stripeEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse subscription", err)
	}

	return h.updateByCustomer(ctx, sub.Customer, func(*types.Profile) (types.ProfileUpdate, bool) {
		return billing.ApplySubscriptionDeleted(), true
	})
}

func (h *StripeWebhookHandler) onInvoicePaid(ctx context.Context, event stripeEvent) error {
	var invoice invoiceObject
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse invoice", err)
	}

	return h.updateByCustomer(ctx, invoice.Customer, func(p *types.Profile) (types.ProfileUpdate, bool) {
		return billing.ApplyInvoicePaid(p.SubscriptionPlan)
	})
}

func (h *StripeWebhookHandler) onPaymentFailed(ctx context.Context, event stripeEvent) error {
	var invoice invoiceObject
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return types.NewAppError(errCodeWebhookInvalidPayload, "failed to parse invoice", err)
	}

	return h.updateByCustomer(ctx, invoice.Customer, func(*types.Profile) (types.ProfileUpdate, bool) {
		return billing.ApplyPaymentFailed(), true
	})
}

// updateByCustomer resolves the profile linked to the Stripe customer and
// applies the transition. Events for customers this platform never linked are
// acknowledged without effect; Stripe redelivery cannot fix those.
func (h *StripeWebhookHandler) updateByCustomer(
	ctx context.Context,
	customerID string,
	transition func(*types.Profile) (types.ProfileUpdate, bool),
) error {
	if customerID == "" {
		h.logger.Warn("webhook event carried no customer")
		return nil
	}

	profile, err := h.profiles.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
			h.logger.Warn("webhook event for unknown customer", slog.String("customer_id", customerID))
			return nil
		}
		return err
	}

	update, ok := transition(profile)
	if !ok {
		h.logger.Warn("webhook transition not applicable",
			slog.String("user_id", profile.UserID),
			slog.String("plan", string(profile.SubscriptionPlan)),
		)
		return nil
	}

	return h.profiles.Update(ctx, profile.UserID, update)
}
