package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"chatforge/internal/config"
	"chatforge/internal/types"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient implements BillingService against the Stripe REST API.
// Requests use form encoding as Stripe requires; responses are JSON.
type StripeClient struct {
	base      *BaseClient
	baseURL   string
	secretKey types.SecretString
	appURL    string
}

// NewStripeClient creates a Stripe API client. Checkout redirect URLs are
// derived from the public app URL, never from request input. Calls are
// single-shot: customer and session creation mutate billing state, and an
// ambiguous failure must surface to the caller instead of being re-fired.
func NewStripeClient(cfg config.BillingConfig, appURL string) *StripeClient {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	return &StripeClient{
		base:      NewBaseClient(httpClient, "stripe", NoRetryPolicy(), "chatforge/1.0"),
		baseURL:   stripeAPIBase,
		secretKey: cfg.StripeSecretKey,
		appURL:    strings.TrimSuffix(appURL, "/"),
	}
}

func (c *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// doPost sends a form-encoded POST and decodes the JSON response into out.
func (c *StripeClient) doPost(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "stripe request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "failed to read stripe response", err)
	}

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "failed to parse stripe response", err)
	}
	return nil
}

// stripeErrorResponse mirrors Stripe's error envelope.
type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) handleErrorResponse(status int, body []byte) error {
	var errResp stripeErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("stripe returned status %d", status),
			nil,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("stripe error (%s): %s", errResp.Error.Type, errResp.Error.Message),
		nil,
	)
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// EnsureCustomer returns the Stripe customer ID for the profile, creating a
// customer tagged with the user ID when none is linked yet. The caller is
// responsible for persisting a newly created ID back onto the profile.
func (c *StripeClient) EnsureCustomer(ctx context.Context, profile *types.Profile) (string, error) {
	if profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	form := url.Values{}
	form.Set("email", profile.Email)
	form.Set("metadata[user_id]", profile.UserID)
	if profile.FullName != "" {
		form.Set("name", profile.FullName)
	}

	var customer stripeCustomer
	if err := c.doPost(ctx, "/customers", form, &customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// CreateCheckoutSession opens a subscription-mode Checkout Session for the
// given price. The user ID and plan travel in the session metadata so the
// webhook dispatcher can attribute the completed checkout without a lookup
// round-trip.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", customerID)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.appURL+"/billing/success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.appURL+"/billing/cancel")
	form.Set("metadata[user_id]", userID)
	form.Set("metadata[plan]", plan)
	form.Set("subscription_data[metadata][user_id]", userID)
	form.Set("subscription_data[metadata][plan]", plan)

	var session stripeCheckoutSession
	if err := c.doPost(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "checkout session carried no redirect url", nil)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// StripeVerifier validates Stripe webhook signatures using the endpoint's
// signing secret.
type StripeVerifier struct {
	secret types.SecretString
}

// NewStripeVerifier creates a verifier bound to the webhook signing secret.
func NewStripeVerifier(secret types.SecretString) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the payload. On success
// the payload is returned unchanged; any signature mismatch, expired
// timestamp, or malformed header yields ErrCodeWebhookInvalidSignature.
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) ([]byte, error) {
	if err := webhook.ValidatePayload(payload, signatureHeader, v.secret.Unmask()); err != nil {
		return nil, types.NewAppError(types.ErrCodeWebhookInvalidSignature, "webhook signature verification failed", err)
	}
	return payload, nil
}
