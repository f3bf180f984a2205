package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatforge/internal/config"
	"chatforge/internal/types"
)

// PayPalClient implements PayPalService against the PayPal Orders v2 REST API.
// Access tokens are obtained via the client-credentials grant and cached until
// shortly before expiry.
type PayPalClient struct {
	base         *BaseClient
	baseURL      string
	clientID     string
	clientSecret types.SecretString

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient creates a PayPal API client from the given billing config.
// Calls are single-shot: capture moves funds and carries no idempotency key,
// so an ambiguous failure must surface to the caller instead of being
// re-fired.
func NewPayPalClient(cfg config.BillingConfig) *PayPalClient {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	return &PayPalClient{
		base:         NewBaseClient(httpClient, "paypal", NoRetryPolicy(), "chatforge/1.0"),
		baseURL:      strings.TrimSuffix(cfg.PayPalBaseURL, "/"),
		clientID:     cfg.PayPalClientID,
		clientSecret: cfg.PayPalClientSecret,
	}
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid access token, requesting a fresh one via the
// client-credentials grant when the cached token is missing or near expiry.
func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build paypal token request", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret.Unmask())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayPal, "paypal token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayPal, "failed to read paypal token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPayPal,
			fmt.Sprintf("paypal token endpoint returned status %d", resp.StatusCode),
			nil,
		)
	}

	var token paypalTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamPayPal, "failed to parse paypal token response", err)
	}
	if token.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamPayPal, "paypal token response carried no token", nil)
	}

	c.accessToken = token.AccessToken
	// Refresh one minute early to avoid racing the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// doJSON sends an authenticated JSON request and decodes the response into out.
func (c *PayPalClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	accessToken, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode paypal payload", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build paypal request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayPal, "paypal request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPayPal, "failed to read paypal response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(
			types.ErrCodeUpstreamPayPal,
			fmt.Sprintf("paypal returned status %d", resp.StatusCode),
			nil,
		)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamPayPal, "failed to parse paypal response", err)
		}
	}
	return nil
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrderResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	Description string       `json:"description"`
	Amount      paypalAmount `json:"amount"`
}

type paypalCreateOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

// CreateOrder creates a CAPTURE-intent order for the given amount and returns
// the provider order ID plus the approval URL the buyer must visit.
func (c *PayPalClient) CreateOrder(ctx context.Context, amount float64, planName string) (*CreatedOrder, error) {
	payload := paypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			Description: planName + " subscription",
			Amount: paypalAmount{
				CurrencyCode: "USD",
				Value:        fmt.Sprintf("%.2f", amount),
			},
		}},
	}

	var order paypalOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamPayPal, "paypal order response carried no id", nil)
	}

	var approvalURL string
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamPayPal, "paypal order response carried no approval link", nil)
	}

	return &CreatedOrder{OrderID: order.ID, ApprovalURL: approvalURL}, nil
}

// CaptureOrder captures the approved order and returns the provider's capture
// status verbatim. Callers decide what any status other than COMPLETED means.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var order paypalOrderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &order); err != nil {
		return nil, err
	}

	result := &CaptureResult{Status: order.Status}
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		result.CaptureID = order.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return result, nil
}
