package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatforge/internal/core"
	"chatforge/internal/external"
	"chatforge/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockProfileStore is an in-memory profile store recording every mutation.
// It satisfies all the profile interfaces the handlers declare.
type mockProfileStore struct {
	profiles   map[string]*types.Profile
	byCustomer map[string]*types.Profile

	createCalls []types.Identity
	updateCalls []profileUpdateCall
	applyCalls  []applyUsageCall

	getErr    error
	createErr error
	updateErr error
	applyErr  error
}

type profileUpdateCall struct {
	UserID string
	Update types.ProfileUpdate
}

type applyUsageCall struct {
	UserID     string
	TokensUsed int
}

func newMockProfileStore(profiles ...*types.Profile) *mockProfileStore {
	m := &mockProfileStore{
		profiles:   make(map[string]*types.Profile),
		byCustomer: make(map[string]*types.Profile),
	}
	for _, p := range profiles {
		m.profiles[p.UserID] = p
		if p.StripeCustomerID != "" {
			m.byCustomer[p.StripeCustomerID] = p
		}
	}
	return m
}

func (m *mockProfileStore) GetByUserID(_ context.Context, userID string) (*types.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return p, nil
}

func (m *mockProfileStore) GetByStripeCustomerID(_ context.Context, customerID string) (*types.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byCustomer[customerID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for customer", nil)
	}
	return p, nil
}

func (m *mockProfileStore) Create(_ context.Context, userID, email, fullName string) (*types.Profile, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createCalls = append(m.createCalls, types.Identity{UserID: userID, Email: email, Name: fullName})
	p := &types.Profile{
		UserID:             userID,
		Email:              email,
		FullName:           fullName,
		SubscriptionPlan:   types.PlanFree,
		SubscriptionStatus: types.SubStatusActive,
		TokensUsed:         0,
		TokensRemaining:    types.FreePlanTokens,
		TokenLimit:         types.FreePlanTokens,
		IsActive:           true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	m.profiles[userID] = p
	return p, nil
}

func (m *mockProfileStore) Update(_ context.Context, userID string, upd types.ProfileUpdate) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updateCalls = append(m.updateCalls, profileUpdateCall{UserID: userID, Update: upd})
	return nil
}

func (m *mockProfileStore) ApplyChatUsage(_ context.Context, userID string, tokensUsed int) (*types.Profile, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.applyCalls = append(m.applyCalls, applyUsageCall{UserID: userID, TokensUsed: tokensUsed})

	p, ok := m.profiles[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	p.TokensUsed += tokensUsed
	p.TokensRemaining -= tokensUsed
	if p.TokensRemaining < 0 {
		p.TokensRemaining = 0
	}
	p.TotalMessages++
	return p, nil
}

func (m *mockProfileStore) ListAll(_ context.Context) ([]*types.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([]*types.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProfileStore) Count(_ context.Context) (int, error) {
	return len(m.profiles), m.getErr
}

func (m *mockProfileStore) CountActive(_ context.Context) (int, error) {
	n := 0
	for _, p := range m.profiles {
		if p.IsActive {
			n++
		}
	}
	return n, m.getErr
}

// mockCompletionService records generation calls and returns a fixed result.
type mockCompletionService struct {
	calls  []string
	result *types.Completion
	err    error
}

func (m *mockCompletionService) Generate(_ context.Context, prompt string, _ []types.ChatTurn) (*types.Completion, error) {
	m.calls = append(m.calls, prompt)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockChatLog records inserted chat turns.
type mockChatLog struct {
	inserts []types.ChatMessage
	err     error
}

func (m *mockChatLog) Insert(_ context.Context, msg types.ChatMessage) error {
	if m.err != nil {
		return m.err
	}
	m.inserts = append(m.inserts, msg)
	return nil
}

func (m *mockChatLog) Count(_ context.Context) (int, error) {
	return len(m.inserts), m.err
}

// mockStripeService implements StripeService.
type mockStripeService struct {
	customerID  string
	session     *external.CheckoutSession
	ensureErr   error
	checkoutErr error

	checkoutCalls []checkoutCall
}

type checkoutCall struct {
	CustomerID string
	PriceID    string
	UserID     string
	Plan       string
}

func (m *mockStripeService) EnsureCustomer(_ context.Context, profile *types.Profile) (string, error) {
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	if m.customerID != "" {
		return m.customerID, nil
	}
	return profile.StripeCustomerID, nil
}

func (m *mockStripeService) CreateCheckoutSession(_ context.Context, customerID, priceID, userID, plan string) (*external.CheckoutSession, error) {
	m.checkoutCalls = append(m.checkoutCalls, checkoutCall{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     userID,
		Plan:       plan,
	})
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	return m.session, nil
}

// mockPayPalService implements PayPalService.
type mockPayPalService struct {
	created    *external.CreatedOrder
	captured   *external.CaptureResult
	createErr  error
	captureErr error

	captureCalls []string
}

func (m *mockPayPalService) CreateOrder(_ context.Context, amount float64, planName string) (*external.CreatedOrder, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockPayPalService) CaptureOrder(_ context.Context, orderID string) (*external.CaptureResult, error) {
	m.captureCalls = append(m.captureCalls, orderID)
	if m.captureErr != nil {
		return nil, m.captureErr
	}
	return m.captured, nil
}

// mockOrderStore is an in-memory PayPal order store.
type mockOrderStore struct {
	orders map[string]*types.PayPalOrder

	inserts        []*types.PayPalOrder
	completedCalls []string

	insertErr   error
	completeErr error
}

func newMockOrderStore(orders ...*types.PayPalOrder) *mockOrderStore {
	m := &mockOrderStore{orders: make(map[string]*types.PayPalOrder)}
	for _, o := range orders {
		m.orders[o.OrderID] = o
	}
	return m
}

func (m *mockOrderStore) Insert(_ context.Context, order *types.PayPalOrder) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	order.Status = types.OrderStatusCreated
	m.inserts = append(m.inserts, order)
	m.orders[order.OrderID] = order
	return nil
}

func (m *mockOrderStore) GetForUser(_ context.Context, orderID, userID string) (*types.PayPalOrder, error) {
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return o, nil
}

func (m *mockOrderStore) MarkCompleted(_ context.Context, orderID, captureID string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completedCalls = append(m.completedCalls, orderID)
	if o, ok := m.orders[orderID]; ok {
		o.Status = types.OrderStatusCompleted
		o.CaptureID = captureID
	}
	return nil
}

// mockPaymentLedger records appended ledger rows.
type mockPaymentLedger struct {
	inserts []types.Payment
	err     error
	revenue float64
}

func (m *mockPaymentLedger) Insert(_ context.Context, p types.Payment) error {
	if m.err != nil {
		return m.err
	}
	m.inserts = append(m.inserts, p)
	return nil
}

func (m *mockPaymentLedger) TotalRevenue(_ context.Context) (float64, error) {
	return m.revenue, m.err
}

// mockVerifier implements WebhookVerifier.
type mockVerifier struct {
	reject bool
	calls  int
}

func (m *mockVerifier) Verify(payload []byte, _ string) ([]byte, error) {
	m.calls++
	if m.reject {
		return nil, types.NewAppError(types.ErrCodeWebhookInvalidSignature, "webhook signature verification failed", nil)
	}
	return payload, nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

var testIdentity = types.Identity{UserID: "user-1", Email: "u1@example.com", Name: "User One"}

// authedRequest builds a request carrying the given identity, mirroring what
// the session middleware injects.
func authedRequest(t *testing.T, method, target string, body any, identity types.Identity) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(types.WithIdentity(req.Context(), identity))
}

// decodeData unmarshals the "data" field of the standard response envelope
// into out.
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decoding response data: %v", err)
	}
}

// decodeError unmarshals the error envelope.
func decodeError(t *testing.T, rr *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()

	var envelope core.APIErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return envelope.Error
}

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
