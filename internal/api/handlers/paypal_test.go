package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chatforge/internal/external"
	"chatforge/internal/types"
)

func newPayPalFixture(store *mockProfileStore, orders *mockOrderStore, provider *mockPayPalService) (*PayPalHandler, *mockPaymentLedger) {
	ledger := &mockPaymentLedger{}
	return NewPayPalHandler(store, orders, ledger, provider, testLogger()), ledger
}

func TestHandleCreateOrder(t *testing.T) {
	orders := newMockOrderStore()
	provider := &mockPayPalService{
		created: &external.CreatedOrder{OrderID: "ORDER-1", ApprovalURL: "https://paypal.test/approve/ORDER-1"},
	}
	h, _ := newPayPalFixture(newMockProfileStore(), orders, provider)

	rr := httptest.NewRecorder()
	h.HandleCreateOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/orders", CreateOrderRequest{Plan: types.PlanPro}, testIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var got CreateOrderResponse
	decodeData(t, rr, &got)
	if got.OrderID != "ORDER-1" || got.ApprovalURL != "https://paypal.test/approve/ORDER-1" {
		t.Errorf("response = %+v", got)
	}

	if len(orders.inserts) != 1 {
		t.Fatalf("stored orders = %d, want 1", len(orders.inserts))
	}
	stored := orders.inserts[0]
	if stored.UserID != "user-1" || stored.Plan != types.PlanPro || stored.Amount != 9.99 {
		t.Errorf("stored order = %+v", stored)
	}
	if stored.Status != types.OrderStatusCreated {
		t.Errorf("stored status = %q, want created", stored.Status)
	}
}

func TestHandleCreateOrderRejectsFreeAndUnknownPlans(t *testing.T) {
	orders := newMockOrderStore()
	h, _ := newPayPalFixture(newMockProfileStore(), orders, &mockPayPalService{})

	for _, plan := range []types.PlanID{types.PlanFree, "bogus", ""} {
		rr := httptest.NewRecorder()
		h.HandleCreateOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/orders", CreateOrderRequest{Plan: plan}, testIdentity))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("plan %q: status = %d, want 400", plan, rr.Code)
		}
	}
	if len(orders.inserts) != 0 {
		t.Errorf("orders stored for invalid plans")
	}
}

func TestHandleCaptureOrderCompleted(t *testing.T) {
	store := newMockProfileStore(&types.Profile{UserID: "user-1", SubscriptionPlan: types.PlanFree})
	orders := newMockOrderStore(&types.PayPalOrder{
		OrderID: "ORDER-1",
		UserID:  "user-1",
		Plan:    types.PlanPro,
		Amount:  9.99,
		Status:  types.OrderStatusCreated,
	})
	provider := &mockPayPalService{
		captured: &external.CaptureResult{Status: "COMPLETED", CaptureID: "CAP-1"},
	}
	h, ledger := newPayPalFixture(store, orders, provider)

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{OrderID: "ORDER-1"}, testIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var got CaptureOrderResponse
	decodeData(t, rr, &got)
	if !got.Success || got.Plan != types.PlanPro || got.Tokens != 50000 {
		t.Errorf("response = %+v", got)
	}

	if len(store.updateCalls) != 1 {
		t.Fatalf("profile updates = %d, want 1", len(store.updateCalls))
	}
	upd := store.updateCalls[0].Update
	if upd.SubscriptionPlan == nil || *upd.SubscriptionPlan != types.PlanPro {
		t.Errorf("plan update = %+v", upd)
	}
	if upd.TokensRemaining == nil || *upd.TokensRemaining != 50000 {
		t.Errorf("token update = %+v", upd)
	}
	if upd.SubscriptionStatus == nil || *upd.SubscriptionStatus != types.SubStatusActive {
		t.Errorf("status update = %+v", upd)
	}

	if len(orders.completedCalls) != 1 || orders.completedCalls[0] != "ORDER-1" {
		t.Errorf("completed calls = %v", orders.completedCalls)
	}

	if len(ledger.inserts) != 1 {
		t.Fatalf("ledger rows = %d, want exactly 1", len(ledger.inserts))
	}
	row := ledger.inserts[0]
	if row.Method != types.PaymentMethodPayPal || row.Amount != 9.99 || row.ProviderID != "ORDER-1" {
		t.Errorf("ledger row = %+v", row)
	}
}

func TestHandleCaptureOrderNotCompleted(t *testing.T) {
	store := newMockProfileStore(&types.Profile{UserID: "user-1"})
	orders := newMockOrderStore(&types.PayPalOrder{
		OrderID: "ORDER-1",
		UserID:  "user-1",
		Plan:    types.PlanPro,
		Amount:  9.99,
		Status:  types.OrderStatusCreated,
	})
	provider := &mockPayPalService{
		captured: &external.CaptureResult{Status: "DECLINED"},
	}
	h, ledger := newPayPalFixture(store, orders, provider)

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{OrderID: "ORDER-1"}, testIdentity))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if detail := decodeError(t, rr); detail.Code != string(types.ErrCodePaymentCaptureFailed) {
		t.Errorf("error code = %q", detail.Code)
	}

	if len(store.updateCalls) != 0 {
		t.Errorf("profile changed on a failed capture")
	}
	if len(orders.completedCalls) != 0 {
		t.Errorf("order finalized on a failed capture")
	}
	if len(ledger.inserts) != 0 {
		t.Errorf("ledger written on a failed capture")
	}
}

func TestHandleCaptureOrderUnknownOrder(t *testing.T) {
	h, _ := newPayPalFixture(newMockProfileStore(), newMockOrderStore(), &mockPayPalService{})

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{OrderID: "NOPE"}, testIdentity))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHandleCaptureOrderScopedToOwner(t *testing.T) {
	orders := newMockOrderStore(&types.PayPalOrder{
		OrderID: "ORDER-1",
		UserID:  "someone-else",
		Plan:    types.PlanPro,
		Status:  types.OrderStatusCreated,
	})
	provider := &mockPayPalService{}
	h, _ := newPayPalFixture(newMockProfileStore(), orders, provider)

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{OrderID: "ORDER-1"}, testIdentity))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for another user's order", rr.Code)
	}
	if len(provider.captureCalls) != 0 {
		t.Errorf("provider capture attempted for another user's order")
	}
}

func TestHandleCaptureOrderMissingOrderID(t *testing.T) {
	h, _ := newPayPalFixture(newMockProfileStore(), newMockOrderStore(), &mockPayPalService{})

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{}, testIdentity))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleCaptureOrderIdempotentAfterCompletion(t *testing.T) {
	orders := newMockOrderStore(&types.PayPalOrder{
		OrderID:   "ORDER-1",
		UserID:    "user-1",
		Plan:      types.PlanPro,
		Amount:    9.99,
		Status:    types.OrderStatusCompleted,
		CaptureID: "CAP-1",
	})
	provider := &mockPayPalService{}
	h, ledger := newPayPalFixture(newMockProfileStore(), orders, provider)

	rr := httptest.NewRecorder()
	h.HandleCaptureOrder(rr, authedRequest(t, http.MethodPost, "/v1/payments/paypal/capture", CaptureOrderRequest{OrderID: "ORDER-1"}, testIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(provider.captureCalls) != 0 {
		t.Errorf("provider capture repeated for a finalized order")
	}
	if len(ledger.inserts) != 0 {
		t.Errorf("ledger row duplicated for a finalized order")
	}
}
