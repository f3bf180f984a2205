package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatforge/internal/types"
)

func TestHandleGetProfileReturnsExisting(t *testing.T) {
	store := newMockProfileStore(&types.Profile{
		UserID:           "user-1",
		Email:            "u1@example.com",
		SubscriptionPlan: types.PlanPro,
		TokensRemaining:  42000,
	})
	h := NewProfileHandler(store, testLogger())

	rr := httptest.NewRecorder()
	h.HandleGetProfile(rr, authedRequest(t, http.MethodGet, "/v1/me/profile", nil, testIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var got types.Profile
	decodeData(t, rr, &got)
	if got.SubscriptionPlan != types.PlanPro {
		t.Errorf("plan = %q, want pro", got.SubscriptionPlan)
	}
	if len(store.createCalls) != 0 {
		t.Errorf("create called %d times for an existing profile", len(store.createCalls))
	}
}

func TestHandleGetProfileCreatesLazily(t *testing.T) {
	store := newMockProfileStore()
	h := NewProfileHandler(store, testLogger())

	rr := httptest.NewRecorder()
	h.HandleGetProfile(rr, authedRequest(t, http.MethodGet, "/v1/me/profile", nil, testIdentity))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(store.createCalls) != 1 {
		t.Fatalf("create called %d times, want 1", len(store.createCalls))
	}
	if store.createCalls[0] != testIdentity {
		t.Errorf("created from %+v, want %+v", store.createCalls[0], testIdentity)
	}

	var got types.Profile
	decodeData(t, rr, &got)
	if got.SubscriptionPlan != types.PlanFree {
		t.Errorf("plan = %q, want free", got.SubscriptionPlan)
	}
	if got.TokensRemaining != 1000 || got.TokenLimit != 1000 {
		t.Errorf("tokens = %d/%d, want 1000/1000", got.TokensRemaining, got.TokenLimit)
	}
	if got.TokensUsed != 0 {
		t.Errorf("tokens_used = %d, want 0", got.TokensUsed)
	}
}

func TestHandleGetProfileWithoutIdentity(t *testing.T) {
	h := NewProfileHandler(newMockProfileStore(), testLogger())

	rr := httptest.NewRecorder()
	h.HandleGetProfile(rr, httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestHandleGetProfileStoreError(t *testing.T) {
	store := newMockProfileStore()
	store.getErr = errors.New("connection refused")
	h := NewProfileHandler(store, testLogger())

	rr := httptest.NewRecorder()
	h.HandleGetProfile(rr, authedRequest(t, http.MethodGet, "/v1/me/profile", nil, testIdentity))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
