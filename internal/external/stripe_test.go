package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforge/internal/config"
	"chatforge/internal/types"
)

func newTestStripeClient(baseURL string) *StripeClient {
	c := NewStripeClient(config.BillingConfig{
		StripeSecretKey: types.SecretString("sk_test_123"),
	}, "https://app.test")
	c.baseURL = baseURL
	return c
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "price_pro", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "pro", r.PostForm.Get("metadata[plan]"))
		assert.Equal(t, "https://app.test/billing/success?session_id={CHECKOUT_SESSION_ID}",
			r.PostForm.Get("success_url"))

		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(srv.URL)
	session, err := c.CreateCheckoutSession(context.Background(), "cus_1", "price_pro", "user-1", "pro")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", session.URL)
}

func TestEnsureCustomerReturnsExistingLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an already-linked profile")
	}))
	defer srv.Close()

	c := newTestStripeClient(srv.URL)
	id, err := c.EnsureCustomer(context.Background(), &types.Profile{
		UserID:           "user-1",
		StripeCustomerID: "cus_existing",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
}

func TestStripeMutationsNotRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestStripeClient(srv.URL)
	_, err := c.CreateCheckoutSession(context.Background(), "cus_1", "price_pro", "user-1", "pro")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
	assert.Equal(t, int32(1), calls.Load(),
		"billing mutations must never be re-fired automatically")
}

// signStripePayload builds a Stripe-Signature header for the payload the way
// Stripe signs deliveries: v1 = HMAC-SHA256 over "<timestamp>.<payload>".
func signStripePayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifierAcceptsValidSignature(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	v := NewStripeVerifier(types.SecretString(secret))
	got, err := v.Verify(payload, signStripePayload(payload, secret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, payload, got)
}

func TestStripeVerifierRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	v := NewStripeVerifier(types.SecretString("whsec_test"))
	_, err := v.Verify(payload, signStripePayload(payload, "whsec_other", time.Now()))
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeWebhookInvalidSignature, appErr.Code)
}

func TestStripeVerifierRejectsTamperedPayload(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	header := signStripePayload(payload, secret, time.Now())

	v := NewStripeVerifier(types.SecretString(secret))
	_, err := v.Verify([]byte(`{"id":"evt_2"}`), header)
	require.Error(t, err)
}

func TestStripeVerifierRejectsStaleTimestamp(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)

	v := NewStripeVerifier(types.SecretString(secret))
	_, err := v.Verify(payload, signStripePayload(payload, secret, time.Now().Add(-time.Hour)))
	require.Error(t, err)
}

func TestStripeVerifierRejectsMalformedHeader(t *testing.T) {
	v := NewStripeVerifier(types.SecretString("whsec_test"))
	_, err := v.Verify([]byte(`{}`), "not-a-signature-header")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeWebhookInvalidSignature, appErr.Code)
}
