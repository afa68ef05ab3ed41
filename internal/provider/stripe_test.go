package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
)

const stripeTestURL = "https://stripe.test"

func newTestStripe(t *testing.T, webhookSecret string) *StripeProvider {
	t.Helper()
	p, err := NewStripeProvider(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: webhookSecret,
		Options:       Options{BaseURL: stripeTestURL},
	})
	require.NoError(t, err)
	return p
}

func stripeSignature(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewStripeProvider_RequiresSecretKey(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{})
	assert.Error(t, err)
}

func TestStripe_CreateCharge(t *testing.T) {
	defer gock.Off()
	reqID := uuid.New()

	gock.New(stripeTestURL).
		Post("/v1/payment_intents").
		MatchHeader("Authorization", "Bearer sk_test_123").
		MatchHeader("Idempotency-Key", reqID.String()).
		Reply(200).
		JSON(map[string]any{"id": "pi_1", "status": "requires_payment_method", "client_secret": "pi_1_secret"})

	p := newTestStripe(t, "")
	res, err := p.CreateCharge(context.Background(), ChargeRequest{RequestID: reqID, Amount: 10000, Currency: "GBP"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.OrderID)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, ChargePending, res.Status)
	assert.True(t, gock.IsDone())
}

func TestStripe_CreateChargeDeclined(t *testing.T) {
	defer gock.Off()

	gock.New(stripeTestURL).
		Post("/v1/payment_intents").
		Reply(402).
		JSON(map[string]any{"error": map[string]string{"code": "card_declined", "decline_code": "insufficient_funds", "message": "Your card has insufficient funds."}})

	p := newTestStripe(t, "")
	_, err := p.CreateCharge(context.Background(), ChargeRequest{RequestID: uuid.New(), Amount: 500, Currency: "GBP"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "insufficient_funds", apiErr.Code)
	assert.True(t, IsDecline(err))
}

func TestStripe_ServerErrorIsNotDecline(t *testing.T) {
	defer gock.Off()

	gock.New(stripeTestURL).Post("/v1/refunds").Reply(503).BodyString("upstream unavailable")

	p := newTestStripe(t, "")
	_, err := p.Refund(context.Background(), RefundRequest{RequestID: uuid.New(), Reference: "pi_1", Amount: 100, Currency: "GBP"})
	require.Error(t, err)
	assert.False(t, IsDecline(err))
}

func TestStripe_CaptureRequiresCapture(t *testing.T) {
	defer gock.Off()

	gock.New(stripeTestURL).
		Get("/v1/payment_intents/pi_9").
		Reply(200).
		JSON(map[string]any{"id": "pi_9", "status": "requires_capture"})
	gock.New(stripeTestURL).
		Post("/v1/payment_intents/pi_9/capture").
		Reply(200).
		JSON(map[string]any{"id": "pi_9", "status": "succeeded"})

	p := newTestStripe(t, "")
	res, err := p.Capture(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.True(t, gock.IsDone())
}

func TestStripe_PayoutRejectsWrongDestination(t *testing.T) {
	p := newTestStripe(t, "")
	_, err := p.Payout(context.Background(), PayoutRequest{
		WithdrawalID: uuid.New(),
		Amount:       100,
		Currency:     "GBP",
		Destination:  domain.PayoutDestination{Kind: domain.PayoutPayPalEmail, PayPalEmail: "a@b.com"},
	})
	assert.Error(t, err)
}

func TestStripe_Payout(t *testing.T) {
	defer gock.Off()

	gock.New(stripeTestURL).
		Post("/v1/transfers").
		Reply(200).
		JSON(map[string]any{"id": "tr_1"})

	p := newTestStripe(t, "")
	res, err := p.Payout(context.Background(), PayoutRequest{
		WithdrawalID: uuid.New(),
		Amount:       2500,
		Currency:     "GBP",
		Destination:  domain.PayoutDestination{Kind: domain.PayoutStripeAccount, StripeAccountID: "acct_123"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", res.Reference)
	assert.True(t, res.Completed)
}

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	secret := "whsec_test_secret"
	p := newTestStripe(t, secret)
	reqID := uuid.New()

	payload := []byte(fmt.Sprintf(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":10000,"currency":"gbp","metadata":{"payment_request_id":%q}}}}`, reqID))
	ts := fmt.Sprintf("%d", time.Now().Unix())
	h := http.Header{}
	h.Set("Stripe-Signature", stripeSignature(secret, ts, payload))

	event, err := p.VerifyWebhook(context.Background(), payload, h)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.EventID)
	assert.Equal(t, domain.WebhookPaymentSucceeded, event.Kind)
	assert.Equal(t, "pi_1", event.Reference)
	assert.Equal(t, int64(10000), event.Amount)
	assert.Equal(t, "GBP", event.Currency)
	require.NotNil(t, event.RequestID)
	assert.Equal(t, reqID, *event.RequestID)
}

func TestVerifyWebhookSignature_InvalidSignature(t *testing.T) {
	p := newTestStripe(t, "whsec_test_secret")

	payload := []byte(`{"id":"evt_123","type":"test"}`)
	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=invalid_signature", time.Now().Unix()))

	_, err := p.VerifyWebhook(context.Background(), payload, h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_ExpiredTimestamp(t *testing.T) {
	secret := "whsec_test_secret"
	p := newTestStripe(t, secret)

	payload := []byte(`{"id":"evt_123","type":"test"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix()-600) // 10 minutes ago
	h := http.Header{}
	h.Set("Stripe-Signature", stripeSignature(secret, ts, payload))

	_, err := p.VerifyWebhook(context.Background(), payload, h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Contains(t, err.Error(), "tolerance")
}

func TestVerifyWebhookSignature_MissingHeader(t *testing.T) {
	p := newTestStripe(t, "whsec_test_secret")
	_, err := p.VerifyWebhook(context.Background(), []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Contains(t, err.Error(), "invalid signature header format")
}

func TestNormalizeStripeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    domain.WebhookEventKind
		ref     string
		reason  string
	}{
		{
			name:    "payment failed",
			payload: `{"id":"evt_1","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","last_payment_error":{"message":"card declined"}}}}`,
			kind:    domain.WebhookPaymentFailed,
			ref:     "pi_2",
			reason:  "card declined",
		},
		{
			name:    "charge refunded maps to payment intent",
			payload: `{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_3","amount_refunded":500}}}`,
			kind:    domain.WebhookRefundCompleted,
			ref:     "pi_3",
		},
		{
			name:    "reversed transfer fails the payout",
			payload: `{"id":"evt_4","type":"transfer.reversed","data":{"object":{"id":"tr_1","metadata":{"withdrawal_id":"w_1"}}}}`,
			kind:    domain.WebhookPayoutFailed,
			ref:     "tr_1",
			reason:  "transfer reversed",
		},
		{
			name:    "platform bank payout is ignored",
			payload: `{"id":"evt_5","type":"payout.paid","data":{"object":{"id":"po_9"}}}`,
			kind:    domain.WebhookUnknown,
			ref:     "po_9",
		},
		{
			name:    "unhandled type",
			payload: `{"id":"evt_3","type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
			kind:    domain.WebhookUnknown,
			ref:     "cus_1",
		},
	}
	secret := "whsec_x"
	p := newTestStripe(t, secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set("Stripe-Signature", stripeSignature(secret, fmt.Sprintf("%d", time.Now().Unix()), []byte(tt.payload)))
			ev, err := p.VerifyWebhook(context.Background(), []byte(tt.payload), h)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.ref, ev.Reference)
			assert.Equal(t, tt.reason, ev.FailureReason)
		})
	}
}
