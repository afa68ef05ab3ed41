package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
)

const (
	revolutTestMerchantURL = "https://merchant.revolut.test/api"
	revolutTestBusinessURL = "https://b2b.revolut.test/api/1.0"
)

func newTestRevolut(t *testing.T) *RevolutProvider {
	t.Helper()
	p, err := NewRevolutProvider(RevolutConfig{
		APIKey:          "sk_rev",
		WebhookSecret:   "wsk_rev",
		BusinessToken:   "biz_token",
		SourceAccountID: "acc-src",
		BusinessBaseURL: revolutTestBusinessURL,
		Options:         Options{BaseURL: revolutTestMerchantURL},
	})
	require.NoError(t, err)
	return p
}

func revolutHeaders(secret string, ts time.Time, payload []byte) http.Header {
	ms := strconv.FormatInt(ts.UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v1." + ms + "." + string(payload)))
	h := http.Header{}
	h.Set("Revolut-Request-Timestamp", ms)
	h.Set("Revolut-Signature", "v1="+hex.EncodeToString(mac.Sum(nil)))
	return h
}

func TestRevolut_CreateCharge(t *testing.T) {
	defer gock.Off()

	gock.New(revolutTestMerchantURL).
		Post("/orders").
		MatchHeader("Authorization", "Bearer sk_rev").
		MatchHeader("Revolut-Api-Version", revolutAPIVersion).
		Reply(201).
		JSON(map[string]any{"id": "ord_1", "token": "tok_1", "state": "pending", "checkout_url": "https://checkout.revolut.test/tok_1"})

	p := newTestRevolut(t)
	res, err := p.CreateCharge(context.Background(), ChargeRequest{RequestID: uuid.New(), Amount: 1500, Currency: "GBP"})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", res.OrderID)
	assert.Equal(t, "https://checkout.revolut.test/tok_1", res.CheckoutURL)
	assert.Equal(t, ChargePending, res.Status)
}

func TestRevolut_PayoutToCounterparty(t *testing.T) {
	defer gock.Off()

	gock.New(revolutTestBusinessURL).
		Post("/pay").
		MatchHeader("Authorization", "Bearer biz_token").
		Reply(200).
		JSON(map[string]any{"id": "tx_1", "state": "pending"})

	p := newTestRevolut(t)
	res, err := p.Payout(context.Background(), PayoutRequest{
		WithdrawalID: uuid.New(),
		Amount:       2000,
		Currency:     "GBP",
		Destination: domain.PayoutDestination{
			Kind:    domain.PayoutRevolutCounterparty,
			Revolut: &domain.RevolutCounterparty{CounterpartyID: "cp_1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tx_1", res.Reference)
	assert.True(t, gock.IsDone())
}

func TestRevolut_PayoutToBankCreatesCounterparty(t *testing.T) {
	defer gock.Off()

	gock.New(revolutTestBusinessURL).
		Post("/counterparty").
		Reply(200).
		JSON(map[string]any{"id": "cp_new", "accounts": []map[string]string{{"id": "acc_new"}}})
	gock.New(revolutTestBusinessURL).
		Post("/pay").
		Reply(200).
		JSON(map[string]any{"id": "tx_2", "state": "completed"})

	p := newTestRevolut(t)
	res, err := p.Payout(context.Background(), PayoutRequest{
		WithdrawalID: uuid.New(),
		Amount:       2000,
		Currency:     "GBP",
		Destination: domain.PayoutDestination{
			Kind: domain.PayoutBankAccount,
			Bank: &domain.BankAccount{AccountHolder: "Ann Smith", SortCode: "040004", AccountNumber: "12345678"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.True(t, gock.IsDone())
}

func TestRevolut_PayoutWithoutBusinessCredentials(t *testing.T) {
	p, err := NewRevolutProvider(RevolutConfig{APIKey: "sk_rev"})
	require.NoError(t, err)
	_, err = p.Payout(context.Background(), PayoutRequest{
		WithdrawalID: uuid.New(),
		Amount:       100,
		Currency:     "GBP",
		Destination: domain.PayoutDestination{
			Kind:    domain.PayoutRevolutCounterparty,
			Revolut: &domain.RevolutCounterparty{CounterpartyID: "cp"},
		},
	})
	assert.Error(t, err)
}

func TestRevolut_VerifyWebhook(t *testing.T) {
	p := newTestRevolut(t)
	reqID := uuid.New()
	payload := []byte(`{"event":"ORDER_COMPLETED","order_id":"ord_1","merchant_order_ext_ref":"` + reqID.String() + `"}`)

	ev, err := p.VerifyWebhook(context.Background(), payload, revolutHeaders("wsk_rev", time.Now(), payload))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookPaymentSucceeded, ev.Kind)
	assert.Equal(t, "ORDER_COMPLETED:ord_1", ev.EventID)
	assert.Equal(t, "ord_1", ev.Reference)
	require.NotNil(t, ev.RequestID)
	assert.Equal(t, reqID, *ev.RequestID)
}

func TestRevolut_VerifyWebhookTransferState(t *testing.T) {
	p := newTestRevolut(t)
	payload := []byte(`{"event":"TransactionStateChanged","data":{"id":"tx_1","request_id":"r","old_state":"pending","new_state":"completed"}}`)

	ev, err := p.VerifyWebhook(context.Background(), payload, revolutHeaders("wsk_rev", time.Now(), payload))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookPayoutCompleted, ev.Kind)
	assert.Equal(t, "tx_1", ev.Reference)
	assert.Equal(t, "TransactionStateChanged:tx_1:completed", ev.EventID)
}

func TestRevolut_VerifyWebhookRejects(t *testing.T) {
	p := newTestRevolut(t)
	payload := []byte(`{"event":"ORDER_COMPLETED","order_id":"ord_1"}`)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := p.VerifyWebhook(context.Background(), payload, revolutHeaders("other", time.Now(), payload))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := p.VerifyWebhook(context.Background(), payload, revolutHeaders("wsk_rev", time.Now().Add(-10*time.Minute), payload))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		h := revolutHeaders("wsk_rev", time.Now(), payload)
		_, err := p.VerifyWebhook(context.Background(), []byte(`{"event":"ORDER_COMPLETED","order_id":"ord_2"}`), h)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		_, err := p.VerifyWebhook(context.Background(), payload, http.Header{})
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}
