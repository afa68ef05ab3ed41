package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/service"
)

type ingestFunc func(domain.GatewayKind, []byte, http.Header) (*service.WebhookOutcome, error)

func (f ingestFunc) Ingest(_ context.Context, kind domain.GatewayKind, body []byte, headers http.Header) (*service.WebhookOutcome, error) {
	return f(kind, body, headers)
}

func TestWebhookHandler(t *testing.T) {
	var gotKind domain.GatewayKind
	var gotBody string
	ingest := ingestFunc(func(kind domain.GatewayKind, body []byte, headers http.Header) (*service.WebhookOutcome, error) {
		gotKind, gotBody = kind, string(body)
		switch headers.Get("Stripe-Signature") {
		case "":
			return nil, domain.ErrUnauthorized("missing signature")
		case "retry":
			return nil, domain.ErrNotFound("payment request", "ord_9")
		}
		return &service.WebhookOutcome{EventID: "evt_1", Kind: domain.WebhookPaymentSucceeded}, nil
	})

	r := chi.NewRouter()
	r.Post("/webhooks/{gateway}", NewWebhookHandler(ingest, noopLogger()).Handle)

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
		if sig != "" {
			req.Header.Set("Stripe-Signature", sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("t=1,v1=abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.GatewayStripe, gotKind)
	assert.Equal(t, `{"id":"evt_1"}`, gotBody)
	assert.Equal(t, "evt_1", decodeBody(t, w)["event_id"])

	assert.Equal(t, http.StatusUnauthorized, send("").Code)
	assert.Equal(t, http.StatusNotFound, send("retry").Code)
}
