package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/guard"
	"github.com/rafflehub/platform/internal/provider"
)

// guardedClient runs every provider call through the per-gateway circuit
// breaker. Declines and bad signatures do not count as failures.
type guardedClient struct {
	inner   provider.Client
	breaker *guard.CircuitBreaker
	key     string
}

func guardClient(c provider.Client, cb *guard.CircuitBreaker) provider.Client {
	if cb == nil {
		return c
	}
	return &guardedClient{inner: c, breaker: cb, key: "gateway:" + string(c.Kind())}
}

func countable(err error) bool {
	return !provider.IsDecline(err) && !errors.Is(err, provider.ErrInvalidSignature)
}

func (g *guardedClient) run(ctx context.Context, op string, fn func() error) error {
	err := g.breaker.Execute(ctx, g.key, countable, fn)
	result := "ok"
	switch {
	case errors.Is(err, guard.ErrCircuitOpen):
		result = "circuit_open"
	case err != nil:
		result = "error"
	}
	metrics.GetOrCreateCounter(`provider_calls_total{gateway="` + g.inner.Kind().Lower() + `",op="` + op + `",result="` + result + `"}`).Inc()
	return err
}

func (g *guardedClient) Kind() domain.GatewayKind { return g.inner.Kind() }

func (g *guardedClient) CreateCharge(ctx context.Context, req provider.ChargeRequest) (res *provider.ChargeResult, err error) {
	err = g.run(ctx, "create_charge", func() error {
		res, err = g.inner.CreateCharge(ctx, req)
		return err
	})
	return res, err
}

func (g *guardedClient) Capture(ctx context.Context, orderID string) (res *provider.CaptureResult, err error) {
	err = g.run(ctx, "capture", func() error {
		res, err = g.inner.Capture(ctx, orderID)
		return err
	})
	return res, err
}

func (g *guardedClient) Refund(ctx context.Context, req provider.RefundRequest) (res *provider.RefundResult, err error) {
	err = g.run(ctx, "refund", func() error {
		res, err = g.inner.Refund(ctx, req)
		return err
	})
	return res, err
}

func (g *guardedClient) Payout(ctx context.Context, req provider.PayoutRequest) (res *provider.PayoutResult, err error) {
	err = g.run(ctx, "payout", func() error {
		res, err = g.inner.Payout(ctx, req)
		return err
	})
	return res, err
}

func (g *guardedClient) VerifyWebhook(ctx context.Context, body []byte, headers http.Header) (ev *domain.WebhookEvent, err error) {
	err = g.run(ctx, "verify_webhook", func() error {
		ev, err = g.inner.VerifyWebhook(ctx, body, headers)
		return err
	})
	return ev, err
}
