// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/provider"
)

// Client records calls and returns scripted results. Nil funcs fall back to
// deterministic success responses.
type Client struct {
	Gateway domain.GatewayKind

	ChargeFn  func(provider.ChargeRequest) (*provider.ChargeResult, error)
	CaptureFn func(orderID string) (*provider.CaptureResult, error)
	RefundFn  func(provider.RefundRequest) (*provider.RefundResult, error)
	PayoutFn  func(provider.PayoutRequest) (*provider.PayoutResult, error)
	VerifyFn  func(body []byte, headers http.Header) (*domain.WebhookEvent, error)

	mu      sync.Mutex
	Charges []provider.ChargeRequest
	Refunds []provider.RefundRequest
	Payouts []provider.PayoutRequest
	seq     int
}

// New returns a fake for kind with default behaviour.
func New(kind domain.GatewayKind) *Client { return &Client{Gateway: kind} }

func (c *Client) Kind() domain.GatewayKind { return c.Gateway }

func (c *Client) next(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s_%d", prefix, c.seq)
}

func (c *Client) CreateCharge(_ context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	c.mu.Lock()
	c.Charges = append(c.Charges, req)
	id := c.next("ord")
	c.mu.Unlock()
	if c.ChargeFn != nil {
		return c.ChargeFn(req)
	}
	status := provider.ChargePending
	if req.PaymentMethod != nil {
		status = provider.ChargeSucceeded
	}
	return &provider.ChargeResult{
		OrderID:     id,
		PaymentID:   id,
		CheckoutURL: "https://checkout.test/" + id,
		Status:      status,
	}, nil
}

func (c *Client) Capture(_ context.Context, orderID string) (*provider.CaptureResult, error) {
	if c.CaptureFn != nil {
		return c.CaptureFn(orderID)
	}
	return &provider.CaptureResult{PaymentID: "cap_" + orderID, Succeeded: true, Status: "COMPLETED"}, nil
}

func (c *Client) Refund(_ context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	c.mu.Lock()
	c.Refunds = append(c.Refunds, req)
	id := c.next("re")
	c.mu.Unlock()
	if c.RefundFn != nil {
		return c.RefundFn(req)
	}
	return &provider.RefundResult{RefundID: id, Status: "succeeded"}, nil
}

func (c *Client) Payout(_ context.Context, req provider.PayoutRequest) (*provider.PayoutResult, error) {
	c.mu.Lock()
	c.Payouts = append(c.Payouts, req)
	id := c.next("po")
	c.mu.Unlock()
	if c.PayoutFn != nil {
		return c.PayoutFn(req)
	}
	return &provider.PayoutResult{Reference: id, Status: "pending"}, nil
}

func (c *Client) VerifyWebhook(_ context.Context, body []byte, headers http.Header) (*domain.WebhookEvent, error) {
	if c.VerifyFn != nil {
		return c.VerifyFn(body, headers)
	}
	return nil, provider.ErrInvalidSignature
}

// ChargeCount returns how many charges were attempted.
func (c *Client) ChargeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Charges)
}

// RefundCount returns how many refunds were attempted.
func (c *Client) RefundCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Refunds)
}

// Build returns c, for use inside a gateway factory closure.
func (c *Client) Build() (provider.Client, error) { return c, nil }
