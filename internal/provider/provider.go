// Package provider holds the HTTP clients for the external payment gateways.
// Each client exposes the same capability set so callers never switch on a
// gateway name.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
)

// Client is the capability set the payment core uses.
type Client interface {
	Kind() domain.GatewayKind
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Capture(ctx context.Context, orderID string) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	// VerifyWebhook authenticates a raw delivery and normalizes it.
	VerifyWebhook(ctx context.Context, body []byte, headers http.Header) (*domain.WebhookEvent, error)
}

// ErrInvalidSignature is returned when a webhook fails authentication.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ChargeStatus is the provider-neutral outcome of a charge attempt.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "PENDING"
	ChargeSucceeded ChargeStatus = "SUCCEEDED"
	ChargeFailed    ChargeStatus = "FAILED"
)

// ChargeRequest asks a gateway for money. Amount is in minor units.
type ChargeRequest struct {
	RequestID     uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	// PaymentMethod, when set, is charged directly instead of returning a checkout.
	PaymentMethod *domain.PaymentMethod
	ReturnURL     string
	CancelURL     string
}

// ChargeResult carries the provider handles persisted on the request.
type ChargeResult struct {
	OrderID      string
	PaymentID    string
	CheckoutURL  string
	ClientSecret string
	Status       ChargeStatus
}

// CaptureResult reports the outcome of capturing an approved order.
type CaptureResult struct {
	PaymentID string
	Succeeded bool
	Status    string
}

// RefundRequest returns money for a captured payment. Reference is the
// provider payment id or order id stored on the payment.
type RefundRequest struct {
	RequestID uuid.UUID
	Reference string
	Amount    int64
	Currency  string
	Reason    string
}

// RefundResult is the provider's refund handle.
type RefundResult struct {
	RefundID string
	Status   string
}

// PayoutRequest sends withdrawn funds to a destination.
type PayoutRequest struct {
	WithdrawalID uuid.UUID
	Amount       int64
	Currency     string
	Destination  domain.PayoutDestination
	Description  string
}

// PayoutResult is the provider's transfer handle. Completed is true when the
// provider reports the funds as already delivered.
type PayoutResult struct {
	Reference string
	Status    string
	Completed bool
}

// APIError is a non-2xx provider response.
type APIError struct {
	Gateway    domain.GatewayKind
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error (status %d, %s): %s", e.Gateway, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Gateway, e.StatusCode, e.Message)
}

// IsDecline reports whether err is the provider refusing the operation
// (4xx other than auth and throttling), as opposed to the provider being
// unreachable or failing.
func IsDecline(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// Options are shared across provider constructors.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// do sends req and decodes a 2xx JSON body into out. Non-2xx responses are
// turned into *APIError using parseErr.
func do(client *http.Client, req *http.Request, gateway domain.GatewayKind, out any, parseErr func([]byte) (code, msg string)) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s api call: %w", strings.ToLower(string(gateway)), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", strings.ToLower(string(gateway)), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, msg := "", strings.TrimSpace(string(body))
		if parseErr != nil {
			if c, m := parseErr(body); m != "" {
				code, msg = c, m
			}
		}
		return &APIError{Gateway: gateway, StatusCode: resp.StatusCode, Code: code, Message: msg}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", strings.ToLower(string(gateway)), err)
	}
	return nil
}

func jsonRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func parseRequestID(s string) *uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &id
}
