package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rafflehub/platform/internal/domain"
)

const (
	stripeDefaultBaseURL = "https://api.stripe.com"
	stripeSigTolerance   = 5 * time.Minute
)

// StripeConfig holds resolved Stripe credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Options
}

// StripeProvider wraps Stripe API operations: PaymentIntents for charges,
// Transfers to connected accounts for payouts.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	now           func() time.Time
}

// NewStripeProvider creates a Stripe provider. The secret key is required.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key not configured")
	}
	base := cfg.BaseURL
	if base == "" {
		base = stripeDefaultBaseURL
	}
	return &StripeProvider{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(base, "/"),
		client:        cfg.httpClient(),
		now:           time.Now,
	}, nil
}

func (s *StripeProvider) Kind() domain.GatewayKind { return domain.GatewayStripe }

type stripePaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeObject struct {
	ID string `json:"id"`
}

// CreateCharge creates a PaymentIntent. With a saved payment method it is
// confirmed off-session immediately; otherwise the client secret is returned
// for the frontend to complete.
func (s *StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[payment_request_id]", req.RequestID.String())
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.CustomerEmail != "" {
		form.Set("receipt_email", req.CustomerEmail)
	}
	if pm := req.PaymentMethod; pm != nil {
		form.Set("payment_method", pm.ProviderRef)
		if pm.ProviderCustomerID != nil {
			form.Set("customer", *pm.ProviderCustomerID)
		}
		form.Set("confirm", "true")
		form.Set("off_session", "true")
	} else {
		form.Set("automatic_payment_methods[enabled]", "true")
	}

	var pi stripePaymentIntent
	if err := s.post(ctx, "/v1/payment_intents", form, req.RequestID.String(), &pi); err != nil {
		return nil, err
	}
	return &ChargeResult{
		OrderID:      pi.ID,
		PaymentID:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       stripeChargeStatus(pi.Status),
	}, nil
}

// Capture fetches the PaymentIntent and captures it if it is awaiting capture.
func (s *StripeProvider) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/payment_intents/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	var pi stripePaymentIntent
	if err := do(s.client, req, domain.GatewayStripe, &pi, parseStripeError); err != nil {
		return nil, err
	}
	if pi.Status == "requires_capture" {
		if err := s.post(ctx, "/v1/payment_intents/"+url.PathEscape(orderID)+"/capture", url.Values{}, "capture-"+orderID, &pi); err != nil {
			return nil, err
		}
	}
	return &CaptureResult{PaymentID: pi.ID, Succeeded: pi.Status == "succeeded", Status: pi.Status}, nil
}

func (s *StripeProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.Reference)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("reason", "requested_by_customer")
	form.Set("metadata[payment_request_id]", req.RequestID.String())
	if req.Reason != "" {
		form.Set("metadata[note]", req.Reason)
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	key := fmt.Sprintf("refund-%s-%d", req.RequestID, req.Amount)
	if err := s.post(ctx, "/v1/refunds", form, key, &out); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: out.ID, Status: out.Status}, nil
}

// Payout transfers funds to a connected account. Transfers move between
// Stripe balances and settle in the create call.
func (s *StripeProvider) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Destination.Kind != domain.PayoutStripeAccount {
		return nil, fmt.Errorf("stripe cannot pay out to %s", req.Destination.Kind)
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.Destination.StripeAccountID)
	form.Set("transfer_group", req.WithdrawalID.String())
	form.Set("metadata[withdrawal_id]", req.WithdrawalID.String())
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	var tr stripeObject
	if err := s.post(ctx, "/v1/transfers", form, "payout-"+req.WithdrawalID.String(), &tr); err != nil {
		return nil, err
	}
	return &PayoutResult{Reference: tr.ID, Status: "COMPLETED", Completed: true}, nil
}

func (s *StripeProvider) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return do(s.client, req, domain.GatewayStripe, out, parseStripeError)
}

func parseStripeError(body []byte) (string, string) {
	var e struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return "", ""
	}
	code := e.Error.Code
	if e.Error.DeclineCode != "" {
		code = e.Error.DeclineCode
	}
	return code, e.Error.Message
}

func stripeChargeStatus(status string) ChargeStatus {
	switch status {
	case "succeeded":
		return ChargeSucceeded
	case "canceled":
		return ChargeFailed
	}
	return ChargePending
}

type stripeErrorBody struct {
	Message string `json:"message"`
}

// stripeEvent is the envelope of a Stripe webhook delivery.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string            `json:"id"`
			Object           string            `json:"object"`
			Amount           int64             `json:"amount"`
			AmountRefunded   int64             `json:"amount_refunded"`
			Currency         string            `json:"currency"`
			PaymentIntent    string            `json:"payment_intent"`
			Metadata         map[string]string `json:"metadata"`
			LastPaymentError *stripeErrorBody  `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the Stripe-Signature header (t=timestamp,v1=sig) with
// a five minute tolerance, then normalizes the event.
func (s *StripeProvider) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(headers.Get("Stripe-Signature"), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("%w: invalid signature header format", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp", ErrInvalidSignature)
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > stripeSigTolerance || age < -stripeSigTolerance {
		return nil, fmt.Errorf("%w: webhook timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return normalizeStripeEvent(&ev, payload), nil
}

func normalizeStripeEvent(ev *stripeEvent, raw []byte) *domain.WebhookEvent {
	obj := ev.Data.Object
	out := &domain.WebhookEvent{
		Gateway:   domain.GatewayStripe,
		EventID:   ev.ID,
		Type:      ev.Type,
		Kind:      domain.WebhookUnknown,
		Reference: obj.ID,
		RequestID: parseRequestID(obj.Metadata["payment_request_id"]),
		Amount:    obj.Amount,
		Currency:  strings.ToUpper(obj.Currency),
		Raw:       raw,
	}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Kind = domain.WebhookPaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Kind = domain.WebhookPaymentFailed
		if obj.LastPaymentError != nil {
			out.FailureReason = obj.LastPaymentError.Message
		}
	case "charge.refunded":
		out.Kind = domain.WebhookRefundCompleted
		out.Amount = obj.AmountRefunded
		if obj.PaymentIntent != "" {
			out.Reference = obj.PaymentIntent
		}
	case "transfer.reversed":
		// payout.* events describe the platform's own bank payouts.
		out.Kind = domain.WebhookPayoutFailed
		out.FailureReason = "transfer reversed"
	}
	return out
}
