package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rafflehub/platform/internal/domain"
)

const (
	paypalSandboxURL = "https://api-m.sandbox.paypal.com"
	paypalLiveURL    = "https://api-m.paypal.com"
)

// PayPalConfig holds resolved PayPal REST credentials.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Environment  domain.Environment
	Options
}

// PayPalProvider wraps the Orders v2 and Payouts APIs.
type PayPalProvider struct {
	clientID     string
	clientSecret string
	webhookID    string
	baseURL      string
	client       *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPalProvider creates a PayPal provider. Client id and secret are required.
func NewPayPalProvider(cfg PayPalConfig) (*PayPalProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("paypal client credentials not configured")
	}
	base := cfg.BaseURL
	if base == "" {
		base = paypalSandboxURL
		if cfg.Environment == domain.EnvLive {
			base = paypalLiveURL
		}
	}
	return &PayPalProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		baseURL:      strings.TrimRight(base, "/"),
		client:       cfg.httpClient(),
		now:          time.Now,
	}, nil
}

func (p *PayPalProvider) Kind() domain.GatewayKind { return domain.GatewayPayPal }

// accessToken returns a cached client-credentials token, refreshing it a
// minute before expiry.
func (p *PayPalProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := do(p.client, req, domain.GatewayPayPal, &out, parsePayPalError); err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	p.token = out.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *PayPalProvider) call(ctx context.Context, method, path string, payload any, requestID string, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := jsonRequest(ctx, method, p.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	return do(p.client, req, domain.GatewayPayPal, out, parsePayPalError)
}

type paypalMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Payments    struct {
			Captures []struct {
				ID     string      `json:"id"`
				Status string      `json:"status"`
				Amount paypalMoney `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateCharge creates a CAPTURE-intent order and returns its approval link.
func (p *PayPalProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.RequestID.String(),
			"custom_id":    req.RequestID.String(),
			"description":  req.Description,
			"amount": paypalMoney{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        domain.FormatMinor(req.Amount),
			},
		}},
	}
	if req.ReturnURL != "" {
		body["application_context"] = map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		}
	}

	var order paypalOrder
	if err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", body, req.RequestID.String(), &order); err != nil {
		return nil, err
	}
	res := &ChargeResult{OrderID: order.ID, Status: ChargePending}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			res.CheckoutURL = l.Href
			break
		}
	}
	return res, nil
}

// Capture captures an approved order. PaymentID is the capture id, which
// refunds are issued against.
func (p *PayPalProvider) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := p.call(ctx, http.MethodPost, path, map[string]any{}, "capture-"+orderID, &order); err != nil {
		return nil, err
	}
	res := &CaptureResult{Status: order.Status, Succeeded: order.Status == "COMPLETED"}
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		c := order.PurchaseUnits[0].Payments.Captures[0]
		res.PaymentID = c.ID
		res.Succeeded = res.Succeeded && c.Status == "COMPLETED"
	}
	return res, nil
}

// Refund refunds a capture. Reference must be the capture id.
func (p *PayPalProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"amount": paypalMoney{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        domain.FormatMinor(req.Amount),
		},
	}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v2/payments/captures/" + url.PathEscape(req.Reference) + "/refund"
	key := fmt.Sprintf("refund-%s-%d", req.RequestID, req.Amount)
	if err := p.call(ctx, http.MethodPost, path, body, key, &out); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: out.ID, Status: out.Status}, nil
}

// Payout sends a single-item payout batch to a PayPal email.
func (p *PayPalProvider) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Destination.Kind != domain.PayoutPayPalEmail {
		return nil, fmt.Errorf("paypal cannot pay out to %s", req.Destination.Kind)
	}
	body := map[string]any{
		"sender_batch_header": map[string]string{
			"sender_batch_id": req.WithdrawalID.String(),
			"email_subject":   "You have a payout",
		},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"receiver":       req.Destination.PayPalEmail,
			"sender_item_id": req.WithdrawalID.String(),
			"note":           req.Description,
			"amount": map[string]string{
				"currency": strings.ToUpper(req.Currency),
				"value":    domain.FormatMinor(req.Amount),
			},
		}},
	}
	var out struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
			BatchStatus   string `json:"batch_status"`
		} `json:"batch_header"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/payments/payouts", body, "", &out); err != nil {
		return nil, err
	}
	return &PayoutResult{
		Reference: out.BatchHeader.PayoutBatchID,
		Status:    out.BatchHeader.BatchStatus,
		Completed: out.BatchHeader.BatchStatus == "SUCCESS",
	}, nil
}

func parsePayPalError(body []byte) (string, string) {
	var e struct {
		Name             string `json:"name"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &e) != nil {
		return "", ""
	}
	if e.Name != "" {
		return e.Name, e.Message
	}
	return e.Error, e.ErrorDescription
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID          string       `json:"id"`
		Status      string       `json:"status"`
		CustomID    string       `json:"custom_id"`
		Amount      *paypalMoney `json:"amount"`
		BatchHeader *struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
	} `json:"resource"`
}

// VerifyWebhook asks PayPal to verify the transmission headers against the
// configured webhook id, then normalizes the event.
func (p *PayPalProvider) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	if p.webhookID == "" {
		return nil, fmt.Errorf("paypal webhook id not configured")
	}
	transmissionID := headers.Get("Paypal-Transmission-Id")
	sig := headers.Get("Paypal-Transmission-Sig")
	if transmissionID == "" || sig == "" {
		return nil, fmt.Errorf("%w: missing transmission headers", ErrInvalidSignature)
	}

	body := map[string]any{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   transmissionID,
		"transmission_sig":  sig,
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, "", &out); err != nil {
		return nil, fmt.Errorf("verify paypal webhook: %w", err)
	}
	if out.VerificationStatus != "SUCCESS" {
		return nil, ErrInvalidSignature
	}

	var ev paypalEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return normalizePayPalEvent(&ev, payload), nil
}

func normalizePayPalEvent(ev *paypalEvent, raw []byte) *domain.WebhookEvent {
	res := ev.Resource
	out := &domain.WebhookEvent{
		Gateway:   domain.GatewayPayPal,
		EventID:   ev.ID,
		Type:      ev.EventType,
		Kind:      domain.WebhookUnknown,
		Reference: res.ID,
		RequestID: parseRequestID(res.CustomID),
		Raw:       raw,
	}
	if out.RequestID == nil && len(res.PurchaseUnits) > 0 {
		out.RequestID = parseRequestID(res.PurchaseUnits[0].CustomID)
	}
	if res.Amount != nil {
		out.Currency = res.Amount.CurrencyCode
		if v, err := domain.ParseMajor(res.Amount.Value); err == nil {
			out.Amount = v
		}
	}

	switch ev.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		out.Kind = domain.WebhookOrderApproved
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Kind = domain.WebhookPaymentSucceeded
		if order := res.SupplementaryData.RelatedIDs.OrderID; order != "" {
			out.Reference = order
		}
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		out.Kind = domain.WebhookPaymentFailed
		out.FailureReason = res.StatusDetails.Reason
		if order := res.SupplementaryData.RelatedIDs.OrderID; order != "" {
			out.Reference = order
		}
	case "PAYMENT.CAPTURE.REFUNDED":
		out.Kind = domain.WebhookRefundCompleted
	case "PAYMENT.PAYOUTSBATCH.SUCCESS", "PAYMENT.PAYOUTSBATCH.DENIED":
		out.Kind = domain.WebhookPayoutCompleted
		if ev.EventType == "PAYMENT.PAYOUTSBATCH.DENIED" {
			out.Kind = domain.WebhookPayoutFailed
		}
		if res.BatchHeader != nil {
			out.Reference = res.BatchHeader.PayoutBatchID
		}
	}
	return out
}
