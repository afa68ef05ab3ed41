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
	revolutMerchantSandboxURL = "https://sandbox-merchant.revolut.com/api"
	revolutMerchantLiveURL    = "https://merchant.revolut.com/api"
	revolutBusinessSandboxURL = "https://sandbox-b2b.revolut.com/api/1.0"
	revolutBusinessLiveURL    = "https://b2b.revolut.com/api/1.0"
	revolutAPIVersion         = "2024-09-01"
	revolutSigTolerance       = 5 * time.Minute
)

// RevolutConfig holds resolved Revolut Merchant and Business credentials.
type RevolutConfig struct {
	APIKey          string
	WebhookSecret   string
	BusinessToken   string
	SourceAccountID string
	BusinessBaseURL string
	Environment     domain.Environment
	Options
}

// RevolutProvider uses the Merchant API for orders and the Business API for
// payouts.
type RevolutProvider struct {
	apiKey          string
	webhookSecret   string
	businessToken   string
	sourceAccountID string
	merchantURL     string
	businessURL     string
	client          *http.Client
	now             func() time.Time
}

// NewRevolutProvider creates a Revolut provider. The merchant API key is required;
// payouts additionally need a business token and source account.
func NewRevolutProvider(cfg RevolutConfig) (*RevolutProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("revolut api key not configured")
	}
	merchant, business := cfg.BaseURL, cfg.BusinessBaseURL
	if merchant == "" {
		merchant = revolutMerchantSandboxURL
		if cfg.Environment == domain.EnvLive {
			merchant = revolutMerchantLiveURL
		}
	}
	if business == "" {
		business = revolutBusinessSandboxURL
		if cfg.Environment == domain.EnvLive {
			business = revolutBusinessLiveURL
		}
	}
	return &RevolutProvider{
		apiKey:          cfg.APIKey,
		webhookSecret:   cfg.WebhookSecret,
		businessToken:   cfg.BusinessToken,
		sourceAccountID: cfg.SourceAccountID,
		merchantURL:     strings.TrimRight(merchant, "/"),
		businessURL:     strings.TrimRight(business, "/"),
		client:          cfg.httpClient(),
		now:             time.Now,
	}, nil
}

func (r *RevolutProvider) Kind() domain.GatewayKind { return domain.GatewayRevolut }

func (r *RevolutProvider) merchant(ctx context.Context, method, path string, payload, out any) error {
	req, err := jsonRequest(ctx, method, r.merchantURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Revolut-Api-Version", revolutAPIVersion)
	return do(r.client, req, domain.GatewayRevolut, out, parseRevolutError)
}

func (r *RevolutProvider) business(ctx context.Context, method, path string, payload, out any) error {
	if r.businessToken == "" || r.sourceAccountID == "" {
		return fmt.Errorf("revolut business credentials not configured")
	}
	req, err := jsonRequest(ctx, method, r.businessURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.businessToken)
	return do(r.client, req, domain.GatewayRevolut, out, parseRevolutError)
}

type revolutOrder struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	State       string `json:"state"`
	CheckoutURL string `json:"checkout_url"`
	Payments    []struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"payments"`
}

// CreateCharge creates a Merchant API order. Amount stays in minor units.
func (r *RevolutProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body := map[string]any{
		"amount":              req.Amount,
		"currency":            strings.ToUpper(req.Currency),
		"description":         req.Description,
		"merchant_order_data": map[string]string{"reference": req.RequestID.String()},
	}
	if req.CustomerEmail != "" {
		body["customer"] = map[string]string{"email": req.CustomerEmail}
	}
	if req.ReturnURL != "" {
		body["redirect_url"] = req.ReturnURL
	}
	var order revolutOrder
	if err := r.merchant(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, err
	}
	return &ChargeResult{
		OrderID:      order.ID,
		CheckoutURL:  order.CheckoutURL,
		ClientSecret: order.Token,
		Status:       revolutChargeStatus(order.State),
	}, nil
}

// Capture captures an authorised order.
func (r *RevolutProvider) Capture(ctx context.Context, orderID string) (*CaptureResult, error) {
	var order revolutOrder
	if err := r.merchant(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/capture", map[string]any{}, &order); err != nil {
		return nil, err
	}
	res := &CaptureResult{PaymentID: order.ID, Status: order.State, Succeeded: order.State == "completed"}
	if len(order.Payments) > 0 {
		res.PaymentID = order.Payments[0].ID
	}
	return res, nil
}

// Refund refunds an order. Reference is the order id.
func (r *RevolutProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"amount":      req.Amount,
		"currency":    strings.ToUpper(req.Currency),
		"description": req.Reason,
	}
	var out revolutOrder
	if err := r.merchant(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.Reference)+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: out.ID, Status: out.State}, nil
}

// Payout transfers from the business source account. Bank destinations are
// first registered as a counterparty.
func (r *RevolutProvider) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	receiver := map[string]string{}
	switch req.Destination.Kind {
	case domain.PayoutRevolutCounterparty:
		receiver["counterparty_id"] = req.Destination.Revolut.CounterpartyID
		if req.Destination.Revolut.AccountID != "" {
			receiver["account_id"] = req.Destination.Revolut.AccountID
		}
	case domain.PayoutBankAccount:
		cp, err := r.createCounterparty(ctx, req.Destination.Bank, req.Currency)
		if err != nil {
			return nil, err
		}
		receiver["counterparty_id"] = cp.ID
		if len(cp.Accounts) > 0 {
			receiver["account_id"] = cp.Accounts[0].ID
		}
	default:
		return nil, fmt.Errorf("revolut cannot pay out to %s", req.Destination.Kind)
	}

	body := map[string]any{
		"request_id": req.WithdrawalID.String(),
		"account_id": r.sourceAccountID,
		"receiver":   receiver,
		"amount":     json.Number(domain.FormatMinor(req.Amount)),
		"currency":   strings.ToUpper(req.Currency),
		"reference":  truncate(req.Description, 100),
	}
	var out struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := r.business(ctx, http.MethodPost, "/pay", body, &out); err != nil {
		return nil, err
	}
	return &PayoutResult{Reference: out.ID, Status: out.State, Completed: out.State == "completed"}, nil
}

type revolutCounterparty struct {
	ID       string `json:"id"`
	Accounts []struct {
		ID string `json:"id"`
	} `json:"accounts"`
}

func (r *RevolutProvider) createCounterparty(ctx context.Context, bank *domain.BankAccount, currency string) (*revolutCounterparty, error) {
	body := map[string]any{
		"individual_name": map[string]string{"first_name": bank.AccountHolder},
		"currency":        strings.ToUpper(currency),
	}
	if bank.IBAN != "" {
		body["iban"] = bank.IBAN
		body["bic"] = bank.BIC
		if len(bank.IBAN) >= 2 {
			body["bank_country"] = strings.ToUpper(bank.IBAN[:2])
		}
	} else {
		body["account_no"] = bank.AccountNumber
		body["sort_code"] = bank.SortCode
		body["bank_country"] = "GB"
	}
	var cp revolutCounterparty
	if err := r.business(ctx, http.MethodPost, "/counterparty", body, &cp); err != nil {
		return nil, fmt.Errorf("create counterparty: %w", err)
	}
	return &cp, nil
}

func parseRevolutError(body []byte) (string, string) {
	var e struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return "", ""
	}
	return strings.Trim(string(e.Code), `"`), e.Message
}

func revolutChargeStatus(state string) ChargeStatus {
	switch strings.ToLower(state) {
	case "completed":
		return ChargeSucceeded
	case "cancelled", "failed":
		return ChargeFailed
	}
	return ChargePending
}

type revolutEvent struct {
	Event                string `json:"event"`
	OrderID              string `json:"order_id"`
	MerchantOrderExtRef  string `json:"merchant_order_ext_ref"`
	MerchantOrderDataRef string `json:"merchant_order_data_reference"`
	Data                 *struct {
		ID        string `json:"id"`
		RequestID string `json:"request_id"`
		OldState  string `json:"old_state"`
		NewState  string `json:"new_state"`
	} `json:"data"`
}

// VerifyWebhook checks Revolut-Signature (v1=hex HMAC over
// "v1.{timestamp}.{body}") and Revolut-Request-Timestamp.
func (r *RevolutProvider) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	if r.webhookSecret == "" {
		return nil, fmt.Errorf("revolut webhook secret not configured")
	}
	timestamp := headers.Get("Revolut-Request-Timestamp")
	sigHeader := headers.Get("Revolut-Signature")
	if timestamp == "" || sigHeader == "" {
		return nil, fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp", ErrInvalidSignature)
	}
	if age := r.now().Sub(time.UnixMilli(ms)); age > revolutSigTolerance || age < -revolutSigTolerance {
		return nil, fmt.Errorf("%w: webhook timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write([]byte("v1." + timestamp + "." + string(payload)))
	expected := "v1=" + hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range strings.Split(sigHeader, ",") {
		if hmac.Equal([]byte(expected), []byte(strings.TrimSpace(sig))) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var ev revolutEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return normalizeRevolutEvent(&ev, payload), nil
}

// Revolut deliveries carry no event id, so one is derived from the event
// name, object and state.
func normalizeRevolutEvent(ev *revolutEvent, raw []byte) *domain.WebhookEvent {
	out := &domain.WebhookEvent{
		Gateway:   domain.GatewayRevolut,
		Type:      ev.Event,
		Kind:      domain.WebhookUnknown,
		Reference: ev.OrderID,
		Raw:       raw,
	}
	ref := ev.MerchantOrderExtRef
	if ref == "" {
		ref = ev.MerchantOrderDataRef
	}
	out.RequestID = parseRequestID(ref)
	out.EventID = ev.Event + ":" + ev.OrderID

	switch ev.Event {
	case "ORDER_COMPLETED":
		out.Kind = domain.WebhookPaymentSucceeded
	case "ORDER_AUTHORISED":
		out.Kind = domain.WebhookOrderApproved
	case "ORDER_PAYMENT_FAILED", "ORDER_PAYMENT_DECLINED", "ORDER_CANCELLED":
		out.Kind = domain.WebhookPaymentFailed
	case "TransactionStateChanged":
		if ev.Data == nil {
			break
		}
		out.Reference = ev.Data.ID
		out.EventID = ev.Event + ":" + ev.Data.ID + ":" + ev.Data.NewState
		switch ev.Data.NewState {
		case "completed":
			out.Kind = domain.WebhookPayoutCompleted
		case "failed", "declined", "reverted":
			out.Kind = domain.WebhookPayoutFailed
			out.FailureReason = "transfer " + ev.Data.NewState
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
