package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEventKind is a provider event normalized to what the core acts on.
type WebhookEventKind string

const (
	WebhookPaymentSucceeded WebhookEventKind = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventKind = "payment_failed"
	WebhookOrderApproved    WebhookEventKind = "order_approved"
	WebhookPayoutCompleted  WebhookEventKind = "payout_completed"
	WebhookPayoutFailed     WebhookEventKind = "payout_failed"
	WebhookRefundCompleted  WebhookEventKind = "refund_completed"
	WebhookUnknown          WebhookEventKind = "unknown"
)

// Failure reports whether the event ends a payment or payout unsuccessfully.
func (k WebhookEventKind) Failure() bool {
	return k == WebhookPaymentFailed || k == WebhookPayoutFailed
}

// WebhookEvent is an authenticated provider notification.
type WebhookEvent struct {
	Gateway GatewayKind      `json:"gateway"`
	EventID string           `json:"event_id"`
	Type    string           `json:"type"`
	Kind    WebhookEventKind `json:"kind"`
	// Reference is the provider object id: payment intent, order, capture,
	// payout batch or transfer.
	Reference string `json:"reference"`
	// RequestID is set when the provider echoes our payment request id back
	// in metadata or custom fields.
	RequestID     *uuid.UUID      `json:"payment_request_id,omitempty"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// WebhookLog is one row of webhook_logs; (gateway, event_id) is unique.
type WebhookLog struct {
	ID          uuid.UUID       `json:"id"`
	Gateway     GatewayKind     `json:"gateway"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
