package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates outbox event types published to Kafka.
type EventType string

const (
	EventWalletEntryPosted    EventType = "payments.wallet.entry.posted"
	EventRequestCreated       EventType = "payments.request.created"
	EventRequestStatusChanged EventType = "payments.request.status_changed"
	EventPurchaseCompleted    EventType = "payments.purchase.completed"
	EventRefundCompleted      EventType = "payments.refund.completed"
	EventGatewayConfigChanged EventType = "payments.gateway.config_changed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet         AggregateType = "wallet"
	AggregatePaymentRequest AggregateType = "payment_request"
	AggregatePurchase       AggregateType = "purchase"
	AggregateGateway        AggregateType = "gateway"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// GuardResult is the outcome of a guard check.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
