package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, partition string, body any) OutboxDraft {
	payload, _ := json.Marshal(body)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewWalletEntryEvent is emitted for every wallet_transactions insert.
func NewWalletEntryEvent(e *WalletEntry) OutboxDraft {
	return newDraft(AggregateWallet, e.WalletID.String(), EventWalletEntryPosted, e.UserID.String(), e)
}

// NewRequestCreatedEvent is emitted when a payment request is first persisted.
func NewRequestCreatedEvent(r *PaymentRequest) OutboxDraft {
	return newDraft(AggregatePaymentRequest, r.ID.String(), EventRequestCreated, r.UserID.String(), r)
}

// NewRequestStatusEvent records a status transition.
func NewRequestStatusEvent(r *PaymentRequest, from RequestStatus) OutboxDraft {
	return newDraft(AggregatePaymentRequest, r.ID.String(), EventRequestStatusChanged, r.UserID.String(), map[string]any{
		"payment_request_id": r.ID.String(),
		"user_id":            r.UserID.String(),
		"type":               r.Type,
		"from":               from,
		"to":                 r.Status,
		"amount":             r.Amount,
		"currency":           r.Currency,
	})
}

// NewPurchaseCompletedEvent is emitted once tickets or a subscription are issued.
func NewPurchaseCompletedEvent(p *Purchase, ticketCount int) OutboxDraft {
	return newDraft(AggregatePurchase, p.ID.String(), EventPurchaseCompleted, p.UserID.String(), map[string]any{
		"purchase_id":     p.ID.String(),
		"user_id":         p.UserID.String(),
		"kind":            p.Kind,
		"total_amount":    p.TotalAmount,
		"credit_used":     p.CreditUsed,
		"cash_used":       p.CashUsed,
		"external_amount": p.ExternalAmount,
		"tickets":         ticketCount,
	})
}

// NewRefundEvent is emitted after a refund commits.
func NewRefundEvent(r *Refund) OutboxDraft {
	return newDraft(AggregatePaymentRequest, r.TransactionID.String(), EventRefundCompleted, r.UserID.String(), r)
}

// NewGatewayConfigEvent is emitted on admin changes to a gateway.
func NewGatewayConfigEvent(cfg *GatewayConfig, adminID uuid.UUID) OutboxDraft {
	return newDraft(AggregateGateway, string(cfg.Gateway), EventGatewayConfigChanged, string(cfg.Gateway), map[string]any{
		"gateway":     cfg.Gateway,
		"environment": cfg.Environment,
		"enabled":     cfg.Enabled,
		"admin_id":    adminID.String(),
	})
}
