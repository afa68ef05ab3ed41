package domain

import (
	"time"

	"github.com/google/uuid"
)

// Refund records a full or partial reversal of a completed payment.
type Refund struct {
	ID              uuid.UUID   `json:"id"`
	TransactionID   uuid.UUID   `json:"transaction_id"`
	PaymentID       uuid.UUID   `json:"payment_id"`
	UserID          uuid.UUID   `json:"user_id"`
	AdminID         uuid.UUID   `json:"admin_id"`
	Amount          int64       `json:"amount"`
	Currency        string      `json:"currency"`
	Reason          string      `json:"reason"`
	Gateway         GatewayKind `json:"gateway"`
	GatewayRefundID string      `json:"gateway_refund_id"`
	Partial         bool        `json:"partial"`
	CreatedAt       time.Time   `json:"created_at"`
}
