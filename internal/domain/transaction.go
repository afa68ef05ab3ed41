package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a user-visible ledger line.
type TransactionType string

const (
	TxDeposit        TransactionType = "deposit"
	TxWithdrawal     TransactionType = "withdrawal"
	TxTicketPurchase TransactionType = "ticket_purchase"
	TxSubscription   TransactionType = "subscription"
	TxRefund         TransactionType = "refund"
)

// TxTypeFor returns the transaction type recorded for a request type.
func TxTypeFor(t RequestType) TransactionType {
	switch t {
	case RequestWithdrawal:
		return TxWithdrawal
	case RequestTicket:
		return TxTicketPurchase
	case RequestSubscription:
		return TxSubscription
	default:
		return TxDeposit
	}
}

// TransactionStatus only ever moves out of pending once.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxRefunded  TransactionStatus = "refunded"
	TxRejected  TransactionStatus = "rejected"
	TxCancelled TransactionStatus = "cancelled"
)

// TxStatusFor maps a request status onto the transaction status.
func TxStatusFor(s RequestStatus) TransactionStatus {
	switch s {
	case StatusCompleted:
		return TxCompleted
	case StatusFailed:
		return TxFailed
	case StatusRejected:
		return TxRejected
	case StatusCancelled:
		return TxCancelled
	default:
		return TxPending
	}
}

// Transaction is an append-only user-visible ledger line.
type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Type             TransactionType   `json:"type"`
	Amount           int64             `json:"amount"`
	FeeAmount        int64             `json:"fee_amount"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	Gateway          *GatewayKind      `json:"gateway,omitempty"`
	PaymentRequestID *uuid.UUID        `json:"payment_request_id,omitempty"`
	PurchaseID       *uuid.UUID        `json:"purchase_id,omitempty"`
	WithdrawalID     *uuid.UUID        `json:"withdrawal_id,omitempty"`
	Description      string            `json:"description"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TransactionFilter narrows report listings. Zero values mean "any".
type TransactionFilter struct {
	UserID  *uuid.UUID
	Type    TransactionType
	Status  TransactionStatus
	Gateway GatewayKind
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
