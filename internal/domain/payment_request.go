package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestType is the kind of money movement a PaymentRequest tracks.
type RequestType string

const (
	RequestDeposit      RequestType = "DEPOSIT"
	RequestWithdrawal   RequestType = "WITHDRAWAL"
	RequestSubscription RequestType = "SUBSCRIPTION"
	RequestTicket       RequestType = "TICKET"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestDeposit, RequestWithdrawal, RequestSubscription, RequestTicket:
		return true
	}
	return false
}

// RequestStatus is the PaymentRequest lifecycle state.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusApproved   RequestStatus = "APPROVED"
	StatusProcessing RequestStatus = "PROCESSING"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusRejected   RequestStatus = "REJECTED"
	StatusCancelled  RequestStatus = "CANCELLED"
	StatusFailed     RequestStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// withdrawalTransitions is the full approval path. Every other request type
// settles straight from PENDING.
var withdrawalTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusProcessing, StatusRejected, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

var directTransitions = map[RequestStatus][]RequestStatus{
	StatusPending: {StatusCompleted, StatusRejected, StatusCancelled, StatusFailed},
}

// CanTransition reports whether a request of type t may move from one status to another.
func CanTransition(t RequestType, from, to RequestStatus) bool {
	table := directTransitions
	if t == RequestWithdrawal {
		table = withdrawalTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentRequest tracks one user-initiated money movement end to end.
type PaymentRequest struct {
	ID                    uuid.UUID     `json:"id"`
	UserID                uuid.UUID     `json:"user_id"`
	Type                  RequestType   `json:"type"`
	Gateway               *GatewayKind  `json:"gateway,omitempty"`
	Amount                int64         `json:"amount"`
	Currency              string        `json:"currency"`
	FeeAmount             int64         `json:"fee_amount"`
	NetAmount             int64         `json:"net_amount"`
	Status                RequestStatus `json:"status"`
	RequiresAdminApproval bool          `json:"requires_admin_approval"`
	WalletType            WalletType    `json:"wallet_type"`
	PaymentID             *uuid.UUID    `json:"payment_id,omitempty"`
	WithdrawalID          *uuid.UUID    `json:"withdrawal_id,omitempty"`
	PurchaseID            *uuid.UUID    `json:"purchase_id,omitempty"`
	PaymentMethodID       *uuid.UUID    `json:"payment_method_id,omitempty"`
	ProviderOrderID       *string       `json:"provider_order_id,omitempty"`
	ProviderPaymentID     *string       `json:"provider_payment_id,omitempty"`
	CheckoutURL           *string       `json:"checkout_url,omitempty"`
	RetryOf               *uuid.UUID    `json:"retry_of,omitempty"`
	AdminID               *uuid.UUID    `json:"admin_id,omitempty"`
	AdminNotes            *string       `json:"admin_notes,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
}

// GatewayName returns the gateway or "" for wallet-only purchases.
func (r *PaymentRequest) GatewayName() GatewayKind {
	if r.Gateway == nil {
		return ""
	}
	return *r.Gateway
}

// PaymentRequestEvent is one row of the status audit trail.
type PaymentRequestEvent struct {
	ID         uuid.UUID     `json:"id"`
	RequestID  uuid.UUID     `json:"payment_request_id"`
	FromStatus RequestStatus `json:"from_status"`
	ToStatus   RequestStatus `json:"to_status"`
	ActorID    *uuid.UUID    `json:"actor_id,omitempty"`
	Notes      *string       `json:"notes,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RequestFilter narrows payment request listings.
type RequestFilter struct {
	Type   RequestType
	Status RequestStatus
	Limit  int
	Offset int
}
