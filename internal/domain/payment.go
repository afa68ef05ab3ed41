package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks the provider-facing side of a request, including
// refund sub-states a PaymentRequest does not model.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentCancelled         PaymentStatus = "CANCELLED"
	PaymentRejected          PaymentStatus = "REJECTED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// PaymentStatusFor maps a request status onto the mirrored payment status.
func PaymentStatusFor(s RequestStatus) PaymentStatus {
	switch s {
	case StatusCompleted:
		return PaymentCompleted
	case StatusProcessing:
		return PaymentProcessing
	case StatusFailed:
		return PaymentFailed
	case StatusCancelled:
		return PaymentCancelled
	case StatusRejected:
		return PaymentRejected
	default:
		return PaymentPending
	}
}

// Payment mirrors a PaymentRequest for the gateway. One per request.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	RequestID        uuid.UUID       `json:"payment_request_id"`
	Type             RequestType     `json:"type"`
	Amount           int64           `json:"amount"`
	RefundedAmount   int64           `json:"refunded_amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	Gateway          *GatewayKind    `json:"gateway,omitempty"`
	GatewayReference *string         `json:"gateway_reference,omitempty"`
	Metadata         json.RawMessage `json:"metadata"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Refundable returns the amount still available to refund.
func (p *Payment) Refundable() int64 { return p.Amount - p.RefundedAmount }

// PaymentMethod is a saved instrument on a gateway.
type PaymentMethod struct {
	ID                 uuid.UUID   `json:"id"`
	UserID             uuid.UUID   `json:"user_id"`
	Gateway            GatewayKind `json:"gateway"`
	Kind               string      `json:"kind"`
	ProviderRef        string      `json:"provider_ref"`
	ProviderCustomerID *string     `json:"provider_customer_id,omitempty"`
	Last4              *string     `json:"last4,omitempty"`
	IsDefault          bool        `json:"is_default"`
	CreatedAt          time.Time   `json:"created_at"`
}

// User is the slice of the identity record the payment core reads.
type User struct {
	ID                     uuid.UUID  `json:"id"`
	Email                  string     `json:"email"`
	Country                string     `json:"country"`
	DefaultPaymentMethodID *uuid.UUID `json:"default_payment_method_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// AdminUser is an operator allowed into the admin realm.
type AdminUser struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
}
