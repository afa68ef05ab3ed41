package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseKind separates ticket buys from subscription charges.
type PurchaseKind string

const (
	PurchaseTicket       PurchaseKind = "TICKET"
	PurchaseSubscription PurchaseKind = "SUBSCRIPTION"
)

// PurchaseStatus is the settlement state of a Purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseFailed    PurchaseStatus = "FAILED"
	PurchaseRefunded  PurchaseStatus = "REFUNDED"
)

// Purchase records how a buy was funded across CREDIT, CASH and a gateway.
type Purchase struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	Kind               PurchaseKind   `json:"kind"`
	CompetitionID      *uuid.UUID     `json:"competition_id,omitempty"`
	SubscriptionPlanID *uuid.UUID     `json:"subscription_plan_id,omitempty"`
	Quantity           int            `json:"quantity"`
	UnitPrice          int64          `json:"unit_price"`
	TotalAmount        int64          `json:"total_amount"`
	CreditUsed         int64          `json:"credit_used"`
	CashUsed           int64          `json:"cash_used"`
	ExternalAmount     int64          `json:"external_amount"`
	Currency           string         `json:"currency"`
	Gateway            *GatewayKind   `json:"gateway,omitempty"`
	PaymentMethodID    *uuid.UUID     `json:"payment_method_id,omitempty"`
	PaymentRequestID   *uuid.UUID     `json:"payment_request_id,omitempty"`
	GatewayReference   *string        `json:"gateway_reference,omitempty"`
	Status             PurchaseStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// WalletUsed is the part of the total settled from internal balances.
func (p *Purchase) WalletUsed() int64 { return p.CreditUsed + p.CashUsed }

// Competition is the slice of a raffle the payment core needs for issuance.
type Competition struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	TicketPrice int64     `json:"ticket_price"`
	Currency    string    `json:"currency"`
	MaxTickets  int       `json:"max_tickets"`
	SoldTickets int       `json:"sold_tickets"`
	Status      string    `json:"status"`
}

// Remaining is the number of tickets still for sale.
func (c *Competition) Remaining() int {
	if c.SoldTickets >= c.MaxTickets {
		return 0
	}
	return c.MaxTickets - c.SoldTickets
}

// CompetitionActive is the only status that accepts purchases.
const CompetitionActive = "ACTIVE"

// Ticket is one issued entry. CompetitionID is nil for universal tickets.
type Ticket struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	CompetitionID *uuid.UUID `json:"competition_id,omitempty"`
	PurchaseID    uuid.UUID  `json:"purchase_id"`
	TicketNumber  int        `json:"ticket_number"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SubscriptionPlan is a recurring membership sold through the same funding path.
type SubscriptionPlan struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	Currency     string    `json:"currency"`
	IntervalDays int       `json:"interval_days"`
	Active       bool      `json:"active"`
}

// UserSubscription is a user's paid membership period.
type UserSubscription struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	PlanID      uuid.UUID `json:"plan_id"`
	PurchaseID  uuid.UUID `json:"purchase_id"`
	Status      string    `json:"status"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
}

// PurchaseResult is returned to the caller after a successful settlement.
type PurchaseResult struct {
	Purchase     *Purchase         `json:"purchase"`
	Tickets      []Ticket          `json:"tickets,omitempty"`
	Subscription *UserSubscription `json:"subscription,omitempty"`
}
