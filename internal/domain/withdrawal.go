package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayoutKind tags which variant of PayoutDestination is populated.
type PayoutKind string

const (
	PayoutBankAccount         PayoutKind = "bank_account"
	PayoutPayPalEmail         PayoutKind = "paypal_email"
	PayoutStripeAccount       PayoutKind = "stripe_account"
	PayoutRevolutCounterparty PayoutKind = "revolut_counterparty"
)

// BankAccount is a manual bank payout target.
type BankAccount struct {
	AccountHolder string `json:"account_holder"`
	IBAN          string `json:"iban,omitempty"`
	BIC           string `json:"bic,omitempty"`
	SortCode      string `json:"sort_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// RevolutCounterparty identifies a counterparty saved in Revolut Business.
type RevolutCounterparty struct {
	CounterpartyID string `json:"counterparty_id"`
	AccountID      string `json:"account_id,omitempty"`
}

// PayoutDestination is where withdrawn funds go. Exactly one variant is set,
// matching Kind.
type PayoutDestination struct {
	Kind            PayoutKind           `json:"kind"`
	Bank            *BankAccount         `json:"bank,omitempty"`
	PayPalEmail     string               `json:"paypal_email,omitempty"`
	StripeAccountID string               `json:"stripe_account_id,omitempty"`
	Revolut         *RevolutCounterparty `json:"revolut,omitempty"`
}

// Validate checks the tag agrees with the populated variant.
func (d PayoutDestination) Validate() error {
	set := 0
	if d.Bank != nil {
		set++
	}
	if d.PayPalEmail != "" {
		set++
	}
	if d.StripeAccountID != "" {
		set++
	}
	if d.Revolut != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("payout destination must set exactly one variant, got %d", set)
	}

	switch d.Kind {
	case PayoutBankAccount:
		if d.Bank == nil {
			return fmt.Errorf("bank_account destination missing bank details")
		}
		if strings.TrimSpace(d.Bank.AccountHolder) == "" {
			return fmt.Errorf("bank account holder is required")
		}
		if d.Bank.IBAN == "" && (d.Bank.SortCode == "" || d.Bank.AccountNumber == "") {
			return fmt.Errorf("bank account requires iban or sort code and account number")
		}
	case PayoutPayPalEmail:
		if err := ValidateEmail(d.PayPalEmail); err != nil {
			return fmt.Errorf("paypal destination: %w", err)
		}
	case PayoutStripeAccount:
		if !strings.HasPrefix(d.StripeAccountID, "acct_") {
			return fmt.Errorf("stripe destination must be a connected account id")
		}
	case PayoutRevolutCounterparty:
		if d.Revolut == nil || d.Revolut.CounterpartyID == "" {
			return fmt.Errorf("revolut destination missing counterparty id")
		}
	default:
		return fmt.Errorf("unknown payout destination kind: %q", d.Kind)
	}
	return nil
}

// SupportedBy reports whether the gateway can pay out to this destination.
func (d PayoutDestination) SupportedBy(g GatewayKind) bool {
	switch g {
	case GatewayStripe:
		return d.Kind == PayoutStripeAccount
	case GatewayPayPal:
		return d.Kind == PayoutPayPalEmail
	case GatewayRevolut:
		return d.Kind == PayoutRevolutCounterparty || d.Kind == PayoutBankAccount
	}
	return false
}

// Withdrawal is the payout record behind a WITHDRAWAL request.
type Withdrawal struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Gateway          GatewayKind       `json:"gateway"`
	PaymentMethodID  *uuid.UUID        `json:"payment_method_id,omitempty"`
	Destination      PayoutDestination `json:"destination"`
	Status           RequestStatus     `json:"status"`
	GatewayReference *string           `json:"gateway_reference,omitempty"`
	AdminID          *uuid.UUID        `json:"admin_id,omitempty"`
	AdminNotes       *string           `json:"admin_notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TransactionLimits is a user's configured deposit and withdrawal caps with
// the running daily usage. Zero caps mean unlimited.
type TransactionLimits struct {
	UserID               uuid.UUID `json:"user_id"`
	MaxSingleDeposit     int64     `json:"max_single_deposit"`
	MaxSingleWithdrawal  int64     `json:"max_single_withdrawal"`
	DailyDepositLimit    int64     `json:"daily_deposit_limit"`
	DailyWithdrawalLimit int64     `json:"daily_withdrawal_limit"`
	DailyDepositUsed     int64     `json:"daily_deposit_used"`
	DailyWithdrawalUsed  int64     `json:"daily_withdrawal_used"`
	UsageResetAt         time.Time `json:"usage_reset_at"`
}
