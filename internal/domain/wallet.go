package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WalletType is one of the two balances every user holds.
type WalletType string

const (
	WalletCash   WalletType = "CASH"
	WalletCredit WalletType = "CREDIT"
)

func (w WalletType) Valid() bool { return w == WalletCash || w == WalletCredit }

// ParseWalletType accepts "", "cash" or "credit"; empty defaults to CASH.
func ParseWalletType(s string) (WalletType, error) {
	switch WalletType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", WalletCash:
		return WalletCash, nil
	case WalletCredit:
		return WalletCredit, nil
	}
	return "", fmt.Errorf("invalid wallet type: %q", s)
}

// WalletEntryType is the kind of a wallet_transactions line.
type WalletEntryType string

const (
	EntryCredit      WalletEntryType = "CREDIT"
	EntryDebit       WalletEntryType = "DEBIT"
	EntryHold        WalletEntryType = "HOLD"
	EntryReleaseHold WalletEntryType = "RELEASE_HOLD"
)

// Sign is the direction the entry moves the wallet balance.
func (t WalletEntryType) Sign() int64 {
	switch t {
	case EntryCredit, EntryReleaseHold:
		return 1
	default:
		return -1
	}
}

// Wallet is one (user, type) balance row.
type Wallet struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      WalletType `json:"type"`
	Balance   int64      `json:"balance"`
	Currency  string     `json:"currency"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WalletEntry is an append-only wallet_transactions row.
type WalletEntry struct {
	ID           uuid.UUID       `json:"id"`
	WalletID     uuid.UUID       `json:"wallet_id"`
	UserID       uuid.UUID       `json:"user_id"`
	WalletType   WalletType      `json:"wallet_type"`
	Type         WalletEntryType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Reference    string          `json:"reference"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Balances is the pair of wallet balances for a user.
type Balances struct {
	Cash     int64  `json:"cash"`
	Credit   int64  `json:"credit"`
	Currency string `json:"currency"`
}

// Of returns the balance for the given wallet type.
func (b Balances) Of(w WalletType) int64 {
	if w == WalletCredit {
		return b.Credit
	}
	return b.Cash
}

// LedgerParams is the input to every single-wallet ledger operation.
type LedgerParams struct {
	UserID      uuid.UUID
	WalletType  WalletType
	Amount      int64
	Reference   string
	Description string
}

// FundingPlan is how a purchase total splits between wallets and a gateway.
type FundingPlan struct {
	Credit   int64 `json:"credit_used"`
	Cash     int64 `json:"cash_used"`
	External int64 `json:"external_amount"`
}

// WalletUsed is the internal portion of the plan.
func (p FundingPlan) WalletUsed() int64 { return p.Credit + p.Cash }

// ReconcileReport compares a wallet's stored balance with its entry history.
type ReconcileReport struct {
	UserID     uuid.UUID  `json:"user_id"`
	WalletType WalletType `json:"wallet_type"`
	Balance    int64      `json:"balance"`
	Credits    int64      `json:"credits"`
	Debits     int64      `json:"debits"`
	Holds      int64      `json:"holds"`
	Releases   int64      `json:"releases"`
	Expected   int64      `json:"expected"`
	Entries    int        `json:"entries"`
	Consistent bool       `json:"consistent"`
	Violations []string   `json:"violations,omitempty"`
}
