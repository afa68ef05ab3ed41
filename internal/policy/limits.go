package policy

import (
	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
)

// LimitKind selects which pair of caps applies.
type LimitKind string

const (
	LimitDeposit    LimitKind = "deposit"
	LimitWithdrawal LimitKind = "withdrawal"
)

// DefaultTransactionLimits returns the caps written for a user with no
// limits row yet (£1k single, £2k daily, both directions).
func DefaultTransactionLimits(userID uuid.UUID) domain.TransactionLimits {
	return domain.TransactionLimits{
		UserID:               userID,
		MaxSingleDeposit:     100_000, // £1,000
		MaxSingleWithdrawal:  100_000, // £1,000
		DailyDepositLimit:    200_000, // £2,000
		DailyWithdrawalLimit: 200_000, // £2,000
	}
}

// LimitEvaluation holds the result of a transaction limits check.
type LimitEvaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	RequestedAmt  int64  `json:"requested_amount,omitempty"`
}

// EvaluateTransactionLimits checks amount against the single and daily caps
// for kind. usedToday is the running total for the current day. Zero caps
// are unlimited.
func EvaluateTransactionLimits(limits domain.TransactionLimits, kind LimitKind, amount, usedToday int64) LimitEvaluation {
	single, daily := limits.MaxSingleDeposit, limits.DailyDepositLimit
	if kind == LimitWithdrawal {
		single, daily = limits.MaxSingleWithdrawal, limits.DailyWithdrawalLimit
	}

	if single > 0 && amount > single {
		return LimitEvaluation{
			Allowed:       false,
			BreachedLimit: "single_" + string(kind),
			LimitValue:    single,
			RequestedAmt:  amount,
		}
	}

	if daily > 0 && usedToday+amount > daily {
		return LimitEvaluation{
			Allowed:       false,
			BreachedLimit: "daily_" + string(kind),
			LimitValue:    daily,
			RequestedAmt:  usedToday + amount,
		}
	}

	return LimitEvaluation{Allowed: true}
}

// Err converts a failed evaluation into a LIMIT_EXCEEDED error.
func (e LimitEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	return domain.ErrLimitExceeded(e.BreachedLimit + " limit of " + domain.FormatMinor(e.LimitValue) +
		" exceeded (requested " + domain.FormatMinor(e.RequestedAmt) + ")")
}
