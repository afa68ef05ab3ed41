package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
)

// PlanFunding splits total across CREDIT, then CASH, then an external
// gateway charge. With useWallet false the whole total is external.
func PlanFunding(total, credit, cash int64, useWallet bool) domain.FundingPlan {
	if total <= 0 {
		return domain.FundingPlan{}
	}
	if !useWallet {
		return domain.FundingPlan{External: total}
	}
	var plan domain.FundingPlan
	remaining := total
	plan.Credit = minPositive(credit, remaining)
	remaining -= plan.Credit
	plan.Cash = minPositive(cash, remaining)
	remaining -= plan.Cash
	plan.External = remaining
	return plan
}

func minPositive(have, want int64) int64 {
	if have <= 0 {
		return 0
	}
	if have < want {
		return have
	}
	return want
}

// Consumption is the result of ConsumeForPurchase.
type Consumption struct {
	Plan    domain.FundingPlan
	Entries []domain.WalletEntry
}

// ConsumeForPurchase locks CREDIT then CASH, plans the split and debits the
// wallet portions. The external remainder is left for the caller to charge;
// if that charge fails the caller rolls the transaction back.
func (e *Engine) ConsumeForPurchase(ctx context.Context, tx pgx.Tx, userID uuid.UUID, total int64, useWallet bool, reference, description string) (*Consumption, error) {
	if err := domain.ValidatePositiveAmount(total); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if !useWallet {
		return &Consumption{Plan: PlanFunding(total, 0, 0, false)}, nil
	}

	// Fixed lock order across every caller: CREDIT, then CASH.
	credit, err := e.LockWallet(ctx, tx, userID, domain.WalletCredit)
	if err != nil {
		return nil, fmt.Errorf("consume for purchase: %w", err)
	}
	cash, err := e.LockWallet(ctx, tx, userID, domain.WalletCash)
	if err != nil {
		return nil, fmt.Errorf("consume for purchase: %w", err)
	}

	out := &Consumption{Plan: PlanFunding(total, credit.Balance, cash.Balance, true)}

	if out.Plan.Credit > 0 {
		entry, err := e.postEntry(ctx, tx, credit, domain.EntryDebit, out.Plan.Credit, reference, description)
		if err != nil {
			return nil, fmt.Errorf("consume credit: %w", err)
		}
		out.Entries = append(out.Entries, *entry)
	}
	if out.Plan.Cash > 0 {
		entry, err := e.postEntry(ctx, tx, cash, domain.EntryDebit, out.Plan.Cash, reference, description)
		if err != nil {
			return nil, fmt.Errorf("consume cash: %w", err)
		}
		out.Entries = append(out.Entries, *entry)
	}

	e.logger.DebugContext(ctx, "ledger: purchase funded",
		"user_id", userID, "total", total, "credit", out.Plan.Credit,
		"cash", out.Plan.Cash, "external", out.Plan.External, "reference", reference)
	return out, nil
}
