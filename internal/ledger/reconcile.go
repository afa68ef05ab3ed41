package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/repository"
)

// Reconcile replays each wallet's entry history and checks it against the
// stored balance:
//  1. balance = credits - debits - holds + releases
//  2. every balance_after snapshot matches the running total
//  3. the running total never goes negative
func (e *Engine) Reconcile(ctx context.Context, db repository.DBTX, userID uuid.UUID) ([]domain.ReconcileReport, error) {
	wallets, err := e.wallets.ListByUser(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	if len(wallets) == 0 {
		return nil, domain.ErrNotFound("wallets for user", userID.String())
	}

	reports := make([]domain.ReconcileReport, 0, len(wallets))
	for i := range wallets {
		entries, err := e.wallets.ListEntries(ctx, db, wallets[i].ID)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", wallets[i].Type, err)
		}
		r := ReplayEntries(&wallets[i], entries)
		if !r.Consistent {
			e.logger.ErrorContext(ctx, "ledger: reconcile mismatch",
				"user_id", userID, "wallet", r.WalletType,
				"balance", r.Balance, "expected", r.Expected, "violations", r.Violations)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// ReplayEntries computes the reconciliation report for one wallet from its
// ordered entry history.
func ReplayEntries(w *domain.Wallet, entries []domain.WalletEntry) domain.ReconcileReport {
	r := domain.ReconcileReport{
		UserID:     w.UserID,
		WalletType: w.Type,
		Balance:    w.Balance,
		Entries:    len(entries),
	}

	var running int64
	for _, en := range entries {
		switch en.Type {
		case domain.EntryCredit:
			r.Credits += en.Amount
		case domain.EntryDebit:
			r.Debits += en.Amount
		case domain.EntryHold:
			r.Holds += en.Amount
		case domain.EntryReleaseHold:
			r.Releases += en.Amount
		default:
			r.Violations = append(r.Violations, fmt.Sprintf("entry %s: unknown type %q", en.ID, en.Type))
			continue
		}
		running += en.Type.Sign() * en.Amount
		if running < 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("entry %s: running balance %d below zero", en.ID, running))
		}
		if en.BalanceAfter != running {
			r.Violations = append(r.Violations, fmt.Sprintf("entry %s: balance_after %d, replayed %d", en.ID, en.BalanceAfter, running))
		}
	}

	r.Expected = r.Credits - r.Debits - r.Holds + r.Releases
	if r.Expected != r.Balance {
		r.Violations = append(r.Violations, fmt.Sprintf("stored balance %d, history gives %d", r.Balance, r.Expected))
	}
	if r.Balance < 0 {
		r.Violations = append(r.Violations, fmt.Sprintf("stored balance %d below zero", r.Balance))
	}
	r.Consistent = len(r.Violations) == 0
	return r
}
