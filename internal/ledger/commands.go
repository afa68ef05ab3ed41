package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
)

// Credit adds funds to the given wallet.
func (e *Engine) Credit(ctx context.Context, tx pgx.Tx, p domain.LedgerParams) (*domain.WalletEntry, error) {
	return e.single(ctx, tx, "credit", domain.EntryCredit, p)
}

// Debit removes funds from the given wallet, failing with
// INSUFFICIENT_BALANCE when the balance is below the amount.
func (e *Engine) Debit(ctx context.Context, tx pgx.Tx, p domain.LedgerParams) (*domain.WalletEntry, error) {
	return e.single(ctx, tx, "debit", domain.EntryDebit, p)
}

// Hold reserves CASH for a pending withdrawal. The balance drops by the
// amount; an over-hold fails and nothing is written.
func (e *Engine) Hold(ctx context.Context, tx pgx.Tx, p domain.LedgerParams) (*domain.WalletEntry, error) {
	p.WalletType = domain.WalletCash
	return e.single(ctx, tx, "hold", domain.EntryHold, p)
}

// ReleaseHold returns previously held CASH, e.g. on rejection or cancellation.
func (e *Engine) ReleaseHold(ctx context.Context, tx pgx.Tx, p domain.LedgerParams) (*domain.WalletEntry, error) {
	p.WalletType = domain.WalletCash
	return e.single(ctx, tx, "release hold", domain.EntryReleaseHold, p)
}

// SettleHold converts a hold into a spend once a payout completes: a
// RELEASE_HOLD line followed by a DEBIT line of the same amount. The CASH
// balance is unchanged overall.
func (e *Engine) SettleHold(ctx context.Context, tx pgx.Tx, p domain.LedgerParams) ([]domain.WalletEntry, error) {
	if err := domain.ValidatePositiveAmount(p.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	w, err := e.LockWallet(ctx, tx, p.UserID, domain.WalletCash)
	if err != nil {
		return nil, fmt.Errorf("settle hold: %w", err)
	}

	release, err := e.postEntry(ctx, tx, w, domain.EntryReleaseHold, p.Amount, p.Reference, p.Description)
	if err != nil {
		return nil, fmt.Errorf("settle hold release: %w", err)
	}
	debit, err := e.postEntry(ctx, tx, w, domain.EntryDebit, p.Amount, p.Reference, p.Description)
	if err != nil {
		return nil, fmt.Errorf("settle hold debit: %w", err)
	}
	return []domain.WalletEntry{*release, *debit}, nil
}

func (e *Engine) single(ctx context.Context, tx pgx.Tx, op string, entryType domain.WalletEntryType, p domain.LedgerParams) (*domain.WalletEntry, error) {
	if err := domain.ValidatePositiveAmount(p.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if p.WalletType == "" {
		p.WalletType = domain.WalletCash
	}
	if !p.WalletType.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid wallet type %q", p.WalletType))
	}

	w, err := e.LockWallet(ctx, tx, p.UserID, p.WalletType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if entryType.Sign() < 0 && w.Balance < p.Amount {
		e.logger.WarnContext(ctx, "ledger: insufficient balance",
			"op", op, "user_id", p.UserID, "wallet", p.WalletType,
			"balance", w.Balance, "amount", p.Amount, "reference", p.Reference)
		return nil, domain.ErrInsufficientBalance()
	}

	entry, err := e.postEntry(ctx, tx, w, entryType, p.Amount, p.Reference, p.Description)
	if err != nil {
		return nil, fmt.Errorf("%s post: %w", op, err)
	}
	return entry, nil
}
