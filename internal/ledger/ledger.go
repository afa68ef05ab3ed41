package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/repository"
)

// Engine owns every write to wallets and wallet_transactions.
//
// All mutations share one primitive, postEntry, which runs inside the
// caller's transaction:
//  1. apply the signed delta with server-side arithmetic
//  2. insert the wallet_transactions line with the post-update balance
//  3. insert the outbox event
//
// The wallet row must already be locked by the caller (LockWallet).
type Engine struct {
	wallets repository.WalletRepository
	outbox  repository.OutboxRepository
	logger  *slog.Logger
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(wallets repository.WalletRepository, outbox repository.OutboxRepository, logger *slog.Logger) *Engine {
	return &Engine{wallets: wallets, outbox: outbox, logger: logger}
}

// EnsureWallets creates the user's CASH and CREDIT wallets if they are missing.
func (e *Engine) EnsureWallets(ctx context.Context, db repository.DBTX, userID uuid.UUID, currency string) error {
	if err := e.wallets.Ensure(ctx, db, userID, currency); err != nil {
		return fmt.Errorf("ensure wallets: %w", err)
	}
	return nil
}

// LockWallet acquires a row-level lock and returns the wallet.
// Must be called within a transaction.
func (e *Engine) LockWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType domain.WalletType) (*domain.Wallet, error) {
	w, err := e.wallets.LockForUpdate(ctx, tx, userID, walletType)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", fmt.Sprintf("%s/%s", userID, walletType))
	}
	return w, nil
}

// Balances returns both wallet balances without locking.
func (e *Engine) Balances(ctx context.Context, db repository.DBTX, userID uuid.UUID) (*domain.Balances, error) {
	ws, err := e.wallets.ListByUser(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	b := &domain.Balances{}
	for _, w := range ws {
		switch w.Type {
		case domain.WalletCash:
			b.Cash = w.Balance
		case domain.WalletCredit:
			b.Credit = w.Balance
		}
		if b.Currency == "" {
			b.Currency = w.Currency
		}
	}
	return b, nil
}

// postEntry applies one signed line to an already-locked wallet. The caller
// has validated the amount and, for negative lines, the available balance.
func (e *Engine) postEntry(ctx context.Context, tx pgx.Tx, w *domain.Wallet, entryType domain.WalletEntryType, amount int64, reference, description string) (*domain.WalletEntry, error) {
	updated, err := e.wallets.UpdateBalance(ctx, tx, w.ID, entryType.Sign()*amount)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	// Checked again after the update; the wallets CHECK constraint is the last line.
	if updated.Balance < 0 {
		return nil, domain.ErrInsufficientBalance()
	}

	entry := &domain.WalletEntry{
		ID:           uuid.New(),
		WalletID:     w.ID,
		UserID:       w.UserID,
		WalletType:   w.Type,
		Type:         entryType,
		Amount:       amount,
		BalanceAfter: updated.Balance,
		Reference:    reference,
		Description:  description,
	}
	if err := e.wallets.InsertEntry(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert wallet entry: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewWalletEntryEvent(entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	*w = *updated
	metrics.GetOrCreateCounter(`ledger_entries_total{type="` + string(entryType) + `",wallet="` + string(w.Type) + `"}`).Inc()
	return entry, nil
}
