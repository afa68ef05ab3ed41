package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/ledger"
)

// WalletService exposes wallet reads.
type WalletService struct {
	db       DB
	ledger   *ledger.Engine
	currency string
}

// NewWalletService creates a WalletService.
func NewWalletService(db DB, engine *ledger.Engine, currency string) *WalletService {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &WalletService{db: db, ledger: engine, currency: currency}
}

// Balances returns the user's CASH and CREDIT balances, creating empty
// wallets on first access.
func (s *WalletService) Balances(ctx context.Context, userID uuid.UUID) (*domain.Balances, error) {
	if err := s.ledger.EnsureWallets(ctx, s.db, userID, s.currency); err != nil {
		return nil, domain.ErrInternal("ensure wallets", err)
	}
	b, err := s.ledger.Balances(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("load balances", err)
	}
	return b, nil
}

// Reconcile replays the user's wallet history against stored balances.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) ([]domain.ReconcileReport, error) {
	reports, err := s.ledger.Reconcile(ctx, s.db, userID)
	if err != nil {
		return nil, asAppError(err, "reconcile wallets")
	}
	return reports, nil
}
