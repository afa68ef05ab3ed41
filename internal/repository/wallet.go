package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

const walletColumns = `id, user_id, type, balance, currency, created_at, updated_at`

const walletEntryColumns = `id, wallet_id, user_id, wallet_type, type, amount, balance_after,
	reference, description, created_at`

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

func (r *walletRepo) Ensure(ctx context.Context, db DBTX, userID uuid.UUID, currency string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallets (user_id, type, currency)
		VALUES ($1, 'CASH', $2), ($1, 'CREDIT', $2)
		ON CONFLICT (user_id, type) DO NOTHING`, userID, currency)
	if err != nil {
		return fmt.Errorf("ensure wallets: %w", err)
	}
	return nil
}

func (r *walletRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType domain.WalletType) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+`
		FROM wallets WHERE user_id = $1 AND type = $2 FOR UPDATE`, userID, string(walletType))
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

func (r *walletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+walletColumns, walletID, infra.MinorToNumeric(delta))
	w, err := scanWallet(row)
	if err != nil {
		return nil, fmt.Errorf("update wallet balance: %w", err)
	}
	return w, nil
}

func (r *walletRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Wallet, error) {
	rows, err := db.Query(ctx, `SELECT `+walletColumns+`
		FROM wallets WHERE user_id = $1 ORDER BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	return collect(rows, "wallet", scanWallet)
}

func (r *walletRepo) InsertEntry(ctx context.Context, db DBTX, e *domain.WalletEntry) error {
	err := db.QueryRow(ctx, `
		INSERT INTO wallet_transactions
		  (id, wallet_id, user_id, wallet_type, type, amount, balance_after, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		e.ID, e.WalletID, e.UserID, string(e.WalletType), string(e.Type),
		infra.MinorToNumeric(e.Amount), infra.MinorToNumeric(e.BalanceAfter),
		e.Reference, e.Description,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

func (r *walletRepo) ListEntries(ctx context.Context, db DBTX, walletID uuid.UUID) ([]domain.WalletEntry, error) {
	rows, err := db.Query(ctx, `SELECT `+walletEntryColumns+`
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query wallet entries: %w", err)
	}
	return collect(rows, "wallet entry", scanWalletEntry)
}

func (r *walletRepo) ListEntriesByReference(ctx context.Context, db DBTX, reference string) ([]domain.WalletEntry, error) {
	rows, err := db.Query(ctx, `SELECT `+walletEntryColumns+`
		FROM wallet_transactions WHERE reference = $1 ORDER BY created_at, id`, reference)
	if err != nil {
		return nil, fmt.Errorf("query wallet entries by reference: %w", err)
	}
	return collect(rows, "wallet entry", scanWalletEntry)
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var w domain.Wallet
	var m money
	if err := s.Scan(&w.ID, &w.UserID, &w.Type, m.into(&w.Balance), &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert wallet balance: %w", err)
	}
	return &w, nil
}

func scanWalletEntry(s scanner) (*domain.WalletEntry, error) {
	var e domain.WalletEntry
	var m money
	err := s.Scan(&e.ID, &e.WalletID, &e.UserID, &e.WalletType, &e.Type,
		m.into(&e.Amount), m.into(&e.BalanceAfter), &e.Reference, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert wallet entry amounts: %w", err)
	}
	return &e, nil
}
