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

const transactionColumns = `id, user_id, type, amount, fee_amount, currency, status, gateway,
	payment_request_id, purchase_id, withdrawal_id, description, created_at, updated_at`

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) Create(ctx context.Context, db DBTX, t *domain.Transaction) error {
	err := db.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, fee_amount, currency, status, gateway,
			payment_request_id, purchase_id, withdrawal_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		t.ID, t.UserID, string(t.Type),
		infra.MinorToNumeric(t.Amount), infra.MinorToNumeric(t.FeeAmount),
		t.Currency, string(t.Status), t.Gateway,
		t.PaymentRequestID, t.PurchaseID, t.WithdrawalID, t.Description,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return findTransaction(row)
}

func (r *transactionRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return findTransaction(row)
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.TransactionStatus) error {
	_, err := db.Exec(ctx, `UPDATE transactions SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

func (r *transactionRepo) UpdateStatusByRequest(ctx context.Context, db DBTX, requestID uuid.UUID, status domain.TransactionStatus) error {
	_, err := db.Exec(ctx, `
		UPDATE transactions SET status = $2, updated_at = now()
		WHERE payment_request_id = $1 AND status = 'pending'`, requestID, string(status))
	if err != nil {
		return fmt.Errorf("update transaction status by request: %w", err)
	}
	return nil
}

func (r *transactionRepo) List(ctx context.Context, db DBTX, f domain.TransactionFilter) ([]domain.Transaction, error) {
	rows, err := db.Query(ctx, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR gateway = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		  AND ($6::timestamptz IS NULL OR created_at < $6)
		ORDER BY created_at DESC
		LIMIT $7 OFFSET $8`,
		f.UserID, string(f.Type), string(f.Status), string(f.Gateway), f.From, f.To,
		clampLimit(f.Limit), max(f.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return collect(rows, "transaction", scanTransaction)
}

func findTransaction(row pgx.Row) (*domain.Transaction, error) {
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var m money
	err := s.Scan(
		&t.ID, &t.UserID, &t.Type, m.into(&t.Amount), m.into(&t.FeeAmount),
		&t.Currency, &t.Status, &t.Gateway,
		&t.PaymentRequestID, &t.PurchaseID, &t.WithdrawalID, &t.Description,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert transaction amounts: %w", err)
	}
	return &t, nil
}
