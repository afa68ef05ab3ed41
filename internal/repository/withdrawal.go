package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

const withdrawalColumns = `id, user_id, amount, currency, gateway, payment_method_id, destination,
	status, gateway_reference, admin_id, admin_notes, created_at, updated_at`

type withdrawalRepo struct{}

// NewWithdrawalRepository returns a pgx-backed WithdrawalRepository.
func NewWithdrawalRepository() WithdrawalRepository {
	return &withdrawalRepo{}
}

func (r *withdrawalRepo) Create(ctx context.Context, db DBTX, w *domain.Withdrawal) error {
	dest, err := json.Marshal(w.Destination)
	if err != nil {
		return fmt.Errorf("marshal payout destination: %w", err)
	}
	err = db.QueryRow(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, currency, gateway, payment_method_id, destination, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		w.ID, w.UserID, infra.MinorToNumeric(w.Amount), w.Currency, string(w.Gateway),
		w.PaymentMethodID, dest, string(w.Status),
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (r *withdrawalRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var m money
	var dest []byte
	err := db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id).Scan(
		&w.ID, &w.UserID, m.into(&w.Amount), &w.Currency, &w.Gateway, &w.PaymentMethodID, &dest,
		&w.Status, &w.GatewayReference, &w.AdminID, &w.AdminNotes, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert withdrawal amount: %w", err)
	}
	if err := json.Unmarshal(dest, &w.Destination); err != nil {
		return nil, fmt.Errorf("decode payout destination: %w", err)
	}
	return &w, nil
}

func (r *withdrawalRepo) UpdateStatus(ctx context.Context, db DBTX, w *domain.Withdrawal) error {
	err := db.QueryRow(ctx, `
		UPDATE withdrawals SET
			status = $2,
			gateway_reference = COALESCE($3, gateway_reference),
			admin_id = COALESCE($4, admin_id),
			admin_notes = COALESCE($5, admin_notes),
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		w.ID, string(w.Status), w.GatewayReference, w.AdminID, w.AdminNotes,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}
	return nil
}
