package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

type refundRepo struct{}

// NewRefundRepository returns a pgx-backed RefundRepository.
func NewRefundRepository() RefundRepository {
	return &refundRepo{}
}

func (r *refundRepo) Create(ctx context.Context, db DBTX, f *domain.Refund) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := db.QueryRow(ctx, `
		INSERT INTO refunds (id, transaction_id, payment_id, user_id, admin_id, amount, currency,
			reason, gateway, gateway_refund_id, partial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		f.ID, f.TransactionID, f.PaymentID, f.UserID, f.AdminID,
		infra.MinorToNumeric(f.Amount), f.Currency, f.Reason,
		string(f.Gateway), f.GatewayRefundID, f.Partial,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

func (r *refundRepo) ListByTransaction(ctx context.Context, db DBTX, transactionID uuid.UUID) ([]domain.Refund, error) {
	rows, err := db.Query(ctx, `
		SELECT id, transaction_id, payment_id, user_id, admin_id, amount, currency,
		       reason, gateway, gateway_refund_id, partial, created_at
		FROM refunds WHERE transaction_id = $1
		ORDER BY created_at`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	return collect(rows, "refund", func(s scanner) (*domain.Refund, error) {
		var f domain.Refund
		var m money
		err := s.Scan(&f.ID, &f.TransactionID, &f.PaymentID, &f.UserID, &f.AdminID,
			m.into(&f.Amount), &f.Currency, &f.Reason, &f.Gateway, &f.GatewayRefundID,
			&f.Partial, &f.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := m.apply(); err != nil {
			return nil, err
		}
		return &f, nil
	})
}
