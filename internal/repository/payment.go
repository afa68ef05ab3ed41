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

const paymentColumns = `id, user_id, payment_request_id, type, amount, refunded_amount, currency,
	status, gateway, gateway_reference, metadata, created_at, updated_at`

type paymentRepo struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) Create(ctx context.Context, db DBTX, p *domain.Payment) error {
	meta := p.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	err := db.QueryRow(ctx, `
		INSERT INTO payments (id, user_id, payment_request_id, type, amount, currency,
			status, gateway, gateway_reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.RequestID, string(p.Type),
		infra.MinorToNumeric(p.Amount), p.Currency, string(p.Status),
		p.Gateway, p.GatewayReference, meta,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByRequestID(ctx context.Context, db DBTX, requestID uuid.UUID) (*domain.Payment, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_request_id = $1`, requestID)
	return findPayment(row)
}

func (r *paymentRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
	return findPayment(row)
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayRef *string) error {
	_, err := db.Exec(ctx, `
		UPDATE payments SET status = $2, gateway_reference = COALESCE($3, gateway_reference), updated_at = now()
		WHERE id = $1`, id, string(status), gatewayRef)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *paymentRepo) AddRefunded(ctx context.Context, db DBTX, id uuid.UUID, amount int64, status domain.PaymentStatus) error {
	tag, err := db.Exec(ctx, `
		UPDATE payments SET refunded_amount = refunded_amount + $2, status = $3, updated_at = now()
		WHERE id = $1 AND refunded_amount + $2 <= amount`,
		id, infra.MinorToNumeric(amount), string(status))
	if err != nil {
		return fmt.Errorf("add refunded amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund exceeds payment %s", id)
	}
	return nil
}

func findPayment(row pgx.Row) (*domain.Payment, error) {
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var m money
	err := s.Scan(
		&p.ID, &p.UserID, &p.RequestID, &p.Type,
		m.into(&p.Amount), m.into(&p.RefundedAmount), &p.Currency,
		&p.Status, &p.Gateway, &p.GatewayReference, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert payment amounts: %w", err)
	}
	return &p, nil
}
