package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

const paymentRequestColumns = `id, user_id, type, gateway, amount, currency, fee_amount, net_amount,
	status, requires_admin_approval, wallet_type, payment_id, withdrawal_id, purchase_id,
	payment_method_id, provider_order_id, provider_payment_id, checkout_url, retry_of,
	admin_id, admin_notes, created_at, updated_at, completed_at`

type paymentRequestRepo struct{}

// NewPaymentRequestRepository returns a pgx-backed PaymentRequestRepository.
func NewPaymentRequestRepository() PaymentRequestRepository {
	return &paymentRequestRepo{}
}

func (r *paymentRequestRepo) Create(ctx context.Context, db DBTX, p *domain.PaymentRequest) error {
	err := db.QueryRow(ctx, `
		INSERT INTO payment_requests (id, user_id, type, gateway, amount, currency, fee_amount, net_amount,
			status, requires_admin_approval, wallet_type, payment_id, withdrawal_id, purchase_id,
			payment_method_id, provider_order_id, provider_payment_id, checkout_url, retry_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, string(p.Type), p.Gateway,
		infra.MinorToNumeric(p.Amount), p.Currency,
		infra.MinorToNumeric(p.FeeAmount), infra.MinorToNumeric(p.NetAmount),
		string(p.Status), p.RequiresAdminApproval, string(p.WalletType),
		p.PaymentID, p.WithdrawalID, p.PurchaseID, p.PaymentMethodID,
		p.ProviderOrderID, p.ProviderPaymentID, p.CheckoutURL, p.RetryOf,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

func (r *paymentRequestRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentRequest, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id)
	return findPaymentRequest(row)
}

func (r *paymentRequestRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id)
	return findPaymentRequest(row)
}

func (r *paymentRequestRepo) LockByProviderRef(ctx context.Context, tx pgx.Tx, gateway domain.GatewayKind, ref string) (*domain.PaymentRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentRequestColumns+`
		FROM payment_requests
		WHERE gateway = $1 AND (provider_order_id = $2 OR provider_payment_id = $2)
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, string(gateway), ref)
	return findPaymentRequest(row)
}

func (r *paymentRequestRepo) LockByWithdrawal(ctx context.Context, tx pgx.Tx, withdrawalID uuid.UUID) (*domain.PaymentRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentRequestColumns+`
		FROM payment_requests WHERE withdrawal_id = $1 FOR UPDATE`, withdrawalID)
	return findPaymentRequest(row)
}

func (r *paymentRequestRepo) UpdateStatus(ctx context.Context, db DBTX, p *domain.PaymentRequest) error {
	err := db.QueryRow(ctx, `
		UPDATE payment_requests SET
			status = $2,
			admin_id = COALESCE($3, admin_id),
			admin_notes = COALESCE($4, admin_notes),
			provider_payment_id = COALESCE($5, provider_payment_id),
			completed_at = CASE WHEN $2 = 'COMPLETED' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at, completed_at`,
		p.ID, string(p.Status), p.AdminID, p.AdminNotes, p.ProviderPaymentID,
	).Scan(&p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		return fmt.Errorf("update payment request status: %w", err)
	}
	return nil
}

func (r *paymentRequestRepo) SetProviderRefs(ctx context.Context, db DBTX, id uuid.UUID, orderID, paymentID, checkoutURL *string) error {
	_, err := db.Exec(ctx, `
		UPDATE payment_requests SET
			provider_order_id = COALESCE($2, provider_order_id),
			provider_payment_id = COALESCE($3, provider_payment_id),
			checkout_url = COALESCE($4, checkout_url),
			updated_at = now()
		WHERE id = $1`, id, orderID, paymentID, checkoutURL)
	if err != nil {
		return fmt.Errorf("set provider refs: %w", err)
	}
	return nil
}

func (r *paymentRequestRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, f domain.RequestFilter) ([]domain.PaymentRequest, error) {
	rows, err := db.Query(ctx, `SELECT `+paymentRequestColumns+`
		FROM payment_requests
		WHERE user_id = $1
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		userID, string(f.Type), string(f.Status), clampLimit(f.Limit), max(f.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query payment requests: %w", err)
	}
	return collect(rows, "payment request", scanPaymentRequest)
}

func (r *paymentRequestRepo) ListStale(ctx context.Context, db DBTX, reqType domain.RequestType, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `
		SELECT id FROM payment_requests
		WHERE type = $1 AND status = 'PENDING' AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, string(reqType), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale payment requests: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *paymentRequestRepo) InsertEvent(ctx context.Context, db DBTX, ev *domain.PaymentRequestEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO payment_request_events (id, payment_request_id, from_status, to_status, actor_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RequestID, string(ev.FromStatus), string(ev.ToStatus), ev.ActorID, ev.Notes)
	if err != nil {
		return fmt.Errorf("insert payment request event: %w", err)
	}
	return nil
}

func findPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	p, err := scanPaymentRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment request: %w", err)
	}
	return p, nil
}

func scanPaymentRequest(s scanner) (*domain.PaymentRequest, error) {
	var p domain.PaymentRequest
	var m money
	err := s.Scan(
		&p.ID, &p.UserID, &p.Type, &p.Gateway,
		m.into(&p.Amount), &p.Currency, m.into(&p.FeeAmount), m.into(&p.NetAmount),
		&p.Status, &p.RequiresAdminApproval, &p.WalletType,
		&p.PaymentID, &p.WithdrawalID, &p.PurchaseID, &p.PaymentMethodID,
		&p.ProviderOrderID, &p.ProviderPaymentID, &p.CheckoutURL, &p.RetryOf,
		&p.AdminID, &p.AdminNotes, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert payment request amounts: %w", err)
	}
	return &p, nil
}
