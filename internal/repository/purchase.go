package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

const purchaseColumns = `id, user_id, kind, competition_id, subscription_plan_id, quantity,
	unit_price, total_amount, credit_used, cash_used, external_amount, currency, gateway,
	payment_method_id, payment_request_id, gateway_reference, status, created_at, updated_at`

type purchaseRepo struct{}

// NewPurchaseRepository returns a pgx-backed PurchaseRepository.
func NewPurchaseRepository() PurchaseRepository {
	return &purchaseRepo{}
}

func (r *purchaseRepo) Create(ctx context.Context, db DBTX, p *domain.Purchase) error {
	err := db.QueryRow(ctx, `
		INSERT INTO purchases (id, user_id, kind, competition_id, subscription_plan_id, quantity,
			unit_price, total_amount, credit_used, cash_used, external_amount, currency, gateway,
			payment_method_id, payment_request_id, gateway_reference, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, string(p.Kind), p.CompetitionID, p.SubscriptionPlanID, p.Quantity,
		infra.MinorToNumeric(p.UnitPrice), infra.MinorToNumeric(p.TotalAmount),
		infra.MinorToNumeric(p.CreditUsed), infra.MinorToNumeric(p.CashUsed),
		infra.MinorToNumeric(p.ExternalAmount), p.Currency, p.Gateway,
		p.PaymentMethodID, p.PaymentRequestID, p.GatewayReference, string(p.Status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Purchase, error) {
	var p domain.Purchase
	var m money
	err := db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id).Scan(
		&p.ID, &p.UserID, &p.Kind, &p.CompetitionID, &p.SubscriptionPlanID, &p.Quantity,
		m.into(&p.UnitPrice), m.into(&p.TotalAmount), m.into(&p.CreditUsed), m.into(&p.CashUsed),
		m.into(&p.ExternalAmount), &p.Currency, &p.Gateway,
		&p.PaymentMethodID, &p.PaymentRequestID, &p.GatewayReference, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert purchase amounts: %w", err)
	}
	return &p, nil
}

func (r *purchaseRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PurchaseStatus, gatewayRef *string) error {
	_, err := db.Exec(ctx, `
		UPDATE purchases SET status = $2, gateway_reference = COALESCE($3, gateway_reference), updated_at = now()
		WHERE id = $1`, id, string(status), gatewayRef)
	if err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	return nil
}

func (r *purchaseRepo) LockCompetition(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Competition, error) {
	var c domain.Competition
	var price pgtype.Numeric
	err := tx.QueryRow(ctx, `
		SELECT id, title, ticket_price, currency, max_tickets, sold_tickets, status
		FROM competitions WHERE id = $1 FOR UPDATE`, id).Scan(
		&c.ID, &c.Title, &price, &c.Currency, &c.MaxTickets, &c.SoldTickets, &c.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock competition: %w", err)
	}
	if c.TicketPrice, err = infra.NumericToMinor(price); err != nil {
		return nil, fmt.Errorf("convert ticket price: %w", err)
	}
	return &c, nil
}

func (r *purchaseRepo) IncrementSold(ctx context.Context, tx pgx.Tx, competitionID uuid.UUID, qty int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE competitions SET sold_tickets = sold_tickets + $2, updated_at = now()
		WHERE id = $1 AND sold_tickets + $2 <= max_tickets`, competitionID, qty)
	if err != nil {
		return fmt.Errorf("increment sold tickets: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("competition %s sold out", competitionID)
	}
	return nil
}

func (r *purchaseRepo) ReserveUniversalNumbers(ctx context.Context, tx pgx.Tx, qty int) (int, error) {
	var last int
	err := tx.QueryRow(ctx, `
		INSERT INTO universal_ticket_counter (id, last_number) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE
		SET last_number = universal_ticket_counter.last_number + EXCLUDED.last_number, updated_at = now()
		RETURNING last_number`, qty).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("reserve universal ticket numbers: %w", err)
	}
	return last - qty + 1, nil
}

func (r *purchaseRepo) IssueTickets(ctx context.Context, tx pgx.Tx, userID uuid.UUID, competitionID *uuid.UUID, purchaseID uuid.UUID, first, qty int) ([]domain.Ticket, error) {
	rows, err := tx.Query(ctx, `
		INSERT INTO tickets (user_id, competition_id, purchase_id, ticket_number)
		SELECT $1, $2, $3, n FROM generate_series($4::int, $4::int + $5::int - 1) AS n
		RETURNING id, user_id, competition_id, purchase_id, ticket_number, created_at`,
		userID, competitionID, purchaseID, first, qty)
	if err != nil {
		return nil, fmt.Errorf("issue tickets: %w", err)
	}
	return collect(rows, "ticket", func(s scanner) (*domain.Ticket, error) {
		var t domain.Ticket
		if err := s.Scan(&t.ID, &t.UserID, &t.CompetitionID, &t.PurchaseID, &t.TicketNumber, &t.CreatedAt); err != nil {
			return nil, err
		}
		return &t, nil
	})
}

func (r *purchaseRepo) FindPlan(ctx context.Context, db DBTX, id uuid.UUID) (*domain.SubscriptionPlan, error) {
	var p domain.SubscriptionPlan
	var m money
	err := db.QueryRow(ctx, `
		SELECT id, name, price, currency, interval_days, active
		FROM subscription_plans WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, m.into(&p.Price), &p.Currency, &p.IntervalDays, &p.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription plan: %w", err)
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert plan price: %w", err)
	}
	return &p, nil
}

func (r *purchaseRepo) ActiveSubscriptionEnd(ctx context.Context, db DBTX, userID, planID uuid.UUID) (*time.Time, error) {
	var end *time.Time
	err := db.QueryRow(ctx, `
		SELECT max(period_end) FROM user_subscriptions
		WHERE user_id = $1 AND plan_id = $2 AND status = 'ACTIVE' AND period_end > now()`,
		userID, planID).Scan(&end)
	if err != nil {
		return nil, fmt.Errorf("query active subscription: %w", err)
	}
	return end, nil
}

func (r *purchaseRepo) CreateSubscription(ctx context.Context, db DBTX, s *domain.UserSubscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = "ACTIVE"
	}
	err := db.QueryRow(ctx, `
		INSERT INTO user_subscriptions (id, user_id, plan_id, purchase_id, status, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID, s.UserID, s.PlanID, s.PurchaseID, s.Status, s.PeriodStart, s.PeriodEnd,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}
