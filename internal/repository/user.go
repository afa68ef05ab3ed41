package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
)

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := db.QueryRow(ctx, `
		SELECT id, email, country, default_payment_method_id, created_at
		FROM users WHERE id = $1`, id).Scan(
		&u.ID, &u.Email, &u.Country, &u.DefaultPaymentMethodID, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

const paymentMethodColumns = `id, user_id, gateway, kind, provider_ref, provider_customer_id, last4, is_default, created_at`

func (r *userRepo) FindPaymentMethod(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id)
	return findPaymentMethod(row)
}

// DefaultPaymentMethod prefers users.default_payment_method_id and falls back
// to the newest method flagged is_default.
func (r *userRepo) DefaultPaymentMethod(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.PaymentMethod, error) {
	row := db.QueryRow(ctx, `
		SELECT pm.id, pm.user_id, pm.gateway, pm.kind, pm.provider_ref,
		       pm.provider_customer_id, pm.last4, pm.is_default, pm.created_at
		FROM payment_methods pm
		LEFT JOIN users u ON u.default_payment_method_id = pm.id
		WHERE pm.user_id = $1 AND (u.id IS NOT NULL OR pm.is_default)
		ORDER BY (u.id IS NOT NULL) DESC, pm.created_at DESC
		LIMIT 1`, userID)
	return findPaymentMethod(row)
}

func findPaymentMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := row.Scan(&pm.ID, &pm.UserID, &pm.Gateway, &pm.Kind, &pm.ProviderRef,
		&pm.ProviderCustomerID, &pm.Last4, &pm.IsDefault, &pm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment method: %w", err)
	}
	return &pm, nil
}
