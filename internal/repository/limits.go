package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

type limitsRepo struct{}

// NewLimitsRepository returns a pgx-backed LimitsRepository.
func NewLimitsRepository() LimitsRepository {
	return &limitsRepo{}
}

func (r *limitsRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, d domain.TransactionLimits) (*domain.TransactionLimits, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_transaction_limits (user_id, max_single_deposit, max_single_withdrawal,
			daily_deposit_limit, daily_withdrawal_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		userID,
		infra.MinorToNumeric(d.MaxSingleDeposit), infra.MinorToNumeric(d.MaxSingleWithdrawal),
		infra.MinorToNumeric(d.DailyDepositLimit), infra.MinorToNumeric(d.DailyWithdrawalLimit))
	if err != nil {
		return nil, fmt.Errorf("ensure transaction limits: %w", err)
	}

	var l domain.TransactionLimits
	var m money
	err = tx.QueryRow(ctx, `
		SELECT user_id, max_single_deposit, max_single_withdrawal, daily_deposit_limit,
		       daily_withdrawal_limit, daily_deposit_used, daily_withdrawal_used, usage_reset_at
		FROM user_transaction_limits WHERE user_id = $1 FOR UPDATE`, userID).Scan(
		&l.UserID, m.into(&l.MaxSingleDeposit), m.into(&l.MaxSingleWithdrawal),
		m.into(&l.DailyDepositLimit), m.into(&l.DailyWithdrawalLimit),
		m.into(&l.DailyDepositUsed), m.into(&l.DailyWithdrawalUsed), &l.UsageResetAt,
	)
	if err != nil {
		return nil, fmt.Errorf("lock transaction limits: %w", err)
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert transaction limits: %w", err)
	}
	return &l, nil
}

func (r *limitsRepo) AddWithdrawalUsage(ctx context.Context, db DBTX, userID uuid.UUID, delta int64) error {
	_, err := db.Exec(ctx, `
		UPDATE user_transaction_limits
		SET daily_withdrawal_used = GREATEST(daily_withdrawal_used + $2, 0), updated_at = now()
		WHERE user_id = $1`, userID, infra.MinorToNumeric(delta))
	if err != nil {
		return fmt.Errorf("add withdrawal usage: %w", err)
	}
	return nil
}

func (r *limitsRepo) AddDepositUsage(ctx context.Context, db DBTX, userID uuid.UUID, delta int64) error {
	_, err := db.Exec(ctx, `
		UPDATE user_transaction_limits
		SET daily_deposit_used = GREATEST(daily_deposit_used + $2, 0), updated_at = now()
		WHERE user_id = $1`, userID, infra.MinorToNumeric(delta))
	if err != nil {
		return fmt.Errorf("add deposit usage: %w", err)
	}
	return nil
}

func (r *limitsRepo) ResetDailyUsage(ctx context.Context, db DBTX, before time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE user_transaction_limits
		SET daily_deposit_used = 0, daily_withdrawal_used = 0, usage_reset_at = now(), updated_at = now()
		WHERE usage_reset_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("reset daily usage: %w", err)
	}
	return tag.RowsAffected(), nil
}
