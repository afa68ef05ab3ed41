package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/infra"
)

const gatewayConfigColumns = `id, gateway, environment, enabled,
	min_deposit, max_deposit, min_withdrawal, max_withdrawal, fee_percent, fixed_fee,
	allowed_countries, restricted_countries, credentials, created_at, updated_at`

type gatewayConfigRepo struct{}

// NewGatewayConfigRepository returns a pgx-backed GatewayConfigRepository.
func NewGatewayConfigRepository() GatewayConfigRepository {
	return &gatewayConfigRepo{}
}

func (r *gatewayConfigRepo) List(ctx context.Context, db DBTX, env domain.Environment) ([]domain.GatewayConfig, error) {
	rows, err := db.Query(ctx, `SELECT `+gatewayConfigColumns+`
		FROM gateway_configs WHERE environment = $1 ORDER BY gateway`, string(env))
	if err != nil {
		return nil, fmt.Errorf("query gateway configs: %w", err)
	}
	return collect(rows, "gateway config", scanGatewayConfig)
}

func (r *gatewayConfigRepo) Find(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment) (*domain.GatewayConfig, error) {
	row := db.QueryRow(ctx, `SELECT `+gatewayConfigColumns+`
		FROM gateway_configs WHERE gateway = $1 AND environment = $2`, string(gateway), string(env))
	cfg, err := scanGatewayConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan gateway config: %w", err)
	}
	return cfg, nil
}

func (r *gatewayConfigRepo) IsEnabled(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment) (bool, error) {
	var enabled bool
	err := db.QueryRow(ctx, `
		SELECT enabled FROM gateway_configs WHERE gateway = $1 AND environment = $2`,
		string(gateway), string(env)).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read gateway enabled flag: %w", err)
	}
	return enabled, nil
}

func (r *gatewayConfigRepo) Upsert(ctx context.Context, db DBTX, c *domain.GatewayConfig) error {
	allowed := c.AllowedCountries
	if allowed == nil {
		allowed = []string{}
	}
	restricted := c.RestrictedCountries
	if restricted == nil {
		restricted = []string{}
	}
	row := db.QueryRow(ctx, `
		INSERT INTO gateway_configs (id, gateway, environment, enabled,
			min_deposit, max_deposit, min_withdrawal, max_withdrawal, fee_percent, fixed_fee,
			allowed_countries, restricted_countries, credentials)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (gateway, environment) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			min_deposit = EXCLUDED.min_deposit,
			max_deposit = EXCLUDED.max_deposit,
			min_withdrawal = EXCLUDED.min_withdrawal,
			max_withdrawal = EXCLUDED.max_withdrawal,
			fee_percent = EXCLUDED.fee_percent,
			fixed_fee = EXCLUDED.fixed_fee,
			allowed_countries = EXCLUDED.allowed_countries,
			restricted_countries = EXCLUDED.restricted_countries,
			credentials = EXCLUDED.credentials,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		c.ID, string(c.Gateway), string(c.Environment), c.Enabled,
		infra.MinorToNumeric(c.Deposit.Min), infra.MinorToNumeric(c.Deposit.Max),
		infra.MinorToNumeric(c.Withdrawal.Min), infra.MinorToNumeric(c.Withdrawal.Max),
		infra.DecimalToNumeric(c.Fees.Percent), infra.MinorToNumeric(c.Fees.FixedFee),
		allowed, restricted, c.CredentialsJSON(),
	)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("upsert gateway config: %w", err)
	}
	return nil
}

func (r *gatewayConfigRepo) SetEnabled(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment, enabled bool) error {
	tag, err := db.Exec(ctx, `
		UPDATE gateway_configs SET enabled = $3, updated_at = now()
		WHERE gateway = $1 AND environment = $2`,
		string(gateway), string(env), enabled)
	if err != nil {
		return fmt.Errorf("set gateway enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("gateway config", string(gateway)+"/"+string(env))
	}
	return nil
}

func scanGatewayConfig(s scanner) (*domain.GatewayConfig, error) {
	var c domain.GatewayConfig
	var m money
	var feePct pgtype.Numeric
	err := s.Scan(
		&c.ID, &c.Gateway, &c.Environment, &c.Enabled,
		m.into(&c.Deposit.Min), m.into(&c.Deposit.Max),
		m.into(&c.Withdrawal.Min), m.into(&c.Withdrawal.Max),
		&feePct, m.into(&c.Fees.FixedFee),
		&c.AllowedCountries, &c.RestrictedCountries, &c.Credentials,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := m.apply(); err != nil {
		return nil, fmt.Errorf("convert gateway config amounts: %w", err)
	}
	if c.Fees.Percent, err = infra.NumericToDecimal(feePct); err != nil {
		return nil, fmt.Errorf("convert fee percent: %w", err)
	}
	return &c, nil
}
