package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rafflehub/platform/internal/domain"
)

type reportRepo struct{}

// NewReportRepository returns a pgx-backed ReportRepository.
func NewReportRepository() ReportRepository {
	return &reportRepo{}
}

// GatewayTotals sums completed transactions per gateway and type in [from, to).
func (r *reportRepo) GatewayTotals(ctx context.Context, db DBTX, from, to time.Time) ([]domain.GatewayReportRow, error) {
	rows, err := db.Query(ctx, `
		SELECT COALESCE(gateway, 'WALLET'), type, count(*), COALESCE(sum(amount), 0), COALESCE(sum(fee_amount), 0)
		FROM transactions
		WHERE status = 'completed' AND created_at >= $1 AND created_at < $2
		GROUP BY 1, 2
		ORDER BY 1, 2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query gateway totals: %w", err)
	}
	return collect(rows, "gateway report", func(s scanner) (*domain.GatewayReportRow, error) {
		var row domain.GatewayReportRow
		var m money
		if err := s.Scan(&row.Gateway, &row.Type, &row.Count, m.into(&row.TotalAmount), m.into(&row.TotalFees)); err != nil {
			return nil, err
		}
		if err := m.apply(); err != nil {
			return nil, err
		}
		return &row, nil
	})
}

// PeriodTotals buckets completed and refunded volume by day or month.
func (r *reportRepo) PeriodTotals(ctx context.Context, db DBTX, period string, from, to time.Time) ([]domain.PeriodReportRow, error) {
	if period != "day" && period != "month" {
		return nil, fmt.Errorf("unsupported report period %q", period)
	}
	rows, err := db.Query(ctx, `
		SELECT date_trunc($1::text, created_at) AS bucket,
		       COALESCE(sum(amount) FILTER (WHERE type = 'deposit'), 0),
		       COALESCE(sum(amount) FILTER (WHERE type = 'withdrawal'), 0),
		       COALESCE(sum(amount) FILTER (WHERE type IN ('ticket_purchase', 'subscription')), 0),
		       COALESCE(sum(amount) FILTER (WHERE type = 'refund'), 0),
		       COALESCE(sum(fee_amount), 0),
		       count(*)
		FROM transactions
		WHERE status IN ('completed', 'refunded') AND created_at >= $2 AND created_at < $3
		GROUP BY bucket
		ORDER BY bucket`, period, from, to)
	if err != nil {
		return nil, fmt.Errorf("query period totals: %w", err)
	}
	return collect(rows, "period report", func(s scanner) (*domain.PeriodReportRow, error) {
		var row domain.PeriodReportRow
		var m money
		err := s.Scan(&row.Period, m.into(&row.Deposits), m.into(&row.Withdrawals),
			m.into(&row.Purchases), m.into(&row.Refunds), m.into(&row.Fees), &row.Count)
		if err != nil {
			return nil, err
		}
		if err := m.apply(); err != nil {
			return nil, err
		}
		return &row, nil
	})
}
