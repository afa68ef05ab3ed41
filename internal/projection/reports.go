package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/rafflehub/platform/internal/domain"
)

// Aggregates is the report slice of service.ReportService that is cached.
type Aggregates interface {
	GetGatewayReport(ctx context.Context, from, to time.Time) ([]domain.GatewayReportRow, error)
	GetDailyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error)
	GetMonthlyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error)
}

// ReportCache serves gateway, daily and monthly aggregates from a Store.
// Open-ended windows are pinned to the current minute so repeated dashboard
// loads share a key. A failing store never fails the report.
type ReportCache struct {
	inner  Aggregates
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewReportCache wraps inner. ttl of zero means one minute.
func NewReportCache(inner Aggregates, store Store, ttl time.Duration, logger *slog.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReportCache{inner: inner, store: store, ttl: ttl, logger: logger, now: time.Now}
}

func (c *ReportCache) GetGatewayReport(ctx context.Context, from, to time.Time) ([]domain.GatewayReportRow, error) {
	return cached(ctx, c, "gateways", from, to, 30*24*time.Hour, c.inner.GetGatewayReport)
}

func (c *ReportCache) GetDailyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	return cached(ctx, c, "daily", from, to, 30*24*time.Hour, c.inner.GetDailyReport)
}

func (c *ReportCache) GetMonthlyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	return cached(ctx, c, "monthly", from, to, 365*24*time.Hour, c.inner.GetMonthlyReport)
}

func cached[T any](ctx context.Context, c *ReportCache, name string, from, to time.Time, span time.Duration,
	load func(context.Context, time.Time, time.Time) ([]T, error)) ([]T, error) {
	if to.IsZero() {
		to = c.now().UTC().Truncate(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-span)
	}
	key := fmt.Sprintf("projection:report:%s:%d:%d", name, from.Unix(), to.Unix())

	var rows []T
	err := GetJSON(ctx, c.store, key, &rows)
	if err == nil {
		metrics.GetOrCreateCounter(`report_cache_total{report="` + name + `",result="hit"}`).Inc()
		return rows, nil
	}
	if !errors.Is(err, ErrMiss) {
		c.logger.WarnContext(ctx, "report cache read failed", "report", name, "error", err)
	}
	metrics.GetOrCreateCounter(`report_cache_total{report="` + name + `",result="miss"}`).Inc()

	rows, err = load(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if err := SetJSON(ctx, c.store, key, rows, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "report cache write failed", "report", name, "error", err)
	}
	return rows, nil
}
