package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
)

// ReportService serves read-only transaction listings and aggregates.
type ReportService struct {
	db    DB
	repos Repositories
	now   func() time.Time
}

// NewReportService creates a ReportService.
func NewReportService(db DB, repos Repositories) *ReportService {
	return &ReportService{db: db, repos: repos, now: time.Now}
}

// GetUserTransactions lists one user's transactions, newest first.
func (s *ReportService) GetUserTransactions(ctx context.Context, userID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, error) {
	f.UserID = &userID
	return s.GetAllTransactions(ctx, f)
}

// GetAllTransactions lists transactions across users.
func (s *ReportService) GetAllTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	txns, err := s.repos.Transactions.List(ctx, s.db, f)
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	return txns, nil
}

// GetTransactionDetail returns a transaction with its request, payment and
// refunds. The processing fee is the one stored at creation.
func (s *ReportService) GetTransactionDetail(ctx context.Context, id uuid.UUID) (*domain.TransactionDetail, error) {
	txn, err := s.repos.Transactions.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, domain.ErrInternal("load transaction", err)
	}
	if txn == nil {
		return nil, domain.ErrNotFound("transaction", id.String())
	}

	d := &domain.TransactionDetail{Transaction: txn, ProcessingFee: txn.FeeAmount}
	if txn.PaymentRequestID != nil {
		if d.Request, err = s.repos.Requests.FindByID(ctx, s.db, *txn.PaymentRequestID); err != nil {
			return nil, domain.ErrInternal("load payment request", err)
		}
		if d.Payment, err = s.repos.Payments.FindByRequestID(ctx, s.db, *txn.PaymentRequestID); err != nil {
			return nil, domain.ErrInternal("load payment", err)
		}
	}
	if d.Refunds, err = s.repos.Refunds.ListByTransaction(ctx, s.db, id); err != nil {
		return nil, domain.ErrInternal("list refunds", err)
	}
	if d.Refunds == nil {
		d.Refunds = []domain.Refund{}
	}
	return d, nil
}

// GetGatewayReport sums completed volume per gateway in [from, to). Zero
// bounds default to the last 30 days.
func (s *ReportService) GetGatewayReport(ctx context.Context, from, to time.Time) ([]domain.GatewayReportRow, error) {
	from, to = s.window(from, to, 30*24*time.Hour)
	rows, err := s.repos.Reports.GatewayTotals(ctx, s.db, from, to)
	if err != nil {
		return nil, domain.ErrInternal("gateway report", err)
	}
	return rows, nil
}

// GetDailyReport buckets volume per day. Defaults to the last 30 days.
func (s *ReportService) GetDailyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	from, to = s.window(from, to, 30*24*time.Hour)
	return s.period(ctx, "day", from, to)
}

// GetMonthlyReport buckets volume per month. Defaults to the last year.
func (s *ReportService) GetMonthlyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	from, to = s.window(from, to, 365*24*time.Hour)
	return s.period(ctx, "month", from, to)
}

func (s *ReportService) period(ctx context.Context, period string, from, to time.Time) ([]domain.PeriodReportRow, error) {
	rows, err := s.repos.Reports.PeriodTotals(ctx, s.db, period, from, to)
	if err != nil {
		return nil, domain.ErrInternal(period+" report", err)
	}
	return rows, nil
}

func (s *ReportService) window(from, to time.Time, span time.Duration) (time.Time, time.Time) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-span)
	}
	return from, to
}
