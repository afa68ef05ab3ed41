package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/handler"
)

// Reporter is implemented by service.ReportService.
type Reporter interface {
	GetAllTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	GetTransactionDetail(ctx context.Context, id uuid.UUID) (*domain.TransactionDetail, error)
	GetGatewayReport(ctx context.Context, from, to time.Time) ([]domain.GatewayReportRow, error)
	GetDailyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error)
	GetMonthlyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error)
}

// Reconciler is implemented by service.WalletService.
type Reconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID) ([]domain.ReconcileReport, error)
}

// ReportsHandler handles admin transaction views, reports and wallet checks.
type ReportsHandler struct {
	reports Reporter
	wallets Reconciler
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reports Reporter, wallets Reconciler) *ReportsHandler {
	return &ReportsHandler{reports: reports, wallets: wallets}
}

// ListTransactions handles GET /admin/transactions.
func (h *ReportsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := handler.TransactionFilter(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if s := r.URL.Query().Get("user_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("invalid user_id"))
			return
		}
		f.UserID = &id
	}

	txns, err := h.reports.GetAllTransactions(r.Context(), f)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	handler.RespondJSON(w, http.StatusOK, txns)
}

// GetTransaction handles GET /admin/transactions/{id}.
func (h *ReportsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	detail, err := h.reports.GetTransactionDetail(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, detail)
}

// GatewayReport handles GET /admin/reports/gateways.
func (h *ReportsHandler) GatewayReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := handler.TimeRange(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	rows, err := h.reports.GetGatewayReport(r.Context(), from, to)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.GatewayReportRow{}
	}
	handler.RespondJSON(w, http.StatusOK, rows)
}

// DailyReport handles GET /admin/reports/daily.
func (h *ReportsHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	h.period(w, r, h.reports.GetDailyReport)
}

// MonthlyReport handles GET /admin/reports/monthly.
func (h *ReportsHandler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	h.period(w, r, h.reports.GetMonthlyReport)
}

// ReconcileWallets handles GET /admin/wallets/{userID}/reconcile.
func (h *ReportsHandler) ReconcileWallets(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.URLUUID(r, "userID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	reports, err := h.wallets.Reconcile(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, reports)
}

func (h *ReportsHandler) period(w http.ResponseWriter, r *http.Request, fn func(context.Context, time.Time, time.Time) ([]domain.PeriodReportRow, error)) {
	from, to, err := handler.TimeRange(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	rows, err := fn(r.Context(), from, to)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.PeriodReportRow{}
	}
	handler.RespondJSON(w, http.StatusOK, rows)
}
