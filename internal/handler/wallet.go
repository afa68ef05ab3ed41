package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
)

// BalanceReader is implemented by service.WalletService.
type BalanceReader interface {
	Balances(ctx context.Context, userID uuid.UUID) (*domain.Balances, error)
}

// TransactionReader is implemented by service.ReportService.
type TransactionReader interface {
	GetUserTransactions(ctx context.Context, userID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, error)
}

// WalletHandler handles wallet balance and transaction history endpoints.
type WalletHandler struct {
	wallets      BalanceReader
	transactions TransactionReader
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets BalanceReader, transactions TransactionReader) *WalletHandler {
	return &WalletHandler{wallets: wallets, transactions: transactions}
}

// GetBalances handles GET /wallet/balances.
func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	b, err := h.wallets.Balances(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, b)
}

// GetTransactions handles GET /transactions.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	f, err := TransactionFilter(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	txns, err := h.transactions.GetUserTransactions(r.Context(), userID, f)
	if err != nil {
		RespondError(w, err)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	RespondJSON(w, http.StatusOK, txns)
}
