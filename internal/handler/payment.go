package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/service"
)

// PaymentOrchestrator is the user-facing part of service.PaymentService.
type PaymentOrchestrator interface {
	CreateDeposit(ctx context.Context, userID uuid.UUID, in service.DepositInput) (*service.DepositResult, error)
	RetryDeposit(ctx context.Context, userID, requestID uuid.UUID) (*service.DepositResult, error)
	CaptureDeposit(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error)
	CancelDeposit(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error)
	CreateWithdrawal(ctx context.Context, userID uuid.UUID, in service.WithdrawalInput) (*service.WithdrawalResult, error)
	CancelWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*domain.PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error)
	ListUserPaymentRequests(ctx context.Context, userID uuid.UUID, f domain.RequestFilter) ([]domain.PaymentRequest, error)
	PurchaseTickets(ctx context.Context, userID uuid.UUID, in service.TicketPurchaseInput) (*domain.PurchaseResult, error)
	PurchaseSubscription(ctx context.Context, userID uuid.UUID, in service.SubscriptionPurchaseInput) (*domain.PurchaseResult, error)
}

// PaymentHandler handles deposit, withdrawal and payment request endpoints.
type PaymentHandler struct {
	payments PaymentOrchestrator
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateDeposit handles POST /payments/deposits.
func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.DepositInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondInvalidBody(w)
		return
	}

	res, err := h.payments.CreateDeposit(r.Context(), userID, in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// RetryDeposit handles POST /payments/deposits/{id}/retry.
func (h *PaymentHandler) RetryDeposit(w http.ResponseWriter, r *http.Request) {
	userID, requestID, ok := userAndID(w, r)
	if !ok {
		return
	}

	res, err := h.payments.RetryDeposit(r.Context(), userID, requestID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// CaptureDeposit handles POST /payments/deposits/{id}/capture, called when
// the user returns from the gateway's checkout.
func (h *PaymentHandler) CaptureDeposit(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.payments.CaptureDeposit)
}

// CancelDeposit handles POST /payments/deposits/{id}/cancel.
func (h *PaymentHandler) CancelDeposit(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.payments.CancelDeposit)
}

// CreateWithdrawal handles POST /payments/withdrawals.
func (h *PaymentHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.WithdrawalInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondInvalidBody(w)
		return
	}

	res, err := h.payments.CreateWithdrawal(r.Context(), userID, in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// CancelWithdrawal handles POST /payments/withdrawals/{id}/cancel.
func (h *PaymentHandler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.payments.CancelWithdrawal)
}

// ListRequests handles GET /payments/requests.
func (h *PaymentHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	q := r.URL.Query()
	f := domain.RequestFilter{
		Type:   domain.RequestType(q.Get("type")),
		Status: domain.RequestStatus(q.Get("status")),
	}
	f.Limit, f.Offset = Page(r)

	reqs, err := h.payments.ListUserPaymentRequests(r.Context(), userID, f)
	if err != nil {
		RespondError(w, err)
		return
	}
	if reqs == nil {
		reqs = []domain.PaymentRequest{}
	}
	RespondJSON(w, http.StatusOK, reqs)
}

// GetRequest handles GET /payments/requests/{id}.
func (h *PaymentHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.payments.GetPaymentRequest)
}

// requestAction runs fn for the authenticated user and the {id} parameter,
// answering with the resulting payment request.
func (h *PaymentHandler) requestAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*domain.PaymentRequest, error)) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	req, err := fn(r.Context(), userID, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, req)
}

func userAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
