package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/handler"
)

// PaymentReviewer is the admin part of service.PaymentService.
type PaymentReviewer interface {
	ApprovePaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*domain.PaymentRequest, error)
	RejectPaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, reason string) (*domain.PaymentRequest, error)
	CompletePaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*domain.PaymentRequest, error)
	ProcessWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID) (*domain.PaymentRequest, error)
	RejectWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID, reason string) (*domain.PaymentRequest, error)
}

// Refunder is implemented by service.RefundService.
type Refunder interface {
	RefundTransaction(ctx context.Context, adminID, transactionID uuid.UUID, amount int64, reason string) (*domain.Refund, error)
}

// PaymentAdminHandler handles review of payment requests, withdrawals and refunds.
type PaymentAdminHandler struct {
	payments PaymentReviewer
	refunds  Refunder
}

// NewPaymentAdminHandler creates a new PaymentAdminHandler.
func NewPaymentAdminHandler(payments PaymentReviewer, refunds Refunder) *PaymentAdminHandler {
	return &PaymentAdminHandler{payments: payments, refunds: refunds}
}

type notesInput struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// note returns whichever of notes or reason was supplied.
func (in notesInput) note() string {
	if in.Reason != "" {
		return in.Reason
	}
	return in.Notes
}

// ApproveRequest handles POST /admin/payment-requests/{id}/approve.
func (h *PaymentAdminHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.ApprovePaymentRequest)
}

// RejectRequest handles POST /admin/payment-requests/{id}/reject.
func (h *PaymentAdminHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.RejectPaymentRequest)
}

// CompleteRequest handles POST /admin/payment-requests/{id}/complete.
func (h *PaymentAdminHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.CompletePaymentRequest)
}

// RejectWithdrawal handles POST /admin/withdrawals/{id}/reject.
func (h *PaymentAdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.RejectWithdrawal)
}

// ProcessWithdrawal handles POST /admin/withdrawals/{id}/process.
func (h *PaymentAdminHandler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, id, ok := adminAndID(w, r)
	if !ok {
		return
	}

	req, err := h.payments.ProcessWithdrawal(r.Context(), adminID, id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

type refundInput struct {
	// Amount of zero refunds everything still refundable.
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// RefundTransaction handles POST /admin/transactions/{id}/refund.
func (h *PaymentAdminHandler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	adminID, id, ok := adminAndID(w, r)
	if !ok {
		return
	}

	var in refundInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondInvalidBody(w)
		return
	}

	refund, err := h.refunds.RefundTransaction(r.Context(), adminID, id, in.Amount, in.Reason)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, refund)
}

// review decodes an optional notes body and applies fn to the {id} parameter.
func (h *PaymentAdminHandler) review(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID, string) (*domain.PaymentRequest, error)) {
	adminID, id, ok := adminAndID(w, r)
	if !ok {
		return
	}

	var in notesInput
	if r.ContentLength != 0 {
		if err := handler.DecodeJSON(r, &in); err != nil {
			handler.RespondInvalidBody(w)
			return
		}
	}

	req, err := fn(r.Context(), adminID, id, in.note())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, req)
}

func adminAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	adminID, err := handler.SubjectID(r)
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return adminID, id, true
}
