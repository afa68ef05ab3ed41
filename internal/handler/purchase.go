package handler

import (
	"net/http"

	"github.com/rafflehub/platform/internal/service"
)

// PurchaseTickets handles POST /tickets/purchase.
func (h *PaymentHandler) PurchaseTickets(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.TicketPurchaseInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondInvalidBody(w)
		return
	}

	res, err := h.payments.PurchaseTickets(r.Context(), userID, in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}

// PurchaseSubscription handles POST /subscriptions/purchase.
func (h *PaymentHandler) PurchaseSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := SubjectID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var in service.SubscriptionPurchaseInput
	if err := DecodeJSON(r, &in); err != nil {
		RespondInvalidBody(w)
		return
	}

	res, err := h.payments.PurchaseSubscription(r.Context(), userID, in)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, res)
}
