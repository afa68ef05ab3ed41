package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/service"
)

// WebhookIngester is implemented by service.WebhookService.
type WebhookIngester interface {
	Ingest(ctx context.Context, kind domain.GatewayKind, body []byte, headers http.Header) (*service.WebhookOutcome, error)
}

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	webhooks WebhookIngester
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhooks WebhookIngester, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// Handle handles POST /webhooks/{gateway}. The body is read raw because
// every provider signs the exact bytes. Any non-2xx answer makes the
// provider redeliver.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	kind := domain.GatewayKind(strings.ToUpper(chi.URLParam(r, "gateway")))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "gateway", kind, "error", err)
		RespondInvalidBody(w)
		return
	}

	out, err := h.webhooks.Ingest(r.Context(), kind, body, r.Header)
	if err != nil {
		h.logger.Warn("webhook rejected", "gateway", kind, "error", err, "request_id", GetRequestID(r.Context()))
		RespondError(w, err)
		return
	}

	h.logger.Info("webhook processed", "gateway", kind, "event_id", out.EventID, "kind", out.Kind, "duplicate", out.Duplicate)
	RespondJSON(w, http.StatusOK, out)
}
