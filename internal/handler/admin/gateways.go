package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/handler"
	"github.com/rafflehub/platform/internal/service"
)

// GatewayManager is implemented by service.GatewayAdminService.
type GatewayManager interface {
	ListGateways(ctx context.Context) ([]service.GatewayStatus, error)
	UpdateGatewayConfig(ctx context.Context, adminID uuid.UUID, cfg domain.GatewayConfig) (*domain.GatewayConfig, error)
	SetGatewayEnabled(ctx context.Context, adminID uuid.UUID, kind domain.GatewayKind, enabled bool) error
	SetGatewayCredential(ctx context.Context, adminID uuid.UUID, kind domain.GatewayKind, name, value string) error
	Refresh(ctx context.Context) error
}

// GatewayAdminHandler handles gateway configuration endpoints.
type GatewayAdminHandler struct {
	gateways GatewayManager
}

// NewGatewayAdminHandler creates a new GatewayAdminHandler.
func NewGatewayAdminHandler(gateways GatewayManager) *GatewayAdminHandler {
	return &GatewayAdminHandler{gateways: gateways}
}

// ListGateways handles GET /admin/gateways.
func (h *GatewayAdminHandler) ListGateways(w http.ResponseWriter, r *http.Request) {
	list, err := h.gateways.ListGateways(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, list)
}

// UpdateGateway handles PATCH /admin/gateways/{gateway}. Fields absent from
// the body keep their current values.
func (h *GatewayAdminHandler) UpdateGateway(w http.ResponseWriter, r *http.Request) {
	adminID, kind, ok := adminAndGateway(w, r)
	if !ok {
		return
	}

	list, err := h.gateways.ListGateways(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	cfg := domain.GatewayConfig{Gateway: kind}
	for _, st := range list {
		if st.Config.Gateway == kind {
			cfg = st.Config
		}
	}

	var patch json.RawMessage
	if err := handler.DecodeJSON(r, &patch); err != nil {
		handler.RespondInvalidBody(w)
		return
	}
	if err := json.Unmarshal(patch, &cfg); err != nil {
		handler.RespondInvalidBody(w)
		return
	}
	cfg.Gateway = kind

	saved, err := h.gateways.UpdateGatewayConfig(r.Context(), adminID, cfg)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, saved)
}

// SetEnabled handles PUT /admin/gateways/{gateway}/enabled.
func (h *GatewayAdminHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	adminID, kind, ok := adminAndGateway(w, r)
	if !ok {
		return
	}

	var in struct {
		Enabled *bool `json:"enabled"`
	}
	if err := handler.DecodeJSON(r, &in); err != nil || in.Enabled == nil {
		handler.RespondError(w, domain.ErrValidation("enabled is required"))
		return
	}

	if err := h.gateways.SetGatewayEnabled(r.Context(), adminID, kind, *in.Enabled); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"gateway": kind, "enabled": *in.Enabled})
}

// SetCredential handles PUT /admin/gateways/{gateway}/credentials/{name}.
// The value is write-only and never echoed back.
func (h *GatewayAdminHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	adminID, kind, ok := adminAndGateway(w, r)
	if !ok {
		return
	}

	var in struct {
		Value string `json:"value"`
	}
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.RespondInvalidBody(w)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.gateways.SetGatewayCredential(r.Context(), adminID, kind, name, in.Value); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"gateway": kind, "credential": name, "status": "updated"})
}

// Refresh handles POST /admin/gateways/refresh.
func (h *GatewayAdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.gateways.Refresh(r.Context()); err != nil {
		handler.RespondError(w, err)
		return
	}
	h.ListGateways(w, r)
}

func adminAndGateway(w http.ResponseWriter, r *http.Request) (uuid.UUID, domain.GatewayKind, bool) {
	adminID, err := handler.SubjectID(r)
	if err != nil {
		handler.RespondError(w, err)
		return uuid.Nil, "", false
	}
	kind, err := domain.ParseGatewayKind(chi.URLParam(r, "gateway"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return uuid.Nil, "", false
	}
	return adminID, kind, true
}
