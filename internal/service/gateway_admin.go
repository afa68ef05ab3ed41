package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
)

// GatewayRegistry is the slice of the registry the admin service drives.
type GatewayRegistry interface {
	Environment() domain.Environment
	State(kind domain.GatewayKind) domain.GatewayState
	Refresh(ctx context.Context) error
}

// SecretWriter stores encrypted credentials.
type SecretWriter interface {
	Set(ctx context.Context, key, value string) error
}

// GatewayStatus is a config row with the registry's live view of it.
type GatewayStatus struct {
	Config domain.GatewayConfig `json:"config"`
	State  domain.GatewayState  `json:"state"`
}

// GatewayAdminService edits gateway configs and credentials.
type GatewayAdminService struct {
	db       DB
	repos    Repositories
	registry GatewayRegistry
	secrets  SecretWriter
	logger   *slog.Logger
}

// NewGatewayAdminService creates a GatewayAdminService.
func NewGatewayAdminService(db DB, repos Repositories, registry GatewayRegistry, secrets SecretWriter, logger *slog.Logger) *GatewayAdminService {
	return &GatewayAdminService{db: db, repos: repos, registry: registry, secrets: secrets, logger: logger}
}

// ListGateways returns every gateway in the running environment. Gateways
// without a row are reported disabled.
func (s *GatewayAdminService) ListGateways(ctx context.Context) ([]GatewayStatus, error) {
	env := s.registry.Environment()
	cfgs, err := s.repos.Gateways.List(ctx, s.db, env)
	if err != nil {
		return nil, domain.ErrInternal("list gateway configs", err)
	}

	out := make([]GatewayStatus, 0, len(domain.AllGateways()))
	for _, kind := range domain.AllGateways() {
		st := GatewayStatus{
			Config: domain.GatewayConfig{Gateway: kind, Environment: env},
			State:  s.registry.State(kind),
		}
		if i := slices.IndexFunc(cfgs, func(c domain.GatewayConfig) bool { return c.Gateway == kind }); i >= 0 {
			st.Config = cfgs[i]
		}
		out = append(out, st)
	}
	return out, nil
}

// UpdateGatewayConfig replaces a gateway's limits, fees and country lists
// for the running environment and rebuilds the clients.
func (s *GatewayAdminService) UpdateGatewayConfig(ctx context.Context, adminID uuid.UUID, cfg domain.GatewayConfig) (*domain.GatewayConfig, error) {
	if !cfg.Gateway.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("unknown gateway %q", cfg.Gateway))
	}
	if cfg.Fees.Percent.IsNegative() || cfg.Fees.FixedFee < 0 {
		return nil, domain.ErrValidation("fees cannot be negative")
	}
	for _, l := range []domain.AmountLimits{cfg.Deposit, cfg.Withdrawal} {
		if l.Min < 0 || l.Max < 0 || (l.Max > 0 && l.Min > l.Max) {
			return nil, domain.ErrValidation("invalid amount limits")
		}
	}
	for _, list := range [][]string{cfg.AllowedCountries, cfg.RestrictedCountries} {
		for i, c := range list {
			list[i] = strings.ToUpper(strings.TrimSpace(c))
			if err := domain.ValidateCountry(list[i]); err != nil {
				return nil, domain.ErrValidation(err.Error())
			}
		}
	}
	cfg.Environment = s.registry.Environment()

	if err := s.repos.Gateways.Upsert(ctx, s.db, &cfg); err != nil {
		return nil, domain.ErrInternal("save gateway config", err)
	}
	if err := s.repos.Outbox.Insert(ctx, s.db, domain.NewGatewayConfigEvent(&cfg, adminID)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}
	s.refresh(ctx)

	s.logger.InfoContext(ctx, "gateway config updated",
		"gateway", cfg.Gateway, "environment", cfg.Environment, "enabled", cfg.Enabled, "admin_id", adminID)
	return &cfg, nil
}

// SetGatewayEnabled flips the enabled flag. Availability checks read the
// flag from the database, so the change applies immediately.
func (s *GatewayAdminService) SetGatewayEnabled(ctx context.Context, adminID uuid.UUID, kind domain.GatewayKind, enabled bool) error {
	if !kind.Valid() {
		return domain.ErrValidation(fmt.Sprintf("unknown gateway %q", kind))
	}
	env := s.registry.Environment()
	if err := s.repos.Gateways.SetEnabled(ctx, s.db, kind, env, enabled); err != nil {
		return domain.ErrInternal("set gateway enabled", err)
	}
	cfg := &domain.GatewayConfig{Gateway: kind, Environment: env, Enabled: enabled}
	if err := s.repos.Outbox.Insert(ctx, s.db, domain.NewGatewayConfigEvent(cfg, adminID)); err != nil {
		return domain.ErrInternal("insert outbox event", err)
	}
	s.refresh(ctx)

	s.logger.InfoContext(ctx, "gateway toggled", "gateway", kind, "enabled", enabled, "admin_id", adminID)
	return nil
}

// SetGatewayCredential stores one credential encrypted in the secret store
// and rebuilds the clients. Values are never logged.
func (s *GatewayAdminService) SetGatewayCredential(ctx context.Context, adminID uuid.UUID, kind domain.GatewayKind, name, value string) error {
	if !kind.Valid() {
		return domain.ErrValidation(fmt.Sprintf("unknown gateway %q", kind))
	}
	if !slices.Contains(gateway.CredentialNames(kind), name) {
		return domain.ErrValidation(fmt.Sprintf("unknown %s credential %q", kind.Lower(), name))
	}
	if strings.TrimSpace(value) == "" {
		return domain.ErrValidation("credential value is required")
	}

	key := gateway.SecretKey(kind, s.registry.Environment(), name)
	if err := s.secrets.Set(ctx, key, value); err != nil {
		return domain.ErrInternal("store credential", err)
	}
	s.refresh(ctx)

	s.logger.InfoContext(ctx, "gateway credential updated", "gateway", kind, "credential", name, "admin_id", adminID)
	return nil
}

// Refresh rebuilds every gateway client from the current configs.
func (s *GatewayAdminService) Refresh(ctx context.Context) error {
	if err := s.registry.Refresh(ctx); err != nil {
		return domain.ErrInternal("refresh gateways", err)
	}
	return nil
}

// refresh logs instead of failing: the write already committed, and a
// gateway that fails to build reports INIT_FAILED on its own.
func (s *GatewayAdminService) refresh(ctx context.Context) {
	if err := s.registry.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "gateway refresh failed", "error", err)
	}
}
