// Package gateway owns the per-process registry of payment provider clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/guard"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/repository"
	"github.com/rafflehub/platform/internal/secrets"
)

// ErrNotInitialized is returned when a gateway has no live client.
var ErrNotInitialized = errors.New("gateway not initialized")

// Handle is a usable gateway: a live client plus the config snapshot it was
// built from.
type Handle struct {
	Client provider.Client
	Config *domain.GatewayConfig
}

// Options configure a Registry.
type Options struct {
	Environment domain.Environment
	Provider    provider.Options
	// Factories override the HTTP constructors; tests inject fakes here.
	Factories map[domain.GatewayKind]Factory
	Breaker   *guard.CircuitBreaker
}

type entry struct {
	state  domain.GatewayState
	config *domain.GatewayConfig
	client provider.Client
	err    error
}

// Registry builds provider clients from gateway_configs rows and answers
// availability checks. Construct once at startup and share.
type Registry struct {
	db        repository.DBTX
	configs   repository.GatewayConfigRepository
	secrets   secrets.Getter
	env       domain.Environment
	popts     provider.Options
	factories map[domain.GatewayKind]Factory
	breaker   *guard.CircuitBreaker
	logger    *slog.Logger

	initMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	entries     map[domain.GatewayKind]*entry
}

// NewRegistry creates an uninitialized registry. Call Init before use.
func NewRegistry(db repository.DBTX, configs repository.GatewayConfigRepository, store secrets.Getter, opts Options, logger *slog.Logger) *Registry {
	factories := opts.Factories
	if factories == nil {
		factories = DefaultFactories()
	}
	env := opts.Environment
	if !env.Valid() {
		env = domain.EnvSandbox
	}
	return &Registry{
		db:        db,
		configs:   configs,
		secrets:   store,
		env:       env,
		popts:     opts.Provider,
		factories: factories,
		breaker:   opts.Breaker,
		logger:    logger,
		entries:   make(map[domain.GatewayKind]*entry),
	}
}

// Environment returns the environment this registry serves.
func (r *Registry) Environment() domain.Environment { return r.env }

// Init loads every config row for the current environment and builds a client
// for each enabled gateway. A failure for one gateway is recorded and logged
// without affecting the others; only a failed config load returns an error.
func (r *Registry) Init(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	rows, err := r.configs.List(ctx, r.db, r.env)
	if err != nil {
		return fmt.Errorf("load gateway configs: %w", err)
	}
	byKind := make(map[domain.GatewayKind]*domain.GatewayConfig, len(rows))
	for i := range rows {
		byKind[rows[i].Gateway] = &rows[i]
	}

	next := make(map[domain.GatewayKind]*entry, len(domain.AllGateways()))
	for _, kind := range domain.AllGateways() {
		next[kind] = r.build(ctx, kind, byKind[kind])
	}

	r.mu.Lock()
	r.entries = next
	r.initialized = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) build(ctx context.Context, kind domain.GatewayKind, cfg *domain.GatewayConfig) *entry {
	if cfg == nil || !cfg.Enabled {
		r.logger.Info("gateway disabled", "gateway", kind, "environment", r.env)
		return &entry{state: domain.GatewayDisabled, config: cfg}
	}

	fail := func(err error) *entry {
		r.logger.Error("gateway init failed", "gateway", kind, "environment", r.env, "error", err)
		metrics.GetOrCreateCounter(`gateway_init_total{gateway="` + kind.Lower() + `",result="failed"}`).Inc()
		return &entry{state: domain.GatewayInitFailed, config: cfg, err: err}
	}

	factory, ok := r.factories[kind]
	if !ok {
		return fail(fmt.Errorf("no client factory for %s", kind))
	}
	creds, err := resolveCredentials(ctx, r.secrets, cfg)
	if err != nil {
		return fail(err)
	}
	client, err := factory(cfg, creds, r.popts)
	if err != nil {
		return fail(err)
	}

	r.logger.Info("gateway initialized", "gateway", kind, "environment", r.env)
	metrics.GetOrCreateCounter(`gateway_init_total{gateway="` + kind.Lower() + `",result="ok"}`).Inc()
	return &entry{state: domain.GatewayInitialized, config: cfg, client: guardClient(client, r.breaker)}
}

// Refresh discards every cached client and re-initializes. Used after admin
// edits to configs or credentials.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.entries = make(map[domain.GatewayKind]*entry)
	r.initialized = false
	r.mu.Unlock()
	return r.Init(ctx)
}

// IsEnabled re-reads the authoritative enabled flag from the database.
func (r *Registry) IsEnabled(ctx context.Context, kind domain.GatewayKind) (bool, error) {
	return r.configs.IsEnabled(ctx, r.db, kind, r.env)
}

// ValidateAvailability checks the gateway is known, enabled in the database,
// and has a live client. A missing client for an enabled gateway triggers one
// re-Init before giving up.
func (r *Registry) ValidateAvailability(ctx context.Context, kind domain.GatewayKind) (*Handle, error) {
	if !kind.Valid() {
		return nil, domain.ErrGatewayUnavailable(kind, "unknown gateway")
	}
	enabled, err := r.IsEnabled(ctx, kind)
	if err != nil {
		return nil, domain.ErrInternal("check gateway status", err)
	}
	if !enabled {
		return nil, domain.ErrGatewayUnavailable(kind, "disabled")
	}

	if h, ok := r.handle(kind); ok {
		return h, nil
	}
	if err := r.Init(ctx); err != nil {
		return nil, domain.ErrInternal("initialize gateways", err)
	}
	if h, ok := r.handle(kind); ok {
		return h, nil
	}

	reason := "client not initialized"
	if e := r.entry(kind); e != nil && e.err != nil {
		reason = e.err.Error()
	}
	return nil, domain.ErrGatewayUnavailable(kind, reason)
}

func (r *Registry) entry(kind domain.GatewayKind) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[kind]
}

func (r *Registry) handle(kind domain.GatewayKind) (*Handle, bool) {
	e := r.entry(kind)
	if e == nil || e.client == nil {
		return nil, false
	}
	return &Handle{Client: e.client, Config: e.config}, true
}

// Client returns the live client for kind or ErrNotInitialized.
func (r *Registry) Client(kind domain.GatewayKind) (provider.Client, error) {
	if h, ok := r.handle(kind); ok {
		return h.Client, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotInitialized, kind)
}

// State reports the lifecycle state of kind.
func (r *Registry) State(kind domain.GatewayKind) domain.GatewayState {
	if e := r.entry(kind); e != nil {
		return e.state
	}
	return domain.GatewayUninitialized
}

// Config returns the config snapshot loaded for kind, if any.
func (r *Registry) Config(kind domain.GatewayKind) *domain.GatewayConfig {
	if e := r.entry(kind); e != nil {
		return e.config
	}
	return nil
}

// Stripe returns the Stripe client. It panics if the registry has not been
// initialized with a live Stripe client; callers go through
// ValidateAvailability first.
func (r *Registry) Stripe() provider.Client { return r.mustClient(domain.GatewayStripe) }

// PayPal is the PayPal counterpart of Stripe.
func (r *Registry) PayPal() provider.Client { return r.mustClient(domain.GatewayPayPal) }

// Revolut is the Revolut counterpart of Stripe.
func (r *Registry) Revolut() provider.Client { return r.mustClient(domain.GatewayRevolut) }

func (r *Registry) mustClient(kind domain.GatewayKind) provider.Client {
	c, err := r.Client(kind)
	if err != nil {
		panic(err)
	}
	return c
}
