package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/guard"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/provider/providertest"
	"github.com/rafflehub/platform/internal/repository"
	"github.com/rafflehub/platform/internal/secrets"
)

type fakeConfigs struct {
	rows    []domain.GatewayConfig
	listErr error
	lists   int
}

func (f *fakeConfigs) List(_ context.Context, _ repository.DBTX, env domain.Environment) ([]domain.GatewayConfig, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.GatewayConfig
	for _, r := range f.rows {
		if r.Environment == env {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeConfigs) Find(_ context.Context, _ repository.DBTX, g domain.GatewayKind, env domain.Environment) (*domain.GatewayConfig, error) {
	for i := range f.rows {
		if f.rows[i].Gateway == g && f.rows[i].Environment == env {
			return &f.rows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeConfigs) IsEnabled(ctx context.Context, db repository.DBTX, g domain.GatewayKind, env domain.Environment) (bool, error) {
	c, _ := f.Find(ctx, db, g, env)
	return c != nil && c.Enabled, nil
}

func (f *fakeConfigs) Upsert(context.Context, repository.DBTX, *domain.GatewayConfig) error {
	return nil
}

func (f *fakeConfigs) SetEnabled(ctx context.Context, db repository.DBTX, g domain.GatewayKind, env domain.Environment, enabled bool) error {
	c, _ := f.Find(ctx, db, g, env)
	if c != nil {
		c.Enabled = enabled
	}
	return nil
}

type fakeSecrets map[string]string

func (f fakeSecrets) Get(_ context.Context, key string, opts secrets.GetOptions) (string, error) {
	if v, ok := f[key]; ok {
		return v, nil
	}
	if v, ok := f["env:"+opts.FallbackEnv]; ok && opts.FallbackEnv != "" {
		return v, nil
	}
	if opts.Optional {
		return "", nil
	}
	return "", secrets.ErrSecretNotFound
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sandboxConfig(kind domain.GatewayKind, enabled bool) domain.GatewayConfig {
	return domain.GatewayConfig{
		Gateway:     kind,
		Environment: domain.EnvSandbox,
		Enabled:     enabled,
		Fees:        domain.FeeSchedule{Percent: decimal.RequireFromString("2.9"), FixedFee: 30},
	}
}

// sandboxSecrets holds every required sandbox credential in the secret store.
func sandboxSecrets() fakeSecrets {
	return fakeSecrets{
		SecretKey(domain.GatewayStripe, domain.EnvSandbox, CredSecretKey):    "sk_test",
		SecretKey(domain.GatewayPayPal, domain.EnvSandbox, CredClientID):     "client",
		SecretKey(domain.GatewayPayPal, domain.EnvSandbox, CredClientSecret): "secret",
		SecretKey(domain.GatewayRevolut, domain.EnvSandbox, CredAPIKey):      "rev_key",
	}
}

func fakeFactories(clients map[domain.GatewayKind]*providertest.Client, calls *int32) map[domain.GatewayKind]Factory {
	out := map[domain.GatewayKind]Factory{}
	for kind, c := range clients {
		c := c
		out[kind] = func(*domain.GatewayConfig, Credentials, provider.Options) (provider.Client, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			return c.Build()
		}
	}
	return out
}

func TestRegistry_InitIsolatesFailures(t *testing.T) {
	configs := &fakeConfigs{rows: []domain.GatewayConfig{
		sandboxConfig(domain.GatewayStripe, true),
		sandboxConfig(domain.GatewayPayPal, true),
		sandboxConfig(domain.GatewayRevolut, false),
	}}
	// PayPal has no credentials anywhere; Stripe resolves from the env fallback.
	store := fakeSecrets{"env:STRIPE_SECRET_KEY": "sk_test"}

	r := NewRegistry(nil, configs, store, Options{Environment: domain.EnvSandbox}, testLogger())
	require.NoError(t, r.Init(context.Background()))

	assert.Equal(t, domain.GatewayInitialized, r.State(domain.GatewayStripe))
	assert.Equal(t, domain.GatewayInitFailed, r.State(domain.GatewayPayPal))
	assert.Equal(t, domain.GatewayDisabled, r.State(domain.GatewayRevolut))

	c, err := r.Client(domain.GatewayStripe)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayStripe, c.Kind())

	_, err = r.Client(domain.GatewayPayPal)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRegistry_InitFailsOnConfigLoad(t *testing.T) {
	r := NewRegistry(nil, &fakeConfigs{listErr: errors.New("db down")}, fakeSecrets{}, Options{}, testLogger())
	assert.Error(t, r.Init(context.Background()))
	assert.Equal(t, domain.GatewayUninitialized, r.State(domain.GatewayStripe))
}

func TestRegistry_AccessorsPanicBeforeInit(t *testing.T) {
	r := NewRegistry(nil, &fakeConfigs{}, fakeSecrets{}, Options{}, testLogger())
	assert.Panics(t, func() { r.Stripe() })
	assert.Panics(t, func() { r.PayPal() })
	assert.Panics(t, func() { r.Revolut() })
}

func TestRegistry_ValidateAvailability(t *testing.T) {
	ctx := context.Background()
	stripe := providertest.New(domain.GatewayStripe)
	configs := &fakeConfigs{rows: []domain.GatewayConfig{
		sandboxConfig(domain.GatewayStripe, true),
		sandboxConfig(domain.GatewayPayPal, false),
	}}
	r := NewRegistry(nil, configs, sandboxSecrets(), Options{
		Environment: domain.EnvSandbox,
		Factories:   fakeFactories(map[domain.GatewayKind]*providertest.Client{domain.GatewayStripe: stripe}, nil),
	}, testLogger())
	require.NoError(t, r.Init(ctx))
	require.Equal(t, domain.GatewayInitialized, r.State(domain.GatewayStripe))

	t.Run("enabled and live", func(t *testing.T) {
		h, err := r.ValidateAvailability(ctx, domain.GatewayStripe)
		require.NoError(t, err)
		assert.Equal(t, domain.GatewayStripe, h.Client.Kind())
		assert.Equal(t, int64(30), h.Config.Fees.FixedFee)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		_, err := r.ValidateAvailability(ctx, domain.GatewayKind("ADYEN"))
		assert.True(t, domain.HasCode(err, domain.CodeGatewayUnavailable))
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := r.ValidateAvailability(ctx, domain.GatewayPayPal)
		assert.True(t, domain.HasCode(err, domain.CodeGatewayUnavailable))
	})

	t.Run("toggle off takes effect without refresh", func(t *testing.T) {
		require.NoError(t, configs.SetEnabled(ctx, nil, domain.GatewayStripe, domain.EnvSandbox, false))
		_, err := r.ValidateAvailability(ctx, domain.GatewayStripe)
		assert.True(t, domain.HasCode(err, domain.CodeGatewayUnavailable))
		assert.Equal(t, domain.GatewayInitialized, r.State(domain.GatewayStripe), "state only changes on init")
		require.NoError(t, configs.SetEnabled(ctx, nil, domain.GatewayStripe, domain.EnvSandbox, true))
	})
}

func TestRegistry_ValidateAvailabilityLazyInit(t *testing.T) {
	ctx := context.Background()
	var builds int32
	paypal := providertest.New(domain.GatewayPayPal)
	configs := &fakeConfigs{rows: []domain.GatewayConfig{sandboxConfig(domain.GatewayPayPal, false)}}
	r := NewRegistry(nil, configs, sandboxSecrets(), Options{
		Environment: domain.EnvSandbox,
		Factories:   fakeFactories(map[domain.GatewayKind]*providertest.Client{domain.GatewayPayPal: paypal}, &builds),
	}, testLogger())
	require.NoError(t, r.Init(ctx))
	assert.Equal(t, domain.GatewayDisabled, r.State(domain.GatewayPayPal))

	// Enabled in the database after startup: first use re-initializes once.
	require.NoError(t, configs.SetEnabled(ctx, nil, domain.GatewayPayPal, domain.EnvSandbox, true))
	h, err := r.ValidateAvailability(ctx, domain.GatewayPayPal)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayPayPal, h.Client.Kind())
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	assert.Equal(t, 2, configs.lists)
}

func TestRegistry_RefreshRebuildsClients(t *testing.T) {
	ctx := context.Background()
	var builds int32
	configs := &fakeConfigs{rows: []domain.GatewayConfig{sandboxConfig(domain.GatewayRevolut, true)}}
	r := NewRegistry(nil, configs, sandboxSecrets(), Options{
		Environment: domain.EnvSandbox,
		Factories:   fakeFactories(map[domain.GatewayKind]*providertest.Client{domain.GatewayRevolut: providertest.New(domain.GatewayRevolut)}, &builds),
	}, testLogger())

	require.NoError(t, r.Init(ctx))
	require.Equal(t, domain.GatewayInitialized, r.State(domain.GatewayRevolut))
	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&builds))
	assert.Equal(t, domain.GatewayInitialized, r.State(domain.GatewayRevolut))
	assert.NotPanics(t, func() { r.Revolut() })
}

func TestRegistry_MissingCredentialFailsInit(t *testing.T) {
	ctx := context.Background()
	configs := &fakeConfigs{rows: []domain.GatewayConfig{sandboxConfig(domain.GatewayRevolut, true)}}
	r := NewRegistry(nil, configs, fakeSecrets{}, Options{
		Environment: domain.EnvSandbox,
		Factories:   fakeFactories(map[domain.GatewayKind]*providertest.Client{domain.GatewayRevolut: providertest.New(domain.GatewayRevolut)}, nil),
	}, testLogger())

	require.NoError(t, r.Init(ctx))
	assert.Equal(t, domain.GatewayInitFailed, r.State(domain.GatewayRevolut))
	assert.Panics(t, func() { r.Revolut() })
}

func TestResolveCredentials_Layering(t *testing.T) {
	ctx := context.Background()
	cfg := sandboxConfig(domain.GatewayPayPal, true)
	cfg.Credentials = map[string]string{CredClientID: "row-client"}
	store := fakeSecrets{"env:PAYPAL_WEBHOOK_ID": "env-webhook"}
	store[SecretKey(domain.GatewayPayPal, domain.EnvSandbox, CredClientID)] = "stored-client"
	store[SecretKey(domain.GatewayPayPal, domain.EnvSandbox, CredClientSecret)] = "stored-secret"

	creds, err := resolveCredentials(ctx, store, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "row-client", creds[CredClientID], "row wins")
	assert.Equal(t, "stored-secret", creds[CredClientSecret], "secret store next")
	assert.Equal(t, "env-webhook", creds[CredWebhookID], "env last")
	_, hasBase := creds[CredBaseURL]
	assert.False(t, hasBase)
}

func TestSecretKey(t *testing.T) {
	assert.Equal(t, "stripe.live.secret_key", SecretKey(domain.GatewayStripe, domain.EnvLive, CredSecretKey))
	assert.Contains(t, CredentialNames(domain.GatewayRevolut), CredBusinessToken)
}

func TestGuardedClient_DeclinesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	fake := providertest.New(domain.GatewayStripe)
	fake.ChargeFn = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, &provider.APIError{Gateway: domain.GatewayStripe, StatusCode: 402, Message: "declined"}
	}
	cb := guard.NewCircuitBreaker(2, time.Minute)
	c := guardClient(fake, cb)

	for i := 0; i < 5; i++ {
		_, err := c.CreateCharge(ctx, provider.ChargeRequest{Amount: 100})
		require.Error(t, err)
	}
	assert.Equal(t, guard.CircuitClosed, cb.State("gateway:STRIPE"))

	fake.ChargeFn = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, errors.New("connection reset")
	}
	for i := 0; i < 2; i++ {
		_, _ = c.CreateCharge(ctx, provider.ChargeRequest{Amount: 100})
	}
	assert.Equal(t, guard.CircuitOpen, cb.State("gateway:STRIPE"))

	_, err := c.CreateCharge(ctx, provider.ChargeRequest{Amount: 100})
	assert.ErrorIs(t, err, guard.ErrCircuitOpen)
}
