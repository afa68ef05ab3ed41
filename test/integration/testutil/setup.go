//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafflehub/platform/internal/app"
	"github.com/rafflehub/platform/internal/auth"
	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
	"github.com/rafflehub/platform/internal/infra"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/provider/providertest"
	"github.com/rafflehub/platform/internal/repository"
	"github.com/rafflehub/platform/internal/secrets"
	"github.com/rafflehub/platform/internal/service"
)

const (
	TestJWTSecret  = "integration-test-secret"
	TestMasterKey  = "integration-master-key"
	TestDBName     = "rafflehub_test"
	TestDBUser     = "rafflehub"
	TestDBPass     = "rafflehub"
	postgresImage  = "postgres:16-alpine"
	startupTimeout = 60 * time.Second
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	JWTMgr   *auth.JWTManager
	Registry *gateway.Registry
	Ledger   *ledger.Engine
	Secrets  *secrets.Store
	Payments *service.PaymentService
	Logger   *slog.Logger
	// Fakes are the provider clients behind every gateway, keyed by kind.
	Fakes map[domain.GatewayKind]*providertest.Client
	t     *testing.T
}

var (
	container *postgres.PostgresContainer
	sharedDSN string
	setupOnce sync.Once
	setupErr  error
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(TestDBName),
		postgres.WithUsername(TestDBUser),
		postgres.WithPassword(TestDBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		return fmt.Errorf("start postgres container: %w", err)
	}
	container = c

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("connection string: %w", err)
	}
	if err := infra.RunMigrationsFrom(infra.FindMigrationDir(), dsn, testLogger()); err != nil {
		return err
	}
	sharedDSN = dsn
	return nil
}

// Shutdown terminates the shared container. Call it from TestMain.
func Shutdown() {
	if container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = container.Terminate(ctx)
}

func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	setupOnce.Do(func() { setupErr = startPostgres() })
	if setupErr != nil {
		t.Fatalf("failed to initialize test database: %v", setupErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(sharedDSN)
	if err != nil {
		t.Fatalf("parse pool config: %v", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return pool
}

// NewTestEnv boots the real router against the test database with every
// gateway backed by a scripted fake client. Gateways are seeded enabled in
// SANDBOX with a 2.9% + 0.30 fee.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := newPool(t)
	logger := testLogger()
	env := &TestEnv{
		Pool:   pool,
		JWTMgr: auth.NewJWTManager(TestJWTSecret, time.Hour, time.Hour),
		Logger: logger,
		Fakes:  map[domain.GatewayKind]*providertest.Client{},
		t:      t,
	}
	env.CleanAll()
	env.SeedGateways()

	store, err := secrets.NewStore(pool, repository.NewSecretRepository(), TestMasterKey, time.Minute, map[string]string{
		"STRIPE_SECRET_KEY":    "sk_test_integration",
		"PAYPAL_CLIENT_ID":     "client_integration",
		"PAYPAL_CLIENT_SECRET": "secret_integration",
		"REVOLUT_API_KEY":      "rev_integration",
	}, logger)
	if err != nil {
		t.Fatalf("secret store: %v", err)
	}
	env.Secrets = store

	factories := map[domain.GatewayKind]gateway.Factory{}
	for _, kind := range domain.AllGateways() {
		fake := providertest.New(kind)
		env.Fakes[kind] = fake
		factories[kind] = func(*domain.GatewayConfig, gateway.Credentials, provider.Options) (provider.Client, error) {
			return fake.Build()
		}
	}

	repos := service.NewRepositories()
	env.Registry = gateway.NewRegistry(pool, repos.Gateways, store, gateway.Options{
		Environment: domain.EnvSandbox,
		Factories:   factories,
	}, logger)
	if err := env.Registry.Init(context.Background()); err != nil {
		t.Fatalf("init gateways: %v", err)
	}

	env.Ledger = ledger.NewEngine(repository.NewWalletRepository(), repos.Outbox, logger)
	env.Payments = service.NewPaymentService(pool, repos, env.Registry, env.Ledger, nil, service.PaymentOptions{
		Currency:             "GBP",
		UniversalTicketPrice: 100,
		PublicBaseURL:        "https://raffle.test",
	}, logger)

	router := app.NewRouter(app.RouterDeps{
		JWTMgr:      env.JWTMgr,
		Logger:      logger,
		CORSOrigins: "*",
		Health:      func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
		Payments:    env.Payments,
		Wallets:     service.NewWalletService(pool, env.Ledger, "GBP"),
		Webhooks:    service.NewWebhookService(pool, repos, env.Registry, env.Ledger, logger),
		Refunds:     service.NewRefundService(pool, repos, env.Registry, env.Ledger, logger),
		Reports:     service.NewReportService(pool, repos),
		Gateways:    service.NewGatewayAdminService(pool, repos, env.Registry, store, logger),
	})
	env.Server = httptest.NewServer(router)

	t.Cleanup(func() {
		env.Server.Close()
		pool.Close()
	})
	return env
}
