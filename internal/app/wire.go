// Package app assembles the API process: repositories, gateways, services,
// handlers and the chi router.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafflehub/platform/internal/auth"
	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
	"github.com/rafflehub/platform/internal/guard"
	"github.com/rafflehub/platform/internal/handler"
	adminhandler "github.com/rafflehub/platform/internal/handler/admin"
	"github.com/rafflehub/platform/internal/infra"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/projection"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/repository"
	"github.com/rafflehub/platform/internal/secrets"
	"github.com/rafflehub/platform/internal/service"
)

// App is the assembled API.
type App struct {
	Router   chi.Router
	Registry *gateway.Registry
	Payments *service.PaymentService
}

// Build wires every dependency of the API. rdb may be nil, in which case
// rate limiting and the report cache stay in process.
func Build(ctx context.Context, cfg *infra.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*App, error) {
	userExpiry, err := time.ParseDuration(cfg.JWTUserExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse user JWT expiry: %w", err)
	}
	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse admin JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, userExpiry, adminExpiry)

	store, err := secrets.NewStore(pool, repository.NewSecretRepository(), cfg.SecretsMasterKey, cfg.SecretCacheTTL, cfg.EnvFallbacks(), logger)
	if err != nil {
		return nil, fmt.Errorf("create secret store: %w", err)
	}

	repos := service.NewRepositories()
	registry := gateway.NewRegistry(pool, repos.Gateways, store, gateway.Options{
		Environment: domain.Environment(cfg.PaymentEnvironment),
		Provider:    provider.Options{Timeout: cfg.ProviderTimeout},
		Breaker:     guard.NewCircuitBreaker(5, 30*time.Second),
	}, logger)
	if err := registry.Init(ctx); err != nil {
		return nil, fmt.Errorf("init gateways: %w", err)
	}

	var limiter guard.Limiter = guard.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	if rdb != nil {
		limiter = guard.NewRedisRateLimiter(rdb, "", cfg.RateLimitPerMinute, time.Minute, limiter, logger)
	}

	var cacheStore projection.Store = projection.NewInMemoryStore()
	if rdb != nil {
		cacheStore = projection.NewRedisStore(rdb)
	}
	reports := service.NewReportService(pool, repos)

	engine := ledger.NewEngine(repository.NewWalletRepository(), repos.Outbox, logger)
	payments := service.NewPaymentService(pool, repos, registry, engine, limiter, service.PaymentOptions{
		Currency:             cfg.DefaultCurrency,
		UniversalTicketPrice: cfg.UniversalTicketPrice,
		PublicBaseURL:        cfg.PublicBaseURL,
	}, logger)

	router := NewRouter(RouterDeps{
		JWTMgr:      jwtMgr,
		Logger:      logger,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Health:      func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
		Payments:    payments,
		Wallets:     service.NewWalletService(pool, engine, cfg.DefaultCurrency),
		Webhooks:    service.NewWebhookService(pool, repos, registry, engine, logger),
		Refunds:     service.NewRefundService(pool, repos, registry, engine, logger),
		Reports:     cachedReports{reports, projection.NewReportCache(reports, cacheStore, cfg.ReportCacheTTL, logger)},
		Gateways:    service.NewGatewayAdminService(pool, repos, registry, store, logger),
	})

	return &App{Router: router, Registry: registry, Payments: payments}, nil
}

// Wallets is what the router needs from service.WalletService.
type Wallets interface {
	handler.BalanceReader
	adminhandler.Reconciler
}

// Reports is what the router needs from service.ReportService.
type Reports interface {
	handler.TransactionReader
	adminhandler.Reporter
}

// cachedReports serves the aggregate reports through the projection cache
// and everything else straight from the service.
type cachedReports struct {
	*service.ReportService
	cache *projection.ReportCache
}

func (c cachedReports) GetGatewayReport(ctx context.Context, from, to time.Time) ([]domain.GatewayReportRow, error) {
	return c.cache.GetGatewayReport(ctx, from, to)
}

func (c cachedReports) GetDailyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	return c.cache.GetDailyReport(ctx, from, to)
}

func (c cachedReports) GetMonthlyReport(ctx context.Context, from, to time.Time) ([]domain.PeriodReportRow, error) {
	return c.cache.GetMonthlyReport(ctx, from, to)
}

// Payments is what the router needs from service.PaymentService.
type Payments interface {
	handler.PaymentOrchestrator
	adminhandler.PaymentReviewer
}

// RouterDeps holds everything NewRouter mounts.
type RouterDeps struct {
	JWTMgr      *auth.JWTManager
	Logger      *slog.Logger
	CORSOrigins string
	Health      func(context.Context) error

	Payments Payments
	Wallets  Wallets
	Webhooks handler.WebhookIngester
	Refunds  adminhandler.Refunder
	Reports  Reports
	Gateways adminhandler.GatewayManager
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	idempotency := guard.NewIdempotencyGuard()

	paymentHandler := handler.NewPaymentHandler(deps.Payments)
	walletHandler := handler.NewWalletHandler(deps.Wallets, deps.Reports)
	webhookHandler := handler.NewWebhookHandler(deps.Webhooks, logger)

	paymentAdmin := adminhandler.NewPaymentAdminHandler(deps.Payments, deps.Refunds)
	reportsAdmin := adminhandler.NewReportsHandler(deps.Reports, deps.Wallets)
	gatewayAdmin := adminhandler.NewGatewayAdminHandler(deps.Gateways)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.Metrics)
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))

	r.Get("/health", handler.HealthHandler(deps.Health))
	r.Method("GET", "/metrics", infra.MetricsHandler())

	// Webhooks: no JWT, raw body for signature verification.
	r.Post("/webhooks/{gateway}", webhookHandler.Handle)

	// User routes
	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Use(auth.AuthenticateUser(deps.JWTMgr))
		r.Use(handler.Idempotency(idempotency))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/deposits", paymentHandler.CreateDeposit)
			r.Post("/deposits/{id}/retry", paymentHandler.RetryDeposit)
			r.Post("/deposits/{id}/capture", paymentHandler.CaptureDeposit)
			r.Post("/deposits/{id}/cancel", paymentHandler.CancelDeposit)
			r.Post("/withdrawals", paymentHandler.CreateWithdrawal)
			r.Post("/withdrawals/{id}/cancel", paymentHandler.CancelWithdrawal)
			r.Get("/requests", paymentHandler.ListRequests)
			r.Get("/requests/{id}", paymentHandler.GetRequest)
		})

		r.Post("/tickets/purchase", paymentHandler.PurchaseTickets)
		r.Post("/subscriptions/purchase", paymentHandler.PurchaseSubscription)

		r.Get("/wallet/balances", walletHandler.GetBalances)
		r.Get("/transactions", walletHandler.GetTransactions)
	})

	// Admin routes: every admin role reads, write roles act.
	r.Route("/admin", func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Use(auth.AuthenticateAdmin(deps.JWTMgr))
		r.Use(auth.RequireRole(auth.AllAdminRoles()...))

		r.Get("/transactions", reportsAdmin.ListTransactions)
		r.Get("/transactions/{id}", reportsAdmin.GetTransaction)
		r.Get("/reports/gateways", reportsAdmin.GatewayReport)
		r.Get("/reports/daily", reportsAdmin.DailyReport)
		r.Get("/reports/monthly", reportsAdmin.MonthlyReport)
		r.Get("/wallets/{userID}/reconcile", reportsAdmin.ReconcileWallets)
		r.Get("/gateways", gatewayAdmin.ListGateways)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.WriteRoles()...))
			r.Use(handler.Idempotency(idempotency))

			r.Route("/payment-requests/{id}", func(r chi.Router) {
				r.Post("/approve", paymentAdmin.ApproveRequest)
				r.Post("/reject", paymentAdmin.RejectRequest)
				r.Post("/complete", paymentAdmin.CompleteRequest)
			})
			r.Route("/withdrawals/{id}", func(r chi.Router) {
				r.Post("/process", paymentAdmin.ProcessWithdrawal)
				r.Post("/reject", paymentAdmin.RejectWithdrawal)
			})
			r.Post("/transactions/{id}/refund", paymentAdmin.RefundTransaction)

			r.Post("/gateways/refresh", gatewayAdmin.Refresh)
			r.Patch("/gateways/{gateway}", gatewayAdmin.UpdateGateway)
			r.Put("/gateways/{gateway}/enabled", gatewayAdmin.SetEnabled)
		})

		r.With(auth.RequireRole(auth.CredentialRoles()...)).
			Put("/gateways/{gateway}/credentials/{name}", gatewayAdmin.SetCredential)
	})

	return r
}
