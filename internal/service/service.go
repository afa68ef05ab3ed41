package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/repository"
)

// DB is the connection the services run queries and transactions on.
// *pgxpool.Pool satisfies it.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Gateways is the slice of the gateway registry the services call.
// *gateway.Registry satisfies it.
type Gateways interface {
	ValidateAvailability(ctx context.Context, kind domain.GatewayKind) (*gateway.Handle, error)
	Client(kind domain.GatewayKind) (provider.Client, error)
}

// Repositories bundles the repositories shared by the payment services.
type Repositories struct {
	Users        repository.UserRepository
	Requests     repository.PaymentRequestRepository
	Payments     repository.PaymentRepository
	Transactions repository.TransactionRepository
	Withdrawals  repository.WithdrawalRepository
	Purchases    repository.PurchaseRepository
	Webhooks     repository.WebhookLogRepository
	Refunds      repository.RefundRepository
	Limits       repository.LimitsRepository
	Outbox       repository.OutboxRepository
	Reports      repository.ReportRepository
	Gateways     repository.GatewayConfigRepository
}

// NewRepositories returns the pgx-backed repository set.
func NewRepositories() Repositories {
	return Repositories{
		Users:        repository.NewUserRepository(),
		Requests:     repository.NewPaymentRequestRepository(),
		Payments:     repository.NewPaymentRepository(),
		Transactions: repository.NewTransactionRepository(),
		Withdrawals:  repository.NewWithdrawalRepository(),
		Purchases:    repository.NewPurchaseRepository(),
		Webhooks:     repository.NewWebhookLogRepository(),
		Refunds:      repository.NewRefundRepository(),
		Limits:       repository.NewLimitsRepository(),
		Outbox:       repository.NewOutboxRepository(),
		Reports:      repository.NewReportRepository(),
		Gateways:     repository.NewGatewayConfigRepository(),
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
