package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafflehub/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Find* methods return (nil, nil) when no row matches.

// GatewayConfigRepository provides access to gateway_configs.
type GatewayConfigRepository interface {
	List(ctx context.Context, db DBTX, env domain.Environment) ([]domain.GatewayConfig, error)
	Find(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment) (*domain.GatewayConfig, error)
	// IsEnabled reads only the enabled flag; a missing row reads as disabled.
	IsEnabled(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment) (bool, error)
	Upsert(ctx context.Context, db DBTX, cfg *domain.GatewayConfig) error
	SetEnabled(ctx context.Context, db DBTX, gateway domain.GatewayKind, env domain.Environment, enabled bool) error
}

// SecretRepository stores encrypted secret payloads.
type SecretRepository interface {
	// Get returns the stored ciphertext and whether the key exists.
	Get(ctx context.Context, db DBTX, key string) (string, bool, error)
	Upsert(ctx context.Context, db DBTX, key, ciphertext string) error
	Delete(ctx context.Context, db DBTX, key string) error
}

// WalletRepository provides access to wallets and wallet_transactions.
type WalletRepository interface {
	// Ensure creates the user's CASH and CREDIT wallets if missing.
	Ensure(ctx context.Context, db DBTX, userID uuid.UUID, currency string) error
	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the wallet.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, walletType domain.WalletType) (*domain.Wallet, error)
	// UpdateBalance applies delta with server-side arithmetic and returns the new row.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) (*domain.Wallet, error)
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Wallet, error)
	InsertEntry(ctx context.Context, db DBTX, entry *domain.WalletEntry) error
	ListEntries(ctx context.Context, db DBTX, walletID uuid.UUID) ([]domain.WalletEntry, error)
	ListEntriesByReference(ctx context.Context, db DBTX, reference string) ([]domain.WalletEntry, error)
}

// PaymentRequestRepository provides access to payment_requests and their audit trail.
type PaymentRequestRepository interface {
	Create(ctx context.Context, db DBTX, req *domain.PaymentRequest) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentRequest, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error)
	// LockByProviderRef matches either the provider order id or payment id.
	LockByProviderRef(ctx context.Context, tx pgx.Tx, gateway domain.GatewayKind, ref string) (*domain.PaymentRequest, error)
	LockByWithdrawal(ctx context.Context, tx pgx.Tx, withdrawalID uuid.UUID) (*domain.PaymentRequest, error)
	UpdateStatus(ctx context.Context, db DBTX, req *domain.PaymentRequest) error
	SetProviderRefs(ctx context.Context, db DBTX, id uuid.UUID, orderID, paymentID, checkoutURL *string) error
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, f domain.RequestFilter) ([]domain.PaymentRequest, error)
	ListStale(ctx context.Context, db DBTX, reqType domain.RequestType, olderThan time.Time, limit int) ([]uuid.UUID, error)
	InsertEvent(ctx context.Context, db DBTX, ev *domain.PaymentRequestEvent) error
}

// PaymentRepository provides access to payments.
type PaymentRepository interface {
	Create(ctx context.Context, db DBTX, p *domain.Payment) error
	FindByRequestID(ctx context.Context, db DBTX, requestID uuid.UUID) (*domain.Payment, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayRef *string) error
	AddRefunded(ctx context.Context, db DBTX, id uuid.UUID, amount int64, status domain.PaymentStatus) error
}

// TransactionRepository provides access to transactions.
type TransactionRepository interface {
	Create(ctx context.Context, db DBTX, tx *domain.Transaction) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.TransactionStatus) error
	// UpdateStatusByRequest only moves the request's still-pending transactions.
	UpdateStatusByRequest(ctx context.Context, db DBTX, requestID uuid.UUID, status domain.TransactionStatus) error
	List(ctx context.Context, db DBTX, f domain.TransactionFilter) ([]domain.Transaction, error)
}

// WithdrawalRepository provides access to withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, db DBTX, w *domain.Withdrawal) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Withdrawal, error)
	UpdateStatus(ctx context.Context, db DBTX, w *domain.Withdrawal) error
}

// PurchaseRepository provides access to purchases, tickets and subscriptions.
type PurchaseRepository interface {
	Create(ctx context.Context, db DBTX, p *domain.Purchase) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Purchase, error)
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PurchaseStatus, gatewayRef *string) error
	LockCompetition(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Competition, error)
	IncrementSold(ctx context.Context, tx pgx.Tx, competitionID uuid.UUID, qty int) error
	// ReserveUniversalNumbers claims qty consecutive universal ticket numbers
	// and returns the first. The counter row stays locked until tx ends.
	ReserveUniversalNumbers(ctx context.Context, tx pgx.Tx, qty int) (int, error)
	// IssueTickets inserts tickets numbered first..first+qty-1.
	IssueTickets(ctx context.Context, tx pgx.Tx, userID uuid.UUID, competitionID *uuid.UUID, purchaseID uuid.UUID, first, qty int) ([]domain.Ticket, error)
	FindPlan(ctx context.Context, db DBTX, id uuid.UUID) (*domain.SubscriptionPlan, error)
	// ActiveSubscriptionEnd returns the latest period end of an active subscription, if any.
	ActiveSubscriptionEnd(ctx context.Context, db DBTX, userID, planID uuid.UUID) (*time.Time, error)
	CreateSubscription(ctx context.Context, db DBTX, s *domain.UserSubscription) error
}

// WebhookLogRepository provides access to webhook_logs.
type WebhookLogRepository interface {
	// Insert returns false when (gateway, event_id) was already logged.
	Insert(ctx context.Context, db DBTX, log *domain.WebhookLog) (bool, error)
	MarkProcessed(ctx context.Context, db DBTX, gateway domain.GatewayKind, eventID string) error
}

// RefundRepository provides access to refunds.
type RefundRepository interface {
	Create(ctx context.Context, db DBTX, r *domain.Refund) error
	ListByTransaction(ctx context.Context, db DBTX, transactionID uuid.UUID) ([]domain.Refund, error)
}

// LimitsRepository provides access to user_transaction_limits.
type LimitsRepository interface {
	// LockForUpdate returns the user's limits row, creating a default one first.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, defaults domain.TransactionLimits) (*domain.TransactionLimits, error)
	AddWithdrawalUsage(ctx context.Context, db DBTX, userID uuid.UUID, delta int64) error
	AddDepositUsage(ctx context.Context, db DBTX, userID uuid.UUID, delta int64) error
	ResetDailyUsage(ctx context.Context, db DBTX, before time.Time) (int64, error)
}

// UserRepository reads the identity data the payment core depends on.
type UserRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)
	FindPaymentMethod(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentMethod, error)
	DefaultPaymentMethod(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.PaymentMethod, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}

// ReportRepository runs read-only aggregate queries.
type ReportRepository interface {
	GatewayTotals(ctx context.Context, db DBTX, from, to time.Time) ([]domain.GatewayReportRow, error)
	PeriodTotals(ctx context.Context, db DBTX, period string, from, to time.Time) ([]domain.PeriodReportRow, error)
}
