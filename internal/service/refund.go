package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/provider"
)

// RefundService returns gateway-collected money to the payer.
type RefundService struct {
	db       DB
	repos    Repositories
	gateways Gateways
	ledger   *ledger.Engine
	logger   *slog.Logger
}

// NewRefundService creates a RefundService.
func NewRefundService(db DB, repos Repositories, gateways Gateways, engine *ledger.Engine, logger *slog.Logger) *RefundService {
	return &RefundService{db: db, repos: repos, gateways: gateways, ledger: engine, logger: logger}
}

// RefundTransaction refunds amount of a completed gateway transaction, or
// everything still refundable when amount is 0. Deposits take the credited
// share back out of the wallet first, so a spent deposit cannot be refunded.
func (s *RefundService) RefundTransaction(ctx context.Context, adminID, transactionID uuid.UUID, amount int64, reason string) (*domain.Refund, error) {
	if amount < 0 {
		return nil, domain.ErrValidation("refund amount cannot be negative")
	}
	if reason == "" {
		return nil, domain.ErrValidation("refund reason is required")
	}

	var (
		refund   *domain.Refund
		provided bool
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		txn, err := s.repos.Transactions.LockForUpdate(ctx, tx, transactionID)
		if err != nil {
			return domain.ErrInternal("lock transaction", err)
		}
		if txn == nil {
			return domain.ErrNotFound("transaction", transactionID.String())
		}
		switch {
		case txn.Status != domain.TxCompleted:
			return domain.ErrConflict(fmt.Sprintf("transaction is %s, only completed transactions can be refunded", txn.Status))
		case txn.Type == domain.TxWithdrawal || txn.Type == domain.TxRefund:
			return domain.ErrValidation(fmt.Sprintf("%s transactions cannot be refunded", txn.Type))
		case txn.PaymentRequestID == nil || txn.Gateway == nil:
			return domain.ErrValidation("transaction was settled from wallet balance and has no gateway payment")
		}

		req, err := s.repos.Requests.LockForUpdate(ctx, tx, *txn.PaymentRequestID)
		if err != nil {
			return domain.ErrInternal("lock payment request", err)
		}
		if req == nil || req.PaymentID == nil {
			return domain.ErrNotFound("payment for transaction", transactionID.String())
		}
		payment, err := s.repos.Payments.LockForUpdate(ctx, tx, *req.PaymentID)
		if err != nil {
			return domain.ErrInternal("lock payment", err)
		}
		if payment == nil {
			return domain.ErrNotFound("payment", req.PaymentID.String())
		}

		refundable := payment.Refundable()
		if amount == 0 {
			amount = refundable
		}
		if amount <= 0 || amount > refundable {
			return domain.ErrValidation(fmt.Sprintf("refund of %s exceeds refundable %s",
				domain.FormatMinor(amount), domain.FormatMinor(refundable)))
		}
		full := amount == refundable

		if share := walletShare(amount, req.Amount, req.NetAmount); req.Type == domain.RequestDeposit && share > 0 {
			if _, err := s.ledger.Debit(ctx, tx, domain.LedgerParams{
				UserID:      req.UserID,
				WalletType:  req.WalletType,
				Amount:      share,
				Reference:   req.ID.String(),
				Description: "Deposit refund: " + reason,
			}); err != nil {
				return err
			}
		}

		handle, err := s.gateways.ValidateAvailability(ctx, *txn.Gateway)
		if err != nil {
			return err
		}
		res, err := handle.Client.Refund(ctx, provider.RefundRequest{
			RequestID: req.ID,
			Reference: refundReference(payment, req),
			Amount:    amount,
			Currency:  payment.Currency,
			Reason:    reason,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "provider refund failed",
				"error", err, "gateway", *txn.Gateway, "transaction_id", txn.ID)
			return domain.ErrProvider(*txn.Gateway, "refund", err)
		}
		provided = true

		refund = &domain.Refund{
			ID:              uuid.New(),
			TransactionID:   txn.ID,
			PaymentID:       payment.ID,
			UserID:          txn.UserID,
			AdminID:         adminID,
			Amount:          amount,
			Currency:        payment.Currency,
			Reason:          reason,
			Gateway:         *txn.Gateway,
			GatewayRefundID: res.RefundID,
			Partial:         !full,
		}
		if err := s.repos.Refunds.Create(ctx, tx, refund); err != nil {
			return domain.ErrInternal("create refund", err)
		}

		status := domain.PaymentPartiallyRefunded
		if full {
			status = domain.PaymentRefunded
		}
		if err := s.repos.Payments.AddRefunded(ctx, tx, payment.ID, amount, status); err != nil {
			return domain.ErrInternal("record refunded amount", err)
		}
		if full {
			if err := s.repos.Transactions.UpdateStatus(ctx, tx, txn.ID, domain.TxRefunded); err != nil {
				return domain.ErrInternal("mark transaction refunded", err)
			}
			if txn.PurchaseID != nil {
				if err := s.repos.Purchases.UpdateStatus(ctx, tx, *txn.PurchaseID, domain.PurchaseRefunded, nil); err != nil {
					return domain.ErrInternal("mark purchase refunded", err)
				}
			}
		}

		if err := s.repos.Transactions.Create(ctx, tx, &domain.Transaction{
			ID:               uuid.New(),
			UserID:           txn.UserID,
			Type:             domain.TxRefund,
			Amount:           amount,
			Currency:         payment.Currency,
			Status:           domain.TxCompleted,
			Gateway:          txn.Gateway,
			PaymentRequestID: txn.PaymentRequestID,
			PurchaseID:       txn.PurchaseID,
			Description:      "Refund: " + reason,
		}); err != nil {
			return domain.ErrInternal("create refund transaction", err)
		}
		if err := s.repos.Outbox.Insert(ctx, tx, domain.NewRefundEvent(refund)); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}
		return nil
	})
	if err != nil {
		if provided {
			s.logger.ErrorContext(ctx, "refund sent to provider but not recorded; manual reconciliation required",
				"error", err, "transaction_id", transactionID, "admin_id", adminID)
		}
		return nil, asAppError(err, "refund transaction")
	}

	metrics.GetOrCreateCounter(`refunds_total{gateway="` + refund.Gateway.Lower() + `"}`).Inc()
	s.logger.InfoContext(ctx, "transaction refunded",
		"transaction_id", transactionID, "refund_id", refund.ID, "amount", refund.Amount,
		"partial", refund.Partial, "admin_id", adminID)
	return refund, nil
}

// walletShare is the part of a gross refund that was credited to the
// wallet, net of the deposit fee.
func walletShare(refund, gross, net int64) int64 {
	if gross <= 0 || refund >= gross {
		return net
	}
	return refund * net / gross
}

func refundReference(p *domain.Payment, req *domain.PaymentRequest) string {
	switch {
	case p.GatewayReference != nil:
		return *p.GatewayReference
	case req.ProviderPaymentID != nil:
		return *req.ProviderPaymentID
	case req.ProviderOrderID != nil:
		return *req.ProviderOrderID
	}
	return ""
}
