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
)

// lifecycle applies payment request state changes together with their
// mirrored rows and ledger effects. Every method runs in the caller's tx on a
// request the caller has locked.
type lifecycle struct {
	repos  Repositories
	ledger *ledger.Engine
	logger *slog.Logger
}

// change describes who moved a request and why.
type change struct {
	actor *uuid.UUID
	notes string
	// providerPaymentID is stored on the request and payment when set.
	providerPaymentID *string
	// confirm runs after the request row is updated and before money moves.
	// An error aborts the whole change.
	confirm func(ctx context.Context) (*string, error)
}

// transition validates and writes one status change: request row, payment
// mirror, pending transactions on terminal states, audit event and outbox.
func (l *lifecycle) transition(ctx context.Context, tx pgx.Tx, req *domain.PaymentRequest, to domain.RequestStatus, c change) error {
	from := req.Status
	if !domain.CanTransition(req.Type, from, to) {
		return domain.ErrInvalidTransition(from, to)
	}

	req.Status = to
	if c.actor != nil {
		req.AdminID = c.actor
	}
	if c.notes != "" {
		req.AdminNotes = strPtr(c.notes)
	}
	if c.providerPaymentID != nil {
		req.ProviderPaymentID = c.providerPaymentID
	}
	if err := l.repos.Requests.UpdateStatus(ctx, tx, req); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if req.PaymentID != nil {
		if err := l.repos.Payments.UpdateStatus(ctx, tx, *req.PaymentID, domain.PaymentStatusFor(to), c.providerPaymentID); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
	}
	if to.Terminal() {
		if err := l.repos.Transactions.UpdateStatusByRequest(ctx, tx, req.ID, domain.TxStatusFor(to)); err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
	}

	ev := &domain.PaymentRequestEvent{
		ID:         uuid.New(),
		RequestID:  req.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    c.actor,
		Notes:      strPtr(c.notes),
	}
	if err := l.repos.Requests.InsertEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert request event: %w", err)
	}
	if err := l.repos.Outbox.Insert(ctx, tx, domain.NewRequestStatusEvent(req, from)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	metrics.GetOrCreateCounter(`payment_request_transitions_total{type="` + string(req.Type) + `",to="` + string(to) + `"}`).Inc()
	return nil
}

// complete moves req to COMPLETED and applies its ledger effect exactly once.
// An already completed request is a no-op.
func (l *lifecycle) complete(ctx context.Context, tx pgx.Tx, req *domain.PaymentRequest, c change) error {
	if req.Status == domain.StatusCompleted {
		l.logger.InfoContext(ctx, "payment request already completed", "payment_request_id", req.ID)
		return nil
	}
	if err := l.transition(ctx, tx, req, domain.StatusCompleted, c); err != nil {
		return err
	}

	if c.confirm != nil {
		ref, err := c.confirm(ctx)
		if err != nil {
			return err
		}
		if ref != nil {
			req.ProviderPaymentID = ref
			if err := l.repos.Requests.SetProviderRefs(ctx, tx, req.ID, nil, ref, nil); err != nil {
				return fmt.Errorf("store provider payment id: %w", err)
			}
			if req.PaymentID != nil {
				if err := l.repos.Payments.UpdateStatus(ctx, tx, *req.PaymentID, domain.PaymentCompleted, ref); err != nil {
					return fmt.Errorf("update payment reference: %w", err)
				}
			}
		}
	}

	switch req.Type {
	case domain.RequestDeposit:
		_, err := l.ledger.Credit(ctx, tx, domain.LedgerParams{
			UserID:      req.UserID,
			WalletType:  req.WalletType,
			Amount:      req.NetAmount,
			Reference:   req.ID.String(),
			Description: fmt.Sprintf("Deposit via %s", req.GatewayName()),
		})
		if err != nil {
			return fmt.Errorf("credit deposit: %w", err)
		}
		if err := l.repos.Limits.AddDepositUsage(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}
	case domain.RequestWithdrawal:
		_, err := l.ledger.SettleHold(ctx, tx, domain.LedgerParams{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Reference:   req.ID.String(),
			Description: fmt.Sprintf("Withdrawal via %s", req.GatewayName()),
		})
		if err != nil {
			return fmt.Errorf("settle withdrawal hold: %w", err)
		}
		if err := l.syncWithdrawal(ctx, tx, req, nil); err != nil {
			return err
		}
	}

	l.logger.InfoContext(ctx, "payment request completed",
		"payment_request_id", req.ID, "type", req.Type, "gateway", req.GatewayName(),
		"amount", req.Amount, "net", req.NetAmount, "user_id", req.UserID)
	return nil
}

// abandon moves req to a non-completed terminal status. Withdrawals get
// their hold released and their daily usage returned.
func (l *lifecycle) abandon(ctx context.Context, tx pgx.Tx, req *domain.PaymentRequest, to domain.RequestStatus, c change) error {
	if err := l.transition(ctx, tx, req, to, c); err != nil {
		return err
	}

	if req.Type == domain.RequestWithdrawal {
		_, err := l.ledger.ReleaseHold(ctx, tx, domain.LedgerParams{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Reference:   req.ID.String(),
			Description: fmt.Sprintf("Withdrawal %s", to),
		})
		if err != nil {
			return fmt.Errorf("release withdrawal hold: %w", err)
		}
		if err := l.repos.Limits.AddWithdrawalUsage(ctx, tx, req.UserID, -req.Amount); err != nil {
			return err
		}
		if err := l.syncWithdrawal(ctx, tx, req, nil); err != nil {
			return err
		}
	}

	l.logger.InfoContext(ctx, "payment request closed",
		"payment_request_id", req.ID, "type", req.Type, "status", to, "user_id", req.UserID)
	return nil
}

// syncWithdrawal copies the request status onto its withdrawal row.
func (l *lifecycle) syncWithdrawal(ctx context.Context, tx pgx.Tx, req *domain.PaymentRequest, gatewayRef *string) error {
	if req.WithdrawalID == nil {
		return nil
	}
	w, err := l.repos.Withdrawals.FindByID(ctx, tx, *req.WithdrawalID)
	if err != nil {
		return fmt.Errorf("load withdrawal: %w", err)
	}
	if w == nil {
		return domain.ErrNotFound("withdrawal", req.WithdrawalID.String())
	}
	w.Status = req.Status
	w.AdminID = req.AdminID
	w.AdminNotes = req.AdminNotes
	if gatewayRef != nil {
		w.GatewayReference = gatewayRef
	}
	if err := l.repos.Withdrawals.UpdateStatus(ctx, tx, w); err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return nil
}

// lockRequest locks id and returns NOT_FOUND when it does not exist.
func (l *lifecycle) lockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error) {
	req, err := l.repos.Requests.LockForUpdate(ctx, tx, id)
	if err != nil {
		return nil, domain.ErrInternal("lock payment request", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("payment request", id.String())
	}
	return req, nil
}

// lockOwnRequest is lockRequest plus an ownership check; another user's
// request reads as not found.
func (l *lifecycle) lockOwnRequest(ctx context.Context, tx pgx.Tx, userID, id uuid.UUID) (*domain.PaymentRequest, error) {
	req, err := l.lockRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, domain.ErrNotFound("payment request", id.String())
	}
	return req, nil
}

// lockWithdrawalRequest locks the request behind a withdrawal.
func (l *lifecycle) lockWithdrawalRequest(ctx context.Context, tx pgx.Tx, withdrawalID uuid.UUID) (*domain.PaymentRequest, error) {
	req, err := l.repos.Requests.LockByWithdrawal(ctx, tx, withdrawalID)
	if err != nil {
		return nil, domain.ErrInternal("lock withdrawal request", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("withdrawal", withdrawalID.String())
	}
	return req, nil
}
