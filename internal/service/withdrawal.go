package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/policy"
	"github.com/rafflehub/platform/internal/provider"
)

// WithdrawalInput is a user's request to cash out their CASH wallet.
type WithdrawalInput struct {
	Amount          int64                    `json:"amount"`
	Currency        string                   `json:"currency"`
	Gateway         domain.GatewayKind       `json:"gateway"`
	Destination     domain.PayoutDestination `json:"destination"`
	PaymentMethodID *uuid.UUID               `json:"payment_method_id,omitempty"`
}

// WithdrawalResult pairs the payout record with its request.
type WithdrawalResult struct {
	Withdrawal *domain.Withdrawal     `json:"withdrawal"`
	Request    *domain.PaymentRequest `json:"payment_request"`
}

// CreateWithdrawal places a hold on the user's CASH wallet and opens a
// withdrawal awaiting admin approval. Limits are checked before the hold.
func (s *PaymentService) CreateWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*WithdrawalResult, error) {
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	currency, err := s.currency(in.Currency)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	handle, err := s.gateways.ValidateAvailability(ctx, in.Gateway)
	if err != nil {
		return nil, err
	}
	route := policy.EvaluateGatewayRoute(handle.Config, policy.LimitWithdrawal, in.Amount, user.Country, &in.Destination)
	if !route.Allowed {
		return nil, domain.ErrValidation(route.Reason)
	}
	if _, err := s.paymentMethod(ctx, userID, in.PaymentMethodID, in.Gateway); err != nil {
		return nil, err
	}

	gw := in.Gateway
	w := &domain.Withdrawal{
		ID:              uuid.New(),
		UserID:          userID,
		Amount:          in.Amount,
		Currency:        currency,
		Gateway:         gw,
		PaymentMethodID: in.PaymentMethodID,
		Destination:     in.Destination,
		Status:          domain.StatusPending,
	}
	req := &domain.PaymentRequest{
		ID:                    uuid.New(),
		UserID:                userID,
		Type:                  domain.RequestWithdrawal,
		Gateway:               &gw,
		Amount:                in.Amount,
		Currency:              currency,
		NetAmount:             in.Amount,
		Status:                domain.StatusPending,
		RequiresAdminApproval: true,
		WalletType:            domain.WalletCash,
		WithdrawalID:          &w.ID,
		PaymentMethodID:       in.PaymentMethodID,
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		limits, err := s.repos.Limits.LockForUpdate(ctx, tx, userID, policy.DefaultTransactionLimits(userID))
		if err != nil {
			return domain.ErrInternal("load transaction limits", err)
		}
		eval := policy.EvaluateTransactionLimits(*limits, policy.LimitWithdrawal, in.Amount, limits.DailyWithdrawalUsed)
		if err := eval.Err(); err != nil {
			s.logger.WarnContext(ctx, "withdrawal limit breached",
				"user_id", userID, "limit", eval.BreachedLimit, "amount", in.Amount)
			return err
		}

		if err := s.ledger.EnsureWallets(ctx, tx, userID, currency); err != nil {
			return domain.ErrInternal("ensure wallets", err)
		}
		if _, err := s.ledger.Hold(ctx, tx, domain.LedgerParams{
			UserID:      userID,
			Amount:      in.Amount,
			Reference:   req.ID.String(),
			Description: "Withdrawal hold via " + string(gw),
		}); err != nil {
			return err
		}

		if err := s.repos.Withdrawals.Create(ctx, tx, w); err != nil {
			return domain.ErrInternal("create withdrawal", err)
		}
		if err := s.openRequest(ctx, tx, req, "Withdrawal via "+string(gw), nil); err != nil {
			return err
		}
		if err := s.repos.Limits.AddWithdrawalUsage(ctx, tx, userID, in.Amount); err != nil {
			return domain.ErrInternal("record withdrawal usage", err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "create withdrawal")
	}

	s.logger.InfoContext(ctx, "withdrawal requested",
		"withdrawal_id", w.ID, "payment_request_id", req.ID, "gateway", gw,
		"amount", in.Amount, "user_id", userID)
	return &WithdrawalResult{Withdrawal: w, Request: req}, nil
}

// CancelWithdrawal lets the user withdraw their own request before it is
// being processed. The hold is released.
func (s *PaymentService) CancelWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockWithdrawalRequest(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if req.UserID != userID {
			return domain.ErrNotFound("withdrawal", withdrawalID.String())
		}
		return s.life.abandon(ctx, tx, req, domain.StatusCancelled, change{notes: "cancelled by user"})
	})
	if err != nil {
		return nil, asAppError(err, "cancel withdrawal")
	}
	return req, nil
}

// ApprovePaymentRequest moves a PENDING withdrawal to APPROVED.
func (s *PaymentService) ApprovePaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.life.transition(ctx, tx, req, domain.StatusApproved, change{actor: &adminID, notes: notes}); err != nil {
			return err
		}
		return s.life.syncWithdrawal(ctx, tx, req, nil)
	})
	if err != nil {
		return nil, asAppError(err, "approve payment request")
	}
	s.logger.InfoContext(ctx, "payment request approved", "payment_request_id", requestID, "admin_id", adminID)
	return req, nil
}

// RejectPaymentRequest closes a request as REJECTED. A withdrawal's hold is
// released.
func (s *PaymentService) RejectPaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, reason string) (*domain.PaymentRequest, error) {
	if reason == "" {
		return nil, domain.ErrValidation("rejection reason is required")
	}
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		return s.life.abandon(ctx, tx, req, domain.StatusRejected, change{actor: &adminID, notes: reason})
	})
	if err != nil {
		return nil, asAppError(err, "reject payment request")
	}
	s.logger.InfoContext(ctx, "payment request rejected",
		"payment_request_id", requestID, "admin_id", adminID, "reason", reason)
	return req, nil
}

// RejectWithdrawal is RejectPaymentRequest addressed by withdrawal id.
func (s *PaymentService) RejectWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID, reason string) (*domain.PaymentRequest, error) {
	if reason == "" {
		return nil, domain.ErrValidation("rejection reason is required")
	}
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockWithdrawalRequest(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		return s.life.abandon(ctx, tx, req, domain.StatusRejected, change{actor: &adminID, notes: reason})
	})
	if err != nil {
		return nil, asAppError(err, "reject withdrawal")
	}
	s.logger.InfoContext(ctx, "withdrawal rejected",
		"withdrawal_id", withdrawalID, "admin_id", adminID, "reason", reason)
	return req, nil
}

// CompletePaymentRequest finishes a request by hand. A deposit with a
// provider order is captured first; a provider error leaves the request
// untouched. A withdrawal must already be PROCESSING.
func (s *PaymentService) CompletePaymentRequest(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status == domain.StatusCompleted {
			return nil
		}
		c := change{actor: &adminID, notes: notes}
		if req.Type == domain.RequestDeposit && req.ProviderOrderID != nil {
			if !domain.CanTransition(req.Type, req.Status, domain.StatusCompleted) {
				return domain.ErrInvalidTransition(req.Status, domain.StatusCompleted)
			}
			handle, err := s.gateways.ValidateAvailability(ctx, req.GatewayName())
			if err != nil {
				return err
			}
			c.confirm = s.captureFn(handle.Client, req)
		}
		return s.life.complete(ctx, tx, req, c)
	})
	if err != nil {
		return nil, asAppError(err, "complete payment request")
	}
	s.logger.InfoContext(ctx, "payment request completed by admin", "payment_request_id", requestID, "admin_id", adminID)
	return req, nil
}

// ProcessWithdrawal sends an APPROVED withdrawal to its gateway and moves it
// to PROCESSING. A payout the provider reports as delivered is completed in
// the same call; otherwise the payout webhook completes it.
func (s *PaymentService) ProcessWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockWithdrawalRequest(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if req.Status != domain.StatusApproved {
			return domain.ErrInvalidTransition(req.Status, domain.StatusProcessing)
		}
		w, err := s.repos.Withdrawals.FindByID(ctx, tx, withdrawalID)
		if err != nil {
			return domain.ErrInternal("load withdrawal", err)
		}
		if w == nil {
			return domain.ErrNotFound("withdrawal", withdrawalID.String())
		}
		handle, err := s.gateways.ValidateAvailability(ctx, w.Gateway)
		if err != nil {
			return err
		}

		if err := s.life.transition(ctx, tx, req, domain.StatusProcessing, change{actor: &adminID, notes: "payout sent"}); err != nil {
			return err
		}
		res, err := handle.Client.Payout(ctx, provider.PayoutRequest{
			WithdrawalID: w.ID,
			Amount:       w.Amount,
			Currency:     w.Currency,
			Destination:  w.Destination,
			Description:  fmt.Sprintf("Withdrawal %s", w.ID),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "payout failed",
				"error", err, "gateway", w.Gateway, "withdrawal_id", w.ID)
			return domain.ErrProvider(w.Gateway, "payout", err)
		}

		ref := strPtr(res.Reference)
		req.ProviderPaymentID = ref
		if err := s.repos.Requests.SetProviderRefs(ctx, tx, req.ID, nil, ref, nil); err != nil {
			return domain.ErrInternal("store payout reference", err)
		}
		if req.PaymentID != nil {
			if err := s.repos.Payments.UpdateStatus(ctx, tx, *req.PaymentID, domain.PaymentProcessing, ref); err != nil {
				return domain.ErrInternal("update payment reference", err)
			}
		}
		if err := s.life.syncWithdrawal(ctx, tx, req, ref); err != nil {
			return err
		}
		if res.Completed {
			return s.life.complete(ctx, tx, req, change{actor: &adminID, notes: "payout delivered"})
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "process withdrawal")
	}
	s.logger.InfoContext(ctx, "withdrawal processed",
		"withdrawal_id", withdrawalID, "status", req.Status, "admin_id", adminID)
	return req, nil
}
