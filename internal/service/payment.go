package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/guard"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/policy"
	"github.com/rafflehub/platform/internal/provider"
)

// PaymentOptions carry the deployment settings the orchestrator needs.
type PaymentOptions struct {
	Currency             string
	UniversalTicketPrice int64
	// PublicBaseURL is where providers send the user back after checkout.
	PublicBaseURL string
}

// PaymentService drives deposits, withdrawals and purchases through their
// request lifecycle.
type PaymentService struct {
	db       DB
	repos    Repositories
	gateways Gateways
	ledger   *ledger.Engine
	life     *lifecycle
	limiter  guard.Limiter
	opts     PaymentOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewPaymentService creates a PaymentService. limiter may be nil.
func NewPaymentService(
	db DB,
	repos Repositories,
	gateways Gateways,
	engine *ledger.Engine,
	limiter guard.Limiter,
	opts PaymentOptions,
	logger *slog.Logger,
) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = domain.DefaultCurrency
	}
	return &PaymentService{
		db:       db,
		repos:    repos,
		gateways: gateways,
		ledger:   engine,
		life:     &lifecycle{repos: repos, ledger: engine, logger: logger},
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// DepositInput is a user's request to fund a wallet through a gateway.
type DepositInput struct {
	Amount          int64              `json:"amount"`
	Currency        string             `json:"currency"`
	Gateway         domain.GatewayKind `json:"gateway"`
	WalletType      domain.WalletType  `json:"wallet_type"`
	PaymentMethodID *uuid.UUID         `json:"payment_method_id,omitempty"`
}

// DepositResult is what the client needs to finish checkout.
type DepositResult struct {
	PaymentRequestID uuid.UUID            `json:"payment_request_id"`
	PaymentID        uuid.UUID            `json:"payment_id"`
	Status           domain.RequestStatus `json:"status"`
	Amount           int64                `json:"amount"`
	FeeAmount        int64                `json:"fee_amount"`
	NetAmount        int64                `json:"net_amount"`
	CheckoutURL      *string              `json:"checkout_url,omitempty"`
	ClientSecret     string               `json:"client_secret,omitempty"`
}

// CreateDeposit opens a PENDING deposit and asks the gateway for a checkout
// handle. A saved payment method charged successfully completes the deposit
// immediately. A provider error leaves nothing behind.
func (s *PaymentService) CreateDeposit(ctx context.Context, userID uuid.UUID, in DepositInput) (*DepositResult, error) {
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}
	return s.createDeposit(ctx, userID, in, nil)
}

// RetryDeposit opens a new deposit copying a previous one that did not
// complete. The original request is left untouched.
func (s *PaymentService) RetryDeposit(ctx context.Context, userID, requestID uuid.UUID) (*DepositResult, error) {
	orig, err := s.repos.Requests.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, domain.ErrInternal("load payment request", err)
	}
	if orig == nil || orig.UserID != userID {
		return nil, domain.ErrNotFound("payment request", requestID.String())
	}
	if orig.Type != domain.RequestDeposit {
		return nil, domain.ErrValidation("only deposits can be retried")
	}
	if orig.Status == domain.StatusCompleted {
		return nil, domain.ErrConflict("deposit already completed")
	}
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}

	in := DepositInput{
		Amount:          orig.Amount,
		Currency:        orig.Currency,
		Gateway:         orig.GatewayName(),
		WalletType:      orig.WalletType,
		PaymentMethodID: orig.PaymentMethodID,
	}
	return s.createDeposit(ctx, userID, in, &orig.ID)
}

func (s *PaymentService) createDeposit(ctx context.Context, userID uuid.UUID, in DepositInput, retryOf *uuid.UUID) (*DepositResult, error) {
	if err := domain.ValidatePositiveAmount(in.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	currency, err := s.currency(in.Currency)
	if err != nil {
		return nil, err
	}
	walletType, err := domain.ParseWalletType(string(in.WalletType))
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	handle, err := s.gateways.ValidateAvailability(ctx, in.Gateway)
	if err != nil {
		return nil, err
	}
	route := policy.EvaluateGatewayRoute(handle.Config, policy.LimitDeposit, in.Amount, user.Country, nil)
	if !route.Allowed {
		return nil, domain.ErrValidation(route.Reason)
	}
	method, err := s.paymentMethod(ctx, userID, in.PaymentMethodID, in.Gateway)
	if err != nil {
		return nil, err
	}

	fee, net := handle.Config.Fees.Compute(in.Amount)
	gw := in.Gateway
	req := &domain.PaymentRequest{
		ID:              uuid.New(),
		UserID:          userID,
		Type:            domain.RequestDeposit,
		Gateway:         &gw,
		Amount:          in.Amount,
		Currency:        currency,
		FeeAmount:       fee,
		NetAmount:       net,
		Status:          domain.StatusPending,
		WalletType:      walletType,
		PaymentMethodID: in.PaymentMethodID,
		RetryOf:         retryOf,
	}

	var charge *provider.ChargeResult
	var declined bool
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		limits, err := s.repos.Limits.LockForUpdate(ctx, tx, userID, policy.DefaultTransactionLimits(userID))
		if err != nil {
			return domain.ErrInternal("load transaction limits", err)
		}
		if err := policy.EvaluateTransactionLimits(*limits, policy.LimitDeposit, in.Amount, limits.DailyDepositUsed).Err(); err != nil {
			return err
		}
		if err := s.ledger.EnsureWallets(ctx, tx, userID, currency); err != nil {
			return domain.ErrInternal("ensure wallets", err)
		}
		if err := s.openRequest(ctx, tx, req, "Deposit via "+string(gw), nil); err != nil {
			return err
		}

		charge, err = handle.Client.CreateCharge(ctx, provider.ChargeRequest{
			RequestID:     req.ID,
			Amount:        req.Amount,
			Currency:      currency,
			Description:   "Wallet deposit",
			CustomerEmail: user.Email,
			PaymentMethod: method,
			ReturnURL:     s.returnURL("deposit/success", req.ID),
			CancelURL:     s.returnURL("deposit/cancel", req.ID),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "deposit charge failed",
				"error", err, "gateway", gw, "payment_request_id", req.ID, "user_id", userID)
			return domain.ErrProvider(gw, "create charge", err)
		}

		req.ProviderOrderID = strPtr(charge.OrderID)
		req.CheckoutURL = strPtr(charge.CheckoutURL)
		if err := s.repos.Requests.SetProviderRefs(ctx, tx, req.ID, req.ProviderOrderID, strPtr(charge.PaymentID), req.CheckoutURL); err != nil {
			return domain.ErrInternal("store provider refs", err)
		}

		switch charge.Status {
		case provider.ChargeSucceeded:
			return s.life.complete(ctx, tx, req, change{providerPaymentID: strPtr(charge.PaymentID), notes: "charged saved payment method"})
		case provider.ChargeFailed:
			declined = true
			return s.life.abandon(ctx, tx, req, domain.StatusFailed, change{notes: "charge declined"})
		}
		return nil
	})
	if err != nil {
		if charge != nil && charge.Status == provider.ChargeSucceeded {
			s.compensate(ctx, handle.Client, req, charge.PaymentID, req.Amount, "deposit commit failed")
		}
		return nil, asAppError(err, "create deposit")
	}
	if declined {
		return nil, domain.ErrProvider(gw, "charge", errors.New("payment declined"))
	}

	s.logger.InfoContext(ctx, "deposit created",
		"payment_request_id", req.ID, "gateway", gw, "amount", req.Amount,
		"fee", fee, "status", req.Status, "user_id", userID)

	return &DepositResult{
		PaymentRequestID: req.ID,
		PaymentID:        *req.PaymentID,
		Status:           req.Status,
		Amount:           req.Amount,
		FeeAmount:        fee,
		NetAmount:        net,
		CheckoutURL:      req.CheckoutURL,
		ClientSecret:     charge.ClientSecret,
	}, nil
}

// CaptureDeposit captures an order the user approved at the provider and
// completes the deposit. Capturing a completed deposit is a no-op.
func (s *PaymentService) CaptureDeposit(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockOwnRequest(ctx, tx, userID, requestID)
		if err != nil {
			return err
		}
		if req.Type != domain.RequestDeposit {
			return domain.ErrValidation("only deposits can be captured")
		}
		if req.Status == domain.StatusCompleted {
			return nil
		}
		if req.Status != domain.StatusPending {
			return domain.ErrInvalidTransition(req.Status, domain.StatusCompleted)
		}
		if req.ProviderOrderID == nil {
			return domain.ErrValidation("deposit has no provider order to capture")
		}
		handle, err := s.gateways.ValidateAvailability(ctx, req.GatewayName())
		if err != nil {
			return err
		}
		return s.life.complete(ctx, tx, req, change{
			notes:   "captured by user",
			confirm: s.captureFn(handle.Client, req),
		})
	})
	if err != nil {
		return nil, asAppError(err, "capture deposit")
	}
	return req, nil
}

// CancelDeposit abandons a PENDING deposit. No money has moved.
func (s *PaymentService) CancelDeposit(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		req, err = s.life.lockOwnRequest(ctx, tx, userID, requestID)
		if err != nil {
			return err
		}
		if req.Type != domain.RequestDeposit {
			return domain.ErrValidation("not a deposit")
		}
		return s.life.abandon(ctx, tx, req, domain.StatusCancelled, change{notes: "cancelled by user"})
	})
	if err != nil {
		return nil, asAppError(err, "cancel deposit")
	}
	return req, nil
}

// GetPaymentRequest returns one of the user's requests.
func (s *PaymentService) GetPaymentRequest(ctx context.Context, userID, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	req, err := s.repos.Requests.FindByID(ctx, s.db, requestID)
	if err != nil {
		return nil, domain.ErrInternal("load payment request", err)
	}
	if req == nil || req.UserID != userID {
		return nil, domain.ErrNotFound("payment request", requestID.String())
	}
	return req, nil
}

// ListUserPaymentRequests returns the user's requests, newest first.
func (s *PaymentService) ListUserPaymentRequests(ctx context.Context, userID uuid.UUID, f domain.RequestFilter) ([]domain.PaymentRequest, error) {
	reqs, err := s.repos.Requests.ListByUser(ctx, s.db, userID, f)
	if err != nil {
		return nil, domain.ErrInternal("list payment requests", err)
	}
	return reqs, nil
}

// ExpireStaleDeposits cancels PENDING deposits created before now-maxAge.
// Returns how many were cancelled.
func (s *PaymentService) ExpireStaleDeposits(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.repos.Requests.ListStale(ctx, s.db, domain.RequestDeposit, s.now().Add(-maxAge), 200)
	if err != nil {
		return 0, domain.ErrInternal("list stale deposits", err)
	}

	expired := 0
	for _, id := range ids {
		err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			req, err := s.life.lockRequest(ctx, tx, id)
			if err != nil {
				return err
			}
			// Completed by a webhook since the scan.
			if req.Status != domain.StatusPending {
				return nil
			}
			expired++
			return s.life.abandon(ctx, tx, req, domain.StatusCancelled, change{notes: "checkout expired"})
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "expire deposit failed", "error", err, "payment_request_id", id)
		}
	}
	return expired, nil
}

// ResetDailyWithdrawalUsage zeroes daily usage counters last reset before
// the start of the current UTC day.
func (s *PaymentService) ResetDailyWithdrawalUsage(ctx context.Context) (int64, error) {
	startOfDay := s.now().UTC().Truncate(24 * time.Hour)
	n, err := s.repos.Limits.ResetDailyUsage(ctx, s.db, startOfDay)
	if err != nil {
		return 0, domain.ErrInternal("reset daily usage", err)
	}
	return n, nil
}

// openRequest inserts a PENDING request with its payment and user-visible
// transaction, plus the created outbox event.
func (s *PaymentService) openRequest(ctx context.Context, tx pgx.Tx, req *domain.PaymentRequest, description string, txn *domain.Transaction) error {
	paymentID := uuid.New()
	req.PaymentID = &paymentID
	if err := s.repos.Requests.Create(ctx, tx, req); err != nil {
		return domain.ErrInternal("create payment request", err)
	}

	payment := &domain.Payment{
		ID:        paymentID,
		UserID:    req.UserID,
		RequestID: req.ID,
		Type:      req.Type,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    domain.PaymentPending,
		Gateway:   req.Gateway,
	}
	if err := s.repos.Payments.Create(ctx, tx, payment); err != nil {
		return domain.ErrInternal("create payment", err)
	}

	if txn == nil {
		txn = &domain.Transaction{
			Type:      domain.TxTypeFor(req.Type),
			Amount:    req.Amount,
			FeeAmount: req.FeeAmount,
		}
	}
	txn.ID = uuid.New()
	txn.UserID = req.UserID
	txn.Currency = req.Currency
	txn.Status = domain.TxPending
	txn.Gateway = req.Gateway
	txn.PaymentRequestID = &req.ID
	txn.WithdrawalID = req.WithdrawalID
	txn.Description = description
	if err := s.repos.Transactions.Create(ctx, tx, txn); err != nil {
		return domain.ErrInternal("create transaction", err)
	}

	if err := s.repos.Outbox.Insert(ctx, tx, domain.NewRequestCreatedEvent(req)); err != nil {
		return domain.ErrInternal("insert outbox event", err)
	}
	return nil
}

// captureFn returns a confirm hook that captures req's provider order.
func (s *PaymentService) captureFn(client provider.Client, req *domain.PaymentRequest) func(context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		res, err := client.Capture(ctx, *req.ProviderOrderID)
		if err != nil {
			s.logger.ErrorContext(ctx, "capture failed",
				"error", err, "gateway", req.GatewayName(), "payment_request_id", req.ID)
			return nil, domain.ErrProvider(req.GatewayName(), "capture", err)
		}
		if !res.Succeeded {
			return nil, domain.ErrProvider(req.GatewayName(), "capture", fmt.Errorf("capture status %s", res.Status))
		}
		return strPtr(res.PaymentID), nil
	}
}

// compensate refunds a charge whose local commit failed. Failures are
// logged for manual reconciliation.
func (s *PaymentService) compensate(ctx context.Context, client provider.Client, req *domain.PaymentRequest, reference string, amount int64, reason string) {
	res, err := client.Refund(context.WithoutCancel(ctx), provider.RefundRequest{
		RequestID: req.ID,
		Reference: reference,
		Amount:    amount,
		Currency:  req.Currency,
		Reason:    reason,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "compensating refund failed; manual reconciliation required",
			"error", err, "gateway", req.GatewayName(), "payment_request_id", req.ID,
			"reference", reference, "amount", amount)
		return
	}
	s.logger.WarnContext(ctx, "compensating refund issued",
		"gateway", req.GatewayName(), "payment_request_id", req.ID,
		"refund_id", res.RefundID, "amount", amount, "reason", reason)
}

func (s *PaymentService) checkRate(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	if res := s.limiter.Check(ctx, "payments:"+userID.String()); !res.Allowed {
		return domain.ErrRateLimited(res.Reason)
	}
	return nil
}

func (s *PaymentService) currency(c string) (string, error) {
	if c == "" {
		return s.opts.Currency, nil
	}
	c = strings.ToUpper(c)
	if err := domain.ValidateCurrency(c); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	return c, nil
}

func (s *PaymentService) loadUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.repos.Users.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("load user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// paymentMethod loads id and checks it belongs to userID and gateway. A nil
// id returns (nil, nil).
func (s *PaymentService) paymentMethod(ctx context.Context, userID uuid.UUID, id *uuid.UUID, gw domain.GatewayKind) (*domain.PaymentMethod, error) {
	if id == nil {
		return nil, nil
	}
	pm, err := s.repos.Users.FindPaymentMethod(ctx, s.db, *id)
	if err != nil {
		return nil, domain.ErrInternal("load payment method", err)
	}
	if pm == nil || pm.UserID != userID {
		return nil, domain.ErrNotFound("payment method", id.String())
	}
	if gw != "" && pm.Gateway != gw {
		return nil, domain.ErrValidation(fmt.Sprintf("payment method belongs to %s, not %s", pm.Gateway, gw))
	}
	return pm, nil
}

func (s *PaymentService) returnURL(path string, id uuid.UUID) string {
	base := strings.TrimSuffix(s.opts.PublicBaseURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/payments/%s?request=%s", base, path, id)
}

// asAppError passes AppErrors through and wraps anything else as internal.
func asAppError(err error, op string) error {
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrInternal(op, err)
}
