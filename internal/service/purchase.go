package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
	"github.com/rafflehub/platform/internal/provider"
)

// TicketPurchaseInput buys tickets for a competition, or universal tickets
// when CompetitionID is nil.
type TicketPurchaseInput struct {
	CompetitionID   *uuid.UUID `json:"competition_id,omitempty"`
	Quantity        int        `json:"quantity"`
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
	// UseWallet defaults to true.
	UseWallet *bool `json:"use_wallet,omitempty"`
}

// SubscriptionPurchaseInput buys one period of a subscription plan.
type SubscriptionPurchaseInput struct {
	PlanID          uuid.UUID  `json:"plan_id"`
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
	UseWallet       *bool      `json:"use_wallet,omitempty"`
}

// purchaseOrder is what settle needs to fund and fulfil one purchase.
type purchaseOrder struct {
	purchase        *domain.Purchase
	requestType     domain.RequestType
	paymentMethodID *uuid.UUID
	useWallet       bool
	description     string
	// prepare runs first inside the tx; it may lock rows and fill in the
	// purchase price.
	prepare func(ctx context.Context, tx pgx.Tx) error
	// fulfil runs after funding succeeds.
	fulfil func(ctx context.Context, tx pgx.Tx, res *domain.PurchaseResult) error
}

// PurchaseTickets funds a ticket buy from CREDIT, then CASH, then the
// user's payment method, and issues the tickets in the same transaction.
func (s *PaymentService) PurchaseTickets(ctx context.Context, userID uuid.UUID, in TicketPurchaseInput) (*domain.PurchaseResult, error) {
	if err := domain.ValidateQuantity(in.Quantity); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}

	p := &domain.Purchase{
		ID:              uuid.New(),
		UserID:          userID,
		Kind:            domain.PurchaseTicket,
		CompetitionID:   in.CompetitionID,
		Quantity:        in.Quantity,
		UnitPrice:       s.opts.UniversalTicketPrice,
		Currency:        s.opts.Currency,
		PaymentMethodID: in.PaymentMethodID,
		Status:          domain.PurchasePending,
	}
	var firstNumber int

	var order purchaseOrder
	order = purchaseOrder{
		purchase:        p,
		requestType:     domain.RequestTicket,
		paymentMethodID: in.PaymentMethodID,
		useWallet:       in.UseWallet == nil || *in.UseWallet,
		description:     fmt.Sprintf("%d universal tickets", in.Quantity),
		prepare: func(ctx context.Context, tx pgx.Tx) error {
			if in.CompetitionID == nil {
				if p.UnitPrice <= 0 {
					return domain.ErrValidation("universal tickets are not on sale")
				}
				p.TotalAmount = p.UnitPrice * int64(in.Quantity)
				return nil
			}
			comp, err := s.repos.Purchases.LockCompetition(ctx, tx, *in.CompetitionID)
			if err != nil {
				return domain.ErrInternal("lock competition", err)
			}
			if comp == nil {
				return domain.ErrNotFound("competition", in.CompetitionID.String())
			}
			if comp.Status != domain.CompetitionActive {
				return domain.ErrValidation("competition is not open for entries")
			}
			if comp.Remaining() < in.Quantity {
				return domain.ErrNotEnoughTickets(comp.Remaining())
			}
			p.UnitPrice = comp.TicketPrice
			p.Currency = comp.Currency
			p.TotalAmount = comp.TicketPrice * int64(in.Quantity)
			firstNumber = comp.SoldTickets + 1
			order.description = fmt.Sprintf("%d tickets: %s", in.Quantity, comp.Title)
			return nil
		},
		fulfil: func(ctx context.Context, tx pgx.Tx, res *domain.PurchaseResult) error {
			if in.CompetitionID == nil {
				first, err := s.repos.Purchases.ReserveUniversalNumbers(ctx, tx, in.Quantity)
				if err != nil {
					return domain.ErrInternal("reserve ticket numbers", err)
				}
				firstNumber = first
			}
			tickets, err := s.repos.Purchases.IssueTickets(ctx, tx, userID, in.CompetitionID, p.ID, firstNumber, in.Quantity)
			if err != nil {
				return domain.ErrInternal("issue tickets", err)
			}
			if in.CompetitionID != nil {
				if err := s.repos.Purchases.IncrementSold(ctx, tx, *in.CompetitionID, in.Quantity); err != nil {
					return domain.ErrNotEnoughTickets(0)
				}
			}
			res.Tickets = tickets
			return nil
		},
	}
	return s.settle(ctx, userID, &order)
}

// PurchaseSubscription buys one period of plan through the same funding
// path as tickets. A renewal before expiry extends the current period.
func (s *PaymentService) PurchaseSubscription(ctx context.Context, userID uuid.UUID, in SubscriptionPurchaseInput) (*domain.PurchaseResult, error) {
	if err := s.checkRate(ctx, userID); err != nil {
		return nil, err
	}
	plan, err := s.repos.Purchases.FindPlan(ctx, s.db, in.PlanID)
	if err != nil {
		return nil, domain.ErrInternal("load subscription plan", err)
	}
	if plan == nil || !plan.Active {
		return nil, domain.ErrNotFound("subscription plan", in.PlanID.String())
	}

	p := &domain.Purchase{
		ID:                 uuid.New(),
		UserID:             userID,
		Kind:               domain.PurchaseSubscription,
		SubscriptionPlanID: &plan.ID,
		Quantity:           1,
		UnitPrice:          plan.Price,
		TotalAmount:        plan.Price,
		Currency:           plan.Currency,
		PaymentMethodID:    in.PaymentMethodID,
		Status:             domain.PurchasePending,
	}

	order := purchaseOrder{
		purchase:        p,
		requestType:     domain.RequestSubscription,
		paymentMethodID: in.PaymentMethodID,
		useWallet:       in.UseWallet == nil || *in.UseWallet,
		description:     "Subscription: " + plan.Name,
		fulfil: func(ctx context.Context, tx pgx.Tx, res *domain.PurchaseResult) error {
			start := s.now().UTC()
			end, err := s.repos.Purchases.ActiveSubscriptionEnd(ctx, tx, userID, plan.ID)
			if err != nil {
				return domain.ErrInternal("load active subscription", err)
			}
			if end != nil && end.After(start) {
				start = *end
			}
			sub := &domain.UserSubscription{
				UserID:      userID,
				PlanID:      plan.ID,
				PurchaseID:  p.ID,
				PeriodStart: start,
				PeriodEnd:   start.Add(time.Duration(plan.IntervalDays) * 24 * time.Hour),
			}
			if err := s.repos.Purchases.CreateSubscription(ctx, tx, sub); err != nil {
				return domain.ErrInternal("create subscription", err)
			}
			res.Subscription = sub
			return nil
		},
	}
	return s.settle(ctx, userID, &order)
}

// settle runs one purchase atomically: wallet debits, the external charge
// for any remainder, fulfilment and bookkeeping. Any failure rolls back the
// wallet debits. A charge whose commit then fails is refunded.
func (s *PaymentService) settle(ctx context.Context, userID uuid.UUID, o *purchaseOrder) (*domain.PurchaseResult, error) {
	p := o.purchase
	res := &domain.PurchaseResult{Purchase: p}

	var (
		handle *gateway.Handle
		req    *domain.PaymentRequest
		charge *provider.ChargeResult
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if o.prepare != nil {
			if err := o.prepare(ctx, tx); err != nil {
				return err
			}
		}
		if err := s.ledger.EnsureWallets(ctx, tx, userID, p.Currency); err != nil {
			return domain.ErrInternal("ensure wallets", err)
		}
		consumed, err := s.ledger.ConsumeForPurchase(ctx, tx, userID, p.TotalAmount, o.useWallet, p.ID.String(), o.description)
		if err != nil {
			return err
		}
		p.CreditUsed = consumed.Plan.Credit
		p.CashUsed = consumed.Plan.Cash
		p.ExternalAmount = consumed.Plan.External

		txn := &domain.Transaction{
			Type:       domain.TxTypeFor(o.requestType),
			Amount:     p.TotalAmount,
			PurchaseID: &p.ID,
		}

		if p.ExternalAmount == 0 {
			if err := s.repos.Purchases.Create(ctx, tx, p); err != nil {
				return domain.ErrInternal("create purchase", err)
			}
			txn.ID = uuid.New()
			txn.UserID = userID
			txn.Currency = p.Currency
			txn.Status = domain.TxCompleted
			txn.Description = o.description
			if err := s.repos.Transactions.Create(ctx, tx, txn); err != nil {
				return domain.ErrInternal("create transaction", err)
			}
		} else {
			method, err := s.purchaseMethod(ctx, tx, userID, o.paymentMethodID)
			if err != nil {
				return err
			}
			handle, err = s.gateways.ValidateAvailability(ctx, method.Gateway)
			if err != nil {
				return err
			}
			gw := method.Gateway
			fee, net := handle.Config.Fees.Compute(p.ExternalAmount)
			req = &domain.PaymentRequest{
				ID:              uuid.New(),
				UserID:          userID,
				Type:            o.requestType,
				Gateway:         &gw,
				Amount:          p.ExternalAmount,
				Currency:        p.Currency,
				FeeAmount:       fee,
				NetAmount:       net,
				Status:          domain.StatusPending,
				WalletType:      domain.WalletCash,
				PurchaseID:      &p.ID,
				PaymentMethodID: &method.ID,
			}
			p.Gateway = &gw
			p.PaymentMethodID = &method.ID
			p.PaymentRequestID = &req.ID
			if err := s.repos.Purchases.Create(ctx, tx, p); err != nil {
				return domain.ErrInternal("create purchase", err)
			}
			txn.FeeAmount = fee
			if err := s.openRequest(ctx, tx, req, o.description, txn); err != nil {
				return err
			}

			user, err := s.loadUser(ctx, userID)
			if err != nil {
				return err
			}
			charge, err = handle.Client.CreateCharge(ctx, provider.ChargeRequest{
				RequestID:     req.ID,
				Amount:        p.ExternalAmount,
				Currency:      p.Currency,
				Description:   o.description,
				CustomerEmail: user.Email,
				PaymentMethod: method,
			})
			if err != nil {
				s.logger.ErrorContext(ctx, "purchase charge failed",
					"error", err, "gateway", gw, "purchase_id", p.ID, "user_id", userID)
				return domain.ErrProvider(gw, "charge", err)
			}
			if charge.Status != provider.ChargeSucceeded {
				return domain.ErrProvider(gw, "charge", fmt.Errorf("charge status %s", charge.Status))
			}
			p.GatewayReference = strPtr(charge.PaymentID)
			if err := s.repos.Requests.SetProviderRefs(ctx, tx, req.ID, strPtr(charge.OrderID), p.GatewayReference, nil); err != nil {
				return domain.ErrInternal("store provider refs", err)
			}
			if err := s.life.complete(ctx, tx, req, change{providerPaymentID: p.GatewayReference, notes: "charged saved payment method"}); err != nil {
				return err
			}
		}

		if err := o.fulfil(ctx, tx, res); err != nil {
			return err
		}
		p.Status = domain.PurchaseCompleted
		if err := s.repos.Purchases.UpdateStatus(ctx, tx, p.ID, domain.PurchaseCompleted, p.GatewayReference); err != nil {
			return domain.ErrInternal("complete purchase", err)
		}
		if err := s.repos.Outbox.Insert(ctx, tx, domain.NewPurchaseCompletedEvent(p, len(res.Tickets))); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}
		return nil
	})
	if err != nil {
		if charge != nil && charge.Status == provider.ChargeSucceeded {
			s.compensate(ctx, handle.Client, req, charge.PaymentID, p.ExternalAmount, "purchase commit failed")
		}
		return nil, asAppError(err, "purchase")
	}

	metrics.GetOrCreateCounter(`purchases_total{kind="` + string(p.Kind) + `"}`).Inc()
	s.logger.InfoContext(ctx, "purchase completed",
		"purchase_id", p.ID, "kind", p.Kind, "total", p.TotalAmount,
		"credit_used", p.CreditUsed, "cash_used", p.CashUsed, "external", p.ExternalAmount,
		"user_id", userID)
	return res, nil
}

// purchaseMethod resolves the instrument charged for an external remainder:
// the one given, else the user's default.
func (s *PaymentService) purchaseMethod(ctx context.Context, tx pgx.Tx, userID uuid.UUID, id *uuid.UUID) (*domain.PaymentMethod, error) {
	if id != nil {
		return s.paymentMethod(ctx, userID, id, "")
	}
	pm, err := s.repos.Users.DefaultPaymentMethod(ctx, tx, userID)
	if err != nil {
		return nil, domain.ErrInternal("load default payment method", err)
	}
	if pm == nil {
		return nil, domain.ErrValidation("insufficient wallet balance and no payment method on file")
	}
	return pm, nil
}
