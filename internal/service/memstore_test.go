package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/repository"
)

// data is every table the services touch. Rows are stored by value so a
// shallow clone is a snapshot.
type data struct {
	users         map[uuid.UUID]domain.User
	methods       map[uuid.UUID]domain.PaymentMethod
	wallets       map[uuid.UUID]domain.Wallet
	entries       []domain.WalletEntry
	requests      map[uuid.UUID]domain.PaymentRequest
	events        []domain.PaymentRequestEvent
	payments      map[uuid.UUID]domain.Payment
	txns          map[uuid.UUID]domain.Transaction
	withdrawals   map[uuid.UUID]domain.Withdrawal
	purchases     map[uuid.UUID]domain.Purchase
	competitions  map[uuid.UUID]domain.Competition
	tickets       []domain.Ticket
	plans         map[uuid.UUID]domain.SubscriptionPlan
	subs          []domain.UserSubscription
	webhooks      map[string]domain.WebhookLog
	refunds       []domain.Refund
	limits        map[uuid.UUID]domain.TransactionLimits
	outbox        []domain.OutboxDraft
	configs       map[domain.GatewayKind]domain.GatewayConfig
	universalLast int
}

func (d data) clone() data {
	d.users = maps.Clone(d.users)
	d.methods = maps.Clone(d.methods)
	d.wallets = maps.Clone(d.wallets)
	d.entries = slices.Clone(d.entries)
	d.requests = maps.Clone(d.requests)
	d.events = slices.Clone(d.events)
	d.payments = maps.Clone(d.payments)
	d.txns = maps.Clone(d.txns)
	d.withdrawals = maps.Clone(d.withdrawals)
	d.purchases = maps.Clone(d.purchases)
	d.competitions = maps.Clone(d.competitions)
	d.tickets = slices.Clone(d.tickets)
	d.plans = maps.Clone(d.plans)
	d.subs = slices.Clone(d.subs)
	d.webhooks = maps.Clone(d.webhooks)
	d.refunds = slices.Clone(d.refunds)
	d.limits = maps.Clone(d.limits)
	d.outbox = slices.Clone(d.outbox)
	d.configs = maps.Clone(d.configs)
	return d
}

// memStore is an in-memory DB. Transactions are serialized and roll back
// by restoring the snapshot taken at Begin; the repository fakes ignore
// their db argument and read the store directly.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    data

	failCommit bool
	commits    int
	rollbacks  int
}

func newMemStore() *memStore {
	return &memStore{d: data{
		users:        map[uuid.UUID]domain.User{},
		methods:      map[uuid.UUID]domain.PaymentMethod{},
		wallets:      map[uuid.UUID]domain.Wallet{},
		requests:     map[uuid.UUID]domain.PaymentRequest{},
		payments:     map[uuid.UUID]domain.Payment{},
		txns:         map[uuid.UUID]domain.Transaction{},
		withdrawals:  map[uuid.UUID]domain.Withdrawal{},
		purchases:    map[uuid.UUID]domain.Purchase{},
		competitions: map[uuid.UUID]domain.Competition{},
		plans:        map[uuid.UUID]domain.SubscriptionPlan{},
		webhooks:     map[string]domain.WebhookLog{},
		limits:       map[uuid.UUID]domain.TransactionLimits{},
		configs:      map[domain.GatewayKind]domain.GatewayConfig{},
	}}
}

func (m *memStore) with(fn func(d *data)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.d)
}

func (m *memStore) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	panic("memStore: raw SQL not supported")
}

func (m *memStore) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("memStore: raw SQL not supported")
}

func (m *memStore) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("memStore: raw SQL not supported")
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) {
	m.txMu.Lock()
	m.mu.Lock()
	snap := m.d.clone()
	m.mu.Unlock()
	return &memTx{m: m, snap: snap}, nil
}

// memTx embeds a nil pgx.Tx; only Commit and Rollback are used.
type memTx struct {
	pgx.Tx
	m    *memStore
	snap data
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.m.failCommit {
		t.m.failCommit = false
		_ = t.Rollback(ctx)
		return errors.New("commit: connection reset")
	}
	t.done = true
	t.m.commits++
	t.m.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.m.mu.Lock()
	t.m.d = t.snap
	t.m.rollbacks++
	t.m.mu.Unlock()
	t.m.txMu.Unlock()
	return nil
}

func (m *memStore) repositories() Repositories {
	return Repositories{
		Users:        memUsers{m},
		Requests:     memRequests{m},
		Payments:     memPayments{m},
		Transactions: memTransactions{m},
		Withdrawals:  memWithdrawals{m},
		Purchases:    memPurchases{m},
		Webhooks:     memWebhooks{m},
		Refunds:      memRefunds{m},
		Limits:       memLimits{m},
		Outbox:       memOutbox{m},
		Reports:      memReports{m},
		Gateways:     memConfigs{m},
	}
}

func setIf[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

// --- wallets ---

type memWallets struct{ m *memStore }

func (r memWallets) find(d *data, userID uuid.UUID, t domain.WalletType) (domain.Wallet, bool) {
	for _, w := range d.wallets {
		if w.UserID == userID && w.Type == t {
			return w, true
		}
	}
	return domain.Wallet{}, false
}

func (r memWallets) Ensure(_ context.Context, _ repository.DBTX, userID uuid.UUID, currency string) error {
	r.m.with(func(d *data) {
		for _, t := range []domain.WalletType{domain.WalletCash, domain.WalletCredit} {
			if _, ok := r.find(d, userID, t); !ok {
				id := uuid.New()
				d.wallets[id] = domain.Wallet{ID: id, UserID: userID, Type: t, Currency: currency}
			}
		}
	})
	return nil
}

func (r memWallets) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID, t domain.WalletType) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.m.with(func(d *data) {
		if w, ok := r.find(d, userID, t); ok {
			out = &w
		}
	})
	return out, nil
}

func (r memWallets) UpdateBalance(_ context.Context, _ pgx.Tx, walletID uuid.UUID, delta int64) (*domain.Wallet, error) {
	var out *domain.Wallet
	var err error
	r.m.with(func(d *data) {
		w, ok := d.wallets[walletID]
		if !ok {
			err = fmt.Errorf("wallet %s not found", walletID)
			return
		}
		w.Balance += delta
		d.wallets[walletID] = w
		out = &w
	})
	return out, err
}

func (r memWallets) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.Wallet, error) {
	var out []domain.Wallet
	r.m.with(func(d *data) {
		for _, t := range []domain.WalletType{domain.WalletCash, domain.WalletCredit} {
			if w, ok := r.find(d, userID, t); ok {
				out = append(out, w)
			}
		}
	})
	return out, nil
}

func (r memWallets) InsertEntry(_ context.Context, _ repository.DBTX, e *domain.WalletEntry) error {
	r.m.with(func(d *data) { d.entries = append(d.entries, *e) })
	return nil
}

func (r memWallets) ListEntries(_ context.Context, _ repository.DBTX, walletID uuid.UUID) ([]domain.WalletEntry, error) {
	var out []domain.WalletEntry
	r.m.with(func(d *data) {
		for _, e := range d.entries {
			if e.WalletID == walletID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (r memWallets) ListEntriesByReference(_ context.Context, _ repository.DBTX, ref string) ([]domain.WalletEntry, error) {
	var out []domain.WalletEntry
	r.m.with(func(d *data) {
		for _, e := range d.entries {
			if e.Reference == ref {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

// --- payment requests ---

type memRequests struct{ m *memStore }

func (r memRequests) Create(_ context.Context, _ repository.DBTX, req *domain.PaymentRequest) error {
	r.m.with(func(d *data) {
		req.CreatedAt = time.Now()
		req.UpdatedAt = req.CreatedAt
		d.requests[req.ID] = *req
	})
	return nil
}

func (r memRequests) get(id uuid.UUID) *domain.PaymentRequest {
	var out *domain.PaymentRequest
	r.m.with(func(d *data) {
		if req, ok := d.requests[id]; ok {
			out = &req
		}
	})
	return out
}

func (r memRequests) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.PaymentRequest, error) {
	return r.get(id), nil
}

func (r memRequests) LockForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.PaymentRequest, error) {
	return r.get(id), nil
}

func (r memRequests) LockByProviderRef(_ context.Context, _ pgx.Tx, gw domain.GatewayKind, ref string) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.m.with(func(d *data) {
		for _, req := range d.requests {
			if req.GatewayName() != gw {
				continue
			}
			if (req.ProviderOrderID != nil && *req.ProviderOrderID == ref) ||
				(req.ProviderPaymentID != nil && *req.ProviderPaymentID == ref) {
				out = &req
				return
			}
		}
	})
	return out, nil
}

func (r memRequests) LockByWithdrawal(_ context.Context, _ pgx.Tx, withdrawalID uuid.UUID) (*domain.PaymentRequest, error) {
	var out *domain.PaymentRequest
	r.m.with(func(d *data) {
		for _, req := range d.requests {
			if req.WithdrawalID != nil && *req.WithdrawalID == withdrawalID {
				out = &req
				return
			}
		}
	})
	return out, nil
}

func (r memRequests) UpdateStatus(_ context.Context, _ repository.DBTX, req *domain.PaymentRequest) error {
	var err error
	r.m.with(func(d *data) {
		row, ok := d.requests[req.ID]
		if !ok {
			err = fmt.Errorf("payment request %s not found", req.ID)
			return
		}
		row.Status = req.Status
		setIf(&row.AdminID, req.AdminID)
		setIf(&row.AdminNotes, req.AdminNotes)
		setIf(&row.ProviderPaymentID, req.ProviderPaymentID)
		row.UpdatedAt = time.Now()
		if req.Status == domain.StatusCompleted {
			now := row.UpdatedAt
			row.CompletedAt = &now
		}
		d.requests[req.ID] = row
	})
	return err
}

func (r memRequests) SetProviderRefs(_ context.Context, _ repository.DBTX, id uuid.UUID, orderID, paymentID, checkoutURL *string) error {
	r.m.with(func(d *data) {
		row := d.requests[id]
		setIf(&row.ProviderOrderID, orderID)
		setIf(&row.ProviderPaymentID, paymentID)
		setIf(&row.CheckoutURL, checkoutURL)
		d.requests[id] = row
	})
	return nil
}

func (r memRequests) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID, f domain.RequestFilter) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	r.m.with(func(d *data) {
		for _, req := range d.requests {
			if req.UserID != userID || (f.Type != "" && req.Type != f.Type) || (f.Status != "" && req.Status != f.Status) {
				continue
			}
			out = append(out, req)
		}
	})
	slices.SortFunc(out, func(a, b domain.PaymentRequest) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r memRequests) ListStale(_ context.Context, _ repository.DBTX, t domain.RequestType, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	r.m.with(func(d *data) {
		for _, req := range d.requests {
			if req.Type == t && req.Status == domain.StatusPending && req.CreatedAt.Before(olderThan) && len(out) < limit {
				out = append(out, req.ID)
			}
		}
	})
	return out, nil
}

func (r memRequests) InsertEvent(_ context.Context, _ repository.DBTX, ev *domain.PaymentRequestEvent) error {
	r.m.with(func(d *data) { d.events = append(d.events, *ev) })
	return nil
}

// --- payments ---

type memPayments struct{ m *memStore }

func (r memPayments) Create(_ context.Context, _ repository.DBTX, p *domain.Payment) error {
	r.m.with(func(d *data) { d.payments[p.ID] = *p })
	return nil
}

func (r memPayments) FindByRequestID(_ context.Context, _ repository.DBTX, requestID uuid.UUID) (*domain.Payment, error) {
	var out *domain.Payment
	r.m.with(func(d *data) {
		for _, p := range d.payments {
			if p.RequestID == requestID {
				out = &p
				return
			}
		}
	})
	return out, nil
}

func (r memPayments) LockForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	var out *domain.Payment
	r.m.with(func(d *data) {
		if p, ok := d.payments[id]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r memPayments) UpdateStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, status domain.PaymentStatus, ref *string) error {
	r.m.with(func(d *data) {
		p := d.payments[id]
		p.Status = status
		setIf(&p.GatewayReference, ref)
		d.payments[id] = p
	})
	return nil
}

func (r memPayments) AddRefunded(_ context.Context, _ repository.DBTX, id uuid.UUID, amount int64, status domain.PaymentStatus) error {
	var err error
	r.m.with(func(d *data) {
		p := d.payments[id]
		if p.RefundedAmount+amount > p.Amount {
			err = errors.New("refund exceeds payment amount")
			return
		}
		p.RefundedAmount += amount
		p.Status = status
		d.payments[id] = p
	})
	return err
}

// --- transactions ---

type memTransactions struct{ m *memStore }

func (r memTransactions) Create(_ context.Context, _ repository.DBTX, t *domain.Transaction) error {
	r.m.with(func(d *data) {
		t.CreatedAt = time.Now()
		d.txns[t.ID] = *t
	})
	return nil
}

func (r memTransactions) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	r.m.with(func(d *data) {
		if t, ok := d.txns[id]; ok {
			out = &t
		}
	})
	return out, nil
}

func (r memTransactions) LockForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	return r.FindByID(ctx, nil, id)
}

func (r memTransactions) UpdateStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, status domain.TransactionStatus) error {
	r.m.with(func(d *data) {
		t := d.txns[id]
		t.Status = status
		d.txns[id] = t
	})
	return nil
}

func (r memTransactions) UpdateStatusByRequest(_ context.Context, _ repository.DBTX, requestID uuid.UUID, status domain.TransactionStatus) error {
	r.m.with(func(d *data) {
		for id, t := range d.txns {
			if t.PaymentRequestID != nil && *t.PaymentRequestID == requestID && t.Status == domain.TxPending {
				t.Status = status
				d.txns[id] = t
			}
		}
	})
	return nil
}

func (r memTransactions) List(_ context.Context, _ repository.DBTX, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	r.m.with(func(d *data) {
		for _, t := range d.txns {
			if (f.UserID != nil && t.UserID != *f.UserID) || (f.Type != "" && t.Type != f.Type) || (f.Status != "" && t.Status != f.Status) {
				continue
			}
			out = append(out, t)
		}
	})
	slices.SortFunc(out, func(a, b domain.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// --- withdrawals ---

type memWithdrawals struct{ m *memStore }

func (r memWithdrawals) Create(_ context.Context, _ repository.DBTX, w *domain.Withdrawal) error {
	r.m.with(func(d *data) { d.withdrawals[w.ID] = *w })
	return nil
}

func (r memWithdrawals) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Withdrawal, error) {
	var out *domain.Withdrawal
	r.m.with(func(d *data) {
		if w, ok := d.withdrawals[id]; ok {
			out = &w
		}
	})
	return out, nil
}

func (r memWithdrawals) UpdateStatus(_ context.Context, _ repository.DBTX, w *domain.Withdrawal) error {
	r.m.with(func(d *data) {
		row := d.withdrawals[w.ID]
		row.Status = w.Status
		setIf(&row.GatewayReference, w.GatewayReference)
		setIf(&row.AdminID, w.AdminID)
		setIf(&row.AdminNotes, w.AdminNotes)
		d.withdrawals[w.ID] = row
	})
	return nil
}

// --- purchases ---

type memPurchases struct{ m *memStore }

func (r memPurchases) Create(_ context.Context, _ repository.DBTX, p *domain.Purchase) error {
	var err error
	r.m.with(func(d *data) {
		if p.CreditUsed+p.CashUsed+p.ExternalAmount != p.TotalAmount {
			err = errors.New("purchases_funding_check violated")
			return
		}
		d.purchases[p.ID] = *p
	})
	return err
}

func (r memPurchases) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Purchase, error) {
	var out *domain.Purchase
	r.m.with(func(d *data) {
		if p, ok := d.purchases[id]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r memPurchases) UpdateStatus(_ context.Context, _ repository.DBTX, id uuid.UUID, status domain.PurchaseStatus, ref *string) error {
	r.m.with(func(d *data) {
		p := d.purchases[id]
		p.Status = status
		setIf(&p.GatewayReference, ref)
		d.purchases[id] = p
	})
	return nil
}

func (r memPurchases) LockCompetition(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Competition, error) {
	var out *domain.Competition
	r.m.with(func(d *data) {
		if c, ok := d.competitions[id]; ok {
			out = &c
		}
	})
	return out, nil
}

func (r memPurchases) IncrementSold(_ context.Context, _ pgx.Tx, id uuid.UUID, qty int) error {
	var err error
	r.m.with(func(d *data) {
		c := d.competitions[id]
		if c.SoldTickets+qty > c.MaxTickets {
			err = fmt.Errorf("competition %s sold out", id)
			return
		}
		c.SoldTickets += qty
		d.competitions[id] = c
	})
	return err
}

func (r memPurchases) ReserveUniversalNumbers(_ context.Context, _ pgx.Tx, qty int) (int, error) {
	var first int
	r.m.with(func(d *data) {
		first = d.universalLast + 1
		d.universalLast += qty
	})
	return first, nil
}

func (r memPurchases) IssueTickets(_ context.Context, _ pgx.Tx, userID uuid.UUID, competitionID *uuid.UUID, purchaseID uuid.UUID, first, qty int) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, qty)
	r.m.with(func(d *data) {
		for n := first; n < first+qty; n++ {
			t := domain.Ticket{ID: uuid.New(), UserID: userID, CompetitionID: competitionID, PurchaseID: purchaseID, TicketNumber: n, CreatedAt: time.Now()}
			d.tickets = append(d.tickets, t)
			out = append(out, t)
		}
	})
	return out, nil
}

func (r memPurchases) FindPlan(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.SubscriptionPlan, error) {
	var out *domain.SubscriptionPlan
	r.m.with(func(d *data) {
		if p, ok := d.plans[id]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r memPurchases) ActiveSubscriptionEnd(_ context.Context, _ repository.DBTX, userID, planID uuid.UUID) (*time.Time, error) {
	var out *time.Time
	r.m.with(func(d *data) {
		for _, s := range d.subs {
			if s.UserID == userID && s.PlanID == planID && s.PeriodEnd.After(time.Now()) {
				if out == nil || s.PeriodEnd.After(*out) {
					end := s.PeriodEnd
					out = &end
				}
			}
		}
	})
	return out, nil
}

func (r memPurchases) CreateSubscription(_ context.Context, _ repository.DBTX, s *domain.UserSubscription) error {
	r.m.with(func(d *data) {
		s.ID = uuid.New()
		s.Status = "ACTIVE"
		d.subs = append(d.subs, *s)
	})
	return nil
}

// --- webhooks, refunds, limits, users, outbox ---

type memWebhooks struct{ m *memStore }

func (r memWebhooks) Insert(_ context.Context, _ repository.DBTX, l *domain.WebhookLog) (bool, error) {
	fresh := false
	r.m.with(func(d *data) {
		key := string(l.Gateway) + "/" + l.EventID
		if _, ok := d.webhooks[key]; !ok {
			d.webhooks[key] = *l
			fresh = true
		}
	})
	return fresh, nil
}

func (r memWebhooks) MarkProcessed(_ context.Context, _ repository.DBTX, gw domain.GatewayKind, eventID string) error {
	r.m.with(func(d *data) {
		key := string(gw) + "/" + eventID
		l := d.webhooks[key]
		l.Processed = true
		d.webhooks[key] = l
	})
	return nil
}

type memRefunds struct{ m *memStore }

func (r memRefunds) Create(_ context.Context, _ repository.DBTX, f *domain.Refund) error {
	r.m.with(func(d *data) { d.refunds = append(d.refunds, *f) })
	return nil
}

func (r memRefunds) ListByTransaction(_ context.Context, _ repository.DBTX, txID uuid.UUID) ([]domain.Refund, error) {
	var out []domain.Refund
	r.m.with(func(d *data) {
		for _, f := range d.refunds {
			if f.TransactionID == txID {
				out = append(out, f)
			}
		}
	})
	return out, nil
}

type memLimits struct{ m *memStore }

func (r memLimits) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID, defaults domain.TransactionLimits) (*domain.TransactionLimits, error) {
	var out domain.TransactionLimits
	r.m.with(func(d *data) {
		l, ok := d.limits[userID]
		if !ok {
			l = defaults
			l.UsageResetAt = time.Now()
			d.limits[userID] = l
		}
		out = l
	})
	return &out, nil
}

func (r memLimits) add(userID uuid.UUID, delta int64, field func(*domain.TransactionLimits) *int64) {
	r.m.with(func(d *data) {
		l, ok := d.limits[userID]
		if !ok {
			return
		}
		p := field(&l)
		*p = max(*p+delta, 0)
		d.limits[userID] = l
	})
}

func (r memLimits) AddWithdrawalUsage(_ context.Context, _ repository.DBTX, userID uuid.UUID, delta int64) error {
	r.add(userID, delta, func(l *domain.TransactionLimits) *int64 { return &l.DailyWithdrawalUsed })
	return nil
}

func (r memLimits) AddDepositUsage(_ context.Context, _ repository.DBTX, userID uuid.UUID, delta int64) error {
	r.add(userID, delta, func(l *domain.TransactionLimits) *int64 { return &l.DailyDepositUsed })
	return nil
}

func (r memLimits) ResetDailyUsage(_ context.Context, _ repository.DBTX, before time.Time) (int64, error) {
	var n int64
	r.m.with(func(d *data) {
		for id, l := range d.limits {
			if l.UsageResetAt.Before(before) {
				l.DailyDepositUsed, l.DailyWithdrawalUsed = 0, 0
				l.UsageResetAt = time.Now()
				d.limits[id] = l
				n++
			}
		}
	})
	return n, nil
}

type memUsers struct{ m *memStore }

func (r memUsers) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.User, error) {
	var out *domain.User
	r.m.with(func(d *data) {
		if u, ok := d.users[id]; ok {
			out = &u
		}
	})
	return out, nil
}

func (r memUsers) FindPaymentMethod(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.PaymentMethod, error) {
	var out *domain.PaymentMethod
	r.m.with(func(d *data) {
		if pm, ok := d.methods[id]; ok {
			out = &pm
		}
	})
	return out, nil
}

func (r memUsers) DefaultPaymentMethod(_ context.Context, _ repository.DBTX, userID uuid.UUID) (*domain.PaymentMethod, error) {
	var out *domain.PaymentMethod
	r.m.with(func(d *data) {
		for _, pm := range d.methods {
			if pm.UserID == userID && pm.IsDefault {
				out = &pm
				return
			}
		}
	})
	return out, nil
}

type memOutbox struct{ m *memStore }

func (r memOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.m.with(func(d *data) { d.outbox = append(d.outbox, draft) })
	return nil
}

type memReports struct{ m *memStore }

func (r memReports) GatewayTotals(_ context.Context, _ repository.DBTX, from, to time.Time) ([]domain.GatewayReportRow, error) {
	type key struct {
		gw domain.GatewayKind
		t  domain.TransactionType
	}
	sums := map[key]*domain.GatewayReportRow{}
	r.m.with(func(d *data) {
		for _, t := range d.txns {
			if t.Status != domain.TxCompleted || t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
				continue
			}
			gw := domain.GatewayKind("WALLET")
			if t.Gateway != nil {
				gw = *t.Gateway
			}
			k := key{gw, t.Type}
			if sums[k] == nil {
				sums[k] = &domain.GatewayReportRow{Gateway: gw, Type: t.Type}
			}
			sums[k].Count++
			sums[k].TotalAmount += t.Amount
			sums[k].TotalFees += t.FeeAmount
		}
	})
	out := make([]domain.GatewayReportRow, 0, len(sums))
	for _, row := range sums {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b domain.GatewayReportRow) int {
		return cmp.Or(cmp.Compare(a.Gateway, b.Gateway), cmp.Compare(a.Type, b.Type))
	})
	return out, nil
}

func (r memReports) PeriodTotals(context.Context, repository.DBTX, string, time.Time, time.Time) ([]domain.PeriodReportRow, error) {
	return nil, nil
}

type memConfigs struct{ m *memStore }

func (r memConfigs) List(_ context.Context, _ repository.DBTX, env domain.Environment) ([]domain.GatewayConfig, error) {
	var out []domain.GatewayConfig
	r.m.with(func(d *data) {
		for _, kind := range domain.AllGateways() {
			if c, ok := d.configs[kind]; ok && c.Environment == env {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

func (r memConfigs) Find(_ context.Context, _ repository.DBTX, gw domain.GatewayKind, env domain.Environment) (*domain.GatewayConfig, error) {
	var out *domain.GatewayConfig
	r.m.with(func(d *data) {
		if c, ok := d.configs[gw]; ok && c.Environment == env {
			out = &c
		}
	})
	return out, nil
}

func (r memConfigs) IsEnabled(ctx context.Context, db repository.DBTX, gw domain.GatewayKind, env domain.Environment) (bool, error) {
	c, _ := r.Find(ctx, db, gw, env)
	return c != nil && c.Enabled, nil
}

func (r memConfigs) Upsert(_ context.Context, _ repository.DBTX, cfg *domain.GatewayConfig) error {
	r.m.with(func(d *data) { d.configs[cfg.Gateway] = *cfg })
	return nil
}

func (r memConfigs) SetEnabled(_ context.Context, _ repository.DBTX, gw domain.GatewayKind, env domain.Environment, enabled bool) error {
	r.m.with(func(d *data) {
		c, ok := d.configs[gw]
		if !ok {
			c = domain.GatewayConfig{Gateway: gw, Environment: env}
		}
		c.Enabled = enabled
		d.configs[gw] = c
	})
	return nil
}
