package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/repository"
)

// memWallets is an in-memory WalletRepository; tx arguments are ignored.
type memWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	entries []domain.WalletEntry
	locks   []domain.WalletType
}

func newMemWallets() *memWallets {
	return &memWallets{wallets: map[uuid.UUID]*domain.Wallet{}}
}

func (m *memWallets) find(userID uuid.UUID, t domain.WalletType) *domain.Wallet {
	for _, w := range m.wallets {
		if w.UserID == userID && w.Type == t {
			return w
		}
	}
	return nil
}

func (m *memWallets) Ensure(_ context.Context, _ repository.DBTX, userID uuid.UUID, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range []domain.WalletType{domain.WalletCash, domain.WalletCredit} {
		if m.find(userID, t) == nil {
			id := uuid.New()
			m.wallets[id] = &domain.Wallet{ID: id, UserID: userID, Type: t, Currency: currency}
		}
	}
	return nil
}

func (m *memWallets) LockForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID, t domain.WalletType) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = append(m.locks, t)
	w := m.find(userID, t)
	if w == nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) UpdateBalance(_ context.Context, _ pgx.Tx, walletID uuid.UUID, delta int64) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return nil, errors.New("no wallet")
	}
	w.Balance += delta
	cp := *w
	return &cp, nil
}

func (m *memWallets) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) ([]domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Wallet
	for _, t := range []domain.WalletType{domain.WalletCash, domain.WalletCredit} {
		if w := m.find(userID, t); w != nil {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memWallets) InsertEntry(_ context.Context, _ repository.DBTX, e *domain.WalletEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memWallets) ListEntries(_ context.Context, _ repository.DBTX, walletID uuid.UUID) ([]domain.WalletEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WalletEntry
	for _, e := range m.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memWallets) ListEntriesByReference(_ context.Context, _ repository.DBTX, ref string) ([]domain.WalletEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WalletEntry
	for _, e := range m.entries {
		if e.Reference == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

type memOutbox struct {
	drafts []domain.OutboxDraft
}

func (o *memOutbox) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	o.drafts = append(o.drafts, d)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memWallets, *memOutbox, uuid.UUID) {
	t.Helper()
	w := newMemWallets()
	o := &memOutbox{}
	e := NewEngine(w, o, slog.New(slog.NewTextHandler(io.Discard, nil)))
	userID := uuid.New()
	require.NoError(t, e.EnsureWallets(context.Background(), nil, userID, "GBP"))
	return e, w, o, userID
}

func fund(t *testing.T, e *Engine, userID uuid.UUID, wt domain.WalletType, amount int64) {
	t.Helper()
	_, err := e.Credit(context.Background(), nil, domain.LedgerParams{
		UserID: userID, WalletType: wt, Amount: amount, Reference: "seed",
	})
	require.NoError(t, err)
}

func TestPlanFunding(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		credit    int64
		cash      int64
		useWallet bool
		want      domain.FundingPlan
	}{
		{"credit then cash", 1200, 500, 1000, true, domain.FundingPlan{Credit: 500, Cash: 700}},
		{"credit covers all", 300, 500, 1000, true, domain.FundingPlan{Credit: 300}},
		{"external remainder", 2000, 500, 1000, true, domain.FundingPlan{Credit: 500, Cash: 1000, External: 500}},
		{"empty wallets", 800, 0, 0, true, domain.FundingPlan{External: 800}},
		{"wallet not used", 800, 500, 1000, false, domain.FundingPlan{External: 800}},
		{"negative balance ignored", 100, -5, 50, true, domain.FundingPlan{Cash: 50, External: 50}},
		{"zero total", 0, 500, 500, true, domain.FundingPlan{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanFunding(tt.total, tt.credit, tt.cash, tt.useWallet)
			assert.Equal(t, tt.want, got)
			if tt.total > 0 {
				assert.Equal(t, tt.total, got.WalletUsed()+got.External)
			}
		})
	}
}

func TestCreditDebit(t *testing.T) {
	ctx := context.Background()
	e, w, o, userID := newTestEngine(t)

	entry, err := e.Credit(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 1000, Reference: "dep-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.WalletCash, entry.WalletType)
	assert.Equal(t, int64(1000), entry.BalanceAfter)

	_, err = e.Debit(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 400, Reference: "buy-1"})
	require.NoError(t, err)

	b, err := e.Balances(ctx, nil, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), b.Cash)
	assert.Equal(t, int64(0), b.Credit)
	assert.Equal(t, "GBP", b.Currency)

	assert.Len(t, w.entries, 2)
	assert.Len(t, o.drafts, 2, "one outbox event per ledger line")
	assert.Equal(t, domain.EventWalletEntryPosted, o.drafts[0].EventType)
}

func TestDebitInsufficient(t *testing.T) {
	ctx := context.Background()
	e, w, o, userID := newTestEngine(t)
	fund(t, e, userID, domain.WalletCash, 100)

	_, err := e.Debit(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 101})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeInsufficientBalance))
	assert.Len(t, w.entries, 1)
	assert.Len(t, o.drafts, 1)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	e, _, _, userID := newTestEngine(t)

	_, err := e.Credit(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 0})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))

	_, err = e.Credit(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 5, WalletType: "GOLD"})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))

	_, err = e.Credit(ctx, nil, domain.LedgerParams{UserID: uuid.New(), Amount: 5})
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
}

func TestHoldLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("over-hold fails", func(t *testing.T) {
		e, w, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCash, 500)
		_, err := e.Hold(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 501, Reference: "wd"})
		assert.True(t, domain.HasCode(err, domain.CodeInsufficientBalance))
		assert.Len(t, w.entries, 1)
	})

	t.Run("hold then release restores cash", func(t *testing.T) {
		e, _, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCash, 500)

		_, err := e.Hold(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 300, Reference: "wd"})
		require.NoError(t, err)
		b, _ := e.Balances(ctx, nil, userID)
		assert.Equal(t, int64(200), b.Cash)

		_, err = e.ReleaseHold(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 300, Reference: "wd"})
		require.NoError(t, err)
		b, _ = e.Balances(ctx, nil, userID)
		assert.Equal(t, int64(500), b.Cash)
	})

	t.Run("hold ignores wallet type", func(t *testing.T) {
		e, w, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCash, 500)
		entry, err := e.Hold(ctx, nil, domain.LedgerParams{UserID: userID, WalletType: domain.WalletCredit, Amount: 10})
		require.NoError(t, err)
		assert.Equal(t, domain.WalletCash, entry.WalletType)
		assert.Equal(t, domain.WalletCash, w.locks[len(w.locks)-1])
	})

	t.Run("settle writes release and debit", func(t *testing.T) {
		e, _, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCash, 500)
		_, err := e.Hold(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 300, Reference: "wd"})
		require.NoError(t, err)

		entries, err := e.SettleHold(ctx, nil, domain.LedgerParams{UserID: userID, Amount: 300, Reference: "wd"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, domain.EntryReleaseHold, entries[0].Type)
		assert.Equal(t, int64(500), entries[0].BalanceAfter)
		assert.Equal(t, domain.EntryDebit, entries[1].Type)
		assert.Equal(t, int64(200), entries[1].BalanceAfter)

		b, _ := e.Balances(ctx, nil, userID)
		assert.Equal(t, int64(200), b.Cash)

		reports, err := e.Reconcile(ctx, nil, userID)
		require.NoError(t, err)
		for _, r := range reports {
			assert.True(t, r.Consistent, "%s: %v", r.WalletType, r.Violations)
		}
	})
}

func TestConsumeForPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("credit before cash", func(t *testing.T) {
		e, w, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCredit, 500)
		fund(t, e, userID, domain.WalletCash, 1000)
		w.locks = nil

		c, err := e.ConsumeForPurchase(ctx, nil, userID, 1200, true, "purchase-1", "tickets")
		require.NoError(t, err)
		assert.Equal(t, domain.FundingPlan{Credit: 500, Cash: 700}, c.Plan)
		require.Len(t, c.Entries, 2)
		assert.Equal(t, domain.WalletCredit, c.Entries[0].WalletType)
		assert.Equal(t, domain.WalletCash, c.Entries[1].WalletType)
		assert.Equal(t, []domain.WalletType{domain.WalletCredit, domain.WalletCash}, w.locks)

		b, _ := e.Balances(ctx, nil, userID)
		assert.Equal(t, int64(0), b.Credit)
		assert.Equal(t, int64(300), b.Cash)
	})

	t.Run("external remainder leaves wallets empty", func(t *testing.T) {
		e, _, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCredit, 200)
		fund(t, e, userID, domain.WalletCash, 300)

		c, err := e.ConsumeForPurchase(ctx, nil, userID, 1000, true, "purchase-2", "tickets")
		require.NoError(t, err)
		assert.Equal(t, int64(500), c.Plan.External)

		b, _ := e.Balances(ctx, nil, userID)
		assert.Equal(t, int64(0), b.Credit)
		assert.Equal(t, int64(0), b.Cash)
	})

	t.Run("wallet not used writes nothing", func(t *testing.T) {
		e, w, _, userID := newTestEngine(t)
		fund(t, e, userID, domain.WalletCash, 300)
		before := len(w.entries)

		c, err := e.ConsumeForPurchase(ctx, nil, userID, 1000, false, "purchase-3", "tickets")
		require.NoError(t, err)
		assert.Equal(t, domain.FundingPlan{External: 1000}, c.Plan)
		assert.Empty(t, c.Entries)
		assert.Len(t, w.entries, before)
	})
}

func TestReplayEntries(t *testing.T) {
	userID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), UserID: userID, Type: domain.WalletCash, Balance: 250}
	line := func(t domain.WalletEntryType, amount, after int64) domain.WalletEntry {
		return domain.WalletEntry{ID: uuid.New(), WalletID: wallet.ID, Type: t, Amount: amount, BalanceAfter: after}
	}

	t.Run("consistent history", func(t *testing.T) {
		entries := []domain.WalletEntry{
			line(domain.EntryCredit, 500, 500),
			line(domain.EntryHold, 300, 200),
			line(domain.EntryReleaseHold, 100, 300),
			line(domain.EntryDebit, 50, 250),
		}
		r := ReplayEntries(wallet, entries)
		assert.True(t, r.Consistent, r.Violations)
		assert.Equal(t, int64(500), r.Credits)
		assert.Equal(t, int64(50), r.Debits)
		assert.Equal(t, int64(300), r.Holds)
		assert.Equal(t, int64(100), r.Releases)
		assert.Equal(t, int64(250), r.Expected)
		assert.Equal(t, 4, r.Entries)
	})

	t.Run("stored balance drift", func(t *testing.T) {
		entries := []domain.WalletEntry{line(domain.EntryCredit, 200, 200)}
		r := ReplayEntries(wallet, entries)
		assert.False(t, r.Consistent)
		assert.Equal(t, int64(200), r.Expected)
		assert.NotEmpty(t, r.Violations)
	})

	t.Run("bad snapshot and negative running total", func(t *testing.T) {
		w := &domain.Wallet{ID: wallet.ID, UserID: userID, Type: domain.WalletCash, Balance: 0}
		entries := []domain.WalletEntry{
			line(domain.EntryDebit, 100, 0),
			line(domain.EntryCredit, 100, 0),
		}
		r := ReplayEntries(w, entries)
		assert.False(t, r.Consistent)
		assert.Len(t, r.Violations, 2)
	})
}

func TestReconcileUnknownUser(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	_, err := e.Reconcile(context.Background(), nil, uuid.New())
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
}
