package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/gateway"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/provider"
	"github.com/rafflehub/platform/internal/provider/providertest"
	"github.com/rafflehub/platform/internal/secrets"
)

type anySecrets struct{}

func (anySecrets) Get(context.Context, string, secrets.GetOptions) (string, error) {
	return "test-credential", nil
}

type memSecrets map[string]string

func (m memSecrets) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memStore
	repos    Repositories
	registry *gateway.Registry
	clients  map[domain.GatewayKind]*providertest.Client
	ledger   *ledger.Engine
	secrets  memSecrets

	payments *PaymentService
	webhooks *WebhookService
	refunds  *RefundService
	reports  *ReportService
	wallets  *WalletService
	admin    *GatewayAdminService

	userID  uuid.UUID
	adminID uuid.UUID
	// card is the user's default saved Stripe card.
	card uuid.UUID
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   newMemStore(),
		clients: map[domain.GatewayKind]*providertest.Client{},
		secrets: memSecrets{},
		userID:  uuid.New(),
		adminID: uuid.New(),
		card:    uuid.New(),
	}
	h.repos = h.store.repositories()

	factories := map[domain.GatewayKind]gateway.Factory{}
	for _, kind := range domain.AllGateways() {
		c := providertest.New(kind)
		h.clients[kind] = c
		factories[kind] = func(*domain.GatewayConfig, gateway.Credentials, provider.Options) (provider.Client, error) {
			return c.Build()
		}
		h.store.d.configs[kind] = domain.GatewayConfig{
			ID:          uuid.New(),
			Gateway:     kind,
			Environment: domain.EnvSandbox,
			Enabled:     true,
			Fees:        domain.FeeSchedule{Percent: decimal.RequireFromString("2.9"), FixedFee: 30},
		}
	}
	h.store.d.users[h.userID] = domain.User{ID: h.userID, Email: "player@example.com", Country: "GB"}
	h.store.d.methods[h.card] = domain.PaymentMethod{
		ID: h.card, UserID: h.userID, Gateway: domain.GatewayStripe, Kind: "card", ProviderRef: "pm_card_visa", IsDefault: true,
	}

	logger := testLogger()
	h.registry = gateway.NewRegistry(h.store, h.repos.Gateways, anySecrets{}, gateway.Options{
		Environment: domain.EnvSandbox,
		Factories:   factories,
	}, logger)
	require.NoError(t, h.registry.Init(h.ctx))

	h.ledger = ledger.NewEngine(memWallets{h.store}, h.repos.Outbox, logger)
	h.payments = NewPaymentService(h.store, h.repos, h.registry, h.ledger, nil, PaymentOptions{
		Currency:             "GBP",
		UniversalTicketPrice: 100,
		PublicBaseURL:        "https://raffle.test",
	}, logger)
	h.webhooks = NewWebhookService(h.store, h.repos, h.registry, h.ledger, logger)
	h.refunds = NewRefundService(h.store, h.repos, h.registry, h.ledger, logger)
	h.reports = NewReportService(h.store, h.repos)
	h.wallets = NewWalletService(h.store, h.ledger, "GBP")
	h.admin = NewGatewayAdminService(h.store, h.repos, h.registry, h.secrets, logger)
	return h
}

func (h *harness) stripe() *providertest.Client  { return h.clients[domain.GatewayStripe] }
func (h *harness) paypal() *providertest.Client  { return h.clients[domain.GatewayPayPal] }
func (h *harness) revolut() *providertest.Client { return h.clients[domain.GatewayRevolut] }

// addUser creates another user with no payment methods.
func (h *harness) addUser() uuid.UUID {
	id := uuid.New()
	h.store.with(func(d *data) {
		d.users[id] = domain.User{ID: id, Email: id.String() + "@example.com", Country: "GB"}
	})
	return id
}

func (h *harness) fund(userID uuid.UUID, wt domain.WalletType, amount int64) {
	h.t.Helper()
	err := pgx.BeginFunc(h.ctx, h.store, func(tx pgx.Tx) error {
		if err := h.ledger.EnsureWallets(h.ctx, tx, userID, "GBP"); err != nil {
			return err
		}
		_, err := h.ledger.Credit(h.ctx, tx, domain.LedgerParams{
			UserID: userID, WalletType: wt, Amount: amount, Reference: "seed", Description: "test funding",
		})
		return err
	})
	require.NoError(h.t, err)
}

func (h *harness) balance(userID uuid.UUID, wt domain.WalletType) int64 {
	h.t.Helper()
	b, err := h.wallets.Balances(h.ctx, userID)
	require.NoError(h.t, err)
	return b.Of(wt)
}

func (h *harness) request(id uuid.UUID) domain.PaymentRequest {
	h.t.Helper()
	var req domain.PaymentRequest
	var ok bool
	h.store.with(func(d *data) { req, ok = d.requests[id] })
	require.True(h.t, ok, "payment request %s not stored", id)
	return req
}

func (h *harness) requestCount() int {
	n := 0
	h.store.with(func(d *data) { n = len(d.requests) })
	return n
}

func (h *harness) transactionsFor(requestID uuid.UUID) []domain.Transaction {
	var out []domain.Transaction
	h.store.with(func(d *data) {
		for _, t := range d.txns {
			if t.PaymentRequestID != nil && *t.PaymentRequestID == requestID {
				out = append(out, t)
			}
		}
	})
	return out
}

func (h *harness) assertConsistent(userID uuid.UUID) {
	h.t.Helper()
	reports, err := h.wallets.Reconcile(h.ctx, userID)
	require.NoError(h.t, err)
	for _, r := range reports {
		assert.True(h.t, r.Consistent, "%s wallet: %v", r.WalletType, r.Violations)
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, code), "want %s, got %v", code, err)
}

func webhookEvent(gw domain.GatewayKind, id string, kind domain.WebhookEventKind, reqID *uuid.UUID, ref string) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		Gateway:   gw,
		EventID:   id,
		Type:      string(kind),
		Kind:      kind,
		Reference: ref,
		RequestID: reqID,
	}
}
