//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/auth"
	"github.com/rafflehub/platform/internal/domain"
)

// Player is a seeded user with a JWT and, optionally, a default card.
type Player struct {
	ID    uuid.UUID
	Token string
	Card  uuid.UUID
}

// SeedGateways enables all three gateways in SANDBOX.
func (env *TestEnv) SeedGateways() {
	env.t.Helper()
	env.exec(`
		INSERT INTO gateway_configs (gateway, environment, enabled, fee_percent, fixed_fee,
			min_deposit, max_deposit, min_withdrawal, max_withdrawal)
		SELECT g, 'SANDBOX', true, 2.9, 0.30, 0, 0, 0, 0
		FROM unnest(ARRAY['STRIPE', 'PAYPAL', 'REVOLUT']) AS g`)
}

// CreatePlayer inserts a GB user with a default saved Stripe card and
// returns a user-realm token for it.
func (env *TestEnv) CreatePlayer(email string) Player {
	env.t.Helper()
	p := env.CreatePlayerWithoutCard(email)
	p.Card = uuid.New()
	env.exec(`INSERT INTO payment_methods (id, user_id, gateway, kind, provider_ref, is_default)
		VALUES ($1, $2, 'STRIPE', 'card', 'pm_card_visa', true)`, p.Card, p.ID)
	env.exec(`UPDATE users SET default_payment_method_id = $1 WHERE id = $2`, p.Card, p.ID)
	return p
}

// CreatePlayerWithoutCard inserts a GB user with no payment methods.
func (env *TestEnv) CreatePlayerWithoutCard(email string) Player {
	env.t.Helper()
	id := uuid.New()
	env.exec(`INSERT INTO users (id, email, country) VALUES ($1, $2, 'GB')`, id, email)
	token, err := env.JWTMgr.GenerateToken(auth.RealmUser, id, email, "")
	if err != nil {
		env.t.Fatalf("CreatePlayer: token: %v", err)
	}
	return Player{ID: id, Token: token}
}

// AdminToken returns an admin-realm token with the given role.
func (env *TestEnv) AdminToken(role string) (uuid.UUID, string) {
	env.t.Helper()
	id := uuid.New()
	email := role + "-" + id.String()[:8] + "@rafflehub.test"
	env.exec(`INSERT INTO admin_users (id, email, role) VALUES ($1, $2, $3)`, id, email, role)
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, id, email, role)
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return id, token
}

// Fund credits a wallet directly through the ledger.
func (env *TestEnv) Fund(userID uuid.UUID, wt domain.WalletType, amount int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := pgx.BeginFunc(ctx, env.Pool, func(tx pgx.Tx) error {
		if err := env.Ledger.EnsureWallets(ctx, tx, userID, "GBP"); err != nil {
			return err
		}
		_, err := env.Ledger.Credit(ctx, tx, domain.LedgerParams{
			UserID: userID, WalletType: wt, Amount: amount, Reference: "seed", Description: "integration funding",
		})
		return err
	})
	if err != nil {
		env.t.Fatalf("Fund: %v", err)
	}
}

// CreateCompetition inserts an ACTIVE competition priced in minor units.
func (env *TestEnv) CreateCompetition(title string, price int64, maxTickets int) uuid.UUID {
	env.t.Helper()
	id := uuid.New()
	env.exec(`INSERT INTO competitions (id, title, ticket_price, max_tickets)
		VALUES ($1, $2, $3::numeric / 100, $4)`, id, title, price, maxTickets)
	return id
}

// CreatePlan inserts an active subscription plan.
func (env *TestEnv) CreatePlan(name string, price int64, intervalDays int) uuid.UUID {
	env.t.Helper()
	id := uuid.New()
	env.exec(`INSERT INTO subscription_plans (id, name, price, interval_days)
		VALUES ($1, $2, $3::numeric / 100, $4)`, id, name, price, intervalDays)
	return id
}

func (env *TestEnv) exec(sql string, args ...any) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := env.Pool.Exec(ctx, sql, args...); err != nil {
		env.t.Fatalf("exec %q: %v", sql, err)
	}
}

// Exec runs a statement against the test database.
func (env *TestEnv) Exec(sql string, args ...any) {
	env.t.Helper()
	env.exec(sql, args...)
}

// Do performs a JSON request with an optional bearer token.
func (env *TestEnv) Do(method, path string, body any, token string) *http.Response {
	env.t.Helper()
	var rdr io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
		rdr = buf
	}
	req, err := http.NewRequest(method, env.Server.URL+path, rdr)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, "")
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, token)
}

// POST performs a POST request with an optional auth token.
func (env *TestEnv) POST(path string, body any, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPost, path, body, token)
}

// RawPOST sends body unchanged, as a payment provider would.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("RawPOST %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}
