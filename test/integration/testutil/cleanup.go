//go:build integration

package testutil

import (
	"context"
	"strings"
	"time"
)

// tables in reverse dependency order; TRUNCATE does not fire the
// append-only row trigger on wallet_transactions.
var tables = []string{
	"event_outbox",
	"webhook_logs",
	"refunds",
	"transactions",
	"user_subscriptions",
	"tickets",
	"universal_ticket_counter",
	"purchases",
	"withdrawals",
	"payments",
	"payment_request_events",
	"payment_requests",
	"subscription_plans",
	"competitions",
	"wallet_transactions",
	"wallets",
	"user_transaction_limits",
	"gateway_configs",
	"secrets",
	"payment_methods",
	"admin_users",
	"users",
}

// CleanAll truncates every table so each test starts empty.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
		env.t.Fatalf("CleanAll: %v", err)
	}
}
