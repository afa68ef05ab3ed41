//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertBalances reads the wallets table and checks both balances in minor units.
func AssertBalances(t *testing.T, env *TestEnv, userID uuid.UUID, cash, credit int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := map[string]int64{}
	rows, err := env.Pool.Query(ctx,
		"SELECT type, (balance * 100)::bigint FROM wallets WHERE user_id = $1", userID)
	if err != nil {
		t.Fatalf("AssertBalances: query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var wt string
		var bal int64
		if err := rows.Scan(&wt, &bal); err != nil {
			t.Fatalf("AssertBalances: scan: %v", err)
		}
		got[wt] = bal
	}
	if got["CASH"] != cash {
		t.Errorf("CASH balance: expected %d, got %d", cash, got["CASH"])
	}
	if got["CREDIT"] != credit {
		t.Errorf("CREDIT balance: expected %d, got %d", credit, got["CREDIT"])
	}
}

// Count runs a COUNT(*) query and returns the result.
func Count(t *testing.T, env *TestEnv, sql string, args ...any) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	if err := env.Pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		t.Fatalf("Count %q: %v", sql, err)
	}
	return n
}

// CountOutboxEvents returns the number of outbox events of eventType.
func CountOutboxEvents(t *testing.T, env *TestEnv, eventType string) int {
	t.Helper()
	return Count(t, env, "SELECT COUNT(*) FROM event_outbox WHERE event_type = $1", eventType)
}

// RequestStatus reads a payment request's status straight from the database.
func RequestStatus(t *testing.T, env *TestEnv, id uuid.UUID) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status string
	if err := env.Pool.QueryRow(ctx, "SELECT status FROM payment_requests WHERE id = $1", id).Scan(&status); err != nil {
		t.Fatalf("RequestStatus: %v", err)
	}
	return status
}
