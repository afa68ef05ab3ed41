//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/test/integration/testutil"
)

type purchaseResponse struct {
	Purchase struct {
		ID               uuid.UUID  `json:"id"`
		TotalAmount      int64      `json:"total_amount"`
		CreditUsed       int64      `json:"credit_used"`
		CashUsed         int64      `json:"cash_used"`
		ExternalAmount   int64      `json:"external_amount"`
		Status           string     `json:"status"`
		PaymentRequestID *uuid.UUID `json:"payment_request_id"`
	} `json:"purchase"`
	Tickets []struct {
		TicketNumber int `json:"ticket_number"`
	} `json:"tickets"`
	Subscription *struct {
		PeriodEnd string `json:"period_end"`
	} `json:"subscription"`
}

func TestPurchaseTickets_CreditThenCashThenCard(t *testing.T) {
	env := testutil.NewTestEnv(t)
	player := env.CreatePlayer("tickets@test.com")
	env.Fund(player.ID, domain.WalletCredit, 300)
	env.Fund(player.ID, domain.WalletCash, 400)
	comp := env.CreateCompetition("Dream Car", 250, 100)

	resp := env.POST("/tickets/purchase", map[string]any{"competition_id": comp, "quantity": 4}, player.Token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res purchaseResponse
	testutil.DecodeJSON(t, resp, &res)
	assert.Equal(t, int64(1000), res.Purchase.TotalAmount)
	assert.Equal(t, int64(300), res.Purchase.CreditUsed)
	assert.Equal(t, int64(400), res.Purchase.CashUsed)
	assert.Equal(t, int64(300), res.Purchase.ExternalAmount)
	assert.Equal(t, "COMPLETED", res.Purchase.Status)
	require.Len(t, res.Tickets, 4)
	assert.Equal(t, 1, res.Tickets[0].TicketNumber)

	testutil.AssertBalances(t, env, player.ID, 0, 0)
	require.Equal(t, 1, env.Fakes[domain.GatewayStripe].ChargeCount())
	assert.Equal(t, int64(300), env.Fakes[domain.GatewayStripe].Charges[0].Amount)
	assert.Equal(t, 4, testutil.Count(t, env, "SELECT sold_tickets FROM competitions WHERE id = $1", comp))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, string(domain.EventPurchaseCompleted)))
}

func TestPurchaseTickets_LastTicketUnderContention(t *testing.T) {
	env := testutil.NewTestEnv(t)
	comp := env.CreateCompetition("Last One", 100, 1)

	const buyers = 5
	players := make([]testutil.Player, buyers)
	for i := range players {
		players[i] = env.CreatePlayerWithoutCard(uuid.NewString() + "@test.com")
		env.Fund(players[i].ID, domain.WalletCash, 100)
	}

	var wg sync.WaitGroup
	statuses := make([]int, buyers)
	for i, p := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := env.POST("/tickets/purchase", map[string]any{"competition_id": comp, "quantity": 1}, p.Token)
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}()
	}
	wg.Wait()

	won := 0
	for _, st := range statuses {
		if st == http.StatusCreated {
			won++
			continue
		}
		assert.Equal(t, http.StatusConflict, st)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, testutil.Count(t, env, "SELECT COUNT(*) FROM tickets WHERE competition_id = $1", comp))
	assert.Equal(t, buyers-1, testutil.Count(t, env, "SELECT COUNT(*) FROM wallets WHERE type = 'CASH' AND balance = 1.00"))
}

func TestPurchaseTickets_DeclinedCardLeavesWalletsUntouched(t *testing.T) {
	env := testutil.NewTestEnv(t)
	player := env.CreatePlayer("declined@test.com")
	env.Fund(player.ID, domain.WalletCash, 100)
	env.Fakes[domain.GatewayStripe].ChargeFn = declineCharge

	resp := env.POST("/tickets/purchase", map[string]any{"quantity": 5}, player.Token)
	testutil.AssertStatus(t, resp, http.StatusBadGateway)
	testutil.AssertErrorCode(t, resp, domain.CodeProviderError)

	testutil.AssertBalances(t, env, player.ID, 100, 0)
	assert.Zero(t, testutil.Count(t, env, "SELECT COUNT(*) FROM purchases"))
	assert.Zero(t, testutil.Count(t, env, "SELECT COUNT(*) FROM tickets"))
}

func TestPurchaseSubscription_RenewalExtendsPeriod(t *testing.T) {
	env := testutil.NewTestEnv(t)
	player := env.CreatePlayer("sub@test.com")
	env.Fund(player.ID, domain.WalletCredit, 5000)
	plan := env.CreatePlan("Gold", 999, 30)

	for i := 0; i < 2; i++ {
		resp := env.POST("/subscriptions/purchase", map[string]any{"plan_id": plan}, player.Token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var res purchaseResponse
		testutil.DecodeJSON(t, resp, &res)
		require.NotNil(t, res.Subscription)
	}

	testutil.AssertBalances(t, env, player.ID, 0, 5000-2*999)
	assert.Equal(t, 1, testutil.Count(t, env,
		"SELECT COUNT(*) FROM user_subscriptions WHERE user_id = $1 AND period_end > now() + interval '59 days'", player.ID))
}

func TestPurchaseTickets_UniversalNumbersAreUnique(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alice := env.CreatePlayerWithoutCard("alice@test.com")
	bob := env.CreatePlayerWithoutCard("bob@test.com")
	env.Fund(alice.ID, domain.WalletCash, 500)
	env.Fund(bob.ID, domain.WalletCash, 500)

	var numbers []int
	for _, p := range []testutil.Player{alice, bob, alice} {
		resp := env.POST("/tickets/purchase", map[string]any{"quantity": 2}, p.Token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var res purchaseResponse
		testutil.DecodeJSON(t, resp, &res)
		for _, tk := range res.Tickets {
			numbers = append(numbers, tk.TicketNumber)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, numbers)
	assert.Equal(t, 6, testutil.Count(t, env, "SELECT last_number FROM universal_ticket_counter"))
}
