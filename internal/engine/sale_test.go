package engine_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/engine"
	"borlette/internal/model"
	"borlette/internal/testutil"
)

// ============================================================================
// Test: SellTicket happy path
// ============================================================================

func TestSellTicket_CreatesTicketAndLedgerRows(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t, func(p *engine.LotteryParams) {
		p.MaxPerNumber[bet.TypeBolet] = 10_000
	})
	agent := env.NewAgent(t, 1000) // 10%

	ticket, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 10_000)}, "morning")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if ticket.Code == "" || len(ticket.Code) != 8 {
		t.Errorf("ticket code %q should be 8 chars", ticket.Code)
	}
	if ticket.TotalAmount != 10_000 {
		t.Errorf("totalAmount: got %d, want 10000", ticket.TotalAmount)
	}
	if ticket.Status != model.TicketActive {
		t.Errorf("status: got %s, want active", ticket.Status)
	}
	if ticket.IsWinner || ticket.PayoutAmount != 0 {
		t.Error("fresh ticket must start as a non-winner")
	}

	got, err := env.Engine.GetLottery(ctx, lot.ID)
	if err != nil {
		t.Fatalf("get lottery: %v", err)
	}
	if got.TicketsSold != 1 {
		t.Errorf("ticketsSold: got %d, want 1", got.TicketsSold)
	}
}

func TestSellTicket_CommissionSplitsLedger(t *testing.T) {
	// Agent at 10% sells a $100 ticket: the sale row carries the gross
	// +10000, the commission row -1000, and the balance lands at +9000.
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t, func(p *engine.LotteryParams) {
		p.MaxPerNumber[bet.TypeBolet] = 10_000
	})
	agent := env.NewAgent(t, 1000)

	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 10_000)}, "")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	txs, err := env.Engine.AgentStatement(ctx, agent.ID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("transactions: got %d, want 2 (sale + commission)", len(txs))
	}

	byType := map[model.TransactionType]int64{}
	for _, tx := range txs {
		byType[tx.Type] = tx.Amount
	}
	if byType[model.TxSale] != 10_000 {
		t.Errorf("sale amount: got %d, want 10000", byType[model.TxSale])
	}
	if byType[model.TxCommission] != -1_000 {
		t.Errorf("commission amount: got %d, want -1000", byType[model.TxCommission])
	}

	updated, _ := env.Engine.GetAgent(ctx, agent.ID)
	if updated.Balance != 9_000 {
		t.Errorf("balance: got %d, want 9000", updated.Balance)
	}
}

func TestSellTicket_BalanceReconciles(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 750)

	for i, n := range []string{"1", "2", "3"} {
		_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
			[]bet.Bet{testutil.Bolet(n, int64(1000*(i+1)))}, "")
		if err != nil {
			t.Fatalf("sell %s: %v", n, err)
		}

		replayed, cached, err := env.Engine.ReplayAgentBalance(ctx, agent.ID)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if replayed != cached {
			t.Fatalf("after sale %d: replayed %d != cached %d", i+1, replayed, cached)
		}
	}
}

// ============================================================================
// Test: validation rejections
// ============================================================================

func TestSellTicket_ValidationRejections(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t, func(p *engine.LotteryParams) {
		p.BetLimits = map[bet.Type]model.AmountRange{
			bet.TypeBolet: {Min: 100, Max: 2_000},
		}
	})
	agent := env.NewAgent(t, 0)

	cases := []struct {
		name string
		bets []bet.Bet
		want string // substring of the rejection
	}{
		{"no bets", nil, "at least one bet"},
		{"unknown type", []bet.Bet{{Type: "loto6", Numbers: []string{"1"}, Amounts: []int64{100}}}, "unknown bet type"},
		{"mariage one number", []bet.Bet{{Type: bet.TypeMariage, Numbers: []string{"12"}, Amounts: []int64{100}}}, "exactly 2"},
		{"empty number", []bet.Bet{{Type: bet.TypeBolet, Numbers: []string{" "}, Amounts: []int64{100}}}, "empty number"},
		{"out of range", []bet.Bet{testutil.Bolet("100", 100)}, "between 0 and 99"},
		{"not numeric", []bet.Bet{testutil.Bolet("abc", 100)}, "between 0 and 99"},
		{"duplicate numbers", []bet.Bet{testutil.Mariage("7", "07", 100)}, "duplicate"},
		{"no amount", []bet.Bet{{Type: bet.TypeBolet, Numbers: []string{"1"}}}, "exactly one amount"},
		{"negative amount", []bet.Bet{testutil.Bolet("1", -5)}, "positive"},
		{"below bet limit", []bet.Bet{testutil.Bolet("1", 50)}, "must be between"},
		{"unknown state", []bet.Bet{testutil.Play3("123", "texas", 100)}, "not offered"},
		{"bolet wrong state", []bet.Bet{{Type: bet.TypeBolet, Numbers: []string{"1"}, Amounts: []int64{100}, State: "newyork"}}, "only valid in haiti"},
	}

	for _, tc := range cases {
		_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID, tc.bets, "")
		if err == nil {
			t.Errorf("%s: sale should be rejected", tc.name)
			continue
		}
		if !engine.IsRejection(err) {
			t.Errorf("%s: want a client rejection, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: rejection %q should mention %q", tc.name, err, tc.want)
		}
	}
}

func TestSellTicket_StateDefaultsToHaiti(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	ticket, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if ticket.Bets[0].State != bet.StateHaiti {
		t.Errorf("state: got %q, want %q", ticket.Bets[0].State, bet.StateHaiti)
	}
}

// ============================================================================
// Test: sales window
// ============================================================================

func TestSellTicket_RejectedAfterDrawDate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	env.Advance(2 * time.Hour) // past the draw, sweep not yet run

	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err == nil || !engine.IsRejection(err) {
		t.Fatalf("sale past the draw date should be rejected, got %v", err)
	}
}

func TestSellTicket_RejectedOnClosedLottery(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	env.Advance(2 * time.Hour)
	if _, err := env.Engine.CloseDueLotteries(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err == nil || !strings.Contains(err.Error(), "not open") {
		t.Fatalf("sale on closed lottery should be rejected, got %v", err)
	}
}

func TestSellTicket_UnknownAgent(t *testing.T) {
	env := testutil.NewEnv(t)
	lot := env.NewLottery(t)

	_, err := env.Engine.SellTicket(context.Background(), lot.ID, uuid.New(),
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("sale for unknown agent should be rejected, got %v", err)
	}
}

func TestSellTicket_DeactivatedAgent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	if _, err := env.Engine.SetAgentStatus(ctx, agent.ID, model.AgentDeactivated); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err == nil || !strings.Contains(err.Error(), "deactivated") {
		t.Fatalf("sale by deactivated agent should be rejected, got %v", err)
	}
}

// ============================================================================
// Test: per-number sales cap
// ============================================================================

func TestSellTicket_SoldOutExactMessage(t *testing.T) {
	// Cap $50 on bolet. First sale takes the full cap on 07; a $1 bet
	// on the equivalent number 7 must be rejected with zero headroom.
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	first := env.NewAgent(t, 0)
	second := env.NewAgent(t, 0)

	if _, err := env.Engine.SellTicket(ctx, lot.ID, first.ID,
		[]bet.Bet{testutil.Bolet("07", 5_000)}, ""); err != nil {
		t.Fatalf("first sale: %v", err)
	}

	_, err := env.Engine.SellTicket(ctx, lot.ID, second.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err == nil {
		t.Fatal("oversell should be rejected")
	}
	want := "bolet number 7 is sold out. Only $0 left."
	if err.Error() != want {
		t.Errorf("rejection: got %q, want %q", err, want)
	}
}

func TestSellTicket_PartialHeadroomReported(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	if _, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 3_000)}, ""); err != nil {
		t.Fatalf("first sale: %v", err)
	}

	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 2_500)}, "")
	if err == nil {
		t.Fatal("oversell should be rejected")
	}
	if !strings.Contains(err.Error(), "Only $20 left.") {
		t.Errorf("rejection %q should report $20 headroom", err)
	}
}

func TestSellTicket_SameNumberAggregatedWithinTicket(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	// Two lines on number 7 totalling 6000 exceed the 5000 cap even
	// though each line alone fits.
	_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID, []bet.Bet{
		testutil.Bolet("7", 3_000),
		testutil.Bolet("07", 3_000),
	}, "")
	if err == nil {
		t.Fatal("aggregated oversell within one ticket should be rejected")
	}
}

func TestSellTicket_MariageConsumesBothNumbers(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	if _, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Mariage("12", "34", 5_000)}, ""); err != nil {
		t.Fatalf("mariage sale: %v", err)
	}

	// Both 12 and 34 are now at the mariage cap.
	for _, n := range []string{"12", "34"} {
		_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
			[]bet.Bet{testutil.Mariage(n, "56", 100)}, "")
		if err == nil {
			t.Errorf("mariage on exhausted number %s should be rejected", n)
		}
	}
}

func TestSellTicket_CapInvariantUnderConcurrency(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	// 20 concurrent $10 bets on the same number against a $50 cap:
	// exactly 5 can fit.
	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
				[]bet.Bet{testutil.Bolet("7", 1_000)}, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	sold := 0
	for err := range results {
		if err == nil {
			sold++
		} else if !engine.IsRejection(err) {
			t.Errorf("unexpected failure: %v", err)
		}
	}
	if sold != 5 {
		t.Errorf("sold %d tickets, want exactly 5 within the cap", sold)
	}

	replayed, cached, err := env.Engine.ReplayAgentBalance(ctx, agent.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != cached {
		t.Errorf("balance diverged under concurrency: replayed %d, cached %d", replayed, cached)
	}
}
