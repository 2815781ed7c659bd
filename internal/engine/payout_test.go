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
	"borlette/internal/store"
	"borlette/internal/testutil"
)

// winningTicket sells a bolet bet, closes the lottery, declares the
// bet's number a winner, and returns the evaluated ticket.
func winningTicket(t *testing.T, env *testutil.Env, commissionBps, stake int64) (*model.Ticket, *model.Agent) {
	t.Helper()
	ctx := context.Background()

	lot := env.NewLottery(t)
	agent := env.NewAgent(t, commissionBps)
	ticket, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", stake)}, "")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	env.Advance(2 * time.Hour)
	if _, err := env.Engine.CloseDueLotteries(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := env.Engine.DeclareWinners(ctx, lot.ID, testutil.WinningNumbers("7")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	ticket, err = env.Engine.GetTicket(ctx, ticket.Code)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	return ticket, agent
}

// ============================================================================
// Test: PayoutTicket
// ============================================================================

func TestPayoutTicket_DebitsAgentAndFlipsStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	ticket, agent := winningTicket(t, env, 0, 1_000) // payout 50_000

	if ticket.PayoutAmount != 50_000 {
		t.Fatalf("payout amount: got %d, want 50000", ticket.PayoutAmount)
	}
	before, _ := env.Engine.GetAgent(ctx, agent.ID)

	paid, err := env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if paid.Status != model.TicketPaidOut {
		t.Errorf("status: got %s, want paid_out", paid.Status)
	}

	after, _ := env.Engine.GetAgent(ctx, agent.ID)
	if after.Balance != before.Balance-50_000 {
		t.Errorf("balance: got %d, want %d", after.Balance, before.Balance-50_000)
	}

	txs, _ := env.Engine.AgentStatement(ctx, agent.ID)
	var payouts []*model.Transaction
	for _, tx := range txs {
		if tx.Type == model.TxPayout {
			payouts = append(payouts, tx)
		}
	}
	if len(payouts) != 1 {
		t.Fatalf("payout transactions: got %d, want 1", len(payouts))
	}
	if payouts[0].Amount != -50_000 {
		t.Errorf("payout amount: got %d, want -50000", payouts[0].Amount)
	}
}

func TestPayoutTicket_SecondCallExactMessage(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	ticket, agent := winningTicket(t, env, 0, 1_000)

	if _, err := env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID); err != nil {
		t.Fatalf("first payout: %v", err)
	}

	_, err := env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID)
	if err == nil {
		t.Fatal("second payout should be rejected")
	}
	want := "This ticket has already been paid out."
	if err.Error() != want {
		t.Errorf("rejection: got %q, want %q", err, want)
	}
}

func TestPayoutTicket_ExclusiveUnderConcurrency(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	ticket, agent := winningTicket(t, env, 0, 1_000)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("payouts succeeded: got %d, want exactly 1", succeeded)
	}

	txs, _ := env.Engine.AgentStatement(ctx, agent.ID)
	payouts := 0
	for _, tx := range txs {
		if tx.Type == model.TxPayout {
			payouts++
		}
	}
	if payouts != 1 {
		t.Errorf("payout transactions: got %d, want exactly 1", payouts)
	}

	replayed, cached, _ := env.Engine.ReplayAgentBalance(ctx, agent.ID)
	if replayed != cached {
		t.Errorf("balance diverged: replayed %d, cached %d", replayed, cached)
	}
}

func TestPayoutTicket_NonWinnerRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	ticket, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 100)}, "")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	_, err = env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID)
	if err == nil || !strings.Contains(err.Error(), "not a winner") {
		t.Fatalf("payout of a non-winner should be rejected, got %v", err)
	}
}

func TestPayoutTicket_VoidTicketRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t)
	agent := env.NewAgent(t, 0)

	// The sale path never produces a void ticket, so seed one directly.
	ticket := &model.Ticket{
		ID:           uuid.New(),
		Code:         "VOIDTKT1",
		LotteryID:    lot.ID,
		AgentID:      agent.ID,
		Bets:         []bet.Bet{testutil.Bolet("7", 1_000)},
		TotalAmount:  1_000,
		IsWinner:     true,
		PayoutAmount: 50_000,
		Status:       model.TicketVoid,
		CreatedAt:    env.Now(),
		UpdatedAt:    env.Now(),
	}
	if err := env.Store.CommitSale(ctx, &store.SaleCommit{Ticket: ticket}); err != nil {
		t.Fatalf("seed void ticket: %v", err)
	}

	_, err := env.Engine.PayoutTicket(ctx, ticket.Code, agent.ID)
	if err == nil || !strings.Contains(err.Error(), "voided") {
		t.Fatalf("payout of a void ticket should be rejected, got %v", err)
	}
	if !engine.IsRejection(err) {
		t.Errorf("void rejection should be a client error, got %v", err)
	}
}

func TestPayoutTicket_UnknownCode(t *testing.T) {
	env := testutil.NewEnv(t)
	agent := env.NewAgent(t, 0)

	_, err := env.Engine.PayoutTicket(context.Background(), "ZZZZZZZZ", agent.ID)
	if err == nil || !engine.IsRejection(err) {
		t.Fatalf("payout of unknown ticket should be rejected, got %v", err)
	}
}

// ============================================================================
// Test: SettleAgentBalance
// ============================================================================

func TestSettleAgentBalance_PositiveAmountReducesDebt(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	lot := env.NewLottery(t, func(p *engine.LotteryParams) {
		p.MaxPerNumber[bet.TypeBolet] = 10_000
	})
	agent := env.NewAgent(t, 0)
	admin := env.NewAgent(t, 0)

	// Agent owes 10_000 after a commission-free sale.
	if _, err := env.Engine.SellTicket(ctx, lot.ID, agent.ID,
		[]bet.Bet{testutil.Bolet("7", 10_000)}, ""); err != nil {
		t.Fatalf("sell: %v", err)
	}

	settled, err := env.Engine.SettleAgentBalance(ctx, agent.ID, 10_000, admin.ID, "cash drop")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Balance != 0 {
		t.Errorf("balance after settlement: got %d, want 0", settled.Balance)
	}

	replayed, cached, _ := env.Engine.ReplayAgentBalance(ctx, agent.ID)
	if replayed != cached {
		t.Errorf("balance diverged: replayed %d, cached %d", replayed, cached)
	}
}

func TestSettleAgentBalance_ZeroRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	agent := env.NewAgent(t, 0)
	admin := env.NewAgent(t, 0)

	_, err := env.Engine.SettleAgentBalance(context.Background(), agent.ID, 0, admin.ID, "")
	if err == nil {
		t.Fatal("zero settlement should be rejected")
	}
}
