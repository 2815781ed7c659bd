package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/money"
	"borlette/internal/store"
)

const (
	ticketCodeLength = 8
	ticketCodeTries  = 5
	codeAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// SellTicket validates, allocates capacity for, and atomically commits
// one ticket sale. The whole sequence runs under the lottery's lock so
// two concurrent sales cannot both pass the capacity check and jointly
// oversell a number.
func (e *Engine) SellTicket(ctx context.Context, lotteryID, agentID uuid.UUID, bets []bet.Bet, period string) (*model.Ticket, error) {
	start := time.Now()
	unlock := e.lockLottery(lotteryID)
	defer unlock()

	lot, err := e.store.GetLottery(ctx, lotteryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejectSale("lottery_not_found", Rejectf("lottery %s not found", lotteryID))
	}
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}

	now := e.now()
	if lot.Status != model.LotteryOpen {
		return nil, e.rejectSale("lottery_not_open", Rejectf("lottery %q is not open for sales", lot.Name))
	}
	if !now.Before(lot.DrawDate) {
		return nil, e.rejectSale("lottery_not_open", Rejectf("sales for lottery %q closed at its draw date", lot.Name))
	}

	bets = normalizeBets(bets)
	if err := validateBets(lot, bets); err != nil {
		return nil, e.rejectSale("validation", err)
	}

	sold, err := e.store.SoldAmounts(ctx, lotteryID)
	if err != nil {
		return nil, internalf("load sold amounts: %v", err)
	}
	if err := checkCapacity(lot, sold, bets); err != nil {
		return nil, e.rejectSale("sold_out", err)
	}

	agent, err := e.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejectSale("agent_not_found", Rejectf("agent %s not found", agentID))
	}
	if err != nil {
		return nil, internalf("load agent: %v", err)
	}
	if agent.Status != model.AgentActive {
		return nil, e.rejectSale("agent_deactivated", Rejectf("agent %q is deactivated", agent.Name))
	}

	var totalAmount int64
	for _, b := range bets {
		totalAmount += b.Stake()
	}
	commission := money.Commission(totalAmount, agent.CommissionBps)

	ticket := &model.Ticket{
		ID:          uuid.New(),
		LotteryID:   lotteryID,
		AgentID:     agentID,
		Bets:        bets,
		TotalAmount: totalAmount,
		Status:      model.TicketActive,
		Period:      period,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The sale posts two ledger rows: the gross stake the agent
	// collected, and the commission that offsets it. The net effect on
	// the balance is total - commission, and the cached balance stays
	// equal to the sum of the agent's transaction history.
	commit := &store.SaleCommit{
		Ticket: ticket,
		Transactions: []*model.Transaction{
			{
				ID:          uuid.New(),
				AgentID:     agentID,
				TicketID:    &ticket.ID,
				LotteryID:   &lotteryID,
				Type:        model.TxSale,
				Amount:      totalAmount,
				Description: "ticket sale",
				CreatedAt:   now,
			},
			{
				ID:          uuid.New(),
				AgentID:     agentID,
				TicketID:    &ticket.ID,
				LotteryID:   &lotteryID,
				Type:        model.TxCommission,
				Amount:      -commission,
				Description: "sale commission",
				CreatedAt:   now,
			},
		},
	}

	// Code collisions are resolved by regenerating and retrying the
	// whole commit. Exhausting the budget is an internal failure, not a
	// validation rejection.
	for attempt := 0; ; attempt++ {
		code, err := e.newTicketCode()
		if err != nil {
			return nil, internalf("generate ticket code: %v", err)
		}
		ticket.Code = code

		err = e.store.CommitSale(ctx, commit)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			return nil, internalf("commit sale: %v", err)
		}
		if e.metrics != nil {
			e.metrics.TicketCodeRetries.Inc()
		}
		if attempt+1 >= ticketCodeTries {
			return nil, internalf("ticket code generation exhausted %d attempts", ticketCodeTries)
		}
	}

	if e.metrics != nil {
		e.metrics.TicketsSold.Inc()
		e.metrics.SaleAmount.Add(float64(totalAmount))
		e.metrics.CommissionAccrued.Add(float64(commission))
		e.metrics.SaleDuration.Observe(time.Since(start).Seconds())
	}
	e.log.Info().
		Str("ticket_code", ticket.Code).
		Str("lottery_id", lotteryID.String()).
		Str("agent_id", agentID.String()).
		Int("bets", len(bets)).
		Int64("total_cents", totalAmount).
		Int64("commission_cents", commission).
		Msg("ticket sold")

	e.publish("ticket.sold", map[string]any{
		"code":        ticket.Code,
		"lottery":     lotteryID.String(),
		"agent":       agentID.String(),
		"totalAmount": money.ToDecimal(totalAmount),
		"period":      period,
	})

	return ticket, nil
}

func (e *Engine) rejectSale(reason string, err error) error {
	if e.metrics != nil {
		e.metrics.SalesRejected.WithLabelValues(reason).Inc()
	}
	return err
}

// newTicketCode builds a short presentable code: three base36 chars of
// the current time followed by random chars. The time prefix keeps
// codes from the same sale window apart; the random tail carries the
// uniqueness. Collisions are handled by the caller's retry loop.
func (e *Engine) newTicketCode() (string, error) {
	buf := make([]byte, ticketCodeLength)

	ts := e.now().UnixMilli()
	for i := 2; i >= 0; i-- {
		buf[i] = codeAlphabet[ts%36]
		ts /= 36
	}

	rnd := make([]byte, ticketCodeLength-3)
	if _, err := rand.Read(rnd); err != nil {
		return "", err
	}
	for i, b := range rnd {
		buf[3+i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return string(buf), nil
}
