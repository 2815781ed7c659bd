package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"borlette/internal/model"
	"borlette/internal/money"
	"borlette/internal/store"
)

// PayoutTicket pays a winning ticket: one payout transaction, one
// balance debit against the paying agent, and the active→paid_out
// status flip, committed atomically. The store enforces the flip
// conditionally, so a second attempt — sequential or concurrent —
// always fails even if it passed the pre-checks here.
func (e *Engine) PayoutTicket(ctx context.Context, ticketCode string, agentID uuid.UUID) (*model.Ticket, error) {
	t, err := e.store.GetTicketByCode(ctx, ticketCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejectPayout("ticket_not_found", Rejectf("ticket %q not found", ticketCode))
	}
	if err != nil {
		return nil, internalf("load ticket: %v", err)
	}

	if !t.IsWinner {
		return nil, e.rejectPayout("not_a_winner", Rejectf("ticket %q is not a winner", ticketCode))
	}
	if t.Status == model.TicketPaidOut {
		return nil, e.rejectPayout("already_paid", Rejectf("This ticket has already been paid out."))
	}
	if t.Status == model.TicketVoid {
		return nil, e.rejectPayout("void", Rejectf("ticket %q has been voided", ticketCode))
	}

	agent, err := e.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.rejectPayout("agent_not_found", Rejectf("agent %s not found", agentID))
	}
	if err != nil {
		return nil, internalf("load agent: %v", err)
	}

	now := e.now()
	commit := &store.PayoutCommit{
		TicketID: t.ID,
		AgentID:  agent.ID,
		Transaction: &model.Transaction{
			ID:          uuid.New(),
			AgentID:     agent.ID,
			TicketID:    &t.ID,
			LotteryID:   &t.LotteryID,
			Type:        model.TxPayout,
			Amount:      -t.PayoutAmount,
			Description: fmt.Sprintf("payout for ticket %s", t.Code),
			CreatedAt:   now,
		},
	}

	if err := e.store.CommitPayout(ctx, commit); err != nil {
		if errors.Is(err, store.ErrNotPayable) {
			return nil, e.rejectPayout("already_paid", Rejectf("This ticket has already been paid out."))
		}
		return nil, internalf("commit payout: %v", err)
	}

	t.Status = model.TicketPaidOut
	t.UpdatedAt = now

	if e.metrics != nil {
		e.metrics.Payouts.Inc()
		e.metrics.PayoutAmount.Add(float64(t.PayoutAmount))
	}
	e.log.Info().
		Str("ticket_code", t.Code).
		Str("agent_id", agent.ID.String()).
		Int64("payout_cents", t.PayoutAmount).
		Msg("ticket paid out")

	e.publish("ticket.paid", map[string]any{
		"code":         t.Code,
		"agent":        agent.ID.String(),
		"payoutAmount": money.ToDecimal(t.PayoutAmount),
	})

	return t, nil
}

func (e *Engine) rejectPayout(reason string, err error) error {
	if e.metrics != nil {
		e.metrics.PayoutsRejected.WithLabelValues(reason).Inc()
	}
	return err
}

// SettleAgentBalance posts a manual settlement against an agent's
// ledger. Sign convention: a positive signedAmount reduces what the
// agent owes the house, so the posted transaction carries -signedAmount.
func (e *Engine) SettleAgentBalance(ctx context.Context, agentID uuid.UUID, signedAmount int64, adminID uuid.UUID, description string) (*model.Agent, error) {
	if signedAmount == 0 {
		return nil, Rejectf("settlement amount must be non-zero")
	}

	agent, err := e.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("agent %s not found", agentID)
	}
	if err != nil {
		return nil, internalf("load agent: %v", err)
	}

	if description == "" {
		description = fmt.Sprintf("manual settlement by admin %s", adminID)
	}

	tx := &model.Transaction{
		ID:          uuid.New(),
		AgentID:     agent.ID,
		Type:        model.TxSettlement,
		Amount:      -signedAmount,
		Description: description,
		CreatedAt:   e.now(),
	}
	if err := e.store.CommitSettlement(ctx, tx); err != nil {
		return nil, internalf("commit settlement: %v", err)
	}

	if e.metrics != nil {
		e.metrics.Settlements.Inc()
	}
	e.log.Info().
		Str("agent_id", agent.ID.String()).
		Str("admin_id", adminID.String()).
		Int64("amount_cents", tx.Amount).
		Msg("agent balance settled")

	e.publish("agent.settled", map[string]any{
		"agent":  agent.ID.String(),
		"amount": money.ToDecimal(tx.Amount),
	})

	return e.store.GetAgent(ctx, agentID)
}

// ReplayAgentBalance recomputes an agent's balance from the full
// transaction history. Used by reconciliation checks: the replayed sum
// must equal the cached balance at all times.
func (e *Engine) ReplayAgentBalance(ctx context.Context, agentID uuid.UUID) (replayed, cached int64, err error) {
	agent, err := e.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, Rejectf("agent %s not found", agentID)
	}
	if err != nil {
		return 0, 0, internalf("load agent: %v", err)
	}

	txs, err := e.store.TransactionsByAgent(ctx, agentID)
	if err != nil {
		return 0, 0, internalf("load transactions: %v", err)
	}
	for _, tx := range txs {
		replayed += tx.Amount
	}

	if replayed != agent.Balance {
		e.log.Error().
			Str("agent_id", agentID.String()).
			Int64("cached_cents", agent.Balance).
			Int64("replayed_cents", replayed).
			Msg("agent balance diverged from transaction history")
	}

	return replayed, agent.Balance, nil
}
