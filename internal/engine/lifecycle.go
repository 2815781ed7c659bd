package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/store"
)

// DeclareWinners commits the declared winning numbers, completes the
// lottery, and evaluates every ticket. The lottery's winningNumbers
// and completed status are committed before any ticket is touched, so
// a crash mid-evaluation is recovered by RecalculateWinners: retries
// see a populated winning set.
func (e *Engine) DeclareWinners(ctx context.Context, id uuid.UUID, declared map[bet.Type][]string) (*model.Lottery, error) {
	unlock := e.lockLottery(id)
	defer unlock()

	lot, err := e.store.GetLottery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}

	if lot.Status != model.LotteryClosed {
		return nil, Rejectf("winners can only be declared on a closed lottery, status is %s", lot.Status)
	}
	if err := ValidateWinningNumbers(declared); err != nil {
		return nil, err
	}
	if !lot.Status.CanTransitionTo(model.LotteryCompleted) {
		return nil, Rejectf("lottery %q cannot move to completed from %s", lot.Name, lot.Status)
	}

	lot.WinningNumbers = declared
	lot.Status = model.LotteryCompleted
	if err := e.store.UpdateLottery(ctx, lot); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, internalf("update lottery: %v", err)
	}

	evaluated, winners, err := e.evaluateAllTickets(ctx, lot)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.WinnersDeclared.Inc()
	}
	e.log.Info().
		Str("lottery_id", lot.ID.String()).
		Int("tickets_evaluated", evaluated).
		Int("winning_tickets", winners).
		Msg("winners declared")

	e.publish("lottery.completed", map[string]any{
		"lottery":        lot.ID.String(),
		"name":           lot.Name,
		"winningNumbers": lot.WinningNumbers,
		"winningTickets": winners,
	})

	return lot, nil
}

// RecalculateWinners re-runs the bulk evaluation against the already
// declared winning numbers. Idempotent: unchanged inputs yield the
// same results. Used to resume a declaration interrupted mid-batch.
func (e *Engine) RecalculateWinners(ctx context.Context, id uuid.UUID) (*model.Lottery, error) {
	lot, err := e.store.GetLottery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}

	if len(lot.WinningNumbers) == 0 {
		return nil, Rejectf("lottery %q has no declared winning numbers", lot.Name)
	}

	evaluated, winners, err := e.evaluateAllTickets(ctx, lot)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("lottery_id", lot.ID.String()).
		Int("tickets_evaluated", evaluated).
		Int("winning_tickets", winners).
		Msg("winners recalculated")

	return lot, nil
}

// evaluateAllTickets runs the matcher over every ticket of the lottery
// and persists each result unconditionally. Each ticket's update is an
// independent write, so a failure partway is resumable.
func (e *Engine) evaluateAllTickets(ctx context.Context, lot *model.Lottery) (evaluated, winners int, err error) {
	tickets, err := e.store.TicketsByLottery(ctx, lot.ID)
	if err != nil {
		return 0, 0, internalf("load tickets: %v", err)
	}

	for _, t := range tickets {
		isWinner, payout := EvaluateTicket(lot, t)
		if err := e.store.UpdateTicketResult(ctx, t.ID, isWinner, payout); err != nil {
			return evaluated, winners, internalf("persist result for ticket %s: %v", t.Code, err)
		}
		evaluated++
		if isWinner {
			winners++
		}
	}

	if e.metrics != nil {
		e.metrics.TicketsEvaluated.Add(float64(evaluated))
		e.metrics.WinningTickets.Add(float64(winners))
	}
	return evaluated, winners, nil
}

// CloseDueLotteries flips every open lottery whose draw date has
// passed to closed. Idempotent and safe to run concurrently with
// itself: a lottery already closed by another sweep run is skipped,
// and a version conflict means the other run won.
func (e *Engine) CloseDueLotteries(ctx context.Context) (int, error) {
	start := time.Now()
	now := e.now()

	due, err := e.store.ListDueLotteries(ctx, now)
	if err != nil {
		return 0, internalf("list due lotteries: %v", err)
	}

	closed := 0
	for _, candidate := range due {
		unlock := e.lockLottery(candidate.ID)

		lot, err := e.store.GetLottery(ctx, candidate.ID)
		if err != nil {
			unlock()
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return closed, internalf("load lottery: %v", err)
		}
		if lot.Status != model.LotteryOpen || lot.DrawDate.After(now) {
			unlock()
			continue
		}

		lot.Status = model.LotteryClosed
		err = e.store.UpdateLottery(ctx, lot)
		unlock()
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return closed, internalf("close lottery %s: %v", lot.ID, err)
		}

		closed++
		if e.metrics != nil {
			e.metrics.LotteriesClosed.Inc()
		}
		e.log.Info().
			Str("lottery_id", lot.ID.String()).
			Time("draw_date", lot.DrawDate).
			Msg("lottery auto-closed")

		e.publish("lottery.closed", map[string]any{
			"lottery": lot.ID.String(),
			"name":    lot.Name,
		})
	}

	if e.metrics != nil {
		e.metrics.SweepRuns.Inc()
		e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	return closed, nil
}

// GetTicket fetches a ticket by code and reconciles a stale result:
// when the lottery has completed after this ticket was last evaluated,
// the stored isWinner/payoutAmount may not reflect the declared
// numbers, so the matcher re-runs and the result is persisted only if
// it changed. Paid-out tickets are never rewritten; the money has
// already moved.
func (e *Engine) GetTicket(ctx context.Context, code string) (*model.Ticket, error) {
	t, err := e.store.GetTicketByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("ticket %q not found", code)
	}
	if err != nil {
		return nil, internalf("load ticket: %v", err)
	}

	lot, err := e.store.GetLottery(ctx, t.LotteryID)
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}
	if lot.Status != model.LotteryCompleted || t.Status != model.TicketActive {
		return t, nil
	}

	isWinner, payout := EvaluateTicket(lot, t)
	if isWinner == t.IsWinner && payout == t.PayoutAmount {
		return t, nil
	}

	if err := e.store.UpdateTicketResult(ctx, t.ID, isWinner, payout); err != nil {
		return nil, internalf("persist reconciled result: %v", err)
	}
	t.IsWinner = isWinner
	t.PayoutAmount = payout

	if e.metrics != nil {
		e.metrics.LazyReevaluations.Inc()
	}
	e.log.Info().
		Str("ticket_code", t.Code).
		Bool("is_winner", isWinner).
		Int64("payout_cents", payout).
		Msg("stale ticket result corrected at lookup")

	return t, nil
}

// GetSoldNumbers returns the distinct bolet/mariage numbers with any
// stake sold, sorted. The grid UI uses this to mark numbers as taken.
func (e *Engine) GetSoldNumbers(ctx context.Context, id uuid.UUID) ([]string, error) {
	sold, err := e.store.SoldAmounts(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return nil, internalf("load sold amounts: %v", err)
	}

	seen := make(map[string]struct{})
	for k, amount := range sold {
		if amount <= 0 {
			continue
		}
		if k.Type != bet.TypeBolet && k.Type != bet.TypeMariage {
			continue
		}
		seen[k.Number] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// TicketsByLottery lists every ticket sold against a lottery.
func (e *Engine) TicketsByLottery(ctx context.Context, id uuid.UUID) ([]*model.Ticket, error) {
	tickets, err := e.store.TicketsByLottery(ctx, id)
	if err != nil {
		return nil, internalf("load tickets: %v", err)
	}
	return tickets, nil
}

// TicketsByAgent lists an agent's most recent tickets, newest first.
func (e *Engine) TicketsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*model.Ticket, error) {
	tickets, err := e.store.TicketsByAgent(ctx, agentID, limit)
	if err != nil {
		return nil, internalf("load tickets: %v", err)
	}
	return tickets, nil
}
