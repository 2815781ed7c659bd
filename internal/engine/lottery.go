package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/model"
	"borlette/internal/store"
)

// LotteryParams is the admin-supplied configuration for a new lottery.
// MaxPerNumberAll is the legacy single-cap shorthand: when set it is
// expanded to a per-type map here, once, and the shorthand never
// reaches the core.
type LotteryParams struct {
	Name              string
	DrawDate          time.Time
	NumberRange       model.NumberRange
	NumWinningNumbers int
	PayoutRules       map[bet.Type]int64
	MaxPerNumber      map[bet.Type]int64
	MaxPerNumberAll   *int64
	BetLimits         map[bet.Type]model.AmountRange
	States            []string
}

// CreateLottery validates the configuration and persists a new open
// lottery.
func (e *Engine) CreateLottery(ctx context.Context, p LotteryParams) (*model.Lottery, error) {
	now := e.now()

	lot := &model.Lottery{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(p.Name),
		Status:            model.LotteryOpen,
		DrawDate:          p.DrawDate,
		NumberRange:       p.NumberRange,
		NumWinningNumbers: p.NumWinningNumbers,
		PayoutRules:       p.PayoutRules,
		MaxPerNumber:      expandCaps(p.MaxPerNumber, p.MaxPerNumberAll),
		BetLimits:         p.BetLimits,
		States:            trimStates(p.States),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := validateLotteryConfig(lot, now); err != nil {
		return nil, err
	}

	if err := e.store.CreateLottery(ctx, lot); err != nil {
		return nil, internalf("create lottery: %v", err)
	}

	e.log.Info().
		Str("lottery_id", lot.ID.String()).
		Str("name", lot.Name).
		Time("draw_date", lot.DrawDate).
		Msg("lottery created")

	return lot, nil
}

// UpdateParams carries a partial lottery update; nil fields are left
// unchanged. Setting a future DrawDate on a closed lottery reopens it.
type UpdateParams struct {
	Name              *string
	DrawDate          *time.Time
	NumberRange       *model.NumberRange
	NumWinningNumbers *int
	PayoutRules       map[bet.Type]int64
	MaxPerNumber      map[bet.Type]int64
	MaxPerNumberAll   *int64
	BetLimits         map[bet.Type]model.AmountRange
	States            []string
}

// UpdateLottery applies a partial admin update. Rejected once the
// lottery is completed; bet-affecting fields are re-validated.
func (e *Engine) UpdateLottery(ctx context.Context, id uuid.UUID, p UpdateParams) (*model.Lottery, error) {
	unlock := e.lockLottery(id)
	defer unlock()

	lot, err := e.store.GetLottery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}

	if lot.Status == model.LotteryCompleted {
		return nil, Rejectf("lottery %q is completed and can no longer be updated", lot.Name)
	}

	now := e.now()

	if p.Name != nil {
		lot.Name = strings.TrimSpace(*p.Name)
	}
	if p.DrawDate != nil {
		lot.DrawDate = *p.DrawDate
		// A future draw date recovers a closed lottery back to open.
		if lot.Status == model.LotteryClosed && lot.DrawDate.After(now) &&
			lot.Status.CanTransitionTo(model.LotteryOpen) {
			lot.Status = model.LotteryOpen
		}
	}
	if p.NumberRange != nil {
		lot.NumberRange = *p.NumberRange
	}
	if p.NumWinningNumbers != nil {
		lot.NumWinningNumbers = *p.NumWinningNumbers
	}
	if p.PayoutRules != nil {
		lot.PayoutRules = p.PayoutRules
	}
	if p.MaxPerNumber != nil || p.MaxPerNumberAll != nil {
		lot.MaxPerNumber = expandCaps(p.MaxPerNumber, p.MaxPerNumberAll)
	}
	if p.BetLimits != nil {
		lot.BetLimits = p.BetLimits
	}
	if p.States != nil {
		lot.States = trimStates(p.States)
	}

	if err := validateLotteryConfig(lot, time.Time{}); err != nil {
		return nil, err
	}

	if err := e.store.UpdateLottery(ctx, lot); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, internalf("update lottery: %v", err)
	}

	e.log.Info().
		Str("lottery_id", lot.ID.String()).
		Str("status", string(lot.Status)).
		Msg("lottery updated")

	return lot, nil
}

// DeleteLottery removes a lottery that never sold a ticket. Completed
// lotteries and lotteries with tickets are permanent records.
func (e *Engine) DeleteLottery(ctx context.Context, id uuid.UUID) error {
	unlock := e.lockLottery(id)
	defer unlock()

	lot, err := e.store.GetLottery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return internalf("load lottery: %v", err)
	}

	if lot.Status == model.LotteryCompleted {
		return Rejectf("lottery %q is completed and cannot be deleted", lot.Name)
	}
	n, err := e.store.CountTickets(ctx, id)
	if err != nil {
		return internalf("count tickets: %v", err)
	}
	if n > 0 {
		return Rejectf("lottery %q has %d tickets and cannot be deleted", lot.Name, n)
	}

	if err := e.store.DeleteLottery(ctx, id); err != nil {
		return internalf("delete lottery: %v", err)
	}

	e.log.Info().Str("lottery_id", id.String()).Msg("lottery deleted")
	return nil
}

// GetLottery returns one lottery.
func (e *Engine) GetLottery(ctx context.Context, id uuid.UUID) (*model.Lottery, error) {
	lot, err := e.store.GetLottery(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("lottery %s not found", id)
	}
	if err != nil {
		return nil, internalf("load lottery: %v", err)
	}
	return lot, nil
}

// ListLotteries returns every lottery, oldest first.
func (e *Engine) ListLotteries(ctx context.Context) ([]*model.Lottery, error) {
	lots, err := e.store.ListLotteries(ctx)
	if err != nil {
		return nil, internalf("list lotteries: %v", err)
	}
	return lots, nil
}

// expandCaps resolves the legacy all-types shorthand into the per-type
// map representation used everywhere else.
func expandCaps(perType map[bet.Type]int64, all *int64) map[bet.Type]int64 {
	if all != nil {
		out := make(map[bet.Type]int64, len(bet.AllTypes))
		for _, t := range bet.AllTypes {
			out[t] = *all
		}
		return out
	}
	return perType
}

func trimStates(states []string) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validateLotteryConfig checks the bet-affecting configuration. When
// notBefore is non-zero the draw date must lie after it (creation
// path); updates may keep a past draw date, the sweep handles those.
func validateLotteryConfig(lot *model.Lottery, notBefore time.Time) error {
	if lot.Name == "" {
		return Rejectf("lottery name is required")
	}
	if lot.DrawDate.IsZero() {
		return Rejectf("draw date is required")
	}
	if !notBefore.IsZero() && !lot.DrawDate.After(notBefore) {
		return Rejectf("draw date must be in the future")
	}
	if lot.NumberRange.Min < 0 || lot.NumberRange.Min > lot.NumberRange.Max {
		return Rejectf("number range %d..%d is invalid", lot.NumberRange.Min, lot.NumberRange.Max)
	}

	for _, t := range []bet.Type{bet.TypeBolet, bet.TypeMariage} {
		if lot.PayoutRules[t] <= 0 {
			return Rejectf("payout rule for %s is required", t)
		}
	}
	for t, m := range lot.PayoutRules {
		if !t.Valid() {
			return Rejectf("payout rule for unknown bet type %q", t)
		}
		if m <= 0 {
			return Rejectf("payout multiplier for %s must be positive", t)
		}
	}

	for t, c := range lot.MaxPerNumber {
		if !t.Valid() {
			return Rejectf("sales cap for unknown bet type %q", t)
		}
		if c <= 0 {
			return Rejectf("sales cap for %s must be positive", t)
		}
	}

	for t, r := range lot.BetLimits {
		if !t.Valid() {
			return Rejectf("bet limit for unknown bet type %q", t)
		}
		if r.Min < 0 || r.Min > r.Max {
			return Rejectf("bet limit %d..%d for %s is invalid", r.Min, r.Max, t)
		}
	}

	if len(lot.States) == 0 {
		return Rejectf("at least one state is required")
	}

	return nil
}
