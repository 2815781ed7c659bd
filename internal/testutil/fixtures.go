// Package testutil provides shared fixtures for engine and server
// tests: an engine wired to the in-memory store with a controllable
// clock, and canned lottery/agent configurations.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"borlette/internal/bet"
	"borlette/internal/engine"
	"borlette/internal/model"
	"borlette/internal/store"
)

// BaseTime is the fixed wall clock tests start from.
var BaseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Env bundles an engine, its backing store and a movable clock.
type Env struct {
	Engine *engine.Engine
	Store  *store.Memory
	now    time.Time
}

// NewEnv creates an engine on a fresh in-memory store. The clock
// starts at BaseTime and only moves via Advance.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	env := &Env{
		Store: store.NewMemory(),
		now:   BaseTime,
	}
	env.Engine = engine.New(env.Store, zerolog.Nop(), nil)
	env.Engine.SetClock(func() time.Time { return env.now })
	return env
}

// Advance moves the engine's clock forward.
func (e *Env) Advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// Now returns the engine's current clock.
func (e *Env) Now() time.Time {
	return e.now
}

// LotteryParams returns a standard two-digit lottery drawing one hour
// from BaseTime: range 0..99, bolet cap $50, payouts bolet×50 and
// mariage×1000.
func LotteryParams() engine.LotteryParams {
	return engine.LotteryParams{
		Name:              "New York Midi",
		DrawDate:          BaseTime.Add(time.Hour),
		NumberRange:       model.NumberRange{Min: 0, Max: 99},
		NumWinningNumbers: 3,
		PayoutRules: map[bet.Type]int64{
			bet.TypeBolet:   50,
			bet.TypeMariage: 1000,
		},
		MaxPerNumber: map[bet.Type]int64{
			bet.TypeBolet:   5000,
			bet.TypeMariage: 5000,
		},
		States: []string{"haiti", "newyork", "florida"},
	}
}

// NewLottery creates a lottery from LotteryParams, with overrides
// applied first.
func (e *Env) NewLottery(t *testing.T, mutate ...func(*engine.LotteryParams)) *model.Lottery {
	t.Helper()

	p := LotteryParams()
	for _, m := range mutate {
		m(&p)
	}
	lot, err := e.Engine.CreateLottery(context.Background(), p)
	if err != nil {
		t.Fatalf("create lottery: %v", err)
	}
	return lot
}

// NewAgent creates an active agent with the given commission rate in
// basis points.
func (e *Env) NewAgent(t *testing.T, commissionBps int64) *model.Agent {
	t.Helper()

	agent, err := e.Engine.CreateAgent(context.Background(), "Ti Jean", commissionBps)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

// Bolet builds a single-number bolet bet.
func Bolet(number string, cents int64) bet.Bet {
	return bet.Bet{
		Type:    bet.TypeBolet,
		Numbers: []string{number},
		Amounts: []int64{cents},
	}
}

// Mariage builds a two-number mariage bet.
func Mariage(a, b string, cents int64) bet.Bet {
	return bet.Bet{
		Type:    bet.TypeMariage,
		Numbers: []string{a, b},
		Amounts: []int64{cents},
	}
}

// Play3 builds a play3 bet in the given state.
func Play3(number, state string, cents int64) bet.Bet {
	return bet.Bet{
		Type:    bet.TypePlay3,
		Numbers: []string{number},
		Amounts: []int64{cents},
		State:   state,
	}
}

// Play4 builds a play4 bet in the given state.
func Play4(number, state string, cents int64) bet.Bet {
	return bet.Bet{
		Type:    bet.TypePlay4,
		Numbers: []string{number},
		Amounts: []int64{cents},
		State:   state,
	}
}

// WinningNumbers returns a full declaration where the bolet winners
// are the given numbers and the other types get fixed filler values.
func WinningNumbers(bolet ...string) map[bet.Type][]string {
	return map[bet.Type][]string{
		bet.TypeBolet:   bolet,
		bet.TypeMariage: {"12-34"},
		bet.TypePlay3:   {"123"},
		bet.TypePlay4:   {"1234"},
	}
}
