// Package model defines the persisted record types: lotteries, tickets,
// transactions and agents. Mutation rules live in the engine; the types
// here carry the state machines and invariant helpers.
package model

import (
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
)

// LotteryStatus is the lifecycle state of a lottery.
type LotteryStatus string

const (
	LotteryOpen      LotteryStatus = "open"
	LotteryClosed    LotteryStatus = "closed"
	LotteryCompleted LotteryStatus = "completed"
)

// CanTransitionTo validates lifecycle transitions. No state is skipped;
// the only backward move is closed→open when an admin pushes the draw
// date into the future. Completed is terminal.
func (s LotteryStatus) CanTransitionTo(next LotteryStatus) bool {
	validTransitions := map[LotteryStatus][]LotteryStatus{
		LotteryOpen: {
			LotteryClosed,
		},
		LotteryClosed: {
			LotteryCompleted,
			LotteryOpen, // Draw date moved to the future
		},
		LotteryCompleted: {},
	}

	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// NumberRange is the inclusive legal domain for bolet/mariage numbers.
type NumberRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether n lies within the range.
func (r NumberRange) Contains(n int64) bool {
	return n >= r.Min && n <= r.Max
}

// AmountRange bounds a single bet's stake, in cents, inclusive.
type AmountRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// DefaultMaxPerNumber is the per-(type,number) sales cap applied when a
// lottery config leaves it unset, in cents ($50).
const DefaultMaxPerNumber int64 = 5000

// Lottery is one betting event. MaxPerNumber and PayoutRules are always
// fully-expanded per-type maps: the legacy single-number shorthand is
// converted once at the engine boundary, never interpreted downstream.
type Lottery struct {
	ID                uuid.UUID                    `json:"id"`
	Name              string                       `json:"name"`
	Status            LotteryStatus                `json:"status"`
	DrawDate          time.Time                    `json:"drawDate"`
	NumberRange       NumberRange                  `json:"validNumberRange"`
	NumWinningNumbers int                          `json:"numberOfWinningNumbers"` // informational only
	PayoutRules       map[bet.Type]int64           `json:"payoutRules"`            // multiplier per type
	MaxPerNumber      map[bet.Type]int64           `json:"maxPerNumber"`           // cents per (type,number)
	BetLimits         map[bet.Type]AmountRange     `json:"betLimits,omitempty"`
	States            []string                     `json:"states"`
	WinningNumbers    map[bet.Type][]string        `json:"winningNumbers,omitempty"` // populated at completion
	TicketsSold       int64                        `json:"ticketsSold"`
	Version           int64                        `json:"-"` // optimistic concurrency control
	CreatedAt         time.Time                    `json:"createdAt"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

// HasState reports whether s is one of the lottery's jurisdictions.
func (l *Lottery) HasState(s string) bool {
	for _, st := range l.States {
		if st == s {
			return true
		}
	}
	return false
}

// CapFor returns the sales cap in cents for a bet type.
func (l *Lottery) CapFor(t bet.Type) int64 {
	if c, ok := l.MaxPerNumber[t]; ok {
		return c
	}
	return DefaultMaxPerNumber
}

// PayoutFor returns the payout multiplier for a bet type, falling back
// to the variant table default for play3/play4.
func (l *Lottery) PayoutFor(t bet.Type) int64 {
	if m, ok := l.PayoutRules[t]; ok {
		return m
	}
	return bet.Rules[t].DefaultPayout
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketActive  TicketStatus = "active"
	TicketPaidOut TicketStatus = "paid_out"
	TicketVoid    TicketStatus = "void"
)

// Ticket is one sale to a bettor: an ordered bundle of bets owned by one
// agent against one lottery. Code is the short human-presentable
// identifier, globally unique across all tickets.
type Ticket struct {
	ID           uuid.UUID    `json:"id"`
	Code         string       `json:"code"`
	LotteryID    uuid.UUID    `json:"lottery"`
	AgentID      uuid.UUID    `json:"agent"`
	Bets         []bet.Bet    `json:"bets"`
	TotalAmount  int64        `json:"totalAmount"` // cents, immutable once set
	IsWinner     bool         `json:"isWinner"`
	PayoutAmount int64        `json:"payoutAmount"` // cents
	Status       TicketStatus `json:"status"`
	Period       string       `json:"period"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// TransactionType classifies ledger entries.
type TransactionType string

const (
	// TxSale records the gross amount an agent collected for a ticket.
	TxSale TransactionType = "sale"
	// TxCommission records the agent's cut, signed negative (it reduces
	// what the agent owes the house).
	TxCommission TransactionType = "commission"
	// TxPayout records a winner payout advanced by the agent, signed negative.
	TxPayout TransactionType = "payout"
	// TxSettlement records a manual admin adjustment, either sign.
	TxSettlement TransactionType = "settlement"
)

// Transaction is an immutable ledger entry. The agent's cached balance
// is the running sum of Amount over all transactions referencing the
// agent; replaying the history must reproduce it exactly.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	AgentID     uuid.UUID       `json:"agent"`
	TicketID    *uuid.UUID      `json:"ticket,omitempty"`
	LotteryID   *uuid.UUID      `json:"relatedLottery,omitempty"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"` // signed cents; positive = agent owes house
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// AgentStatus is an agent account's standing.
type AgentStatus string

const (
	AgentActive      AgentStatus = "active"
	AgentDeactivated AgentStatus = "deactivated"
)

// Agent is a field seller. Balance is a cached projection of the
// transaction history: positive means the agent owes the house.
type Agent struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Balance       int64       `json:"balance"` // signed cents
	CommissionBps int64       `json:"commissionBps"`
	Status        AgentStatus `json:"status"`
	Version       int64       `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
