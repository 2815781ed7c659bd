// Package store persists lotteries, tickets, agents and the transaction
// ledger. Money-moving writes are exposed as commit operations that the
// backends apply atomically: a SQL transaction in Postgres, a mutex in
// the in-memory store. Validation never reaches this layer.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCode is returned by CommitSale when the generated
	// ticket code collides with an existing ticket.
	ErrDuplicateCode = errors.New("ticket code already exists")

	// ErrVersionConflict is returned when an optimistic update lost the
	// race; callers should re-fetch and retry.
	ErrVersionConflict = errors.New("concurrent update conflict")

	// ErrNotPayable is returned by CommitPayout when the ticket is no
	// longer in active status — a second payout attempt, sequential or
	// concurrent, always fails here even if the caller's pre-check passed.
	ErrNotPayable = errors.New("ticket is not payable")
)

// SaleCommit is the atomic unit written for one ticket sale: the ticket,
// its ledger rows, the agent balance adjustment, and the lottery's sold
// counter. All four land together or not at all.
type SaleCommit struct {
	Ticket       *model.Ticket
	Transactions []*model.Transaction
}

// BalanceDelta is the net effect of the commit on the agent's balance —
// by construction the sum of the transaction amounts, which keeps the
// cached balance reconcilable by replay.
func (c *SaleCommit) BalanceDelta() int64 {
	var delta int64
	for _, tx := range c.Transactions {
		delta += tx.Amount
	}
	return delta
}

// PayoutCommit is the atomic unit for paying a winning ticket: the
// ledger row, the agent debit, and the active→paid_out status flip.
type PayoutCommit struct {
	TicketID    uuid.UUID
	AgentID     uuid.UUID
	Transaction *model.Transaction
}

// Store is the persistence contract for the engine.
type Store interface {
	// Lotteries
	CreateLottery(ctx context.Context, l *model.Lottery) error
	GetLottery(ctx context.Context, id uuid.UUID) (*model.Lottery, error)
	// UpdateLottery applies an optimistic write: the stored Version must
	// match l.Version, and the write bumps it.
	UpdateLottery(ctx context.Context, l *model.Lottery) error
	DeleteLottery(ctx context.Context, id uuid.UUID) error
	ListLotteries(ctx context.Context) ([]*model.Lottery, error)
	// ListDueLotteries returns open lotteries whose draw date is at or
	// before now, for the lifecycle sweep.
	ListDueLotteries(ctx context.Context, now time.Time) ([]*model.Lottery, error)

	// Tickets
	GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error)
	TicketsByLottery(ctx context.Context, lotteryID uuid.UUID) ([]*model.Ticket, error)
	TicketsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*model.Ticket, error)
	CountTickets(ctx context.Context, lotteryID uuid.UUID) (int64, error)
	// UpdateTicketResult persists a matcher evaluation. Independent of
	// any other write; safe to re-run.
	UpdateTicketResult(ctx context.Context, ticketID uuid.UUID, isWinner bool, payoutAmount int64) error
	// SoldAmounts returns the cents already sold per (type, number)
	// bucket for a lottery. CommitSale maintains the aggregate, so
	// capacity checks never scan tickets.
	SoldAmounts(ctx context.Context, lotteryID uuid.UUID) (map[bet.Key]int64, error)

	// Agents
	CreateAgent(ctx context.Context, a *model.Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error)
	UpdateAgent(ctx context.Context, a *model.Agent) error

	// Ledger
	TransactionsByAgent(ctx context.Context, agentID uuid.UUID) ([]*model.Transaction, error)

	// Atomic commits
	CommitSale(ctx context.Context, c *SaleCommit) error
	CommitPayout(ctx context.Context, c *PayoutCommit) error
	// CommitSettlement posts a settlement transaction and adjusts the
	// agent balance by its amount, atomically.
	CommitSettlement(ctx context.Context, tx *model.Transaction) error
}
