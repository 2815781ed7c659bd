package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"borlette/internal/bet"
	"borlette/internal/model"
)

// Memory is an in-memory Store used by tests and local development.
// A single mutex guards every operation, so each commit is trivially
// atomic and the backend exhibits the same serializability the Postgres
// store provides through SQL transactions.
type Memory struct {
	mu           sync.Mutex
	lotteries    map[uuid.UUID]*model.Lottery
	tickets      map[uuid.UUID]*model.Ticket
	ticketByCode map[string]uuid.UUID
	agents       map[uuid.UUID]*model.Agent
	transactions []*model.Transaction
	sold         map[uuid.UUID]map[bet.Key]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		lotteries:    make(map[uuid.UUID]*model.Lottery),
		tickets:      make(map[uuid.UUID]*model.Ticket),
		ticketByCode: make(map[string]uuid.UUID),
		agents:       make(map[uuid.UUID]*model.Agent),
		sold:         make(map[uuid.UUID]map[bet.Key]int64),
	}
}

// --- Lotteries ---

func (m *Memory) CreateLottery(ctx context.Context, l *model.Lottery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneLottery(l)
	m.lotteries[cp.ID] = cp
	return nil
}

func (m *Memory) GetLottery(ctx context.Context, id uuid.UUID) (*model.Lottery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lotteries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLottery(l), nil
}

func (m *Memory) UpdateLottery(ctx context.Context, l *model.Lottery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateLotteryLocked(l)
}

func (m *Memory) updateLotteryLocked(l *model.Lottery) error {
	cur, ok := m.lotteries[l.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != l.Version {
		return ErrVersionConflict
	}

	cp := cloneLottery(l)
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.lotteries[cp.ID] = cp
	l.Version = cp.Version
	return nil
}

func (m *Memory) DeleteLottery(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lotteries[id]; !ok {
		return ErrNotFound
	}
	delete(m.lotteries, id)
	delete(m.sold, id)
	return nil
}

func (m *Memory) ListLotteries(ctx context.Context) ([]*model.Lottery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Lottery, 0, len(m.lotteries))
	for _, l := range m.lotteries {
		out = append(out, cloneLottery(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListDueLotteries(ctx context.Context, now time.Time) ([]*model.Lottery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Lottery
	for _, l := range m.lotteries {
		if l.Status == model.LotteryOpen && !l.DrawDate.After(now) {
			out = append(out, cloneLottery(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DrawDate.Before(out[j].DrawDate) })
	return out, nil
}

// --- Tickets ---

func (m *Memory) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.ticketByCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTicket(m.tickets[id]), nil
}

func (m *Memory) TicketsByLottery(ctx context.Context, lotteryID uuid.UUID) ([]*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Ticket
	for _, t := range m.tickets {
		if t.LotteryID == lotteryID {
			out = append(out, cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) TicketsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Ticket
	for _, t := range m.tickets {
		if t.AgentID == agentID {
			out = append(out, cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountTickets(ctx context.Context, lotteryID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, t := range m.tickets {
		if t.LotteryID == lotteryID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateTicketResult(ctx context.Context, ticketID uuid.UUID, isWinner bool, payoutAmount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	t.IsWinner = isWinner
	t.PayoutAmount = payoutAmount
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SoldAmounts(ctx context.Context, lotteryID uuid.UUID) (map[bet.Key]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lotteries[lotteryID]; !ok {
		return nil, ErrNotFound
	}
	out := make(map[bet.Key]int64, len(m.sold[lotteryID]))
	for k, v := range m.sold[lotteryID] {
		out[k] = v
	}
	return out, nil
}

// --- Agents ---

func (m *Memory) CreateAgent(ctx context.Context, a *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[a.ID] = cloneAgent(a)
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(a), nil
}

func (m *Memory) UpdateAgent(ctx context.Context, a *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.agents[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}

	cp := cloneAgent(a)
	// Balance moves only through commits; an admin write carrying a stale
	// snapshot must not revert money a concurrent sale already posted.
	cp.Balance = cur.Balance
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.agents[cp.ID] = cp
	a.Version = cp.Version
	return nil
}

// --- Ledger ---

func (m *Memory) TransactionsByAgent(ctx context.Context, agentID uuid.UUID) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Transaction
	for _, tx := range m.transactions {
		if tx.AgentID == agentID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Atomic commits ---

func (m *Memory) CommitSale(ctx context.Context, c *SaleCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ticketByCode[c.Ticket.Code]; exists {
		return ErrDuplicateCode
	}

	lot, ok := m.lotteries[c.Ticket.LotteryID]
	if !ok {
		return ErrNotFound
	}
	agent, ok := m.agents[c.Ticket.AgentID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()

	t := cloneTicket(c.Ticket)
	m.tickets[t.ID] = t
	m.ticketByCode[t.Code] = t.ID

	for _, tx := range c.Transactions {
		cp := *tx
		m.transactions = append(m.transactions, &cp)
	}

	agent.Balance += c.BalanceDelta()
	agent.UpdatedAt = now

	lot.TicketsSold++
	lot.UpdatedAt = now

	buckets := m.sold[lot.ID]
	if buckets == nil {
		buckets = make(map[bet.Key]int64)
		m.sold[lot.ID] = buckets
	}
	for _, b := range t.Bets {
		for _, k := range b.Keys() {
			buckets[k] += b.Stake()
		}
	}

	return nil
}

func (m *Memory) CommitPayout(ctx context.Context, c *PayoutCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[c.TicketID]
	if !ok {
		return ErrNotFound
	}
	if t.Status != model.TicketActive {
		return ErrNotPayable
	}
	agent, ok := m.agents[c.AgentID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()

	cp := *c.Transaction
	m.transactions = append(m.transactions, &cp)

	agent.Balance += c.Transaction.Amount
	agent.UpdatedAt = now

	t.Status = model.TicketPaidOut
	t.UpdatedAt = now

	return nil
}

func (m *Memory) CommitSettlement(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[tx.AgentID]
	if !ok {
		return ErrNotFound
	}

	cp := *tx
	m.transactions = append(m.transactions, &cp)

	agent.Balance += tx.Amount
	agent.UpdatedAt = time.Now().UTC()

	return nil
}

// --- Clone helpers ---
// Returned records are copies so callers can never alias store state.

func cloneLottery(l *model.Lottery) *model.Lottery {
	cp := *l
	cp.PayoutRules = cloneInt64Map(l.PayoutRules)
	cp.MaxPerNumber = cloneInt64Map(l.MaxPerNumber)
	if l.BetLimits != nil {
		cp.BetLimits = make(map[bet.Type]model.AmountRange, len(l.BetLimits))
		for k, v := range l.BetLimits {
			cp.BetLimits[k] = v
		}
	}
	cp.States = append([]string(nil), l.States...)
	if l.WinningNumbers != nil {
		cp.WinningNumbers = make(map[bet.Type][]string, len(l.WinningNumbers))
		for k, v := range l.WinningNumbers {
			cp.WinningNumbers[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

func cloneInt64Map(in map[bet.Type]int64) map[bet.Type]int64 {
	if in == nil {
		return nil
	}
	out := make(map[bet.Type]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTicket(t *model.Ticket) *model.Ticket {
	cp := *t
	cp.Bets = make([]bet.Bet, len(t.Bets))
	for i, b := range t.Bets {
		cp.Bets[i] = bet.Bet{
			Type:    b.Type,
			Numbers: append([]string(nil), b.Numbers...),
			Amounts: append([]int64(nil), b.Amounts...),
			State:   b.State,
		}
	}
	return &cp
}

func cloneAgent(a *model.Agent) *model.Agent {
	cp := *a
	return &cp
}
