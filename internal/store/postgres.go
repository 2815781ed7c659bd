package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"borlette/internal/bet"
	"borlette/internal/model"
)

// Postgres implements Store on database/sql with the lib/pq driver.
// Money-moving commits run inside a single SQL transaction; the
// per-number sales aggregate lives in number_sales and is maintained
// by the same transaction that inserts the ticket.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an opened database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const lotteryColumns = `id, name, status, draw_date, range_min, range_max,
	num_winning_numbers, payout_rules, max_per_number, bet_limits, states,
	winning_numbers, tickets_sold, version, created_at, updated_at`

// --- Lotteries ---

func (p *Postgres) CreateLottery(ctx context.Context, l *model.Lottery) error {
	payoutRules, err := json.Marshal(l.PayoutRules)
	if err != nil {
		return fmt.Errorf("marshal payout rules: %w", err)
	}
	maxPerNumber, err := json.Marshal(emptyAsObject(l.MaxPerNumber))
	if err != nil {
		return fmt.Errorf("marshal caps: %w", err)
	}
	betLimits, err := json.Marshal(l.BetLimits)
	if err != nil {
		return fmt.Errorf("marshal bet limits: %w", err)
	}
	states, err := json.Marshal(l.States)
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO lotteries
			(id, name, status, draw_date, range_min, range_max,
			 num_winning_numbers, payout_rules, max_per_number, bet_limits,
			 states, tickets_sold, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, $12, $13)`,
		l.ID, l.Name, l.Status, l.DrawDate, l.NumberRange.Min, l.NumberRange.Max,
		l.NumWinningNumbers, payoutRules, maxPerNumber, betLimits,
		states, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (p *Postgres) GetLottery(ctx context.Context, id uuid.UUID) (*model.Lottery, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+lotteryColumns+` FROM lotteries WHERE id = $1`, id)
	return scanLottery(row)
}

func (p *Postgres) UpdateLottery(ctx context.Context, l *model.Lottery) error {
	payoutRules, err := json.Marshal(l.PayoutRules)
	if err != nil {
		return fmt.Errorf("marshal payout rules: %w", err)
	}
	maxPerNumber, err := json.Marshal(emptyAsObject(l.MaxPerNumber))
	if err != nil {
		return fmt.Errorf("marshal caps: %w", err)
	}
	betLimits, err := json.Marshal(l.BetLimits)
	if err != nil {
		return fmt.Errorf("marshal bet limits: %w", err)
	}
	states, err := json.Marshal(l.States)
	if err != nil {
		return fmt.Errorf("marshal states: %w", err)
	}
	var winningNumbers any
	if l.WinningNumbers != nil {
		winningNumbers, err = json.Marshal(l.WinningNumbers)
		if err != nil {
			return fmt.Errorf("marshal winning numbers: %w", err)
		}
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE lotteries SET
			name = $1, status = $2, draw_date = $3, range_min = $4,
			range_max = $5, num_winning_numbers = $6, payout_rules = $7,
			max_per_number = $8, bet_limits = $9, states = $10,
			winning_numbers = $11, version = version + 1, updated_at = NOW()
		WHERE id = $12 AND version = $13`,
		l.Name, l.Status, l.DrawDate, l.NumberRange.Min,
		l.NumberRange.Max, l.NumWinningNumbers, payoutRules,
		maxPerNumber, betLimits, states,
		winningNumbers, l.ID, l.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM lotteries WHERE id = $1)`, l.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	l.Version++
	return nil
}

func (p *Postgres) DeleteLottery(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM lotteries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListLotteries(ctx context.Context) ([]*model.Lottery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+lotteryColumns+` FROM lotteries ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLotteries(rows)
}

func (p *Postgres) ListDueLotteries(ctx context.Context, now time.Time) ([]*model.Lottery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+lotteryColumns+` FROM lotteries
		 WHERE status = 'open' AND draw_date <= $1
		 ORDER BY draw_date`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLotteries(rows)
}

// --- Tickets ---

const ticketColumns = `id, code, lottery_id, agent_id, bets, total_amount,
	is_winner, payout_amount, status, period, created_at, updated_at`

func (p *Postgres) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE code = $1`, code)
	return scanTicket(row)
}

func (p *Postgres) TicketsByLottery(ctx context.Context, lotteryID uuid.UUID) ([]*model.Ticket, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE lottery_id = $1 ORDER BY created_at`,
		lotteryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (p *Postgres) TicketsByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE agent_id = $1 ORDER BY created_at DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (p *Postgres) CountTickets(ctx context.Context, lotteryID uuid.UUID) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE lottery_id = $1`, lotteryID).Scan(&n)
	return n, err
}

func (p *Postgres) UpdateTicketResult(ctx context.Context, ticketID uuid.UUID, isWinner bool, payoutAmount int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE tickets SET is_winner = $1, payout_amount = $2, updated_at = NOW()
		WHERE id = $3`,
		isWinner, payoutAmount, ticketID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SoldAmounts(ctx context.Context, lotteryID uuid.UUID) (map[bet.Key]int64, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lotteries WHERE id = $1)`, lotteryID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT bet_type, number, sold_cents
		FROM number_sales WHERE lottery_id = $1`, lotteryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sold := make(map[bet.Key]int64)
	for rows.Next() {
		var (
			betType, number string
			cents           int64
		)
		if err := rows.Scan(&betType, &number, &cents); err != nil {
			return nil, err
		}
		sold[bet.Key{Type: bet.Type(betType), Number: number}] = cents
	}
	return sold, rows.Err()
}

// --- Agents ---

const agentColumns = `id, name, balance, commission_bps, status, version, created_at, updated_at`

func (p *Postgres) CreateAgent(ctx context.Context, a *model.Agent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, balance, commission_bps, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		a.ID, a.Name, a.Balance, a.CommissionBps, a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

func (p *Postgres) GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (p *Postgres) UpdateAgent(ctx context.Context, a *model.Agent) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE agents SET
			name = $1, commission_bps = $2, status = $3,
			version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5`,
		a.Name, a.CommissionBps, a.Status, a.ID, a.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM agents WHERE id = $1)`, a.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	a.Version++
	return nil
}

// --- Ledger ---

func (p *Postgres) TransactionsByAgent(ctx context.Context, agentID uuid.UUID) ([]*model.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, ticket_id, lottery_id, type, amount, description, created_at
		FROM transactions WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var (
			tx              model.Transaction
			ticketID, lotID uuid.NullUUID
		)
		if err := rows.Scan(&tx.ID, &tx.AgentID, &ticketID, &lotID,
			&tx.Type, &tx.Amount, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if ticketID.Valid {
			tx.TicketID = &ticketID.UUID
		}
		if lotID.Valid {
			tx.LotteryID = &lotID.UUID
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

// --- Atomic commits ---

func (p *Postgres) CommitSale(ctx context.Context, c *SaleCommit) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t := c.Ticket
	bets, err := json.Marshal(t.Bets)
	if err != nil {
		return fmt.Errorf("marshal bets: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tickets
			(id, code, lottery_id, agent_id, bets, total_amount,
			 is_winner, payout_amount, status, period, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Code, t.LotteryID, t.AgentID, bets, t.TotalAmount,
		t.IsWinner, t.PayoutAmount, t.Status, t.Period, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}

	if err := insertTransactions(ctx, tx, c.Transactions); err != nil {
		return err
	}

	if err := execOne(ctx, tx, `
		UPDATE agents SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		c.BalanceDelta(), t.AgentID); err != nil {
		return err
	}

	if err := execOne(ctx, tx, `
		UPDATE lotteries SET tickets_sold = tickets_sold + 1, updated_at = NOW() WHERE id = $1`,
		t.LotteryID); err != nil {
		return err
	}

	// Fold the ticket's stakes into the per-number aggregate.
	for _, b := range t.Bets {
		for _, k := range b.Keys() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO number_sales (lottery_id, bet_type, number, sold_cents)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (lottery_id, bet_type, number)
				DO UPDATE SET sold_cents = number_sales.sold_cents + EXCLUDED.sold_cents`,
				t.LotteryID, k.Type, k.Number, b.Stake(),
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (p *Postgres) CommitPayout(ctx context.Context, c *PayoutCommit) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Conditional flip: only an active ticket can be paid. Zero rows
	// means another payout got there first (or the ticket is void).
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		model.TicketPaidOut, c.TicketID, model.TicketActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, c.TicketID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrNotPayable
	}

	if err := insertTransactions(ctx, tx, []*model.Transaction{c.Transaction}); err != nil {
		return err
	}

	if err := execOne(ctx, tx, `
		UPDATE agents SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		c.Transaction.Amount, c.AgentID); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *Postgres) CommitSettlement(ctx context.Context, stx *model.Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertTransactions(ctx, tx, []*model.Transaction{stx}); err != nil {
		return err
	}
	if err := execOne(ctx, tx, `
		UPDATE agents SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		stx.Amount, stx.AgentID); err != nil {
		return err
	}

	return tx.Commit()
}

// insertTransactions writes ledger rows with a single multi-row INSERT.
func insertTransactions(ctx context.Context, tx *sql.Tx, txs []*model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := `INSERT INTO transactions
		(id, agent_id, ticket_id, lottery_id, type, amount, description, created_at)
		VALUES `

	values := make([]string, 0, len(txs))
	args := make([]any, 0, len(txs)*8)
	for i, t := range txs {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			t.ID, t.AgentID, t.TicketID, t.LotteryID,
			t.Type, t.Amount, t.Description, t.CreatedAt,
		)
	}

	_, err := tx.ExecContext(ctx, query+strings.Join(values, ", "), args...)
	return err
}

// execOne runs a statement that must affect exactly one row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// --- Row scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLottery(row rowScanner) (*model.Lottery, error) {
	var (
		l              model.Lottery
		payoutRules    []byte
		maxPerNumber   []byte
		betLimits      []byte
		states         []byte
		winningNumbers []byte
	)
	err := row.Scan(&l.ID, &l.Name, &l.Status, &l.DrawDate,
		&l.NumberRange.Min, &l.NumberRange.Max, &l.NumWinningNumbers,
		&payoutRules, &maxPerNumber, &betLimits, &states,
		&winningNumbers, &l.TicketsSold, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payoutRules, &l.PayoutRules); err != nil {
		return nil, fmt.Errorf("unmarshal payout rules: %w", err)
	}
	if err := json.Unmarshal(maxPerNumber, &l.MaxPerNumber); err != nil {
		return nil, fmt.Errorf("unmarshal caps: %w", err)
	}
	if err := json.Unmarshal(betLimits, &l.BetLimits); err != nil {
		return nil, fmt.Errorf("unmarshal bet limits: %w", err)
	}
	if err := json.Unmarshal(states, &l.States); err != nil {
		return nil, fmt.Errorf("unmarshal states: %w", err)
	}
	if winningNumbers != nil {
		if err := json.Unmarshal(winningNumbers, &l.WinningNumbers); err != nil {
			return nil, fmt.Errorf("unmarshal winning numbers: %w", err)
		}
	}
	return &l, nil
}

func collectLotteries(rows *sql.Rows) ([]*model.Lottery, error) {
	var out []*model.Lottery
	for rows.Next() {
		l, err := scanLottery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var (
		t    model.Ticket
		bets []byte
	)
	err := row.Scan(&t.ID, &t.Code, &t.LotteryID, &t.AgentID, &bets,
		&t.TotalAmount, &t.IsWinner, &t.PayoutAmount, &t.Status, &t.Period,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bets, &t.Bets); err != nil {
		return nil, fmt.Errorf("unmarshal bets: %w", err)
	}
	return &t, nil
}

func collectTickets(rows *sql.Rows) ([]*model.Ticket, error) {
	var out []*model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Balance, &a.CommissionBps,
		&a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// emptyAsObject keeps a nil map serialized as {} rather than null, so
// the JSONB column default stays meaningful.
func emptyAsObject(m map[bet.Type]int64) map[bet.Type]int64 {
	if m == nil {
		return map[bet.Type]int64{}
	}
	return m
}
