package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"borlette/internal/model"
	"borlette/internal/money"
	"borlette/internal/store"
)

// CreateAgent registers a new field agent with a zero balance. The
// commission rate arrives in basis points and is clamped to [0, 10000].
func (e *Engine) CreateAgent(ctx context.Context, name string, commissionBps int64) (*model.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Rejectf("agent name is required")
	}

	now := e.now()
	agent := &model.Agent{
		ID:            uuid.New(),
		Name:          name,
		CommissionBps: money.ClampBps(commissionBps),
		Status:        model.AgentActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateAgent(ctx, agent); err != nil {
		return nil, internalf("create agent: %v", err)
	}

	e.log.Info().
		Str("agent_id", agent.ID.String()).
		Str("name", agent.Name).
		Int64("commission_bps", agent.CommissionBps).
		Msg("agent created")

	return agent, nil
}

// GetAgent returns one agent.
func (e *Engine) GetAgent(ctx context.Context, id uuid.UUID) (*model.Agent, error) {
	agent, err := e.store.GetAgent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Rejectf("agent %s not found", id)
	}
	if err != nil {
		return nil, internalf("load agent: %v", err)
	}
	return agent, nil
}

// SetAgentCommission updates an agent's commission rate. Existing
// tickets keep the commission they were sold under; only future sales
// use the new rate.
func (e *Engine) SetAgentCommission(ctx context.Context, id uuid.UUID, commissionBps int64) (*model.Agent, error) {
	agent, err := e.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	agent.CommissionBps = money.ClampBps(commissionBps)
	if err := e.store.UpdateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, internalf("update agent: %v", err)
	}

	e.log.Info().
		Str("agent_id", agent.ID.String()).
		Int64("commission_bps", agent.CommissionBps).
		Msg("agent commission updated")

	return agent, nil
}

// SetAgentStatus activates or deactivates an agent. Deactivation does
// not touch existing tickets or the balance.
func (e *Engine) SetAgentStatus(ctx context.Context, id uuid.UUID, status model.AgentStatus) (*model.Agent, error) {
	if status != model.AgentActive && status != model.AgentDeactivated {
		return nil, Rejectf("unknown agent status %q", status)
	}

	agent, err := e.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	agent.Status = status
	if err := e.store.UpdateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrConflict
		}
		return nil, internalf("update agent: %v", err)
	}

	e.log.Info().
		Str("agent_id", agent.ID.String()).
		Str("status", string(status)).
		Msg("agent status updated")

	return agent, nil
}

// AgentStatement returns an agent's full transaction history, the
// source of truth its cached balance is a projection of.
func (e *Engine) AgentStatement(ctx context.Context, id uuid.UUID) ([]*model.Transaction, error) {
	if _, err := e.GetAgent(ctx, id); err != nil {
		return nil, err
	}
	txs, err := e.store.TransactionsByAgent(ctx, id)
	if err != nil {
		return nil, internalf("load transactions: %v", err)
	}
	return txs, nil
}
