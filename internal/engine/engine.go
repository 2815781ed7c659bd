// Package engine implements the ticket-sale and settlement core:
// bet validation, per-number capacity allocation, winning-number
// matching, sale and payout orchestration, and the lottery lifecycle.
// Persistence goes through store.Store; everything here is
// storage-agnostic.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"borlette/internal/observability"
	"borlette/internal/store"
)

// Notifier publishes informational events about completed operations.
// Publishing is best-effort: a failed or dropped event never fails the
// operation that produced it.
type Notifier interface {
	Publish(subject string, payload any)
}

// Engine orchestrates all borlette operations against a Store.
type Engine struct {
	store    store.Store
	log      zerolog.Logger
	metrics  *observability.Metrics
	notifier Notifier
	now      func() time.Time

	// Per-lottery locks serialize the validate→allocate→commit sequence
	// of a sale, and winner declaration, against concurrent sales for
	// the same lottery. This closes the check-then-reserve window on
	// the sales cap.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New creates an engine. Metrics may be nil (tests).
func New(st store.Store, log zerolog.Logger, m *observability.Metrics) *Engine {
	return &Engine{
		store:   st,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetNotifier attaches an event publisher.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// lockLottery acquires the per-lottery mutex and returns its release
// func. Lock entries are retained for the lottery's lifetime; the count
// of concurrently active lotteries is small.
func (e *Engine) lockLottery(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) publish(subject string, payload any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(subject, payload)
}
