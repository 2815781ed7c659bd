package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the borlette service.
// Amount counters are in cents.
type Metrics struct {
	// --- Sales ---
	TicketsSold       prometheus.Counter
	SalesRejected     *prometheus.CounterVec
	SaleAmount        prometheus.Counter
	CommissionAccrued prometheus.Counter
	SaleDuration      prometheus.Histogram
	TicketCodeRetries prometheus.Counter

	// --- Settlement ---
	Payouts         prometheus.Counter
	PayoutAmount    prometheus.Counter
	PayoutsRejected *prometheus.CounterVec
	Settlements     prometheus.Counter

	// --- Draws ---
	WinnersDeclared   prometheus.Counter
	TicketsEvaluated  prometheus.Counter
	WinningTickets    prometheus.Counter
	LazyReevaluations prometheus.Counter

	// --- Lifecycle ---
	LotteriesClosed prometheus.Counter
	SweepRuns       prometheus.Counter
	SweepDuration   prometheus.Histogram

	// --- Notify ---
	EventsPublished prometheus.Counter
	PublishDrops    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	durationBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	return &Metrics{
		TicketsSold: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_tickets_sold_total",
			Help: "Tickets successfully sold",
		}),

		SalesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "borlette_sales_rejected_total",
			Help: "Sales rejected (validation, capacity, state)",
		}, []string{"reason"}),

		SaleAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_sale_amount_cents_total",
			Help: "Gross stake collected, in cents",
		}),

		CommissionAccrued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_commission_cents_total",
			Help: "Agent commission accrued, in cents",
		}),

		SaleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "borlette_sale_duration_seconds",
			Help:    "End-to-end ticket sale duration",
			Buckets: durationBuckets,
		}),

		TicketCodeRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_ticket_code_retries_total",
			Help: "Ticket code collisions that forced a regeneration",
		}),

		Payouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_payouts_total",
			Help: "Winning tickets paid out",
		}),

		PayoutAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_payout_amount_cents_total",
			Help: "Winnings paid out, in cents",
		}),

		PayoutsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "borlette_payouts_rejected_total",
			Help: "Payout attempts rejected",
		}, []string{"reason"}),

		Settlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_settlements_total",
			Help: "Manual balance settlements posted",
		}),

		WinnersDeclared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_winners_declared_total",
			Help: "Winner declarations committed",
		}),

		TicketsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_tickets_evaluated_total",
			Help: "Tickets run through the matcher",
		}),

		WinningTickets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_winning_tickets_total",
			Help: "Tickets evaluated as winners",
		}),

		LazyReevaluations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_lazy_reevaluations_total",
			Help: "Stale ticket results corrected at lookup time",
		}),

		LotteriesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_lotteries_closed_total",
			Help: "Lotteries auto-closed past their draw date",
		}),

		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_sweep_runs_total",
			Help: "Lifecycle sweep executions",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "borlette_sweep_duration_seconds",
			Help:    "Lifecycle sweep duration",
			Buckets: durationBuckets,
		}),

		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_events_published_total",
			Help: "Outbound events published to NATS",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "borlette_publish_drops_total",
			Help: "Outbound events dropped due to full publish channel",
		}),
	}
}
