package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics aggregates the counters observed by the settlement node.
type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	settled     prometheus.Counter
	feesAccrued prometheus.Counter
	openEscrows prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "custodia_operations_total",
				Help: "Count of settlement operations by name and outcome.",
			}, []string{"op", "outcome"}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "custodia_value_settled_total",
				Help: "Total value moved out of escrow custody in base units.",
			}),
			feesAccrued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "custodia_fees_accrued_total",
				Help: "Total platform fees routed to the fee vault in base units.",
			}),
			openEscrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "custodia_open_escrows",
				Help: "Number of escrows currently holding custodied value.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.settled,
			ledgerRegistry.feesAccrued,
			ledgerRegistry.openEscrows,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records the outcome of a settlement operation.
func (m *LedgerMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveSettledValue records value leaving escrow custody.
func (m *LedgerMetrics) ObserveSettledValue(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.settled.Add(units)
}

// ObserveFee records a fee accrual.
func (m *LedgerMetrics) ObserveFee(units float64) {
	if m == nil || units <= 0 {
		return
	}
	m.feesAccrued.Add(units)
}

// SetOpenEscrows tracks the number of escrows in a non-terminal state.
func (m *LedgerMetrics) SetOpenEscrows(n float64) {
	if m == nil {
		return
	}
	m.openEscrows.Set(n)
}

// IncOpenEscrows bumps the open escrow gauge.
func (m *LedgerMetrics) IncOpenEscrows() {
	if m == nil {
		return
	}
	m.openEscrows.Inc()
}

// DecOpenEscrows lowers the open escrow gauge.
func (m *LedgerMetrics) DecOpenEscrows() {
	if m == nil {
		return
	}
	m.openEscrows.Dec()
}
