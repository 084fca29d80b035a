package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight engine counters and latency stats. All
// updates are atomic so the execution hot path never takes a lock.
type Metrics struct {
	ordersPlaced   uint64
	ordersRejected uint64
	cancels        uint64
	modifies       uint64
	executions     uint64
	trades         uint64
	riskAlerts     uint64

	execLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrdersPlaced   uint64
	OrdersRejected uint64
	Cancels        uint64
	Modifies       uint64
	Executions     uint64
	Trades         uint64
	RiskAlerts     uint64
	ExecLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncOrderPlaced counts an accepted order.
func (m *Metrics) IncOrderPlaced() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersPlaced, 1)
}

// IncOrderRejected counts a pre-trade rejection.
func (m *Metrics) IncOrderRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersRejected, 1)
}

// IncCancel counts a successful cancel.
func (m *Metrics) IncCancel() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cancels, 1)
}

// IncModify counts a successful modify.
func (m *Metrics) IncModify() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.modifies, 1)
}

// IncExecution counts one emitted execution.
func (m *Metrics) IncExecution() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.executions, 1)
}

// IncTrade counts one closed round trip.
func (m *Metrics) IncTrade() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
}

// IncRiskAlert counts one fired risk alert.
func (m *Metrics) IncRiskAlert() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.riskAlerts, 1)
}

// ObserveExecLatency tracks one submit-to-execution latency sample.
func (m *Metrics) ObserveExecLatency(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.execLatency.Observe(d)
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		OrdersPlaced:   atomic.LoadUint64(&m.ordersPlaced),
		OrdersRejected: atomic.LoadUint64(&m.ordersRejected),
		Cancels:        atomic.LoadUint64(&m.cancels),
		Modifies:       atomic.LoadUint64(&m.modifies),
		Executions:     atomic.LoadUint64(&m.executions),
		Trades:         atomic.LoadUint64(&m.trades),
		RiskAlerts:     atomic.LoadUint64(&m.riskAlerts),
		ExecLatency:    m.execLatency.Snapshot(),
	}
}

// Observe adds a duration sample.
func (s *LatencyStats) Observe(d time.Duration) {
	ns := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, ns)
	for {
		cur := atomic.LoadUint64(&s.min)
		if cur != 0 && ns >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&s.max)
		if ns <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, cur, ns) {
			break
		}
	}
}

// Snapshot captures the aggregated latency view.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	out := LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
	}
	if count > 0 {
		out.Avg = time.Duration(atomic.LoadUint64(&s.sum) / count)
	}
	return out
}
