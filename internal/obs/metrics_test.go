package obs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.IncOrderPlaced()
	m.IncOrderPlaced()
	m.IncOrderRejected()
	m.IncCancel()
	m.IncExecution()
	m.IncTrade()
	m.IncRiskAlert()

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.OrdersPlaced)
	assert.Equal(t, uint64(1), s.OrdersRejected)
	assert.Equal(t, uint64(1), s.Cancels)
	assert.Equal(t, uint64(1), s.Executions)
	assert.Equal(t, uint64(1), s.Trades)
	assert.Equal(t, uint64(1), s.RiskAlerts)
}

func TestLatencyStats(t *testing.T) {
	m := NewMetrics()

	m.ObserveExecLatency(100 * time.Microsecond)
	m.ObserveExecLatency(50 * time.Microsecond)
	m.ObserveExecLatency(350 * time.Microsecond)

	lat := m.Snapshot().ExecLatency
	assert.Equal(t, uint64(3), lat.Count)
	assert.Equal(t, 50*time.Microsecond, lat.Min)
	assert.Equal(t, 350*time.Microsecond, lat.Max)
	assert.Equal(t, time.Duration(500000/3), lat.Avg) // ns, truncated

}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.IncOrderPlaced()
	m.ObserveExecLatency(time.Millisecond)
	assert.Zero(t, m.Snapshot().OrdersPlaced)
}
