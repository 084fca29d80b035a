package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

const defaultMonitorInterval = time.Second

// PositionSource is the slice of the order manager the monitor polls.
type PositionSource interface {
	TotalPnL() float64
	Positions() []schema.Position
	MarkPrice(symbol string) float64
	MarkToMarket()
}

// Monitor polls the order manager on a fixed interval, refreshes unrealized
// P&L from the latest marks and pushes equity samples into the analytics
// store.
type Monitor struct {
	analytics *Analytics
	source    PositionSource
	interval  time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor polling source every interval.
func NewMonitor(a *Analytics, source PositionSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &Monitor{
		analytics: a,
		source:    source,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start launches the poll loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
	logs.Infof("performance monitor started, interval %s", m.interval)
}

// Stop ends the poll loop and joins it. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
	logs.Info("performance monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll performs one monitoring pass. Exported so a shutdown path can take a
// final sample before exporting reports.
func (m *Monitor) Poll() {
	m.source.MarkToMarket()

	var unrealized, exposure float64
	for _, p := range m.source.Positions() {
		unrealized += p.UnrealizedPnL
		mark := m.source.MarkPrice(p.Symbol)
		if mark == 0 {
			mark = p.AvgPrice
		}
		exposure += p.Value(mark)
	}
	m.analytics.SetUnrealized(unrealized)
	m.analytics.SetExposure(exposure)

	equity := m.source.TotalPnL()
	m.analytics.UpdateEquity(equity)
	m.analytics.RecordPnL(equity)
}
