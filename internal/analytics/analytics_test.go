package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func trade(id uint64, entry, exit float64, qty int64, pnl float64) schema.Trade {
	return schema.Trade{
		ID:         id,
		Symbol:     "AAPL",
		Side:       schema.SideSell,
		EntryPrice: entry,
		ExitPrice:  exit,
		Quantity:   qty,
		PnL:        pnl,
		TraderID:   "T1",
	}
}

func TestMetricsTradeStatistics(t *testing.T) {
	a := New(Config{})

	a.RecordTrade(trade(1, 150, 152, 100, 200), "mm")
	a.RecordTrade(trade(2, 150, 148, 60, -120), "mm")
	a.RecordTrade(trade(3, 100, 106, 50, 300), "mom")

	m := a.Metrics()
	assert.Equal(t, uint64(3), m.TotalTrades)
	assert.Equal(t, uint64(2), m.WinningTrades)
	assert.Equal(t, uint64(1), m.LosingTrades)
	assert.InDelta(t, 380.0, m.RealizedPnL, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 500.0/120.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 250.0, m.AvgWin, 1e-9)
	assert.InDelta(t, 120.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 300.0, m.LargestWin, 1e-9)
	assert.InDelta(t, 120.0, m.LargestLoss, 1e-9)
}

func TestMetricsSharpeAndSortino(t *testing.T) {
	a := New(Config{})

	// Returns: 200/15000, -120/9000, 300/5000 = 0.0133.., -0.0133.., 0.06
	a.RecordTrade(trade(1, 150, 152, 100, 200), "mm")
	a.RecordTrade(trade(2, 150, 148, 60, -120), "mm")
	a.RecordTrade(trade(3, 100, 106, 50, 300), "mom")

	m := a.Metrics()
	assert.InDelta(t, 0.53882, m.SharpeRatio, 1e-4)
	assert.InDelta(t, 0.83205, m.SortinoRatio, 1e-4)
}

func TestMetricsLatencyAggregates(t *testing.T) {
	a := New(Config{})
	for _, us := range []int64{100, 50, 300} {
		a.RecordLatency(schema.LatencyMeasurement{LatencyUs: us})
	}

	m := a.Metrics()
	assert.InDelta(t, 150.0, m.AvgLatencyUs, 1e-9)
	assert.InDelta(t, 50.0, m.MinLatencyUs, 1e-9)
	assert.InDelta(t, 300.0, m.MaxLatencyUs, 1e-9)
}

func TestRiskMetricsOverPnLHistory(t *testing.T) {
	a := New(Config{})
	for _, pnl := range []float64{0, 100, 50, 200, 150} {
		a.RecordPnL(pnl)
	}

	r := a.Risk()
	// Increments: 100, -50, 150, -50.
	assert.InDelta(t, -50.0, r.VaR95, 1e-9)
	assert.InDelta(t, -50.0, r.VaR99, 1e-9)
	assert.InDelta(t, -50.0, r.CVaR95, 1e-9)
	assert.InDelta(t, 89.26785535, r.Volatility, 1e-6)
	assert.InDelta(t, 50.0, r.MaxDrawdown, 1e-9)
}

func TestRiskMetricsEmptyHistory(t *testing.T) {
	a := New(Config{})
	r := a.Risk()
	assert.Zero(t, r.VaR95)
	assert.Zero(t, r.Volatility)
}

func TestSkewnessAndKurtosisShapes(t *testing.T) {
	// Symmetric distribution: zero skew, negative excess kurtosis.
	sym := []float64{-2, -1, 0, 1, 2}
	assert.InDelta(t, 0.0, skewness(sym), 1e-9)
	assert.Less(t, kurtosis(sym), 0.0)

	// Right-tailed distribution skews positive.
	tail := []float64{0, 0, 0, 0, 10}
	assert.Greater(t, skewness(tail), 0.0)
}

func TestPnLHistogram(t *testing.T) {
	a := New(Config{})
	for _, pnl := range []float64{0, 10, 20, 30, 40} {
		a.RecordPnL(pnl)
	}

	h := a.PnLHistogram(4)
	assert.InDelta(t, 0.0, h.MinPnL, 1e-9)
	assert.InDelta(t, 40.0, h.MaxPnL, 1e-9)
	assert.InDelta(t, 10.0, h.BinWidth, 1e-9)
	require.Len(t, h.Bins, 4)
	assert.Equal(t, []int{1, 1, 1, 2}, h.Frequencies)

	total := 0
	for _, f := range h.Frequencies {
		total += f
	}
	assert.Equal(t, 5, total)
}

func TestPnLHistogramFlatHistory(t *testing.T) {
	a := New(Config{})
	a.RecordPnL(5)
	a.RecordPnL(5)

	h := a.PnLHistogram(10)
	assert.Equal(t, 2, h.Frequencies[0])
}

func TestEquityAndDrawdownCurves(t *testing.T) {
	a := New(Config{})
	for _, e := range []float64{100, 150, 120, 180} {
		a.UpdateEquity(e)
	}

	assert.Equal(t, []float64{100, 150, 120, 180}, a.EquityCurve())
	dd := a.DrawdownCurve()
	require.Len(t, dd, 4)
	assert.InDelta(t, 0.0, dd[0], 1e-9)
	assert.InDelta(t, 0.2, dd[2], 1e-9)
	assert.InDelta(t, 0.0, dd[3], 1e-9)

	m := a.Metrics()
	assert.InDelta(t, 0.2, m.MaxDrawdown, 1e-9)
}

func TestHistoriesStayBounded(t *testing.T) {
	a := New(Config{LookbackReturns: 3, HistoryBound: 4, SnapshotBound: 2})

	for i := 0; i < 10; i++ {
		a.RecordPnL(float64(i))
		a.UpdateEquity(float64(i))
		a.RecordLatency(schema.LatencyMeasurement{LatencyUs: int64(i)})
		a.RecordTrade(trade(uint64(i), 100, 101, 10, 10), "mm")
		a.CaptureBookSnapshot(schema.BookSnapshot{Symbol: "AAPL"})
	}

	a.mu.Lock()
	assert.Len(t, a.pnlHistory, 4)
	assert.Len(t, a.returns, 3)
	assert.Len(t, a.latencies, 4)
	assert.Len(t, a.snapshots, 2)
	a.mu.Unlock()
	assert.Len(t, a.EquityCurve(), 4)
}

func TestTradeLogsCarryStrategy(t *testing.T) {
	a := New(Config{})
	a.RecordTrade(trade(7, 150, 151, 10, 10), "market_making")

	logs := a.TradeLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(7), logs[0].ID)
	assert.Equal(t, "market_making", logs[0].Strategy)
	assert.InDelta(t, 151.0, logs[0].Price, 1e-9)
	assert.Equal(t, "T1", logs[0].TraderID)
}

type fakeSource struct {
	pnl       float64
	positions []schema.Position
	marks     map[string]float64
	marked    int
}

func (f *fakeSource) TotalPnL() float64            { return f.pnl }
func (f *fakeSource) Positions() []schema.Position { return f.positions }
func (f *fakeSource) MarkPrice(symbol string) float64 {
	return f.marks[symbol]
}
func (f *fakeSource) MarkToMarket() { f.marked++ }

func TestMonitorPoll(t *testing.T) {
	a := New(Config{})
	src := &fakeSource{
		pnl: 420,
		positions: []schema.Position{
			{Symbol: "AAPL", Quantity: 100, AvgPrice: 150, UnrealizedPnL: 120},
			{Symbol: "MSFT", Quantity: -50, AvgPrice: 300, UnrealizedPnL: -20},
		},
		marks: map[string]float64{"AAPL": 151, "MSFT": 299},
	}
	mon := NewMonitor(a, src, 0)

	mon.Poll()

	assert.Equal(t, 1, src.marked)
	assert.Equal(t, []float64{420}, a.EquityCurve())

	r := a.Risk()
	assert.InDelta(t, 100*151+50*299.0, r.Exposure, 1e-9)

	m := a.Metrics()
	assert.InDelta(t, 100.0, m.UnrealizedPnL, 1e-9)
}
