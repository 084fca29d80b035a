package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/ops"
	"main/internal/report"
	"main/internal/schema"
)

func quietConfig(t *testing.T) ops.Loaded {
	t.Helper()
	loaded, err := ops.Resolve(ops.FileConfig{
		Symbols: []ops.SymbolConfig{{Name: "AAPL", InitialPrice: 150.00}},
		Feed:    ops.FeedConfig{TickIntervalMs: 3600000},
	})
	require.NoError(t, err)
	loaded.SnapshotInterval = time.Hour
	loaded.MonitorInterval = time.Hour
	return loaded
}

func TestOperatorOrderFlow(t *testing.T) {
	e, err := New(quietConfig(t))
	require.NoError(t, err)
	e.Start(t.Context())
	defer e.Stop()

	buyID, err := e.Place(schema.Order{
		Symbol: "AAPL", Side: schema.SideBuy, Type: schema.OrderTypeLimit,
		Price: 150.00, Quantity: 100, TraderID: "OP_BUY",
	})
	require.NoError(t, err)
	require.NotZero(t, buyID)

	sellID, err := e.Place(schema.Order{
		Symbol: "AAPL", Side: schema.SideSell, Type: schema.OrderTypeLimit,
		Price: 150.00, Quantity: 100, TraderID: "OP_SELL",
	})
	require.NoError(t, err)
	require.NotZero(t, sellID)

	require.Eventually(t, func() bool {
		return e.Metrics().Snapshot().Executions >= 2
	}, 2*time.Second, time.Millisecond)

	snap := e.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.OrdersPlaced)
	assert.Zero(t, snap.OrdersRejected)

	stats := e.Matcher().Stats()
	assert.Equal(t, uint64(2), stats.OrdersSubmitted)
	assert.InDelta(t, 15000.0, stats.NotionalVolume, 1e-9)
}

func TestOperatorRejectionCounts(t *testing.T) {
	cfg := quietConfig(t)
	cfg.Risk.MaxOrderSize = 10
	e, err := New(cfg)
	require.NoError(t, err)

	id, err := e.Place(schema.Order{
		Symbol: "AAPL", Side: schema.SideBuy, Type: schema.OrderTypeLimit,
		Price: 150.00, Quantity: 100, TraderID: "OP",
	})
	assert.Zero(t, id)
	assert.Error(t, err)

	snap := e.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.OrdersRejected)
	assert.Equal(t, uint64(1), snap.RiskAlerts)
}

func TestSnapshotShape(t *testing.T) {
	e, err := New(quietConfig(t))
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.NotZero(t, snap.TimestampNs)
	assert.NotNil(t, snap.Positions)
	assert.Zero(t, snap.Equity)
}

func TestSnapshotCallbackReceives(t *testing.T) {
	cfg := quietConfig(t)
	cfg.SnapshotInterval = 5 * time.Millisecond
	e, err := New(cfg)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []Snapshot
	e.SetSnapshotCallback(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})

	e.Start(t.Context())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 2*time.Second, time.Millisecond)
	e.Stop()
}

func TestUnknownStrategyFailsConstruction(t *testing.T) {
	cfg := quietConfig(t)
	cfg.Strategies = []ops.StrategySpec{{Type: "arbitrage", Name: "x", Trader: "X"}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSimulationEndToEnd(t *testing.T) {
	dir := t.TempDir()
	loaded, err := ops.Resolve(ops.FileConfig{
		Symbols: []ops.SymbolConfig{{Name: "AAPL", InitialPrice: 150.00}},
		Feed:    ops.FeedConfig{TickIntervalMs: 2},
		Strategies: ops.StrategiesConfig{
			Enabled: []string{"market_making", "market_orders"},
			Params: map[string]map[string]string{
				"market_making": {
					"spread_multiplier": "1.5",
					"base_quantity":     "500",
				},
				"market_orders": {
					"order_interval_ms": "2",
					"order_size":        "100",
					"max_orders":        "1000",
				},
			},
		},
		Logging:  ops.LoggingConfig{Enabled: true, Directory: dir},
		Monitor:  ops.MonitorConfig{UpdateIntervalMs: 5},
		Snapshot: ops.SnapshotConfig{PublishIntervalMs: 10},
	})
	require.NoError(t, err)

	e, err := New(loaded)
	require.NoError(t, err)
	assert.Equal(t, []string{"market_making_1", "market_orders_1"}, e.StrategyNames())

	e.Start(t.Context())

	// The periodic market orders cross the maker's quotes: executions, then
	// closed round trips once the alternating flow flattens the position.
	require.Eventually(t, func() bool {
		s := e.Metrics().Snapshot()
		return s.Executions >= 4 && s.Trades >= 1
	}, 10*time.Second, 5*time.Millisecond)

	e.Stop()

	for _, name := range []string{
		report.TradesFile, report.PerformanceFile,
		report.RiskReportFile, report.TradeAnalysisFile,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	trades := e.Analytics().Trades()
	require.NotEmpty(t, trades)
	for _, tr := range trades {
		assert.NotZero(t, tr.Quantity)
		assert.Equal(t, "AAPL", tr.Symbol)
	}

	// Engine book is never crossed at rest after shutdown.
	b := e.Matcher().Book("AAPL")
	if bid, ask := b.BestBid(), b.BestAsk(); bid > 0 && ask > 0 {
		assert.Less(t, bid, ask)
	}
}
