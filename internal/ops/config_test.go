package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/risk"
)

func TestResolveDefaults(t *testing.T) {
	loaded, err := Resolve(FileConfig{
		Symbols: []SymbolConfig{{Name: "AAPL", InitialPrice: 150}},
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, loaded.Volatility, 1e-9)
	assert.Equal(t, 100*time.Millisecond, loaded.FeedInterval)
	assert.Equal(t, time.Second, loaded.MonitorInterval)
	assert.Equal(t, 5*time.Second, loaded.SnapshotInterval)
	assert.Equal(t, "./logs", loaded.LogDirectory)
	assert.Equal(t, risk.DefaultLimits(), loaded.Risk)
	assert.Empty(t, loaded.Strategies)
}

func TestResolveValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  FileConfig
	}{
		{"no symbols", FileConfig{}},
		{"empty symbol name", FileConfig{Symbols: []SymbolConfig{{InitialPrice: 1}}}},
		{"bad price", FileConfig{Symbols: []SymbolConfig{{Name: "A", InitialPrice: 0}}}},
		{"duplicate symbol", FileConfig{Symbols: []SymbolConfig{
			{Name: "A", InitialPrice: 1}, {Name: "A", InitialPrice: 2},
		}}},
		{"db without name", FileConfig{
			Symbols:  []SymbolConfig{{Name: "A", InitialPrice: 1}},
			Database: DatabaseConfig{Enabled: true},
		}},
		{"drawdown out of range", FileConfig{
			Symbols: []SymbolConfig{{Name: "A", InitialPrice: 1}},
			Risk:    &risk.Limits{MaxOrderSize: 10, MaxDrawdown: 1.5},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolveStrategySpecs(t *testing.T) {
	loaded, err := Resolve(FileConfig{
		Symbols: []SymbolConfig{{Name: "AAPL", InitialPrice: 150}},
		Strategies: StrategiesConfig{
			Enabled: []string{"market_making", "market_making", "momentum"},
			Params: map[string]map[string]string{
				"market_making": {"spread_multiplier": "2.0"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, loaded.Strategies, 3)

	assert.Equal(t, "market_making_1", loaded.Strategies[0].Name)
	assert.Equal(t, "MARKET_MAKING_TRADER_01", loaded.Strategies[0].Trader)
	assert.Equal(t, "2.0", loaded.Strategies[0].Params["spread_multiplier"])
	assert.Equal(t, "market_making_2", loaded.Strategies[1].Name)
	assert.Equal(t, "MARKET_MAKING_TRADER_02", loaded.Strategies[1].Trader)
	assert.Equal(t, "momentum_1", loaded.Strategies[2].Name)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"symbols": [
			{"name": "AAPL", "initialPrice": 150.0},
			{"name": "MSFT", "initialPrice": 310.0}
		],
		"feed": {"volatilityMultiplier": 2.0, "tickIntervalMs": 50},
		"risk": {
			"maxOrderSize": 5000,
			"maxPositionValue": 500000,
			"maxDailyLoss": 25000,
			"maxDrawdown": 0.2,
			"maxLeverage": 3.0
		},
		"strategies": {
			"enabled": ["market_orders"],
			"params": {"market_orders": {"order_interval_ms": "500"}}
		},
		"logging": {"enabled": true, "directory": "/tmp/velocity-logs"},
		"monitor": {"updateIntervalMs": 250},
		"snapshot": {"publishIntervalMs": 2000}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, loaded.Symbols, 2)
	assert.InDelta(t, 2.0, loaded.Volatility, 1e-9)
	assert.Equal(t, 50*time.Millisecond, loaded.FeedInterval)
	assert.Equal(t, int64(5000), loaded.Risk.MaxOrderSize)
	assert.InDelta(t, 0.2, loaded.Risk.MaxDrawdown, 1e-9)
	assert.Equal(t, 250*time.Millisecond, loaded.MonitorInterval)
	assert.Equal(t, 2*time.Second, loaded.SnapshotInterval)
	assert.True(t, loaded.LoggingEnabled)
	assert.Equal(t, "/tmp/velocity-logs", loaded.LogDirectory)
	require.Len(t, loaded.Strategies, 1)
	assert.Equal(t, "market_orders", loaded.Strategies[0].Type)
	assert.Equal(t, "500", loaded.Strategies[0].Params["order_interval_ms"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	d := Default()
	assert.Len(t, d.Symbols, 2)
	assert.Len(t, d.Strategies, 4)
	assert.True(t, d.LoggingEnabled)
}
