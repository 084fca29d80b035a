package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/analytics"
	"main/internal/schema"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleTrade() schema.Trade {
	return schema.Trade{
		ID:         1,
		Symbol:     "AAPL",
		Side:       schema.SideSell,
		EntryPrice: 150,
		ExitPrice:  155,
		Quantity:   40,
		PnL:        200,
		EntryNs:    1000,
		ExitNs:     5000,
		LatencyUs:  4,
		TraderID:   "MM1",
	}
}

func TestLiveTradeLog(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.StartTradeLog())
	require.NoError(t, w.AppendTrade(sampleTrade()))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent

	rows := readCSV(t, filepath.Join(w.Dir(), TradesFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"TradeID", "Symbol", "Side", "EntryPrice", "ExitPrice",
		"Quantity", "PnL", "EntryTimeNs", "ExitTimeNs", "LatencyUs",
	}, rows[0])
	assert.Equal(t, []string{
		"1", "AAPL", "SELL", "150.00", "155.00", "40", "200.00", "1000", "5000", "4",
	}, rows[1])
}

func TestAppendWithoutStartIsNoOp(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.AppendTrade(sampleTrade()))
	_, statErr := os.Stat(filepath.Join(w.Dir(), TradesFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPerformanceLog(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.StartPerformanceLog())
	require.NoError(t, w.AppendPerformance(123456789, analytics.PerformanceMetrics{
		TotalPnL:    1234.5,
		SharpeRatio: 1.25,
		MaxDrawdown: 0.08,
		WinRate:     0.6,
		TotalTrades: 42,
	}))
	require.NoError(t, w.Close())

	rows := readCSV(t, filepath.Join(w.Dir(), PerformanceFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"TimestampNs", "TotalPnL", "SharpeRatio", "MaxDrawdown", "WinRate", "TotalTrades",
	}, rows[0])
	assert.Equal(t, []string{
		"123456789", "1234.50", "1.2500", "0.0800", "0.6000", "42",
	}, rows[1])
}

func TestExportTradeAnalysis(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.ExportTradeAnalysis([]schema.TradeLog{{
		ID:          9,
		Symbol:      "MSFT",
		Side:        schema.SideBuy,
		Price:       310.25,
		Quantity:    50,
		PnL:         -12.5,
		TimestampNs: 777,
		TraderID:    "MOM1",
		Strategy:    "momentum",
	}}))

	rows := readCSV(t, filepath.Join(w.Dir(), TradeAnalysisFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"TradeID", "Symbol", "Side", "Price", "Quantity", "PnL",
		"TimestampNs", "TraderID", "Strategy",
	}, rows[0])
	assert.Equal(t, []string{
		"9", "MSFT", "BUY", "310.25", "50", "-12.50", "777", "MOM1", "momentum",
	}, rows[1])
}

func TestExportRiskReport(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	r := analytics.RiskMetrics{
		VaR95:       -50,
		VaR99:       -80,
		CVaR95:      -60,
		SharpeRatio: 0.5,
		MaxDrawdown: 120,
		Volatility:  89.27,
		Skewness:    0.1,
		Kurtosis:    -1.2,
		Exposure:    30050,
	}
	h := analytics.Histogram{
		Bins:        []float64{0, 10},
		Frequencies: []int{3, 2},
		BinWidth:    10,
	}
	require.NoError(t, w.ExportRiskReport(r, h))

	data, err := os.ReadFile(filepath.Join(w.Dir(), RiskReportFile))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "VaR (95%): -50.00")
	assert.Contains(t, text, "VaR (99%): -80.00")
	assert.Contains(t, text, "Volatility: 89.27")
	assert.Contains(t, text, "Current Exposure: 30050.00")
	assert.Contains(t, text, "[0.00, 10.00): 3")
	assert.Contains(t, text, "[10.00, 20.00): 2")
	assert.True(t, strings.HasPrefix(text, "Risk Report"))
}

func TestExportTradesOneShot(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.ExportTrades([]schema.Trade{sampleTrade()}))
	rows := readCSV(t, filepath.Join(w.Dir(), TradesFile))
	assert.Len(t, rows, 2)
}

func TestNewWriterEmptyDir(t *testing.T) {
	_, err := NewWriter("")
	assert.Error(t, err)
}
