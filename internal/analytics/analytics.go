package analytics

import (
	"sync"

	"main/internal/schema"
)

const (
	defaultLookback      = 252
	defaultHistoryBound  = 1000
	defaultSnapshotBound = 500
)

// Config bounds the analytics histories so memory stays constant.
type Config struct {
	// LookbackReturns bounds the rolling per-trade return window, default 252.
	LookbackReturns int
	// HistoryBound bounds the P&L and equity series, default 1000.
	HistoryBound int
	// SnapshotBound bounds the captured book snapshots, default 500.
	SnapshotBound int
	// RiskFreeRate is subtracted from mean returns in Sharpe/Sortino.
	// Zero means no adjustment.
	RiskFreeRate float64
}

func (c Config) withDefaults() Config {
	if c.LookbackReturns <= 0 {
		c.LookbackReturns = defaultLookback
	}
	if c.HistoryBound <= 0 {
		c.HistoryBound = defaultHistoryBound
	}
	if c.SnapshotBound <= 0 {
		c.SnapshotBound = defaultSnapshotBound
	}
	return c
}

// PerformanceMetrics is the full trade-quality summary computed on demand.
type PerformanceMetrics struct {
	TotalPnL      float64
	RealizedPnL   float64
	UnrealizedPnL float64
	SharpeRatio   float64
	SortinoRatio  float64
	MaxDrawdown   float64
	WinRate       float64
	ProfitFactor  float64
	AvgWin        float64
	AvgLoss       float64
	LargestWin    float64
	LargestLoss   float64
	TotalTrades   uint64
	WinningTrades uint64
	LosingTrades  uint64
	AvgLatencyUs  float64
	MinLatencyUs  float64
	MaxLatencyUs  float64
}

// RiskMetrics is the distribution-shaped view over the P&L history.
type RiskMetrics struct {
	VaR95       float64
	VaR99       float64
	CVaR95      float64
	SharpeRatio float64
	MaxDrawdown float64
	Volatility  float64
	Skewness    float64
	Kurtosis    float64
	Exposure    float64
}

// Histogram is an equal-width binning of the P&L history.
type Histogram struct {
	Bins        []float64 // lower edge of each bin
	Frequencies []int
	MinPnL      float64
	MaxPnL      float64
	BinWidth    float64
}

// Analytics sinks trades, latencies and equity samples and computes
// performance and risk statistics on demand. All histories are bounded.
type Analytics struct {
	cfg Config

	mu         sync.Mutex
	trades     []schema.Trade
	tradeLogs  []schema.TradeLog
	latencies  []schema.LatencyMeasurement
	returns    []float64
	pnlHistory []float64
	equity     []float64
	snapshots  []schema.BookSnapshot
	unrealized float64
	exposure   float64
}

// New creates an analytics store.
func New(cfg Config) *Analytics {
	return &Analytics{cfg: cfg.withDefaults()}
}

// RecordTrade ingests one closed round trip attributed to a strategy.
func (a *Analytics) RecordTrade(t schema.Trade, strategy string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades = append(a.trades, t)
	a.tradeLogs = append(a.tradeLogs, schema.TradeLog{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Side:        t.Side,
		Price:       t.ExitPrice,
		Quantity:    t.Quantity,
		PnL:         t.PnL,
		TimestampNs: t.ExitNs,
		TraderID:    t.TraderID,
		Strategy:    strategy,
	})

	if notional := t.EntryPrice * float64(t.Quantity); notional > 0 {
		a.returns = append(a.returns, t.PnL/notional)
		if len(a.returns) > a.cfg.LookbackReturns {
			a.returns = a.returns[len(a.returns)-a.cfg.LookbackReturns:]
		}
	}
}

// RecordLatency ingests one submit-to-execution latency sample.
func (a *Analytics) RecordLatency(l schema.LatencyMeasurement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latencies = append(a.latencies, l)
	if len(a.latencies) > a.cfg.HistoryBound {
		a.latencies = a.latencies[len(a.latencies)-a.cfg.HistoryBound:]
	}
}

// RecordPnL appends a total P&L sample to the bounded history.
func (a *Analytics) RecordPnL(pnl float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pnlHistory = append(a.pnlHistory, pnl)
	if len(a.pnlHistory) > a.cfg.HistoryBound {
		a.pnlHistory = a.pnlHistory[len(a.pnlHistory)-a.cfg.HistoryBound:]
	}
}

// UpdateEquity appends an equity sample to the bounded curve.
func (a *Analytics) UpdateEquity(equity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.equity = append(a.equity, equity)
	if len(a.equity) > a.cfg.HistoryBound {
		a.equity = a.equity[len(a.equity)-a.cfg.HistoryBound:]
	}
}

// SetUnrealized records the latest marked-to-market unrealized P&L.
func (a *Analytics) SetUnrealized(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unrealized = v
}

// SetExposure records the latest gross position value.
func (a *Analytics) SetExposure(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exposure = v
}

// CaptureBookSnapshot stores a book snapshot in the bounded ring.
func (a *Analytics) CaptureBookSnapshot(snap schema.BookSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, snap)
	if len(a.snapshots) > a.cfg.SnapshotBound {
		a.snapshots = a.snapshots[len(a.snapshots)-a.cfg.SnapshotBound:]
	}
}

// Trades returns a copy of the recorded round trips.
func (a *Analytics) Trades() []schema.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// TradeLogs returns a copy of the per-trade audit rows.
func (a *Analytics) TradeLogs() []schema.TradeLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.TradeLog, len(a.tradeLogs))
	copy(out, a.tradeLogs)
	return out
}

// BookSnapshots returns a copy of the captured snapshots.
func (a *Analytics) BookSnapshots() []schema.BookSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.BookSnapshot, len(a.snapshots))
	copy(out, a.snapshots)
	return out
}

// EquityCurve returns a copy of the bounded equity series.
func (a *Analytics) EquityCurve() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.equity))
	copy(out, a.equity)
	return out
}

// DrawdownCurve derives the fractional drawdown series from the equity
// curve.
func (a *Analytics) DrawdownCurve() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.equity))
	var peak float64
	for i, v := range a.equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (peak - v) / peak
		}
	}
	return out
}

// Metrics computes the performance summary over the recorded trades.
func (a *Analytics) Metrics() PerformanceMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	var m PerformanceMetrics
	var grossWin, grossLoss float64
	for _, t := range a.trades {
		m.RealizedPnL += t.PnL
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossWin += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		default:
			m.LosingTrades++
			loss := -t.PnL
			grossLoss += loss
			if loss > m.LargestLoss {
				m.LargestLoss = loss
			}
		}
	}
	m.TotalTrades = uint64(len(a.trades))
	m.UnrealizedPnL = a.unrealized
	m.TotalPnL = m.RealizedPnL + m.UnrealizedPnL

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}

	if len(a.returns) >= 2 {
		excess := mean(a.returns) - a.cfg.RiskFreeRate
		if sd := stddevSample(a.returns); sd > 0 {
			m.SharpeRatio = excess / sd
		}
		if dd := downsideDeviation(a.returns); dd > 0 {
			m.SortinoRatio = excess / dd
		}
	}
	m.MaxDrawdown = maxDrawdownFraction(a.equity)

	if len(a.latencies) > 0 {
		minLat := a.latencies[0].LatencyUs
		maxLat := a.latencies[0].LatencyUs
		var sum int64
		for _, l := range a.latencies {
			sum += l.LatencyUs
			if l.LatencyUs < minLat {
				minLat = l.LatencyUs
			}
			if l.LatencyUs > maxLat {
				maxLat = l.LatencyUs
			}
		}
		m.AvgLatencyUs = float64(sum) / float64(len(a.latencies))
		m.MinLatencyUs = float64(minLat)
		m.MaxLatencyUs = float64(maxLat)
	}

	return m
}

// Risk computes distribution statistics over the P&L history increments.
func (a *Analytics) Risk() RiskMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	var m RiskMetrics
	m.Exposure = a.exposure
	if len(a.pnlHistory) < 2 {
		return m
	}

	increments := diffs(a.pnlHistory)
	m.VaR95 = empiricalVaR(increments, 0.95)
	m.VaR99 = empiricalVaR(increments, 0.99)
	m.CVaR95 = cvar(increments, 0.95)
	if sd := stddevPop(increments); sd > 0 {
		m.SharpeRatio = mean(increments) / sd
	}
	m.MaxDrawdown = maxDrawdownAbsolute(a.pnlHistory)
	m.Volatility = stddevPop(increments)
	m.Skewness = skewness(increments)
	m.Kurtosis = kurtosis(increments)
	return m
}

// PnLHistogram bins the P&L history into numBins equal-width buckets.
func (a *Analytics) PnLHistogram(numBins int) Histogram {
	a.mu.Lock()
	defer a.mu.Unlock()

	var h Histogram
	if len(a.pnlHistory) == 0 || numBins <= 0 {
		return h
	}

	h.MinPnL, h.MaxPnL = a.pnlHistory[0], a.pnlHistory[0]
	for _, v := range a.pnlHistory {
		if v < h.MinPnL {
			h.MinPnL = v
		}
		if v > h.MaxPnL {
			h.MaxPnL = v
		}
	}
	h.BinWidth = (h.MaxPnL - h.MinPnL) / float64(numBins)
	h.Bins = make([]float64, numBins)
	h.Frequencies = make([]int, numBins)
	for i := range h.Bins {
		h.Bins[i] = h.MinPnL + float64(i)*h.BinWidth
	}
	if h.BinWidth == 0 {
		// Degenerate flat history: everything lands in the first bin.
		h.Frequencies[0] = len(a.pnlHistory)
		return h
	}
	for _, v := range a.pnlHistory {
		idx := int((v - h.MinPnL) / h.BinWidth)
		if idx >= 0 && idx < numBins {
			h.Frequencies[idx]++
		} else if idx == numBins {
			// Max value falls on the closing edge of the last bin.
			h.Frequencies[numBins-1]++
		}
	}
	return h
}
