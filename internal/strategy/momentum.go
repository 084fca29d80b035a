package strategy

import (
	"sync"

	"main/internal/schema"
)

// Momentum trades moving-average crossovers: when the short average runs
// above the long one by more than the threshold it goes long, symmetric on
// the way down. Signals are edge-triggered and suppressed while the
// position already points the signalled way.
type Momentum struct {
	base

	shortWindow int
	longWindow  int
	threshold   float64
	size        int64

	histMu  sync.Mutex
	history map[string][]float64
	signals map[string]schema.Side
}

// NewMomentum creates a momentum agent with the given windows and threshold.
func NewMomentum(name, trader string, deps Deps, shortWindow, longWindow int, threshold float64, size int64) *Momentum {
	if shortWindow <= 0 {
		shortWindow = 5
	}
	if longWindow <= shortWindow {
		longWindow = shortWindow * 4
	}
	if threshold <= 0 {
		threshold = 0.02
	}
	if size <= 0 {
		size = 100
	}
	return &Momentum{
		base:        newBase(name, trader, deps),
		shortWindow: shortWindow,
		longWindow:  longWindow,
		threshold:   threshold,
		size:        size,
		history:     make(map[string][]float64),
		signals:     make(map[string]schema.Side),
	}
}

func (s *Momentum) OnMarketData(symbol string, bid, ask float64) {
	if !s.isRunning() || !s.subscribed(symbol) {
		return
	}
	if bid <= 0 || ask <= 0 {
		return
	}
	mid := (bid + ask) / 2

	signal, fire := s.updateSignal(symbol, mid)
	if !fire {
		return
	}

	// Skip when the position already reflects the signal.
	position := s.position(symbol).Quantity
	if signal == schema.SideBuy && position > 0 {
		return
	}
	if signal == schema.SideSell && position < 0 {
		return
	}

	s.placeMarket(symbol, signal, s.size)
}

func (s *Momentum) OnExecution(exec schema.Execution) {
	s.recordExecution(exec)
}

// updateSignal pushes the mid into the rolling window and reports whether a
// fresh crossover signal fired.
func (s *Momentum) updateSignal(symbol string, mid float64) (schema.Side, bool) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	hist := append(s.history[symbol], mid)
	if len(hist) > s.longWindow {
		hist = hist[len(hist)-s.longWindow:]
	}
	s.history[symbol] = hist
	if len(hist) < s.longWindow {
		return schema.SideUnknown, false
	}

	shortMA := mean(hist[len(hist)-s.shortWindow:])
	longMA := mean(hist)
	if longMA == 0 {
		return schema.SideUnknown, false
	}
	momentum := (shortMA - longMA) / longMA

	var signal schema.Side
	switch {
	case momentum > s.threshold:
		signal = schema.SideBuy
	case momentum < -s.threshold:
		signal = schema.SideSell
	default:
		return schema.SideUnknown, false
	}

	if s.signals[symbol] == signal {
		return signal, false
	}
	s.signals[symbol] = signal
	return signal, true
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
