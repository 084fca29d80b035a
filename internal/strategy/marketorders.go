package strategy

import (
	"sync"
	"time"

	"main/internal/schema"
)

// MarketOrders submits a market order at a fixed cadence, alternating buy
// and sell, until it reaches its cap. It exists to guarantee trade flow.
type MarketOrders struct {
	base

	interval  time.Duration
	size      int64
	maxOrders uint32

	clockMu    sync.Mutex
	count      uint32
	lastSubmit time.Time
	now        func() time.Time
}

// NewMarketOrders creates a periodic market-order agent.
func NewMarketOrders(name, trader string, deps Deps, interval time.Duration, size int64, maxOrders uint32) *MarketOrders {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if size <= 0 {
		size = 500
	}
	if maxOrders == 0 {
		maxOrders = 10
	}
	return &MarketOrders{
		base:      newBase(name, trader, deps),
		interval:  interval,
		size:      size,
		maxOrders: maxOrders,
		now:       time.Now,
	}
}

func (s *MarketOrders) Start() {
	s.base.Start()
	s.clockMu.Lock()
	s.lastSubmit = s.now()
	s.clockMu.Unlock()
}

func (s *MarketOrders) OnMarketData(symbol string, bid, ask float64) {
	if !s.isRunning() || !s.subscribed(symbol) {
		return
	}

	s.clockMu.Lock()
	now := s.now()
	if s.count >= s.maxOrders || now.Sub(s.lastSubmit) < s.interval {
		s.clockMu.Unlock()
		return
	}
	side := schema.SideBuy
	if s.count%2 == 1 {
		side = schema.SideSell
	}
	s.clockMu.Unlock()

	if id := s.placeMarket(symbol, side, s.size); id != 0 {
		s.clockMu.Lock()
		s.count++
		s.lastSubmit = now
		s.clockMu.Unlock()
	}
}

func (s *MarketOrders) OnExecution(exec schema.Execution) {
	s.recordExecution(exec)
}

// Submitted returns how many market orders have been placed so far.
func (s *MarketOrders) Submitted() uint32 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.count
}
