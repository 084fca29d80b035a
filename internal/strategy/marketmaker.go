package strategy

import (
	"sync"

	"main/internal/schema"
)

// MarketMaker quotes both sides of every subscribed symbol, re-centering on
// each quote update. It keeps at most one resting bid and one resting ask
// per symbol. It stops bidding while its position is above the cap and
// stops offering while its position is below minus the cap.
type MarketMaker struct {
	base

	spreadMult  float64
	baseQty     int64
	maxPosition int64
	minSpread   float64

	quoteMu    sync.Mutex
	activeBids map[string]uint64
	activeAsks map[string]uint64
}

// NewMarketMaker creates a market making agent with the given parameters.
func NewMarketMaker(name, trader string, deps Deps, spreadMult float64, baseQty, maxPosition int64, minSpread float64) *MarketMaker {
	if spreadMult <= 0 {
		spreadMult = 1.5
	}
	if baseQty <= 0 {
		baseQty = 1000
	}
	if maxPosition <= 0 {
		maxPosition = 10000
	}
	if minSpread <= 0 {
		minSpread = 0.01
	}
	return &MarketMaker{
		base:        newBase(name, trader, deps),
		spreadMult:  spreadMult,
		baseQty:     baseQty,
		maxPosition: maxPosition,
		minSpread:   minSpread,
		activeBids:  make(map[string]uint64),
		activeAsks:  make(map[string]uint64),
	}
}

func (s *MarketMaker) OnMarketData(symbol string, bid, ask float64) {
	if !s.isRunning() || !s.subscribed(symbol) {
		return
	}

	mid := s.view.MidPrice(symbol)
	if bid > 0 && ask > 0 {
		mid = (bid + ask) / 2
	}
	if mid <= 0 {
		return
	}

	spread := ask - bid
	if spread < 0 {
		spread = -spread
	}
	if spread < s.minSpread {
		spread = s.minSpread
	}

	bidPrice := mid - spread*s.spreadMult/2
	askPrice := mid + spread*s.spreadMult/2
	if bidPrice >= askPrice {
		bidPrice = mid - spread/2
		askPrice = mid + spread/2
	}
	if bidPrice <= 0 {
		return
	}

	s.cancelQuotes(symbol)

	position := s.position(symbol).Quantity
	if position <= s.maxPosition {
		if id := s.placeLimit(symbol, schema.SideBuy, bidPrice, s.baseQty); id != 0 {
			s.quoteMu.Lock()
			s.activeBids[symbol] = id
			s.quoteMu.Unlock()
		}
	}
	if position >= -s.maxPosition {
		if id := s.placeLimit(symbol, schema.SideSell, askPrice, s.baseQty); id != 0 {
			s.quoteMu.Lock()
			s.activeAsks[symbol] = id
			s.quoteMu.Unlock()
		}
	}
}

func (s *MarketMaker) OnExecution(exec schema.Execution) {
	s.recordExecution(exec)

	s.quoteMu.Lock()
	defer s.quoteMu.Unlock()
	if exec.Side == schema.SideBuy {
		delete(s.activeBids, exec.Symbol)
	} else {
		delete(s.activeAsks, exec.Symbol)
	}
}

// Stop cancels all live quotes before parking the agent.
func (s *MarketMaker) Stop() {
	s.base.Stop()

	s.quoteMu.Lock()
	ids := make([]uint64, 0, len(s.activeBids)+len(s.activeAsks))
	for _, id := range s.activeBids {
		ids = append(ids, id)
	}
	for _, id := range s.activeAsks {
		ids = append(ids, id)
	}
	s.activeBids = make(map[string]uint64)
	s.activeAsks = make(map[string]uint64)
	s.quoteMu.Unlock()

	for _, id := range ids {
		s.cancel(id)
	}
}

func (s *MarketMaker) cancelQuotes(symbol string) {
	s.quoteMu.Lock()
	bidID, hasBid := s.activeBids[symbol]
	askID, hasAsk := s.activeAsks[symbol]
	delete(s.activeBids, symbol)
	delete(s.activeAsks, symbol)
	s.quoteMu.Unlock()

	if hasBid {
		s.cancel(bidID)
	}
	if hasAsk {
		s.cancel(askID)
	}
}
