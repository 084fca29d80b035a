package strategy

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// OrderPlacer is the slice of the order manager an agent is allowed to use.
type OrderPlacer interface {
	Place(o schema.Order) (uint64, error)
	Cancel(id uint64, trader string) bool
	Position(symbol string) schema.Position
}

// MarketView provides quote lookups on the underlying market data books.
type MarketView interface {
	BestBid(symbol string) float64
	BestAsk(symbol string) float64
	MidPrice(symbol string) float64
	Spread(symbol string) float64
}

// Strategy is the common agent contract. Agents own no goroutines: both
// event entry points run inline on the caller's goroutine and must not
// block.
type Strategy interface {
	Name() string
	TraderID() string
	AddSymbol(symbol string)
	Initialize()
	Start()
	Stop()
	OnMarketData(symbol string, bid, ask float64)
	OnExecution(exec schema.Execution)
	Metrics() schema.StrategyMetrics
}

// Deps are the capabilities handed to every agent.
type Deps struct {
	Orders OrderPlacer
	View   MarketView
}

// base carries the bookkeeping shared by all agents.
type base struct {
	name   string
	trader string
	orders OrderPlacer
	view   MarketView

	mu      sync.Mutex
	symbols []string
	running bool
	metrics schema.StrategyMetrics
	peakPnL float64
}

func newBase(name, trader string, deps Deps) base {
	return base{name: name, trader: trader, orders: deps.Orders, view: deps.View}
}

func (b *base) Name() string     { return b.name }
func (b *base) TraderID() string { return b.trader }

func (b *base) AddSymbol(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.symbols {
		if s == symbol {
			return
		}
	}
	b.symbols = append(b.symbols, symbol)
}

func (b *base) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

func (b *base) Initialize() {}

func (b *base) Start() {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	logs.Infof("strategy %s started", b.name)
}

func (b *base) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	logs.Infof("strategy %s stopped", b.name)
}

func (b *base) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *base) subscribed(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func (b *base) Metrics() schema.StrategyMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// recordExecution updates the self-metrics with the cash-flow proxy the
// agents report: sells credit, buys debit.
func (b *base) recordExecution(exec schema.Execution) {
	pnl := exec.Price * float64(exec.Quantity)
	if exec.Side == schema.SideBuy {
		pnl = -pnl
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalTrades++
	b.metrics.TotalPnL += pnl
	if pnl > 0 {
		b.metrics.WinningTrades++
	}
	b.metrics.WinRate = float64(b.metrics.WinningTrades) / float64(b.metrics.TotalTrades)
	if b.metrics.TotalPnL > b.peakPnL {
		b.peakPnL = b.metrics.TotalPnL
	}
	if b.peakPnL > 0 {
		dd := (b.peakPnL - b.metrics.TotalPnL) / b.peakPnL
		if dd > b.metrics.MaxDrawdown {
			b.metrics.MaxDrawdown = dd
		}
	}
}

func (b *base) placeMarket(symbol string, side schema.Side, qty int64) uint64 {
	id, err := b.orders.Place(schema.Order{
		Symbol:   symbol,
		Side:     side,
		Type:     schema.OrderTypeMarket,
		Quantity: qty,
		TraderID: b.trader,
	})
	if err != nil {
		logs.Debugf("strategy %s: market order rejected: %v", b.name, err)
		return 0
	}
	return id
}

func (b *base) placeLimit(symbol string, side schema.Side, price float64, qty int64) uint64 {
	id, err := b.orders.Place(schema.Order{
		Symbol:   symbol,
		Side:     side,
		Type:     schema.OrderTypeLimit,
		Price:    price,
		Quantity: qty,
		TraderID: b.trader,
	})
	if err != nil {
		logs.Debugf("strategy %s: limit order rejected: %v", b.name, err)
		return 0
	}
	return id
}

func (b *base) cancel(id uint64) bool {
	return b.orders.Cancel(id, b.trader)
}

func (b *base) position(symbol string) schema.Position {
	return b.orders.Position(symbol)
}
