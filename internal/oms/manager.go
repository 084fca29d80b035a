package oms

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/match"
	"main/internal/risk"
	"main/internal/schema"
)

var ErrRejected = errors.New("order rejected")

// ExecutionFunc receives executions after position accounting has applied.
type ExecutionFunc func(schema.Execution)

// PositionFunc receives the updated position after each applied execution.
type PositionFunc func(schema.Position)

// TradeFunc receives closed round trips as they realize P&L.
type TradeFunc func(schema.Trade)

// LatencyFunc receives submit-to-execution latency samples.
type LatencyFunc func(schema.LatencyMeasurement)

// AlertFunc receives human-readable risk alerts.
type AlertFunc func(message string)

// positionState carries the public position plus the bookkeeping needed to
// derive closed trades from it.
type positionState struct {
	schema.Position
	entryNs int64
}

// Manager wraps a matching engine with pre-trade risk, per-symbol position
// and P&L tracking, and a per-trader table of active orders that is
// authoritative for ownership on cancel/modify.
type Manager struct {
	engine *match.Engine
	risk   *risk.Engine

	mu          sync.Mutex
	positions   map[string]*positionState
	active      map[string]map[uint64]*schema.Order
	marks       map[string]float64
	dailyPnL    float64
	peakEquity  float64
	maxDrawdown float64
	tradeSeq    uint64

	onExecution ExecutionFunc
	onPosition  PositionFunc
	onTrade     TradeFunc
	onLatency   LatencyFunc
	onAlert     AlertFunc

	nowNanos func() int64
}

// NewManager creates a manager over the given engine and wires itself as
// the engine's execution and order-status consumer.
func NewManager(engine *match.Engine, limits risk.Limits) *Manager {
	m := &Manager{
		engine:    engine,
		risk:      risk.NewEngine(limits),
		positions: make(map[string]*positionState),
		active:    make(map[string]map[uint64]*schema.Order),
		marks:     make(map[string]float64),
		nowNanos:  func() int64 { return time.Now().UnixNano() },
	}
	engine.SetExecutionCallback(m.handleExecution)
	engine.SetOrderStatusCallback(m.handleStatus)
	return m
}

// SetExecutionCallback registers the downstream execution sink. Set once.
func (m *Manager) SetExecutionCallback(fn ExecutionFunc) { m.onExecution = fn }

// SetPositionCallback registers the position sink. Set once.
func (m *Manager) SetPositionCallback(fn PositionFunc) { m.onPosition = fn }

// SetTradeCallback registers the closed-trade sink. Set once.
func (m *Manager) SetTradeCallback(fn TradeFunc) { m.onTrade = fn }

// SetLatencyCallback registers the latency sample sink. Set once.
func (m *Manager) SetLatencyCallback(fn LatencyFunc) { m.onLatency = fn }

// SetRiskAlertCallback registers the risk alert sink. Set once.
func (m *Manager) SetRiskAlertCallback(fn AlertFunc) { m.onAlert = fn }

// Engine exposes the wrapped matching engine.
func (m *Manager) Engine() *match.Engine { return m.engine }

// AddSymbol registers a symbol with the engine.
func (m *Manager) AddSymbol(symbol string) { m.engine.AddSymbol(symbol) }

// RiskLimits returns the current caps.
func (m *Manager) RiskLimits() risk.Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk.Limits()
}

// SetRiskLimits replaces the caps.
func (m *Manager) SetRiskLimits(limits risk.Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk.SetLimits(limits)
}

// Place runs the pre-trade checks and submits the order. A rejection
// returns id 0 with ErrRejected and fires the risk alert callback; nothing
// reaches the engine.
func (m *Manager) Place(o schema.Order) (uint64, error) {
	if o.Symbol == "" || m.engine.Book(o.Symbol) == nil {
		return m.reject(fmt.Sprintf("unknown symbol %q", o.Symbol))
	}

	m.mu.Lock()
	state := m.stateViewLocked(o.Symbol)
	decision := m.risk.Evaluate(o, state)
	m.mu.Unlock()

	if !decision.Allowed {
		return m.reject(decision.Detail)
	}

	id, err := m.engine.Submit(o)
	if err != nil {
		return 0, err
	}

	o.ID = id
	o.SubmitNs = m.nowNanos()
	o.Status = schema.OrderStatusPending
	m.mu.Lock()
	orders, ok := m.active[o.TraderID]
	if !ok {
		orders = make(map[uint64]*schema.Order)
		m.active[o.TraderID] = orders
	}
	cp := o
	orders[id] = &cp
	m.mu.Unlock()

	return id, nil
}

// Cancel forwards to the engine after the ownership check it performs, and
// drops the order from the active table on success.
func (m *Manager) Cancel(id uint64, trader string) bool {
	if !m.engine.Cancel(id, trader) {
		return false
	}
	m.mu.Lock()
	if orders, ok := m.active[trader]; ok {
		delete(orders, id)
	}
	m.mu.Unlock()
	return true
}

// Modify forwards to the engine and mirrors the new parameters in the
// active table on success.
func (m *Manager) Modify(id uint64, newPrice float64, newQty int64, trader string) bool {
	if !m.engine.Modify(id, newPrice, newQty, trader) {
		return false
	}
	m.mu.Lock()
	if orders, ok := m.active[trader]; ok {
		if o, ok := orders[id]; ok {
			o.Price = newPrice
			o.Quantity = newQty
		}
	}
	m.mu.Unlock()
	return true
}

// Position returns the position for a symbol, zero-valued when flat and
// never traded.
func (m *Manager) Position(symbol string) schema.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		return p.Position
	}
	return schema.Position{Symbol: symbol}
}

// Positions returns all tracked positions.
func (m *Manager) Positions() []schema.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Position)
	}
	return out
}

// ActiveOrders returns copies of the trader's live orders.
func (m *Manager) ActiveOrders(trader string) []schema.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := m.active[trader]
	out := make([]schema.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out
}

// DailyPnL returns realized P&L accumulated this session.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// MaxDrawdown returns the running maximum drawdown fraction.
func (m *Manager) MaxDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrawdown
}

// TotalPnL returns realized plus unrealized P&L across all symbols.
func (m *Manager) TotalPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalPnLLocked()
}

// MarkPrice returns the latest observed mark for a symbol, 0 when unseen.
func (m *Manager) MarkPrice(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[symbol]
}

// OnMarketData records the latest mid as the symbol's mark price and
// refreshes unrealized P&L and the drawdown watermark.
func (m *Manager) OnMarketData(symbol string, bid, ask float64) {
	var mark float64
	switch {
	case bid > 0 && ask > 0:
		mark = (bid + ask) / 2
	case bid > 0:
		mark = bid
	case ask > 0:
		mark = ask
	default:
		return
	}

	m.mu.Lock()
	m.marks[symbol] = mark
	if p, ok := m.positions[symbol]; ok {
		m.remarkLocked(p)
	}
	alert := m.updateDrawdownLocked()
	m.mu.Unlock()

	m.alert(alert)
}

// MarkToMarket refreshes unrealized P&L on every position from the latest
// marks. The performance monitor calls this on its poll interval.
func (m *Manager) MarkToMarket() {
	m.mu.Lock()
	for _, p := range m.positions {
		m.remarkLocked(p)
	}
	alert := m.updateDrawdownLocked()
	m.mu.Unlock()

	m.alert(alert)
}

func (m *Manager) reject(detail string) (uint64, error) {
	logs.Warnf("order rejected: %s", detail)
	m.alert(detail)
	return 0, fmt.Errorf("%w: %s", ErrRejected, detail)
}

func (m *Manager) alert(message string) {
	if message != "" && m.onAlert != nil {
		m.onAlert(message)
	}
}

// stateViewLocked snapshots the risk inputs for one symbol.
func (m *Manager) stateViewLocked(symbol string) risk.StateView {
	var position int64
	if p, ok := m.positions[symbol]; ok {
		position = p.Quantity
	}
	mark := m.marks[symbol]
	if mark == 0 {
		if b := m.engine.Book(symbol); b != nil {
			mark = b.MidPrice()
		}
	}
	var gross float64
	for sym, p := range m.positions {
		if sym == symbol || p.Quantity == 0 {
			continue
		}
		ref := m.marks[sym]
		if ref == 0 {
			ref = p.AvgPrice
		}
		gross += p.Value(ref)
	}
	return risk.StateView{
		Position:   position,
		MarkPrice:  mark,
		DailyPnL:   m.dailyPnL,
		GrossValue: gross,
	}
}

// handleExecution applies one fill. Active-order bookkeeping and latency
// apply to both legs of a match; position accounting applies to the taker
// leg only. Both legs of every internal match touch the same per-symbol
// position, so applying both would cancel identically and pin every
// position at zero; per-symbol flow is attributed to the aggressor.
func (m *Manager) handleExecution(exec schema.Execution) {
	m.mu.Lock()

	var latency *schema.LatencyMeasurement
	if orders, ok := m.active[exec.TraderID]; ok {
		if o, ok := orders[exec.OrderID]; ok {
			o.Filled += exec.Quantity
			if o.Filled >= o.Quantity {
				o.Status = schema.OrderStatusFilled
				delete(orders, exec.OrderID)
			} else {
				o.Status = schema.OrderStatusPartial
			}
			latency = &schema.LatencyMeasurement{
				OrderID:   exec.OrderID,
				Symbol:    exec.Symbol,
				Side:      exec.Side,
				SubmitNs:  o.SubmitNs,
				ExecNs:    exec.TimestampNs,
				LatencyUs: (exec.TimestampNs - o.SubmitNs) / int64(time.Microsecond),
			}
		}
	}

	var trade *schema.Trade
	var position schema.Position
	var havePosition bool
	var alert string
	if exec.Taker {
		trade, position = m.applyFillLocked(exec)
		havePosition = true
		if trade != nil && latency != nil {
			trade.LatencyUs = latency.LatencyUs
		}
		alert = m.updateDrawdownLocked()
	}
	m.mu.Unlock()

	if m.onExecution != nil {
		m.onExecution(exec)
	}
	if havePosition && m.onPosition != nil {
		m.onPosition(position)
	}
	if latency != nil && m.onLatency != nil {
		m.onLatency(*latency)
	}
	if trade != nil && m.onTrade != nil {
		m.onTrade(*trade)
	}
	m.alert(alert)
}

// applyFillLocked folds one signed fill into the symbol's position.
// Same-sign fills extend the position at a volume-weighted average entry;
// opposing fills realize P&L for the closed quantity and flip the position
// when they overshoot, re-basing the average at the execution price.
func (m *Manager) applyFillLocked(exec schema.Execution) (*schema.Trade, schema.Position) {
	p, ok := m.positions[exec.Symbol]
	if !ok {
		p = &positionState{Position: schema.Position{Symbol: exec.Symbol}}
		m.positions[exec.Symbol] = p
	}

	signed := exec.Quantity
	if exec.Side == schema.SideSell {
		signed = -signed
	}

	prior := p.Quantity
	priorAvg := p.AvgPrice
	priorEntry := p.entryNs
	var realized float64
	var closed int64

	if prior == 0 || (prior > 0) == (signed > 0) {
		newAbs := absInt(prior) + absInt(signed)
		p.AvgPrice = (float64(absInt(prior))*priorAvg + float64(absInt(signed))*exec.Price) / float64(newAbs)
		if prior == 0 {
			p.entryNs = exec.TimestampNs
		}
		p.Quantity = prior + signed
	} else {
		closed = min(absInt(prior), absInt(signed))
		if prior > 0 {
			realized = (exec.Price - priorAvg) * float64(closed)
		} else {
			realized = (priorAvg - exec.Price) * float64(closed)
		}
		p.RealizedPnL += realized
		p.Quantity = prior + signed
		switch {
		case p.Quantity == 0:
			p.AvgPrice = 0
		case (p.Quantity > 0) != (prior > 0):
			p.AvgPrice = exec.Price
			p.entryNs = exec.TimestampNs
		}
	}

	m.dailyPnL += realized
	m.remarkLocked(p)

	var trade *schema.Trade
	if closed > 0 {
		m.tradeSeq++
		trade = &schema.Trade{
			ID:         m.tradeSeq,
			Symbol:     exec.Symbol,
			Side:       exec.Side,
			EntryPrice: priorAvg,
			ExitPrice:  exec.Price,
			Quantity:   closed,
			PnL:        realized,
			EntryNs:    priorEntry,
			ExitNs:     exec.TimestampNs,
			TraderID:   exec.TraderID,
		}
	}
	return trade, p.Position
}

// handleStatus mirrors engine-side terminal transitions into the active
// table, covering fills of queued orders cancelled behind our back.
func (m *Manager) handleStatus(o schema.Order) {
	if !o.Status.Terminal() {
		return
	}
	m.mu.Lock()
	if orders, ok := m.active[o.TraderID]; ok {
		delete(orders, o.ID)
	}
	m.mu.Unlock()
}

func (m *Manager) remarkLocked(p *positionState) {
	if p.Quantity == 0 {
		p.UnrealizedPnL = 0
		return
	}
	mark := m.marks[p.Symbol]
	if mark == 0 {
		mark = p.AvgPrice
	}
	p.UnrealizedPnL = (mark - p.AvgPrice) * float64(p.Quantity)
}

func (m *Manager) totalPnLLocked() float64 {
	var total float64
	for _, p := range m.positions {
		total += p.RealizedPnL + p.UnrealizedPnL
	}
	return total
}

// updateDrawdownLocked advances the equity watermark and returns an alert
// message when the drawdown cap is newly breached. The policy is alert
// only: positions are never flattened automatically.
func (m *Manager) updateDrawdownLocked() string {
	equity := m.totalPnLLocked()
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity <= 0 {
		return ""
	}
	dd := (m.peakEquity - equity) / m.peakEquity
	if dd <= m.maxDrawdown {
		return ""
	}
	m.maxDrawdown = dd
	limit := m.risk.Limits().MaxDrawdown
	if limit > 0 && dd > limit {
		return fmt.Sprintf("drawdown %.4f exceeds max %.4f", dd, limit)
	}
	return ""
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
