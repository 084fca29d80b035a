package schema

// Order is a single order as seen by the matching engine and the books.
// Quantity is the original size; Filled grows toward it as executions land.
type Order struct {
	ID       uint64
	Symbol   string
	Side     Side
	Type     OrderType
	Price    float64
	Quantity int64
	Filled   int64
	Status   OrderStatus
	// SubmitNs is the acceptance timestamp in nanoseconds. Orders at one
	// price trade in SubmitNs order; a modify refreshes it.
	SubmitNs int64
	TraderID string
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Execution is one side of a match. Every match emits two executions, one
// per touched order, sharing the engine-wide monotonic id sequence.
type Execution struct {
	ID       uint64
	OrderID  uint64
	Symbol   string
	Side     Side
	Price    float64
	Quantity int64
	// Taker marks the aggressing order's execution; the counterpart
	// execution with Taker=false belongs to the resting order.
	Taker       bool
	TimestampNs int64
	TraderID    string
}

// PriceLevel is one aggregated level of book depth.
type PriceLevel struct {
	Price    float64
	Quantity int64
}

// Position is the per-symbol net position held by an order manager.
// Quantity is signed: positive long, negative short. AvgPrice is the
// volume-weighted entry price and is meaningless while Quantity is zero.
type Position struct {
	Symbol        string
	Quantity      int64
	AvgPrice      float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// Value returns the absolute position value at the given mark price.
func (p Position) Value(mark float64) float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return float64(qty) * mark
}

// Trade is a closed round trip derived from executions: some quantity
// opened at EntryPrice and closed at ExitPrice, realizing PnL.
type Trade struct {
	ID         uint64
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Quantity   int64
	PnL        float64
	EntryNs    int64
	ExitNs     int64
	LatencyUs  int64
	TraderID   string
}

// TradeLog is the per-trade audit record analytics derives from each closed
// trade, tagged with the strategy that produced it.
type TradeLog struct {
	ID          uint64
	Symbol      string
	Side        Side
	Price       float64
	Quantity    int64
	PnL         float64
	TimestampNs int64
	TraderID    string
	Strategy    string
}

// BookSnapshot is a point-in-time view of one symbol's book.
type BookSnapshot struct {
	Symbol      string
	TimestampNs int64
	BestBid     float64
	BestAsk     float64
	MidPrice    float64
	Spread      float64
	Bids        []PriceLevel
	Asks        []PriceLevel
}

// LatencyMeasurement captures submit-to-execution latency for one order.
type LatencyMeasurement struct {
	OrderID   uint64
	Symbol    string
	Side      Side
	SubmitNs  int64
	ExecNs    int64
	LatencyUs int64
}

// StrategyMetrics are the self-reported counters of one agent.
type StrategyMetrics struct {
	TotalPnL      float64
	WinRate       float64
	MaxDrawdown   float64
	TotalTrades   uint64
	WinningTrades uint64
}
