package risk

import (
	"fmt"

	"main/internal/schema"
)

// Limits defines the pre-trade risk caps. Zero disables a check.
type Limits struct {
	MaxOrderSize     int64   `json:"maxOrderSize"`
	MaxPositionValue float64 `json:"maxPositionValue"`
	MaxDailyLoss     float64 `json:"maxDailyLoss"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	MaxLeverage      float64 `json:"maxLeverage"`
	// ReferenceEquity is the equity base for the leverage check. When zero,
	// MaxPositionValue is used as the base.
	ReferenceEquity float64 `json:"referenceEquity"`
}

// DefaultLimits returns the caps used when configuration omits them.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderSize:     10000,
		MaxPositionValue: 1000000,
		MaxDailyLoss:     50000,
		MaxDrawdown:      0.1,
		MaxLeverage:      2.0,
	}
}

// Reason is a coarse code for risk decisions.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonMalformed
	ReasonOrderSize
	ReasonPositionValue
	ReasonDailyLoss
	ReasonLeverage
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMalformed:
		return "malformed"
	case ReasonOrderSize:
		return "size"
	case ReasonPositionValue:
		return "position value"
	case ReasonDailyLoss:
		return "daily loss"
	case ReasonLeverage:
		return "leverage"
	default:
		return "unknown"
	}
}

// StateView is the account snapshot a decision is evaluated against.
type StateView struct {
	// Position is the current signed quantity for the order's symbol.
	Position int64
	// MarkPrice is the latest observed mid (or last trade) for the symbol,
	// used to price market orders.
	MarkPrice float64
	// DailyPnL is the realized P&L accumulated this session.
	DailyPnL float64
	// GrossValue is the absolute position value summed across all symbols,
	// marked to the latest prices, excluding the order's own symbol.
	GrossValue float64
}

// Decision is the outcome of evaluating one order.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Detail is the human-readable rejection message passed to the risk
	// alert callback.
	Detail string
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonNone}
}

func deny(reason Reason, format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Engine evaluates pre-trade checks against static limits. Checks run in a
// fixed order; the first failure decides.
type Engine struct {
	limits Limits
}

// NewEngine creates a risk engine with the given limits.
func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits}
}

// Limits returns the configured caps.
func (e *Engine) Limits() Limits { return e.limits }

// SetLimits replaces the caps.
func (e *Engine) SetLimits(limits Limits) { e.limits = limits }

// Evaluate applies the pre-trade checks to an order intent.
func (e *Engine) Evaluate(o schema.Order, state StateView) Decision {
	if d := validateOrder(o); !d.Allowed {
		return d
	}

	if e.limits.MaxOrderSize > 0 && o.Quantity > e.limits.MaxOrderSize {
		return deny(ReasonOrderSize, "order size %d exceeds max %d", o.Quantity, e.limits.MaxOrderSize)
	}

	price := o.Price
	if o.Type == schema.OrderTypeMarket {
		price = state.MarkPrice
	}

	projected := state.Position
	if o.Side == schema.SideBuy {
		projected += o.Quantity
	} else {
		projected -= o.Quantity
	}
	projectedValue := absFloat(float64(projected) * price)

	if e.limits.MaxPositionValue > 0 && projectedValue > e.limits.MaxPositionValue {
		return deny(ReasonPositionValue, "projected position value %.2f exceeds max %.2f",
			projectedValue, e.limits.MaxPositionValue)
	}

	if e.limits.MaxDailyLoss > 0 && state.DailyPnL <= -e.limits.MaxDailyLoss {
		return deny(ReasonDailyLoss, "daily pnl %.2f breaches max daily loss %.2f",
			state.DailyPnL, e.limits.MaxDailyLoss)
	}

	if e.limits.MaxLeverage > 0 {
		equity := e.limits.ReferenceEquity
		if equity == 0 {
			equity = e.limits.MaxPositionValue
		}
		if equity > 0 {
			gross := state.GrossValue + projectedValue
			if gross > e.limits.MaxLeverage*equity {
				return deny(ReasonLeverage, "gross exposure %.2f exceeds %.1fx equity %.2f",
					gross, e.limits.MaxLeverage, equity)
			}
		}
	}

	return allow()
}

func validateOrder(o schema.Order) Decision {
	if o.Symbol == "" {
		return deny(ReasonMalformed, "empty symbol")
	}
	if o.Quantity <= 0 {
		return deny(ReasonMalformed, "quantity must be positive")
	}
	if o.Side != schema.SideBuy && o.Side != schema.SideSell {
		return deny(ReasonMalformed, "invalid side")
	}
	switch o.Type {
	case schema.OrderTypeMarket:
	case schema.OrderTypeLimit, schema.OrderTypeStop, schema.OrderTypeStopLimit:
		if o.Price <= 0 {
			return deny(ReasonMalformed, "price must be positive for %s orders", o.Type)
		}
	default:
		return deny(ReasonMalformed, "invalid order type")
	}
	return allow()
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
