package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func order(side schema.Side, typ schema.OrderType, price float64, qty int64) schema.Order {
	return schema.Order{
		Symbol:   "AAPL",
		Side:     side,
		Type:     typ,
		Price:    price,
		Quantity: qty,
		TraderID: "T1",
	}
}

func TestEvaluateAllows(t *testing.T) {
	e := NewEngine(DefaultLimits())

	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 100), StateView{})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonNone, d.Reason)
}

func TestEvaluateMalformed(t *testing.T) {
	e := NewEngine(DefaultLimits())

	cases := []struct {
		name string
		o    schema.Order
	}{
		{"zero quantity", order(schema.SideBuy, schema.OrderTypeLimit, 150, 0)},
		{"zero price limit", order(schema.SideSell, schema.OrderTypeLimit, 0, 100)},
		{"invalid side", order(schema.SideUnknown, schema.OrderTypeLimit, 150, 100)},
		{"invalid type", order(schema.SideBuy, schema.OrderTypeUnknown, 150, 100)},
		{"empty symbol", schema.Order{Side: schema.SideBuy, Type: schema.OrderTypeLimit, Price: 150, Quantity: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Evaluate(tc.o, StateView{})
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonMalformed, d.Reason)
		})
	}
}

func TestEvaluateOrderSize(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOrderSize = 1000
	e := NewEngine(limits)

	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 2000), StateView{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOrderSize, d.Reason)
	assert.Contains(t, d.Detail, "size")
}

func TestEvaluatePositionValue(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionValue = 100000
	limits.MaxLeverage = 0
	e := NewEngine(limits)

	// Projected position 1000 @ 150 = 150k > 100k.
	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 500), StateView{Position: 500})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPositionValue, d.Reason)

	// Selling from the long projects down to 0; always fine.
	d = e.Evaluate(order(schema.SideSell, schema.OrderTypeLimit, 150, 500), StateView{Position: 500})
	assert.True(t, d.Allowed)
}

func TestEvaluateMarketOrderUsesMark(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionValue = 100000
	limits.MaxLeverage = 0
	e := NewEngine(limits)

	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeMarket, 0, 800), StateView{MarkPrice: 150})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPositionValue, d.Reason)
}

func TestEvaluateDailyLoss(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDailyLoss = 1000
	e := NewEngine(limits)

	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 10), StateView{DailyPnL: -1000})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLoss, d.Reason)

	d = e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 10), StateView{DailyPnL: -999.99})
	assert.True(t, d.Allowed)
}

func TestEvaluateLeverage(t *testing.T) {
	limits := Limits{MaxLeverage: 2.0, ReferenceEquity: 100000}
	e := NewEngine(limits)

	// Gross 150k elsewhere + projected 100k here = 250k > 200k.
	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 100, 1000),
		StateView{GrossValue: 150000})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLeverage, d.Reason)

	d = e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 100, 400),
		StateView{GrossValue: 150000})
	assert.True(t, d.Allowed)
}

func TestChecksRunInOrder(t *testing.T) {
	limits := Limits{MaxOrderSize: 10, MaxPositionValue: 1, MaxDailyLoss: 1}
	e := NewEngine(limits)

	// Both size and position value would fail; size is checked first.
	d := e.Evaluate(order(schema.SideBuy, schema.OrderTypeLimit, 150, 100), StateView{DailyPnL: -50})
	assert.Equal(t, ReasonOrderSize, d.Reason)
}
