package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Agent type names recognised by the factory.
const (
	TypeMarketMaking = "market_making"
	TypeMomentum     = "momentum"
	TypeStatArb      = "stat_arb"
	TypeMarketOrders = "market_orders"
)

// Create instantiates an agent by type name with string-map parameters.
// Unknown names return an error.
func Create(typ, name, trader string, deps Deps, params map[string]string) (Strategy, error) {
	var s Strategy
	switch typ {
	case TypeMarketMaking:
		s = NewMarketMaker(name, trader, deps,
			paramFloat(params, "spread_multiplier", 1.5),
			paramInt(params, "base_quantity", 1000),
			paramInt(params, "max_position", 10000),
			paramFloat(params, "min_spread", 0.01),
		)
	case TypeMomentum:
		s = NewMomentum(name, trader, deps,
			int(paramInt(params, "short_window", 5)),
			int(paramInt(params, "long_window", 20)),
			paramFloat(params, "momentum_threshold", 0.02),
			paramInt(params, "position_size", 100),
		)
	case TypeStatArb:
		s = NewStatArb(name, trader, deps,
			params["pair_symbol_1"],
			params["pair_symbol_2"],
			int(paramInt(params, "lookback_period", 20)),
			paramFloat(params, "z_score_threshold", 2.0),
			paramFloat(params, "exit_band", 0),
			paramInt(params, "position_size", 100),
		)
	case TypeMarketOrders:
		s = NewMarketOrders(name, trader, deps,
			time.Duration(paramInt(params, "order_interval_ms", 2000))*time.Millisecond,
			paramInt(params, "order_size", 500),
			uint32(paramInt(params, "max_orders", 10)),
		)
	default:
		return nil, fmt.Errorf("unknown strategy type %q", typ)
	}

	for _, symbol := range splitList(params["symbols"]) {
		s.AddSymbol(symbol)
	}
	return s, nil
}

func paramFloat(params map[string]string, key string, def float64) float64 {
	raw, ok := params[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

func paramInt(params map[string]string, key string, def int64) int64 {
	raw, ok := params[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
