package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func TestRowFromTrade(t *testing.T) {
	row := rowFromTrade(schema.Trade{
		ID:         3,
		Symbol:     "AAPL",
		Side:       schema.SideSell,
		EntryPrice: 150,
		ExitPrice:  155,
		Quantity:   40,
		PnL:        200,
		EntryNs:    1000,
		ExitNs:     5000,
		LatencyUs:  4,
		TraderID:   "MM_TRADER_01",
	}, "market_making")

	assert.Equal(t, uint64(3), row.ID)
	assert.Equal(t, "SELL", row.Side)
	assert.Equal(t, "market_making", row.Strategy)
	assert.Equal(t, "MM_TRADER_01", row.TraderID)
	assert.Equal(t, "trades", row.TableName())
}

func TestCloseNilStore(t *testing.T) {
	var s *TradeStore
	assert.NoError(t, s.Close())
}
