package store

import (
	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/conn"
)

// TradeRow is the persisted form of a closed trade.
type TradeRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Symbol     string `gorm:"index"`
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Quantity   int64
	PnL        float64
	EntryNs    int64
	ExitNs     int64
	LatencyUs  int64
	TraderID   string
	Strategy   string `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (TradeRow) TableName() string { return "trades" }

// TradeStore persists closed trades into PostgreSQL.
type TradeStore struct {
	db *gorm.DB
}

// Open connects and migrates the trades table.
func Open(cfg conn.Config) (*TradeStore, error) {
	db, err := conn.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeRow{}); err != nil {
		_ = conn.Close(db)
		return nil, err
	}
	return &TradeStore{db: db}, nil
}

// SaveTrade inserts one closed trade.
func (s *TradeStore) SaveTrade(t schema.Trade, strategy string) error {
	return s.db.Create(rowFromTrade(t, strategy)).Error
}

// Close releases the connection pool.
func (s *TradeStore) Close() error {
	if s == nil {
		return nil
	}
	return conn.Close(s.db)
}

func rowFromTrade(t schema.Trade, strategy string) *TradeRow {
	return &TradeRow{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       t.Side.String(),
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Quantity:   t.Quantity,
		PnL:        t.PnL,
		EntryNs:    t.EntryNs,
		ExitNs:     t.ExitNs,
		LatencyUs:  t.LatencyUs,
		TraderID:   t.TraderID,
		Strategy:   strategy,
	}
}
