package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"main/internal/risk"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Symbols    []SymbolConfig   `json:"symbols"`
	Feed       FeedConfig       `json:"feed"`
	Risk       *risk.Limits     `json:"risk"`
	Strategies StrategiesConfig `json:"strategies"`
	Logging    LoggingConfig    `json:"logging"`
	Monitor    MonitorConfig    `json:"monitor"`
	Snapshot   SnapshotConfig   `json:"snapshot"`
	Database   DatabaseConfig   `json:"database"`
}

// SymbolConfig seeds one tradable symbol.
type SymbolConfig struct {
	Name         string  `json:"name"`
	InitialPrice float64 `json:"initialPrice"`
}

// FeedConfig tunes the synthetic market data generator.
type FeedConfig struct {
	VolatilityMultiplier float64 `json:"volatilityMultiplier"`
	TickIntervalMs       int     `json:"tickIntervalMs"`
}

// StrategiesConfig selects the agents to spin up at start.
type StrategiesConfig struct {
	Enabled []string                     `json:"enabled"`
	Params  map[string]map[string]string `json:"params"`
}

// LoggingConfig enables CSV record emission.
type LoggingConfig struct {
	Enabled   bool   `json:"enabled"`
	Directory string `json:"directory"`
}

// MonitorConfig tunes the performance monitor.
type MonitorConfig struct {
	UpdateIntervalMs int `json:"updateIntervalMs"`
}

// SnapshotConfig tunes the snapshot publisher.
type SnapshotConfig struct {
	PublishIntervalMs int `json:"publishIntervalMs"`
}

// DatabaseConfig enables PostgreSQL trade persistence.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// StrategySpec is one resolved agent to instantiate.
type StrategySpec struct {
	Type   string
	Name   string
	Trader string
	Params map[string]string
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Symbols          []SymbolConfig
	Volatility       float64
	FeedInterval     time.Duration
	Risk             risk.Limits
	Strategies       []StrategySpec
	LoggingEnabled   bool
	LogDirectory     string
	MonitorInterval  time.Duration
	SnapshotInterval time.Duration
	Database         DatabaseConfig
}

// Default returns the configuration used when no file is given: two
// symbols, all four agents, logging into ./logs.
func Default() Loaded {
	return Loaded{
		Symbols: []SymbolConfig{
			{Name: "AAPL", InitialPrice: 150.00},
			{Name: "MSFT", InitialPrice: 310.00},
		},
		Volatility:   1.0,
		FeedInterval: 100 * time.Millisecond,
		Risk:         risk.DefaultLimits(),
		Strategies: resolveStrategies(StrategiesConfig{
			Enabled: []string{"market_making", "momentum", "stat_arb", "market_orders"},
		}),
		LoggingEnabled:   true,
		LogDirectory:     "./logs",
		MonitorInterval:  time.Second,
		SnapshotInterval: 5 * time.Second,
	}
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w", err)
	}
	return Resolve(cfg)
}

// Resolve validates a file config and fills in defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Symbols) == 0 {
		return Loaded{}, fmt.Errorf("config has no symbols")
	}
	seen := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s.Name == "" {
			return Loaded{}, fmt.Errorf("symbol with empty name")
		}
		if s.InitialPrice <= 0 {
			return Loaded{}, fmt.Errorf("symbol %s: initial price must be positive", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return Loaded{}, fmt.Errorf("duplicate symbol %s", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	out := Loaded{
		Symbols:          cfg.Symbols,
		Volatility:       cfg.Feed.VolatilityMultiplier,
		FeedInterval:     time.Duration(cfg.Feed.TickIntervalMs) * time.Millisecond,
		Risk:             risk.DefaultLimits(),
		Strategies:       resolveStrategies(cfg.Strategies),
		LoggingEnabled:   cfg.Logging.Enabled,
		LogDirectory:     cfg.Logging.Directory,
		MonitorInterval:  time.Duration(cfg.Monitor.UpdateIntervalMs) * time.Millisecond,
		SnapshotInterval: time.Duration(cfg.Snapshot.PublishIntervalMs) * time.Millisecond,
		Database:         cfg.Database,
	}
	if cfg.Risk != nil {
		out.Risk = *cfg.Risk
	}
	if out.Volatility <= 0 {
		out.Volatility = 1.0
	}
	if out.FeedInterval <= 0 {
		out.FeedInterval = 100 * time.Millisecond
	}
	if out.MonitorInterval <= 0 {
		out.MonitorInterval = time.Second
	}
	if out.SnapshotInterval <= 0 {
		out.SnapshotInterval = 5 * time.Second
	}
	if out.LogDirectory == "" {
		out.LogDirectory = "./logs"
	}
	if out.Risk.MaxOrderSize <= 0 {
		return Loaded{}, fmt.Errorf("risk: max order size must be positive")
	}
	if out.Risk.MaxDrawdown < 0 || out.Risk.MaxDrawdown > 1 {
		return Loaded{}, fmt.Errorf("risk: max drawdown must be within [0, 1]")
	}
	if out.Database.Enabled && out.Database.Name == "" {
		return Loaded{}, fmt.Errorf("database: name required when enabled")
	}
	return out, nil
}

// resolveStrategies turns enabled type names into instantiation specs with
// stable agent names and trader ids.
func resolveStrategies(cfg StrategiesConfig) []StrategySpec {
	out := make([]StrategySpec, 0, len(cfg.Enabled))
	counts := make(map[string]int)
	for _, typ := range cfg.Enabled {
		typ = strings.TrimSpace(typ)
		if typ == "" {
			continue
		}
		counts[typ]++
		spec := StrategySpec{
			Type:   typ,
			Name:   fmt.Sprintf("%s_%d", typ, counts[typ]),
			Trader: fmt.Sprintf("%s_TRADER_%02d", strings.ToUpper(typ), counts[typ]),
			Params: map[string]string{},
		}
		for k, v := range cfg.Params[typ] {
			spec.Params[k] = v
		}
		out = append(out, spec)
	}
	return out
}
