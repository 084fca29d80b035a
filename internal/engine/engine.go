package engine

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/analytics"
	"main/internal/match"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/oms"
	"main/internal/ops"
	"main/internal/report"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
	"main/pkg/conn"
)

// Engine assembles the feed, matching engine, order manager, strategies,
// analytics and reporting into one runnable simulation.
type Engine struct {
	cfg ops.Loaded

	feed      *mdg.Feed
	matcher   *match.Engine
	manager   *oms.Manager
	analytics *analytics.Analytics
	monitor   *analytics.Monitor
	metrics   *obs.Metrics
	reports   *report.Writer
	trades    *store.TradeStore

	strategies []strategy.Strategy
	byTrader   map[string]strategy.Strategy

	mu      sync.Mutex
	running bool

	snapshotFn SnapshotFunc
	snapStop   chan struct{}
	snapWG     sync.WaitGroup
}

// New builds and wires an engine from the resolved configuration. Nothing
// runs until Start.
func New(cfg ops.Loaded) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		matcher:   match.NewEngine(),
		metrics:   obs.NewMetrics(),
		analytics: analytics.New(analytics.Config{}),
		byTrader:  make(map[string]strategy.Strategy),
		snapStop:  make(chan struct{}),
	}
	e.manager = oms.NewManager(e.matcher, cfg.Risk)
	e.feed = mdg.NewFeed(mdg.Config{
		TickInterval:         cfg.FeedInterval,
		VolatilityMultiplier: cfg.Volatility,
	})
	e.monitor = analytics.NewMonitor(e.analytics, e.manager, cfg.MonitorInterval)

	for _, s := range cfg.Symbols {
		e.matcher.AddSymbol(s.Name)
		e.feed.AddSymbol(s.Name, s.InitialPrice)
	}

	if cfg.LoggingEnabled {
		w, err := report.NewWriter(cfg.LogDirectory)
		if err != nil {
			return nil, errors.Wrap(err, "report writer")
		}
		if err := w.StartTradeLog(); err != nil {
			return nil, errors.Wrap(err, "trade log")
		}
		if err := w.StartPerformanceLog(); err != nil {
			return nil, errors.Wrap(err, "performance log")
		}
		e.reports = w
	}

	if cfg.Database.Enabled {
		ts, err := store.Open(conn.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
		})
		if err != nil {
			// Persistence is best-effort; the simulation runs without it.
			logs.Warnf("trade store unavailable: %v", err)
		} else {
			e.trades = ts
		}
	}

	if err := e.buildStrategies(); err != nil {
		return nil, err
	}
	e.wire()
	return e, nil
}

func (e *Engine) buildStrategies() error {
	deps := strategy.Deps{Orders: e, View: e.feed}
	for _, spec := range e.cfg.Strategies {
		s, err := strategy.Create(spec.Type, spec.Name, spec.Trader, deps, spec.Params)
		if err != nil {
			return errors.Wrap(err, "create strategy "+spec.Name)
		}
		if _, explicit := spec.Params["symbols"]; !explicit {
			for _, sym := range e.cfg.Symbols {
				s.AddSymbol(sym.Name)
			}
		}
		e.strategies = append(e.strategies, s)
		e.byTrader[spec.Trader] = s
	}
	return nil
}

func (e *Engine) wire() {
	e.manager.SetRiskAlertCallback(func(msg string) {
		e.metrics.IncRiskAlert()
		logs.Warnf("REJECTED/ALERT: %s", msg)
	})

	e.manager.SetExecutionCallback(func(exec schema.Execution) {
		e.metrics.IncExecution()
		if s, ok := e.byTrader[exec.TraderID]; ok {
			s.OnExecution(exec)
		}
	})

	e.manager.SetLatencyCallback(func(l schema.LatencyMeasurement) {
		e.analytics.RecordLatency(l)
		e.metrics.ObserveExecLatency(time.Duration(l.LatencyUs) * time.Microsecond)
	})

	e.manager.SetTradeCallback(func(t schema.Trade) {
		e.metrics.IncTrade()
		name := ""
		if s, ok := e.byTrader[t.TraderID]; ok {
			name = s.Name()
		}
		e.analytics.RecordTrade(t, name)
		if e.reports != nil {
			if err := e.reports.AppendTrade(t); err != nil {
				logs.Errorf("append trade: %v", err)
			}
		}
		if e.trades != nil {
			if err := e.trades.SaveTrade(t, name); err != nil {
				logs.Errorf("persist trade: %v", err)
			}
		}
	})

	e.feed.SetPriceCallback(func(symbol string, bid, ask float64) {
		e.manager.OnMarketData(symbol, bid, ask)
		for _, s := range e.strategies {
			s.OnMarketData(symbol, bid, ask)
		}
	})
}

// Place routes an order through the order manager, counting the outcome.
// Strategies and the operator surface both enter here.
func (e *Engine) Place(o schema.Order) (uint64, error) {
	id, err := e.manager.Place(o)
	if err != nil {
		e.metrics.IncOrderRejected()
		return 0, err
	}
	e.metrics.IncOrderPlaced()
	return id, nil
}

// Cancel routes a cancel through the order manager.
func (e *Engine) Cancel(id uint64, trader string) bool {
	ok := e.manager.Cancel(id, trader)
	if ok {
		e.metrics.IncCancel()
	}
	return ok
}

// Modify routes a modify through the order manager.
func (e *Engine) Modify(id uint64, newPrice float64, newQty int64, trader string) bool {
	ok := e.manager.Modify(id, newPrice, newQty, trader)
	if ok {
		e.metrics.IncModify()
	}
	return ok
}

// Position exposes the per-symbol position to strategies.
func (e *Engine) Position(symbol string) schema.Position {
	return e.manager.Position(symbol)
}

// Manager exposes the order manager.
func (e *Engine) Manager() *oms.Manager { return e.manager }

// Matcher exposes the matching engine.
func (e *Engine) Matcher() *match.Engine { return e.matcher }

// Feed exposes the market data feed.
func (e *Engine) Feed() *mdg.Feed { return e.feed }

// Analytics exposes the analytics store.
func (e *Engine) Analytics() *analytics.Analytics { return e.analytics }

// Metrics exposes the engine counters.
func (e *Engine) Metrics() *obs.Metrics { return e.metrics }

// StrategyNames lists the instantiated agents.
func (e *Engine) StrategyNames() []string {
	out := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, s.Name())
	}
	return out
}

// Start launches every component: matching worker, feed ticker, monitor,
// snapshot publisher and the agents.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.matcher.Start(ctx)
	e.monitor.Start(ctx)
	for _, s := range e.strategies {
		s.Initialize()
		s.Start()
	}
	e.feed.Start(ctx)
	e.startPublisher(ctx)
	logs.Infof("engine started: %d symbols, %d strategies",
		len(e.cfg.Symbols), len(e.strategies))
}

// Stop shuts down the publisher, feed and agents, drains and stops the
// matching engine, stops the monitor, takes a final monitor sample and
// exports the shutdown artefacts.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.stopPublisher()
	e.feed.Stop()
	for _, s := range e.strategies {
		s.Stop()
	}
	e.matcher.Stop()
	e.monitor.Stop()
	e.monitor.Poll()

	e.export()

	if e.trades != nil {
		if err := e.trades.Close(); err != nil {
			logs.Errorf("close trade store: %v", err)
		}
	}
	logs.Info("engine stopped")
}

func (e *Engine) export() {
	if e.reports == nil {
		return
	}
	now := time.Now().UnixNano()
	if err := e.reports.AppendPerformance(now, e.analytics.Metrics()); err != nil {
		logs.Errorf("final performance row: %v", err)
	}
	if err := e.reports.ExportRiskReport(e.analytics.Risk(), e.analytics.PnLHistogram(20)); err != nil {
		logs.Errorf("risk report: %v", err)
	}
	if err := e.reports.ExportTradeAnalysis(e.analytics.TradeLogs()); err != nil {
		logs.Errorf("trade analysis: %v", err)
	}
	if err := e.reports.Close(); err != nil {
		logs.Errorf("close reports: %v", err)
	}
	logs.Infof("reports written to %s", e.reports.Dir())
}
