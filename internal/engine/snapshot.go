package engine

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/analytics"
	"main/internal/match"
	"main/internal/schema"
)

// Snapshot is the periodic state record handed to the snapshot publisher.
// The shape is stable; what consumes it is deliberately left open.
type Snapshot struct {
	TimestampNs   int64
	Equity        float64
	DailyPnL      float64
	MaxDrawdown   float64
	Positions     map[string]schema.Position
	EquityCurve   []float64
	DrawdownCurve []float64
	Performance   analytics.PerformanceMetrics
	Risk          analytics.RiskMetrics
	Stats         match.Stats
}

// SnapshotFunc consumes published snapshots.
type SnapshotFunc func(Snapshot)

// SetSnapshotCallback registers the snapshot sink. Set once before Start;
// when unset, snapshots are logged as a one-line summary.
func (e *Engine) SetSnapshotCallback(fn SnapshotFunc) { e.snapshotFn = fn }

// Snapshot assembles the current state record.
func (e *Engine) Snapshot() Snapshot {
	positions := make(map[string]schema.Position)
	for _, p := range e.manager.Positions() {
		positions[p.Symbol] = p
	}
	return Snapshot{
		TimestampNs:   time.Now().UnixNano(),
		Equity:        e.manager.TotalPnL(),
		DailyPnL:      e.manager.DailyPnL(),
		MaxDrawdown:   e.manager.MaxDrawdown(),
		Positions:     positions,
		EquityCurve:   e.analytics.EquityCurve(),
		DrawdownCurve: e.analytics.DrawdownCurve(),
		Performance:   e.analytics.Metrics(),
		Risk:          e.analytics.Risk(),
		Stats:         e.matcher.Stats(),
	}
}

func (e *Engine) startPublisher(ctx context.Context) {
	e.snapWG.Add(1)
	go func() {
		defer e.snapWG.Done()
		ticker := time.NewTicker(e.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.snapStop:
				return
			case <-ticker.C:
				e.publish()
			}
		}
	}()
}

func (e *Engine) stopPublisher() {
	close(e.snapStop)
	e.snapWG.Wait()
}

func (e *Engine) publish() {
	for _, sym := range e.matcher.Symbols() {
		if b := e.matcher.Book(sym); b != nil {
			e.analytics.CaptureBookSnapshot(b.Snapshot(5))
		}
	}
	snap := e.Snapshot()
	if e.reports != nil {
		if err := e.reports.AppendPerformance(snap.TimestampNs, snap.Performance); err != nil {
			logs.Errorf("performance row: %v", err)
		}
	}
	if e.snapshotFn != nil {
		e.snapshotFn(snap)
		return
	}
	logs.Infof("snapshot: equity %.2f, daily pnl %.2f, trades %d, orders %d",
		snap.Equity, snap.DailyPnL, snap.Performance.TotalTrades, snap.Stats.OrdersSubmitted)
}
