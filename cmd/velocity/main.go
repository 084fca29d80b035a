package main

import (
	"context"
	"flag"
	"log"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/engine"
	"main/internal/ops"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config (default: built-in demo config)")
	duration := flag.Duration("duration", 0, "Run time before automatic shutdown (0 = until signal)")
	logDir := flag.String("log-dir", "", "Override the report directory and force logging on")
	profile := flag.Bool("profile", false, "Enable pyroscope profiling")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	loaded := ops.Default()
	if *configPath != "" {
		var err error
		loaded, err = ops.Load(*configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
	}
	if *logDir != "" {
		loaded.LogDirectory = *logDir
		loaded.LoggingEnabled = true
	}

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "velocity",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	eng, err := engine.New(loaded)
	if err != nil {
		log.Fatalf("engine build failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)

	if *duration > 0 {
		select {
		case <-time.After(*duration):
			logs.Infof("run duration %s elapsed", *duration)
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
		}
	} else {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
	}

	eng.Stop()
	printSummary(eng)
}

func printSummary(eng *engine.Engine) {
	stats := eng.Matcher().Stats()
	perf := eng.Analytics().Metrics()
	counters := eng.Metrics().Snapshot()

	logs.Infof("orders submitted: %d, executions: %d, notional volume: %.2f",
		stats.OrdersSubmitted, stats.Executions, stats.NotionalVolume)
	logs.Infof("total pnl: %.2f (realized %.2f, unrealized %.2f)",
		perf.TotalPnL, perf.RealizedPnL, perf.UnrealizedPnL)
	logs.Infof("trades: %d, win rate: %.1f%%, profit factor: %.2f",
		perf.TotalTrades, perf.WinRate*100, perf.ProfitFactor)
	logs.Infof("sharpe: %.4f, max drawdown: %.4f", perf.SharpeRatio, perf.MaxDrawdown)
	logs.Infof("rejections: %d, risk alerts: %d, avg exec latency: %s",
		counters.OrdersRejected, counters.RiskAlerts, counters.ExecLatency.Avg)
}
