package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/analytics"
	"main/internal/schema"
)

const (
	TradesFile        = "trades.csv"
	PerformanceFile   = "performance.csv"
	RiskReportFile    = "risk_report.txt"
	TradeAnalysisFile = "trade_analysis.csv"
)

var tradesHeader = []string{
	"TradeID", "Symbol", "Side", "EntryPrice", "ExitPrice",
	"Quantity", "PnL", "EntryTimeNs", "ExitTimeNs", "LatencyUs",
}

var performanceHeader = []string{
	"TimestampNs", "TotalPnL", "SharpeRatio", "MaxDrawdown", "WinRate", "TotalTrades",
}

var tradeAnalysisHeader = []string{
	"TradeID", "Symbol", "Side", "Price", "Quantity", "PnL",
	"TimestampNs", "TraderID", "Strategy",
}

// Writer persists the engine's artefacts into one directory. Live streams
// (trades, performance samples) append through buffered csv writers that
// flush on every record so a crash loses at most the row being written;
// the remaining reports are one-shot exports taken at shutdown.
type Writer struct {
	dir string

	mu        sync.Mutex
	tradeFile *os.File
	tradeCSV  *csv.Writer
	perfFile  *os.File
	perfCSV   *csv.Writer
	closed    bool
}

// NewWriter creates the report directory and the writer over it.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("report directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create report directory")
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the report directory.
func (w *Writer) Dir() string { return w.dir }

// StartTradeLog opens trades.csv for live appends and writes the header.
func (w *Writer) StartTradeLog() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tradeCSV != nil {
		return nil
	}
	f, err := os.Create(filepath.Join(w.dir, TradesFile))
	if err != nil {
		return errors.Wrap(err, "open trade log")
	}
	w.tradeFile = f
	w.tradeCSV = csv.NewWriter(f)
	if err := w.tradeCSV.Write(tradesHeader); err != nil {
		return errors.Wrap(err, "write trade log header")
	}
	w.tradeCSV.Flush()
	return w.tradeCSV.Error()
}

// AppendTrade writes one closed trade to the live trade log. A no-op until
// StartTradeLog has been called.
func (w *Writer) AppendTrade(t schema.Trade) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tradeCSV == nil || w.closed {
		return nil
	}
	if err := w.tradeCSV.Write(tradeRow(t)); err != nil {
		return errors.Wrap(err, "append trade")
	}
	w.tradeCSV.Flush()
	return w.tradeCSV.Error()
}

// StartPerformanceLog opens performance.csv for periodic samples.
func (w *Writer) StartPerformanceLog() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.perfCSV != nil {
		return nil
	}
	f, err := os.Create(filepath.Join(w.dir, PerformanceFile))
	if err != nil {
		return errors.Wrap(err, "open performance log")
	}
	w.perfFile = f
	w.perfCSV = csv.NewWriter(f)
	if err := w.perfCSV.Write(performanceHeader); err != nil {
		return errors.Wrap(err, "write performance header")
	}
	w.perfCSV.Flush()
	return w.perfCSV.Error()
}

// AppendPerformance writes one periodic metrics sample. A no-op until
// StartPerformanceLog has been called.
func (w *Writer) AppendPerformance(tsNs int64, m analytics.PerformanceMetrics) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.perfCSV == nil || w.closed {
		return nil
	}
	row := []string{
		strconv.FormatInt(tsNs, 10),
		formatMoney(m.TotalPnL),
		formatRatio(m.SharpeRatio),
		formatRatio(m.MaxDrawdown),
		formatRatio(m.WinRate),
		strconv.FormatUint(m.TotalTrades, 10),
	}
	if err := w.perfCSV.Write(row); err != nil {
		return errors.Wrap(err, "append performance")
	}
	w.perfCSV.Flush()
	return w.perfCSV.Error()
}

// Close flushes and closes the live logs. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	for _, f := range []struct {
		csv  *csv.Writer
		file *os.File
	}{{w.tradeCSV, w.tradeFile}, {w.perfCSV, w.perfFile}} {
		if f.csv != nil {
			f.csv.Flush()
			if err := f.csv.Error(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if f.file != nil {
			if err := f.file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ExportTrades writes the full trade history in one pass, replacing any
// live trade log.
func (w *Writer) ExportTrades(trades []schema.Trade) error {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, tradesHeader)
	for _, t := range trades {
		rows = append(rows, tradeRow(t))
	}
	return w.writeCSV(TradesFile, rows)
}

// ExportTradeAnalysis writes the per-trade audit rows.
func (w *Writer) ExportTradeAnalysis(logs []schema.TradeLog) error {
	rows := make([][]string, 0, len(logs)+1)
	rows = append(rows, tradeAnalysisHeader)
	for _, l := range logs {
		rows = append(rows, []string{
			strconv.FormatUint(l.ID, 10),
			l.Symbol,
			l.Side.String(),
			formatMoney(l.Price),
			strconv.FormatInt(l.Quantity, 10),
			formatMoney(l.PnL),
			strconv.FormatInt(l.TimestampNs, 10),
			l.TraderID,
			l.Strategy,
		})
	}
	return w.writeCSV(TradeAnalysisFile, rows)
}

// ExportRiskReport writes the human-readable risk dump and P&L histogram.
func (w *Writer) ExportRiskReport(r analytics.RiskMetrics, h analytics.Histogram) error {
	f, err := os.Create(filepath.Join(w.dir, RiskReportFile))
	if err != nil {
		return errors.Wrap(err, "open risk report")
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	fmt.Fprintf(buf, "Risk Report\n===========\n\n")
	fmt.Fprintf(buf, "VaR (95%%): %.2f\n", r.VaR95)
	fmt.Fprintf(buf, "VaR (99%%): %.2f\n", r.VaR99)
	fmt.Fprintf(buf, "CVaR (95%%): %.2f\n", r.CVaR95)
	fmt.Fprintf(buf, "Sharpe Ratio: %.2f\n", r.SharpeRatio)
	fmt.Fprintf(buf, "Max Drawdown: %.2f\n", r.MaxDrawdown)
	fmt.Fprintf(buf, "Volatility: %.2f\n", r.Volatility)
	fmt.Fprintf(buf, "Skewness: %.2f\n", r.Skewness)
	fmt.Fprintf(buf, "Kurtosis: %.2f\n", r.Kurtosis)
	fmt.Fprintf(buf, "Current Exposure: %.2f\n\n", r.Exposure)

	fmt.Fprintf(buf, "PnL Distribution\n================\n")
	for i, lo := range h.Bins {
		fmt.Fprintf(buf, "[%.2f, %.2f): %d\n", lo, lo+h.BinWidth, h.Frequencies[i])
	}

	if err := buf.Flush(); err != nil {
		return errors.Wrap(err, "flush risk report")
	}
	return nil
}

func (w *Writer) writeCSV(name string, rows [][]string) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return errors.Wrap(err, "open "+name)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return errors.Wrap(err, "write "+name)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush "+name)
	}
	return nil
}

func tradeRow(t schema.Trade) []string {
	return []string{
		strconv.FormatUint(t.ID, 10),
		t.Symbol,
		t.Side.String(),
		formatMoney(t.EntryPrice),
		formatMoney(t.ExitPrice),
		strconv.FormatInt(t.Quantity, 10),
		formatMoney(t.PnL),
		strconv.FormatInt(t.EntryNs, 10),
		strconv.FormatInt(t.ExitNs, 10),
		strconv.FormatInt(t.LatencyUs, 10),
	}
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
