// Package reporter renders strategy observations and trade history.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// DefaultBufferSize is the number of snapshots queued before Observe drops.
const DefaultBufferSize = 256

// OutputFormat specifies the output format for reports.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// Reporter is a non-blocking observation sink. Snapshots are queued and
// written by a single goroutine; when the queue is full they are dropped.
type Reporter struct {
	output    io.Writer
	format    OutputFormat
	verbose   bool
	snapshots chan types.Snapshot
	dropped   atomic.Uint64
	done      chan struct{}
	mu        sync.Mutex

	closeMu sync.RWMutex
	closed  bool
}

// NewReporter creates a reporter and starts its writer goroutine.
func NewReporter(output io.Writer, format OutputFormat, verbose bool, bufferSize int) *Reporter {
	if output == nil {
		output = os.Stdout
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Reporter{
		output:    output,
		format:    format,
		verbose:   verbose,
		snapshots: make(chan types.Snapshot, bufferSize),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Observe queues a snapshot. It never blocks. Snapshots observed after
// Close are counted as dropped.
func (r *Reporter) Observe(snapshot types.Snapshot) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.snapshots <- snapshot:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many snapshots were discarded.
func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes queued snapshots and stops the writer.
func (r *Reporter) Close() {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.snapshots)
	}
	r.closeMu.Unlock()
	<-r.done
}

func (r *Reporter) loop() {
	defer close(r.done)
	for s := range r.snapshots {
		r.mu.Lock()
		switch r.format {
		case FormatJSON:
			r.reportJSON(s)
		default:
			r.reportText(s)
		}
		r.mu.Unlock()
	}
}

// reportText writes one line per observation. Quote observations are only
// shown in verbose mode.
func (r *Reporter) reportText(s types.Snapshot) {
	if !s.Final && !r.verbose {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%-6d %-4s %s → %s",
		s.Date.Format("15:04:05"), s.Iteration, strings.ToUpper(s.Side.String()),
		s.InputToken.Symbol, s.OutputToken.Symbol)

	if s.Route != nil {
		fmt.Fprintf(&b, " | in %s out %s",
			formatAmount(s.Route.InAmount, s.InputToken.Decimals),
			formatAmount(s.Route.OutAmount, s.OutputToken.Decimals))
	}
	fmt.Fprintf(&b, " | sim %s", formatPercent(s.SimulatedProfit))

	if s.Final {
		st := s.Stats
		fmt.Fprintf(&b, " | profit %s %s / %s %s | ok %d/%d fail %d/%d | %d it/min",
			s.TokenA.Symbol, formatPercent(st.CurrentProfit.TokenA),
			s.TokenB.Symbol, formatPercent(st.CurrentProfit.TokenB),
			st.TradeCounter.Buy.Success, st.TradeCounter.Sell.Success,
			st.TradeCounter.Buy.Fail, st.TradeCounter.Sell.Fail,
			st.IterationsPerMin)
		if st.SwapInFlight {
			b.WriteString(" | " + cyan("swapping"))
		}
	}

	fmt.Fprintln(r.output, b.String())
}

// snapshotJSON is a JSON-friendly representation of a snapshot.
type snapshotJSON struct {
	Timestamp       string         `json:"timestamp"`
	Iteration       uint64         `json:"iteration"`
	Side            string         `json:"side"`
	Input           string         `json:"input"`
	Output          string         `json:"output"`
	InAmount        string         `json:"in_amount,omitempty"`
	OutAmount       string         `json:"out_amount,omitempty"`
	SimulatedProfit string         `json:"simulated_profit"`
	Final           bool           `json:"final"`
	Stats           types.BotStats `json:"stats"`
}

func (r *Reporter) reportJSON(s types.Snapshot) {
	out := snapshotJSON{
		Timestamp:       s.Date.Format(time.RFC3339Nano),
		Iteration:       s.Iteration,
		Side:            s.Side.String(),
		Input:           s.InputToken.Symbol,
		Output:          s.OutputToken.Symbol,
		SimulatedProfit: s.SimulatedProfit.StringFixed(6),
		Final:           s.Final,
		Stats:           s.Stats,
	}
	if s.Route != nil {
		out.InAmount = formatAmount(s.Route.InAmount, s.InputToken.Decimals)
		out.OutAmount = formatAmount(s.Route.OutAmount, s.OutputToken.Decimals)
	}

	if err := json.NewEncoder(r.output).Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "reporter: %v\n", err)
	}
}

// PrintSummary prints the final statistics and trade history.
func (r *Reporter) PrintSummary(stats types.BotStats, history []types.TradeEntry, tokenA, tokenB types.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.output
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, bold("PING-PONG SUMMARY"))
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Running since:      %s\n", stats.StartTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Uptime:             %s\n", time.Since(stats.StartTime).Round(time.Second))
	fmt.Fprintf(w, "Iterations:         %d\n", stats.Iterations)
	fmt.Fprintf(w, "Side:               %s\n", stats.Side)
	fmt.Fprintf(w, "Buy  ok/fail:       %d/%d\n", stats.TradeCounter.Buy.Success, stats.TradeCounter.Buy.Fail)
	fmt.Fprintf(w, "Sell ok/fail:       %d/%d\n", stats.TradeCounter.Sell.Success, stats.TradeCounter.Sell.Fail)
	fmt.Fprintf(w, "Balance %-10s  %s (initial %s)\n", tokenA.Symbol+":",
		formatAmount(stats.CurrentBalance.TokenA, tokenA.Decimals), formatAmount(stats.InitialBalance.TokenA, tokenA.Decimals))
	fmt.Fprintf(w, "Balance %-10s  %s (initial %s)\n", tokenB.Symbol+":",
		formatAmount(stats.CurrentBalance.TokenB, tokenB.Decimals), formatAmount(stats.InitialBalance.TokenB, tokenB.Decimals))
	fmt.Fprintf(w, "Profit %-11s  %s\n", tokenA.Symbol+":", formatPercent(stats.CurrentProfit.TokenA))
	fmt.Fprintf(w, "Profit %-11s  %s\n", tokenB.Symbol+":", formatPercent(stats.CurrentProfit.TokenB))
	fmt.Fprintf(w, "Max spotted:        buy %s / sell %s\n",
		formatPercent(stats.MaxProfitSpotted.Buy), formatPercent(stats.MaxProfitSpotted.Sell))
	fmt.Fprintf(w, "Dropped snapshots:  %d\n", r.Dropped())
	fmt.Fprintln(w, strings.Repeat("-", 60))

	if len(history) == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	for _, e := range history {
		status := green("OK  ")
		if !e.Success {
			status = red("FAIL")
		}
		fmt.Fprintf(w, "%s %s %-4s %s %s → %s %s  %s\n",
			e.Date.Format("2006-01-02 15:04:05"), status, e.Side,
			e.InAmount, e.InputToken, e.OutAmount, e.OutputToken, formatPercent(e.Profit))
	}
}

// WriteHistoryCSV writes the trade history as CSV.
func WriteHistoryCSV(w io.Writer, history []types.TradeEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "side", "input_token", "output_token", "in_amount",
		"expected_out_amount", "out_amount", "expected_profit", "profit", "signature", "success", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range history {
		record := []string{
			e.Date.Format(time.RFC3339),
			e.Side.String(),
			e.InputToken,
			e.OutputToken,
			e.InAmount.String(),
			e.ExpectedOutAmount.String(),
			e.OutAmount.String(),
			e.ExpectedProfit.StringFixed(6),
			e.Profit.StringFixed(6),
			e.Signature,
			fmt.Sprintf("%t", e.Success),
			e.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatAmount(amount uint64, decimals int) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), int32(-decimals)).String()
}

func formatPercent(p decimal.Decimal) string {
	s := p.StringFixed(4) + "%"
	switch {
	case p.IsPositive():
		return green("+" + s)
	case p.IsNegative():
		return red(s)
	default:
		return s
	}
}
