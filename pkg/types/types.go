// Package types defines core data structures for the ping-pong bot.
package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/jupiter"
)

// Asset represents a token the bot trades.
type Asset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address"` // Base58 mint address
	Decimals int    `json:"decimals"`
}

// IsZero reports whether the asset was never resolved.
func (a Asset) IsZero() bool {
	return a.Address == ""
}

// Side is the direction of the ping-pong cycle.
type Side int

const (
	// SideBuy spends tokenA to acquire tokenB.
	SideBuy Side = iota
	// SideSell spends tokenB to acquire tokenA.
	SideSell
)

// String returns "buy" or "sell".
func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// MarshalText encodes the side as "buy" or "sell".
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Flip returns the opposite side.
func (s Side) Flip() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Route is a candidate swap path returned by the quote client.
type Route struct {
	InputMint            string                 `json:"input_mint"`
	OutputMint           string                 `json:"output_mint"`
	InAmount             uint64                 `json:"in_amount"`  // Base units
	OutAmount            uint64                 `json:"out_amount"` // Base units
	OtherAmountThreshold uint64                 `json:"other_amount_threshold"`
	SlippageBps          int                    `json:"slippage_bps"`
	PriceImpactPct       float64                `json:"price_impact_pct"`
	Labels               []string               `json:"labels,omitempty"` // AMM labels per hop
	Quote                *jupiter.QuoteResponse `json:"-"`                // Raw quote used to build the swap
}

// SwapResult is the outcome of a confirmed swap.
type SwapResult struct {
	Signature    string        `json:"signature"`
	InputAmount  uint64        `json:"input_amount"`  // Realized, base units
	OutputAmount uint64        `json:"output_amount"` // Realized, base units
	Slot         uint64        `json:"slot,omitempty"`
	Duration     time.Duration `json:"duration"`
	DryRun       bool          `json:"dry_run,omitempty"`
}

// Wallet is the signing identity used for swaps and balance checks.
type Wallet interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// TradeEntry is a single trade history record.
type TradeEntry struct {
	ID                string          `json:"id"`
	Date              time.Time       `json:"date"`
	Side              Side            `json:"side"`
	InputToken        string          `json:"input_token"`
	OutputToken       string          `json:"output_token"`
	InAmount          decimal.Decimal `json:"in_amount"`
	ExpectedOutAmount decimal.Decimal `json:"expected_out_amount"`
	OutAmount         decimal.Decimal `json:"out_amount"`
	ExpectedProfit    decimal.Decimal `json:"expected_profit"`
	Profit            decimal.Decimal `json:"profit"`
	Signature         string          `json:"signature,omitempty"`
	Success           bool            `json:"success"`
	Error             string          `json:"error,omitempty"`
}

// TokenPair holds a value for tokenA and tokenB.
type TokenPair[T any] struct {
	TokenA T `json:"token_a"`
	TokenB T `json:"token_b"`
}

// SidePair holds a value for the buy and sell sides.
type SidePair[T any] struct {
	Buy  T `json:"buy"`
	Sell T `json:"sell"`
}

// SideCounter counts trade attempts for a side.
type SideCounter struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// TradeCounter holds success/failure counters and the breaker counters.
type TradeCounter struct {
	Buy                SideCounter `json:"buy"`
	Sell               SideCounter `json:"sell"`
	FailedBalanceCheck int         `json:"failed_balance_check"`
	ErrorCount         int         `json:"error_count"`
}

// BotStats is a read-only copy of the bot state.
type BotStats struct {
	StartTime        time.Time                  `json:"start_time"`
	Iterations       uint64                     `json:"iterations"`
	IterationsPerMin int                        `json:"iterations_per_min"`
	Side             Side                       `json:"side"`
	SwapInFlight     bool                       `json:"swap_in_flight"`
	InitialBalance   TokenPair[uint64]          `json:"initial_balance"`
	CurrentBalance   TokenPair[uint64]          `json:"current_balance"`
	LastBalance      TokenPair[uint64]          `json:"last_balance"`
	CurrentProfit    TokenPair[decimal.Decimal] `json:"current_profit"`
	MaxProfitSpotted SidePair[decimal.Decimal]  `json:"max_profit_spotted"`
	AvailableRoutes  SidePair[int]              `json:"available_routes"`
	TradeCounter     TradeCounter               `json:"trade_counter"`
	Trades           int                        `json:"trades"`
	PendingTicks     int                        `json:"pending_ticks"`
}

// Snapshot is an observation emitted once or twice per tick.
type Snapshot struct {
	Iteration       uint64          `json:"iteration"`
	Date            time.Time       `json:"date"`
	Side            Side            `json:"side"`
	InputToken      Asset           `json:"input_token"`
	OutputToken     Asset           `json:"output_token"`
	TokenA          Asset           `json:"token_a"`
	TokenB          Asset           `json:"token_b"`
	Route           *Route          `json:"route,omitempty"`
	SimulatedProfit decimal.Decimal `json:"simulated_profit"`
	Final           bool            `json:"final"`
	Stats           BotStats        `json:"stats"`
}
