package strategy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// IterationStatus is the observability status of a running tick.
type IterationStatus int

const (
	IterationPending IterationStatus = -1
	IterationQuoted  IterationStatus = 0
	IterationErrored IterationStatus = 1
)

func (s IterationStatus) String() string {
	switch s {
	case IterationPending:
		return "pending"
	case IterationQuoted:
		return "quoted"
	case IterationErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// State is the single process-wide store of balances, counters and history.
// Only this package mutates it; everything else reads through Stats and History.
type State struct {
	mu sync.RWMutex

	startTime        time.Time
	side             types.Side
	generation       uint64 // bumped on every successful swap
	initialBalance   types.TokenPair[uint64]
	currentBalance   types.TokenPair[uint64]
	lastBalance      types.TokenPair[uint64]
	currentProfit    types.TokenPair[decimal.Decimal]
	maxProfitSpotted types.SidePair[decimal.Decimal]
	availableRoutes  types.SidePair[int]
	tradeCounter     types.TradeCounter
	history          []types.TradeEntry
	historyLimit     int
	halt             *CircuitBreakerError // first breaker trip, never cleared

	iteration  atomic.Uint64
	queue      map[uint64]IterationStatus
	tickTimes  []time.Time
	swapActive atomic.Bool
	tripped    atomic.Bool
}

// NewState creates an empty store. historyLimit of 0 keeps every entry.
func NewState(historyLimit int) *State {
	return &State{
		startTime:    time.Now(),
		side:         types.SideBuy,
		historyLimit: historyLimit,
		queue:        make(map[uint64]IterationStatus),
	}
}

// InitBalances seeds the ping-pong balances at startup: tokenA holds the
// trade size and tokenB holds the quoted counter amount used as baseline.
func (s *State) InitBalances(tokenA, tokenB uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialBalance = types.TokenPair[uint64]{TokenA: tokenA, TokenB: tokenB}
	s.currentBalance = types.TokenPair[uint64]{TokenA: tokenA}
	s.lastBalance = types.TokenPair[uint64]{TokenA: tokenA, TokenB: tokenB}
	s.side = types.SideBuy
}

// Side returns the active side.
func (s *State) Side() types.Side {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.side
}

// SwapInFlight reports whether an execution is outstanding.
func (s *State) SwapInFlight() bool {
	return s.swapActive.Load()
}

// Stats returns a copy of the current state.
func (s *State) Stats() types.BotStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.BotStats{
		StartTime:        s.startTime,
		Iterations:       s.iteration.Load(),
		IterationsPerMin: len(s.tickTimes),
		Side:             s.side,
		SwapInFlight:     s.swapActive.Load(),
		InitialBalance:   s.initialBalance,
		CurrentBalance:   s.currentBalance,
		LastBalance:      s.lastBalance,
		CurrentProfit:    s.currentProfit,
		MaxProfitSpotted: s.maxProfitSpotted,
		AvailableRoutes:  s.availableRoutes,
		TradeCounter:     s.tradeCounter,
		Trades:           len(s.history),
		PendingTicks:     len(s.queue),
	}
}

// History returns a copy of the trade history in insertion order.
func (s *State) History() []types.TradeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.TradeEntry, len(s.history))
	copy(out, s.history)
	return out
}

// IterationStatuses returns a copy of the in-flight iteration markers.
func (s *State) IterationStatuses() map[uint64]IterationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint64]IterationStatus, len(s.queue))
	for k, v := range s.queue {
		out[k] = v
	}
	return out
}

// beginIteration assigns a new iteration id, marks it pending and updates
// the iterations-per-minute window.
func (s *State) beginIteration(now time.Time) uint64 {
	i := s.iteration.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue[i] = IterationPending

	cutoff := now.Add(-time.Minute)
	keep := s.tickTimes[:0]
	for _, t := range s.tickTimes {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	s.tickTimes = append(keep, now)

	return i
}

func (s *State) setIterationStatus(i uint64, status IterationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[i]; ok {
		s.queue[i] = status
	}
}

func (s *State) endIteration(i uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, i)
}

// tradeView is what a tick needs to size and price a trade.
type tradeView struct {
	side       types.Side
	generation uint64
	current    uint64 // spendable balance of the active side
	initial    uint64 // initial balance of the active side
	baseline   uint64 // retained balance of the other side
}

func (s *State) view() tradeView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := tradeView{side: s.side, generation: s.generation}
	if s.side == types.SideBuy {
		v.current = s.currentBalance.TokenA
		v.initial = s.initialBalance.TokenA
		v.baseline = s.lastBalance.TokenB
	} else {
		v.current = s.currentBalance.TokenB
		v.initial = s.initialBalance.TokenB
		v.baseline = s.lastBalance.TokenA
	}
	return v
}

func (s *State) recordQuote(side types.Side, routes int, profit decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if side == types.SideBuy {
		s.availableRoutes.Buy = routes
		if profit.GreaterThan(s.maxProfitSpotted.Buy) {
			s.maxProfitSpotted.Buy = profit
		}
	} else {
		s.availableRoutes.Sell = routes
		if profit.GreaterThan(s.maxProfitSpotted.Sell) {
			s.maxProfitSpotted.Sell = profit
		}
	}
}

// Halted returns the breaker trip that stopped the bot, or nil.
func (s *State) Halted() *CircuitBreakerError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halt
}

// trip marks the store as halted. Callers hold mu.
func (s *State) trip(err *CircuitBreakerError) *CircuitBreakerError {
	if s.halt == nil {
		s.halt = err
	}
	s.tripped.Store(true)
	return err
}

// acquireSwap takes the re-entrancy guard. It fails when another swap is in
// flight, when a swap completed since the caller took its view, or once a
// circuit breaker has tripped.
func (s *State) acquireSwap(generation uint64) bool {
	if s.tripped.Load() || !s.swapActive.CompareAndSwap(false, true) {
		return false
	}

	s.mu.RLock()
	stale := s.generation != generation || s.halt != nil
	s.mu.RUnlock()

	if stale {
		s.swapActive.Store(false)
		return false
	}
	return true
}

func (s *State) releaseSwap() {
	s.swapActive.Store(false)
}

func (s *State) appendHistory(entry types.TradeEntry) {
	s.history = append(s.history, entry)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

func (s *State) sideCounter(side types.Side) *types.SideCounter {
	if side == types.SideBuy {
		return &s.tradeCounter.Buy
	}
	return &s.tradeCounter.Sell
}
