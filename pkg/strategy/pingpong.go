// Package strategy implements the ping-pong trading cycle: quote, gate on
// simulated profit, execute at most one swap at a time, then reconcile the
// shared state and enforce the circuit breakers.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

const (
	// DefaultErrorLimit is the consecutive failed swaps tolerated before halting.
	DefaultErrorLimit = 100

	// DefaultBalanceLimit is the consecutive low-balance failures tolerated before halting.
	DefaultBalanceLimit = 5

	// DefaultSlippageBps is used when slippage is not configured.
	DefaultSlippageBps = 1
)

// TradeSizeStrategy selects how much is traded per swap.
type TradeSizeStrategy string

const (
	// TradeSizeCumulative trades the whole current balance of the active side.
	TradeSizeCumulative TradeSizeStrategy = "cumulative"
	// TradeSizeFixed always trades the initial balance of the active side.
	TradeSizeFixed TradeSizeStrategy = "fixed"
)

// QuoteClient returns candidate routes ordered best first.
type QuoteClient interface {
	GetRoutes(ctx context.Context, input, output types.Asset, amount uint64, slippageBps int) ([]types.Route, error)
}

// ExecutionClient submits and confirms a swap.
type ExecutionClient interface {
	Execute(ctx context.Context, route *types.Route, wallet types.Wallet) (*types.SwapResult, error)
}

// BalanceChecker reads the real wallet balance of an asset in base units.
type BalanceChecker interface {
	BalanceOf(ctx context.Context, asset types.Asset, wallet types.Wallet) (uint64, error)
}

// ObservationSink receives snapshots for display. Observe must not block.
type ObservationSink interface {
	Observe(snapshot types.Snapshot)
}

// Config holds the ping-pong settings.
type Config struct {
	TradeSize              TradeSizeStrategy
	MinPercProfit          float64
	SlippageBps            int
	StoreFailedTxInHistory bool
	ErrorLimit             int
	BalanceLimit           int
}

// PingPong runs the strategy cycle for a fixed token pair and wallet.
type PingPong struct {
	config       Config
	minProfit    decimal.Decimal
	tokenA       types.Asset
	tokenB       types.Asset
	wallet       types.Wallet
	state        *State
	quotes       QuoteClient
	executor     ExecutionClient
	balances     BalanceChecker
	sink         ObservationSink
	now          func() time.Time
	onQuote      func(side types.Side, routes int, profit decimal.Decimal)
	onSwap       func(entry types.TradeEntry, err error)
	onBreaker    func(err *CircuitBreakerError)
	onTickFinish func(status IterationStatus, elapsed time.Duration)
}

// Deps bundles the collaborators of a PingPong.
type Deps struct {
	State    *State
	Quotes   QuoteClient
	Executor ExecutionClient
	Balances BalanceChecker
	Sink     ObservationSink
}

// NewPingPong creates the strategy. The State must already be initialized.
func NewPingPong(config Config, tokenA, tokenB types.Asset, wallet types.Wallet, deps Deps) (*PingPong, error) {
	if deps.State == nil || deps.Quotes == nil || deps.Executor == nil || deps.Balances == nil {
		return nil, fmt.Errorf("state, quote client, executor and balance checker are required")
	}

	if config.TradeSize == "" {
		config.TradeSize = TradeSizeCumulative
	}
	if config.TradeSize != TradeSizeCumulative && config.TradeSize != TradeSizeFixed {
		return nil, fmt.Errorf("%w: unknown trade size strategy %q", ErrConfiguration, config.TradeSize)
	}
	if config.SlippageBps <= 0 {
		config.SlippageBps = DefaultSlippageBps
	}
	if config.ErrorLimit <= 0 {
		config.ErrorLimit = DefaultErrorLimit
	}
	if config.BalanceLimit <= 0 {
		config.BalanceLimit = DefaultBalanceLimit
	}

	sink := deps.Sink
	if sink == nil {
		sink = nopSink{}
	}

	return &PingPong{
		config:    config,
		minProfit: decimal.NewFromFloat(config.MinPercProfit),
		tokenA:    tokenA,
		tokenB:    tokenB,
		wallet:    wallet,
		state:     deps.State,
		quotes:    deps.Quotes,
		executor:  deps.Executor,
		balances:  deps.Balances,
		sink:      sink,
		now:       time.Now,
	}, nil
}

// OnQuote registers a callback invoked after every successful quote.
func (p *PingPong) OnQuote(fn func(side types.Side, routes int, profit decimal.Decimal)) {
	p.onQuote = fn
}

// OnSwap registers a callback invoked after every swap attempt. err is nil on success.
func (p *PingPong) OnSwap(fn func(entry types.TradeEntry, err error)) {
	p.onSwap = fn
}

// OnCircuitBreaker registers a callback invoked when a breaker trips.
func (p *PingPong) OnCircuitBreaker(fn func(err *CircuitBreakerError)) {
	p.onBreaker = fn
}

// OnTickFinished registers a callback invoked when a tick ends.
func (p *PingPong) OnTickFinished(fn func(status IterationStatus, elapsed time.Duration)) {
	p.onTickFinish = fn
}

// State returns the read-only view of the store.
func (p *PingPong) State() *State {
	return p.state
}

// Tick runs one evaluation cycle. Per-tick failures are logged and swallowed;
// the only error returned is a *CircuitBreakerError. Once a breaker has
// tripped every later tick returns it without quoting or executing.
func (p *PingPong) Tick(ctx context.Context) error {
	if halted := p.state.Halted(); halted != nil {
		return halted
	}

	date := p.now()
	i := p.state.beginIteration(date)
	status := IterationPending

	defer func() {
		p.state.endIteration(i)
		if p.onTickFinish != nil {
			p.onTickFinish(status, p.now().Sub(date))
		}
	}()

	err := p.tick(ctx, i, date)
	if err == nil {
		status = IterationQuoted
		return nil
	}

	status = IterationErrored
	p.state.setIterationStatus(i, IterationErrored)

	var breaker *CircuitBreakerError
	if errors.As(err, &breaker) {
		log.Error().Err(err).Uint64("iteration", i).Msg("circuit breaker tripped")
		if p.onBreaker != nil {
			p.onBreaker(breaker)
		}
		return breaker
	}

	log.Error().Err(err).Uint64("iteration", i).Msg("PingPong strategy error")
	return nil
}

func (p *PingPong) tick(ctx context.Context, i uint64, date time.Time) (err error) {
	view := p.state.view()

	amountToTrade := view.current
	if p.config.TradeSize == TradeSizeFixed {
		amountToTrade = view.initial
	}
	if amountToTrade == 0 {
		return fmt.Errorf("%w: amount to trade is not defined", ErrConfiguration)
	}

	inputToken, outputToken := p.tokenA, p.tokenB
	if view.side == types.SideSell {
		inputToken, outputToken = p.tokenB, p.tokenA
	}
	if inputToken.IsZero() || outputToken.IsZero() {
		return fmt.Errorf("%w: input or output token is undefined", ErrConfiguration)
	}

	routes, err := p.quotes.GetRoutes(ctx, inputToken, outputToken, amountToTrade, p.config.SlippageBps)
	if err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrQuote, inputToken.Symbol, outputToken.Symbol, err)
	}
	if len(routes) == 0 {
		return fmt.Errorf("%w: no routes found for %s -> %s", ErrQuote, inputToken.Symbol, outputToken.Symbol)
	}

	p.state.setIterationStatus(i, IterationQuoted)

	route := routes[0]
	simulatedProfit, err := CalculateProfit(view.baseline, route.OutAmount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	p.state.recordQuote(view.side, len(routes), simulatedProfit)
	if p.onQuote != nil {
		p.onQuote(view.side, len(routes), simulatedProfit)
	}

	snapshot := types.Snapshot{
		Iteration:       i,
		Date:            date,
		Side:            view.side,
		InputToken:      inputToken,
		OutputToken:     outputToken,
		TokenA:          p.tokenA,
		TokenB:          p.tokenB,
		Route:           &route,
		SimulatedProfit: simulatedProfit,
	}
	p.observe(snapshot, false)

	if simulatedProfit.GreaterThanOrEqual(p.minProfit) && p.state.acquireSwap(view.generation) {
		defer p.state.releaseSwap()

		entry := types.TradeEntry{
			ID:                uuid.NewString(),
			Date:              date,
			Side:              view.side,
			InputToken:        inputToken.Symbol,
			OutputToken:       outputToken.Symbol,
			InAmount:          ToDecimal(route.InAmount, inputToken.Decimals),
			ExpectedOutAmount: ToDecimal(route.OutAmount, outputToken.Decimals),
			ExpectedProfit:    simulatedProfit,
		}

		log.Info().
			Uint64("iteration", i).
			Stringer("side", view.side).
			Str("profit", simulatedProfit.StringFixed(4)).
			Msgf("executing swap %s -> %s", inputToken.Symbol, outputToken.Symbol)

		result, execErr := p.executor.Execute(ctx, &route, p.wallet)
		if execErr != nil {
			execErr = fmt.Errorf("%w: %w", ErrExecution, execErr)
			log.Error().Err(execErr).Uint64("iteration", i).Msg("swap failed")
			if err := p.handleFailure(ctx, view.side, entry, inputToken, amountToTrade, execErr); err != nil {
				return err
			}
		} else {
			p.handleSuccess(view.side, result, entry)
		}
	}

	p.observe(snapshot, true)
	return nil
}

func (p *PingPong) observe(snapshot types.Snapshot, final bool) {
	snapshot.Final = final
	snapshot.Stats = p.state.Stats()
	p.sink.Observe(snapshot)
}

type nopSink struct{}

func (nopSink) Observe(types.Snapshot) {}
