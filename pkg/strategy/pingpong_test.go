package strategy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

var (
	testTokenA = types.Asset{Symbol: "SOL", Address: "So11111111111111111111111111111111111111112", Decimals: 9}
	testTokenB = types.Asset{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}
)

type fakeWallet struct{}

func (fakeWallet) PublicKey() solana.PublicKey { return solana.PublicKey{} }

func (fakeWallet) Sign([]byte) (solana.Signature, error) { return solana.Signature{}, nil }

type fakeQuotes struct {
	mu      sync.Mutex
	out     func(input types.Asset, amount uint64) uint64
	err     error
	empty   bool
	amounts []uint64
}

func (f *fakeQuotes) GetRoutes(_ context.Context, input, output types.Asset, amount uint64, slippageBps int) ([]types.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.amounts = append(f.amounts, amount)
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}

	out := f.out(input, amount)
	return []types.Route{{
		InputMint:            input.Address,
		OutputMint:           output.Address,
		InAmount:             amount,
		OutAmount:            out,
		OtherAmountThreshold: out,
		SlippageBps:          slippageBps,
	}}, nil
}

func (f *fakeQuotes) quotedAmounts() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.amounts...)
}

type fakeExecutor struct {
	calls    atomic.Int32
	err      error
	realized uint64 // Zero returns the quoted amount
	release  chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, route *types.Route, _ types.Wallet) (*types.SwapResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}

	out := route.OutAmount
	if f.realized > 0 {
		out = f.realized
	}
	return &types.SwapResult{
		Signature:    "5igfakesignature",
		InputAmount:  route.InAmount,
		OutputAmount: out,
	}, nil
}

type fakeBalances struct {
	balance uint64
	err     error
	calls   atomic.Int32
}

func (f *fakeBalances) BalanceOf(context.Context, types.Asset, types.Wallet) (uint64, error) {
	f.calls.Add(1)
	return f.balance, f.err
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []types.Snapshot
}

func (r *recordingSink) Observe(s types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingSink) all() []types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Snapshot(nil), r.snapshots...)
}

// constantOut quotes the same output for every request.
func constantOut(out uint64) func(types.Asset, uint64) uint64 {
	return func(types.Asset, uint64) uint64 { return out }
}

type harness struct {
	pp       *PingPong
	state    *State
	quotes   *fakeQuotes
	executor *fakeExecutor
	balances *fakeBalances
	sink     *recordingSink
}

func newHarness(t *testing.T, cfg Config, quotes *fakeQuotes, exec *fakeExecutor, balances *fakeBalances) *harness {
	t.Helper()

	state := NewState(0)
	state.InitBalances(1_000_000, 1_000_000)
	sink := &recordingSink{}

	pp, err := NewPingPong(cfg, testTokenA, testTokenB, fakeWallet{}, Deps{
		State:    state,
		Quotes:   quotes,
		Executor: exec,
		Balances: balances,
		Sink:     sink,
	})
	require.NoError(t, err)

	return &harness{pp: pp, state: state, quotes: quotes, executor: exec, balances: balances, sink: sink}
}

func TestNewPingPong_Validation(t *testing.T) {
	state := NewState(0)

	_, err := NewPingPong(Config{}, testTokenA, testTokenB, fakeWallet{}, Deps{State: state})
	require.Error(t, err)

	_, err = NewPingPong(Config{TradeSize: "everything"}, testTokenA, testTokenB, fakeWallet{}, Deps{
		State:    state,
		Quotes:   &fakeQuotes{},
		Executor: &fakeExecutor{},
		Balances: &fakeBalances{},
	})
	require.ErrorIs(t, err, ErrConfiguration)

	pp, err := NewPingPong(Config{}, testTokenA, testTokenB, fakeWallet{}, Deps{
		State:    state,
		Quotes:   &fakeQuotes{},
		Executor: &fakeExecutor{},
		Balances: &fakeBalances{},
	})
	require.NoError(t, err)
	assert.Equal(t, TradeSizeCumulative, pp.config.TradeSize)
	assert.Equal(t, DefaultSlippageBps, pp.config.SlippageBps)
	assert.Equal(t, DefaultErrorLimit, pp.config.ErrorLimit)
	assert.Equal(t, DefaultBalanceLimit, pp.config.BalanceLimit)
}

func TestTick_ExecutesWhenProfitMeetsThreshold(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, &fakeExecutor{}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))

	assert.Equal(t, int32(1), h.executor.calls.Load())
	assert.Equal(t, types.SideSell, h.state.Side())

	stats := h.state.Stats()
	assert.Equal(t, 1, stats.TradeCounter.Buy.Success)
	assert.Equal(t, uint64(0), stats.CurrentBalance.TokenA)
	assert.Equal(t, uint64(1_050_000), stats.CurrentBalance.TokenB)
	assert.Equal(t, uint64(1_000_000), stats.LastBalance.TokenA)
	assert.True(t, decimal.NewFromInt(5).Equal(stats.MaxProfitSpotted.Buy), "max spotted %s", stats.MaxProfitSpotted.Buy)
	assert.Equal(t, 1, stats.AvailableRoutes.Buy)
}

func TestTick_SkipsBelowThreshold(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 10},
		&fakeQuotes{out: constantOut(1_050_000)}, &fakeExecutor{}, &fakeBalances{})

	before := h.state.Stats()
	require.NoError(t, h.pp.Tick(context.Background()))
	after := h.state.Stats()

	assert.Zero(t, h.executor.calls.Load())
	assert.Equal(t, types.SideBuy, after.Side)
	assert.Equal(t, before.CurrentBalance, after.CurrentBalance)
	assert.Equal(t, before.LastBalance, after.LastBalance)
	assert.Equal(t, before.TradeCounter, after.TradeCounter)
	assert.Empty(t, h.state.History())

	// The spotted profit is still tracked.
	assert.True(t, decimal.NewFromInt(5).Equal(after.MaxProfitSpotted.Buy))
}

func TestTick_SuccessReconcilesRealizedAmounts(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, &fakeExecutor{realized: 1_040_000}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))

	stats := h.state.Stats()
	assert.Equal(t, types.SideSell, stats.Side)
	assert.Equal(t, uint64(0), stats.CurrentBalance.TokenA)
	assert.Equal(t, uint64(1_040_000), stats.CurrentBalance.TokenB)
	assert.Equal(t, uint64(1_000_000), stats.LastBalance.TokenA)
	assert.True(t, decimal.NewFromInt(4).Equal(stats.CurrentProfit.TokenB), "profit %s", stats.CurrentProfit.TokenB)
	assert.True(t, stats.CurrentProfit.TokenA.IsZero())

	history := h.state.History()
	require.Len(t, history, 1)
	entry := history[0]
	assert.True(t, entry.Success)
	assert.Equal(t, types.SideBuy, entry.Side)
	assert.Equal(t, "SOL", entry.InputToken)
	assert.Equal(t, "USDC", entry.OutputToken)
	assert.Equal(t, "5igfakesignature", entry.Signature)
	assert.NotEmpty(t, entry.ID)
	assert.True(t, decimal.NewFromInt(4).Equal(entry.Profit), "trade profit %s", entry.Profit)
	assert.True(t, decimal.NewFromInt(5).Equal(entry.ExpectedProfit))
	assert.True(t, decimal.RequireFromString("1.04").Equal(entry.OutAmount), "out %s", entry.OutAmount)
	assert.True(t, decimal.RequireFromString("0.001").Equal(entry.InAmount), "in %s", entry.InAmount)
}

func TestTick_SellSideUsesTokenABaseline(t *testing.T) {
	quotes := &fakeQuotes{out: func(input types.Asset, amount uint64) uint64 {
		if input.Address == testTokenA.Address {
			return 1_040_000
		}
		return 1_030_000
	}}
	h := newHarness(t, Config{MinPercProfit: 2}, quotes, &fakeExecutor{}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))
	require.NoError(t, h.pp.Tick(context.Background()))

	assert.Equal(t, []uint64{1_000_000, 1_040_000}, quotes.quotedAmounts())

	stats := h.state.Stats()
	assert.Equal(t, types.SideBuy, stats.Side)
	assert.Equal(t, uint64(1_030_000), stats.CurrentBalance.TokenA)
	assert.Equal(t, uint64(0), stats.CurrentBalance.TokenB)
	assert.Equal(t, uint64(1_040_000), stats.LastBalance.TokenB)
	assert.True(t, decimal.NewFromInt(3).Equal(stats.CurrentProfit.TokenA), "profit %s", stats.CurrentProfit.TokenA)
	assert.True(t, stats.CurrentProfit.TokenB.IsZero())
	assert.Equal(t, 1, stats.TradeCounter.Buy.Success)
	assert.Equal(t, 1, stats.TradeCounter.Sell.Success)

	history := h.state.History()
	require.Len(t, history, 2)
	assert.True(t, decimal.NewFromInt(3).Equal(history[1].Profit))
}

func TestTick_FixedTradeSizeUsesInitialBalance(t *testing.T) {
	quotes := &fakeQuotes{out: constantOut(1_050_000)}
	h := newHarness(t, Config{TradeSize: TradeSizeFixed, MinPercProfit: 2}, quotes, &fakeExecutor{}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))
	require.NoError(t, h.pp.Tick(context.Background()))

	// The sell leg trades the initial tokenB balance, not the 1.05M just acquired.
	assert.Equal(t, []uint64{1_000_000, 1_000_000}, quotes.quotedAmounts())
}

func TestTick_QuoteFailureDoesNotExecute(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{err: errors.New("jupiter unavailable")}, &fakeExecutor{}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))

	assert.Zero(t, h.executor.calls.Load())
	stats := h.state.Stats()
	assert.Equal(t, types.TradeCounter{}, stats.TradeCounter)
	assert.Empty(t, h.sink.all())
	assert.Empty(t, h.state.IterationStatuses())
}

func TestTick_NoRoutesDoesNotExecute(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{empty: true}, &fakeExecutor{}, &fakeBalances{})

	var finished []IterationStatus
	h.pp.OnTickFinished(func(status IterationStatus, _ time.Duration) {
		finished = append(finished, status)
	})

	require.NoError(t, h.pp.Tick(context.Background()))
	assert.Zero(t, h.executor.calls.Load())
	assert.Equal(t, []IterationStatus{IterationErrored}, finished)
}

func TestTick_ZeroAmountIsConfigurationError(t *testing.T) {
	quotes := &fakeQuotes{out: constantOut(1_050_000)}
	state := NewState(0)
	pp, err := NewPingPong(Config{}, testTokenA, testTokenB, fakeWallet{}, Deps{
		State:    state,
		Quotes:   quotes,
		Executor: &fakeExecutor{},
		Balances: &fakeBalances{},
	})
	require.NoError(t, err)

	require.NoError(t, pp.Tick(context.Background()))
	assert.Empty(t, quotes.quotedAmounts())
}

func TestTick_EmitsQuoteAndFinalSnapshots(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, &fakeExecutor{}, &fakeBalances{})

	require.NoError(t, h.pp.Tick(context.Background()))

	snapshots := h.sink.all()
	require.Len(t, snapshots, 2)
	assert.False(t, snapshots[0].Final)
	assert.True(t, snapshots[1].Final)
	assert.Equal(t, uint64(1), snapshots[0].Iteration)
	assert.Equal(t, types.SideBuy, snapshots[0].Side)
	assert.Equal(t, testTokenA, snapshots[0].InputToken)
	require.NotNil(t, snapshots[0].Route)
	assert.Equal(t, uint64(1_050_000), snapshots[0].Route.OutAmount)

	// The final snapshot sees the flipped side.
	assert.Equal(t, types.SideSell, snapshots[1].Stats.Side)
}

func TestTick_Callbacks(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, &fakeExecutor{}, &fakeBalances{})

	var quotes, swaps int
	var finished []IterationStatus
	h.pp.OnQuote(func(side types.Side, routes int, profit decimal.Decimal) {
		quotes++
		assert.Equal(t, types.SideBuy, side)
		assert.Equal(t, 1, routes)
	})
	h.pp.OnSwap(func(entry types.TradeEntry, err error) {
		swaps++
		assert.NoError(t, err)
		assert.True(t, entry.Success)
	})
	h.pp.OnTickFinished(func(status IterationStatus, _ time.Duration) {
		finished = append(finished, status)
	})

	require.NoError(t, h.pp.Tick(context.Background()))

	assert.Equal(t, 1, quotes)
	assert.Equal(t, 1, swaps)
	assert.Equal(t, []IterationStatus{IterationQuoted}, finished)
	assert.Empty(t, h.state.IterationStatuses())
}

func TestTick_FailureKeepsSideAndCountsError(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("slippage exceeded")},
		&fakeBalances{balance: 5_000_000})

	var swapErr error
	h.pp.OnSwap(func(_ types.TradeEntry, err error) { swapErr = err })

	require.NoError(t, h.pp.Tick(context.Background()))

	stats := h.state.Stats()
	assert.Equal(t, types.SideBuy, stats.Side)
	assert.Equal(t, 1, stats.TradeCounter.Buy.Fail)
	assert.Equal(t, 1, stats.TradeCounter.ErrorCount)
	assert.Equal(t, 0, stats.TradeCounter.FailedBalanceCheck)
	assert.Equal(t, uint64(1_000_000), stats.CurrentBalance.TokenA)
	assert.Empty(t, h.state.History())
	assert.ErrorIs(t, swapErr, ErrExecution)
	assert.False(t, h.state.SwapInFlight())
}

func TestTick_FailureStoredInHistoryWhenConfigured(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2, StoreFailedTxInHistory: true},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("blockhash expired")},
		&fakeBalances{balance: 5_000_000})

	require.NoError(t, h.pp.Tick(context.Background()))

	history := h.state.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Error, "blockhash expired")
}

func TestTick_SuccessResetsCounters(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("timeout")}
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, exec, &fakeBalances{balance: 0})

	for i := 0; i < 3; i++ {
		require.NoError(t, h.pp.Tick(context.Background()))
	}
	stats := h.state.Stats()
	assert.Equal(t, 3, stats.TradeCounter.ErrorCount)
	assert.Equal(t, 3, stats.TradeCounter.FailedBalanceCheck)

	exec.err = nil
	require.NoError(t, h.pp.Tick(context.Background()))

	stats = h.state.Stats()
	assert.Equal(t, 0, stats.TradeCounter.ErrorCount)
	assert.Equal(t, 0, stats.TradeCounter.FailedBalanceCheck)
	assert.Equal(t, 3, stats.TradeCounter.Buy.Fail)
	assert.Equal(t, 1, stats.TradeCounter.Buy.Success)
}

func TestTick_ErrorBreakerTripsAfterLimit(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("rpc down")},
		&fakeBalances{balance: 5_000_000})

	var tripped *CircuitBreakerError
	h.pp.OnCircuitBreaker(func(err *CircuitBreakerError) { tripped = err })

	for i := 0; i < DefaultErrorLimit; i++ {
		require.NoError(t, h.pp.Tick(context.Background()), "tick %d", i+1)
	}
	assert.Nil(t, tripped)
	assert.Equal(t, DefaultErrorLimit, h.state.Stats().TradeCounter.ErrorCount)

	err := h.pp.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitBreakerTripped)

	var breaker *CircuitBreakerError
	require.ErrorAs(t, err, &breaker)
	assert.Equal(t, BreakerErrors, breaker.Breaker)
	assert.Equal(t, DefaultErrorLimit+1, breaker.Count)
	assert.Equal(t, DefaultErrorLimit, breaker.Limit)
	assert.Same(t, breaker, tripped)
}

func TestTick_TrippedBreakerHaltsLaterTicks(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("rpc down")},
		&fakeBalances{balance: 5_000_000})

	var trips atomic.Int32
	h.pp.OnCircuitBreaker(func(*CircuitBreakerError) { trips.Add(1) })

	var first error
	for i := 0; i <= DefaultErrorLimit; i++ {
		first = h.pp.Tick(context.Background())
	}
	var breaker *CircuitBreakerError
	require.ErrorAs(t, first, &breaker)
	require.Same(t, breaker, h.state.Halted())

	calls := h.executor.calls.Load()
	quotes := len(h.quotes.quotedAmounts())
	iterations := h.state.Stats().Iterations

	for i := 0; i < 5; i++ {
		err := h.pp.Tick(context.Background())
		var again *CircuitBreakerError
		require.ErrorAs(t, err, &again)
		assert.Same(t, breaker, again)
	}

	assert.Equal(t, calls, h.executor.calls.Load(), "no swap may run after a trip")
	assert.Len(t, h.quotes.quotedAmounts(), quotes)
	assert.Equal(t, iterations, h.state.Stats().Iterations)
	assert.Equal(t, DefaultErrorLimit+1, h.state.Stats().TradeCounter.ErrorCount)
	assert.Equal(t, int32(1), trips.Load())
}

func TestTick_InFlightQuoteCannotSwapAfterTrip(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2, ErrorLimit: 1},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("rpc down")},
		&fakeBalances{balance: 5_000_000})

	// The view is taken before the breaker trips.
	view := h.state.view()

	require.NoError(t, h.pp.Tick(context.Background()))
	require.Error(t, h.pp.Tick(context.Background()))
	require.NotNil(t, h.state.Halted())

	assert.False(t, h.state.acquireSwap(view.generation))
	assert.Equal(t, int32(2), h.executor.calls.Load())
}

func TestTick_LowBalanceBreakerTripsAfterLimit(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("insufficient funds")},
		&fakeBalances{balance: 10})

	for i := 0; i < DefaultBalanceLimit; i++ {
		require.NoError(t, h.pp.Tick(context.Background()), "tick %d", i+1)
	}
	assert.Equal(t, DefaultBalanceLimit, h.state.Stats().TradeCounter.FailedBalanceCheck)

	err := h.pp.Tick(context.Background())
	var breaker *CircuitBreakerError
	require.ErrorAs(t, err, &breaker)
	assert.Equal(t, BreakerLowBalance, breaker.Breaker)
	assert.Equal(t, DefaultBalanceLimit+1, breaker.Count)

	// The tripping failure is not also counted as a consecutive error.
	assert.Equal(t, DefaultBalanceLimit, h.state.Stats().TradeCounter.ErrorCount)
	assert.Equal(t, int32(DefaultBalanceLimit+1), h.balances.calls.Load())
}

func TestTick_BalanceErrorCountsAsEmptyWallet(t *testing.T) {
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)},
		&fakeExecutor{err: errors.New("failed")},
		&fakeBalances{balance: 5_000_000, err: errors.New("rpc timeout")})

	require.NoError(t, h.pp.Tick(context.Background()))

	stats := h.state.Stats()
	assert.Equal(t, 1, stats.TradeCounter.FailedBalanceCheck)
	assert.Equal(t, 1, stats.TradeCounter.ErrorCount)
}

func TestTick_SingleFlightUnderConcurrency(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, exec, &fakeBalances{})

	done := make(chan error, 1)
	go func() { done <- h.pp.Tick(context.Background()) }()

	require.Eventually(t, func() bool { return exec.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, h.state.SwapInFlight())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.pp.Tick(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, types.SideBuy, h.state.Side())
	assert.Len(t, h.state.IterationStatuses(), 1)

	close(exec.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, types.SideSell, h.state.Side())
	assert.False(t, h.state.SwapInFlight())
	assert.Equal(t, uint64(11), h.state.Stats().Iterations)
}

func TestTick_ReleasesGuardAfterFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("boom")}
	h := newHarness(t, Config{MinPercProfit: 2},
		&fakeQuotes{out: constantOut(1_050_000)}, exec, &fakeBalances{balance: 5_000_000})

	require.NoError(t, h.pp.Tick(context.Background()))
	require.NoError(t, h.pp.Tick(context.Background()))

	assert.Equal(t, int32(2), exec.calls.Load())
	assert.False(t, h.state.SwapInFlight())
}
