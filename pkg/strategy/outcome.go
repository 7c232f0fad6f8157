package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// handleSuccess reconciles balances after a confirmed swap, appends the
// finalized history entry, flips the side and clears the breaker counters.
func (p *PingPong) handleSuccess(side types.Side, result *types.SwapResult, entry types.TradeEntry) {
	s := p.state
	s.mu.Lock()

	s.sideCounter(side).Success++

	var baseline uint64
	var profitErr error
	inDecimals, outDecimals := p.tokenA.Decimals, p.tokenB.Decimals

	if side == types.SideBuy {
		s.lastBalance.TokenA = s.currentBalance.TokenA
		s.currentBalance.TokenA = 0
		s.currentBalance.TokenB += result.OutputAmount

		s.currentProfit.TokenA = decimal.Zero
		s.currentProfit.TokenB, profitErr = CalculateProfit(s.initialBalance.TokenB, s.currentBalance.TokenB)
		baseline = s.lastBalance.TokenB
	} else {
		s.lastBalance.TokenB = s.currentBalance.TokenB
		s.currentBalance.TokenB = 0
		s.currentBalance.TokenA += result.OutputAmount

		s.currentProfit.TokenB = decimal.Zero
		s.currentProfit.TokenA, profitErr = CalculateProfit(s.initialBalance.TokenA, s.currentBalance.TokenA)
		baseline = s.lastBalance.TokenA
		inDecimals, outDecimals = p.tokenB.Decimals, p.tokenA.Decimals
	}

	// Trade profit is measured against the retained round-trip baseline,
	// not the initial balance used for currentProfit above.
	entry.InAmount = ToDecimal(result.InputAmount, inDecimals)
	entry.OutAmount = ToDecimal(result.OutputAmount, outDecimals)
	entry.Signature = result.Signature
	entry.Success = true
	tradeProfit, tradeErr := CalculateProfit(baseline, result.OutputAmount)
	entry.Profit = tradeProfit
	s.appendHistory(entry)

	s.tradeCounter.ErrorCount = 0
	s.tradeCounter.FailedBalanceCheck = 0

	s.side = side.Flip()
	s.generation++

	s.mu.Unlock()

	if profitErr != nil {
		log.Warn().Err(profitErr).Msg("realized profit unavailable")
	}
	if tradeErr != nil {
		log.Warn().Err(tradeErr).Msg("trade profit unavailable")
	}

	log.Info().
		Str("signature", result.Signature).
		Stringer("side", side).
		Str("in", entry.InAmount.String()).
		Str("out", entry.OutAmount.String()).
		Str("profit", entry.Profit.StringFixed(4)).
		Dur("took", result.Duration).
		Bool("dry_run", result.DryRun).
		Msg("swap succeeded")

	if p.onSwap != nil {
		p.onSwap(entry, nil)
	}
}

// handleFailure records a failed swap and enforces both circuit breakers.
// It returns a *CircuitBreakerError when the bot must stop.
func (p *PingPong) handleFailure(ctx context.Context, side types.Side, entry types.TradeEntry, inputToken types.Asset, tradeAmount uint64, execErr error) error {
	entry.Error = execErr.Error()

	p.state.mu.Lock()
	p.state.sideCounter(side).Fail++
	if p.config.StoreFailedTxInHistory {
		p.state.appendHistory(entry)
	}
	p.state.mu.Unlock()

	if p.onSwap != nil {
		p.onSwap(entry, execErr)
	}

	// A failed balance lookup counts as an empty wallet.
	realBalance, err := p.balances.BalanceOf(ctx, inputToken, p.wallet)
	if err != nil {
		log.Error().Err(fmt.Errorf("%w: %s: %w", ErrBalance, inputToken.Symbol, err)).Msg("balance check failed")
		realBalance = 0
	} else {
		log.Info().
			Str("token", inputToken.Symbol).
			Str("balance", ToDecimal(realBalance, inputToken.Decimals).String()).
			Msg("wallet balance")
	}

	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	if realBalance < tradeAmount {
		p.state.tradeCounter.FailedBalanceCheck++
		if count := p.state.tradeCounter.FailedBalanceCheck; count > p.config.BalanceLimit {
			return p.state.trip(&CircuitBreakerError{
				Breaker: BreakerLowBalance,
				Count:   count,
				Limit:   p.config.BalanceLimit,
				Detail: fmt.Sprintf("balance too low for %s: %s < %s", inputToken.Symbol,
					ToDecimal(realBalance, inputToken.Decimals), ToDecimal(tradeAmount, inputToken.Decimals)),
			})
		}
	}

	p.state.tradeCounter.ErrorCount++
	if count := p.state.tradeCounter.ErrorCount; count > p.config.ErrorLimit {
		return p.state.trip(&CircuitBreakerError{
			Breaker: BreakerErrors,
			Count:   count,
			Limit:   p.config.ErrorLimit,
			Detail:  "ending to stop endless transaction failures",
		})
	}

	return nil
}
