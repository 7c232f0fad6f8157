package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/strategy"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// initialQuoteSlippageBps is used for the startup quote that seeds the tokenB baseline.
const initialQuoteSlippageBps = 50

// seedState checks the wallet can cover the trade size and quotes tokenA to
// tokenB once. The store starts with the trade size as the tokenA balance and
// the quoted minimum output as the tokenB baseline.
func seedState(ctx context.Context, quoter strategy.QuoteClient, chain strategy.BalanceChecker, wallet types.Wallet, tokenA, tokenB types.Asset, tradeSize float64, historyLimit int, dryRun bool) (*strategy.State, error) {
	initialA := strategy.ToBaseUnits(decimal.NewFromFloat(tradeSize), tokenA.Decimals)
	if initialA == 0 {
		return nil, fmt.Errorf("trade size %v %s is below one base unit", tradeSize, tokenA.Symbol)
	}
	if err := checkTokenABalance(ctx, chain, tokenA, wallet, initialA, dryRun); err != nil {
		return nil, err
	}

	routes, err := quoter.GetRoutes(ctx, tokenA, tokenB, initialA, initialQuoteSlippageBps)
	if err != nil {
		return nil, fmt.Errorf("initial quote %s -> %s: %w", tokenA.Symbol, tokenB.Symbol, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes found for %s -> %s", tokenA.Symbol, tokenB.Symbol)
	}

	state := strategy.NewState(historyLimit)
	state.InitBalances(initialA, routes[0].OtherAmountThreshold)
	return state, nil
}

// checkTokenABalance refuses to start when the wallet cannot cover the trade size.
func checkTokenABalance(ctx context.Context, chain strategy.BalanceChecker, tokenA types.Asset, wallet types.Wallet, required uint64, dryRun bool) error {
	balance, err := chain.BalanceOf(ctx, tokenA, wallet)
	if err != nil {
		if dryRun {
			log.Warn().Err(err).Msg("balance check failed, continuing in dry run")
			return nil
		}
		return fmt.Errorf("check %s balance: %w", tokenA.Symbol, err)
	}

	have := strategy.ToDecimal(balance, tokenA.Decimals)
	want := strategy.ToDecimal(required, tokenA.Decimals)
	log.Info().Str("token", tokenA.Symbol).Str("balance", have.String()).Str("trade_size", want.String()).Msg("wallet balance")

	if balance < required {
		if dryRun {
			log.Warn().Msg("insufficient balance, continuing in dry run")
			return nil
		}
		return fmt.Errorf("insufficient %s balance: %s < %s", tokenA.Symbol, have, want)
	}
	return nil
}

// countIterations tallies in-flight iterations by status.
func countIterations(statuses map[uint64]strategy.IterationStatus) map[strategy.IterationStatus]int {
	counts := make(map[strategy.IterationStatus]int, 3)
	for _, status := range statuses {
		counts[status]++
	}
	return counts
}
