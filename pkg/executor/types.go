// Package executor provides the quote and swap execution clients used by the
// ping-pong strategy.
package executor

import (
	"context"
	"fmt"
	"strconv"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/jupiter"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/solana"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// Chain submits and confirms transactions. *solana.Client implements it.
type Chain interface {
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solanago.Signature) error
	GetTransferAmounts(ctx context.Context, sig solanago.Signature, owner solanago.PublicKey, inputMint, outputMint string) (*solana.TransferAmounts, error)
}

// RouteFromQuote converts a Jupiter quote into a route.
func RouteFromQuote(quote *jupiter.QuoteResponse) (types.Route, error) {
	inAmount, err := parseAmount(quote.InAmount)
	if err != nil {
		return types.Route{}, fmt.Errorf("failed to parse input amount: %w", err)
	}
	outAmount, err := parseAmount(quote.OutAmount)
	if err != nil {
		return types.Route{}, fmt.Errorf("failed to parse output amount: %w", err)
	}
	threshold, err := parseAmount(quote.OtherAmountThreshold)
	if err != nil {
		return types.Route{}, fmt.Errorf("failed to parse other amount threshold: %w", err)
	}

	var priceImpact float64
	if quote.PriceImpactPct != "" {
		priceImpact, _ = strconv.ParseFloat(quote.PriceImpactPct, 64)
	}

	labels := make([]string, 0, len(quote.RoutePlan))
	for _, step := range quote.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}

	return types.Route{
		InputMint:            quote.InputMint,
		OutputMint:           quote.OutputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		SlippageBps:          quote.SlippageBps,
		PriceImpactPct:       priceImpact,
		Labels:               labels,
		Quote:                quote,
	}, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
