package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/jupiter"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// SolanaExecutor swaps through Jupiter and settles on Solana.
type SolanaExecutor struct {
	jupiterClient     *jupiter.Client
	chain             Chain
	wrapUnwrapSOL     bool
	prioritizationFee interface{}
	timeout           time.Duration
}

// SolanaExecutorConfig contains configuration for the Solana executor.
type SolanaExecutorConfig struct {
	Jupiter           *jupiter.Client
	Chain             Chain
	WrapUnwrapSOL     bool
	PrioritizationFee interface{}   // "auto" or lamports; nil lets Jupiter decide
	Timeout           time.Duration // 0 disables the per-swap deadline
}

// NewSolanaExecutor creates a new Solana swap executor.
func NewSolanaExecutor(config *SolanaExecutorConfig) (*SolanaExecutor, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Jupiter == nil {
		return nil, fmt.Errorf("jupiter client is required")
	}
	if config.Chain == nil {
		return nil, fmt.Errorf("chain client is required")
	}

	return &SolanaExecutor{
		jupiterClient:     config.Jupiter,
		chain:             config.Chain,
		wrapUnwrapSOL:     config.WrapUnwrapSOL,
		prioritizationFee: config.PrioritizationFee,
		timeout:           config.Timeout,
	}, nil
}

// Execute builds, signs, sends and confirms the swap for route.
func (s *SolanaExecutor) Execute(ctx context.Context, route *types.Route, wallet types.Wallet) (*types.SwapResult, error) {
	if route == nil || route.Quote == nil {
		return nil, fmt.Errorf("route has no quote")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()

	swapResp, err := s.jupiterClient.BuildSwapTransaction(ctx, &jupiter.SwapParams{
		QuoteResponse:             route.Quote,
		UserPublicKey:             wallet.PublicKey().String(),
		WrapAndUnwrapSol:          s.wrapUnwrapSOL,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: s.prioritizationFee,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build swap transaction: %w", err)
	}

	tx, err := signTransaction(swapResp.SwapTransaction, wallet)
	if err != nil {
		return nil, err
	}

	sig, err := s.chain.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("signature", sig.String()).Msg("swap transaction sent")

	if err := s.chain.ConfirmTransaction(ctx, sig); err != nil {
		return nil, fmt.Errorf("swap %s not confirmed: %w", sig, err)
	}
	log.Info().Str("signature", sig.String()).Msg("swap transaction confirmed")

	result := &types.SwapResult{
		Signature:    sig.String(),
		InputAmount:  route.InAmount,
		OutputAmount: route.OutAmount,
	}

	// Prefer what actually moved on-chain over the quoted amounts.
	amounts, err := s.chain.GetTransferAmounts(ctx, sig, wallet.PublicKey(), route.InputMint, route.OutputMint)
	if err != nil {
		log.Warn().Err(err).Str("signature", sig.String()).Msg("using quoted amounts, transaction meta unavailable")
	} else {
		if amounts.Spent > 0 {
			result.InputAmount = amounts.Spent
		}
		if amounts.Received > 0 {
			result.OutputAmount = amounts.Received
		}
		result.Slot = amounts.Slot
	}

	result.Duration = time.Since(start)
	return result, nil
}

// signTransaction decodes a Base64 transaction and fills in the wallet signature.
func signTransaction(txBase64 string, wallet types.Wallet) (*solanago.Transaction, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	tx, err := solanago.TransactionFromBytes(txBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	signer := wallet.PublicKey()
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("wallet %s is not a signer of the swap transaction", signer)
	}

	sig, err := wallet.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solanago.Signature{})
	}
	tx.Signatures[index] = sig

	return tx, nil
}

// JupiterQuoter returns routes from the Jupiter quote API.
type JupiterQuoter struct {
	client           *jupiter.Client
	onlyDirectRoutes bool
}

// NewJupiterQuoter creates a quote client backed by Jupiter.
func NewJupiterQuoter(client *jupiter.Client, onlyDirectRoutes bool) *JupiterQuoter {
	return &JupiterQuoter{client: client, onlyDirectRoutes: onlyDirectRoutes}
}

// GetRoutes returns candidate routes ordered best first. Jupiter returns a
// single best route, so the list has at most one element.
func (q *JupiterQuoter) GetRoutes(ctx context.Context, input, output types.Asset, amount uint64, slippageBps int) ([]types.Route, error) {
	quote, err := q.client.GetQuote(ctx, &jupiter.QuoteParams{
		InputMint:        input.Address,
		OutputMint:       output.Address,
		Amount:           strconv.FormatUint(amount, 10),
		SlippageBps:      slippageBps,
		SwapMode:         jupiter.SwapModeExactIn,
		OnlyDirectRoutes: q.onlyDirectRoutes,
	})
	if err != nil {
		return nil, err
	}

	route, err := RouteFromQuote(quote)
	if err != nil {
		return nil, err
	}
	if route.OutAmount == 0 {
		return nil, nil
	}
	return []types.Route{route}, nil
}
