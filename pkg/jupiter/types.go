package jupiter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// QuoteParams contains the parameters for requesting a quote from Jupiter.
type QuoteParams struct {
	InputMint        string `json:"inputMint"`          // Input token mint address
	OutputMint       string `json:"outputMint"`         // Output token mint address
	Amount           string `json:"amount"`             // Amount in base units
	SlippageBps      int    `json:"slippageBps"`        // Slippage tolerance in basis points
	SwapMode         string `json:"swapMode,omitempty"` // "ExactIn" or "ExactOut"
	OnlyDirectRoutes bool   `json:"onlyDirectRoutes,omitempty"`
}

// QuoteResponse contains the response from Jupiter's quote API.
type QuoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	ContextSlot          int64       `json:"contextSlot,omitempty"`
	TimeTaken            float64     `json:"timeTaken,omitempty"`
}

// RoutePlan describes a single step in the swap route.
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo contains details about a swap step.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// SwapParams contains the parameters for building a swap transaction.
type SwapParams struct {
	QuoteResponse             *QuoteResponse `json:"quoteResponse"`
	UserPublicKey             string         `json:"userPublicKey"`
	WrapAndUnwrapSol          bool           `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool           `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports interface{}    `json:"prioritizationFeeLamports,omitempty"` // "auto" or int
}

// SwapResponse contains the response from Jupiter's swap API.
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"` // Base64-encoded transaction
	LastValidBlockHeight      int64  `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports int64  `json:"prioritizationFeeLamports,omitempty"`
	ComputeUnitLimit          int    `json:"computeUnitLimit,omitempty"`
}

// TokenInfo contains information about a Solana token.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Mint     string `json:"address"` // Base58-encoded mint address
	Decimals int    `json:"decimals"`
}

// listedToken is a token list entry. Older lists use "address", newer ones "id".
type listedToken struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// Well-known Solana token mint addresses (mainnet).
var (
	// Native SOL (wrapped)
	SOLMint = "So11111111111111111111111111111111111111112"

	// Stablecoins
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	BONKMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	WIFMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	JUPMint  = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
)

// DefaultTokens returns well-known tokens keyed by mint address.
func DefaultTokens() map[string]TokenInfo {
	list := []TokenInfo{
		{Symbol: "SOL", Name: "Wrapped SOL", Mint: SOLMint, Decimals: 9},
		{Symbol: "USDC", Name: "USD Coin", Mint: USDCMint, Decimals: 6},
		{Symbol: "USDT", Name: "USDT", Mint: USDTMint, Decimals: 6},
		{Symbol: "BONK", Name: "Bonk", Mint: BONKMint, Decimals: 5},
		{Symbol: "WIF", Name: "dogwifhat", Mint: WIFMint, Decimals: 6},
		{Symbol: "JUP", Name: "Jupiter", Mint: JUPMint, Decimals: 6},
	}

	tokens := make(map[string]TokenInfo, len(list))
	for _, t := range list {
		tokens[t.Mint] = t
	}
	return tokens
}

// LoadTokenFile reads a token list saved as a JSON array.
func LoadTokenFile(path string) ([]TokenInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}

	var listed []listedToken
	if err := json.Unmarshal(data, &listed); err != nil {
		return nil, fmt.Errorf("failed to parse token list: %w", err)
	}

	tokens := make([]TokenInfo, 0, len(listed))
	for _, t := range listed {
		mint := t.Address
		if mint == "" {
			mint = t.ID
		}
		tokens = append(tokens, TokenInfo{Symbol: t.Symbol, Name: t.Name, Mint: mint, Decimals: t.Decimals})
	}
	return tokens, nil
}

// FindToken looks up a mint in the list, falling back to the well-known tokens.
func FindToken(tokens []TokenInfo, mint string) (TokenInfo, bool) {
	for _, t := range tokens {
		if t.Mint == mint {
			return t, true
		}
	}
	t, ok := DefaultTokens()[mint]
	return t, ok
}

// SaveTokenFile caches a token list so later runs can skip the download.
func SaveTokenFile(path string, tokens []TokenInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create token list dir: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token list: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write token list: %w", err)
	}
	return nil
}
