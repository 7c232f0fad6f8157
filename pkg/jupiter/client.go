// Package jupiter provides a client for the Jupiter aggregator API on Solana.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the Jupiter Lite API endpoint.
	DefaultBaseURL = "https://lite-api.jup.ag/swap/v1"

	// UltraBaseURL is the Jupiter API endpoint for keyed access.
	UltraBaseURL = "https://api.jup.ag/swap/v1"

	// DefaultTokensURL lists verified tokens.
	DefaultTokensURL = "https://lite-api.jup.ag/tokens/v2/tag?query=verified"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// SwapModeExactIn specifies exact input amount.
	SwapModeExactIn = "ExactIn"

	// SwapModeExactOut specifies exact output amount.
	SwapModeExactOut = "ExactOut"
)

// Client is a Jupiter API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokensURL  string
	apiKey     string // Optional: for keyed access
}

// ClientConfig contains configuration for the Jupiter client.
type ClientConfig struct {
	BaseURL    string
	TokensURL  string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// APIError is returned when Jupiter answers with a non-200 status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Jupiter API error (status %d): %s", e.StatusCode, e.Body)
}

// NewClient creates a new Jupiter API client.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = &ClientConfig{}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tokensURL := config.TokensURL
	if tokensURL == "" {
		tokensURL = DefaultTokensURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokensURL:  tokensURL,
		apiKey:     config.APIKey,
	}
}

// GetQuote fetches the best swap route from Jupiter.
func (c *Client) GetQuote(ctx context.Context, params *QuoteParams) (*QuoteResponse, error) {
	if params.InputMint == "" || params.OutputMint == "" {
		return nil, fmt.Errorf("inputMint and outputMint are required")
	}
	if params.Amount == "" || params.Amount == "0" {
		return nil, fmt.Errorf("amount is required")
	}

	query := url.Values{}
	query.Set("inputMint", params.InputMint)
	query.Set("outputMint", params.OutputMint)
	query.Set("amount", params.Amount)

	if params.SlippageBps > 0 {
		query.Set("slippageBps", strconv.Itoa(params.SlippageBps))
	}
	if params.SwapMode != "" {
		query.Set("swapMode", params.SwapMode)
	}
	if params.OnlyDirectRoutes {
		query.Set("onlyDirectRoutes", "true")
	}

	var quoteResp QuoteResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode()), nil, &quoteResp); err != nil {
		return nil, err
	}
	if quoteResp.OutAmount == "" {
		return nil, fmt.Errorf("quote response has no outAmount")
	}

	return &quoteResp, nil
}

// BuildSwapTransaction builds an unsigned swap transaction from a quote.
func (c *Client) BuildSwapTransaction(ctx context.Context, params *SwapParams) (*SwapResponse, error) {
	if params.QuoteResponse == nil {
		return nil, fmt.Errorf("quoteResponse is required")
	}
	if params.UserPublicKey == "" {
		return nil, fmt.Errorf("userPublicKey is required")
	}

	var swapResp SwapResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", params, &swapResp); err != nil {
		return nil, err
	}
	if swapResp.SwapTransaction == "" {
		return nil, fmt.Errorf("failed to prepare swap transaction: empty swapTransaction")
	}

	return &swapResp, nil
}

// FetchTokens downloads the verified token list.
func (c *Client) FetchTokens(ctx context.Context) ([]TokenInfo, error) {
	var listed []listedToken
	if err := c.do(ctx, http.MethodGet, c.tokensURL, nil, &listed); err != nil {
		return nil, err
	}

	tokens := make([]TokenInfo, 0, len(listed))
	for _, t := range listed {
		mint := t.ID
		if mint == "" {
			mint = t.Address
		}
		tokens = append(tokens, TokenInfo{
			Symbol:   t.Symbol,
			Name:     t.Name,
			Mint:     mint,
			Decimals: t.Decimals,
		})
	}
	return tokens, nil
}

// do sends a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, requestURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
