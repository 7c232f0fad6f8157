// Package config provides configuration management for the ping-pong bot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StrategyPingPong  = "pingpong"
	StrategyArbitrage = "arbitrage"

	TradeSizeCumulative = "cumulative"
	TradeSizeFixed      = "fixed"

	// DefaultSlippageBps applies when slippage is absent or not a number.
	DefaultSlippageBps = 1
)

// Config holds the complete bot configuration.
type Config struct {
	// Network settings
	Network       string   `json:"network" yaml:"network"`
	RPC           []string `json:"rpc" yaml:"rpc"`
	WSRPC         string   `json:"wsRpc,omitempty" yaml:"wsRpc,omitempty"`
	WrapUnwrapSOL bool     `json:"wrapUnwrapSOL" yaml:"wrapUnwrapSOL"`

	// Strategy settings
	TradingStrategy        string    `json:"tradingStrategy" yaml:"tradingStrategy"`
	TokenA                 TokenRef  `json:"tokenA" yaml:"tokenA"`
	TokenB                 TokenRef  `json:"tokenB" yaml:"tokenB"`
	TradeSize              TradeSize `json:"tradeSize" yaml:"tradeSize"`
	MinPercProfit          float64   `json:"minPercProfit" yaml:"minPercProfit"`
	Slippage               Slippage  `json:"slippage" yaml:"slippage"`
	MinInterval            int       `json:"minInterval" yaml:"minInterval"` // Milliseconds
	StoreFailedTxInHistory bool      `json:"storeFailedTxInHistory" yaml:"storeFailedTxInHistory"`
	HistoryLimit           int       `json:"historyLimit,omitempty" yaml:"historyLimit,omitempty"`

	// Execution settings
	DryRun            bool   `json:"dryRun" yaml:"dryRun"`
	SwapTimeoutMs     int    `json:"swapTimeout,omitempty" yaml:"swapTimeout,omitempty"`
	PrioritizationFee string `json:"prioritizationFee,omitempty" yaml:"prioritizationFee,omitempty"`
	OnlyDirectRoutes  bool   `json:"onlyDirectRoutes,omitempty" yaml:"onlyDirectRoutes,omitempty"`

	// Ambient settings
	TokensFile  string          `json:"tokensFile,omitempty" yaml:"tokensFile,omitempty"`
	StatusCron  string          `json:"statusCron,omitempty" yaml:"statusCron,omitempty"`
	MetricsAddr string          `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
	Jupiter     JupiterSettings `json:"jupiter" yaml:"jupiter"`
	Slack       SlackSettings   `json:"slack" yaml:"slack"`
	Log         LogSettings     `json:"log" yaml:"log"`

	// Secrets, only from the environment
	PrivateKey string `json:"-" yaml:"-"`
}

// TokenRef identifies a configured token by mint address.
type TokenRef struct {
	Symbol  string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Address string `json:"address" yaml:"address"`
}

// TradeSize selects the sizing policy and the initial size in display units of tokenA.
type TradeSize struct {
	Strategy string  `json:"strategy" yaml:"strategy"`
	Value    float64 `json:"value" yaml:"value"`
}

// JupiterSettings holds Jupiter API settings.
type JupiterSettings struct {
	BaseURL   string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	TokensURL string `json:"tokensURL,omitempty" yaml:"tokensURL,omitempty"`
	APIKey    string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
}

// SlackSettings holds Slack notification configuration.
type SlackSettings struct {
	APIToken string `json:"apiToken,omitempty" yaml:"apiToken,omitempty"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Slippage is a basis-point value that falls back to the default when the
// configured value is missing or not a number.
type Slippage int

// UnmarshalJSON accepts any JSON value.
func (s *Slippage) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok {
		*s = DefaultSlippageBps
		return nil
	}
	*s = Slippage(int(n))
	return nil
}

// UnmarshalYAML accepts any scalar.
func (s *Slippage) UnmarshalYAML(node *yaml.Node) error {
	n, err := strconv.Atoi(node.Value)
	if err != nil || node.Kind != yaml.ScalarNode {
		*s = DefaultSlippageBps
		return nil
	}
	*s = Slippage(n)
	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Network:         "mainnet-beta",
		RPC:             []string{"https://api.mainnet-beta.solana.com"},
		WrapUnwrapSOL:   true,
		TradingStrategy: StrategyPingPong,
		TradeSize: TradeSize{
			Strategy: TradeSizeCumulative,
		},
		MinPercProfit: 1,
		Slippage:      DefaultSlippageBps,
		MinInterval:   1000,
		DryRun:        true,
		TokensFile:    "./temp/tokens.json",
		StatusCron:    "@every 1m",
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, then applies
// .env and environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads ./.env if present. Existing variables are not overwritten.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOLANA_WALLET_PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("DEFAULT_RPC"); v != "" {
		c.RPC = append([]string{v}, c.RPC...)
	}
	if v := os.Getenv("WS_RPC"); v != "" {
		c.WSRPC = v
	}
	if v := os.Getenv("JUPITER_API_KEY"); v != "" {
		c.Jupiter.APIKey = v
	}
	if v := os.Getenv("SLACK_API_TOKEN"); v != "" {
		c.Slack.APIToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		c.Slack.Channel = v
	}
	if v := os.Getenv("BOT_DRY_RUN"); v != "" {
		c.DryRun = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("BOT_MIN_INTERVAL_MS"); v != "" {
		if val, err := parseInt(v); err == nil {
			c.MinInterval = val
		}
	}
	if v := os.Getenv("BOT_MIN_PERC_PROFIT"); v != "" {
		if val, err := parseFloat(v); err == nil {
			c.MinPercProfit = val
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// SaveToFile saves the configuration, choosing the format by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetMinInterval returns the tick period as a duration.
func (c *Config) GetMinInterval() time.Duration {
	return time.Duration(c.MinInterval) * time.Millisecond
}

// GetSwapTimeout returns the per-swap deadline, zero when disabled.
func (c *Config) GetSwapTimeout() time.Duration {
	return time.Duration(c.SwapTimeoutMs) * time.Millisecond
}

// PrimaryRPC returns the first configured RPC endpoint.
func (c *Config) PrimaryRPC() string {
	if len(c.RPC) == 0 {
		return ""
	}
	return c.RPC[0]
}

// SlippageBps returns the slippage tolerance in basis points.
func (c *Config) SlippageBps() int {
	if c.Slippage <= 0 {
		return DefaultSlippageBps
	}
	return int(c.Slippage)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.TradingStrategy {
	case StrategyPingPong:
	case StrategyArbitrage:
		return fmt.Errorf("tradingStrategy %q is not supported by this bot, use %q", StrategyArbitrage, StrategyPingPong)
	default:
		return fmt.Errorf("unknown tradingStrategy %q", c.TradingStrategy)
	}

	if c.TokenA.Address == "" || c.TokenB.Address == "" {
		return fmt.Errorf("tokenA.address and tokenB.address are required")
	}
	if c.TokenA.Address == c.TokenB.Address {
		return fmt.Errorf("tokenA and tokenB must differ")
	}

	if c.TradeSize.Strategy != TradeSizeCumulative && c.TradeSize.Strategy != TradeSizeFixed {
		return fmt.Errorf("tradeSize.strategy must be %q or %q", TradeSizeCumulative, TradeSizeFixed)
	}
	if c.TradeSize.Value <= 0 {
		return fmt.Errorf("tradeSize.value must be positive")
	}

	if c.MinInterval < 100 {
		return fmt.Errorf("minInterval must be at least 100 ms")
	}

	if c.PrimaryRPC() == "" {
		return fmt.Errorf("at least one rpc endpoint is required")
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("SOLANA_WALLET_PRIVATE_KEY is not set")
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("historyLimit cannot be negative")
	}

	return nil
}

// Helper functions
func parseInt(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%f", &v)
	return v, err
}
