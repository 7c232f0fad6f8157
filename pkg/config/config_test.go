package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SOLANA_WALLET_PRIVATE_KEY", "DEFAULT_RPC", "WS_RPC", "JUPITER_API_KEY",
		"SLACK_API_TOKEN", "SLACK_CHANNEL", "BOT_DRY_RUN", "BOT_MIN_INTERVAL_MS",
		"BOT_MIN_PERC_PROFIT", "LOG_LEVEL", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.TokenA = TokenRef{Symbol: "USDC", Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	cfg.TokenB = TokenRef{Symbol: "SOL", Address: "So11111111111111111111111111111111111111112"}
	cfg.TradeSize.Value = 5
	cfg.PrivateKey = "secret"
	return cfg
}

func TestLoadFromFile_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		"rpc": ["https://rpc.example.com"],
		"tradingStrategy": "pingpong",
		"tokenA": {"symbol": "USDC", "address": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		"tokenB": {"symbol": "SOL", "address": "So11111111111111111111111111111111111111112"},
		"tradeSize": {"strategy": "fixed", "value": 2.5},
		"minPercProfit": 0.5,
		"slippage": 25,
		"minInterval": 250,
		"storeFailedTxInHistory": true,
		"swapTimeout": 30000
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.PrimaryRPC())
	assert.Equal(t, TradeSize{Strategy: TradeSizeFixed, Value: 2.5}, cfg.TradeSize)
	assert.Equal(t, 0.5, cfg.MinPercProfit)
	assert.Equal(t, 25, cfg.SlippageBps())
	assert.Equal(t, 250*time.Millisecond, cfg.GetMinInterval())
	assert.Equal(t, 30*time.Second, cfg.GetSwapTimeout())
	assert.True(t, cfg.StoreFailedTxInHistory)

	// Unset fields keep their defaults.
	assert.True(t, cfg.WrapUnwrapSOL)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
rpc:
  - https://rpc.example.com
tokenA:
  address: EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
tokenB:
  address: So11111111111111111111111111111111111111112
tradeSize:
  strategy: cumulative
  value: 10
slippage: 15
minInterval: 500
dryRun: false
log:
  level: debug
  format: json
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.SlippageBps())
	assert.Equal(t, 500, cfg.MinInterval)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, LogSettings{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, TradeSizeCumulative, cfg.TradeSize.Strategy)
	assert.Equal(t, StrategyPingPong, cfg.TradingStrategy)
}

func TestSlippage_NonNumericFallsBackToDefault(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromFile(writeFile(t, "config.json", `{"slippage": "tight"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultSlippageBps, cfg.SlippageBps())

	cfg, err = LoadFromFile(writeFile(t, "config.yaml", "slippage: tight\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSlippageBps, cfg.SlippageBps())

	cfg, err = LoadFromFile(writeFile(t, "config.json", `{"slippage": null}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultSlippageBps, cfg.SlippageBps())
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadFromFile(writeFile(t, "config.json", "{"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_WALLET_PRIVATE_KEY", "key-from-env")
	t.Setenv("DEFAULT_RPC", "https://primary.example.com")
	t.Setenv("WS_RPC", "wss://primary.example.com")
	t.Setenv("JUPITER_API_KEY", "jup-key")
	t.Setenv("SLACK_API_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL", "#trades")
	t.Setenv("BOT_DRY_RUN", "false")
	t.Setenv("BOT_MIN_INTERVAL_MS", "750")
	t.Setenv("BOT_MIN_PERC_PROFIT", "0.25")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := LoadFromFile(writeFile(t, "config.json", `{"rpc": ["https://fallback.example.com"]}`))
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.PrivateKey)
	assert.Equal(t, []string{"https://primary.example.com", "https://fallback.example.com"}, cfg.RPC)
	assert.Equal(t, "wss://primary.example.com", cfg.WSRPC)
	assert.Equal(t, "jup-key", cfg.Jupiter.APIKey)
	assert.Equal(t, "xoxb-test", cfg.Slack.APIToken)
	assert.Equal(t, "#trades", cfg.Slack.Channel)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, 750, cfg.MinInterval)
	assert.Equal(t, 0.25, cfg.MinPercProfit)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_MIN_INTERVAL_MS", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MinInterval)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"arbitrage", func(c *Config) { c.TradingStrategy = StrategyArbitrage }, "not supported"},
		{"unknown strategy", func(c *Config) { c.TradingStrategy = "grid" }, "unknown tradingStrategy"},
		{"missing token", func(c *Config) { c.TokenB.Address = "" }, "are required"},
		{"same tokens", func(c *Config) { c.TokenB = c.TokenA }, "must differ"},
		{"bad size strategy", func(c *Config) { c.TradeSize.Strategy = "double" }, "tradeSize.strategy"},
		{"zero size", func(c *Config) { c.TradeSize.Value = 0 }, "tradeSize.value"},
		{"fast interval", func(c *Config) { c.MinInterval = 50 }, "minInterval"},
		{"no rpc", func(c *Config) { c.RPC = nil }, "rpc endpoint"},
		{"no key", func(c *Config) { c.PrivateKey = "" }, "SOLANA_WALLET_PRIVATE_KEY"},
		{"negative history", func(c *Config) { c.HistoryLimit = -1 }, "historyLimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestSaveToFile_OmitsPrivateKey(t *testing.T) {
	clearEnv(t)
	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.TokenA, loaded.TokenA)
	assert.Equal(t, cfg.TradeSize, loaded.TradeSize)
	assert.Empty(t, loaded.PrivateKey)
}
