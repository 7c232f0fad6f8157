// Package notifier provides notification services for the ping-pong bot.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// DefaultAPIURL is the Slack chat.postMessage endpoint.
const DefaultAPIURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier sends notifications to a Slack channel.
type SlackNotifier struct {
	apiToken   string
	channel    string
	apiURL     string
	httpClient *http.Client
	enabled    bool
}

// SlackConfig holds Slack configuration.
type SlackConfig struct {
	APIToken string
	Channel  string
	Enabled  bool
	APIURL   string // Defaults to DefaultAPIURL
}

// slackMessage represents a Slack message payload.
type slackMessage struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text,omitempty"`
	Blocks  []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config *SlackConfig) *SlackNotifier {
	if config == nil || config.APIToken == "" || config.Channel == "" {
		return &SlackNotifier{enabled: false}
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &SlackNotifier{
		apiToken: config.APIToken,
		channel:  config.Channel,
		apiURL:   apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		enabled: config.Enabled,
	}
}

// IsEnabled returns whether the notifier is enabled.
func (s *SlackNotifier) IsEnabled() bool {
	return s.enabled
}

// StartupInfo describes the bot configuration at launch.
type StartupInfo struct {
	Wallet        string
	TokenA        types.Asset
	TokenB        types.Asset
	TradeSize     string
	MinPercProfit float64
	SlippageBps   int
	DryRun        bool
}

// NotifyStartup announces that the bot has started trading.
func (s *SlackNotifier) NotifyStartup(ctx context.Context, info StartupInfo) error {
	if !s.enabled {
		return nil
	}

	mode := "LIVE"
	if info.DryRun {
		mode = "DRY RUN"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: fmt.Sprintf("🏓 Ping-pong started: %s/%s (%s)", info.TokenA.Symbol, info.TokenB.Symbol, mode),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Wallet:*\n%s", info.Wallet)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Trade Size:*\n%s %s", info.TradeSize, info.TokenA.Symbol)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Min Profit:*\n%.2f%%", info.MinPercProfit)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Slippage:*\n%d bps", info.SlippageBps)},
			},
		},
	}

	return s.sendMessage(ctx, blocks, fmt.Sprintf("Ping-pong started: %s/%s", info.TokenA.Symbol, info.TokenB.Symbol))
}

// NotifySwap sends a notification about a swap attempt. swapErr is nil on success.
func (s *SlackNotifier) NotifySwap(ctx context.Context, entry types.TradeEntry, swapErr error) error {
	if !s.enabled {
		return nil
	}

	emoji, status := "✅", "EXECUTED"
	if swapErr != nil {
		emoji, status = "❌", "FAILED"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: fmt.Sprintf("%s Swap %s: %s → %s", emoji, status, entry.InputToken, entry.OutputToken),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Side:*\n%s", entry.Side)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*In:*\n%s %s", entry.InAmount, entry.InputToken)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Expected Out:*\n%s %s", entry.ExpectedOutAmount, entry.OutputToken)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Expected Profit:*\n%s%%", entry.ExpectedProfit.StringFixed(4))},
			},
		},
	}

	if swapErr == nil {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Out:*\n%s %s", entry.OutAmount, entry.OutputToken)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Profit:*\n%s%%", entry.Profit.StringFixed(4))},
			},
		})
	} else {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Error:* %s", swapErr),
			},
		})
	}

	footer := fmt.Sprintf("Attempted at %s", entry.Date.Format(time.RFC3339))
	if entry.Signature != "" {
		footer += fmt.Sprintf(" | <https://solscan.io/tx/%s|%s>", entry.Signature, shorten(entry.Signature))
	}
	blocks = append(blocks, slackBlock{
		Type: "context",
		Text: &slackText{Type: "mrkdwn", Text: footer},
	})

	return s.sendMessage(ctx, blocks, fmt.Sprintf("Swap %s: %s → %s", status, entry.InputToken, entry.OutputToken))
}

// BreakerAlert describes a tripped circuit breaker.
type BreakerAlert struct {
	Breaker string
	Count   int
	Limit   int
	Detail  string
}

// NotifyCircuitBreaker sends a critical alert that the bot is halting.
func (s *SlackNotifier) NotifyCircuitBreaker(ctx context.Context, alert BreakerAlert) error {
	if !s.enabled {
		return nil
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: fmt.Sprintf("🚨 Circuit breaker tripped: %s", alert.Breaker),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Count:*\n%d", alert.Count)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Limit:*\n%d", alert.Limit)},
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Detail:* %s", alert.Detail),
			},
		},
		{
			Type: "context",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Bot halted at %s", time.Now().Format(time.RFC3339)),
			},
		},
	}

	return s.sendMessage(ctx, blocks, fmt.Sprintf("Circuit breaker tripped: %s (%d > %d)", alert.Breaker, alert.Count, alert.Limit))
}

// NotifyStatus sends a periodic status summary.
func (s *SlackNotifier) NotifyStatus(ctx context.Context, stats types.BotStats, tokenA, tokenB types.Asset) error {
	if !s.enabled {
		return nil
	}

	uptime := time.Since(stats.StartTime).Truncate(time.Second)
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: fmt.Sprintf("📊 Status: %s/%s", tokenA.Symbol, tokenB.Symbol),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Uptime:*\n%s", uptime)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Iterations:*\n%d (%d/min)", stats.Iterations, stats.IterationsPerMin)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Side:*\n%s", stats.Side)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Trades:*\n%d", stats.Trades)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Buy:*\n%d ok / %d fail", stats.TradeCounter.Buy.Success, stats.TradeCounter.Buy.Fail)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Sell:*\n%d ok / %d fail", stats.TradeCounter.Sell.Success, stats.TradeCounter.Sell.Fail)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Profit %s:*\n%s%%", tokenA.Symbol, stats.CurrentProfit.TokenA.StringFixed(4))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Profit %s:*\n%s%%", tokenB.Symbol, stats.CurrentProfit.TokenB.StringFixed(4))},
			},
		},
	}

	return s.sendMessage(ctx, blocks, fmt.Sprintf("Status: %d iterations, %d trades", stats.Iterations, stats.Trades))
}

// sendMessage sends a message to Slack.
func (s *SlackNotifier) sendMessage(ctx context.Context, blocks []slackBlock, fallbackText string) error {
	msg := slackMessage{
		Channel: s.channel,
		Text:    fallbackText,
		Blocks:  blocks,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	// Parse response to check for errors
	var slackResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slackResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !slackResp.OK {
		return fmt.Errorf("slack API error: %s", slackResp.Error)
	}

	return nil
}

// SendTestMessage sends a test message to verify the connection.
func (s *SlackNotifier) SendTestMessage(ctx context.Context) error {
	if !s.enabled {
		return fmt.Errorf("slack notifier is not enabled")
	}

	blocks := []slackBlock{
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: "🤖 *Jupiter Ping-Pong Bot* connected and ready to send notifications!",
			},
		},
	}

	return s.sendMessage(ctx, blocks, "Jupiter Ping-Pong Bot connected")
}

func shorten(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "…" + sig[len(sig)-8:]
}
