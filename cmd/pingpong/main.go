// Package main is the entry point for the Jupiter ping-pong bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/config"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/executor"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/jupiter"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/metrics"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/notifier"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/reporter"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/scheduler"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/solana"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/strategy"
	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

var (
	configPath   = flag.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	outputFormat = flag.String("format", "text", "Output format: text, json")
	verbose      = flag.Bool("verbose", false, "Print every quote, not only tick results")
	dryRun       = flag.Bool("dry-run", false, "Force dry run mode (no transactions are sent)")
	historyCSV   = flag.String("history-csv", "", "Write the trade history to this CSV file on exit")
	initConfig   = flag.String("init-config", "", "Write a default configuration to this path and exit")
	testSlack    = flag.Bool("test-slack", false, "Send a Slack test message and exit")
)

func main() {
	flag.Parse()

	printBanner()

	if *initConfig != "" {
		if err := config.DefaultConfig().SaveToFile(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", *initConfig)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	setupLogger(cfg.Log)

	if *testSlack {
		slack := newSlackNotifier(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := slack.SendTestMessage(ctx); err != nil {
			log.Fatal().Err(err).Msg("slack test message failed")
		}
		log.Info().Str("channel", cfg.Slack.Channel).Msg("slack test message sent")
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("bot halted")
		os.Exit(1)
	}

	log.Info().Msg("bot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	wallet, err := solana.ParseKeypair(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}

	jup := jupiter.NewClient(&jupiter.ClientConfig{
		BaseURL:   cfg.Jupiter.BaseURL,
		TokensURL: cfg.Jupiter.TokensURL,
		APIKey:    cfg.Jupiter.APIKey,
	})

	tokens := loadTokens(ctx, cfg, jup)
	tokenA, err := resolveAsset(tokens, cfg.TokenA)
	if err != nil {
		return err
	}
	tokenB, err := resolveAsset(tokens, cfg.TokenB)
	if err != nil {
		return err
	}

	chain := solana.NewClient(&solana.ClientConfig{
		RPCURL:        cfg.PrimaryRPC(),
		WSURL:         cfg.WSRPC,
		WrapUnwrapSOL: cfg.WrapUnwrapSOL,
	})
	quoter := executor.NewJupiterQuoter(jup, cfg.OnlyDirectRoutes)

	var exec strategy.ExecutionClient
	if cfg.DryRun {
		exec = executor.NewDryRunExecutor()
	} else {
		var fee interface{}
		if cfg.PrioritizationFee != "" {
			fee = cfg.PrioritizationFee
		}
		exec, err = executor.NewSolanaExecutor(&executor.SolanaExecutorConfig{
			Jupiter:           jup,
			Chain:             chain,
			WrapUnwrapSOL:     cfg.WrapUnwrapSOL,
			PrioritizationFee: fee,
			Timeout:           cfg.GetSwapTimeout(),
		})
		if err != nil {
			return fmt.Errorf("create executor: %w", err)
		}
	}

	state, err := seedState(ctx, quoter, chain, wallet, tokenA, tokenB, cfg.TradeSize.Value, cfg.HistoryLimit, cfg.DryRun)
	if err != nil {
		return err
	}
	initial := state.Stats().InitialBalance

	format := reporter.FormatText
	if *outputFormat == "json" {
		format = reporter.FormatJSON
	}
	rep := reporter.NewReporter(os.Stdout, format, *verbose, 0)

	pp, err := strategy.NewPingPong(strategy.Config{
		TradeSize:              strategy.TradeSizeStrategy(cfg.TradeSize.Strategy),
		MinPercProfit:          cfg.MinPercProfit,
		SlippageBps:            cfg.SlippageBps(),
		StoreFailedTxInHistory: cfg.StoreFailedTxInHistory,
	}, tokenA, tokenB, wallet, strategy.Deps{
		State:    state,
		Quotes:   quoter,
		Executor: exec,
		Balances: chain,
		Sink:     rep,
	})
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	m := metrics.NewMetrics("")
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	slack := newSlackNotifier(cfg)
	wireCallbacks(pp, m, slack)

	sched := scheduler.NewScheduler(pp, cfg.GetMinInterval())
	if cfg.StatusCron != "" {
		err := sched.AddJob(cfg.StatusCron, func() {
			stats := state.Stats()
			inFlight := countIterations(state.IterationStatuses())
			log.Info().
				Uint64("iterations", stats.Iterations).
				Int("per_min", stats.IterationsPerMin).
				Stringer("side", stats.Side).
				Int("trades", stats.Trades).
				Str("profit_a", stats.CurrentProfit.TokenA.StringFixed(4)).
				Str("profit_b", stats.CurrentProfit.TokenB.StringFixed(4)).
				Int("pending", inFlight[strategy.IterationPending]).
				Int("quoted", inFlight[strategy.IterationQuoted]).
				Int("errored", inFlight[strategy.IterationErrored]).
				Msg("status")
			notify(func(ctx context.Context) error { return slack.NotifyStatus(ctx, stats, tokenA, tokenB) })
		})
		if err != nil {
			return err
		}
	}

	printConfig(cfg, wallet, tokenA, tokenB, initial.TokenA, initial.TokenB)
	notify(func(ctx context.Context) error {
		return slack.NotifyStartup(ctx, notifier.StartupInfo{
			Wallet:        wallet.ShortAddress(),
			TokenA:        tokenA,
			TokenB:        tokenB,
			TradeSize:     strategy.ToDecimal(initial.TokenA, tokenA.Decimals).String(),
			MinPercProfit: cfg.MinPercProfit,
			SlippageBps:   cfg.SlippageBps(),
			DryRun:        cfg.DryRun,
		})
	})

	// Run returns only after in-flight ticks have drained.
	runErr := sched.Run(ctx)

	rep.Close()
	rep.PrintSummary(state.Stats(), state.History(), tokenA, tokenB)

	if *historyCSV != "" {
		if err := exportHistory(*historyCSV, state.History()); err != nil {
			log.Error().Err(err).Str("path", *historyCSV).Msg("failed to export history")
		}
	}

	return runErr
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.LoadFromEnv()
		}
		return nil, err
	}
	return config.LoadFromFile(path)
}

// setupLogger configures the global zerolog logger.
func setupLogger(settings config.LogSettings) {
	level, err := zerolog.ParseLevel(strings.ToLower(settings.Level))
	if err != nil || settings.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if settings.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}

// loadTokens reads the cached token list, downloading and caching it when
// missing. Failures fall back to the built-in list.
func loadTokens(ctx context.Context, cfg *config.Config, jup *jupiter.Client) []jupiter.TokenInfo {
	if cfg.TokensFile != "" {
		if tokens, err := jupiter.LoadTokenFile(cfg.TokensFile); err == nil {
			log.Debug().Int("count", len(tokens)).Str("path", cfg.TokensFile).Msg("loaded token list")
			return tokens
		}
	}

	tokens, err := jup.FetchTokens(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch token list, using built-in tokens")
		return nil
	}

	if cfg.TokensFile != "" {
		if err := jupiter.SaveTokenFile(cfg.TokensFile, tokens); err != nil {
			log.Warn().Err(err).Msg("failed to cache token list")
		}
	}
	return tokens
}

func resolveAsset(tokens []jupiter.TokenInfo, ref config.TokenRef) (types.Asset, error) {
	if !solana.IsValidAddress(ref.Address) {
		return types.Asset{}, fmt.Errorf("invalid mint address %q", ref.Address)
	}
	info, ok := jupiter.FindToken(tokens, ref.Address)
	if !ok {
		return types.Asset{}, fmt.Errorf("unknown token %s: not in token list", ref.Address)
	}

	symbol := info.Symbol
	if ref.Symbol != "" {
		symbol = ref.Symbol
	}
	return types.Asset{
		Symbol:   symbol,
		Name:     info.Name,
		Address:  info.Mint,
		Decimals: info.Decimals,
	}, nil
}

func newSlackNotifier(cfg *config.Config) *notifier.SlackNotifier {
	return notifier.NewSlackNotifier(&notifier.SlackConfig{
		APIToken: cfg.Slack.APIToken,
		Channel:  cfg.Slack.Channel,
		Enabled:  cfg.Slack.Enabled,
	})
}

func wireCallbacks(pp *strategy.PingPong, m *metrics.Metrics, slack *notifier.SlackNotifier) {
	pp.OnQuote(m.RecordQuote)

	pp.OnSwap(func(entry types.TradeEntry, err error) {
		m.RecordSwap(entry, err)
		go notify(func(ctx context.Context) error { return slack.NotifySwap(ctx, entry, err) })
	})

	pp.OnCircuitBreaker(func(err *strategy.CircuitBreakerError) {
		m.RecordBreakerTrip(string(err.Breaker))
		notify(func(ctx context.Context) error {
			return slack.NotifyCircuitBreaker(ctx, notifier.BreakerAlert{
				Breaker: string(err.Breaker),
				Count:   err.Count,
				Limit:   err.Limit,
				Detail:  err.Detail,
			})
		})
	})

	pp.OnTickFinished(func(status strategy.IterationStatus, elapsed time.Duration) {
		m.RecordTick(status.String(), elapsed)
	})
}

// notify runs a Slack call with its own deadline and logs failures.
func notify(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to send slack notification")
	}
}

func exportHistory(path string, history []types.TradeEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return reporter.WriteHistoryCSV(f, history)
}

// printBanner prints the application banner.
func printBanner() {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║              Jupiter Ping-Pong Bot for Solana             ║")
	fmt.Println("║                                                           ║")
	fmt.Println("║   Swaps tokenA ⇄ tokenB whenever the round trip profits   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printConfig prints the current configuration.
func printConfig(cfg *config.Config, wallet *solana.Keypair, tokenA, tokenB types.Asset, initialA, initialB uint64) {
	fmt.Println("Configuration:")
	fmt.Printf("  - Wallet: %s\n", wallet.ShortAddress())
	fmt.Printf("  - Pair: %s (%s) / %s (%s)\n", tokenA.Symbol, tokenA.Address, tokenB.Symbol, tokenB.Address)
	fmt.Printf("  - Trade size: %s %s (%s)\n", strategy.ToDecimal(initialA, tokenA.Decimals), tokenA.Symbol, cfg.TradeSize.Strategy)
	fmt.Printf("  - Baseline: %s %s\n", strategy.ToDecimal(initialB, tokenB.Decimals), tokenB.Symbol)
	fmt.Printf("  - Min profit: %.4f%%\n", cfg.MinPercProfit)
	fmt.Printf("  - Slippage: %d bps\n", cfg.SlippageBps())
	fmt.Printf("  - Interval: %v\n", cfg.GetMinInterval())
	fmt.Printf("  - RPC: %s\n", cfg.PrimaryRPC())
	fmt.Printf("  - Dry run: %v\n", cfg.DryRun)
	fmt.Println()
}
