package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/sleuth"
	"github.com/pevans/sleuth/config"
	"github.com/pevans/sleuth/discover"
	"github.com/pevans/sleuth/fetch"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := buildLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := signalContext()

	subcommand := os.Args[1]
	switch subcommand {
	case "discover":
		handleDiscover(ctx, cfg, logger, os.Args[2:])
	case "batch":
		handleBatch(ctx, cfg, logger, os.Args[2:])
	case "summary":
		handleSummary(cfg, logger, os.Args[2:])
	case "stats":
		handleStats(cfg, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

// buildLogger sends structured logs to stderr so stdout stays clean for
// command output. SLEUTH_DEBUG=1 enables debug level.
func buildLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if os.Getenv("SLEUTH_DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so in-flight
// work can wind down instead of dying mid-write.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}

// buildPipeline assembles the full production pipeline from configuration.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*sleuth.Pipeline, func(), error) {
	if cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured; set SLEUTH_OPENAI_API_KEY or OPENAI_API_KEY")
	}

	cache, err := sleuth.NewCacheStore(cfg.CacheDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open selector cache: %w", err)
	}

	usage, err := sleuth.NewUsageStore(cfg.StatsDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open usage store: %w", err)
	}

	politeness := fetch.NewPoliteness(cfg.PolitenessInterval, cfg.PolitenessInterval/2)
	simple := fetch.NewSimpleFetcher(cfg.SimpleTimeout, politeness, logger)

	var browser sleuth.Fetcher
	if !cfg.DisableBrowser {
		browser = fetch.NewBrowserFetcher(cfg.BrowserTimeout, logger)
	}
	waterfall := fetch.NewWaterfall(simple, browser, logger)

	agent, err := discover.NewAgent(discover.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.ModelBaseURL,
	}, logger)
	if err != nil {
		usage.Close()
		return nil, nil, err
	}

	pipeline := &sleuth.Pipeline{
		Fetcher:    waterfall,
		Discoverer: agent,
		Cache:      cache,
		Usage:      usage,
		Retry:      sleuth.DefaultRetryPolicy(),
		Workers:    cfg.Workers,
		Logger:     logger,
	}
	cleanup := func() { usage.Close() }
	return pipeline, cleanup, nil
}

func printUsage() {
	fmt.Println("sleuth - CSS selector discovery for news sites")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sleuth <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  discover   Discover selectors for a single URL")
	fmt.Println("  batch      Process a file of URLs through the resumable queue")
	fmt.Println("  summary    Show cached selectors across all domains")
	fmt.Println("  stats      Show per-domain usage and token accounting")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  SLEUTH_OPENAI_API_KEY   API key for the model provider (or OPENAI_API_KEY)")
	fmt.Println("  SLEUTH_MODEL            Model name override")
	fmt.Println("  SLEUTH_MODEL_BASE_URL   OpenAI-compatible endpoint override")
	fmt.Println("  SLEUTH_CACHE_DIR        Selector cache directory (default: ~/.sleuth/selectors)")
	fmt.Println("  SLEUTH_DEBUG            Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.sleuth/config.yaml")
}
