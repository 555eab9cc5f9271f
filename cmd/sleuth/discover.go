package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/pevans/sleuth/config"
)

func handleDiscover(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	force := fs.Bool("force", false, "Bypass the cache and re-discover even if selectors exist")
	asJSON := fs.Bool("json", false, "Print the selector set as JSON")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: URL is required\n")
		fmt.Fprintf(os.Stderr, "Usage: sleuth discover [--force] [--json] <url>\n")
		os.Exit(1)
	}
	url := fs.Arg(0)

	pipeline, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	result := pipeline.ProcessURL(ctx, url, *force)
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s stage failed: %v\n", stageName(result.Stage), result.Err)
		os.Exit(1)
	}

	if *asJSON {
		printSelectorJSON(result.Set)
		return
	}

	if result.FromCache {
		fmt.Printf("✓ Cached selectors for %s\n", result.Domain)
	} else {
		fmt.Printf("✓ Discovered selectors for %s (strategy: %s, tokens: %d prompt / %d completion)\n",
			result.Domain, result.Strategy, result.Usage.Prompt, result.Usage.Completion)
	}
	printSelectorTable(result.Set)
}
