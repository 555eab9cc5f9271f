package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/sleuth"
	"github.com/pevans/sleuth/config"
)

func handleSummary(cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	fs.Parse(args)

	cache, err := sleuth.NewCacheStore(cfg.CacheDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open selector cache: %v\n", err)
		os.Exit(1)
	}

	summary, err := cache.Summarize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to summarize cache: %v\n", err)
		os.Exit(1)
	}

	if summary.TotalDomains == 0 {
		fmt.Println("No cached selectors yet.")
		return
	}

	fmt.Printf("Cached domains: %d\n\n", summary.TotalDomains)

	fmt.Println("Field coverage:")
	for _, field := range sleuth.Fields() {
		fmt.Printf("  %-16s %d/%d\n", field, summary.FieldCoverage[field], summary.TotalDomains)
	}
	fmt.Println()

	fmt.Printf("%-30s %-20s %s\n", "DOMAIN", "DISCOVERED", "WORKING FIELDS")
	fmt.Println(strings.Repeat("-", 80))
	for _, d := range summary.Domains {
		fmt.Printf("%-30s %-20s %s\n",
			truncate(d.Domain, 30),
			d.DiscoveredAt.Format("2006-01-02 15:04"),
			strings.Join(d.WorkingFields, ", "))
	}
}

func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	usage, err := sleuth.NewUsageStore(cfg.StatsDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open usage store: %v\n", err)
		os.Exit(1)
	}
	defer usage.Close()

	all, err := usage.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list usage: %v\n", err)
		os.Exit(1)
	}

	if len(all) == 0 {
		fmt.Println("No usage recorded yet.")
		return
	}

	var totalPrompt, totalCompletion int
	fmt.Printf("%-30s %8s %12s %12s  %s\n", "DOMAIN", "ATTEMPTS", "PROMPT TOK", "COMPL TOK", "LAST SUCCESS")
	fmt.Println(strings.Repeat("-", 90))
	for _, u := range all {
		lastSuccess := "never"
		if u.LastSuccessAt != nil {
			lastSuccess = u.LastSuccessAt.Format(time.RFC3339)
		}
		fmt.Printf("%-30s %8d %12d %12d  %s\n",
			truncate(u.Domain, 30), u.Attempts, u.PromptTokens, u.CompletionTokens, lastSuccess)
		totalPrompt += u.PromptTokens
		totalCompletion += u.CompletionTokens
	}
	fmt.Println(strings.Repeat("-", 90))
	fmt.Printf("%-30s %8s %12d %12d\n", "TOTAL", "", totalPrompt, totalCompletion)
}
