package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pevans/sleuth"
)

// stageName renders an error stage for humans; unattributed errors get a
// generic label.
func stageName(stage sleuth.Stage) string {
	if stage == "" {
		return "pipeline"
	}
	return string(stage)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// printSelectorTable renders one selector set: each field, its working tier
// and the selector that verified, with unverified candidates shown dimly as
// dashes.
func printSelectorTable(set *sleuth.SelectorSet) {
	fmt.Printf("\n%-16s %-10s %s\n", "FIELD", "TIER", "SELECTOR")
	fmt.Println(strings.Repeat("-", 70))
	for _, field := range sleuth.Fields() {
		fs := set.Selectors[field]
		if working := fs.Working(); working != nil {
			fmt.Printf("%-16s %-10s %s\n", field, fs.WorkingPriority, *working)
		} else {
			fmt.Printf("%-16s %-10s -\n", field, "none")
		}
	}

	verified := len(set.WorkingFields())
	fmt.Printf("\n%d/%d fields verified against %s\n", verified, len(sleuth.Fields()), set.SourceURL)
}

// printSelectorJSON writes the persisted cache shape to stdout.
func printSelectorJSON(set *sleuth.SelectorSet) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode selectors: %v\n", err)
		os.Exit(1)
	}
}

// printBatchReport summarizes a batch run: one line per URL, then totals.
func printBatchReport(results []sleuth.Result) {
	if len(results) == 0 {
		fmt.Println("Nothing to process.")
		return
	}

	var succeeded, fromCache, failed int
	var promptTokens, completionTokens int

	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("✗ %s (%s: %v)\n", r.URL, stageName(r.Stage), r.Err)
		case r.FromCache:
			fromCache++
			succeeded++
			fmt.Printf("✓ %s (cached)\n", r.URL)
		default:
			succeeded++
			fmt.Printf("✓ %s (%d fields working)\n", r.URL, len(r.Set.WorkingFields()))
		}
		promptTokens += r.Usage.Prompt
		completionTokens += r.Usage.Completion
	}

	fmt.Printf("\nProcessed %d URLs: %d succeeded (%d cached), %d failed\n",
		len(results), succeeded, fromCache, failed)
	if promptTokens+completionTokens > 0 {
		fmt.Printf("Token usage: %d prompt, %d completion\n", promptTokens, completionTokens)
	}
}
