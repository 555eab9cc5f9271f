package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/pevans/sleuth"
	"github.com/pevans/sleuth/config"
)

func handleBatch(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	force := fs.Bool("force", false, "Bypass the cache and re-discover every domain")
	resume := fs.Bool("resume", false, "Resume the existing queue without enqueueing new URLs")
	fs.Parse(args)

	if !*resume && fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: URL file is required\n")
		fmt.Fprintf(os.Stderr, "Usage: sleuth batch [--force] <url-file>\n")
		fmt.Fprintf(os.Stderr, "       sleuth batch --resume\n")
		os.Exit(1)
	}

	queue, err := sleuth.NewTaskQueue(cfg.QueueDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open task queue: %v\n", err)
		os.Exit(1)
	}
	defer queue.Close()

	if !*resume {
		enqueued, err := enqueueFile(queue, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Enqueued %d URLs\n", enqueued)
	}

	pipeline, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	results, err := pipeline.ProcessQueue(ctx, queue, *force)
	if err != nil && len(results) == 0 {
		fmt.Fprintf(os.Stderr, "Error: batch run failed: %v\n", err)
		os.Exit(1)
	}

	printBatchReport(results)

	counts, countErr := queue.Counts()
	if countErr == nil && counts[sleuth.TaskPending] > 0 {
		fmt.Printf("\n%d tasks still pending; run 'sleuth batch --resume' to continue.\n",
			counts[sleuth.TaskPending])
	}

	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}

// enqueueFile reads one URL per line, skipping blanks and # comments.
func enqueueFile(queue *sleuth.TaskQueue, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer f.Close()

	enqueued := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := queue.Enqueue(line); err != nil {
			return enqueued, fmt.Errorf("failed to enqueue %q: %w", line, err)
		}
		enqueued++
	}
	if err := scanner.Err(); err != nil {
		return enqueued, fmt.Errorf("failed to read URL file: %w", err)
	}
	return enqueued, nil
}
