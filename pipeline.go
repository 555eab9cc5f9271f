package sleuth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Pipeline wires the stages together: cache check, fetch, optional feed
// resolution, cleaning, discovery, verification, persistence. It owns no
// policy of its own beyond stage ordering; fetching and discovery behavior
// live behind their interfaces.
type Pipeline struct {
	Fetcher    Fetcher
	Discoverer Discoverer
	Cache      *CacheStore
	Usage      *UsageStore
	Retry      RetryPolicy
	Workers    int
	Logger     *zap.Logger
}

// Result is the outcome of processing one URL. Err is set when the run
// failed; Stage then says which stage is to blame.
type Result struct {
	URL       string        `json:"url"`
	Domain    string        `json:"domain"`
	Set       *SelectorSet  `json:"selectors,omitempty"`
	FromCache bool          `json:"from_cache"`
	Strategy  FetchStrategy `json:"strategy,omitempty"`
	Usage     TokenUsage    `json:"token_usage"`
	Err       error         `json:"-"`
	Stage     Stage         `json:"failed_stage,omitempty"`
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Pipeline) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}

// ProcessURL runs the full pipeline for one URL. With force false, a cached
// entry for the URL's domain short-circuits the run before any network
// traffic; with force true the cache is bypassed and the fresh result
// overwrites the stored entry.
func (p *Pipeline) ProcessURL(ctx context.Context, rawURL string, force bool) *Result {
	log := p.logger()

	domain, err := DomainFromURL(rawURL)
	if err != nil {
		return &Result{URL: rawURL, Err: err}
	}
	res := &Result{URL: rawURL, Domain: domain}

	if !force {
		cached, err := p.Cache.Load(domain)
		if err != nil {
			return p.fail(res, err)
		}
		if cached != nil {
			log.Info("cache hit", zap.String("domain", domain))
			res.Set = cached
			res.FromCache = true
			return res
		}
	}

	// Accounting failures are logged, never fatal: losing a counter must not
	// cost a discovery run.
	if p.Usage != nil {
		if err := p.Usage.RecordAttempt(domain); err != nil {
			log.Warn("failed to record attempt", zap.String("domain", domain), zap.Error(err))
		}
	}

	fetched, err := p.fetch(ctx, rawURL)
	if err != nil {
		return p.fail(res, err)
	}

	// A feed URL resolves to its most recent linked article, which is then
	// fetched like any other page. The article's domain takes over as the
	// cache key; feed and site hosts can differ.
	if fetched.IsFeed {
		articleURL, err := ResolveFeedEntry(fetched.HTML)
		if err != nil {
			return p.fail(res, &FetchError{Kind: FetchUnfetchable, URL: rawURL, Err: err})
		}
		log.Info("feed resolved",
			zap.String("feed", rawURL),
			zap.String("article", articleURL))

		articleDomain, err := DomainFromURL(articleURL)
		if err != nil {
			return p.fail(res, err)
		}
		res.Domain = articleDomain
		domain = articleDomain

		if !force {
			cached, err := p.Cache.Load(domain)
			if err != nil {
				return p.fail(res, err)
			}
			if cached != nil {
				log.Info("cache hit after feed resolution", zap.String("domain", domain))
				res.Set = cached
				res.FromCache = true
				return res
			}
		}

		fetched, err = p.fetch(ctx, articleURL)
		if err != nil {
			return p.fail(res, err)
		}
		if fetched.IsFeed {
			return p.fail(res, &FetchError{
				Kind: FetchUnfetchable,
				URL:  articleURL,
				Err:  fmt.Errorf("feed entry resolved to another feed"),
			})
		}
	}
	res.Strategy = fetched.Strategy

	cleaned, err := Clean(fetched.HTML)
	if err != nil {
		return p.fail(res, fmt.Errorf("failed to clean HTML: %w", err))
	}

	candidates, usage, err := p.discover(ctx, fetched.FinalURL, cleaned)
	res.Usage = usage
	if err != nil {
		return p.fail(res, err)
	}

	set := BuildSelectorSet(domain, fetched.FinalURL, candidates)

	// Verification runs against the same raw HTML discovery saw; re-fetching
	// here would let the page change between proposal and proof.
	if err := Verify(fetched.HTML, set); err != nil {
		return p.fail(res, err)
	}

	if err := p.Cache.Save(domain, set); err != nil {
		return p.fail(res, err)
	}

	if p.Usage != nil {
		if err := p.Usage.RecordSuccess(domain, usage.Prompt, usage.Completion); err != nil {
			log.Warn("failed to record success", zap.String("domain", domain), zap.Error(err))
		}
	}

	log.Info("selectors discovered",
		zap.String("domain", domain),
		zap.Strings("working_fields", set.WorkingFields()),
		zap.String("strategy", string(fetched.Strategy)))

	res.Set = set
	return res
}

// fetch runs the fetcher under the retry policy.
func (p *Pipeline) fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	var result *FetchResult
	err := p.Retry.Do(ctx, p.logger(), "fetch", func() error {
		var err error
		result, err = p.Fetcher.Fetch(ctx, rawURL)
		return err
	})
	return result, err
}

// discover runs the discoverer under the retry policy, accumulating token
// cost across attempts: failed calls still bill.
func (p *Pipeline) discover(ctx context.Context, url, cleanedHTML string) (CandidateSet, TokenUsage, error) {
	var (
		candidates CandidateSet
		total      TokenUsage
	)
	err := p.Retry.Do(ctx, p.logger(), "discover", func() error {
		set, usage, err := p.Discoverer.Discover(ctx, url, cleanedHTML)
		total.Prompt += usage.Prompt
		total.Completion += usage.Completion
		if err != nil {
			return err
		}
		candidates = set
		return nil
	})
	return candidates, total, err
}

func (p *Pipeline) fail(res *Result, err error) *Result {
	res.Err = err
	res.Stage = ErrorStage(err)
	p.logger().Error("pipeline run failed",
		zap.String("url", res.URL),
		zap.String("stage", string(res.Stage)),
		zap.Error(err))
	return res
}

// ProcessBatch runs the pipeline over a set of URLs with bounded
// concurrency. Results come back in input order; per-URL failures are
// carried in Result.Err rather than aborting the batch. Context
// cancellation stops feeding new URLs but lets in-flight ones finish.
func (p *Pipeline) ProcessBatch(ctx context.Context, urls []string, force bool) []Result {
	results := make([]Result, len(urls))

	type job struct {
		index int
		url   string
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < p.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = *p.ProcessURL(ctx, j.url, force)
			}
		}()
	}

	for i, u := range urls {
		select {
		case jobs <- job{index: i, url: u}:
		case <-ctx.Done():
			for k := i; k < len(urls); k++ {
				results[k] = Result{URL: urls[k], Err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return results
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// ProcessQueue drains a task queue: recover orphans, then claim and process
// until no pending work remains. Completed and failed tasks are finalized in
// the queue so an interrupted run resumes cleanly.
func (p *Pipeline) ProcessQueue(ctx context.Context, queue *TaskQueue, force bool) ([]Result, error) {
	if err := queue.Recover(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []Result
	)

	var wg sync.WaitGroup
	for i := 0; i < p.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				task, err := queue.Claim()
				if err != nil {
					p.logger().Error("failed to claim task", zap.Error(err))
					return
				}
				if task == nil {
					return // drained
				}

				res := p.ProcessURL(ctx, task.URL, force)

				// Cancellation is not a verdict on the task. Leave it
				// in_progress so the next run's Recover makes it claimable
				// again instead of permanently failing it.
				if res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
					mu.Lock()
					results = append(results, *res)
					mu.Unlock()
					return
				}

				var finishErr error
				if res.Err != nil {
					finishErr = queue.MarkFailed(task.ID, res.Err)
				} else {
					finishErr = queue.MarkCompleted(task.ID)
				}
				if finishErr != nil {
					p.logger().Error("failed to finalize task",
						zap.String("url", task.URL), zap.Error(finishErr))
				}

				mu.Lock()
				results = append(results, *res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return results, ctx.Err()
}
