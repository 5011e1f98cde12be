package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/glossary"
	"github.com/Dclef/renpybox-sub001/internal/provider"
	"github.com/Dclef/renpybox-sub001/pkg/log"
)

const maxAttempts = 3

// Batch is one unit of dispatch work: a chunk of cache items plus the
// prompt built for them. Batches own disjoint item sets, so workers can
// write results without per-item locking.
type Batch struct {
	Items    []*cache.Item
	Messages []provider.Message
}

// Stats aggregates one dispatch round.
type Stats struct {
	Completed    int
	Failed       int
	Blocked      int
	Skipped      int
	InputTokens  int
	OutputTokens int
	NewTerms     []glossary.Term
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeBlocked
	outcomeSkipped
)

// Dispatcher fans batches out to one provider with a fixed worker pool.
type Dispatcher struct {
	prov    provider.Provider
	limiter *Limiter
	workers int
	stopped func() bool
	backoff func(attempt int) time.Duration
}

func New(prov provider.Provider, limiter *Limiter, workers int, stopped func() bool) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if stopped == nil {
		stopped = func() bool { return false }
	}
	return &Dispatcher{
		prov:    prov,
		limiter: limiter,
		workers: workers,
		stopped: stopped,
		backoff: retryBackoff,
	}
}

func retryBackoff(attempt int) time.Duration {
	return time.Duration(min(1<<(attempt-1), 5)) * time.Second
}

// Run processes all batches and merges results into the items in place.
// Batch failures are contained: a failed batch echoes its source texts
// and the round continues.
func (d *Dispatcher) Run(ctx context.Context, batches []Batch) Stats {
	var (
		mu    sync.Mutex
		stats Stats
		done  int
	)

	g := &errgroup.Group{}
	g.SetLimit(d.workers)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			out, res, terms := d.runBatch(ctx, b)

			mu.Lock()
			switch out {
			case outcomeCompleted:
				stats.Completed++
			case outcomeFailed:
				stats.Failed++
			case outcomeBlocked:
				stats.Blocked++
			case outcomeSkipped:
				stats.Skipped++
			}
			stats.InputTokens += res.InputTokens
			stats.OutputTokens += res.OutputTokens
			stats.NewTerms = append(stats.NewTerms, terms...)
			done++
			log.Info("batch %d/%d done (%d items)", done, len(batches), len(b.Items))
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return stats
}

func (d *Dispatcher) runBatch(ctx context.Context, b Batch) (outcome, provider.Result, []glossary.Term) {
	if d.stopped() {
		echo(b.Items)
		return outcomeSkipped, provider.Result{}, nil
	}

	res, ok := d.request(ctx, b.Messages)
	if !ok {
		echo(b.Items)
		return outcomeFailed, res, nil
	}
	if res.Blocked {
		log.Warn("batch blocked by provider content filter (%d items)", len(b.Items))
		echo(b.Items)
		return outcomeBlocked, res, nil
	}

	payload, err := ExtractPayload(res.Answer)
	if err != nil {
		log.Warn("undecodable batch answer: %v", err)
		echo(b.Items)
		return outcomeFailed, res, nil
	}
	if len(payload.Translations) != len(b.Items) {
		log.Warn("translation count mismatch: want %d, got %d", len(b.Items), len(payload.Translations))
		echo(b.Items)
		return outcomeFailed, res, nil
	}

	for i, item := range b.Items {
		item.Dst = payload.Translations[i]
		item.Status = cache.StatusTranslated
	}
	return outcomeCompleted, res, payload.Glossary
}

// request runs the attempt loop. The stop signal is polled before every
// attempt; failures are logged and retried with capped exponential
// backoff.
func (d *Dispatcher) request(ctx context.Context, messages []provider.Message) (provider.Result, bool) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if d.stopped() || ctx.Err() != nil {
			return provider.Result{}, false
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return provider.Result{}, false
			}
		}

		res, err := d.prov.Request(ctx, messages)
		switch {
		case err == nil && res.Blocked:
			return res, true
		case err == nil && res.Answer != "":
			return res, true
		case err == nil:
			log.Warn("empty answer on attempt %d/%d", attempt, maxAttempts)
		default:
			log.Warn("request attempt %d/%d failed: %v", attempt, maxAttempts, err)
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return provider.Result{}, false
			case <-time.After(d.backoff(attempt)):
			}
		}
	}
	return provider.Result{}, false
}

// echo writes each item's source as its translation so a failed batch
// still moves forward and stays visible to the auditor.
func echo(items []*cache.Item) {
	for _, item := range items {
		item.Dst = item.Src
		item.Status = cache.StatusTranslated
		item.RetryCount++
	}
}
