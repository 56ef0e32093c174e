package stats

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DispatchFunc performs one dispatch and reports its outcome. The runner
// times the call itself, so implementations only return what they saw.
type DispatchFunc func(ctx context.Context) (status int, bodyBytes int64, err error)

// RunConfig controls a repeated run.
type RunConfig struct {
	// Count is the total number of dispatches. Zero or negative runs nothing.
	Count int
	// Rate caps dispatch starts per second. Zero means unpaced.
	Rate float64
	// Concurrency caps in-flight dispatches. Zero means one at a time.
	Concurrency int
}

// Run dispatches cfg.Count times, pacing starts with a token bucket when a
// rate is set and bounding parallelism with a semaphore. Cancelling ctx
// stops launching new dispatches; the summary then covers what completed
// and the context's error is returned alongside it.
func Run(ctx context.Context, cfg RunConfig, dispatch DispatchFunc) (Summary, error) {
	collector := NewCollector()
	collector.Start()

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var runErr error

	for i := 0; i < cfg.Count; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if runErr != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			status, bodyBytes, err := dispatch(ctx)
			collector.Record(status, bodyBytes, time.Since(start), err)
		}()
	}

	wg.Wait()
	collector.Stop()
	return collector.Summary(), runErr
}
