package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"streamhub/work/aggregate"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/provider"
	"streamhub/work/types"
)

// Coordinator fans one query out to every enabled provider concurrently and
// streams events to the caller as each provider settles. Providers arrive
// through the constructor, not a global registry; the set queried for one
// search is frozen at dispatch time.
type Coordinator struct {
	cfg        *config.Config
	workerPool *ants.Pool
	filter     *aggregate.KeywordFilter
}

// NewCoordinator wires the fan-out coordinator.
func NewCoordinator(cfg *config.Config, workerPool *ants.Pool, filter *aggregate.KeywordFilter) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		workerPool: workerPool,
		filter:     filter,
	}
}

// Search dispatches one call per provider, all concurrent, each bounded by
// the provider's own deadline. The event sequence is: start (with the total
// source count), exactly one source_result or source_error per provider in
// arbitrary interleaving, then a single complete once every provider has
// settled. Provider failures become source_error events and never abort
// siblings; a search where every provider fails still completes normally
// with zero results.
func (c *Coordinator) Search(ctx context.Context, query string, providers []provider.Provider, sink Sink) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("empty query")
	}
	if len(providers) == 0 {
		return errors.New("no providers to query")
	}

	total := len(providers)
	logger.Debug("{search/coordinator - Search} dispatching %q to %d sources", query, total)

	if err := sink.Send(types.StartEvent{Type: "start", TotalSources: total, Query: query}); err != nil {
		return err
	}
	metrics.SearchEvents.WithLabelValues("start").Inc()

	var (
		wg           sync.WaitGroup
		totalResults atomic.Int64
		completed    atomic.Int64
	)

	for _, prov := range providers {
		prov := prov
		wg.Add(1)

		task := func() {
			defer wg.Done()
			defer completed.Add(1)

			callCtx, cancel := context.WithTimeout(ctx, prov.Timeout())
			defer cancel()

			results, err := prov.Search(callCtx, query)
			if err != nil {
				logger.Debug("{search/coordinator - Search} %s failed: %v", prov.Key(), err)
				sink.Send(types.SourceErrorEvent{
					Type:       "source_error",
					Source:     prov.Key(),
					SourceName: prov.Name(),
					Error:      err.Error(),
				})
				metrics.SearchEvents.WithLabelValues("source_error").Inc()
				return
			}

			results = c.filter.Filter(results, c.cfg.ContentFilterOn)

			// one noisy provider must not dominate downstream rendering
			if len(results) > c.cfg.MaxResultsPerSource {
				results = results[:c.cfg.MaxResultsPerSource]
			}

			totalResults.Add(int64(len(results)))
			sink.Send(types.SourceResultEvent{
				Type:       "source_result",
				Source:     prov.Key(),
				SourceName: prov.Name(),
				Results:    results,
			})
			metrics.SearchEvents.WithLabelValues("source_result").Inc()
		}

		// the shared pool bounds process-wide concurrency; if it is
		// saturated the search still must not deadlock, so fall back to a
		// plain goroutine
		if err := c.workerPool.Submit(task); err != nil {
			go task()
		}
	}

	wg.Wait()

	err := sink.Send(types.CompleteEvent{
		Type:             "complete",
		TotalResults:     int(totalResults.Load()),
		CompletedSources: int(completed.Load()),
	})
	metrics.SearchEvents.WithLabelValues("complete").Inc()
	sink.Close()

	logger.Debug("{search/coordinator - Search} complete: %d results from %d sources", totalResults.Load(), completed.Load())
	return err
}

// SearchAll runs the same fan-out but collects everything into memory and
// returns the filtered, grouped payload in one shot. This is the
// non-streaming search surface; it reuses the streaming path through an
// in-memory sink so both endpoints share identical semantics.
func (c *Coordinator) SearchAll(ctx context.Context, query string, providers []provider.Provider) ([]types.AggregateGroup, error) {
	sink := &collectSink{}
	if err := c.Search(ctx, query, providers, sink); err != nil {
		return nil, err
	}
	return aggregate.GroupAndAggregate(sink.results), nil
}

// collectSink gathers source_result payloads in memory. Arrival order of
// providers is preserved, which keeps group ordering stable for one
// session.
type collectSink struct {
	mu      sync.Mutex
	results []types.SearchResult
}

func (s *collectSink) Send(event any) error {
	if ev, ok := event.(types.SourceResultEvent); ok {
		s.mu.Lock()
		s.results = append(s.results, ev.Results...)
		s.mu.Unlock()
	}
	return nil
}

func (s *collectSink) Close() {}
