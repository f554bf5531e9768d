package search

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamhub/work/aggregate"
	"streamhub/work/config"
	"streamhub/work/provider"
	"streamhub/work/types"
)

// fakeProvider is a scripted provider for fan-out tests.
type fakeProvider struct {
	key     string
	results []types.SearchResult
	err     error
	delay   time.Duration
}

func (f *fakeProvider) Key() string            { return f.key }
func (f *fakeProvider) Name() string           { return "Fake " + f.key }
func (f *fakeProvider) Timeout() time.Duration { return 2 * time.Second }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// recordSink captures every event in arrival order.
type recordSink struct {
	mu     sync.Mutex
	events []any
	closed bool
}

func (s *recordSink) Send(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func newTestCoordinator(t *testing.T, cfg *config.Config) *Coordinator {
	t.Helper()
	pool, err := ants.NewPool(8)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return NewCoordinator(cfg, pool, aggregate.NewKeywordFilter(cfg.Blocklist))
}

func testConfig() *config.Config {
	return &config.Config{MaxResultsPerSource: 50, ContentFilterOn: true}
}

func resultsNamed(source string, count int) []types.SearchResult {
	results := make([]types.SearchResult, count)
	for i := range results {
		results[i] = types.SearchResult{
			Source:   source,
			Title:    fmt.Sprintf("Title %d", i),
			Year:     "2024",
			Episodes: []string{"http://example.com/ep1"},
		}
	}
	return results
}

func TestSearchEventSequence(t *testing.T) {
	c := newTestCoordinator(t, testConfig())
	sink := &recordSink{}

	providers := []provider.Provider{
		&fakeProvider{key: "a", results: resultsNamed("a", 2)},
		&fakeProvider{key: "b", results: resultsNamed("b", 3)},
	}

	err := c.Search(context.Background(), "query", providers, sink)
	require.NoError(t, err)

	require.Len(t, sink.events, 4) // start + 2 terminals + complete
	assert.True(t, sink.closed)

	start, ok := sink.events[0].(types.StartEvent)
	require.True(t, ok, "first event must be start")
	assert.Equal(t, "start", start.Type)
	assert.Equal(t, 2, start.TotalSources)
	assert.Equal(t, "query", start.Query)

	complete, ok := sink.events[len(sink.events)-1].(types.CompleteEvent)
	require.True(t, ok, "last event must be complete")
	assert.Equal(t, 5, complete.TotalResults)
	assert.Equal(t, 2, complete.CompletedSources)
}

func TestSearchExactlyOneTerminalEventPerProvider(t *testing.T) {
	c := newTestCoordinator(t, testConfig())
	sink := &recordSink{}

	providers := []provider.Provider{
		&fakeProvider{key: "ok", results: resultsNamed("ok", 1)},
		&fakeProvider{key: "dead", err: fmt.Errorf("connection refused")},
		&fakeProvider{key: "slow", results: resultsNamed("slow", 1), delay: 50 * time.Millisecond},
	}

	err := c.Search(context.Background(), "query", providers, sink)
	require.NoError(t, err)

	terminals := make(map[string]int)
	for _, event := range sink.events {
		switch ev := event.(type) {
		case types.SourceResultEvent:
			terminals[ev.Source]++
		case types.SourceErrorEvent:
			terminals[ev.Source]++
		}
	}

	require.Len(t, terminals, 3)
	for source, count := range terminals {
		assert.Equal(t, 1, count, "source %s must settle exactly once", source)
	}
}

func TestSearchProviderFailureDoesNotAbortSiblings(t *testing.T) {
	c := newTestCoordinator(t, testConfig())
	sink := &recordSink{}

	providers := []provider.Provider{
		&fakeProvider{key: "dead", err: fmt.Errorf("boom")},
		&fakeProvider{key: "alive", results: resultsNamed("alive", 4)},
	}

	err := c.Search(context.Background(), "query", providers, sink)
	require.NoError(t, err)

	var gotError, gotResult bool
	for _, event := range sink.events {
		switch ev := event.(type) {
		case types.SourceErrorEvent:
			assert.Equal(t, "dead", ev.Source)
			assert.Contains(t, ev.Error, "boom")
			gotError = true
		case types.SourceResultEvent:
			assert.Equal(t, "alive", ev.Source)
			assert.Len(t, ev.Results, 4)
			gotResult = true
		}
	}
	assert.True(t, gotError)
	assert.True(t, gotResult)

	complete := sink.events[len(sink.events)-1].(types.CompleteEvent)
	assert.Equal(t, 4, complete.TotalResults)
	assert.Equal(t, 2, complete.CompletedSources)
}

func TestSearchAllProvidersFailStillCompletes(t *testing.T) {
	c := newTestCoordinator(t, testConfig())
	sink := &recordSink{}

	providers := []provider.Provider{
		&fakeProvider{key: "a", err: fmt.Errorf("down")},
		&fakeProvider{key: "b", err: fmt.Errorf("down")},
	}

	err := c.Search(context.Background(), "query", providers, sink)
	require.NoError(t, err)

	complete := sink.events[len(sink.events)-1].(types.CompleteEvent)
	assert.Equal(t, 0, complete.TotalResults)
	assert.Equal(t, 2, complete.CompletedSources)
	assert.True(t, sink.closed)
}

func TestSearchTruncatesPerProviderResults(t *testing.T) {
	cfg := testConfig()
	cfg.MaxResultsPerSource = 50
	c := newTestCoordinator(t, cfg)
	sink := &recordSink{}

	providers := []provider.Provider{
		&fakeProvider{key: "noisy", results: resultsNamed("noisy", 120)},
	}

	err := c.Search(context.Background(), "query", providers, sink)
	require.NoError(t, err)

	for _, event := range sink.events {
		if ev, ok := event.(types.SourceResultEvent); ok {
			assert.Len(t, ev.Results, 50)
		}
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c := newTestCoordinator(t, testConfig())
	sink := &recordSink{}

	err := c.Search(context.Background(), "   ", []provider.Provider{&fakeProvider{key: "a"}}, sink)
	assert.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestSearchAllGroupsResults(t *testing.T) {
	c := newTestCoordinator(t, testConfig())

	shared := types.SearchResult{Title: "Same Show", Year: "2020", Episodes: []string{"http://a/1", "http://a/2"}}
	other := shared
	other.Source = "b"
	other.SourceName = "B"
	shared.Source = "a"
	shared.SourceName = "A"

	providers := []provider.Provider{
		&fakeProvider{key: "a", results: []types.SearchResult{shared}},
		&fakeProvider{key: "b", results: []types.SearchResult{other}},
	}

	groups, err := c.SearchAll(context.Background(), "same show", providers)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 2)
	assert.ElementsMatch(t, []string{"A", "B"}, groups[0].SourceNames)
}

func TestEventStreamWritesSSEFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/search/stream?q=x", nil)

	stream, err := NewEventStream(rec, req)
	require.NoError(t, err)

	require.NoError(t, stream.Send(types.StartEvent{Type: "start", TotalSources: 1, Query: "x"}))
	stream.Close()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "), "frames must be data-prefixed")
	assert.True(t, strings.HasSuffix(body, "\n\n"), "frames must be double-newline terminated")
	assert.Contains(t, body, `"totalSources":1`)
}

func TestEventStreamDropsWritesAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/search/stream?q=x", nil)

	stream, err := NewEventStream(rec, req)
	require.NoError(t, err)

	stream.Close()
	before := rec.Body.Len()

	require.NoError(t, stream.Send(types.CompleteEvent{Type: "complete"}))
	assert.Equal(t, before, rec.Body.Len(), "post-close writes must be silent no-ops")

	// close is idempotent
	stream.Close()
}
