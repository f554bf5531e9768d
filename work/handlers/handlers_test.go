package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamhub/work/adfilter"
	"streamhub/work/aggregate"
	"streamhub/work/buffer"
	"streamhub/work/cache"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/prober"
	"streamhub/work/provider"
	"streamhub/work/proxy"
	"streamhub/work/search"
)

func newTestHandlers(t *testing.T, cfg *config.Config) *Handlers {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	httpClient := client.NewHeaderSettingClient(cfg)
	cacheInstance := cache.New(time.Minute, cfg.CacheEnabled)
	coordinator := search.NewCoordinator(cfg, pool, aggregate.NewKeywordFilter(cfg.Blocklist))

	return NewHandlers(cfg, coordinator,
		prober.NewProber(cfg, httpClient, pool),
		adfilter.NewRelay(cfg, httpClient, nil),
		proxy.NewProxy(cfg, httpClient, buffer.NewPool(32*1024)),
		cacheInstance, nil,
		func() []provider.Provider { return nil })
}

func testHandlerConfig() *config.Config {
	return &config.Config{
		UserAgent:           "test-agent",
		MaxResultsPerSource: 50,
		AdFilterDefault:     true,
	}
}

func TestHandleSearchStreamRejectsMissingQuery(t *testing.T) {
	h := newTestHandlers(t, testHandlerConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/search/stream", nil)
	rec := httptest.NewRecorder()

	h.HandleSearchStream(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing query")
}

func TestHandleSearchRejectsMissingQuery(t *testing.T) {
	h := newTestHandlers(t, testHandlerConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()

	h.HandleSearch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSelectValidation(t *testing.T) {
	h := newTestHandlers(t, testHandlerConfig())

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader("not json"))
		rec := httptest.NewRecorder()

		h.HandleSelect(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty candidates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(`{"candidates":[]}`))
		rec := httptest.NewRecorder()

		h.HandleSelect(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("single candidate short-circuits", func(t *testing.T) {
		body := `{"candidates":[{"source":"only","title":"T","episodes":["http://cdn/ep1"]}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.HandleSelect(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"source":"only"`)
	})
}

func TestHandleAdFilterSetting(t *testing.T) {
	h := newTestHandlers(t, testHandlerConfig())

	t.Run("get falls back to config default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/settings/adfilter", nil)
		rec := httptest.NewRecorder()

		h.HandleAdFilterSetting(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())
	})

	t.Run("put without store is unavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/settings/adfilter", strings.NewReader(`{"enabled":false}`))
		rec := httptest.NewRecorder()

		h.HandleAdFilterSetting(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("put rejects missing field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/settings/adfilter", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		h.HandleAdFilterSetting(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
