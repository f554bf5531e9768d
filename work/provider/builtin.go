package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamhub/work/apperr"
	"streamhub/work/client"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"
)

// BuiltinKey identifies the bundled short-form provider in events.
const BuiltinKey = "shortdrama"

// BuiltinProvider is the bundled short-form video backend that is queried on
// every search in addition to the configured sites. It speaks its own JSON
// shape and carries a tighter deadline than ordinary providers.
type BuiltinProvider struct {
	api        string
	httpClient *client.HeaderSettingClient
}

// NewBuiltinProvider wires the short-form provider against its fixed API.
func NewBuiltinProvider(api string, httpClient *client.HeaderSettingClient) *BuiltinProvider {
	return &BuiltinProvider{api: api, httpClient: httpClient}
}

func (p *BuiltinProvider) Key() string            { return BuiltinKey }
func (p *BuiltinProvider) Name() string           { return "短剧" }
func (p *BuiltinProvider) Timeout() time.Duration { return BuiltinTimeout }

type shortDramaItem struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Cover        string `json:"cover"`
	EpisodeCount int    `json:"episodeCount"`
	Year         string `json:"year"`
}

type shortDramaResponse struct {
	Code int `json:"code"`
	Data struct {
		List []shortDramaItem `json:"list"`
	} `json:"data"`
}

// Search queries the short-form catalog and synthesizes one episode URL per
// chapter through the provider's resolve endpoint.
func (p *BuiltinProvider) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	searchURL := fmt.Sprintf("%s/vod/search?name=%s", p.api, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, apperr.ProviderParse(p.api, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ProviderSearches.WithLabelValues(BuiltinKey, "timeout").Inc()
			return nil, apperr.ProviderTimeout(p.api, err)
		}
		metrics.ProviderSearches.WithLabelValues(BuiltinKey, "http_error").Inc()
		return nil, apperr.New(apperr.CodeProviderHTTP, p.api, "short-form provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProviderSearches.WithLabelValues(BuiltinKey, "http_error").Inc()
		return nil, apperr.ProviderHTTP(p.api, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ProviderSearches.WithLabelValues(BuiltinKey, "http_error").Inc()
		return nil, apperr.New(apperr.CodeProviderHTTP, p.api, "short-form body read failed", err)
	}

	var payload shortDramaResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ProviderSearches.WithLabelValues(BuiltinKey, "parse_error").Inc()
		return nil, apperr.ProviderParse(p.api, err)
	}

	results := make([]types.SearchResult, 0, len(payload.Data.List))
	for _, item := range payload.Data.List {
		if item.EpisodeCount <= 0 {
			continue
		}

		episodes := make([]string, 0, item.EpisodeCount)
		names := make([]string, 0, item.EpisodeCount)
		for ep := 1; ep <= item.EpisodeCount; ep++ {
			episodes = append(episodes, fmt.Sprintf("%s/vod/episode?id=%d&ep=%d", p.api, item.ID, ep))
			names = append(names, fmt.Sprintf("第%d集", ep))
		}

		year := strings.TrimSpace(item.Year)
		if year == "" {
			year = "unknown"
		}

		results = append(results, types.SearchResult{
			Source:       BuiltinKey,
			SourceName:   p.Name(),
			Title:        strings.TrimSpace(item.Name),
			Year:         year,
			Poster:       item.Cover,
			Episodes:     episodes,
			EpisodeNames: names,
			TypeName:     "短剧",
		})
	}

	logger.Debug("{provider - builtin} short-form provider returned %d results for %q", len(results), query)
	metrics.ProviderSearches.WithLabelValues(BuiltinKey, "ok").Inc()
	return results, nil
}
