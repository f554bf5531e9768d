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

	"go.uber.org/ratelimit"

	"streamhub/work/apperr"
	"streamhub/work/cache"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"
	"streamhub/work/utils"
)

// Per-call deadlines. Ordinary providers get the long budget; the built-in
// short-form provider is expected to answer fast and gets half of it.
const (
	SearchTimeout  = 20 * time.Second
	BuiltinTimeout = 10 * time.Second
)

// Provider is one upstream search backend. The fan-out coordinator receives
// the full provider set as a constructor argument; nothing is registered
// globally, and the set queried for one search is fixed at dispatch time.
type Provider interface {
	Key() string
	Name() string
	Timeout() time.Duration
	Search(ctx context.Context, query string) ([]types.SearchResult, error)
}

// SiteProvider queries one configured third-party site. The wire contract is
// the common collection format: GET {api}?ac=videolist&wd=<query> returning
// a JSON object with a "list" array of vod entries. Non-conforming or
// unreachable sites degrade to an error the coordinator converts into a
// source_error event; they never panic the search.
type SiteProvider struct {
	site       config.SiteConfig
	httpClient *client.HeaderSettingClient
	limiter    ratelimit.Limiter
	cache      *cache.Cache
	cfg        *config.Config
}

// NewSiteProvider wires a provider client for one configured site.
func NewSiteProvider(site config.SiteConfig, httpClient *client.HeaderSettingClient, limiter ratelimit.Limiter, cacheInstance *cache.Cache, cfg *config.Config) *SiteProvider {
	return &SiteProvider{
		site:       site,
		httpClient: httpClient,
		limiter:    limiter,
		cache:      cacheInstance,
		cfg:        cfg,
	}
}

func (p *SiteProvider) Key() string             { return p.site.Key }
func (p *SiteProvider) Name() string            { return p.site.Name }
func (p *SiteProvider) Timeout() time.Duration  { return SearchTimeout }

// vodEntry mirrors the subset of the upstream JSON shape we consume. Fields
// arrive as strings or numbers depending on the site, so the loose ones use
// json.Number.
type vodEntry struct {
	Name     string      `json:"vod_name"`
	Year     string      `json:"vod_year"`
	Pic      string      `json:"vod_pic"`
	PlayURL  string      `json:"vod_play_url"`
	TypeName string      `json:"type_name"`
	DoubanID json.Number `json:"vod_douban_id"`
}

type vodResponse struct {
	List []vodEntry `json:"list"`
}

// Search issues one search call against the site and normalizes the
// response. Results are cached per site+query for the configured TTL.
func (p *SiteProvider) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	cacheKey := p.site.Key + ":" + query
	if cached, ok := p.cache.GetProvider(cacheKey); ok {
		logger.Debug("{provider - Search} Cache hit for %s (query: %s)", p.site.Key, query)
		metrics.ProviderSearches.WithLabelValues(p.site.Key, "ok").Inc()
		return cached, nil
	}

	p.limiter.Take()

	searchURL := fmt.Sprintf("%s?ac=videolist&wd=%s", p.site.API, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, apperr.ProviderParse(p.site.API, err)
	}
	for key, value := range p.site.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ProviderSearches.WithLabelValues(p.site.Key, "timeout").Inc()
			return nil, apperr.ProviderTimeout(p.site.API, err)
		}
		metrics.ProviderSearches.WithLabelValues(p.site.Key, "http_error").Inc()
		return nil, apperr.New(apperr.CodeProviderHTTP, p.site.API, "provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProviderSearches.WithLabelValues(p.site.Key, "http_error").Inc()
		return nil, apperr.ProviderHTTP(p.site.API, resp.StatusCode)
	}

	// a malicious or broken site could feed us gigabytes of "JSON"
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.ProviderSearches.WithLabelValues(p.site.Key, "http_error").Inc()
		return nil, apperr.New(apperr.CodeProviderHTTP, p.site.API, "provider body read failed", err)
	}

	var payload vodResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ProviderSearches.WithLabelValues(p.site.Key, "parse_error").Inc()
		return nil, apperr.ProviderParse(p.site.API, err)
	}

	results := make([]types.SearchResult, 0, len(payload.List))
	for _, entry := range payload.List {
		result := p.normalize(entry)
		if len(result.Episodes) == 0 {
			continue
		}
		results = append(results, result)
	}

	logger.Debug("{provider - Search} %s returned %d results for %q", p.site.Key, len(results), utils.LogURL(p.cfg, searchURL))
	metrics.ProviderSearches.WithLabelValues(p.site.Key, "ok").Inc()

	p.cache.SetProvider(cacheKey, results)
	return results, nil
}

// normalize flattens one vod entry into the shared SearchResult shape.
func (p *SiteProvider) normalize(entry vodEntry) types.SearchResult {
	year := strings.TrimSpace(entry.Year)
	if year == "" {
		year = "unknown"
	}

	episodes, names := ParsePlayURL(entry.PlayURL)

	return types.SearchResult{
		Source:       p.site.Key,
		SourceName:   p.site.Name,
		Title:        strings.TrimSpace(entry.Name),
		Year:         year,
		Poster:       entry.Pic,
		Episodes:     episodes,
		EpisodeNames: names,
		TypeName:     entry.TypeName,
		DoubanID:     entry.DoubanID.String(),
	}
}

// ParsePlayURL splits the collection format's play-url field into ordered
// episode URLs and display labels. The field is "#"-separated episode
// entries of "label$url"; multiple play groups are separated by "$$$" and
// only the first group is used. Order is preserved exactly as reported:
// providers emit episodes ascending and the player's "next episode" relies
// on that.
func ParsePlayURL(playURL string) ([]string, []string) {
	if playURL == "" {
		return nil, nil
	}

	if idx := strings.Index(playURL, "$$$"); idx >= 0 {
		playURL = playURL[:idx]
	}

	var urls, names []string
	for i, part := range strings.Split(playURL, "#") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		label := ""
		link := part
		if idx := strings.Index(part, "$"); idx >= 0 {
			label = strings.TrimSpace(part[:idx])
			link = strings.TrimSpace(part[idx+1:])
		}

		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			continue
		}
		if label == "" {
			label = fmt.Sprintf("第%d集", i+1)
		}

		urls = append(urls, link)
		names = append(names, label)
	}

	return urls, names
}
