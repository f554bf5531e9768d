package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"streamhub/work/adfilter"
	"streamhub/work/aggregate"
	"streamhub/work/buffer"
	"streamhub/work/cache"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/database"
	"streamhub/work/handlers"
	"streamhub/work/logger"
	"streamhub/work/middleware"
	"streamhub/work/prober"
	"streamhub/work/provider"
	"streamhub/work/proxy"
	"streamhub/work/search"
)

var (
	Version = "v0.1.0" // default version
)

// defaultSiteRPS bounds outbound requests per second toward a site that
// doesn't configure its own limit.
const defaultSiteRPS = 10

func main() {

	// load our config
	cfg := config.LoadConfig()

	// set the log level before anything else logs
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	} else {
		logger.SetLogLevel("INFO")
	}

	// open the settings store; the gateway still runs without it, falling
	// back to config defaults for everything the store would override
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Warn("{main} settings store unavailable at %s: %v", cfg.DatabasePath, err)
		db = nil
	} else {
		defer db.Close()
	}

	// shared plumbing
	bufferPool := buffer.NewPool(64 * 1024)
	httpClient := client.NewHeaderSettingClient(cfg)
	cacheInstance := cache.New(cfg.CacheDuration, cfg.CacheEnabled)

	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// per-site rate limiters live across requests; sites can appear at
	// runtime through the database so the registry is concurrent
	limiters := xsync.NewMapOf[string, ratelimit.Limiter]()
	limiterFor := func(site config.SiteConfig) ratelimit.Limiter {
		rps := site.RateLimit
		if rps <= 0 {
			rps = defaultSiteRPS
		}
		limiter, _ := limiters.LoadOrCompute(site.Key, func() ratelimit.Limiter {
			return ratelimit.New(rps)
		})
		return limiter
	}

	// providers are assembled per request: database rows override file
	// config by key, and the built-in short-form provider rides along when
	// its API is configured
	providersFn := func() []provider.Provider {
		sites := cfg.Sites
		if db != nil {
			if stored, err := db.LoadSites(); err == nil && len(stored) > 0 {
				sites = mergeSites(cfg.Sites, stored)
			}
		}

		var providers []provider.Provider
		for _, site := range sites {
			if !site.Enabled {
				continue
			}
			providers = append(providers, provider.NewSiteProvider(site, httpClient, limiterFor(site), cacheInstance, cfg))
		}
		if cfg.ShortDramaAPI != "" {
			providers = append(providers, provider.NewBuiltinProvider(cfg.ShortDramaAPI, httpClient))
		}
		return providers
	}

	// core services
	keywordFilter := aggregate.NewKeywordFilter(cfg.Blocklist)
	coordinator := search.NewCoordinator(cfg, workerPool, keywordFilter)
	proberInstance := prober.NewProber(cfg, httpClient, workerPool)
	relay := adfilter.NewRelay(cfg, httpClient, db)
	mediaProxy := proxy.NewProxy(cfg, httpClient, bufferPool)

	h := handlers.NewHandlers(cfg, coordinator, proberInstance, relay, mediaProxy, cacheInstance, db, providersFn)

	// HTTP routes
	router := mux.NewRouter()

	// streaming search (server-sent events, never compressed)
	router.HandleFunc("/api/search/stream", h.HandleSearchStream).Methods("GET")

	// one-shot aggregated search
	router.HandleFunc("/api/search", middleware.Gzip(h.HandleSearch)).Methods("GET")

	// playback source selection
	router.HandleFunc("/api/select", middleware.Gzip(h.HandleSelect)).Methods("POST")

	// ad-filter preference
	router.HandleFunc("/api/settings/adfilter", middleware.Gzip(h.HandleAdFilterSetting)).Methods("GET", "PUT")

	// manifest relay and media proxy (raw streams, never compressed)
	router.HandleFunc("/adfilter", h.HandleAdFilterRelay).Methods("GET")
	router.HandleFunc("/proxy", h.HandleProxy).Methods("GET", "HEAD", "OPTIONS")

	// metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	// show info
	logger.Info("Starting streamhub %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Listen Port: %d", cfg.ListenPort)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Sites: %d", len(cfg.Sites))
	logger.Info("  - Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Content Filter: %v (%d keywords)", cfg.ContentFilterOn, len(cfg.Blocklist))
	logger.Info("  - Ad Filter Default: %v", cfg.AdFilterDefault)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// fire us up
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// mergeSites overlays stored site rows onto the file configuration. Stored
// rows win by key; stored-only sites are appended after the configured
// ones so file ordering stays stable.
func mergeSites(configured, stored []config.SiteConfig) []config.SiteConfig {
	byKey := make(map[string]config.SiteConfig, len(stored))
	for _, site := range stored {
		byKey[site.Key] = site
	}

	merged := make([]config.SiteConfig, 0, len(configured)+len(stored))
	seen := make(map[string]bool, len(configured))
	for _, site := range configured {
		if override, ok := byKey[site.Key]; ok {
			merged = append(merged, override)
		} else {
			merged = append(merged, site)
		}
		seen[site.Key] = true
	}
	for _, site := range stored {
		if !seen[site.Key] {
			merged = append(merged, site)
		}
	}
	return merged
}
