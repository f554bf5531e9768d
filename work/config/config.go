package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the aggregation
// gateway. It covers the HTTP surface, provider fan-out, caching, content
// filtering, and the media proxy defaults.
type Config struct {
	BaseURL             string        // Base URL for the application (used for generated links)
	ListenPort          int           // HTTP listen port
	CacheEnabled        bool          // Whether provider/search caching is enabled
	CacheDuration       time.Duration // Duration before cache entries expire
	WorkerThreads       int           // Size of the shared worker pool for fan-out and probes
	Debug               bool          // Enable debug logging
	ObfuscateUrls       bool          // Obfuscate upstream URLs in logs
	UserAgent           string        // Fallback User-Agent for outbound requests
	ContentFilterOn     bool          // Whether the content-classification blocklist is applied
	Blocklist           []string      // Blocklisted classification keywords (case-insensitive substrings)
	AdFilterDefault     bool          // Default ad-filter state when no preference is persisted
	MaxResultsPerSource int           // Per-provider truncation bound for search results
	DatabasePath        string        // Path to the sqlite settings store
	ShortDramaAPI       string        // Base URL of the built-in short-form provider; empty disables it
	Sites               []SiteConfig  // Configured upstream providers
}

// SiteConfig represents one configured upstream provider. A provider is an
// opaque HTTP JSON endpoint; the set queried for one search is fixed at
// dispatch time.
type SiteConfig struct {
	Key      string            `json:"key"`               // stable provider key used in events
	Name     string            `json:"name"`              // display name
	API      string            `json:"api"`               // base API URL of the search endpoint
	Enabled  bool              `json:"enabled"`           // disabled sites are skipped at dispatch
	Headers  map[string]string `json:"headers,omitempty"` // custom request headers for this site
	RateLimit int              `json:"rateLimit,omitempty"` // outbound requests per second, 0 = default
}

// ConfigFile represents the JSON file structure for unmarshaling.
// Duration fields are stored as strings (e.g. "30m") and parsed later.
type ConfigFile struct {
	BaseURL             string       `json:"baseURL"`
	ListenPort          int          `json:"listenPort"`
	CacheEnabled        bool         `json:"cacheEnabled"`
	CacheDuration       string       `json:"cacheDuration"`
	WorkerThreads       int          `json:"workerThreads"`
	Debug               bool         `json:"debug"`
	ObfuscateUrls       bool         `json:"obfuscateUrls"`
	UserAgent           string       `json:"userAgent"`
	ContentFilterOn     *bool        `json:"contentFilterOn"`
	Blocklist           []string     `json:"blocklist"`
	AdFilterDefault     *bool        `json:"adFilterDefault"`
	MaxResultsPerSource int          `json:"maxResultsPerSource"`
	DatabasePath        string       `json:"databasePath"`
	ShortDramaAPI       string       `json:"shortDramaAPI"`
	Sites               []SiteConfig `json:"sites"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// DefaultUserAgent is sent upstream whenever the caller supplied none; some
// origins 403 anything that doesn't look like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultBlocklist covers the classification keywords dropped when content
// filtering is enabled and no explicit blocklist is configured.
var DefaultBlocklist = []string{"伦理片", "福利", "里番动漫", "门事件", "萝莉少女", "制服诱惑", "国产传媒", "cosplay", "黑丝诱惑", "无码", "日本无码", "有码", "日本有码", "SWAG", "网红主播", "色情片", "同性片", "福利视频", "福利片"}

// LoadConfig loads the configuration from file or returns the cached
// instance. Uses double-checked locking to avoid redundant reloads, falls
// back to defaults when the file is missing or invalid, and validates the
// result so missing values get safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// double-check under the write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("STREAMHUB_CONFIG")
	if configPath == "" {
		configPath = "/settings/config.json"
	}

	config, err := loadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Sites: %d configured", len(config.Sites))
		for i := range config.Sites {
			site := &config.Sites[i]
			log.Printf("    Site %d (%s): %s (enabled: %v)", i+1, site.Name, obfuscateURL(site.API), site.Enabled)
		}
		log.Printf("  Content Filter: %v (%d keywords)", config.ContentFilterOn, len(config.Blocklist))
		log.Printf("  Cache: %v (%s)", config.CacheEnabled, config.CacheDuration)
	}

	return config
}

// ClearConfigCache drops the cached configuration so the next LoadConfig
// re-reads the file. Used by graceful restarts.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		BaseURL:             file.BaseURL,
		ListenPort:          file.ListenPort,
		CacheEnabled:        file.CacheEnabled,
		WorkerThreads:       file.WorkerThreads,
		Debug:               file.Debug,
		ObfuscateUrls:       file.ObfuscateUrls,
		UserAgent:           file.UserAgent,
		Blocklist:           file.Blocklist,
		MaxResultsPerSource: file.MaxResultsPerSource,
		DatabasePath:        file.DatabasePath,
		ShortDramaAPI:       file.ShortDramaAPI,
		Sites:               file.Sites,
	}

	// content filtering is on unless explicitly disabled
	cfg.ContentFilterOn = file.ContentFilterOn == nil || *file.ContentFilterOn
	cfg.AdFilterDefault = file.AdFilterDefault == nil || *file.AdFilterDefault

	if file.CacheDuration != "" {
		d, err := time.ParseDuration(file.CacheDuration)
		if err != nil {
			return nil, fmt.Errorf("parse cacheDuration: %w", err)
		}
		cfg.CacheDuration = d
	}

	return cfg, nil
}

// getDefaultConfig returns a configuration with conservative defaults and
// no providers. A gateway with no sites still serves the relay and proxy
// endpoints; searches need at least one site or the short-drama API set.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:8080",
		ListenPort:      8080,
		CacheEnabled:    true,
		CacheDuration:   30 * time.Minute,
		WorkerThreads:   16,
		ContentFilterOn: true,
		AdFilterDefault: true,
	}
}

// validateAndSetDefaults ensures safe defaults for missing values.
func validateAndSetDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		cfg.ListenPort = 8080
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = 30 * time.Minute
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 16
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if len(cfg.Blocklist) == 0 {
		cfg.Blocklist = DefaultBlocklist
	}
	if cfg.MaxResultsPerSource <= 0 {
		cfg.MaxResultsPerSource = 50
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/settings/streamhub.db"
	}

	// drop sites with unparseable API URLs up front so the fan-out never
	// sees them
	valid := cfg.Sites[:0]
	for _, site := range cfg.Sites {
		if site.API == "" {
			continue
		}
		if _, err := url.Parse(site.API); err != nil {
			log.Printf("Dropping site %s: invalid API URL", site.Key)
			continue
		}
		if site.Key == "" {
			site.Key = site.Name
		}
		valid = append(valid, site)
	}
	cfg.Sites = valid
}

// obfuscateURL hides path and query for debug logging of configured sites.
func obfuscateURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	return result
}
