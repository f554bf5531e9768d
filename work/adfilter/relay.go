package adfilter

import (
	"context"
	"io"
	"net/http"
	"time"

	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/database"
	"streamhub/work/logger"
	"streamhub/work/utils"
)

const (
	relayTimeout     = 15 * time.Second
	manifestReadCap  = 4 << 20 // playlists are text; anything bigger is not a manifest
	manifestMimeType = "application/vnd.apple.mpegurl"
)

// Relay fetches HLS manifests on behalf of players and strips ad markers
// according to the persisted preference. It only ever touches playlist
// text; media segments go through the media proxy untouched.
type Relay struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	db         *database.DB
}

// NewRelay builds a manifest relay against the shared client and store.
// db may be nil, in which case the config default decides filtering.
func NewRelay(cfg *config.Config, httpClient *client.HeaderSettingClient, db *database.DB) *Relay {
	return &Relay{cfg: cfg, httpClient: httpClient, db: db}
}

// Enabled reports whether ad filtering is currently on, preferring the
// persisted setting over the config default.
func (rl *Relay) Enabled() bool {
	if rl.db == nil {
		return rl.cfg.AdFilterDefault
	}
	return rl.db.GetAdFilterEnabled(rl.cfg.AdFilterDefault)
}

// HandleRelay serves GET /adfilter?url=... by fetching the manifest and
// returning it filtered or byte-for-byte depending on the preference.
func (rl *Relay) HandleRelay(w http.ResponseWriter, r *http.Request) {
	targetURL := r.URL.Query().Get("url")
	if targetURL == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing url"}`))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), relayTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	resp, err := rl.httpClient.Do(req)
	if err != nil {
		logger.Warn("{adfilter - HandleRelay} manifest fetch failed for %s: %v", utils.LogURL(rl.cfg, targetURL), err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"Upstream fetch failed"}`))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(`{"error":"Upstream error"}`))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, manifestReadCap))
	if err != nil {
		logger.Warn("{adfilter - HandleRelay} manifest read failed for %s: %v", utils.LogURL(rl.cfg, targetURL), err)
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	manifest := string(body)
	if rl.Enabled() {
		manifest = FilterManifest(manifest)
	}

	w.Header().Set("Content-Type", manifestMimeType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(manifest))
}
