package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"streamhub/work/adfilter"
	"streamhub/work/cache"
	"streamhub/work/config"
	"streamhub/work/database"
	"streamhub/work/logger"
	"streamhub/work/prober"
	"streamhub/work/provider"
	"streamhub/work/proxy"
	"streamhub/work/search"
	"streamhub/work/types"
)

// Handlers bundles the HTTP surface. Each method is a thin adapter that
// parses the request, delegates to the owning package, and renders the
// response; no business logic lives here.
type Handlers struct {
	cfg         *config.Config
	coordinator *search.Coordinator
	prober      *prober.Prober
	relay       *adfilter.Relay
	mediaProxy  *proxy.Proxy
	cache       *cache.Cache
	db          *database.DB
	providers   func() []provider.Provider
}

// NewHandlers wires the handler set. providers is called per request so site
// changes in the database take effect without a restart; db may be nil.
func NewHandlers(
	cfg *config.Config,
	coordinator *search.Coordinator,
	pr *prober.Prober,
	relay *adfilter.Relay,
	mediaProxy *proxy.Proxy,
	cacheInstance *cache.Cache,
	db *database.DB,
	providers func() []provider.Provider,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		coordinator: coordinator,
		prober:      pr,
		relay:       relay,
		mediaProxy:  mediaProxy,
		cache:       cacheInstance,
		db:          db,
		providers:   providers,
	}
}

// HandleSearchStream serves GET /api/search/stream?q= as a server-sent
// event stream: start, one terminal event per source, complete.
func (h *Handlers) HandleSearchStream(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing query"})
		return
	}

	stream, err := search.NewEventStream(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming unsupported"})
		return
	}

	if err := h.coordinator.Search(r.Context(), query, h.providers(), stream); err != nil {
		logger.Debug("{handlers - HandleSearchStream} search for %q ended: %v", query, err)
	}
}

// HandleSearch serves GET /api/search?q= as one aggregated JSON payload.
// Results are cached per query for the configured TTL.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing query"})
		return
	}

	if groups, ok := h.cache.GetAggregate(query); ok {
		writeJSON(w, http.StatusOK, searchResponse{Query: query, Groups: groups})
		return
	}

	groups, err := h.coordinator.SearchAll(r.Context(), query, h.providers())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.cache.SetAggregate(query, groups)
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Groups: groups})
}

type searchResponse struct {
	Query  string                 `json:"query"`
	Groups []types.AggregateGroup `json:"groups"`
}

// selectRequest carries the candidate set for a playback-source decision,
// normally the members of one aggregate group.
type selectRequest struct {
	Candidates []types.SearchResult `json:"candidates"`
}

type selectResponse struct {
	Winner types.SearchResult     `json:"winner"`
	Probes []types.ProbeResult    `json:"probes,omitempty"`
	Scores []types.ScoreBreakdown `json:"scores,omitempty"`
}

// HandleSelect serves POST /api/select: probes the submitted candidates and
// returns the best playback source with the full measurement breakdown.
func (h *Handlers) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if len(req.Candidates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No candidates"})
		return
	}

	winner, probes, scores := h.prober.SelectBest(r.Context(), req.Candidates)
	writeJSON(w, http.StatusOK, selectResponse{Winner: winner, Probes: probes, Scores: scores})
}

// HandleAdFilterSetting serves GET and PUT /api/settings/adfilter.
func (h *Handlers) HandleAdFilterSetting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.relay.Enabled()})

	case http.MethodPut:
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
			return
		}
		if h.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Settings store unavailable"})
			return
		}
		if err := h.db.SetAdFilterEnabled(*body.Enabled); err != nil {
			logger.Error("{handlers - HandleAdFilterSetting} persist failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Persist failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleAdFilterRelay serves GET /adfilter?url=.
func (h *Handlers) HandleAdFilterRelay(w http.ResponseWriter, r *http.Request) {
	h.relay.HandleRelay(w, r)
}

// HandleProxy serves GET/HEAD/OPTIONS /proxy?url=.
func (h *Handlers) HandleProxy(w http.ResponseWriter, r *http.Request) {
	h.mediaProxy.HandleProxy(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug("{handlers - writeJSON} encode failed: %v", err)
	}
}
