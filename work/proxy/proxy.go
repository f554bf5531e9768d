package proxy

import (
	"fmt"
	"net/http"
	"strconv"

	"streamhub/work/buffer"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/utils"
)

// Proxy relays media payloads between players and provider origins. Players
// enforce CORS and providers don't grant it, so every media fetch funnels
// through here. The proxy never buffers a full response: bodies stream
// through pooled copy buffers, and range semantics pass through untouched
// so seeking keeps working.
type Proxy struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	bufferPool *buffer.Pool
}

// NewProxy builds a media proxy over the shared HTTP client.
func NewProxy(cfg *config.Config, httpClient *client.HeaderSettingClient, bufferPool *buffer.Pool) *Proxy {
	return &Proxy{cfg: cfg, httpClient: httpClient, bufferPool: bufferPool}
}

// HandleProxy serves GET/HEAD/OPTIONS /proxy?url=<encoded>.
func (p *Proxy) HandleProxy(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	// preflight never touches the upstream
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		metrics.ProxyRequests.WithLabelValues(http.MethodOptions, "2xx").Inc()
		return
	}

	targetURL := r.URL.Query().Get("url")
	if targetURL == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing url")
		metrics.ProxyRequests.WithLabelValues(r.Method, "4xx").Inc()
		return
	}

	// no timeout on the outbound request: media playback sessions are
	// long-lived and the client context cancels the fetch on disconnect
	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, nil)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid url")
		metrics.ProxyRequests.WithLabelValues(r.Method, "4xx").Inc()
		return
	}

	// range and accept pass through so the origin can answer partials
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.Warn("{proxy - HandleProxy} upstream fetch failed for %s: %v", utils.LogURL(p.cfg, targetURL), err)
		writeJSONError(w, http.StatusBadGateway, "Upstream fetch failed")
		metrics.ProxyRequests.WithLabelValues(r.Method, "5xx").Inc()
		return
	}
	defer resp.Body.Close()

	if r.Method == http.MethodHead {
		mirrorMediaHeaders(w, resp)
		w.WriteHeader(resp.StatusCode)
		metrics.ProxyRequests.WithLabelValues(http.MethodHead, statusClass(resp.StatusCode)).Inc()
		return
	}

	// anything other than a full or partial payload becomes a JSON error
	// carrying the upstream status, so players can tell a dead origin from
	// a dead proxy
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		writeJSONError(w, resp.StatusCode, fmt.Sprintf("Upstream returned %d", resp.StatusCode))
		metrics.ProxyRequests.WithLabelValues(r.Method, statusClass(resp.StatusCode)).Inc()
		return
	}

	mirrorMediaHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	metrics.ProxyRequests.WithLabelValues(r.Method, statusClass(resp.StatusCode)).Inc()

	written, err := p.bufferPool.Copy(w, resp.Body)
	metrics.ProxyBytes.WithLabelValues("downstream").Add(float64(written))
	if err != nil {
		// mid-stream failures can't change the status line anymore;
		// players recover by re-requesting the range
		logger.Debug("{proxy - HandleProxy} stream interrupted after %d bytes for %s: %v",
			written, utils.LogURL(p.cfg, targetURL), err)
	}
}

// mirrorMediaHeaders copies the payload-describing headers from the
// upstream response. Accept-Ranges defaults to "bytes" when the origin
// omits it, since players probe that header before attempting to seek.
func mirrorMediaHeaders(w http.ResponseWriter, resp *http.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		w.Header().Set("Content-Range", cr)
	}
	if ar := resp.Header.Get("Accept-Ranges"); ar != "" {
		w.Header().Set("Accept-Ranges", ar)
	} else {
		w.Header().Set("Accept-Ranges", "bytes")
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range, Accept, Content-Type")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%s}`, strconv.Quote(message))
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
