package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProviderSearches counts outbound provider search calls by provider key and
// outcome ("ok", "timeout", "http_error", "parse_error"). This metric is a
// counter and only increases.
var ProviderSearches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_provider_searches_total",
	Help: "Provider search calls by outcome",
}, []string{"provider", "outcome"})

// SearchEvents counts push-stream events emitted to search consumers by
// event type (start, source_result, source_error, complete).
var SearchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_search_events_total",
	Help: "Search stream events emitted",
}, []string{"type"})

// DroppedEvents counts event writes attempted after a consumer disconnected.
// These are silent no-ops; the counter exists purely for diagnostics.
var DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamhub_search_dropped_events_total",
	Help: "Events dropped because the stream was already closed",
})

// ProbeDuration observes wall-clock time of candidate probes, labelled by
// outcome ("ok", "failed").
var ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "streamhub_probe_duration_seconds",
	Help:    "Candidate probe duration",
	Buckets: prometheus.DefBuckets,
}, []string{"outcome"})

// ProxyBytes tracks bytes relayed through the media proxy. The "direction"
// label distinguishes upstream (origin) and downstream (player) traffic.
var ProxyBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_proxy_bytes_total",
	Help: "Bytes relayed through the media proxy",
}, []string{"direction"})

// ProxyRequests counts media proxy requests by method and upstream status
// class ("2xx", "3xx", "4xx", "5xx", "error").
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_proxy_requests_total",
	Help: "Media proxy requests by upstream status class",
}, []string{"method", "status_class"})

// ManifestLinesDropped counts discontinuity-marker lines stripped by the
// ad-segment filtering relay.
var ManifestLinesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamhub_manifest_lines_dropped_total",
	Help: "Ad boundary marker lines removed from manifests",
})
