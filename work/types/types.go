package types

// ContentClass represents the coarse classification of an aggregated title,
// derived from episode-count parity rather than provider metadata, since
// third-party providers disagree wildly about how content types are labelled.
// A single-episode result is treated as a movie; anything else is a series.
type ContentClass string

const (
	ClassMovie ContentClass = "movie" // single playable episode
	ClassTV    ContentClass = "tv"    // multi-episode series
)

// SearchResult is the normalized form of one provider hit for a video title.
// Providers return wildly different JSON shapes; the provider client flattens
// them all into this struct so everything downstream (filtering, grouping,
// probing, selection) can treat candidates uniformly.
//
// Episodes and EpisodeNames are parallel slices ordered ascending by
// broadcast/episode index. That order is load-bearing for "play next
// episode" and must never be reordered after parsing.
type SearchResult struct {
	Source       string   `json:"source"`                 // provider key this result came from
	SourceName   string   `json:"source_name"`            // provider display name
	Title        string   `json:"title"`                  // raw title as reported by the provider
	Year         string   `json:"year"`                   // release year, "unknown" when the provider omits it
	Poster       string   `json:"poster,omitempty"`       // poster image URL
	Episodes     []string `json:"episodes"`               // ordered episode stream URLs
	EpisodeNames []string `json:"episode_names,omitempty"` // ordered episode display labels, parallel to Episodes
	TypeName     string   `json:"type_name,omitempty"`    // provider content-type classification (blocklist target)
	DoubanID     string   `json:"douban_id,omitempty"`    // optional external rating id
}

// Class derives the movie/tv classification from episode-count parity.
func (r *SearchResult) Class() ContentClass {
	if len(r.Episodes) == 1 {
		return ClassMovie
	}
	return ClassTV
}

// AggregateGroup collects same-title candidates from different providers.
// Groups are keyed by normalized title + year + movie/tv class and keep
// their members in first-seen order. The derived stats are recomputed
// incrementally whenever a member is appended.
type AggregateGroup struct {
	Key          string         `json:"key"`           // stable group key for the search session
	Title        string         `json:"title"`         // title of the first member
	Year         string         `json:"year"`          // shared release year
	Class        ContentClass   `json:"class"`         // movie/tv classification
	Members      []SearchResult `json:"members"`       // member results in first-seen order
	EpisodeCount int            `json:"episode_count"` // dominant (mode) episode count across members
	SourceNames  []string       `json:"source_names"`  // distinct provider display names, first-seen order
	DoubanID     string         `json:"douban_id"`     // dominant (mode) external rating id
}

// ResolutionClass buckets a measured video resolution into the coarse
// quality tiers the scorer understands.
type ResolutionClass string

const (
	Res4K      ResolutionClass = "4K"
	Res2K      ResolutionClass = "2K"
	Res1080p   ResolutionClass = "1080p"
	Res720p    ResolutionClass = "720p"
	Res480p    ResolutionClass = "480p"
	ResSD      ResolutionClass = "SD"
	ResUnknown ResolutionClass = "unknown"
)

// ProbeResult holds the raw measurements from one candidate probe. It is
// ephemeral, scoped to a single selection session, and never persisted.
// SpeedKBps <= 0 means throughput could not be measured; PingMs <= 0 means
// the latency measurement is invalid.
type ProbeResult struct {
	Source     string          `json:"source"`      // provider key of the probed candidate
	Resolution ResolutionClass `json:"resolution"`  // resolved resolution class
	SpeedKBps  float64         `json:"speed_kbps"`  // measured throughput in KB/s, <=0 when unknown
	PingMs     int64           `json:"ping_ms"`     // round-trip latency to first byte in ms, <=0 when invalid
	Failed     bool            `json:"failed"`      // probe fetch/measurement failed entirely
	Err        string          `json:"error,omitempty"`
}

// ScoreBreakdown records the per-component scores for one probed candidate.
// Only the winner is returned from selection, but the full breakdown for
// every candidate is retained for diagnostics.
type ScoreBreakdown struct {
	Source       string  `json:"source"`
	QualityScore float64 `json:"quality_score"`
	SpeedScore   float64 `json:"speed_score"`
	LatencyScore float64 `json:"latency_score"`
	Score        float64 `json:"score"` // composite, rounded to 2 decimals
	Excluded     bool    `json:"excluded"` // probe failed; candidate not scored
}

// Event shapes for the push-stream search protocol. One start event, exactly
// one source_result or source_error per dispatched provider, one complete.

// StartEvent announces the total number of sources queried for a search.
type StartEvent struct {
	Type         string `json:"type"` // always "start"
	TotalSources int    `json:"totalSources"`
	Query        string `json:"query"`
}

// SourceResultEvent carries one provider's (possibly empty) result list.
type SourceResultEvent struct {
	Type       string         `json:"type"` // always "source_result"
	Source     string         `json:"source"`
	SourceName string         `json:"sourceName"`
	Results    []SearchResult `json:"results"`
}

// SourceErrorEvent reports a provider that failed to contribute results.
type SourceErrorEvent struct {
	Type       string `json:"type"` // always "source_error"
	Source     string `json:"source"`
	SourceName string `json:"sourceName"`
	Error      string `json:"error"`
}

// CompleteEvent terminates the stream once every source has settled.
type CompleteEvent struct {
	Type             string `json:"type"` // always "complete"
	TotalResults     int    `json:"totalResults"`
	CompletedSources int    `json:"completedSources"`
}
