package prober

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/panjf2000/ants/v2"

	"streamhub/work/apperr"
	"streamhub/work/client"
	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/metrics"
	"streamhub/work/types"
	"streamhub/work/utils"
)

const (
	probeTimeout = 10 * time.Second
	probeReadCap = 512 << 10 // bounded body read for throughput sampling
)

// Prober measures competing candidate streams and picks the best performer.
// Probing happens server-side, so the measured path is gateway→origin, not
// player→origin; the tradeoff is recorded in the design notes.
type Prober struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	workerPool *ants.Pool
}

// NewProber wires a prober against the shared HTTP client and worker pool.
func NewProber(cfg *config.Config, httpClient *client.HeaderSettingClient, workerPool *ants.Pool) *Prober {
	return &Prober{
		cfg:        cfg,
		httpClient: httpClient,
		workerPool: workerPool,
	}
}

// SelectBest probes every candidate and returns the winner plus the full
// measurement and score breakdown for diagnostics. A single candidate is
// returned immediately unprobed. Candidates are probed in two sequential
// batches (concurrent within a batch), halving the peak number of outbound
// connections. A failed probe excludes its candidate from scoring but never
// aborts siblings; if every probe fails, the first candidate wins
// unmodified.
func (p *Prober) SelectBest(ctx context.Context, candidates []types.SearchResult) (types.SearchResult, []types.ProbeResult, []types.ScoreBreakdown) {
	if len(candidates) == 0 {
		return types.SearchResult{}, nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil, nil
	}

	probes := make([]types.ProbeResult, len(candidates))

	// two roughly equal batches, run back to back
	mid := (len(candidates) + 1) / 2
	p.probeBatch(ctx, candidates[:mid], probes[:mid])
	p.probeBatch(ctx, candidates[mid:], probes[mid:])

	// session-wide bounds are derived only after every probe settled
	breakdowns := Score(probes)

	winner := 0
	bestScore := -1.0
	anyScored := false
	for i, b := range breakdowns {
		if b.Excluded {
			continue
		}
		anyScored = true
		// ties keep first-encountered order
		if b.Score > bestScore {
			bestScore = b.Score
			winner = i
		}
	}

	if !anyScored {
		logger.Warn("{prober - SelectBest} all %d probes failed, falling back to first candidate", len(candidates))
		return candidates[0], probes, breakdowns
	}

	logger.Debug("{prober - SelectBest} winner %s with score %.2f of %d candidates",
		candidates[winner].Source, bestScore, len(candidates))
	return candidates[winner], probes, breakdowns
}

// probeBatch runs each probe concurrently and waits for the batch to
// settle before returning.
func (p *Prober) probeBatch(ctx context.Context, candidates []types.SearchResult, out []types.ProbeResult) {
	var wg sync.WaitGroup
	for i := range candidates {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out[i] = p.probe(ctx, &candidates[i])
		}
		if err := p.workerPool.Submit(task); err != nil {
			go task()
		}
	}
	wg.Wait()
}

// representativeEpisode picks the episode to measure: the second when there
// is more than one, otherwise the first. First episodes are too often
// provider placeholder segments.
func representativeEpisode(candidate *types.SearchResult) string {
	if len(candidate.Episodes) > 1 {
		return candidate.Episodes[1]
	}
	if len(candidate.Episodes) == 1 {
		return candidate.Episodes[0]
	}
	return ""
}

// probe fetches the representative episode and measures resolution,
// throughput and time to first byte.
func (p *Prober) probe(ctx context.Context, candidate *types.SearchResult) types.ProbeResult {
	result := types.ProbeResult{Source: candidate.Source, Resolution: types.ResUnknown}

	episodeURL := representativeEpisode(candidate)
	if episodeURL == "" {
		result.Failed = true
		result.Err = "no episodes to probe"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, episodeURL, nil)
	if err != nil {
		return failProbe(result, episodeURL, err, start)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return failProbe(result, episodeURL, err, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failProbe(result, episodeURL, apperr.UpstreamProxy(episodeURL, resp.StatusCode), start)
	}

	// headers are in; take that as time to first byte
	result.PingMs = time.Since(start).Milliseconds()
	if result.PingMs <= 0 {
		result.PingMs = 1
	}

	reader := bufio.NewReader(io.LimitReader(resp.Body, probeReadCap))
	readStart := time.Now()

	if isManifestResponse(resp, reader) {
		// adaptive manifest: resolution comes from the master playlist's
		// variant attributes, throughput from a manifest is meaningless
		result.Resolution = resolutionFromManifest(reader)
		result.SpeedKBps = 0
		metrics.ProbeDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		logger.Debug("{prober - probe} %s manifest probe: res=%s ping=%dms",
			candidate.Source, result.Resolution, result.PingMs)
		return result
	}

	// raw media payload: sample a bounded read for throughput
	n, _ := io.Copy(io.Discard, reader)
	elapsed := time.Since(readStart).Seconds()
	if n > 0 && elapsed > 0 {
		result.SpeedKBps = float64(n) / 1024 / elapsed
	}

	metrics.ProbeDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	logger.Debug("{prober - probe} %s media probe: %.0f KB/s ping=%dms from %s",
		candidate.Source, result.SpeedKBps, result.PingMs, utils.LogURL(p.cfg, episodeURL))
	return result
}

func failProbe(result types.ProbeResult, url string, err error, start time.Time) types.ProbeResult {
	result.Failed = true
	result.Err = apperr.ProbeFailure(url, err).Error()
	metrics.ProbeDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
	return result
}

// isManifestResponse sniffs whether the probed payload is an HLS playlist
// rather than raw media, by content type or the #EXTM3U magic.
func isManifestResponse(resp *http.Response, reader *bufio.Reader) bool {
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "mpegurl") || strings.Contains(contentType, "m3u8") {
		return true
	}
	head, err := reader.Peek(7)
	return err == nil && string(head) == "#EXTM3U"
}

// resolutionFromManifest decodes the playlist and classifies the best
// advertised variant. Media playlists carry no resolution attribute and
// classify as unknown.
func resolutionFromManifest(reader io.Reader) types.ResolutionClass {
	playlist, listType, err := m3u8.DecodeFrom(reader, true)
	if err != nil || listType != m3u8.MASTER {
		return types.ResUnknown
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return types.ResUnknown
	}

	bestHeight := 0
	for _, variant := range master.Variants {
		if variant == nil || variant.Resolution == "" {
			continue
		}
		if h := heightOf(variant.Resolution); h > bestHeight {
			bestHeight = h
		}
	}

	return ClassifyHeight(bestHeight)
}

// heightOf parses the height out of a "WIDTHxHEIGHT" attribute.
func heightOf(resolution string) int {
	parts := strings.SplitN(strings.ToLower(resolution), "x", 2)
	if len(parts) != 2 {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0
	}
	return h
}

// ClassifyHeight buckets a pixel height into the scorer's quality tiers.
func ClassifyHeight(height int) types.ResolutionClass {
	switch {
	case height >= 2160:
		return types.Res4K
	case height >= 1440:
		return types.Res2K
	case height >= 1080:
		return types.Res1080p
	case height >= 720:
		return types.Res720p
	case height >= 480:
		return types.Res480p
	case height > 0:
		return types.ResSD
	default:
		return types.ResUnknown
	}
}
