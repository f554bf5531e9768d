package prober

import (
	"math"

	"streamhub/work/types"
)

// component weights for the composite score
const (
	weightQuality = 0.4
	weightSpeed   = 0.4
	weightLatency = 0.2
)

// fallback session bounds when no probe produced a usable measurement
const (
	fallbackMaxSpeedKBps = 1024.0
	fallbackMinPingMs    = 50.0
	fallbackMaxPingMs    = 1000.0
)

// speedScoreUnknown is the neutral speed score for candidates whose
// throughput could not be measured (manifest-only probes, zero-byte reads).
const speedScoreUnknown = 30.0

// qualityScores maps each resolution tier to its fixed quality component.
var qualityScores = map[types.ResolutionClass]float64{
	types.Res4K:      100,
	types.Res2K:      85,
	types.Res1080p:   75,
	types.Res720p:    60,
	types.Res480p:    40,
	types.ResSD:      20,
	types.ResUnknown: 0,
}

// Score converts raw probe measurements into per-candidate breakdowns.
// Speed and latency components are normalized against bounds drawn from
// this probe session only, so scores are comparable within a selection but
// never across selections. Failed probes are marked excluded and receive
// no score.
func Score(probes []types.ProbeResult) []types.ScoreBreakdown {
	maxSpeed := fallbackMaxSpeedKBps
	minPing := fallbackMinPingMs
	maxPing := fallbackMaxPingMs

	// session bounds come from valid measurements only
	foundSpeed, foundPing := false, false
	for _, p := range probes {
		if p.Failed {
			continue
		}
		if p.SpeedKBps > 0 {
			if !foundSpeed || p.SpeedKBps > maxSpeed {
				maxSpeed = p.SpeedKBps
			}
			foundSpeed = true
		}
		if p.PingMs > 0 {
			ping := float64(p.PingMs)
			if !foundPing {
				minPing, maxPing = ping, ping
			} else {
				if ping < minPing {
					minPing = ping
				}
				if ping > maxPing {
					maxPing = ping
				}
			}
			foundPing = true
		}
	}
	if !foundSpeed {
		maxSpeed = fallbackMaxSpeedKBps
	}
	if !foundPing {
		minPing, maxPing = fallbackMinPingMs, fallbackMaxPingMs
	}

	breakdowns := make([]types.ScoreBreakdown, len(probes))
	for i, p := range probes {
		b := types.ScoreBreakdown{Source: p.Source}
		if p.Failed {
			b.Excluded = true
			breakdowns[i] = b
			continue
		}

		b.QualityScore = qualityScores[p.Resolution]

		if p.SpeedKBps <= 0 {
			b.SpeedScore = speedScoreUnknown
		} else {
			b.SpeedScore = clamp(100 * p.SpeedKBps / maxSpeed)
		}

		if p.PingMs <= 0 {
			b.LatencyScore = 0
		} else if minPing == maxPing {
			b.LatencyScore = 100
		} else {
			b.LatencyScore = clamp(100 * (maxPing - float64(p.PingMs)) / (maxPing - minPing))
		}

		b.Score = round2(weightQuality*b.QualityScore + weightSpeed*b.SpeedScore + weightLatency*b.LatencyScore)
		breakdowns[i] = b
	}

	return breakdowns
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
