package adfilter

import (
	"strings"

	"streamhub/work/metrics"
)

const (
	discontinuityTag    = "#EXT-X-DISCONTINUITY"
	discontinuitySeqTag = "#EXT-X-DISCONTINUITY-SEQUENCE"
)

// FilterManifest strips ad-break discontinuity markers from an HLS playlist.
// Providers splice ad segments at discontinuity boundaries; removing the
// marker lets players treat the remaining segments as one continuous stream.
// Every other line passes through verbatim, so the result is still a valid
// playlist and filtering an already-filtered manifest is a no-op.
//
// #EXT-X-DISCONTINUITY-SEQUENCE is a different tag and survives.
func FilterManifest(manifest string) string {
	if !strings.Contains(manifest, discontinuityTag) {
		return manifest
	}

	lines := strings.Split(manifest, "\n")
	kept := make([]string, 0, len(lines))
	dropped := 0
	for _, line := range lines {
		if isDiscontinuityMarker(line) {
			dropped++
			continue
		}
		kept = append(kept, line)
	}

	if dropped > 0 {
		metrics.ManifestLinesDropped.Add(float64(dropped))
	}
	return strings.Join(kept, "\n")
}

// isDiscontinuityMarker matches the discontinuity tag itself but not the
// SEQUENCE variant, which shares the prefix.
func isDiscontinuityMarker(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, discontinuityTag) {
		return false
	}
	return !strings.HasPrefix(trimmed, discontinuitySeqTag)
}
