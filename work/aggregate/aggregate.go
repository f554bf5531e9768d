package aggregate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/grafana/regexp"

	"streamhub/work/logger"
	"streamhub/work/types"
	"streamhub/work/utils"
)

// KeywordFilter holds the compiled content-classification blocklist. The
// pattern is rebuilt only when the blocklist changes, so the per-result path
// is a single regexp match.
type KeywordFilter struct {
	mu       sync.RWMutex
	keywords []string
	pattern  *regexp.Regexp
}

// NewKeywordFilter compiles a blocklist of classification keywords into a
// case-insensitive substring matcher. Keywords that won't quote cleanly are
// skipped rather than failing the whole filter.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	kf := &KeywordFilter{}
	kf.Reload(keywords)
	return kf
}

// Reload replaces the compiled blocklist.
func (kf *KeywordFilter) Reload(keywords []string) {
	kf.mu.Lock()
	defer kf.mu.Unlock()

	kf.keywords = keywords
	kf.pattern = nil
	if len(keywords) == 0 {
		return
	}

	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return
	}

	pattern, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
	if err != nil {
		logger.Error("{aggregate - Reload} failed to compile blocklist pattern: %v", err)
		return
	}
	kf.pattern = pattern
}

// blocked reports whether a content-type classification hits the blocklist.
func (kf *KeywordFilter) blocked(typeName string) bool {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return kf.pattern != nil && kf.pattern.MatchString(typeName)
}

// Filter applies the content-classification blocklist. Filtering is on by
// default and disabled only via explicit configuration; when disabled the
// input passes through untouched.
func (kf *KeywordFilter) Filter(results []types.SearchResult, enabled bool) []types.SearchResult {
	if !enabled {
		return results
	}

	filtered := make([]types.SearchResult, 0, len(results))
	for _, result := range results {
		if kf.blocked(result.TypeName) {
			logger.Debug("{aggregate - Filter} dropped %q (classification: %s)", result.Title, result.TypeName)
			continue
		}
		filtered = append(filtered, result)
	}

	return filtered
}

// modeCounter tracks "most frequent value wins, first-seen breaks ties"
// incrementally as members are appended to a group.
type modeCounter[T comparable] struct {
	counts map[T]int
	order  []T // first-seen order for tie breaking
}

func newModeCounter[T comparable]() *modeCounter[T] {
	return &modeCounter[T]{counts: make(map[T]int)}
}

func (m *modeCounter[T]) add(value T) {
	if _, seen := m.counts[value]; !seen {
		m.order = append(m.order, value)
	}
	m.counts[value]++
}

func (m *modeCounter[T]) mode() T {
	var best T
	bestCount := 0
	for _, value := range m.order {
		if m.counts[value] > bestCount {
			best = value
			bestCount = m.counts[value]
		}
	}
	return best
}

// groupState pairs a building AggregateGroup with its incremental counters.
type groupState struct {
	group        *types.AggregateGroup
	episodeCount *modeCounter[int]
	doubanID     *modeCounter[string]
	sourceSeen   map[string]bool
}

// GroupKey derives a group's stable identity: normalized title + year +
// movie/tv classification. Keys do not depend on arrival order, so the same
// search session always produces the same grouping regardless of which
// provider answered first.
func GroupKey(result *types.SearchResult) string {
	return fmt.Sprintf("%s|%s|%s", utils.NormalizeTitle(result.Title), result.Year, result.Class())
}

// GroupAndAggregate collapses same-title candidates into aggregate groups.
// New groups are appended in first-seen order; this component never
// re-sorts them — presentation-layer sorting is someone else's job. Each
// append recomputes the derived stats: dominant episode count, the set of
// distinct source names, and the dominant external rating id, each by
// "most frequent value" with ties broken by first-encountered value.
func GroupAndAggregate(results []types.SearchResult) []types.AggregateGroup {
	states := make(map[string]*groupState)
	var order []string

	for _, result := range results {
		key := GroupKey(&result)

		state, exists := states[key]
		if !exists {
			state = &groupState{
				group: &types.AggregateGroup{
					Key:   key,
					Title: result.Title,
					Year:  result.Year,
					Class: result.Class(),
				},
				episodeCount: newModeCounter[int](),
				doubanID:     newModeCounter[string](),
				sourceSeen:   make(map[string]bool),
			}
			states[key] = state
			order = append(order, key)
		}

		state.group.Members = append(state.group.Members, result)

		state.episodeCount.add(len(result.Episodes))
		state.group.EpisodeCount = state.episodeCount.mode()

		if !state.sourceSeen[result.SourceName] {
			state.sourceSeen[result.SourceName] = true
			state.group.SourceNames = append(state.group.SourceNames, result.SourceName)
		}

		if result.DoubanID != "" {
			state.doubanID.add(result.DoubanID)
			state.group.DoubanID = state.doubanID.mode()
		}
	}

	groups := make([]types.AggregateGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *states[key].group)
	}

	return groups
}
