package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamhub/work/types"
)

func movie(source, title, year string) types.SearchResult {
	return types.SearchResult{
		Source:     source,
		SourceName: "Source " + source,
		Title:      title,
		Year:       year,
		Episodes:   []string{"http://example.com/" + source + "/full"},
	}
}

func series(source, title, year string, episodes int) types.SearchResult {
	r := movie(source, title, year)
	r.Episodes = make([]string, episodes)
	for i := range r.Episodes {
		r.Episodes[i] = "http://example.com/ep"
	}
	return r
}

func TestGroupKeyIgnoresCaseAndWhitespace(t *testing.T) {
	a := movie("a", "Breaking Bad", "2008")
	b := movie("b", "breaking  bad", "2008")
	c := movie("c", "BREAKINGBAD", "2008")

	keyA := GroupKey(&a)
	assert.Equal(t, keyA, GroupKey(&b))
	assert.Equal(t, keyA, GroupKey(&c))
}

func TestGroupKeySplitsOnYearAndClass(t *testing.T) {
	base := movie("a", "Remake", "1990")
	remake := movie("b", "Remake", "2020")
	show := series("c", "Remake", "1990", 8)

	assert.NotEqual(t, GroupKey(&base), GroupKey(&remake))
	assert.NotEqual(t, GroupKey(&base), GroupKey(&show))
}

func TestGroupAndAggregatePreservesFirstSeenOrder(t *testing.T) {
	results := []types.SearchResult{
		movie("a", "Zebra", "2020"),
		movie("a", "Alpha", "2021"),
		movie("b", "Zebra", "2020"),
	}

	groups := GroupAndAggregate(results)

	require.Len(t, groups, 2)
	assert.Equal(t, "Zebra", groups[0].Title)
	assert.Equal(t, "Alpha", groups[1].Title)
	assert.Len(t, groups[0].Members, 2)
}

func TestGroupStatsModeWithFirstSeenTieBreak(t *testing.T) {
	results := []types.SearchResult{
		series("a", "Show", "2022", 12),
		series("b", "Show", "2022", 10),
		series("c", "Show", "2022", 12),
		series("d", "Show", "2022", 10),
	}

	groups := GroupAndAggregate(results)

	require.Len(t, groups, 1)
	// 12 and 10 both appear twice; 12 was seen first
	assert.Equal(t, 12, groups[0].EpisodeCount)
}

func TestGroupSourceNamesDistinctInOrder(t *testing.T) {
	results := []types.SearchResult{
		movie("a", "Film", "2019"),
		movie("b", "Film", "2019"),
		movie("a", "Film", "2019"),
	}

	groups := GroupAndAggregate(results)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Source a", "Source b"}, groups[0].SourceNames)
}

func TestGroupDoubanIDSkipsEmpty(t *testing.T) {
	a := movie("a", "Film", "2019")
	b := movie("b", "Film", "2019")
	c := movie("c", "Film", "2019")
	b.DoubanID = "12345"
	c.DoubanID = "12345"

	groups := GroupAndAggregate([]types.SearchResult{a, b, c})

	require.Len(t, groups, 1)
	assert.Equal(t, "12345", groups[0].DoubanID)
}

func TestKeywordFilterDropsBlockedClassifications(t *testing.T) {
	kf := NewKeywordFilter([]string{"伦理片", "福利"})

	results := []types.SearchResult{
		{Title: "keep", TypeName: "剧情片"},
		{Title: "drop", TypeName: "伦理片"},
		{Title: "drop-substring", TypeName: "午夜福利视频"},
	}

	filtered := kf.Filter(results, true)

	require.Len(t, filtered, 1)
	assert.Equal(t, "keep", filtered[0].Title)
}

func TestKeywordFilterCaseInsensitive(t *testing.T) {
	kf := NewKeywordFilter([]string{"swag"})

	results := []types.SearchResult{{Title: "drop", TypeName: "SWAG station"}}
	assert.Empty(t, kf.Filter(results, true))
}

func TestKeywordFilterDisabledPassesThrough(t *testing.T) {
	kf := NewKeywordFilter([]string{"伦理片"})

	results := []types.SearchResult{{Title: "kept", TypeName: "伦理片"}}
	assert.Len(t, kf.Filter(results, false), 1)
}

func TestKeywordFilterEmptyBlocklistKeepsEverything(t *testing.T) {
	kf := NewKeywordFilter(nil)

	results := []types.SearchResult{{Title: "a", TypeName: "anything"}}
	assert.Len(t, kf.Filter(results, true), 1)
}

func TestKeywordFilterReload(t *testing.T) {
	kf := NewKeywordFilter(nil)
	results := []types.SearchResult{{Title: "x", TypeName: "福利"}}

	assert.Len(t, kf.Filter(results, true), 1)

	kf.Reload([]string{"福利"})
	assert.Empty(t, kf.Filter(results, true))
}
