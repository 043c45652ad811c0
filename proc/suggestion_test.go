package proc

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild snowflake.ID = 1001
	testUser  snowflake.ID = 2002
	testBot   snowflake.ID = 3003
)

var testSeed = sys.Track{Title: "Seed Song", Author: "Seed Artist", URI: "https://seed.example/1"}

func newTestSuggestion(h HistoryStore, opts ...SuggestionOption) *Suggestion {
	opts = append([]SuggestionOption{WithRand(rand.New(rand.NewSource(42)))}, opts...)
	return NewSuggestion(h, opts...)
}

func countPrefix(tracks []sys.Track, prefix string) int {
	n := 0
	for _, t := range tracks {
		if strings.HasPrefix(t.URI, "https://"+prefix+".") {
			n++
		}
	}
	return n
}

func assertUniqueValid(t *testing.T, tracks []sys.Track) {
	t.Helper()
	seen := make(map[string]bool)
	for _, tr := range tracks {
		require.True(t, tr.Valid(), "invalid track %+v", tr)
		require.False(t, seen[tr.Key()], "duplicate %s", tr.Key())
		seen[tr.Key()] = true
	}
}

func TestGetSuggestions_SlotAllocationPerSource(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeUser, testUser.String()}] = tracksFrom("user", 1, 20)
	h.top[historyKey{sys.ScopeGuild, testGuild.String()}] = tracksFrom("guild", 1, 20)
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = tracksFrom("global", 1, 20)
	meta := &fakeMetadata{byTitle: tracksFrom("meta", 1, 20)}
	related := &fakeRelated{tracks: tracksFrom("related", 1, 20)}

	s := newTestSuggestion(h, WithMetadataSearcher(meta), WithRelatedProvider(related))
	got := s.GetSuggestions(context.Background(), SuggestionRequest{
		UserID: testUser, GuildID: testGuild, Seed: testSeed, Limit: 10, AllowRelated: true,
	})

	require.Len(t, got, 10)
	assertUniqueValid(t, got)
	// 10*0.4 -> 4, 6*0.4 -> 3, 3*0.5 -> 2, the last slot goes to global.
	assert.Equal(t, 4, countPrefix(got, "meta"))
	assert.Equal(t, 3, countPrefix(got, "user"))
	assert.Equal(t, 2, countPrefix(got, "guild"))
	assert.Equal(t, 1, countPrefix(got, "global"))
	assert.Equal(t, 0, countPrefix(got, "related"))
	assert.Equal(t, 0, related.calls)
}

func TestGetSuggestions_DedupAcrossSourcesAndExcludesSeed(t *testing.T) {
	shared := tracksFrom("shared", 1, 5)
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeUser, testUser.String()}] = shared
	h.top[historyKey{sys.ScopeGuild, testGuild.String()}] = shared
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = append([]sys.Track{testSeed}, shared...)
	meta := &fakeMetadata{byTitle: append([]sys.Track{testSeed, testSeed}, shared[:2]...)}

	s := newTestSuggestion(h, WithMetadataSearcher(meta))
	got := s.GetSuggestions(context.Background(), SuggestionRequest{
		UserID: testUser, GuildID: testGuild, Seed: testSeed, Limit: 20,
	})

	assertUniqueValid(t, got)
	assert.Len(t, got, 5)
	for _, tr := range got {
		assert.NotEqual(t, testSeed.Key(), tr.Key())
	}
}

func TestGetSuggestions_NeverExceedsLimit(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = tracksFrom("global", 1, 50)
	related := &fakeRelated{tracks: tracksFrom("related", 1, 50)}
	s := newTestSuggestion(h, WithRelatedProvider(related))

	for _, limit := range []int{1, 2, 3, 7, 21} {
		got := s.GetSuggestions(context.Background(), SuggestionRequest{
			GuildID: testGuild, Seed: testSeed, Limit: limit, AllowRelated: true,
		})
		assert.LessOrEqual(t, len(got), limit)
		assertUniqueValid(t, got)
	}

	assert.Empty(t, s.GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 0}))
}

func TestGetSuggestions_DropsInvalidCandidates(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = []sys.Track{
		{Title: "No URI", Author: "A"},
		{Title: "No Author", URI: "https://x/1"},
		{Title: "  ", Author: "A", URI: "https://x/2"},
		{Title: "Ok", Author: "A", URI: " https://x/3 "},
	}
	s := newTestSuggestion(h)

	got := s.GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 5})
	require.Len(t, got, 1)
	assert.Equal(t, "https://x/3", got[0].URI)
}

func TestGetSuggestions_FailingSourcesContributeNothing(t *testing.T) {
	h := newFakeHistory()
	h.err = errors.New("db down")
	meta := &fakeMetadata{byTitle: tracksFrom("meta", 1, 3)}
	related := &fakeRelated{tracks: tracksFrom("related", 1, 10)}

	s := newTestSuggestion(h, WithMetadataSearcher(meta), WithRelatedProvider(related))
	got := s.GetSuggestions(context.Background(), SuggestionRequest{
		UserID: testUser, GuildID: testGuild, Seed: testSeed, Limit: 7, AllowRelated: true,
	})

	assertUniqueValid(t, got)
	assert.Equal(t, 3, countPrefix(got, "meta"))
	assert.Equal(t, 4, countPrefix(got, "related"))
}

func TestGetSuggestions_PanickingSourceIsContained(t *testing.T) {
	h := newFakeHistory()
	h.panicMsg = "boom"
	related := &fakeRelated{tracks: tracksFrom("related", 1, 10)}

	s := newTestSuggestion(h, WithRelatedProvider(related))
	var got []sys.Track
	require.NotPanics(t, func() {
		got = s.GetSuggestions(context.Background(), SuggestionRequest{
			UserID: testUser, GuildID: testGuild, Seed: testSeed, Limit: 5, AllowRelated: true,
		})
	})
	assert.Len(t, got, 5)
	assert.Equal(t, 5, countPrefix(got, "related"))
}

func TestGetSuggestions_MetadataFallsBackToAuthor(t *testing.T) {
	meta := &fakeMetadata{byAuthor: tracksFrom("author", 1, 10)}
	s := newTestSuggestion(nil, WithMetadataSearcher(meta))

	got := s.GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 5})
	assert.Equal(t, 2, meta.calls)
	// Only the metadata slots (ceil(5*0.4)) can be filled without history.
	assert.Len(t, got, 2)
	assert.Equal(t, 2, countPrefix(got, "author"))
}

func TestGetSuggestions_MetadataErrorSkipsAuthorSearch(t *testing.T) {
	meta := &fakeMetadata{err: errors.New("breaker open"), byAuthor: tracksFrom("author", 1, 10)}
	s := newTestSuggestion(nil, WithMetadataSearcher(meta))

	got := s.GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 5})
	assert.Empty(t, got)
	assert.Equal(t, 1, meta.calls)
}

func TestGetSuggestions_CanceledContext(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = tracksFrom("global", 1, 10)
	s := newTestSuggestion(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, s.GetSuggestions(ctx, SuggestionRequest{Seed: testSeed, Limit: 5}))
}

func TestGetSuggestions_SimilarHistory(t *testing.T) {
	seed := sys.Track{Title: "Blinding Lights", Author: "The Weeknd", URI: "https://yt/seed"}
	h := newFakeHistory()
	h.all[historyKey{sys.ScopeUser, testUser.String()}] = []sys.Track{
		{Title: "Bohemian Rhapsody", Author: "Queen", URI: "https://yt/queen"},
		{Title: "Save Your Tears", Author: "The Weeknd", URI: "https://yt/tears"},
	}
	h.all[historyKey{sys.ScopeGuild, testGuild.String()}] = []sys.Track{
		{Title: "Blinding Lights (Live)", Author: "Cover Band", URI: "https://yt/cover"},
	}

	s := newTestSuggestion(h)
	got := s.GetSuggestions(context.Background(), SuggestionRequest{
		UserID: testUser, GuildID: testGuild, Seed: seed, Limit: 10,
	})

	uris := make([]string, 0, len(got))
	for _, tr := range got {
		uris = append(uris, tr.URI)
	}
	// 10*0.3 -> 3 slots, two qualify, the Queen track does not.
	assert.ElementsMatch(t, []string{"https://yt/tears", "https://yt/cover"}, uris)
}

func TestRankSimilar_OrdersByBlendedScore(t *testing.T) {
	seed := sys.Track{Title: "Blinding Lights", Author: "The Weeknd", URI: "https://yt/seed"}
	pool := []sys.Track{
		{Title: "Blinding Lights (Live)", Author: "Cover Band", URI: "https://yt/cover"},
		{Title: "Save Your Tears", Author: "The Weeknd", URI: "https://yt/tears"},
		{Title: "Save Your Tears", Author: "The Weeknd", URI: "https://yt/tears"},
		{Title: "Bohemian Rhapsody", Author: "Queen", URI: "https://yt/queen"},
	}

	got := rankSimilar(seed, ExtractKeywords(seed.Title), pool, newCollector(seed))
	require.Len(t, got, 2)
	assert.Equal(t, "https://yt/tears", got[0].URI)
	assert.Equal(t, "https://yt/cover", got[1].URI)
}

func TestGetSuggestions_SimilarBackfillsFromGlobal(t *testing.T) {
	seed := sys.Track{Title: "Blinding Lights", Author: "The Weeknd", URI: "https://yt/seed"}
	h := newFakeHistory()
	h.all[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = []sys.Track{
		{Title: "Starboy", Author: "The Weeknd", URI: "https://yt/starboy"},
	}

	s := newTestSuggestion(h)
	got := s.GetSuggestions(context.Background(), SuggestionRequest{
		UserID: testUser, GuildID: testGuild, Seed: seed, Limit: 4,
	})
	require.Len(t, got, 1)
	assert.Equal(t, "https://yt/starboy", got[0].URI)
}

func TestGuildTop_RanksByCountThenRecency(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := sys.Track{Title: "Older", Author: "A", URI: "https://g/older", PlayCount: 5, LastPlayedAt: now.Add(-time.Hour)}
	newer := sys.Track{Title: "Newer", Author: "A", URI: "https://g/newer", PlayCount: 5, LastPlayedAt: now}

	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGuild, testGuild.String()}] = []sys.Track{older, newer}
	s := newTestSuggestion(h)

	got, err := s.fromGuildTop(context.Background(), SuggestionRequest{GuildID: testGuild, Seed: testSeed}, newCollector(testSeed), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.URI, got[0].URI)
	assert.Greater(t, guildScore(newer), guildScore(older))
}

func TestGetSuggestions_ShuffleIsDeterministicWithSeededRand(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = tracksFrom("global", 1, 10)

	a := newTestSuggestion(h).GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 10})
	b := newTestSuggestion(h).GetSuggestions(context.Background(), SuggestionRequest{Seed: testSeed, Limit: 10})
	assert.Equal(t, a, b)
	assert.ElementsMatch(t, tracksFrom("global", 1, 10), a)
}

func TestGlobalSuggestions(t *testing.T) {
	h := newFakeHistory()
	h.top[historyKey{sys.ScopeGlobal, sys.GlobalOwner}] = append(tracksFrom("global", 1, 4), tracksFrom("global", 1, 2)...)
	s := newTestSuggestion(h)

	got := s.GlobalSuggestions(context.Background(), 10)
	assert.Len(t, got, 4)
	assertUniqueValid(t, got)

	assert.Len(t, s.GlobalSuggestions(context.Background(), 2), 2)
	assert.Nil(t, s.GlobalSuggestions(context.Background(), 0))
	assert.Nil(t, newTestSuggestion(nil).GlobalSuggestions(context.Background(), 5))

	h.err = errors.New("down")
	assert.Empty(t, s.GlobalSuggestions(context.Background(), 5))
}
