package proc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// Share of the remaining slots each source may fill. A weight of 1 takes whatever is left.
const (
	weightMetadata    = 0.4
	weightSimilar     = 0.3
	weightUserTop     = 0.4
	weightGuildTop    = 0.5
	weightGlobal      = 1.0
	weightRelated     = 1.0
	guildCountWeight  = 0.7
	guildRecentWeight = 0.3
)

// SuggestionRequest asks for up to Limit tracks that could follow Seed.
type SuggestionRequest struct {
	UserID       snowflake.ID
	GuildID      snowflake.ID
	Seed         sys.Track
	Limit        int
	AllowRelated bool
}

// Suggestion blends several weighted recommendation sources into one shuffled list.
type Suggestion struct {
	history  HistoryStore
	metadata MetadataSearcher
	related  RelatedProvider

	rngMu sync.Mutex
	rng   *rand.Rand
}

type SuggestionOption func(*Suggestion)

func WithMetadataSearcher(m MetadataSearcher) SuggestionOption {
	return func(s *Suggestion) { s.metadata = m }
}

func WithRelatedProvider(r RelatedProvider) SuggestionOption {
	return func(s *Suggestion) { s.related = r }
}

// WithRand makes shuffling deterministic.
func WithRand(rng *rand.Rand) SuggestionOption {
	return func(s *Suggestion) { s.rng = rng }
}

func NewSuggestion(history HistoryStore, opts ...SuggestionOption) *Suggestion {
	s := &Suggestion{history: history}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // shuffling only
	}
	return s
}

// collector accumulates unique, valid candidates across sources.
type collector struct {
	tracks []sys.Track
	seen   map[string]struct{}
}

func newCollector(seed sys.Track) *collector {
	c := &collector{seen: make(map[string]struct{})}
	if k := seed.Key(); k != "" {
		c.seen[k] = struct{}{}
	}
	return c
}

func (c *collector) has(key string) bool {
	_, ok := c.seen[key]
	return ok
}

// take appends up to n new candidates and returns how many were accepted.
func (c *collector) take(candidates []sys.Track, n int) int {
	accepted := 0
	for _, t := range candidates {
		if accepted >= n {
			break
		}
		if !t.Valid() || c.has(t.Key()) {
			continue
		}
		t.URI = t.Key()
		c.seen[t.URI] = struct{}{}
		c.tracks = append(c.tracks, t)
		accepted++
	}
	return accepted
}

type suggestionSource struct {
	name   string
	weight float64
	fetch  func(ctx context.Context, req SuggestionRequest, c *collector, slots int) ([]sys.Track, error)
}

// GetSuggestions returns at most req.Limit unique valid tracks, never including the seed.
// A failing source is logged and contributes nothing.
func (s *Suggestion) GetSuggestions(ctx context.Context, req SuggestionRequest) []sys.Track {
	if req.Limit <= 0 {
		return nil
	}

	sources := []suggestionSource{
		{"metadata", weightMetadata, s.fromMetadata},
		{"similar", weightSimilar, s.fromSimilarHistory},
		{"user_top", weightUserTop, s.fromUserTop},
		{"guild_top", weightGuildTop, s.fromGuildTop},
		{"global", weightGlobal, s.fromGlobal},
	}
	if req.AllowRelated && s.related != nil {
		sources = append(sources, suggestionSource{"related", weightRelated, s.fromRelated})
	}

	c := newCollector(req.Seed)
	for _, src := range sources {
		remaining := req.Limit - len(c.tracks)
		if remaining <= 0 {
			break
		}
		slots := max(1, int(math.Ceil(float64(remaining)*src.weight)))
		candidates := s.runSource(ctx, src, req, c, slots)
		c.take(candidates, slots)
	}

	out := c.tracks[:0]
	for _, t := range c.tracks {
		if t.URI != "" {
			out = append(out, t)
		}
	}
	s.shuffle(out)
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out
}

// GlobalSuggestions returns the cross-guild favourites shuffled, ignoring source weighting.
func (s *Suggestion) GlobalSuggestions(ctx context.Context, limit int) []sys.Track {
	if limit <= 0 || s.history == nil {
		return nil
	}
	src := suggestionSource{name: "global_fallback"}
	tracks, err := s.safeFetch(ctx, src, func() ([]sys.Track, error) {
		return s.history.TopPlayed(ctx, sys.ScopeGlobal, sys.GlobalOwner, limit)
	})
	if err != nil {
		s.sourceFailed(src.name, err)
		return nil
	}

	c := newCollector(sys.Track{})
	c.take(tracks, limit)
	s.shuffle(c.tracks)
	return c.tracks
}

func (s *Suggestion) runSource(ctx context.Context, src suggestionSource, req SuggestionRequest, c *collector, slots int) []sys.Track {
	tracks, err := s.safeFetch(ctx, src, func() ([]sys.Track, error) {
		return src.fetch(ctx, req, c, slots)
	})
	if err != nil {
		s.sourceFailed(src.name, err)
		return nil
	}
	return tracks
}

func (s *Suggestion) safeFetch(ctx context.Context, src suggestionSource, fetch func() ([]sys.Track, error)) (tracks []sys.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogAutoplayWarn(sys.MsgAutoplaySourcePanic, src.name, r)
			tracks, err = nil, fmt.Errorf("source %s panicked: %v", src.name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fetch()
}

func (s *Suggestion) sourceFailed(name string, err error) {
	sys.LogAutoplayWarn(sys.MsgAutoplaySourceFail, name, err)
	sys.AutoplaySourceFailuresTotal.WithLabelValues(name).Inc()
}

func (s *Suggestion) shuffle(tracks []sys.Track) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

// --- Sources ---

func (s *Suggestion) fromMetadata(ctx context.Context, req SuggestionRequest, _ *collector, slots int) ([]sys.Track, error) {
	if s.metadata == nil {
		return nil, nil
	}
	// Over-fetch so the seed and duplicates don't eat the allotment.
	want := slots + 2
	tracks, err := s.metadata.SearchTracks(ctx, req.Seed.Title, req.Seed.Author, want)
	if err != nil {
		return nil, err
	}
	if len(tracks) > 0 {
		return tracks, nil
	}
	return s.metadata.SearchByAuthor(ctx, req.Seed.Author, want)
}

type scoredTrack struct {
	track sys.Track
	score float64
}

func (s *Suggestion) fromSimilarHistory(ctx context.Context, req SuggestionRequest, c *collector, slots int) ([]sys.Track, error) {
	if s.history == nil {
		return nil, nil
	}
	seedKeywords := ExtractKeywords(req.Seed.Title)

	var pool []sys.Track
	if req.UserID != 0 {
		user, err := s.history.AllHistory(ctx, sys.ScopeUser, req.UserID.String())
		if err != nil {
			return nil, err
		}
		pool = append(pool, user...)
	}
	if req.GuildID != 0 {
		guild, err := s.history.AllHistory(ctx, sys.ScopeGuild, req.GuildID.String())
		if err != nil {
			return nil, err
		}
		pool = append(pool, guild...)
	}

	ranked := rankSimilar(req.Seed, seedKeywords, pool, c)
	if len(ranked) >= slots {
		return ranked, nil
	}

	global, err := s.history.AllHistory(ctx, sys.ScopeGlobal, sys.GlobalOwner)
	if err != nil {
		// Keep what the personal histories produced.
		s.sourceFailed("similar_global", err)
		return ranked, nil
	}
	return append(ranked, rankSimilar(req.Seed, seedKeywords, global, c)...), nil
}

// rankSimilar keeps the qualifying, not yet collected tracks ordered by blended score.
func rankSimilar(seed sys.Track, seedKeywords []string, pool []sys.Track, c *collector) []sys.Track {
	seen := make(map[string]struct{})
	var scored []scoredTrack
	for _, t := range pool {
		key := t.Key()
		if !t.Valid() || c.has(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		m := matchAgainst(seed.Title, seed.Author, seedKeywords, t.Title, t.Author)
		if !m.qualifies() {
			continue
		}
		scored = append(scored, scoredTrack{track: t, score: m.score()})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]sys.Track, 0, len(scored))
	for _, st := range scored {
		out = append(out, st.track)
	}
	return out
}

func (s *Suggestion) fromUserTop(ctx context.Context, req SuggestionRequest, c *collector, slots int) ([]sys.Track, error) {
	if s.history == nil || req.UserID == 0 {
		return nil, nil
	}
	return s.history.TopPlayed(ctx, sys.ScopeUser, req.UserID.String(), slots+len(c.seen))
}

func (s *Suggestion) fromGuildTop(ctx context.Context, req SuggestionRequest, c *collector, slots int) ([]sys.Track, error) {
	if s.history == nil || req.GuildID == 0 {
		return nil, nil
	}
	tracks, err := s.history.TopPlayed(ctx, sys.ScopeGuild, req.GuildID.String(), slots+len(c.seen))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tracks, func(i, j int) bool {
		return guildScore(tracks[i]) > guildScore(tracks[j])
	})
	return tracks, nil
}

// guildScore blends play count with raw recency. Only the resulting order is meaningful.
func guildScore(t sys.Track) float64 {
	return guildCountWeight*float64(t.PlayCount) + guildRecentWeight*float64(t.LastPlayedAt.UnixMilli())
}

func (s *Suggestion) fromGlobal(ctx context.Context, _ SuggestionRequest, c *collector, slots int) ([]sys.Track, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.TopPlayed(ctx, sys.ScopeGlobal, sys.GlobalOwner, slots+len(c.seen))
}

func (s *Suggestion) fromRelated(ctx context.Context, req SuggestionRequest, _ *collector, slots int) ([]sys.Track, error) {
	return s.related.RelatedTracks(ctx, req.Seed, slots+1)
}
