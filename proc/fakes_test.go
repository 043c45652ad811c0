package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

type fakePlayer struct {
	mu         sync.Mutex
	queue      []sys.Track
	playing    bool
	starts     int
	enqueueErr error
}

func (p *fakePlayer) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *fakePlayer) Enqueue(t sys.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enqueueErr != nil {
		return p.enqueueErr
	}
	p.queue = append(p.queue, t)
	return nil
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) StartPlayback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	p.playing = true
	return nil
}

func (p *fakePlayer) Enqueued() []sys.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sys.Track(nil), p.queue...)
}

type fakePlayers map[snowflake.ID]*fakePlayer

func (f fakePlayers) Player(guildID snowflake.ID) (Player, bool) {
	p, ok := f[guildID]
	if !ok {
		return nil, false
	}
	return p, true
}

// fakeSearch resolves any URI to itself unless it is listed in fail.
type fakeSearch struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (s *fakeSearch) SearchByURIOrText(_ context.Context, query string) (SearchResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	fail := s.fail[query]
	s.mu.Unlock()

	if fail {
		return SearchResult{Status: SearchError}, errors.New("lookup failed")
	}
	return SearchResult{
		Status: SearchTrack,
		Tracks: []sys.Track{{Title: "Resolved " + query, Author: "Resolver", URI: query}},
	}, nil
}

func (s *fakeSearch) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeSuggester struct {
	mu          sync.Mutex
	suggestions [][]sys.Track
	global      []sys.Track
	requests    []SuggestionRequest
	globalCalls int
	block       chan struct{}
	panicMsg    string
}

func (s *fakeSuggester) GetSuggestions(_ context.Context, req SuggestionRequest) []sys.Track {
	if s.block != nil {
		<-s.block
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.suggestions) == 0 {
		return nil
	}
	next := s.suggestions[0]
	if len(s.suggestions) > 1 {
		s.suggestions = s.suggestions[1:]
	}
	return next
}

func (s *fakeSuggester) GlobalSuggestions(_ context.Context, limit int) []sys.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalCalls++
	if len(s.global) > limit {
		return s.global[:limit]
	}
	return s.global
}

func (s *fakeSuggester) Requests() []SuggestionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SuggestionRequest(nil), s.requests...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) NotifyGuild(_ context.Context, _ snowflake.ID, message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func (n *fakeNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type historyKey struct {
	scope sys.HistoryScope
	owner string
}

// fakeHistory serves fixed tracks per scope and owner.
type fakeHistory struct {
	top      map[historyKey][]sys.Track
	all      map[historyKey][]sys.Track
	err      error
	panicMsg string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		top: make(map[historyKey][]sys.Track),
		all: make(map[historyKey][]sys.Track),
	}
}

func (h *fakeHistory) TopPlayed(_ context.Context, scope sys.HistoryScope, ownerID string, limit int) ([]sys.Track, error) {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	if h.err != nil {
		return nil, h.err
	}
	tracks := h.top[historyKey{scope, ownerID}]
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return append([]sys.Track(nil), tracks...), nil
}

func (h *fakeHistory) AllHistory(_ context.Context, scope sys.HistoryScope, ownerID string) ([]sys.Track, error) {
	if h.err != nil {
		return nil, h.err
	}
	return append([]sys.Track(nil), h.all[historyKey{scope, ownerID}]...), nil
}

type fakeMetadata struct {
	byTitle  []sys.Track
	byAuthor []sys.Track
	err      error
	calls    int
}

func (m *fakeMetadata) SearchTracks(_ context.Context, _, _ string, limit int) ([]sys.Track, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return capTracks(m.byTitle, limit), nil
}

func (m *fakeMetadata) SearchByAuthor(_ context.Context, _ string, limit int) ([]sys.Track, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return capTracks(m.byAuthor, limit), nil
}

type fakeRelated struct {
	tracks []sys.Track
	calls  int
}

func (r *fakeRelated) RelatedTracks(_ context.Context, _ sys.Track, limit int) ([]sys.Track, error) {
	r.calls++
	return capTracks(r.tracks, limit), nil
}

func capTracks(tracks []sys.Track, limit int) []sys.Track {
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return append([]sys.Track(nil), tracks...)
}

func tracksFrom(prefix string, from, to int) []sys.Track {
	var out []sys.Track
	for i := from; i <= to; i++ {
		out = append(out, sys.Track{
			Title:  fmt.Sprintf("%s title %d", prefix, i),
			Author: fmt.Sprintf("%s artist", prefix),
			URI:    fmt.Sprintf("https://%s.example/%d", prefix, i),
		})
	}
	return out
}
