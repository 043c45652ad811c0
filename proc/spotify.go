package proc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leeineian/jukebox/sys"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

const SourceSpotify = "spotify"

// trackSearcher is the slice of the Spotify client the metadata source needs.
type trackSearcher interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
}

// SpotifyMetadata searches the Spotify catalogue for tracks similar to a seed.
// Calls go through a circuit breaker so a dead API does not slow every cycle.
type SpotifyMetadata struct {
	client trackSearcher
	cb     *gobreaker.CircuitBreaker[[]spotify.FullTrack]
}

// NewSpotifyMetadata authenticates with client credentials.
func NewSpotifyMetadata(ctx context.Context, clientID, clientSecret string) *SpotifyMetadata {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newSpotifyMetadata(spotify.New(config.Client(ctx)))
}

func newSpotifyMetadata(client trackSearcher) *SpotifyMetadata {
	cb := gobreaker.NewCircuitBreaker[[]spotify.FullTrack](gobreaker.Settings{
		Name:        "spotify-search",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			sys.LogSearch(sys.MsgSearchBreakerStateChange, name, from.String(), to.String())
			sys.CircuitBreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
		},
	})
	return &SpotifyMetadata{client: client, cb: cb}
}

func (s *SpotifyMetadata) SearchTracks(ctx context.Context, title, author string, limit int) ([]sys.Track, error) {
	q := "track:" + quoteField(title)
	if author != "" {
		q += " artist:" + quoteField(author)
	}
	return s.search(ctx, q, limit)
}

func (s *SpotifyMetadata) SearchByAuthor(ctx context.Context, author string, limit int) ([]sys.Track, error) {
	if strings.TrimSpace(author) == "" {
		return nil, nil
	}
	return s.search(ctx, "artist:"+quoteField(author), limit)
}

func (s *SpotifyMetadata) search(ctx context.Context, query string, limit int) ([]sys.Track, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, 50)

	found, err := s.cb.Execute(func() ([]spotify.FullTrack, error) {
		res, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
		if err != nil {
			return nil, err
		}
		if res == nil || res.Tracks == nil {
			return nil, nil
		}
		return res.Tracks.Tracks, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("spotify unavailable: %w", err)
		}
		return nil, err
	}

	tracks := make([]sys.Track, 0, len(found))
	for _, ft := range found {
		if t, ok := spotifyTrack(ft); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func spotifyTrack(ft spotify.FullTrack) (sys.Track, bool) {
	if ft.Name == "" || len(ft.Artists) == 0 {
		return sys.Track{}, false
	}
	uri := ft.ExternalURLs["spotify"]
	if uri == "" && ft.ID != "" {
		uri = "https://open.spotify.com/track/" + string(ft.ID)
	}
	if uri == "" {
		return sys.Track{}, false
	}

	t := sys.Track{
		Title:      ft.Name,
		Author:     ft.Artists[0].Name,
		URI:        uri,
		DurationMs: int64(ft.Duration),
		SourceName: SourceSpotify,
	}
	if len(ft.Album.Images) > 0 {
		t.Thumbnail = ft.Album.Images[0].URL
	}
	return t, true
}

// quoteField keeps multi-word values together in a Spotify field filter.
func quoteField(v string) string {
	v = strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
	if strings.ContainsRune(v, ' ') {
		return `"` + v + `"`
	}
	return v
}
