package proc

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

type fakeSpotify struct {
	queries []string
	result  *spotify.SearchResult
	err     error
}

func (f *fakeSpotify) Search(_ context.Context, query string, _ spotify.SearchType, _ ...spotify.RequestOption) (*spotify.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func fullTrack(id, name, artist string) spotify.FullTrack {
	var ft spotify.FullTrack
	ft.ID = spotify.ID(id)
	ft.Name = name
	if artist != "" {
		ft.Artists = []spotify.SimpleArtist{{Name: artist}}
	}
	ft.Duration = 215000
	return ft
}

func TestQuoteField(t *testing.T) {
	assert.Equal(t, "Queen", quoteField(" Queen "))
	assert.Equal(t, `"The Weeknd"`, quoteField("The Weeknd"))
	assert.Equal(t, `"Say Hi"`, quoteField(`Say "Hi"`))
}

func TestSpotifyTrack(t *testing.T) {
	ft := fullTrack("abc123", "Blinding Lights", "The Weeknd")
	ft.Album.Images = []spotify.Image{{URL: "https://i.scdn.co/cover.jpg"}}

	got, ok := spotifyTrack(ft)
	require.True(t, ok)
	assert.Equal(t, "Blinding Lights", got.Title)
	assert.Equal(t, "The Weeknd", got.Author)
	assert.Equal(t, "https://open.spotify.com/track/abc123", got.URI)
	assert.EqualValues(t, 215000, got.DurationMs)
	assert.Equal(t, SourceSpotify, got.SourceName)
	assert.Equal(t, "https://i.scdn.co/cover.jpg", got.Thumbnail)

	ft.ExternalURLs = map[string]string{"spotify": "https://open.spotify.com/track/ext"}
	got, ok = spotifyTrack(ft)
	require.True(t, ok)
	assert.Equal(t, "https://open.spotify.com/track/ext", got.URI)

	_, ok = spotifyTrack(fullTrack("abc", "No Artist", ""))
	assert.False(t, ok)
	_, ok = spotifyTrack(fullTrack("", "No Link", "Someone"))
	assert.False(t, ok)
}

func TestSpotifyMetadata_SearchTracks(t *testing.T) {
	fake := &fakeSpotify{result: &spotify.SearchResult{Tracks: &spotify.FullTrackPage{
		Tracks: []spotify.FullTrack{
			fullTrack("a", "Save Your Tears", "The Weeknd"),
			fullTrack("b", "", "The Weeknd"),
			fullTrack("c", "Starboy", "The Weeknd"),
		},
	}}}
	s := newSpotifyMetadata(fake)

	got, err := s.SearchTracks(context.Background(), "Blinding Lights", "The Weeknd", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Save Your Tears", got[0].Title)
	assert.Equal(t, []string{`track:"Blinding Lights" artist:"The Weeknd"`}, fake.queries)
}

func TestSpotifyMetadata_SearchByAuthor(t *testing.T) {
	fake := &fakeSpotify{result: &spotify.SearchResult{}}
	s := newSpotifyMetadata(fake)

	got, err := s.SearchByAuthor(context.Background(), "Queen", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{"artist:Queen"}, fake.queries)

	got, err = s.SearchByAuthor(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, fake.queries, 1)

	got, err = s.SearchTracks(context.Background(), "x", "y", 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, fake.queries, 1)
}

func TestSpotifyMetadata_BreakerOpensAfterFailures(t *testing.T) {
	fake := &fakeSpotify{err: errors.New("503")}
	s := newSpotifyMetadata(fake)

	for i := 0; i < 5; i++ {
		_, err := s.SearchByAuthor(context.Background(), "Queen", 5)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := s.SearchByAuthor(context.Background(), "Queen", 5)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, fake.queries, 5)
	assert.Equal(t, gobreaker.StateOpen, s.cb.State())
}
