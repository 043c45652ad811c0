package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":              "dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=abc123&list=RDAMVMabc":  "abc123",
		"https://youtu.be/xyz789?t=42":                             "xyz789",
		"https://www.youtube.com/shorts/short1?feature=share":      "short1",
		"https://www.youtube.com/playlist?list=PL1234567890":       "",
		"https://soundcloud.com/artist/track":                      "",
		"":                                                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractVideoID(in), in)
	}
}

func TestIsPlaylistURL(t *testing.T) {
	assert.True(t, isPlaylistURL("https://www.youtube.com/playlist?list=PL123"))
	assert.False(t, isPlaylistURL("https://www.youtube.com/watch?v=abc&list=RDabc"))
	assert.False(t, isPlaylistURL("https://www.youtube.com/watch?v=abc"))
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com"))
	assert.True(t, isURL("http://example.com"))
	assert.False(t, isURL("never gonna give you up"))
}

func TestParseDurationColon(t *testing.T) {
	assert.Equal(t, 3*time.Minute+20*time.Second, parseDurationColon("3:20"))
	assert.Equal(t, time.Hour+5*time.Minute+20*time.Second, parseDurationColon(" 1:05:20 "))
	assert.Zero(t, parseDurationColon("42"))
	assert.Zero(t, parseDurationColon("a:b"))
	assert.Zero(t, parseDurationColon("1:2:3:4"))
	assert.Zero(t, parseDurationColon(""))
}

func TestEntriesToTracks(t *testing.T) {
	entries := []ytdlpPlaylistEntry{
		{URL: "https://www.youtube.com/watch?v=seed", Title: "Seed", Uploader: "A"},
		{URL: " https://www.youtube.com/watch?v=one ", Title: " One ", Uploader: " B ", Duration: 90 * time.Second},
		{URL: "not a video", Title: "Broken", Uploader: "C"},
	}

	got := entriesToTracks(entries, "seed")
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=one", got[0].URI)
	assert.Equal(t, "One", got[0].Title)
	assert.Equal(t, "B", got[0].Author)
	assert.EqualValues(t, 90000, got[0].DurationMs)
	assert.Equal(t, "https://i.ytimg.com/vi/one/hqdefault.jpg", got[0].Thumbnail)
}

func TestYouTubeSearch_ShortCircuits(t *testing.T) {
	y := NewYouTubeSearch(0)

	res, err := y.SearchByURIOrText(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, SearchEmpty, res.Status)

	res, err = y.SearchByURIOrText(context.Background(), "https://open.spotify.com/track/abc")
	require.NoError(t, err)
	assert.Equal(t, SearchEmpty, res.Status)
	assert.Empty(t, res.Tracks)
}

func TestYouTubeSearch_CanceledContext(t *testing.T) {
	y := NewYouTubeSearch(1)
	// Drain the burst so the next call has to wait on the limiter.
	for y.limiter.Allow() {
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := y.SearchByURIOrText(ctx, "some song")
	require.Error(t, err)
	assert.Equal(t, SearchError, res.Status)
}
