package proc

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// Player is the queue of a single guild.
type Player interface {
	QueueSize() int
	Enqueue(t sys.Track) error
	IsPlaying() bool
	StartPlayback() error
}

// Players looks up the live player of a guild.
type Players interface {
	Player(guildID snowflake.ID) (Player, bool)
}

type SearchStatus string

const (
	SearchTrack    SearchStatus = "track"
	SearchSearch   SearchStatus = "search"
	SearchPlaylist SearchStatus = "playlist"
	SearchEmpty    SearchStatus = "empty"
	SearchError    SearchStatus = "error"
)

type SearchResult struct {
	Status SearchStatus
	Tracks []sys.Track
}

// SearchProvider resolves a URI or free text into playable tracks.
type SearchProvider interface {
	SearchByURIOrText(ctx context.Context, query string) (SearchResult, error)
}

// RelatedProvider is the optional "more like this" capability of a search backend.
type RelatedProvider interface {
	RelatedTracks(ctx context.Context, seed sys.Track, limit int) ([]sys.Track, error)
}

// HistoryStore is the read side of the listening history.
type HistoryStore interface {
	TopPlayed(ctx context.Context, scope sys.HistoryScope, ownerID string, limit int) ([]sys.Track, error)
	AllHistory(ctx context.Context, scope sys.HistoryScope, ownerID string) ([]sys.Track, error)
}

// MetadataSearcher finds tracks by title and artist in an external catalogue.
type MetadataSearcher interface {
	SearchTracks(ctx context.Context, title, author string, limit int) ([]sys.Track, error)
	SearchByAuthor(ctx context.Context, author string, limit int) ([]sys.Track, error)
}

// Notifier delivers a best-effort message to a guild.
type Notifier interface {
	NotifyGuild(ctx context.Context, guildID snowflake.ID, message string)
}

// TrackEvents lets the autoplay engine follow playback without owning the player.
type TrackEvents interface {
	OnTrackFinished(handler func(guildID snowflake.ID, t sys.Track))
	OnPlayerDestroyed(handler func(guildID snowflake.ID))
}
