package sys

import (
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is a normalized song reference shared by the player, the history
// stores and the autoplay engine.
type Track struct {
	Title        string       `json:"title" bson:"title"`
	Author       string       `json:"author" bson:"author"`
	URI          string       `json:"uri" bson:"uri"`
	DurationMs   int64        `json:"duration_ms" bson:"duration_ms"`
	SourceName   string       `json:"source_name" bson:"source_name"`
	Thumbnail    string       `json:"thumbnail" bson:"thumbnail"`
	RequesterID  snowflake.ID `json:"requester_id" bson:"requester_id"`
	PlayCount    int          `json:"play_count" bson:"play_count"`
	LastPlayedAt time.Time    `json:"last_played_at" bson:"last_played_at"`
}

// Key is the identity of a track. Two tracks are the same song iff their keys match.
func (t Track) Key() string {
	return strings.TrimSpace(t.URI)
}

// Valid reports whether the track carries enough metadata to be ranked.
func (t Track) Valid() bool {
	return t.Key() != "" && strings.TrimSpace(t.Title) != "" && strings.TrimSpace(t.Author) != ""
}

// Duration converts DurationMs for display.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Query is the textual "author - title" form used when a URI cannot be resolved directly.
func (t Track) Query() string {
	author, title := strings.TrimSpace(t.Author), strings.TrimSpace(t.Title)
	if author == "" {
		return title
	}
	return author + " - " + title
}

// HistoryScope selects whose listening history a store query reads.
type HistoryScope string

const (
	ScopeUser   HistoryScope = "user"
	ScopeGuild  HistoryScope = "guild"
	ScopeGlobal HistoryScope = "global"
)

// GlobalOwner is the owner key used for the cross-guild history.
const GlobalOwner = "global"
