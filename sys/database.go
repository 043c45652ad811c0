package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sql.DB

// OpenDatabase opens a sqlite database, applies the pragmas and creates the schema.
func OpenDatabase(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := db.BeginTx(initCtx, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS track_plays (
			scope TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			uri TEXT NOT NULL,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			duration_ms INTEGER DEFAULT 0,
			source_name TEXT,
			thumbnail TEXT,
			play_count INTEGER DEFAULT 1,
			last_played_at INTEGER NOT NULL,
			PRIMARY KEY (scope, owner_id, uri)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_track_plays_top
			ON track_plays (scope, owner_id, play_count DESC)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitDatabase(ctx context.Context, dataSourceName string) error {
	db, err := OpenDatabase(ctx, dataSourceName)
	if err != nil {
		return err
	}
	DB = db
	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for command hash tracking.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Play History ---

// HistoryWriter records finished plays into a listening history backend.
type HistoryWriter interface {
	RecordPlay(ctx context.Context, guildID, userID snowflake.ID, t Track) error
}

// playOwners lists the (scope, owner) rows a single play updates.
func playOwners(guildID, userID snowflake.ID) [][2]string {
	owners := [][2]string{{string(ScopeGlobal), GlobalOwner}}
	if guildID != 0 {
		owners = append(owners, [2]string{string(ScopeGuild), guildID.String()})
	}
	if userID != 0 {
		owners = append(owners, [2]string{string(ScopeUser), userID.String()})
	}
	return owners
}

type SQLiteHistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteHistoryStore(db *sql.DB) *SQLiteHistoryStore {
	return &SQLiteHistoryStore{db: db, now: time.Now}
}

func (s *SQLiteHistoryStore) RecordPlay(ctx context.Context, guildID, userID snowflake.ID, t Track) error {
	if !t.Valid() {
		return fmt.Errorf("refusing to record invalid track %q", t.URI)
	}
	playedAt := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, o := range playOwners(guildID, userID) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO track_plays (scope, owner_id, uri, title, author, duration_ms, source_name, thumbnail, play_count, last_played_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(scope, owner_id, uri) DO UPDATE SET
				title = excluded.title,
				author = excluded.author,
				duration_ms = excluded.duration_ms,
				thumbnail = excluded.thumbnail,
				play_count = track_plays.play_count + 1,
				last_played_at = excluded.last_played_at
		`, o[0], o[1], t.Key(), t.Title, t.Author, t.DurationMs, t.SourceName, t.Thumbnail, playedAt)
		if err != nil {
			return fmt.Errorf("failed to record %s play: %w", o[0], err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteHistoryStore) TopPlayed(ctx context.Context, scope HistoryScope, ownerID string, limit int) ([]Track, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT uri, title, author, duration_ms, source_name, thumbnail, play_count, last_played_at
		FROM track_plays WHERE scope = ? AND owner_id = ?
		ORDER BY play_count DESC, last_played_at DESC LIMIT ?
	`, string(scope), ownerID, limit)
}

func (s *SQLiteHistoryStore) AllHistory(ctx context.Context, scope HistoryScope, ownerID string) ([]Track, error) {
	return s.query(ctx, `
		SELECT uri, title, author, duration_ms, source_name, thumbnail, play_count, last_played_at
		FROM track_plays WHERE scope = ? AND owner_id = ?
		ORDER BY last_played_at DESC
	`, string(scope), ownerID)
}

func (s *SQLiteHistoryStore) query(ctx context.Context, q string, args ...any) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		var source, thumb sql.NullString
		var played int64
		if err := rows.Scan(&t.URI, &t.Title, &t.Author, &t.DurationMs, &source, &thumb, &t.PlayCount, &played); err != nil {
			return nil, err
		}
		t.SourceName = strings.TrimSpace(source.String)
		t.Thumbnail = thumb.String
		t.LastPlayedAt = time.UnixMilli(played)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
