package sys

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type playDocument struct {
	Scope        string `bson:"scope"`
	OwnerID      string `bson:"owner_id"`
	URI          string `bson:"uri"`
	Title        string `bson:"title"`
	Author       string `bson:"author"`
	DurationMs   int64  `bson:"duration_ms"`
	SourceName   string `bson:"source_name"`
	Thumbnail    string `bson:"thumbnail"`
	PlayCount    int    `bson:"play_count"`
	LastPlayedAt int64  `bson:"last_played_at"`
}

func (d playDocument) track() Track {
	return Track{
		Title:        d.Title,
		Author:       d.Author,
		URI:          d.URI,
		DurationMs:   d.DurationMs,
		SourceName:   d.SourceName,
		Thumbnail:    d.Thumbnail,
		PlayCount:    d.PlayCount,
		LastPlayedAt: time.UnixMilli(d.LastPlayedAt),
	}
}

// MongoHistoryStore keeps the listening history in a "track_plays" collection.
type MongoHistoryStore struct {
	client *mongo.Client
	plays  *mongo.Collection
	now    func() time.Time
}

func NewMongoHistoryStore(ctx context.Context, uri, database string) (*MongoHistoryStore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetRetryWrites(true)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	plays := client.Database(database).Collection("track_plays")
	_, err = plays.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "uri", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create track_plays index: %w", err)
	}

	LogDatabase(MsgDatabaseMongoReady, database)
	return &MongoHistoryStore{client: client, plays: plays, now: time.Now}, nil
}

func (s *MongoHistoryStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoHistoryStore) RecordPlay(ctx context.Context, guildID, userID snowflake.ID, t Track) error {
	if !t.Valid() {
		return fmt.Errorf("refusing to record invalid track %q", t.URI)
	}
	playedAt := s.now().UnixMilli()
	opts := options.Update().SetUpsert(true)

	for _, o := range playOwners(guildID, userID) {
		filter := bson.M{"scope": o[0], "owner_id": o[1], "uri": t.Key()}
		update := bson.M{
			"$set": bson.M{
				"title":          t.Title,
				"author":         t.Author,
				"duration_ms":    t.DurationMs,
				"source_name":    t.SourceName,
				"thumbnail":      t.Thumbnail,
				"last_played_at": playedAt,
			},
			"$inc": bson.M{"play_count": 1},
		}
		if _, err := s.plays.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("failed to record %s play: %w", o[0], err)
		}
	}
	return nil
}

func (s *MongoHistoryStore) TopPlayed(ctx context.Context, scope HistoryScope, ownerID string, limit int) ([]Track, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "play_count", Value: -1}, {Key: "last_played_at", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, bson.M{"scope": string(scope), "owner_id": ownerID}, opts)
}

func (s *MongoHistoryStore) AllHistory(ctx context.Context, scope HistoryScope, ownerID string) ([]Track, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_played_at", Value: -1}})
	return s.find(ctx, bson.M{"scope": string(scope), "owner_id": ownerID}, opts)
}

func (s *MongoHistoryStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Track, error) {
	cursor, err := s.plays.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []playDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(docs))
	for _, d := range docs {
		tracks = append(tracks, d.track())
	}
	return tracks, nil
}
