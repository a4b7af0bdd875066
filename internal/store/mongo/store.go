// Package mongo implements the document store over the official MongoDB
// driver. Collections: posts (verdicts and crawled posts), images (crawled
// image records), admin (the backlog counters document).
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/moderation"
)

// Store holds the collection handles. It implements moderation.VerdictStore
// and moderation.CrawlStore.
type Store struct {
	client *mongo.Client
	posts  *mongo.Collection
	images *mongo.Collection
	admin  *mongo.Collection
	logger *zap.Logger
}

// Connect dials the store and pings it so a bad connection string fails at
// startup, not on first use.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}
	db := client.Database(database)
	return &Store{
		client: client,
		posts:  db.Collection("posts"),
		images: db.Collection("images"),
		admin:  db.Collection("admin"),
		logger: logger,
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect store: %w", err)
	}
	return nil
}

// InsertVerdict writes one verdict document.
func (s *Store) InsertVerdict(ctx context.Context, v moderation.Verdict) error {
	if _, err := s.posts.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("insert verdict %s: %w", v.ID, err)
	}
	return nil
}

// GetVerdict looks a verdict up by post id. A missing document maps to
// moderation.ErrVerdictNotFound; every other error is surfaced as-is.
func (s *Store) GetVerdict(ctx context.Context, postID string) (moderation.Verdict, error) {
	var v moderation.Verdict
	err := s.posts.FindOne(ctx, bson.D{{Key: "id", Value: postID}}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return moderation.Verdict{}, moderation.ErrVerdictNotFound
		}
		return moderation.Verdict{}, fmt.Errorf("find verdict %s: %w", postID, err)
	}
	return v, nil
}

// InsertPosts bulk-writes crawled post documents.
func (s *Store) InsertPosts(ctx context.Context, posts []moderation.Post) error {
	if len(posts) == 0 {
		return nil
	}
	docs := make([]any, len(posts))
	for i, p := range posts {
		docs[i] = p
	}
	if _, err := s.posts.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert posts: %w", err)
	}
	return nil
}

// InsertImages bulk-writes crawled image records.
func (s *Store) InsertImages(ctx context.Context, images []moderation.ImageRecord) error {
	if len(images) == 0 {
		return nil
	}
	docs := make([]any, len(images))
	for i, img := range images {
		docs[i] = img
	}
	if _, err := s.images.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert images: %w", err)
	}
	return nil
}

// Backlog reads the shared counters document. An absent document yields zero
// counters.
func (s *Store) Backlog(ctx context.Context) (moderation.BacklogCounters, error) {
	var counters moderation.BacklogCounters
	err := s.admin.FindOne(ctx, bson.D{}).Decode(&counters)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return moderation.BacklogCounters{}, nil
		}
		return moderation.BacklogCounters{}, fmt.Errorf("find backlog counters: %w", err)
	}
	return counters, nil
}

// IncrementBacklog applies delta with a single atomic $inc, upserting the
// counters document on first use. The counters are never read-modified-written
// in process memory.
func (s *Store) IncrementBacklog(ctx context.Context, delta moderation.BacklogCounters) error {
	update := bson.D{{Key: "$inc", Value: bson.D{
		{Key: "viewed_posts", Value: delta.ViewedPosts},
		{Key: "remaining_posts", Value: delta.RemainingPosts},
		{Key: "to_store", Value: delta.ToStore},
	}}}
	_, err := s.admin.UpdateOne(ctx, bson.D{}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("increment backlog counters: %w", err)
	}
	return nil
}
