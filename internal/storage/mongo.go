package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"circularbot/internal/domain"
)

const (
	mongoDatabase       = "circularbot"
	mongoCollection     = "processed_notifications"
	mongoConnectTimeout = 5 * time.Second
)

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

// mongoRecord mirrors domain.Notification with the collection's field names.
type mongoRecord struct {
	ID              string    `bson:"id"`
	Title           string    `bson:"title"`
	TranslatedTitle string    `bson:"title_en,omitempty"`
	Category        string    `bson:"category,omitempty"`
	PublishedDate   string    `bson:"published_date,omitempty"`
	DocumentURL     string    `bson:"document_url,omitempty"`
	SourceURL       string    `bson:"source_url,omitempty"`
	Status          string    `bson:"status"`
	Sent            bool      `bson:"sent"`
	ChatMessageID   int64     `bson:"chat_message_id,omitempty"`
	ChatID          string    `bson:"chat_id,omitempty"`
	ErrorMessage    string    `bson:"error_message,omitempty"`
	RetryCount      int       `bson:"retry_count"`
	FirstSeenAt     time.Time `bson:"first_seen_at"`
	LastUpdatedAt   time.Time `bson:"last_updated_at"`
}

func openMongo(ctx context.Context, uri string, log zerolog.Logger) (Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(mongoConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	coll := client.Database(mongoDatabase).Collection(mongoCollection)
	st := &mongoStore{client: client, coll: coll, log: log}
	if err := st.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return st, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "published_date", Value: 1}}},
		{Keys: bson.D{{Key: "last_updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (s *mongoStore) Backend() string { return "mongodb" }

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *mongoStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *mongoStore) ExistsByContent(ctx context.Context, title, documentURL, sourceURL string) (bool, error) {
	filter := bson.M{
		"title": title,
		"$or": bson.A{
			bson.M{"document_url": documentURL},
			bson.M{"source_url": sourceURL},
		},
	}
	n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *mongoStore) InsertProcessing(ctx context.Context, n domain.Notification) error {
	now := time.Now().UTC()
	doc := mongoRecord{
		ID:            n.ID,
		Title:         n.Title,
		Category:      n.Category,
		PublishedDate: n.PublishedDate,
		DocumentURL:   n.DocumentURL,
		SourceURL:     n.SourceURL,
		Status:        string(domain.StatusProcessing),
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"id": n.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) MarkCompleted(ctx context.Context, id string, chatMessageID int64, chatID string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{
			"status":          string(domain.StatusCompleted),
			"sent":            true,
			"chat_message_id": chatMessageID,
			"chat_id":         chatID,
			"error_message":   "",
			"last_updated_at": time.Now().UTC(),
		}},
	)
	return err
}

func (s *mongoStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{
			"$set": bson.M{
				"status":          string(domain.StatusFailed),
				"error_message":   truncateError(errMsg),
				"last_updated_at": time.Now().UTC(),
			},
			"$inc": bson.M{"retry_count": 1},
		},
	)
	return err
}

func (s *mongoStore) Recent(ctx context.Context, limit int) ([]domain.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_updated_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []mongoRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Notification{
			ID:              r.ID,
			Title:           r.Title,
			TranslatedTitle: r.TranslatedTitle,
			Category:        r.Category,
			PublishedDate:   r.PublishedDate,
			DocumentURL:     r.DocumentURL,
			SourceURL:       r.SourceURL,
			Status:          domain.Status(r.Status),
			Sent:            r.Sent,
			ChatMessageID:   r.ChatMessageID,
			ChatID:          r.ChatID,
			ErrorMessage:    r.ErrorMessage,
			RetryCount:      r.RetryCount,
			FirstSeenAt:     r.FirstSeenAt,
			LastUpdatedAt:   r.LastUpdatedAt,
		})
	}
	return out, nil
}

func (s *mongoStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Total, err = s.coll.CountDocuments(ctx, bson.M{}); err != nil {
		return Stats{}, err
	}
	if st.Completed, err = s.coll.CountDocuments(ctx, bson.M{"status": string(domain.StatusCompleted)}); err != nil {
		return Stats{}, err
	}
	if st.Failed, err = s.coll.CountDocuments(ctx, bson.M{"status": string(domain.StatusFailed)}); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *mongoStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.coll.DeleteMany(ctx, bson.M{"last_updated_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
