package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"stataggg-chat/domain/chat"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "chat_messages"
	countersCollection = "counters"
)

// MongoMessageRepository keeps the chat log in MongoDB.
// Inserts and trims are serialised in-process; a single writer is assumed.
type MongoMessageRepository struct {
	mu       sync.Mutex
	messages *mongo.Collection
	counters *mongo.Collection
	log      *slog.Logger
	limit    int
	lastAt   time.Time
	observer RetentionObserver
	now      func() time.Time
}

func NewMongoMessageRepository(ctx context.Context, db *mongo.Database, log *slog.Logger, limit int, observer RetentionObserver) (*MongoMessageRepository, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	repo := &MongoMessageRepository{
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
		log:      log,
		limit:    limit,
		observer: observer,
		now:      time.Now,
	}
	_, err := repo.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("creating created_at index: %w", err)
	}

	var newest DiskMessage
	err = repo.messages.FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&newest)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, fmt.Errorf("reading newest message: %w", err)
	default:
		repo.lastAt = time.Unix(0, newest.CreatedAt).UTC()
	}
	return repo, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, message chat.Message) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.nextID(ctx)
	if err != nil {
		return chat.Message{}, err
	}
	message.ID = id
	message.CreatedAt = strictlyAfter(r.now().UTC(), r.lastAt)
	message.Edited = false

	if _, err = r.messages.InsertOne(ctx, fromMessage(message)); err != nil {
		return chat.Message{}, fmt.Errorf("storing message %d: %w", id, err)
	}
	r.lastAt = message.CreatedAt

	evicted, err := r.trim(ctx)
	if err != nil {
		// The message is stored; the next append trims again.
		r.log.Error("Unable to enforce retention", "error", err)
	}
	if evicted > 0 {
		r.log.Debug("Retention evicted oldest messages", "count", evicted, "limit", r.limit)
		if r.observer != nil {
			r.observer.MessagesEvicted(evicted)
		}
	}
	return message, nil
}

func (r *MongoMessageRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messagesCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating message id: %w", err)
	}
	return counter.Seq, nil
}

func (r *MongoMessageRepository) trim(ctx context.Context) (int, error) {
	count, err := r.messages.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, err
	}
	excess := count - int64(r.limit)
	if excess <= 0 {
		return 0, nil
	}
	cursor, err := r.messages.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(excess).
		SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	var oldest []struct {
		ID int64 `bson:"_id"`
	}
	if err = cursor.All(ctx, &oldest); err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(oldest))
	for _, o := range oldest {
		ids = append(ids, o.ID)
	}
	res, err := r.messages.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (r *MongoMessageRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.messages.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting message %d: %w", id, err)
	}
	return nil
}

func (r *MongoMessageRepository) Edit(ctx context.Context, id int64, content string) (chat.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var disk DiskMessage
	err := r.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "is_edited": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&disk)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("editing message %d: %w", id, err)
	}
	return toMessage(disk), true, nil
}

func (r *MongoMessageRepository) Get(ctx context.Context, id int64) (chat.Message, bool, error) {
	var disk DiskMessage
	err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&disk)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, err
	}
	return toMessage(disk), true, nil
}

func (r *MongoMessageRepository) RecentHistory(ctx context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}
	cursor, err := r.messages.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var disks []DiskMessage
	if err = cursor.All(ctx, &disks); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	messages := make([]chat.Message, 0, len(disks))
	for _, d := range disks {
		messages = append(messages, toMessage(d))
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *MongoMessageRepository) Count(ctx context.Context) (int, error) {
	count, err := r.messages.CountDocuments(ctx, bson.D{})
	return int(count), err
}
