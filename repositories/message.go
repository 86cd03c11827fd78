//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"stataggg-chat/domain/chat"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	messagePrefix     = "msg:"
	messageIndex      = "msgid:"
	messageSequence   = "seq:msg"
	sequenceBandwidth = 100
	DefaultLimit      = chat.HistoryLimit
)

// IMessageRepository is the bounded chat log.
// Every implementation serialises its own mutations.
type IMessageRepository interface {
	Append(ctx context.Context, message chat.Message) (chat.Message, error)
	Delete(ctx context.Context, id int64) error
	Edit(ctx context.Context, id int64, content string) (chat.Message, bool, error)
	Get(ctx context.Context, id int64) (chat.Message, bool, error)
	RecentHistory(ctx context.Context, limit int) ([]chat.Message, error)
	Count(ctx context.Context) (int, error)
}

// RetentionObserver is told how many messages each append pushed out of the log.
type RetentionObserver interface {
	MessagesEvicted(n int)
}

// DiskMessage is the stored form of a chat message, shared by every backend.
// CreatedAt is kept in unix nanoseconds so ordering survives any encoding.
type DiskMessage struct {
	ID            int64  `bson:"_id"`
	AuthorKey     string `bson:"author_key"`
	AuthorName    string `bson:"author_name"`
	AuthorAdmin   bool   `bson:"author_is_admin"`
	AuthorPremium bool   `bson:"author_is_premium"`
	AuthorAvatar  string `bson:"author_photo_url"`
	Content       string `bson:"content"`
	ReplyToID     *int64 `bson:"reply_to_id,omitempty"`
	CreatedAt     int64  `bson:"created_at"`
	Edited        bool   `bson:"is_edited"`
}

type MessageRepository struct {
	mu       sync.Mutex
	db       *badger.DB
	seq      *badger.Sequence
	log      *slog.Logger
	limit    int
	lastAt   time.Time
	observer RetentionObserver
	now      func() time.Time
}

// NewMessageRepository opens the id sequence and remembers the newest stored
// timestamp so that CreatedAt keeps increasing across restarts.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limit int, observer RetentionObserver) (*MessageRepository, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	seq, err := db.GetSequence([]byte(messageSequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("opening message sequence: %w", err)
	}
	repo := &MessageRepository{
		db:       db,
		seq:      seq,
		log:      log,
		limit:    limit,
		observer: observer,
		now:      time.Now,
	}
	if repo.lastAt, err = repo.newestCreatedAt(); err != nil {
		_ = seq.Release()
		return nil, err
	}
	return repo, nil
}

// Close releases the leased ids back to Badger.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// Append persists a message, then trims the log down to the configured limit.
// Both happen in the same transaction: either the message is stored and the
// log is bounded, or nothing changes.
//
// The key is formatted as "msg:{created_at_padded}:{id_padded}" so that a
// lexicographical scan is a chronological one.
func (m *MessageRepository) Append(_ context.Context, message chat.Message) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.seq.Next()
	if err != nil {
		return chat.Message{}, fmt.Errorf("allocating message id: %w", err)
	}
	message.ID = int64(next) + 1
	message.CreatedAt = m.nextTimestamp()
	message.Edited = false

	disk := fromMessage(message)
	bytes, err := bson.Marshal(disk)
	if err != nil {
		return chat.Message{}, err
	}
	key := messageKey(disk.CreatedAt, disk.ID)

	var evicted int
	err = m.db.Update(func(txn *badger.Txn) error {
		oldest, err := m.excessKeys(txn, 1)
		if err != nil {
			return err
		}
		for _, k := range oldest {
			if err = txn.Delete(k); err != nil {
				return err
			}
			if id, ok := idFromKey(k); ok {
				if err = txn.Delete(indexKey(id)); err != nil {
					return err
				}
			}
		}
		evicted = len(oldest)
		if err = txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("storing message %d: %w", message.ID, err)
	}

	m.lastAt = message.CreatedAt
	if evicted > 0 {
		m.log.Debug("Retention evicted oldest messages", "count", evicted, "limit", m.limit)
		if m.observer != nil {
			m.observer.MessagesEvicted(evicted)
		}
	}
	return message, nil
}

// excessKeys returns the oldest keys to drop so that, once `incoming` new
// messages are written, exactly m.limit remain.
func (m *MessageRepository) excessKeys(txn *badger.Txn, incoming int) ([][]byte, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	prefix := []byte(messagePrefix)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	excess := len(keys) + incoming - m.limit
	if excess <= 0 {
		return nil, nil
	}
	if excess > len(keys) {
		excess = len(keys)
	}
	return keys[:excess], nil
}

// Delete removes a message by id. Unknown ids are not an error.
func (m *MessageRepository) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Update(func(txn *badger.Txn) error {
		primary, err := primaryKey(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = txn.Delete(primary); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
}

func (m *MessageRepository) Edit(_ context.Context, id int64, content string) (chat.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var edited DiskMessage
	err := m.db.Update(func(txn *badger.Txn) error {
		primary, err := primaryKey(txn, id)
		if err != nil {
			return err
		}
		if edited, err = readMessage(txn, primary); err != nil {
			return err
		}
		edited.Content = content
		edited.Edited = true
		bytes, err := bson.Marshal(edited)
		if err != nil {
			return err
		}
		return txn.Set(primary, bytes)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("editing message %d: %w", id, err)
	}
	return toMessage(edited), true, nil
}

func (m *MessageRepository) Get(_ context.Context, id int64) (chat.Message, bool, error) {
	var found DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		primary, err := primaryKey(txn, id)
		if err != nil {
			return err
		}
		found, err = readMessage(txn, primary)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, err
	}
	return toMessage(found), true, nil
}

// RecentHistory walks the log newest first, stops at limit, and hands the
// result back oldest first as clients replay it in that order.
func (m *MessageRepository) RecentHistory(_ context.Context, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > m.limit {
		limit = m.limit
	}
	var messages []chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix)
		for it.Seek(append([]byte(messagePrefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var disk DiskMessage
			err := it.Item().Value(func(value []byte) error {
				return bson.Unmarshal(value, &disk)
			})
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(disk))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (m *MessageRepository) Count(_ context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (m *MessageRepository) newestCreatedAt() (time.Time, error) {
	var newest time.Time
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix)
		it.Seek(append([]byte(messagePrefix), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		nanos, ok := createdAtFromKey(it.Item().Key())
		if !ok {
			return fmt.Errorf("malformed message key %q", it.Item().Key())
		}
		newest = time.Unix(0, nanos).UTC()
		return nil
	})
	return newest, err
}

// nextTimestamp never returns the same instant twice, even when the wall
// clock stalls or steps backwards.
func (m *MessageRepository) nextTimestamp() time.Time {
	return strictlyAfter(m.now().UTC(), m.lastAt)
}

func strictlyAfter(now, last time.Time) time.Time {
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

func primaryKey(txn *badger.Txn, id int64) ([]byte, error) {
	item, err := txn.Get(indexKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readMessage(txn *badger.Txn, key []byte) (DiskMessage, error) {
	var disk DiskMessage
	item, err := txn.Get(key)
	if err != nil {
		return disk, err
	}
	err = item.Value(func(value []byte) error {
		return bson.Unmarshal(value, &disk)
	})
	return disk, err
}

func messageKey(createdAt int64, id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d", messagePrefix, createdAt, id))
}

func indexKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messageIndex, id))
}

func createdAtFromKey(key []byte) (int64, bool) {
	rest := key[len(messagePrefix):]
	if len(rest) < 19 {
		return 0, false
	}
	nanos, err := strconv.ParseInt(string(rest[:19]), 10, 64)
	return nanos, err == nil
}

func idFromKey(key []byte) (int64, bool) {
	start := len(messagePrefix) + 20
	if len(key) <= start {
		return 0, false
	}
	id, err := strconv.ParseInt(string(key[start:]), 10, 64)
	return id, err == nil
}

func fromMessage(message chat.Message) DiskMessage {
	return DiskMessage{
		ID:            message.ID,
		AuthorKey:     message.Author.UserKey,
		AuthorName:    message.Author.DisplayName,
		AuthorAdmin:   message.Author.IsAdmin,
		AuthorPremium: message.Author.IsPremium,
		AuthorAvatar:  message.Author.AvatarURL,
		Content:       message.Content,
		ReplyToID:     message.ReplyToID,
		CreatedAt:     message.CreatedAt.UnixNano(),
		Edited:        message.Edited,
	}
}

func toMessage(disk DiskMessage) chat.Message {
	return chat.Message{
		ID: disk.ID,
		Author: chat.Identity{
			UserKey:     disk.AuthorKey,
			DisplayName: disk.AuthorName,
			IsAdmin:     disk.AuthorAdmin,
			IsPremium:   disk.AuthorPremium,
			AvatarURL:   disk.AuthorAvatar,
		},
		Content:   disk.Content,
		ReplyToID: disk.ReplyToID,
		CreatedAt: time.Unix(0, disk.CreatedAt).UTC(),
		Edited:    disk.Edited,
	}
}
