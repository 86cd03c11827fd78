//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"stataggg-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

const userPrefix = "user:"

type IUserRepository interface {
	GetUser(ctx context.Context, key string) (User, error)
	PutUser(ctx context.Context, user User) error
	SaveProfile(ctx context.Context, profile User) (User, error)
}

type UserRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// User is the account record behind a chat identity.
// Key is the Telegram id rendered as a string.
type User struct {
	Key       string    `bson:"_id"`
	Username  string    `bson:"username"`
	FirstName string    `bson:"first_name"`
	PhotoURL  string    `bson:"photo_url"`
	IsAdmin   bool      `bson:"is_admin"`
	IsPremium bool      `bson:"is_premium"`
	IsBanned  bool      `bson:"is_banned"`
	BanUntil  time.Time `bson:"ban_until"`
	CreatedAt time.Time `bson:"created_at"`
}

// DisplayName falls back to the first name for accounts without a username.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// BannedAt reports whether the ban is in force at the given instant.
// A ban without an end date is permanent.
func (u User) BannedAt(at time.Time) bool {
	if !u.IsBanned {
		return false
	}
	return u.BanUntil.IsZero() || u.BanUntil.After(at)
}

func (u *UserRepository) GetUser(_ context.Context, key string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, key)
		return err
	})
	if stdErrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("reading user %s: %w", key, err)
	}
	return user, nil
}

// PutUser overwrites the whole record.
func (u *UserRepository) PutUser(_ context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = u.now().UTC()
	}
	data, err := bson.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+user.Key), data)
	})
}

// SaveProfile refreshes what the login provider tells us about a user.
// Moderation flags already on file are kept; admin can only be granted here.
func (u *UserRepository) SaveProfile(_ context.Context, profile User) (User, error) {
	var saved User
	err := u.db.Update(func(txn *badger.Txn) error {
		existing, err := readUser(txn, profile.Key)
		switch {
		case stdErrors.Is(err, badger.ErrKeyNotFound):
			saved = profile
			saved.IsBanned = false
			saved.BanUntil = time.Time{}
			saved.CreatedAt = u.now().UTC()
		case err != nil:
			return err
		default:
			saved = existing
			saved.Username = profile.Username
			saved.FirstName = profile.FirstName
			saved.PhotoURL = profile.PhotoURL
			saved.IsAdmin = existing.IsAdmin || profile.IsAdmin
		}
		data, err := bson.Marshal(saved)
		if err != nil {
			return err
		}
		return txn.Set([]byte(userPrefix+saved.Key), data)
	})
	if err != nil {
		return User{}, fmt.Errorf("saving profile %s: %w", profile.Key, err)
	}
	return saved, nil
}

func readUser(txn *badger.Txn, key string) (User, error) {
	var user User
	item, err := txn.Get([]byte(userPrefix + key))
	if err != nil {
		return user, err
	}
	err = item.Value(func(val []byte) error {
		return bson.Unmarshal(val, &user)
	})
	return user, err
}
