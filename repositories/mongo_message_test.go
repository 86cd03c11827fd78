package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"stataggg-chat/domain/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newMongoRepository connects to MONGO_URI and works in a throwaway database.
func newMongoRepository(t *testing.T, limit int) *MongoMessageRepository {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database(fmt.Sprintf("chat_test_%s", uuid.NewString()[:8]))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repository, err := NewMongoMessageRepository(ctx, db, slog.Default(), limit, nil)
	require.NoError(t, err)
	return repository
}

func Test_Mongo_Append_Enforces_Retention(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	limit := 5
	repository := newMongoRepository(t, limit)

	var first chat.Message
	for i := 0; i < limit+3; i++ {
		m, err := repository.Append(ctx, chat.Message{Author: alice(), Content: fmt.Sprintf("msg %d", i)})
		req.NoError(err)
		if i == 0 {
			first = m
		}
	}

	count, err := repository.Count(ctx)
	req.NoError(err)
	req.Equal(limit, count)
	_, found, err := repository.Get(ctx, first.ID)
	req.NoError(err)
	req.False(found)

	history, err := repository.RecentHistory(ctx, limit)
	req.NoError(err)
	req.Len(history, limit)
	req.Equal("msg 3", history[0].Content)
	req.Equal("msg 7", history[limit-1].Content)
}

func Test_Mongo_Edit_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMongoRepository(t, DefaultLimit)

	m, err := repository.Append(ctx, chat.Message{Author: alice(), Content: "typo"})
	req.NoError(err)

	edited, found, err := repository.Edit(ctx, m.ID, "fixed")
	req.NoError(err)
	req.True(found)
	req.True(edited.Edited)

	req.NoError(repository.Delete(ctx, m.ID))
	req.NoError(repository.Delete(ctx, m.ID))
	_, found, err = repository.Edit(ctx, m.ID, "gone")
	req.NoError(err)
	req.False(found)
}
