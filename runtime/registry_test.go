package runtime

import (
	"context"
	"sync"
	"testing"

	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	id string
}

func newSink() *Sink {
	return &Sink{id: uuid.NewString()}
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error { return nil }
func (s *Sink) ID() string                                             { return s.id }
func (s *Sink) Close() error                                           { return nil }

func identity(key, name string) *chat.Identity {
	return &chat.Identity{UserKey: key, DisplayName: name}
}

func TestRegistry_Register_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := newSink()

	// Given no one is connected
	req.Zero(registry.Len())
	req.Empty(registry.Online())

	// When a participant connects
	req.True(registry.Register(sink, identity("1", "alice")))

	// Then
	req.Equal(1, registry.Len())
	req.Len(registry.Online(), 1)
	req.Contains(registry.Peers(), sink)
}

func TestRegistry_Register_Twice_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := newSink()

	req.True(registry.Register(sink, identity("1", "alice")))
	req.False(registry.Register(sink, identity("1", "renamed")))

	req.Equal(1, registry.Len())
	req.Equal("alice", registry.Online()[0].DisplayName)
}

func TestRegistry_Anonymous_Is_Not_Online(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	anonymous := newSink()

	registry.Register(anonymous, nil)
	registry.Register(newSink(), identity("1", "alice"))

	// Then the anonymous peer receives broadcasts but is absent from presence
	req.Equal(2, registry.Len())
	req.Contains(registry.Peers(), anonymous)
	req.Equal([]chat.Identity{*identity("1", "alice")}, registry.Online())
}

func TestRegistry_Same_User_Two_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	tab1 := newSink()
	tab2 := newSink()

	// Given the same user opens two tabs
	registry.Register(tab1, identity("1", "alice"))
	registry.Register(tab2, identity("1", "alice"))
	registry.Register(newSink(), identity("2", "bob"))

	// Then the user appears once
	req.Equal(3, registry.Len())
	online := registry.Online()
	req.Len(online, 2)
	req.Equal("1", online[0].UserKey)
	req.Equal("2", online[1].UserKey)

	// When one tab closes the user is still online
	req.True(registry.Unregister(tab1))
	req.Len(registry.Online(), 2)

	// When the second tab closes the user is gone
	req.True(registry.Unregister(tab2))
	req.Equal([]chat.Identity{*identity("2", "bob")}, registry.Online())
}

func TestRegistry_Unregister_Reports_Only_Actual_Removal(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := newSink()
	registry.Register(sink, identity("1", "alice"))

	req.True(registry.Unregister(sink))
	req.False(registry.Unregister(sink))
	req.False(registry.Unregister(newSink()))
	req.Zero(registry.Len())
}

func TestRegistry_Identity_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := identity("1", "alice")
	registry.Register(newSink(), id)

	id.DisplayName = "mallory"

	req.Equal("alice", registry.Online()[0].DisplayName)
}

func TestRegistry_Concurrent_Register_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink := newSink()
			registry.Register(sink, identity(sink.ID(), "user"))
			_ = registry.Online()
			registry.Unregister(sink)
		}()
	}
	wg.Wait()

	req.Zero(registry.Len())
}
