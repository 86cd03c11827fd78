package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"
	"stataggg-chat/mocks"
	"stataggg-chat/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func healthyPeer(ctrl *gomock.Controller, id string) *mocks.MockPeer {
	peer := mocks.NewMockPeer(ctrl)
	peer.EXPECT().ID().Return(id).AnyTimes()
	return peer
}

func TestHub_Broadcast_Drops_Failing_Peer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(registry, logs.GetLoggerFromLevel(slog.LevelDebug), time.Second, metrics)
	msg := event.NewMessage{Message: chat.Message{ID: 1, Content: "gg"}}

	// Given three peers and one of them broken
	alice := healthyPeer(ctrl, "alice")
	bob := healthyPeer(ctrl, "bob")
	broken := healthyPeer(ctrl, "broken")
	registry.Register(alice, identity("1", "alice"))
	registry.Register(bob, identity("2", "bob"))
	registry.Register(broken, identity("3", "carol"))

	for _, peer := range []*mocks.MockPeer{alice, bob} {
		peer.EXPECT().Consume(gomock.Any(), msg).Return(nil)
		// Presence is re-announced without the broken peer
		peer.EXPECT().Consume(gomock.Any(), event.OnlineList{Users: []chat.Identity{*identity("1", "alice"), *identity("2", "bob")}}).Return(nil)
	}
	broken.EXPECT().Consume(gomock.Any(), msg).Return(errors.New("broken pipe"))
	broken.EXPECT().Close().Return(nil).Times(1)

	// When
	delivered := hub.Broadcast(context.Background(), msg)

	// Then
	req.Equal(2, delivered)
	req.Equal(2, registry.Len())
	req.NotContains(registry.Peers(), broken)
	req.Equal(float64(1), testutil.ToFloat64(metrics.DeliveryFailures))
	req.Equal(float64(2), testutil.ToFloat64(metrics.OnlineUsers))
}

func TestHub_Broadcast_Reaches_Anonymous_Peers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	hub := NewHub(registry, slog.Default(), time.Second, nil)
	deleted := event.MessageDeleted{MessageID: 12}

	anonymous := healthyPeer(ctrl, "anon")
	registry.Register(anonymous, nil)
	anonymous.EXPECT().Consume(gomock.Any(), deleted).Return(nil)

	req.Equal(1, hub.Broadcast(context.Background(), deleted))
}

func TestHub_AnnouncePresence_Empty_Room(t *testing.T) {
	hub := NewHub(NewRegistry(), slog.Default(), time.Second, nil)
	require.Zero(t, hub.AnnouncePresence(context.Background()))
}

// stuckPeer never accepts an event until its context gives up.
type stuckPeer struct {
	closed atomic.Int32
}

func (s *stuckPeer) Consume(ctx context.Context, _ event.DomainEvent) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s *stuckPeer) ID() string   { return "stuck" }
func (s *stuckPeer) Close() error { s.closed.Add(1); return nil }

func TestHub_Broadcast_Slow_Peer_Times_Out(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	hub := NewHub(registry, slog.Default(), 50*time.Millisecond, nil)

	stuck := &stuckPeer{}
	fast := healthyPeer(ctrl, "fast")
	registry.Register(stuck, nil)
	registry.Register(fast, identity("1", "alice"))
	fast.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	start := time.Now()
	delivered := hub.Broadcast(context.Background(), event.MessageDeleted{MessageID: 1})

	req.Equal(1, delivered)
	req.Less(time.Since(start), time.Second)
	req.Equal(int32(1), stuck.closed.Load())
	req.Equal(1, registry.Len())
}

func TestHub_Peer_Removed_Concurrently_Is_Closed_Once_Without_Announce(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	hub := NewHub(registry, slog.Default(), time.Second, nil)

	// Given a peer whose session tears down while the broadcast is in flight
	leaving := healthyPeer(ctrl, "leaving")
	registry.Register(leaving, identity("1", "alice"))
	leaving.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, event.DomainEvent) error {
		registry.Unregister(leaving)
		return errors.New("connection reset")
	})
	leaving.EXPECT().Close().Return(nil)

	// Then the hub does not announce presence again, the session already owns that
	req.Zero(hub.Broadcast(context.Background(), event.MessageDeleted{MessageID: 3}))
	req.Zero(registry.Len())
}
