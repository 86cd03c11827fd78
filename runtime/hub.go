package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stataggg-chat/contract"
	"stataggg-chat/domain/event"
	"stataggg-chat/observability"
)

const DefaultSendTimeout = 5 * time.Second

// Hub fans events out to every registered peer.
//
// Delivery is best effort: a peer that fails or does not accept the event
// within sendTimeout is unregistered and closed, and the room is told who is
// still online. Nothing is queued or retried.
type Hub struct {
	registry    contract.IRegistry
	log         *slog.Logger
	sendTimeout time.Duration
	metrics     *observability.Metrics
}

func NewHub(registry contract.IRegistry, log *slog.Logger, sendTimeout time.Duration, metrics *observability.Metrics) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{registry: registry, log: log, sendTimeout: sendTimeout, metrics: metrics}
}

// Broadcast returns how many peers accepted the event.
func (h *Hub) Broadcast(ctx context.Context, e event.DomainEvent) int {
	delivered, removed := h.fanout(ctx, e)
	// Each round only reaches peers still registered, so this terminates.
	for removed > 0 {
		_, removed = h.fanout(ctx, h.presence())
	}
	return delivered
}

func (h *Hub) AnnouncePresence(ctx context.Context) int {
	return h.Broadcast(ctx, h.presence())
}

func (h *Hub) presence() event.OnlineList {
	users := h.registry.Online()
	h.metrics.SetOnline(len(users))
	return event.OnlineList{Users: users}
}

// fanout delivers to a snapshot of peers concurrently so one slow socket
// cannot hold the others back.
func (h *Hub) fanout(ctx context.Context, e event.DomainEvent) (delivered int, removed int) {
	peers := h.registry.Peers()
	if len(peers) == 0 {
		return 0, 0
	}

	failed := make(chan contract.Peer, len(peers))
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()
			if err := peer.Consume(sendCtx, e); err != nil {
				h.log.Debug("Delivery failed", "peer_id", peer.ID(), "event", e.Type(), "error", err)
				failed <- peer
			}
		}()
	}
	wg.Wait()
	close(failed)

	failures := 0
	for peer := range failed {
		failures++
		if h.registry.Unregister(peer) {
			removed++
		}
		if err := peer.Close(); err != nil {
			h.log.Debug("Closing failed peer", "peer_id", peer.ID(), "error", err)
		}
	}
	h.metrics.Broadcast(failures)
	if removed > 0 {
		h.log.Info("Dropped unreachable peers", "count", removed, "event", e.Type())
	}
	return len(peers) - failures, removed
}
