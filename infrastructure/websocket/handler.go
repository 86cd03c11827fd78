// Package websocket serves the chat room over gorilla/websocket.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"stataggg-chat/contract"
	"stataggg-chat/observability"
	"stataggg-chat/services"
	"stataggg-chat/session"

	"github.com/gorilla/websocket"
)

type Options struct {
	CookieName     string
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Handler upgrades GET /ws/chat and runs one session per connection.
// Sessions live under root, not under the request, so that cancelling root
// on shutdown closes every socket.
type Handler struct {
	root     context.Context
	upgrader websocket.Upgrader
	resolver contract.IIdentityResolver
	service  services.IChatService
	metrics  *observability.Metrics
	log      *slog.Logger
	options  Options
	sessions sync.WaitGroup
}

func NewHandler(
	root context.Context,
	resolver contract.IIdentityResolver,
	service services.IChatService,
	metrics *observability.Metrics,
	log *slog.Logger,
	options Options,
) *Handler {
	return &Handler{
		root: root,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(options.AllowedOrigins),
		},
		resolver: resolver,
		service:  service,
		metrics:  metrics,
		log:      log,
		options:  options,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var credentials contract.Credentials
	if cookie, err := r.Cookie(h.options.CookieName); err == nil {
		credentials.Token = cookie.Value
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.Debug("WebSocket upgrade error", "error", err)
		return
	}

	h.sessions.Add(1)
	defer h.sessions.Done()

	peer := NewPeer(conn, h.options.WriteTimeout, h.options.PingInterval, h.log)
	ctx, cancel := context.WithCancel(h.root)
	defer cancel()
	go peer.keepAlive(ctx)

	if err = session.New(peer, credentials, h.resolver, h.service, h.metrics, h.log).Run(ctx); err != nil {
		h.log.Debug("Session ended early", "peer_id", peer.ID(), "error", err)
	}
}

// Wait blocks until every running session has finished its teardown, or ctx
// ends. Cancel root first, otherwise sessions only end when clients leave.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// originChecker keeps gorilla's same-origin rule unless origins are
// configured; "*" accepts any origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
