package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stataggg-chat/domain/event"
	"stataggg-chat/infrastructure/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Abuse guard only. Long content is cut by the service, not refused here.
	maxFrameSize        = 1 << 20
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// Peer is one browser tab. Writes are serialised by mu because gorilla
// allows a single concurrent writer; reads belong to the session goroutine.
type Peer struct {
	id           string
	conn         *websocket.Conn
	log          *slog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewPeer must be called before anything reads from conn: it installs the
// pong handler that keeps the read deadline moving.
func NewPeer(conn *websocket.Conn, writeTimeout, pingInterval time.Duration, log *slog.Logger) *Peer {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	pongWait := 2 * pingInterval
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	id := uuid.NewString()
	return &Peer{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		log:          log.With("peer_id", id),
	}
}

func (p *Peer) ID() string { return p.id }

// Consume writes the JSON frame of e, giving up at the earlier of the context
// deadline and the write timeout.
func (p *Peer) Consume(ctx context.Context, e event.DomainEvent) error {
	frame, err := wire.Encode(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err = ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(p.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.conn.WriteJSON(frame)
}

// Receive returns the next text frame; binary frames are skipped.
func (p *Peer) Receive() ([]byte, error) {
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close is idempotent. It tries a polite close frame first.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = p.conn.Close()
	})
	return err
}

// keepAlive pings until ctx ends. A peer that stops answering hits its read
// deadline and the session ends on its own.
func (p *Peer) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.writeTimeout)); err != nil {
				p.log.Debug("Ping failed", "error", err)
				_ = p.Close()
				return
			}
		}
	}
}
