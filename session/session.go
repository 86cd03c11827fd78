// Package session drives one chat connection from handshake to teardown.
package session

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"

	"stataggg-chat/contract"
	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"
	"stataggg-chat/errors"
	"stataggg-chat/infrastructure/wire"
	"stataggg-chat/observability"
	"stataggg-chat/services"
)

type State int

const (
	Connecting State = iota
	Authenticated
	Anonymous
	Listening
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	case Listening:
		return "listening"
	default:
		return "closed"
	}
}

// Transport is a peer that can also read frames.
// Receive blocks until a frame arrives or the connection is closed.
type Transport interface {
	contract.Peer
	Receive() ([]byte, error)
}

type Session struct {
	transport   Transport
	credentials contract.Credentials
	resolver    contract.IIdentityResolver
	service     services.IChatService
	metrics     *observability.Metrics
	log         *slog.Logger

	mu       sync.Mutex
	state    State
	identity *chat.Identity
}

func New(
	transport Transport,
	credentials contract.Credentials,
	resolver contract.IIdentityResolver,
	service services.IChatService,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Session {
	return &Session{
		transport:   transport,
		credentials: credentials,
		resolver:    resolver,
		service:     service,
		metrics:     metrics,
		log:         log.With("peer_id", transport.ID()),
		state:       Connecting,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run owns the connection until it ends. Frames are handled one at a time in
// arrival order. Cancelling ctx closes the transport, which ends the loop.
// Teardown happens exactly once, whatever ended the session.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	defer s.setState(Closed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = s.transport.Close()
	}()

	s.resolve(ctx)

	if err := s.service.Join(ctx, s.transport, s.identity); err != nil {
		s.log.Debug("Unable to join", "error", err)
		return err
	}
	// Teardown must still reach the other peers during shutdown.
	defer s.service.Leave(context.WithoutCancel(ctx), s.transport, s.identity)
	s.setState(Listening)

	for {
		data, err := s.transport.Receive()
		if err != nil {
			s.log.Debug("Connection closed", "error", err)
			return nil
		}
		s.handle(ctx, data)
	}
}

// resolve never fails the connection: anything short of a valid identity
// degrades to an anonymous, read-only session.
func (s *Session) resolve(ctx context.Context) {
	identity, ok, err := s.resolver.Resolve(ctx, s.credentials)
	if err != nil {
		s.log.Error("Identity lookup failed, continuing anonymous", "error", err)
	}
	if err != nil || !ok {
		s.setState(Anonymous)
		return
	}
	s.identity = &identity
	s.log = s.log.With("user_key", identity.UserKey)
	s.setState(Authenticated)
}

func (s *Session) handle(ctx context.Context, data []byte) {
	cmd, err := wire.Decode(data)
	if err != nil {
		s.metrics.FrameDropped("invalid")
		s.log.Debug("Dropped frame", "error", err)
		return
	}

	switch c := cmd.(type) {
	case chat.SendCommand:
		_, err = s.service.PostMessage(ctx, s.identity, c)
	case chat.DeleteCommand:
		err = s.service.DeleteMessage(ctx, s.identity, c)
	case chat.EditCommand:
		_, err = s.service.EditMessage(ctx, s.identity, c)
	}
	s.report(ctx, cmd.Kind(), err)
}

// report keeps rule violations silent and turns storage failures into a
// soft error for this connection only.
func (s *Session) report(ctx context.Context, kind string, err error) {
	if err == nil {
		return
	}
	if reason, ignored := ignoredReason(err); ignored {
		s.metrics.FrameDropped(reason)
		s.log.Debug("Ignored command", "command", kind, "reason", reason)
		return
	}

	s.log.Error("Command failed", "command", kind, "error", err)
	if err = s.transport.Consume(ctx, event.SoftError{Reason: kind + " failed, please retry"}); err != nil {
		s.log.Debug("Unable to report failure", "error", err)
	}
}

func ignoredReason(err error) (string, bool) {
	switch {
	case stdErrors.Is(err, errors.ErrAnonymous):
		return "anonymous", true
	case stdErrors.Is(err, errors.ErrForbidden):
		return "forbidden", true
	case stdErrors.Is(err, errors.ErrEmptyContent):
		return "empty", true
	case stdErrors.Is(err, errors.ErrMessageNotFound):
		return "not_found", true
	default:
		return "", false
	}
}
