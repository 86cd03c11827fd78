//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"stataggg-chat/domain/chat"
	"stataggg-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Peer is one live connection. Implementations must be comparable (pointers)
// because the registry uses them as map keys.
type Peer interface {
	EventSink
	ID() string
	Close() error
}

type IRegistry interface {
	Register(peer Peer, identity *chat.Identity) bool
	Unregister(peer Peer) bool
	Online() []chat.Identity
	Peers() []Peer
	Len() int
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, e event.DomainEvent) int
	AnnouncePresence(ctx context.Context) int
}

// Credentials are whatever the transport captured when the connection opened.
type Credentials struct {
	Token string
}

// IIdentityResolver is the boundary with authentication.
// It returns false when no usable identity exists (missing token, unknown or banned user).
type IIdentityResolver interface {
	Resolve(ctx context.Context, credentials Credentials) (chat.Identity, bool, error)
}
