package runtime

import (
	"sort"
	"sync"

	"stataggg-chat/contract"
	"stataggg-chat/domain/chat"

	"github.com/samber/lo"
)

// Registry is the set of live connections of the room.
// A nil identity marks an anonymous connection.
type Registry struct {
	mu    sync.RWMutex
	peers map[contract.Peer]*chat.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[contract.Peer]*chat.Identity),
	}
}

// Register adds a connection with the identity captured when it opened.
// Registering the same peer twice keeps the first identity and returns false.
func (r *Registry) Register(peer contract.Peer, identity *chat.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peer]; ok {
		return false
	}
	if identity != nil {
		snapshot := *identity
		identity = &snapshot
	}
	r.peers[peer] = identity
	return true
}

// Unregister returns true only for the call that actually removed the peer.
func (r *Registry) Unregister(peer contract.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peer]; !ok {
		return false
	}
	delete(r.peers, peer)
	return true
}

// Online lists distinct authenticated users, one entry per user key
// however many tabs they have open. Sorted by key.
func (r *Registry) Online() []chat.Identity {
	r.mu.RLock()
	identities := make([]chat.Identity, 0, len(r.peers))
	for _, identity := range r.peers {
		if identity != nil {
			identities = append(identities, *identity)
		}
	}
	r.mu.RUnlock()

	users := lo.UniqBy(identities, func(i chat.Identity) string { return i.UserKey })
	sort.Slice(users, func(i, j int) bool { return users[i].UserKey < users[j].UserKey })
	return users
}

// Peers returns a snapshot safe to iterate while peers come and go.
func (r *Registry) Peers() []contract.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.peers)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
