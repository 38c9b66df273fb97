// Package sync propagates committed entries between Instances over a
// pluggable Transport, tracking per-peer tip state, a bounded retry queue,
// and the bootstrap access-request flow for first contact with a peer that
// doesn't yet hold a key in the target database.
package sync

import (
	"sync"
	"time"

	"github.com/arcuru/eidetica"
)

// Peer is a known sync counterpart: an address the Transport knows how to
// reach, and the identity it is expected to present during Handshake.
type Peer struct {
	ID      string
	Address string
	PubKey  string

	AddedAt time.Time
}

// Registry tracks known peers, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry returns an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Add registers a new peer, failing if one with the same ID already exists.
func (r *Registry) Add(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.ID]; ok {
		return eidetica.ErrPeerAlreadyExists
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	r.peers[p.ID] = p
	return nil
}

// Remove drops a peer from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns a known peer by ID.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// List returns a snapshot of every known peer.
func (r *Registry) List() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
