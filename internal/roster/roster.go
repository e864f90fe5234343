// Package roster keeps the live, insertion-ordered set of remote quiz
// players known to the host.
package roster

import (
	"fmt"
	"sync"

	"github.com/chaz8081/quizlink/internal/ble"
)

// State is the connection state of a roster entry.
type State int

const (
	StateDiscovered State = iota // seen advertising, connection pending
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	default:
		return "discovered"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connected":
		*s = StateConnected
	case "discovered":
		*s = StateDiscovered
	default:
		return fmt.Errorf("roster: unknown state %q", b)
	}
	return nil
}

// Peer is one remote player.
type Peer struct {
	ID        ble.PeerID `json:"id"`
	LocalName string     `json:"local_name,omitempty"`
	Identity  *string    `json:"identity"`
	Answer    *string    `json:"answer"`
	State     State      `json:"state"`
}

func (p *Peer) clone() Peer {
	cp := *p
	if p.Identity != nil {
		v := *p.Identity
		cp.Identity = &v
	}
	if p.Answer != nil {
		v := *p.Answer
		cp.Answer = &v
	}
	return cp
}

// Roster maps peer ids to peers in first-seen order. Mutations are expected
// from a single writer; snapshots may be taken from any goroutine.
type Roster struct {
	mu    sync.RWMutex
	order []ble.PeerID
	peers map[ble.PeerID]*Peer

	obsMu     sync.Mutex
	nextObs   uint64
	observers []observer
}

type observer struct {
	id uint64
	fn func([]Peer)
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{peers: make(map[ble.PeerID]*Peer)}
}

// Upsert applies mutate to the peer with id, creating it at the end of the
// roster if absent. created reports whether a new entry was added.
func (r *Roster) Upsert(id ble.PeerID, mutate func(p *Peer)) (created bool) {
	r.mu.Lock()
	p, ok := r.peers[id]
	if !ok {
		p = &Peer{ID: id}
		r.peers[id] = p
		r.order = append(r.order, id)
	}
	if mutate != nil {
		mutate(p)
	}
	p.ID = id
	r.mu.Unlock()

	r.changed()
	return !ok
}

// Remove drops the peer with id. It reports whether a peer was removed;
// observers are only told when one was.
func (r *Roster) Remove(id ble.PeerID) bool {
	r.mu.Lock()
	if _, ok := r.peers[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.peers, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.changed()
	return true
}

// UpdateAll applies mutate to every peer as one committed change.
func (r *Roster) UpdateAll(mutate func(p *Peer)) {
	r.mu.Lock()
	for _, id := range r.order {
		p := r.peers[id]
		mutate(p)
		p.ID = id
	}
	r.mu.Unlock()

	r.changed()
}

// Clear removes every peer as one change. It reports whether any were removed.
func (r *Roster) Clear() bool {
	r.mu.Lock()
	if len(r.order) == 0 {
		r.mu.Unlock()
		return false
	}
	r.order = nil
	r.peers = make(map[ble.PeerID]*Peer)
	r.mu.Unlock()

	r.changed()
	return true
}

// Get returns a copy of the peer with id.
func (r *Roster) Get(id ble.PeerID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return p.clone(), true
}

// Contains reports whether id is in the roster.
func (r *Roster) Contains(id ble.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

// Len returns the number of peers.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns copies of all peers in roster order.
func (r *Roster) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.peers[id].clone())
	}
	return out
}

// OnChange registers fn to receive the full snapshot after every committed
// change. fn runs on the mutating goroutine. The returned func unregisters it.
func (r *Roster) OnChange(fn func([]Peer)) (cancel func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, observer{id: id, fn: fn})
	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		for i, o := range r.observers {
			if o.id == id {
				r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

func (r *Roster) changed() {
	r.obsMu.Lock()
	obs := make([]observer, len(r.observers))
	copy(obs, r.observers)
	r.obsMu.Unlock()
	if len(obs) == 0 {
		return
	}

	snap := r.Snapshot()
	for _, o := range obs {
		o.fn(snap)
	}
}
