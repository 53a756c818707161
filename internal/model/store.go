package model

import (
	"sync"
)

// Store is the single shared, mutex-guarded owner of the engine's live
// state: per-uplink metrics/history and the global Status. Callers should
// acquire the lock for the shortest span possible — long-running shell-outs
// (route swaps, mirror rule installs) must happen outside it, per the
// "coarse mutex" resource model in spec §5.
type Store struct {
	mu      sync.Mutex
	uplinks map[string]*Uplink
	order   []string
	status  Status
}

// NewStore builds a Store seeded with the given uplinks (insertion order is
// preserved for deterministic iteration/display).
func NewStore(uplinks []*Uplink) *Store {
	s := &Store{uplinks: make(map[string]*Uplink, len(uplinks))}
	for _, u := range uplinks {
		s.uplinks[u.Name] = u
		s.order = append(s.order, u.Name)
	}
	return s
}

// WithUplink runs fn with the named uplink locked. Returns false if the
// uplink does not exist.
func (s *Store) WithUplink(name string, fn func(*Uplink)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uplinks[name]
	if !ok {
		return false
	}
	fn(u)
	return true
}

// ForEachUplink runs fn for every uplink in stable order, under the lock.
func (s *Store) ForEachUplink(fn func(*Uplink)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		fn(s.uplinks[name])
	}
}

// UplinkNames returns uplink names in stable order.
func (s *Store) UplinkNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// WithStatus runs fn with the global Status locked.
func (s *Store) WithStatus(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// WithAll runs fn with both the global Status and every uplink (in stable
// insertion order) locked under a single acquisition, for callers (the
// Arbiter/state-machine pass in internal/engine) that must read or mutate
// both without risking a recursive lock through WithStatus/WithUplink.
func (s *Store) WithAll(fn func(st *Status, uplinks []*Uplink)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := make([]*Uplink, len(s.order))
	for i, name := range s.order {
		ordered[i] = s.uplinks[name]
	}
	fn(&s.status, ordered)
}

// Snapshot is the immutable, copy-on-publish view handed to the Status
// Publisher and to read-only callers (e.g. the Arbiter's scoring pass).
type Snapshot struct {
	Status  Status
	Uplinks []Uplink
}

// Snapshot builds a consistent point-in-time copy under a single lock
// acquisition.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{Status: s.status}
	for _, name := range s.order {
		out.Uplinks = append(out.Uplinks, s.uplinks[name].Clone())
	}
	return out
}

// ActiveUplinkName returns the currently active uplink name. The caller must
// not hold the store lock; this acquires its own.
func (s *Store) ActiveUplinkName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.ActiveUplink
}
