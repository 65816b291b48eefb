// Package registry holds the published set of mock endpoints. Reads
// are lock-free loads of an immutable snapshot; writes copy the set,
// rebuild the snapshot, and swap it in atomically. A request in flight
// keeps the snapshot it started with.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stubd/stubd/internal/matching"
	"github.com/stubd/stubd/pkg/endpoint"
)

// ErrNotFound is returned for operations on unknown endpoint ids.
var ErrNotFound = errors.New("endpoint not found")

// ErrDuplicateID is returned when a write would register the same id
// twice.
var ErrDuplicateID = errors.New("duplicate endpoint id")

// Snapshot is one immutable published state. Endpoints reached through
// a snapshot are shared and must not be modified.
type Snapshot struct {
	endpoints []*endpoint.Endpoint // id ascending
	byID      map[int64]*endpoint.Endpoint
	cands     []matching.Candidate // active endpoints only
}

// All returns every endpoint, active or not, ordered by id.
func (s *Snapshot) All() []*endpoint.Endpoint { return s.endpoints }

// Get looks up an endpoint by id.
func (s *Snapshot) Get(id int64) (*endpoint.Endpoint, bool) {
	ep, ok := s.byID[id]
	return ep, ok
}

// Candidates returns the compiled matching candidates for the active
// endpoints, ordered by id.
func (s *Snapshot) Candidates() []matching.Candidate { return s.cands }

// Len counts all endpoints in the snapshot.
func (s *Snapshot) Len() int { return len(s.endpoints) }

// Registry is the copy-on-write endpoint store.
type Registry struct {
	mu     sync.Mutex // serializes writers; readers never take it
	nextID int64
	snap   atomic.Pointer[Snapshot]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{nextID: 1}
	r.snap.Store(&Snapshot{byID: map[int64]*endpoint.Endpoint{}})
	return r
}

// Snapshot returns the current published state.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Get looks up an endpoint in the current snapshot.
func (r *Registry) Get(id int64) (*endpoint.Endpoint, bool) {
	return r.Snapshot().Get(id)
}

// Len counts endpoints in the current snapshot.
func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// Replace atomically swaps the whole endpoint set. Definitions are
// cloned on the way in; ids are assigned where zero. Validation is the
// caller's job, but templates are compiled here and a template that
// does not compile fails the whole replace.
func (r *Registry) Replace(eps []*endpoint.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	clones := make([]*endpoint.Endpoint, 0, len(eps))
	seen := make(map[int64]bool, len(eps))
	for _, ep := range eps {
		c := ep.Clone()
		if c.ID == 0 {
			c.ID = r.nextID
			r.nextID++
		}
		if seen[c.ID] {
			return fmt.Errorf("endpoint id %d: %w", c.ID, ErrDuplicateID)
		}
		seen[c.ID] = true
		if c.ID >= r.nextID {
			r.nextID = c.ID + 1
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		clones = append(clones, c)
	}

	snap, err := build(clones)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	return nil
}

// Add publishes one new endpoint and returns the stored copy.
func (r *Registry) Add(ep *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	c := ep.Clone()
	if c.ID == 0 {
		c.ID = r.nextID
	}
	if _, exists := cur.byID[c.ID]; exists {
		return nil, fmt.Errorf("endpoint id %d: %w", c.ID, ErrDuplicateID)
	}
	if c.ID >= r.nextID {
		r.nextID = c.ID + 1
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	next := append(sliceCopy(cur.endpoints), c)
	snap, err := build(next)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return c, nil
}

// Update replaces the endpoint with the given id, preserving its
// creation time and registration order.
func (r *Registry) Update(id int64, ep *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	old, ok := cur.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	c := ep.Clone()
	c.ID = id
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	next := sliceCopy(cur.endpoints)
	for i, e := range next {
		if e.ID == id {
			next[i] = c
			break
		}
	}
	snap, err := build(next)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return c, nil
}

// Remove unpublishes an endpoint.
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.byID[id]; !ok {
		return ErrNotFound
	}

	next := make([]*endpoint.Endpoint, 0, len(cur.endpoints)-1)
	for _, e := range cur.endpoints {
		if e.ID != id {
			next = append(next, e)
		}
	}
	snap, err := build(next)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	return nil
}

// SetActive flips an endpoint's active state and returns the stored copy.
func (r *Registry) SetActive(id int64, active bool) (*endpoint.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	old, ok := cur.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	c := old.Clone()
	c.SetActive(active)
	c.UpdatedAt = time.Now().UTC()

	next := sliceCopy(cur.endpoints)
	for i, e := range next {
		if e.ID == id {
			next[i] = c
			break
		}
	}
	snap, err := build(next)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return c, nil
}

// build compiles a new snapshot from the given endpoints.
func build(eps []*endpoint.Endpoint) (*Snapshot, error) {
	sorted := sliceCopy(eps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int64]*endpoint.Endpoint, len(sorted))
	var cands []matching.Candidate
	for _, ep := range sorted {
		byID[ep.ID] = ep
		if !ep.IsActive() {
			continue
		}
		tmpl, err := matching.Compile(ep.PathTemplate)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", ep.ID, err)
		}
		cands = append(cands, matching.Candidate{
			ID:       ep.ID,
			Methods:  ep.Methods,
			Template: tmpl,
		})
	}
	return &Snapshot{endpoints: sorted, byID: byID, cands: cands}, nil
}

func sliceCopy(eps []*endpoint.Endpoint) []*endpoint.Endpoint {
	out := make([]*endpoint.Endpoint, len(eps))
	copy(out, eps)
	return out
}
