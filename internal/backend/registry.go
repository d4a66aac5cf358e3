package backend

import (
	"fmt"
	"sync/atomic"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// Registry is the process-wide set of generation backends. It is built at
// startup and read-only during normal operation; administrative reload
// swaps a complete snapshot atomically so in-flight orchestrations observe
// either the old or the new registry in full, never a partial update.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	// byKind preserves registration order per kind; the selector uses it
	// for deterministic tie-breaking within a tier.
	byKind map[domain.Kind][]*Descriptor
	byID   map[string]*Descriptor
	all    []*Descriptor
}

func buildSnapshot(descs []*Descriptor) (*snapshot, error) {
	s := &snapshot{
		byKind: make(map[domain.Kind][]*Descriptor),
		byID:   make(map[string]*Descriptor, len(descs)),
	}
	for _, d := range descs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, exists := s.byID[d.ID]; exists {
			return nil, fmt.Errorf("backend %s: duplicate id", d.ID)
		}
		s.byID[d.ID] = d
		s.byKind[d.Kind] = append(s.byKind[d.Kind], d)
		s.all = append(s.all, d)
	}
	return s, nil
}

// NewRegistry builds a registry from descriptors in registration order.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	s, err := buildSnapshot(descs)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.snap.Store(s)
	return r, nil
}

// Reload replaces the full descriptor set. The swap is atomic; a reload
// that fails validation leaves the current snapshot untouched.
func (r *Registry) Reload(descs ...*Descriptor) error {
	s, err := buildSnapshot(descs)
	if err != nil {
		return err
	}
	r.snap.Store(s)
	return nil
}

// ForKind returns the descriptors registered for a kind, in registration
// order. The returned slice is shared and must not be mutated.
func (r *Registry) ForKind(kind domain.Kind) []*Descriptor {
	return r.snap.Load().byKind[kind]
}

// Lookup returns the descriptor with the given id.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	d, ok := r.snap.Load().byID[id]
	return d, ok
}

// Descriptors returns every registered descriptor in registration order.
// The returned slice is shared and must not be mutated.
func (r *Registry) Descriptors() []*Descriptor {
	return r.snap.Load().all
}
