package features

import (
	"sync"

	"github.com/google/uuid"
)

// MaxFeatures is the largest number of features a registry holds. Feature
// counts and list offsets travel as single bytes.
const MaxFeatures = 255

// Feature is caller-owned storage for one registered feature.
// The zero value is ready to be added to a Registry.
type Feature struct {
	id          uuid.UUID
	unavailable bool
	next        *Feature
}

// UUID returns the feature identifier.
func (f *Feature) UUID() uuid.UUID {
	return f.id
}

// Registry is an ordered set of features.
//
// Registration order is preserved: Get(0) is the oldest feature still
// registered. The registry never allocates; it only links Feature slots.
type Registry struct {
	mu    sync.RWMutex
	head  *Feature
	count int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Count returns the number of registered features, including unavailable ones.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Hash returns the sum of every byte of every registered UUID.
func (r *Registry) Hash() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hash uint32
	for f := r.head; f != nil; f = f.next {
		for _, b := range f.id {
			hash += uint32(b)
		}
	}
	return hash
}

// Get returns the UUID at position index. It returns false past the end of
// the list or when the feature at index is unavailable.
func (r *Registry) Get(index int) (uuid.UUID, bool) {
	if index < 0 {
		return uuid.Nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f := r.head
	for i := 0; i < index && f != nil; i++ {
		f = f.next
	}
	if f == nil || f.unavailable {
		return uuid.Nil, false
	}
	return f.id, true
}

// Add registers id in slot and appends it to the list. It returns false
// without changing anything when slot is already registered, when id is
// already present, or when the registry is full.
func (r *Registry) Add(slot *Feature, id uuid.UUID) bool {
	if slot == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count >= MaxFeatures {
		return false
	}

	var tail *Feature
	for f := r.head; f != nil; f = f.next {
		if f == slot || f.id == id {
			return false
		}
		tail = f
	}

	slot.id = id
	slot.unavailable = false
	slot.next = nil
	if tail == nil {
		r.head = slot
	} else {
		tail.next = slot
	}
	r.count++
	return true
}

// Remove unlinks slot. It returns false when slot is not registered.
// After a successful Remove the caller may reuse or discard slot.
func (r *Registry) Remove(slot *Feature) bool {
	if slot == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for link := &r.head; *link != nil; link = &(*link).next {
		if *link == slot {
			*link = slot.next
			slot.next = nil
			r.count--
			return true
		}
	}
	return false
}

// SetAvailable marks a registered feature available or unavailable.
// It returns false when slot is not registered.
func (r *Registry) SetAvailable(slot *Feature, available bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for f := r.head; f != nil; f = f.next {
		if f == slot {
			f.unavailable = !available
			return true
		}
	}
	return false
}

// Available reports whether slot is registered and available.
func (r *Registry) Available(slot *Feature) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for f := r.head; f != nil; f = f.next {
		if f == slot {
			return !f.unavailable
		}
	}
	return false
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for f := r.head; f != nil; f = f.next {
		if f.id == id {
			return true
		}
	}
	return false
}

// UUIDs returns every registered UUID in list order.
func (r *Registry) UUIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uuid.UUID, 0, r.count)
	for f := r.head; f != nil; f = f.next {
		out = append(out, f.id)
	}
	return out
}
