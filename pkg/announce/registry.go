package announce

import (
	"sync"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// Never is the remaining time reported when no announcer is eligible.
const Never int64 = -1

// Announcer is caller-owned storage for one announcing interface.
// The zero value is ready to be added to a Registry. Fields are managed by
// the registry; read them through the accessors.
type Announcer struct {
	layer    radio.Layer
	sleep    *radio.SleepController
	receiver radio.Receiver

	period uint32
	sent   uint32
	last   int64

	linked bool
	next   *Announcer
}

// Layer returns the radio interface.
func (a *Announcer) Layer() radio.Layer { return a.layer }

// SleepController returns the optional sleep controller, or nil.
func (a *Announcer) SleepController() *radio.SleepController { return a.sleep }

// Receiver returns the storage for the interface's receive registration.
func (a *Announcer) Receiver() *radio.Receiver { return &a.receiver }

// Snapshot is a point-in-time copy of an announcer's schedule.
type Snapshot struct {
	Interface string
	Address   radio.Addr
	Period    uint32
	Sent      uint32
	LastSent  int64
	Eligible  bool
	NextDue   int64 // Never when not eligible
}

func (a *Announcer) snapshot() Snapshot {
	s := Snapshot{
		Period:   a.period,
		Sent:     a.sent,
		LastSent: a.last,
		Eligible: Eligible(a.period),
		NextDue:  Never,
	}
	if a.layer != nil {
		s.Interface = a.layer.Name()
		s.Address = a.layer.Address()
	}
	if s.Eligible {
		s.NextDue = a.last + int64(NextInterval(a.sent, a.period))
	}
	return s
}

// Registry is the ordered set of announcers.
//
// All methods take the registry lock and never block while holding it, so
// they are safe to call while a worker is iterating.
type Registry struct {
	mu   sync.Mutex
	head *Announcer
	n    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add initializes a and appends it to the registry. The announcer is
// scheduled as if it last announced jitter seconds before now, which
// spreads the first announcements of nodes that boot together.
// It returns false when a is nil, has no layer, or is already registered.
func (r *Registry) Add(a *Announcer, layer radio.Layer, ctl *radio.SleepController, period uint32, now, jitter int64) bool {
	if a == nil || layer == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a.linked {
		return false
	}

	a.layer = layer
	a.sleep = ctl
	a.period = period
	a.sent = 0
	a.last = now - jitter
	a.next = nil
	a.linked = true

	if r.head == nil {
		r.head = a
	} else {
		tail := r.head
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = a
	}
	r.n++
	return true
}

// Remove unlinks a. It returns false when a is not registered.
func (r *Registry) Remove(a *Announcer) bool {
	if a == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for link := &r.head; *link != nil; link = &(*link).next {
		if *link == a {
			*link = a.next
			a.next = nil
			a.linked = false
			r.n--
			return true
		}
	}
	return false
}

// Contains reports whether a is registered.
func (r *Registry) Contains(a *Announcer) bool {
	if a == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return a.linked
}

// Len returns the number of registered announcers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// FindDue returns the first announcer, in insertion order, whose next
// announcement is due at now. minRemaining is the number of seconds until
// the soonest eligible announcer is due: 0 when one is due now, Never when
// no announcer is eligible.
func (r *Registry) FindDue(now int64) (due *Announcer, minRemaining int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	minRemaining = Never
	for a := r.head; a != nil; a = a.next {
		if !Eligible(a.period) {
			continue
		}
		remaining := a.last + int64(NextInterval(a.sent, a.period)) - now
		if remaining <= 0 {
			return a, 0
		}
		if minRemaining == Never || remaining < minRemaining {
			minRemaining = remaining
		}
	}
	return nil, minRemaining
}

// MarkSent records that a announced at now. It returns false when a is no
// longer registered.
func (r *Registry) MarkSent(a *Announcer, now int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a == nil || !a.linked {
		return false
	}
	a.last = now
	a.sent++
	return true
}

// Each calls fn for every registered announcer in insertion order.
// fn runs with the registry locked and must not call back into it.
func (r *Registry) Each(fn func(a *Announcer)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for a := r.head; a != nil; a = a.next {
		fn(a)
	}
}

// Snapshot returns the schedule of a, or false when it is not registered.
func (r *Registry) Snapshot(a *Announcer) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a == nil || !a.linked {
		return Snapshot{}, false
	}
	return a.snapshot(), true
}

// Snapshots returns the schedule of every announcer in insertion order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, r.n)
	for a := r.head; a != nil; a = a.next {
		out = append(out, a.snapshot())
	}
	return out
}
