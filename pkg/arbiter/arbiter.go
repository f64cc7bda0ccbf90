// Package arbiter hands out send buffers from a fixed pool.
//
// The arbiter enforces a single outstanding send across the whole node:
// while one buffer is reserved, Reserve fails even if the pool holds more.
// A larger pool only lets callers keep spare buffers pre-allocated.
package arbiter

import (
	"errors"
	"sync"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// Arbiter errors.
var (
	// ErrNotReserved indicates a release of a buffer that is not reserved.
	ErrNotReserved = errors.New("buffer not reserved")

	// ErrForeignBuffer indicates a release of a buffer this pool does not own.
	ErrForeignBuffer = errors.New("buffer not from this pool")

	// ErrInvalidSize indicates a pool size below one.
	ErrInvalidSize = errors.New("pool size must be at least 1")
)

// Arbiter is a pool of pre-allocated radio messages.
type Arbiter struct {
	mu       sync.Mutex
	buffers  []radio.Message
	free     []*radio.Message
	reserved *radio.Message
}

// New creates an arbiter holding size buffers.
func New(size int) (*Arbiter, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	a := &Arbiter{
		buffers: make([]radio.Message, size),
		free:    make([]*radio.Message, 0, size),
	}
	for i := range a.buffers {
		a.free = append(a.free, &a.buffers[i])
	}
	return a, nil
}

// Reserve takes a buffer from the pool. It returns false while another
// buffer is reserved or when the pool is empty. It never blocks.
func (a *Arbiter) Reserve() (*radio.Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reserved != nil || len(a.free) == 0 {
		return nil, false
	}
	msg := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.reserved = msg
	return msg, true
}

// Release returns a reserved buffer to the pool.
func (a *Arbiter) Release(msg *radio.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.owns(msg) {
		return ErrForeignBuffer
	}
	if a.reserved != msg {
		return ErrNotReserved
	}
	a.reserved = nil
	a.free = append(a.free, msg)
	return nil
}

func (a *Arbiter) owns(msg *radio.Message) bool {
	for i := range a.buffers {
		if &a.buffers[i] == msg {
			return true
		}
	}
	return false
}

// Busy reports whether a buffer is reserved.
func (a *Arbiter) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved != nil
}

// Available returns the number of buffers in the pool.
func (a *Arbiter) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Size returns the total number of buffers.
func (a *Arbiter) Size() int {
	return len(a.buffers)
}
