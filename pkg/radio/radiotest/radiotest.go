// Package radiotest provides an in-memory radio.Layer for tests.
//
// Sends are recorded and stay pending until the test completes them, which
// lets tests control exactly when the send-done callback fires.
package radiotest

import (
	"sync"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// Packet is a transmitted packet as seen by the fake radio.
type Packet struct {
	Type        radio.AMID
	Source      radio.Addr
	Destination radio.Addr
	Data        []byte
}

type pending struct {
	msg  *radio.Message
	done radio.SendDoneFunc
}

// Radio is a fake radio.Layer. The zero value is not usable; call New.
type Radio struct {
	mu sync.Mutex

	name      string
	addr      radio.Addr
	maxLength int
	started   bool

	receivers map[*radio.Receiver]struct{}
	sleepers  map[*radio.SleepController]bool // value: sleep blocked

	pending []pending
	sent    []Packet

	// Failure injection. Each is returned by the corresponding method
	// while non-nil.
	SendErr                 error
	RegisterErr             error
	DeregisterErr           error
	RegisterSleepErr        error
	DeregisterSleepErr      error
	startedAfterBlockChecks int
}

// New creates a started fake radio with the full payload capacity.
func New(name string, addr radio.Addr) *Radio {
	return &Radio{
		name:      name,
		addr:      addr,
		maxLength: radio.MaxPayloadLength,
		started:   true,
		receivers: make(map[*radio.Receiver]struct{}),
		sleepers:  make(map[*radio.SleepController]bool),
	}
}

// SetPayloadMaxLength limits the payload capacity.
func (r *Radio) SetPayloadMaxLength(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxLength = n
}

// SetStarted sets the value reported by Started.
func (r *Radio) SetStarted(started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = started
}

// StartAfter makes Started report false for the next n calls and true
// afterwards.
func (r *Radio) StartAfter(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	r.startedAfterBlockChecks = n
}

// Name implements radio.Layer.
func (r *Radio) Name() string { return r.name }

// Address implements radio.Layer.
func (r *Radio) Address() radio.Addr { return r.addr }

// PayloadMaxLength implements radio.Layer.
func (r *Radio) PayloadMaxLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxLength
}

// InitMessage implements radio.Layer.
func (r *Radio) InitMessage(msg *radio.Message) {
	msg.Reset(r.PayloadMaxLength())
}

// Send implements radio.Layer. The packet stays pending until Complete.
func (r *Radio) Send(msg *radio.Message, done radio.SendDoneFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SendErr != nil {
		return r.SendErr
	}
	msg.SetSource(r.addr)
	data := append([]byte(nil), msg.Data()...)
	r.sent = append(r.sent, Packet{
		Type:        msg.Type(),
		Source:      r.addr,
		Destination: msg.Destination(),
		Data:        data,
	})
	r.pending = append(r.pending, pending{msg: msg, done: done})
	return nil
}

// Complete finishes the oldest pending send with err. It returns false when
// nothing was pending.
func (r *Radio) Complete(err error) bool {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return false
	}
	p := r.pending[0]
	r.pending = r.pending[1:]
	r.mu.Unlock()

	if p.done != nil {
		p.done(r, p.msg, err)
	}
	return true
}

// Pending returns the number of sends awaiting completion.
func (r *Radio) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Sent returns every packet submitted so far.
func (r *Radio) Sent() []Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Packet, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentCount returns the number of packets submitted so far.
func (r *Radio) SentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// Inject delivers a packet from src to every receiver registered for amid.
func (r *Radio) Inject(src, dst radio.Addr, amid radio.AMID, data []byte) {
	var msg radio.Message
	msg.Reset(radio.MaxPayloadLength)
	copy(msg.Payload(len(data)), data)
	_ = msg.SetPayloadLength(len(data))
	msg.SetType(amid)
	msg.SetSource(src)
	msg.SetDestination(dst)

	r.mu.Lock()
	targets := make([]*radio.Receiver, 0, len(r.receivers))
	for rcv := range r.receivers {
		if rcv.AMID() == amid {
			targets = append(targets, rcv)
		}
	}
	r.mu.Unlock()

	for _, rcv := range targets {
		rcv.Deliver(r, &msg)
	}
}

// RegisterReceiver implements radio.Layer.
func (r *Radio) RegisterReceiver(rcv *radio.Receiver, amid radio.AMID, fn radio.ReceiveFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RegisterErr != nil {
		return r.RegisterErr
	}
	if _, exists := r.receivers[rcv]; exists {
		return radio.ErrAlreadyInUse
	}
	rcv.Bind(amid, fn)
	r.receivers[rcv] = struct{}{}
	return nil
}

// DeregisterReceiver implements radio.Layer.
func (r *Radio) DeregisterReceiver(rcv *radio.Receiver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeregisterErr != nil {
		return r.DeregisterErr
	}
	if _, exists := r.receivers[rcv]; !exists {
		return radio.ErrNotRegistered
	}
	delete(r.receivers, rcv)
	return nil
}

// Receivers returns the number of registered receivers.
func (r *Radio) Receivers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receivers)
}

// RegisterSleepController implements radio.Layer.
func (r *Radio) RegisterSleepController(c *radio.SleepController) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RegisterSleepErr != nil {
		return r.RegisterSleepErr
	}
	if _, exists := r.sleepers[c]; exists {
		return radio.ErrAlreadyInUse
	}
	r.sleepers[c] = false
	return nil
}

// DeregisterSleepController implements radio.Layer.
func (r *Radio) DeregisterSleepController(c *radio.SleepController) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeregisterSleepErr != nil {
		return r.DeregisterSleepErr
	}
	if _, exists := r.sleepers[c]; !exists {
		return radio.ErrNotRegistered
	}
	delete(r.sleepers, c)
	return nil
}

// BlockSleep implements radio.Layer.
func (r *Radio) BlockSleep(c *radio.SleepController) error {
	return r.setBlocked(c, true)
}

// AllowSleep implements radio.Layer.
func (r *Radio) AllowSleep(c *radio.SleepController) error {
	return r.setBlocked(c, false)
}

func (r *Radio) setBlocked(c *radio.SleepController, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sleepers[c]; !exists {
		return radio.ErrNotRegistered
	}
	r.sleepers[c] = blocked
	return nil
}

// SleepBlocked reports whether c currently blocks sleep.
func (r *Radio) SleepBlocked(c *radio.SleepController) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sleepers[c]
}

// SleepControllers returns the number of registered sleep controllers.
func (r *Radio) SleepControllers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sleepers)
}

// Started implements radio.Layer.
func (r *Radio) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started && r.startedAfterBlockChecks > 0 {
		r.startedAfterBlockChecks--
		if r.startedAfterBlockChecks == 0 {
			r.started = true
		}
		return false
	}
	return r.started
}

// Compile-time interface satisfaction check.
var _ radio.Layer = (*Radio)(nil)
