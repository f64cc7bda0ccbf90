package radio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AMID is an active-message packet type identifier.
type AMID uint8

// Addr is a 16-bit active-message address.
type Addr uint16

const (
	// Broadcast is the address every node receives.
	Broadcast Addr = 0xFFFF

	// MaxPayloadLength is the largest payload any Message can carry.
	// Individual layers may advertise a smaller PayloadMaxLength.
	MaxPayloadLength = 114
)

// String returns the address as four hex digits.
func (a Addr) String() string {
	return fmt.Sprintf("%04X", uint16(a))
}

// ParseAddr parses a hex address with an optional 0x prefix. "broadcast"
// is accepted for Broadcast.
func ParseAddr(s string) (Addr, error) {
	if strings.EqualFold(s, "broadcast") {
		return Broadcast, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Addr(v), nil
}

// Radio errors.
var (
	ErrBusy          = errors.New("radio busy")
	ErrOff           = errors.New("radio off")
	ErrInvalidLength = errors.New("invalid payload length")
	ErrNotRegistered = errors.New("not registered")
	ErrAlreadyInUse  = errors.New("already registered")
	ErrClosed        = errors.New("radio closed")
	ErrUnknownPeer   = errors.New("unknown destination")
	ErrSendFailed    = errors.New("send failed")
)

// SendDoneFunc is called once a submitted message has left (or failed to
// leave) the radio. err is nil on success.
type SendDoneFunc func(layer Layer, msg *Message, err error)

// ReceiveFunc handles a received packet. The message is only valid for the
// duration of the call.
type ReceiveFunc func(layer Layer, msg *Message)

// Receiver is caller-owned storage for a receive registration.
// The zero value is ready to be registered.
type Receiver struct {
	amid AMID
	fn   ReceiveFunc
}

// AMID returns the packet type the receiver was registered for.
func (r *Receiver) AMID() AMID {
	return r.amid
}

// Bind stores the registration in r. Layer implementations call it from
// RegisterReceiver.
func (r *Receiver) Bind(amid AMID, fn ReceiveFunc) {
	r.amid = amid
	r.fn = fn
}

// Deliver invokes the bound callback.
func (r *Receiver) Deliver(layer Layer, msg *Message) {
	if r.fn != nil {
		r.fn(layer, msg)
	}
}

// SleepController is caller-owned storage for a power-management
// registration. While any registered controller blocks sleep the layer keeps
// its radio started.
type SleepController struct {
	// Name identifies the controller in logs.
	Name string
}

// Layer is a radio interface.
type Layer interface {
	// Name identifies the interface in logs.
	Name() string

	// Address returns the local address.
	Address() Addr

	// PayloadMaxLength returns the largest payload this layer can send.
	PayloadMaxLength() int

	// InitMessage resets msg for use on this layer.
	InitMessage(msg *Message)

	// Send submits msg for asynchronous transmission. done is called exactly
	// once if and only if Send returns nil.
	Send(msg *Message, done SendDoneFunc) error

	// RegisterReceiver starts delivering packets of type amid to fn.
	RegisterReceiver(r *Receiver, amid AMID, fn ReceiveFunc) error

	// DeregisterReceiver stops delivery to r.
	DeregisterReceiver(r *Receiver) error

	// RegisterSleepController adds c to the controllers consulted before
	// powering the radio down.
	RegisterSleepController(c *SleepController) error

	// DeregisterSleepController removes c.
	DeregisterSleepController(c *SleepController) error

	// BlockSleep keeps the radio powered until AllowSleep is called for c.
	BlockSleep(c *SleepController) error

	// AllowSleep releases the sleep block held by c.
	AllowSleep(c *SleepController) error

	// Started reports whether the radio is powered and able to transmit.
	Started() bool
}
