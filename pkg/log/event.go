package log

import (
	"fmt"
	"strings"
	"time"

	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Event is one record of a protocol capture. Exactly one of the payload
// pointers is set, except that a drop may carry the Frame that caused it.
//
// Records are CBOR maps keyed by the small integers in the struct tags;
// the keys are part of the .dlog format and must not be renumbered.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Interface string    `cbor:"2,keyasint"` // radio name, "" for node-wide events
	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Local is our address on Interface. Peer is the sender of incoming
	// and the destination of outgoing traffic.
	Local radio.Addr `cbor:"6,keyasint,omitempty"`
	Peer  radio.Addr `cbor:"7,keyasint,omitempty"`

	// NodeID is the EUI-64 of the capturing node in hex.
	NodeID string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Drop        *DropEvent        `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Label names the payload: the opcode for packets, otherwise the kind of
// record.
func (e Event) Label() string {
	switch {
	case e.Packet != nil:
		return e.Packet.Opcode.String()
	case e.Drop != nil:
		return "Drop"
	case e.StateChange != nil:
		return "State"
	case e.Error != nil:
		return "Error"
	case e.Frame != nil:
		return "Frame"
	}
	return "Unknown"
}

// Summary renders the payload on one line, or "" when there is none.
func (e Event) Summary() string {
	var b strings.Builder
	switch {
	case e.Packet != nil:
		p := e.Packet
		fmt.Fprintf(&b, "%s v%d", p.Opcode, p.Version)
		if p.Announcement != nil {
			fmt.Fprintf(&b, " guid=%s boot=%d", p.Announcement.GUID, p.Announcement.BootNumber)
		}
		if p.Description != nil {
			fmt.Fprintf(&b, " guid=%s fw=%s", p.Description.GUID, p.Description.FirmwareVersion)
		}
		if p.FeatureOffset != nil {
			fmt.Fprintf(&b, " offset=%d", *p.FeatureOffset)
		}
		if p.FeatureTotal != nil {
			fmt.Fprintf(&b, " total=%d", *p.FeatureTotal)
		}
		if p.FeatureCount != nil {
			fmt.Fprintf(&b, " count=%d", *p.FeatureCount)
		}
	case e.Drop != nil:
		b.WriteString(e.Drop.Reason.String())
		if e.Drop.Detail != "" {
			b.WriteString(": " + e.Drop.Detail)
		}
	case e.StateChange != nil:
		sc := e.StateChange
		b.WriteString(sc.Entity.String())
		if sc.OldState != "" {
			b.WriteString(" " + sc.OldState + " ->")
		}
		b.WriteString(" " + sc.NewState)
	case e.Error != nil:
		fmt.Fprintf(&b, "%s: %s", e.Error.Layer, e.Error.Message)
	case e.Frame != nil:
		fmt.Fprintf(&b, "%d bytes", e.Frame.Size)
		if e.Frame.Truncated {
			b.WriteString(" (truncated)")
		}
	}
	return b.String()
}

// enumName looks v up in names, which are indexed by value.
func enumName[T ~uint8](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

// parseEnum is the inverse of enumName. Matching ignores case and accepts
// '-' for '_'.
func parseEnum[T ~uint8](kind string, names []string, s string) (T, error) {
	s = strings.ReplaceAll(s, "-", "_")
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("invalid %s %q (one of %s)", kind, s, strings.ToLower(strings.Join(names, ", ")))
}

// Direction of a packet relative to the capturing node.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

var directionNames = []string{"IN", "OUT"}

func (d Direction) String() string { return enumName(directionNames, d) }

// ParseDirection parses "in" or "out".
func ParseDirection(s string) (Direction, error) {
	return parseEnum[Direction]("direction", directionNames, s)
}

// Layer is where in the stack an event was captured.
type Layer uint8

const (
	LayerRadio   Layer = iota // raw payload bytes
	LayerWire                 // decoded packets
	LayerService              // announcer and worker
)

var layerNames = []string{"RADIO", "WIRE", "SERVICE"}

func (l Layer) String() string { return enumName(layerNames, l) }

// ParseLayer parses a layer name.
func ParseLayer(s string) (Layer, error) {
	return parseEnum[Layer]("layer", layerNames, s)
}

// Category classifies events independent of layer.
type Category uint8

const (
	CategoryPacket Category = iota
	CategoryDrop
	CategoryState
	CategoryError
)

var categoryNames = []string{"PACKET", "DROP", "STATE", "ERROR"}

func (c Category) String() string { return enumName(categoryNames, c) }

// ParseCategory parses a category name.
func ParseCategory(s string) (Category, error) {
	return parseEnum[Category]("category", categoryNames, s)
}

// FrameEvent is a radio payload as seen on the air.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"` // at most MaxFrameCapture bytes
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// PacketEvent is a decoded protocol packet. Only the fields of its opcode
// are set.
type PacketEvent struct {
	Opcode  wire.Opcode  `cbor:"1,keyasint"`
	Version wire.Version `cbor:"2,keyasint"`

	Announcement *wire.Announcement `cbor:"3,keyasint,omitempty"`
	Description  *wire.Description  `cbor:"4,keyasint,omitempty"`

	// Feature list pages and ListFeatures requests.
	FeatureOffset *uint8 `cbor:"5,keyasint,omitempty"`
	FeatureTotal  *uint8 `cbor:"6,keyasint,omitempty"`
	FeatureCount  *int   `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is what changed state.
type StateEntity uint8

const (
	StateEntityWorker    StateEntity = iota // service worker
	StateEntityAnnouncer                    // announcer added or removed
	StateEntityRadio                        // sleep permission
)

var stateEntityNames = []string{"WORKER", "ANNOUNCER", "RADIO"}

func (s StateEntity) String() string { return enumName(stateEntityNames, s) }

// DropEvent records discarded input or skipped output.
type DropEvent struct {
	Reason DropReason `cbor:"1,keyasint"`
	Detail string     `cbor:"2,keyasint,omitempty"`
}

// DropReason says why work was discarded.
type DropReason uint8

const (
	DropQueueFull     DropReason = iota // action queue full
	DropMalformed                       // packet failed to decode
	DropUnknownOpcode                   // no handler for the opcode
	DropNoBuffer                        // shared message still in flight
	DropUnregistered                    // announcer removed before the action ran
	DropSendRejected                    // radio refused the send
)

var dropReasonNames = []string{"QUEUE_FULL", "MALFORMED", "UNKNOWN_OPCODE", "NO_BUFFER", "UNREGISTERED", "SEND_REJECTED"}

func (r DropReason) String() string { return enumName(dropReasonNames, r) }

// ParseDropReason parses a drop reason name such as "queue-full".
func ParseDropReason(s string) (DropReason, error) {
	return parseEnum[DropReason]("drop reason", dropReasonNames, s)
}

// ErrorEventData records a failure at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"4,keyasint,omitempty"` // the operation that failed
}
