// Package identity provides the read-only device signature a node
// announces: hardware identifier, platform and firmware descriptions,
// boot counters and uptime.
package identity

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/deva-protocol/deva-go/pkg/wire"
)

// MinValidWallClock is the earliest unix time accepted as a real wall-clock
// reading. Clocks that report earlier times have not been set.
const MinValidWallClock int64 = 1546300800 // 2019-01-01T00:00:00Z

// Position is a geographic position.
type Position struct {
	Type      wire.PositionType
	Latitude  int32 // degrees * 1e6
	Longitude int32 // degrees * 1e6
	Elevation int32 // centimeters
}

// Signature is the device identity consumed when building announcements
// and descriptions.
type Signature interface {
	EUI64() wire.EUI64
	PlatformUUID() uuid.UUID
	ManufacturerUUID() uuid.UUID
	PlatformVersion() wire.SemVer
	ProductionTime() int64
	FirmwareVersion() wire.SemVer
	BuildTime() int64
	ApplicationUUID() uuid.UUID
	RadioChannel() uint8
	RadioTech() wire.RadioTech

	// BootCount is the number of boots since production, this one included.
	BootCount() uint32

	// Lifetime is total seconds of uptime since production.
	Lifetime() uint32

	// Uptime is seconds since boot.
	Uptime() uint32

	// WallClock returns the current unix time, or false while the wall
	// clock has not been set.
	WallClock() (int64, bool)

	// Position returns the node position, or false when unknown.
	Position() (Position, bool)
}

// Info is the fixed part of a node's identity.
type Info struct {
	EUI64           wire.EUI64
	Platform        uuid.UUID
	PlatformVersion wire.SemVer
	Manufacturer    uuid.UUID
	Production      int64 // unix seconds
	Firmware        wire.SemVer
	Build           int64 // unix seconds
	Application     uuid.UUID
	RadioChannel    uint8
	RadioTech       wire.RadioTech
	Position        *Position
}

// Counters are the identity values that persist across boots.
type Counters struct {
	BootCount uint32
	Lifetime  uint32 // seconds, at the start of this boot
}

// Node is a Signature backed by static information and a clock.
type Node struct {
	info     Info
	counters Counters
	clock    clock.Clock
	start    time.Time
}

// NewNode creates a node identity. Uptime counts from the moment NewNode is
// called. If clk is nil the real clock is used.
func NewNode(info Info, counters Counters, clk clock.Clock) *Node {
	if clk == nil {
		clk = clock.New()
	}
	return &Node{
		info:     info,
		counters: counters,
		clock:    clk,
		start:    clk.Now(),
	}
}

// Info returns the fixed identity.
func (n *Node) Info() Info { return n.info }

// Counters returns the persistent counters with the lifetime advanced by
// the current uptime, ready to be saved.
func (n *Node) Counters() Counters {
	return Counters{
		BootCount: n.counters.BootCount,
		Lifetime:  n.Lifetime(),
	}
}

// Signature accessors.

func (n *Node) EUI64() wire.EUI64 { return n.info.EUI64 }
func (n *Node) PlatformUUID() uuid.UUID { return n.info.Platform }
func (n *Node) ManufacturerUUID() uuid.UUID { return n.info.Manufacturer }
func (n *Node) PlatformVersion() wire.SemVer { return n.info.PlatformVersion }
func (n *Node) ProductionTime() int64 { return n.info.Production }
func (n *Node) FirmwareVersion() wire.SemVer { return n.info.Firmware }
func (n *Node) BuildTime() int64 { return n.info.Build }
func (n *Node) ApplicationUUID() uuid.UUID { return n.info.Application }
func (n *Node) RadioChannel() uint8 { return n.info.RadioChannel }
func (n *Node) RadioTech() wire.RadioTech { return n.info.RadioTech }
func (n *Node) BootCount() uint32 { return n.counters.BootCount }
func (n *Node) Lifetime() uint32 { return n.counters.Lifetime + n.Uptime() }

// Uptime implements Signature.
func (n *Node) Uptime() uint32 {
	return uint32(n.clock.Since(n.start) / time.Second)
}

// WallClock implements Signature.
func (n *Node) WallClock() (int64, bool) {
	now := n.clock.Now().Unix()
	if now < MinValidWallClock {
		return 0, false
	}
	return now, true
}

// Position implements Signature.
func (n *Node) Position() (Position, bool) {
	if n.info.Position == nil {
		return Position{}, false
	}
	return *n.info.Position, true
}

// Compile-time interface satisfaction check.
var _ Signature = (*Node)(nil)
