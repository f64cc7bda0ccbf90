package wire

import (
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// AMID is the active-message type all protocol packets use.
const AMID radio.AMID = 0xDA

// Packet sizes in bytes.
const (
	UUIDSize = 16

	AnnouncementV1Size    = 74
	AnnouncementSize      = 77
	DescriptionV1Size     = 65
	DescriptionSize       = 68
	FeatureListHeaderSize = 16
	RequestSize           = 2
	FeatureRequestSize    = 3
)

// Codec errors.
var (
	// ErrTooShort indicates a packet shorter than its layout requires.
	ErrTooShort = errors.New("packet too short")

	// ErrUnsupportedVersion indicates a version this codec cannot decode.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrUnexpectedOpcode indicates a packet of a different kind.
	ErrUnexpectedOpcode = errors.New("unexpected opcode")

	// ErrBufferTooSmall indicates the destination buffer cannot hold the packet.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// Opcode identifies the packet kind. It is the first byte of every packet.
type Opcode uint8

const (
	OpAnnouncement    Opcode = 0x00
	OpDescription     Opcode = 0x01
	OpFeatureList     Opcode = 0x02
	OpQuery           Opcode = 0x10
	OpDescribe        Opcode = 0x11
	OpListFeatures    Opcode = 0x12
	OpAcknowledgement Opcode = 0xAA
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpAnnouncement:
		return "ANNOUNCEMENT"
	case OpDescription:
		return "DESCRIPTION"
	case OpFeatureList:
		return "FEATURE_LIST"
	case OpQuery:
		return "QUERY"
	case OpDescribe:
		return "DESCRIBE"
	case OpListFeatures:
		return "LIST_FEATURES"
	case OpAcknowledgement:
		return "ACKNOWLEDGEMENT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(o))
	}
}

// ParseOpcode parses an opcode name as returned by Opcode.String, case
// insensitive.
func ParseOpcode(s string) (Opcode, error) {
	for _, op := range []Opcode{OpAnnouncement, OpDescription, OpFeatureList, OpQuery, OpDescribe, OpListFeatures, OpAcknowledgement} {
		if strings.EqualFold(s, op.String()) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", s)
}

// Version is the protocol version carried in the second byte of every packet.
type Version uint8

const (
	Version1 Version = 1
	Version2 Version = 2

	// VersionCurrent is the newest version this codec speaks.
	VersionCurrent = Version2
)

// ClampVersion limits v to VersionCurrent. Newer peers are answered with
// the newest version this node knows.
func ClampVersion(v Version) Version {
	if v > VersionCurrent {
		return VersionCurrent
	}
	return v
}

// PositionType describes how a node's position was determined.
type PositionType uint8

const (
	PositionFixed   PositionType = 'F'
	PositionCentral PositionType = 'C' // a fixed position that is a reference point
	PositionGPS     PositionType = 'G'
	PositionLocal   PositionType = 'L'
	PositionArea    PositionType = 'A'
	PositionUnknown PositionType = 'U'
)

// String returns the position type name.
func (p PositionType) String() string {
	switch p {
	case PositionFixed:
		return "FIXED"
	case PositionCentral:
		return "CENTRAL"
	case PositionGPS:
		return "GPS"
	case PositionLocal:
		return "LOCAL"
	case PositionArea:
		return "AREA"
	case PositionUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("INVALID(0x%02X)", uint8(p))
	}
}

// ParsePositionType parses a single-letter position type or its name.
func ParsePositionType(s string) (PositionType, error) {
	switch strings.ToUpper(s) {
	case "F", "FIXED":
		return PositionFixed, nil
	case "C", "CENTRAL":
		return PositionCentral, nil
	case "G", "GPS":
		return PositionGPS, nil
	case "L", "LOCAL":
		return PositionLocal, nil
	case "A", "AREA":
		return PositionArea, nil
	case "U", "UNKNOWN", "":
		return PositionUnknown, nil
	default:
		return PositionUnknown, fmt.Errorf("unknown position type %q", s)
	}
}

// RadioTech identifies the node's primary radio technology.
type RadioTech uint8

const (
	// RadioTechUnknown means the channel information is not valid.
	RadioTechUnknown   RadioTech = 0
	RadioTech802154    RadioTech = 1
	RadioTechBLE       RadioTech = 2
	RadioTechBLE802154 RadioTech = 3 // channel refers to 802.15.4
	RadioTech80211     RadioTech = 4
)

// Radio channel special values.
const (
	ChannelUnknown uint8 = 0
	ChannelHopping uint8 = 255
)

// String returns the radio technology name.
func (r RadioTech) String() string {
	switch r {
	case RadioTechUnknown:
		return "UNKNOWN"
	case RadioTech802154:
		return "802.15.4"
	case RadioTechBLE:
		return "BLE"
	case RadioTechBLE802154:
		return "BLE+802.15.4"
	case RadioTech80211:
		return "802.11"
	default:
		return fmt.Sprintf("INVALID(%d)", uint8(r))
	}
}

// EUI64 is a 64-bit hardware identifier.
type EUI64 [8]byte

// String returns the identifier as 16 uppercase hex digits.
func (e EUI64) String() string {
	return strings.ToUpper(hex.EncodeToString(e[:]))
}

// ParseEUI64 parses 16 hex digits, optionally separated by colons or dashes.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	clean := strings.NewReplacer(":", "", "-", "").Replace(s)
	if len(clean) != 2*len(e) {
		return e, fmt.Errorf("invalid EUI64 %q: want 16 hex digits", s)
	}
	if _, err := hex.Decode(e[:], []byte(clean)); err != nil {
		return e, fmt.Errorf("invalid EUI64 %q: %w", s, err)
	}
	return e, nil
}

// SemVer is a three-part version number.
type SemVer struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// String returns the version as major.minor.patch.
func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseSemVer parses major.minor.patch.
func ParseSemVer(s string) (SemVer, error) {
	var v SemVer
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return SemVer{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// PeekOpcode returns the opcode and the raw, unclamped version of a packet.
func PeekOpcode(b []byte) (Opcode, Version, error) {
	if len(b) < 2 {
		return 0, 0, ErrTooShort
	}
	return Opcode(b[0]), Version(b[1]), nil
}

// MarshalTo appends p into buf[:0] and returns the number of bytes written.
// It fails with ErrBufferTooSmall instead of growing buf, so buf can be a
// radio message payload.
func MarshalTo(buf []byte, p encoding.BinaryAppender, size int) (int, error) {
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(buf))
	}
	out, err := p.AppendBinary(buf[:0])
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// checkHeader validates the opcode and length of b and returns the clamped
// version.
func checkHeader(b []byte, op Opcode) (Version, error) {
	got, v, err := PeekOpcode(b)
	if err != nil {
		return 0, err
	}
	if got != op {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, got, op)
	}
	if v == 0 {
		return 0, ErrUnsupportedVersion
	}
	return ClampVersion(v), nil
}
