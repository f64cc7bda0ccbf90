package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// BootTimeUnknown is the boot time reported before wall-clock time is known.
const BootTimeUnknown int64 = -1

// AnnouncementV1 is the version 1 announcement layout.
type AnnouncementV1 struct {
	GUID           EUI64
	BootNumber     uint32
	BootTime       int64 // unix seconds, BootTimeUnknown if not known
	Uptime         uint32
	Lifetime       uint32 // total uptime since production, may be lossy
	Announcements  uint32 // announcements sent since boot
	Application    uuid.UUID
	Latitude       int32 // degrees * 1e6
	Longitude      int32 // degrees * 1e6
	Elevation      int32 // centimeters
	IdentTimestamp int64 // firmware build time, unix seconds
	FeatureHash    uint32
}

// Announcement is the current (version 2) announcement layout. It adds
// position type and radio information to version 1.
type Announcement struct {
	GUID           EUI64
	BootNumber     uint32
	BootTime       int64
	Uptime         uint32
	Lifetime       uint32
	Announcements  uint32
	Application    uuid.UUID
	PositionType   PositionType
	Latitude       int32
	Longitude      int32
	Elevation      int32
	RadioTech      RadioTech
	RadioChannel   uint8
	IdentTimestamp int64
	FeatureHash    uint32
}

// AppendBinary implements encoding.BinaryAppender.
func (a *AnnouncementV1) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(OpAnnouncement), byte(Version1))
	b = append(b, a.GUID[:]...)
	b = binary.BigEndian.AppendUint32(b, a.BootNumber)
	b = appendI64(b, a.BootTime)
	b = binary.BigEndian.AppendUint32(b, a.Uptime)
	b = binary.BigEndian.AppendUint32(b, a.Lifetime)
	b = binary.BigEndian.AppendUint32(b, a.Announcements)
	b = append(b, a.Application[:]...)
	b = appendI32(b, a.Latitude)
	b = appendI32(b, a.Longitude)
	b = appendI32(b, a.Elevation)
	b = appendI64(b, a.IdentTimestamp)
	b = binary.BigEndian.AppendUint32(b, a.FeatureHash)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (a *AnnouncementV1) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, AnnouncementV1Size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The version byte
// is not checked; any announcement at least AnnouncementV1Size long decodes.
func (a *AnnouncementV1) UnmarshalBinary(data []byte) error {
	if _, err := checkHeader(data, OpAnnouncement); err != nil {
		return err
	}
	if len(data) < AnnouncementV1Size {
		return fmt.Errorf("%w: announcement v1 needs %d bytes, got %d", ErrTooShort, AnnouncementV1Size, len(data))
	}

	r := reader{b: data, off: 2}
	a.GUID = r.eui64()
	a.BootNumber = r.u32()
	a.BootTime = r.i64()
	a.Uptime = r.u32()
	a.Lifetime = r.u32()
	a.Announcements = r.u32()
	a.Application = r.uuid()
	a.Latitude = r.i32()
	a.Longitude = r.i32()
	a.Elevation = r.i32()
	a.IdentTimestamp = r.i64()
	a.FeatureHash = r.u32()
	return nil
}

// AppendBinary implements encoding.BinaryAppender.
func (a *Announcement) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(OpAnnouncement), byte(Version2))
	b = append(b, a.GUID[:]...)
	b = binary.BigEndian.AppendUint32(b, a.BootNumber)
	b = appendI64(b, a.BootTime)
	b = binary.BigEndian.AppendUint32(b, a.Uptime)
	b = binary.BigEndian.AppendUint32(b, a.Lifetime)
	b = binary.BigEndian.AppendUint32(b, a.Announcements)
	b = append(b, a.Application[:]...)
	b = append(b, byte(a.PositionType))
	b = appendI32(b, a.Latitude)
	b = appendI32(b, a.Longitude)
	b = appendI32(b, a.Elevation)
	b = append(b, byte(a.RadioTech), a.RadioChannel)
	b = appendI64(b, a.IdentTimestamp)
	b = binary.BigEndian.AppendUint32(b, a.FeatureHash)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (a *Announcement) MarshalBinary() ([]byte, error) {
	return a.AppendBinary(make([]byte, 0, AnnouncementSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Version 1 packets
// are decoded and upgraded.
func (a *Announcement) UnmarshalBinary(data []byte) error {
	v, err := checkHeader(data, OpAnnouncement)
	if err != nil {
		return err
	}

	if v == Version1 {
		var v1 AnnouncementV1
		if err := v1.UnmarshalBinary(data); err != nil {
			return err
		}
		*a = UpgradeAnnouncement(&v1)
		return nil
	}

	if len(data) < AnnouncementSize {
		return fmt.Errorf("%w: announcement v2 needs %d bytes, got %d", ErrTooShort, AnnouncementSize, len(data))
	}

	r := reader{b: data, off: 2}
	a.GUID = r.eui64()
	a.BootNumber = r.u32()
	a.BootTime = r.i64()
	a.Uptime = r.u32()
	a.Lifetime = r.u32()
	a.Announcements = r.u32()
	a.Application = r.uuid()
	a.PositionType = PositionType(r.u8())
	a.Latitude = r.i32()
	a.Longitude = r.i32()
	a.Elevation = r.i32()
	a.RadioTech = RadioTech(r.u8())
	a.RadioChannel = r.u8()
	a.IdentTimestamp = r.i64()
	a.FeatureHash = r.u32()
	return nil
}

// DecodeAnnouncement decodes an announcement of any supported version into
// the current layout.
func DecodeAnnouncement(b []byte) (*Announcement, error) {
	a := new(Announcement)
	if err := a.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return a, nil
}

// UpgradeAnnouncement converts a version 1 announcement to the current
// layout. Version 1 carries no position type or radio information, so the
// position type is unknown and the radio fields are zero.
func UpgradeAnnouncement(v1 *AnnouncementV1) Announcement {
	return Announcement{
		GUID:           v1.GUID,
		BootNumber:     v1.BootNumber,
		BootTime:       v1.BootTime,
		Uptime:         v1.Uptime,
		Lifetime:       v1.Lifetime,
		Announcements:  v1.Announcements,
		Application:    v1.Application,
		PositionType:   PositionUnknown,
		Latitude:       v1.Latitude,
		Longitude:      v1.Longitude,
		Elevation:      v1.Elevation,
		RadioTech:      RadioTechUnknown,
		RadioChannel:   0,
		IdentTimestamp: v1.IdentTimestamp,
		FeatureHash:    v1.FeatureHash,
	}
}

// V1 returns the version 1 form of a, dropping the fields version 1 lacks.
func (a *Announcement) V1() AnnouncementV1 {
	return AnnouncementV1{
		GUID:           a.GUID,
		BootNumber:     a.BootNumber,
		BootTime:       a.BootTime,
		Uptime:         a.Uptime,
		Lifetime:       a.Lifetime,
		Announcements:  a.Announcements,
		Application:    a.Application,
		Latitude:       a.Latitude,
		Longitude:      a.Longitude,
		Elevation:      a.Elevation,
		IdentTimestamp: a.IdentTimestamp,
		FeatureHash:    a.FeatureHash,
	}
}

// EncodeAnnouncement writes a into buf in the layout of version v. Version 1
// produces the version 1 layout; every other version produces the current
// one. It returns the number of bytes written.
func EncodeAnnouncement(buf []byte, a *Announcement, v Version) (int, error) {
	if v == Version1 {
		v1 := a.V1()
		return MarshalTo(buf, &v1, AnnouncementV1Size)
	}
	return MarshalTo(buf, a, AnnouncementSize)
}

// AnnouncementSizeFor returns the encoded size of an announcement at version v.
func AnnouncementSizeFor(v Version) int {
	if v == Version1 {
		return AnnouncementV1Size
	}
	return AnnouncementSize
}
