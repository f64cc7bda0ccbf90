package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// DescriptionV1 is the version 1 description layout.
type DescriptionV1 struct {
	GUID            EUI64
	BootNumber      uint32
	Platform        uuid.UUID // board plus peripherals
	Manufacturer    uuid.UUID
	Production      int64 // unix seconds
	IdentTimestamp  int64 // firmware build time, unix seconds
	FirmwareVersion SemVer
}

// Description is the current (version 2) description layout. It adds the
// platform hardware version to version 1.
type Description struct {
	GUID            EUI64
	BootNumber      uint32
	Platform        uuid.UUID
	PlatformVersion SemVer // major, minor, assembly
	Manufacturer    uuid.UUID
	Production      int64
	IdentTimestamp  int64
	FirmwareVersion SemVer
}

// AppendBinary implements encoding.BinaryAppender.
func (d *DescriptionV1) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(OpDescription), byte(Version1))
	b = append(b, d.GUID[:]...)
	b = binary.BigEndian.AppendUint32(b, d.BootNumber)
	b = append(b, d.Platform[:]...)
	b = append(b, d.Manufacturer[:]...)
	b = appendI64(b, d.Production)
	b = appendI64(b, d.IdentTimestamp)
	b = appendSemVer(b, d.FirmwareVersion)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d *DescriptionV1) MarshalBinary() ([]byte, error) {
	return d.AppendBinary(make([]byte, 0, DescriptionV1Size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *DescriptionV1) UnmarshalBinary(data []byte) error {
	if _, err := checkHeader(data, OpDescription); err != nil {
		return err
	}
	if len(data) < DescriptionV1Size {
		return fmt.Errorf("%w: description v1 needs %d bytes, got %d", ErrTooShort, DescriptionV1Size, len(data))
	}

	r := reader{b: data, off: 2}
	d.GUID = r.eui64()
	d.BootNumber = r.u32()
	d.Platform = r.uuid()
	d.Manufacturer = r.uuid()
	d.Production = r.i64()
	d.IdentTimestamp = r.i64()
	d.FirmwareVersion = r.semver()
	return nil
}

// AppendBinary implements encoding.BinaryAppender.
func (d *Description) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(OpDescription), byte(Version2))
	b = append(b, d.GUID[:]...)
	b = binary.BigEndian.AppendUint32(b, d.BootNumber)
	b = append(b, d.Platform[:]...)
	b = appendSemVer(b, d.PlatformVersion)
	b = append(b, d.Manufacturer[:]...)
	b = appendI64(b, d.Production)
	b = appendI64(b, d.IdentTimestamp)
	b = appendSemVer(b, d.FirmwareVersion)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d *Description) MarshalBinary() ([]byte, error) {
	return d.AppendBinary(make([]byte, 0, DescriptionSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Version 1 packets
// are decoded and upgraded with a zero platform version.
func (d *Description) UnmarshalBinary(data []byte) error {
	v, err := checkHeader(data, OpDescription)
	if err != nil {
		return err
	}

	if v == Version1 {
		var v1 DescriptionV1
		if err := v1.UnmarshalBinary(data); err != nil {
			return err
		}
		*d = UpgradeDescription(&v1)
		return nil
	}

	if len(data) < DescriptionSize {
		return fmt.Errorf("%w: description v2 needs %d bytes, got %d", ErrTooShort, DescriptionSize, len(data))
	}

	r := reader{b: data, off: 2}
	d.GUID = r.eui64()
	d.BootNumber = r.u32()
	d.Platform = r.uuid()
	d.PlatformVersion = r.semver()
	d.Manufacturer = r.uuid()
	d.Production = r.i64()
	d.IdentTimestamp = r.i64()
	d.FirmwareVersion = r.semver()
	return nil
}

// DecodeDescription decodes a description of any supported version into
// the current layout.
func DecodeDescription(b []byte) (*Description, error) {
	d := new(Description)
	if err := d.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return d, nil
}

// UpgradeDescription converts a version 1 description to the current layout.
func UpgradeDescription(v1 *DescriptionV1) Description {
	return Description{
		GUID:            v1.GUID,
		BootNumber:      v1.BootNumber,
		Platform:        v1.Platform,
		Manufacturer:    v1.Manufacturer,
		Production:      v1.Production,
		IdentTimestamp:  v1.IdentTimestamp,
		FirmwareVersion: v1.FirmwareVersion,
	}
}

// V1 returns the version 1 form of d.
func (d *Description) V1() DescriptionV1 {
	return DescriptionV1{
		GUID:            d.GUID,
		BootNumber:      d.BootNumber,
		Platform:        d.Platform,
		Manufacturer:    d.Manufacturer,
		Production:      d.Production,
		IdentTimestamp:  d.IdentTimestamp,
		FirmwareVersion: d.FirmwareVersion,
	}
}

// EncodeDescription writes d into buf in the layout of version v. Version 1
// produces the version 1 layout; every other version produces the current
// one.
func EncodeDescription(buf []byte, d *Description, v Version) (int, error) {
	if v == Version1 {
		v1 := d.V1()
		return MarshalTo(buf, &v1, DescriptionV1Size)
	}
	return MarshalTo(buf, d, DescriptionSize)
}

// DescriptionSizeFor returns the encoded size of a description at version v.
func DescriptionSizeFor(v Version) int {
	if v == Version1 {
		return DescriptionV1Size
	}
	return DescriptionSize
}
