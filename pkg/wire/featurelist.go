package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// FeatureSource is a read-only view of a node's features.
type FeatureSource interface {
	// Count returns the number of registered features.
	Count() int

	// Get returns the feature at index, or false when it is past the end
	// or currently unavailable.
	Get(index int) (uuid.UUID, bool)
}

// FeatureList is one page of a node's feature UUIDs.
type FeatureList struct {
	GUID       EUI64
	BootNumber uint32
	Total      uint8 // features registered on the node
	Offset     uint8 // index the page was requested from
	Features   []uuid.UUID
}

// FeatureListCapacity returns how many UUIDs fit in a payload of maxPayload
// bytes, or zero when not even the header fits.
func FeatureListCapacity(maxPayload int) int {
	if maxPayload < FeatureListHeaderSize {
		return 0
	}
	return (maxPayload - FeatureListHeaderSize) / UUIDSize
}

// Size returns the encoded size of l.
func (l *FeatureList) Size() int {
	return FeatureListHeaderSize + len(l.Features)*UUIDSize
}

// AppendBinary implements encoding.BinaryAppender.
func (l *FeatureList) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(OpFeatureList), byte(VersionCurrent))
	b = append(b, l.GUID[:]...)
	b = binary.BigEndian.AppendUint32(b, l.BootNumber)
	b = append(b, l.Total, l.Offset)
	for _, f := range l.Features {
		b = append(b, f[:]...)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (l *FeatureList) MarshalBinary() ([]byte, error) {
	return l.AppendBinary(make([]byte, 0, l.Size()))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Trailing bytes
// that do not form a whole UUID are ignored.
func (l *FeatureList) UnmarshalBinary(data []byte) error {
	if _, err := checkHeader(data, OpFeatureList); err != nil {
		return err
	}
	if len(data) < FeatureListHeaderSize {
		return fmt.Errorf("%w: feature list needs %d bytes, got %d", ErrTooShort, FeatureListHeaderSize, len(data))
	}

	r := reader{b: data, off: 2}
	l.GUID = r.eui64()
	l.BootNumber = r.u32()
	l.Total = r.u8()
	l.Offset = r.u8()

	n := (len(data) - FeatureListHeaderSize) / UUIDSize
	l.Features = make([]uuid.UUID, n)
	for i := range l.Features {
		l.Features[i] = r.uuid()
	}
	return nil
}

// DecodeFeatureList decodes a feature list page.
func DecodeFeatureList(b []byte) (*FeatureList, error) {
	l := new(FeatureList)
	if err := l.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return l, nil
}

// EncodeFeatureList writes one page of features from src into buf, starting
// at index offset. The page holds as many UUIDs as fit in len(buf).
// Unavailable features are skipped and do not take space in the page.
// It returns the number of bytes written and the number of UUIDs included.
func EncodeFeatureList(buf []byte, guid EUI64, bootNumber uint32, src FeatureSource, offset uint8) (int, int, error) {
	space := FeatureListCapacity(len(buf))
	if len(buf) < FeatureListHeaderSize {
		return 0, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, FeatureListHeaderSize, len(buf))
	}

	total := src.Count()
	if total > 255 {
		total = 255
	}

	b := buf[:0]
	b = append(b, byte(OpFeatureList), byte(VersionCurrent))
	b = append(b, guid[:]...)
	b = binary.BigEndian.AppendUint32(b, bootNumber)
	b = append(b, uint8(total), offset)

	included := 0
	for index := int(offset); included < space && index < total; index++ {
		id, ok := src.Get(index)
		if !ok {
			continue
		}
		b = append(b, id[:]...)
		included++
	}
	return len(b), included, nil
}
