package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// reader decodes big-endian fields from a buffer whose length was checked
// by the caller.
type reader struct {
	b   []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) i64() int64 {
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return int64(v)
}

func (r *reader) eui64() EUI64 {
	var e EUI64
	r.off += copy(e[:], r.b[r.off:])
	return e
}

func (r *reader) uuid() uuid.UUID {
	var u uuid.UUID
	r.off += copy(u[:], r.b[r.off:])
	return u
}

func (r *reader) semver() SemVer {
	return SemVer{Major: r.u8(), Minor: r.u8(), Patch: r.u8()}
}

func appendI32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func appendI64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func appendSemVer(b []byte, v SemVer) []byte {
	return append(b, v.Major, v.Minor, v.Patch)
}
