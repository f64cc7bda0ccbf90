package udp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// Framing constants.
const (
	// HeaderSize is the size of the datagram header: dst(2) src(2) amid(1).
	HeaderSize = 5

	// MaxFrameSize is the largest datagram the emulated radio produces.
	MaxFrameSize = HeaderSize + radio.MaxPayloadLength
)

// Framing errors.
var (
	// ErrFrameTruncated indicates a datagram shorter than the header.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrFrameTooLarge indicates a payload that cannot fit in a Message.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Frame is one emulated radio packet.
type Frame struct {
	Destination radio.Addr
	Source      radio.Addr
	Type        radio.AMID
	Payload     []byte
}

// AppendFrame appends the datagram encoding of f to buf.
func AppendFrame(buf []byte, f Frame) ([]byte, error) {
	if len(f.Payload) > radio.MaxPayloadLength {
		return buf, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Payload))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(f.Destination))
	buf = binary.BigEndian.AppendUint16(buf, uint16(f.Source))
	buf = append(buf, byte(f.Type))
	return append(buf, f.Payload...), nil
}

// ParseFrame decodes a datagram. The returned payload aliases data.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, ErrFrameTruncated
	}
	payload := data[HeaderSize:]
	if len(payload) > radio.MaxPayloadLength {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	return Frame{
		Destination: radio.Addr(binary.BigEndian.Uint16(data[0:2])),
		Source:      radio.Addr(binary.BigEndian.Uint16(data[2:4])),
		Type:        radio.AMID(data[4]),
		Payload:     payload,
	}, nil
}
