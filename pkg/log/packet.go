package log

import "github.com/deva-protocol/deva-go/pkg/wire"

// MaxFrameCapture is the number of payload bytes kept in a FrameEvent.
const MaxFrameCapture = 128

// NewFrameEvent captures data, truncating it to MaxFrameCapture bytes.
func NewFrameEvent(data []byte) *FrameEvent {
	f := &FrameEvent{Size: len(data)}
	n := len(data)
	if n > MaxFrameCapture {
		n = MaxFrameCapture
		f.Truncated = true
	}
	f.Data = append([]byte(nil), data[:n]...)
	return f
}

// DecodePacket decodes a protocol payload into a PacketEvent.
func DecodePacket(data []byte) (*PacketEvent, error) {
	op, v, err := wire.PeekOpcode(data)
	if err != nil {
		return nil, err
	}
	p := &PacketEvent{Opcode: op, Version: v}

	switch op {
	case wire.OpAnnouncement:
		a, err := wire.DecodeAnnouncement(data)
		if err != nil {
			return nil, err
		}
		p.Announcement = a
	case wire.OpDescription:
		d, err := wire.DecodeDescription(data)
		if err != nil {
			return nil, err
		}
		p.Description = d
	case wire.OpFeatureList:
		l, err := wire.DecodeFeatureList(data)
		if err != nil {
			return nil, err
		}
		total, offset, count := l.Total, l.Offset, len(l.Features)
		p.FeatureTotal = &total
		p.FeatureOffset = &offset
		p.FeatureCount = &count
	case wire.OpListFeatures:
		r, err := wire.DecodeFeatureRequest(data)
		if err != nil {
			return nil, err
		}
		offset := r.Offset
		p.FeatureOffset = &offset
	case wire.OpQuery, wire.OpDescribe:
		if _, err := wire.DecodeRequest(data); err != nil {
			return nil, err
		}
	}
	return p, nil
}
