package service

import (
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// announcement describes this node as it is now.
func (s *Service) announcement() wire.Announcement {
	n := s.node
	a := wire.Announcement{
		GUID:           n.EUI64(),
		BootNumber:     n.BootCount(),
		BootTime:       s.bootTime.Load(),
		Uptime:         n.Uptime(),
		Lifetime:       n.Lifetime(),
		Announcements:  s.announced.Load(),
		Application:    n.ApplicationUUID(),
		PositionType:   wire.PositionUnknown,
		RadioTech:      n.RadioTech(),
		RadioChannel:   n.RadioChannel(),
		IdentTimestamp: n.BuildTime(),
		FeatureHash:    s.features.Hash(),
	}
	if pos, ok := n.Position(); ok {
		a.PositionType = pos.Type
		a.Latitude = pos.Latitude
		a.Longitude = pos.Longitude
		a.Elevation = pos.Elevation
	}
	return a
}

func (s *Service) description() wire.Description {
	n := s.node
	return wire.Description{
		GUID:            n.EUI64(),
		BootNumber:      n.BootCount(),
		Platform:        n.PlatformUUID(),
		PlatformVersion: n.PlatformVersion(),
		Manufacturer:    n.ManufacturerUUID(),
		Production:      n.ProductionTime(),
		IdentTimestamp:  n.BuildTime(),
		FirmwareVersion: n.FirmwareVersion(),
	}
}

// reserve takes the send buffer and prepares it for layer. It returns nil
// while a send is outstanding.
func (s *Service) reserve(layer radio.Layer, dst radio.Addr) *radio.Message {
	msg, ok := s.pool.Reserve()
	if !ok {
		s.logger.Warn("no message buffer", "iface", layer.Name())
		s.logDrop(layer, dst, log.DropNoBuffer, "")
		return nil
	}
	layer.InitMessage(msg)
	return msg
}

// finish sets the packet header and wraps msg for sending. On error the
// buffer is returned to the pool.
func (s *Service) finish(layer radio.Layer, msg *radio.Message, dst radio.Addr, op wire.Opcode, n int, err error) *outgoing {
	if err == nil {
		err = msg.SetPayloadLength(n)
	}
	if err != nil {
		s.logger.Error("build packet failed", "iface", layer.Name(), "opcode", op, "err", err)
		s.logError(layer, log.LayerWire, err.Error(), "build "+op.String())
		if rerr := s.pool.Release(msg); rerr != nil {
			s.logger.Error("release failed", "err", rerr)
		}
		return nil
	}
	msg.SetType(wire.AMID)
	msg.SetDestination(dst)
	return &outgoing{msg: msg, layer: layer, opcode: op}
}

func (s *Service) buildAnnouncement(layer radio.Layer, v wire.Version, dst radio.Addr) *outgoing {
	msg := s.reserve(layer, dst)
	if msg == nil {
		return nil
	}
	a := s.announcement()
	n, err := wire.EncodeAnnouncement(msg.Payload(msg.PayloadMaxLength()), &a, v)
	return s.finish(layer, msg, dst, wire.OpAnnouncement, n, err)
}

func (s *Service) buildDescription(layer radio.Layer, v wire.Version, dst radio.Addr) *outgoing {
	msg := s.reserve(layer, dst)
	if msg == nil {
		return nil
	}
	d := s.description()
	n, err := wire.EncodeDescription(msg.Payload(msg.PayloadMaxLength()), &d, v)
	return s.finish(layer, msg, dst, wire.OpDescription, n, err)
}

func (s *Service) buildFeatureList(layer radio.Layer, dst radio.Addr, offset uint8) *outgoing {
	msg := s.reserve(layer, dst)
	if msg == nil {
		return nil
	}
	n, included, err := wire.EncodeFeatureList(msg.Payload(msg.PayloadMaxLength()), s.node.EUI64(), s.node.BootCount(), s.features, offset)
	if err == nil {
		s.logger.Debug("feature page", "iface", layer.Name(), "offset", offset, "included", included, "total", s.features.Count())
	}
	return s.finish(layer, msg, dst, wire.OpFeatureList, n, err)
}
