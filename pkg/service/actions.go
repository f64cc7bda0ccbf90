package service

import (
	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// action is a received packet handed from a receive callback to the worker.
type action struct {
	announcer *announce.Announcer
	layer     radio.Layer
	src       radio.Addr
	dst       radio.Addr
	opcode    wire.Opcode
	data      []byte
}

// receiver returns the receive callback for announcer a. It runs in the
// radio's context: it never blocks and touches no worker state.
func (s *Service) receiver(a *announce.Announcer) radio.ReceiveFunc {
	return func(layer radio.Layer, msg *radio.Message) {
		data := msg.Data()
		op, _, err := wire.PeekOpcode(data)
		if err != nil {
			s.config.Metrics.Dropped(log.DropMalformed.String())
			s.logger.Debug("short packet", "iface", layer.Name(), "src", msg.Source().String(), "len", len(data))
			return
		}
		s.config.Metrics.PacketReceived(layer.Name(), op.String())

		switch op {
		case wire.OpAnnouncement, wire.OpQuery, wire.OpDescribe, wire.OpListFeatures, wire.OpAcknowledgement:
		case wire.OpDescription, wire.OpFeatureList:
			// Responses to some other node's requests.
			s.logger.Debug("ignoring response", "iface", layer.Name(), "opcode", op, "src", msg.Source().String())
			return
		default:
			s.config.Metrics.Dropped(log.DropUnknownOpcode.String())
			s.logger.Warn("unknown opcode", "iface", layer.Name(), "opcode", op, "src", msg.Source().String())
			return
		}

		act := action{
			announcer: a,
			layer:     layer,
			src:       msg.Source(),
			dst:       msg.Destination(),
			opcode:    op,
			data:      append([]byte(nil), data...),
		}
		select {
		case s.actions <- act:
			s.config.Metrics.SetQueueDepth(len(s.actions))
			s.signal()
		default:
			s.config.Metrics.Dropped(log.DropQueueFull.String())
			s.logger.Warn("action queue full, dropping", "iface", layer.Name(), "opcode", op, "src", act.src.String())
		}
	}
}

// handleAction dispatches a queued action and returns the response to
// send, if any.
func (s *Service) handleAction(act action) *outgoing {
	if !s.registry.Contains(act.announcer) {
		s.logger.Error("action for unregistered announcer", "iface", act.layer.Name(), "opcode", act.opcode)
		s.logDrop(act.layer, act.src, log.DropUnregistered, act.opcode.String())
		return nil
	}

	pkt, err := log.DecodePacket(act.data)
	if err != nil {
		s.config.Metrics.Dropped(log.DropMalformed.String())
		s.logger.Warn("malformed packet", "iface", act.layer.Name(), "opcode", act.opcode, "src", act.src.String(), "err", err)
		s.logMalformed(act.layer, act.src, act.data, err)
		return nil
	}
	s.emit(act.layer, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryPacket,
		Peer:      act.src,
		Packet:    pkt,
	})

	// Versions this node does not speak are answered with the newest one
	// it does.
	version := wire.ClampVersion(pkt.Version)
	if version == 0 {
		version = wire.VersionCurrent
	}

	var out *outgoing
	switch act.opcode {
	case wire.OpAnnouncement:
		s.receivedAnnouncement(act, pkt.Announcement)
	case wire.OpQuery:
		s.logger.Info("query", "iface", act.layer.Name(), "version", version, "src", act.src.String())
		out = s.buildAnnouncement(act.layer, version, act.src)
	case wire.OpDescribe:
		s.logger.Info("describe", "iface", act.layer.Name(), "version", version, "src", act.src.String())
		out = s.buildDescription(act.layer, version, act.src)
	case wire.OpListFeatures:
		s.logger.Info("list features", "iface", act.layer.Name(), "offset", *pkt.FeatureOffset, "src", act.src.String())
		out = s.buildFeatureList(act.layer, act.src, *pkt.FeatureOffset)
	case wire.OpAcknowledgement:
		s.logger.Debug("acknowledgement", "iface", act.layer.Name(), "src", act.src.String())
	}

	if out != nil {
		out.sleep = act.announcer.SleepController()
	}
	return out
}

func (s *Service) receivedAnnouncement(act action, a *wire.Announcement) {
	s.logger.Info("announcement",
		"iface", act.layer.Name(),
		"src", act.src.String(),
		"guid", a.GUID.String(),
		"boot", a.BootNumber,
		"uptime", a.Uptime,
		"announcements", a.Announcements,
	)
}
