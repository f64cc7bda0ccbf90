package service

import (
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
)

// emit stamps e and hands it to the protocol logger. layer may be nil for
// node-wide events.
func (s *Service) emit(layer radio.Layer, e log.Event) {
	e.Timestamp = s.clock.Now()
	e.NodeID = s.nodeIDText
	if layer != nil {
		e.Interface = layer.Name()
		e.Local = layer.Address()
	}
	s.plog.Log(e)
}

func (s *Service) logPacket(layer radio.Layer, dir log.Direction, peer radio.Addr, data []byte) {
	pkt, err := log.DecodePacket(data)
	if err != nil {
		s.logMalformed(layer, peer, data, err)
		return
	}
	s.emit(layer, log.Event{
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryPacket,
		Peer:      peer,
		Packet:    pkt,
	})
}

func (s *Service) logMalformed(layer radio.Layer, peer radio.Addr, data []byte, err error) {
	s.emit(layer, log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerRadio,
		Category:  log.CategoryDrop,
		Peer:      peer,
		Frame:     log.NewFrameEvent(data),
		Drop:      &log.DropEvent{Reason: log.DropMalformed, Detail: err.Error()},
	})
}

// logDrop records discarded work in metrics and the protocol log.
func (s *Service) logDrop(layer radio.Layer, peer radio.Addr, reason log.DropReason, detail string) {
	s.config.Metrics.Dropped(reason.String())
	s.emit(layer, log.Event{
		Layer:    log.LayerService,
		Category: log.CategoryDrop,
		Peer:     peer,
		Drop:     &log.DropEvent{Reason: reason, Detail: detail},
	})
}

func (s *Service) logState(layer radio.Layer, entity log.StateEntity, from, to, reason string) {
	s.emit(layer, log.Event{
		Layer:    log.LayerService,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func (s *Service) logError(layer radio.Layer, at log.Layer, msg, context string) {
	s.emit(layer, log.Event{
		Layer:    at,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   at,
			Message: msg,
			Context: context,
		},
	})
}
