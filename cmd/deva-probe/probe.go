package main

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	protolog "github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// responseBuffer is how many unread responses are kept before new ones are
// dropped.
const responseBuffer = 64

// ErrNoResponse is returned when no node answered before the deadline.
var ErrNoResponse = errors.New("no response")

// Response is a packet received from a node.
type Response struct {
	Source radio.Addr
	Data   []byte
	Packet *protolog.PacketEvent
}

// Prober sends requests on a radio layer and collects the responses.
// Requests are serialized; the prober owns a single message.
type Prober struct {
	layer radio.Layer
	rcv   radio.Receiver

	mu        sync.Mutex
	msg       radio.Message
	sent      chan error
	responses chan Response
}

// NewProber registers a receiver for protocol packets on layer.
func NewProber(layer radio.Layer) (*Prober, error) {
	p := &Prober{
		layer:     layer,
		sent:      make(chan error, 1),
		responses: make(chan Response, responseBuffer),
	}
	if err := layer.RegisterReceiver(&p.rcv, wire.AMID, p.receive); err != nil {
		return nil, err
	}
	return p, nil
}

// Close deregisters the receiver.
func (p *Prober) Close() error {
	return p.layer.DeregisterReceiver(&p.rcv)
}

func (p *Prober) receive(_ radio.Layer, msg *radio.Message) {
	data := append([]byte(nil), msg.Data()...)
	pkt, err := protolog.DecodePacket(data)
	if err != nil {
		return
	}
	switch pkt.Opcode {
	case wire.OpAnnouncement, wire.OpDescription, wire.OpFeatureList:
	default:
		return
	}
	select {
	case p.responses <- Response{Source: msg.Source(), Data: data, Packet: pkt}:
	default:
	}
}

// Query asks dst for its announcement at version v. With radio.Broadcast
// every answer received until ctx ends is returned.
func (p *Prober) Query(ctx context.Context, dst radio.Addr, v wire.Version) ([]Response, error) {
	return p.exchange(ctx, dst, &wire.Request{Opcode: wire.OpQuery, Version: v}, wire.RequestSize, wire.OpAnnouncement)
}

// Describe asks dst for its description at version v.
func (p *Prober) Describe(ctx context.Context, dst radio.Addr, v wire.Version) ([]Response, error) {
	return p.exchange(ctx, dst, &wire.Request{Opcode: wire.OpDescribe, Version: v}, wire.RequestSize, wire.OpDescription)
}

// ListFeatures requests one page of features from dst starting at offset.
func (p *Prober) ListFeatures(ctx context.Context, dst radio.Addr, offset uint8) (*wire.FeatureList, error) {
	if dst == radio.Broadcast {
		return nil, errors.New("feature lists must be requested from a single node")
	}
	resp, err := p.exchange(ctx, dst, &wire.FeatureRequest{Version: wire.VersionCurrent, Offset: offset}, wire.FeatureRequestSize, wire.OpFeatureList)
	if err != nil {
		return nil, err
	}
	return wire.DecodeFeatureList(resp[0].Data)
}

// AllFeatures pages through every feature of dst. Pages overlap when the
// node skips disabled features; duplicates are dropped.
func (p *Prober) AllFeatures(ctx context.Context, dst radio.Addr) ([]uuid.UUID, error) {
	var out []uuid.UUID
	seen := make(map[uuid.UUID]bool)

	offset := 0
	for {
		page, err := p.ListFeatures(ctx, dst, uint8(offset))
		if err != nil {
			return out, err
		}
		for _, id := range page.Features {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		offset += len(page.Features)
		if len(page.Features) == 0 || offset >= int(page.Total) || offset > 255 {
			return out, nil
		}
	}
}

func (p *Prober) exchange(ctx context.Context, dst radio.Addr, req encoding.BinaryAppender, size int, want wire.Opcode) ([]Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drain()

	p.layer.InitMessage(&p.msg)
	p.msg.SetType(wire.AMID)
	p.msg.SetDestination(dst)
	n, err := wire.MarshalTo(p.msg.Payload(p.msg.PayloadMaxLength()), req, size)
	if err != nil {
		return nil, err
	}
	if err := p.msg.SetPayloadLength(n); err != nil {
		return nil, err
	}

	if err := p.layer.Send(&p.msg, func(_ radio.Layer, _ *radio.Message, err error) {
		p.sent <- err
	}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var out []Response
	sending := true
	for {
		select {
		case err := <-p.sent:
			sending = false
			if err != nil {
				return nil, fmt.Errorf("send: %w", err)
			}
			if dst != radio.Broadcast && len(out) > 0 {
				return out, nil
			}
		case r := <-p.responses:
			if r.Packet.Opcode != want || (dst != radio.Broadcast && r.Source != dst) {
				continue
			}
			out = append(out, r)
			if dst != radio.Broadcast && !sending {
				return out, nil
			}
		case <-ctx.Done():
			if sending {
				// The layer still owns the message.
				<-p.sent
			}
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: %w", ErrNoResponse, ctx.Err())
			}
			return out, nil
		}
	}
}

// drain discards responses left over from an earlier exchange.
func (p *Prober) drain() {
	for {
		select {
		case <-p.responses:
		default:
			return
		}
	}
}
