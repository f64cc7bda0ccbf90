package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deva-protocol/deva-go/pkg/features"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/radio/radiotest"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

var nodeGUID = wire.EUI64{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}

// responder answers the next n requests sent on r. reply returns the
// packets to inject for a request; nil means no answer.
func responder(t *testing.T, r *radiotest.Radio, n int, reply func(req []byte) map[radio.Addr][]byte) {
	t.Helper()
	go func() {
		for i := 0; i < n; i++ {
			deadline := time.Now().Add(time.Second)
			for r.Pending() == 0 {
				if time.Now().After(deadline) {
					return
				}
				time.Sleep(time.Millisecond)
			}
			sent := r.Sent()
			req := sent[len(sent)-1].Data
			for src, data := range reply(req) {
				r.Inject(src, r.Address(), wire.AMID, data)
			}
			r.Complete(nil)
		}
	}()
}

func announcementFrom(t *testing.T, v wire.Version, boot uint32) []byte {
	t.Helper()
	a := wire.Announcement{GUID: nodeGUID, BootNumber: boot, BootTime: wire.BootTimeUnknown}
	buf := make([]byte, wire.AnnouncementSize)
	n, err := wire.EncodeAnnouncement(buf, &a, v)
	require.NoError(t, err)
	return buf[:n]
}

func newProber(t *testing.T) (*Prober, *radiotest.Radio) {
	t.Helper()
	r := radiotest.New("probe", 0xFFFE)
	p, err := NewProber(r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, r
}

func TestProberQueryUnicast(t *testing.T) {
	p, r := newProber(t)

	ann := announcementFrom(t, wire.Version1, 3)
	responder(t, r, 1, func(req []byte) map[radio.Addr][]byte {
		return map[radio.Addr][]byte{0x0042: ann}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := p.Query(ctx, 0x0042, wire.Version1)
	require.NoError(t, err)
	require.Len(t, resp, 1)

	assert.Equal(t, radio.Addr(0x0042), resp[0].Source)
	assert.Equal(t, wire.OpAnnouncement, resp[0].Packet.Opcode)
	assert.Len(t, resp[0].Data, wire.AnnouncementV1Size)
	require.NotNil(t, resp[0].Packet.Announcement)
	assert.Equal(t, uint32(3), resp[0].Packet.Announcement.BootNumber)

	sent := r.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, wire.AMID, sent[0].Type)
	assert.Equal(t, radio.Addr(0x0042), sent[0].Destination)
	assert.Equal(t, []byte{byte(wire.OpQuery), 1}, sent[0].Data)
}

func TestProberQueryBroadcastCollects(t *testing.T) {
	p, r := newProber(t)

	first := announcementFrom(t, wire.Version2, 1)
	second := announcementFrom(t, wire.Version2, 2)
	responder(t, r, 1, func(req []byte) map[radio.Addr][]byte {
		return map[radio.Addr][]byte{0x0001: first, 0x0002: second}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	resp, err := p.Query(ctx, radio.Broadcast, wire.Version2)
	require.NoError(t, err)
	assert.Len(t, resp, 2)
}

func TestProberIgnoresOtherPackets(t *testing.T) {
	p, r := newProber(t)

	desc := wire.Description{GUID: nodeGUID}
	buf := make([]byte, wire.DescriptionSize)
	n, err := wire.EncodeDescription(buf, &desc, wire.Version2)
	require.NoError(t, err)

	responder(t, r, 1, func(req []byte) map[radio.Addr][]byte {
		return map[radio.Addr][]byte{
			0x0042: buf[:n],
			0x0043: {byte(wire.OpQuery), 2},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Query(ctx, 0x0042, wire.Version2)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProberSendErrors(t *testing.T) {
	p, r := newProber(t)

	r.SendErr = radio.ErrBusy
	_, err := p.Describe(context.Background(), 0x0042, wire.Version2)
	assert.ErrorIs(t, err, radio.ErrBusy)
	r.SendErr = nil

	go func() {
		for r.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		r.Complete(radio.ErrSendFailed)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Describe(ctx, 0x0042, wire.Version2)
	assert.ErrorIs(t, err, radio.ErrSendFailed)

	_, err = p.ListFeatures(ctx, radio.Broadcast, 0)
	assert.Error(t, err)
}

func TestProberAllFeatures(t *testing.T) {
	p, r := newProber(t)

	reg := features.NewRegistry()
	var ids []uuid.UUID
	slots := make([]*features.Feature, 10)
	for i := range slots {
		id := uuid.New()
		slots[i] = &features.Feature{}
		require.True(t, reg.Add(slots[i], id))
		ids = append(ids, id)
	}
	// Disabled features are skipped by the node, shifting later pages.
	reg.SetAvailable(slots[2], false)

	responder(t, r, 2, func(req []byte) map[radio.Addr][]byte {
		fr, err := wire.DecodeFeatureRequest(req)
		if err != nil {
			return nil
		}
		buf := make([]byte, radio.MaxPayloadLength)
		n, _, err := wire.EncodeFeatureList(buf, nodeGUID, 1, reg, fr.Offset)
		if err != nil {
			return nil
		}
		return map[radio.Addr][]byte{0x0042: buf[:n]}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := p.AllFeatures(ctx, 0x0042)
	require.NoError(t, err)

	want := append(append([]uuid.UUID{}, ids[:2]...), ids[3:]...)
	assert.Equal(t, want, got)

	var offsets []byte
	for _, s := range r.Sent() {
		offsets = append(offsets, s.Data[2])
	}
	assert.Equal(t, []byte{0, 6}, offsets)
}

func TestExecutePrintsResponses(t *testing.T) {
	p, r := newProber(t)

	ann := announcementFrom(t, wire.Version2, 7)
	responder(t, r, 1, func(req []byte) map[radio.Addr][]byte {
		return map[radio.Addr][]byte{0x0042: ann}
	})

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, execute(ctx, p, "query", 0x0042, wire.Version2, &out))
	assert.Contains(t, out.String(), "ANNOUNCEMENT from 0042 (77 bytes)")
	assert.Contains(t, out.String(), "Boot: 7")

	err := execute(ctx, p, "bogus", 0x0042, wire.Version2, &out)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResponse))
}
