package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

func block(event log.Event) string {
	var buf bytes.Buffer
	writeBlock(&buf, event)
	return buf.String()
}

func TestViewAnnouncementBlock(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	out := block(announcementEvent(ts, log.DirectionIn))

	assert.Contains(t, out, "2026-01-28T10:15:32.123456Z [radio0] IN  WIRE ANNOUNCEMENT from 0042\n")
	assert.Contains(t, out, "GUID: 8877665544332211  Boot: 3")
	assert.Contains(t, out, "Announcements: 7")
	assert.NotContains(t, out, "BootTime", "unknown boot time is hidden")
	assert.NotContains(t, out, "Position", "unknown position is hidden")
}

func TestViewFeatureListBlock(t *testing.T) {
	total, offset, count := uint8(10), uint8(6), 4
	out := block(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryPacket,
		Peer:      0x0042,
		Packet: &log.PacketEvent{
			Opcode:        wire.OpFeatureList,
			Version:       wire.Version2,
			FeatureTotal:  &total,
			FeatureOffset: &offset,
			FeatureCount:  &count,
		},
	})

	assert.Contains(t, out, "[-] OUT WIRE FEATURE_LIST to 0042")
	assert.Contains(t, out, "Features: 4 of 10 from offset 6")
}

func TestViewDropWithFrame(t *testing.T) {
	out := block(log.Event{
		Interface: "radio0",
		Layer:     log.LayerRadio,
		Category:  log.CategoryDrop,
		Frame:     log.NewFrameEvent([]byte{0x12, 0x02}),
		Drop:      &log.DropEvent{Reason: log.DropMalformed, Detail: "too short"},
	})

	for _, want := range []string{"RADIO Drop", "Reason: MALFORMED", "Detail: too short", "Size: 2 bytes", "Data: 1202\n"} {
		assert.Contains(t, out, want)
	}
}

func TestViewStateAndError(t *testing.T) {
	out := block(log.Event{
		Layer:       log.LayerService,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityRadio, OldState: "SLEEP_ALLOWED", NewState: "SLEEP_BLOCKED", Reason: "annc"},
	}) + block(log.Event{
		Layer:    log.LayerService,
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: log.LayerRadio, Message: "send failed", Context: "send done"},
	})

	for _, want := range []string{"Entity: RADIO", "SLEEP_ALLOWED -> SLEEP_BLOCKED", "Reason: annc", "Message: send failed", "Context: send done"} {
		assert.Contains(t, out, want)
	}
}

func TestRunViewShort(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	query := log.Event{
		Timestamp: ts,
		Interface: "radio0",
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryPacket,
		Peer:      0x0042,
		Packet:    &log.PacketEvent{Opcode: wire.OpQuery, Version: wire.Version1},
	}
	path := writeCapture(t, announcementEvent(ts, log.DirectionOut), query)

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, ViewOptions{Short: true}, &buf))
	assert.Equal(t,
		"2026-01-28T10:00:00.000000Z [radio0] OUT WIRE ANNOUNCEMENT to 0042  ANNOUNCEMENT v2 guid=8877665544332211 boot=3\n"+
			"2026-01-28T10:00:00.000000Z [radio0] IN  WIRE QUERY from 0042  QUERY v1\n",
		buf.String())
}

func TestRunViewSelection(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := writeCapture(t, announcementEvent(ts, log.DirectionOut), queueFullDrop(ts))

	f, err := Selection{Direction: "out"}.Filter()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RunView(path, f, ViewOptions{}, &buf))
	assert.Contains(t, buf.String(), "ANNOUNCEMENT")
	assert.NotContains(t, buf.String(), "QUEUE_FULL")
}

func TestParseOpcode(t *testing.T) {
	op, err := ParseOpcode("list-features")
	require.NoError(t, err)
	assert.Equal(t, wire.OpListFeatures, op)

	_, err = ParseOpcode("bogus")
	assert.Error(t, err)
}
