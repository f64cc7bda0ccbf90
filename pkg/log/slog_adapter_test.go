package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deva-protocol/deva-go/pkg/wire"
)

func captureSlog(level slog.Level) (*bytes.Buffer, *SlogAdapter) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
	return &buf, NewSlogAdapter(slog.New(h))
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines[len(lines)-1], "no output")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestSlogAdapterPacket(t *testing.T) {
	buf, a := captureSlog(slog.LevelDebug)

	a.Log(Event{
		Timestamp: time.Now(),
		Interface: "radio0",
		Direction: DirectionOut,
		Layer:     LayerWire,
		Category:  CategoryPacket,
		Peer:      0x00AB,
		NodeID:    "70B3D5FFFE000001",
		Packet: &PacketEvent{
			Opcode:       wire.OpAnnouncement,
			Version:      wire.Version2,
			Announcement: &wire.Announcement{GUID: wire.EUI64{0xAA, 0, 0, 0, 0, 0, 0, 0x01}, BootNumber: 4},
		},
	})

	e := lastEntry(t, buf)
	assert.Equal(t, "DEBUG", e["level"])
	assert.Equal(t, "protocol ANNOUNCEMENT", e["msg"])
	assert.Equal(t, "radio0", e["iface"])
	assert.Equal(t, "OUT", e["dir"])
	assert.Equal(t, "WIRE", e["layer"])
	assert.Equal(t, "00AB", e["peer"])
	assert.Equal(t, "70B3D5FFFE000001", e["node"])
	assert.Equal(t, "ANNOUNCEMENT v2 guid=AA00000000000001 boot=4", e["event"])
}

func TestSlogAdapterDropsAtWarn(t *testing.T) {
	buf, a := captureSlog(slog.LevelInfo)

	// Routine events stay below Info.
	a.Log(Event{Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntityWorker, NewState: "RUNNING"}})
	assert.Zero(t, buf.Len())

	a.Log(Event{Interface: "radio1", Layer: LayerService, Category: CategoryDrop, Drop: &DropEvent{Reason: DropQueueFull, Detail: "DESCRIBE"}})
	e := lastEntry(t, buf)
	assert.Equal(t, "WARN", e["level"])
	assert.Equal(t, "protocol Drop", e["msg"])
	assert.Equal(t, "QUEUE_FULL: DESCRIBE", e["event"])
}

func TestSlogAdapterWithLevel(t *testing.T) {
	buf, a := captureSlog(slog.LevelInfo)
	info := a.WithLevel(slog.LevelInfo)

	ev := Event{
		Layer:       LayerService,
		Category:    CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityRadio, OldState: "SLEEP_ALLOWED", NewState: "SLEEP_BLOCKED", Reason: "announcing"},
	}
	a.Log(ev)
	assert.Zero(t, buf.Len(), "original adapter is unchanged")

	info.Log(ev)
	e := lastEntry(t, buf)
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "RADIO SLEEP_ALLOWED -> SLEEP_BLOCKED", e["event"])
	assert.Equal(t, "announcing", e["reason"])
	assert.NotContains(t, e, "iface")
}

func TestSlogAdapterError(t *testing.T) {
	buf, a := captureSlog(slog.LevelDebug)
	a.Log(Event{Category: CategoryError, Error: &ErrorEventData{Layer: LayerRadio, Message: "busy", Context: "send"}})

	e := lastEntry(t, buf)
	assert.Equal(t, "WARN", e["level"])
	assert.Equal(t, "RADIO: busy", e["event"])
	assert.Equal(t, "send", e["op"])
}
