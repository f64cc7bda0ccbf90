package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

func readCapture(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var events []log.Event
	for e, err := range r.All() {
		require.NoError(t, err)
		events = append(events, e)
	}
	return events
}

func TestSelectionFilter(t *testing.T) {
	sel := Selection{
		Interface: "radio0",
		NodeID:    "01:02:03:04:05:06:07:08",
		Peer:      "0x42",
		Opcode:    "list-features",
		Since:     "2026-01-28T10:00:00Z",
		Until:     "2026-01-28T11:00:00Z",
		Layer:     "wire",
		Direction: "IN",
		Category:  "packet",
	}
	f, err := sel.Filter()
	require.NoError(t, err)

	assert.Equal(t, "radio0", f.Interface)
	assert.Equal(t, "0102030405060708", f.NodeID)
	require.NotNil(t, f.Peer)
	assert.EqualValues(t, 0x42, *f.Peer)
	assert.Equal(t, wire.OpListFeatures, *f.Opcode)
	assert.Equal(t, time.Hour, f.TimeEnd.Sub(*f.TimeStart))
	assert.Equal(t, log.LayerWire, *f.Layer)
	assert.Equal(t, log.DirectionIn, *f.Direction)
	assert.Equal(t, log.CategoryPacket, *f.Category)

	empty, err := Selection{}.Filter()
	require.NoError(t, err)
	assert.Equal(t, log.Filter{}, empty)
}

func TestSelectionReportsEveryError(t *testing.T) {
	_, err := Selection{
		NodeID:    "0102",
		Peer:      "zz",
		Opcode:    "read",
		Since:     "yesterday",
		Layer:     "transport",
		Direction: "sideways",
		Category:  "message",
	}.Filter()
	require.Error(t, err)
	for _, flag := range []string{"-node-id", "-peer", "-opcode", "-since", "-layer", "-direction", "-category"} {
		assert.ErrorContains(t, err, flag)
	}
}

func TestRunFilterByPeerAndInterface(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	other := announcementEvent(ts, log.DirectionIn)
	other.Peer = 0x0043
	radio1 := announcementEvent(ts, log.DirectionIn)
	radio1.Interface = "radio1"
	path := writeCapture(t, announcementEvent(ts, log.DirectionIn), other, radio1)

	f, err := Selection{Interface: "radio0", Peer: "0042"}.Filter()
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.dlog")
	n, err := RunFilter(path, f, out, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := readCapture(t, out)
	require.Len(t, got, 1)
	assert.EqualValues(t, 0x0042, got[0].Peer)
	assert.Equal(t, "radio0", got[0].Interface)
}

func TestRunFilterRotatesOutput(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := writeCapture(t,
		announcementEvent(ts, log.DirectionIn),
		announcementEvent(ts.Add(time.Minute), log.DirectionIn),
	)

	out := filepath.Join(t.TempDir(), "out.dlog")
	n, err := RunFilter(path, log.Filter{}, out, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, readCapture(t, out), 1)
	assert.Len(t, readCapture(t, out+log.RotatedSuffix), 1)
}

func TestRunFilterByTime(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := writeCapture(t, announcementEvent(ts, log.DirectionIn), announcementEvent(ts.Add(time.Hour), log.DirectionIn))

	f, err := Selection{Since: "2026-01-28T10:30:00Z"}.Filter()
	require.NoError(t, err)
	n, err := RunFilter(path, f, filepath.Join(t.TempDir(), "out.dlog"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
