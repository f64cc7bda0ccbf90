package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

const testAMID radio.AMID = 0xDA

func startRadio(t *testing.T, addr radio.Addr, peers ...string) *Radio {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Name = "udp-" + addr.String()
	cfg.Address = addr
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Peers = peers

	r, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

type received struct {
	src  radio.Addr
	dst  radio.Addr
	data []byte
}

func listen(t *testing.T, r *Radio) <-chan received {
	t.Helper()
	ch := make(chan received, 8)
	var rcv radio.Receiver
	err := r.RegisterReceiver(&rcv, testAMID, func(_ radio.Layer, msg *radio.Message) {
		ch <- received{
			src:  msg.Source(),
			dst:  msg.Destination(),
			data: append([]byte(nil), msg.Data()...),
		}
	})
	require.NoError(t, err)
	return ch
}

func send(t *testing.T, r *Radio, dst radio.Addr, payload []byte) <-chan error {
	t.Helper()
	var msg radio.Message
	r.InitMessage(&msg)
	copy(msg.Payload(len(payload)), payload)
	require.NoError(t, msg.SetPayloadLength(len(payload)))
	msg.SetType(testAMID)
	msg.SetDestination(dst)

	done := make(chan error, 1)
	require.NoError(t, r.Send(&msg, func(_ radio.Layer, _ *radio.Message, err error) {
		done <- err
	}))
	return done
}

func TestBroadcastReachesPeer(t *testing.T) {
	a := startRadio(t, 0x0001)
	b := startRadio(t, 0x0002, a.LocalAddr().String())
	got := listen(t, a)

	done := send(t, b, radio.Broadcast, []byte{0x00, 0x02})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not complete")
	}

	select {
	case r := <-got:
		assert.Equal(t, radio.Addr(0x0002), r.src)
		assert.Equal(t, radio.Broadcast, r.dst)
		assert.Equal(t, []byte{0x00, 0x02}, r.data)
	case <-time.After(2 * time.Second):
		t.Fatal("packet not received")
	}
}

func TestUnicastReplyUsesLearnedPeer(t *testing.T) {
	a := startRadio(t, 0x0001)
	b := startRadio(t, 0x0002, a.LocalAddr().String())
	gotA := listen(t, a)
	gotB := listen(t, b)

	<-send(t, b, 0x0001, []byte{0x10, 0x02})
	select {
	case <-gotA:
	case <-time.After(2 * time.Second):
		t.Fatal("query not received")
	}

	// a never had b configured; it learned b from the query.
	assert.Contains(t, a.Peers(), b.LocalAddr().String())

	<-send(t, a, 0x0002, []byte{0x00, 0x02})
	select {
	case r := <-gotB:
		assert.Equal(t, radio.Addr(0x0001), r.src)
	case <-time.After(2 * time.Second):
		t.Fatal("reply not received")
	}
}

func TestUnicastForOtherNodeIsFiltered(t *testing.T) {
	a := startRadio(t, 0x0001)
	b := startRadio(t, 0x0002, a.LocalAddr().String())
	got := listen(t, a)

	<-send(t, b, 0x0003, []byte{0x00})
	<-send(t, b, 0x0001, []byte{0x01})

	select {
	case r := <-got:
		assert.Equal(t, []byte{0x01}, r.data, "packet addressed to another node was delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("packet not received")
	}
}

func TestSleepControllerGatesSend(t *testing.T) {
	a := startRadio(t, 0x0001, "127.0.0.1:9")
	ctl := &radio.SleepController{Name: "announcer"}

	require.NoError(t, a.RegisterSleepController(ctl))
	assert.False(t, a.Started())

	var msg radio.Message
	a.InitMessage(&msg)
	msg.SetDestination(radio.Broadcast)
	err := a.Send(&msg, nil)
	assert.True(t, errors.Is(err, radio.ErrOff), "got %v", err)

	require.NoError(t, a.BlockSleep(ctl))
	assert.True(t, a.Started())

	require.NoError(t, a.AllowSleep(ctl))
	assert.False(t, a.Started())

	require.NoError(t, a.DeregisterSleepController(ctl))
	assert.True(t, a.Started())
	assert.ErrorIs(t, a.DeregisterSleepController(ctl), radio.ErrNotRegistered)
}

func TestUnicastWithoutPeersFails(t *testing.T) {
	a := startRadio(t, 0x0001)

	var msg radio.Message
	a.InitMessage(&msg)
	msg.SetDestination(0x0002)
	assert.ErrorIs(t, a.Send(&msg, nil), radio.ErrUnknownPeer)

	// Broadcasting into an empty medium succeeds.
	msg.SetDestination(radio.Broadcast)
	done := make(chan error, 1)
	require.NoError(t, a.Send(&msg, func(_ radio.Layer, _ *radio.Message, err error) { done <- err }))
	assert.NoError(t, <-done)
}

func TestReceiverRegistration(t *testing.T) {
	a := startRadio(t, 0x0001)
	var rcv radio.Receiver
	fn := func(radio.Layer, *radio.Message) {}

	require.NoError(t, a.RegisterReceiver(&rcv, testAMID, fn))
	assert.ErrorIs(t, a.RegisterReceiver(&rcv, testAMID, fn), radio.ErrAlreadyInUse)
	require.NoError(t, a.DeregisterReceiver(&rcv))
	assert.ErrorIs(t, a.DeregisterReceiver(&rcv), radio.ErrNotRegistered)
}

func TestSendAfterClose(t *testing.T) {
	a := startRadio(t, 0x0001)
	require.NoError(t, a.Close())

	var msg radio.Message
	a.InitMessage(&msg)
	assert.ErrorIs(t, a.Send(&msg, nil), radio.ErrClosed)
	assert.False(t, a.Started())
	assert.NoError(t, a.Close(), "second Close")
}

func TestSendRacingClose(t *testing.T) {
	a := startRadio(t, 0x0001, "127.0.0.1:9")

	var accepted, completed atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				var msg radio.Message
				a.InitMessage(&msg)
				msg.SetType(testAMID)
				msg.SetDestination(radio.Broadcast)
				err := a.Send(&msg, func(radio.Layer, *radio.Message, error) { completed.Add(1) })
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, radio.ErrClosed):
					return
				case !errors.Is(err, radio.ErrBusy):
					t.Errorf("Send: %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	require.NoError(t, a.Close())
	wg.Wait()
	// Close waits for sends in flight, so every accepted send has completed.
	assert.Equal(t, accepted.Load(), completed.Load())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Address = radio.Broadcast
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PayloadMaxLength = radio.MaxPayloadLength + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Peers = []string{"not a peer"}
	assert.Error(t, cfg.Validate())
}

func TestDiscoveryEntryParsing(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		Port:     7531,
		Text:     []string{"iface=udp0", "addr=00AB"},
		AddrIPv4: []net.IP{net.IPv4(192, 168, 1, 20)},
	}

	addr, ok := entryAddr(entry)
	require.True(t, ok)
	assert.Equal(t, radio.Addr(0x00AB), addr)
	assert.Equal(t, []string{"192.168.1.20:7531"}, entryPeers(entry))
	assert.Equal(t, "DEVA-00AB", instanceName(addr))

	_, ok = entryAddr(&zeroconf.ServiceEntry{Text: []string{"addr=zz"}})
	assert.False(t, ok)
	_, ok = entryAddr(&zeroconf.ServiceEntry{})
	assert.False(t, ok)
}
