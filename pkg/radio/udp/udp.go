// Package udp emulates a broadcast radio over UDP datagrams.
//
// Each emulated node owns one UDP socket. A broadcast packet is written to
// every known peer; a unicast packet goes to the peer last seen using that
// radio address, or to every peer when the address has not been seen yet.
// Receivers filter by destination the way a real radio does.
//
// Peers come from static configuration, from mDNS discovery (service type
// _deva._udp), or are learned from inbound traffic.
//
// Receiving is always enabled, emulating a duty-cycled listener. Sending
// requires the radio to be started: with no sleep controllers registered
// the radio is always on, otherwise it is on while any controller blocks
// sleep.
package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/enbility/zeroconf/v3"
	"go.uber.org/multierr"

	"github.com/deva-protocol/deva-go/pkg/radio"
)

// DefaultPort is the default UDP port of an emulated radio.
const DefaultPort = 7531

// Config configures an emulated radio.
type Config struct {
	// Name identifies the interface in logs.
	Name string

	// Address is the local radio address.
	Address radio.Addr

	// ListenAddr is the UDP address to bind (host:port).
	ListenAddr string

	// Peers lists static peer UDP addresses (host:port).
	Peers []string

	// Discovery enables mDNS advertisement and browsing.
	Discovery bool

	// Interface restricts mDNS to one network interface. Empty means all.
	Interface string

	// PayloadMaxLength limits the payload size. Zero means
	// radio.MaxPayloadLength.
	PayloadMaxLength int

	// Logger is the operational logger.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration listening on all interfaces.
func DefaultConfig() Config {
	return Config{
		Name:             "udp0",
		ListenAddr:       fmt.Sprintf(":%d", DefaultPort),
		PayloadMaxLength: radio.MaxPayloadLength,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Address == radio.Broadcast {
		return errors.New("address must not be the broadcast address")
	}
	if c.PayloadMaxLength < 0 || c.PayloadMaxLength > radio.MaxPayloadLength {
		return fmt.Errorf("payload max length must be between 0 and %d", radio.MaxPayloadLength)
	}
	for _, p := range c.Peers {
		if _, err := net.ResolveUDPAddr("udp", p); err != nil {
			return fmt.Errorf("invalid peer %q: %w", p, err)
		}
	}
	return nil
}

// Radio is an emulated radio.Layer over UDP.
type Radio struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	peers     map[string]*net.UDPAddr
	byAddr    map[radio.Addr]*net.UDPAddr
	receivers map[*radio.Receiver]struct{}
	sleepers  map[*radio.SleepController]bool // value: sleep blocked
	server    *zeroconf.Server

	busy    atomic.Bool
	running atomic.Bool
	closed  atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an emulated radio. Call Start to open the socket.
func New(cfg Config) (*Radio, error) {
	if cfg.PayloadMaxLength == 0 {
		cfg.PayloadMaxLength = radio.MaxPayloadLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Radio{
		config:    cfg,
		logger:    logger.With("iface", cfg.Name),
		peers:     make(map[string]*net.UDPAddr),
		byAddr:    make(map[radio.Addr]*net.UDPAddr),
		receivers: make(map[*radio.Receiver]struct{}),
		sleepers:  make(map[*radio.SleepController]bool),
	}
	for _, p := range cfg.Peers {
		if err := r.AddPeer(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Start opens the socket and begins receiving. With discovery enabled it
// also advertises the node and browses for peers until ctx is cancelled or
// the radio is closed.
func (r *Radio) Start(ctx context.Context) error {
	if r.closed.Load() {
		return radio.ErrClosed
	}
	if !r.running.CompareAndSwap(false, true) {
		return radio.ErrAlreadyInUse
	}

	laddr, err := net.ResolveUDPAddr("udp", r.config.ListenAddr)
	if err != nil {
		r.running.Store(false)
		return fmt.Errorf("resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		r.running.Store(false)
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		cancel()
		r.running.Store(false)
		return multierr.Append(radio.ErrClosed, conn.Close())
	}
	r.conn = conn
	r.cancel = cancel
	r.wg.Add(1)
	if r.config.Discovery {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	go r.readLoop(conn)

	if r.config.Discovery {
		if err := r.advertise(); err != nil {
			r.logger.Warn("mDNS advertisement failed", "err", err)
		}
		go r.browse(ctx)
	}

	r.logger.Info("radio started", "addr", r.config.Address, "listen", conn.LocalAddr())
	return nil
}

// Close stops the radio and releases its socket. It waits for sends in
// progress to complete.
func (r *Radio) Close() error {
	// closed is set under mu so that no goroutine is added to wg once Wait
	// may have started.
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return nil
	}
	r.closed.Store(true)
	cancel := r.cancel
	conn := r.conn
	server := r.server
	r.server = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if server != nil {
		server.Shutdown()
	}

	var err error
	if conn != nil {
		err = multierr.Append(err, conn.Close())
	}
	r.wg.Wait()
	r.running.Store(false)
	return err
}

// LocalAddr returns the bound UDP address, or nil before Start.
func (r *Radio) LocalAddr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// AddPeer adds a peer UDP address (host:port).
func (r *Radio) AddPeer(addr string) error {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve peer %q: %w", addr, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[ua.String()] = ua
	return nil
}

// RemovePeer removes a peer UDP address.
func (r *Radio) RemovePeer(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
	for a, ua := range r.byAddr {
		if ua.String() == addr {
			delete(r.byAddr, a)
		}
	}
}

// Peers returns the known peer UDP addresses, sorted.
func (r *Radio) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for k := range r.peers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Name implements radio.Layer.
func (r *Radio) Name() string { return r.config.Name }

// Address implements radio.Layer.
func (r *Radio) Address() radio.Addr { return r.config.Address }

// PayloadMaxLength implements radio.Layer.
func (r *Radio) PayloadMaxLength() int { return r.config.PayloadMaxLength }

// InitMessage implements radio.Layer.
func (r *Radio) InitMessage(msg *radio.Message) {
	msg.Reset(r.config.PayloadMaxLength)
}

// Send implements radio.Layer. Only one send may be outstanding.
func (r *Radio) Send(msg *radio.Message, done radio.SendDoneFunc) error {
	if r.closed.Load() || !r.running.Load() {
		return radio.ErrClosed
	}
	if !r.Started() {
		return radio.ErrOff
	}
	if !r.busy.CompareAndSwap(false, true) {
		return radio.ErrBusy
	}

	msg.SetSource(r.config.Address)
	frame, err := AppendFrame(make([]byte, 0, MaxFrameSize), Frame{
		Destination: msg.Destination(),
		Source:      msg.Source(),
		Type:        msg.Type(),
		Payload:     msg.Data(),
	})
	if err != nil {
		r.busy.Store(false)
		return err
	}

	targets, err := r.targets(msg.Destination())
	if err != nil {
		r.busy.Store(false)
		return err
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		r.busy.Store(false)
		return radio.ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		err := r.transmit(frame, targets)
		r.busy.Store(false)
		if err != nil {
			r.logger.Debug("send failed", "dst", msg.Destination(), "err", err)
		}
		if done != nil {
			done(r, msg, err)
		}
	}()
	return nil
}

// targets resolves the peers a packet for dst is written to.
func (r *Radio) targets(dst radio.Addr) ([]*net.UDPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dst != radio.Broadcast {
		if ua, ok := r.byAddr[dst]; ok {
			return []*net.UDPAddr{ua}, nil
		}
		if len(r.peers) == 0 {
			return nil, fmt.Errorf("%w: %s", radio.ErrUnknownPeer, dst)
		}
	}
	out := make([]*net.UDPAddr, 0, len(r.peers))
	for _, ua := range r.peers {
		out = append(out, ua)
	}
	return out, nil
}

func (r *Radio) transmit(frame []byte, targets []*net.UDPAddr) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return radio.ErrClosed
	}

	var errs error
	failed := 0
	for _, ua := range targets {
		if _, err := conn.WriteToUDP(frame, ua); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ua, err))
			failed++
		}
	}
	if len(targets) > 0 && failed == len(targets) {
		return fmt.Errorf("%w: %w", radio.ErrSendFailed, errs)
	}
	if errs != nil {
		r.logger.Debug("partial send failure", "err", errs)
	}
	return nil
}

func (r *Radio) readLoop(conn *net.UDPConn) {
	defer r.wg.Done()

	buf := make([]byte, MaxFrameSize+1)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if r.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Debug("read failed", "err", err)
			continue
		}

		f, err := ParseFrame(buf[:n])
		if err != nil {
			r.logger.Debug("dropping datagram", "from", from, "err", err)
			continue
		}
		if f.Source == r.config.Address {
			continue
		}
		r.learn(f.Source, from)

		if f.Destination != radio.Broadcast && f.Destination != r.config.Address {
			continue
		}
		r.deliver(f)
	}
}

// learn records that radio address src was last seen at from.
func (r *Radio) learn(src radio.Addr, from *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := from.String()
	if _, ok := r.peers[key]; !ok {
		r.peers[key] = from
		r.logger.Debug("learned peer", "src", src, "udp", key)
	}
	r.byAddr[src] = from
}

func (r *Radio) deliver(f Frame) {
	var msg radio.Message
	msg.Reset(radio.MaxPayloadLength)
	copy(msg.Payload(len(f.Payload)), f.Payload)
	if err := msg.SetPayloadLength(len(f.Payload)); err != nil {
		return
	}
	msg.SetType(f.Type)
	msg.SetSource(f.Source)
	msg.SetDestination(f.Destination)

	r.mu.Lock()
	targets := make([]*radio.Receiver, 0, len(r.receivers))
	for rcv := range r.receivers {
		if rcv.AMID() == f.Type {
			targets = append(targets, rcv)
		}
	}
	r.mu.Unlock()

	for _, rcv := range targets {
		rcv.Deliver(r, &msg)
	}
}

// RegisterReceiver implements radio.Layer.
func (r *Radio) RegisterReceiver(rcv *radio.Receiver, amid radio.AMID, fn radio.ReceiveFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.receivers[rcv]; exists {
		return radio.ErrAlreadyInUse
	}
	rcv.Bind(amid, fn)
	r.receivers[rcv] = struct{}{}
	return nil
}

// DeregisterReceiver implements radio.Layer.
func (r *Radio) DeregisterReceiver(rcv *radio.Receiver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.receivers[rcv]; !exists {
		return radio.ErrNotRegistered
	}
	delete(r.receivers, rcv)
	return nil
}

// RegisterSleepController implements radio.Layer.
func (r *Radio) RegisterSleepController(c *radio.SleepController) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sleepers[c]; exists {
		return radio.ErrAlreadyInUse
	}
	r.sleepers[c] = false
	return nil
}

// DeregisterSleepController implements radio.Layer.
func (r *Radio) DeregisterSleepController(c *radio.SleepController) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sleepers[c]; !exists {
		return radio.ErrNotRegistered
	}
	delete(r.sleepers, c)
	return nil
}

// BlockSleep implements radio.Layer.
func (r *Radio) BlockSleep(c *radio.SleepController) error {
	return r.setBlocked(c, true)
}

// AllowSleep implements radio.Layer.
func (r *Radio) AllowSleep(c *radio.SleepController) error {
	return r.setBlocked(c, false)
}

func (r *Radio) setBlocked(c *radio.SleepController, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, exists := r.sleepers[c]
	if !exists {
		return radio.ErrNotRegistered
	}
	r.sleepers[c] = blocked
	if prev != blocked {
		r.logger.Debug("sleep controller changed", "controller", c.Name, "blocked", blocked)
	}
	return nil
}

// Started implements radio.Layer.
func (r *Radio) Started() bool {
	if !r.running.Load() || r.closed.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sleepers) == 0 {
		return true
	}
	for _, blocked := range r.sleepers {
		if blocked {
			return true
		}
	}
	return false
}

// Compile-time interface satisfaction check.
var _ radio.Layer = (*Radio)(nil)
