package service

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/arbiter"
	"github.com/deva-protocol/deva-go/pkg/features"
	"github.com/deva-protocol/deva-go/pkg/identity"
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Service runs the announcement protocol for one node.
//
// Multiple services may run in one process; they share nothing but what
// the caller passes in.
type Service struct {
	config   Config
	node     identity.Signature
	pool     *arbiter.Arbiter
	registry *announce.Registry
	features FeatureSet
	clock    clock.Clock
	logger   *slog.Logger
	plog     log.Logger

	// Receive-to-worker handoff
	actions     chan action
	completions chan completion
	wake        chan struct{}

	// Worker-owned
	outstanding  *outgoing
	sleepBlocked map[*radio.SleepController]radio.Layer

	// Shared with Status
	state      atomic.Uint32
	running    atomic.Bool
	busy       atomic.Bool
	bootTime   atomic.Int64
	announced  atomic.Uint32
	nodeIDText string
}

// New creates a service for node. pool provides the send buffers; it must
// not be shared with another service.
func New(node identity.Signature, pool *arbiter.Arbiter, cfg Config) (*Service, error) {
	if node == nil {
		return nil, ErrNoIdentity
	}
	if pool == nil {
		return nil, ErrNoPool
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = log.NoopLogger{}
	}
	feats := cfg.Features
	if feats == nil {
		feats = features.NewRegistry()
	}
	if cfg.Jitter == nil {
		cfg.Jitter = RandomJitter
	}

	s := &Service{
		config:       cfg,
		node:         node,
		pool:         pool,
		registry:     announce.NewRegistry(),
		features:     feats,
		clock:        clk,
		logger:       logger,
		plog:         plog,
		actions:      make(chan action, cfg.ActionQueueSize),
		completions:  make(chan completion, pool.Size()),
		wake:         make(chan struct{}, 1),
		sleepBlocked: make(map[*radio.SleepController]radio.Layer),
		nodeIDText:   node.EUI64().String(),
	}
	s.bootTime.Store(wire.BootTimeUnknown)
	s.updateBootTime()
	return s, nil
}

// AddAnnouncer registers a on layer and schedules it every periodS seconds.
// ctl is optional; when set the worker keeps the radio awake while sending.
// A period outside [announce.MinPeriod, announce.MaxPeriod] registers the
// announcer for requests only. It returns false when a is already
// registered or a radio registration fails.
func (s *Service) AddAnnouncer(a *announce.Announcer, layer radio.Layer, ctl *radio.SleepController, periodS uint32) bool {
	if a == nil || layer == nil {
		return false
	}

	jitter := s.config.Jitter(periodS)
	if first := int64(announce.NextInterval(0, periodS)); jitter < 0 || jitter >= first {
		jitter = 0
	}
	if s.registry.Contains(a) {
		s.logger.Warn("announcer already registered", "iface", layer.Name())
		return false
	}

	// Linked only once the radio registrations succeed. Packets received
	// before that are dropped by the worker.
	if err := layer.RegisterReceiver(a.Receiver(), wire.AMID, s.receiver(a)); err != nil {
		s.logger.Error("register receiver failed", "iface", layer.Name(), "err", err)
		return false
	}
	if ctl != nil {
		if err := layer.RegisterSleepController(ctl); err != nil {
			s.unregisterReceiver(layer, a)
			s.logger.Error("register sleep controller failed", "iface", layer.Name(), "err", err)
			return false
		}
	}
	if !s.registry.Add(a, layer, ctl, periodS, s.now(), jitter) {
		// Lost a race with a concurrent AddAnnouncer for a.
		if ctl != nil {
			if err := layer.DeregisterSleepController(ctl); err != nil {
				panic(fmt.Sprintf("service: rollback of sleep controller on %s failed: %v", layer.Name(), err))
			}
		}
		s.unregisterReceiver(layer, a)
		s.logger.Warn("announcer already registered", "iface", layer.Name())
		return false
	}

	s.config.Metrics.SetAnnouncers(s.registry.Len())
	s.logger.Info("announcer added", "iface", layer.Name(), "addr", layer.Address().String(), "period", periodS)
	s.logState(layer, log.StateEntityAnnouncer, "", "REGISTERED", fmt.Sprintf("period %ds", periodS))
	s.signal()
	return true
}

func (s *Service) unregisterReceiver(layer radio.Layer, a *announce.Announcer) {
	if err := layer.DeregisterReceiver(a.Receiver()); err != nil {
		panic(fmt.Sprintf("service: rollback of receiver on %s failed: %v", layer.Name(), err))
	}
}

// RemoveAnnouncer unregisters a and tears down its radio registrations.
// Queued actions for a are discarded by the worker. It returns false when a
// is not registered.
//
// A radio that refuses the teardown leaves the node in an undefined state,
// so RemoveAnnouncer panics in that case.
func (s *Service) RemoveAnnouncer(a *announce.Announcer) bool {
	if !s.registry.Remove(a) {
		return false
	}

	layer := a.Layer()
	if err := layer.DeregisterReceiver(a.Receiver()); err != nil {
		panic(fmt.Sprintf("service: deregister receiver on %s: %v", layer.Name(), err))
	}
	if ctl := a.SleepController(); ctl != nil {
		if err := layer.DeregisterSleepController(ctl); err != nil {
			panic(fmt.Sprintf("service: deregister sleep controller on %s: %v", layer.Name(), err))
		}
	}

	s.config.Metrics.SetAnnouncers(s.registry.Len())
	s.logger.Info("announcer removed", "iface", layer.Name())
	s.logState(layer, log.StateEntityAnnouncer, "REGISTERED", "REMOVED", "")
	return true
}

// Announcers returns the announcer registry.
func (s *Service) Announcers() *announce.Registry {
	return s.registry
}

// Status returns a snapshot of the service.
func (s *Service) Status() Status {
	return Status{
		State:         WorkerState(s.state.Load()),
		Running:       s.running.Load(),
		Busy:          s.busy.Load(),
		QueueDepth:    len(s.actions),
		Announcements: s.announced.Load(),
		Uptime:        s.node.Uptime(),
		BootTime:      s.bootTime.Load(),
		Announcers:    s.registry.Snapshots(),
	}
}

// BootTime returns the unix boot time, or wire.BootTimeUnknown while the
// wall clock has not been set.
func (s *Service) BootTime() int64 {
	return s.bootTime.Load()
}

// now is the service time base: seconds since boot.
func (s *Service) now() int64 {
	return int64(s.node.Uptime())
}

// updateBootTime fixes the boot time the first time the wall clock is
// valid. It never changes afterwards.
func (s *Service) updateBootTime() {
	if s.bootTime.Load() != wire.BootTimeUnknown {
		return
	}
	wall, ok := s.node.WallClock()
	if !ok {
		return
	}
	boot := wall - int64(s.node.Uptime())
	if s.bootTime.CompareAndSwap(wire.BootTimeUnknown, boot) {
		s.logger.Info("boot time known", "boot_time", boot)
	}
}

// signal wakes the worker. It never blocks.
func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) setState(st WorkerState) {
	s.state.Store(uint32(st))
}
