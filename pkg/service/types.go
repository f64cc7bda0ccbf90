package service

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/metrics"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Service errors.
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNoIdentity     = errors.New("node identity required")
	ErrNoPool         = errors.New("message pool required")
	ErrAlreadyRunning = errors.New("service already running")
)

// WorkerState is the phase of the worker loop.
type WorkerState uint8

const (
	// StateWaiting - blocked until a signal or the next timeout.
	StateWaiting WorkerState = iota

	// StateDrainingSendCompletion - returning completed send buffers.
	StateDrainingSendCompletion

	// StateDrainingAction - handling a queued action.
	StateDrainingAction

	// StateSchedulingAnnouncement - building a due self-announcement.
	StateSchedulingAnnouncement

	// StateSending - waking the radio and submitting a packet.
	StateSending

	// StateIdleSleepAllowed - nothing to do, radios may sleep.
	StateIdleSleepAllowed
)

// String returns the state name.
func (s WorkerState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateDrainingSendCompletion:
		return "DRAINING_SEND_COMPLETION"
	case StateDrainingAction:
		return "DRAINING_ACTION"
	case StateSchedulingAnnouncement:
		return "SCHEDULING_ANNOUNCEMENT"
	case StateSending:
		return "SENDING"
	case StateIdleSleepAllowed:
		return "IDLE_SLEEP_ALLOWED"
	default:
		return "UNKNOWN"
	}
}

// FeatureSet is the node's feature list as the service reads it.
type FeatureSet interface {
	wire.FeatureSource

	// Hash returns the order-independent feature list hash.
	Hash() uint32
}

// JitterFunc returns how many seconds before registration an announcer is
// considered to have last announced. Results outside [0, first interval)
// are clamped.
type JitterFunc func(period uint32) int64

// RandomJitter picks a uniform jitter below the first scheduling interval.
func RandomJitter(period uint32) int64 {
	first := announce.NextInterval(0, period)
	return rand.Int64N(int64(first))
}

// NoJitter schedules the first announcement exactly one first interval
// after registration.
func NoJitter(uint32) int64 { return 0 }

// Config configures a Service.
type Config struct {
	// PollPeriod bounds how long the worker waits between checks when no
	// announcement is due sooner.
	PollPeriod time.Duration

	// StartTimeout bounds how long the worker waits for a sleeping radio to
	// start before giving up on a send.
	StartTimeout time.Duration

	// StartPollInterval is the delay between radio start checks.
	StartPollInterval time.Duration

	// ActionQueueSize is the capacity of the receive-to-worker queue.
	ActionQueueSize int

	// Features is the node's feature list. If nil, the node has none.
	Features FeatureSet

	// Jitter staggers first announcements. If nil, RandomJitter is used.
	Jitter JitterFunc

	// Clock drives worker timeouts and timestamps. If nil, the real clock
	// is used. It should be the clock the node identity counts uptime on.
	Clock clock.Clock

	// Metrics records service instrumentation. May be nil.
	Metrics *metrics.Metrics

	// ProtocolLogger captures protocol events. If nil, nothing is captured.
	ProtocolLogger log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollPeriod:        60 * time.Second,
		StartTimeout:      time.Second,
		StartPollInterval: 5 * time.Millisecond,
		ActionQueueSize:   1,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.PollPeriod < time.Second {
		return ErrInvalidConfig
	}
	if c.StartTimeout <= 0 || c.StartPollInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.ActionQueueSize < 1 {
		return ErrInvalidConfig
	}
	return nil
}

// Status is a point-in-time view of a service.
type Status struct {
	// State is the worker phase.
	State WorkerState

	// Running reports whether Run is active.
	Running bool

	// Busy reports whether a send is outstanding.
	Busy bool

	// QueueDepth is the number of queued actions.
	QueueDepth int

	// Announcements is the number of self-announcements sent since boot.
	Announcements uint32

	// Uptime is seconds since boot.
	Uptime uint32

	// BootTime is the unix boot time, or wire.BootTimeUnknown.
	BootTime int64

	// Announcers lists every registered announcer.
	Announcers []announce.Snapshot
}
