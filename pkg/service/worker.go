package service

import (
	"context"
	"slices"
	"time"

	"github.com/deva-protocol/deva-go/pkg/announce"
	"github.com/deva-protocol/deva-go/pkg/log"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// outgoing is a packet built by the worker and waiting to be sent.
type outgoing struct {
	msg       *radio.Message
	layer     radio.Layer
	sleep     *radio.SleepController
	opcode    wire.Opcode
	announcer *announce.Announcer // set for self-announcements
	submitted time.Time
}

// completion is a finished send reported by a radio.
type completion struct {
	layer radio.Layer
	msg   *radio.Message
	err   error
}

// Run is the worker loop. It returns nil once ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("worker started", "node", s.nodeIDText)
	s.logState(nil, log.StateEntityWorker, "STOPPED", "RUNNING", "")
	defer func() {
		s.logger.Info("worker stopped", "node", s.nodeIDText)
		s.logState(nil, log.StateEntityWorker, "RUNNING", "STOPPED", ctx.Err().Error())
	}()

	signaled := true
	for {
		timeout := s.step(signaled)

		s.setState(StateWaiting)
		var ok bool
		signaled, ok = s.wait(ctx, timeout)
		if !ok {
			return nil
		}
	}
}

// wait blocks until a signal, the timeout or cancellation. It reports
// whether a signal fired and whether the worker should continue.
func (s *Service) wait(ctx context.Context, timeout time.Duration) (signaled, ok bool) {
	t := s.clock.Timer(timeout)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false, false
	case <-s.wake:
		return true, true
	case <-t.C:
		return false, true
	}
}

// step runs one worker iteration and returns how long to wait before the
// next one. signaled is false when the previous wait timed out.
func (s *Service) step(signaled bool) time.Duration {
	s.updateBootTime()

	s.setState(StateDrainingSendCompletion)
	s.drainCompletions()

	var out *outgoing
	if s.outstanding == nil {
		select {
		case act := <-s.actions:
			s.config.Metrics.SetQueueDepth(len(s.actions))
			s.setState(StateDrainingAction)
			out = s.handleAction(act)
			if out == nil {
				// More work may be waiting behind an action that
				// produced no packet.
				s.signal()
			}
		default:
			s.setState(StateSchedulingAnnouncement)
			out = s.scheduleAnnouncement()
		}
	}

	switch {
	case out != nil:
		s.setState(StateSending)
		s.send(out)
	case !signaled && s.outstanding == nil:
		if due, _ := s.registry.FindDue(s.now()); due == nil {
			s.setState(StateIdleSleepAllowed)
			s.allowSleep()
		}
	}

	return s.nextTimeout()
}

// nextTimeout is the poll period or the time until the soonest due
// announcer, whichever is shorter.
func (s *Service) nextTimeout() time.Duration {
	d := s.config.PollPeriod
	_, remaining := s.registry.FindDue(s.now())
	if remaining == announce.Never {
		return d
	}
	if remaining < 1 {
		// Due now but not sent: a completion signal or this retry
		// brings the worker back.
		remaining = 1
	}
	if r := time.Duration(remaining) * time.Second; r < d {
		d = r
	}
	return d
}

// scheduleAnnouncement builds a broadcast self-announcement for the first
// due announcer, or returns nil when none is due.
func (s *Service) scheduleAnnouncement() *outgoing {
	a, _ := s.registry.FindDue(s.now())
	if a == nil {
		return nil
	}
	out := s.buildAnnouncement(a.Layer(), wire.VersionCurrent, radio.Broadcast)
	if out == nil {
		return nil
	}
	out.announcer = a
	out.sleep = a.SleepController()
	return out
}

// send wakes the radio if needed and submits out.
func (s *Service) send(out *outgoing) {
	if ctl := out.sleep; ctl != nil {
		s.blockSleep(out.layer, ctl)
		if !s.waitStarted(out.layer) {
			s.logger.Warn("radio did not start", "iface", out.layer.Name(), "timeout", s.config.StartTimeout)
			s.fail(out, radio.ErrOff)
			return
		}
	}

	// Mark the send outstanding first: some radios complete synchronously.
	out.submitted = s.clock.Now()
	s.outstanding = out
	s.busy.Store(true)

	if err := out.layer.Send(out.msg, s.sendDone); err != nil {
		s.outstanding = nil
		s.busy.Store(false)
		s.fail(out, err)
		return
	}

	iface := out.layer.Name()
	if out.announcer != nil {
		if s.registry.MarkSent(out.announcer, s.now()) {
			s.announced.Add(1)
		}
		s.config.Metrics.AnnouncementSent(iface)
	} else {
		s.config.Metrics.ResponseSent(iface, out.opcode.String())
	}
	s.logger.Debug("packet submitted", "iface", iface, "opcode", out.opcode, "dst", out.msg.Destination().String())
	s.logPacket(out.layer, log.DirectionOut, out.msg.Destination(), out.msg.Data())
}

// fail returns the buffer of a packet that could not be submitted.
func (s *Service) fail(out *outgoing, err error) {
	if rerr := s.pool.Release(out.msg); rerr != nil {
		s.logger.Error("release failed", "err", rerr)
	}
	s.config.Metrics.SendFailed(out.layer.Name())
	s.logger.Warn("send failed", "iface", out.layer.Name(), "opcode", out.opcode, "err", err)
	s.logDrop(out.layer, out.msg.Destination(), log.DropSendRejected, err.Error())
}

// sendDone is the radio completion callback. It may run on any goroutine.
func (s *Service) sendDone(layer radio.Layer, msg *radio.Message, err error) {
	select {
	case s.completions <- completion{layer: layer, msg: msg, err: err}:
	default:
		s.logger.Error("unexpected send completion", "iface", layer.Name())
	}
	s.signal()
}

func (s *Service) drainCompletions() {
	for {
		select {
		case c := <-s.completions:
			s.complete(c)
		default:
			return
		}
	}
}

func (s *Service) complete(c completion) {
	if err := s.pool.Release(c.msg); err != nil {
		s.logger.Error("release failed", "iface", c.layer.Name(), "err", err)
	}
	if out := s.outstanding; out != nil && out.msg == c.msg {
		s.config.Metrics.ObserveSendLatency(s.clock.Since(out.submitted))
		s.outstanding = nil
		s.busy.Store(false)
	}

	if c.err != nil {
		s.config.Metrics.SendFailed(c.layer.Name())
		s.logger.Warn("send completed with error", "iface", c.layer.Name(), "err", c.err)
		s.logError(c.layer, log.LayerRadio, c.err.Error(), "send done")
		return
	}
	s.logger.Debug("send done", "iface", c.layer.Name())
}

// waitStarted polls layer until it reports started. Radio start-up is
// polled in real time; a simulated clock does not drive hardware.
func (s *Service) waitStarted(layer radio.Layer) bool {
	deadline := time.Now().Add(s.config.StartTimeout)
	for !layer.Started() {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(s.config.StartPollInterval)
	}
	return true
}

// blockSleep keeps the radio of ctl awake. sleepBlocked only tracks logged
// transitions; a re-registered controller starts unblocked on the radio.
func (s *Service) blockSleep(layer radio.Layer, ctl *radio.SleepController) {
	if err := layer.BlockSleep(ctl); err != nil {
		delete(s.sleepBlocked, ctl)
		s.logger.Warn("block sleep failed", "iface", layer.Name(), "ctl", ctl.Name, "err", err)
		return
	}
	if prev, blocked := s.sleepBlocked[ctl]; blocked && prev == layer {
		return
	}
	s.sleepBlocked[ctl] = layer
	s.logState(layer, log.StateEntityRadio, "SLEEP_ALLOWED", "SLEEP_BLOCKED", ctl.Name)
}

// allowSleep releases the sleep block of every announcer.
func (s *Service) allowSleep() {
	type pair struct {
		layer radio.Layer
		ctl   *radio.SleepController
	}
	var pairs []pair
	s.registry.Each(func(a *announce.Announcer) {
		if ctl := a.SleepController(); ctl != nil {
			pairs = append(pairs, pair{a.Layer(), ctl})
		}
	})

	// Controllers of removed announcers were deregistered from their radio.
	for ctl := range s.sleepBlocked {
		if !slices.ContainsFunc(pairs, func(p pair) bool { return p.ctl == ctl }) {
			delete(s.sleepBlocked, ctl)
		}
	}

	for _, p := range pairs {
		if err := p.layer.AllowSleep(p.ctl); err != nil {
			s.logger.Debug("allow sleep failed", "iface", p.layer.Name(), "ctl", p.ctl.Name, "err", err)
			continue
		}
		if _, blocked := s.sleepBlocked[p.ctl]; blocked {
			delete(s.sleepBlocked, p.ctl)
			s.logState(p.layer, log.StateEntityRadio, "SLEEP_BLOCKED", "SLEEP_ALLOWED", p.ctl.Name)
		}
	}
}
