package bot

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"circularbot/internal/runtime/supervisor"
)

const (
	backoffBase = 30 * time.Second
	backoffCap  = 300 * time.Second

	// Certificate problems on the listing site tend to persist for a
	// while; give them extra room before the next attempt.
	tlsCooldown = 60 * time.Second

	// A failing getUpdates poll slows down but never stops; the Bot API
	// recovers on its own.
	commandErrBackoff = 5 * time.Second
)

// Scheduler drives the two long-running loops: the periodic website
// scan and the command poller.
type Scheduler struct {
	processor    *Processor
	listener     *CommandListener
	scanInterval time.Duration
	pollInterval time.Duration
	log          zerolog.Logger

	sup *supervisor.Supervisor
}

func NewScheduler(processor *Processor, listener *CommandListener, scanInterval, pollInterval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		processor:    processor,
		listener:     listener,
		scanInterval: scanInterval,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Start launches both loops under the given context.
func (s *Scheduler) Start(ctx context.Context) {
	s.sup = supervisor.New(ctx, s.log)
	s.sup.Go("scan-loop", s.scanLoop)
	s.sup.Go("command-loop", s.commandLoop)
}

// Stop cancels both loops and waits for them to drain. The command
// loop may be mid-batch, so the wait covers in-flight deliveries.
func (s *Scheduler) Stop(timeout time.Duration) {
	if s.sup == nil {
		return
	}
	s.sup.Cancel()
	if !s.sup.Wait(timeout) {
		s.log.Warn().Msg("scheduler loops did not stop within grace period")
	}
}

func (s *Scheduler) scanLoop(ctx context.Context) error {
	failures := 0
	for {
		wait := s.scanInterval
		if _, err := s.processor.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			wait = backoffFor(failures)
			if IsTLSError(err) {
				wait += tlsCooldown
			}
			s.log.Error().Err(err).Int("consecutive_failures", failures).
				Dur("next_attempt_in", wait).Msg("scan cycle failed")
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) commandLoop(ctx context.Context) error {
	failures := 0
	for {
		if err := s.listener.Poll(ctx); err != nil && ctx.Err() == nil {
			failures++
			s.log.Warn().Err(err).Int("consecutive_failures", failures).
				Msg("command poll failed")
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.commandWait(failures)):
		}
	}
}

// commandWait returns the delay before the next poll: the regular
// interval, or a longer pause while polls keep failing.
func (s *Scheduler) commandWait(failures int) time.Duration {
	if failures > 0 {
		return commandErrBackoff
	}
	return s.pollInterval
}

// backoffFor returns the wait after n consecutive failures: the base
// doubles each time and saturates at the cap.
func backoffFor(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	shift := n - 1
	if shift > 6 {
		shift = 6
	}
	d := backoffBase << shift
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// IsTLSError reports whether err looks like a certificate or TLS
// handshake problem.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"tls", "x509", "certificate", "ssl"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
