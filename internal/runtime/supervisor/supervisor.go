// Package supervisor manages named goroutines tied to a shared
// context, with panic recovery and timeout-aware shutdown.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	wg       sync.WaitGroup
	errOnce  sync.Once
	firstErr atomic.Value
}

func New(parent context.Context, log zerolog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, log: log}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel signals every goroutine to stop without waiting for them.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first non-nil error reported by any goroutine.
func (s *Supervisor) Err() error {
	if v := s.firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Go starts fn under the supervisor context. Panics are recovered and
// recorded as errors rather than crashing the process.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.record(fmt.Errorf("%s panicked: %v", name, r))
				s.log.Error().Str("goroutine", name).
					Str("stack", string(debug.Stack())).
					Msgf("goroutine panicked: %v", r)
			}
		}()

		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.record(fmt.Errorf("%s: %w", name, err))
			s.log.Error().Err(err).Str("goroutine", name).Msg("goroutine exited with error")
		}
	}()
}

// Wait blocks until every goroutine has returned or the timeout
// elapses. It reports whether shutdown completed cleanly.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Supervisor) record(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}
