package explorer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Scheduler calls a registered callback at a fixed interval until stopped.
// The explorer uses it to rebuild the solution periodically.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

type IntervalScheduler struct {
	interval time.Duration
	logger   log.Logger
	callback func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ Scheduler = (*IntervalScheduler)(nil)

func NewIntervalScheduler(interval time.Duration, logger log.Logger) *IntervalScheduler {
	return &IntervalScheduler{
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *IntervalScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start begins ticking. The first call happens one interval after Start.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	if s.running.Swap(true) {
		return errors.New("scheduler already started")
	}
	s.done = make(chan struct{})

	s.logger.Info("Starting scheduler", "interval", s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.running.Load() {
					return
				}
				if err := s.callback(); err != nil {
					s.logger.Warn("Scheduled callback failed", "err", err)
				}
			case <-s.done:
				s.logger.Debug("Done signal received, stopping scheduler")
				return
			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping scheduler")
				s.running.Store(false)
				return
			}
		}
	}()
	return nil
}

func (s *IntervalScheduler) Stop() error {
	if !s.running.Swap(false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	close(s.done)
	return nil
}

func (s *IntervalScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the ticking goroutine has exited or ctx ends.
func (s *IntervalScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
