// Package scheduler drives the strategy at a fixed interval and runs the
// periodic status jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultDrainTimeout bounds how long Run waits for in-flight ticks on shutdown.
const DefaultDrainTimeout = 30 * time.Second

// Strategy is a cycle that can be fired repeatedly. A non-nil error from
// Tick is fatal and stops the scheduler.
type Strategy interface {
	Tick(ctx context.Context) error
}

// Scheduler fires the strategy on a ticker without waiting for the previous
// tick to finish. Overlapping ticks are expected; the strategy serializes
// execution itself.
type Scheduler struct {
	Cron         *cron.Cron
	strategy     Strategy
	interval     time.Duration
	drainTimeout time.Duration
	inFlight     sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(strategy Strategy, interval time.Duration) *Scheduler {
	return &Scheduler{
		Cron:         cron.New(),
		strategy:     strategy,
		interval:     interval,
		drainTimeout: DefaultDrainTimeout,
	}
}

// SetDrainTimeout overrides how long shutdown waits for in-flight ticks.
func (s *Scheduler) SetDrainTimeout(d time.Duration) {
	s.drainTimeout = d
}

// AddJob registers a cron job, e.g. "@every 1m".
func (s *Scheduler) AddJob(spec string, fn func()) error {
	if _, err := s.Cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("register job %q: %w", spec, err)
	}
	return nil
}

// Run fires ticks until ctx is cancelled or a tick returns an error. Either
// way it stops firing, waits for in-flight ticks up to the drain timeout and
// returns: nil on cancellation, the tick error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.interval)
	}

	// In-flight collaborator calls are never cancelled by shutdown.
	tickCtx := context.WithoutCancel(ctx)
	fatal := make(chan error, 1)

	s.Cron.Start()
	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	defer func() {
		<-s.Cron.Stop().Done()
		log.Info().Msg("scheduler stopped")
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.halt(ticker, nil)

		case err := <-fatal:
			return s.halt(ticker, err)

		case <-ticker.C:
			// A tick and a fatal error can be ready together; never start
			// another tick once one has failed.
			select {
			case err := <-fatal:
				return s.halt(ticker, err)
			default:
			}

			s.inFlight.Add(1)
			go func() {
				defer s.inFlight.Done()
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("tick panicked")
					}
				}()

				if err := s.strategy.Tick(tickCtx); err != nil {
					select {
					case fatal <- err:
					default:
					}
				}
			}()
		}
	}
}

func (s *Scheduler) halt(ticker *time.Ticker, err error) error {
	ticker.Stop()
	if err != nil {
		log.Error().Err(err).Msg("stopping scheduler")
	}
	s.drain()
	return err
}

func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		log.Warn().Dur("timeout", s.drainTimeout).Msg("in-flight ticks still running at shutdown")
	}
}
