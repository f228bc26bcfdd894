// Package worker runs the periodic maintenance loops: force-submitting
// overrun attempts and disconnecting sessions with lost heartbeats.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aetuition/testing-service/internal/services"
)

type Sweeper struct {
	attempts services.AttemptService
	monitor  services.MonitorService
	logger   *slog.Logger

	attemptInterval time.Duration
	sessionInterval time.Duration
}

func NewSweeper(
	attempts services.AttemptService,
	monitor services.MonitorService,
	logger *slog.Logger,
	attemptInterval, sessionInterval time.Duration,
) *Sweeper {
	return &Sweeper{
		attempts:        attempts,
		monitor:         monitor,
		logger:          logger,
		attemptInterval: attemptInterval,
		sessionInterval: sessionInterval,
	}
}

// Run blocks until ctx is cancelled. The two sweeps tick independently; both
// service operations are idempotent, so overlapping instances are safe.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.loop(ctx, "expired-attempts", s.attemptInterval, func(ctx context.Context) error {
			_, err := s.attempts.SweepExpiredAttempts(ctx)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "stale-sessions", s.sessionInterval, func(ctx context.Context) error {
			_, err := s.monitor.SweepStaleSessions(ctx)
			return err
		})
	}()

	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) {
	s.logger.Info("Sweep loop started", "sweep", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep loop stopped", "sweep", name)
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				s.logger.Error("Sweep failed", "sweep", name, "error", err)
			}
		}
	}
}
