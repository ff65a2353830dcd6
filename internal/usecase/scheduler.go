package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type Cycler interface {
	FetchAndStore(ctx context.Context) CycleResult
}

// Scheduler runs a cycle at startup and then once per interval until the
// context is cancelled. A failing or panicking cycle never stops the loop.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

func NewScheduler(cycler Cycler, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{cycler: cycler, interval: interval, clock: clk, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid update interval %s", s.interval)
	}
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("starting periodic IP updates", zap.Duration("interval", s.interval))
	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping periodic IP updates")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("resolution cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	s.cycler.FetchAndStore(ctx)
}
