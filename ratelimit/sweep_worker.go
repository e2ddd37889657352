/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"

	"github.com/acronis/go-ratelimitd/log"
)

// SweepWorker evicts idle client state of the registry on each run.
// It's intended to be wrapped into a periodic worker.
type SweepWorker struct {
	sweeper Sweeper
	clock   Clock
	logger  log.FieldLogger
}

// NewSweepWorker creates a new SweepWorker. SystemClock is used if clock is nil.
func NewSweepWorker(sweeper Sweeper, clock Clock, logger log.FieldLogger) *SweepWorker {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &SweepWorker{sweeper: sweeper, clock: clock, logger: logger}
}

// Run performs a single sweep.
func (w *SweepWorker) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}
	if evicted := w.sweeper.Sweep(w.clock.Now()); evicted > 0 {
		w.logger.Debug("idle rate limit state evicted", log.Int("evicted", evicted))
	}
	return nil
}
