package scheduler

import (
	"context"
	"time"
)

// Run drives Tick at a fixed cadence until ctx is cancelled. Blocking - run
// in a goroutine. Cancellation flushes sounding notes through the same
// stop path as the transport.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.OnTransportStop()
			return
		case <-s.interruptChan:
			s.Tick()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Interrupt pokes the run loop to fill immediately instead of waiting for
// the next periodic tick (after track edits, for instance). Never blocks.
func (s *Scheduler) Interrupt() {
	select {
	case s.interruptChan <- struct{}{}:
	default:
	}
}
