// Package janitor implements the periodic sweep of spec.md §4.6.
package janitor

import (
	"context"
	"time"

	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// SweepInterval is the fixed cadence of §4.6.
const SweepInterval = 30 * time.Second

// Janitor runs the expiry and timeout sweeps on its own timer.
type Janitor struct {
	queue      *queue.PriorityQueue
	timeoutIV  func() time.Duration
	logger     *utils.Logger
}

// New creates a Janitor. timeoutIV is read on every tick so a hot
// config reload of timeout_iv takes effect without restarting the loop.
func New(q *queue.PriorityQueue, timeoutIV func() time.Duration, logger *utils.Logger) *Janitor {
	return &Janitor{queue: q, timeoutIV: timeoutIV, logger: logger}
}

// Run drives the sweep until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	now := time.Now()
	expired := j.queue.SweepExpired(now)
	timedOut := j.queue.SweepTimedOut(now, j.timeoutIV())

	if expired > 0 || timedOut > 0 {
		j.logger.WithFields(map[string]interface{}{
			"expired":   expired,
			"timed_out": timedOut,
		}).Info("janitor sweep complete")
	}
}
