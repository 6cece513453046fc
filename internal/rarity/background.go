package rarity

import (
	"context"
	"time"

	"github.com/lazyscout/lazyscout/pkg/utils"
)

// RunBackground drives the census's two timers until ctx is canceled:
// cleanupPeriod (drop expired spawns) and rankingPeriod (recalculate
// ranks, then log the calibration transition once). Matches the
// teacher's "log; sleep; continue" background-task error policy (§7):
// a panic-free loop body means there is nothing to recover here, but
// the shape mirrors internal/service timers in the teacher repo.
func (c *Census) RunBackground(ctx context.Context, cleanupPeriod, rankingPeriod time.Duration, logger *utils.Logger) {
	cleanupTicker := time.NewTicker(cleanupPeriod)
	rankingTicker := time.NewTicker(rankingPeriod)
	defer cleanupTicker.Stop()
	defer rankingTicker.Stop()

	wasReady := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			c.CleanupExpired(time.Now())
		case <-rankingTicker.C:
			c.Recalculate()
			if !wasReady && c.State() == Ready {
				wasReady = true
				logger.Info("rarity census calibration complete, ranks are now authoritative")
			}
		}
	}
}
