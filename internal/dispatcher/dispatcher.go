// Package dispatcher drains the PriorityQueue under its concurrency
// cap and calls the Scout Service, per spec.md §4.5.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/lazyscout/lazyscout/internal/metrics"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/s2cell"
	"github.com/lazyscout/lazyscout/internal/scoutclient"
	"github.com/lazyscout/lazyscout/internal/sighting"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// CheckInterval is how often the loop polls for work when the queue is
// empty or the concurrency cap is saturated (§4.5).
const CheckInterval = 250 * time.Millisecond

// Dispatcher is the single long-running drain loop of §4.5.
type Dispatcher struct {
	queue  *queue.PriorityQueue
	client scoutclient.Client
	logger *utils.Logger

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(q *queue.PriorityQueue, client scoutclient.Client, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{queue: q, client: client, logger: logger}
}

// Run drives the loop until ctx is canceled, then waits for every
// in-flight scout to finish (§5: in-flight scouts are not cancelled
// mid-flight).
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		default:
		}

		entry := d.queue.NextForScout()
		if entry == nil {
			select {
			case <-ctx.Done():
				d.wg.Wait()
				return
			case <-ticker.C:
			}
			continue
		}

		d.wg.Add(1)
		go d.sendScout(ctx, entry)
	}
}

// sendScout implements §4.5's sendScout operation.
func (d *Dispatcher) sendScout(ctx context.Context, entry *queue.QueueEntry) {
	defer d.wg.Done()

	success := false
	defer func() {
		d.queue.MarkScoutComplete(entry, success)
		metrics.ScoutDispatched.WithLabelValues(string(entry.SeenType), string(entry.ListType), outcomeLabel(success)).Inc()
	}()

	var err error
	if entry.SeenType == sighting.SeenNearbyCell {
		grid := s2cell.NinePointGrid(entry.Lat, entry.Lon)
		locations := make([]scoutclient.Location, 0, len(grid))
		for _, p := range grid {
			locations = append(locations, scoutclient.Location{Lat: p.Lat, Lon: p.Lon})
		}
		err = d.client.ScoutMulti(ctx, locations)
	} else {
		err = d.client.ScoutSingle(ctx, scoutclient.Location{Lat: entry.Lat, Lon: entry.Lon})
	}

	if err != nil {
		d.logger.WithFields(map[string]interface{}{
			"key":       entry.Key,
			"seen_type": entry.SeenType,
			"error":     err.Error(),
		}).Warn("scout request failed")
		return
	}
	success = true
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
