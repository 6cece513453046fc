package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/scoutclient"
	"github.com/lazyscout/lazyscout/internal/sighting"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

type fakeClient struct {
	mu       sync.Mutex
	single   []scoutclient.Location
	multi    [][]scoutclient.Location
	failNext bool
}

func (f *fakeClient) ScoutSingle(ctx context.Context, loc scoutclient.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.single = append(f.single, loc)
	return nil
}

func (f *fakeClient) ScoutMulti(ctx context.Context, locs []scoutclient.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multi = append(f.multi, locs)
	return nil
}

func newEntry(key string, seenType sighting.SeenType) *queue.QueueEntry {
	return &queue.QueueEntry{
		Key:        key,
		SpeciesID:  25,
		SeenType:   seenType,
		ListType:   queue.ListPriority,
		HasDespawn: true,
		DespawnAt:  time.Now().Add(time.Hour).Unix(),
	}
}

func TestDispatcher_SingleScoutPath(t *testing.T) {
	q := queue.New(5)
	client := &fakeClient{}
	d := New(q, client, utils.NewLogger("error", "text"))

	e := newEntry("k1", sighting.SeenWild)
	require.True(t, q.Add(e))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.single) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, 0, q.ActiveScouts())
}

func TestDispatcher_NearbyCellUsesNinePointGrid(t *testing.T) {
	q := queue.New(5)
	client := &fakeClient{}
	d := New(q, client, utils.NewLogger("error", "text"))

	e := newEntry("k1", sighting.SeenNearbyCell)
	e.Lat, e.Lon = 40.0, -120.0
	require.True(t, q.Add(e))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.multi) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.multi[0], 9, "nearby_cell dispatch must scout the full 9-point grid")
}

func TestDispatcher_FailureMarksScoutCompleteWithoutMatch(t *testing.T) {
	q := queue.New(5)
	client := &fakeClient{failNext: true}
	d := New(q, client, utils.NewLogger("error", "text"))

	e := newEntry("k1", sighting.SeenWild)
	require.True(t, q.Add(e))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return q.ActiveScouts() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.True(t, e.AwaitingMatch(), "even a failed scout still awaits a late match or timeout")
}
