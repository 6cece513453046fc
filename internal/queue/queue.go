// Package queue implements the priority queue with lifecycle tracking
// described in spec.md §4.3: a lazy-deletion min-heap over a key-indexed
// map, plus the scout concurrency semaphore.
package queue

import (
	"container/heap"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazyscout/lazyscout/internal/events"
	"github.com/lazyscout/lazyscout/internal/geoutil"
	"github.com/lazyscout/lazyscout/internal/sighting"
)

// ListType records which static list (if any) produced an entry's priority.
type ListType string

const (
	ListPriority ListType = "priority_list"
	ListCell     ListType = "cell_list"
	ListRarity   ListType = "rarity"
)

// CoordinateMatchThresholdM is the haversine radius (meters) used by
// removeByMatch's coordinate fallback (§4.3).
const CoordinateMatchThresholdM = 70.0

// QueueEntry is a single sighting awaiting, undergoing, or having
// undergone a scout. Exactly one of {pending, in_flight, awaiting_match,
// removed} holds at any time (§3 invariant), enforced by PriorityQueue's
// lock — callers never mutate these fields directly.
type QueueEntry struct {
	Key string

	SpeciesID    int
	Form         int
	HasForm      bool
	Area         string
	Lat          float64
	Lon          float64
	SpawnpointID string
	EncounterID  string
	DespawnAt    int64 // unix seconds, 0 = none
	HasDespawn   bool
	SeenType     sighting.SeenType
	S2CellToken  string
	ListType     ListType

	Priority   int
	enqueuedAt int64 // logical monotonic ordering key, see nextSeq

	removed       bool
	inFlight      bool
	awaitingMatch bool
	scoutStarted  time.Time
	hasScout      bool

	heapIndex int // maintained by container/heap; -1 once popped
}

// Removed reports whether the entry has been permanently retired.
func (e *QueueEntry) Removed() bool { return e.removed }

// InFlight reports whether a scout is currently outstanding for this entry.
func (e *QueueEntry) InFlight() bool { return e.inFlight }

// AwaitingMatch reports whether the entry is waiting for a late IV match.
func (e *QueueEntry) AwaitingMatch() bool { return e.awaitingMatch }

// SpeciesKey mirrors sighting.Sighting.SpeciesKey for stats bucketing.
func (e *QueueEntry) SpeciesKey() string {
	if e.HasForm && e.Form != 0 {
		return fmt.Sprintf("%d:%d", e.SpeciesID, e.Form)
	}
	return fmt.Sprintf("%d", e.SpeciesID)
}

// DeriveKey computes the identity key of §3: first non-empty of
// encounter_id, "{spawnpoint_id}:{species_id}", "{lat6}:{lon6}:{species_id}".
// Coordinates are formatted with a fixed 6-decimal-place representation so
// the key never depends on locale or float formatting quirks (§9).
func DeriveKey(encounterID, spawnpointID string, speciesID int, lat, lon float64) string {
	if encounterID != "" {
		return encounterID
	}
	if spawnpointID != "" {
		return fmt.Sprintf("%s:%d", spawnpointID, speciesID)
	}
	return fmt.Sprintf("%s:%s:%d", fixed6(lat), fixed6(lon), speciesID)
}

func fixed6(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Stats is the counter bucket the queue owns (§4.3).
type Stats struct {
	Queued  map[string]map[string]int64 // [seen_type][species] -> count
	Matched map[string]map[string]int64
	EarlyIV map[string]map[string]int64
	Timeout map[string]map[string]int64
}

func newStats() *Stats {
	return &Stats{
		Queued:  make(map[string]map[string]int64),
		Matched: make(map[string]map[string]int64),
		EarlyIV: make(map[string]map[string]int64),
		Timeout: make(map[string]map[string]int64),
	}
}

func bump(bucket map[string]map[string]int64, seenType sighting.SeenType, species string) {
	m, ok := bucket[string(seenType)]
	if !ok {
		m = make(map[string]int64)
		bucket[string(seenType)] = m
	}
	m[species]++
}

// entryHeap is the lazy-deletion min-heap, ordered by (priority asc,
// enqueuedAt asc). Removed/dispatched entries may linger until popped.
type entryHeap []*QueueEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].enqueuedAt < h[j].enqueuedAt
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*QueueEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue is the thread-safe min-heap + key index of §4.3.
type PriorityQueue struct {
	mu   sync.Mutex
	heap entryHeap
	byKey map[string]*QueueEntry

	activeScouts int
	slots        chan struct{} // capacity == current concurrency_scout

	stats *Stats
	seq   int64

	events events.Sink
}

// New creates a PriorityQueue with the given initial scout concurrency.
func New(concurrency int) *PriorityQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PriorityQueue{
		heap:   make(entryHeap, 0),
		byKey:  make(map[string]*QueueEntry),
		slots:  make(chan struct{}, concurrency),
		stats:  newStats(),
		events: events.Noop,
	}
}

// SetEventSink attaches the publisher used for lifecycle notifications
// (§6.1 admin WebSocket stream). Safe to call once at wiring time.
func (q *PriorityQueue) SetEventSink(sink events.Sink) {
	if sink == nil {
		sink = events.Noop
	}
	q.mu.Lock()
	q.events = sink
	q.mu.Unlock()
}

func (q *PriorityQueue) publish(kind events.Kind, e *QueueEntry) {
	q.events.Publish(events.Event{
		Kind:      kind,
		Key:       e.Key,
		SpeciesID: e.SpeciesID,
		SeenType:  string(e.SeenType),
		ListType:  string(e.ListType),
		Priority:  e.Priority,
		At:        time.Now(),
	})
}

func (q *PriorityQueue) nextSeq() int64 {
	return atomic.AddInt64(&q.seq, 1)
}

// Add inserts entry if its key is not already held by a non-removed
// entry. Returns false on duplicate (§4.3).
func (q *PriorityQueue) Add(entry *QueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byKey[entry.Key]; ok && !existing.removed {
		return false
	}

	entry.enqueuedAt = q.nextSeq()
	entry.heapIndex = -1
	q.byKey[entry.Key] = entry
	heap.Push(&q.heap, entry)

	bump(q.stats.Queued, entry.SeenType, entry.SpeciesKey())
	q.publish(events.Enqueued, entry)
	return true
}

// NextForScout acquires a concurrency slot and returns the next eligible
// entry in (priority, enqueued_at) order, marking it in_flight. Returns
// nil (and releases the slot) if no eligible entry exists (§4.3, §5).
func (q *PriorityQueue) NextForScout() *QueueEntry {
	slots := q.currentSlots()
	select {
	case slots <- struct{}{}:
	default:
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		top := q.heap[0]
		if top.removed || top.inFlight || top.awaitingMatch || q.byKey[top.Key] != top {
			heap.Pop(&q.heap)
			continue
		}

		heap.Pop(&q.heap)
		top.inFlight = true
		top.scoutStarted = time.Now()
		top.hasScout = true
		q.activeScouts++
		q.publish(events.Dispatched, top)
		return top
	}

	// No eligible entry: release the slot we optimistically acquired.
	<-slots
	return nil
}

// currentSlots returns the semaphore channel in effect, guarded so a
// concurrent UpdateConcurrency swap is observed consistently (§5).
func (q *PriorityQueue) currentSlots() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slots
}

// MarkScoutComplete transitions entry from in_flight to awaiting_match
// and releases its concurrency slot (§4.3). success is recorded by the
// caller's own stats (dispatcher/metrics); the queue itself is neutral
// to the RPC outcome: a failed scout also moves to awaiting_match.
func (q *PriorityQueue) MarkScoutComplete(entry *QueueEntry, success bool) {
	slots := q.currentSlots()

	q.mu.Lock()
	entry.inFlight = false
	entry.awaitingMatch = true
	if q.activeScouts > 0 {
		q.activeScouts--
	}
	q.mu.Unlock()

	select {
	case <-slots:
	default:
	}
	_ = success
}

// UpdateConcurrency atomically replaces the scout semaphore with a new
// one of capacity n. In-flight holders release into the old channel,
// which is then discarded; only subsequent NextForScout calls observe
// the new capacity (§4.3, §5).
func (q *PriorityQueue) UpdateConcurrency(n int) {
	if n <= 0 {
		n = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.slots = make(chan struct{}, n)
}

// ActiveScouts returns the current count of in_flight entries.
func (q *PriorityQueue) ActiveScouts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeScouts
}

// Len returns the number of non-removed entries tracked (pending + in
// flight + awaiting match).
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byKey)
}

// RemoveByMatch implements §4.3: exact encounter_id match first, then a
// haversine coordinate fallback within CoordinateMatchThresholdM.
func (q *PriorityQueue) RemoveByMatch(encounterID string, lat, lon float64) *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if encounterID != "" {
		for _, e := range q.byKey {
			if !e.removed && e.EncounterID == encounterID {
				return q.removeLocked(e)
			}
		}
		return nil
	}

	for _, e := range q.byKey {
		if e.removed {
			continue
		}
		if geoutil.HaversineMeters(lat, lon, e.Lat, e.Lon) <= CoordinateMatchThresholdM {
			return q.removeLocked(e)
		}
	}
	return nil
}

// RemoveByCellMatch implements §4.3's nearby_cell match path.
func (q *PriorityQueue) RemoveByCellMatch(speciesID int, form int, hasForm bool, s2Token string) *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.byKey {
		if e.removed || e.SeenType != sighting.SeenNearbyCell {
			continue
		}
		if e.S2CellToken != s2Token || e.SpeciesID != speciesID {
			continue
		}
		if hasForm && e.Form != form {
			continue
		}
		if !e.inFlight && !e.awaitingMatch {
			continue
		}
		return q.removeLocked(e)
	}
	return nil
}

func (q *PriorityQueue) removeLocked(e *QueueEntry) *QueueEntry {
	e.removed = true
	delete(q.byKey, e.Key)
	if e.heapIndex >= 0 && e.heapIndex < len(q.heap) && q.heap[e.heapIndex] == e {
		heap.Remove(&q.heap, e.heapIndex)
	}
	return e
}

// RecordMatched increments the matched stat for a removed entry.
func (q *PriorityQueue) RecordMatched(e *QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	bump(q.stats.Matched, e.SeenType, e.SpeciesKey())
	q.publish(events.Matched, e)
}

// RecordEarlyIV increments the early_iv stat for a removed entry.
func (q *PriorityQueue) RecordEarlyIV(e *QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	bump(q.stats.EarlyIV, e.SeenType, e.SpeciesKey())
	q.publish(events.EarlyIV, e)
}

// SweepExpired drops every non-removed entry whose despawn has passed.
func (q *PriorityQueue) SweepExpired(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	nowUnix := now.Unix()
	dropped := 0
	for _, e := range q.byKey {
		if e.removed || !e.HasDespawn {
			continue
		}
		if e.DespawnAt < nowUnix {
			q.removeLocked(e)
			q.publish(events.Expired, e)
			dropped++
		}
	}
	return dropped
}

// SweepTimedOut drops every non-removed entry whose scout has been
// outstanding longer than timeout, counting each as a timeout.
func (q *PriorityQueue) SweepTimedOut(now time.Time, timeout time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for _, e := range q.byKey {
		if e.removed || !e.hasScout {
			continue
		}
		if now.Sub(e.scoutStarted) > timeout {
			bump(q.stats.Timeout, e.SeenType, e.SpeciesKey())
			q.removeLocked(e)
			q.publish(events.TimedOut, e)
			dropped++
		}
	}
	return dropped
}

// Peek returns up to n pending (not in-flight/awaiting/removed) entries
// in priority order, without mutating any state (§6.1 GET /queue).
func (q *PriorityQueue) Peek(n int) []*QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*QueueEntry, 0, len(q.byKey))
	for _, e := range q.byKey {
		if !e.removed && !e.inFlight && !e.awaitingMatch {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].enqueuedAt < pending[j].enqueuedAt
	})
	if n >= 0 && n < len(pending) {
		pending = pending[:n]
	}
	return pending
}

// StatsSnapshot returns a deep copy of the counters owned by the queue.
func (q *PriorityQueue) StatsSnapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queued:  copyNested(q.stats.Queued),
		Matched: copyNested(q.stats.Matched),
		EarlyIV: copyNested(q.stats.EarlyIV),
		Timeout: copyNested(q.stats.Timeout),
	}
}

func copyNested(m map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(m))
	for k, v := range m {
		inner := make(map[string]int64, len(v))
		for k2, v2 := range v {
			inner[k2] = v2
		}
		out[k] = inner
	}
	return out
}
