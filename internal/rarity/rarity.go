// Package rarity implements the RarityCensus of spec.md §4.2: rolling
// per-area active-spawn counts and the rarity rank they derive.
package rarity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// State is the census's calibration state machine (§4.2).
type State int

const (
	Calibrating State = iota
	Ready
)

// globalArea is the area name used when filter_with_koji is false.
const globalArea = "GLOBAL"

// pendingRankOffset is the sentinel band added to len(rank_cache[area])
// for species seen but not yet ranked. It lies far above any real rank,
// so a pending-rank result never collides with a 1000+rank tier-1 value
// and always exceeds iv_threshold.
const pendingRankOffset = 1_000_000

type spawnRecord struct {
	despawnAt time.Time
}

// Census tracks active spawns per (area, speciesKey) and derives ranks.
type Census struct {
	mu sync.Mutex

	start              time.Time
	calibrationSeconds float64

	// actives[area][speciesKey] = multiset of despawn times.
	actives map[string]map[string][]spawnRecord

	// rankCache[area][speciesKey] = 1-based rank, rarest first.
	rankCache map[string]map[string]int
	// globalRank[area+":"+speciesKey] = 1-based rank across all (species, area) pairs.
	globalRank map[string]int

	now func() time.Time
}

// New creates a Census. calibrationSeconds is the warm-up duration
// after which State transitions from Calibrating to Ready.
func New(calibrationSeconds float64) *Census {
	return newCensus(calibrationSeconds, time.Now)
}

func newCensus(calibrationSeconds float64, now func() time.Time) *Census {
	return &Census{
		start:              now(),
		calibrationSeconds: calibrationSeconds,
		actives:            make(map[string]map[string][]spawnRecord),
		rankCache:          make(map[string]map[string]int),
		globalRank:         make(map[string]int),
		now:                now,
	}
}

// State reports Calibrating until calibrationSeconds have elapsed since
// construction, then Ready permanently.
func (c *Census) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Census) stateLocked() State {
	if c.now().Sub(c.start).Seconds() >= c.calibrationSeconds {
		return Ready
	}
	return Calibrating
}

// AddSpawn records a single active spawn for (speciesID, form) in area.
// In global mode the caller (WebhookFilter) passes GlobalAreaName
// itself; Census just stores whatever
// area string it is given, matching §4.2's "area is coerced" rule
// which is a filter-side decision, not a census-side one.
func (c *Census) AddSpawn(speciesKey, area string, despawnAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byArea, ok := c.actives[area]
	if !ok {
		byArea = make(map[string][]spawnRecord)
		c.actives[area] = byArea
	}
	byArea[speciesKey] = append(byArea[speciesKey], spawnRecord{despawnAt: despawnAt})
}

// GlobalAreaName is exported so callers can coerce area themselves
// per §4.2's "area_for_lookup" rule without guessing the literal.
const GlobalAreaName = globalArea

// RarityRank implements the lookup order of §4.2: exact "{id}:{form}",
// then any-form "{id}", then any cached key starting with "{id}:".
// Returns (rank, true) or (0, false) if the species has never been seen.
func (c *Census) RarityRank(speciesID int, form int, hasForm bool, area string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exactKey := fmt.Sprintf("%d", speciesID)
	if hasForm && form != 0 {
		exactKey = fmt.Sprintf("%d:%d", speciesID, form)
	}
	anyFormKey := fmt.Sprintf("%d", speciesID)
	prefix := fmt.Sprintf("%d:", speciesID)

	ranks, haveArea := c.rankCache[area]
	actives, haveActives := c.actives[area]

	if haveArea {
		if r, ok := ranks[exactKey]; ok {
			return r, true
		}
		if r, ok := ranks[anyFormKey]; ok {
			return r, true
		}
		for k, r := range ranks {
			if strings.HasPrefix(k, prefix) {
				return r, true
			}
		}
	}

	if haveActives {
		if _, ok := actives[exactKey]; ok {
			return len(ranks) + pendingRankOffset, true
		}
		if _, ok := actives[anyFormKey]; ok {
			return len(ranks) + pendingRankOffset, true
		}
		for k := range actives {
			if strings.HasPrefix(k, prefix) {
				return len(ranks) + pendingRankOffset, true
			}
		}
	}

	return 0, false
}

// CleanupExpired drops multiset elements whose despawn has passed, and
// deletes species/areas left empty (§3 CensusEntry cleanup rule).
func (c *Census) CleanupExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for area, species := range c.actives {
		for key, records := range species {
			kept := records[:0]
			for _, r := range records {
				if r.despawnAt.After(now) {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				delete(species, key)
			} else {
				species[key] = kept
			}
		}
		if len(species) == 0 {
			delete(c.actives, area)
		}
	}
}

type rankable struct {
	area, key string
	count     int
	seq       int // position in the sorted (area, key) walk; SliceStable keeps this order on equal counts
}

// Recalculate computes, per area, an ascending-by-count rank (rarest =
// 1) and a single global rank across all (species, area) pairs (§4.2).
func (c *Census) Recalculate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	newRankCache := make(map[string]map[string]int, len(c.actives))
	var allEntries []rankable
	seq := 0

	areas := sortedKeys(c.actives)
	for _, area := range areas {
		species := c.actives[area]
		entries := make([]rankable, 0, len(species))
		keys := sortedStringKeys(species)
		for _, key := range keys {
			entries = append(entries, rankable{area: area, key: key, count: len(species[key]), seq: seq})
			allEntries = append(allEntries, rankable{area: area, key: key, count: len(species[key]), seq: seq})
			seq++
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].count < entries[j].count })
		ranks := make(map[string]int, len(entries))
		for i, e := range entries {
			ranks[e.key] = i + 1
		}
		newRankCache[area] = ranks
	}
	c.rankCache = newRankCache

	sort.SliceStable(allEntries, func(i, j int) bool { return allEntries[i].count < allEntries[j].count })
	c.globalRank = make(map[string]int, len(allEntries))
	for i, e := range allEntries {
		c.globalRank[e.area+":"+e.key] = i + 1
	}
}

func sortedKeys(m map[string]map[string][]spawnRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string][]spawnRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AreaRanks returns a snapshot of the per-area rank table, for the
// GET /rarity endpoint (§6.1).
func (c *Census) AreaRanks(area string, limit int) map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ranks, ok := c.rankCache[area]
	if !ok {
		return map[string]int{}
	}
	out := make(map[string]int, len(ranks))
	for k, v := range ranks {
		out[k] = v
	}
	if limit <= 0 || limit >= len(out) {
		return out
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return out[keys[i]] < out[keys[j]] })
	trimmed := make(map[string]int, limit)
	for _, k := range keys[:limit] {
		trimmed[k] = out[k]
	}
	return trimmed
}
