// Package webhookfilter implements the dual webhook filter of spec.md
// §4.4: scoutFeed classifies and enqueues IV-less sightings or closes
// out matches for IV-bearing ones; censusFeed feeds the rarity census.
// Structurally this replaces the teacher's internal/filter package
// (continuous flight-track anomaly filtering) — a different domain;
// see DESIGN.md for why that package's algorithms have no home here,
// while its "pluggable, configurable classification pipeline" shape is
// what this package's scoutFeed/censusFeed split is modeled on.
package webhookfilter

import (
	"time"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/geofence"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/rarity"
	"github.com/lazyscout/lazyscout/internal/s2cell"
	"github.com/lazyscout/lazyscout/internal/sighting"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// defaultDespawnHorizon is the Open Question default of §9: an entry
// with no despawn_at and no priority override gets now+600s instead of
// being rejected.
const defaultDespawnHorizon = 600 * time.Second

// Filter is the WebhookFilter of §4.4.
type Filter struct {
	cfg      *config.Config
	queue    *queue.PriorityQueue
	census   *rarity.Census
	resolver *geofence.Resolver
	logger   *utils.Logger

	now func() time.Time
}

// New creates a Filter.
func New(cfg *config.Config, q *queue.PriorityQueue, census *rarity.Census, resolver *geofence.Resolver, logger *utils.Logger) *Filter {
	return &Filter{cfg: cfg, queue: q, census: census, resolver: resolver, logger: logger, now: time.Now}
}

// ScoutFeed is the scoutFeed entry point of §4.4.
func (f *Filter) ScoutFeed(s sighting.Sighting) {
	if s.HasIV {
		f.matchIV(s)
		return
	}
	f.enqueue(s)
}

// CensusFeed is the censusFeed entry point of §4.4.
func (f *Filter) CensusFeed(s sighting.Sighting) {
	now := f.now()
	if s.HasDespawn && s.DespawnAt <= now.Unix() {
		return
	}

	rt := f.cfg.Runtime()
	area := rarity.GlobalAreaName
	if rt.FilterWithKoji {
		resolved, ok := f.resolver.Resolve(s.Lat, s.Lon)
		if !ok {
			return
		}
		area = resolved
	}

	despawnAt := now.Add(defaultDespawnHorizon)
	if s.HasDespawn {
		despawnAt = time.Unix(s.DespawnAt, 0)
	}
	f.census.AddSpawn(s.SpeciesKey(), area, despawnAt)
}

// enqueue implements the has_iv=false path of §4.4.
func (f *Filter) enqueue(s sighting.Sighting) {
	switch s.SeenType {
	case sighting.SeenWild, sighting.SeenNearbyStop, sighting.SeenNearbyCell:
	default:
		return
	}

	rt := f.cfg.Runtime()

	var (
		priority    int
		listType    queue.ListType
		s2Token     string
		area        string
		areaOK      bool
		areaWanted  bool
		ok          bool
	)

	if s.SeenType == sighting.SeenNearbyCell {
		pos, found := rt.CellListPositions()[s.SpeciesKey()]
		if !found {
			return
		}
		priority = pos
		listType = queue.ListCell
		s2Token = s2cell.TokenForLatLng(s.Lat, s.Lon)
		ok = true
	} else {
		if pos, found := rt.PriorityListPositions()[s.SpeciesKey()]; found {
			priority = pos
			listType = queue.ListPriority
			areaWanted = true
			ok = true
		} else if rt.RarityEnabled {
			if f.census.State() != rarity.Ready {
				return
			}

			areaWanted = true
			area, areaOK = f.resolveAreaForRarity(s, rt)
			if rt.FilterWithKoji && !areaOK {
				return
			}

			rank, found := f.census.RarityRank(s.SpeciesID, s.Form, s.HasForm, area)
			switch {
			case !found:
				priority = 1000
				listType = queue.ListRarity
				ok = true
			case rank <= rt.IVThreshold:
				priority = 1000 + rank
				listType = queue.ListRarity
				ok = true
			default:
				return
			}
		} else {
			return
		}
	}

	if !ok {
		return
	}

	if areaWanted && area == "" {
		resolved, found := f.resolveAreaForRarity(s, rt)
		if rt.FilterWithKoji && !found {
			return
		}
		area = resolved
	}

	despawnAt := s.DespawnAt
	hasDespawn := s.HasDespawn
	if !hasDespawn {
		despawnAt = f.now().Add(defaultDespawnHorizon).Unix()
		hasDespawn = true
	}

	entry := &queue.QueueEntry{
		Key:          queue.DeriveKey(s.EncounterID, s.SpawnpointID, s.SpeciesID, s.Lat, s.Lon),
		SpeciesID:    s.SpeciesID,
		Form:         s.Form,
		HasForm:      s.HasForm,
		Area:         area,
		Lat:          s.Lat,
		Lon:          s.Lon,
		SpawnpointID: s.SpawnpointID,
		EncounterID:  s.EncounterID,
		DespawnAt:    despawnAt,
		HasDespawn:   hasDespawn,
		SeenType:     s.SeenType,
		S2CellToken:  s2Token,
		ListType:     listType,
		Priority:     priority,
	}
	f.queue.Add(entry)
}

func (f *Filter) resolveAreaForRarity(s sighting.Sighting, rt *config.Runtime) (string, bool) {
	if !rt.FilterWithKoji {
		return rarity.GlobalAreaName, true
	}
	return f.resolver.Resolve(s.Lat, s.Lon)
}

// matchIV implements the has_iv=true path of §4.4.
func (f *Filter) matchIV(s sighting.Sighting) {
	rt := f.cfg.Runtime()

	_, onPriorityList := rt.PriorityListPositions()[s.SpeciesKey()]
	_, onCellList := rt.CellListPositions()[s.SpeciesKey()]
	if !onPriorityList && !onCellList && !rt.RarityEnabled {
		return
	}

	if rt.FilterWithKoji {
		if _, ok := f.resolver.Resolve(s.Lat, s.Lon); !ok {
			return
		}
	}

	entry := f.queue.RemoveByMatch(s.EncounterID, s.Lat, s.Lon)
	if entry == nil {
		token := s2cell.TokenForLatLng(s.Lat, s.Lon)
		entry = f.queue.RemoveByCellMatch(s.SpeciesID, s.Form, s.HasForm, token)
	}
	if entry == nil {
		return
	}

	if entry.InFlight() || entry.AwaitingMatch() {
		f.queue.RecordMatched(entry)
	} else {
		f.queue.RecordEarlyIV(entry)
	}
}
