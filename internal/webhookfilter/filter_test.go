package webhookfilter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/geofence"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/rarity"
	"github.com/lazyscout/lazyscout/internal/s2cell"
	"github.com/lazyscout/lazyscout/internal/sighting"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

func loadTestConfig(t *testing.T, yamlBody string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	os.Setenv("SERVER_ADDRESS", ":0")
	t.Cleanup(func() { os.Unsetenv("SERVER_ADDRESS") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newTestFilter(t *testing.T, yamlBody string) (*Filter, *queue.PriorityQueue, *rarity.Census) {
	cfg := loadTestConfig(t, yamlBody)
	q := queue.New(cfg.Runtime().ConcurrencyScout)
	census := rarity.New(float64(cfg.Runtime().CalibrationMinutes) * 60)
	resolver := geofence.New("", "", "", time.Second, nil, utils.NewLogger("error", "text"))
	return New(cfg, q, census, resolver, utils.NewLogger("error", "text")), q, census
}

// Scenario 1: priority-list wild capture, then a matching IV sighting.
func TestScenario_PriorityListWildCapture(t *testing.T) {
	f, q, _ := newTestFilter(t, `
priority_list: ["25", "150:0"]
filter_with_koji: false
`)

	f.ScoutFeed(sighting.Sighting{
		SpeciesID:   25,
		Lat:         1.0,
		Lon:         2.0,
		EncounterID: "E1",
		SeenType:    sighting.SeenWild,
		DespawnAt:   time.Now().Add(5 * time.Minute).Unix(),
		HasDespawn:  true,
	})

	require.Equal(t, 1, q.Len())
	entries := q.Peek(10)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Priority)
	assert.Equal(t, queue.ListPriority, entries[0].ListType)
	assert.Equal(t, "GLOBAL", entries[0].Area)

	// Dispatch the entry, as the dispatcher would, so the IV sighting
	// closes out an outstanding scout and counts as matched, not early_iv.
	require.NotNil(t, q.NextForScout())

	f.ScoutFeed(sighting.Sighting{
		SpeciesID:   25,
		Lat:         1.0,
		Lon:         2.0,
		EncounterID: "E1",
		SeenType:    sighting.SeenWild,
		IVAttack:    15,
		IVDefense:   15,
		IVStamina:   15,
		HasIV:       true,
	})

	assert.Equal(t, 0, q.Len())
	snapshot := q.StatsSnapshot()
	assert.Equal(t, int64(1), snapshot.Matched["wild"]["25"])
}

// Scenario 2: coordinate-proximity match within 70m, different encounter_id.
func TestScenario_CoordinateProximityMatch(t *testing.T) {
	f, q, _ := newTestFilter(t, `
priority_list: ["25"]
filter_with_koji: false
`)

	f.ScoutFeed(sighting.Sighting{
		SpeciesID:   25,
		Lat:         46.5,
		Lon:         6.6,
		EncounterID: "E1",
		SeenType:    sighting.SeenWild,
		DespawnAt:   time.Now().Add(5 * time.Minute).Unix(),
		HasDespawn:  true,
	})
	require.Equal(t, 1, q.Len())

	f.ScoutFeed(sighting.Sighting{
		SpeciesID:   25,
		Lat:         46.50054, // ~60m away
		Lon:         6.6,
		EncounterID: "E2",
		SeenType:    sighting.SeenWild,
		IVAttack:    10, IVDefense: 10, IVStamina: 10, HasIV: true,
	})

	assert.Equal(t, 0, q.Len())
}

// Scenario 3: cell-list scout, token populated.
func TestScenario_CellListScout(t *testing.T) {
	f, q, _ := newTestFilter(t, `
cell_list: ["132"]
filter_with_koji: false
`)

	f.ScoutFeed(sighting.Sighting{
		SpeciesID:  132,
		Lat:        40.0,
		Lon:        -120.0,
		SeenType:   sighting.SeenNearbyCell,
		DespawnAt:  time.Now().Add(10 * time.Minute).Unix(),
		HasDespawn: true,
	})

	require.Equal(t, 1, q.Len())
	entries := q.Peek(10)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Priority)
	assert.Equal(t, queue.ListCell, entries[0].ListType)
	assert.NotEmpty(t, entries[0].S2CellToken)
	assert.Equal(t, s2cell.TokenForLatLng(40.0, -120.0), entries[0].S2CellToken)
}

// Scenario 4: rarity fallback suppressed during calibration.
func TestScenario_RarityFallbackDuringCalibration(t *testing.T) {
	f, q, census := newTestFilter(t, `
rarity_enabled: true
calibration_minutes: 5
filter_with_koji: false
`)

	for i := 0; i < 100; i++ {
		f.CensusFeed(sighting.Sighting{SpeciesID: 10, Lat: 1, Lon: 1, SeenType: sighting.SeenOther})
	}

	f.ScoutFeed(sighting.Sighting{SpeciesID: 10, Lat: 1, Lon: 1, SeenType: sighting.SeenWild, EncounterID: "E1"})
	assert.Equal(t, 0, q.Len(), "rarity path must stay closed during calibration")

	census.Recalculate()
	_ = census // still Calibrating by wall clock; real transition is time-based.
}

// Scenario 5 (timeout) and 6 (global tier ordering) are exercised at
// the queue level in internal/queue, since they are pure queue/janitor
// invariants independent of the filter's classification logic.
