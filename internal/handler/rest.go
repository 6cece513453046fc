package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/rarity"
	"github.com/lazyscout/lazyscout/internal/sighting"
)

const (
	defaultQueueCount = 10
	maxQueueCount     = 100
	defaultRarityLimit = 100
	maxRarityLimit    = 500
)

// restHandler implements the §6.1 HTTP server surface.
type restHandler struct {
	cfg    *config.Config
	queue  *queue.PriorityQueue
	census *rarity.Census
	filter filterer
}

// filterer is the subset of webhookfilter.Filter the handler needs,
// kept as an interface so handler tests can substitute a fake.
type filterer interface {
	ScoutFeed(s sighting.Sighting)
	CensusFeed(s sighting.Sighting)
}

func newRESTHandler(cfg *config.Config, q *queue.PriorityQueue, census *rarity.Census, filter filterer) *restHandler {
	return &restHandler{cfg: cfg, queue: q, census: census, filter: filter}
}

// postWebhook implements POST /webhook (§6.1): body is a single
// {type, message} object or an array of them; only type="pokemon"
// objects reach scoutFeed. Malformed bodies still return 200 per §7 —
// that policy applies to the sightings *within* a well-formed body,
// but a body that cannot be parsed at all returns 200 too, so a
// feeder never retries a webhook this service has already accepted.
func (h *restHandler) postWebhook(c *gin.Context) {
	h.ingest(c, h.filter.ScoutFeed)
}

// postWebhookCensus implements POST /webhook/census (§6.1).
func (h *restHandler) postWebhookCensus(c *gin.Context) {
	h.ingest(c, h.filter.CensusFeed)
}

func (h *restHandler) ingest(c *gin.Context, deliver func(sighting.Sighting)) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
		return
	}

	sightings, err := sighting.ParseBody(body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
		return
	}

	for _, s := range sightings {
		deliver(s)
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// health implements GET /health.
func (h *restHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// stats implements GET /stats (§8 round-trip properties reference
// these counters: stats.matched[seen_type][species] etc.)
func (h *restHandler) stats(c *gin.Context) {
	snapshot := h.queue.StatsSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"queue_len":     h.queue.Len(),
		"active_scouts": h.queue.ActiveScouts(),
		"census_state":  censusStateLabel(h.census.State()),
		"queued":        snapshot.Queued,
		"matched":       snapshot.Matched,
		"early_iv":      snapshot.EarlyIV,
		"timeout":       snapshot.Timeout,
	})
}

func censusStateLabel(s rarity.State) string {
	if s == rarity.Ready {
		return "ready"
	}
	return "calibrating"
}

// queueEntryView is the JSON shape for GET /queue entries; internal
// lifecycle flags are deliberately not exposed.
type queueEntryView struct {
	Key         string `json:"key"`
	SpeciesID   int    `json:"species_id"`
	Form        int    `json:"form,omitempty"`
	Area        string `json:"area"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	SeenType    string `json:"seen_type"`
	ListType    string `json:"list_type"`
	Priority    int    `json:"priority"`
	S2CellToken string `json:"s2_cell_token,omitempty"`
}

// getQueue implements GET /queue?count=N (§6.1).
func (h *restHandler) getQueue(c *gin.Context) {
	n := intQuery(c, "count", defaultQueueCount)
	if n <= 0 {
		n = defaultQueueCount
	}
	if n > maxQueueCount {
		n = maxQueueCount
	}

	entries := h.queue.Peek(n)
	views := make([]queueEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, queueEntryView{
			Key:         e.Key,
			SpeciesID:   e.SpeciesID,
			Form:        e.Form,
			Area:        e.Area,
			Lat:         e.Lat,
			Lon:         e.Lon,
			SeenType:    string(e.SeenType),
			ListType:    string(e.ListType),
			Priority:    e.Priority,
			S2CellToken: e.S2CellToken,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": views})
}

// getRarity implements GET /rarity?area=A&limit=N (§6.1).
func (h *restHandler) getRarity(c *gin.Context) {
	area := c.Query("area")
	if area == "" {
		area = rarity.GlobalAreaName
	}
	limit := intQuery(c, "limit", defaultRarityLimit)
	if limit <= 0 {
		limit = defaultRarityLimit
	}
	if limit > maxRarityLimit {
		limit = maxRarityLimit
	}

	c.JSON(http.StatusOK, gin.H{"area": area, "ranks": h.census.AreaRanks(area, limit)})
}

// getConfig implements GET /config: a summary of active settings,
// never the secrets/credentials loaded from the environment.
func (h *restHandler) getConfig(c *gin.Context) {
	rt := h.cfg.Runtime()
	c.JSON(http.StatusOK, gin.H{
		"environment":            h.cfg.Environment,
		"priority_list":          rt.PriorityList,
		"cell_list":              rt.CellList,
		"iv_threshold":           rt.IVThreshold,
		"cell_threshold":         rt.CellThreshold,
		"rarity_enabled":         rt.RarityEnabled,
		"calibration_minutes":    rt.CalibrationMinutes,
		"ranking_interval":       rt.RankingInterval.String(),
		"cleanup_interval":       rt.CleanupInterval.String(),
		"timeout_iv":             rt.TimeoutIV.String(),
		"concurrency_scout":      rt.ConcurrencyScout,
		"filter_with_koji":       rt.FilterWithKoji,
		"geofence_expire":        rt.GeofenceExpireSeconds.String(),
		"geofence_refresh":       rt.GeofenceRefreshSeconds.String(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
