// Package geofence implements the GeofenceResolver of spec.md §4.1:
// named polygons refreshed on a timer, resolving (lat, lon) to an area
// name. Point-in-polygon and GeoJSON decoding are grounded on
// aurel42-phileasgo's pkg/geo (orb/planar + orb/geojson). Resolve has
// no result cache: bucketing lookups (e.g. by geohash) would make the
// answer depend on which bucket a point falls in rather than on the
// polygon set alone, and orb/planar's ring test is already cheap
// enough to run on every call.
package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/redis/go-redis/v9"

	"github.com/lazyscout/lazyscout/pkg/utils"
)

// area is a named polygon (or multipolygon) ready for containment tests.
type area struct {
	name string
	geom orb.Geometry
}

// FetchCache is the optional warm-start cache for the raw GeoJSON bytes
// fetched from the koji-style source. It is NOT used for resolve() —
// the in-memory polygon set is always authoritative — it only saves a
// redundant HTTP round trip across restarts (see SPEC_FULL.md: this
// does not reintroduce the durability the spec's Non-goals exclude,
// because resolve() never blocks on it and never returns stale data
// because of it).
type FetchCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisFetchCache adapts a *redis.Client to FetchCache.
type RedisFetchCache struct {
	Client *redis.Client
}

func (r *RedisFetchCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *RedisFetchCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// Resolver maps coordinates to named areas, per §4.1.
type Resolver struct {
	httpClient *http.Client
	baseURL    string
	project    string
	bearer     string
	fetchCache FetchCache
	logger     *utils.Logger

	areasMu sync.RWMutex
	areas   []area
}

// New creates a Resolver. fetchCache may be nil to disable the optional
// Redis warm-start cache.
func New(baseURL, project, bearer string, timeout time.Duration, fetchCache FetchCache, logger *utils.Logger) *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		project:    project,
		bearer:     bearer,
		fetchCache: fetchCache,
		logger:     logger,
	}
}

// Resolve returns the name of the first polygon containing the point,
// or ("", false). An empty area set always resolves to ("", false);
// the soft TTL mentioned in §4.1 is purely informational and never
// causes Resolve to return empty by itself. Resolve is a pure function
// of the current area set and the exact coordinates given it — no
// cache sits between the two, so two points on either side of a
// boundary never collide on a shared answer.
func (r *Resolver) Resolve(lat, lon float64) (string, bool) {
	point := orb.Point{lon, lat}

	r.areasMu.RLock()
	areas := r.areas
	r.areasMu.RUnlock()

	for _, a := range areas {
		if containsPoint(a.geom, point) {
			return a.name, true
		}
	}
	return "", false
}

// Refresh fetches the GeoJSON FeatureCollection, filters to Polygon/
// MultiPolygon features, repairs invalid rings, and atomically swaps
// the area set. On fetch error the previous set is retained (§4.1).
func (r *Resolver) Refresh(ctx context.Context) error {
	data, err := r.fetch(ctx)
	if err != nil {
		r.logger.WithField("error", err.Error()).Warn("geofence refresh failed, retaining previous set")
		return err
	}

	fc, err := unmarshalFeatureCollection(data)
	if err != nil {
		r.logger.WithField("error", err.Error()).Warn("geofence refresh: invalid GeoJSON, retaining previous set")
		return err
	}

	next := make([]area, 0, len(fc.Features))
	for _, f := range fc.Features {
		geom := repairGeometry(f.Geometry)
		if geom == nil {
			continue
		}
		name := featureName(f)
		if name == "" {
			continue
		}
		next = append(next, area{name: name, geom: geom})
	}

	r.areasMu.Lock()
	r.areas = next
	r.areasMu.Unlock()

	r.logger.WithField("areas", len(next)).Info("geofence set refreshed")
	return nil
}

func (r *Resolver) fetch(ctx context.Context) ([]byte, error) {
	cacheKey := "geofence:" + r.project

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/geofence/feature-collection/%s", r.baseURL, r.project), nil)
	if err != nil {
		return nil, err
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if cached := r.tryFetchCache(ctx, cacheKey); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("fetch geofence source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if cached := r.tryFetchCache(ctx, cacheKey); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("geofence source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read geofence response: %w", err)
	}

	if r.fetchCache != nil {
		_ = r.fetchCache.Set(ctx, cacheKey, body, 24*time.Hour)
	}
	return body, nil
}

func (r *Resolver) tryFetchCache(ctx context.Context, key string) []byte {
	if r.fetchCache == nil {
		return nil
	}
	cached, err := r.fetchCache.Get(ctx, key)
	if err != nil || len(cached) == 0 {
		return nil
	}
	r.logger.Warn("geofence source unreachable, serving last cached fetch")
	return cached
}

// unmarshalFeatureCollection accepts either a bare FeatureCollection or
// one nested under a "data" key (§6.3).
func unmarshalFeatureCollection(data []byte) (*geojson.FeatureCollection, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		return fc, nil
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || len(wrapper.Data) == 0 {
		return nil, fmt.Errorf("decode geofence feature collection")
	}
	return geojson.UnmarshalFeatureCollection(wrapper.Data)
}

func featureName(f *geojson.Feature) string {
	if name, ok := f.Properties["name"].(string); ok {
		return name
	}
	if id, ok := f.ID.(string); ok {
		return id
	}
	return ""
}

// repairGeometry keeps only Polygon/MultiPolygon geometries, closing
// unclosed rings and dropping degenerate ones. This stands in for the
// "zero-width buffer" repair of §4.1: orb has no buffer primitive, so
// repair here means well-formedness, not self-intersection removal —
// see DESIGN.md.
func repairGeometry(geom orb.Geometry) orb.Geometry {
	switch g := geom.(type) {
	case orb.Polygon:
		repaired := repairPolygon(g)
		if repaired == nil {
			return nil
		}
		return repaired
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(g))
		for _, poly := range g {
			if repaired := repairPolygon(poly); repaired != nil {
				out = append(out, repaired)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func repairPolygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(poly))
	for _, ring := range poly {
		ring = closeRing(ring)
		if len(ring) < 4 {
			continue
		}
		out = append(out, ring)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func closeRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return ring
	}
	return append(ring, first)
}

func containsPoint(geom orb.Geometry, point orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		for _, poly := range g {
			if planar.PolygonContains(poly, point) {
				return true
			}
		}
	}
	return false
}

// RunBackground refreshes the area set every refreshPeriod until ctx
// is canceled (§4.1). expirePeriod is informational only, logged as a
// staleness warning if a refresh has not succeeded within that window.
func (r *Resolver) RunBackground(ctx context.Context, refreshPeriod, expirePeriod time.Duration) {
	ticker := time.NewTicker(refreshPeriod)
	defer ticker.Stop()

	lastSuccess := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				if time.Since(lastSuccess) > expirePeriod {
					r.logger.Warn("geofence set has exceeded its soft TTL without a successful refresh")
				}
				continue
			}
			lastSuccess = time.Now()
		}
	}
}
