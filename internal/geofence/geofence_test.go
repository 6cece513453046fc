package geofence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazyscout/lazyscout/pkg/utils"
)

func squareFeatureCollection(t *testing.T, name string, ring [][2]float64) []byte {
	t.Helper()
	coords := make([][]float64, 0, len(ring))
	for _, p := range ring {
		coords = append(coords, []float64{p[0], p[1]})
	}
	fc := map[string]interface{}{
		"type": "FeatureCollection",
		"features": []map[string]interface{}{
			{
				"type":       "Feature",
				"properties": map[string]interface{}{"name": name},
				"geometry": map[string]interface{}{
					"type":        "Polygon",
					"coordinates": [][][]float64{coords},
				},
			},
		},
	}
	body, err := json.Marshal(fc)
	require.NoError(t, err)
	return body
}

func square(t *testing.T, name string) []byte {
	return squareFeatureCollection(t, name, [][2]float64{
		{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0},
	})
}

func TestResolver_RefreshAndResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(square(t, "zone-a"))
	}))
	defer srv.Close()

	r := New(srv.URL, "proj", "", time.Second, nil, utils.NewLogger("error", "text"))
	require.NoError(t, r.Refresh(context.Background()))

	name, ok := r.Resolve(5, 5)
	require.True(t, ok)
	assert.Equal(t, "zone-a", name)

	_, ok = r.Resolve(50, 50)
	assert.False(t, ok)
}

func TestResolver_NearPointsStraddlingBoundaryResolveIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(square(t, "zone-a"))
	}))
	defer srv.Close()

	r := New(srv.URL, "proj", "", time.Second, nil, utils.NewLogger("error", "text"))
	require.NoError(t, r.Refresh(context.Background()))

	// These two points are ~22m apart — well within a single geohash
	// precision-7 bucket (~153m x 152m) — but fall on opposite sides of
	// the zone-a boundary at lon=10. A resolve cache bucketed by
	// geohash would wrongly return the same answer for both.
	inside, ok := r.Resolve(5, 9.9999)
	require.True(t, ok)
	assert.Equal(t, "zone-a", inside)

	_, ok = r.Resolve(5, 10.0001)
	assert.False(t, ok, "a point just outside the polygon must not inherit a nearby point's cached answer")
}

func TestResolver_EmptyAreaSetResolvesFalse(t *testing.T) {
	r := New("", "", "", time.Second, nil, utils.NewLogger("error", "text"))
	_, ok := r.Resolve(1, 1)
	assert.False(t, ok)
}

func TestResolver_RefreshRetainsPreviousSetOnFetchError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write(square(t, "zone-a"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(srv.URL, "proj", "", time.Second, nil, utils.NewLogger("error", "text"))
	require.NoError(t, r.Refresh(context.Background()))

	err := r.Refresh(context.Background())
	assert.Error(t, err)

	name, ok := r.Resolve(5, 5)
	require.True(t, ok, "a failed refresh must not discard the previous area set")
	assert.Equal(t, "zone-a", name)
}

func TestUnmarshalFeatureCollection_DataWrapper(t *testing.T) {
	inner := square(t, "zone-b")
	wrapped, err := json.Marshal(map[string]json.RawMessage{"data": inner})
	require.NoError(t, err)

	fc, err := unmarshalFeatureCollection(wrapped)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
}

func TestRefresh_RepairsUnclosedRing(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{
		"type": "FeatureCollection",
		"features": []map[string]interface{}{
			{
				"type":       "Feature",
				"properties": map[string]interface{}{"name": "open-ring"},
				"geometry": map[string]interface{}{
					"type": "Polygon",
					"coordinates": [][][]float64{{
						{0, 0}, {0, 10}, {10, 10}, {10, 0},
					}},
				},
			},
		},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	r := New(srv.URL, "proj", "", time.Second, nil, utils.NewLogger("error", "text"))
	require.NoError(t, r.Refresh(context.Background()))

	name, ok := r.Resolve(5, 5)
	require.True(t, ok)
	assert.Equal(t, "open-ring", name)
}
