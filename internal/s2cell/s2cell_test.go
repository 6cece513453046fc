package s2cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenForLatLng_Stable(t *testing.T) {
	a := TokenForLatLng(40.0, -120.0)
	b := TokenForLatLng(40.0, -120.0)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestTokenForLatLng_DistinctCellsDistinctTokens(t *testing.T) {
	a := TokenForLatLng(40.0, -120.0)
	b := TokenForLatLng(10.0, 50.0)
	assert.NotEqual(t, a, b)
}

func TestTokenForLatLng_NearbyPointsShareCell(t *testing.T) {
	// A few meters apart, well within a level-15 cell's footprint.
	a := TokenForLatLng(40.00000, -120.00000)
	b := TokenForLatLng(40.00001, -120.00001)
	assert.Equal(t, a, b)
}

func TestNinePointGrid_ReturnsNineDistinctPoints(t *testing.T) {
	points := NinePointGrid(40.0, -120.0)
	require.Len(t, points, 9)

	seen := make(map[GridPoint]struct{}, 9)
	for _, p := range points {
		seen[p] = struct{}{}
	}
	assert.Len(t, seen, 9, "the centre and 8 offsets must all be distinct")
}

func TestNinePointGrid_CentreFallsInSameCellAsInput(t *testing.T) {
	points := NinePointGrid(40.0, -120.0)
	centre := points[0]

	assert.Equal(t, TokenForLatLng(40.0, -120.0), TokenForLatLng(centre.Lat, centre.Lon))
}
