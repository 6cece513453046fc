package geoutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMeters_ZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0, HaversineMeters(46.5, 6.6, 46.5, 6.6), 1e-6)
}

func TestHaversineMeters_Symmetric(t *testing.T) {
	a := HaversineMeters(46.5, 6.6, 47.1, 7.2)
	b := HaversineMeters(47.1, 7.2, 46.5, 6.6)
	assert.InDelta(t, a, b, 0.001, "distance(a,b) must equal distance(b,a) within 1mm")
}

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// One degree of latitude is approximately 111.195 km.
	d := HaversineMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 500)
}

func TestRoundTo5(t *testing.T) {
	assert.Equal(t, 46.50123, RoundTo5(46.501234567))
	assert.True(t, math.Abs(RoundTo5(6.6)-6.6) < 1e-9)
}
