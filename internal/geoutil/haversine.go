// Package geoutil holds small geographic helpers shared across the
// queue, geofence resolver and scout dispatcher. The haversine formula
// below is adapted from the teacher's models.GeoPoint.DistanceTo, which
// computed kilometers for its own boundary-tracking use; this version
// returns meters to match §4.3's COORDINATE_MATCH_THRESHOLD_M.
package geoutil

import "math"

const earthRadiusM = 6371000.0

// HaversineMeters returns the great-circle distance between two
// (lat, lon) points in meters. Symmetric and zero for a==b (§8).
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// RoundTo5 rounds a coordinate to 5 decimal places, as required by the
// Scout Service v2 request body (§6.2).
func RoundTo5(v float64) float64 {
	const factor = 100000.0
	return math.Round(v*factor) / factor
}
