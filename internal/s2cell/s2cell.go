// Package s2cell derives level-15 S2 cell tokens and the 9-point
// scout grid described in spec.md §4.5/§9. No repo in the retrieved
// corpus carries an S2 dependency (see SPEC_FULL.md); github.com/golang/geo
// is the standard Go S2 implementation and is named, not grounded.
package s2cell

import (
	"github.com/golang/geo/s2"
)

// Level is the S2 cell level used to group nearby_cell sightings (§4.5).
const Level = 15

// TokenForLatLng returns the level-15 S2 cell token containing (lat, lon).
func TokenForLatLng(lat, lon float64) string {
	return cellIDForLatLng(lat, lon).ToToken()
}

func cellIDForLatLng(lat, lon float64) s2.CellID {
	leaf := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon))
	return leaf.Parent(Level)
}

// GridPoint is one point of the 9-point honeycomb scout grid.
type GridPoint struct {
	Lat, Lon float64
}

// NinePointGrid returns the center of the level-15 cell containing
// (lat, lon) plus 8 offsets taken from the cell's corners and edge
// midpoints, per §4.5's "centre + 8 offsets from the cell's corner
// and edge midpoints" description.
func NinePointGrid(lat, lon float64) []GridPoint {
	cell := s2.CellFromCellID(cellIDForLatLng(lat, lon))

	center := s2.LatLngFromPoint(cell.Center())
	points := make([]GridPoint, 0, 9)
	points = append(points, GridPoint{Lat: center.Lat.Degrees(), Lon: center.Lng.Degrees()})

	corners := make([]s2.Point, 4)
	for i := 0; i < 4; i++ {
		corners[i] = cell.Vertex(i)
	}
	for i := 0; i < 4; i++ {
		ll := s2.LatLngFromPoint(corners[i])
		points = append(points, GridPoint{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()})
	}
	for i := 0; i < 4; i++ {
		mid := s2.Point{Vector: corners[i].Add(corners[(i+1)%4].Vector).Normalize()}
		ll := s2.LatLngFromPoint(mid)
		points = append(points, GridPoint{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()})
	}

	return points
}
