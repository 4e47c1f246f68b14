package engine

import "math"

// =============================================================================
// GEO - Great-circle distance for resource search
// =============================================================================

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between two coordinates in
// kilometers (haversine). Callers must reject NaN/out-of-range coordinates
// before invocation; the function itself has no failure modes.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

// DistanceTo returns the distance in kilometers to another coordinate.
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return Distance(c.Latitude, c.Longitude, other.Latitude, other.Longitude)
}
