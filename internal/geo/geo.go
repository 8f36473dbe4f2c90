// Package geo computes great-circle distances for geofenced check-ins.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceTo returns the haversine distance from p to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	return DistanceMeters(p.Lat, p.Lon, q.Lat, q.Lon)
}

// DistanceMeters returns the great-circle distance between two coordinates given in degrees.
// Inputs are not range checked.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	// canonical argument order keeps the result bit-for-bit symmetric
	if lat1 > lat2 || (lat1 == lat2 && lon1 > lon2) {
		lat1, lon1, lat2, lon2 = lat2, lon2, lat1, lon1
	}

	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
