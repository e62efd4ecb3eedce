// Package geo provides the great-circle math behind the delivery geofence.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is a point on Earth in decimal degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// WithinDeliveryRadius reports whether dest is deliverable from hq.
// The boundary is inclusive: a destination at exactly maxKm is deliverable.
func WithinDeliveryRadius(hq, dest Coordinate, maxKm float64) bool {
	return Distance(hq, dest) <= maxKm
}
