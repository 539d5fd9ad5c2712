// Package geo holds the pure distance, progress and speed helpers used by the
// position pipeline. Nothing here keeps state.
package geo

import (
	"math"
	"time"
)

const EarthRadiusKm = 6371.0

// DefaultArrivalRadiusMeters is the radius used when no configuration overrides it.
const DefaultArrivalRadiusMeters = 100.0

type Point struct {
	Lat float64
	Lng float64
}

// TimedPoint is a sample in a track.
type TimedPoint struct {
	Lat  float64
	Lng  float64
	Time time.Time
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters returns the haversine great-circle distance between two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLng*sinLng
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * 1000 * c
}

func Distance(a, b Point) float64 {
	return DistanceMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsWithinRadius is inclusive: a point exactly radiusMeters away counts.
func IsWithinRadius(pos, dest Point, radiusMeters float64) bool {
	return Distance(pos, dest) <= radiusMeters
}

// Progress returns the travelled fraction of total, clamped to [0,1].
// A non-positive total yields 0.
func Progress(totalMeters, remainingMeters float64) float64 {
	if totalMeters <= 0 {
		return 0
	}
	p := (totalMeters - remainingMeters) / totalMeters
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// AverageSpeedKmh sums pairwise distances and elapsed time over an ordered track.
// Fewer than two points or no elapsed time yields 0.
func AverageSpeedKmh(points []TimedPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var meters, seconds float64
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		meters += DistanceMeters(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
		seconds += cur.Time.Sub(prev.Time).Seconds()
	}

	if seconds <= 0 {
		return 0
	}
	return (meters / seconds) * 3.6
}

func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
