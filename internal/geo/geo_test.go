package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	t.Run("same point is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, DistanceMeters(37.5, 127.0, 37.5, 127.0))
		assert.Equal(t, 0.0, DistanceMeters(-33.8688, 151.2093, -33.8688, 151.2093))
	})

	t.Run("symmetric", func(t *testing.T) {
		pairs := [][4]float64{
			{37.5665, 126.9780, 35.1796, 129.0756},
			{51.5074, -0.1278, 40.7128, -74.0060},
			{-89.9, 179.9, 89.9, -179.9},
			{0, 0, 0, 180},
		}
		for _, p := range pairs {
			ab := DistanceMeters(p[0], p[1], p[2], p[3])
			ba := DistanceMeters(p[2], p[3], p[0], p[1])
			assert.InDelta(t, ab, ba, 1e-6)
		}
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		want := EarthRadiusKm * 1000 * math.Pi / 180
		assert.InDelta(t, want, DistanceMeters(10, 20, 11, 20), 1e-6)
	})

	t.Run("seoul to busan", func(t *testing.T) {
		d := DistanceMeters(37.5665, 126.9780, 35.1796, 129.0756)
		assert.InDelta(t, 325_000, d, 5_000)
	})
}

func TestIsWithinRadius(t *testing.T) {
	dest := Point{Lat: 37.5000, Lng: 127.0000}

	// 0.000895 degrees of latitude is about 99.5m.
	near := Point{Lat: 37.500895, Lng: 127.0000}
	assert.True(t, IsWithinRadius(near, dest, 100))
	assert.False(t, IsWithinRadius(near, dest, 99))

	// 0.0009 degrees is about 100.08m, just outside a 100m radius.
	edge := Point{Lat: 37.5009, Lng: 127.0000}
	assert.InDelta(t, 100, Distance(edge, dest), 0.1)
	assert.True(t, IsWithinRadius(edge, dest, 100.1))
	assert.False(t, IsWithinRadius(edge, dest, 99))

	assert.True(t, IsWithinRadius(dest, dest, 0))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.75, Progress(1000, 250))
	assert.Equal(t, 0.0, Progress(1000, 1000))
	assert.Equal(t, 1.0, Progress(1000, 0))

	// moving away from the destination never goes negative
	assert.Equal(t, 0.0, Progress(1000, 1500))
	assert.Equal(t, 1.0, Progress(1000, -10))

	assert.Equal(t, 0.0, Progress(0, 0))
	assert.Equal(t, 0.0, Progress(-5, 3))
}

func TestAverageSpeedKmh(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fewer than two points", func(t *testing.T) {
		assert.Equal(t, 0.0, AverageSpeedKmh(nil))
		assert.Equal(t, 0.0, AverageSpeedKmh([]TimedPoint{{Lat: 1, Lng: 1, Time: start}}))
	})

	t.Run("no elapsed time", func(t *testing.T) {
		pts := []TimedPoint{
			{Lat: 37.5, Lng: 127.0, Time: start},
			{Lat: 37.6, Lng: 127.0, Time: start},
		}
		assert.Equal(t, 0.0, AverageSpeedKmh(pts))
	})

	t.Run("one kilometre per minute", func(t *testing.T) {
		// 1km north of the start point
		dLat := 1000 / (EarthRadiusKm * 1000) * 180 / math.Pi
		pts := []TimedPoint{
			{Lat: 37.5, Lng: 127.0, Time: start},
			{Lat: 37.5 + dLat, Lng: 127.0, Time: start.Add(time.Minute)},
		}
		assert.InDelta(t, 60.0, AverageSpeedKmh(pts), 1e-6)
	})

	t.Run("sums every leg", func(t *testing.T) {
		dLat := 500 / (EarthRadiusKm * 1000) * 180 / math.Pi
		pts := []TimedPoint{
			{Lat: 0, Lng: 0, Time: start},
			{Lat: dLat, Lng: 0, Time: start.Add(30 * time.Second)},
			{Lat: 2 * dLat, Lng: 0, Time: start.Add(90 * time.Second)},
		}
		// 1000m over 90s
		assert.InDelta(t, 40.0, AverageSpeedKmh(pts), 1e-6)
	})
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(37.5, 127))
	assert.True(t, ValidCoordinates(-90, -180))
	assert.True(t, ValidCoordinates(90, 180))
	assert.False(t, ValidCoordinates(90.1, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
}
