package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFirstSample(t *testing.T) {
	now := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	upd := NewUpdate().
		WithLocation(37.51, 127.01).
		WithTimestamp(now).
		WithStart(37.51, 127.01).
		WithProgress(0).
		WithDistanceRemaining(1500)

	var empty UserPosition
	require.True(t, empty.IsEmpty())

	got := empty.Apply("ru-1", *upd)
	assert.False(t, got.IsEmpty())
	assert.Equal(t, "ru-1", got.RoomUserID)
	assert.Equal(t, 37.51, got.Lat)
	assert.Equal(t, 127.01, got.Lng)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, 37.51, got.StartLat)
	assert.Equal(t, 127.01, got.StartLng)
	require.NotNil(t, got.DistanceRemaining)
	assert.Equal(t, 1500.0, *got.DistanceRemaining)
	assert.False(t, got.Arrived)
}

func TestApplyPartialUpdateKeepsOtherFields(t *testing.T) {
	base := UserPosition{}.Apply("ru-1", *NewUpdate().
		WithLocation(1, 2).
		WithStart(1, 2).
		WithVelocity(12))

	got := base.Apply("ru-1", *NewUpdate().WithProgress(0.4))

	assert.Equal(t, 1.0, got.Lat)
	assert.Equal(t, 2.0, got.Lng)
	assert.Equal(t, 12.0, got.Velocity)
	assert.Equal(t, 0.4, got.Progress)
}

func TestApplyStartIsSetOnce(t *testing.T) {
	base := UserPosition{}.Apply("ru-1", *NewUpdate().WithLocation(1, 2).WithStart(1, 2))
	got := base.Apply("ru-1", *NewUpdate().WithLocation(3, 4).WithStart(3, 4))

	assert.Equal(t, 1.0, got.StartLat)
	assert.Equal(t, 2.0, got.StartLng)
	assert.Equal(t, 3.0, got.Lat)
}

func TestApplyArrivalIsStickyAndPinned(t *testing.T) {
	at := time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)
	base := UserPosition{}.Apply("ru-1", *NewUpdate().WithLocation(1, 2).WithVelocity(30).WithProgress(0.9))

	arrived := base.Apply("ru-1", *NewUpdate().WithArrival(2, at))
	assert.True(t, arrived.Arrived)
	assert.Equal(t, 2, arrived.ArrivalRank)
	require.NotNil(t, arrived.ArrivedAt)
	assert.Equal(t, at, *arrived.ArrivedAt)
	assert.Equal(t, 0.0, arrived.Velocity)
	assert.Equal(t, 1.0, arrived.Progress)

	// a later far-away sample cannot undo arrival or its pins
	later := arrived.Apply("ru-1", *NewUpdate().
		WithLocation(50, 50).
		WithVelocity(80).
		WithProgress(0.1).
		WithArrival(7, at.Add(time.Hour)))
	assert.True(t, later.Arrived)
	assert.Equal(t, 2, later.ArrivalRank)
	assert.Equal(t, at, *later.ArrivedAt)
	assert.Equal(t, 0.0, later.Velocity)
	assert.Equal(t, 1.0, later.Progress)
	assert.Equal(t, 50.0, later.Lat)
}
