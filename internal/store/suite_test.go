package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetupAPI/internal/position"
)

type positionHarness struct {
	store   PositionStore
	advance func(time.Duration)
}

// runPositionStoreSuite checks the behaviour every PositionStore backend shares.
func runPositionStoreSuite(t *testing.T, newHarness func(t *testing.T) positionHarness) {
	ctx := context.Background()
	ts := time.Date(2026, 4, 11, 9, 30, 0, 0, time.UTC)

	t.Run("missing record is empty", func(t *testing.T) {
		h := newHarness(t)
		pos, found, err := h.store.Get(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, found)
		assert.True(t, pos.IsEmpty())
	})

	t.Run("upsert then get", func(t *testing.T) {
		h := newHarness(t)
		upd := position.NewUpdate().
			WithLocation(37.51, 127.02).
			WithTimestamp(ts).
			WithStart(37.51, 127.02).
			WithProgress(0.25).
			WithVelocity(4.5).
			WithDistanceRemaining(812.5)

		written, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *upd)
		require.NoError(t, err)

		got, found, err := h.store.Get(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, written, got)

		assert.Equal(t, "ru-1", got.RoomUserID)
		assert.Equal(t, 37.51, got.Lat)
		assert.Equal(t, 127.02, got.Lng)
		assert.Equal(t, ts, got.Timestamp)
		assert.Equal(t, 0.25, got.Progress)
		assert.Equal(t, 4.5, got.Velocity)
		require.NotNil(t, got.DistanceRemaining)
		assert.Equal(t, 812.5, *got.DistanceRemaining)
	})

	t.Run("partial update merges", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().
			WithLocation(1.5, 2.5).
			WithStart(1.5, 2.5).
			WithVelocity(10))
		require.NoError(t, err)

		got, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithProgress(0.5))
		require.NoError(t, err)
		assert.Equal(t, 1.5, got.Lat)
		assert.Equal(t, 2.5, got.Lng)
		assert.Equal(t, 10.0, got.Velocity)
		assert.Equal(t, 0.5, got.Progress)
	})

	t.Run("start is written once", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1).WithStart(1, 1))
		require.NoError(t, err)
		got, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(2, 2).WithStart(2, 2))
		require.NoError(t, err)

		assert.Equal(t, 1.0, got.StartLat)
		assert.Equal(t, 1.0, got.StartLng)
		assert.Equal(t, 2.0, got.Lat)
	})

	t.Run("arrival is sticky", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1).WithVelocity(20))
		require.NoError(t, err)

		got, arrived, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithArrival(3, ts))
		require.NoError(t, err)
		assert.True(t, arrived)
		assert.True(t, got.Arrived)
		assert.Equal(t, 3, got.ArrivalRank)
		assert.Equal(t, 0.0, got.Velocity)
		assert.Equal(t, 1.0, got.Progress)

		got, arrived, err = h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().
			WithLocation(9, 9).
			WithArrival(5, ts.Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, arrived)
		assert.True(t, got.Arrived)
		assert.Equal(t, 3, got.ArrivalRank)
		require.NotNil(t, got.ArrivedAt)
		assert.Equal(t, ts, *got.ArrivedAt)
	})

	t.Run("concurrent arrival writes report once", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1))
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			flipped int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, arrived, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithArrival(1, ts.Add(time.Duration(i)*time.Second)))
				assert.NoError(t, err)
				if arrived {
					mu.Lock()
					flipped++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, flipped)
	})

	t.Run("rooms are isolated", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1))
		require.NoError(t, err)

		_, found, err := h.store.Get(ctx, "room-2", "ru-1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("liveness expires without losing the position", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1))
		require.NoError(t, err)

		require.NoError(t, h.store.MarkOnline(ctx, "room-1", "ru-1", 5*time.Second))
		online, err := h.store.IsOnline(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.True(t, online)

		h.advance(6 * time.Second)

		online, err = h.store.IsOnline(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, online)

		_, found, err := h.store.Get(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("refresh extends liveness", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.MarkOnline(ctx, "room-1", "ru-1", 5*time.Second))
		h.advance(4 * time.Second)
		require.NoError(t, h.store.MarkOnline(ctx, "room-1", "ru-1", 5*time.Second))
		h.advance(4 * time.Second)

		online, err := h.store.IsOnline(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.True(t, online)
	})

	t.Run("mark offline", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.MarkOnline(ctx, "room-1", "ru-1", time.Minute))
		require.NoError(t, h.store.MarkOffline(ctx, "room-1", "ru-1"))

		online, err := h.store.IsOnline(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, online)
	})

	t.Run("delete drops record and marker", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.store.Upsert(ctx, "room-1", "ru-1", *position.NewUpdate().WithLocation(1, 1))
		require.NoError(t, err)
		require.NoError(t, h.store.MarkOnline(ctx, "room-1", "ru-1", time.Minute))

		require.NoError(t, h.store.Delete(ctx, "room-1", "ru-1"))

		_, found, err := h.store.Get(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, found)
		online, err := h.store.IsOnline(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, online)
	})
}

// runRankedSetSuite checks the behaviour every RankedSet backend shares.
func runRankedSetSuite(t *testing.T, newSet func(t *testing.T, order Order) RankedSet) {
	ctx := context.Background()

	ids := func(ms []Member) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	t.Run("empty room", func(t *testing.T) {
		s := newSet(t, Descending)
		ms, err := s.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Empty(t, ms)

		n, err := s.Size(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, found, err := s.Score(ctx, "room-1", "ru-1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("descending order with upserts", func(t *testing.T) {
		s := newSet(t, Descending)
		require.NoError(t, s.Upsert(ctx, "room-1", "a", 0.2))
		require.NoError(t, s.Upsert(ctx, "room-1", "b", 0.7))
		require.NoError(t, s.Upsert(ctx, "room-1", "c", 0.5))

		ms, err := s.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "a"}, ids(ms))

		// moving a member re-sorts it without duplicating it
		require.NoError(t, s.Upsert(ctx, "room-1", "a", 0.9))
		ms, err = s.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(ms))
		assert.Equal(t, 0.9, ms[0].Score)

		n, err := s.Size(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("ascending order", func(t *testing.T) {
		s := newSet(t, Ascending)
		require.NoError(t, s.Upsert(ctx, "room-1", "a", 300))
		require.NoError(t, s.Upsert(ctx, "room-1", "b", 100))
		require.NoError(t, s.Upsert(ctx, "room-1", "c", 200))

		ms, err := s.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "a"}, ids(ms))
	})

	t.Run("ties break by member id", func(t *testing.T) {
		asc := newSet(t, Ascending)
		desc := newSet(t, Descending)
		for _, id := range []string{"m", "z", "a"} {
			require.NoError(t, asc.Upsert(ctx, "room-1", id, 1))
			require.NoError(t, desc.Upsert(ctx, "room-1", id, 1))
		}

		ms, err := asc.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "m", "z"}, ids(ms))

		ms, err = desc.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "m", "a"}, ids(ms))
	})

	t.Run("top n", func(t *testing.T) {
		s := newSet(t, Descending)
		for i := 0; i < 10; i++ {
			require.NoError(t, s.Upsert(ctx, "room-1", fmt.Sprintf("ru-%d", i), float64(i)))
		}

		ms, err := s.Range(ctx, "room-1", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"ru-9", "ru-8", "ru-7"}, ids(ms))

		ms, err = s.Range(ctx, "room-1", 50)
		require.NoError(t, err)
		assert.Len(t, ms, 10)

		ms, err = s.Range(ctx, "room-1", -1)
		require.NoError(t, err)
		assert.Len(t, ms, 10)
	})

	t.Run("remove", func(t *testing.T) {
		s := newSet(t, Descending)
		require.NoError(t, s.Upsert(ctx, "room-1", "a", 1))
		require.NoError(t, s.Upsert(ctx, "room-1", "b", 2))
		require.NoError(t, s.Remove(ctx, "room-1", "a"))
		require.NoError(t, s.Remove(ctx, "room-1", "missing"))
		require.NoError(t, s.Remove(ctx, "room-2", "a"))

		ms, err := s.Range(ctx, "room-1", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(ms))
	})

	t.Run("append assigns slots once", func(t *testing.T) {
		s := newSet(t, Ascending)

		rank, added, err := s.Append(ctx, "room-1", "a")
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, 1, rank)

		rank, added, err = s.Append(ctx, "room-1", "b")
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, 2, rank)

		rank, added, err = s.Append(ctx, "room-1", "a")
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, 1, rank)

		// other rooms count from one
		rank, _, err = s.Append(ctx, "room-2", "b")
		require.NoError(t, err)
		assert.Equal(t, 1, rank)
	})

	t.Run("append after a removal never reuses a slot", func(t *testing.T) {
		s := newSet(t, Ascending)
		for _, id := range []string{"a", "b", "c"} {
			_, _, err := s.Append(ctx, "room-1", id)
			require.NoError(t, err)
		}
		require.NoError(t, s.Remove(ctx, "room-1", "b"))

		rank, added, err := s.Append(ctx, "room-1", "d")
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, 4, rank)
	})

	t.Run("concurrent appends are unique and gapless", func(t *testing.T) {
		s := newSet(t, Ascending)
		const n = 40

		var wg sync.WaitGroup
		ranks := make([]int, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ranks[i], _, errs[i] = s.Append(ctx, "room-1", fmt.Sprintf("ru-%d", i))
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		sort.Ints(ranks)
		for i, r := range ranks {
			assert.Equal(t, i+1, r)
		}
	})
}
