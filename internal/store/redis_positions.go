package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"meetupAPI/internal/position"
)

const (
	fieldRoomUserID        = "roomUserId"
	fieldLat               = "lat"
	fieldLng               = "lng"
	fieldTimestamp         = "ts"
	fieldStartLat          = "startLat"
	fieldStartLng          = "startLng"
	fieldVelocity          = "velocity"
	fieldProgress          = "progress"
	fieldDistanceRemaining = "distanceRemaining"
	fieldArrived           = "arrived"
	fieldArrivalRank       = "arrivalRank"
	fieldArrivedAt         = "arrivedAt"
)

// RedisPositionStore keeps one hash per member and one TTL key per liveness
// marker. Set-once fields are written with HSETNX inside the same MULTI.
type RedisPositionStore struct {
	rdb redis.UniversalClient
}

func NewRedisPositionStore(rdb redis.UniversalClient) *RedisPositionStore {
	return &RedisPositionStore{rdb: rdb}
}

func (s *RedisPositionStore) Get(ctx context.Context, roomID, roomUserID string) (position.UserPosition, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, positionKey(roomID, roomUserID)).Result()
	if err != nil {
		return position.UserPosition{}, false, fmt.Errorf("%w: failed to read position: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return position.UserPosition{}, false, nil
	}

	pos, err := decodePosition(fields)
	if err != nil {
		return position.UserPosition{}, false, fmt.Errorf("failed to decode position %s/%s: %w", roomID, roomUserID, err)
	}
	return pos, true, nil
}

func (s *RedisPositionStore) Upsert(ctx context.Context, roomID, roomUserID string, upd position.Update) (position.UserPosition, bool, error) {
	key := positionKey(roomID, roomUserID)
	set, once := encodeUpdate(roomUserID, upd)

	var arrivedCmd *redis.BoolCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, set)
		for _, kv := range once {
			cmd := pipe.HSetNX(ctx, key, kv[0], kv[1])
			if kv[0] == fieldArrived {
				arrivedCmd = cmd
			}
		}
		return nil
	})
	if err != nil {
		return position.UserPosition{}, false, fmt.Errorf("%w: failed to write position: %v", ErrUnavailable, err)
	}

	pos, _, err := s.Get(ctx, roomID, roomUserID)
	if err != nil {
		return position.UserPosition{}, false, err
	}
	return pos, arrivedCmd != nil && arrivedCmd.Val(), nil
}

func (s *RedisPositionStore) MarkOnline(ctx context.Context, roomID, roomUserID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, onlineKey(roomID, roomUserID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: failed to mark online: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisPositionStore) MarkOffline(ctx context.Context, roomID, roomUserID string) error {
	if err := s.rdb.Del(ctx, onlineKey(roomID, roomUserID)).Err(); err != nil {
		return fmt.Errorf("%w: failed to mark offline: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisPositionStore) IsOnline(ctx context.Context, roomID, roomUserID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, onlineKey(roomID, roomUserID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: failed to read liveness: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisPositionStore) Delete(ctx context.Context, roomID, roomUserID string) error {
	err := s.rdb.Del(ctx, positionKey(roomID, roomUserID), onlineKey(roomID, roomUserID)).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to delete position: %v", ErrUnavailable, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// encodeUpdate splits an update into plain HSET fields and set-once fields.
func encodeUpdate(roomUserID string, u position.Update) (map[string]interface{}, [][2]string) {
	set := map[string]interface{}{fieldRoomUserID: roomUserID}
	var once [][2]string

	if u.Lat != nil {
		set[fieldLat] = formatFloat(*u.Lat)
	}
	if u.Lng != nil {
		set[fieldLng] = formatFloat(*u.Lng)
	}
	if u.Timestamp != nil {
		set[fieldTimestamp] = formatTime(*u.Timestamp)
	}
	if u.Velocity != nil {
		set[fieldVelocity] = formatFloat(*u.Velocity)
	}
	if u.Progress != nil {
		set[fieldProgress] = formatFloat(*u.Progress)
	}
	if u.DistanceRemaining != nil {
		set[fieldDistanceRemaining] = formatFloat(*u.DistanceRemaining)
	}
	if u.StartLat != nil {
		once = append(once, [2]string{fieldStartLat, formatFloat(*u.StartLat)})
	}
	if u.StartLng != nil {
		once = append(once, [2]string{fieldStartLng, formatFloat(*u.StartLng)})
	}
	if u.Arrival != nil {
		once = append(once,
			[2]string{fieldArrived, "1"},
			[2]string{fieldArrivalRank, strconv.Itoa(u.Arrival.Rank)},
			[2]string{fieldArrivedAt, formatTime(u.Arrival.At)},
		)
	}
	return set, once
}

func decodePosition(fields map[string]string) (position.UserPosition, error) {
	var (
		p   position.UserPosition
		err error
	)
	p.RoomUserID = fields[fieldRoomUserID]

	floats := []struct {
		name string
		dst  *float64
	}{
		{fieldLat, &p.Lat},
		{fieldLng, &p.Lng},
		{fieldStartLat, &p.StartLat},
		{fieldStartLng, &p.StartLng},
		{fieldVelocity, &p.Velocity},
		{fieldProgress, &p.Progress},
	}
	for _, f := range floats {
		v, ok := fields[f.name]
		if !ok {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	if v, ok := fields[fieldDistanceRemaining]; ok {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("field %s: %w", fieldDistanceRemaining, err)
		}
		p.DistanceRemaining = &d
	}
	if v, ok := fields[fieldTimestamp]; ok {
		if p.Timestamp, err = parseTime(v); err != nil {
			return p, fmt.Errorf("field %s: %w", fieldTimestamp, err)
		}
	}

	if fields[fieldArrived] == "1" {
		p.Arrived = true
		if p.ArrivalRank, err = strconv.Atoi(fields[fieldArrivalRank]); err != nil {
			return p, fmt.Errorf("field %s: %w", fieldArrivalRank, err)
		}
		at, err := parseTime(fields[fieldArrivedAt])
		if err != nil {
			return p, fmt.Errorf("field %s: %w", fieldArrivedAt, err)
		}
		p.ArrivedAt = &at
	}

	return p.Pinned(), nil
}

func parseTime(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}
