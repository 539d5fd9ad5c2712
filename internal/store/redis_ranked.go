package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// appendScript assigns the next slot atomically. An existing member keeps its
// score; otherwise it is added at max score + 1.
var appendScript = redis.NewScript(`
local existing = redis.call('ZSCORE', KEYS[1], ARGV[1])
if existing then
	return {tonumber(existing), 0}
end
local slot = 1
local top = redis.call('ZRANGE', KEYS[1], -1, -1, 'WITHSCORES')
if top[2] then
	slot = tonumber(top[2]) + 1
end
redis.call('ZADD', KEYS[1], slot, ARGV[1])
return {slot, 1}
`)

// RedisRankedSet maps each room onto one sorted set named room:{id}:{name}.
type RedisRankedSet struct {
	rdb   redis.UniversalClient
	name  string
	order Order
}

func NewRedisRankedSet(rdb redis.UniversalClient, name string, order Order) *RedisRankedSet {
	return &RedisRankedSet{rdb: rdb, name: name, order: order}
}

func (s *RedisRankedSet) key(roomID string) string {
	return rankedKey(roomID, s.name)
}

func (s *RedisRankedSet) Upsert(ctx context.Context, roomID, member string, score float64) error {
	if err := s.rdb.ZAdd(ctx, s.key(roomID), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("%w: failed to upsert %s: %v", ErrUnavailable, s.name, err)
	}
	return nil
}

func (s *RedisRankedSet) Append(ctx context.Context, roomID, member string) (int, bool, error) {
	res, err := appendScript.Run(ctx, s.rdb, []string{s.key(roomID)}, member).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to append to %s: %v", ErrUnavailable, s.name, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected append reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

func (s *RedisRankedSet) Range(ctx context.Context, roomID string, topN int) ([]Member, error) {
	stop := int64(-1)
	if topN > 0 {
		stop = int64(topN - 1)
	}

	var (
		zs  []redis.Z
		err error
	)
	if s.order == Descending {
		zs, err = s.rdb.ZRevRangeWithScores(ctx, s.key(roomID), 0, stop).Result()
	} else {
		zs, err = s.rdb.ZRangeWithScores(ctx, s.key(roomID), 0, stop).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to range %s: %v", ErrUnavailable, s.name, err)
	}

	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			id = fmt.Sprint(z.Member)
		}
		out = append(out, Member{ID: id, Score: z.Score})
	}
	return out, nil
}

func (s *RedisRankedSet) Score(ctx context.Context, roomID, member string) (float64, bool, error) {
	score, err := s.rdb.ZScore(ctx, s.key(roomID), member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to read score: %v", ErrUnavailable, err)
	}
	return score, true, nil
}

func (s *RedisRankedSet) Size(ctx context.Context, roomID string) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.key(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to size %s: %v", ErrUnavailable, s.name, err)
	}
	return int(n), nil
}

func (s *RedisRankedSet) Remove(ctx context.Context, roomID, member string) error {
	if err := s.rdb.ZRem(ctx, s.key(roomID), member).Err(); err != nil {
		return fmt.Errorf("%w: failed to remove from %s: %v", ErrUnavailable, s.name, err)
	}
	return nil
}
