package store

import (
	"context"
	"sort"
	"sync"
)

type rankedRoom struct {
	mu     sync.Mutex
	scores map[string]float64
	order  []Member
}

// MemoryRankedSet keeps one sorted slice per room. Lookups are binary
// searches; contention is limited to a single room.
type MemoryRankedSet struct {
	order Order

	mu    sync.RWMutex
	rooms map[string]*rankedRoom
}

func NewMemoryRankedSet(order Order) *MemoryRankedSet {
	return &MemoryRankedSet{
		order: order,
		rooms: make(map[string]*rankedRoom),
	}
}

// less orders ties by member id, reversed for descending sets, matching
// Redis ZRANGE / ZREVRANGE.
func (s *MemoryRankedSet) less(a, b Member) bool {
	if s.order == Descending {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID > b.ID
	}
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID < b.ID
}

func (s *MemoryRankedSet) room(roomID string, create bool) *rankedRoom {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r
	}
	r = &rankedRoom{scores: make(map[string]float64)}
	s.rooms[roomID] = r
	return r
}

func (s *MemoryRankedSet) search(r *rankedRoom, m Member) int {
	return sort.Search(len(r.order), func(i int) bool {
		return !s.less(r.order[i], m)
	})
}

func (s *MemoryRankedSet) remove(r *rankedRoom, id string) {
	score, ok := r.scores[id]
	if !ok {
		return
	}
	i := s.search(r, Member{ID: id, Score: score})
	if i < len(r.order) && r.order[i].ID == id {
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
	delete(r.scores, id)
}

func (s *MemoryRankedSet) insert(r *rankedRoom, m Member) {
	i := s.search(r, m)
	r.order = append(r.order, Member{})
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = m
	r.scores[m.ID] = m.Score
}

func (s *MemoryRankedSet) Upsert(ctx context.Context, roomID, member string, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := s.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.scores[member]; ok && old == score {
		return nil
	}
	s.remove(r, member)
	s.insert(r, Member{ID: member, Score: score})
	return nil
}

func (s *MemoryRankedSet) Append(ctx context.Context, roomID, member string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r := s.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	if score, ok := r.scores[member]; ok {
		return int(score), false, nil
	}

	next := 1
	if n := len(r.order); n > 0 {
		top := r.order[n-1].Score
		if s.order == Descending {
			top = r.order[0].Score
		}
		next = int(top) + 1
	}
	s.insert(r, Member{ID: member, Score: float64(next)})
	return next, true, nil
}

func (s *MemoryRankedSet) Range(ctx context.Context, roomID string, topN int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.room(roomID, false)
	if r == nil {
		return []Member{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	if topN > 0 && topN < n {
		n = topN
	}
	out := make([]Member, n)
	copy(out, r.order[:n])
	return out, nil
}

func (s *MemoryRankedSet) Score(ctx context.Context, roomID, member string) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r := s.room(roomID, false)
	if r == nil {
		return 0, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	score, ok := r.scores[member]
	return score, ok, nil
}

func (s *MemoryRankedSet) Size(ctx context.Context, roomID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r := s.room(roomID, false)
	if r == nil {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order), nil
}

func (s *MemoryRankedSet) Remove(ctx context.Context, roomID, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := s.room(roomID, false)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s.remove(r, member)
	return nil
}
