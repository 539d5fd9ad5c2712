package store

import (
	"context"
	"sync"
	"time"

	"meetupAPI/internal/position"
)

type positionEntry struct {
	mu  sync.Mutex
	pos position.UserPosition
}

// liveRoom holds the liveness deadlines of one room, keyed by roomUserId.
type liveRoom struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// MemoryPositionStore keeps positions in process. The map locks are only held
// for lookups; merges lock the single entry and liveness locks the single
// room, so writers for different users or rooms never wait on each other.
type MemoryPositionStore struct {
	mu      sync.RWMutex
	entries map[string]*positionEntry

	liveMu sync.RWMutex
	live   map[string]*liveRoom

	now func() time.Time
}

type MemoryOption func(*MemoryPositionStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryPositionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryPositionStore(opts ...MemoryOption) *MemoryPositionStore {
	s := &MemoryPositionStore{
		entries: make(map[string]*positionEntry),
		live:    make(map[string]*liveRoom),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryPositionStore) Get(ctx context.Context, roomID, roomUserID string) (position.UserPosition, bool, error) {
	if err := ctx.Err(); err != nil {
		return position.UserPosition{}, false, err
	}

	s.mu.RLock()
	e, ok := s.entries[positionKey(roomID, roomUserID)]
	s.mu.RUnlock()
	if !ok {
		return position.UserPosition{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos, true, nil
}

func (s *MemoryPositionStore) Upsert(ctx context.Context, roomID, roomUserID string, upd position.Update) (position.UserPosition, bool, error) {
	if err := ctx.Err(); err != nil {
		return position.UserPosition{}, false, err
	}

	e := s.entry(positionKey(roomID, roomUserID))
	e.mu.Lock()
	defer e.mu.Unlock()
	wasArrived := e.pos.Arrived
	e.pos = e.pos.Apply(roomUserID, upd)
	return e.pos, !wasArrived && e.pos.Arrived, nil
}

func (s *MemoryPositionStore) entry(key string) *positionEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e
	}
	e = &positionEntry{}
	s.entries[key] = e
	return e
}

func (s *MemoryPositionStore) roomLiveness(roomID string, create bool) *liveRoom {
	s.liveMu.RLock()
	r, ok := s.live[roomID]
	s.liveMu.RUnlock()
	if ok || !create {
		return r
	}

	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if r, ok := s.live[roomID]; ok {
		return r
	}
	r = &liveRoom{deadlines: make(map[string]time.Time)}
	s.live[roomID] = r
	return r
}

func (s *MemoryPositionStore) MarkOnline(ctx context.Context, roomID, roomUserID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := s.roomLiveness(roomID, true)
	r.mu.Lock()
	r.deadlines[roomUserID] = s.now().Add(ttl)
	r.mu.Unlock()
	return nil
}

func (s *MemoryPositionStore) MarkOffline(ctx context.Context, roomID, roomUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.clearLive(roomID, roomUserID)
	return nil
}

func (s *MemoryPositionStore) clearLive(roomID, roomUserID string) {
	r := s.roomLiveness(roomID, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.deadlines, roomUserID)
	r.mu.Unlock()
}

func (s *MemoryPositionStore) IsOnline(ctx context.Context, roomID, roomUserID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r := s.roomLiveness(roomID, false)
	if r == nil {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	expires, ok := r.deadlines[roomUserID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expires) {
		delete(r.deadlines, roomUserID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryPositionStore) Delete(ctx context.Context, roomID, roomUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, positionKey(roomID, roomUserID))
	s.mu.Unlock()

	s.clearLive(roomID, roomUserID)
	return nil
}

// PruneExpired drops liveness markers whose TTL has passed and returns how
// many were removed. Reads already treat them as offline; this only bounds
// memory for users who never come back. Each room is locked on its own.
func (s *MemoryPositionStore) PruneExpired() int {
	now := s.now()

	s.liveMu.RLock()
	rooms := make([]*liveRoom, 0, len(s.live))
	for _, r := range s.live {
		rooms = append(rooms, r)
	}
	s.liveMu.RUnlock()

	removed := 0
	for _, r := range rooms {
		r.mu.Lock()
		for user, expires := range r.deadlines {
			if !now.Before(expires) {
				delete(r.deadlines, user)
				removed++
			}
		}
		r.mu.Unlock()
	}
	return removed
}
