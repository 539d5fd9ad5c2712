package rooms

import (
	"context"
	"errors"
	"sync"

	"meetupAPI/internal/position"
)

var ErrRoomNotFound = errors.New("room not found")

// Directory is the view this service needs of the room service: where a room
// is headed and who belongs to it.
type Directory interface {
	// Destination returns false when the room has no target coordinates.
	Destination(ctx context.Context, roomID string) (position.Destination, bool, error)
	IsMember(ctx context.Context, roomID, roomUserID string) (bool, error)
}

type destinationEntry struct {
	dest position.Destination
	ok   bool
}

// CachedDirectory remembers destinations, which never change for a room.
// Membership is always asked of the wrapped directory because people leave.
type CachedDirectory struct {
	next  Directory
	cache sync.Map
}

func NewCachedDirectory(next Directory) *CachedDirectory {
	return &CachedDirectory{next: next}
}

func (c *CachedDirectory) Destination(ctx context.Context, roomID string) (position.Destination, bool, error) {
	if v, ok := c.cache.Load(roomID); ok {
		e := v.(destinationEntry)
		return e.dest, e.ok, nil
	}

	dest, ok, err := c.next.Destination(ctx, roomID)
	if err != nil {
		return position.Destination{}, false, err
	}
	c.cache.Store(roomID, destinationEntry{dest: dest, ok: ok})
	return dest, ok, nil
}

func (c *CachedDirectory) IsMember(ctx context.Context, roomID, roomUserID string) (bool, error) {
	return c.next.IsMember(ctx, roomID, roomUserID)
}

// Forget drops a cached destination, e.g. after the room is deleted.
func (c *CachedDirectory) Forget(roomID string) {
	c.cache.Delete(roomID)
}

type staticRoom struct {
	dest    *position.Destination
	members map[string]struct{}
}

// StaticDirectory is an in-process directory for local runs and tests.
type StaticDirectory struct {
	mu    sync.RWMutex
	rooms map[string]*staticRoom
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{rooms: make(map[string]*staticRoom)}
}

// AddRoom registers a room; dest may be nil for rooms without a destination.
func (d *StaticDirectory) AddRoom(roomID string, dest *position.Destination, members ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := &staticRoom{dest: dest, members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		r.members[m] = struct{}{}
	}
	d.rooms[roomID] = r
}

func (d *StaticDirectory) AddMember(roomID, roomUserID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.members[roomUserID] = struct{}{}
	return nil
}

func (d *StaticDirectory) RemoveMember(roomID, roomUserID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[roomID]; ok {
		delete(r.members, roomUserID)
	}
}

func (d *StaticDirectory) Destination(ctx context.Context, roomID string) (position.Destination, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return position.Destination{}, false, ErrRoomNotFound
	}
	if r.dest == nil {
		return position.Destination{}, false, nil
	}
	return *r.dest, true, nil
}

func (d *StaticDirectory) IsMember(ctx context.Context, roomID, roomUserID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, member := r.members[roomUserID]
	return member, nil
}
