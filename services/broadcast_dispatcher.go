// Each room with at least one subscriber gets its own goroutine (run) that
// owns the subscriber set. Subscribe/Unsubscribe go through the register and
// unregister channels, so the set is never touched from two goroutines.
// Leaderboard changes only mark the room dirty; the loop loads one fresh
// snapshot per wake-up no matter how many updates arrived in between.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetupAPI/internal/logger"
	"meetupAPI/internal/types/leaderboard"
)

var ErrDispatcherStopped = errors.New("broadcast dispatcher stopped")

const (
	defaultSubscriberBuffer = 16
	defaultEventBuffer      = 64
	defaultSnapshotTimeout  = 3 * time.Second
)

// SnapshotLoader produces the current full leaderboard of a room.
type SnapshotLoader func(ctx context.Context, roomID string) (*leaderboard.Leaderboard, error)

// Subscriber is one open room channel. Messages is closed when the
// subscription ends.
type Subscriber struct {
	ID         string
	RoomID     string
	RoomUserID string

	send chan []byte
	room *roomChannel
}

func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

type roomChannel struct {
	id         string
	register   chan *Subscriber
	unregister chan *Subscriber
	dirty      chan struct{}
	events     chan *leaderboard.Message
	done       chan struct{}
	seq        uint64
}

type DispatcherOption func(*BroadcastDispatcher)

func WithSubscriberBuffer(n int) DispatcherOption {
	return func(d *BroadcastDispatcher) {
		if n > 0 {
			d.subscriberBuffer = n
		}
	}
}

func WithEventBuffer(n int) DispatcherOption {
	return func(d *BroadcastDispatcher) {
		if n > 0 {
			d.eventBuffer = n
		}
	}
}

func WithSnapshotTimeout(t time.Duration) DispatcherOption {
	return func(d *BroadcastDispatcher) {
		if t > 0 {
			d.snapshotTimeout = t
		}
	}
}

type BroadcastDispatcher struct {
	mu      sync.RWMutex
	rooms   map[string]*roomChannel
	loader  SnapshotLoader
	stopped bool

	subscriberBuffer int
	eventBuffer      int
	snapshotTimeout  time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewBroadcastDispatcher(opts ...DispatcherOption) *BroadcastDispatcher {
	d := &BroadcastDispatcher{
		rooms:            make(map[string]*roomChannel),
		subscriberBuffer: defaultSubscriberBuffer,
		eventBuffer:      defaultEventBuffer,
		snapshotTimeout:  defaultSnapshotTimeout,
		stopChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetSnapshotLoader wires the leaderboard source. Until it is set, rooms only
// carry events.
func (d *BroadcastDispatcher) SetSnapshotLoader(loader SnapshotLoader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loader = loader
}

func (d *BroadcastDispatcher) snapshotLoader() SnapshotLoader {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loader
}

// Subscribe opens a room channel. The first message on it is the current
// snapshot of the room.
func (d *BroadcastDispatcher) Subscribe(roomID, roomUserID string) (*Subscriber, error) {
	sub := &Subscriber{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		RoomUserID: roomUserID,
		send:       make(chan []byte, d.subscriberBuffer),
	}

	for {
		r, err := d.room(roomID)
		if err != nil {
			return nil, err
		}
		select {
		case r.register <- sub:
			sub.room = r
			return sub, nil
		case <-r.done:
			// the room shut down as we were joining; try a fresh one
		}
	}
}

// Unsubscribe ends the subscription and closes its Messages channel.
func (d *BroadcastDispatcher) Unsubscribe(sub *Subscriber) {
	if sub == nil || sub.room == nil {
		return
	}
	select {
	case sub.room.unregister <- sub:
	case <-sub.room.done:
	}
}

// Notify marks the room dirty. Repeated calls before the room loop wakes up
// collapse into one snapshot.
func (d *BroadcastDispatcher) Notify(roomID string) {
	r := d.existingRoom(roomID)
	if r == nil {
		return
	}
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Broadcast queues an event for the room without blocking the caller.
func (d *BroadcastDispatcher) Broadcast(roomID string, msg *leaderboard.Message) {
	r := d.existingRoom(roomID)
	if r == nil {
		return
	}
	select {
	case r.events <- msg:
	default:
		broadcastDroppedTotal.WithLabelValues("event_queue_full").Inc()
		logger.Warn("room %s event queue full, dropping %s", roomID, msg.Action)
	}
}

// Rooms reports how many rooms currently have subscribers.
func (d *BroadcastDispatcher) Rooms() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Stop closes every subscription and waits for the room loops to exit.
func (d *BroadcastDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.stopChan)
	})
	d.wg.Wait()
}

func (d *BroadcastDispatcher) existingRoom(roomID string) *roomChannel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}

func (d *BroadcastDispatcher) room(roomID string) (*roomChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrDispatcherStopped
	}
	if r, ok := d.rooms[roomID]; ok {
		return r, nil
	}

	r := &roomChannel{
		id:         roomID,
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		dirty:      make(chan struct{}, 1),
		events:     make(chan *leaderboard.Message, d.eventBuffer),
		done:       make(chan struct{}),
	}
	d.rooms[roomID] = r
	broadcastRooms.Inc()
	d.wg.Add(1)
	go d.run(r)
	return r, nil
}

func (d *BroadcastDispatcher) release(r *roomChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[r.id] == r {
		delete(d.rooms, r.id)
		broadcastRooms.Dec()
	}
}

func (d *BroadcastDispatcher) run(r *roomChannel) {
	defer d.wg.Done()
	defer close(r.done)

	subs := make(map[*Subscriber]struct{})
	closeAll := func() {
		for sub := range subs {
			delete(subs, sub)
			close(sub.send)
			broadcastSubscribers.Dec()
		}
	}

	for {
		select {
		case sub := <-r.register:
			subs[sub] = struct{}{}
			broadcastSubscribers.Inc()
			logger.Debug("[room %s] subscriber %s joined, count=%d", r.id, sub.ID, len(subs))
			d.sendSnapshot(r, map[*Subscriber]struct{}{sub: {}})

		case sub := <-r.unregister:
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.send)
				broadcastSubscribers.Dec()
				logger.Debug("[room %s] subscriber %s left, count=%d", r.id, sub.ID, len(subs))
			}
			if len(subs) == 0 {
				d.release(r)
				return
			}

		case msg := <-r.events:
			d.sendEvent(r, subs, msg)

		case <-r.dirty:
			// events queued before this wake-up go out ahead of the snapshot
			d.drainEvents(r, subs)
			d.sendSnapshot(r, subs)

		case <-d.stopChan:
			closeAll()
			d.release(r)
			return
		}
	}
}

func (d *BroadcastDispatcher) drainEvents(r *roomChannel, subs map[*Subscriber]struct{}) {
	for {
		select {
		case msg := <-r.events:
			d.sendEvent(r, subs, msg)
		default:
			return
		}
	}
}

func (d *BroadcastDispatcher) sendEvent(r *roomChannel, subs map[*Subscriber]struct{}, msg *leaderboard.Message) {
	out := *msg
	r.seq++
	out.Seq = r.seq
	d.fanout(r, subs, &out)
}

func (d *BroadcastDispatcher) sendSnapshot(r *roomChannel, subs map[*Subscriber]struct{}) {
	loader := d.snapshotLoader()
	if loader == nil || len(subs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.snapshotTimeout)
	board, err := loader(ctx, r.id)
	cancel()
	if err != nil {
		broadcastDroppedTotal.WithLabelValues("snapshot_error").Inc()
		logger.Error("[room %s] failed to load snapshot: %v", r.id, err)
		return
	}

	r.seq++
	d.fanout(r, subs, &leaderboard.Message{
		Action:      leaderboard.ActionLeaderboardUpdate,
		Seq:         r.seq,
		Leaderboard: board,
	})
	broadcastSnapshotsTotal.Inc()
}

// fanout never blocks: a subscriber whose buffer is full misses this message
// and catches up with the next snapshot.
func (d *BroadcastDispatcher) fanout(r *roomChannel, subs map[*Subscriber]struct{}, msg *leaderboard.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("[room %s] failed to marshal %s: %v", r.id, msg.Action, err)
		return
	}
	for sub := range subs {
		select {
		case sub.send <- data:
		default:
			broadcastDroppedTotal.WithLabelValues("subscriber_full").Inc()
			logger.Warn("[room %s] subscriber %s is slow, dropped seq %d", r.id, sub.ID, msg.Seq)
		}
	}
}
