package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetupAPI/internal/geo"
	"meetupAPI/internal/logger"
	"meetupAPI/internal/position"
	"meetupAPI/internal/rooms"
	"meetupAPI/internal/store"
	"meetupAPI/internal/types/leaderboard"
)

var (
	ErrNotMember          = errors.New("user is not a member of this room")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Publisher is the outbound side of the room channels.
type Publisher interface {
	// Notify marks the room's leaderboard as changed.
	Notify(roomID string)
	// Broadcast queues a one-off event for every subscriber of the room.
	Broadcast(roomID string, msg *leaderboard.Message)
}

// PositionSample is one inbound location report. Timestamp is the client
// capture time; zero means server receive time.
type PositionSample struct {
	RoomID     string
	RoomUserID string
	Lat        float64
	Lng        float64
	Online     bool
	Timestamp  time.Time
}

type LocationService struct {
	positions   store.PositionStore
	ranker      *LeaderboardRanker
	detector    *ArrivalDetector
	directory   rooms.Directory
	livenessTTL time.Duration
	publisher   Publisher
	now         func() time.Time
}

func NewLocationService(
	positions store.PositionStore,
	ranker *LeaderboardRanker,
	detector *ArrivalDetector,
	directory rooms.Directory,
	livenessTTL time.Duration,
) *LocationService {
	return &LocationService{
		positions:   positions,
		ranker:      ranker,
		detector:    detector,
		directory:   directory,
		livenessTTL: livenessTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher injects the broadcast side after construction
func (s *LocationService) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *LocationService) SetClock(now func() time.Time) {
	s.now = now
}

// HandlePositionUpdate runs one sample through the pipeline: validate,
// derive metrics, detect arrival, persist, rank, then notify the room.
func (s *LocationService) HandlePositionUpdate(ctx context.Context, sample PositionSample) (position.UserPosition, error) {
	pos, err := s.handlePositionUpdate(ctx, sample)
	if err != nil {
		positionUpdatesTotal.WithLabelValues(updateResult(err)).Inc()
		logger.Warn("position sample rejected room=%s user=%s: %v", sample.RoomID, sample.RoomUserID, err)
		return position.UserPosition{}, err
	}
	positionUpdatesTotal.WithLabelValues("ok").Inc()
	return pos, nil
}

func updateResult(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	default:
		return "error"
	}
}

func (s *LocationService) handlePositionUpdate(ctx context.Context, sample PositionSample) (position.UserPosition, error) {
	if !geo.ValidCoordinates(sample.Lat, sample.Lng) {
		return position.UserPosition{}, ErrInvalidCoordinates
	}

	if err := s.requireMember(ctx, sample.RoomID, sample.RoomUserID); err != nil {
		return position.UserPosition{}, err
	}

	dest, hasDest, err := s.directory.Destination(ctx, sample.RoomID)
	if err != nil {
		return position.UserPosition{}, fmt.Errorf("failed to load destination: %w", err)
	}

	prev, found, err := s.positions.Get(ctx, sample.RoomID, sample.RoomUserID)
	if err != nil {
		return position.UserPosition{}, fmt.Errorf("failed to load previous position: %w", err)
	}

	at := sample.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	cur := geo.Point{Lat: sample.Lat, Lng: sample.Lng}

	upd := position.NewUpdate().WithLocation(sample.Lat, sample.Lng)
	start := cur
	if found {
		start = prev.Start()
	} else {
		upd.WithStart(sample.Lat, sample.Lng)
	}

	// Stale or repeated samples keep the previous timestamp and velocity. A
	// sample without a client timestamp at the stored coordinates is a resend.
	resend := found && sample.Timestamp.IsZero() && sample.Lat == prev.Lat && sample.Lng == prev.Lng
	if !found {
		upd.WithTimestamp(at)
	} else if !resend && at.After(prev.Timestamp) {
		upd.WithTimestamp(at)
		upd.WithVelocity(geo.AverageSpeedKmh([]geo.TimedPoint{
			{Lat: prev.Lat, Lng: prev.Lng, Time: prev.Timestamp},
			{Lat: sample.Lat, Lng: sample.Lng, Time: at},
		}))
	}

	var destPtr *position.Destination
	if hasDest {
		destPtr = &dest
		remaining := geo.Distance(cur, dest.Point())
		total := geo.Distance(start, dest.Point())
		upd.WithDistanceRemaining(remaining).WithProgress(geo.Progress(total, remaining))
	}

	arrival, err := s.detector.Detect(ctx, sample.RoomID, sample.RoomUserID, prev, cur, destPtr, at)
	if err != nil {
		return position.UserPosition{}, err
	}
	if arrival.State == Arrived && !prev.Arrived {
		// Set-once on the store side, so a retry after a failed write heals.
		upd.WithArrival(arrival.Rank, arrival.At)
	}

	stored, arrivedNow, err := s.positions.Upsert(ctx, sample.RoomID, sample.RoomUserID, *upd)
	if err != nil {
		return position.UserPosition{}, fmt.Errorf("failed to store position: %w", err)
	}

	if sample.Online {
		err = s.positions.MarkOnline(ctx, sample.RoomID, sample.RoomUserID, s.livenessTTL)
	} else {
		err = s.positions.MarkOffline(ctx, sample.RoomID, sample.RoomUserID)
	}
	if err != nil {
		return position.UserPosition{}, fmt.Errorf("failed to update liveness: %w", err)
	}
	stored.Online = sample.Online

	if err := s.ranker.Upsert(ctx, sample.RoomID, sample.RoomUserID, ProgressScore(stored)); err != nil {
		return position.UserPosition{}, err
	}

	// RemoveMember deletes the record before unranking, so a record missing
	// here means the user left while this sample was in flight.
	_, stillThere, err := s.positions.Get(ctx, sample.RoomID, sample.RoomUserID)
	if err != nil {
		return position.UserPosition{}, fmt.Errorf("failed to confirm position: %w", err)
	}
	if !stillThere {
		if err := s.ranker.Remove(ctx, sample.RoomID, sample.RoomUserID); err != nil {
			return position.UserPosition{}, err
		}
		if err := s.positions.MarkOffline(ctx, sample.RoomID, sample.RoomUserID); err != nil {
			return position.UserPosition{}, fmt.Errorf("failed to update liveness: %w", err)
		}
		logger.Info("user %s left room %s during update, dropped from board", sample.RoomUserID, sample.RoomID)
		s.notify(sample.RoomID)
		return stored, nil
	}

	// The event follows the write that flipped the record, not the rank
	// append, so a sample retried after a failed write still announces it.
	if arrivedNow {
		arrivalsTotal.Inc()
		logger.Info("user %s arrived in room %s with rank %d", sample.RoomUserID, sample.RoomID, stored.ArrivalRank)
		s.broadcast(sample.RoomID, &leaderboard.Message{
			Action: leaderboard.ActionArrival,
			Arrival: &leaderboard.Arrival{
				RoomUserID: sample.RoomUserID,
				Rank:       stored.ArrivalRank,
				ArrivedAt:  stored.ArrivedAt,
			},
		})
	}
	s.notify(sample.RoomID)

	return stored, nil
}

func (s *LocationService) requireMember(ctx context.Context, roomID, roomUserID string) error {
	if roomID == "" || roomUserID == "" {
		return ErrNotMember
	}
	member, err := s.directory.IsMember(ctx, roomID, roomUserID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return ErrNotMember
	}
	return nil
}

// IsMember is used by the websocket endpoint before accepting a publisher.
func (s *LocationService) IsMember(ctx context.Context, roomID, roomUserID string) (bool, error) {
	err := s.requireMember(ctx, roomID, roomUserID)
	if errors.Is(err, ErrNotMember) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocationService) notify(roomID string) {
	if s.publisher != nil {
		s.publisher.Notify(roomID)
	}
}

func (s *LocationService) broadcast(roomID string, msg *leaderboard.Message) {
	if s.publisher != nil {
		s.publisher.Broadcast(roomID, msg)
	}
}

// GetLeaderboard reads up to topN entries, best first. topN <= 0 reads the
// whole room.
func (s *LocationService) GetLeaderboard(ctx context.Context, roomID string, topN int) (*leaderboard.Leaderboard, error) {
	dest, hasDest, err := s.directory.Destination(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load destination: %w", err)
	}

	members, err := s.ranker.Snapshot(ctx, roomID, topN)
	if err != nil {
		return nil, err
	}
	total, err := s.ranker.Size(ctx, roomID)
	if err != nil {
		return nil, err
	}

	board := &leaderboard.Leaderboard{
		RoomID:         roomID,
		Entries:        make([]*leaderboard.LeaderboardEntry, 0, len(members)),
		HasDestination: hasDest,
	}
	if hasDest {
		board.TargetArrivalAt = dest.TargetArrivalAt
	}

	for _, m := range members {
		pos, found, err := s.positions.Get(ctx, roomID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load position for %s: %w", m.ID, err)
		}
		if !found {
			// removed between the range read and now
			total--
			continue
		}
		online, err := s.positions.IsOnline(ctx, roomID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read liveness for %s: %w", m.ID, err)
		}
		pos.Online = online
		board.Entries = append(board.Entries, toEntry(len(board.Entries)+1, pos))
	}
	board.TotalUsers = total

	return board, nil
}

// LiveSnapshot is the full board pushed over room channels.
func (s *LocationService) LiveSnapshot(ctx context.Context, roomID string) (*leaderboard.Leaderboard, error) {
	return s.GetLeaderboard(ctx, roomID, 0)
}

func toEntry(rank int, pos position.UserPosition) *leaderboard.LeaderboardEntry {
	entry := &leaderboard.LeaderboardEntry{
		Rank:              rank,
		RoomUserID:        pos.RoomUserID,
		Lat:               pos.Lat,
		Lng:               pos.Lng,
		Online:            pos.Online,
		Velocity:          pos.Velocity,
		DistanceRemaining: pos.DistanceRemaining,
		Progress:          pos.Progress,
		Arrived:           pos.Arrived,
		ArrivalRank:       pos.ArrivalRank,
	}
	entry.ETASeconds = estimateETA(pos)
	return entry
}

// estimateETA assumes the user keeps the last measured speed in a straight line.
func estimateETA(pos position.UserPosition) *float64 {
	if pos.Arrived || pos.DistanceRemaining == nil || pos.Velocity <= 0 {
		return nil
	}
	metersPerSecond := pos.Velocity / 3.6
	eta := *pos.DistanceRemaining / metersPerSecond
	return &eta
}

// GetArrivals lists arrived users in arrival order.
func (s *LocationService) GetArrivals(ctx context.Context, roomID string) ([]*leaderboard.Arrival, error) {
	members, err := s.ranker.Arrivals(ctx, roomID)
	if err != nil {
		return nil, err
	}

	arrivals := make([]*leaderboard.Arrival, 0, len(members))
	for _, m := range members {
		a := &leaderboard.Arrival{RoomUserID: m.ID, Rank: int(m.Score)}
		pos, found, err := s.positions.Get(ctx, roomID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load position for %s: %w", m.ID, err)
		}
		if found {
			a.ArrivedAt = pos.ArrivedAt
		}
		arrivals = append(arrivals, a)
	}
	return arrivals, nil
}

// GetPosition returns the user's stored record with liveness filled in.
func (s *LocationService) GetPosition(ctx context.Context, roomID, roomUserID string) (position.UserPosition, bool, error) {
	pos, found, err := s.positions.Get(ctx, roomID, roomUserID)
	if err != nil {
		return position.UserPosition{}, false, fmt.Errorf("failed to load position: %w", err)
	}
	if !found {
		return position.UserPosition{}, false, nil
	}
	online, err := s.positions.IsOnline(ctx, roomID, roomUserID)
	if err != nil {
		return position.UserPosition{}, false, fmt.Errorf("failed to read liveness: %w", err)
	}
	pos.Online = online
	return pos, true, nil
}

// RemoveMember forgets everything about a user who left the room. The record
// goes first; an in-flight sample checks for it after ranking.
func (s *LocationService) RemoveMember(ctx context.Context, roomID, roomUserID string) error {
	if err := s.positions.Delete(ctx, roomID, roomUserID); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if err := s.ranker.Remove(ctx, roomID, roomUserID); err != nil {
		return err
	}
	logger.Info("removed user %s from room %s", roomUserID, roomID)
	s.notify(roomID)
	return nil
}
