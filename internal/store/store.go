// Package store holds the keyed state behind the live leaderboard: the latest
// position per room member, the liveness markers, and the per-room ranked sets.
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"meetupAPI/internal/position"
)

// ErrUnavailable wraps backend failures so callers can tell a transient store
// problem from a validation error.
var ErrUnavailable = errors.New("store unavailable")

// PositionStore keeps each member's latest position and a separately expiring
// liveness marker. The marker expiring never removes the position record.
type PositionStore interface {
	// Get returns the record and true, or an empty record and false when the
	// user has never reported a position.
	Get(ctx context.Context, roomID, roomUserID string) (position.UserPosition, bool, error)

	// Upsert merges upd into the stored record and returns the merged result.
	// arrived is true only for the write that set the arrival stamp, so
	// concurrent or retried arrivals report it exactly once.
	Upsert(ctx context.Context, roomID, roomUserID string, upd position.Update) (pos position.UserPosition, arrived bool, err error)

	MarkOnline(ctx context.Context, roomID, roomUserID string, ttl time.Duration) error
	MarkOffline(ctx context.Context, roomID, roomUserID string) error
	IsOnline(ctx context.Context, roomID, roomUserID string) (bool, error)

	// Delete drops both the record and the marker. Used on explicit leave.
	Delete(ctx context.Context, roomID, roomUserID string) error
}

// Member is one entry of a ranked set.
type Member struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// RankedSet is a per-room ordered collection. Every single call is atomic;
// no call sequence is.
type RankedSet interface {
	Upsert(ctx context.Context, roomID, member string, score float64) error

	// Append inserts member at the next slot (highest score + 1) in one atomic
	// step and returns that slot. A member that is already present keeps its
	// slot and added is false.
	Append(ctx context.Context, roomID, member string) (rank int, added bool, err error)

	// Range returns up to topN members in rank order; topN <= 0 returns all.
	Range(ctx context.Context, roomID string, topN int) ([]Member, error)

	Score(ctx context.Context, roomID, member string) (float64, bool, error)
	Size(ctx context.Context, roomID string) (int, error)
	Remove(ctx context.Context, roomID, member string) error
}

// Order decides how a ranked set is read.
type Order int

const (
	// Ascending puts the lowest score first.
	Ascending Order = iota
	// Descending puts the highest score first.
	Descending
)

func positionKey(roomID, roomUserID string) string {
	return "room:" + roomID + ":position:" + roomUserID
}

func onlineKey(roomID, roomUserID string) string {
	return "room:" + roomID + ":online:" + roomUserID
}

func rankedKey(roomID, name string) string {
	return "room:" + roomID + ":" + name
}
