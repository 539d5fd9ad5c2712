package services

import (
	"context"
	"fmt"

	"meetupAPI/internal/position"
	"meetupAPI/internal/store"
)

const (
	ProgressSetName = "progress"
	ArrivalSetName  = "arrivals"
)

// LeaderboardRanker owns the two ranked sets of every room: the live board
// ordered by travel progress, and the arrival order.
type LeaderboardRanker struct {
	progress store.RankedSet
	arrivals store.RankedSet
}

// NewLeaderboardRanker expects progress to read descending and arrivals ascending.
func NewLeaderboardRanker(progress, arrivals store.RankedSet) *LeaderboardRanker {
	return &LeaderboardRanker{progress: progress, arrivals: arrivals}
}

// ProgressScore is the live board key. Arrived users score above 1 so they
// stay ahead of everyone still travelling, ordered among themselves by
// arrival rank.
func ProgressScore(p position.UserPosition) float64 {
	if p.Arrived && p.ArrivalRank > 0 {
		return 1 + 1/float64(p.ArrivalRank)
	}
	return p.Progress
}

func (r *LeaderboardRanker) Upsert(ctx context.Context, roomID, roomUserID string, score float64) error {
	if err := r.progress.Upsert(ctx, roomID, roomUserID, score); err != nil {
		return fmt.Errorf("failed to rank %s: %w", roomUserID, err)
	}
	return nil
}

// Snapshot returns up to topN members of the live board; topN <= 0 returns all.
func (r *LeaderboardRanker) Snapshot(ctx context.Context, roomID string, topN int) ([]store.Member, error) {
	members, err := r.progress.Range(ctx, roomID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return members, nil
}

func (r *LeaderboardRanker) Size(ctx context.Context, roomID string) (int, error) {
	n, err := r.progress.Size(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to size leaderboard: %w", err)
	}
	return n, nil
}

// AppendArrival takes the next arrival slot for the user in one atomic step.
// A user who already holds a slot gets it back with added == false.
func (r *LeaderboardRanker) AppendArrival(ctx context.Context, roomID, roomUserID string) (int, bool, error) {
	rank, added, err := r.arrivals.Append(ctx, roomID, roomUserID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to assign arrival rank: %w", err)
	}
	return rank, added, nil
}

func (r *LeaderboardRanker) Arrivals(ctx context.Context, roomID string) ([]store.Member, error) {
	members, err := r.arrivals.Range(ctx, roomID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read arrivals: %w", err)
	}
	return members, nil
}

// Remove drops the user from both sets. Only an explicit leave does this.
func (r *LeaderboardRanker) Remove(ctx context.Context, roomID, roomUserID string) error {
	if err := r.progress.Remove(ctx, roomID, roomUserID); err != nil {
		return fmt.Errorf("failed to remove from leaderboard: %w", err)
	}
	if err := r.arrivals.Remove(ctx, roomID, roomUserID); err != nil {
		return fmt.Errorf("failed to remove from arrivals: %w", err)
	}
	return nil
}
