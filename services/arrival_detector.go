package services

import (
	"context"
	"time"

	"meetupAPI/internal/geo"
	"meetupAPI/internal/position"
)

type ArrivalState int

const (
	EnRoute ArrivalState = iota
	Arrived
)

func (s ArrivalState) String() string {
	if s == Arrived {
		return "ARRIVED"
	}
	return "EN_ROUTE"
}

// ArrivalResult.Transitioned is true only for the sample whose append minted
// the rank. The stored record may still lag behind it if that write failed.
type ArrivalResult struct {
	State        ArrivalState
	Transitioned bool
	Rank         int
	At           time.Time
}

// ArrivalDetector moves a user from EN_ROUTE to ARRIVED once, when a sample
// falls inside the arrival radius of the room destination.
type ArrivalDetector struct {
	ranker       *LeaderboardRanker
	radiusMeters float64
}

func NewArrivalDetector(ranker *LeaderboardRanker, radiusMeters float64) *ArrivalDetector {
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultArrivalRadiusMeters
	}
	return &ArrivalDetector{ranker: ranker, radiusMeters: radiusMeters}
}

func (d *ArrivalDetector) RadiusMeters() float64 {
	return d.radiusMeters
}

// Detect evaluates one sample. dest == nil means the room has no destination
// and the detector does nothing. Ranks come from the arrival set's atomic
// append, so concurrent arrivals never share a rank.
func (d *ArrivalDetector) Detect(ctx context.Context, roomID, roomUserID string, prev position.UserPosition, sample geo.Point, dest *position.Destination, at time.Time) (ArrivalResult, error) {
	if prev.Arrived {
		return ArrivalResult{State: Arrived, Rank: prev.ArrivalRank, At: derefTime(prev.ArrivedAt)}, nil
	}
	if dest == nil {
		return ArrivalResult{State: EnRoute}, nil
	}
	if !geo.IsWithinRadius(sample, dest.Point(), d.radiusMeters) {
		return ArrivalResult{State: EnRoute}, nil
	}

	rank, added, err := d.ranker.AppendArrival(ctx, roomID, roomUserID)
	if err != nil {
		return ArrivalResult{}, err
	}
	return ArrivalResult{State: Arrived, Transitioned: added, Rank: rank, At: at}, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
