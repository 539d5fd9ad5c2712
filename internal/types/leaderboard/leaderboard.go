package leaderboard

import "time"

type LeaderboardEntry struct {
	Rank              int      `json:"rank"`
	RoomUserID        string   `json:"roomUserId"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	Online            bool     `json:"online"`
	Velocity          float64  `json:"velocity"`
	DistanceRemaining *float64 `json:"distanceRemaining,omitempty"`
	Progress          float64  `json:"progress"`
	Arrived           bool     `json:"arrived"`
	ArrivalRank       int      `json:"arrivalRank,omitempty"`
	ETASeconds        *float64 `json:"etaSeconds,omitempty"`
}

type Leaderboard struct {
	RoomID          string              `json:"roomId"`
	Entries         []*LeaderboardEntry `json:"entries"`
	TotalUsers      int                 `json:"totalUsers"`
	HasDestination  bool                `json:"hasDestination"`
	TargetArrivalAt *time.Time          `json:"targetArrivalAt,omitempty"`
}

type Arrival struct {
	RoomUserID string     `json:"roomUserId"`
	Rank       int        `json:"rank"`
	ArrivedAt  *time.Time `json:"arrivedAt,omitempty"`
}

// Push payloads sent over the room channel.
const (
	ActionLeaderboardUpdate = "leaderboard_update"
	ActionArrival           = "arrival"
	ActionError             = "error"
)

type Message struct {
	Action      string       `json:"action"`
	Seq         uint64       `json:"seq,omitempty"`
	Leaderboard *Leaderboard `json:"leaderboard,omitempty"`
	Arrival     *Arrival     `json:"arrival,omitempty"`
	Error       string       `json:"error,omitempty"`
}
