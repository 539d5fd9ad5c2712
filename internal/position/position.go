package position

import (
	"time"

	"meetupAPI/internal/geo"
)

// UserPosition is one user's most recent known location within one room,
// together with the fields derived from it.
type UserPosition struct {
	RoomUserID string    `json:"roomUserId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Timestamp  time.Time `json:"timestamp"`

	StartLat float64 `json:"startLat"`
	StartLng float64 `json:"startLng"`

	Velocity          float64  `json:"velocity"`
	Progress          float64  `json:"progress"`
	DistanceRemaining *float64 `json:"distanceRemaining,omitempty"`

	Arrived     bool       `json:"arrived"`
	ArrivalRank int        `json:"arrivalRank,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`

	// Online is read from the liveness marker, never persisted with the record.
	Online bool `json:"online"`
}

// IsEmpty reports whether the record is the "never reported" sentinel.
func (p UserPosition) IsEmpty() bool {
	return p.RoomUserID == ""
}

func (p UserPosition) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

func (p UserPosition) Start() geo.Point {
	return geo.Point{Lat: p.StartLat, Lng: p.StartLng}
}

// Arrival is the one-time arrival stamp carried by an Update.
type Arrival struct {
	Rank int
	At   time.Time
}

// Update is a partial write. Nil fields leave the stored value untouched.
// Start and Arrival are set-once: they only take effect on a record that
// does not have them yet.
type Update struct {
	Lat               *float64
	Lng               *float64
	Timestamp         *time.Time
	StartLat          *float64
	StartLng          *float64
	Velocity          *float64
	Progress          *float64
	DistanceRemaining *float64
	Arrival           *Arrival
}

func NewUpdate() *Update {
	return &Update{}
}

func (u *Update) WithLocation(lat, lng float64) *Update {
	u.Lat, u.Lng = &lat, &lng
	return u
}

func (u *Update) WithTimestamp(t time.Time) *Update {
	u.Timestamp = &t
	return u
}

func (u *Update) WithStart(lat, lng float64) *Update {
	u.StartLat, u.StartLng = &lat, &lng
	return u
}

func (u *Update) WithVelocity(kmh float64) *Update {
	u.Velocity = &kmh
	return u
}

func (u *Update) WithProgress(p float64) *Update {
	u.Progress = &p
	return u
}

func (u *Update) WithDistanceRemaining(meters float64) *Update {
	u.DistanceRemaining = &meters
	return u
}

func (u *Update) WithArrival(rank int, at time.Time) *Update {
	u.Arrival = &Arrival{Rank: rank, At: at}
	return u
}

// Apply merges u into p and returns the result. The record keeps its
// invariants: start is immutable once set, arrival never reverts, and an
// arrived user has velocity 0 and progress 1.
func (p UserPosition) Apply(roomUserID string, u Update) UserPosition {
	out := p
	fresh := p.IsEmpty()
	out.RoomUserID = roomUserID

	if u.Lat != nil {
		out.Lat = *u.Lat
	}
	if u.Lng != nil {
		out.Lng = *u.Lng
	}
	if u.Timestamp != nil {
		out.Timestamp = *u.Timestamp
	}
	if fresh {
		if u.StartLat != nil {
			out.StartLat = *u.StartLat
		}
		if u.StartLng != nil {
			out.StartLng = *u.StartLng
		}
	}
	if u.Velocity != nil {
		out.Velocity = *u.Velocity
	}
	if u.Progress != nil {
		out.Progress = *u.Progress
	}
	if u.DistanceRemaining != nil {
		d := *u.DistanceRemaining
		out.DistanceRemaining = &d
	}
	if u.Arrival != nil && !out.Arrived {
		at := u.Arrival.At
		out.Arrived = true
		out.ArrivalRank = u.Arrival.Rank
		out.ArrivedAt = &at
	}

	return out.Pinned()
}

// Pinned enforces the arrived invariant on a decoded record.
func (p UserPosition) Pinned() UserPosition {
	if p.Arrived {
		p.Velocity = 0
		p.Progress = 1
	}
	return p
}

// Destination is a room's meeting point. Supplied by the room directory and
// never modified here.
type Destination struct {
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	TargetArrivalAt *time.Time `json:"targetArrivalAt,omitempty"`
}

func (d Destination) Point() geo.Point {
	return geo.Point{Lat: d.Lat, Lng: d.Lng}
}
