package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetupAPI/internal/position"
)

// PostgresDirectory reads the rooms and room_users tables owned by the room
// service.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Destination(ctx context.Context, roomID string) (position.Destination, bool, error) {
	query := `
	SELECT destination_lat, destination_lng, target_arrival_at
	FROM rooms
	WHERE id = $1
	`

	var (
		lat, lng *float64
		target   *time.Time
	)
	err := d.db.QueryRow(ctx, query, roomID).Scan(&lat, &lng, &target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return position.Destination{}, false, ErrRoomNotFound
		}
		return position.Destination{}, false, fmt.Errorf("failed to get room destination: %w", err)
	}

	if lat == nil || lng == nil {
		return position.Destination{}, false, nil
	}
	return position.Destination{Lat: *lat, Lng: *lng, TargetArrivalAt: target}, true, nil
}

func (d *PostgresDirectory) IsMember(ctx context.Context, roomID, roomUserID string) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM room_users
		WHERE id = $1 AND room_id = $2
	)
	`

	var exists bool
	if err := d.db.QueryRow(ctx, query, roomUserID, roomID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check room membership: %w", err)
	}
	return exists, nil
}

func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}
