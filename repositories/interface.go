package repositories

import (
	"context"
	"time"

	"telemetry-server/entities"
)

type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
}

type ServerRepository interface {
	Create(ctx context.Context, server *entities.Server) error
	GetByULID(ctx context.Context, ulid string) (*entities.Server, error)
	GetByName(ctx context.Context, name string) (*entities.Server, error)
	ListByUserID(ctx context.Context, userID string) ([]entities.Server, error)
}

// ReadingFilter narrows a reading lookup. Start and End only apply when
// both are set.
type ReadingFilter struct {
	ServerULID string
	Start      *time.Time
	End        *time.Time
}

// HasRange reports whether the time range applies.
func (f ReadingFilter) HasRange() bool {
	return f.Start != nil && f.End != nil
}

type SensorReadingRepository interface {
	Create(ctx context.Context, reading *entities.SensorReading) error
	GetByIdempotencyKey(ctx context.Context, serverULID, key string) (*entities.SensorReading, error)
	LatestByServer(ctx context.Context, serverULID string) (*entities.SensorReading, error)
	Find(ctx context.Context, filter ReadingFilter) ([]entities.SensorReading, error)
}
