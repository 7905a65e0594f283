package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"telemetry-server/cache"
	"telemetry-server/clock"
	"telemetry-server/db/dbtest"
	"telemetry-server/entities"
	"telemetry-server/repositories"
	"telemetry-server/services"
)

func ptr[T any](v T) *T { return &v }

// countingReadings records how often the store is asked for readings.
type countingReadings struct {
	repositories.SensorReadingRepository
	latest atomic.Int32
	finds  atomic.Int32
}

func (c *countingReadings) LatestByServer(ctx context.Context, serverULID string) (*entities.SensorReading, error) {
	c.latest.Add(1)
	return c.SensorReadingRepository.LatestByServer(ctx, serverULID)
}

func (c *countingReadings) Find(ctx context.Context, filter repositories.ReadingFilter) ([]entities.SensorReading, error) {
	c.finds.Add(1)
	return c.SensorReadingRepository.Find(ctx, filter)
}

type fixture struct {
	clock     *clock.Fake
	store     *cache.MemoryStore
	readings  *countingReadings
	auth      *AuthUseCase
	servers   *ServerUseCase
	health    *HealthUseCase
	telemetry *TelemetryUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := dbtest.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore(fake)

	users := repositories.NewUserPgRepository(database)
	servers := repositories.NewServerPgRepository(database)
	readings := &countingReadings{SensorReadingRepository: repositories.NewSensorReadingPgRepository(database)}

	health := NewHealthUseCase(servers, readings, store, fake, 10*time.Second, 5*time.Minute, log)
	return &fixture{
		clock:     fake,
		store:     store,
		readings:  readings,
		auth:      NewAuthUseCase(users, services.NewBcryptHasher(4), services.NewTokenIssuer("secret", 30*time.Minute, fake), 8),
		servers:   NewServerUseCase(servers, health),
		health:    health,
		telemetry: NewTelemetryUseCase(servers, readings, health, store, fake, time.Hour, time.Minute, log),
	}
}

func (f *fixture) user(t *testing.T, name string) *entities.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), name, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return u
}

func (f *fixture) server(t *testing.T, owner *entities.User, name string) *entities.Server {
	t.Helper()
	s, err := f.servers.RegisterServer(context.Background(), owner, name)
	if err != nil {
		t.Fatalf("register server %s: %v", name, err)
	}
	return s
}

func (f *fixture) ingest(t *testing.T, req IngestRequest) *entities.ReadingView {
	t.Helper()
	v, _, err := f.telemetry.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return v
}
