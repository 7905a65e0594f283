package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"telemetry-server/db/dbtest"
	"telemetry-server/entities"
	"telemetry-server/repositories"
)

func ptr[T any](v T) *T { return &v }

func TestServerRepositoryUniqueName(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	users := repositories.NewUserPgRepository(database)
	servers := repositories.NewServerPgRepository(database)

	owner := &entities.User{Username: "alice", PasswordHash: "x"}
	if err := users.Create(ctx, owner); err != nil {
		t.Fatalf("create user: %v", err)
	}

	first := &entities.Server{Name: "sensor-1", UserID: &owner.ID}
	if err := servers.Create(ctx, first); err != nil {
		t.Fatalf("create server: %v", err)
	}
	if first.ULID == "" {
		t.Fatal("expected generated ULID")
	}

	err := servers.Create(ctx, &entities.Server{Name: "sensor-1", UserID: &owner.ID})
	if !errors.Is(err, entities.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := servers.GetByName(ctx, "sensor-1")
	if err != nil || got.ULID != first.ULID {
		t.Fatalf("GetByName = %+v, %v", got, err)
	}

	list, err := servers.ListByUserID(ctx, owner.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUserID = %v, %v", list, err)
	}

	if _, err := servers.GetByULID(ctx, entities.NewID()); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepositoryUniqueUsername(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserPgRepository(dbtest.New(t))

	u := &entities.User{Username: "bob", PasswordHash: "h"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := users.Create(ctx, &entities.User{Username: "bob", PasswordHash: "h"}); !errors.Is(err, entities.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := users.GetByID(ctx, u.ID)
	if err != nil || got.Username != "bob" {
		t.Fatalf("GetByID = %+v, %v", got, err)
	}
	if _, err := users.GetByUsername(ctx, "carol"); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSensorReadingRepositoryLatestAndFind(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	servers := repositories.NewServerPgRepository(database)
	readings := repositories.NewSensorReadingPgRepository(database)

	server := &entities.Server{Name: "rack-a"}
	if err := servers.Create(ctx, server); err != nil {
		t.Fatal(err)
	}
	other := &entities.Server{Name: "rack-b"}
	if err := servers.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	if _, err := readings.LatestByServer(ctx, server.ULID); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty server, got %v", err)
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := &entities.SensorReading{
			ServerULID:  server.ULID,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Temperature: ptr(20.0 + float64(i)),
		}
		if err := readings.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := readings.Create(ctx, &entities.SensorReading{ServerULID: other.ULID, Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	latest, err := readings.LatestByServer(ctx, server.ULID)
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Timestamp.Equal(base.Add(2*time.Minute)) || *latest.Temperature != 22 {
		t.Errorf("latest = %+v", latest)
	}

	all, err := readings.Find(ctx, repositories.ReadingFilter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("Find all = %d, %v", len(all), err)
	}

	byServer, err := readings.Find(ctx, repositories.ReadingFilter{ServerULID: server.ULID})
	if err != nil || len(byServer) != 3 {
		t.Fatalf("Find by server = %d, %v", len(byServer), err)
	}
	if !byServer[0].Timestamp.Before(byServer[2].Timestamp) {
		t.Errorf("expected ascending timestamps")
	}

	start, end := base.Add(30*time.Second), base.Add(2*time.Minute)
	ranged, err := readings.Find(ctx, repositories.ReadingFilter{ServerULID: server.ULID, Start: &start, End: &end})
	if err != nil || len(ranged) != 2 {
		t.Fatalf("Find ranged = %d, %v", len(ranged), err)
	}

	// a lone bound is ignored
	startOnly, err := readings.Find(ctx, repositories.ReadingFilter{ServerULID: server.ULID, Start: &end})
	if err != nil || len(startOnly) != 3 {
		t.Fatalf("Find start only = %d, %v", len(startOnly), err)
	}
}

func TestSensorReadingRepositoryIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	servers := repositories.NewServerPgRepository(database)
	readings := repositories.NewSensorReadingPgRepository(database)

	server := &entities.Server{Name: "rack-k"}
	if err := servers.Create(ctx, server); err != nil {
		t.Fatal(err)
	}

	first := &entities.SensorReading{ServerULID: server.ULID, Timestamp: time.Now().UTC(), IdempotencyKey: ptr("k-1")}
	if err := readings.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	dup := &entities.SensorReading{ServerULID: server.ULID, Timestamp: time.Now().UTC(), IdempotencyKey: ptr("k-1")}
	if err := readings.Create(ctx, dup); !errors.Is(err, entities.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// readings without a key never collide
	for i := 0; i < 2; i++ {
		if err := readings.Create(ctx, &entities.SensorReading{ServerULID: server.ULID, Timestamp: time.Now().UTC()}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := readings.GetByIdempotencyKey(ctx, server.ULID, "k-1")
	if err != nil || got.ID != first.ID {
		t.Fatalf("GetByIdempotencyKey = %+v, %v", got, err)
	}
}
