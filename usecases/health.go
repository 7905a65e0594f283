package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"telemetry-server/cache"
	"telemetry-server/clock"
	"telemetry-server/entities"
	"telemetry-server/repositories"
)

// healthEntry is what the health cache keeps for a server. The status is not
// stored; it is derived from LastSeen whenever the entry is read.
type healthEntry struct {
	ServerULID string     `json:"server_ulid"`
	ServerName string     `json:"server_name"`
	OwnerID    string     `json:"owner_id"`
	LastSeen   *time.Time `json:"last_seen"`
}

func serverHealthKey(serverULID string) string { return "health:server:" + serverULID }

func userHealthKey(userID string) string { return "health:user:" + userID }

type HealthUseCase struct {
	servers   repositories.ServerRepository
	readings  repositories.SensorReadingRepository
	perServer *cache.Typed[healthEntry]
	perUser   *cache.Typed[[]healthEntry]
	clock     clock.Clock
	threshold time.Duration
	ttl       time.Duration
	log       *slog.Logger
}

func NewHealthUseCase(
	servers repositories.ServerRepository,
	readings repositories.SensorReadingRepository,
	store cache.Store,
	c clock.Clock,
	threshold, ttl time.Duration,
	log *slog.Logger,
) *HealthUseCase {
	return &HealthUseCase{
		servers:   servers,
		readings:  readings,
		perServer: cache.NewTyped[healthEntry](store, log),
		perUser:   cache.NewTyped[[]healthEntry](store, log),
		clock:     c,
		threshold: threshold,
		ttl:       ttl,
		log:       log,
	}
}

// Classify reports online when the last reading is no older than threshold.
// A server that never reported is offline.
func Classify(now time.Time, lastSeen *time.Time, threshold time.Duration) entities.HealthStatus {
	if lastSeen == nil || now.Sub(*lastSeen) > threshold {
		return entities.StatusOffline
	}
	return entities.StatusOnline
}

// EvaluateServer returns the health of one of the caller's servers. Servers
// owned by someone else are reported as not found.
func (uc *HealthUseCase) EvaluateServer(ctx context.Context, caller *entities.User, serverULID string) (*entities.ServerHealth, error) {
	notFound := entities.Errorf(entities.ErrNotFound, "Server not found")

	entry, ok, err := uc.perServer.Get(ctx, serverHealthKey(serverULID))
	if err != nil {
		return nil, fmt.Errorf("read health cache: %w", err)
	}
	if ok && entry.ServerULID == serverULID {
		if entry.OwnerID != caller.ID {
			return nil, notFound
		}
		report := uc.report(entry)
		return &report, nil
	}

	server, err := uc.servers.GetByULID(ctx, serverULID)
	if errors.Is(err, entities.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	if !server.OwnedBy(caller.ID) {
		return nil, notFound
	}

	entry, err = uc.load(ctx, server)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, entry)
	report := uc.report(entry)
	return &report, nil
}

// EvaluateAll returns the health of every server the caller owns, in ULID
// order. A caller without servers gets an empty list.
func (uc *HealthUseCase) EvaluateAll(ctx context.Context, caller *entities.User) ([]entities.ServerHealth, error) {
	key := userHealthKey(caller.ID)
	entries, ok, err := uc.perUser.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read health cache: %w", err)
	}

	if !ok {
		servers, err := uc.servers.ListByUserID(ctx, caller.ID)
		if err != nil {
			return nil, err
		}
		entries = make([]healthEntry, 0, len(servers))
		for i := range servers {
			entry, err := uc.load(ctx, &servers[i])
			if err != nil {
				return nil, err
			}
			uc.remember(ctx, entry)
			entries = append(entries, entry)
		}
		if err := uc.perUser.Set(ctx, key, entries, uc.ttl); err != nil {
			uc.log.Warn("health cache write failed", "key", key, "error", err)
		}
	}

	reports := make([]entities.ServerHealth, 0, len(entries))
	for _, entry := range entries {
		reports = append(reports, uc.report(entry))
	}
	return reports, nil
}

// RecordReading moves the cached last-seen time of server forward and drops
// its owner's aggregate entry. Failures are logged only.
func (uc *HealthUseCase) RecordReading(ctx context.Context, server *entities.Server, at time.Time) {
	entry := healthEntry{ServerULID: server.ULID, ServerName: server.Name, LastSeen: &at}
	if server.UserID != nil {
		entry.OwnerID = *server.UserID
	}
	uc.remember(ctx, entry)
	uc.Forget(ctx, entry.OwnerID)
}

// Forget drops the aggregate entry of userID.
func (uc *HealthUseCase) Forget(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	key := userHealthKey(userID)
	if err := uc.perUser.Delete(ctx, key); err != nil {
		uc.log.Warn("health cache invalidation failed", "key", key, "error", err)
	}
}

func (uc *HealthUseCase) load(ctx context.Context, server *entities.Server) (healthEntry, error) {
	entry := healthEntry{ServerULID: server.ULID, ServerName: server.Name}
	if server.UserID != nil {
		entry.OwnerID = *server.UserID
	}

	latest, err := uc.readings.LatestByServer(ctx, server.ULID)
	switch {
	case errors.Is(err, entities.ErrNotFound):
	case err != nil:
		return entry, err
	default:
		ts := latest.Timestamp.UTC()
		entry.LastSeen = &ts
	}
	return entry, nil
}

func (uc *HealthUseCase) remember(ctx context.Context, entry healthEntry) {
	key := serverHealthKey(entry.ServerULID)
	if err := uc.perServer.Set(ctx, key, entry, uc.ttl); err != nil {
		uc.log.Warn("health cache write failed", "key", key, "error", err)
	}
}

func (uc *HealthUseCase) report(entry healthEntry) entities.ServerHealth {
	return entities.ServerHealth{
		ServerULID: entry.ServerULID,
		Status:     Classify(uc.clock.Now(), entry.LastSeen, uc.threshold),
		ServerName: entry.ServerName,
		LastSeen:   entry.LastSeen,
	}
}
