package usecases

import (
	"context"
	"errors"
	"strings"

	"telemetry-server/entities"
	"telemetry-server/repositories"
)

type ServerUseCase struct {
	servers repositories.ServerRepository
	health  *HealthUseCase
}

func NewServerUseCase(servers repositories.ServerRepository, health *HealthUseCase) *ServerUseCase {
	return &ServerUseCase{servers: servers, health: health}
}

// RegisterServer creates a server owned by owner.
func (uc *ServerUseCase) RegisterServer(ctx context.Context, owner *entities.User, name string) (*entities.Server, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, entities.Errorf(entities.ErrInvalidArgument, "Server name is required")
	}
	duplicate := entities.Errorf(entities.ErrConflict, "Server with this name already exists")

	_, err := uc.servers.GetByName(ctx, name)
	switch {
	case err == nil:
		return nil, duplicate
	case !errors.Is(err, entities.ErrNotFound):
		return nil, err
	}

	server := &entities.Server{Name: name, UserID: &owner.ID}
	if err := uc.servers.Create(ctx, server); err != nil {
		if errors.Is(err, entities.ErrConflict) {
			return nil, duplicate
		}
		return nil, err
	}

	// the owner's aggregate health no longer lists every server
	if uc.health != nil {
		uc.health.Forget(ctx, owner.ID)
	}
	return server, nil
}

// ListServers returns the servers owned by owner.
func (uc *ServerUseCase) ListServers(ctx context.Context, owner *entities.User) ([]entities.Server, error) {
	servers, err := uc.servers.ListByUserID(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if servers == nil {
		servers = []entities.Server{}
	}
	return servers, nil
}
