package repositories

import (
	"context"

	"telemetry-server/db"
	"telemetry-server/entities"
)

type serverPgRepository struct {
	db db.Database
}

func NewServerPgRepository(database db.Database) ServerRepository {
	return &serverPgRepository{db: database}
}

func (r *serverPgRepository) Create(ctx context.Context, server *entities.Server) error {
	return translate(r.db.GetDB().WithContext(ctx).Create(server).Error, "server")
}

func (r *serverPgRepository) GetByULID(ctx context.Context, ulid string) (*entities.Server, error) {
	var server entities.Server
	if err := r.db.GetDB().WithContext(ctx).Where("ulid = ?", ulid).First(&server).Error; err != nil {
		return nil, translate(err, "server")
	}
	return &server, nil
}

func (r *serverPgRepository) GetByName(ctx context.Context, name string) (*entities.Server, error) {
	var server entities.Server
	if err := r.db.GetDB().WithContext(ctx).Where("name = ?", name).First(&server).Error; err != nil {
		return nil, translate(err, "server")
	}
	return &server, nil
}

func (r *serverPgRepository) ListByUserID(ctx context.Context, userID string) ([]entities.Server, error) {
	var servers []entities.Server
	err := r.db.GetDB().WithContext(ctx).Where("user_id = ?", userID).Order("ulid ASC").Find(&servers).Error
	return servers, translate(err, "servers")
}
