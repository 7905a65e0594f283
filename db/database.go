package db

import (
	"context"

	"gorm.io/gorm"
)

type Database interface {
	GetDB() *gorm.DB
	Ping(ctx context.Context) error
}

type GormDatabase struct {
	DB *gorm.DB
}

func (g *GormDatabase) GetDB() *gorm.DB { return g.DB }

func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
