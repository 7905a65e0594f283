package repositories

import (
	"context"

	"telemetry-server/db"
	"telemetry-server/entities"
)

type sensorReadingPgRepository struct {
	db db.Database
}

func NewSensorReadingPgRepository(database db.Database) SensorReadingRepository {
	return &sensorReadingPgRepository{db: database}
}

func (r *sensorReadingPgRepository) Create(ctx context.Context, reading *entities.SensorReading) error {
	return translate(r.db.GetDB().WithContext(ctx).Create(reading).Error, "sensor reading")
}

func (r *sensorReadingPgRepository) GetByIdempotencyKey(ctx context.Context, serverULID, key string) (*entities.SensorReading, error) {
	var reading entities.SensorReading
	err := r.db.GetDB().WithContext(ctx).
		Where("server_ulid = ? AND idempotency_key = ?", serverULID, key).
		First(&reading).Error
	if err != nil {
		return nil, translate(err, "sensor reading")
	}
	return &reading, nil
}

func (r *sensorReadingPgRepository) LatestByServer(ctx context.Context, serverULID string) (*entities.SensorReading, error) {
	var reading entities.SensorReading
	err := r.db.GetDB().WithContext(ctx).
		Where("server_ulid = ?", serverULID).
		Order("sensor_readings.timestamp DESC").Order("id DESC").
		Limit(1).
		Take(&reading).Error
	if err != nil {
		return nil, translate(err, "sensor data")
	}
	return &reading, nil
}

func (r *sensorReadingPgRepository) Find(ctx context.Context, filter ReadingFilter) ([]entities.SensorReading, error) {
	q := r.db.GetDB().WithContext(ctx).Model(&entities.SensorReading{})
	if filter.ServerULID != "" {
		q = q.Where("server_ulid = ?", filter.ServerULID)
	}
	if filter.HasRange() {
		q = q.Where("sensor_readings.timestamp BETWEEN ? AND ?", filter.Start.UTC(), filter.End.UTC())
	}

	var readings []entities.SensorReading
	err := q.Order("sensor_readings.timestamp ASC").Order("id ASC").Find(&readings).Error
	return readings, translate(err, "sensor data")
}
