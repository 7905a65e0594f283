package entities

import (
	"time"

	"gorm.io/gorm"
)

// SensorReading is one ingestion call's worth of measurements. Readings are
// append-only; Timestamp is assigned by the ingestion path.
type SensorReading struct {
	ID             string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	ServerULID     string    `gorm:"column:server_ulid;type:varchar(26);not null;index:idx_readings_server_ts,priority:1;uniqueIndex:idx_readings_idempotency,priority:1" json:"server_ulid"`
	Server         *Server   `gorm:"foreignKey:ServerULID;references:ULID;constraint:OnDelete:CASCADE" json:"-"`
	Timestamp      time.Time `gorm:"not null;index:idx_readings_server_ts,priority:2" json:"timestamp"`
	Temperature    *float64  `json:"temperature"`
	Humidity       *float64  `json:"humidity"`
	Voltage        *float64  `json:"voltage"`
	Current        *float64  `json:"current"`
	IdempotencyKey *string   `gorm:"type:varchar(128);uniqueIndex:idx_readings_idempotency,priority:2" json:"-"`
}

func (SensorReading) TableName() string { return "sensor_readings" }

func (r *SensorReading) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = NewID()
	}
	return
}

// View renders the reading in the shared output shape.
func (r *SensorReading) View() ReadingView {
	return ReadingView{
		ID:          r.ID,
		ServerULID:  r.ServerULID,
		Timestamp:   FormatTimestamp(r.Timestamp),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Voltage:     r.Voltage,
		Current:     r.Current,
	}
}

// ReadingView is the single response shape for raw and aggregated rows.
// Aggregated rows carry a synthetic ID and Aggregated=true.
type ReadingView struct {
	ID          string   `json:"id"`
	ServerULID  string   `json:"server_ulid"`
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Voltage     *float64 `json:"voltage"`
	Current     *float64 `json:"current"`
	Aggregated  bool     `json:"aggregated"`
}

// FormatTimestamp is the textual timestamp form used in responses.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
