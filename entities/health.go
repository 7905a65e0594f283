package entities

import "time"

type HealthStatus string

const (
	StatusOnline  HealthStatus = "online"
	StatusOffline HealthStatus = "offline"
)

// ServerHealth is the health report for one server.
type ServerHealth struct {
	ServerULID string       `json:"server_ulid"`
	Status     HealthStatus `json:"status"`
	ServerName string       `json:"server_name"`
	LastSeen   *time.Time   `json:"last_seen,omitempty"`
}
