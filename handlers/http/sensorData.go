package httpHandler

import (
	"net/http"
	"strings"
	"time"

	"telemetry-server/entities"
	"telemetry-server/repositories"
	"telemetry-server/usecases"

	"github.com/gin-gonic/gin"
)

// queryTimeLayouts are tried in order; zone-less forms are read as UTC.
var queryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseQueryTime parses a start_time/end_time query value.
func ParseQueryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range queryTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, entities.Errorf(entities.ErrInvalidArgument, "Invalid time %q: expected RFC 3339 or YYYY-MM-DDTHH:MM:SS", s)
}

type SensorDataHandler struct {
	useCase *usecases.TelemetryUseCase
}

func NewSensorDataHandler(useCase *usecases.TelemetryUseCase) *SensorDataHandler {
	return &SensorDataHandler{useCase: useCase}
}

// SensorDataRequest is the body of POST /data. The same shape arrives over
// the websocket and MQTT transports.
type SensorDataRequest struct {
	ServerULID     string   `json:"server_ulid" binding:"required"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	Voltage        *float64 `json:"voltage"`
	Current        *float64 `json:"current"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

func (r SensorDataRequest) Ingest() usecases.IngestRequest {
	return usecases.IngestRequest{
		ServerULID:     strings.TrimSpace(r.ServerULID),
		Temperature:    r.Temperature,
		Humidity:       r.Humidity,
		Voltage:        r.Voltage,
		Current:        r.Current,
		IdempotencyKey: strings.TrimSpace(r.IdempotencyKey),
	}
}

// CreateSensorData handles POST /data
func (h *SensorDataHandler) CreateSensorData(c *gin.Context) {
	var req SensorDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	view, replayed, err := h.useCase.Ingest(c.Request.Context(), req.Ingest())
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	c.JSON(status, view)
}

// GetSensorData handles GET /data
func (h *SensorDataHandler) GetSensorData(c *gin.Context) {
	filter := repositories.ReadingFilter{ServerULID: strings.TrimSpace(c.Query("server_ulid"))}

	for param, dst := range map[string]**time.Time{"start_time": &filter.Start, "end_time": &filter.End} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := ParseQueryTime(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		*dst = &t
	}

	views, err := h.useCase.Query(c.Request.Context(), filter, c.Query("aggregation"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}
