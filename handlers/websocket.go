package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"telemetry-server/entities"
	"telemetry-server/usecases"
	"telemetry-server/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Ingester persists one reading.
type Ingester interface {
	Ingest(ctx context.Context, req usecases.IngestRequest) (*entities.ReadingView, bool, error)
}

// ServerFinder looks servers up by ULID.
type ServerFinder interface {
	GetByULID(ctx context.Context, ulid string) (*entities.Server, error)
}

// ReadingMessage is a reading pushed by a device over websocket or MQTT.
type ReadingMessage struct {
	Type           string   `json:"type"` // sensor_data | heartbeat
	ServerULID     string   `json:"server_ulid,omitempty"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	Voltage        *float64 `json:"voltage"`
	Current        *float64 `json:"current"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

func (m ReadingMessage) request(serverULID string) usecases.IngestRequest {
	return usecases.IngestRequest{
		ServerULID:     serverULID,
		Temperature:    m.Temperature,
		Humidity:       m.Humidity,
		Voltage:        m.Voltage,
		Current:        m.Current,
		IdempotencyKey: strings.TrimSpace(m.IdempotencyKey),
	}
}

type outgoingMessage struct {
	Type     string                `json:"type"` // ack | error
	Reading  *entities.ReadingView `json:"reading,omitempty"`
	Replayed bool                  `json:"replayed,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// WSHandler groups dependencies for websocket flows
type WSHandler struct {
	mgr     *ws.Manager
	servers ServerFinder
	ingest  Ingester
	log     *slog.Logger
}

func NewWSHandler(mgr *ws.Manager, servers ServerFinder, ingest Ingester, log *slog.Logger) *WSHandler {
	return &WSHandler{mgr: mgr, servers: servers, ingest: ingest, log: log}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleServerWS upgrades to websocket and ingests readings sent by a server
// GET /ws?server_ulid=<ulid>
func (h *WSHandler) HandleServerWS(c *gin.Context) {
	serverULID := strings.TrimSpace(c.Query("server_ulid"))
	if serverULID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing server_ulid"})
		return
	}
	if _, err := h.servers.GetByULID(c.Request.Context(), serverULID); err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
			return
		}
		h.log.Error("websocket server lookup failed", "server_ulid", serverULID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "server_ulid", serverULID, "error", err)
		return
	}
	conn := h.mgr.Register(serverULID, raw)
	log := h.log.With("server_ulid", serverULID)
	log.Info("server connected")
	defer func() {
		h.mgr.Unregister(serverULID, conn)
		log.Info("server disconnected")
	}()

	ctx := c.Request.Context()
	for {
		mt, message, err := raw.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg ReadingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = conn.WriteJSON(outgoingMessage{Type: "error", Error: "invalid json"})
			continue
		}

		switch msg.Type {
		case "sensor_data":
			view, replayed, err := h.ingest.Ingest(ctx, msg.request(serverULID))
			if err != nil {
				log.Warn("websocket ingest failed", "error", err)
				_ = conn.WriteJSON(outgoingMessage{Type: "error", Error: clientMessage(err)})
				continue
			}
			_ = conn.WriteJSON(outgoingMessage{Type: "ack", Reading: view, Replayed: replayed})
		case "heartbeat":
			// connection liveness only; health follows readings
		default:
			_ = conn.WriteJSON(outgoingMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// clientMessage returns the text a device may see for err. Errors without a
// known kind stay in the log.
func clientMessage(err error) string {
	for _, kind := range []error{entities.ErrUnauthenticated, entities.ErrInvalidArgument, entities.ErrNotFound, entities.ErrConflict} {
		if errors.Is(err, kind) {
			return err.Error()
		}
	}
	return "Internal server error"
}

// GetConnectedServers GET /ws/connected
func (h *WSHandler) GetConnectedServers(c *gin.Context) {
	ids := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"servers": ids, "count": len(ids)})
}
