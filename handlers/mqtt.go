package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber is the part of an MQTT client the ingestor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTIngestor stores readings published on a topic such as
// telemetry/<server_ulid>/readings.
type MQTTIngestor struct {
	client  Subscriber
	topic   string
	ingest  Ingester
	log     *slog.Logger
	timeout time.Duration
}

func NewMQTTIngestor(client Subscriber, topic string, ingest Ingester, log *slog.Logger) *MQTTIngestor {
	return &MQTTIngestor{
		client:  client,
		topic:   topic,
		ingest:  ingest,
		log:     log.With("component", "mqtt"),
		timeout: 10 * time.Second,
	}
}

func (s *MQTTIngestor) Start() error {
	if err := s.client.Subscribe(s.topic, 1, s.handle); err != nil {
		return err
	}
	s.log.Info("subscribed", "topic", s.topic)
	return nil
}

func (s *MQTTIngestor) handle(_ mqtt.Client, msg mqtt.Message) {
	s.Handle(msg.Topic(), msg.Payload())
}

// Handle ingests one published payload. The payload's server_ulid wins over
// the ULID in the topic.
func (s *MQTTIngestor) Handle(topic string, payload []byte) bool {
	var m ReadingMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		s.log.Warn("failed to parse payload", "topic", topic, "error", err)
		return false
	}
	serverULID := strings.TrimSpace(m.ServerULID)
	if serverULID == "" {
		serverULID = serverFromTopic(topic)
	}
	if serverULID == "" {
		s.log.Warn("missing server_ulid", "topic", topic)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	view, replayed, err := s.ingest.Ingest(ctx, m.request(serverULID))
	if err != nil {
		s.log.Warn("ingest failed", "server_ulid", serverULID, "error", err)
		return false
	}
	s.log.Debug("stored reading", "server_ulid", serverULID, "id", view.ID, "replayed", replayed)
	return true
}

// serverFromTopic returns the second segment of a/b/c topics.
func serverFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
