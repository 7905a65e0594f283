package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"telemetry-server/entities"
	"telemetry-server/usecases"
	"telemetry-server/ws"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeIngester struct {
	mu   sync.Mutex
	reqs []usecases.IngestRequest
}

func (f *fakeIngester) Ingest(_ context.Context, req usecases.IngestRequest) (*entities.ReadingView, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch req.ServerULID {
	case "unknown":
		return nil, false, entities.Errorf(entities.ErrNotFound, "Server not found")
	case "01BROKEN":
		return nil, false, errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}
	f.reqs = append(f.reqs, req)
	return &entities.ReadingView{ID: "r1", ServerULID: req.ServerULID, Temperature: req.Temperature}, false, nil
}

func (f *fakeIngester) received() []usecases.IngestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecases.IngestRequest(nil), f.reqs...)
}

type fakeServers map[string]bool

func (f fakeServers) GetByULID(_ context.Context, ulid string) (*entities.Server, error) {
	if !f[ulid] {
		return nil, entities.Errorf(entities.ErrNotFound, "server not found")
	}
	return &entities.Server{ULID: ulid}, nil
}

type fakeSubscriber struct {
	topic string
	err   error
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	f.topic = topic
	return f.err
}

func TestMQTTIngestor(t *testing.T) {
	ing := &fakeIngester{}
	sub := &fakeSubscriber{}
	s := NewMQTTIngestor(sub, "telemetry/+/readings", ing, discard())

	if err := s.Start(); err != nil || sub.topic != "telemetry/+/readings" {
		t.Fatalf("Start: %v topic=%q", err, sub.topic)
	}

	if !s.Handle("telemetry/01ABC/readings", []byte(`{"temperature": 21.5}`)) {
		t.Fatal("topic-addressed reading rejected")
	}
	if !s.Handle("telemetry/01ABC/readings", []byte(`{"server_ulid": "01XYZ", "voltage": 3.3, "idempotency_key": " k1 "}`)) {
		t.Fatal("payload-addressed reading rejected")
	}
	for _, bad := range []struct{ topic, payload string }{
		{"telemetry/01ABC/readings", `not json`},
		{"readings", `{"temperature": 1}`},
		{"telemetry/unknown/readings", `{"temperature": 1}`},
	} {
		if s.Handle(bad.topic, []byte(bad.payload)) {
			t.Errorf("accepted %s %s", bad.topic, bad.payload)
		}
	}

	got := ing.received()
	if len(got) != 2 {
		t.Fatalf("expected two ingests, got %+v", got)
	}
	if got[0].ServerULID != "01ABC" || *got[0].Temperature != 21.5 {
		t.Errorf("unexpected first request %+v", got[0])
	}
	if got[1].ServerULID != "01XYZ" || got[1].IdempotencyKey != "k1" {
		t.Errorf("unexpected second request %+v", got[1])
	}

	sub.err = errors.New("broker gone")
	if err := s.Start(); err == nil {
		t.Error("expected subscribe error")
	}
}

func TestWebsocketIngestion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ing := &fakeIngester{}
	mgr := ws.NewManager()
	h := NewWSHandler(mgr, fakeServers{"01ABC": true}, ing, discard())

	r := gin.New()
	r.GET("/ws", h.HandleServerWS)
	r.GET("/ws/connected", h.GetConnectedServers)
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(base+"/ws?server_ulid=nope", nil); err == nil || resp.StatusCode != 404 {
		t.Fatalf("unknown server should be refused, got %v", err)
	}
	if _, resp, err := websocket.DefaultDialer.Dial(base+"/ws", nil); err == nil || resp.StatusCode != 400 {
		t.Fatalf("missing server_ulid should be refused, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws?server_ulid=01ABC", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]interface{}{"type": "heartbeat"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]interface{}{"type": "sensor_data", "temperature": 19.5, "server_ulid": "ignored"}); err != nil {
		t.Fatal(err)
	}
	var ack outgoingMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if ack.Type != "ack" || ack.Reading == nil || ack.Reading.ServerULID != "01ABC" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if !mgr.IsConnected("01ABC") {
		t.Error("connection not registered")
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "reboot"}); err != nil {
		t.Fatal(err)
	}
	var reply outgoingMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "error" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws/connected", nil))
	if !strings.Contains(w.Body.String(), "01ABC") {
		t.Errorf("connected list missing server: %s", w.Body.String())
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for mgr.IsConnected("01ABC") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if mgr.IsConnected("01ABC") {
		t.Error("connection not unregistered after close")
	}
}

func TestClientMessage(t *testing.T) {
	if got := clientMessage(entities.Errorf(entities.ErrNotFound, "Server not found")); got != "Server not found" {
		t.Errorf("classified error rewritten: %q", got)
	}
	if got := clientMessage(errors.New("dial tcp 10.0.0.5:5432: connection refused")); got != "Internal server error" {
		t.Errorf("internal error exposed: %q", got)
	}
}

func TestWebsocketHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWSHandler(ws.NewManager(), fakeServers{"01BROKEN": true}, &fakeIngester{}, discard())

	r := gin.New()
	r.GET("/ws", h.HandleServerWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?server_ulid=01BROKEN", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(map[string]interface{}{"type": "sensor_data", "temperature": 20.0}); err != nil {
		t.Fatal(err)
	}
	var reply outgoingMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "error" || reply.Error != "Internal server error" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
