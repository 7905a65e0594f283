package mqttclient

import (
	"strings"
	"testing"
)

func TestClientIDIsUnique(t *testing.T) {
	a, b := ClientID("telemetry-server"), ClientID("telemetry-server")
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	if !strings.HasPrefix(a, "telemetry-server-") || len(a) != len("telemetry-server-")+8 {
		t.Fatalf("unexpected ID %q", a)
	}
}
