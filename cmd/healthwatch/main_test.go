package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "password123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
	})
	mux.HandleFunc("/health/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]serverHealth{
			{ServerULID: "01A", Status: "online", ServerName: "sensor-1"},
			{ServerULID: "01B", Status: "offline", ServerName: "sensor-2"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return m
}

func TestLoginAndWatch(t *testing.T) {
	api := fakeAPI(t)
	var m tea.Model = initialModel(api.URL+"/", time.Second)

	m = typeText(m, "alice")
	for _, r := range "password123" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.(model).step != stepLoggingIn || cmd == nil {
		t.Fatalf("expected a login command, step %v", m.(model).step)
	}

	msg := cmd()
	if _, ok := msg.(loginSuccessMsg); !ok {
		t.Fatalf("login returned %#v", msg)
	}
	m, cmd = m.Update(msg)
	if m.(model).step != stepWatching {
		t.Fatal("expected watching step")
	}

	m, _ = m.Update(cmd())
	view := m.View()
	for _, want := range []string{"sensor-1", "sensor-2", "online", "offline", "never"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestLoginFailureReturnsToPrompt(t *testing.T) {
	api := fakeAPI(t)
	m := initialModel(api.URL, time.Second)

	msg := loginUser(m.client, m.api, "alice", "wrong")()
	next, _ := m.Update(msg)
	got := next.(model)
	if got.step != stepEnteringUsername || !strings.Contains(got.message, "invalid username or password") {
		t.Fatalf("unexpected state step=%v message=%q", got.step, got.message)
	}
}

func TestExpiredSessionLogsOut(t *testing.T) {
	api := fakeAPI(t)
	m := initialModel(api.URL, time.Second)
	m.step = stepWatching
	m.token = "stale"

	next, _ := m.Update(fetchHealth(m.client, m.api, m.token)())
	if got := next.(model); got.step != stepEnteringUsername || got.token != "" {
		t.Fatalf("expected logout, got step=%v", got.step)
	}
}
