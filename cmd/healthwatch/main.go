package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

var errUnauthorized = errors.New("session expired, log in again")

type step int

const (
	stepEnteringUsername step = iota
	stepEnteringPassword
	stepLoggingIn
	stepWatching
)

type serverHealth struct {
	ServerULID string     `json:"server_ulid"`
	Status     string     `json:"status"`
	ServerName string     `json:"server_name"`
	LastSeen   *time.Time `json:"last_seen"`
}

type model struct {
	step         step
	api          string
	interval     time.Duration
	client       *http.Client
	username     string
	token        string
	currentInput string
	servers      []serverHealth
	updatedAt    time.Time
	message      string
	quitting     bool
}

type loginSuccessMsg struct{ token string }
type healthMsg struct {
	servers []serverHealth
	at      time.Time
}
type pollTickMsg struct{}
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func initialModel(api string, interval time.Duration) model {
	return model{
		step:     stepEnteringUsername,
		api:      strings.TrimRight(api, "/"),
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func tickPoll(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func loginUser(client *http.Client, api, username, password string) tea.Cmd {
	return func() tea.Msg {
		payload, _ := json.Marshal(map[string]string{
			"username": username,
			"password": password,
		})

		resp, err := client.Post(api+"/auth/login", "application/json", bytes.NewReader(payload))
		if err != nil {
			return errMsg{fmt.Errorf("server not reachable: %w", err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg{errors.New("invalid username or password")}
		}

		var result struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.AccessToken == "" {
			return errMsg{errors.New("unexpected login response")}
		}
		return loginSuccessMsg{token: result.AccessToken}
	}
}

func fetchHealth(client *http.Client, api, token string) tea.Cmd {
	return func() tea.Msg {
		req, _ := http.NewRequest(http.MethodGet, api+"/health/all", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg{fmt.Errorf("server not reachable: %w", err)}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return errMsg{errUnauthorized}
		case resp.StatusCode != http.StatusOK:
			return errMsg{fmt.Errorf("health request failed with %d", resp.StatusCode)}
		}

		var servers []serverHealth
		if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
			return errMsg{fmt.Errorf("unexpected health response: %w", err)}
		}
		return healthMsg{servers: servers, at: time.Now()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "q":
			if m.step == stepWatching {
				m.quitting = true
				return m, tea.Quit
			}
			m.currentInput += "q"

		case "backspace":
			if len(m.currentInput) > 0 {
				m.currentInput = m.currentInput[:len(m.currentInput)-1]
			}

		case "enter":
			switch m.step {
			case stepEnteringUsername:
				if m.currentInput != "" {
					m.username = m.currentInput
					m.currentInput = ""
					m.step = stepEnteringPassword
				}

			case stepEnteringPassword:
				if m.currentInput != "" {
					password := m.currentInput
					m.currentInput = ""
					m.step = stepLoggingIn
					m.message = "Logging in..."
					return m, loginUser(m.client, m.api, m.username, password)
				}
			}

		default:
			if m.step == stepEnteringUsername || m.step == stepEnteringPassword {
				m.currentInput += msg.String()
			}
		}

	case loginSuccessMsg:
		m.token = msg.token
		m.step = stepWatching
		m.message = ""
		return m, fetchHealth(m.client, m.api, m.token)

	case healthMsg:
		m.servers = msg.servers
		m.updatedAt = msg.at
		m.message = ""
		return m, tickPoll(m.interval)

	case pollTickMsg:
		if m.step == stepWatching {
			return m, fetchHealth(m.client, m.api, m.token)
		}

	case errMsg:
		m.message = errorStyle.Render("x " + msg.err.Error())
		if m.step != stepWatching || errors.Is(msg.err, errUnauthorized) {
			m.token = ""
			m.step = stepEnteringUsername
			return m, nil
		}
		return m, tickPoll(m.interval)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Server health - " + m.api))
	s.WriteString("\n")

	switch m.step {
	case stepEnteringUsername:
		if m.message != "" {
			s.WriteString(m.message + "\n\n")
		}
		s.WriteString(promptStyle.Render("Enter your username:\n"))
		s.WriteString(inputStyle.Render("> " + m.currentInput))
		s.WriteString("\n\nPress Enter\n")

	case stepEnteringPassword:
		s.WriteString(promptStyle.Render("Enter your password:\n"))
		s.WriteString(inputStyle.Render("> " + strings.Repeat("*", len(m.currentInput))))
		s.WriteString("\n\nPress Enter\n")

	case stepLoggingIn:
		s.WriteString(m.message + "\n")

	case stepWatching:
		if len(m.servers) == 0 {
			s.WriteString("No servers registered for " + m.username + "\n")
		} else {
			s.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-8s %s", "SERVER", "STATUS", "LAST SEEN")))
			s.WriteString("\n")
			for _, srv := range m.servers {
				s.WriteString(renderRow(srv, m.updatedAt))
				s.WriteString("\n")
			}
		}
		if m.message != "" {
			s.WriteString("\n" + m.message + "\n")
		}
		if !m.updatedAt.IsZero() {
			s.WriteString(dimStyle.Render(fmt.Sprintf("\nupdated %s, every %s", m.updatedAt.Format("15:04:05"), m.interval)))
		}
		s.WriteString("\n(Press q to quit)\n")
	}

	return s.String()
}

func renderRow(srv serverHealth, now time.Time) string {
	status := offlineStyle.Render(fmt.Sprintf("%-8s", srv.Status))
	if srv.Status == "online" {
		status = onlineStyle.Render(fmt.Sprintf("%-8s", srv.Status))
	}
	seen := "never"
	if srv.LastSeen != nil {
		seen = now.Sub(*srv.LastSeen).Truncate(time.Second).String() + " ago"
	}
	return fmt.Sprintf("%-24s %s %s", srv.ServerName, status, seen)
}

func main() {
	api := pflag.String("api", "http://localhost:8000", "base URL of the telemetry API")
	interval := pflag.Duration("interval", 2*time.Second, "health polling interval")
	pflag.Parse()

	p := tea.NewProgram(initialModel(*api, *interval))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
