package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/agent-collab/internal/config"
	"github.com/kingrea/agent-collab/internal/workflow"
	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

type staticStatus engine.Status

func (s staticStatus) Status() engine.Status { return engine.Status(s) }

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings, opts...)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return srv
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Project.Monitor = config.MonitorConfig{Enabled: true, Host: " 0.0.0.0 ", Port: 9001}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if !settings.Enabled {
		t.Fatalf("expected enabled")
	}
	if settings.Backlog != DefaultBacklog || settings.ReadTimeout != DefaultReadTimeout {
		t.Fatalf("expected defaults, got %+v", settings)
	}
}

func TestSettingsFromNilConfigUsesDefaults(t *testing.T) {
	settings := SettingsFromConfig(nil)
	if settings.Enabled {
		t.Fatalf("expected disabled monitor by default")
	}
	if settings.Address() != "127.0.0.1:8765" {
		t.Fatalf("address = %s", settings.Address())
	}
}

func TestStartDisabled(t *testing.T) {
	srv := NewServer(Settings{Enabled: false})
	if err := srv.Start(context.Background()); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestServerServesHealthAndState(t *testing.T) {
	t.Parallel()
	status := staticStatus{Phase: workflow.PhaseReview.Key(), Iteration: 2, MaxIterations: 5}
	srv := startServer(t, WithStatus(status))
	base := srv.BaseURL()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != string(StatusReady) {
		t.Fatalf("unexpected health %d %+v", resp.StatusCode, health)
	}

	resp, err = http.Get(base + "/state")
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	defer resp.Body.Close()
	var got engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.Phase != "review" || got.Iteration != 2 || got.MaxIterations != 5 {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestStateWithoutSource(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	resp, err := http.Get(srv.BaseURL() + "/state")
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStateRejectsWrites(t *testing.T) {
	t.Parallel()
	srv := startServer(t, WithStatus(staticStatus{}))
	resp, err := http.Post(srv.BaseURL()+"/state", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServerMountsMetrics(t *testing.T) {
	t.Parallel()
	metrics := engine.NewMetrics()
	srv := startServer(t, WithMetricsHandler(metrics.Handler()))
	resp, err := http.Get(srv.BaseURL() + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "agent_collab_review_iteration") {
		t.Fatalf("metrics body missing gauge:\n%s", body)
	}
}

func TestEventsStreamReplaysAndFollows(t *testing.T) {
	t.Parallel()
	hub := NewHub(10, nil)
	hub.OnPhaseChange(workflow.PhaseWritePlan)
	srv := startServer(t, WithHub(hub))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.BaseURL()+"/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.Type != EventPhase || first.Phase != "write_plan" {
		t.Fatalf("unexpected replayed event %+v", first)
	}
	hub.OnOutput("hello")
	second := readEvent(t, reader)
	if second.Type != EventOutput || second.Text != "hello" || second.Sequence != 2 {
		t.Fatalf("unexpected live event %+v", second)
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) Event {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			var event Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return event
		}
	}
}
