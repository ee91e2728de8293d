package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := Load(projectDir, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Path != "" {
		t.Fatalf("expected no config path, got %s", c.Path)
	}
	if c.Project.Roles.Planner != "codex" || c.Project.Roles.Reviewer != "claude" {
		t.Fatalf("unexpected default roles: %+v", c.Project.Roles)
	}
	if c.MaxIterations() != 5 {
		t.Fatalf("expected default max iterations 5, got %d", c.MaxIterations())
	}
	if got, want := c.StatePath(), filepath.Join(projectDir, ".agent-collab", "state.json"); got != want {
		t.Fatalf("state path = %s, want %s", got, want)
	}
	if got, want := c.CommentsPath(), filepath.Join(projectDir, ".agent-collab", "comments.md"); got != want {
		t.Fatalf("comments path = %s, want %s", got, want)
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	projectDir := t.TempDir()
	if _, err := Load(projectDir, "missing.yaml"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
roles:
  planner: Claude
  reviewer: codex
workflow:
  max_iterations: 3
paths:
  workdir: work/collab
  plan: PLAN.md
agents:
  claude:
    binary: /opt/bin/claude
unknown_section:
  ignored: true
`)
	if err := os.WriteFile(filepath.Join(projectDir, FileName), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(projectDir, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Project.Roles.Planner != "claude" {
		t.Fatalf("expected normalized planner kind, got %s", c.Project.Roles.Planner)
	}
	if c.MaxIterations() != 3 {
		t.Fatalf("max iterations = %d", c.MaxIterations())
	}
	if got, want := c.PlanPath(), filepath.Join(projectDir, "work", "collab", "PLAN.md"); got != want {
		t.Fatalf("plan path = %s, want %s", got, want)
	}
	if got := filepath.Base(c.CommentsPath()); got != "comments.md" {
		t.Fatalf("expected default comments file, got %s", got)
	}
	if got := c.AgentBinary("claude"); got != "/opt/bin/claude" {
		t.Fatalf("claude binary = %s", got)
	}
	if got := c.AgentBinary("codex"); got != "codex" {
		t.Fatalf("codex binary should fall back to kind, got %s", got)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"unknown agent": "roles:\n  planner: gemini\n",
		"bad budget":    "workflow:\n  max_iterations: -2\n",
		"bad port":      "monitor:\n  port: 70000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			projectDir := t.TempDir()
			if err := os.WriteFile(filepath.Join(projectDir, FileName), []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(projectDir, "")
			if err == nil {
				t.Fatalf("expected validation error but got none")
			}
			if !strings.HasPrefix(err.Error(), "config:") {
				t.Fatalf("expected config prefix, got %v", err)
			}
		})
	}
}

func TestMonitorEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_COLLAB_MONITOR_ENABLED", "true")
	t.Setenv("AGENT_COLLAB_MONITOR_PORT", "9001")
	t.Setenv("AGENT_COLLAB_MONITOR_HOST", "0.0.0.0")
	c, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !c.Project.Monitor.Enabled {
		t.Fatalf("expected monitor enabled from env")
	}
	if c.MonitorAddress() != "0.0.0.0:9001" {
		t.Fatalf("monitor address = %s", c.MonitorAddress())
	}
}

func TestWriteDefaultAndInitWorkdir(t *testing.T) {
	projectDir := t.TempDir()
	path, written, err := WriteDefault(projectDir)
	if err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if !written {
		t.Fatalf("expected config to be written")
	}
	if _, written, err = WriteDefault(projectDir); err != nil || written {
		t.Fatalf("second WriteDefault should be a no-op, written=%v err=%v", written, err)
	}
	c, err := Load(projectDir, "")
	if err != nil {
		t.Fatalf("default config must load: %v", err)
	}
	if c.Path != path {
		t.Fatalf("loaded path %s, want %s", c.Path, path)
	}
	if err := c.InitWorkdir(); err != nil {
		t.Fatalf("InitWorkdir: %v", err)
	}
	for _, dir := range []string{c.Workdir(), c.LogsDir(), c.PromptsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
