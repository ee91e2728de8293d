// internal/config/config.go
//
// This package handles configuration and the .agent-collab directory layout.
// Every project that uses agent-collab gets a workdir created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/agent-collab/internal/workflow"
)

const (
	// FileName is the project config file looked up in the project root.
	FileName = "agent-collab.yaml"

	defaultPlanner       = "codex"
	defaultReviewer      = "claude"
	defaultMaxIterations = 5

	// DefaultMonitorHost is the loopback interface used when no host override is provided.
	DefaultMonitorHost = "127.0.0.1"
	// DefaultMonitorPort is the default TCP port for the monitor server.
	DefaultMonitorPort = 8765
)

const defaultConfigYAML = `# agent-collab project configuration
version: 1

# Which agent CLI plays each role. Supported: codex, claude.
roles:
  planner: codex
  reviewer: claude

workflow:
  # Review rounds allowed before the review loop stops asking for revisions.
  max_iterations: 5

# Artifact locations. plan/comments/log are relative to workdir.
paths:
  workdir: .agent-collab
  plan: plan.md
  comments: comments.md
  log: log.md

# Binary overrides for agent CLIs that are not on PATH under their usual name.
agents:
  codex:
    binary: codex
  claude:
    binary: claude

# Optional HTTP endpoint exposing /health, /state and /metrics.
monitor:
  enabled: false
  host: 127.0.0.1
  port: 8765
`

// RolesConfig maps each role to an agent kind.
type RolesConfig struct {
	Planner  string `yaml:"planner" validate:"required,oneof=codex claude"`
	Reviewer string `yaml:"reviewer" validate:"required,oneof=codex claude"`
}

// WorkflowConfig captures review policy.
type WorkflowConfig struct {
	MaxIterations int `yaml:"max_iterations" validate:"min=1"`
}

// PathsConfig locates workflow artifacts.
type PathsConfig struct {
	Workdir  string `yaml:"workdir" validate:"required"`
	Plan     string `yaml:"plan" validate:"required"`
	Comments string `yaml:"comments" validate:"required"`
	Log      string `yaml:"log" validate:"required"`
}

// AgentConfig overrides how an agent CLI is launched.
type AgentConfig struct {
	Binary string `yaml:"binary"`
}

// MonitorConfig controls the optional HTTP monitor.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"min=0,max=65535"`
}

// ProjectConfig models agent-collab.yaml.
type ProjectConfig struct {
	Version  int                    `yaml:"version" validate:"min=1"`
	Roles    RolesConfig            `yaml:"roles"`
	Workflow WorkflowConfig         `yaml:"workflow"`
	Paths    PathsConfig            `yaml:"paths"`
	Agents   map[string]AgentConfig `yaml:"agents,omitempty"`
	Monitor  MonitorConfig          `yaml:"monitor"`
}

// Config holds the runtime configuration for agent-collab.
type Config struct {
	// ProjectDir is the directory the agents work in
	ProjectDir string

	// Path is the config file that was loaded, empty when defaults are in use
	Path string

	Project ProjectConfig
}

var validate = validator.New()

// Default returns the configuration used when no config file exists.
func Default(projectDir string) *Config {
	return &Config{
		ProjectDir: projectDir,
		Project:    defaultProjectConfig(),
	}
}

// Load reads the project config. A missing file yields defaults; an explicit
// path that does not exist is an error.
func Load(projectDir, path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(projectDir, FileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	cfg := Default(projectDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed, err := parseProjectConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.Project = parsed
	cfg.applyEnvOverrides()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseProjectConfig(data []byte) (ProjectConfig, error) {
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, err
	}
	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return ProjectConfig{}, err
	}
	return parsed, nil
}

// WriteDefault creates agent-collab.yaml in the project root unless one exists.
// It reports whether a file was written.
func WriteDefault(projectDir string) (string, bool, error) {
	path := filepath.Join(projectDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return path, false, err
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return path, false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, true, nil
}

// InitWorkdir creates the workdir structure for the project.
//
// Structure created:
// .agent-collab/
// ├── logs/      <- diagnostic log for the TUI
// └── prompts/   <- optional prompt template overrides
func (c *Config) InitWorkdir() error {
	dirs := []string{
		c.Workdir(),
		c.LogsDir(),
		c.PromptsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return nil
}

// Workdir returns the absolute path of the workflow artifacts directory
func (c *Config) Workdir() string {
	return resolvePath(c.ProjectDir, c.Project.Paths.Workdir)
}

// PlanPath returns the path to the plan document
func (c *Config) PlanPath() string {
	return filepath.Join(c.Workdir(), c.Project.Paths.Plan)
}

// CommentsPath returns the path to the review comments document
func (c *Config) CommentsPath() string {
	return filepath.Join(c.Workdir(), c.Project.Paths.Comments)
}

// LogPath returns the path to the human-readable journey log
func (c *Config) LogPath() string {
	return filepath.Join(c.Workdir(), c.Project.Paths.Log)
}

// StatePath returns the path to state.json
func (c *Config) StatePath() string {
	return filepath.Join(c.Workdir(), workflow.FileState)
}

// HistoryPath returns the path to the exchange history database
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Workdir(), workflow.FileHistory)
}

// PromptsDir returns the directory holding prompt overrides
func (c *Config) PromptsDir() string {
	return filepath.Join(c.Workdir(), workflow.PromptsDir)
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Workdir(), workflow.LogsDir)
}

// RoleKind returns the agent kind configured for a role.
func (c *Config) RoleKind(role workflow.Role) string {
	if role == workflow.RoleReviewer {
		return c.Project.Roles.Reviewer
	}
	return c.Project.Roles.Planner
}

// AgentBinary returns the executable configured for an agent kind, falling
// back to the kind name itself.
func (c *Config) AgentBinary(kind string) string {
	if agent, ok := c.Project.Agents[kind]; ok && agent.Binary != "" {
		return agent.Binary
	}
	return kind
}

// MaxIterations returns the review round ceiling.
func (c *Config) MaxIterations() int {
	return c.Project.Workflow.MaxIterations
}

// MonitorAddress returns the monitor bind address in host:port form.
func (c *Config) MonitorAddress() string {
	return net.JoinHostPort(c.Project.Monitor.Host, strconv.Itoa(c.Project.Monitor.Port))
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Roles.Planner == "" {
		pc.Roles.Planner = defaultPlanner
	}
	if pc.Roles.Reviewer == "" {
		pc.Roles.Reviewer = defaultReviewer
	}
	if pc.Workflow.MaxIterations == 0 {
		pc.Workflow.MaxIterations = defaultMaxIterations
	}
	if pc.Paths.Workdir == "" {
		pc.Paths.Workdir = workflow.DefaultWorkdir
	}
	if pc.Paths.Plan == "" {
		pc.Paths.Plan = workflow.FilePlan
	}
	if pc.Paths.Comments == "" {
		pc.Paths.Comments = workflow.FileComments
	}
	if pc.Paths.Log == "" {
		pc.Paths.Log = workflow.FileLog
	}
	if pc.Agents == nil {
		pc.Agents = map[string]AgentConfig{}
	}
	if pc.Monitor.Host == "" {
		pc.Monitor.Host = DefaultMonitorHost
	}
	if pc.Monitor.Port == 0 {
		pc.Monitor.Port = DefaultMonitorPort
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Roles.Planner = normalizeKind(pc.Roles.Planner)
	pc.Roles.Reviewer = normalizeKind(pc.Roles.Reviewer)
	pc.Paths.Workdir = strings.TrimSpace(pc.Paths.Workdir)
	pc.Paths.Plan = strings.TrimSpace(pc.Paths.Plan)
	pc.Paths.Comments = strings.TrimSpace(pc.Paths.Comments)
	pc.Paths.Log = strings.TrimSpace(pc.Paths.Log)
	normalized := make(map[string]AgentConfig, len(pc.Agents))
	for kind, agent := range pc.Agents {
		agent.Binary = strings.TrimSpace(agent.Binary)
		normalized[normalizeKind(kind)] = agent
	}
	pc.Agents = normalized
	pc.Monitor.Host = strings.TrimSpace(pc.Monitor.Host)
}

func (pc *ProjectConfig) validate() error {
	if err := validate.Struct(pc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", yamlPath(first.Namespace()), first.Tag(), first.Value())
		}
		return err
	}
	return nil
}

// applyEnvOverrides lets operators toggle the monitor without editing the file.
func (c *Config) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("AGENT_COLLAB_MONITOR_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			c.Project.Monitor.Enabled = enabled
		}
	}
	if host := strings.TrimSpace(os.Getenv("AGENT_COLLAB_MONITOR_HOST")); host != "" {
		c.Project.Monitor.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("AGENT_COLLAB_MONITOR_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 && parsed <= 65535 {
			c.Project.Monitor.Port = parsed
		}
	}
}

func normalizeKind(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// yamlPath turns a validator namespace such as ProjectConfig.Roles.Planner
// into the yaml key path roles.planner.
func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(value string) string {
	var b strings.Builder
	for i, r := range value {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
