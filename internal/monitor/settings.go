package monitor

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/agent-collab/internal/config"
)

const (
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultBacklog is how many recent events a new subscriber is replayed.
	DefaultBacklog = 200
)

// Settings captures runtime configuration for the monitor server.
type Settings struct {
	Enabled     bool
	Host        string
	Port        int
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	Backlog     int
}

// SettingsFromConfig builds Settings from the project config, which already
// carries the AGENT_COLLAB_MONITOR_* environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Host: config.DefaultMonitorHost,
		Port: config.DefaultMonitorPort,
	}
	if cfg != nil {
		raw := cfg.Project.Monitor
		settings.Enabled = raw.Enabled
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		settings.Port = raw.Port
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultMonitorHost
	}
	// Port 0 asks the kernel for a free port.
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultMonitorPort
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.Backlog <= 0 {
		s.Backlog = DefaultBacklog
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
