package agent

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind names a supported agent tool.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
)

// ErrUnknownKind is returned by New for unsupported agent kinds.
var ErrUnknownKind = errors.New("agent: unknown agent type")

// Kinds lists the supported agent kinds.
func Kinds() []Kind {
	return []Kind{KindClaude, KindCodex}
}

// Option customizes a CLI session.
type Option func(*CLI)

// WithBinary overrides the executable, e.g. an absolute path or a wrapper.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// WithReadSize overrides DefaultReadSize.
func WithReadSize(n int) Option {
	return func(c *CLI) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithWaitDelay bounds how long a cancelled exchange waits for the agent's
// output to close, e.g. when a child process it spawned still holds stdout.
func WithWaitDelay(d time.Duration) Option {
	return func(c *CLI) {
		if d > 0 {
			c.waitDelay = d
		}
	}
}

// WithSessionIDs overrides how new session ids are generated.
func WithSessionIDs(next func() string) Option {
	return func(c *CLI) {
		if next != nil {
			c.newID = next
		}
	}
}

// New creates a session for kind running in dir.
func New(kind, dir string, opts ...Option) (*CLI, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(kind)))
	valid := false
	for _, k := range Kinds() {
		if k == normalized {
			valid = true
			break
		}
	}
	if !valid {
		names := make([]string, 0, len(Kinds()))
		for _, k := range Kinds() {
			names = append(names, string(k))
		}
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownKind, kind, strings.Join(names, ", "))
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve dir: %w", err)
	}
	c := &CLI{
		kind:      normalized,
		binary:    string(normalized),
		dir:       absDir,
		readSize:  DefaultReadSize,
		waitDelay: DefaultWaitDelay,
		newID:     defaultID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}
