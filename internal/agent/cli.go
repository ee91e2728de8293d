package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultReadSize is the stdout read granularity.
	DefaultReadSize = 1024
	// DefaultWaitDelay is how long a cancelled agent may keep its output open.
	DefaultWaitDelay = 2 * time.Second
)

// CLI drives an agent command line tool.
type CLI struct {
	kind      Kind
	binary    string
	dir       string
	readSize  int
	waitDelay time.Duration
	newID     func() string

	mu        sync.Mutex
	sessionID string
	// established is true once the agent is known to hold the session,
	// either from a successful exchange or a Resume.
	established bool
}

// Name implements Session.
func (c *CLI) Name() string {
	return string(c.kind)
}

// Binary returns the executable this session launches.
func (c *CLI) Binary() string {
	return c.binary
}

// Dir returns the directory the agent runs in.
func (c *CLI) Dir() string {
	return c.dir
}

// SessionID implements Session.
func (c *CLI) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.established {
		return ""
	}
	return c.sessionID
}

// Resume implements Session. The tools offer no cheap way to probe a
// session, so any non-empty handle is accepted and a stale one surfaces as a
// failed exchange later.
func (c *CLI) Resume(handle string) bool {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = handle
	c.established = true
	return true
}

// CheckAvailable implements Session.
func (c *CLI) CheckAvailable() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Args returns the arguments the next exchange will use along with the
// session id it would establish.
func (c *CLI) Args() ([]string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.kind {
	case KindClaude:
		if c.established {
			return []string{"--print", "--resume", c.sessionID}, c.sessionID
		}
		id := c.newID()
		return []string{"--print", "--session-id", id}, id
	default:
		args := []string{"--cwd", c.dir}
		if c.established {
			args = append(args, "--session", c.sessionID)
		}
		return args, c.sessionID
	}
}

// Send implements Session.
func (c *CLI) Send(ctx context.Context, prompt string) (<-chan Chunk, error) {
	args, pending := c.Args()
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.dir
	cmd.Stdin = strings.NewReader(prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Stdout goes through an io.Pipe closed after Wait, so WaitDelay also
	// releases the reader when a leftover child keeps the agent's stdout open.
	stdout, sink := io.Pipe()
	cmd.Stdout = sink
	cmd.WaitDelay = c.waitDelay
	if err := cmd.Start(); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("agent: start %s: %w", c.kind, err)
	}
	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = sink.Close()
		waited <- err
	}()

	out := make(chan Chunk)
	go func() {
		defer close(out)
		emit := func(chunk Chunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		readErr := c.pump(stdout, emit)
		waitErr := <-waited
		if ctx.Err() != nil {
			return
		}
		if readErr != nil {
			emit(Chunk{Err: fmt.Errorf("agent: read %s output: %w", c.kind, readErr)})
			return
		}
		if waitErr != nil {
			emit(Chunk{Err: exitError(c.kind, waitErr, stderr.String())})
			return
		}
		c.establish(pending)
	}()
	return out, nil
}

// pump copies stdout into chunks without splitting multi-byte characters.
func (c *CLI) pump(r io.Reader, emit func(Chunk) bool) error {
	buf := make([]byte, c.readSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			text, rest := splitUTF8(data)
			carry = append([]byte(nil), rest...)
			if text != "" && !emit(Chunk{Text: text}) {
				_, _ = io.Copy(io.Discard, r)
				return nil
			}
		}
		if err != nil {
			if len(carry) > 0 {
				emit(Chunk{Text: strings.ToValidUTF8(string(carry), "\uFFFD")})
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (c *CLI) establish(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
	c.established = true
}

// splitUTF8 returns the longest valid prefix of data and the trailing bytes
// of an incomplete character, if any.
func splitUTF8(data []byte) (string, []byte) {
	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}
	return strings.ToValidUTF8(string(data[:cut]), "\uFFFD"), data[cut:]
}

func exitError(kind Kind, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		return fmt.Errorf("agent: %s failed: %w", kind, err)
	}
	if len(detail) > 2000 {
		detail = detail[len(detail)-2000:]
	}
	return fmt.Errorf("agent: %s failed: %w: %s", kind, err, detail)
}

func defaultID() string {
	return uuid.NewString()
}
