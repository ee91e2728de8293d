// Package agenttest provides a scripted agent session for tests.
package agenttest

import (
	"context"
	"sync"

	"github.com/kingrea/agent-collab/internal/agent"
)

// Reply scripts one exchange. Before runs when the prompt arrives, which lets
// tests play the part of the agent writing files.
type Reply struct {
	Fragments []string
	Err       error
	SendErr   error
	Before    func(prompt string)
}

// Session is an in-memory agent.Session.
type Session struct {
	NameValue   string
	Available   bool
	ResumeOK    bool
	NextSession string

	mu       sync.Mutex
	replies  []Reply
	prompts  []string
	resumed  []string
	session  string
	blocking chan struct{}
}

var _ agent.Session = (*Session)(nil)

// New returns a fake named name that answers with the scripted replies in
// order. Once they run out it answers "ok".
func New(name string, replies ...Reply) *Session {
	return &Session{NameValue: name, Available: true, ResumeOK: true, replies: replies}
}

// Queue appends replies to the script.
func (s *Session) Queue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Block makes the next exchanges wait until Release is called or the
// context ends.
func (s *Session) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocking = make(chan struct{})
}

// Release unblocks waiting exchanges.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocking != nil {
		close(s.blocking)
		s.blocking = nil
	}
}

// Prompts returns every prompt received so far.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// LastPrompt returns the most recent prompt, or "".
func (s *Session) LastPrompt() string {
	prompts := s.Prompts()
	if len(prompts) == 0 {
		return ""
	}
	return prompts[len(prompts)-1]
}

// Resumed returns the handles passed to Resume.
func (s *Session) Resumed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resumed...)
}

// Name implements agent.Session.
func (s *Session) Name() string { return s.NameValue }

// CheckAvailable implements agent.Session.
func (s *Session) CheckAvailable() bool { return s.Available }

// SessionID implements agent.Session.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Resume implements agent.Session.
func (s *Session) Resume(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = append(s.resumed, handle)
	if s.ResumeOK {
		s.session = handle
	}
	return s.ResumeOK
}

// Send implements agent.Session.
func (s *Session) Send(ctx context.Context, prompt string) (<-chan agent.Chunk, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	reply := Reply{Fragments: []string{"ok"}}
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	gate := s.blocking
	s.mu.Unlock()

	if reply.SendErr != nil {
		return nil, reply.SendErr
	}
	if reply.Before != nil {
		reply.Before(prompt)
	}
	out := make(chan agent.Chunk)
	go func() {
		defer close(out)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		for _, fragment := range reply.Fragments {
			select {
			case out <- agent.Chunk{Text: fragment}:
			case <-ctx.Done():
				return
			}
		}
		if reply.Err != nil {
			select {
			case out <- agent.Chunk{Err: reply.Err}:
			case <-ctx.Done():
			}
			return
		}
		s.mu.Lock()
		if s.NextSession != "" {
			s.session = s.NextSession
		}
		s.mu.Unlock()
	}()
	return out, nil
}
