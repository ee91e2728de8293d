// Package agent runs the external coding agents that play the planner and
// reviewer roles. Each agent is a command line tool driven as a subprocess:
// the prompt goes in on stdin and the reply streams back on stdout.
package agent

import "context"

// Chunk is one streamed piece of an agent reply. A chunk carrying Err ends
// the stream with a failure.
type Chunk struct {
	Text string
	Err  error
}

// Session is a conversation with one agent.
type Session interface {
	// Name identifies the agent kind, e.g. "claude".
	Name() string
	// Send starts an exchange. The returned channel is closed by the producer
	// once the reply is complete, failed, or ctx is done.
	Send(ctx context.Context, prompt string) (<-chan Chunk, error)
	// Resume binds the session to a previously stored handle. False means
	// the agent will continue without prior context.
	Resume(handle string) bool
	// SessionID returns the handle to store for a later Resume, or "".
	SessionID() string
	// CheckAvailable reports whether the agent tool can be launched.
	CheckAvailable() bool
}

// Collect drains a stream into a single string, forwarding each fragment to
// onFragment when it is non-nil. Fragments are forwarded in arrival order
// and never buffered twice.
func Collect(ctx context.Context, stream <-chan Chunk, onFragment func(string)) (string, error) {
	var out []byte
	for {
		select {
		case <-ctx.Done():
			return string(out), ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				// Producers close early when ctx ends.
				return string(out), ctx.Err()
			}
			if chunk.Err != nil {
				return string(out), chunk.Err
			}
			if chunk.Text == "" {
				continue
			}
			out = append(out, chunk.Text...)
			if onFragment != nil {
				onFragment(chunk.Text)
			}
		}
	}
}
