package monitor

import (
	"sync"
	"time"

	"github.com/kingrea/agent-collab/internal/workflow"
)

const defaultSubscriberCapacity = 256

// Event types published by the hub.
const (
	EventPhase  = "phase"
	EventOutput = "output"
)

// Event is one controller notification relayed to monitor clients.
type Event struct {
	Sequence int64     `json:"sequence"`
	Type     string    `json:"type"`
	Phase    string    `json:"phase,omitempty"`
	Text     string    `json:"text,omitempty"`
	Time     time.Time `json:"time"`
}

// Logger records monitor diagnostics. *zerolog.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Hub fans controller events out to subscribers. It implements the
// controller's listener contract, so it can be registered directly.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	backlog     []Event
	limit       int
	sequence    int64
	clock       func() time.Time
	logger      Logger
}

// NewHub creates a hub replaying up to backlog recent events to late
// subscribers.
func NewHub(backlog int, logger Logger) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		subscribers: map[*subscriber]struct{}{},
		limit:       backlog,
		clock:       func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// OnOutput publishes a streamed fragment.
func (h *Hub) OnOutput(fragment string) {
	h.Publish(Event{Type: EventOutput, Text: fragment})
}

// OnPhaseChange publishes a persisted phase change.
func (h *Hub) OnPhaseChange(phase workflow.Phase) {
	h.Publish(Event{Type: EventPhase, Phase: phase.Key()})
}

// Publish stamps event and delivers it to every subscriber.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	h.sequence++
	event.Sequence = h.sequence
	if event.Time.IsZero() {
		event.Time = h.clock()
	}
	h.backlog = append(h.backlog, event)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(event)
	}
}

// Subscription is an active hub subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers a subscriber, replaying the backlog first.
func (h *Hub) Subscribe() Subscription {
	sub := newSubscriber(defaultSubscriberCapacity+h.limit, h.logger)
	h.mu.Lock()
	for _, event := range h.backlog {
		sub.deliver(event)
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() {
			h.mu.Lock()
			delete(h.subscribers, sub)
			h.mu.Unlock()
			sub.close()
		},
	}
}

// Subscribers reports how many subscriptions are open.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	logger Logger
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

// deliver never blocks. When the queue is full the oldest event is dropped
// so slow clients always see the most recent activity.
func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case oldest := <-s.ch:
			s.logDrop(oldest)
		default:
		}
	}
}

func (s *subscriber) logDrop(event Event) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("monitor: dropped %s event %d (queue overflow)", event.Type, event.Sequence)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
