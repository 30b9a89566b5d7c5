package supervisor

import (
	"sync"
	"time"
)

// Event is one lifecycle occurrence (spawn, ready, crash, evict, ...).
type Event struct {
	Name   string         `json:"name"`
	Alias  string         `json:"alias,omitempty"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives lifecycle events. Publish must not block; the
// supervisor calls it from state-transition paths.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher keeps the most recent events in a bounded ring. It backs
// the /status event feed and the tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewMemoryPublisher creates a ring holding up to max events (default 256).
func NewMemoryPublisher(max int) *MemoryPublisher {
	if max <= 0 {
		max = 256
	}
	return &MemoryPublisher{max: max}
}

func (p *MemoryPublisher) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	if len(p.events) > p.max {
		p.events = p.events[len(p.events)-p.max:]
	}
	p.mu.Unlock()
}

// Recent returns a copy of the buffered events, oldest first.
func (p *MemoryPublisher) Recent() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
