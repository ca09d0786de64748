package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types emitted by the monitor.
const (
	EventRestart             = "restart"
	EventRestartLimitReached = "restart_limit_exceeded"
	EventManualRestart       = "manual_restart"
)

// Event is a supervision lifecycle event. Minimal and stable: id, type,
// service and a human-readable message.
type Event struct {
	ID      string
	Type    string
	Service string
	Message string
	Time    time.Time
}

// Publisher receives events from the monitor. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// NoopPublisher is the default; it drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) {}

// LogPublisher writes events to a structured logger. Restart-limit events
// log at error level so the alert is persistent in the operator's view.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Info()
	if e.Type == EventRestartLimitReached {
		ev = p.Log.Error()
	}
	ev.Str("event_id", e.ID).
		Str("event", e.Type).
		Str("service", e.Service).
		Msg(e.Message)
}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func newEvent(typ, service, msg string) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Service: service,
		Message: msg,
		Time:    time.Now(),
	}
}
