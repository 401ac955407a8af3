package gameroot

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is emitted by a module during a call and published after commit.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Emitter   common.Address `json:"emitter"`
	Topic     string         `json:"topic"`
	Args      map[string]any `json:"args"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventListener receives committed events in emission order.
type EventListener interface {
	HandleEvents(events []Event)
}

// CallObserver is told about every top-level call outcome.
type CallObserver interface {
	ObserveCall(system string, kind Kind, duration time.Duration)
}

// Receipt collects what a committed call emitted.
type Receipt struct {
	Events []Event
}

// Find returns the first event with the given name.
func (r *Receipt) Find(name string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, event := range r.Events {
		if event.Name == name {
			return event, true
		}
	}
	return Event{}, false
}
