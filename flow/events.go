package flow

import (
	"sync"
	"time"

	"github.com/conciergehq/concierge/internal/channel"
)

// Stage names a step of the reception flow.
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageRunning    Stage = "running"
	StageRendering  Stage = "rendering"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Event is a progress update for one request.
type Event struct {
	RequestID string    `json:"request_id"`
	Stage     Stage     `json:"stage"`
	Crew      string    `json:"crew,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Broker fans progress events out to per-request subscribers. Slow
// subscribers drop events rather than stalling the flow.
type Broker struct {
	mu   sync.Mutex
	subs map[string][]*channel.Bounded[Event]
}

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*channel.Bounded[Event])}
}

// Subscribe registers a listener for one request's events. The
// returned cancel func must be called when the listener goes away.
func (b *Broker) Subscribe(requestID string) (*channel.Bounded[Event], func()) {
	sub := channel.NewBounded[Event](32)

	b.mu.Lock()
	b.subs[requestID] = append(b.subs[requestID], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		list := b.subs[requestID]
		for i, s := range list {
			if s == sub {
				b.subs[requestID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[requestID]) == 0 {
			delete(b.subs, requestID)
		}
		b.mu.Unlock()
		sub.Close()
	}
	return sub, cancel
}

// Publish delivers an event to the request's subscribers. Terminal
// stages close the subscriptions after delivery.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	list := append([]*channel.Bounded[Event](nil), b.subs[ev.RequestID]...)
	terminal := ev.Stage == StageDone || ev.Stage == StageFailed
	if terminal {
		delete(b.subs, ev.RequestID)
	}
	b.mu.Unlock()

	for _, sub := range list {
		sub.TrySend(ev)
		if terminal {
			sub.Close()
		}
	}
}
