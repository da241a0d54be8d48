// Package events is an in-process bus for fetch cache events: a batch was
// fetched, failed or invalidated.
package events

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of cache event.
type Type int

const (
	BatchFetched Type = iota
	BatchFailed
	BatchInvalidated
)

// String returns the event type name used in logs.
func (t Type) String() string {
	switch t {
	case BatchFetched:
		return "fetched"
	case BatchFailed:
		return "failed"
	case BatchInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// Event describes one change to a batch's cache entry.
type Event struct {
	Type        Type
	Batch       string
	Fingerprint uint64
	// Failed lists the collections whose reads failed (BatchFailed only).
	Failed    []string
	Timestamp time.Time
}

// Bus fans events out to subscribers.
type Bus struct {
	subscribers sync.Map
	bufferSize  int
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Publish sends ev to every matching subscriber.
// Non-blocking: if a subscriber's channel is full, the event is dropped for
// that subscriber and counted on it.
func (b *Bus) Publish(ev Event) {
	b.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*Subscriber)
		if !sub.matches(ev.Batch) {
			return true
		}
		sub.mu.Lock()
		if !sub.closed {
			select {
			case sub.ch <- ev:
			default:
				sub.dropped++
			}
		}
		sub.mu.Unlock()
		return true
	})
}

// Subscribe registers a subscriber. With no prefixes it receives every
// event; otherwise only events whose batch name starts with a prefix.
func (b *Bus) Subscribe(id string, prefixes ...string) *Subscriber {
	if id == "" {
		id = "sub_" + uuid.NewString()
	}
	sub := &Subscriber{
		ID:       id,
		prefixes: prefixes,
		ch:       make(chan Event, b.bufferSize),
	}
	if old, loaded := b.subscribers.Swap(id, sub); loaded {
		old.(*Subscriber).close()
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	if value, ok := b.subscribers.LoadAndDelete(id); ok {
		value.(*Subscriber).close()
	}
}

// Subscriber receives events on C until unsubscribed.
type Subscriber struct {
	ID       string
	prefixes []string
	ch       chan Event

	mu      sync.Mutex
	closed  bool
	dropped int
}

// C returns the event channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Dropped returns how many events were dropped because C was full.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber) matches(batch string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(batch, p) {
			return true
		}
	}
	return false
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
