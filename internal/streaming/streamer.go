// Package streaming fans live events out to websocket clients and gRPC
// subscribers.
package streaming

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event sources
const (
	SourceSequencer = "sequencer"
	SourceBus       = "bus"
	SourceSystem    = "system"
)

// Event is one live update. Data must be JSON encodable.
type Event struct {
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type subscription struct {
	sources map[string]bool // nil = alle
}

type EventStreamer struct {
	mu          sync.RWMutex
	subscribers map[chan Event]subscription
	buffer      int
	dropped     atomic.Uint64
}

func NewEventStreamer(buffer int) *EventStreamer {
	if buffer < 1 {
		buffer = 100
	}
	return &EventStreamer{
		subscribers: make(map[chan Event]subscription),
		buffer:      buffer,
	}
}

// Subscribe returns a channel for events from the given sources, or from
// every source when none are given.
func (s *EventStreamer) Subscribe(sources ...string) <-chan Event {
	sub := subscription{}
	if len(sources) > 0 {
		sub.sources = make(map[string]bool, len(sources))
		for _, src := range sources {
			sub.sources[src] = true
		}
	}

	ch := make(chan Event, s.buffer)

	s.mu.Lock()
	s.subscribers[ch] = sub
	s.mu.Unlock()

	return ch
}

func (s *EventStreamer) Unsubscribe(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.subscribers {
		if c == ch {
			delete(s.subscribers, c)
			close(c)
			return
		}
	}
}

// Broadcast never blocks; subscribers with a full buffer miss the event.
func (s *EventStreamer) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch, sub := range s.subscribers {
		if sub.sources != nil && !sub.sources[ev.Source] {
			continue
		}
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped counts events lost to slow subscribers.
func (s *EventStreamer) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *EventStreamer) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
