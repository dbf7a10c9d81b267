package transport

import (
	"time"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/gridconnect"
)

type EventType string

const (
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventMessageReceived EventType = "message_received"
	EventStatus          EventType = "status"
	EventFrameError      EventType = "frame_error"
)

// Event is delivered to subscribers. Only the fields matching Type are set.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Port      string

	Message can.Message
	Status  gridconnect.BusStatus

	// Raw frame text for EventFrameError.
	Raw string
	// Reason for EventDisconnected (nil on a requested disconnect) or EventFrameError.
	Err error
}

// subscribe registriert einen Empfänger
func (t *Transport) Subscribe(buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	t.subMu.Lock()
	t.subscribers[ch] = struct{}{}
	t.subMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (t *Transport) Unsubscribe(ch <-chan Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for c := range t.subscribers {
		if c == ch {
			delete(t.subscribers, c)
			close(c)
			return
		}
	}
}

// emit verteilt ein Event nicht-blockierend
func (t *Transport) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	t.subMu.RLock()
	defer t.subMu.RUnlock()

	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			t.logger.Warn("Event dropped, subscriber too slow",
				zapEventType(ev.Type))
		}
	}
}
