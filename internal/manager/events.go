package manager

import (
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/eeprom"
)

// Kind names a sequence.
type Kind string

const (
	KindWriteConfiguration Kind = "write_configuration"
	KindWriteSystem        Kind = "write_system"
	KindFactoryReset       Kind = "factory_reset"
	KindReadSystem         Kind = "read_system"
	KindReadFull           Kind = "read_full"
	KindReadInput          Kind = "read_input"
)

// IsWrite reports whether the sequence writes to the device.
func (k Kind) IsWrite() bool {
	switch k {
	case KindWriteConfiguration, KindWriteSystem, KindFactoryReset:
		return true
	}
	return false
}

type EventType string

const (
	EventStarted       EventType = "started"
	EventProgress      EventType = "progress"
	EventReadComplete  EventType = "read_complete"
	EventWriteComplete EventType = "write_complete"
)

// Event is published for every step and at the end of a sequence.
type Event struct {
	Type        EventType `json:"type"`
	SequenceID  string    `json:"sequence_id"`
	Kind        Kind      `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Description string    `json:"description,omitempty"`

	// Completion fields
	Success     bool     `json:"success"`
	Message     string   `json:"message,omitempty"`
	LastAddress *uint16  `json:"last_address,omitempty"`
	Failed      []uint16 `json:"failed,omitempty"`

	// Values is the collected address map of a read_complete event.
	Values eeprom.Image `json:"-"`
}

// Subscribe returns a channel receiving sequencer events. Events are dropped
// for subscribers that do not keep up.
func (m *Manager) Subscribe(buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for c := range m.subscribers {
		if c == ch {
			delete(m.subscribers, c)
			close(c)
			return
		}
	}
}

func (m *Manager) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			if ev.Type != EventProgress {
				m.logger.Warn("Sequencer event dropped",
					zap.String("type", string(ev.Type)),
					zap.String("sequence_id", ev.SequenceID))
			}
		}
	}
}
