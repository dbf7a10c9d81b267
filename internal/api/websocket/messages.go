package websocket

import (
	"time"

	"github.com/KevinKickass/ngxconfig/internal/streaming"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Sequencer messages
	MessageTypeSequenceStarted  MessageType = "sequencer.started"
	MessageTypeSequenceProgress MessageType = "sequencer.progress"
	MessageTypeReadComplete     MessageType = "sequencer.read_complete"
	MessageTypeWriteComplete    MessageType = "sequencer.write_complete"

	// Bus messages
	MessageTypeBusConnected    MessageType = "bus.connected"
	MessageTypeBusDisconnected MessageType = "bus.disconnected"
	MessageTypeBusStatus       MessageType = "bus.status"
	MessageTypeBusFrameError   MessageType = "bus.frame_error"

	// System messages
	MessageTypeSystemStatus MessageType = "system.status"

	// Client control
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribed  MessageType = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Source    string      `json:"source,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// FromEvent maps a streamer event to "<source>.<type>".
func FromEvent(ev streaming.Event) Message {
	return Message{
		Type:      MessageType(ev.Source + "." + ev.Type),
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	}
}

// clientMessage is what clients may send after authenticating.
type clientMessage struct {
	Type    string   `json:"type"`
	Token   string   `json:"token,omitempty"`
	Sources []string `json:"sources,omitempty"`
}
