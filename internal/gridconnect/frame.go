// Package gridconnect implements the ASCII framing spoken by GridConnect
// serial-to-CAN adapters:
//
//	:S123N0102;          standard id, normal frame, two data bytes
//	:X18FF0100N01020304; extended id
//	:EA;                 bus status report
package gridconnect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/ngxconfig/internal/can"
)

const (
	StartByte = ':'
	EndByte   = ';'
)

// Frame type letters. Only TypeNormal is produced here.
const (
	TypeNormal    = 'N'
	TypeFD        = 'F'
	TypeFDBitRate = 'H'
	TypeRemote    = 'R'
)

// BusStatus is reported by the adapter in `:E<c>;` frames.
type BusStatus int

const (
	BusUnknown BusStatus = iota
	BusActive
	BusWarning
	BusPassive
	BusOff
)

func (s BusStatus) String() string {
	switch s {
	case BusActive:
		return "ACTIVE"
	case BusWarning:
		return "WARNING"
	case BusPassive:
		return "PASSIVE"
	case BusOff:
		return "BUS_OFF"
	default:
		return "UNKNOWN"
	}
}

// StatusRequest asks the adapter for its bus status.
const StatusRequest = ":E;"

var ErrMalformed = errors.New("gridconnect: malformed frame")

// FrameError describes why a received frame was rejected.
type FrameError struct {
	Frame  string
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("gridconnect: %s: %q", e.Reason, e.Frame)
}

func (e *FrameError) Unwrap() error {
	return ErrMalformed
}

// Frame is one decoded wire frame: either a CAN message or a status report.
type Frame struct {
	Message  can.Message
	Type     byte
	IsStatus bool
	Status   BusStatus
}

// Encode serialisiert eine Nachricht in das ASCII Wire-Format
func Encode(msg can.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(12 + 2*len(msg.Data))

	sb.WriteByte(StartByte)
	if msg.Extended {
		fmt.Fprintf(&sb, "X%08X", msg.ID)
	} else {
		fmt.Fprintf(&sb, "S%03X", msg.ID)
	}
	sb.WriteByte(TypeNormal)
	for _, b := range msg.Data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	sb.WriteByte(EndByte)

	return sb.String(), nil
}

// Decode parst ein vollständiges Frame inklusive ':' und ';'
func Decode(raw string) (*Frame, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 3 || raw[0] != StartByte || raw[len(raw)-1] != EndByte {
		return nil, &FrameError{Frame: raw, Reason: "missing delimiters"}
	}

	body := raw[1 : len(raw)-1]

	switch body[0] {
	case 'E':
		return decodeStatus(raw, body)
	case 'S':
		return decodeData(raw, body[1:], false, 3)
	case 'X':
		return decodeData(raw, body[1:], true, 8)
	default:
		return nil, &FrameError{Frame: raw, Reason: "unknown id type"}
	}
}

func decodeStatus(raw, body string) (*Frame, error) {
	if len(body) != 2 {
		return nil, &FrameError{Frame: raw, Reason: "bad status frame"}
	}

	status := BusUnknown
	switch body[1] {
	case 'A':
		status = BusActive
	case 'W':
		status = BusWarning
	case 'P':
		status = BusPassive
	case 'B':
		status = BusOff
	}

	return &Frame{IsStatus: true, Status: status}, nil
}

func decodeData(raw, rest string, extended bool, idDigits int) (*Frame, error) {
	if len(rest) < idDigits+1 {
		return nil, &FrameError{Frame: raw, Reason: "frame too short"}
	}

	id, err := strconv.ParseUint(rest[:idDigits], 16, 32)
	if err != nil {
		return nil, &FrameError{Frame: raw, Reason: "invalid id"}
	}

	frameType := rest[idDigits]
	switch frameType {
	case TypeNormal, TypeFD, TypeFDBitRate, TypeRemote:
	default:
		return nil, &FrameError{Frame: raw, Reason: "unknown frame type"}
	}

	hexData := rest[idDigits+1:]
	if len(hexData)%2 != 0 {
		return nil, &FrameError{Frame: raw, Reason: "odd-length data"}
	}
	if len(hexData) > 2*can.MaxDataLen {
		return nil, &FrameError{Frame: raw, Reason: "data too long"}
	}

	data := make([]byte, len(hexData)/2)
	for i := range data {
		b, err := strconv.ParseUint(hexData[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, &FrameError{Frame: raw, Reason: "invalid data"}
		}
		data[i] = byte(b)
	}

	msg := can.Message{ID: uint32(id), Extended: extended, Data: data}
	if err := msg.Validate(); err != nil {
		return nil, &FrameError{Frame: raw, Reason: err.Error()}
	}

	return &Frame{Message: msg, Type: frameType}, nil
}
