package can

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxStandardID ist die höchste 11-Bit ID
	MaxStandardID = 0x7FF
	// MaxExtendedID ist die höchste 29-Bit ID
	MaxExtendedID = 0x1FFFFFFF
	// MaxDataLen für klassisches CAN 2.0
	MaxDataLen = 8
)

var (
	ErrInvalidID   = errors.New("can: identifier out of range")
	ErrInvalidLen  = errors.New("can: data length exceeds 8 bytes")
	ErrInvalidData = errors.New("can: invalid hex data")
)

// Message is one logical CAN 2.0 frame.
type Message struct {
	ID        uint32
	Extended  bool
	Data      []byte
	Timestamp time.Time
}

// Validate prüft ID-Bereich und Datenlänge vor dem Senden
func (m Message) Validate() error {
	if m.Extended {
		if m.ID > MaxExtendedID {
			return fmt.Errorf("%w: 0x%X > 0x%X", ErrInvalidID, m.ID, MaxExtendedID)
		}
	} else if m.ID > MaxStandardID {
		return fmt.Errorf("%w: 0x%X > 0x%X", ErrInvalidID, m.ID, MaxStandardID)
	}

	if len(m.Data) > MaxDataLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidLen, len(m.Data))
	}

	return nil
}

// Priority returns the J1939 priority (bits 26-28).
func (m Message) Priority() uint8 {
	return uint8((m.ID >> 26) & 0x07)
}

// PGN returns the J1939 parameter group number.
func (m Message) PGN() uint32 {
	_, pgn, _ := ParseID(m.ID)
	return pgn
}

// SourceAddress returns the J1939 source address (bits 0-7).
func (m Message) SourceAddress() uint8 {
	return uint8(m.ID & 0xFF)
}

// IDHex formats the identifier like the adapter does
func (m Message) IDHex() string {
	if m.Extended {
		return fmt.Sprintf("%08X", m.ID)
	}
	return fmt.Sprintf("%03X", m.ID)
}

// DataHex formats the payload as space separated hex bytes.
func (m Message) DataHex() string {
	parts := make([]string, len(m.Data))
	for i, b := range m.Data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func (m Message) String() string {
	return fmt.Sprintf("0x%s: %s", m.IDHex(), m.DataHex())
}

// ParseHexData decodes user supplied hex ("01 02 0A", "01020A") into bytes.
func ParseHexData(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ",", "", "0x", "", "0X", "").Replace(strings.TrimSpace(s))
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex digits (%d)", ErrInvalidData, len(clean))
	}

	data := make([]byte, len(clean)/2)
	for i := 0; i < len(data); i++ {
		b, err := strconv.ParseUint(clean[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidData, clean[2*i:2*i+2])
		}
		data[i] = byte(b)
	}

	if len(data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLen, len(data))
	}

	return data, nil
}
