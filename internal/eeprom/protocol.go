package eeprom

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/ngxconfig/internal/can"
)

// Default request/response PGNs of the configuration protocol.
const (
	DefaultWritePGN    = 0xFF10
	DefaultReadPGN     = 0xFF20
	DefaultResponsePGN = 0xFF30
	DefaultSA          = 0x80
	DefaultPriority    = 6
)

// Protocol holds the PGNs and addressing used for EEPROM requests.
type Protocol struct {
	WritePGN    uint32
	ReadPGN     uint32
	ResponsePGN uint32
	SA          uint8
	Priority    uint8
}

func DefaultProtocol() Protocol {
	return Protocol{
		WritePGN:    DefaultWritePGN,
		ReadPGN:     DefaultReadPGN,
		ResponsePGN: DefaultResponsePGN,
		SA:          DefaultSA,
		Priority:    DefaultPriority,
	}
}

// WriteRequest builds [guard, addr lsb, addr msb, value, FF FF FF FF].
func (p Protocol) WriteRequest(addr uint16, value byte) can.Message {
	data := []byte{GuardByte, byte(addr), byte(addr >> 8), value, 0xFF, 0xFF, 0xFF, 0xFF}
	return can.NewJ1939(p.Priority, p.WritePGN, p.SA, data)
}

// ReadRequest builds [guard, addr lsb, addr msb, FF FF FF FF FF].
func (p Protocol) ReadRequest(addr uint16) can.Message {
	data := []byte{GuardByte, byte(addr), byte(addr >> 8), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	return can.NewJ1939(p.Priority, p.ReadPGN, p.SA, data)
}

// IsResponse reports whether msg carries the response PGN.
func (p Protocol) IsResponse(msg can.Message) bool {
	return msg.Extended && msg.PGN() == p.ResponsePGN
}

// Status is the status byte of a device response.
type Status byte

const (
	StatusSuccess           Status = 0x01
	StatusBadGuard          Status = 0xE1
	StatusInvalidAddress    Status = 0xE2
	StatusTxBusy            Status = 0xE4
	StatusVerifyFailed      Status = 0xE5
	StatusAddressOutOfRange Status = 0xE6
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBadGuard:
		return "BAD_GUARD"
	case StatusInvalidAddress:
		return "INVALID_ADDRESS"
	case StatusTxBusy:
		return "TX_BUSY"
	case StatusVerifyFailed:
		return "VERIFY_FAILED"
	case StatusAddressOutOfRange:
		return "ADDRESS_OUT_OF_RANGE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(s))
	}
}

// Result classifies a response.
type Result string

const (
	ResultSuccess       Result = "success"
	ResultGuardMismatch Result = "guard_mismatch"
	ResultError         Result = "error"
)

// Response is a decoded device answer:
// [fw major, fw minor, value, addr lsb, addr msb, status, ...].
type Response struct {
	FirmwareMajor uint8
	FirmwareMinor uint8
	Value         byte
	Address       uint16
	Status        Status
}

const responseMinLen = 6

var ErrShortResponse = errors.New("eeprom: response shorter than 6 bytes")

func ParseResponse(data []byte) (Response, error) {
	if len(data) < responseMinLen {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(data))
	}
	return Response{
		FirmwareMajor: data[0],
		FirmwareMinor: data[1],
		Value:         data[2],
		Address:       uint16(data[4])<<8 | uint16(data[3]),
		Status:        Status(data[5]),
	}, nil
}

// Result maps the status byte. Unknown status codes count as errors.
func (r Response) Result() Result {
	switch r.Status {
	case StatusSuccess:
		return ResultSuccess
	case StatusBadGuard:
		return ResultGuardMismatch
	default:
		return ResultError
	}
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Retryable reports a transient NACK worth another attempt.
func (r Response) Retryable() bool {
	return r.Status == StatusTxBusy
}

// StatusError is a NACK from the device.
type StatusError struct {
	Address uint16
	Status  Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device rejected address 0x%04X: %s", e.Address, e.Status)
}

// Err returns nil on success, otherwise a *StatusError.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Address: r.Address, Status: r.Status}
}

// EncodeResponse builds response data; used by device simulators and tests.
func EncodeResponse(r Response) []byte {
	return []byte{r.FirmwareMajor, r.FirmwareMinor, r.Value, byte(r.Address), byte(r.Address >> 8), byte(r.Status), 0xFF, 0xFF}
}

// ParseRequest decodes a write or read request frame built by this package.
func ParseRequest(data []byte) (addr uint16, value byte, err error) {
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("request too short: %d bytes", len(data))
	}
	if data[0] != GuardByte {
		return 0, 0, fmt.Errorf("bad guard byte 0x%02X", data[0])
	}
	return uint16(data[2])<<8 | uint16(data[1]), data[3], nil
}
