// Package eeprom maps the configuration model onto the controller's EEPROM
// and back. Everything here is pure: address arithmetic, record packing,
// request/response frames and the ordered operation lists the sequencer runs.
package eeprom

import (
	"fmt"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

// GuardByte marks a valid case record and must lead every request.
const GuardByte = 0x77

// System region, 0x00-0x1A.
const (
	AddrBitrate          uint16 = 0x00
	AddrHeartbeatPGNHigh uint16 = 0x01
	AddrHeartbeatPGNLow  uint16 = 0x02
	AddrHeartbeatSA      uint16 = 0x03
	AddrFirmwareMajor    uint16 = 0x04
	AddrFirmwareMinor    uint16 = 0x05
	AddrRebroadcast      uint16 = 0x06
	AddrInitStamp        uint16 = 0x07
	AddrWritePGNHigh     uint16 = 0x0A
	AddrWritePGNLow      uint16 = 0x0B
	AddrWriteSA          uint16 = 0x0C
	AddrReadPGNHigh      uint16 = 0x0D
	AddrReadPGNLow       uint16 = 0x0E
	AddrReadSA           uint16 = 0x0F
	AddrResponsePGNHigh  uint16 = 0x10
	AddrResponsePGNLow   uint16 = 0x11
	AddrResponseSA       uint16 = 0x12
	AddrDiagPGNHigh      uint16 = 0x13
	AddrDiagPGNLow       uint16 = 0x14
	AddrDiagSA           uint16 = 0x15
	AddrSerialNumber     uint16 = 0x16
	AddrCustomerName     uint16 = 0x17

	SystemEnd  uint16 = 0x1A
	SystemSize        = int(SystemEnd) + 1
)

// Case region. Every input owns CasesPerInput slots (ON slots first, then
// OFF slots) whether or not the firmware uses them.
const (
	CaseDataStart uint16 = 0x22
	CaseSize             = 32
	OnSlots              = configdata.MaxOnCases
	OffSlots             = configdata.MaxOffCases
	CasesPerInput        = OnSlots + OffSlots
	BytesPerInput        = CaseSize * CasesPerInput
	TotalInputs          = configdata.TotalInputs
)

// LastAddress is the final byte of the case region.
const LastAddress = CaseDataStart + TotalInputs*BytesPerInput - 1

// CaseAddress returns the first byte of a case slot:
// CaseDataStart + (input-1)*BytesPerInput + slot*CaseSize.
func CaseAddress(input, slot int) (uint16, error) {
	if input < 1 || input > TotalInputs {
		return 0, fmt.Errorf("input %d out of range 1-%d", input, TotalInputs)
	}
	if slot < 0 || slot >= CasesPerInput {
		return 0, fmt.Errorf("case slot %d out of range 0-%d", slot, CasesPerInput-1)
	}
	return CaseDataStart + uint16((input-1)*BytesPerInput+slot*CaseSize), nil
}

// OnCaseAddress addresses ON case index (0-based).
func OnCaseAddress(input, index int) (uint16, error) {
	if index < 0 || index >= OnSlots {
		return 0, fmt.Errorf("ON case %d out of range 0-%d", index, OnSlots-1)
	}
	return CaseAddress(input, index)
}

// OffCaseAddress addresses OFF case index (0-based).
func OffCaseAddress(input, index int) (uint16, error) {
	if index < 0 || index >= OffSlots {
		return 0, fmt.Errorf("OFF case %d out of range 0-%d", index, OffSlots-1)
	}
	return CaseAddress(input, OnSlots+index)
}

// InputRange returns the first and last address owned by an input.
func InputRange(input int) (first, last uint16, err error) {
	first, err = CaseAddress(input, 0)
	if err != nil {
		return 0, 0, err
	}
	return first, first + BytesPerInput - 1, nil
}

// Location names what lives at an address.
type Location struct {
	System bool
	Input  int
	Slot   int
	Offset int
}

// Locate resolves an address into system region or (input, slot, offset).
func Locate(addr uint16) (Location, bool) {
	if addr <= SystemEnd {
		return Location{System: true, Offset: int(addr)}, true
	}
	if addr < CaseDataStart || addr > LastAddress {
		return Location{}, false
	}
	rel := int(addr - CaseDataStart)
	return Location{
		Input:  rel/BytesPerInput + 1,
		Slot:   (rel % BytesPerInput) / CaseSize,
		Offset: rel % CaseSize,
	}, true
}

func (l Location) String() string {
	if l.System {
		return fmt.Sprintf("system byte 0x%02X", l.Offset)
	}
	return fmt.Sprintf("%s: byte %d", slotName(l.Input, l.Slot), l.Offset)
}

func slotName(input, slot int) string {
	if slot < OnSlots {
		return fmt.Sprintf("Input %d ON case %d", input, slot+1)
	}
	return fmt.Sprintf("Input %d OFF case %d", input, slot-OnSlots+1)
}
