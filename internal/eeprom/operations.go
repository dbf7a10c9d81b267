package eeprom

import (
	"fmt"
	"time"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

// WriteOperation writes one byte.
type WriteOperation struct {
	Address     uint16
	Value       byte
	Description string
}

// ReadOperation reads one byte.
type ReadOperation struct {
	Address     uint16
	Description string
}

// FactoryResetValue cleared into INIT_STAMP makes the firmware reload defaults.
const FactoryResetValue = 0x00

var systemNames = map[uint16]string{
	AddrBitrate:          "CAN Bitrate",
	AddrHeartbeatPGNHigh: "Heartbeat PGN High",
	AddrHeartbeatPGNLow:  "Heartbeat PGN Low",
	AddrHeartbeatSA:      "Heartbeat SA",
	AddrFirmwareMajor:    "Firmware Major",
	AddrFirmwareMinor:    "Firmware Minor",
	AddrRebroadcast:      "Rebroadcast Mode",
	AddrInitStamp:        "Init Stamp",
	AddrWritePGNHigh:     "Write PGN High",
	AddrWritePGNLow:      "Write PGN Low",
	AddrWriteSA:          "Write SA",
	AddrReadPGNHigh:      "Read PGN High",
	AddrReadPGNLow:       "Read PGN Low",
	AddrReadSA:           "Read SA",
	AddrResponsePGNHigh:  "Response PGN High",
	AddrResponsePGNLow:   "Response PGN Low",
	AddrResponseSA:       "Response SA",
	AddrDiagPGNHigh:      "Diagnostic PGN High",
	AddrDiagPGNLow:       "Diagnostic PGN Low",
	AddrDiagSA:           "Diagnostic SA",
	AddrSerialNumber:     "Serial Number",
}

// Describe names an address for progress messages and logs.
func Describe(addr uint16) string {
	if name, ok := systemNames[addr]; ok {
		return name
	}
	if addr >= AddrCustomerName && addr < AddrCustomerName+configdata.CustomerNameLen {
		return fmt.Sprintf("Customer Name byte %d", addr-AddrCustomerName+1)
	}
	if loc, ok := Locate(addr); ok {
		return loc.String()
	}
	return fmt.Sprintf("address 0x%04X", addr)
}

func write(addr uint16, value byte) WriteOperation {
	return WriteOperation{Address: addr, Value: value, Description: Describe(addr)}
}

// GenerateSystemWriteOperations emits the writable system fields in address
// order. Firmware version, INIT_STAMP and the reserved bytes are skipped.
func GenerateSystemWriteOperations(s configdata.SystemConfig) []WriteOperation {
	ops := []WriteOperation{
		write(AddrBitrate, byte(s.Bitrate)),
		write(AddrHeartbeatPGNHigh, s.Heartbeat.PGNHigh),
		write(AddrHeartbeatPGNLow, s.Heartbeat.PGNLow),
		write(AddrHeartbeatSA, s.Heartbeat.SA),
		write(AddrRebroadcast, byte(s.Rebroadcast)),
		write(AddrWritePGNHigh, s.Write.PGNHigh),
		write(AddrWritePGNLow, s.Write.PGNLow),
		write(AddrWriteSA, s.Write.SA),
		write(AddrReadPGNHigh, s.Read.PGNHigh),
		write(AddrReadPGNLow, s.Read.PGNLow),
		write(AddrReadSA, s.Read.SA),
		write(AddrResponsePGNHigh, s.Response.PGNHigh),
		write(AddrResponsePGNLow, s.Response.PGNLow),
		write(AddrResponseSA, s.Response.SA),
		write(AddrDiagPGNHigh, s.Diagnostic.PGNHigh),
		write(AddrDiagPGNLow, s.Diagnostic.PGNLow),
		write(AddrDiagSA, s.Diagnostic.SA),
		write(AddrSerialNumber, s.SerialNumber),
	}
	name := s.CustomerNameBytes()
	for i, b := range name {
		ops = append(ops, write(AddrCustomerName+uint16(i), b))
	}
	return ops
}

// GenerateInputWriteOperations emits all CasesPerInput slots of an input.
// Slots the firmware does not use for this input are written empty so stale
// device content is cleared.
func GenerateInputWriteOperations(in configdata.InputConfig) ([]WriteOperation, error) {
	ops := make([]WriteOperation, 0, BytesPerInput)

	for slot := 0; slot < CasesPerInput; slot++ {
		c := configdata.NewCaseConfig()
		switch {
		case slot < OnSlots && slot < len(in.OnCases):
			c = in.OnCases[slot]
		case slot >= OnSlots && slot-OnSlots < len(in.OffCases):
			c = in.OffCases[slot-OnSlots]
		}

		rec, err := EncodeCase(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", slotName(in.InputNumber, slot), err)
		}

		base, err := CaseAddress(in.InputNumber, slot)
		if err != nil {
			return nil, err
		}
		for off, v := range rec {
			addr := base + uint16(off)
			ops = append(ops, WriteOperation{
				Address:     addr,
				Value:       v,
				Description: fmt.Sprintf("%s: byte %d", slotName(in.InputNumber, slot), off),
			})
		}
	}
	return ops, nil
}

// GenerateFullConfigWriteOperations walks the system fields, then every
// input and slot in address order. It works on a normalized copy, cfg is
// left untouched. Nothing is generated for an invalid configuration.
func GenerateFullConfigWriteOperations(cfg *configdata.FullConfiguration) ([]WriteOperation, error) {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ops := GenerateSystemWriteOperations(cfg.System)
	for _, in := range cfg.Inputs {
		inOps, err := GenerateInputWriteOperations(in)
		if err != nil {
			return nil, err
		}
		ops = append(ops, inOps...)
	}
	return ops, nil
}

// GenerateFactoryResetOperations clears INIT_STAMP.
func GenerateFactoryResetOperations() []WriteOperation {
	return []WriteOperation{{Address: AddrInitStamp, Value: FactoryResetValue, Description: "Factory reset (clear Init Stamp)"}}
}

// GenerateSystemReadOperations reads every system byte 0x00-0x1A, including
// firmware version and reserved bytes.
func GenerateSystemReadOperations() []ReadOperation {
	ops := make([]ReadOperation, 0, SystemSize)
	for addr := uint16(0); addr <= SystemEnd; addr++ {
		ops = append(ops, ReadOperation{Address: addr, Description: Describe(addr)})
	}
	return ops
}

// GenerateInputReadOperations reads all slots of input n, same order as the
// write generator.
func GenerateInputReadOperations(n int) ([]ReadOperation, error) {
	first, last, err := InputRange(n)
	if err != nil {
		return nil, err
	}
	ops := make([]ReadOperation, 0, BytesPerInput)
	for addr := first; addr <= last; addr++ {
		ops = append(ops, ReadOperation{Address: addr, Description: Describe(addr)})
	}
	return ops, nil
}

// GenerateFullConfigReadOperations reads the system region and all inputs.
func GenerateFullConfigReadOperations() []ReadOperation {
	ops := GenerateSystemReadOperations()
	for n := 1; n <= TotalInputs; n++ {
		inOps, _ := GenerateInputReadOperations(n)
		ops = append(ops, inOps...)
	}
	return ops
}

// Timing model for progress bars and overall deadlines.
const (
	PerOperationLatency = 10 * time.Millisecond
	SequenceOverhead    = 500 * time.Millisecond
)

// EstimateWriteTime is linear in the operation count.
func EstimateWriteTime(operations int) time.Duration {
	if operations < 0 {
		operations = 0
	}
	return SequenceOverhead + time.Duration(operations)*PerOperationLatency
}
