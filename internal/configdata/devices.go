package configdata

import (
	"fmt"
	"sort"
)

type DeviceType string

const (
	DevicePowercell DeviceType = "powercell"
	DeviceInmotion  DeviceType = "inmotion"
)

// Device is a downstream module addressable by the controller.
type Device struct {
	ID      string     `json:"id" yaml:"id"`
	Name    string     `json:"name" yaml:"name"`
	Type    DeviceType `json:"device_type" yaml:"device_type"`
	PGNHigh uint8      `json:"pgn_high" yaml:"pgn_high"`
	PGNLow  uint8      `json:"pgn_low" yaml:"pgn_low"`
	Outputs []string   `json:"outputs" yaml:"outputs"`
}

// PGN combines the high and low bytes.
func (d Device) PGN() uint32 {
	return uint32(d.PGNHigh)<<8 | uint32(d.PGNLow)
}

// OutputCount is the number of numbered outputs (1..OutputCount).
func (d Device) OutputCount() int {
	return len(d.Outputs)
}

// OutputName returns the label of output n, 1-based.
func (d Device) OutputName(n int) string {
	if n < 1 || n > len(d.Outputs) {
		return fmt.Sprintf("Output %d", n)
	}
	return d.Outputs[n-1]
}

var powercellOutputs = []string{
	"Output 1", "Output 2", "Output 3", "Output 4", "Output 5",
	"Output 6", "Output 7", "Output 8", "Output 9", "Output 10",
}

var inmotionOutputs = []string{
	"Relay 1A", "Relay 1B", "Relay 2A", "Relay 2B",
	"Output 1", "Output 2", "Output 3", "Output 4",
}

// inMOTION outputs 1-4 are the relays.
const inmotionRelayCount = 4

var devices = map[string]Device{
	"powercell_front": {ID: "powercell_front", Name: "POWERCELL Front", Type: DevicePowercell, PGNHigh: 0xFF, PGNLow: 0x01, Outputs: powercellOutputs},
	"powercell_rear":  {ID: "powercell_rear", Name: "POWERCELL Rear", Type: DevicePowercell, PGNHigh: 0xFF, PGNLow: 0x02, Outputs: powercellOutputs},
	"powercell_3":     {ID: "powercell_3", Name: "POWERCELL 3", Type: DevicePowercell, PGNHigh: 0xFF, PGNLow: 0x07, Outputs: powercellOutputs},
	"powercell_4":     {ID: "powercell_4", Name: "POWERCELL 4", Type: DevicePowercell, PGNHigh: 0xFF, PGNLow: 0x08, Outputs: powercellOutputs},
	"inmotion_1":      {ID: "inmotion_1", Name: "inMOTION 1", Type: DeviceInmotion, PGNHigh: 0xFF, PGNLow: 0x03, Outputs: inmotionOutputs},
	"inmotion_2":      {ID: "inmotion_2", Name: "inMOTION 2", Type: DeviceInmotion, PGNHigh: 0xFF, PGNLow: 0x04, Outputs: inmotionOutputs},
	"inmotion_3":      {ID: "inmotion_3", Name: "inMOTION 3", Type: DeviceInmotion, PGNHigh: 0xFF, PGNLow: 0x05, Outputs: inmotionOutputs},
	"inmotion_4":      {ID: "inmotion_4", Name: "inMOTION 4", Type: DeviceInmotion, PGNHigh: 0xFF, PGNLow: 0x06, Outputs: inmotionOutputs},
}

// LookupDevice returns the registry entry for id.
func LookupDevice(id string) (Device, bool) {
	d, ok := devices[id]
	return d, ok
}

// DeviceByPGN resolves the device targeted by an EEPROM case record.
func DeviceByPGN(high, low uint8) (Device, bool) {
	for _, d := range devices {
		if d.PGNHigh == high && d.PGNLow == low {
			return d, true
		}
	}
	return Device{}, false
}

// Devices lists the registry ordered by PGN.
func Devices() []Device {
	list := make([]Device, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PGN() < list[j].PGN() })
	return list
}
