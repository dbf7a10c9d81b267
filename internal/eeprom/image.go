package eeprom

import (
	"sort"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

// Image is a sparse view of device memory as collected by a read sequence.
type Image map[uint16]byte

// Addresses returns the populated addresses ascending.
func (img Image) Addresses() []uint16 {
	out := make([]uint16, 0, len(img))
	for a := range img {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply stores the values of a write list.
func (img Image) Apply(ops []WriteOperation) {
	for _, op := range ops {
		img[op.Address] = op.Value
	}
}

// SlotRef identifies a case slot.
type SlotRef struct {
	Input int `json:"input"`
	Slot  int `json:"slot"`
}

func (s SlotRef) String() string {
	return slotName(s.Input, s.Slot)
}

// DecodeReport lists what could not be trusted while decoding an image.
type DecodeReport struct {
	Firmware configdata.FirmwareVersion `json:"firmware"`
	// Addresses the image lacks, typically failed reads.
	Missing []uint16 `json:"missing,omitempty"`
	// Slots with content but no guard byte, decoded as empty.
	StaleSlots []SlotRef `json:"stale_slots,omitempty"`
}

// EncodeConfiguration renders a configuration into a full image. Decoding
// the image yields the normalized form of cfg.
func EncodeConfiguration(cfg *configdata.FullConfiguration) (Image, error) {
	ops, err := GenerateFullConfigWriteOperations(cfg)
	if err != nil {
		return nil, err
	}
	img := make(Image, len(ops))
	img.Apply(ops)
	return img, nil
}

// DecodeSystem rebuilds the system settings. Fields whose bytes are missing
// keep their defaults and are reported.
func DecodeSystem(img Image) (configdata.SystemConfig, *DecodeReport) {
	rep := &DecodeReport{}
	s := configdata.DefaultSystemConfig()

	get := func(addr uint16, dst *uint8) {
		if v, ok := img[addr]; ok {
			*dst = v
		} else {
			rep.Missing = append(rep.Missing, addr)
		}
	}

	bitrate, rebroadcast := uint8(s.Bitrate), uint8(s.Rebroadcast)
	get(AddrBitrate, &bitrate)
	get(AddrHeartbeatPGNHigh, &s.Heartbeat.PGNHigh)
	get(AddrHeartbeatPGNLow, &s.Heartbeat.PGNLow)
	get(AddrHeartbeatSA, &s.Heartbeat.SA)
	get(AddrFirmwareMajor, &rep.Firmware.Major)
	get(AddrFirmwareMinor, &rep.Firmware.Minor)
	get(AddrRebroadcast, &rebroadcast)
	get(AddrWritePGNHigh, &s.Write.PGNHigh)
	get(AddrWritePGNLow, &s.Write.PGNLow)
	get(AddrWriteSA, &s.Write.SA)
	get(AddrReadPGNHigh, &s.Read.PGNHigh)
	get(AddrReadPGNLow, &s.Read.PGNLow)
	get(AddrReadSA, &s.Read.SA)
	get(AddrResponsePGNHigh, &s.Response.PGNHigh)
	get(AddrResponsePGNLow, &s.Response.PGNLow)
	get(AddrResponseSA, &s.Response.SA)
	get(AddrDiagPGNHigh, &s.Diagnostic.PGNHigh)
	get(AddrDiagPGNLow, &s.Diagnostic.PGNLow)
	get(AddrDiagSA, &s.Diagnostic.SA)
	get(AddrSerialNumber, &s.SerialNumber)
	s.Bitrate = configdata.BitrateCode(bitrate)
	s.Rebroadcast = configdata.RebroadcastMode(rebroadcast)

	var name [configdata.CustomerNameLen]byte
	for i := range name {
		get(AddrCustomerName+uint16(i), &name[i])
	}
	s.CustomerName = configdata.CustomerNameFromBytes(name[:])

	return s, rep
}

// DecodeInput rebuilds the cases of input n. Slots with missing bytes or a
// bad guard decode as empty cases.
func DecodeInput(img Image, n int) (configdata.InputConfig, *DecodeReport) {
	rep := &DecodeReport{}
	in := configdata.NewInputConfig(n)

	for slot := 0; slot < CasesPerInput; slot++ {
		var dst *configdata.CaseConfig
		switch {
		case slot < OnSlots && slot < len(in.OnCases):
			dst = &in.OnCases[slot]
		case slot >= OnSlots && slot-OnSlots < len(in.OffCases):
			dst = &in.OffCases[slot-OnSlots]
		default:
			continue
		}

		rec, missing, err := RecordAt(img, n, slot)
		if err != nil {
			continue
		}
		if len(missing) > 0 {
			rep.Missing = append(rep.Missing, missing...)
			continue
		}
		if !rec.Valid() && rec != (Record{}) {
			rep.StaleSlots = append(rep.StaleSlots, SlotRef{Input: n, Slot: slot})
		}
		*dst = DecodeCase(rec)
	}
	return in, rep
}

// DecodeConfiguration rebuilds a full configuration from an image.
func DecodeConfiguration(img Image) (*configdata.FullConfiguration, *DecodeReport) {
	cfg := configdata.NewFullConfiguration()

	sys, rep := DecodeSystem(img)
	cfg.System = sys

	for n := 1; n <= TotalInputs; n++ {
		in, inRep := DecodeInput(img, n)
		cfg.Inputs[n-1] = in
		rep.Missing = append(rep.Missing, inRep.Missing...)
		rep.StaleSlots = append(rep.StaleSlots, inRep.StaleSlots...)
	}
	return cfg, rep
}
