package eeprom

import (
	"fmt"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

// Case record offsets.
const (
	OffPriority   = 0
	OffPGNHigh    = 1
	OffPGNLow     = 2
	OffSA         = 3
	OffFlags      = 4
	OffTimerOn    = 5
	OffTimerDelay = 6
	OffPattern    = 7
	OffMustBeOn   = 8
	OffMustBeOff  = 14
	OffCANData    = 20
	OffReserved   = 28
	OffGuard      = CaseSize - 1

	maskLen = OffMustBeOff - OffMustBeOn
)

// Flag byte bits.
const (
	FlagSetIgnition        = 0x01
	FlagRequireSecurityOff = 0x02
	FlagCanBeOverridden    = 0x04
	FlagRequireIgnitionOn  = 0x08
	FlagToggle             = 0x10
	FlagTimed              = 0x20
	FlagTrackIgnition      = 0x40
	FlagEnabled            = 0x80
)

// Timer byte bits.
const (
	timerTrackInput = 0x01
	timerScale10s   = 0x02
	timerValueShift = 2
)

// Priority and source address of the output command a case emits.
const (
	CommandPriority = 6
	CommandSA       = configdata.DefaultCommandSA
)

// Record is one raw 32-byte case slot.
type Record [CaseSize]byte

// Valid reports whether the guard byte is intact.
func (r Record) Valid() bool {
	return r[OffGuard] == GuardByte
}

// EncodeCase packs a case into its EEPROM record. An unconfigured case
// becomes an all-zero record, clearing the guard so the slot reads as empty.
// A disabled case that still carries data keeps a valid guard with the
// enabled bit clear.
func EncodeCase(c configdata.CaseConfig) (Record, error) {
	var r Record
	c.Normalize()
	if c.IsDefault() {
		return r, nil
	}

	if err := configdata.ValidateCase(c); err != nil {
		return r, err
	}

	r[OffPriority] = CommandPriority
	r[OffSA] = CommandSA
	r[OffFlags] = encodeFlags(c)
	r[OffTimerOn] = EncodeTimer(c.TimerOn)
	r[OffTimerDelay] = EncodeTimer(c.TimerDelay)
	r[OffPattern] = EncodePattern(c.PatternOnTime, c.PatternOffTime)

	on := InputsToMask(c.MustBeOn)
	off := InputsToMask(c.MustBeOff)
	copy(r[OffMustBeOn:], on[:])
	copy(r[OffMustBeOff:], off[:])

	for _, do := range c.DeviceOutputs {
		dev, _ := configdata.LookupDevice(do.DeviceID)
		data, err := configdata.EncodeOutputs(dev, do.Outputs)
		if err != nil {
			return r, err
		}
		if data == ([configdata.MessageLen]byte{}) {
			continue
		}
		r[OffPGNHigh] = dev.PGNHigh
		r[OffPGNLow] = dev.PGNLow
		copy(r[OffCANData:], data[:])
		break
	}

	r[OffGuard] = GuardByte
	return r, nil
}

func encodeFlags(c configdata.CaseConfig) byte {
	var f byte
	switch c.IgnitionMode {
	case configdata.IgnitionSet:
		f |= FlagSetIgnition
	case configdata.IgnitionTrack:
		f |= FlagTrackIgnition
	}
	if c.RequireSecurityOff {
		f |= FlagRequireSecurityOff
	}
	if c.CanBeOverridden {
		f |= FlagCanBeOverridden
	}
	if c.RequireIgnitionOn {
		f |= FlagRequireIgnitionOn
	}
	switch c.Mode {
	case configdata.CaseToggle:
		f |= FlagToggle
	case configdata.CaseTimed:
		f |= FlagTimed
	}
	if c.Enabled {
		f |= FlagEnabled
	}
	return f
}

// DecodeCase unpacks a record. The guard is checked first: a record without
// it is an empty slot no matter what the other bytes hold.
func DecodeCase(r Record) configdata.CaseConfig {
	c := configdata.NewCaseConfig()
	if !r.Valid() {
		return c
	}

	f := r[OffFlags]
	c.Enabled = f&FlagEnabled != 0
	switch {
	case f&FlagToggle != 0:
		c.Mode = configdata.CaseToggle
	case f&FlagTimed != 0:
		c.Mode = configdata.CaseTimed
	}
	switch {
	case f&FlagSetIgnition != 0:
		c.IgnitionMode = configdata.IgnitionSet
	case f&FlagTrackIgnition != 0:
		c.IgnitionMode = configdata.IgnitionTrack
	}
	c.RequireSecurityOff = f&FlagRequireSecurityOff != 0
	c.CanBeOverridden = f&FlagCanBeOverridden != 0
	c.RequireIgnitionOn = f&FlagRequireIgnitionOn != 0

	c.TimerOn = DecodeTimer(r[OffTimerOn])
	c.TimerDelay = DecodeTimer(r[OffTimerDelay])
	c.PatternOnTime, c.PatternOffTime = DecodePattern(r[OffPattern])

	c.MustBeOn = MaskToInputs(r[OffMustBeOn : OffMustBeOn+maskLen])
	c.MustBeOff = MaskToInputs(r[OffMustBeOff : OffMustBeOff+maskLen])

	if dev, ok := configdata.DeviceByPGN(r[OffPGNHigh], r[OffPGNLow]); ok {
		outs, err := configdata.DecodeOutputs(dev, r[OffCANData:OffCANData+configdata.MessageLen])
		if err == nil && len(outs) > 0 {
			c.DeviceOutputs = []configdata.DeviceOutput{{DeviceID: dev.ID, Outputs: outs}}
		}
	}

	return c
}

// EncodeTimer packs bit 0 execution mode, bit 1 scale, bits 2-7 value.
func EncodeTimer(t configdata.Timer) byte {
	b := (t.Value & configdata.MaxTimerValue) << timerValueShift
	if t.Scale10s {
		b |= timerScale10s
	}
	if t.Mode == configdata.TimerTrackInput {
		b |= timerTrackInput
	}
	return b
}

func DecodeTimer(b byte) configdata.Timer {
	t := configdata.Timer{
		Mode:     configdata.TimerFireAndForget,
		Value:    b >> timerValueShift,
		Scale10s: b&timerScale10s != 0,
	}
	if b&timerTrackInput != 0 {
		t.Mode = configdata.TimerTrackInput
	}
	return t
}

// EncodePattern puts on-time in the high nibble, off-time in the low nibble.
func EncodePattern(on, off uint8) byte {
	if on > configdata.MaxPatternValue {
		on = configdata.MaxPatternValue
	}
	if off > configdata.MaxPatternValue {
		off = configdata.MaxPatternValue
	}
	return on<<4 | off
}

func DecodePattern(b byte) (on, off uint8) {
	return b >> 4, b & 0x0F
}

// InputsToMask sets bit (n-1)%8 of byte (n-1)/8 for every input n.
func InputsToMask(inputs []int) [maskLen]byte {
	var m [maskLen]byte
	for _, n := range inputs {
		if n < 1 || n > TotalInputs {
			continue
		}
		m[(n-1)/8] |= 1 << ((n - 1) % 8)
	}
	return m
}

// MaskToInputs lists the inputs set in a mask, ascending. Empty masks give nil.
func MaskToInputs(mask []byte) []int {
	var out []int
	for i, b := range mask {
		for bit := 0; bit < 8; bit++ {
			n := i*8 + bit + 1
			if n > TotalInputs {
				return out
			}
			if b&(1<<bit) != 0 {
				out = append(out, n)
			}
		}
	}
	return out
}

// RecordAt extracts the record of a slot from an image. Missing bytes are
// reported; a record with missing bytes is returned as empty.
func RecordAt(img Image, input, slot int) (Record, []uint16, error) {
	var r Record
	base, err := CaseAddress(input, slot)
	if err != nil {
		return r, nil, err
	}

	var missing []uint16
	for i := 0; i < CaseSize; i++ {
		v, ok := img[base+uint16(i)]
		if !ok {
			missing = append(missing, base+uint16(i))
			continue
		}
		r[i] = v
	}
	if len(missing) > 0 {
		return Record{}, missing, nil
	}
	return r, nil, nil
}

func (r Record) String() string {
	return fmt.Sprintf("% X", r[:])
}
