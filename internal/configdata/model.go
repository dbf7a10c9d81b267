// Package configdata holds the in-memory configuration of the controller:
// system settings, 44 inputs with their ON/OFF cases, and the static
// registries (devices, inputs, case counts) the EEPROM layout depends on.
package configdata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type OutputMode int

const (
	OutputOff OutputMode = iota
	OutputTrack
	OutputSoftStart
	OutputPWM
	OutputAllMotors
	OutputOn
)

func (m OutputMode) String() string {
	switch m {
	case OutputOff:
		return "OFF"
	case OutputTrack:
		return "TRACK"
	case OutputSoftStart:
		return "SOFT_START"
	case OutputPWM:
		return "PWM"
	case OutputAllMotors:
		return "ALL_MOTORS"
	case OutputOn:
		return "ON"
	default:
		return "UNKNOWN"
	}
}

// ParseOutputMode accepts the String form, case-insensitive, with "-" or "_".
func ParseOutputMode(s string) (OutputMode, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for m := OutputOff; m <= OutputOn; m++ {
		if m.String() == norm {
			return m, nil
		}
	}
	return OutputOff, fmt.Errorf("unknown output mode %q", s)
}

// MaxPWMDuty is the largest 4-bit duty value (100%).
const MaxPWMDuty = 15

// OutputConfig is the behaviour of one output within a case.
type OutputConfig struct {
	Enabled bool       `json:"enabled"`
	Mode    OutputMode `json:"mode"`
	PWMDuty uint8      `json:"pwm_duty"`
}

// DutyPercent converts a 4-bit duty into a display percentage.
func DutyPercent(duty uint8) int {
	if duty > MaxPWMDuty {
		duty = MaxPWMDuty
	}
	return int(math.Round(float64(duty) / MaxPWMDuty * 100))
}

// DeviceOutput pairs a device id with its output assignments.
// Cases keep these in an ordered list: the record layout is positional,
// so encode and decode walk the list in the same order.
type DeviceOutput struct {
	DeviceID string
	Outputs  map[int]OutputConfig
}

type CaseMode string

const (
	CaseTrack  CaseMode = "track"
	CaseToggle CaseMode = "toggle"
	CaseTimed  CaseMode = "timed"
)

type IgnitionMode string

const (
	IgnitionNormal IgnitionMode = "normal"
	IgnitionSet    IgnitionMode = "set_ignition"
	IgnitionTrack  IgnitionMode = "track_ignition"
)

type TimerMode string

const (
	TimerFireAndForget TimerMode = "fire_and_forget"
	TimerTrackInput    TimerMode = "track_input"
)

const (
	MaxTimerValue   = 63
	MaxPatternValue = 15
)

// Timer is one timer byte: execution mode, 6-bit value and scale.
type Timer struct {
	Mode     TimerMode `json:"mode"`
	Value    uint8     `json:"value"`
	Scale10s bool      `json:"scale_10s"`
}

// Duration returns value × 0.25 s, or value × 10 s with the scale flag.
func (t Timer) Duration() time.Duration {
	unit := 250 * time.Millisecond
	if t.Scale10s {
		unit = 10 * time.Second
	}
	return time.Duration(t.Value) * unit
}

// Seconds is Duration in seconds.
func (t Timer) Seconds() float64 {
	return t.Duration().Seconds()
}

// CaseConfig is one ON or OFF rule of an input.
type CaseConfig struct {
	Enabled bool
	Mode    CaseMode

	// 250 ms units
	PatternOnTime  uint8
	PatternOffTime uint8

	IgnitionMode       IgnitionMode
	CanBeOverridden    bool
	RequireIgnitionOn  bool
	RequireSecurityOff bool

	TimerDelay Timer
	TimerOn    Timer

	MustBeOn  []int
	MustBeOff []int

	DeviceOutputs []DeviceOutput
}

// NewCaseConfig returns an unconfigured case with firmware defaults.
func NewCaseConfig() CaseConfig {
	return CaseConfig{
		Enabled:      false,
		Mode:         CaseTrack,
		IgnitionMode: IgnitionNormal,
		TimerDelay:   Timer{Mode: TimerFireAndForget},
		TimerOn:      Timer{Mode: TimerFireAndForget},
	}
}

// IsDefault reports whether the case carries no configuration at all.
// Such slots are written as empty records.
func (c CaseConfig) IsDefault() bool {
	return c.Equal(NewCaseConfig())
}

// OnDuration returns how long the outputs stay on. A zero on-timer is not a
// zero duration: the outputs stay on until the case is released.
func (c CaseConfig) OnDuration() (d time.Duration, indefinite bool) {
	if c.TimerOn.Value == 0 {
		return 0, true
	}
	return c.TimerOn.Duration(), false
}

// ActivationDelay returns the delay before the case fires; zero means none.
func (c CaseConfig) ActivationDelay() time.Duration {
	return c.TimerDelay.Duration()
}

// Device returns the registry entry of the case's target module, if any.
func (c CaseConfig) Device() (Device, bool) {
	if len(c.DeviceOutputs) == 0 {
		return Device{}, false
	}
	return LookupDevice(c.DeviceOutputs[0].DeviceID)
}

// Equal compares two cases field by field. Nil and empty slices are equal.
func (c CaseConfig) Equal(o CaseConfig) bool {
	if c.Enabled != o.Enabled || c.Mode != o.Mode ||
		c.PatternOnTime != o.PatternOnTime || c.PatternOffTime != o.PatternOffTime ||
		c.IgnitionMode != o.IgnitionMode || c.CanBeOverridden != o.CanBeOverridden ||
		c.RequireIgnitionOn != o.RequireIgnitionOn || c.RequireSecurityOff != o.RequireSecurityOff ||
		c.TimerDelay != o.TimerDelay || c.TimerOn != o.TimerOn {
		return false
	}
	if !equalInts(c.MustBeOn, o.MustBeOn) || !equalInts(c.MustBeOff, o.MustBeOff) {
		return false
	}
	if len(c.DeviceOutputs) != len(o.DeviceOutputs) {
		return false
	}
	for i := range c.DeviceOutputs {
		a, b := c.DeviceOutputs[i], o.DeviceOutputs[i]
		if a.DeviceID != b.DeviceID || len(a.Outputs) != len(b.Outputs) {
			return false
		}
		for n, oc := range a.Outputs {
			if other, ok := b.Outputs[n]; !ok || other != oc {
				return false
			}
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Normalize brings the case into the canonical form the EEPROM record can
// represent: disabled and OFF outputs dropped, duty cleared outside PWM,
// devices without outputs dropped, condition lists sorted and de-duplicated.
func (c *CaseConfig) Normalize() {
	if c.Mode == "" {
		c.Mode = CaseTrack
	}
	if c.IgnitionMode == "" {
		c.IgnitionMode = IgnitionNormal
	}
	if c.TimerDelay.Mode == "" {
		c.TimerDelay.Mode = TimerFireAndForget
	}
	if c.TimerOn.Mode == "" {
		c.TimerOn.Mode = TimerFireAndForget
	}

	c.MustBeOn = sortedUnique(c.MustBeOn)
	c.MustBeOff = sortedUnique(c.MustBeOff)

	var kept []DeviceOutput
	for _, do := range c.DeviceOutputs {
		outs := make(map[int]OutputConfig)
		for n, oc := range do.Outputs {
			if !oc.Enabled || oc.Mode == OutputOff {
				continue
			}
			if oc.Mode != OutputPWM {
				oc.PWMDuty = 0
			}
			outs[n] = oc
		}
		if len(outs) > 0 {
			kept = append(kept, DeviceOutput{DeviceID: do.DeviceID, Outputs: outs})
		}
	}
	c.DeviceOutputs = kept
}

func sortedUnique(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// InputConfig holds the cases of one input. The case slices always have the
// length given by CaseCounts; the EEPROM addressing depends on it.
type InputConfig struct {
	InputNumber int
	CustomName  string
	OnCases     []CaseConfig
	OffCases    []CaseConfig
}

// NewInputConfig builds an input with default cases for its slot counts.
func NewInputConfig(n int) InputConfig {
	on, off := CaseCounts(n)
	in := InputConfig{
		InputNumber: n,
		OnCases:     make([]CaseConfig, on),
		OffCases:    make([]CaseConfig, off),
	}
	for i := range in.OnCases {
		in.OnCases[i] = NewCaseConfig()
	}
	for i := range in.OffCases {
		in.OffCases[i] = NewCaseConfig()
	}
	return in
}

// DisplayName is the custom name, or the input's default label.
func (in InputConfig) DisplayName() string {
	if in.CustomName != "" {
		return in.CustomName
	}
	if def, ok := Input(in.InputNumber); ok {
		return def.Name
	}
	return ""
}

type BitrateCode uint8

const (
	Bitrate250K BitrateCode = 0x01
	Bitrate500K BitrateCode = 0x02
	Bitrate1M   BitrateCode = 0x03
)

type RebroadcastMode uint8

const (
	RebroadcastEdge     RebroadcastMode = 0x01
	RebroadcastPeriodic RebroadcastMode = 0x02
)

// PGNAddress is a PGN high/low pair with a source address.
type PGNAddress struct {
	PGNHigh uint8
	PGNLow  uint8
	SA      uint8
}

func (p PGNAddress) PGN() uint32 {
	return uint32(p.PGNHigh)<<8 | uint32(p.PGNLow)
}

const CustomerNameLen = 4

// SystemConfig holds the device-wide settings of the system region.
type SystemConfig struct {
	Bitrate      BitrateCode
	Rebroadcast  RebroadcastMode
	Heartbeat    PGNAddress
	Write        PGNAddress
	Read         PGNAddress
	Response     PGNAddress
	Diagnostic   PGNAddress
	SerialNumber uint8
	CustomerName string
}

// DefaultSystemConfig returns the firmware defaults.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Bitrate:      Bitrate250K,
		Rebroadcast:  RebroadcastEdge,
		Heartbeat:    PGNAddress{0xFF, 0x06, 0x80},
		Write:        PGNAddress{0xFF, 0x16, 0x80},
		Read:         PGNAddress{0xFF, 0x26, 0x80},
		Response:     PGNAddress{0xFF, 0x36, 0x80},
		Diagnostic:   PGNAddress{0xFF, 0x46, 0x80},
		SerialNumber: 0x42,
	}
}

// CustomerNameBytes returns the name padded with NUL to four bytes.
func (s SystemConfig) CustomerNameBytes() [CustomerNameLen]byte {
	var b [CustomerNameLen]byte
	copy(b[:], s.CustomerName)
	return b
}

// CustomerNameFromBytes is the inverse of CustomerNameBytes.
func CustomerNameFromBytes(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

// FirmwareVersion as reported by the device (read-only).
type FirmwareVersion struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
}

// FullConfiguration is the root entity: system settings plus exactly 44
// inputs, index i holding input i+1.
type FullConfiguration struct {
	System SystemConfig
	Inputs [TotalInputs]InputConfig
}

// NewFullConfiguration returns a configuration with all defaults.
func NewFullConfiguration() *FullConfiguration {
	cfg := &FullConfiguration{System: DefaultSystemConfig()}
	for i := range cfg.Inputs {
		cfg.Inputs[i] = NewInputConfig(i + 1)
	}
	return cfg
}

// Input returns a pointer to input n, nil if n is out of range.
func (f *FullConfiguration) Input(n int) *InputConfig {
	if n < 1 || n > TotalInputs {
		return nil
	}
	return &f.Inputs[n-1]
}

// Normalize canonicalises every case in place.
func (f *FullConfiguration) Normalize() {
	f.System.CustomerName = strings.TrimRight(f.System.CustomerName, "\x00 ")
	for i := range f.Inputs {
		for j := range f.Inputs[i].OnCases {
			f.Inputs[i].OnCases[j].Normalize()
		}
		for j := range f.Inputs[i].OffCases {
			f.Inputs[i].OffCases[j].Normalize()
		}
	}
}

// Equal compares two configurations.
func (f *FullConfiguration) Equal(o *FullConfiguration) bool {
	if f.System != o.System {
		return false
	}
	for i := range f.Inputs {
		a, b := f.Inputs[i], o.Inputs[i]
		if a.InputNumber != b.InputNumber || a.CustomName != b.CustomName ||
			len(a.OnCases) != len(b.OnCases) || len(a.OffCases) != len(b.OffCases) {
			return false
		}
		for j := range a.OnCases {
			if !a.OnCases[j].Equal(b.OnCases[j]) {
				return false
			}
		}
		for j := range a.OffCases {
			if !a.OffCases[j].Equal(b.OffCases[j]) {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy.
func (f *FullConfiguration) Clone() *FullConfiguration {
	out := &FullConfiguration{System: f.System}
	for i, in := range f.Inputs {
		c := InputConfig{InputNumber: in.InputNumber, CustomName: in.CustomName}
		c.OnCases = cloneCases(in.OnCases)
		c.OffCases = cloneCases(in.OffCases)
		out.Inputs[i] = c
	}
	return out
}

func cloneCases(cases []CaseConfig) []CaseConfig {
	if cases == nil {
		return nil
	}
	out := make([]CaseConfig, len(cases))
	for i, c := range cases {
		cp := c
		cp.MustBeOn = append([]int(nil), c.MustBeOn...)
		cp.MustBeOff = append([]int(nil), c.MustBeOff...)
		cp.DeviceOutputs = nil
		for _, do := range c.DeviceOutputs {
			outs := make(map[int]OutputConfig, len(do.Outputs))
			for n, oc := range do.Outputs {
				outs[n] = oc
			}
			cp.DeviceOutputs = append(cp.DeviceOutputs, DeviceOutput{DeviceID: do.DeviceID, Outputs: outs})
		}
		out[i] = cp
	}
	return out
}

// PatternPreset is a named blink timing.
type PatternPreset struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	OnTime  uint8  `json:"on_time"`
	OffTime uint8  `json:"off_time"`
}

// PatternPresets lists the selectable blink patterns.
var PatternPresets = []PatternPreset{
	{"none", "No Pattern (Solid)", 0, 0},
	{"turn_signal", "Turn Signal (500ms)", 1, 1},
	{"hazard", "Hazard (500ms)", 1, 1},
	{"slow_flash", "Slow Flash (1s)", 2, 2},
	{"custom", "Custom Pattern", 1, 1},
}

// PatternPresetFor returns the first preset matching the timing, or "custom".
func PatternPresetFor(on, off uint8) string {
	for _, p := range PatternPresets {
		if p.OnTime == on && p.OffTime == off && p.Key != "custom" {
			return p.Key
		}
	}
	return "custom"
}
