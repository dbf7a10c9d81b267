package configdata

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid configuration: %s", e.Problems[0])
	}
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration can be encoded into the EEPROM
// layout. It must pass before any write sequence starts.
func (f *FullConfiguration) Validate() error {
	var p problems

	validateSystem(&p, f.System)

	for i, in := range f.Inputs {
		n := i + 1
		if in.InputNumber != n {
			p.addf("input slot %d holds input_number %d", n, in.InputNumber)
		}
		on, off := CaseCounts(n)
		if len(in.OnCases) != on {
			p.addf("input %d: %d ON cases, firmware has %d", n, len(in.OnCases), on)
		}
		if len(in.OffCases) != off {
			p.addf("input %d: %d OFF cases, firmware has %d", n, len(in.OffCases), off)
		}
		for j, c := range in.OnCases {
			validateCase(&p, fmt.Sprintf("input %d ON case %d", n, j+1), c)
		}
		for j, c := range in.OffCases {
			validateCase(&p, fmt.Sprintf("input %d OFF case %d", n, j+1), c)
		}
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

// ValidateCase checks a single case.
func ValidateCase(c CaseConfig) error {
	var p problems
	validateCase(&p, "case", c)
	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

func validateSystem(p *problems, s SystemConfig) {
	switch s.Bitrate {
	case Bitrate250K, Bitrate500K, Bitrate1M:
	default:
		p.addf("system: unknown bitrate code 0x%02X", uint8(s.Bitrate))
	}
	switch s.Rebroadcast {
	case RebroadcastEdge, RebroadcastPeriodic:
	default:
		p.addf("system: unknown rebroadcast mode 0x%02X", uint8(s.Rebroadcast))
	}
	if len(s.CustomerName) > CustomerNameLen {
		p.addf("system: customer name %q longer than %d characters", s.CustomerName, CustomerNameLen)
	}
	for _, r := range s.CustomerName {
		if r < 0x20 || r > 0x7E {
			p.addf("system: customer name %q is not printable ASCII", s.CustomerName)
			break
		}
	}
}

func validateCase(p *problems, where string, c CaseConfig) {
	switch c.Mode {
	case CaseTrack, CaseToggle, CaseTimed:
	default:
		p.addf("%s: unknown mode %q", where, c.Mode)
	}
	switch c.IgnitionMode {
	case IgnitionNormal, IgnitionSet, IgnitionTrack:
	default:
		p.addf("%s: unknown ignition mode %q", where, c.IgnitionMode)
	}
	if c.PatternOnTime > MaxPatternValue || c.PatternOffTime > MaxPatternValue {
		p.addf("%s: pattern times must be 0-%d", where, MaxPatternValue)
	}
	validateTimer(p, where+" delay timer", c.TimerDelay)
	validateTimer(p, where+" on timer", c.TimerOn)

	for _, n := range c.MustBeOn {
		if n < 1 || n > TotalInputs {
			p.addf("%s: must_be_on input %d out of range", where, n)
		}
	}
	for _, n := range c.MustBeOff {
		if n < 1 || n > TotalInputs {
			p.addf("%s: must_be_off input %d out of range", where, n)
		}
	}

	active := 0
	for _, do := range c.DeviceOutputs {
		dev, ok := LookupDevice(do.DeviceID)
		if !ok {
			p.addf("%s: unknown device %q", where, do.DeviceID)
			continue
		}
		used := false
		for n, oc := range do.Outputs {
			if n < 1 || n > dev.OutputCount() {
				p.addf("%s: %s has no output %d", where, dev.ID, n)
				continue
			}
			if !oc.Enabled || oc.Mode == OutputOff {
				continue
			}
			used = true
			validateOutput(p, where, dev, n, oc)
		}
		if used {
			active++
		}
	}
	if active > 1 {
		p.addf("%s: addresses %d devices, a case record holds one", where, active)
	}
}

func validateTimer(p *problems, where string, t Timer) {
	switch t.Mode {
	case TimerFireAndForget, TimerTrackInput:
	default:
		p.addf("%s: unknown execution mode %q", where, t.Mode)
	}
	if t.Value > MaxTimerValue {
		p.addf("%s: value %d exceeds %d", where, t.Value, MaxTimerValue)
	}
}

func validateOutput(p *problems, where string, dev Device, n int, oc OutputConfig) {
	switch dev.Type {
	case DevicePowercell:
		switch oc.Mode {
		case OutputTrack, OutputSoftStart:
		case OutputPWM:
			if n > 8 {
				p.addf("%s: %s output %d does not support PWM", where, dev.ID, n)
			}
			if oc.PWMDuty > MaxPWMDuty {
				p.addf("%s: %s output %d duty %d exceeds %d", where, dev.ID, n, oc.PWMDuty, MaxPWMDuty)
			}
		default:
			p.addf("%s: %s output %d: mode %s not supported", where, dev.ID, n, oc.Mode)
		}
	case DeviceInmotion:
		switch oc.Mode {
		case OutputOn, OutputTrack:
		case OutputAllMotors:
			if n > inmotionRelayCount {
				p.addf("%s: %s %s: ALL_MOTORS is relay-only", where, dev.ID, dev.OutputName(n))
			}
		default:
			p.addf("%s: %s %s: mode %s not supported", where, dev.ID, dev.OutputName(n), oc.Mode)
		}
	}
}
