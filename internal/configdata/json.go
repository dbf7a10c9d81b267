package configdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// MarshalJSON writes a device entry as ["device_id", {"3": {...}}].
func (d DeviceOutput) MarshalJSON() ([]byte, error) {
	outs := make(map[string]OutputConfig, len(d.Outputs))
	for n, oc := range d.Outputs {
		outs[strconv.Itoa(n)] = oc
	}
	return json.Marshal([]any{d.DeviceID, outs})
}

func (d *DeviceOutput) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("device_outputs entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("device_outputs entry: expected [device_id, outputs], got %d elements", len(pair))
	}

	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return fmt.Errorf("device_outputs entry: device id: %w", err)
	}

	var raw map[string]OutputConfig
	if err := json.Unmarshal(pair[1], &raw); err != nil {
		return fmt.Errorf("device_outputs %s: %w", id, err)
	}

	outs := make(map[int]OutputConfig, len(raw))
	for k, oc := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("device_outputs %s: output number %q: %w", id, k, err)
		}
		outs[n] = oc
	}

	d.DeviceID = id
	d.Outputs = outs
	return nil
}

type systemJSON struct {
	Bitrate           uint8  `json:"bitrate"`
	RebroadcastMode   uint8  `json:"rebroadcast_mode"`
	HeartbeatPGNHigh  uint8  `json:"heartbeat_pgn_high"`
	HeartbeatPGNLow   uint8  `json:"heartbeat_pgn_low"`
	HeartbeatSA       uint8  `json:"heartbeat_sa"`
	WritePGNHigh      uint8  `json:"write_pgn_high"`
	WritePGNLow       uint8  `json:"write_pgn_low"`
	WriteSA           uint8  `json:"write_sa"`
	ReadPGNHigh       uint8  `json:"read_pgn_high"`
	ReadPGNLow        uint8  `json:"read_pgn_low"`
	ReadSA            uint8  `json:"read_sa"`
	ResponsePGNHigh   uint8  `json:"response_pgn_high"`
	ResponsePGNLow    uint8  `json:"response_pgn_low"`
	ResponseSA        uint8  `json:"response_sa"`
	DiagnosticPGNHigh uint8  `json:"diagnostic_pgn_high"`
	DiagnosticPGNLow  uint8  `json:"diagnostic_pgn_low"`
	DiagnosticSA      uint8  `json:"diagnostic_sa"`
	SerialNumber      uint8  `json:"serial_number"`
	CustomerName      string `json:"customer_name"`
}

type caseJSON struct {
	Enabled            bool           `json:"enabled"`
	Mode               CaseMode       `json:"mode"`
	PatternPreset      string         `json:"pattern_preset,omitempty"`
	PatternOnTime      uint8          `json:"pattern_on_time"`
	PatternOffTime     uint8          `json:"pattern_off_time"`
	IgnitionMode       IgnitionMode   `json:"ignition_mode"`
	CanBeOverridden    bool           `json:"can_be_overridden"`
	RequireIgnitionOn  bool           `json:"require_ignition_on"`
	RequireSecurityOff bool           `json:"require_security_off"`
	TimerDelay         *Timer         `json:"timer_delay,omitempty"`
	TimerOn            *Timer         `json:"timer_on,omitempty"`
	MustBeOn           []int          `json:"must_be_on"`
	MustBeOff          []int          `json:"must_be_off"`
	DeviceOutputs      []DeviceOutput `json:"device_outputs"`

	// Flat fields of older configuration files, read only.
	SetIgnition        *bool      `json:"set_ignition,omitempty"`
	TimerExecutionMode *TimerMode `json:"timer_execution_mode,omitempty"`
	TimerOnValue       *uint8     `json:"timer_on_value,omitempty"`
	TimerOnScale10s    *bool      `json:"timer_on_scale_10s,omitempty"`
	TimerDelayValue    *uint8     `json:"timer_delay_value,omitempty"`
	TimerDelayScale10s *bool      `json:"timer_delay_scale_10s,omitempty"`
}

type inputJSON struct {
	InputNumber int        `json:"input_number"`
	CustomName  string     `json:"custom_name"`
	OnCases     []caseJSON `json:"on_cases"`
	OffCases    []caseJSON `json:"off_cases"`
}

type configJSON struct {
	System *systemJSON `json:"system,omitempty"`
	Inputs []inputJSON `json:"inputs"`
}

func systemToJSON(s SystemConfig) *systemJSON {
	return &systemJSON{
		Bitrate:           uint8(s.Bitrate),
		RebroadcastMode:   uint8(s.Rebroadcast),
		HeartbeatPGNHigh:  s.Heartbeat.PGNHigh,
		HeartbeatPGNLow:   s.Heartbeat.PGNLow,
		HeartbeatSA:       s.Heartbeat.SA,
		WritePGNHigh:      s.Write.PGNHigh,
		WritePGNLow:       s.Write.PGNLow,
		WriteSA:           s.Write.SA,
		ReadPGNHigh:       s.Read.PGNHigh,
		ReadPGNLow:        s.Read.PGNLow,
		ReadSA:            s.Read.SA,
		ResponsePGNHigh:   s.Response.PGNHigh,
		ResponsePGNLow:    s.Response.PGNLow,
		ResponseSA:        s.Response.SA,
		DiagnosticPGNHigh: s.Diagnostic.PGNHigh,
		DiagnosticPGNLow:  s.Diagnostic.PGNLow,
		DiagnosticSA:      s.Diagnostic.SA,
		SerialNumber:      s.SerialNumber,
		CustomerName:      s.CustomerName,
	}
}

func (j *systemJSON) toSystem() SystemConfig {
	return SystemConfig{
		Bitrate:      BitrateCode(j.Bitrate),
		Rebroadcast:  RebroadcastMode(j.RebroadcastMode),
		Heartbeat:    PGNAddress{j.HeartbeatPGNHigh, j.HeartbeatPGNLow, j.HeartbeatSA},
		Write:        PGNAddress{j.WritePGNHigh, j.WritePGNLow, j.WriteSA},
		Read:         PGNAddress{j.ReadPGNHigh, j.ReadPGNLow, j.ReadSA},
		Response:     PGNAddress{j.ResponsePGNHigh, j.ResponsePGNLow, j.ResponseSA},
		Diagnostic:   PGNAddress{j.DiagnosticPGNHigh, j.DiagnosticPGNLow, j.DiagnosticSA},
		SerialNumber: j.SerialNumber,
		CustomerName: j.CustomerName,
	}
}

func caseToJSON(c CaseConfig) caseJSON {
	delay, on := c.TimerDelay, c.TimerOn
	j := caseJSON{
		Enabled:            c.Enabled,
		Mode:               c.Mode,
		PatternPreset:      PatternPresetFor(c.PatternOnTime, c.PatternOffTime),
		PatternOnTime:      c.PatternOnTime,
		PatternOffTime:     c.PatternOffTime,
		IgnitionMode:       c.IgnitionMode,
		CanBeOverridden:    c.CanBeOverridden,
		RequireIgnitionOn:  c.RequireIgnitionOn,
		RequireSecurityOff: c.RequireSecurityOff,
		TimerDelay:         &delay,
		TimerOn:            &on,
		MustBeOn:           c.MustBeOn,
		MustBeOff:          c.MustBeOff,
		DeviceOutputs:      c.DeviceOutputs,
	}
	if j.MustBeOn == nil {
		j.MustBeOn = []int{}
	}
	if j.MustBeOff == nil {
		j.MustBeOff = []int{}
	}
	if j.DeviceOutputs == nil {
		j.DeviceOutputs = []DeviceOutput{}
	}
	return j
}

// toCase starts from the defaults and applies whatever the document carries.
func (j caseJSON) toCase() CaseConfig {
	c := NewCaseConfig()
	c.Enabled = j.Enabled
	if j.Mode != "" {
		c.Mode = j.Mode
	}
	c.PatternOnTime = j.PatternOnTime
	c.PatternOffTime = j.PatternOffTime
	c.CanBeOverridden = j.CanBeOverridden
	c.RequireIgnitionOn = j.RequireIgnitionOn
	c.RequireSecurityOff = j.RequireSecurityOff

	switch {
	case j.IgnitionMode != "":
		c.IgnitionMode = j.IgnitionMode
	case j.SetIgnition != nil && *j.SetIgnition:
		c.IgnitionMode = IgnitionSet
	}

	if j.TimerExecutionMode != nil {
		c.TimerDelay.Mode = *j.TimerExecutionMode
		c.TimerOn.Mode = *j.TimerExecutionMode
	}
	if j.TimerOnValue != nil {
		c.TimerOn.Value = *j.TimerOnValue
	}
	if j.TimerOnScale10s != nil {
		c.TimerOn.Scale10s = *j.TimerOnScale10s
	}
	if j.TimerDelayValue != nil {
		c.TimerDelay.Value = *j.TimerDelayValue
	}
	if j.TimerDelayScale10s != nil {
		c.TimerDelay.Scale10s = *j.TimerDelayScale10s
	}
	if j.TimerDelay != nil {
		c.TimerDelay = *j.TimerDelay
		if c.TimerDelay.Mode == "" {
			c.TimerDelay.Mode = TimerFireAndForget
		}
	}
	if j.TimerOn != nil {
		c.TimerOn = *j.TimerOn
		if c.TimerOn.Mode == "" {
			c.TimerOn.Mode = TimerFireAndForget
		}
	}

	if len(j.MustBeOn) > 0 {
		c.MustBeOn = append([]int(nil), j.MustBeOn...)
	}
	if len(j.MustBeOff) > 0 {
		c.MustBeOff = append([]int(nil), j.MustBeOff...)
	}
	if len(j.DeviceOutputs) > 0 {
		c.DeviceOutputs = j.DeviceOutputs
	}
	return c
}

func (f *FullConfiguration) MarshalJSON() ([]byte, error) {
	doc := configJSON{
		System: systemToJSON(f.System),
		Inputs: make([]inputJSON, TotalInputs),
	}
	for i, in := range f.Inputs {
		ij := inputJSON{
			InputNumber: in.InputNumber,
			CustomName:  in.CustomName,
			OnCases:     make([]caseJSON, len(in.OnCases)),
			OffCases:    make([]caseJSON, len(in.OffCases)),
		}
		for k, c := range in.OnCases {
			ij.OnCases[k] = caseToJSON(c)
		}
		for k, c := range in.OffCases {
			ij.OffCases[k] = caseToJSON(c)
		}
		doc.Inputs[i] = ij
	}
	return json.Marshal(doc)
}

// UnmarshalJSON loads a configuration document onto a fresh default
// configuration. Inputs are matched by input_number (or position when it is
// missing); cases beyond the firmware slot count are ignored.
func (f *FullConfiguration) UnmarshalJSON(data []byte) error {
	var doc configJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	cfg := NewFullConfiguration()
	if doc.System != nil {
		cfg.System = doc.System.toSystem()
	}

	for pos, ij := range doc.Inputs {
		n := ij.InputNumber
		if n == 0 {
			n = pos + 1
		}
		in := cfg.Input(n)
		if in == nil {
			return fmt.Errorf("input_number %d out of range 1-%d", n, TotalInputs)
		}
		in.CustomName = ij.CustomName
		for k, cj := range ij.OnCases {
			if k < len(in.OnCases) {
				in.OnCases[k] = cj.toCase()
			}
		}
		for k, cj := range ij.OffCases {
			if k < len(in.OffCases) {
				in.OffCases[k] = cj.toCase()
			}
		}
	}

	*f = *cfg
	return nil
}

// ToJSON serialises with indentation for configuration files.
func (f *FullConfiguration) ToJSON() ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromJSON parses a configuration document.
func FromJSON(data []byte) (*FullConfiguration, error) {
	cfg := &FullConfiguration{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a configuration file, validating it against the schema.
func LoadFile(path string, v *Validator) (*FullConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if v != nil {
		if err := v.ValidateDocument(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return FromJSON(data)
}

// SaveFile writes the configuration as indented JSON.
func SaveFile(path string, cfg *FullConfiguration) error {
	data, err := cfg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
