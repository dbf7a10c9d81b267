package configdata

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleConfiguration() *FullConfiguration {
	cfg := NewFullConfiguration()
	cfg.System.SerialNumber = 0x17
	cfg.System.CustomerName = "ACME"
	cfg.Inputs[0].CustomName = "Key"

	c := &cfg.Inputs[2].OnCases[0]
	c.Enabled = true
	c.Mode = CaseToggle
	c.PatternOnTime, c.PatternOffTime = 1, 1
	c.IgnitionMode = IgnitionSet
	c.RequireSecurityOff = true
	c.TimerOn = Timer{Mode: TimerTrackInput, Value: 12}
	c.TimerDelay = Timer{Mode: TimerFireAndForget, Value: 6, Scale10s: true}
	c.MustBeOn = []int{1}
	c.MustBeOff = []int{4, 44}
	c.DeviceOutputs = []DeviceOutput{{
		DeviceID: "powercell_front",
		Outputs: map[int]OutputConfig{
			3:  {Enabled: true, Mode: OutputTrack},
			10: {Enabled: true, Mode: OutputSoftStart},
			4:  {Enabled: true, Mode: OutputPWM, PWMDuty: 11},
		},
	}}

	// disabled but populated
	d := &cfg.Inputs[0].OffCases[1]
	d.Enabled = false
	d.DeviceOutputs = []DeviceOutput{{
		DeviceID: "inmotion_2",
		Outputs:  map[int]OutputConfig{1: {Enabled: true, Mode: OutputAllMotors}},
	}}
	return cfg
}

func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  *FullConfiguration
	}{
		{"defaults", NewFullConfiguration()},
		{"populated", sampleConfiguration()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.cfg.ToJSON()
			if err != nil {
				t.Fatalf("ToJSON failed: %v", err)
			}
			got, err := FromJSON(data)
			if err != nil {
				t.Fatalf("FromJSON failed: %v", err)
			}
			if !got.Equal(tt.cfg) {
				t.Errorf("round trip changed the configuration")
			}
		})
	}
}

func TestJSONShape(t *testing.T) {
	data, err := json.Marshal(sampleConfiguration())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	inputs := doc["inputs"].([]any)
	if len(inputs) != TotalInputs {
		t.Fatalf("expected %d inputs, got %d", TotalInputs, len(inputs))
	}

	third := inputs[2].(map[string]any)
	c := third["on_cases"].([]any)[0].(map[string]any)
	dev := c["device_outputs"].([]any)[0].([]any)
	if dev[0] != "powercell_front" {
		t.Errorf("device id = %v", dev[0])
	}
	out3 := dev[1].(map[string]any)["3"].(map[string]any)
	if out3["mode"] != float64(OutputTrack) || out3["enabled"] != true {
		t.Errorf("output 3 = %v", out3)
	}

	empty := inputs[43].(map[string]any)["on_cases"].([]any)[0].(map[string]any)
	if _, ok := empty["device_outputs"].([]any); !ok {
		t.Errorf("empty device_outputs should serialise as [], got %v", empty["device_outputs"])
	}
}

func TestLegacyFields(t *testing.T) {
	doc := `{"inputs":[{"input_number":3,"on_cases":[{
		"enabled": true,
		"set_ignition": true,
		"timer_execution_mode": "track_input",
		"timer_on_value": 8,
		"timer_delay_value": 2,
		"timer_delay_scale_10s": true,
		"device_outputs": [["powercell_rear", {"1": {"enabled": true, "mode": 1, "pwm_duty": 0}}]]
	}]}]}`

	cfg, err := FromJSON([]byte(doc))
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	c := cfg.Inputs[2].OnCases[0]
	if c.IgnitionMode != IgnitionSet {
		t.Errorf("ignition mode = %q", c.IgnitionMode)
	}
	if c.TimerOn != (Timer{Mode: TimerTrackInput, Value: 8}) {
		t.Errorf("timer on = %+v", c.TimerOn)
	}
	if c.TimerDelay != (Timer{Mode: TimerTrackInput, Value: 2, Scale10s: true}) {
		t.Errorf("timer delay = %+v", c.TimerDelay)
	}
	if c.Mode != CaseTrack {
		t.Errorf("missing mode should default to track, got %q", c.Mode)
	}
	if cfg.System != DefaultSystemConfig() {
		t.Errorf("missing system should keep defaults")
	}
	if len(cfg.Inputs[2].OnCases) != 4 {
		t.Errorf("case slots changed: %d", len(cfg.Inputs[2].OnCases))
	}
}

func TestDeviceOutputUnmarshalErrors(t *testing.T) {
	tests := []string{
		`["powercell_front"]`,
		`{"powercell_front": {}}`,
		`["powercell_front", {"x": {}}]`,
		`[1, {}]`,
	}
	for _, raw := range tests {
		var d DeviceOutput
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestFileRoundTripWithSchema(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.json")
	want := sampleConfiguration()
	if err := SaveFile(path, want); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	got, err := LoadFile(path, v)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !got.Equal(want) {
		t.Error("file round trip changed the configuration")
	}
}

func TestSchemaRejects(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	tests := map[string]string{
		"no inputs":        `{"system": {}}`,
		"bad mode":         `{"inputs":[{"on_cases":[{"mode":"blink"}]}]}`,
		"timer too large":  `{"inputs":[{"on_cases":[{"timer_on":{"value":64}}]}]}`,
		"duty too large":   `{"inputs":[{"on_cases":[{"device_outputs":[["powercell_front",{"1":{"pwm_duty":16}}]]}]}]}`,
		"bad tuple":        `{"inputs":[{"on_cases":[{"device_outputs":[["powercell_front"]]}]}]}`,
		"long customer":    `{"system":{"customer_name":"TOOLONG"},"inputs":[]}`,
		"input out of set": `{"inputs":[{"input_number":45}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if err := v.ValidateDocument([]byte(doc)); err == nil {
				t.Error("expected schema violation")
			}
		})
	}

	if err := v.ValidateDocument([]byte("{")); err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("expected invalid JSON error, got %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
