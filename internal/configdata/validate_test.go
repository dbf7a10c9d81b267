package configdata

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCase(t *testing.T) {
	valid := func() CaseConfig {
		c := NewCaseConfig()
		c.Enabled = true
		c.DeviceOutputs = []DeviceOutput{{
			DeviceID: "powercell_front",
			Outputs:  map[int]OutputConfig{1: {Enabled: true, Mode: OutputTrack}},
		}}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *CaseConfig)
		wantErr string
	}{
		{"valid", func(c *CaseConfig) {}, ""},
		{"unknown mode", func(c *CaseConfig) { c.Mode = "blink" }, "unknown mode"},
		{"unknown ignition", func(c *CaseConfig) { c.IgnitionMode = "always" }, "unknown ignition mode"},
		{"pattern range", func(c *CaseConfig) { c.PatternOnTime = 16 }, "pattern times"},
		{"timer range", func(c *CaseConfig) { c.TimerOn.Value = 64 }, "exceeds 63"},
		{"timer mode", func(c *CaseConfig) { c.TimerDelay.Mode = "" }, "unknown execution mode"},
		{"condition range", func(c *CaseConfig) { c.MustBeOn = []int{45} }, "must_be_on input 45"},
		{"unknown device", func(c *CaseConfig) { c.DeviceOutputs[0].DeviceID = "x" }, "unknown device"},
		{"output range", func(c *CaseConfig) {
			c.DeviceOutputs[0].Outputs[11] = OutputConfig{Enabled: true, Mode: OutputTrack}
		}, "no output 11"},
		{"pwm on output 9", func(c *CaseConfig) {
			c.DeviceOutputs[0].Outputs[9] = OutputConfig{Enabled: true, Mode: OutputPWM}
		}, "does not support PWM"},
		{"duty range", func(c *CaseConfig) {
			c.DeviceOutputs[0].Outputs[2] = OutputConfig{Enabled: true, Mode: OutputPWM, PWMDuty: 16}
		}, "duty 16"},
		{"powercell ON", func(c *CaseConfig) {
			c.DeviceOutputs[0].Outputs[2] = OutputConfig{Enabled: true, Mode: OutputOn}
		}, "not supported"},
		{"all motors on mosfet", func(c *CaseConfig) {
			c.DeviceOutputs = []DeviceOutput{{DeviceID: "inmotion_1", Outputs: map[int]OutputConfig{
				5: {Enabled: true, Mode: OutputAllMotors},
			}}}
		}, "relay-only"},
		{"two devices", func(c *CaseConfig) {
			c.DeviceOutputs = append(c.DeviceOutputs, DeviceOutput{DeviceID: "powercell_rear",
				Outputs: map[int]OutputConfig{1: {Enabled: true, Mode: OutputTrack}}})
		}, "addresses 2 devices"},
		{"second device all disabled", func(c *CaseConfig) {
			c.DeviceOutputs = append(c.DeviceOutputs, DeviceOutput{DeviceID: "powercell_rear",
				Outputs: map[int]OutputConfig{1: {Enabled: false, Mode: OutputTrack}}})
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := ValidateCase(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error does not wrap ErrInvalidConfig: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLayout(t *testing.T) {
	cfg := NewFullConfiguration()
	cfg.Inputs[0].OnCases = cfg.Inputs[0].OnCases[:3]
	cfg.Inputs[5].InputNumber = 7
	cfg.System.Bitrate = 9
	cfg.System.CustomerName = "ÄBC"

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("expected 4 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}
