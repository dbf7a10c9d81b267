package presets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

func TestBuiltinPresetsBuild(t *testing.T) {
	c, err := LoadCatalog(nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	list := c.List()
	if len(list) != 2 || list[0].ID != "front_engine" || list[1].ID != "rear_engine" {
		t.Fatalf("List = %+v", list)
	}

	tests := []struct {
		id     string
		device string
		output int
	}{
		{"front_engine", "powercell_front", 3},
		{"rear_engine", "powercell_rear", 4},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := c.Get(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := p.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}

			in1 := cfg.Input(1)
			if in1.CustomName != "Ignition" {
				t.Errorf("input 1 name = %q", in1.CustomName)
			}
			c1 := in1.OnCases[0]
			if !c1.Enabled || c1.IgnitionMode != configdata.IgnitionSet {
				t.Errorf("input 1 case = %+v", c1)
			}
			if len(c1.DeviceOutputs) != 1 || c1.DeviceOutputs[0].DeviceID != tt.device {
				t.Fatalf("input 1 outputs = %+v", c1.DeviceOutputs)
			}
			oc, ok := c1.DeviceOutputs[0].Outputs[tt.output]
			if !ok || !oc.Enabled || oc.Mode != configdata.OutputTrack {
				t.Errorf("output %d = %+v", tt.output, oc)
			}
			if cfg.System.SerialNumber != 0x42 || cfg.System.Write.PGN() != 0xFF10 {
				t.Errorf("system = %+v", cfg.System)
			}
		})
	}
}

func TestOneButtonStart(t *testing.T) {
	c, err := LoadCatalog(nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := c.Get("front_engine")
	cfg, err := p.Build()
	if err != nil {
		t.Fatal(err)
	}

	in := cfg.Input(15)
	if !in.OnCases[0].Enabled || !in.OnCases[1].Enabled || in.OnCases[2].Enabled {
		t.Fatalf("enabled cases = %v %v %v", in.OnCases[0].Enabled, in.OnCases[1].Enabled, in.OnCases[2].Enabled)
	}
	second := in.OnCases[1]
	if second.TimerDelay.Value != 30 || second.TimerDelay.Mode != configdata.TimerFireAndForget {
		t.Errorf("timer delay = %+v", second.TimerDelay)
	}
	if len(second.MustBeOn) != 1 || second.MustBeOn[0] != 16 {
		t.Errorf("must_be_on = %v", second.MustBeOn)
	}
}

func TestBuildReturnsCopies(t *testing.T) {
	c, _ := LoadCatalog(nil, zaptest.NewLogger(t))
	p, _ := c.Get("front_engine")

	a, _ := p.Build()
	a.Input(1).CustomName = "changed"
	b, _ := p.Build()
	if b.Input(1).CustomName != "Ignition" {
		t.Error("Build shares state between calls")
	}
}

func TestGetUnknown(t *testing.T) {
	c, _ := LoadCatalog(nil, zaptest.NewLogger(t))
	if _, err := c.Get("mid_engine"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSearchPathOverride(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: Custom
inputs:
  - input: 40
    name: Winch
    on:
      - {device: inmotion_1, outputs: [1, 2], output_mode: all-motors}
`
	os.WriteFile(filepath.Join(dir, "winch.yaml"), []byte(doc), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	c, err := LoadCatalog([]string{dir, filepath.Join(dir, "missing")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	p, err := c.Get("winch")
	if err != nil {
		t.Fatal(err)
	}
	if p.Source != dir || p.Name != "Custom" {
		t.Errorf("info = %+v", p.Info)
	}

	cfg, _ := p.Build()
	outs := cfg.Input(40).OnCases[0].DeviceOutputs[0].Outputs
	if outs[2].Mode != configdata.OutputAllMotors {
		t.Errorf("mode = %v", outs[2].Mode)
	}
	if cfg.System != configdata.DefaultSystemConfig() {
		t.Error("system changed without a system section")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "inputs: [\n"},
		{"input range", "inputs:\n  - input: 45\n"},
		{"duplicate", "inputs:\n  - input: 3\n  - input: 3\n"},
		{"unknown device", "inputs:\n  - input: 3\n    on:\n      - {device: powercell_side, outputs: [1]}\n"},
		{"outputs without device", "inputs:\n  - input: 3\n    on:\n      - {outputs: [1]}\n"},
		{"output mode", "inputs:\n  - input: 3\n    on:\n      - {device: powercell_front, outputs: [1], output_mode: strobe}\n"},
		{"too many off cases", "inputs:\n  - input: 3\n    off:\n      - {device: powercell_front, outputs: [1]}\n"},
		{"invalid output", "inputs:\n  - input: 3\n    on:\n      - {device: powercell_front, outputs: [11]}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("x", []byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
