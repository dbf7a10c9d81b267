package configdata

import (
	"testing"
	"time"
)

func TestCaseCounts(t *testing.T) {
	tests := []struct {
		input   int
		on, off int
	}{
		{1, 4, 2},
		{2, 2, 2},
		{5, 2, 1},
		{6, 6, 0},
		{9, 1, 0},
		{25, 2, 2},
		{33, 1, 0},
		{44, 1, 0},
		{45, 1, 0},
	}

	for _, tt := range tests {
		on, off := CaseCounts(tt.input)
		if on != tt.on || off != tt.off {
			t.Errorf("CaseCounts(%d) = (%d, %d), want (%d, %d)", tt.input, on, off, tt.on, tt.off)
		}
		if on > MaxOnCases || off > MaxOffCases {
			t.Errorf("CaseCounts(%d) exceeds slot maximum", tt.input)
		}
	}
}

func TestNewFullConfiguration(t *testing.T) {
	cfg := NewFullConfiguration()

	for i, in := range cfg.Inputs {
		if in.InputNumber != i+1 {
			t.Fatalf("slot %d holds input %d", i, in.InputNumber)
		}
		on, off := CaseCounts(i + 1)
		if len(in.OnCases) != on || len(in.OffCases) != off {
			t.Errorf("input %d: %d/%d cases, want %d/%d", i+1, len(in.OnCases), len(in.OffCases), on, off)
		}
		for _, c := range in.OnCases {
			if !c.IsDefault() || c.Mode != CaseTrack || c.IgnitionMode != IgnitionNormal {
				t.Errorf("input %d: case not at defaults: %+v", i+1, c)
			}
		}
	}

	if cfg.System != DefaultSystemConfig() {
		t.Errorf("system = %+v", cfg.System)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration invalid: %v", err)
	}
}

func TestTimerDurations(t *testing.T) {
	tests := []struct {
		timer Timer
		want  time.Duration
	}{
		{Timer{Value: 12}, 3 * time.Second},
		{Timer{Value: 6, Scale10s: true}, 60 * time.Second},
		{Timer{Value: 63}, 15750 * time.Millisecond},
		{Timer{Value: 0, Scale10s: true}, 0},
	}

	for _, tt := range tests {
		if got := tt.timer.Duration(); got != tt.want {
			t.Errorf("%+v.Duration() = %v, want %v", tt.timer, got, tt.want)
		}
	}

	if s := (Timer{Value: 12}).Seconds(); s != 3.0 {
		t.Errorf("Seconds = %v", s)
	}
}

func TestZeroTimerAsymmetry(t *testing.T) {
	c := NewCaseConfig()

	d, indefinite := c.OnDuration()
	if !indefinite || d != 0 {
		t.Errorf("zero on-timer: got (%v, %v), want indefinite", d, indefinite)
	}
	if c.ActivationDelay() != 0 {
		t.Errorf("zero delay timer should mean no delay, got %v", c.ActivationDelay())
	}

	c.TimerOn = Timer{Mode: TimerFireAndForget, Value: 12}
	d, indefinite = c.OnDuration()
	if indefinite || d != 3*time.Second {
		t.Errorf("on-timer 12: got (%v, %v)", d, indefinite)
	}
}

func TestNormalize(t *testing.T) {
	c := CaseConfig{
		MustBeOn:  []int{5, 1, 5, 3},
		MustBeOff: []int{},
		DeviceOutputs: []DeviceOutput{
			{DeviceID: "powercell_front", Outputs: map[int]OutputConfig{
				1: {Enabled: true, Mode: OutputTrack, PWMDuty: 9},
				2: {Enabled: false, Mode: OutputTrack},
				3: {Enabled: true, Mode: OutputOff},
			}},
			{DeviceID: "powercell_rear", Outputs: map[int]OutputConfig{
				1: {Enabled: false, Mode: OutputPWM},
			}},
		},
	}
	c.Normalize()

	if c.Mode != CaseTrack || c.IgnitionMode != IgnitionNormal || c.TimerOn.Mode != TimerFireAndForget {
		t.Errorf("defaults not applied: %+v", c)
	}
	if !equalInts(c.MustBeOn, []int{1, 3, 5}) || c.MustBeOff != nil {
		t.Errorf("conditions = %v / %v", c.MustBeOn, c.MustBeOff)
	}
	if len(c.DeviceOutputs) != 1 || len(c.DeviceOutputs[0].Outputs) != 1 {
		t.Fatalf("device outputs = %+v", c.DeviceOutputs)
	}
	if oc := c.DeviceOutputs[0].Outputs[1]; oc.PWMDuty != 0 {
		t.Errorf("duty kept outside PWM: %+v", oc)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := NewFullConfiguration()
	cfg.Inputs[0].OnCases[0].MustBeOn = []int{2}
	cfg.Inputs[0].OnCases[0].DeviceOutputs = []DeviceOutput{
		{DeviceID: "powercell_front", Outputs: map[int]OutputConfig{1: {Enabled: true, Mode: OutputTrack}}},
	}

	cp := cfg.Clone()
	if !cp.Equal(cfg) {
		t.Fatal("clone differs")
	}

	cp.Inputs[0].OnCases[0].MustBeOn[0] = 9
	cp.Inputs[0].OnCases[0].DeviceOutputs[0].Outputs[2] = OutputConfig{Enabled: true, Mode: OutputTrack}
	if cfg.Inputs[0].OnCases[0].MustBeOn[0] != 2 || len(cfg.Inputs[0].OnCases[0].DeviceOutputs[0].Outputs) != 1 {
		t.Error("clone shares memory with original")
	}
}

func TestCustomerNameBytes(t *testing.T) {
	s := SystemConfig{CustomerName: "AB"}
	b := s.CustomerNameBytes()
	if b != [4]byte{'A', 'B', 0, 0} {
		t.Errorf("bytes = %v", b)
	}
	if got := CustomerNameFromBytes(b[:]); got != "AB" {
		t.Errorf("round trip = %q", got)
	}
}

func TestPatternPresetFor(t *testing.T) {
	if PatternPresetFor(0, 0) != "none" || PatternPresetFor(1, 1) != "turn_signal" ||
		PatternPresetFor(2, 2) != "slow_flash" || PatternPresetFor(3, 1) != "custom" {
		t.Error("unexpected preset lookup")
	}
}

func TestDeviceRegistry(t *testing.T) {
	d, ok := LookupDevice("powercell_front")
	if !ok || d.PGN() != 0xFF01 || d.OutputCount() != 10 {
		t.Fatalf("powercell_front = %+v", d)
	}

	d, ok = DeviceByPGN(0xFF, 0x05)
	if !ok || d.ID != "inmotion_3" || d.OutputName(1) != "Relay 1A" {
		t.Errorf("DeviceByPGN(FF05) = %+v", d)
	}

	list := Devices()
	if len(list) != 8 {
		t.Fatalf("expected 8 devices, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].PGN() >= list[i].PGN() {
			t.Errorf("devices not ordered by PGN at %d", i)
		}
	}
}
