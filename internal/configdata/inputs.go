package configdata

const (
	TotalInputs = 44
	MaxOnCases  = 8
	MaxOffCases = 2
)

type InputType string

const (
	InputGround   InputType = "ground"
	InputHighSide InputType = "high_side"
	InputPulse    InputType = "pulse"
)

// InputDefinition describes one physical input of the controller.
type InputDefinition struct {
	Number      int       `json:"number"`
	Name        string    `json:"name"`
	DefaultName string    `json:"default_name"`
	Type        InputType `json:"input_type"`
	Connector   string    `json:"connector"`
	Pin         int       `json:"pin"`
}

var inputs = [TotalInputs]InputDefinition{
	{1, "Ignition", "Ignition", InputGround, "A", 1},
	{2, "Starter", "Starter", InputGround, "A", 2},
	{3, "Left Turn", "Left Turn", InputGround, "A", 3},
	{4, "Right Turn", "Right Turn", InputGround, "A", 4},
	{5, "Head Lights", "Head Lights", InputGround, "A", 5},
	{6, "Parking Lights", "Parking Lights", InputGround, "A", 6},
	{7, "High Beams", "High Beams", InputGround, "A", 7},
	{8, "4-Ways", "4-Ways", InputGround, "A", 8},
	{9, "Horn", "Horn", InputGround, "A", 9},
	{10, "Cooling Fan (GND)", "Cooling Fan", InputGround, "A", 10},
	{11, "1-Filament Brake", "Brake Light", InputGround, "A", 11},
	{12, "Multi-Filament Brake", "Brake Multi", InputGround, "A", 12},
	{13, "Fuel Pump (GND)", "Fuel Pump", InputGround, "A", 13},
	{14, "Alternating Headlight", "Alt Headlight", InputGround, "A", 14},
	{15, "One-Button Start", "Push Start", InputGround, "A", 15},
	{16, "Neutral Safety Input", "Neutral Safety", InputGround, "A", 16},
	{17, "AUX Input 01", "AUX 01", InputGround, "A", 17},
	{18, "AUX Input 02", "AUX 02", InputGround, "A", 18},
	{19, "AUX Input 03", "AUX 03", InputGround, "A", 19},
	{20, "AUX Input 04", "AUX 04", InputGround, "A", 20},
	{21, "AUX Input 05", "AUX 05", InputGround, "A", 21},
	{22, "AUX Input 06", "AUX 06", InputGround, "A", 22},
	{23, "Door Lock", "Door Lock", InputGround, "B", 1},
	{24, "Door Unlock", "Door Unlock", InputGround, "B", 2},
	{25, "Window DF Up", "Win DF Up", InputGround, "B", 3},
	{26, "Window PF Up", "Win PF Up", InputGround, "B", 4},
	{27, "Window DR Up", "Win DR Up", InputGround, "B", 5},
	{28, "Window PR Up", "Win PR Up", InputGround, "B", 6},
	{29, "Window DF Down", "Win DF Down", InputGround, "B", 7},
	{30, "Window PF Down", "Win PF Down", InputGround, "B", 8},
	{31, "Window DR Down", "Win DR Down", InputGround, "B", 9},
	{32, "Window PR Down", "Win PR Down", InputGround, "B", 10},
	{33, "AUX Input B09", "AUX B09", InputGround, "B", 11},
	{34, "AUX Input B10", "AUX B10", InputGround, "B", 12},
	{35, "AUX Input B11", "AUX B11", InputGround, "B", 13},
	{36, "AUX Input B12", "AUX B12", InputGround, "B", 14},
	{37, "AUX Input B13", "AUX B13", InputGround, "B", 15},
	{38, "AUX Input B14", "AUX B14", InputGround, "B", 16},
	{39, "Cooling Fan (HS)", "HS Cooling", InputHighSide, "A", 23},
	{40, "Fuel Pump (HS)", "HS Fuel", InputHighSide, "A", 24},
	{41, "AUX Input HS03", "AUX HS03", InputHighSide, "B", 17},
	{42, "AUX Input HS04", "AUX HS04", InputHighSide, "B", 18},
	{43, "Tach Input", "Tachometer", InputPulse, "B", 26},
	{44, "VSS Input", "Speed Sensor", InputPulse, "B", 27},
}

// Firmware case table. Inputs not listed have one ON case and no OFF case.
var onCaseCounts = map[int]int{
	1: 4, 2: 2, 3: 4, 4: 4, 5: 2, 6: 6, 7: 1, 8: 6, 9: 1,
	10: 2, 11: 2, 12: 2, 13: 2, 14: 2, 15: 6, 16: 2, 17: 2, 18: 6,
	19: 2, 20: 2, 21: 2, 22: 2,
	23: 6, 24: 6,
	25: 2, 26: 2, 27: 2, 28: 2, 29: 2, 30: 2, 31: 2, 32: 2,
	33: 1, 34: 1, 35: 1, 36: 1, 37: 1, 38: 1,
	39: 2, 40: 2, 41: 1, 42: 1, 43: 1, 44: 1,
}

var offCaseCounts = map[int]int{
	1: 2, 2: 2, 5: 1,
	25: 2, 26: 2, 27: 2, 28: 2, 29: 2, 30: 2, 31: 2, 32: 2,
}

// CaseCounts returns how many ON and OFF cases the firmware provides for an input.
func CaseCounts(inputNumber int) (on, off int) {
	on, ok := onCaseCounts[inputNumber]
	if !ok {
		on = 1
	}
	return on, offCaseCounts[inputNumber]
}

// Input returns the definition of input n (1-44).
func Input(n int) (InputDefinition, bool) {
	if n < 1 || n > TotalInputs {
		return InputDefinition{}, false
	}
	return inputs[n-1], true
}

// Inputs returns all input definitions in input-number order.
func Inputs() []InputDefinition {
	out := make([]InputDefinition, TotalInputs)
	copy(out, inputs[:])
	return out
}
