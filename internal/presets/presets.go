// Package presets provides starting configurations described in YAML. The
// built-in catalogue is embedded; extra directories can add or replace
// presets by file name.
package presets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

//go:embed data/*.yaml
var builtin embed.FS

var ErrNotFound = errors.New("presets: not found")

type pgnSpec struct {
	PGNHigh uint8 `yaml:"pgn_high"`
	PGNLow  uint8 `yaml:"pgn_low"`
	SA      uint8 `yaml:"sa"`
}

type systemSpec struct {
	Bitrate      *uint8   `yaml:"bitrate"`
	Rebroadcast  *uint8   `yaml:"rebroadcast"`
	Heartbeat    *pgnSpec `yaml:"heartbeat"`
	Write        *pgnSpec `yaml:"write"`
	Read         *pgnSpec `yaml:"read"`
	Response     *pgnSpec `yaml:"response"`
	Diagnostic   *pgnSpec `yaml:"diagnostic"`
	SerialNumber *uint8   `yaml:"serial_number"`
	CustomerName *string  `yaml:"customer_name"`
}

// caseSpec is the short form of a case: one device, a list of outputs that
// all share one output mode.
type caseSpec struct {
	Device     string `yaml:"device"`
	Outputs    []int  `yaml:"outputs"`
	OutputMode string `yaml:"output_mode"`
	PWMDuty    uint8  `yaml:"pwm_duty"`

	Mode       string `yaml:"mode"`
	Disabled   bool   `yaml:"disabled"`
	PatternOn  uint8  `yaml:"pattern_on"`
	PatternOff uint8  `yaml:"pattern_off"`
	Ignition   string `yaml:"ignition"`

	CanBeOverridden    bool `yaml:"can_be_overridden"`
	RequireIgnitionOn  bool `yaml:"require_ignition_on"`
	RequireSecurityOff bool `yaml:"require_security_off"`

	TimerDelay uint8 `yaml:"timer_delay"`
	TimerOn    uint8 `yaml:"timer_on"`

	MustBeOn  []int `yaml:"must_be_on"`
	MustBeOff []int `yaml:"must_be_off"`
}

type inputSpec struct {
	Input int        `yaml:"input"`
	Name  string     `yaml:"name"`
	On    []caseSpec `yaml:"on"`
	Off   []caseSpec `yaml:"off"`
}

type presetFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	System      *systemSpec `yaml:"system"`
	Inputs      []inputSpec `yaml:"inputs"`
}

// Info describes a preset for listings.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type Preset struct {
	Info
	spec presetFile
}

type Catalog struct {
	presets map[string]*Preset
	logger  *zap.Logger
}

// LoadCatalog reads the embedded presets, then every *.yaml in searchPaths.
// Missing directories are skipped.
func LoadCatalog(searchPaths []string, logger *zap.Logger) (*Catalog, error) {
	c := &Catalog{presets: make(map[string]*Preset), logger: logger}

	if err := c.loadFS(builtin, "data", "builtin"); err != nil {
		return nil, err
	}

	for _, dir := range searchPaths {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Preset directory not found", zap.String("path", dir))
			continue
		}
		if err := c.loadFS(os.DirFS(dir), ".", dir); err != nil {
			return nil, err
		}
	}

	logger.Info("Presets loaded", zap.Int("count", len(c.presets)))
	return c, nil
}

func (c *Catalog) loadFS(fsys fs.FS, dir, source string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("presets: read %s: %w", source, err)
	}

	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, pathJoin(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("presets: read %s: %w", e.Name(), err)
		}

		id := strings.TrimSuffix(e.Name(), ext)
		p, err := Parse(id, data)
		if err != nil {
			return fmt.Errorf("presets: %s/%s: %w", source, e.Name(), err)
		}
		p.Source = source

		if _, exists := c.presets[id]; exists {
			c.logger.Info("Preset overridden", zap.String("id", id), zap.String("source", source))
		}
		c.presets[id] = p
	}
	return nil
}

func pathJoin(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// Parse decodes a preset document and checks it builds a valid configuration.
func Parse(id string, data []byte) (*Preset, error) {
	var spec presetFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	p := &Preset{
		Info: Info{ID: id, Name: spec.Name, Description: spec.Description},
		spec: spec,
	}
	if p.Name == "" {
		p.Name = id
	}
	if _, err := p.Build(); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Catalog) List() []Info {
	out := make([]Info, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Get(id string) (*Preset, error) {
	p, ok := c.presets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// Build returns a fresh configuration each call; callers may mutate it.
func (p *Preset) Build() (*configdata.FullConfiguration, error) {
	cfg := configdata.NewFullConfiguration()

	if s := p.spec.System; s != nil {
		applySystem(&cfg.System, s)
	}

	seen := make(map[int]bool)
	for _, in := range p.spec.Inputs {
		if in.Input < 1 || in.Input > configdata.TotalInputs {
			return nil, fmt.Errorf("input %d out of range", in.Input)
		}
		if seen[in.Input] {
			return nil, fmt.Errorf("input %d listed twice", in.Input)
		}
		seen[in.Input] = true

		dst := &cfg.Inputs[in.Input-1]
		dst.CustomName = in.Name

		if len(in.On) > len(dst.OnCases) {
			return nil, fmt.Errorf("input %d: %d ON cases, only %d available", in.Input, len(in.On), len(dst.OnCases))
		}
		if len(in.Off) > len(dst.OffCases) {
			return nil, fmt.Errorf("input %d: %d OFF cases, only %d available", in.Input, len(in.Off), len(dst.OffCases))
		}
		for i, cs := range in.On {
			c, err := cs.toCase()
			if err != nil {
				return nil, fmt.Errorf("input %d ON case %d: %w", in.Input, i+1, err)
			}
			dst.OnCases[i] = c
		}
		for i, cs := range in.Off {
			c, err := cs.toCase()
			if err != nil {
				return nil, fmt.Errorf("input %d OFF case %d: %w", in.Input, i+1, err)
			}
			dst.OffCases[i] = c
		}
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applySystem(dst *configdata.SystemConfig, s *systemSpec) {
	if s.Bitrate != nil {
		dst.Bitrate = configdata.BitrateCode(*s.Bitrate)
	}
	if s.Rebroadcast != nil {
		dst.Rebroadcast = configdata.RebroadcastMode(*s.Rebroadcast)
	}
	setPGN := func(dst *configdata.PGNAddress, p *pgnSpec) {
		if p != nil {
			*dst = configdata.PGNAddress{PGNHigh: p.PGNHigh, PGNLow: p.PGNLow, SA: p.SA}
		}
	}
	setPGN(&dst.Heartbeat, s.Heartbeat)
	setPGN(&dst.Write, s.Write)
	setPGN(&dst.Read, s.Read)
	setPGN(&dst.Response, s.Response)
	setPGN(&dst.Diagnostic, s.Diagnostic)
	if s.SerialNumber != nil {
		dst.SerialNumber = *s.SerialNumber
	}
	if s.CustomerName != nil {
		dst.CustomerName = *s.CustomerName
	}
}

func (cs caseSpec) toCase() (configdata.CaseConfig, error) {
	c := configdata.NewCaseConfig()
	c.Enabled = !cs.Disabled
	if cs.Mode != "" {
		c.Mode = configdata.CaseMode(cs.Mode)
	}
	if cs.Ignition != "" {
		c.IgnitionMode = configdata.IgnitionMode(cs.Ignition)
	}
	c.PatternOnTime = cs.PatternOn
	c.PatternOffTime = cs.PatternOff
	c.CanBeOverridden = cs.CanBeOverridden
	c.RequireIgnitionOn = cs.RequireIgnitionOn
	c.RequireSecurityOff = cs.RequireSecurityOff
	c.TimerDelay.Value = cs.TimerDelay
	c.TimerOn.Value = cs.TimerOn
	c.MustBeOn = cs.MustBeOn
	c.MustBeOff = cs.MustBeOff

	if cs.Device == "" {
		if len(cs.Outputs) > 0 {
			return c, fmt.Errorf("outputs without device")
		}
		return c, nil
	}
	if _, ok := configdata.LookupDevice(cs.Device); !ok {
		return c, fmt.Errorf("unknown device %q", cs.Device)
	}

	mode := configdata.OutputTrack
	if cs.OutputMode != "" {
		m, err := configdata.ParseOutputMode(cs.OutputMode)
		if err != nil {
			return c, err
		}
		mode = m
	}

	outs := make(map[int]configdata.OutputConfig, len(cs.Outputs))
	for _, n := range cs.Outputs {
		outs[n] = configdata.OutputConfig{Enabled: true, Mode: mode, PWMDuty: cs.PWMDuty}
	}
	c.DeviceOutputs = []configdata.DeviceOutput{{DeviceID: cs.Device, Outputs: outs}}
	return c, nil
}
