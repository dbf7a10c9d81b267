// Package workspace holds the working configuration the API edits and runs
// device sequences against it in the background.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/manager"
)

var (
	ErrBusy         = errors.New("workspace: operation already running")
	ErrNotConnected = errors.New("workspace: device not connected")
	ErrNoOperation  = errors.New("workspace: no operation running")
)

// Sequencer is the part of manager.Manager the workspace drives.
type Sequencer interface {
	WriteConfiguration(ctx context.Context, cfg *configdata.FullConfiguration) (*manager.WriteResult, error)
	WriteSystemConfig(ctx context.Context, s configdata.SystemConfig) (*manager.WriteResult, error)
	FactoryReset(ctx context.Context) (*manager.WriteResult, error)
	ReadSystemConfig(ctx context.Context) (*manager.ReadResult, error)
	ReadFullConfiguration(ctx context.Context) (*manager.ReadResult, error)
	ReadInput(ctx context.Context, n int) (*manager.ReadResult, error)
}

// Request selects a sequence. Input is used by read_input only.
type Request struct {
	Kind  manager.Kind `json:"kind"`
	Input int          `json:"input,omitempty"`
}

// Outcome is the result of the last finished sequence.
type Outcome struct {
	Request    Request                    `json:"request"`
	SequenceID string                     `json:"sequence_id,omitempty"`
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	Firmware   configdata.FirmwareVersion `json:"firmware"`
	Failed     []uint16                   `json:"failed,omitempty"`
	Report     *eeprom.DecodeReport       `json:"report,omitempty"`
	Duration   time.Duration              `json:"duration"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// ReadHook is called after a read was applied to the working configuration.
type ReadHook func(o Outcome, cfg *configdata.FullConfiguration)

type Workspace struct {
	seq       Sequencer
	connected func() bool
	logger    *zap.Logger
	onRead    ReadHook

	mu       sync.RWMutex
	cfg      *configdata.FullConfiguration
	origin   string
	firmware configdata.FirmwareVersion
	last     *Outcome

	runMu   sync.Mutex
	running *Request
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Workspace)

// WithConnected lets Start refuse early when the link is down.
func WithConnected(fn func() bool) Option {
	return func(w *Workspace) { w.connected = fn }
}

func WithReadHook(fn ReadHook) Option {
	return func(w *Workspace) { w.onRead = fn }
}

func New(seq Sequencer, logger *zap.Logger, opts ...Option) *Workspace {
	w := &Workspace{
		seq:    seq,
		logger: logger,
		cfg:    configdata.NewFullConfiguration(),
		origin: "default",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns a copy of the working configuration.
func (w *Workspace) Config() *configdata.FullConfiguration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg.Clone()
}

// Origin describes where the working configuration came from: default,
// device, upload, preset:<id> or backup:<id>.
func (w *Workspace) Origin() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.origin
}

// Firmware is the version reported by the last successful sequence.
func (w *Workspace) Firmware() configdata.FirmwareVersion {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.firmware
}

// Replace validates cfg and makes it the working configuration.
func (w *Workspace) Replace(cfg *configdata.FullConfiguration, origin string) error {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	w.cfg = cfg
	w.origin = origin
	w.mu.Unlock()

	w.logger.Info("Working configuration replaced", zap.String("origin", origin))
	return nil
}

func (w *Workspace) LastOutcome() *Outcome {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return nil
	}
	o := *w.last
	return &o
}

// Running returns the request in progress, nil when idle.
func (w *Workspace) Running() *Request {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running == nil {
		return nil
	}
	r := *w.running
	return &r
}

// Start launches req in the background. Progress and completion are
// published by the sequencer; the outcome is kept for LastOutcome.
func (w *Workspace) Start(req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if w.connected != nil && !w.connected() {
		return ErrNotConnected
	}

	// Schreibdaten jetzt festhalten, nicht erst im Hintergrund
	snapshot := w.Config()

	w.runMu.Lock()
	if w.running != nil {
		w.runMu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := req
	w.running = &r
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.runMu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		o := w.Run(ctx, req, snapshot)

		w.runMu.Lock()
		w.running = nil
		w.cancel = nil
		w.runMu.Unlock()

		if !o.Success {
			w.logger.Warn("Operation failed", zap.String("kind", string(req.Kind)), zap.String("error", o.Error))
		}
	}()
	return nil
}

// Cancel aborts the running sequence and waits for it to stop.
func (w *Workspace) Cancel(ctx context.Context) error {
	w.runMu.Lock()
	cancel, done := w.cancel, w.done
	w.runMu.Unlock()

	if cancel == nil {
		return ErrNoOperation
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the running sequence, if any, has finished.
func (w *Workspace) Wait(ctx context.Context) error {
	w.runMu.Lock()
	done := w.done
	w.runMu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateRequest(req Request) error {
	switch req.Kind {
	case manager.KindWriteConfiguration, manager.KindWriteSystem, manager.KindFactoryReset,
		manager.KindReadSystem, manager.KindReadFull:
		return nil
	case manager.KindReadInput:
		if req.Input < 1 || req.Input > configdata.TotalInputs {
			return fmt.Errorf("input %d out of range 1-%d", req.Input, configdata.TotalInputs)
		}
		return nil
	default:
		return fmt.Errorf("unknown operation %q", req.Kind)
	}
}

// Run executes req synchronously. Writes use snapshot; reads are merged
// into the working configuration when they succeed.
func (w *Workspace) Run(ctx context.Context, req Request, snapshot *configdata.FullConfiguration) Outcome {
	o := Outcome{Request: req}

	var (
		wr  *manager.WriteResult
		rr  *manager.ReadResult
		err error
	)

	switch req.Kind {
	case manager.KindWriteConfiguration:
		wr, err = w.seq.WriteConfiguration(ctx, snapshot)
	case manager.KindWriteSystem:
		wr, err = w.seq.WriteSystemConfig(ctx, snapshot.System)
	case manager.KindFactoryReset:
		wr, err = w.seq.FactoryReset(ctx)
	case manager.KindReadSystem:
		rr, err = w.seq.ReadSystemConfig(ctx)
	case manager.KindReadFull:
		rr, err = w.seq.ReadFullConfiguration(ctx)
	case manager.KindReadInput:
		rr, err = w.seq.ReadInput(ctx, req.Input)
	default:
		err = validateRequest(req)
	}

	if wr != nil {
		o.SequenceID = wr.SequenceID
		o.Firmware = wr.Firmware
		o.Duration = wr.Duration
	}
	if rr != nil {
		o.SequenceID = rr.SequenceID
		o.Firmware = rr.Firmware
		o.Duration = rr.Duration
		o.Failed = rr.Failed
	}

	o.Success = err == nil && len(o.Failed) == 0
	if err != nil {
		o.Error = err.Error()
	} else if len(o.Failed) > 0 {
		o.Error = fmt.Sprintf("%d addresses could not be read", len(o.Failed))
	}

	var applied *configdata.FullConfiguration
	if err == nil && rr != nil {
		o.Report, applied = w.applyRead(req, rr)
	}

	o.FinishedAt = time.Now()

	w.mu.Lock()
	if err == nil {
		w.firmware = o.Firmware
	}
	last := o
	w.last = &last
	w.mu.Unlock()

	if applied != nil && w.onRead != nil {
		w.onRead(o, applied)
	}
	return o
}

// applyRead decodes the image and merges it. Partial reads are applied too;
// the report lists what was missing.
func (w *Workspace) applyRead(req Request, rr *manager.ReadResult) (*eeprom.DecodeReport, *configdata.FullConfiguration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rep *eeprom.DecodeReport
	switch req.Kind {
	case manager.KindReadFull:
		cfg, r := eeprom.DecodeConfiguration(rr.Values)
		w.cfg = cfg
		w.origin = "device"
		rep = r

	case manager.KindReadSystem:
		s, r := eeprom.DecodeSystem(rr.Values)
		w.cfg.System = s
		rep = r

	case manager.KindReadInput:
		name := w.cfg.Inputs[req.Input-1].CustomName
		in, r := eeprom.DecodeInput(rr.Values, req.Input)
		in.CustomName = name
		w.cfg.Inputs[req.Input-1] = in
		rep = r
	}

	if rep.Firmware == (configdata.FirmwareVersion{}) {
		rep.Firmware = rr.Firmware
	}
	w.logger.Info("Read applied to working configuration",
		zap.String("kind", string(req.Kind)),
		zap.Int("missing", len(rep.Missing)),
		zap.Int("stale_slots", len(rep.StaleSlots)))

	return rep, w.cfg.Clone()
}
