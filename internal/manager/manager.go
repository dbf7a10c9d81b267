// Package manager runs EEPROM read and write sequences against the device,
// one request in flight at a time. Responses are matched to requests by
// EEPROM address.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

// Bus is the transport as seen by the sequencer.
type Bus interface {
	Send(msg can.Message) error
	Subscribe(buffer int) <-chan transport.Event
	Unsubscribe(ch <-chan transport.Event)
	IsConnected() bool
}

// Status is a snapshot of the sequencer.
type Status struct {
	Running     bool      `json:"running"`
	SequenceID  string    `json:"sequence_id,omitempty"`
	Kind        Kind      `json:"kind,omitempty"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Description string    `json:"description,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Estimated   string    `json:"estimated,omitempty"`
	Last        *Event    `json:"last,omitempty"`
}

// ReadResult carries the raw bytes of a read sequence. Failed lists the
// addresses that could not be read when read failures are tolerated.
type ReadResult struct {
	SequenceID string
	Kind       Kind
	Values     eeprom.Image
	Failed     []uint16
	Firmware   configdata.FirmwareVersion
	Duration   time.Duration
}

// Complete reports whether every address was read.
func (r *ReadResult) Complete() bool {
	return len(r.Failed) == 0
}

type WriteResult struct {
	SequenceID string
	Kind       Kind
	Written    int
	Firmware   configdata.FirmwareVersion
	Duration   time.Duration
}

type Manager struct {
	bus    Bus
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	status Status

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

func New(bus Bus, logger *zap.Logger, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		bus:         bus,
		logger:      logger,
		cfg:         cfg,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Config returns the active sequencer settings.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Running
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// WriteConfiguration writes the system region and every case slot. The
// configuration is validated before anything is sent.
func (m *Manager) WriteConfiguration(ctx context.Context, cfg *configdata.FullConfiguration) (*WriteResult, error) {
	ops, err := eeprom.GenerateFullConfigWriteOperations(cfg)
	if err != nil {
		return nil, err
	}
	return m.write(ctx, KindWriteConfiguration, ops)
}

// WriteSystemConfig writes only the system region.
func (m *Manager) WriteSystemConfig(ctx context.Context, s configdata.SystemConfig) (*WriteResult, error) {
	check := configdata.NewFullConfiguration()
	check.System = s
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return m.write(ctx, KindWriteSystem, eeprom.GenerateSystemWriteOperations(s))
}

// FactoryReset clears the init stamp; the firmware restores its defaults on
// the next power cycle.
func (m *Manager) FactoryReset(ctx context.Context) (*WriteResult, error) {
	return m.write(ctx, KindFactoryReset, eeprom.GenerateFactoryResetOperations())
}

func (m *Manager) ReadSystemConfig(ctx context.Context) (*ReadResult, error) {
	return m.read(ctx, KindReadSystem, eeprom.GenerateSystemReadOperations())
}

func (m *Manager) ReadFullConfiguration(ctx context.Context) (*ReadResult, error) {
	return m.read(ctx, KindReadFull, eeprom.GenerateFullConfigReadOperations())
}

func (m *Manager) ReadInput(ctx context.Context, n int) (*ReadResult, error) {
	ops, err := eeprom.GenerateInputReadOperations(n)
	if err != nil {
		return nil, err
	}
	return m.read(ctx, KindReadInput, ops)
}

func (m *Manager) write(ctx context.Context, kind Kind, ops []eeprom.WriteOperation) (*WriteResult, error) {
	steps := make([]step, len(ops))
	for i, op := range ops {
		steps[i] = step{addr: op.Address, value: op.Value, write: true, desc: op.Description}
	}

	out, err := m.run(ctx, kind, steps)
	if out == nil {
		return nil, err
	}
	res := &WriteResult{
		SequenceID: out.id,
		Kind:       kind,
		Written:    out.written,
		Firmware:   out.firmware,
		Duration:   out.duration,
	}
	return res, err
}

func (m *Manager) read(ctx context.Context, kind Kind, ops []eeprom.ReadOperation) (*ReadResult, error) {
	steps := make([]step, len(ops))
	for i, op := range ops {
		steps[i] = step{addr: op.Address, desc: op.Description}
	}

	out, err := m.run(ctx, kind, steps)
	if out == nil {
		return nil, err
	}
	res := &ReadResult{
		SequenceID: out.id,
		Kind:       kind,
		Values:     out.values,
		Failed:     out.failed,
		Firmware:   out.firmware,
		Duration:   out.duration,
	}
	return res, err
}

// begin setzt das Busy-Flag
func (m *Manager) begin(kind Kind, total int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Running {
		return "", ErrBusy
	}

	id := uuid.NewString()
	m.status = Status{
		Running:    true,
		SequenceID: id,
		Kind:       kind,
		Total:      total,
		StartedAt:  time.Now(),
		Estimated:  eeprom.EstimateWriteTime(total).String(),
		Last:       m.status.Last,
	}
	return id, nil
}

func (m *Manager) advance(current int, desc string) {
	m.mu.Lock()
	m.status.Current = current
	m.status.Description = desc
	m.mu.Unlock()
}

func (m *Manager) end(last Event) {
	m.mu.Lock()
	m.status.Running = false
	m.status.Last = &last
	m.mu.Unlock()
}
