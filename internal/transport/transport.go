// Package transport owns the serial link to the GridConnect adapter. A
// background reader turns the byte stream into frames and fans them out as
// events; Send encodes messages onto the wire.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/gridconnect"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 50 * time.Millisecond

	readBufferSize = 256
)

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
	ErrPortBusy         = errors.New("transport: port busy")
	ErrPortNotFound     = errors.New("transport: port not found")
)

// Port is the part of serial.Port the transport needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by name.
type Opener func(name string, baud int) (Port, error)

// OpenSerial opens a real serial device with 8N1 framing.
func OpenSerial(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, classifyOpenError(name, err)
	}
	return port, nil
}

func classifyOpenError(name string, err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortBusy:
			return fmt.Errorf("%w: %s: %v", ErrPortBusy, name, err)
		case serial.PortNotFound:
			return fmt.Errorf("%w: %s: %v", ErrPortNotFound, name, err)
		}
	}
	return fmt.Errorf("transport: open %s: %w", name, err)
}

type Option func(*Transport)

func WithOpener(o Opener) Option {
	return func(t *Transport) { t.opener = o }
}

func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		if baud > 0 {
			t.baud = baud
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

type Transport struct {
	opener      Opener
	logger      *zap.Logger
	baud        int
	readTimeout time.Duration

	mu        sync.Mutex
	port      Port
	portName  string
	connected bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	writeMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

func New(logger *zap.Logger, opts ...Option) *Transport {
	t := &Transport{
		opener:      OpenSerial,
		logger:      logger,
		baud:        DefaultBaudRate,
		readTimeout: DefaultReadTimeout,
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect öffnet den Port und startet den Reader
func (t *Transport) Connect(name string) error {
	if t.IsConnected() {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, t.PortName())
	}

	// Vorherigen Reader vollständig beenden
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, t.portName)
	}

	port, err := t.opener(name, t.baud)
	if err != nil {
		t.logger.Warn("Failed to open port", zap.String("port", name), zap.Error(err))
		return err
	}
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("transport: set read timeout on %s: %w", name, err)
	}

	stop := make(chan struct{})
	t.port = port
	t.portName = name
	t.connected = true
	t.stopChan = stop

	t.wg.Add(1)
	go t.readLoop(port, stop)

	t.logger.Info("Connected",
		zap.String("port", name),
		zap.Int("baud", t.baud))

	t.emit(Event{Type: EventConnected, Port: name})
	return nil
}

// Disconnect stops the reader and releases the port. Safe to call when not
// connected.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	port, name := t.port, t.portName
	t.connected = false
	t.port = nil
	close(t.stopChan)
	t.mu.Unlock()

	err := port.Close()
	t.wg.Wait()

	t.logger.Info("Disconnected", zap.String("port", name))
	t.emit(Event{Type: EventDisconnected, Port: name})

	if err != nil {
		return fmt.Errorf("transport: close %s: %w", name, err)
	}
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// PortName returns the connected port, or "" when disconnected.
func (t *Transport) PortName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ""
	}
	return t.portName
}

// Send validates, encodes and writes one message.
func (t *Transport) Send(msg can.Message) error {
	frame, err := gridconnect.Encode(msg)
	if err != nil {
		return err
	}
	if err := t.SendRaw(frame); err != nil {
		return err
	}
	t.logger.Debug("TX", zap.String("frame", frame))
	return nil
}

// SendRaw writes text unchanged, used for adapter commands.
func (t *Transport) SendRaw(text string) error {
	t.mu.Lock()
	port := t.port
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(port, text); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// RequestStatus asks the adapter for its bus status; the answer arrives as
// an EventStatus.
func (t *Transport) RequestStatus() error {
	return t.SendRaw(gridconnect.StatusRequest)
}

func (t *Transport) readLoop(port Port, stop chan struct{}) {
	defer t.wg.Done()

	asm := gridconnect.NewAssembler()
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			t.handleLost(port, err)
			return
		}
		if n == 0 {
			// Read-Timeout, kein Fehler
			continue
		}

		res := asm.Feed(buf[:n])
		for _, raw := range res.Discarded {
			t.logger.Warn("Discarded incomplete frame", zap.String("frame", raw))
			t.emit(Event{Type: EventFrameError, Raw: raw, Err: &gridconnect.FrameError{Frame: raw, Reason: "incomplete frame"}})
		}
		for _, raw := range res.Frames {
			t.dispatch(raw)
		}
	}
}

func (t *Transport) dispatch(raw string) {
	frame, err := gridconnect.Decode(raw)
	if err != nil {
		t.logger.Warn("Malformed frame", zap.String("frame", raw), zap.Error(err))
		t.emit(Event{Type: EventFrameError, Raw: raw, Err: err})
		return
	}

	if frame.IsStatus {
		t.emit(Event{Type: EventStatus, Status: frame.Status})
		return
	}

	msg := frame.Message
	msg.Timestamp = time.Now()
	t.logger.Debug("RX", zap.String("frame", raw))
	t.emit(Event{Type: EventMessageReceived, Message: msg, Timestamp: msg.Timestamp})
}

// handleLost räumt nach einem I/O-Fehler auf, ohne auf den Reader zu warten
func (t *Transport) handleLost(port Port, cause error) {
	t.mu.Lock()
	if !t.connected || t.port != port {
		t.mu.Unlock()
		return
	}
	name := t.portName
	t.connected = false
	t.port = nil
	close(t.stopChan)
	t.mu.Unlock()

	port.Close()

	t.logger.Error("Connection lost", zap.String("port", name), zap.Error(cause))
	t.emit(Event{Type: EventDisconnected, Port: name, Err: cause})
}

func zapEventType(t EventType) zap.Field {
	return zap.String("event", string(t))
}
