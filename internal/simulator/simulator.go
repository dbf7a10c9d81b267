// Package simulator emulates a controller behind a GridConnect adapter. It
// plugs into the transport as a serial port and answers EEPROM read and
// write requests from an in-memory image.
package simulator

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/gridconnect"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

// DeviceSA is the source address the simulated controller answers from.
const DeviceSA = 0x42

// erased EEPROM reads back as 0xFF
const erased = 0xFF

// Device is the simulated controller memory. It survives reconnects.
type Device struct {
	mu       sync.Mutex
	image    eeprom.Image
	protocol eeprom.Protocol
	faults   map[uint16]eeprom.Status
	silent   map[uint16]bool
	requests int
}

// New returns a controller holding the default configuration.
func New(fw configdata.FirmwareVersion, p eeprom.Protocol) *Device {
	img, err := eeprom.EncodeConfiguration(configdata.NewFullConfiguration())
	if err != nil {
		img = make(eeprom.Image)
	}
	img[eeprom.AddrFirmwareMajor] = fw.Major
	img[eeprom.AddrFirmwareMinor] = fw.Minor

	return &Device{
		image:    img,
		protocol: p,
		faults:   make(map[uint16]eeprom.Status),
		silent:   make(map[uint16]bool),
	}
}

// Load replaces the memory with cfg, keeping the firmware version.
func (d *Device) Load(cfg *configdata.FullConfiguration) error {
	img, err := eeprom.EncodeConfiguration(cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	img[eeprom.AddrFirmwareMajor] = d.image[eeprom.AddrFirmwareMajor]
	img[eeprom.AddrFirmwareMinor] = d.image[eeprom.AddrFirmwareMinor]
	d.image = img
	return nil
}

// Image returns a copy of the memory.
func (d *Device) Image() eeprom.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(eeprom.Image, len(d.image))
	for a, v := range d.image {
		out[a] = v
	}
	return out
}

// Fail makes every request for addr answer with status.
func (d *Device) Fail(addr uint16, status eeprom.Status) {
	d.mu.Lock()
	d.faults[addr] = status
	d.mu.Unlock()
}

// Ignore makes the device stay silent for addr.
func (d *Device) Ignore(addr uint16) {
	d.mu.Lock()
	d.silent[addr] = true
	d.mu.Unlock()
}

// Requests counts the EEPROM requests seen so far.
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

// Opener connects the transport to this device; the port name is ignored.
func (d *Device) Opener() transport.Opener {
	return func(name string, baud int) (transport.Port, error) {
		return newPort(d), nil
	}
}

// handle answers one request frame, or returns "" when nothing is sent back.
func (d *Device) handle(raw string) string {
	if raw == gridconnect.StatusRequest {
		return ":EA;"
	}

	frame, err := gridconnect.Decode(raw)
	if err != nil || frame.IsStatus || !frame.Message.Extended {
		return ""
	}

	msg := frame.Message
	isWrite := msg.PGN() == d.protocol.WritePGN
	if !isWrite && msg.PGN() != d.protocol.ReadPGN {
		return ""
	}

	addr, value, err := eeprom.ParseRequest(msg.Data)
	status := eeprom.StatusSuccess
	if err != nil {
		status = eeprom.StatusBadGuard
	}

	d.mu.Lock()
	d.requests++
	if d.silent[addr] {
		d.mu.Unlock()
		return ""
	}
	if s, ok := d.faults[addr]; ok {
		status = s
	}
	if addr > eeprom.LastAddress {
		status = eeprom.StatusInvalidAddress
	}

	if status == eeprom.StatusSuccess {
		if isWrite {
			d.image[addr] = value
		} else if v, ok := d.image[addr]; ok {
			value = v
		} else {
			value = erased
		}
	}

	resp := eeprom.Response{
		FirmwareMajor: d.image[eeprom.AddrFirmwareMajor],
		FirmwareMinor: d.image[eeprom.AddrFirmwareMinor],
		Value:         value,
		Address:       addr,
		Status:        status,
	}
	d.mu.Unlock()

	out := can.NewJ1939(d.protocol.Priority, d.protocol.ResponsePGN, DeviceSA, eeprom.EncodeResponse(resp))
	encoded, err := gridconnect.Encode(out)
	if err != nil {
		return ""
	}
	return encoded
}

// port is one open connection to the device.
type port struct {
	dev     *Device
	asm     *gridconnect.Assembler
	rx      chan string
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	timeout time.Duration
}

func newPort(d *Device) *port {
	return &port{
		dev:     d,
		asm:     gridconnect.NewAssembler(),
		rx:      make(chan string, 256),
		closed:  make(chan struct{}),
		timeout: transport.DefaultReadTimeout,
	}
}

func (p *port) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	select {
	case s := <-p.rx:
		return copy(b, s), nil
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *port) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	p.mu.Lock()
	res := p.asm.Feed(b)
	p.mu.Unlock()

	for _, raw := range res.Frames {
		if strings.EqualFold(raw, ":CONFIG;") {
			continue
		}
		if reply := p.dev.handle(raw); reply != "" {
			select {
			case p.rx <- reply:
			default:
				// Empfangspuffer voll, Antwort geht verloren wie auf dem Bus
			}
		}
	}
	return len(b), nil
}

func (p *port) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}
