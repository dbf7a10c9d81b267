package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

type request struct {
	addr  uint16
	value byte
	write bool
}

// reply decides how the fake device answers one request. respond=false
// drops the request.
type reply func(req request, attempt int) (status eeprom.Status, respond bool)

func alwaysOK(request, int) (eeprom.Status, bool) {
	return eeprom.StatusSuccess, true
}

type fakeDevice struct {
	proto eeprom.Protocol

	mu        sync.Mutex
	connected bool
	mem       eeprom.Image
	requests  []request
	attempts  map[uint16]int
	subs      map[chan transport.Event]struct{}
	reply     reply
	stray     map[uint16]bool
}

func newFakeDevice() *fakeDevice {
	mem := eeprom.Image{eeprom.AddrFirmwareMajor: 1, eeprom.AddrFirmwareMinor: 4}
	return &fakeDevice{
		proto:     eeprom.DefaultProtocol(),
		connected: true,
		mem:       mem,
		attempts:  make(map[uint16]int),
		subs:      make(map[chan transport.Event]struct{}),
		reply:     alwaysOK,
		stray:     make(map[uint16]bool),
	}
}

func (d *fakeDevice) Send(msg can.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return transport.ErrNotConnected
	}

	addr, value, err := eeprom.ParseRequest(msg.Data)
	if err != nil {
		return err
	}
	req := request{addr: addr, value: value, write: msg.PGN() == d.proto.WritePGN}
	d.requests = append(d.requests, req)
	d.attempts[addr]++

	if d.stray[addr] {
		d.deliver(eeprom.Response{Address: addr + 1, Status: eeprom.StatusSuccess})
	}

	status, respond := d.reply(req, d.attempts[addr])
	if !respond {
		return nil
	}
	if status == eeprom.StatusSuccess && req.write {
		d.mem[addr] = value
	}
	d.deliver(eeprom.Response{
		FirmwareMajor: d.mem[eeprom.AddrFirmwareMajor],
		FirmwareMinor: d.mem[eeprom.AddrFirmwareMinor],
		Value:         d.mem[addr],
		Address:       addr,
		Status:        status,
	})
	return nil
}

// deliver must be called with d.mu held.
func (d *fakeDevice) deliver(r eeprom.Response) {
	msg := can.NewJ1939(eeprom.DefaultPriority, d.proto.ResponsePGN, 0x21, eeprom.EncodeResponse(r))
	ev := transport.Event{Type: transport.EventMessageReceived, Message: msg}
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (d *fakeDevice) Subscribe(buffer int) <-chan transport.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan transport.Event, buffer)
	d.subs[ch] = struct{}{}
	return ch
}

func (d *fakeDevice) Unsubscribe(ch <-chan transport.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.subs {
		if c == ch {
			delete(d.subs, c)
			close(c)
		}
	}
}

func (d *fakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDevice) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	for ch := range d.subs {
		ch <- transport.Event{Type: transport.EventDisconnected}
	}
}

func (d *fakeDevice) Requests() []request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]request(nil), d.requests...)
}

func newTestManager(t *testing.T, dev *fakeDevice, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithTimeout(20 * time.Millisecond), WithRetryLimit(3)}, opts...)
	return New(dev, zaptest.NewLogger(t), opts...)
}

func lastEvent(ch <-chan Event) (Event, int) {
	var last Event
	var progress int
	for {
		select {
		case ev := <-ch:
			if ev.Type == EventProgress {
				progress++
			}
			last = ev
		default:
			return last, progress
		}
	}
}

func TestWriteConfiguration(t *testing.T) {
	dev := newFakeDevice()
	m := newTestManager(t, dev)
	events := m.Subscribe(20000)

	cfg := configdata.NewFullConfiguration()
	c := configdata.NewCaseConfig()
	c.Enabled = true
	c.IgnitionMode = configdata.IgnitionSet
	c.DeviceOutputs = []configdata.DeviceOutput{{
		DeviceID: "powercell_front",
		Outputs:  map[int]configdata.OutputConfig{3: {Enabled: true, Mode: configdata.OutputTrack}},
	}}
	cfg.Inputs[0].OnCases[0] = c

	res, err := m.WriteConfiguration(context.Background(), cfg)
	if err != nil {
		t.Fatalf("WriteConfiguration: %v", err)
	}

	want, err := eeprom.EncodeConfiguration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written != len(want) {
		t.Errorf("written = %d, want %d", res.Written, len(want))
	}
	for addr, v := range want {
		if dev.mem[addr] != v {
			t.Fatalf("device 0x%04X = 0x%02X, want 0x%02X", addr, dev.mem[addr], v)
		}
	}
	if res.Firmware != (configdata.FirmwareVersion{Major: 1, Minor: 4}) {
		t.Errorf("firmware = %+v", res.Firmware)
	}

	last, progress := lastEvent(events)
	if last.Type != EventWriteComplete || !last.Success {
		t.Errorf("last event = %+v", last)
	}
	if progress != len(want) {
		t.Errorf("progress events = %d, want %d", progress, len(want))
	}
	if m.Busy() {
		t.Error("manager still busy")
	}
}

func TestWriteRejectsInvalidConfiguration(t *testing.T) {
	dev := newFakeDevice()
	m := newTestManager(t, dev)

	cfg := configdata.NewFullConfiguration()
	cfg.Inputs[0].OnCases[0].Enabled = true
	cfg.Inputs[0].OnCases[0].PatternOnTime = 16

	if _, err := m.WriteConfiguration(context.Background(), cfg); !errors.Is(err, configdata.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if n := len(dev.Requests()); n != 0 {
		t.Errorf("%d requests sent for an invalid configuration", n)
	}
}

func TestWriteAbortsAfterRetryLimit(t *testing.T) {
	dev := newFakeDevice()
	target := eeprom.AddrReadPGNHigh
	dev.reply = func(req request, attempt int) (eeprom.Status, bool) {
		return eeprom.StatusSuccess, req.addr != target
	}
	m := newTestManager(t, dev)
	events := m.Subscribe(64)

	_, err := m.WriteSystemConfig(context.Background(), configdata.DefaultSystemConfig())

	var serr *SequenceError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SequenceError", err)
	}
	if serr.Address != target || serr.Attempts != 3 || !errors.Is(err, ErrTimeout) {
		t.Errorf("SequenceError = %+v", serr)
	}

	reqs := dev.Requests()
	tail := reqs[len(reqs)-3:]
	for _, r := range tail {
		if r.addr != target {
			t.Errorf("request after abort: 0x%04X", r.addr)
		}
	}
	if dev.attempts[target] != 3 {
		t.Errorf("attempts at target = %d", dev.attempts[target])
	}
	for _, r := range reqs {
		if r.addr > target {
			t.Errorf("operation beyond the failing one was issued: 0x%04X", r.addr)
		}
	}

	last, _ := lastEvent(events)
	if last.Type != EventWriteComplete || last.Success {
		t.Fatalf("last event = %+v", last)
	}
	if last.LastAddress == nil || *last.LastAddress != target {
		t.Errorf("last_address = %v", last.LastAddress)
	}
}

func TestWriteNackAborts(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(req request, attempt int) (eeprom.Status, bool) {
		if req.addr == eeprom.AddrHeartbeatSA {
			return eeprom.StatusVerifyFailed, true
		}
		return eeprom.StatusSuccess, true
	}
	m := newTestManager(t, dev)

	_, err := m.WriteSystemConfig(context.Background(), configdata.DefaultSystemConfig())

	var nack *eeprom.StatusError
	if !errors.As(err, &nack) || nack.Status != eeprom.StatusVerifyFailed {
		t.Fatalf("err = %v, want VERIFY_FAILED StatusError", err)
	}
	if dev.attempts[eeprom.AddrHeartbeatSA] != 1 {
		t.Errorf("NACK retried: %d attempts", dev.attempts[eeprom.AddrHeartbeatSA])
	}
}

func TestTxBusyIsRetried(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(req request, attempt int) (eeprom.Status, bool) {
		if req.addr == eeprom.AddrInitStamp && attempt < 3 {
			return eeprom.StatusTxBusy, true
		}
		return eeprom.StatusSuccess, true
	}
	m := newTestManager(t, dev)

	res, err := m.FactoryReset(context.Background())
	if err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	if res.Written != 1 || dev.attempts[eeprom.AddrInitStamp] != 3 {
		t.Errorf("written=%d attempts=%d", res.Written, dev.attempts[eeprom.AddrInitStamp])
	}
	if dev.mem[eeprom.AddrInitStamp] != eeprom.FactoryResetValue {
		t.Errorf("init stamp = 0x%02X", dev.mem[eeprom.AddrInitStamp])
	}
}

func TestReadPartialTolerated(t *testing.T) {
	dev := newFakeDevice()
	dev.mem[eeprom.AddrSerialNumber] = 42
	dev.reply = func(req request, attempt int) (eeprom.Status, bool) {
		switch req.addr {
		case eeprom.AddrRebroadcast:
			return 0, false
		case eeprom.AddrDiagSA:
			return eeprom.StatusBadGuard, true
		}
		return eeprom.StatusSuccess, true
	}
	m := newTestManager(t, dev)
	events := m.Subscribe(64)

	res, err := m.ReadSystemConfig(context.Background())
	if err != nil {
		t.Fatalf("ReadSystemConfig: %v", err)
	}
	if res.Complete() {
		t.Error("result should be partial")
	}
	if len(res.Failed) != 2 || res.Failed[0] != eeprom.AddrRebroadcast || res.Failed[1] != eeprom.AddrDiagSA {
		t.Errorf("failed = %v", res.Failed)
	}
	if len(res.Values) != eeprom.SystemSize-2 {
		t.Errorf("values = %d", len(res.Values))
	}
	if res.Values[eeprom.AddrSerialNumber] != 42 {
		t.Errorf("serial = %d", res.Values[eeprom.AddrSerialNumber])
	}

	last, _ := lastEvent(events)
	if last.Type != EventReadComplete || last.Success || len(last.Failed) != 2 {
		t.Errorf("last event = %+v", last)
	}
	if len(last.Values) != eeprom.SystemSize-2 {
		t.Errorf("event values = %d", len(last.Values))
	}
}

func TestReadFailureAbortsWhenNotTolerated(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(req request, attempt int) (eeprom.Status, bool) {
		return eeprom.StatusSuccess, req.addr != eeprom.AddrRebroadcast
	}
	m := newTestManager(t, dev, WithTolerateReadFailures(false))

	_, err := m.ReadSystemConfig(context.Background())
	var serr *SequenceError
	if !errors.As(err, &serr) || serr.Address != eeprom.AddrRebroadcast {
		t.Fatalf("err = %v", err)
	}
	for _, r := range dev.Requests() {
		if r.addr > eeprom.AddrRebroadcast {
			t.Fatalf("read continued to 0x%04X", r.addr)
		}
	}
}

func TestReadFullConfigurationRoundTrip(t *testing.T) {
	cfg := configdata.NewFullConfiguration()
	cfg.System.SerialNumber = 7
	cfg.System.CustomerName = "ACME"
	c := configdata.NewCaseConfig()
	c.Mode = configdata.CaseTimed
	c.PatternOnTime, c.PatternOffTime = 2, 2
	c.TimerOn = configdata.Timer{Mode: configdata.TimerFireAndForget, Value: 6, Scale10s: true}
	c.MustBeOff = []int{3, 44}
	c.DeviceOutputs = []configdata.DeviceOutput{{
		DeviceID: "inmotion_2",
		Outputs:  map[int]configdata.OutputConfig{1: {Enabled: true, Mode: configdata.OutputAllMotors}},
	}}
	// Input 25 has two OFF cases; keep this one disabled but populated
	cfg.Inputs[24].OffCases[0] = c
	cfg.Normalize()

	img, err := eeprom.EncodeConfiguration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	dev := newFakeDevice()
	for a, v := range img {
		dev.mem[a] = v
	}
	m := newTestManager(t, dev)

	res, err := m.ReadFullConfiguration(context.Background())
	if err != nil {
		t.Fatalf("ReadFullConfiguration: %v", err)
	}
	if !res.Complete() {
		t.Fatalf("failed = %v", res.Failed)
	}

	got, rep := eeprom.DecodeConfiguration(res.Values)
	if len(rep.Missing) != 0 || len(rep.StaleSlots) != 0 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Firmware != (configdata.FirmwareVersion{Major: 1, Minor: 4}) {
		t.Errorf("firmware = %+v", rep.Firmware)
	}
	if !got.Equal(cfg) {
		t.Error("configuration read back differs from the one written")
	}
}

func TestReadInput(t *testing.T) {
	dev := newFakeDevice()
	m := newTestManager(t, dev)

	res, err := m.ReadInput(context.Background(), 44)
	if err != nil {
		t.Fatal(err)
	}
	first, last, _ := eeprom.InputRange(44)
	if len(res.Values) != eeprom.BytesPerInput {
		t.Errorf("values = %d", len(res.Values))
	}
	if _, ok := res.Values[first]; !ok {
		t.Error("first address missing")
	}
	if _, ok := res.Values[last]; !ok {
		t.Error("last address missing")
	}

	if _, err := m.ReadInput(context.Background(), 45); err == nil {
		t.Error("input 45 accepted")
	}
	if m.Busy() {
		t.Error("rejected request left the manager busy")
	}
}

func TestUncorrelatedResponseIgnored(t *testing.T) {
	dev := newFakeDevice()
	dev.stray[eeprom.AddrInitStamp] = true
	m := newTestManager(t, dev)

	if _, err := m.FactoryReset(context.Background()); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	if dev.attempts[eeprom.AddrInitStamp] != 1 {
		t.Errorf("attempts = %d", dev.attempts[eeprom.AddrInitStamp])
	}
}

func TestBusyRejectsSecondSequence(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(request, int) (eeprom.Status, bool) { return 0, false }
	m := newTestManager(t, dev, WithTimeout(200*time.Millisecond), WithRetryLimit(1))

	done := make(chan error, 1)
	go func() {
		_, err := m.FactoryReset(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !m.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first sequence never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := m.ReadSystemConfig(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second sequence = %v, want ErrBusy", err)
	}
	if st := m.Status(); !st.Running || st.Kind != KindFactoryReset {
		t.Errorf("status = %+v", st)
	}

	if err := <-done; !errors.Is(err, ErrTimeout) {
		t.Errorf("first sequence = %v", err)
	}
}

func TestDisconnectAbortsSequence(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(request, int) (eeprom.Status, bool) { return 0, false }
	m := newTestManager(t, dev, WithTimeout(5*time.Second))

	go func() {
		for !m.Busy() {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
		dev.Disconnect()
	}()

	start := time.Now()
	_, err := m.ReadSystemConfig(context.Background())
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("sequence waited for the timeout instead of aborting")
	}
	if m.Busy() {
		t.Error("still busy")
	}
}

func TestNotConnected(t *testing.T) {
	dev := newFakeDevice()
	dev.connected = false
	m := newTestManager(t, dev)

	_, err := m.FactoryReset(context.Background())
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("err = %v", err)
	}
	st := m.Status()
	if st.Running || st.Last == nil || st.Last.Success {
		t.Errorf("status = %+v", st)
	}
}

func TestContextCancel(t *testing.T) {
	dev := newFakeDevice()
	dev.reply = func(request, int) (eeprom.Status, bool) { return 0, false }
	m := newTestManager(t, dev, WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.ReadFullConfiguration(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
