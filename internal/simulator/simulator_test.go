package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

var fw = configdata.FirmwareVersion{Major: 2, Minor: 1}

func connect(t *testing.T, dev *Device) (*transport.Transport, *manager.Manager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := transport.New(logger, transport.WithOpener(dev.Opener()), transport.WithReadTimeout(5*time.Millisecond))
	if err := bus.Connect("sim"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bus.Disconnect() })

	m := manager.New(bus, logger,
		manager.WithProtocol(eeprom.DefaultProtocol()),
		manager.WithTimeout(50*time.Millisecond),
		manager.WithRetryLimit(2))
	return bus, m
}

func TestSystemRoundTrip(t *testing.T) {
	dev := New(fw, eeprom.DefaultProtocol())
	_, m := connect(t, dev)
	ctx := context.Background()

	s := configdata.DefaultSystemConfig()
	s.SerialNumber = 9
	s.CustomerName = "SIM"
	if _, err := m.WriteSystemConfig(ctx, s); err != nil {
		t.Fatal(err)
	}

	res, err := m.ReadSystemConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Firmware != fw {
		t.Errorf("firmware = %+v", res.Firmware)
	}
	got, rep := eeprom.DecodeSystem(res.Values)
	if len(rep.Missing) != 0 || got.SerialNumber != 9 || got.CustomerName != "SIM" {
		t.Errorf("system = %+v report = %+v", got, rep)
	}
}

func TestInputRoundTrip(t *testing.T) {
	cfg := configdata.NewFullConfiguration()
	c := configdata.NewCaseConfig()
	c.Enabled = true
	c.DeviceOutputs = []configdata.DeviceOutput{{
		DeviceID: "powercell_front",
		Outputs:  map[int]configdata.OutputConfig{2: {Enabled: true, Mode: configdata.OutputTrack}},
	}}
	cfg.Input(5).OnCases[1] = c
	cfg.Normalize()

	dev := New(fw, eeprom.DefaultProtocol())
	if err := dev.Load(cfg); err != nil {
		t.Fatal(err)
	}
	_, m := connect(t, dev)

	res, err := m.ReadInput(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	in, _ := eeprom.DecodeInput(res.Values, 5)
	if !in.OnCases[1].Equal(c) {
		t.Errorf("case = %+v", in.OnCases[1])
	}
	if dev.Image()[eeprom.AddrFirmwareMajor] != fw.Major {
		t.Error("Load dropped the firmware version")
	}
}

func TestFaultsAreReported(t *testing.T) {
	dev := New(fw, eeprom.DefaultProtocol())
	dev.Fail(eeprom.AddrSerialNumber, eeprom.StatusInvalidAddress)
	_, m := connect(t, dev)

	_, err := m.WriteSystemConfig(context.Background(), configdata.DefaultSystemConfig())
	var serr *eeprom.StatusError
	if !errors.As(err, &serr) || serr.Address != eeprom.AddrSerialNumber {
		t.Fatalf("err = %v", err)
	}
}

func TestSilentAddressTimesOut(t *testing.T) {
	dev := New(fw, eeprom.DefaultProtocol())
	dev.Ignore(eeprom.AddrCustomerName)
	_, m := connect(t, dev)

	before := dev.Requests()
	res, err := m.ReadSystemConfig(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != eeprom.AddrCustomerName {
		t.Errorf("failed = %v", res.Failed)
	}
	// zwei Versuche für die stumme Adresse
	ops := len(eeprom.GenerateSystemReadOperations())
	if got := dev.Requests() - before; got != ops+1 {
		t.Errorf("requests = %d, want %d", got, ops+1)
	}
}

func TestStatusRequest(t *testing.T) {
	dev := New(fw, eeprom.DefaultProtocol())
	bus, _ := connect(t, dev)

	events := bus.Subscribe(8)
	defer bus.Unsubscribe(events)
	if err := bus.RequestStatus(); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == transport.EventStatus {
				if ev.Status.String() != "ACTIVE" {
					t.Errorf("status = %s", ev.Status)
				}
				return
			}
		case <-timeout:
			t.Fatal("no status event")
		}
	}
}
