package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/simulator"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

const simulatedPort = "simulator"

// session is an open link to one controller.
type session struct {
	bus *transport.Transport
	seq *manager.Manager
	sim *simulator.Device
}

func openSession(cfg *config.Config, logger *zap.Logger) (*session, error) {
	opts := []transport.Option{
		transport.WithBaudRate(cfg.Serial.BaudRate),
		transport.WithReadTimeout(cfg.Serial.ReadTimeout),
	}

	s := &session{}
	port := cfg.Serial.Port
	if cfg.Serial.Simulate {
		s.sim = simulator.New(configdata.FirmwareVersion{Major: 1, Minor: 4}, cfg.Protocol.EEPROM())
		opts = append(opts, transport.WithOpener(s.sim.Opener()))
		if port == "" {
			port = simulatedPort
		}
	}
	if port == "" {
		return nil, fmt.Errorf("no serial port given, use -port (see 'ngxctl ports')")
	}

	s.bus = transport.New(logger.Named("transport"), opts...)
	s.seq = manager.New(s.bus, logger.Named("sequencer"),
		manager.WithProtocol(cfg.Protocol.EEPROM()),
		manager.WithTimeout(cfg.Sequencer.OpTimeout),
		manager.WithRetryLimit(cfg.Sequencer.RetryLimit),
		manager.WithTolerateReadFailures(cfg.Sequencer.TolerateReadFailures),
		manager.WithWritePacing(cfg.Sequencer.WritePacing),
	)

	if err := s.bus.Connect(port); err != nil {
		return nil, err
	}
	pterm.Success.Printf("Connected to %s\n", port)
	return s, nil
}

func (s *session) Close() {
	s.bus.Disconnect()
}

// signalContext is cancelled on Ctrl-C so a running sequence stops cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// trackProgress renders sequencer events as a progress bar until the
// returned stop function is called.
func (s *session) trackProgress() (stop func()) {
	events := s.seq.Subscribe(128)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var bar *pterm.ProgressbarPrinter

		for ev := range events {
			switch ev.Type {
			case manager.EventStarted:
				bar, _ = pterm.DefaultProgressbar.
					WithTotal(ev.Total).
					WithTitle(string(ev.Kind)).
					Start()

			case manager.EventProgress:
				if bar == nil {
					continue
				}
				if d := ev.Current - bar.Current; d > 0 {
					bar.Add(d)
				}

			case manager.EventReadComplete, manager.EventWriteComplete:
				if bar != nil {
					bar.Stop()
					bar = nil
				}
			}
		}
		if bar != nil {
			bar.Stop()
		}
	}()

	return func() {
		s.seq.Unsubscribe(events)
		<-done
	}
}

func printFailed(failed []uint16) {
	if len(failed) == 0 {
		return
	}
	pterm.Warning.Printf("%d addresses could not be read:\n", len(failed))
	for _, a := range failed {
		pterm.Printf("  0x%04X\n", a)
	}
}
