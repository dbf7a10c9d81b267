package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

// responseBuffer is large enough for bursts of unrelated bus traffic.
const responseBuffer = 64

type step struct {
	addr  uint16
	value byte
	write bool
	desc  string
}

type outcome struct {
	id       string
	values   eeprom.Image
	failed   []uint16
	written  int
	firmware configdata.FirmwareVersion
	duration time.Duration
}

// run executes steps strictly in order. A failed write step aborts the
// sequence; a failed read step aborts unless read failures are tolerated.
func (m *Manager) run(ctx context.Context, kind Kind, steps []step) (*outcome, error) {
	id, err := m.begin(kind, len(steps))
	if err != nil {
		return nil, err
	}

	started := time.Now()
	out := &outcome{id: id}
	if !kind.IsWrite() {
		out.values = make(eeprom.Image, len(steps))
	}

	// Erst abonnieren, dann prüfen: kein Disconnect geht verloren
	events := m.bus.Subscribe(responseBuffer)
	defer m.bus.Unsubscribe(events)

	if !m.bus.IsConnected() {
		err := &SequenceError{Op: kind, Cause: transport.ErrNotConnected}
		if len(steps) > 0 {
			err.Address, err.Description = steps[0].addr, steps[0].desc
		}
		m.complete(kind, out, started, err)
		return out, err
	}

	m.logger.Info("Sequence started",
		zap.String("sequence_id", id),
		zap.String("kind", string(kind)),
		zap.Int("operations", len(steps)),
		zap.Duration("estimated", eeprom.EstimateWriteTime(len(steps))))
	m.publish(Event{Type: EventStarted, SequenceID: id, Kind: kind, Total: len(steps)})

	for i, st := range steps {
		resp, attempts, err := m.execute(ctx, events, st)
		switch {
		case err == nil:
			out.firmware = configdata.FirmwareVersion{Major: resp.FirmwareMajor, Minor: resp.FirmwareMinor}
			if st.write {
				out.written++
			} else {
				out.values[st.addr] = resp.Value
			}

		case !st.write && m.cfg.TolerateReadFailures && tolerable(err):
			m.logger.Warn("Read failed, continuing",
				zap.String("sequence_id", id),
				zap.Uint16("address", st.addr),
				zap.Int("attempts", attempts),
				zap.Error(err))
			out.failed = append(out.failed, st.addr)

		default:
			serr := &SequenceError{Op: kind, Address: st.addr, Description: st.desc, Attempts: attempts, Cause: err}
			m.complete(kind, out, started, serr)
			return out, serr
		}

		m.advance(i+1, st.desc)
		m.publish(Event{
			Type:        EventProgress,
			SequenceID:  id,
			Kind:        kind,
			Current:     i + 1,
			Total:       len(steps),
			Description: st.desc,
		})

		if st.write && m.cfg.WritePacing > 0 && i < len(steps)-1 {
			if err := sleepCtx(ctx, m.cfg.WritePacing); err != nil {
				serr := &SequenceError{Op: kind, Address: st.addr, Description: st.desc, Attempts: attempts, Cause: err}
				m.complete(kind, out, started, serr)
				return out, serr
			}
		}
	}

	m.complete(kind, out, started, nil)
	return out, nil
}

// execute sends one request and waits for its response, retrying timeouts
// and TX_BUSY up to RetryLimit attempts in total. Other NACKs are final.
func (m *Manager) execute(ctx context.Context, events <-chan transport.Event, st step) (eeprom.Response, int, error) {
	var lastErr error

	for attempt := 1; attempt <= m.cfg.RetryLimit; attempt++ {
		msg := m.cfg.Protocol.ReadRequest(st.addr)
		if st.write {
			msg = m.cfg.Protocol.WriteRequest(st.addr, st.value)
		}
		if err := m.bus.Send(msg); err != nil {
			return eeprom.Response{}, attempt, fmt.Errorf("send: %w", err)
		}

		resp, err := m.await(ctx, events, st.addr)
		switch {
		case err == nil && resp.OK():
			return resp, attempt, nil
		case err == nil && resp.Retryable():
			lastErr = resp.Err()
		case err == nil:
			return resp, attempt, resp.Err()
		case errors.Is(err, ErrTimeout):
			lastErr = err
		default:
			return eeprom.Response{}, attempt, err
		}

		if attempt < m.cfg.RetryLimit {
			m.logger.Warn("Retrying operation",
				zap.Uint16("address", st.addr),
				zap.String("description", st.desc),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}
	}

	return eeprom.Response{}, m.cfg.RetryLimit, lastErr
}

// await wartet auf die Antwort zur Adresse
func (m *Manager) await(ctx context.Context, events <-chan transport.Event, addr uint16) (eeprom.Response, error) {
	timer := time.NewTimer(m.cfg.OpTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return eeprom.Response{}, ctx.Err()

		case <-timer.C:
			return eeprom.Response{}, ErrTimeout

		case ev, ok := <-events:
			if !ok {
				return eeprom.Response{}, ErrDisconnected
			}
			switch ev.Type {
			case transport.EventDisconnected:
				if ev.Err != nil {
					return eeprom.Response{}, fmt.Errorf("%w: %v", ErrDisconnected, ev.Err)
				}
				return eeprom.Response{}, ErrDisconnected

			case transport.EventMessageReceived:
				if !m.cfg.Protocol.IsResponse(ev.Message) {
					continue
				}
				resp, err := eeprom.ParseResponse(ev.Message.Data)
				if err != nil {
					m.logger.Warn("Unparseable response", zap.String("frame", ev.Message.String()), zap.Error(err))
					continue
				}
				if resp.Address != addr {
					m.logger.Debug("Uncorrelated response",
						zap.Uint16("expected", addr),
						zap.Uint16("address", resp.Address))
					continue
				}
				return resp, nil
			}
		}
	}
}

// tolerable failures are those of the device, not of the link.
func tolerable(err error) bool {
	var serr *eeprom.StatusError
	return errors.Is(err, ErrTimeout) || errors.As(err, &serr)
}

func (m *Manager) complete(kind Kind, out *outcome, started time.Time, err error) {
	out.duration = time.Since(started)

	ev := Event{
		Type:       EventWriteComplete,
		SequenceID: out.id,
		Kind:       kind,
		Success:    err == nil,
	}
	if !kind.IsWrite() {
		ev.Type = EventReadComplete
		ev.Values = out.values
		ev.Failed = out.failed
		ev.Total = len(out.values) + len(out.failed)
		ev.Success = err == nil && len(out.failed) == 0
	} else {
		ev.Total = out.written
	}

	var serr *SequenceError
	switch {
	case errors.As(err, &serr):
		addr := serr.Address
		ev.LastAddress = &addr
		ev.Message = serr.Error()
	case err != nil:
		ev.Message = err.Error()
	case len(out.failed) > 0:
		ev.Message = fmt.Sprintf("read %d addresses, %d failed", len(out.values), len(out.failed))
	case kind.IsWrite():
		ev.Message = fmt.Sprintf("wrote %d bytes in %s", out.written, out.duration.Round(time.Millisecond))
	default:
		ev.Message = fmt.Sprintf("read %d bytes in %s", len(out.values), out.duration.Round(time.Millisecond))
	}

	if ev.Success {
		m.logger.Info("Sequence complete",
			zap.String("sequence_id", out.id),
			zap.String("kind", string(kind)),
			zap.Duration("duration", out.duration))
	} else {
		m.logger.Warn("Sequence failed",
			zap.String("sequence_id", out.id),
			zap.String("kind", string(kind)),
			zap.String("message", ev.Message))
	}

	last := ev
	last.Values = nil
	m.end(last)
	m.publish(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
