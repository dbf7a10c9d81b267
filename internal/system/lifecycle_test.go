package system

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/streaming"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

func newTestLifecycle(t *testing.T) (*LifecycleManager, *storage.MemoryStore) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Server.GRPCPort = 0
	cfg.Server.HTTPPort = 0
	cfg.Serial.Simulate = true
	cfg.Serial.ReadTimeout = 5 * time.Millisecond

	store := storage.NewMemoryStore()
	lm, err := NewLifecycleManager(store, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := lm.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		lm.Shutdown(ctx)
	})
	return lm, store
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatus(t *testing.T) {
	lm, _ := newTestLifecycle(t)

	st := lm.GetCurrentStatus()
	if st.State != "RUNNING" || st.Connected || st.Database {
		t.Errorf("status = %+v", st)
	}

	if err := lm.Transport().Connect("sim0"); err != nil {
		t.Fatal(err)
	}
	st = lm.GetCurrentStatus()
	if !st.Connected || st.Port != "sim0" {
		t.Errorf("status = %+v", st)
	}
}

func TestBusEventsBridged(t *testing.T) {
	lm, _ := newTestLifecycle(t)
	events := lm.Streamer().Subscribe(streaming.SourceBus)
	defer lm.Streamer().Unsubscribe(events)

	if err := lm.Transport().Connect("sim0"); err != nil {
		t.Fatal(err)
	}
	lm.Transport().RequestStatus()

	var types []string
	timeout := time.After(2 * time.Second)
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("events = %v", types)
		}
	}
	if types[0] != "connected" || types[1] != "status" {
		t.Errorf("events = %v", types)
	}
}

func TestFullReadIsBackedUpAndRecorded(t *testing.T) {
	lm, store := newTestLifecycle(t)
	if err := lm.Transport().Connect("sim0"); err != nil {
		t.Fatal(err)
	}

	if err := lm.Workspace().Start(workspace.Request{Kind: manager.KindReadFull}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := lm.Workspace().Wait(ctx); err != nil {
		t.Fatal(err)
	}

	last := lm.Workspace().LastOutcome()
	if last == nil || !last.Success {
		t.Fatalf("last = %+v", last)
	}
	if lm.Workspace().Origin() != "device" || lm.Workspace().Firmware() != simulatedFirmware {
		t.Errorf("origin = %s firmware = %+v", lm.Workspace().Origin(), lm.Workspace().Firmware())
	}

	backups, _ := store.ListBackups(ctx, 0)
	if len(backups) != 1 || backups[0].Source != "device" || !backups[0].Complete {
		t.Errorf("backups = %+v", backups)
	}

	eventually(t, "operation record", func() bool {
		ops, _ := store.ListOperations(ctx, 0)
		return len(ops) == 1 && ops[0].Kind == string(manager.KindReadFull) && ops[0].Success
	})
}

func TestShutdownStopsEverything(t *testing.T) {
	lm, _ := newTestLifecycle(t)
	lm.Transport().Connect("sim0")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := lm.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if lm.Transport().IsConnected() {
		t.Error("still connected")
	}
	if st := lm.GetCurrentStatus(); st.State != "STOPPED" {
		t.Errorf("state = %s", st.State)
	}
	// zweiter Aufruf ist ein No-op
	if err := lm.Shutdown(ctx); err != nil {
		t.Error(err)
	}
}

func TestServiceStateString(t *testing.T) {
	if StateFailed.String() != "FAILED" {
		t.Errorf("StateFailed = %s", StateFailed)
	}
	if s := ServiceState(42).String(); s != "ServiceState(42)" {
		t.Errorf("unknown state = %s", s)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to ServiceState
		ok       bool
	}{
		{StateStarting, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
		{StateRunning, StateStarting, false},
		{StateFailed, StateStopping, true},
		{StateStopped, StateStarting, false},
		{StateFailed, StateRunning, false},
	}
	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v", tt.from, tt.to, err)
		}
	}
}
