package transport

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AdapterCommand is one step of the adapter configuration script.
type AdapterCommand struct {
	Text        string
	Description string
}

const (
	adapterStepDelay = 150 * time.Millisecond
	adapterSaveDelay = 300 * time.Millisecond
)

// AdapterSetupScript puts the adapter into 250 kbit/s J1939 operation with
// ASCII command mode. The first step only works when the serial config
// command is enabled; otherwise the CONFIG button has to be pressed.
var AdapterSetupScript = []AdapterCommand{
	{":CONFIG;", "Entering config mode"},
	{"config\r", "Navigating to config level"},
	{"can\r", "Navigating to CAN settings"},
	{"baud 250000\r", "Setting CAN baud rate to 250000"},
	{"exit\r", "Exiting CAN settings"},
	{"com\r", "Navigating to COM settings"},
	{"mode command\r", "Setting mode to command"},
	{"exit\r", "Exiting COM settings"},
	{"command\r", "Navigating to command settings"},
	{"format ascii\r", "Setting format to ASCII"},
	{"config cmd enable\r", "Enabling serial config command"},
	{"exit\r", "Exiting command settings"},
	{"save\r", "Saving configuration"},
	{"exit\r", "Exiting config mode"},
}

// StepFunc is called before each script step is sent.
type StepFunc func(step, total int, cmd AdapterCommand)

// ConfigureAdapter sends the setup script with per-step pacing. The delay
// after "save" is longer so the adapter can persist its settings.
func (t *Transport) ConfigureAdapter(ctx context.Context, onStep StepFunc) error {
	total := len(AdapterSetupScript)

	for i, cmd := range AdapterSetupScript {
		if onStep != nil {
			onStep(i+1, total, cmd)
		}
		t.logger.Info("Adapter setup",
			zap.Int("step", i+1),
			zap.Int("total", total),
			zap.String("description", cmd.Description))

		if err := t.SendRaw(cmd.Text); err != nil {
			return err
		}

		delay := adapterStepDelay
		if strings.Contains(strings.ToLower(cmd.Text), "save") {
			delay = adapterSaveDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}
