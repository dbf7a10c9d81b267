package system

import (
	"fmt"
	"slices"
)

// ServiceState is where the server is in its start/stop cycle. The serial
// link is tracked separately by the transport; losing the adapter does not
// move the service to StateFailed.
type ServiceState int

const (
	StateStarting ServiceState = iota // config geladen, Listener noch zu
	StateRunning                      // REST, WebSocket und gRPC offen
	StateStopping                     // Sequenz abbrechen, Port schließen
	StateStopped
	StateFailed // ein Listener ist ausgefallen
)

var stateNames = [...]string{
	StateStarting: "STARTING",
	StateRunning:  "RUNNING",
	StateStopping: "STOPPING",
	StateStopped:  "STOPPED",
	StateFailed:   "FAILED",
}

func (s ServiceState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ServiceState(%d)", int(s))
	}
	return stateNames[s]
}

// successors lists where each state may go. A stopped server is not
// restarted in-process, so StateStopped has none.
var successors = map[ServiceState][]ServiceState{
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateFailed:   {StateStopping, StateStopped},
}

// ValidateTransition reports a jump the lifecycle manager should never make.
func ValidateTransition(from, to ServiceState) error {
	if !slices.Contains(successors[from], to) {
		return fmt.Errorf("service cannot go from %s to %s", from, to)
	}
	return nil
}
