package interfaces

import (
	"context"

	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/presets"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/transport"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State     string `json:"state"`
	Port      string `json:"port,omitempty"`
	Connected bool   `json:"connected"`
	Operation string `json:"operation,omitempty"`
	Database  bool   `json:"database"`
}

type LifecycleManager interface {
	Config() *config.Config
	Storage() storage.Store
	Transport() *transport.Transport
	Sequencer() *manager.Manager
	Workspace() *workspace.Workspace
	Presets() *presets.Catalog
	Validator() *configdata.Validator
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
