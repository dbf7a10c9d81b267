package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ViewMode gates how much of the configuration surface a session may use.
type ViewMode string

const (
	ModeBasic    ViewMode = "basic"
	ModeAdvanced ViewMode = "advanced"
	ModeAdmin    ViewMode = "admin"
)

var (
	ErrUnknownMode   = errors.New("auth: unknown view mode")
	ErrAdminPassword = errors.New("auth: admin password required")
	ErrAdminDisabled = errors.New("auth: admin mode not configured")
)

func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBasic, ModeAdvanced, ModeAdmin:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type Permission string

const (
	PermReadConfig   Permission = "config:read"
	PermWriteConfig  Permission = "config:write"
	PermEditCases    Permission = "config:cases"
	PermSystemWrite  Permission = "device:system"
	PermFactoryReset Permission = "device:factory_reset"
	PermRawFrames    Permission = "can:raw"
	PermAdapter      Permission = "adapter:setup"
	PermBackups      Permission = "backups"
	PermAudit        Permission = "audit:read"
)

var modePermissions = map[ViewMode][]Permission{
	ModeBasic: {
		PermReadConfig, PermWriteConfig,
	},
	ModeAdvanced: {
		PermReadConfig, PermWriteConfig, PermEditCases, PermBackups, PermAdapter,
	},
	ModeAdmin: {
		PermReadConfig, PermWriteConfig, PermEditCases, PermBackups, PermAdapter,
		PermSystemWrite, PermFactoryReset, PermRawFrames, PermAudit,
	},
}

// Permissions lists what a mode grants.
func (m ViewMode) Permissions() []Permission {
	return append([]Permission(nil), modePermissions[m]...)
}

func (m ViewMode) Allows(p Permission) bool {
	for _, have := range modePermissions[m] {
		if have == p {
			return true
		}
	}
	return false
}

// ModeState holds the current view mode of one client, e.g. the CLI.
// Listeners are called synchronously after a change.
type ModeState struct {
	mu        sync.RWMutex
	mode      ViewMode
	verify    func(password string) bool
	listeners []func(ViewMode)
}

// NewModeState starts in Advanced. verify checks the admin password; nil
// disables Admin mode.
func NewModeState(verify func(password string) bool) *ModeState {
	return &ModeState{mode: ModeAdvanced, verify: verify}
}

func (s *ModeState) Current() ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *ModeState) IsBasic() bool    { return s.Current() == ModeBasic }
func (s *ModeState) IsAdvanced() bool { return s.Current() == ModeAdvanced }
func (s *ModeState) IsAdmin() bool    { return s.Current() == ModeAdmin }

// OnChange registers a listener.
func (s *ModeState) OnChange(fn func(ViewMode)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Set switches the mode. Admin needs the password.
func (s *ModeState) Set(mode ViewMode, password string) error {
	if _, err := ParseViewMode(string(mode)); err != nil {
		return err
	}
	if mode == ModeAdmin {
		if s.verify == nil {
			return ErrAdminDisabled
		}
		if !s.verify(password) {
			return ErrAdminPassword
		}
	}

	s.mu.Lock()
	changed := s.mode != mode
	s.mode = mode
	listeners := append(([]func(ViewMode))(nil), s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(mode)
		}
	}
	return nil
}
