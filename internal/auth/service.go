package auth

import (
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/config"
)

// AuthService issues view-mode sessions.
type AuthService struct {
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	adminHash      string
	logger         *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if !cfg.IsProductionReady() {
		logger.Warn("Using development JWT secret", zap.String("env", cfg.JWTSecretEnv))
	}
	adminHash := cfg.AdminPasswordHash()
	if adminHash == "" {
		logger.Info("Admin mode disabled, no password hash configured")
	}

	return &AuthService{
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.SessionTTL),
		passwordHasher: NewPasswordHasher(),
		adminHash:      adminHash,
		logger:         logger,
	}
}

// VerifyAdminPassword reports whether password unlocks Admin mode.
func (a *AuthService) VerifyAdminPassword(password string) bool {
	if a.adminHash == "" {
		return false
	}
	ok, err := a.passwordHasher.VerifyPassword(password, a.adminHash)
	if err != nil {
		a.logger.Error("Admin password hash unusable", zap.Error(err))
		return false
	}
	return ok
}

// NewModeState returns a mode holder wired to the admin password check.
func (a *AuthService) NewModeState() *ModeState {
	if a.adminHash == "" {
		return NewModeState(nil)
	}
	return NewModeState(a.VerifyAdminPassword)
}

// StartSession opens a session in the requested mode.
func (a *AuthService) StartSession(mode ViewMode, password string) (string, *SessionClaims, error) {
	state := a.NewModeState()
	if err := state.Set(mode, password); err != nil {
		a.logger.Warn("Session rejected", zap.String("mode", string(mode)), zap.Error(err))
		return "", nil, err
	}

	token, claims, err := a.jwtHandler.GenerateSessionToken(state.Current())
	if err != nil {
		return "", nil, err
	}

	a.logger.Info("Session started",
		zap.String("session_id", claims.SessionID.String()),
		zap.String("mode", string(claims.Mode)))
	return token, claims, nil
}

func (a *AuthService) ValidateSession(token string) (*SessionClaims, error) {
	return a.jwtHandler.ValidateSessionToken(token)
}
