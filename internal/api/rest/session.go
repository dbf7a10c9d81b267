package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/types"
)

const auditTimeout = 3 * time.Second

type SessionRequest struct {
	Mode     string `json:"mode" binding:"required"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Token       string            `json:"token"`
	SessionID   string            `json:"session_id"`
	Mode        auth.ViewMode     `json:"mode"`
	Permissions []auth.Permission `json:"permissions"`
	ExpiresAt   int64             `json:"expires_at"`
}

// POST /api/v1/session
func (s *Server) startSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SESSION_400", "Invalid request body", err.Error()))
		return
	}

	mode, err := auth.ParseViewMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SESSION_400", "Unknown view mode", err.Error()))
		return
	}

	token, claims, err := s.authService.StartSession(mode, req.Password)

	ev := &storage.SessionEvent{
		Mode:      string(mode),
		Success:   err == nil,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err != nil {
		ev.Reason = err.Error()
	} else {
		id := claims.SessionID
		ev.SessionID = &id
	}
	s.logSessionEvent(ev)

	switch {
	case errors.Is(err, auth.ErrAdminPassword):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("SESSION_401", "Invalid admin password", nil))
		return
	case errors.Is(err, auth.ErrAdminDisabled):
		c.JSON(http.StatusForbidden, types.NewErrorResponse("SESSION_403", "Admin mode is not configured", nil))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SESSION_500", "Failed to start session", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Token:       token,
		SessionID:   claims.SessionID.String(),
		Mode:        claims.Mode,
		Permissions: claims.Mode.Permissions(),
		ExpiresAt:   claims.ExpiresAt.Unix(),
	})
}

// Audit-Fehler blockieren die Anmeldung nicht
func (s *Server) logSessionEvent(ev *storage.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := s.lm.Storage().LogSessionEvent(ctx, ev); err != nil {
		s.logger.Warn("Failed to record session event", zap.Error(err))
	}
}

// GET /api/v1/session/events
func (s *Server) listSessionEvents(c *gin.Context) {
	events, err := s.lm.Storage().ListSessionEvents(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("AUDIT_500", "Failed to list session events", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// GET /api/v1/session
func (s *Server) getSession(c *gin.Context) {
	mode, _ := auth.ViewModeFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"session_id":  auth.SessionIDFrom(c),
		"mode":        mode,
		"permissions": mode.Permissions(),
	})
}
