package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/ngxconfig/internal/types"
)

const (
	ctxSessionID = "session_id"
	ctxViewMode  = "view_mode"
)

// AuthMiddleware validates the session token and stores its view mode.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHORIZED", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHORIZED", "invalid authorization header format", nil))
			return
		}

		claims, err := a.ValidateSession(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHORIZED", "invalid or expired session", nil))
			return
		}

		c.Set(ctxSessionID, claims.SessionID.String())
		c.Set(ctxViewMode, claims.Mode)
		c.Next()
	}
}

// RequirePermission aborts unless the session's view mode grants p.
func RequirePermission(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := ViewModeFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("FORBIDDEN", "no session", nil))
			return
		}

		if !mode.Allows(p) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("FORBIDDEN", "view mode does not allow this operation",
					gin.H{"mode": mode, "required": p}))
			return
		}

		c.Next()
	}
}

// ViewModeFrom extracts the session's view mode.
func ViewModeFrom(c *gin.Context) (ViewMode, bool) {
	v, ok := c.Get(ctxViewMode)
	if !ok {
		return "", false
	}
	mode, ok := v.(ViewMode)
	return mode, ok
}

// SessionIDFrom extracts the session id set by AuthMiddleware.
func SessionIDFrom(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}
